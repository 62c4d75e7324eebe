// Package store persists sessions, turns, and world state to SQLite
// so an interrupted run can resume from where it stopped.
package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/tatianab/autoplay/internal/models"
)

// Store wraps the SQLite database holding play history and world
// state. All rows are scoped by session ID.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens the database at path and applies the schema.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	s := &Store{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			game_file TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'playing',
			total_turns INTEGER NOT NULL DEFAULT 0,
			started_at TIMESTAMP NOT NULL,
			ended_at TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS turns (
			session_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			command TEXT NOT NULL,
			output TEXT NOT NULL,
			room_key TEXT NOT NULL DEFAULT '',
			inventory TEXT NOT NULL DEFAULT '[]',
			reasoning TEXT NOT NULL DEFAULT '',
			UNIQUE(session_id, turn)
		)`,
		`CREATE TABLE IF NOT EXISTS usage (
			session_id TEXT NOT NULL,
			turn INTEGER NOT NULL,
			agent TEXT NOT NULL,
			model TEXT NOT NULL,
			input_tokens INTEGER NOT NULL DEFAULT 0,
			output_tokens INTEGER NOT NULL DEFAULT 0,
			cached_tokens INTEGER NOT NULL DEFAULT 0,
			latency_ms REAL NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS rooms (
			session_id TEXT NOT NULL,
			key TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			visited INTEGER NOT NULL DEFAULT 0,
			visit_count INTEGER NOT NULL DEFAULT 0,
			dark INTEGER NOT NULL DEFAULT 0,
			maze_group TEXT NOT NULL DEFAULT '',
			maze_marker_item TEXT NOT NULL DEFAULT '',
			first_visited_turn INTEGER NOT NULL DEFAULT 0,
			last_visited_turn INTEGER NOT NULL DEFAULT 0,
			exits TEXT NOT NULL DEFAULT '{}',
			PRIMARY KEY(session_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS connections (
			session_id TEXT NOT NULL,
			from_key TEXT NOT NULL,
			to_key TEXT NOT NULL,
			direction TEXT NOT NULL,
			bidirectional INTEGER NOT NULL DEFAULT 0,
			blocked INTEGER NOT NULL DEFAULT 0,
			block_reason TEXT NOT NULL DEFAULT '',
			teleport INTEGER NOT NULL DEFAULT 0,
			random INTEGER NOT NULL DEFAULT 0,
			observed_dests TEXT NOT NULL DEFAULT '[]',
			PRIMARY KEY(session_id, from_key, direction)
		)`,
		`CREATE TABLE IF NOT EXISTS items (
			session_id TEXT NOT NULL,
			key TEXT NOT NULL,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			location TEXT NOT NULL DEFAULT '',
			portable TEXT NOT NULL DEFAULT 'unknown',
			properties TEXT NOT NULL DEFAULT '{}',
			first_seen_turn INTEGER NOT NULL DEFAULT 0,
			last_seen_turn INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(session_id, key)
		)`,
		`CREATE TABLE IF NOT EXISTS puzzles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			description TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'open',
			location TEXT NOT NULL DEFAULT '',
			related_items TEXT NOT NULL DEFAULT '[]',
			attempts TEXT NOT NULL DEFAULT '[]',
			created_turn INTEGER NOT NULL DEFAULT 0,
			solved_turn INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS maze_groups (
			session_id TEXT NOT NULL,
			key TEXT NOT NULL,
			entry_room TEXT NOT NULL DEFAULT '',
			rooms TEXT NOT NULL DEFAULT '[]',
			exit_rooms TEXT NOT NULL DEFAULT '[]',
			markers TEXT NOT NULL DEFAULT '{}',
			fully_mapped INTEGER NOT NULL DEFAULT 0,
			created_turn INTEGER NOT NULL DEFAULT 0,
			completed_turn INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY(session_id, key)
		)`,
	}
	for _, stmt := range schema {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// CreateSession inserts a new playing session.
func (s *Store) CreateSession(sess *models.Session) error {
	_, err := s.db.Exec(
		`INSERT INTO sessions (id, game_file, status, total_turns, started_at)
		 VALUES (?, ?, ?, ?, ?)`,
		sess.ID, sess.GameFile, string(sess.Status), sess.TotalTurns, sess.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	s.logger.Info("session created", "session", sess.ID, "game", sess.GameFile)
	return nil
}

// EndSession records the final status and turn count.
func (s *Store) EndSession(sessionID string, status models.SessionStatus, totalTurns int) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET status = ?, total_turns = ?, ended_at = ? WHERE id = ?`,
		string(status), totalTurns, time.Now(), sessionID,
	)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// TouchSession updates the running turn counter so a crashed run knows
// where it stopped.
func (s *Store) TouchSession(sessionID string, totalTurns int) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET total_turns = ? WHERE id = ?`, totalTurns, sessionID,
	)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	return nil
}

// ActiveSession returns the most recently started session for the game
// file still marked playing, or nil when none exists.
func (s *Store) ActiveSession(gameFile string) (*models.Session, error) {
	row := s.db.QueryRow(
		`SELECT id, game_file, status, total_turns, started_at
		 FROM sessions WHERE status = 'playing' AND game_file = ?
		 ORDER BY started_at DESC LIMIT 1`, gameFile,
	)
	var sess models.Session
	var status string
	err := row.Scan(&sess.ID, &sess.GameFile, &status, &sess.TotalTurns, &sess.StartedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active session: %w", err)
	}
	sess.Status = models.SessionStatus(status)
	return &sess, nil
}

// RecordTurn appends one turn. Turn numbers are unique per session;
// replaying an already stored turn is rejected by the database.
func (s *Store) RecordTurn(sessionID string, t *models.TurnRecord) error {
	inv, err := json.Marshal(t.Inventory)
	if err != nil {
		return fmt.Errorf("encode inventory: %w", err)
	}
	ts := t.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err = s.db.Exec(
		`INSERT INTO turns (session_id, turn, timestamp, command, output, room_key,
			inventory, reasoning)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, t.Turn, ts, t.Command, t.Output, t.RoomKey, string(inv), t.Reasoning,
	)
	if err != nil {
		return fmt.Errorf("record turn %d: %w", t.Turn, err)
	}
	return nil
}

// LatestTurn returns the highest stored turn number, 0 when the
// session has none.
func (s *Store) LatestTurn(sessionID string) (int, error) {
	row := s.db.QueryRow(
		`SELECT COALESCE(MAX(turn), 0) FROM turns WHERE session_id = ?`, sessionID,
	)
	var turn int
	if err := row.Scan(&turn); err != nil {
		return 0, fmt.Errorf("latest turn: %w", err)
	}
	return turn, nil
}

// RecentTurns returns the last n turns in ascending turn order.
func (s *Store) RecentTurns(sessionID string, n int) ([]models.TurnRecord, error) {
	rows, err := s.db.Query(
		`SELECT turn, timestamp, command, output, room_key, inventory, reasoning
		 FROM (SELECT * FROM turns WHERE session_id = ? ORDER BY turn DESC LIMIT ?)
		 ORDER BY turn ASC`, sessionID, n,
	)
	if err != nil {
		return nil, fmt.Errorf("recent turns: %w", err)
	}
	defer rows.Close()

	var out []models.TurnRecord
	for rows.Next() {
		t := models.TurnRecord{SessionID: sessionID}
		var inv string
		if err := rows.Scan(&t.Turn, &t.Timestamp, &t.Command, &t.Output, &t.RoomKey,
			&inv, &t.Reasoning); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		if err := json.Unmarshal([]byte(inv), &t.Inventory); err != nil {
			return nil, fmt.Errorf("decode inventory: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RecordUsage appends token accounting for one model call.
func (s *Store) RecordUsage(u *models.Usage) error {
	_, err := s.db.Exec(
		`INSERT INTO usage (session_id, turn, agent, model, input_tokens, output_tokens,
			cached_tokens, latency_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		u.SessionID, u.Turn, u.Agent, u.Model,
		u.InputTokens, u.OutputTokens, u.CachedTokens, u.LatencyMS,
	)
	if err != nil {
		return fmt.Errorf("record usage: %w", err)
	}
	return nil
}

// TotalUsage sums token counts over the whole session.
func (s *Store) TotalUsage(sessionID string) (models.Usage, error) {
	row := s.db.QueryRow(
		`SELECT COALESCE(SUM(input_tokens), 0), COALESCE(SUM(output_tokens), 0),
			COALESCE(SUM(cached_tokens), 0)
		 FROM usage WHERE session_id = ?`, sessionID,
	)
	u := models.Usage{SessionID: sessionID}
	if err := row.Scan(&u.InputTokens, &u.OutputTokens, &u.CachedTokens); err != nil {
		return models.Usage{}, fmt.Errorf("total usage: %w", err)
	}
	return u, nil
}

// SaveRoom upserts one room's state.
func (s *Store) SaveRoom(sessionID string, r *models.Room) error {
	exits, err := json.Marshal(r.Exits)
	if err != nil {
		return fmt.Errorf("encode exits: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO rooms (session_id, key, name, description, visited, visit_count,
			dark, maze_group, maze_marker_item, first_visited_turn, last_visited_turn, exits)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, key) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			visited = excluded.visited,
			visit_count = excluded.visit_count,
			dark = excluded.dark,
			maze_group = excluded.maze_group,
			maze_marker_item = excluded.maze_marker_item,
			first_visited_turn = excluded.first_visited_turn,
			last_visited_turn = excluded.last_visited_turn,
			exits = excluded.exits`,
		sessionID, r.Key, r.Name, r.Description, r.Visited, r.VisitCount,
		r.Dark, r.MazeGroup, r.MazeMarkerItem, r.FirstVisitedTurn, r.LastVisitedTurn,
		string(exits),
	)
	if err != nil {
		return fmt.Errorf("save room %q: %w", r.Key, err)
	}
	return nil
}

// Rooms loads every room stored for a session, ordered by key.
func (s *Store) Rooms(sessionID string) ([]*models.Room, error) {
	rows, err := s.db.Query(
		`SELECT key, name, description, visited, visit_count, dark, maze_group,
			maze_marker_item, first_visited_turn, last_visited_turn, exits
		 FROM rooms WHERE session_id = ? ORDER BY key`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	defer rows.Close()

	var out []*models.Room
	for rows.Next() {
		var r models.Room
		var exits string
		if err := rows.Scan(&r.Key, &r.Name, &r.Description, &r.Visited, &r.VisitCount,
			&r.Dark, &r.MazeGroup, &r.MazeMarkerItem, &r.FirstVisitedTurn,
			&r.LastVisitedTurn, &exits); err != nil {
			return nil, fmt.Errorf("scan room: %w", err)
		}
		if err := json.Unmarshal([]byte(exits), &r.Exits); err != nil {
			return nil, fmt.Errorf("decode exits for %q: %w", r.Key, err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

// SaveConnection upserts one directed edge.
func (s *Store) SaveConnection(sessionID string, c *models.Connection) error {
	dests, err := json.Marshal(c.ObservedDests)
	if err != nil {
		return fmt.Errorf("encode observed destinations: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO connections (session_id, from_key, to_key, direction, bidirectional,
			blocked, block_reason, teleport, random, observed_dests)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, from_key, direction) DO UPDATE SET
			to_key = excluded.to_key,
			bidirectional = excluded.bidirectional,
			blocked = excluded.blocked,
			block_reason = excluded.block_reason,
			teleport = excluded.teleport,
			random = excluded.random,
			observed_dests = excluded.observed_dests`,
		sessionID, c.From, c.To, c.Direction, c.Bidirectional,
		c.Blocked, c.BlockReason, c.Teleport, c.Random, string(dests),
	)
	if err != nil {
		return fmt.Errorf("save connection %s -%s-> %s: %w", c.From, c.Direction, c.To, err)
	}
	return nil
}

// Connections loads every edge stored for a session.
func (s *Store) Connections(sessionID string) ([]*models.Connection, error) {
	rows, err := s.db.Query(
		`SELECT from_key, to_key, direction, bidirectional, blocked, block_reason,
			teleport, random, observed_dests
		 FROM connections WHERE session_id = ? ORDER BY from_key, direction`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load connections: %w", err)
	}
	defer rows.Close()

	var out []*models.Connection
	for rows.Next() {
		var c models.Connection
		var dests string
		if err := rows.Scan(&c.From, &c.To, &c.Direction, &c.Bidirectional, &c.Blocked,
			&c.BlockReason, &c.Teleport, &c.Random, &dests); err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		if err := json.Unmarshal([]byte(dests), &c.ObservedDests); err != nil {
			return nil, fmt.Errorf("decode observed destinations: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

// SaveItem upserts one item.
func (s *Store) SaveItem(sessionID string, it *models.Item) error {
	props, err := json.Marshal(it.Properties)
	if err != nil {
		return fmt.Errorf("encode properties: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO items (session_id, key, name, description, location, portable,
			properties, first_seen_turn, last_seen_turn)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, key) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			location = excluded.location,
			portable = excluded.portable,
			properties = excluded.properties,
			last_seen_turn = excluded.last_seen_turn`,
		sessionID, it.Key, it.Name, it.Description, it.Location, string(it.Portable),
		string(props), it.FirstSeenTurn, it.LastSeenTurn,
	)
	if err != nil {
		return fmt.Errorf("save item %q: %w", it.Key, err)
	}
	return nil
}

// Items loads every item stored for a session, ordered by key.
func (s *Store) Items(sessionID string) ([]*models.Item, error) {
	rows, err := s.db.Query(
		`SELECT key, name, description, location, portable, properties,
			first_seen_turn, last_seen_turn
		 FROM items WHERE session_id = ? ORDER BY key`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load items: %w", err)
	}
	defer rows.Close()

	var out []*models.Item
	for rows.Next() {
		var it models.Item
		var portable, props string
		if err := rows.Scan(&it.Key, &it.Name, &it.Description, &it.Location, &portable,
			&props, &it.FirstSeenTurn, &it.LastSeenTurn); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		it.Portable = models.Portability(portable)
		if err := json.Unmarshal([]byte(props), &it.Properties); err != nil {
			return nil, fmt.Errorf("decode properties for %q: %w", it.Key, err)
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}

// SavePuzzle inserts a puzzle when its ID is zero, assigning the new
// ID, and updates the existing row otherwise.
func (s *Store) SavePuzzle(sessionID string, p *models.Puzzle) error {
	related, err := json.Marshal(p.RelatedItems)
	if err != nil {
		return fmt.Errorf("encode related items: %w", err)
	}
	attempts, err := json.Marshal(p.Attempts)
	if err != nil {
		return fmt.Errorf("encode attempts: %w", err)
	}
	if p.ID == 0 {
		res, err := s.db.Exec(
			`INSERT INTO puzzles (session_id, description, status, location,
				related_items, attempts, created_turn, solved_turn)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, p.Description, string(p.Status), p.Location,
			string(related), string(attempts), p.CreatedTurn, p.SolvedTurn,
		)
		if err != nil {
			return fmt.Errorf("insert puzzle: %w", err)
		}
		p.ID, err = res.LastInsertId()
		if err != nil {
			return fmt.Errorf("puzzle id: %w", err)
		}
		return nil
	}
	_, err = s.db.Exec(
		`UPDATE puzzles SET description = ?, status = ?, location = ?,
			related_items = ?, attempts = ?, solved_turn = ?
		 WHERE id = ? AND session_id = ?`,
		p.Description, string(p.Status), p.Location,
		string(related), string(attempts), p.SolvedTurn, p.ID, sessionID,
	)
	if err != nil {
		return fmt.Errorf("update puzzle %d: %w", p.ID, err)
	}
	return nil
}

// Puzzles loads every puzzle stored for a session, ordered by ID.
func (s *Store) Puzzles(sessionID string) ([]*models.Puzzle, error) {
	rows, err := s.db.Query(
		`SELECT id, description, status, location, related_items, attempts,
			created_turn, solved_turn
		 FROM puzzles WHERE session_id = ? ORDER BY id`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load puzzles: %w", err)
	}
	defer rows.Close()

	var out []*models.Puzzle
	for rows.Next() {
		var p models.Puzzle
		var status, related, attempts string
		if err := rows.Scan(&p.ID, &p.Description, &status, &p.Location,
			&related, &attempts, &p.CreatedTurn, &p.SolvedTurn); err != nil {
			return nil, fmt.Errorf("scan puzzle: %w", err)
		}
		p.Status = models.PuzzleStatus(status)
		if err := json.Unmarshal([]byte(related), &p.RelatedItems); err != nil {
			return nil, fmt.Errorf("decode related items: %w", err)
		}
		if err := json.Unmarshal([]byte(attempts), &p.Attempts); err != nil {
			return nil, fmt.Errorf("decode attempts: %w", err)
		}
		out = append(out, &p)
	}
	return out, rows.Err()
}

// SaveMazeGroup upserts one maze group.
func (s *Store) SaveMazeGroup(sessionID string, g *models.MazeGroup) error {
	rooms, err := json.Marshal(g.Rooms)
	if err != nil {
		return fmt.Errorf("encode maze rooms: %w", err)
	}
	exitRooms, err := json.Marshal(g.ExitRooms)
	if err != nil {
		return fmt.Errorf("encode maze exit rooms: %w", err)
	}
	markers, err := json.Marshal(g.Markers)
	if err != nil {
		return fmt.Errorf("encode maze markers: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT INTO maze_groups (session_id, key, entry_room, rooms, exit_rooms,
			markers, fully_mapped, created_turn, completed_turn)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, key) DO UPDATE SET
			entry_room = excluded.entry_room,
			rooms = excluded.rooms,
			exit_rooms = excluded.exit_rooms,
			markers = excluded.markers,
			fully_mapped = excluded.fully_mapped,
			completed_turn = excluded.completed_turn`,
		sessionID, g.Key, g.EntryRoom, string(rooms), string(exitRooms),
		string(markers), g.FullyMapped, g.CreatedTurn, g.CompletedTurn,
	)
	if err != nil {
		return fmt.Errorf("save maze group %q: %w", g.Key, err)
	}
	return nil
}

// MazeGroups loads every maze group stored for a session.
func (s *Store) MazeGroups(sessionID string) ([]*models.MazeGroup, error) {
	rows, err := s.db.Query(
		`SELECT key, entry_room, rooms, exit_rooms, markers, fully_mapped,
			created_turn, completed_turn
		 FROM maze_groups WHERE session_id = ? ORDER BY key`, sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("load maze groups: %w", err)
	}
	defer rows.Close()

	var out []*models.MazeGroup
	for rows.Next() {
		var g models.MazeGroup
		var roomsCol, exitsCol, markersCol string
		if err := rows.Scan(&g.Key, &g.EntryRoom, &roomsCol, &exitsCol, &markersCol,
			&g.FullyMapped, &g.CreatedTurn, &g.CompletedTurn); err != nil {
			return nil, fmt.Errorf("scan maze group: %w", err)
		}
		if err := json.Unmarshal([]byte(roomsCol), &g.Rooms); err != nil {
			return nil, fmt.Errorf("decode maze rooms: %w", err)
		}
		if err := json.Unmarshal([]byte(exitsCol), &g.ExitRooms); err != nil {
			return nil, fmt.Errorf("decode maze exit rooms: %w", err)
		}
		if err := json.Unmarshal([]byte(markersCol), &g.Markers); err != nil {
			return nil, fmt.Errorf("decode maze markers: %w", err)
		}
		out = append(out, &g)
	}
	return out, rows.Err()
}
