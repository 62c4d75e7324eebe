// Package worldmap maintains a directed graph of rooms and connections:
// pathfinding, exploration state, blocked paths, and maze detection
// with item markers.
package worldmap

import (
	"log/slog"
	"sort"
	"strings"

	"github.com/tatianab/autoplay/internal/models"
)

// reverseDirections pairs each compass direction with its opposite.
var reverseDirections = map[string]string{
	"north":     "south",
	"south":     "north",
	"east":      "west",
	"west":      "east",
	"northeast": "southwest",
	"southwest": "northeast",
	"northwest": "southeast",
	"southeast": "northwest",
	"up":        "down",
	"down":      "up",
	"in":        "out",
	"out":       "in",
}

// ReverseDirection returns the opposite of a direction. Directions with
// no known opposite get a synthesized back_from_ label so the reverse
// edge is still traversable.
func ReverseDirection(direction string) string {
	if rev, ok := reverseDirections[direction]; ok {
		return rev
	}
	return "back_from_" + direction
}

var directionAbbrevs = map[string]string{
	"n": "north", "s": "south", "e": "east", "w": "west",
	"ne": "northeast", "nw": "northwest", "se": "southeast", "sw": "southwest",
	"u": "up", "d": "down",
}

// ExtractDirection pulls a movement direction out of a game command,
// expanding single-letter abbreviations. Returns "" when the command is
// not a movement.
func ExtractDirection(command string) string {
	words := strings.Fields(strings.ToLower(command))
	if len(words) > 0 && words[0] == "go" {
		words = words[1:]
	}
	for _, w := range words {
		if full, ok := directionAbbrevs[w]; ok {
			return full
		}
		if _, ok := reverseDirections[w]; ok {
			return w
		}
	}
	return ""
}

type descEntry struct {
	roomKey string
	desc    string
}

// Graph is the world model: rooms keyed by normalized name, outgoing
// connections per room, and maze-group state. Not safe for concurrent
// use; the orchestrator owns it for the session.
type Graph struct {
	rooms   map[string]*models.Room
	edges   map[string][]*models.Connection
	current string

	mazeActive  bool
	activeMaze  *models.MazeGroup
	mazeGroups  map[string]*models.MazeGroup
	recentDescs []descEntry

	logger *slog.Logger
}

const (
	descWindow          = 20
	similarityThreshold = 0.95
)

func New(logger *slog.Logger) *Graph {
	if logger == nil {
		logger = slog.Default()
	}
	return &Graph{
		rooms:      make(map[string]*models.Room),
		edges:      make(map[string][]*models.Connection),
		mazeGroups: make(map[string]*models.MazeGroup),
		logger:     logger,
	}
}

// CurrentRoomKey returns the key of the room the player is in, or ""
// before the first observation.
func (g *Graph) CurrentRoomKey() string { return g.current }

// SetCurrentRoom overrides the tracked position. Used on crash-resume.
func (g *Graph) SetCurrentRoom(key string) { g.current = key }

// Room returns the room for a key, or nil.
func (g *Graph) Room(key string) *models.Room { return g.rooms[key] }

// CurrentRoom returns the room the player is in, or nil.
func (g *Graph) CurrentRoom() *models.Room {
	if g.current == "" {
		return nil
	}
	return g.rooms[g.current]
}

// Rooms returns every known room in key order.
func (g *Graph) Rooms() []*models.Room {
	keys := make([]string, 0, len(g.rooms))
	for k := range g.rooms {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	rooms := make([]*models.Room, 0, len(keys))
	for _, k := range keys {
		rooms = append(rooms, g.rooms[k])
	}
	return rooms
}

// Connections returns every edge, ordered by (from, direction).
func (g *Graph) Connections() []*models.Connection {
	var all []*models.Connection
	for _, outgoing := range g.edges {
		all = append(all, outgoing...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].From != all[j].From {
			return all[i].From < all[j].From
		}
		return all[i].Direction < all[j].Direction
	})
	return all
}

// RestoreRoom reinserts a persisted room as-is. Used on crash-resume.
func (g *Graph) RestoreRoom(room *models.Room) {
	if room.Exits == nil {
		room.Exits = make(map[string]string)
	}
	g.rooms[room.Key] = room
}

// RestoreConnection reinserts a persisted edge without synthesizing a
// reverse; the reverse edge has its own row.
func (g *Graph) RestoreConnection(c *models.Connection) {
	g.upsertEdge(c)
}

// ApplyUpdate merges a room observation into the graph. When the player
// moved here from another room via a directional command, a
// bidirectional connection is recorded. Returns the update with RoomKey
// and NewRoom filled in.
func (g *Graph) ApplyUpdate(u models.RoomUpdate, lastCommand string, turn int) models.RoomUpdate {
	if !u.RoomChanged || u.RoomName == "" {
		return u
	}

	key := models.NormalizeKey(u.RoomName)
	u.RoomKey = key
	room, ok := g.rooms[key]
	if !ok {
		u.NewRoom = true
		room = &models.Room{
			Key:              key,
			Name:             u.RoomName,
			Description:      u.Description,
			Visited:          true,
			VisitCount:       1,
			Dark:             u.Dark,
			FirstVisitedTurn: turn,
			LastVisitedTurn:  turn,
			Exits:            make(map[string]string),
		}
		for _, dir := range u.Exits {
			room.Exits[dir] = ""
		}
		g.rooms[key] = room
		g.logger.Debug("room added", "room", key, "name", u.RoomName)
	} else {
		room.Visited = true
		room.VisitCount++
		room.LastVisitedTurn = turn
		room.Dark = u.Dark
		if u.Description != "" {
			room.Description = u.Description
		}
		for _, dir := range u.Exits {
			if _, seen := room.Exits[dir]; !seen {
				room.Exits[dir] = ""
			}
		}
	}

	if g.current != "" && g.current != key {
		if dir := ExtractDirection(lastCommand); dir != "" {
			g.AddConnection(g.current, key, dir, models.Connection{Bidirectional: true})
		}
	}
	g.current = key

	if u.Description != "" {
		g.recentDescs = append(g.recentDescs, descEntry{roomKey: key, desc: u.Description})
		if len(g.recentDescs) > descWindow {
			g.recentDescs = g.recentDescs[len(g.recentDescs)-descWindow:]
		}
	}
	return u
}

// AddConnection records a directed edge and, for bidirectional edges,
// the paired reverse edge. Re-adding an existing (from, to) edge with a
// different direction updates the direction instead of duplicating.
// The from room's exits map is pointed at the destination.
func (g *Graph) AddConnection(from, to, direction string, opts models.Connection) {
	g.upsertEdge(&models.Connection{
		From:          from,
		To:            to,
		Direction:     direction,
		Bidirectional: opts.Bidirectional,
		Blocked:       opts.Blocked,
		BlockReason:   opts.BlockReason,
		Teleport:      opts.Teleport,
		Random:        opts.Random,
		ObservedDests: opts.ObservedDests,
	})
	if opts.Bidirectional {
		g.upsertEdge(&models.Connection{
			From:          to,
			To:            from,
			Direction:     ReverseDirection(direction),
			Bidirectional: true,
			Blocked:       opts.Blocked,
			BlockReason:   opts.BlockReason,
		})
	}
}

func (g *Graph) upsertEdge(conn *models.Connection) {
	for _, existing := range g.edges[conn.From] {
		if existing.To == conn.To {
			if existing.Direction != conn.Direction {
				if room := g.rooms[existing.From]; room != nil {
					delete(room.Exits, existing.Direction)
				}
				existing.Direction = conn.Direction
			}
			g.setExit(conn.From, conn.Direction, conn.To)
			return
		}
	}
	g.edges[conn.From] = append(g.edges[conn.From], conn)
	g.setExit(conn.From, conn.Direction, conn.To)
	g.logger.Debug("connection added", "from", conn.From, "direction", conn.Direction, "to", conn.To)
}

func (g *Graph) setExit(from, direction, to string) {
	room, ok := g.rooms[from]
	if !ok {
		return
	}
	if room.Exits == nil {
		room.Exits = make(map[string]string)
	}
	room.Exits[direction] = to
}

// sortedEdges returns a room's outgoing edges ordered by direction, so
// traversals break shortest-path ties deterministically.
func (g *Graph) sortedEdges(from string) []*models.Connection {
	out := make([]*models.Connection, len(g.edges[from]))
	copy(out, g.edges[from])
	sort.Slice(out, func(i, j int) bool { return out[i].Direction < out[j].Direction })
	return out
}

// Path returns the shortest sequence of direction commands from one
// room to another, skipping blocked edges. Unit edge weights; ties
// break lexicographically by direction. Empty when either room is
// unknown or unreachable.
func (g *Graph) Path(from, to string) []string {
	if _, ok := g.rooms[from]; !ok {
		return nil
	}
	if _, ok := g.rooms[to]; !ok {
		return nil
	}
	if from == to {
		return nil
	}

	type hop struct {
		prev      string
		direction string
	}
	parents := map[string]hop{from: {}}
	queue := []string{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == to {
			break
		}
		for _, edge := range g.sortedEdges(cur) {
			if edge.Blocked {
				continue
			}
			if _, seen := parents[edge.To]; seen {
				continue
			}
			parents[edge.To] = hop{prev: cur, direction: edge.Direction}
			queue = append(queue, edge.To)
		}
	}

	if _, ok := parents[to]; !ok {
		return nil
	}
	var path []string
	for cur := to; cur != from; cur = parents[cur].prev {
		path = append(path, parents[cur].direction)
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// NextStep returns the first move toward a destination, or "" when no
// path exists or from == to.
func (g *Graph) NextStep(from, to string) string {
	path := g.Path(from, to)
	if len(path) == 0 {
		return ""
	}
	return path[0]
}

// UnexploredExit is an exit acknowledged by the game but never
// traversed.
type UnexploredExit struct {
	RoomKey   string
	Direction string
}

// UnexploredExits lists untraversed exits for one room, or for every
// room when key is "".
func (g *Graph) UnexploredExits(key string) []UnexploredExit {
	var keys []string
	if key != "" {
		if _, ok := g.rooms[key]; !ok {
			return nil
		}
		keys = []string{key}
	} else {
		for k := range g.rooms {
			keys = append(keys, k)
		}
		sort.Strings(keys)
	}

	var out []UnexploredExit
	for _, k := range keys {
		room := g.rooms[k]
		dirs := make([]string, 0, len(room.Exits))
		for dir, dest := range room.Exits {
			if dest == "" {
				dirs = append(dirs, dir)
			}
		}
		sort.Strings(dirs)
		for _, dir := range dirs {
			out = append(out, UnexploredExit{RoomKey: k, Direction: dir})
		}
	}
	return out
}

// NearestUnexplored finds the closest room (BFS over unblocked edges,
// including from itself) that still has an unexplored exit, along with
// the directions to reach it. ok is false when none is reachable.
func (g *Graph) NearestUnexplored(from string) (roomKey string, path []string, ok bool) {
	if _, exists := g.rooms[from]; !exists {
		return "", nil, false
	}
	type entry struct {
		key  string
		path []string
	}
	visited := map[string]bool{from: true}
	queue := []entry{{key: from}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if len(g.UnexploredExits(cur.key)) > 0 {
			return cur.key, cur.path, true
		}
		for _, edge := range g.sortedEdges(cur.key) {
			if edge.Blocked || visited[edge.To] {
				continue
			}
			visited[edge.To] = true
			next := make([]string, len(cur.path), len(cur.path)+1)
			copy(next, cur.path)
			queue = append(queue, entry{key: edge.To, path: append(next, edge.Direction)})
		}
	}
	return "", nil, false
}

// MarkBlocked flags the outgoing edge matching (from, direction).
func (g *Graph) MarkBlocked(from, direction, reason string) {
	for _, edge := range g.edges[from] {
		if edge.Direction == direction {
			edge.Blocked = true
			edge.BlockReason = reason
			g.logger.Info("path blocked", "from", from, "direction", direction, "reason", reason)
			return
		}
	}
}

// Unblock clears the blocked flag on the edge matching (from, direction).
func (g *Graph) Unblock(from, direction string) {
	for _, edge := range g.edges[from] {
		if edge.Direction == direction {
			edge.Blocked = false
			edge.BlockReason = ""
			g.logger.Info("path unblocked", "from", from, "direction", direction)
			return
		}
	}
}

// Summary is a cheap read-only aggregate of exploration progress.
type Summary struct {
	RoomsVisited    int
	RoomsTotal      int
	UnexploredExits int
	CurrentRoom     string
}

func (g *Graph) Summary() Summary {
	visited := 0
	for _, room := range g.rooms {
		if room.Visited {
			visited++
		}
	}
	current := g.current
	if current == "" {
		current = models.LocationUnknown
	}
	return Summary{
		RoomsVisited:    visited,
		RoomsTotal:      len(g.rooms),
		UnexploredExits: len(g.UnexploredExits("")),
		CurrentRoom:     current,
	}
}
