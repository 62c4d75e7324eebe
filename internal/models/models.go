package models

import "time"

// SessionStatus is the lifecycle state of a game session.
type SessionStatus string

const (
	StatusPlaying   SessionStatus = "playing"
	StatusWon       SessionStatus = "won"
	StatusLost      SessionStatus = "lost"
	StatusAbandoned SessionStatus = "abandoned"
)

// Terminal classifies game output as a terminal condition.
type Terminal string

const (
	TerminalNone    Terminal = ""
	TerminalDeath   Terminal = "death"
	TerminalVictory Terminal = "victory"
)

// ChangeKind tags an item update parsed from game output.
type ChangeKind string

const (
	ChangeNew         ChangeKind = "new"
	ChangeTaken       ChangeKind = "taken"
	ChangeDropped     ChangeKind = "dropped"
	ChangeStateChange ChangeKind = "state_change"
	ChangeMoved       ChangeKind = "moved"
	ChangeGone        ChangeKind = "gone"
)

// PuzzleStatus tracks puzzle progress. Solved is terminal.
type PuzzleStatus string

const (
	PuzzleOpen       PuzzleStatus = "open"
	PuzzleInProgress PuzzleStatus = "in_progress"
	PuzzleSolved     PuzzleStatus = "solved"
)

// Confidence grades a puzzle suggestion.
type Confidence string

const (
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// MazePhase is the maze solver's current mode.
type MazePhase string

const (
	MazeIdle       MazePhase = "idle"
	MazeExploring  MazePhase = "exploring"
	MazeRetrieving MazePhase = "retrieving"
)

// Portability is a tri-state: unknown until a take or an explicit
// signal resolves it.
type Portability string

const (
	PortableUnknown Portability = "unknown"
	PortableYes     Portability = "yes"
	PortableNo      Portability = "no"
)

// Item locations that are not room keys.
const (
	LocationInventory = "inventory"
	LocationUnknown   = "unknown"
)

// Room is a location in the game world, keyed by its normalized name.
// Exits map direction to a destination room key, or "" when the exit
// has been seen but never traversed.
type Room struct {
	Key              string            `yaml:"key"`
	Name             string            `yaml:"name"`
	Description      string            `yaml:"description"`
	Visited          bool              `yaml:"visited"`
	VisitCount       int               `yaml:"visit_count"`
	Dark             bool              `yaml:"dark"`
	MazeGroup        string            `yaml:"maze_group,omitempty"`
	MazeMarkerItem   string            `yaml:"maze_marker_item,omitempty"`
	FirstVisitedTurn int               `yaml:"first_visited_turn"`
	LastVisitedTurn  int               `yaml:"last_visited_turn"`
	Exits            map[string]string `yaml:"exits"`
}

// Connection is a directed edge between two rooms.
type Connection struct {
	From          string   `yaml:"from"`
	To            string   `yaml:"to"`
	Direction     string   `yaml:"direction"`
	Bidirectional bool     `yaml:"bidirectional"`
	Blocked       bool     `yaml:"blocked"`
	BlockReason   string   `yaml:"block_reason,omitempty"`
	Teleport      bool     `yaml:"teleport"`
	Random        bool     `yaml:"random"`
	ObservedDests []string `yaml:"observed_destinations,omitempty"`
}

// MazeGroup is a cluster of near-indistinguishable rooms being mapped
// with dropped-item markers. Markers maps room key -> marker item key.
type MazeGroup struct {
	Key           string            `yaml:"key"`
	EntryRoom     string            `yaml:"entry_room"`
	Rooms         []string          `yaml:"rooms"`
	ExitRooms     []string          `yaml:"exit_rooms"`
	Markers       map[string]string `yaml:"markers"`
	FullyMapped   bool              `yaml:"fully_mapped"`
	CreatedTurn   int               `yaml:"created_turn"`
	CompletedTurn int               `yaml:"completed_turn,omitempty"`
}

// Item is an object in the game world.
type Item struct {
	Key           string            `yaml:"key"`
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description,omitempty"`
	Location      string            `yaml:"location"`
	Portable      Portability       `yaml:"portable"`
	Properties    map[string]string `yaml:"properties"`
	FirstSeenTurn int               `yaml:"first_seen_turn"`
	LastSeenTurn  int               `yaml:"last_seen_turn"`
}

// PuzzleAttempt records one failed try at a puzzle.
type PuzzleAttempt struct {
	Action string `yaml:"action"`
	Result string `yaml:"result"`
}

// Puzzle is an obstacle detected in game output. ID is zero until the
// puzzle has been saved once.
type Puzzle struct {
	ID           int64           `yaml:"id,omitempty"`
	Description  string          `yaml:"description"`
	Status       PuzzleStatus    `yaml:"status"`
	Location     string          `yaml:"location"`
	RelatedItems []string        `yaml:"related_items,omitempty"`
	Attempts     []PuzzleAttempt `yaml:"attempts,omitempty"`
	CreatedTurn  int             `yaml:"created_turn"`
	SolvedTurn   int             `yaml:"solved_turn,omitempty"`
}

// TurnRecord is the append-only audit entry for one turn.
type TurnRecord struct {
	SessionID string    `yaml:"session_id"`
	Turn      int       `yaml:"turn"`
	Timestamp time.Time `yaml:"timestamp"`
	Command   string    `yaml:"command"`
	Output    string    `yaml:"output"`
	RoomKey   string    `yaml:"room_key"`
	Inventory []string  `yaml:"inventory"`
	Reasoning string    `yaml:"reasoning"`
}

// Session is the metadata for one play-through of a game file.
type Session struct {
	ID         string        `yaml:"id"`
	GameFile   string        `yaml:"game_file"`
	StartedAt  time.Time     `yaml:"started_at"`
	EndedAt    time.Time     `yaml:"ended_at,omitempty"`
	Status     SessionStatus `yaml:"status"`
	TotalTurns int           `yaml:"total_turns"`
}

// RoomUpdate is the structured room observation extracted from one
// chunk of game output.
type RoomUpdate struct {
	RoomChanged bool     `yaml:"room_changed"`
	RoomKey     string   `yaml:"-"`
	RoomName    string   `yaml:"room_name"`
	Description string   `yaml:"description"`
	Exits       []string `yaml:"exits"`
	Dark        bool     `yaml:"dark"`
	NewRoom     bool     `yaml:"-"`
	ItemsSeen   []string `yaml:"items_seen"`
}

// ItemUpdate is one structured item change extracted from game output.
type ItemUpdate struct {
	Key        string            `yaml:"item"`
	Name       string            `yaml:"name"`
	Kind       ChangeKind        `yaml:"change"`
	Location   string            `yaml:"location,omitempty"`
	Properties map[string]string `yaml:"properties,omitempty"`
}

// PuzzleSuggestion is advice from the puzzle evaluator for the decision
// step.
type PuzzleSuggestion struct {
	PuzzleID       int64      `yaml:"puzzle_id"`
	Description    string     `yaml:"description"`
	ProposedAction string     `yaml:"proposed_action"`
	ItemsToUse     []string   `yaml:"items_to_use,omitempty"`
	Confidence     Confidence `yaml:"confidence"`
}

// Usage captures token accounting for one model call.
type Usage struct {
	SessionID    string  `yaml:"session_id"`
	Turn         int     `yaml:"turn"`
	Agent        string  `yaml:"agent"`
	Model        string  `yaml:"model"`
	InputTokens  int     `yaml:"input_tokens"`
	OutputTokens int     `yaml:"output_tokens"`
	CachedTokens int     `yaml:"cached_tokens"`
	LatencyMS    float64 `yaml:"latency_ms"`
}
