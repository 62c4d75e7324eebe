package orchestrator

// EventType names a lifecycle moment observers can subscribe to.
type EventType string

const (
	EventGameStart     EventType = "game_start"
	EventTurnStart     EventType = "turn_start"
	EventTurnEnd       EventType = "turn_end"
	EventRoomEnter     EventType = "room_enter"
	EventItemFound     EventType = "item_found"
	EventItemTaken     EventType = "item_taken"
	EventPuzzleFound   EventType = "puzzle_found"
	EventPuzzleSolved  EventType = "puzzle_solved"
	EventMazeDetected  EventType = "maze_detected"
	EventMazeRoomMark  EventType = "maze_room_marked"
	EventMazeCompleted EventType = "maze_completed"
	EventGameEnd       EventType = "game_end"
)

// Event is one observation pushed to hooks. Fields beyond Type and
// Turn are populated per event type.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	Turn      int       `json:"turn,omitempty"`
	Room      string    `json:"room,omitempty"`
	Item      string    `json:"item,omitempty"`
	Command   string    `json:"command,omitempty"`
	Output    string    `json:"output,omitempty"`
	PuzzleID  int64     `json:"puzzle_id,omitempty"`
	NewRoom   bool      `json:"new_room,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Hook receives events as the session progresses. Implementations must
// not block; slow consumers should buffer internally.
type Hook interface {
	OnEvent(Event)
}

// emit fans an event out to every hook. A panicking hook is logged and
// skipped; observers never take the session down.
func (o *Orchestrator) emit(evt Event) {
	if o.session != nil {
		evt.SessionID = o.session.ID
	}
	for _, h := range o.hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					o.logger.Error("hook panicked", "event", string(evt.Type), "panic", r)
				}
			}()
			h.OnEvent(evt)
		}()
	}
}
