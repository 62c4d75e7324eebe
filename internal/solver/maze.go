// Package solver holds the algorithmic (non-model) turn logic: the
// marker-based maze mapper and the stuck-behavior detector.
package solver

import (
	"log/slog"
	"sort"

	"github.com/zyedidia/generic/mapset"

	"github.com/tatianab/autoplay/internal/items"
	"github.com/tatianab/autoplay/internal/models"
	"github.com/tatianab/autoplay/internal/worldmap"
)

// frame is one DFS level: a room and the exit directions still to try
// from it.
type frame struct {
	roomKey string
	exits   []string
}

// Step is the outcome of one solver turn: the command to send, plus
// any side effects the orchestrator should announce.
type Step struct {
	Command    string
	Reasoning  string
	MarkedRoom string // set when a marker item was dropped this step
	MarkerItem string
	Completed  bool // set when the maze group finished mapping this step
}

// MazeSolver maps a maze by dropping one inventory item per room and
// walking exits depth-first. Descriptions inside a maze are near
// identical, so dropped items are the only reliable room fingerprint.
// Runs entirely on graph and registry state; no model calls.
type MazeSolver struct {
	graph    *worldmap.Graph
	registry *items.Registry

	phase     models.MazePhase
	group     *models.MazeGroup
	stack     []*frame
	visited   mapset.Set[string]
	framed    mapset.Set[string]
	protected []string // item keys to sacrifice last (quest-relevant)

	logger *slog.Logger
}

func NewMazeSolver(graph *worldmap.Graph, registry *items.Registry, logger *slog.Logger) *MazeSolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &MazeSolver{
		graph:    graph,
		registry: registry,
		phase:    models.MazeIdle,
		visited:  mapset.New[string](),
		framed:   mapset.New[string](),
		logger:   logger,
	}
}

// Phase returns the solver's current mode.
func (s *MazeSolver) Phase() models.MazePhase { return s.phase }

// Group returns the maze group being solved, or nil. Still set during
// marker retrieval, after the graph has marked the group complete.
func (s *MazeSolver) Group() *models.MazeGroup { return s.group }

// Active reports whether the solver still wants to drive turns. It
// stays active through marker retrieval, after the graph has already
// left maze mode.
func (s *MazeSolver) Active() bool { return s.phase != models.MazeIdle }

// Reset arms the solver for a freshly detected maze group.
func (s *MazeSolver) Reset(group *models.MazeGroup) {
	s.phase = models.MazeExploring
	s.group = group
	s.stack = nil
	s.visited = mapset.New[string]()
	s.framed = mapset.New[string]()
	s.logger.Info("maze solver armed", "group", group.Key)
}

// SetProtectedItems names items that should be spent as markers only
// when nothing else is left, typically items tied to open puzzles.
func (s *MazeSolver) SetProtectedItems(keys []string) {
	s.protected = keys
}

// NextStep picks the next command of the DFS-with-markers protocol.
func (s *MazeSolver) NextStep(currentRoom string, turn int) Step {
	switch s.phase {
	case models.MazeExploring:
		return s.explore(currentRoom, turn)
	case models.MazeRetrieving:
		return s.retrieve(currentRoom)
	default:
		return Step{Command: "look", Reasoning: "maze solver idle"}
	}
}

func (s *MazeSolver) explore(currentRoom string, turn int) Step {
	room := s.graph.Room(currentRoom)

	// First visit: make the room re-identifiable before walking its
	// exits. The drop consumes the whole turn.
	if !s.visited.Has(currentRoom) {
		s.visited.Put(currentRoom)
		s.graph.AddMazeRoom(currentRoom)

		if room != nil && room.MazeMarkerItem == "" {
			// Droppable already excludes spent markers; the head of the
			// list is always the cheapest item still carried.
			droppable := s.registry.Droppable(s.protected)
			if len(droppable) > 0 {
				marker := droppable[0]
				s.graph.AssignMazeMarker(currentRoom, marker.Key)
				s.registry.Drop(marker.Key, currentRoom)
				return Step{
					Command:    "drop " + marker.Name,
					Reasoning:  "maze: marking room " + currentRoom + " with " + marker.Key,
					MarkedRoom: currentRoom,
					MarkerItem: marker.Key,
				}
			}
			s.logger.Warn("no droppable items left for maze markers", "room", currentRoom)
		}
	}

	// Marker is down (or unavailable): queue this room's untried exits.
	if !s.framed.Has(currentRoom) {
		s.framed.Put(currentRoom)
		var exits []string
		for _, ue := range s.graph.UnexploredExits(currentRoom) {
			exits = append(exits, ue.Direction)
		}
		if len(exits) > 0 {
			s.stack = append(s.stack, &frame{roomKey: currentRoom, exits: exits})
		}
	}

	// Walk the DFS stack, discarding exhausted frames.
	for len(s.stack) > 0 {
		top := s.stack[len(s.stack)-1]
		if len(top.exits) == 0 {
			s.stack = s.stack[:len(s.stack)-1]
			continue
		}
		direction := top.exits[0]
		top.exits = top.exits[1:]
		if len(top.exits) == 0 {
			s.stack = s.stack[:len(s.stack)-1]
		}
		return Step{Command: direction, Reasoning: "maze: exploring exit " + direction}
	}

	// Stack exhausted. If every member room is fully explored the map
	// is done; switch to collecting the markers back.
	allExplored := true
	for _, roomKey := range s.group.Rooms {
		if len(s.graph.UnexploredExits(roomKey)) > 0 {
			allExplored = false
			break
		}
	}
	if allExplored {
		s.phase = models.MazeRetrieving
		s.graph.CompleteMaze(s.group.Key, turn)
		return Step{Command: "look", Reasoning: "maze: fully mapped, retrieving markers", Completed: true}
	}

	if _, path, ok := s.graph.NearestUnexplored(currentRoom); ok && len(path) > 0 {
		return Step{Command: path[0], Reasoning: "maze: moving toward unexplored exit"}
	}
	return Step{Command: "look", Reasoning: "maze: no reachable unexplored exits"}
}

func (s *MazeSolver) retrieve(currentRoom string) Step {
	// A marker lying here gets picked up first.
	for _, item := range s.registry.InRoom(currentRoom) {
		if s.isMarker(item.Key) {
			s.registry.Take(item.Key)
			return Step{Command: "take " + item.Name, Reasoning: "maze: retrieving marker " + item.Key}
		}
	}

	// Head for the nearest room whose marker is still on the floor.
	roomKeys := make([]string, 0, len(s.group.Markers))
	for roomKey := range s.group.Markers {
		roomKeys = append(roomKeys, roomKey)
	}
	sort.Strings(roomKeys)

	bestLen := -1
	var bestStep string
	for _, roomKey := range roomKeys {
		item := s.registry.Item(s.group.Markers[roomKey])
		if item == nil || item.Location != roomKey {
			continue
		}
		path := s.graph.Path(currentRoom, roomKey)
		if len(path) == 0 {
			continue
		}
		if bestLen == -1 || len(path) < bestLen {
			bestLen = len(path)
			bestStep = path[0]
		}
	}
	if bestStep != "" {
		return Step{Command: bestStep, Reasoning: "maze: walking to next marker"}
	}

	s.phase = models.MazeIdle
	s.logger.Info("maze markers retrieved", "group", s.group.Key)
	return Step{Command: "look", Reasoning: "maze: all markers retrieved"}
}

func (s *MazeSolver) isMarker(itemKey string) bool {
	for _, marker := range s.group.Markers {
		if marker == itemKey {
			return true
		}
	}
	return false
}
