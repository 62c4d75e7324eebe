package worldmap

import (
	"fmt"
	"strings"

	"github.com/tatianab/autoplay/internal/models"
)

// normalizeDescription prepares a room description for similarity
// comparison: lowercased, punctuation stripped, whitespace collapsed.
func normalizeDescription(desc string) string {
	var b strings.Builder
	b.Grow(len(desc))
	for _, r := range strings.ToLower(desc) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == ' ':
			b.WriteRune(r)
		case r == '\n', r == '\t':
			b.WriteByte(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// MazeActive reports whether a maze group is currently being solved.
func (g *Graph) MazeActive() bool { return g.mazeActive }

// ActiveMaze returns the maze group being solved, or nil.
func (g *Graph) ActiveMaze() *models.MazeGroup { return g.activeMaze }

// MazeGroups returns all detected maze groups keyed by group key.
func (g *Graph) MazeGroups() map[string]*models.MazeGroup { return g.mazeGroups }

// CheckMazeCondition compares a room's description against the recent
// description window. When at least two other rooms read as near
// duplicates (similarity >= 0.95), the region is treated as a maze: a
// group is allocated with the last non-similar room as its entry, and
// maze mode activates. Returns true only when a maze was newly
// activated this call.
func (g *Graph) CheckMazeCondition(roomKey, description string, turn int) bool {
	if g.mazeActive {
		return false
	}

	normalized := normalizeDescription(description)
	var similar []string
	seen := map[string]bool{}
	for _, entry := range g.recentDescs {
		if entry.roomKey == roomKey || seen[entry.roomKey] {
			continue
		}
		if similarity(normalized, normalizeDescription(entry.desc)) >= similarityThreshold {
			similar = append(similar, entry.roomKey)
			seen[entry.roomKey] = true
		}
	}
	if len(similar) < 2 {
		return false
	}

	// Entry room: the most recent room in the window whose description
	// does not match the maze texture.
	entryRoom := models.LocationUnknown
	for i := len(g.recentDescs) - 1; i >= 0; i-- {
		entry := g.recentDescs[i]
		if similarity(normalized, normalizeDescription(entry.desc)) < similarityThreshold {
			entryRoom = entry.roomKey
			break
		}
	}

	groupKey := fmt.Sprintf("maze_%d", len(g.mazeGroups)+1)
	group := &models.MazeGroup{
		Key:         groupKey,
		EntryRoom:   entryRoom,
		Rooms:       append(similar, roomKey),
		Markers:     make(map[string]string),
		CreatedTurn: turn,
	}
	g.mazeGroups[groupKey] = group
	g.activeMaze = group
	g.mazeActive = true

	for _, rk := range group.Rooms {
		if room := g.rooms[rk]; room != nil {
			room.MazeGroup = groupKey
		}
	}

	g.logger.Warn("maze condition detected",
		"group", groupKey, "rooms", len(group.Rooms), "entry", entryRoom)
	return true
}

// AddMazeRoom attaches a later-discovered room to the active maze group.
func (g *Graph) AddMazeRoom(roomKey string) {
	if g.activeMaze == nil {
		return
	}
	for _, rk := range g.activeMaze.Rooms {
		if rk == roomKey {
			return
		}
	}
	g.activeMaze.Rooms = append(g.activeMaze.Rooms, roomKey)
	if room := g.rooms[roomKey]; room != nil {
		room.MazeGroup = g.activeMaze.Key
	}
}

// AssignMazeMarker records which item was dropped in a maze room.
func (g *Graph) AssignMazeMarker(roomKey, itemKey string) {
	if g.activeMaze == nil {
		g.logger.Warn("cannot assign marker: no active maze", "room", roomKey)
		return
	}
	g.activeMaze.Markers[roomKey] = itemKey
	if room := g.rooms[roomKey]; room != nil {
		room.MazeMarkerItem = itemKey
	}
	g.logger.Debug("maze marker assigned", "room", roomKey, "item", itemKey)
}

// IdentifyMazeRoomByMarker returns the maze room holding a marker item,
// or "".
func (g *Graph) IdentifyMazeRoomByMarker(itemKey string) string {
	if g.activeMaze == nil {
		return ""
	}
	for roomKey, marker := range g.activeMaze.Markers {
		if marker == itemKey {
			return roomKey
		}
	}
	return ""
}

// CompleteMaze marks a group fully mapped and, when it is the active
// group, leaves maze mode.
func (g *Graph) CompleteMaze(groupKey string, turn int) {
	group, ok := g.mazeGroups[groupKey]
	if !ok {
		g.logger.Warn("cannot complete unknown maze", "group", groupKey)
		return
	}
	group.FullyMapped = true
	group.CompletedTurn = turn
	if g.activeMaze != nil && g.activeMaze.Key == groupKey {
		g.mazeActive = false
		g.activeMaze = nil
	}
	g.logger.Info("maze complete", "group", groupKey)
}

// RestoreMazeGroup reinstates a persisted maze group, reactivating maze
// mode when the group was never finished. Used on crash-resume.
func (g *Graph) RestoreMazeGroup(group *models.MazeGroup) {
	if group.Markers == nil {
		group.Markers = make(map[string]string)
	}
	g.mazeGroups[group.Key] = group
	if !group.FullyMapped {
		g.activeMaze = group
		g.mazeActive = true
	}
	for _, rk := range group.Rooms {
		if room := g.rooms[rk]; room != nil {
			room.MazeGroup = group.Key
		}
	}
}
