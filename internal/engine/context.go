package engine

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/tatianab/autoplay/internal/models"
)

var actionMarker = regexp.MustCompile(`(?im)^\s*ACTION:\s*(.+?)\s*$`)

// ParseDecision extracts the command and rationale from a decision
// reply. The command follows an ACTION: marker; without one the last
// non-empty line is the command and everything before it the
// rationale. An empty reply falls back to "look".
func ParseDecision(text string) Decision {
	if m := actionMarker.FindStringSubmatchIndex(text); m != nil {
		command := strings.TrimSpace(text[m[2]:m[3]])
		reasoning := strings.TrimSpace(text[:m[0]])
		return Decision{Command: cleanCommand(command), Reasoning: reasoning}
	}

	lines := strings.Split(strings.TrimSpace(text), "\n")
	var nonEmpty []string
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			nonEmpty = append(nonEmpty, strings.TrimSpace(l))
		}
	}
	if len(nonEmpty) == 0 {
		return Decision{Command: "look", Reasoning: "empty response from model"}
	}
	return Decision{
		Command:   cleanCommand(nonEmpty[len(nonEmpty)-1]),
		Reasoning: strings.Join(nonEmpty[:len(nonEmpty)-1], "\n"),
	}
}

func cleanCommand(command string) string {
	return strings.Trim(strings.TrimSpace(command), `"'`)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func itemNames(items []*models.Item) string {
	if len(items) == 0 {
		return "none"
	}
	names := make([]string, len(items))
	for i, item := range items {
		names[i] = item.Name
	}
	return strings.Join(names, ", ")
}

func formatActions(actions []ActionPair, limit int) string {
	if len(actions) > limit {
		actions = actions[len(actions)-limit:]
	}
	var b strings.Builder
	for _, a := range actions {
		fmt.Fprintf(&b, "> %s\n  %s\n", a.Command, truncate(a.Output, 100))
	}
	return b.String()
}

func formatPuzzles(puzzles []*models.Puzzle) string {
	if len(puzzles) == 0 {
		return "none"
	}
	var b strings.Builder
	for _, p := range puzzles {
		fmt.Fprintf(&b, "- [ID:%d] [%s] %s (at %s)", p.ID, p.Status, p.Description, p.Location)
		if len(p.Attempts) > 0 {
			b.WriteString(fmt.Sprintf(" [%d attempts]", len(p.Attempts)))
		}
		if len(p.RelatedItems) > 0 {
			b.WriteString(" related: " + strings.Join(p.RelatedItems, ", "))
		}
		b.WriteByte('\n')
	}
	return b.String()
}

func formatRoom(room *models.Room) string {
	if room == nil {
		return "unknown"
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\n", room.Name)
	if room.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", room.Description)
	}
	if len(room.Exits) > 0 {
		dirs := make([]string, 0, len(room.Exits))
		for dir := range room.Exits {
			dirs = append(dirs, dir)
		}
		sort.Strings(dirs)
		pairs := make([]string, len(dirs))
		for i, dir := range dirs {
			dest := room.Exits[dir]
			if dest == "" {
				dest = "???"
			}
			pairs[i] = dir + " -> " + dest
		}
		fmt.Fprintf(&b, "Exits: %s\n", strings.Join(pairs, ", "))
	}
	if room.Dark {
		b.WriteString("WARNING: this room is dark\n")
	}
	fmt.Fprintf(&b, "Visits: %d", room.VisitCount)
	return b.String()
}

type decisionData struct {
	SpecialInstructions string
	GameOutput          string
	Room                string
	Inventory           string
	RoomItems           string
	MapSummary          string
	OpenPuzzles         string
	Suggestions         string
	RecentActions       string
	NavigationHints     string
	NearestUnexplored   string
}

func decisionPromptData(dc DecisionContext) decisionData {
	var suggestions strings.Builder
	for _, s := range dc.Suggestions {
		fmt.Fprintf(&suggestions, "- [%s] %s: %s", strings.ToUpper(string(s.Confidence)), s.Description, s.ProposedAction)
		if len(s.ItemsToUse) > 0 {
			suggestions.WriteString(" (items: " + strings.Join(s.ItemsToUse, ", ") + ")")
		}
		suggestions.WriteByte('\n')
	}

	var hints strings.Builder
	locations := make([]string, 0, len(dc.NavigationHints))
	for loc := range dc.NavigationHints {
		locations = append(locations, loc)
	}
	sort.Strings(locations)
	for _, loc := range locations {
		fmt.Fprintf(&hints, "- to %s: %s\n", loc, strings.Join(dc.NavigationHints[loc], ", "))
	}

	nearest := "none known"
	if len(dc.NearestUnexplored) > 0 {
		nearest = strings.Join(dc.NearestUnexplored, ", ")
	} else if dc.NearestUnexplored != nil {
		nearest = "here"
	}

	return decisionData{
		SpecialInstructions: dc.SpecialInstructions,
		GameOutput:          dc.GameOutput,
		Room:                formatRoom(dc.Room),
		Inventory:           itemNames(dc.Inventory),
		RoomItems:           itemNames(dc.RoomItems),
		MapSummary: fmt.Sprintf("rooms visited %d/%d, unexplored exits %d",
			dc.MapSummary.RoomsVisited, dc.MapSummary.RoomsTotal, dc.MapSummary.UnexploredExits),
		OpenPuzzles:       formatPuzzles(dc.OpenPuzzles),
		Suggestions:       suggestions.String(),
		RecentActions:     formatActions(dc.RecentActions, 10),
		NavigationHints:   hints.String(),
		NearestUnexplored: nearest,
	}
}

type puzzleData struct {
	GameOutput    string
	Room          string
	Inventory     string
	KnownItems    string
	OpenPuzzles   string
	MapSummary    string
	RecentActions string
}

func puzzlePromptData(pc PuzzleContext) puzzleData {
	var known strings.Builder
	count := 0
	for _, item := range pc.AllItems {
		if item.Location == models.LocationInventory {
			continue
		}
		if count >= 30 { // cap to avoid token bloat
			break
		}
		fmt.Fprintf(&known, "- %s (%s) at %s\n", item.Name, item.Key, item.Location)
		count++
	}

	return puzzleData{
		GameOutput:  pc.GameOutput,
		Room:        formatRoom(pc.Room),
		Inventory:   itemNames(pc.Inventory),
		KnownItems:  known.String(),
		OpenPuzzles: formatPuzzles(pc.OpenPuzzles),
		MapSummary: fmt.Sprintf("rooms visited %d/%d, unexplored exits %d",
			pc.MapSummary.RoomsVisited, pc.MapSummary.RoomsTotal, pc.MapSummary.UnexploredExits),
		RecentActions: formatActions(pc.RecentActions, 8),
	}
}
