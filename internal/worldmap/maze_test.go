package worldmap

import (
	"fmt"
	"testing"

	"github.com/tatianab/autoplay/internal/models"
)

func TestSimilarity(t *testing.T) {
	if got := similarity("abc", "abc"); got != 1.0 {
		t.Errorf("identical strings = %f", got)
	}
	if got := similarity("abc", "xyz"); got != 0.0 {
		t.Errorf("disjoint strings = %f", got)
	}
	if got := similarity("", ""); got != 1.0 {
		t.Errorf("empty strings = %f", got)
	}
	a := "you are in a maze of twisty little passages all alike"
	b := "you are in a maze of twisty little passages all alike "
	if got := similarity(normalizeDescription(a), normalizeDescription(b)); got < 0.95 {
		t.Errorf("near-identical descriptions = %f", got)
	}
	c := "a sunlit garden with a marble fountain"
	if got := similarity(normalizeDescription(a), normalizeDescription(c)); got >= 0.95 {
		t.Errorf("distinct descriptions = %f", got)
	}
}

const mazeDesc = "You are in a maze of twisty little passages, all alike."

func TestCheckMazeCondition(t *testing.T) {
	g := New(nil)
	visit(g, "Clearing", "A forest clearing with a narrow cave mouth.", "", 1, "north")

	// Two near-identical rooms are not yet a maze.
	visit(g, "Twisty Passage", mazeDesc, "north", 2)
	if g.CheckMazeCondition("twisty_passage", mazeDesc, 2) {
		t.Fatal("maze declared with one similar room")
	}
	visit(g, "Twisty Passage North", mazeDesc, "north", 3)
	if g.CheckMazeCondition("twisty_passage_north", mazeDesc, 3) {
		t.Fatal("maze declared with only two similar rooms")
	}

	// The third near-identical room tips the detector.
	visit(g, "Twisty Passage East", mazeDesc, "east", 4)
	if !g.CheckMazeCondition("twisty_passage_east", mazeDesc, 4) {
		t.Fatal("maze not declared with three similar rooms")
	}
	if !g.MazeActive() {
		t.Fatal("maze mode not active after detection")
	}

	group := g.ActiveMaze()
	if group == nil {
		t.Fatal("no active maze group")
	}
	if group.Key != "maze_1" {
		t.Errorf("group key = %q", group.Key)
	}
	if group.EntryRoom != "clearing" {
		t.Errorf("entry room = %q", group.EntryRoom)
	}
	if len(group.Rooms) != 3 {
		t.Errorf("group rooms = %v", group.Rooms)
	}
	for _, rk := range group.Rooms {
		if room := g.Room(rk); room == nil || room.MazeGroup != "maze_1" {
			t.Errorf("room %q not tagged with maze group", rk)
		}
	}

	// Detection fires once: the active maze suppresses re-detection.
	if g.CheckMazeCondition("twisty_passage_east", mazeDesc, 5) {
		t.Error("maze re-declared while active")
	}
}

func TestCheckMazeConditionDedupesRevisits(t *testing.T) {
	g := New(nil)
	// The same room observed many times must not count as many rooms.
	for turn := 1; turn <= 5; turn++ {
		visit(g, "Twisty Passage", mazeDesc, "north", turn)
		if g.CheckMazeCondition("twisty_passage", mazeDesc, turn) {
			t.Fatalf("maze declared from revisits at turn %d", turn)
		}
	}
}

func TestMazeMarkersAndCompletion(t *testing.T) {
	g := New(nil)
	for i := 1; i <= 3; i++ {
		visit(g, fmt.Sprintf("Twisty %d", i), mazeDesc, "north", i)
	}
	if !g.CheckMazeCondition("twisty_3", mazeDesc, 3) {
		t.Fatal("maze not declared")
	}

	g.AssignMazeMarker("twisty_1", "brass_lantern")
	if got := g.IdentifyMazeRoomByMarker("brass_lantern"); got != "twisty_1" {
		t.Errorf("marker lookup = %q", got)
	}
	if room := g.Room("twisty_1"); room.MazeMarkerItem != "brass_lantern" {
		t.Errorf("room marker = %q", room.MazeMarkerItem)
	}

	g.CompleteMaze("maze_1", 10)
	if g.MazeActive() {
		t.Error("maze still active after completion")
	}
	group := g.MazeGroups()["maze_1"]
	if !group.FullyMapped || group.CompletedTurn != 10 {
		t.Errorf("group not marked complete: %+v", group)
	}
}

func TestRestoreMazeGroupReactivates(t *testing.T) {
	g := New(nil)
	g.RestoreMazeGroup(&models.MazeGroup{Key: "maze_1", Rooms: []string{"a", "b"}})
	if !g.MazeActive() {
		t.Error("unfinished maze group did not reactivate maze mode")
	}

	g2 := New(nil)
	g2.RestoreMazeGroup(&models.MazeGroup{Key: "maze_1", FullyMapped: true})
	if g2.MazeActive() {
		t.Error("finished maze group reactivated maze mode")
	}
}
