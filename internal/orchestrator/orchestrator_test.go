package orchestrator

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tatianab/autoplay/internal/engine"
	"github.com/tatianab/autoplay/internal/models"
	"github.com/tatianab/autoplay/internal/store"
)

// fakeBrain replays scripted extractions and decisions keyed by game
// output and call order.
type fakeBrain struct {
	rooms     map[string]models.RoomUpdate
	items     map[string][]models.ItemUpdate
	decisions []engine.Decision
	evals     []engine.PuzzleEval

	decIdx    int
	evalIdx   int
	evalCalls int
	lastDC    engine.DecisionContext
	lastPC    engine.PuzzleContext
}

func (b *fakeBrain) ExtractRoom(_ context.Context, output, _ string) (models.RoomUpdate, models.Usage, error) {
	return b.rooms[output], models.Usage{Agent: "room_parser", Model: "fake"}, nil
}

func (b *fakeBrain) ExtractItems(_ context.Context, output, _, _ string) ([]models.ItemUpdate, models.Usage, error) {
	return b.items[output], models.Usage{Agent: "item_parser", Model: "fake"}, nil
}

func (b *fakeBrain) EvaluatePuzzles(_ context.Context, pc engine.PuzzleContext) (engine.PuzzleEval, models.Usage, error) {
	b.evalCalls++
	b.lastPC = pc
	usage := models.Usage{Agent: "puzzle_agent", Model: "fake"}
	if b.evalIdx >= len(b.evals) {
		return engine.PuzzleEval{}, usage, nil
	}
	eval := b.evals[b.evalIdx]
	b.evalIdx++
	return eval, usage, nil
}

func (b *fakeBrain) DecideAction(_ context.Context, dc engine.DecisionContext) (engine.Decision, models.Usage, error) {
	b.lastDC = dc
	usage := models.Usage{Agent: "game_agent", Model: "fake"}
	if b.decIdx >= len(b.decisions) {
		return engine.Decision{Command: "wait", Reasoning: "script exhausted"}, usage, nil
	}
	d := b.decisions[b.decIdx]
	b.decIdx++
	return d, usage, nil
}

// fakeGame replays a command -> output script.
type fakeGame struct {
	intro     string
	outputs   map[string]string
	commands  []string
	saves     []string
	restores  []string
	restoreOK bool
}

func (g *fakeGame) IntroText() string { return g.intro }

func (g *fakeGame) SendCommand(command string) string {
	g.commands = append(g.commands, command)
	if out, ok := g.outputs[command]; ok {
		return out
	}
	return "That does nothing."
}

func (g *fakeGame) Save(slotName string) bool {
	g.saves = append(g.saves, slotName)
	return true
}

func (g *fakeGame) Restore(slotName string) bool {
	g.restores = append(g.restores, slotName)
	return g.restoreOK
}

func (g *fakeGame) Terminate() {}

// eventLog collects emitted events.
type eventLog struct {
	events []Event
}

func (l *eventLog) OnEvent(evt Event) { l.events = append(l.events, evt) }

func (l *eventLog) types() []EventType {
	out := make([]EventType, len(l.events))
	for i, e := range l.events {
		out[i] = e.Type
	}
	return out
}

func (l *eventLog) has(t EventType) bool {
	for _, e := range l.events {
		if e.Type == t {
			return true
		}
	}
	return false
}

func testRecorder(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func roomUpdate(name, desc string, exits ...string) models.RoomUpdate {
	return models.RoomUpdate{RoomChanged: true, RoomName: name, Description: desc, Exits: exits}
}

// Full play-through of a three-room game: find the key in the hallway,
// unlock the vault, win.
func TestRunWinsThreeRoomGame(t *testing.T) {
	const (
		introText   = "GARDEN\nYou stand in a quiet garden. A path leads east."
		hallwayText = "HALLWAY\nA long hallway. A brass key glints on the floor. The vault door to the north is locked."
		takenText   = "Taken."
		unlockText  = "The brass key turns. The vault door swings open."
		vaultText   = "VAULT\nStacks of gold bars line the walls."
		winText     = "As you lift the gold: *** You have won *** Final score 350."
	)

	brain := &fakeBrain{
		rooms: map[string]models.RoomUpdate{
			introText:   roomUpdate("Garden", "You stand in a quiet garden.", "east"),
			hallwayText: roomUpdate("Hallway", "A long hallway.", "west", "north"),
			vaultText:   roomUpdate("Vault", "Stacks of gold bars line the walls.", "south"),
		},
		items: map[string][]models.ItemUpdate{
			hallwayText: {{Name: "brass key", Kind: models.ChangeNew}},
			takenText:   {{Key: "brass_key", Name: "brass key", Kind: models.ChangeTaken}},
			vaultText:   {{Name: "gold bars", Kind: models.ChangeNew}},
		},
		decisions: []engine.Decision{
			{Command: "east", Reasoning: "explore the path"},
			{Command: "take brass key", Reasoning: "the key likely opens the vault"},
			{Command: "unlock vault door with brass key", Reasoning: "use the key"},
			{Command: "north", Reasoning: "enter the vault"},
			{Command: "take gold bars", Reasoning: "claim the treasure"},
		},
		evals: []engine.PuzzleEval{
			{}, // intro: garden, nothing yet
			{NewPuzzles: []engine.NewPuzzle{{
				Description:  "The vault door is locked",
				Location:     "hallway",
				RelatedItems: []string{"brass_key"},
			}}}, // entering the hallway
			{}, // key taken, inventory changed
			{SolvedIDs: []int64{1}}, // entering the vault
		},
	}
	proc := &fakeGame{
		intro: introText,
		outputs: map[string]string{
			"east":                            hallwayText,
			"take brass key":                  takenText,
			"unlock vault door with brass key": unlockText,
			"north":                           vaultText,
			"take gold bars":                  winText,
		},
	}
	rec := testRecorder(t)
	log := &eventLog{}

	orch := New(brain, proc, rec, []Hook{log}, Options{GameFile: "vault.z5", MaxTurns: 20}, nil)
	status, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if status != models.StatusWon {
		t.Fatalf("status = %q, want won", status)
	}

	// World model: three rooms, routable both ways.
	g := orch.Graph()
	if got := len(g.Rooms()); got != 3 {
		t.Errorf("rooms = %d, want 3", got)
	}
	if path := g.Path("garden", "vault"); !reflect.DeepEqual(path, []string{"east", "north"}) {
		t.Errorf("garden->vault = %v", path)
	}
	if path := g.Path("vault", "garden"); !reflect.DeepEqual(path, []string{"south", "west"}) {
		t.Errorf("vault->garden = %v", path)
	}

	// The key was tracked into inventory.
	key := orch.Registry().Item("brass_key")
	if key == nil || key.Location != models.LocationInventory || key.Portable != models.PortableYes {
		t.Errorf("brass key = %+v", key)
	}

	// The puzzle lived its full lifecycle in the store.
	sessID := log.events[0].SessionID
	puzzles, err := rec.Puzzles(sessID)
	if err != nil {
		t.Fatalf("load puzzles: %v", err)
	}
	if len(puzzles) != 1 || puzzles[0].Status != models.PuzzleSolved {
		t.Fatalf("puzzles = %+v", puzzles)
	}

	latest, err := rec.LatestTurn(sessID)
	if err != nil {
		t.Fatalf("latest turn: %v", err)
	}
	if latest != 5 {
		t.Errorf("turns recorded = %d, want 5", latest)
	}

	for _, want := range []EventType{
		EventGameStart, EventRoomEnter, EventItemFound, EventItemTaken,
		EventPuzzleFound, EventPuzzleSolved, EventGameEnd,
	} {
		if !log.has(want) {
			t.Errorf("missing event %q in %v", want, log.types())
		}
	}
	final := log.events[len(log.events)-1]
	if final.Type != EventGameEnd || final.Detail != string(models.StatusWon) {
		t.Errorf("final event = %+v", final)
	}
}

func TestRunRecoversFromDeath(t *testing.T) {
	const deathText = "You pet the grue. *** You have died ***"

	brain := &fakeBrain{
		rooms: map[string]models.RoomUpdate{},
		items: map[string][]models.ItemUpdate{},
		decisions: []engine.Decision{
			{Command: "north"},
			{Command: "east"},
			{Command: "pet grue"},
			{Command: "south"},
		},
	}
	proc := &fakeGame{
		intro: "DARKNESS\nIt is pitch black.",
		outputs: map[string]string{
			"north":    "You advance carefully.",
			"east":     "You sidle along the wall.",
			"pet grue": deathText,
			"look":     "It is pitch black.",
			"south":    "You retreat.",
		},
		restoreOK: true,
	}
	rec := testRecorder(t)
	log := &eventLog{}

	orch := New(brain, proc, rec, []Hook{log},
		Options{GameFile: "grue.z5", MaxTurns: 5, SaveInterval: 2, SaveSlots: 3}, nil)
	status, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if status != models.StatusAbandoned {
		t.Fatalf("status = %q, want abandoned at turn cap", status)
	}

	// Turn 2 saved slot 1; the death on turn 3 restored it.
	if len(proc.saves) == 0 || proc.saves[0] != "save_slot_1.qzl" {
		t.Fatalf("saves = %v", proc.saves)
	}
	if len(proc.restores) != 1 || proc.restores[0] != "save_slot_1.qzl" {
		t.Fatalf("restores = %v", proc.restores)
	}

	// The post-restore decision is warned away from the fatal command.
	if !strings.Contains(brain.lastDC.SpecialInstructions, `"pet grue"`) {
		t.Errorf("special instructions = %q", brain.lastDC.SpecialInstructions)
	}
	if !strings.Contains(brain.lastDC.SpecialInstructions, "turns of progress lost") {
		t.Errorf("special instructions = %q", brain.lastDC.SpecialInstructions)
	}
}

func TestRunDeathWithoutSaveLoses(t *testing.T) {
	brain := &fakeBrain{
		rooms:     map[string]models.RoomUpdate{},
		items:     map[string][]models.ItemUpdate{},
		decisions: []engine.Decision{{Command: "jump off cliff"}},
	}
	proc := &fakeGame{
		intro:   "CLIFF EDGE",
		outputs: map[string]string{"jump off cliff": "You have died"},
	}
	rec := testRecorder(t)

	orch := New(brain, proc, rec, nil, Options{GameFile: "cliff.z5", MaxTurns: 10}, nil)
	status, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if status != models.StatusLost {
		t.Fatalf("status = %q, want lost", status)
	}
}

func TestRunResumesCrashedSession(t *testing.T) {
	rec := testRecorder(t)

	// A previous run that stopped mid-session without ending it.
	prev := &models.Session{
		ID:        "11111111-1111-1111-1111-111111111111",
		GameFile:  "zork1.z5",
		Status:    models.StatusPlaying,
		StartedAt: time.Now(),
	}
	if err := rec.CreateSession(prev); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	for i := 1; i <= 50; i++ {
		if err := rec.RecordTurn(prev.ID, &models.TurnRecord{
			Turn: i, Command: "look", Output: "A room.", RoomKey: "garden",
		}); err != nil {
			t.Fatalf("seed turn %d: %v", i, err)
		}
	}
	if err := rec.SaveRoom(prev.ID, &models.Room{
		Key: "garden", Name: "Garden", Visited: true, VisitCount: 50,
		Exits: map[string]string{"east": ""},
	}); err != nil {
		t.Fatalf("seed room: %v", err)
	}
	if err := rec.SaveItem(prev.ID, &models.Item{
		Key: "brass_lantern", Name: "brass lantern",
		Location: models.LocationInventory, Portable: models.PortableYes,
	}); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	brain := &fakeBrain{rooms: map[string]models.RoomUpdate{}, items: map[string][]models.ItemUpdate{}}
	proc := &fakeGame{intro: "GARDEN", restoreOK: true}
	log := &eventLog{}

	// MaxTurns equals the stored turn count, so the loop exits
	// immediately and we can inspect the restored state.
	orch := New(brain, proc, rec, []Hook{log},
		Options{GameFile: "zork1.z5", MaxTurns: 50, SaveInterval: 25, SaveSlots: 3}, nil)
	status, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if status != models.StatusAbandoned {
		t.Fatalf("status = %q", status)
	}

	// No new session: the crashed one was picked up.
	if log.events[0].SessionID != prev.ID {
		t.Errorf("session = %q, want %q", log.events[0].SessionID, prev.ID)
	}

	// World state came back from the store.
	if room := orch.Graph().Room("garden"); room == nil || room.VisitCount != 50 {
		t.Errorf("restored room = %+v", room)
	}
	if orch.Graph().CurrentRoomKey() != "garden" {
		t.Errorf("current room = %q", orch.Graph().CurrentRoomKey())
	}
	if item := orch.Registry().Item("brass_lantern"); item == nil || item.Location != models.LocationInventory {
		t.Errorf("restored item = %+v", item)
	}

	// 50 turns at interval 25 means two saves; the newest is slot 2.
	if len(proc.restores) != 1 || proc.restores[0] != "save_slot_2.qzl" {
		t.Errorf("restores = %v", proc.restores)
	}
}

func TestHookPanicIsolation(t *testing.T) {
	brain := &fakeBrain{
		rooms:     map[string]models.RoomUpdate{},
		items:     map[string][]models.ItemUpdate{},
		decisions: []engine.Decision{{Command: "end it"}},
	}
	proc := &fakeGame{
		intro:   "ROOM",
		outputs: map[string]string{"end it": "You have won"},
	}
	rec := testRecorder(t)
	log := &eventLog{}

	orch := New(brain, proc, rec, []Hook{panicHook{}, log},
		Options{GameFile: "x.z5", MaxTurns: 3}, nil)
	status, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if status != models.StatusWon {
		t.Fatalf("status = %q", status)
	}
	if !log.has(EventGameEnd) {
		t.Error("later hook starved by panicking hook")
	}
}

type panicHook struct{}

func (panicHook) OnEvent(Event) { panic("bad observer") }

// Three near-identical room descriptions trip the maze detector, after
// which the solver, not the model, picks the commands.
func TestRunHandsMazeToSolver(t *testing.T) {
	const twisty = "You are in a maze of twisty little passages, all alike."
	aText := "TWISTY A\n" + twisty
	bText := "TWISTY B\n" + twisty
	cText := "TWISTY C\n" + twisty

	brain := &fakeBrain{
		rooms: map[string]models.RoomUpdate{
			"CAVE MOUTH": roomUpdate("Cave Mouth", "A narrow cave mouth.", "north"),
			aText:        roomUpdate("Twisty A", twisty, "east", "south"),
			bText:        roomUpdate("Twisty B", twisty, "west", "west"),
			cText:        roomUpdate("Twisty C", twisty, "east", "south"),
		},
		items: map[string][]models.ItemUpdate{},
		decisions: []engine.Decision{
			{Command: "north"},
			{Command: "east"},
			{Command: "west"},
		},
	}
	proc := &fakeGame{
		intro: "CAVE MOUTH",
		outputs: map[string]string{
			"north": aText,
			"east":  bText,
			"west":  cText,
		},
	}
	rec := testRecorder(t)
	log := &eventLog{}

	orch := New(brain, proc, rec, []Hook{log}, Options{GameFile: "maze.z5", MaxTurns: 4}, nil)
	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	if !log.has(EventMazeDetected) {
		t.Fatalf("maze never detected; events %v", log.types())
	}
	if !orch.Graph().MazeActive() {
		t.Fatal("maze mode not active")
	}
	// Three model decisions, then the solver took over for turn 4.
	if brain.decIdx != 3 {
		t.Errorf("model decisions consumed = %d, want 3", brain.decIdx)
	}
	if len(proc.commands) != 4 {
		t.Fatalf("commands = %v", proc.commands)
	}
	if got := proc.commands[3]; got != "south" {
		t.Errorf("solver command = %q, want the unexplored south exit", got)
	}
}

// A crash mid-maze leaves an unfinished group in the store. Resume must
// hand the turns back to the solver instead of idling on "look".
func TestRunResumesUnfinishedMaze(t *testing.T) {
	rec := testRecorder(t)

	prev := &models.Session{
		ID:        "22222222-2222-2222-2222-222222222222",
		GameFile:  "maze.z5",
		Status:    models.StatusPlaying,
		StartedAt: time.Now(),
	}
	if err := rec.CreateSession(prev); err != nil {
		t.Fatalf("seed session: %v", err)
	}
	for i := 1; i <= 10; i++ {
		if err := rec.RecordTurn(prev.ID, &models.TurnRecord{
			Turn: i, Command: "north", Output: "Twisty passages.", RoomKey: "twisty_a",
		}); err != nil {
			t.Fatalf("seed turn %d: %v", i, err)
		}
	}
	if err := rec.SaveRoom(prev.ID, &models.Room{
		Key: "twisty_a", Name: "Twisty A", Visited: true, VisitCount: 2,
		MazeGroup: "maze_1",
		Exits:     map[string]string{"north": "", "south": "cave_mouth"},
	}); err != nil {
		t.Fatalf("seed room: %v", err)
	}
	if err := rec.SaveItem(prev.ID, &models.Item{
		Key: "red_fish", Name: "red fish",
		Location: models.LocationInventory, Portable: models.PortableYes,
	}); err != nil {
		t.Fatalf("seed item: %v", err)
	}
	if err := rec.SaveMazeGroup(prev.ID, &models.MazeGroup{
		Key: "maze_1", EntryRoom: "cave_mouth", Rooms: []string{"twisty_a"},
		CreatedTurn: 8,
	}); err != nil {
		t.Fatalf("seed maze group: %v", err)
	}

	brain := &fakeBrain{rooms: map[string]models.RoomUpdate{}, items: map[string][]models.ItemUpdate{}}
	proc := &fakeGame{intro: "CAVE MOUTH"}
	log := &eventLog{}

	orch := New(brain, proc, rec, []Hook{log},
		Options{GameFile: "maze.z5", MaxTurns: 13, SaveInterval: 25, SaveSlots: 3}, nil)
	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// One forced orientation look, then the solver: mark the room with
	// the carried item, walk the unexplored exit.
	want := []string{"look", "drop red fish", "north"}
	if !reflect.DeepEqual(proc.commands, want) {
		t.Fatalf("commands = %v, want %v", proc.commands, want)
	}
	if brain.decIdx != 0 {
		t.Errorf("model decisions consumed = %d, want 0", brain.decIdx)
	}
	if !log.has(EventMazeRoomMark) {
		t.Errorf("marker drop never announced; events %v", log.types())
	}
	if room := orch.Graph().Room("twisty_a"); room == nil || room.MazeMarkerItem != "red_fish" {
		t.Errorf("maze room = %+v", room)
	}
	if item := orch.Registry().Item("red_fish"); item == nil || item.Location != "twisty_a" {
		t.Errorf("marker item = %+v", item)
	}
}

// A failing command must run the puzzle evaluator on the failing output
// itself, not one turn later.
func TestFailedCommandTriggersPuzzleEval(t *testing.T) {
	const failText = "You can't do that here."

	brain := &fakeBrain{
		rooms: map[string]models.RoomUpdate{
			"GARDEN": roomUpdate("Garden", "A quiet garden.", "east"),
		},
		items:     map[string][]models.ItemUpdate{},
		decisions: []engine.Decision{{Command: "open door"}},
	}
	proc := &fakeGame{
		intro:   "GARDEN",
		outputs: map[string]string{"open door": failText},
	}
	rec := testRecorder(t)

	orch := New(brain, proc, rec, nil, Options{GameFile: "door.z5", MaxTurns: 1}, nil)
	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	// Intro (new room) plus the failing turn.
	if brain.evalCalls != 2 {
		t.Fatalf("puzzle evaluations = %d, want 2", brain.evalCalls)
	}
	if brain.lastPC.GameOutput != failText {
		t.Errorf("evaluator saw %q, want the failing output", brain.lastPC.GameOutput)
	}
}

// Room-entry events distinguish first visits from revisits.
func TestRoomEnterMarksFirstVisits(t *testing.T) {
	const (
		introText   = "GARDEN\nA quiet garden."
		hallwayText = "HALLWAY\nA long hallway."
		returnText  = "GARDEN\nBack in the garden."
	)

	brain := &fakeBrain{
		rooms: map[string]models.RoomUpdate{
			introText:   roomUpdate("Garden", "A quiet garden.", "east"),
			hallwayText: roomUpdate("Hallway", "A long hallway.", "west"),
			returnText:  roomUpdate("Garden", "Back in the garden.", "east"),
		},
		items: map[string][]models.ItemUpdate{},
		decisions: []engine.Decision{
			{Command: "east"},
			{Command: "west"},
		},
	}
	proc := &fakeGame{
		intro: introText,
		outputs: map[string]string{
			"east": hallwayText,
			"west": returnText,
		},
	}
	rec := testRecorder(t)
	log := &eventLog{}

	orch := New(brain, proc, rec, []Hook{log}, Options{GameFile: "loop.z5", MaxTurns: 2}, nil)
	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}

	var rooms []string
	var firsts []bool
	for _, e := range log.events {
		if e.Type == EventRoomEnter {
			rooms = append(rooms, e.Room)
			firsts = append(firsts, e.NewRoom)
		}
	}
	if !reflect.DeepEqual(rooms, []string{"garden", "hallway", "garden"}) {
		t.Fatalf("room enters = %v", rooms)
	}
	if !reflect.DeepEqual(firsts, []bool{true, true, false}) {
		t.Errorf("new-room flags = %v, want first visits only", firsts)
	}
}
