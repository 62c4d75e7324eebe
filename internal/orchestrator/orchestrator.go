// Package orchestrator runs the play loop: decide a command, send it
// to the game, fold the output back into the world model, and keep
// everything persisted so a crashed run resumes where it stopped.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/tatianab/autoplay/internal/engine"
	"github.com/tatianab/autoplay/internal/game"
	"github.com/tatianab/autoplay/internal/items"
	"github.com/tatianab/autoplay/internal/models"
	"github.com/tatianab/autoplay/internal/solver"
	"github.com/tatianab/autoplay/internal/worldmap"
)

const (
	recentActionWindow = 20
	recentRoomWindow   = 50
	resumeHistory      = 10
)

// Brain is the set of model calls one turn can make.
type Brain interface {
	ExtractRoom(ctx context.Context, output, lastCommand string) (models.RoomUpdate, models.Usage, error)
	ExtractItems(ctx context.Context, output, currentRoom, lastCommand string) ([]models.ItemUpdate, models.Usage, error)
	EvaluatePuzzles(ctx context.Context, pc engine.PuzzleContext) (engine.PuzzleEval, models.Usage, error)
	DecideAction(ctx context.Context, dc engine.DecisionContext) (engine.Decision, models.Usage, error)
}

// GameProcess is the running interpreter the loop talks to.
type GameProcess interface {
	IntroText() string
	SendCommand(command string) string
	Save(slotName string) bool
	Restore(slotName string) bool
	Terminate()
}

// Recorder is the persistence surface the loop writes through.
type Recorder interface {
	CreateSession(sess *models.Session) error
	EndSession(sessionID string, status models.SessionStatus, totalTurns int) error
	TouchSession(sessionID string, totalTurns int) error
	ActiveSession(gameFile string) (*models.Session, error)
	RecordTurn(sessionID string, t *models.TurnRecord) error
	LatestTurn(sessionID string) (int, error)
	RecentTurns(sessionID string, n int) ([]models.TurnRecord, error)
	RecordUsage(u *models.Usage) error
	SaveRoom(sessionID string, r *models.Room) error
	Rooms(sessionID string) ([]*models.Room, error)
	SaveConnection(sessionID string, c *models.Connection) error
	Connections(sessionID string) ([]*models.Connection, error)
	SaveItem(sessionID string, it *models.Item) error
	Items(sessionID string) ([]*models.Item, error)
	SavePuzzle(sessionID string, p *models.Puzzle) error
	Puzzles(sessionID string) ([]*models.Puzzle, error)
	SaveMazeGroup(sessionID string, g *models.MazeGroup) error
	MazeGroups(sessionID string) ([]*models.MazeGroup, error)
}

// Options tune the loop.
type Options struct {
	GameFile           string
	MaxTurns           int
	SaveInterval       int // turns between rotating saves
	SaveSlots          int // rotation width
	PuzzleEvalInterval int // turns between scheduled puzzle evaluations
}

// DefaultOptions fills unset fields.
func (o Options) withDefaults() Options {
	if o.MaxTurns <= 0 {
		o.MaxTurns = 500
	}
	if o.SaveInterval <= 0 {
		o.SaveInterval = 25
	}
	if o.SaveSlots <= 0 {
		o.SaveSlots = 3
	}
	if o.PuzzleEvalInterval <= 0 {
		o.PuzzleEvalInterval = 10
	}
	return o
}

// Orchestrator owns the session: world model, item registry, solvers,
// and the turn counter. Single goroutine; hooks are the only fan-out.
type Orchestrator struct {
	brain  Brain
	proc   GameProcess
	store  Recorder
	hooks  []Hook
	logger *slog.Logger
	opts   Options

	session  *models.Session
	turn     int
	graph    *worldmap.Graph
	registry *items.Registry
	maze     *solver.MazeSolver

	puzzles     []*models.Puzzle
	suggestions []models.PuzzleSuggestion

	recentActions []solver.Action
	recentRooms   []string

	special      string // one-shot guidance injected into the next decision
	forceCommand string // overrides the next decision entirely
	lastOutput   string
	lastFailure  bool
	lastInvCount int

	savesMade int
	slotTurns map[int]int // slot number -> turn it was saved at
}

// New wires an orchestrator. Hooks may be nil.
func New(brain Brain, proc GameProcess, store Recorder, hooks []Hook, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	graph := worldmap.New(logger)
	registry := items.New(logger)
	return &Orchestrator{
		brain:     brain,
		proc:      proc,
		store:     store,
		hooks:     hooks,
		logger:    logger,
		opts:      opts,
		graph:     graph,
		registry:  registry,
		maze:      solver.NewMazeSolver(graph, registry, logger),
		slotTurns: make(map[int]int),
	}
}

// Graph exposes the world model for monitors.
func (o *Orchestrator) Graph() *worldmap.Graph { return o.graph }

// Registry exposes item state for monitors.
func (o *Orchestrator) Registry() *items.Registry { return o.registry }

// Run plays until a terminal state or the turn cap. The returned status
// is also recorded on the session.
func (o *Orchestrator) Run(ctx context.Context) (models.SessionStatus, error) {
	if err := o.startOrResume(); err != nil {
		return "", err
	}
	o.emit(Event{Type: EventGameStart, Turn: o.turn, Detail: o.opts.GameFile})

	// A fresh session treats the intro text as observation zero,
	// seeding the map and registry before the first decision.
	if o.turn == 0 {
		intro := o.proc.IntroText()
		o.lastOutput = intro
		o.observe(ctx, intro, "")
	}

	status := models.StatusAbandoned
	for o.turn < o.opts.MaxTurns {
		if ctx.Err() != nil {
			o.logger.Info("run cancelled", "turn", o.turn)
			break
		}
		done, result := o.playTurn(ctx)
		if done {
			status = result
			break
		}
	}

	if err := o.store.EndSession(o.session.ID, status, o.turn); err != nil {
		o.logger.Error("end session", "err", err)
	}
	o.emit(Event{Type: EventGameEnd, Turn: o.turn, Detail: string(status)})
	o.logger.Info("session finished", "status", string(status), "turns", o.turn)
	return status, nil
}

// startOrResume continues the most recent unterminated session for this
// game file, or begins a fresh one.
func (o *Orchestrator) startOrResume() error {
	prev, err := o.store.ActiveSession(o.opts.GameFile)
	if err != nil {
		return fmt.Errorf("look up active session: %w", err)
	}
	if prev != nil {
		return o.resume(prev)
	}

	o.session = &models.Session{
		ID:        uuid.NewString(),
		GameFile:  o.opts.GameFile,
		StartedAt: time.Now(),
		Status:    models.StatusPlaying,
	}
	return o.store.CreateSession(o.session)
}

// resume rebuilds in-memory state from the store and re-syncs the game
// process from the most recent rotating save.
func (o *Orchestrator) resume(prev *models.Session) error {
	o.session = prev
	o.logger.Info("resuming crashed session", "session", prev.ID, "turns", prev.TotalTurns)

	turn, err := o.store.LatestTurn(prev.ID)
	if err != nil {
		return err
	}
	o.turn = turn

	rooms, err := o.store.Rooms(prev.ID)
	if err != nil {
		return err
	}
	for _, r := range rooms {
		o.graph.RestoreRoom(r)
	}
	conns, err := o.store.Connections(prev.ID)
	if err != nil {
		return err
	}
	for _, c := range conns {
		o.graph.RestoreConnection(c)
	}
	its, err := o.store.Items(prev.ID)
	if err != nil {
		return err
	}
	for _, it := range its {
		o.registry.Restore(it)
	}
	o.puzzles, err = o.store.Puzzles(prev.ID)
	if err != nil {
		return err
	}
	groups, err := o.store.MazeGroups(prev.ID)
	if err != nil {
		return err
	}
	for _, g := range groups {
		o.graph.RestoreMazeGroup(g)
	}
	// An unfinished maze reactivates maze mode; re-arm the solver so it
	// resumes driving turns. Restored rooms keep their marker items, so
	// nothing gets dropped twice.
	if g := o.graph.ActiveMaze(); g != nil {
		o.maze.Reset(g)
		o.maze.SetProtectedItems(o.puzzleItems())
	}

	history, err := o.store.RecentTurns(prev.ID, resumeHistory)
	if err != nil {
		return err
	}
	for _, t := range history {
		o.recentActions = append(o.recentActions, solver.Action{Command: t.Command, Output: t.Output})
		if t.RoomKey != "" {
			o.recentRooms = append(o.recentRooms, t.RoomKey)
		}
	}
	if len(history) > 0 {
		last := history[len(history)-1]
		o.graph.SetCurrentRoom(last.RoomKey)
		o.lastOutput = last.Output
	}
	o.lastInvCount = o.registry.InventoryCount()

	// Saves rotate on a fixed schedule, so the newest slot is derivable
	// from the turn counter alone.
	o.savesMade = o.turn / o.opts.SaveInterval
	if o.savesMade > 0 {
		slot := ((o.savesMade - 1) % o.opts.SaveSlots) + 1
		savedTurn := o.savesMade * o.opts.SaveInterval
		if o.proc.Restore(slotName(slot)) {
			o.slotTurns[slot] = savedTurn
			o.logger.Info("game state restored", "slot", slot, "saved_turn", savedTurn)
		} else {
			o.logger.Warn("no usable save slot; continuing from game start")
		}
	}
	o.forceCommand = "look"
	return nil
}

func slotName(n int) string {
	return fmt.Sprintf("save_slot_%d.qzl", n)
}

// playTurn runs one complete turn. done is true when the session ended.
func (o *Orchestrator) playTurn(ctx context.Context) (done bool, status models.SessionStatus) {
	o.turn++
	o.emit(Event{Type: EventTurnStart, Turn: o.turn, Room: o.graph.CurrentRoomKey()})

	command, reasoning := o.chooseCommand(ctx)
	output := o.proc.SendCommand(command)
	o.lastOutput = output
	o.pushAction(solver.Action{Command: command, Output: output})

	switch game.ClassifyTerminal(output) {
	case models.TerminalDeath:
		o.recordTurn(command, output, reasoning)
		if o.recoverFromDeath(command) {
			o.emit(Event{Type: EventTurnEnd, Turn: o.turn, Command: command, Output: output})
			return false, ""
		}
		return true, models.StatusLost
	case models.TerminalVictory:
		o.recordTurn(command, output, reasoning)
		o.emit(Event{Type: EventTurnEnd, Turn: o.turn, Command: command, Output: output})
		return true, models.StatusWon
	}

	// Classify failure before observing so the puzzle evaluator runs
	// while the failing output itself is being processed.
	o.lastFailure = game.IsFailure(output)
	o.observe(ctx, output, command)
	if o.lastFailure {
		o.recordPuzzleAttempt(command, output)
	}

	o.recordTurn(command, output, reasoning)
	o.persistWorld()

	if o.turn%o.opts.SaveInterval == 0 {
		o.rotatingSave()
	}

	o.emit(Event{Type: EventTurnEnd, Turn: o.turn, Command: command, Output: output})
	return false, ""
}

// chooseCommand picks this turn's command: a forced command, the maze
// solver when one is being mapped, or a model decision.
func (o *Orchestrator) chooseCommand(ctx context.Context) (command, reasoning string) {
	if o.forceCommand != "" {
		command = o.forceCommand
		o.forceCommand = ""
		return command, "post-restore orientation"
	}

	// The solver owns turns from maze detection through marker
	// retrieval, which outlasts the graph's maze mode.
	if o.graph.MazeActive() || o.maze.Active() {
		step := o.maze.NextStep(o.graph.CurrentRoomKey(), o.turn)
		if step.MarkedRoom != "" {
			o.emit(Event{Type: EventMazeRoomMark, Turn: o.turn, Room: step.MarkedRoom, Item: step.MarkerItem})
		}
		if step.Completed {
			if g := o.maze.Group(); g != nil {
				if err := o.store.SaveMazeGroup(o.session.ID, g); err != nil {
					o.logger.Error("save maze group", "err", err)
				}
				o.emit(Event{Type: EventMazeCompleted, Turn: o.turn, Detail: g.Key})
			}
		}
		return step.Command, step.Reasoning
	}

	if advisory := solver.DetectStuck(o.recentActions, o.recentRooms); advisory != "" {
		o.logger.Warn("stuck behavior detected", "advisory", advisory)
		if o.special != "" {
			o.special += "\n"
		}
		o.special += advisory
	}

	dc := engine.DecisionContext{
		GameOutput:          o.lastOutput,
		Room:                o.graph.CurrentRoom(),
		Inventory:           o.registry.Inventory(),
		RoomItems:           o.registry.InRoom(o.graph.CurrentRoomKey()),
		MapSummary:          o.graph.Summary(),
		OpenPuzzles:         o.openPuzzles(),
		Suggestions:         o.suggestions,
		RecentActions:       o.actionPairs(),
		SpecialInstructions: o.special,
		NavigationHints:     o.navigationHints(),
	}
	if _, path, ok := o.graph.NearestUnexplored(o.graph.CurrentRoomKey()); ok {
		dc.NearestUnexplored = path
	}
	o.special = ""

	decision, usage, err := o.brain.DecideAction(ctx, dc)
	o.recordUsage(usage)
	if err != nil {
		o.logger.Error("decision failed", "err", err)
		return "look", "decision unavailable"
	}
	return decision.Command, decision.Reasoning
}

// observe folds one chunk of game output into the world model.
func (o *Orchestrator) observe(ctx context.Context, output, lastCommand string) {
	update, usage, err := o.brain.ExtractRoom(ctx, output, lastCommand)
	o.recordUsage(usage)
	if err != nil {
		o.logger.Error("room extraction failed", "err", err)
	} else if update.RoomChanged {
		update = o.graph.ApplyUpdate(update, lastCommand, o.turn)
		o.pushRoom(update.RoomKey)
		o.emit(Event{Type: EventRoomEnter, Turn: o.turn, Room: update.RoomKey, NewRoom: update.NewRoom, Detail: update.RoomName})

		if !o.graph.MazeActive() &&
			o.graph.CheckMazeCondition(update.RoomKey, update.Description, o.turn) {
			group := o.graph.ActiveMaze()
			o.maze.Reset(group)
			o.maze.SetProtectedItems(o.puzzleItems())
			if err := o.store.SaveMazeGroup(o.session.ID, group); err != nil {
				o.logger.Error("save maze group", "err", err)
			}
			o.emit(Event{Type: EventMazeDetected, Turn: o.turn, Room: update.RoomKey, Detail: group.Key})
		}
	}

	updates, usage, err := o.brain.ExtractItems(ctx, output, o.graph.CurrentRoomKey(), lastCommand)
	o.recordUsage(usage)
	if err != nil {
		o.logger.Error("item extraction failed", "err", err)
	}
	for _, u := range updates {
		item := o.registry.ApplyUpdate(u, o.graph.CurrentRoomKey(), o.turn)
		if item == nil {
			continue
		}
		switch u.Kind {
		case models.ChangeNew:
			o.emit(Event{Type: EventItemFound, Turn: o.turn, Item: item.Key, Room: o.graph.CurrentRoomKey()})
		case models.ChangeTaken:
			o.emit(Event{Type: EventItemTaken, Turn: o.turn, Item: item.Key})
		}
	}

	if o.shouldEvaluatePuzzles(update) {
		o.evaluatePuzzles(ctx, output)
	}
	o.lastInvCount = o.registry.InventoryCount()
}

// shouldEvaluatePuzzles: on schedule, on entering a new room, when the
// inventory changed, and after a failed action.
func (o *Orchestrator) shouldEvaluatePuzzles(update models.RoomUpdate) bool {
	if o.turn > 0 && o.turn%o.opts.PuzzleEvalInterval == 0 {
		return true
	}
	if update.NewRoom {
		return true
	}
	if o.registry.InventoryCount() != o.lastInvCount {
		return true
	}
	return o.lastFailure
}

func (o *Orchestrator) evaluatePuzzles(ctx context.Context, output string) {
	pc := engine.PuzzleContext{
		GameOutput:    output,
		Room:          o.graph.CurrentRoom(),
		Inventory:     o.registry.Inventory(),
		AllItems:      o.registry.All(),
		OpenPuzzles:   o.openPuzzles(),
		MapSummary:    o.graph.Summary(),
		RecentActions: o.actionPairs(),
	}
	eval, usage, err := o.brain.EvaluatePuzzles(ctx, pc)
	o.recordUsage(usage)
	if err != nil {
		o.logger.Error("puzzle evaluation failed", "err", err)
		return
	}

	for _, np := range eval.NewPuzzles {
		if o.knownPuzzle(np.Description) {
			continue
		}
		p := &models.Puzzle{
			Description:  np.Description,
			Status:       models.PuzzleOpen,
			Location:     np.Location,
			RelatedItems: np.RelatedItems,
			CreatedTurn:  o.turn,
		}
		if p.Location == "" {
			p.Location = o.graph.CurrentRoomKey()
		}
		if err := o.store.SavePuzzle(o.session.ID, p); err != nil {
			o.logger.Error("save puzzle", "err", err)
			continue
		}
		o.puzzles = append(o.puzzles, p)
		o.emit(Event{Type: EventPuzzleFound, Turn: o.turn, PuzzleID: p.ID, Detail: p.Description})
	}

	for _, id := range eval.SolvedIDs {
		for _, p := range o.puzzles {
			if p.ID != id || p.Status == models.PuzzleSolved {
				continue
			}
			p.Status = models.PuzzleSolved
			p.SolvedTurn = o.turn
			if err := o.store.SavePuzzle(o.session.ID, p); err != nil {
				o.logger.Error("save puzzle", "err", err)
			}
			o.emit(Event{Type: EventPuzzleSolved, Turn: o.turn, PuzzleID: p.ID, Detail: p.Description})
		}
	}

	o.suggestions = eval.Suggestions
}

// knownPuzzle guards against the evaluator re-reporting an existing
// puzzle under the same description.
func (o *Orchestrator) knownPuzzle(description string) bool {
	for _, p := range o.puzzles {
		if p.Description == description {
			return true
		}
	}
	return false
}

// recordPuzzleAttempt attaches a failed action to in-progress puzzles
// at the current location.
func (o *Orchestrator) recordPuzzleAttempt(command, output string) {
	here := o.graph.CurrentRoomKey()
	for _, p := range o.puzzles {
		if p.Status == models.PuzzleSolved || p.Location != here {
			continue
		}
		p.Status = models.PuzzleInProgress
		p.Attempts = append(p.Attempts, models.PuzzleAttempt{Action: command, Result: output})
		if err := o.store.SavePuzzle(o.session.ID, p); err != nil {
			o.logger.Error("save puzzle attempt", "err", err)
		}
	}
}

// recoverFromDeath restores the newest rotating save. Returns false
// when no save can be restored, which loses the game.
func (o *Orchestrator) recoverFromDeath(fatalCommand string) bool {
	slots := make([]int, 0, len(o.slotTurns))
	for slot := range o.slotTurns {
		slots = append(slots, slot)
	}
	// Newest first.
	sort.Slice(slots, func(i, j int) bool { return o.slotTurns[slots[i]] > o.slotTurns[slots[j]] })

	for _, slot := range slots {
		if !o.proc.Restore(slotName(slot)) {
			continue
		}
		savedTurn := o.slotTurns[slot]
		lost := o.turn - savedTurn
		o.logger.Warn("died; restored from save",
			"slot", slot, "saved_turn", savedTurn, "turns_lost", lost, "fatal_command", fatalCommand)
		o.special = fmt.Sprintf(
			"You died and the game was restored from a save made at turn %d (%d turns of progress lost). "+
				"The action that killed you was %q. Do not repeat it; choose a different approach.",
			savedTurn, lost, fatalCommand)
		o.forceCommand = "look"
		o.lastFailure = false
		return true
	}
	o.logger.Error("died with no restorable save", "fatal_command", fatalCommand)
	return false
}

// rotatingSave writes the next slot in the rotation.
func (o *Orchestrator) rotatingSave() {
	o.savesMade++
	slot := ((o.savesMade - 1) % o.opts.SaveSlots) + 1
	if o.proc.Save(slotName(slot)) {
		o.slotTurns[slot] = o.turn
	}
}

func (o *Orchestrator) recordTurn(command, output, reasoning string) {
	inv := make([]string, 0)
	for _, item := range o.registry.Inventory() {
		inv = append(inv, item.Key)
	}
	t := &models.TurnRecord{
		SessionID: o.session.ID,
		Turn:      o.turn,
		Timestamp: time.Now(),
		Command:   command,
		Output:    output,
		RoomKey:   o.graph.CurrentRoomKey(),
		Inventory: inv,
		Reasoning: reasoning,
	}
	if err := o.store.RecordTurn(o.session.ID, t); err != nil {
		o.logger.Error("record turn", "err", err)
	}
	if err := o.store.TouchSession(o.session.ID, o.turn); err != nil {
		o.logger.Error("touch session", "err", err)
	}
}

func (o *Orchestrator) recordUsage(u models.Usage) {
	if u.Agent == "" {
		return
	}
	u.SessionID = o.session.ID
	u.Turn = o.turn
	if err := o.store.RecordUsage(&u); err != nil {
		o.logger.Error("record usage", "err", err)
	}
}

// persistWorld writes the turn's world-model deltas. Rooms and items
// are written whole; writing the current room and its edges covers
// everything a single turn can touch.
func (o *Orchestrator) persistWorld() {
	if room := o.graph.CurrentRoom(); room != nil {
		if err := o.store.SaveRoom(o.session.ID, room); err != nil {
			o.logger.Error("save room", "err", err)
		}
	}
	for _, c := range o.graph.Connections() {
		if err := o.store.SaveConnection(o.session.ID, c); err != nil {
			o.logger.Error("save connection", "err", err)
		}
	}
	for _, it := range o.registry.All() {
		if err := o.store.SaveItem(o.session.ID, it); err != nil {
			o.logger.Error("save item", "err", err)
		}
	}
	if g := o.graph.ActiveMaze(); g != nil {
		if err := o.store.SaveMazeGroup(o.session.ID, g); err != nil {
			o.logger.Error("save maze group", "err", err)
		}
	}
}

func (o *Orchestrator) openPuzzles() []*models.Puzzle {
	var open []*models.Puzzle
	for _, p := range o.puzzles {
		if p.Status != models.PuzzleSolved {
			open = append(open, p)
		}
	}
	return open
}

// puzzleItems collects item keys tied to open puzzles; the maze solver
// spends these as markers last.
func (o *Orchestrator) puzzleItems() []string {
	var keys []string
	for _, p := range o.openPuzzles() {
		keys = append(keys, p.RelatedItems...)
	}
	return keys
}

// navigationHints maps each open puzzle's location to the directions
// that reach it from here.
func (o *Orchestrator) navigationHints() map[string][]string {
	hints := make(map[string][]string)
	here := o.graph.CurrentRoomKey()
	for _, p := range o.openPuzzles() {
		if p.Location == "" || p.Location == here {
			continue
		}
		if path := o.graph.Path(here, p.Location); len(path) > 0 {
			hints[p.Location] = path
		}
	}
	return hints
}

func (o *Orchestrator) actionPairs() []engine.ActionPair {
	pairs := make([]engine.ActionPair, 0, len(o.recentActions))
	for _, a := range o.recentActions {
		pairs = append(pairs, engine.ActionPair{Command: a.Command, Output: a.Output})
	}
	return pairs
}

func (o *Orchestrator) pushAction(a solver.Action) {
	o.recentActions = append(o.recentActions, a)
	if len(o.recentActions) > recentActionWindow {
		o.recentActions = o.recentActions[len(o.recentActions)-recentActionWindow:]
	}
}

func (o *Orchestrator) pushRoom(key string) {
	o.recentRooms = append(o.recentRooms, key)
	if len(o.recentRooms) > recentRoomWindow {
		o.recentRooms = o.recentRooms[len(o.recentRooms)-recentRoomWindow:]
	}
}
