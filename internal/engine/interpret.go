package engine

import (
	"context"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/tatianab/autoplay/internal/models"
)

// ExtractRoom parses a chunk of game output into a room observation.
// Callers treat an error as "no room change".
func (e *Engine) ExtractRoom(ctx context.Context, output, lastCommand string) (models.RoomUpdate, models.Usage, error) {
	prompt, err := renderPrompt("room_update", roomUpdatePrompt, struct {
		Command string
		Output  string
	}{Command: lastCommand, Output: output})
	if err != nil {
		return models.RoomUpdate{}, models.Usage{Agent: "room_parser"}, err
	}

	text, usage, err := e.generate(ctx, e.parser, "room_parser", prompt)
	if err != nil {
		return models.RoomUpdate{}, usage, err
	}

	var update models.RoomUpdate
	if err := yaml.Unmarshal([]byte(stripFences(text)), &update); err != nil {
		return models.RoomUpdate{}, usage, fmt.Errorf("parse room update YAML: %w", err)
	}
	return update, usage, nil
}

// ExtractItems parses item changes out of game output. Callers treat
// an error as "no item changes".
func (e *Engine) ExtractItems(ctx context.Context, output, currentRoom, lastCommand string) ([]models.ItemUpdate, models.Usage, error) {
	prompt, err := renderPrompt("item_update", itemUpdatePrompt, struct {
		Command string
		Room    string
		Output  string
	}{Command: lastCommand, Room: currentRoom, Output: output})
	if err != nil {
		return nil, models.Usage{Agent: "item_parser"}, err
	}

	text, usage, err := e.generate(ctx, e.parser, "item_parser", prompt)
	if err != nil {
		return nil, usage, err
	}

	var parsed struct {
		Updates []models.ItemUpdate `yaml:"updates"`
	}
	if err := yaml.Unmarshal([]byte(stripFences(text)), &parsed); err != nil {
		return nil, usage, fmt.Errorf("parse item update YAML: %w", err)
	}
	return parsed.Updates, usage, nil
}

// EvaluatePuzzles asks the model for newly visible puzzles, solution
// suggestions for open ones, and any puzzles the latest output shows
// as solved.
func (e *Engine) EvaluatePuzzles(ctx context.Context, pc PuzzleContext) (PuzzleEval, models.Usage, error) {
	prompt, err := renderPrompt("puzzle_eval", puzzleEvalPrompt, puzzlePromptData(pc))
	if err != nil {
		return PuzzleEval{}, models.Usage{Agent: "puzzle_agent"}, err
	}

	text, usage, err := e.generate(ctx, e.parser, "puzzle_agent", prompt)
	if err != nil {
		return PuzzleEval{}, usage, err
	}

	var eval PuzzleEval
	if err := yaml.Unmarshal([]byte(stripFences(text)), &eval); err != nil {
		return PuzzleEval{}, usage, fmt.Errorf("parse puzzle eval YAML: %w", err)
	}
	for i := range eval.Suggestions {
		if eval.Suggestions[i].Confidence == "" {
			eval.Suggestions[i].Confidence = models.ConfidenceMedium
		}
	}
	return eval, usage, nil
}

// DecideAction picks the next game command. On any failure the caller
// falls back to "look".
func (e *Engine) DecideAction(ctx context.Context, dc DecisionContext) (Decision, models.Usage, error) {
	prompt, err := renderPrompt("decide_action", decideActionPrompt, decisionPromptData(dc))
	if err != nil {
		return Decision{}, models.Usage{Agent: "game_agent"}, err
	}

	text, usage, err := e.generate(ctx, e.decider, "game_agent", prompt)
	if err != nil {
		return Decision{}, usage, err
	}
	return ParseDecision(text), usage, nil
}
