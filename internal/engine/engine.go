// Package engine wraps the Gemini client behind the four capabilities
// the turn loop needs: room extraction, item extraction, puzzle
// evaluation, and next-command decisions. Prompts are embedded
// templates; structured replies come back as fenced YAML.
package engine

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"strings"
	"text/template"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"github.com/tatianab/autoplay/internal/models"
	"github.com/tatianab/autoplay/internal/worldmap"
)

//go:embed prompts/room_update.txt
var roomUpdatePrompt string

//go:embed prompts/item_update.txt
var itemUpdatePrompt string

//go:embed prompts/puzzle_eval.txt
var puzzleEvalPrompt string

//go:embed prompts/decide_action.txt
var decideActionPrompt string

type Engine struct {
	client    *genai.Client
	parser    *genai.GenerativeModel
	decider   *genai.GenerativeModel
	modelName string
}

func NewEngine(ctx context.Context, apiKey, modelName string) (*Engine, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, err
	}

	parser := client.GenerativeModel(modelName)
	parser.SetTemperature(0.1)
	parser.SetMaxOutputTokens(1024)

	decider := client.GenerativeModel(modelName)
	decider.SetTemperature(0.7)
	decider.SetMaxOutputTokens(1024)

	return &Engine{
		client:    client,
		parser:    parser,
		decider:   decider,
		modelName: modelName,
	}, nil
}

func (e *Engine) Close() {
	e.client.Close()
}

// generate runs one model call and returns the reply text plus usage
// accounting.
func (e *Engine) generate(ctx context.Context, model *genai.GenerativeModel, agent, prompt string) (string, models.Usage, error) {
	start := time.Now()
	usage := models.Usage{Agent: agent, Model: e.modelName}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	usage.LatencyMS = float64(time.Since(start).Microseconds()) / 1000.0
	if err != nil {
		return "", usage, err
	}
	if resp.UsageMetadata != nil {
		usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
		usage.CachedTokens = int(resp.UsageMetadata.CachedContentTokenCount)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", usage, fmt.Errorf("no content returned from model")
	}
	text, ok := resp.Candidates[0].Content.Parts[0].(genai.Text)
	if !ok {
		return "", usage, fmt.Errorf("unexpected response type from model")
	}
	return string(text), usage, nil
}

// stripFences removes a markdown code fence around a YAML reply.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```yaml")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}

func renderPrompt(name, text string, data any) (string, error) {
	tmpl, err := template.New(name).Parse(text)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// Decision is the decided next command plus the model's rationale.
type Decision struct {
	Command   string
	Reasoning string
}

// DecisionContext is everything the decision step sees for one turn.
type DecisionContext struct {
	GameOutput          string
	Room                *models.Room
	Inventory           []*models.Item
	RoomItems           []*models.Item
	MapSummary          worldmap.Summary
	OpenPuzzles         []*models.Puzzle
	Suggestions         []models.PuzzleSuggestion
	RecentActions       []ActionPair
	SpecialInstructions string
	NavigationHints     map[string][]string // puzzle location -> directions
	NearestUnexplored   []string            // directions to nearest unexplored exit
}

// ActionPair is one historical (command, output) entry shown to the
// model.
type ActionPair struct {
	Command string
	Output  string
}

// PuzzleContext is the input to a puzzle evaluation call.
type PuzzleContext struct {
	GameOutput    string
	Room          *models.Room
	Inventory     []*models.Item
	AllItems      []*models.Item
	OpenPuzzles   []*models.Puzzle
	MapSummary    worldmap.Summary
	RecentActions []ActionPair
}

// NewPuzzle is one freshly detected puzzle, before persistence assigns
// an ID.
type NewPuzzle struct {
	Description  string   `yaml:"description"`
	Location     string   `yaml:"location"`
	RelatedItems []string `yaml:"related_items"`
}

// PuzzleEval is the result of one puzzle evaluation call.
type PuzzleEval struct {
	NewPuzzles  []NewPuzzle               `yaml:"new_puzzles"`
	Suggestions []models.PuzzleSuggestion `yaml:"suggestions"`
	SolvedIDs   []int64                   `yaml:"solved_puzzle_ids"`
}
