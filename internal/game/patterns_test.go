package game

import (
	"testing"

	"github.com/tatianab/autoplay/internal/models"
)

func TestClassifyTerminalDeath(t *testing.T) {
	outputs := []string{
		"*** You have died ***",
		"   ****   You have died   ****   ",
		"The troll swings... You are dead.",
		"You have been killed by a grue.",
		"It appears that last command was fatal.",
		"Your adventure is over.",
		"You are swallowed whole.",
	}
	for _, out := range outputs {
		if got := ClassifyTerminal(out); got != models.TerminalDeath {
			t.Errorf("ClassifyTerminal(%q) = %q, want death", out, got)
		}
	}
}

func TestClassifyTerminalVictory(t *testing.T) {
	outputs := []string{
		"You have won!",
		"Congratulations! You have won the game.",
		"*** The End ***",
		"You have finished the game with 350 points.",
	}
	for _, out := range outputs {
		if got := ClassifyTerminal(out); got != models.TerminalVictory {
			t.Errorf("ClassifyTerminal(%q) = %q, want victory", out, got)
		}
	}
}

// An ending that reads as both counts as a death: death patterns are
// checked first.
func TestClassifyTerminalDeathBeatsVictory(t *testing.T) {
	out := "You have died. In a sense, you have won."
	if got := ClassifyTerminal(out); got != models.TerminalDeath {
		t.Errorf("ambiguous ending = %q, want death", got)
	}
}

func TestClassifyTerminalNone(t *testing.T) {
	outputs := []string{
		"",
		"You are in a small clearing.",
		"Taken.",
		"The grue eyes you hungrily but does nothing.",
	}
	for _, out := range outputs {
		if got := ClassifyTerminal(out); got != models.TerminalNone {
			t.Errorf("ClassifyTerminal(%q) = %q, want none", out, got)
		}
	}
}

func TestIsFailure(t *testing.T) {
	failures := []string{
		"You can't go that way.",
		"That's not something you can open.",
		"I don't understand that sentence.",
		"Nothing happens.",
		"You're not holding the sword.",
		"I beg your pardon?",
	}
	for _, out := range failures {
		if !IsFailure(out) {
			t.Errorf("IsFailure(%q) = false", out)
		}
	}

	successes := []string{
		"Taken.",
		"The door creaks open.",
		"You are carrying a brass lantern.",
	}
	for _, out := range successes {
		if IsFailure(out) {
			t.Errorf("IsFailure(%q) = true", out)
		}
	}
}
