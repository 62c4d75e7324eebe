package game

import "regexp"

// deathPatterns are checked before victoryPatterns: an ambiguous
// ending that matches both counts as a death.
var deathPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\*\*\*\s*You have died\s*\*\*\*`),
	regexp.MustCompile(`(?i)You have died`),
	regexp.MustCompile(`(?i)You are dead`),
	regexp.MustCompile(`(?i)You have been killed`),
	regexp.MustCompile(`(?i)You are killed`),
	regexp.MustCompile(`(?i)You died`),
	regexp.MustCompile(`(?i)It appears that last command .* fatal`),
	regexp.MustCompile(`(?i)Your adventure is over`),
	regexp.MustCompile(`(?i)You are swallowed`),
	regexp.MustCompile(`(?i)You have perished`),
}

var victoryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)You have won`),
	regexp.MustCompile(`(?i)Congratulations!.*won`),
	regexp.MustCompile(`(?i)\*\*\*\s*The End\s*\*\*\*`),
	regexp.MustCompile(`(?i)You have finished`),
}

// failurePhrases mark a game reply as a refused action. Matching is
// case-insensitive substring.
var failurePhrases = []string{
	"you can't",
	"you cannot",
	"that's not something",
	"i don't understand",
	"i don't know",
	"nothing happens",
	"that doesn't work",
	"you don't see",
	"there is no",
	"you're not holding",
	"you can't see",
	"that's hardly",
	"you don't have",
	"i beg your pardon",
}
