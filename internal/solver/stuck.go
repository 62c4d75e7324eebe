package solver

import "strings"

// Action is one (command, resulting output) pair from the recent
// history window.
type Action struct {
	Command string
	Output  string
}

var failureKeywords = []string{
	"can't",
	"cannot",
	"won't",
	"doesn't",
	"nothing happens",
	"not possible",
	"you can't do that",
}

// DetectStuck inspects recent history for degenerate behavior. Three
// ordered checks, first match wins: a command repeated more than twice
// in the last 10 actions; 15+ rooms recorded with at most 3 distinct
// keys in the last 15; a failure-flavored output fingerprint recurring
// more than twice in the last 10. Returns an advisory for the next
// decision context, or "" when nothing matches. Pure function, no
// model calls.
func DetectStuck(recentActions []Action, recentRooms []string) string {
	if len(recentActions) == 0 {
		return ""
	}

	last10 := recentActions
	if len(last10) > 10 {
		last10 = last10[len(last10)-10:]
	}

	commandCounts := make(map[string]int)
	for _, a := range last10 {
		commandCounts[a.Command]++
	}
	for _, a := range last10 {
		if commandCounts[a.Command] > 2 {
			return "You have been repeating the command '" + a.Command + "' frequently. " +
				"Try a completely different approach or explore a new area."
		}
	}

	if len(recentRooms) >= 15 {
		distinct := make(map[string]bool)
		for _, room := range recentRooms[len(recentRooms)-15:] {
			distinct[room] = true
		}
		if len(distinct) <= 3 {
			return "You have been cycling through the same few rooms for many turns. " +
				"Consider exploring unexplored exits or trying items on puzzles in different areas."
		}
	}

	fingerprintCounts := make(map[string]int)
	for _, a := range last10 {
		fingerprintCounts[fingerprint(a.Output)]++
	}
	for fp, count := range fingerprintCounts {
		if count <= 2 {
			continue
		}
		for _, keyword := range failureKeywords {
			if strings.Contains(fp, keyword) {
				return "You keep getting the same failure response. This approach is not working. " +
					"Try using a different item, verb, or target. Consider whether you need " +
					"something from another part of the map."
			}
		}
	}

	return ""
}

// fingerprint reduces an output to a comparable prefix: first 50
// characters, lowercased, trimmed.
func fingerprint(output string) string {
	if len(output) > 50 {
		output = output[:50]
	}
	return strings.TrimSpace(strings.ToLower(output))
}
