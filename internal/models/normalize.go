package models

import "strings"

// NormalizeKey converts a display name into a stable identifier shared
// by rooms and items: lowercase, one leading article stripped, internal
// whitespace collapsed to single underscores, everything outside
// [a-z0-9_] removed, repeated underscores collapsed, edge underscores
// trimmed. Total and idempotent.
func NormalizeKey(name string) string {
	fields := strings.Fields(strings.ToLower(name))
	if len(fields) > 0 {
		switch fields[0] {
		case "the", "a", "an":
			fields = fields[1:]
		}
	}
	joined := strings.Join(fields, "_")

	var b strings.Builder
	b.Grow(len(joined))
	lastUnderscore := false
	for _, r := range joined {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			lastUnderscore = false
		case r == '_':
			if !lastUnderscore {
				b.WriteByte('_')
			}
			lastUnderscore = true
		}
	}
	return strings.Trim(b.String(), "_")
}
