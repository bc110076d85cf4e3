package proxy

import (
	"strings"
	"unicode"
)

// snakeCase converts a Go identifier to snake_case: GetUsers becomes
// get_users, GetByID becomes get_by_id, HTTPStatus becomes http_status.
func snakeCase(name string) string {
	runes := []rune(name)

	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	for i, r := range runes {
		if !unicode.IsUpper(r) {
			b.WriteRune(r)
			continue
		}

		if i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}

	return b.String()
}
