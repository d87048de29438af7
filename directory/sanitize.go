package directory

import "strings"

// SanitizeName strips "^x" color escapes: every '^' is dropped together with
// the character after it, if any.
func SanitizeName(name string) string {
	if !strings.ContainsRune(name, '^') {
		return name
	}
	var b strings.Builder
	b.Grow(len(name))
	skip := false
	for _, r := range name {
		switch {
		case skip:
			skip = false
		case r == '^':
			skip = true
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
