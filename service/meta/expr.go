package meta

import (
	"os"
	"strings"
	"unicode"
)

// ExpandEnv replaces every ${env.KEY} occurrence in value with the
// corresponding environment variable (empty when unset). Expressions whose
// key contains characters outside [letters, digits, '_'] are left as-is.
func ExpandEnv(value string) string {
	const prefix = "${env."
	if !strings.Contains(value, prefix) {
		return value
	}
	var b strings.Builder
	rest := value
	for {
		idx := strings.Index(rest, prefix)
		if idx < 0 {
			b.WriteString(rest)
			return b.String()
		}
		b.WriteString(rest[:idx])
		candidate := rest[idx+len(prefix):]
		end := strings.IndexByte(candidate, '}')
		if end < 0 {
			b.WriteString(rest[idx:])
			return b.String()
		}
		key := candidate[:end]
		if isEnvKey(key) {
			b.WriteString(os.Getenv(key))
			rest = candidate[end+1:]
			continue
		}
		// Not a valid key - keep the literal prefix and rescan the remainder.
		b.WriteString(prefix)
		rest = candidate
	}
}

func isEnvKey(key string) bool {
	if key == "" {
		return false
	}
	for _, r := range key {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_' {
			return false
		}
	}
	return true
}
