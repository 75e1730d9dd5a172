package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

const maxFilenameLen = 128

// SanitizeFilename maps an arbitrary label onto ASCII letters, digits, dot,
// underscore and dash. Runs of other characters collapse to one underscore.
func SanitizeFilename(s string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range s {
		if b.Len() >= maxFilenameLen {
			break
		}
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'),
			r == '.' || r == '-':
			b.WriteRune(r)
			lastUnderscore = false
		default:
			if !lastUnderscore {
				b.WriteRune('_')
				lastUnderscore = true
			}
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "unknown"
	}
	return out
}

// JoinWithin joins dir and the sanitized name, failing if the result would
// leave dir.
func JoinWithin(dir, name string) (string, error) {
	file := filepath.Join(dir, SanitizeFilename(name))
	rel, err := filepath.Rel(dir, file)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return "", fmt.Errorf("path traversal detected: %s escapes %s", name, dir)
	}
	return file, nil
}
