// Package security guards the file names the mapper derives from flags and
// session identifiers.
package security

import (
	"fmt"
	"path/filepath"
	"strings"
)

// maxNameLen bounds a sanitised file name.
const maxNameLen = 96

// SanitizeFilename keeps ASCII letters, digits, '.', '_' and '-' from s and
// folds every other run of characters into one '_'. Leading and trailing
// dots and underscores are dropped; an empty result becomes "map".
func SanitizeFilename(s string) string {
	var b strings.Builder
	folded := false
	for _, r := range s {
		if b.Len() >= maxNameLen {
			break
		}
		ok := r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z' || r >= '0' && r <= '9' ||
			r == '.' || r == '_' || r == '-'
		if ok {
			b.WriteRune(r)
			folded = false
			continue
		}
		if !folded {
			b.WriteByte('_')
			folded = true
		}
	}
	out := strings.Trim(b.String(), "._")
	if out == "" {
		return "map"
	}
	return out
}

// WithinDir returns an error unless path, once made absolute and with
// symlinks in its existing ancestors resolved, lies inside dir.
func WithinDir(path, dir string) error {
	absDir, err := canonical(dir)
	if err != nil {
		return fmt.Errorf("resolve directory %s: %w", dir, err)
	}
	absPath, err := canonical(path)
	if err != nil {
		return fmt.Errorf("resolve path %s: %w", path, err)
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil {
		return fmt.Errorf("path %s is outside %s: %w", path, dir, err)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
		return fmt.Errorf("path %s escapes %s", path, dir)
	}
	return nil
}

// canonical resolves symlinks in the longest existing prefix of p.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(filepath.Clean(p))
	if err != nil {
		return "", err
	}
	existing, rest := abs, ""
	for {
		if resolved, err := filepath.EvalSymlinks(existing); err == nil {
			return filepath.Join(resolved, rest), nil
		}
		parent := filepath.Dir(existing)
		if parent == existing {
			return abs, nil
		}
		rest = filepath.Join(filepath.Base(existing), rest)
		existing = parent
	}
}
