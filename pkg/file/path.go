package file

import (
	"os"
	"path/filepath"
	"strings"
)

// Within reports whether path resolves to a location inside root.
func Within(root, path string) bool {
	if root == "" || path == "" {
		return false
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	rel, err := filepath.Rel(absRoot, absPath)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}
