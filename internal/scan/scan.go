// Package scan finds candidate PNG files under a root directory.
package scan

import (
	"io/fs"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	pngExt  = ".png"
	cardExt = ".card.png"
)

// IsCandidate reports whether a file name is a PNG that has not been renamed yet
func IsCandidate(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, pngExt) && !strings.HasSuffix(lower, cardExt)
}

// Depth returns the number of directories between root and dir. root itself is 0.
func Depth(root, dir string) int {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return 0
	}
	return strings.Count(rel, string(filepath.Separator)) + 1
}

// Candidates walks root in lexical order and returns candidate files whose
// containing directory is at most maxDepth levels below root. Directories
// deeper than that are not descended into. Unreadable subdirectories are
// skipped; an error on root itself is returned.
func Candidates(root string, maxDepth int, log *zap.Logger) ([]string, error) {
	root = filepath.Clean(root)

	files := make([]string, 0, 64)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			log.Debug("skipping unreadable entry", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if Depth(root, path) > maxDepth {
				return filepath.SkipDir
			}
			return nil
		}

		if IsCandidate(d.Name()) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
