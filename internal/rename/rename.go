// Package rename gives character card files their .card.png name.
//
// Targets are probed sequentially: "name.card.png", then "name(1).card.png",
// "name(2).card.png" and so on until a free name is found. A name is taken
// when any directory entry exists there or when an earlier file in the same
// run was given it, so a dry run reports the names a real run would use.
package rename

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// CardSuffix is appended to the stem of every renamed file
const CardSuffix = ".card.png"

// swapped in tests to simulate filesystem failures
var renameFunc = os.Rename

// Result describes one rename, performed or simulated
type Result struct {
	From   string
	To     string
	DryRun bool
}

// Error wraps a failed rename with both paths
type Error struct {
	From string
	To   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("rename %s -> %s: %v", e.From, e.To, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsRenameError reports whether err came from a failed rename
func IsRenameError(err error) bool {
	var e *Error
	return errors.As(err, &e)
}

// Renamer hands out card names and applies them
type Renamer struct {
	DryRun  bool
	claimed map[string]struct{}
}

// NewRenamer returns a renamer for one run
func NewRenamer(dryRun bool) *Renamer {
	return &Renamer{
		DryRun:  dryRun,
		claimed: make(map[string]struct{}),
	}
}

// Target returns the first free card name for path in its own directory and claims it
func (r *Renamer) Target(path string) string {
	dir, name := filepath.Split(path)
	stem := Stem(name)

	target := filepath.Join(dir, stem+CardSuffix)
	for n := 1; r.taken(target); n++ {
		target = filepath.Join(dir, fmt.Sprintf("%s(%d)%s", stem, n, CardSuffix))
	}
	r.claimed[target] = struct{}{}
	return target
}

func (r *Renamer) taken(path string) bool {
	if _, ok := r.claimed[path]; ok {
		return true
	}
	_, err := os.Lstat(path)
	return err == nil
}

// Apply renames path to its card name, or only computes the name on a dry run
func (r *Renamer) Apply(path string) (Result, error) {
	res := Result{From: path, To: r.Target(path), DryRun: r.DryRun}
	if r.DryRun {
		return res, nil
	}
	if err := renameFunc(res.From, res.To); err != nil {
		return res, &Error{From: res.From, To: res.To, Err: err}
	}
	return res, nil
}

// Stem strips the final extension from a file name. Leading dots do not start
// an extension, so ".png" is its own stem.
func Stem(name string) string {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	if strings.Trim(stem, ".") == "" {
		return name
	}
	return stem
}

// Display shortens a file name to n runes for status lines
func Display(name string, n int) string {
	runes := []rune(name)
	if len(runes) <= n {
		return name
	}
	return string(runes[:n])
}
