// Package runner scans a directory tree and renames the character cards it finds.
package runner

import (
	"errors"
	"fmt"
	_ "image/png" // decoder used by card.Classify, verified by card.CheckDecoder
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"go.uber.org/zap"

	"github.com/arcanaland/cardcheck/internal/card"
	"github.com/arcanaland/cardcheck/internal/logging"
	"github.com/arcanaland/cardcheck/internal/progress"
	"github.com/arcanaland/cardcheck/internal/rename"
	"github.com/arcanaland/cardcheck/internal/scan"
)

// ProgressLabel describes the scan in progress output
const ProgressLabel = "Scanning PNGs"

// displayRunes is how much of the original file name a status line shows
const displayRunes = 20

var (
	dryRunColor  = color.New(color.FgYellow, color.Bold)
	renamedColor = color.New(color.FgGreen)
	wouldColor   = color.New(color.FgCyan)
	noticeColor  = color.New(color.FgYellow)
)

// Options configure a run
type Options struct {
	Root     string
	MaxDepth int
	DryRun   bool
	Progress progress.Options
}

// Summary represents the outcome of a run
type Summary struct {
	Root       string
	MaxDepth   int
	DryRun     bool
	Candidates int
	Renamed    []rename.Result
	Failed     []error
}

// Count returns the number of files renamed, or that would be renamed on a dry run
func (s Summary) Count() int {
	return len(s.Renamed)
}

// Runner executes one scan
type Runner struct {
	opts Options
	out  io.Writer
	log  *zap.Logger

	// classify decides whether a file is a card; replaced in tests
	classify func(path string) bool
}

// New returns a runner writing status lines to out
func New(opts Options, out io.Writer, log *zap.Logger) *Runner {
	r := &Runner{opts: opts, out: out, log: log}
	r.classify = r.classifyFile
	return r
}

// RenameCards scans root and renames every character card found within maxDepth.
// It reports progress on stderr and returns how many files were (or would be) renamed.
func RenameCards(root string, maxDepth int, dryRun bool) (int, error) {
	opts := Options{
		Root:     root,
		MaxDepth: maxDepth,
		DryRun:   dryRun,
		Progress: progress.Options{Style: progress.StyleAuto, Capability: progress.Probe(os.Stderr)},
	}
	log := logging.New(os.Stderr, false)
	defer log.Sync()

	sum, err := New(opts, os.Stderr, log).Run()
	return sum.Count(), err
}

// Run walks the tree, classifies each candidate and renames the cards.
// A failed rename is logged and the run continues; the failures are returned
// together once every candidate has been seen.
func (r *Runner) Run() (Summary, error) {
	root, err := filepath.Abs(r.opts.Root)
	if err != nil {
		return Summary{}, fmt.Errorf("resolving %s: %w", r.opts.Root, err)
	}
	sum := Summary{Root: root, MaxDepth: r.opts.MaxDepth, DryRun: r.opts.DryRun}

	if r.opts.DryRun {
		dryRunColor.Fprint(r.out, "DRY RUN - ")
	}
	fmt.Fprintf(r.out, "Scanning: %s (max depth: %d)\n", root, r.opts.MaxDepth)

	// an unusable root has no candidates
	if err := checkRoot(root); err != nil {
		r.log.Warn("nothing to scan", zap.String("root", root), zap.Error(err))
		r.finish(sum)
		return sum, nil
	}

	files, err := scan.Candidates(root, r.opts.MaxDepth, r.log)
	if err != nil {
		return sum, fmt.Errorf("scanning %s: %w", root, err)
	}
	sum.Candidates = len(files)
	r.log.Debug("candidates collected", zap.Int("count", len(files)))

	bar := progress.New(r.out, ProgressLabel, len(files), r.opts.Progress)
	renamer := rename.NewRenamer(r.opts.DryRun)

	for _, path := range files {
		bar.Advance()
		if !r.classify(path) {
			continue
		}

		res, err := renamer.Apply(path)
		if err != nil {
			r.log.Error("rename failed", zap.String("from", res.From), zap.String("to", res.To), zap.Error(err))
			sum.Failed = append(sum.Failed, err)
			continue
		}
		r.report(res)
		sum.Renamed = append(sum.Renamed, res)
	}

	r.finish(sum)

	if len(sum.Failed) > 0 {
		return sum, fmt.Errorf("%d rename(s) failed: %w", len(sum.Failed), errors.Join(sum.Failed...))
	}
	return sum, nil
}

func checkRoot(root string) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", root)
	}
	return nil
}

func (r *Runner) classifyFile(path string) bool {
	v, err := card.Classify(path)
	if err != nil {
		r.log.Debug("not a card", zap.String("path", path), zap.Error(err))
		return false
	}
	r.log.Debug("classified", zap.String("path", path), zap.Bool("card", v.IsCard), zap.String("reason", v.Reason))
	return v.IsCard
}

func (r *Runner) report(res rename.Result) {
	action := renamedColor.Sprint("Renamed")
	if res.DryRun {
		action = wouldColor.Sprint("Would rename")
	}
	name := rename.Display(filepath.Base(res.From), displayRunes)
	fmt.Fprintf(r.out, "%s: %s... → %s\n", action, name, filepath.Base(res.To))
}

func (r *Runner) finish(sum Summary) {
	switch {
	case sum.Count() == 0 && len(sum.Failed) == 0:
		noticeColor.Fprintln(r.out, "No cards found!")
	case sum.DryRun:
		fmt.Fprintf(r.out, "Dry run complete - would rename %d files\n", sum.Count())
	default:
		renamedColor.Fprintf(r.out, "Renamed %d files\n", sum.Count())
	}
}
