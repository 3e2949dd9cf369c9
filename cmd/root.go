package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/arcanaland/cardcheck/internal/card"
	"github.com/arcanaland/cardcheck/internal/config"
	"github.com/arcanaland/cardcheck/internal/logging"
	"github.com/arcanaland/cardcheck/internal/progress"
	"github.com/arcanaland/cardcheck/internal/runner"
)

// version is overridden at build time with -ldflags "-X .../cmd.version=..."
var version = "1.0.0"

// RootCmd represents the cardcheck command
var RootCmd = NewRootCmd()

// NewRootCmd builds the command with fresh flag state
func NewRootCmd() *cobra.Command {
	var (
		depth  int
		dryRun bool
	)

	c := &cobra.Command{
		Use:   "cardcheck [path]",
		Short: "Find PNG character cards and rename them to .card.png",
		Long: `Cardcheck scans a directory tree for PNG images that embed a chat character
card in their text chunks and renames them to NAME.card.png.

Images carrying image-generator metadata (prompt or parameters) are left alone.
Existing names are never overwritten: NAME(1).card.png, NAME(2).card.png and so
on are used instead.

Defaults can be set in $XDG_CONFIG_HOME/cardcheck/config.toml or with
CARDCHECK_* environment variables; flags take precedence.

Examples:
  cardcheck
  cardcheck ~/Downloads --depth 1
  cardcheck ./characters --dry-run`,
		Args:          cobra.MaximumNArgs(1),
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := card.CheckDecoder(); err != nil {
				return fmt.Errorf("%v\nThis build cannot read PNG files; reinstall with: go install github.com/arcanaland/cardcheck@latest", err)
			}

			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("depth") {
				cfg.Depth = depth
			}

			root := "."
			if len(args) == 1 {
				root = args[0]
			}

			stderr := cmd.ErrOrStderr()
			configureColor(cfg.Color, stderr)

			log := logging.New(stderr, cfg.Verbose)
			defer log.Sync()

			opts := runner.Options{
				Root:     root,
				MaxDepth: cfg.Depth,
				DryRun:   dryRun,
				Progress: progress.Options{
					Style:        cfg.ProgressStyle(),
					Capability:   probe(stderr),
					GradientFrom: cfg.Progress.GradientFrom,
					GradientTo:   cfg.Progress.GradientTo,
				},
			}
			_, err = runner.New(opts, stderr, log).Run()
			return err
		},
	}

	c.Flags().IntVar(&depth, "depth", config.DefaultDepth, "Max folder depth")
	c.Flags().BoolVar(&dryRun, "dry-run", false, "Simulate without renaming")
	return c
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return RootCmd.Execute()
}

// probe reports terminal support only when w is a real file
func probe(w io.Writer) progress.Capability {
	if f, ok := w.(*os.File); ok {
		return progress.Probe(f)
	}
	return progress.Capability{}
}

// configureColor sets fatih/color's global switch for the status stream
func configureColor(mode string, w io.Writer) {
	switch mode {
	case config.ColorAlways:
		color.NoColor = false
	case config.ColorNever:
		color.NoColor = true
	default:
		f, ok := w.(*os.File)
		color.NoColor = os.Getenv("NO_COLOR") != "" || !ok || !term.IsTerminal(int(f.Fd()))
	}
}
