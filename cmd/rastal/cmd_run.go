package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sort"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/chazu/rastal"
	"github.com/chazu/rastal/compiler"
	"github.com/chazu/rastal/driver"
	"github.com/chazu/rastal/manifest"
)

var runCmd = &cobra.Command{
	Use:   "run [dir]",
	Short: "Run a project's script over its images",
	Long: "Load the project manifest found in dir (default: the current directory) or above it,\n" +
		"read the source images, evaluate the script and write the destination images.",
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		m, err := manifest.FindAndLoad(dir)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("no %s or %s found in %s or its parents", manifest.TOMLFile, manifest.YAMLFile, dir)
		}

		opts, err := runOptions()
		if err != nil {
			return err
		}
		if !flagQuiet {
			opts = append(opts, rastal.WithListener(progressPrinter()))
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		run, err := rastal.RunProject(ctx, m, opts...)
		if err != nil {
			return reportRunError(m, run, err)
		}

		names := make([]string, 0, len(run.Outputs))
		for name := range run.Outputs {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("%s %s\n", labelStyle.Render(name+":"), run.Outputs[name])
		}
		fmt.Printf("%s job %s\n", okStyle.Render("completed"), run.Job.ID)
		return nil
	},
}

func runOptions() ([]rastal.Option, error) {
	var opts []rastal.Option
	if flagStrategy != "" {
		s, err := compiler.ParseStrategy(flagStrategy)
		if err != nil {
			return nil, err
		}
		opts = append(opts, rastal.WithStrategy(s))
	}
	if flagTileWidth > 0 || flagTileHeight > 0 {
		opts = append(opts, rastal.WithTileSize(flagTileWidth, flagTileHeight))
	}
	return opts, nil
}

// progressPrinter redraws one status line on stderr.
func progressPrinter() driver.Listener {
	return driver.ListenerFuncs{
		Progress: func(id uuid.UUID, fraction float64) {
			fmt.Fprintf(os.Stderr, "\r%s %3.0f%%", labelStyle.Render("running"), fraction*100)
		},
		Completion: func(id uuid.UUID) {
			fmt.Fprintln(os.Stderr)
		},
		Failure: func(id uuid.UUID, cause error) {
			fmt.Fprintln(os.Stderr)
		},
	}
}

// reportRunError renders compile problems in place of the bare error.
func reportRunError(m *manifest.Manifest, run *rastal.ProjectRun, err error) error {
	var ce *compiler.CompileError
	if errors.As(err, &ce) {
		source := ""
		if run != nil && run.Job.CompileResult() != nil && run.Job.CompileResult().Script != nil {
			source = run.Job.CompileResult().Script.Source
		} else if data, rerr := os.ReadFile(m.ScriptPath()); rerr == nil {
			source = string(data)
		}
		renderProblems(os.Stderr, m.Script.Path, source, ce.Problems)
		return errProblems
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("interrupted: %w", err)
	}
	return err
}
