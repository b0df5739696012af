package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chazu/rastal/driver"
	"github.com/chazu/rastal/journal"
	"github.com/chazu/rastal/manifest"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs [dir]",
	Short: "List the jobs recorded in a project's journal",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		m, err := manifest.FindAndLoad(dir)
		if err != nil {
			return err
		}
		if m == nil || m.JournalPath() == "" {
			return fmt.Errorf("no journal configured for %s", dir)
		}

		j, err := journal.Open(m.JournalPath())
		if err != nil {
			return err
		}
		defer j.Close()

		jobs, err := j.Jobs()
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			fmt.Println("no jobs recorded")
			return nil
		}
		for _, s := range jobs {
			fmt.Println(formatSummary(s))
		}
		return nil
	},
}

func formatSummary(s journal.Summary) string {
	state := s.State.String()
	switch s.State {
	case driver.StateCompleted:
		state = okStyle.Render(state)
	case driver.StateFailed:
		state = errorStyle.Render(state)
	}
	line := fmt.Sprintf("%s  %-9s %3.0f%%  %s", s.JobID, state, s.Progress*100,
		s.Updated.Format("2006-01-02 15:04:05"))
	if s.Cause != "" {
		line += "  " + s.Cause
	}
	return line
}
