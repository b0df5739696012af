package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/rastal/compiler"
)

var errProblems = errors.New("script has errors")

var checkCmd = &cobra.Command{
	Use:   "check <script>...",
	Short: "Report diagnostics for scripts",
	Long: "Parse and resolve each script. Image names come from -s/-d/-b flags, or from the\n" +
		"nearest project manifest when no flag is given. Exits non-zero on any error.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		failed := false
		for _, path := range args {
			s, err := loadScript(path, flagSources, flagDests, flagBoth)
			if err != nil {
				return err
			}
			problems := checkScript(s)
			renderProblems(os.Stdout, s.path, s.source, problems)
			fmt.Printf("%s %s (%s)\n", labelStyle.Render(s.path+":"), summary(problems), s.origin)
			if problems.HasErrors() {
				failed = true
			}
		}
		if failed {
			return errProblems
		}
		return nil
	},
}

// checkScript resolves a script when bindings are known. Without any it
// only reports syntax problems, since every image would be undeclared.
func checkScript(s *script) compiler.Problems {
	if s.bindings == nil {
		_, problems := compiler.Parse(s.source)
		return problems
	}
	return compiler.Check(s.source, s.bindings)
}
