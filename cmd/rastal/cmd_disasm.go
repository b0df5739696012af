package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chazu/rastal/compiler"
)

var disasmCmd = &cobra.Command{
	Use:   "disasm <script>",
	Short: "Print the bytecode of a script",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := loadScript(args[0], flagSources, flagDests, flagBoth)
		if err != nil {
			return err
		}
		result, err := compiler.Compile(s.source, s.bindings, compiler.WithStrategy(compiler.StrategyBytecode))
		var ce *compiler.CompileError
		if errors.As(err, &ce) {
			renderProblems(os.Stderr, s.path, s.source, ce.Problems)
			return errProblems
		}
		if err != nil {
			return err
		}
		renderProblems(os.Stderr, s.path, s.source, result.Problems.Warnings())
		fmt.Print(result.Program.Disassemble())
		return nil
	},
}
