// Command rastal checks, disassembles and runs raster-algebra scripts.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const appName = "rastal"

var (
	flagVerbose    int
	flagSources    []string
	flagDests      []string
	flagBoth       []string
	flagStrategy   string
	flagTileWidth  int
	flagTileHeight int
	flagQuiet      bool
)

func main() {
	rootCmd.AddCommand(checkCmd, disasmCmd, runCmd, jobsCmd, lspCmd)

	rootCmd.PersistentFlags().CountVarP(&flagVerbose, "verbose", "v",
		"increase log verbosity (repeatable)")

	for _, cmd := range []*cobra.Command{checkCmd, disasmCmd} {
		cmd.Flags().StringArrayVarP(&flagSources, "source", "s", nil,
			"bind a source image name (repeatable)")
		cmd.Flags().StringArrayVarP(&flagDests, "dest", "d", nil,
			"bind a destination image name (repeatable)")
		cmd.Flags().StringArrayVarP(&flagBoth, "both", "b", nil,
			"bind an image name as source and destination (repeatable)")
	}
	runCmd.Flags().StringVar(&flagStrategy, "strategy", "",
		"override the manifest's strategy (bytecode or tree)")
	runCmd.Flags().IntVar(&flagTileWidth, "tile-width", 0, "override the tile width")
	runCmd.Flags().IntVar(&flagTileHeight, "tile-height", 0, "override the tile height")
	runCmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "do not print progress")

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:"), err.Error())
		os.Exit(1)
	}
}
