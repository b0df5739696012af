package main

import (
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"

	_ "github.com/tliron/commonlog/simple"
)

var rootCmd = &cobra.Command{
	Use:   appName + " <command>",
	Short: "Raster-algebra script compiler and runner",
	Long: appName + " compiles per-pixel raster-algebra scripts and evaluates them over images.\n\n" +
		"A project is a directory holding rastal.toml (or rastal.yaml) that names the script\n" +
		"and binds its image names to files.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		commonlog.Configure(flagVerbose, nil)
	},
}
