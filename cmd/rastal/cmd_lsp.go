package main

import (
	"github.com/spf13/cobra"

	"github.com/chazu/rastal/server"
)

var lspCmd = &cobra.Command{
	Use:   "lsp",
	Short: "Serve editor diagnostics, completion and hover over stdio",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return server.NewLSP(nil).Run()
	},
}
