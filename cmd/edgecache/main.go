package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "1.0.0"

// cmdRoot is the base command when no other command has been specified.
var cmdRoot = &cobra.Command{
	Use:   "edgecache",
	Short: "Offline-first edge cache for the Beauty Care PWA",
	Long: `
edgecache sits between Beauty Care pages and their origin, pre-caching the
static shell, degrading navigations to an offline fallback when the origin
is unreachable, and keeping per-user report artifacts available offline
through a message protocol over WebSocket.
`,
	Version:           version,
	SilenceErrors:     true,
	SilenceUsage:      true,
	DisableAutoGenTag: true,

	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(0)
	},
}

func main() {
	if err := cmdRoot.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
