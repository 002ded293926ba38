// Linkupd is the connectivity daemon for Linkup appliances.
//
// It keeps the device joined to the user's WiFi network, falls back to
// broadcasting its own provisioning network when the join cannot be
// completed, and serves the control API and web content used to
// configure the device.
//
// Usage:
//
//	linkupd run [flags]
//
// See 'linkupd --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/renshaw/linkup/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "linkupd",
	Short: "Linkup Connectivity Daemon",
	Long: `The connectivity daemon for Linkup appliances.

Joins the configured WiFi network at boot, retries with backoff when the
join fails, and falls back to broadcasting the device's own provisioning
network so the control API stays reachable. Serves the JSON control API
and the device's web content on a single listener.`,
	Version: version.Version,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(credentialsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("linkupd %s\n", version.Full())
	},
}
