// Package commands implements connmand's CLI: the serve command that
// runs the daemon, and read-only operator commands against the
// persisted settings and provisioning stores.
package commands

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:           "connmand",
	Short:         "Connection (packet-data) core daemon",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command; called once from main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: /etc/connmand/connmand.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(templatesCmd)
	rootCmd.AddCommand(contextsCmd)
}
