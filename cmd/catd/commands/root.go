// Package commands implements the catd CLI.
package commands

import "github.com/spf13/cobra"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "catd",
	Short: "cat firmware core (host build)",
	Long: `catd runs the cat firmware's core subsystems on a host machine:
the wrap-around flash filesystem, the BLE file-upload and management
services, and the WebAssembly program runner. BLE traffic goes over an
in-process loopback transport, which is enough to develop and test
guest programs without hardware.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML)")
	rootCmd.AddCommand(startCmd)
}
