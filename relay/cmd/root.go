package cmd

import (
	"github.com/spf13/cobra"
)

// Version is overridden at build time with -ldflags.
var Version = "0.1.0"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Video translation webhook relay",
	Long: `relay receives encrypted video translation webhooks, decrypts and
classifies them, and broadcasts the resulting events to every connected
real-time client.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml or /etc/relay/config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sealCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(tailCmd)
}
