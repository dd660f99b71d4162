package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "carremote",
	Short: "Remote control for a Bluetooth car accessory controller",
	Long: `carremote talks to a car accessory controller over Bluetooth RFCOMM,
TCP or a serial port. Without a subcommand it starts the interactive console.`,
	SilenceUsage: true,
	RunE:         runConsole,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	// Persistent flags (available to all commands)
	rootCmd.PersistentFlags().String("config", "", "config file (default $XDG_CONFIG_HOME/carremote/config.yaml)")
	rootCmd.PersistentFlags().String("transport", "", "link transport: rfcomm, tcp, serial or sim")
	rootCmd.PersistentFlags().String("peer", "", "device address (MAC, host:port or serial device)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn or error")

	addRunFlags(rootCmd)
}
