package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var socketPath string

var rootCmd = &cobra.Command{
	Use:   "sbcctl",
	Short: "Debug console and IPC client for sbcd",
	Long: `sbcctl talks to a running sbcd instance over its IPC socket: it can
submit codes and queries in Command mode, watch the object model in
Subscribe mode, and run an interactive console. The separate "flash"
subcommand instead opens the SPI device directly, for firmware updates
while sbcd is not running.`,
	Version: "1.0.0",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&socketPath, "socket", "/run/sbcd/sbcd.sock", "path to the sbcd IPC socket")
	rootCmd.AddCommand(codeCmd, flushCmd, getCmd, watchCmd, consoleCmd, flashCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
