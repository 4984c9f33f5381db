package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "nexushubd",
	Short: "Central MCP hub daemon",
	Long: `nexushubd is a central Model Context Protocol hub.

It supervises a catalog of local MCP servers, bridges stdio/http/container
transports into a single protocol engine, routes messages between servers
and remote clients, and exposes an access-controlled administrative API.`,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "nexushub.jsonc", "path to the hub config file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(versionCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
