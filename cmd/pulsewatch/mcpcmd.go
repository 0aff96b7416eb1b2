package main

import (
	"github.com/spf13/cobra"

	"github.com/pulsewatch/pulsewatch/internal/mcp"
)

func mcpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve watch management tools over the Model Context Protocol (stdio)",
		Long: "Exposes start_watch and get_watch as MCP tools, backed by a running\n" +
			"pulsewatch instance's HTTP API. Point an MCP client at this command to\n" +
			"manage watches from an LLM session.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			baseURL, _ := cmd.Flags().GetString("url")
			return mcp.New(baseURL, version).ServeStdio()
		},
	}
	cmd.Flags().String("url", "http://127.0.0.1:8080", "Base URL of the running pulsewatch API")
	return cmd
}
