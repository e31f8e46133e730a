package commands

import (
	"github.com/spf13/cobra"

	"github.com/teranos/PTX/logger"
	"github.com/teranos/PTX/mcpserver"
)

// MCPCmd serves the pipeline as MCP tools over stdio
var MCPCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve templates, datasets, runs and batches as MCP tools over stdio",
	Long: `Serve templates, datasets, runs and batches as MCP tools over stdio.

Register it with an MCP client, e.g.:

  {"mcpServers": {"ptx": {"command": "ptx", "args": ["mcp"]}}}

Stdout carries the protocol; logs go to stderr.`,
	Args: cobra.NoArgs,
	RunE: runMCP,
}

func init() {
	MCPCmd.Flags().StringVar(&dbPathFlag, "db-path", "", "Custom database path (overrides config)")
}

func runMCP(cmd *cobra.Command, args []string) error {
	s, err := openSession(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	s.services.Pool.Start()
	logger.ComponentLogger("mcp").Infow("Serving MCP over stdio", "db", s.dbPath)
	return mcpserver.NewMCPServer(s.services).Serve()
}
