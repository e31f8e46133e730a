package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/PTX/cmd/ptx/commands"
	"github.com/teranos/PTX/logger"
)

var rootCmd = &cobra.Command{
	Use:   "ptx",
	Short: "PTX - prompt template explorer",
	Long: `PTX - render prompt templates over datasets, call a model and parse the replies.

Templates are Jinja-style prompts with optional frontmatter. Datasets are
JSON or JSONL record lists. A run binds dataset records into a template,
sends the prompt to the configured model and parses the reply as raw text,
a schema-constrained value, or through a small Python-dialect transform.
Batches run a template over every record of a dataset in the background.

Available commands:
  am       - Show and validate configuration
  template - Manage prompt templates
  dataset  - Manage datasets
  run      - Run a template once
  batch    - Run a template over a whole dataset
  job      - Inspect and save batch jobs
  server   - Start the HTTP API server
  mcp      - Serve the pipeline as MCP tools over stdio

Examples:
  ptx template create greet greet.j2
  ptx dataset upload people.jsonl
  ptx run --template greet --bind <dataset-id>:person
  ptx batch --template greet --bind <dataset-id>:person --save greetings
  ptx server`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		// Console output goes to stderr, which keeps stdout clean for results and MCP
		if err := logger.InitializeWithLevel(false, logger.VerbosityToLevel(verbosity)); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Print results as JSON")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.TemplateCmd)
	rootCmd.AddCommand(commands.DatasetCmd)
	rootCmd.AddCommand(commands.RunCmd)
	rootCmd.AddCommand(commands.BatchCmd)
	rootCmd.AddCommand(commands.JobCmd)
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.MCPCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
