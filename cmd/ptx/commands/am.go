package commands

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/errors"
)

// AmCmd shows and validates configuration
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Show and validate PTX configuration",
	Long: `Show and validate PTX configuration.

Configuration is merged from these sources, later overriding earlier:
1. Built-in defaults
2. /etc/ptx/am.toml
3. ~/.ptx/am.toml
4. ./am.toml (searched upwards from the working directory)
5. PTX_* environment variables (OPENAI_API_KEY and friends are honored too)

Examples:
  ptx am show                    # Show current configuration
  ptx am show --format json      # Show configuration in JSON format
  ptx am get jobs.workers        # Get specific config value
  ptx am set llm.model gpt-4o    # Write a value to ~/.ptx/am.toml
  ptx am validate                # Validate current configuration`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the merged configuration with API keys and passwords masked",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., llm.model, sink.type)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Write a configuration value",
	Long: `Write a configuration value to ~/.ptx/am.toml, or ./am.toml with --project.
The previous file is kept as am.toml.back1 (up to three backups). A running
server picks up llm.* changes without a restart.`,
	Args: cobra.ExactArgs(2),
	RunE: runAmSet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where configuration is loaded from",
	Long: `Show the configuration files that were merged and, for every key,
the file, environment variable or default that supplied its value.`,
	RunE: runAmWhere,
}

var (
	configFormat string
	setProject   bool
)

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")
	amSetCmd.Flags().BoolVar(&setProject, "project", false, "Write ./am.toml instead of the user config")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amSetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	out, err := formatConfig(masked(cfg), configFormat)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), out)
	return nil
}

// formatConfig renders cfg as toml, json or yaml
func formatConfig(cfg *am.Config, format string) (string, error) {
	switch format {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to JSON")
		}
		return string(data) + "\n", nil

	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to YAML")
		}
		return "# PTX configuration\n" + string(data), nil

	case "toml":
		data, err := toml.Marshal(cfg)
		if err != nil {
			return "", errors.Wrap(err, "failed to marshal config to TOML")
		}
		return "# PTX configuration\n" + string(data), nil

	default:
		return "", errors.NewInvalidInputf("unsupported format: %s (supported: toml, json, yaml)", format)
	}
}

// masked returns a copy of cfg with secrets replaced
func masked(cfg *am.Config) *am.Config {
	c := *cfg
	c.OpenAI.APIKey = maskSecret(c.OpenAI.APIKey)
	c.OpenRouter.APIKey = maskSecret(c.OpenRouter.APIKey)
	c.Anthropic.APIKey = maskSecret(c.Anthropic.APIKey)
	c.Sink.MinIO.SecretKey = maskSecret(c.Sink.MinIO.SecretKey)
	c.Sink.Redis.Password = maskSecret(c.Sink.Redis.Password)
	return &c
}

func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.NewInvalidInputf("configuration key %q not found", key)
	}

	fmt.Fprintln(cmd.OutOrStdout(), v.Get(key))
	return nil
}

func runAmSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], parseConfigValue(args[1])

	path := am.UserConfigPath()
	if setProject {
		path = "am.toml"
	}
	if err := am.SetValue(path, key, value); err != nil {
		return err
	}

	am.Reset()
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to reload config")
	}
	if err := cfg.Validate(); err != nil {
		pterm.Warning.Printf("%s written, but the configuration is now invalid: %v\n", path, err)
		return nil
	}
	pterm.Success.Printf("Set %s in %s\n", key, path)
	return nil
}

// parseConfigValue keeps booleans and numbers typed in the TOML file
func parseConfigValue(s string) interface{} {
	switch s {
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}

	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}

	pterm.Success.Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	files := am.LoadedFiles()
	if len(files) == 0 {
		// LoadedFiles is populated by the first load
		if _, err := am.Load(); err != nil {
			return errors.Wrap(err, "failed to load config")
		}
		files = am.LoadedFiles()
	}

	fmt.Fprintln(out, "Configuration cascade (later overrides earlier):")
	fmt.Fprintln(out, "  1. [DEFAULT]  Built-in defaults")
	fmt.Fprintln(out, "  2. [SYSTEM]   /etc/ptx/am.toml")
	fmt.Fprintf(out, "  3. [USER]     %s\n", am.UserConfigPath())
	fmt.Fprintln(out, "  4. [PROJECT]  ./am.toml (searches up directories)")
	fmt.Fprintf(out, "  5. [ENV]      %s_* environment variables\n", am.EnvPrefix)
	fmt.Fprintln(out)

	if len(files) == 0 {
		fmt.Fprintln(out, "No configuration files found, using defaults and environment")
	} else {
		fmt.Fprintln(out, "Merged files:")
		for _, f := range files {
			fmt.Fprintf(out, "  %s\n", f)
		}
	}
	fmt.Fprintln(out)

	v := am.GetViper()
	rows := pterm.TableData{{"Key", "Value", "Source"}}
	for _, key := range am.AllKeys() {
		value := fmt.Sprintf("%v", v.Get(key))
		if isSecretKey(key) {
			value = maskSecret(value)
		}
		if len(value) > 50 {
			value = value[:47] + "..."
		}
		rows = append(rows, []string{key, value, am.SourceOf(key)})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(rows).Render()
}

func isSecretKey(key string) bool {
	return strings.HasSuffix(key, "api_key") || strings.HasSuffix(key, "secret_key") || strings.HasSuffix(key, "password")
}
