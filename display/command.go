// Package display renders command output for people and for programs.
package display

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// CallerEnv set to "llm" switches output to compact JSON
const CallerEnv = "PTX_CALLER"

// ShouldOutputJSON reports whether a command should print JSON instead of
// tables: an explicit --json flag wins, then the global flag, then the
// caller environment.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return IsLLMEnvironment()
	}

	if f := cmd.Flags().Lookup("json"); f != nil && f.Changed {
		jsonFlag, _ := cmd.Flags().GetBool("json")
		return jsonFlag
	}

	if globalFlag, err := cmd.Root().PersistentFlags().GetBool("json"); err == nil && globalFlag {
		return true
	}

	return IsLLMEnvironment()
}

// IsLLMEnvironment reports whether the CLI is driven by a coding agent
// rather than a person at a terminal.
func IsLLMEnvironment() bool {
	if os.Getenv(CallerEnv) == "llm" {
		return true
	}
	return os.Getenv("CLAUDECODE") != "" || os.Getenv("CURSOR_AGENT") != ""
}

// OutputJSON marshals and prints v using MarshalJSON
func OutputJSON(v interface{}) error {
	data, err := MarshalJSON(v)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
