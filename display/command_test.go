package display

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
)

func newCmd() (*cobra.Command, *cobra.Command) {
	root := &cobra.Command{Use: "ptx"}
	root.PersistentFlags().Bool("json", false, "")
	child := &cobra.Command{Use: "ls", Run: func(*cobra.Command, []string) {}}
	child.Flags().Bool("json", false, "")
	root.AddCommand(child)
	return root, child
}

func TestShouldOutputJSON(t *testing.T) {
	t.Setenv(CallerEnv, "")
	t.Setenv("CLAUDECODE", "")
	t.Setenv("CURSOR_AGENT", "")

	root, child := newCmd()
	assert.False(t, ShouldOutputJSON(child))

	assert.NoError(t, root.PersistentFlags().Set("json", "true"))
	assert.True(t, ShouldOutputJSON(child))

	// An explicit local flag wins over the global one
	assert.NoError(t, child.Flags().Set("json", "false"))
	assert.False(t, ShouldOutputJSON(child))
}

func TestShouldOutputJSON_CallerEnvironment(t *testing.T) {
	t.Setenv(CallerEnv, "llm")
	_, child := newCmd()
	assert.True(t, ShouldOutputJSON(child))
	assert.True(t, ShouldOutputJSON(nil))
}

func TestMarshalJSON_IndentsUnderTest(t *testing.T) {
	data, err := MarshalJSON(map[string]int{"a": 1})
	assert.NoError(t, err)
	assert.Equal(t, "{\n  \"a\": 1\n}", string(data))
}
