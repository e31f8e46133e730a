package templates

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFrontmatter_YAML(t *testing.T) {
	doc, err := ParseFrontmatter("---\nmodel: gpt-4o-mini\ntemperature: 0.2\nmax_tokens: 200\n---\nHello {{ name }}\n")
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", doc.Metadata.Model)
	require.NotNil(t, doc.Metadata.Temperature)
	assert.Equal(t, 0.2, *doc.Metadata.Temperature)
	require.NotNil(t, doc.Metadata.MaxTokens)
	assert.Equal(t, 200, *doc.Metadata.MaxTokens)
	assert.Equal(t, "Hello {{ name }}\n", doc.Body)
}

func TestParseFrontmatter_TOML(t *testing.T) {
	doc, err := ParseFrontmatter("+++\nprovider = \"anthropic\"\nmodel = \"claude-3-5-haiku-latest\"\nsystem_prompt = \"Be brief.\"\n+++\nQ: {{ q }}")
	require.NoError(t, err)

	assert.Equal(t, "anthropic", doc.Metadata.Provider)
	assert.Equal(t, "claude-3-5-haiku-latest", doc.Metadata.Model)
	assert.Equal(t, "Be brief.", doc.Metadata.SystemPrompt)
	assert.Equal(t, "Q: {{ q }}", doc.Body)
}

func TestParseFrontmatter_NoFrontmatter(t *testing.T) {
	for _, content := range []string{
		"val={{x}}",
		"intro\n---\nnot frontmatter\n---\n",
		"---\nunterminated: true\n",
		"",
	} {
		doc, err := ParseFrontmatter(content)
		require.NoError(t, err)
		assert.Equal(t, content, doc.Body)
		assert.Empty(t, doc.Metadata.Model)
	}
}

func TestParseFrontmatter_Invalid(t *testing.T) {
	_, err := ParseFrontmatter("---\ntemperature: 3.5\n---\nbody")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "temperature must be between")

	_, err = ParseFrontmatter("---\nmodel: [unclosed\n---\nbody")
	require.Error(t, err)
}

func TestMetadata_MissingVariables(t *testing.T) {
	doc, err := ParseFrontmatter("---\nvariables: [name, user.email, topic]\n---\nHi {{ name }}")
	require.NoError(t, err)
	require.Equal(t, []string{"name", "user.email", "topic"}, doc.Metadata.Variables)

	missing := doc.Metadata.MissingVariables(map[string]any{"name": "Ada", "user": map[string]any{}})
	assert.Equal(t, []string{"topic"}, missing)
	assert.Empty(t, Metadata{}.MissingVariables(nil))
}
