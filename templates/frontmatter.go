package templates

import (
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/teranos/PTX/errors"
)

// Document is a template split into its frontmatter metadata and body
type Document struct {
	Metadata Metadata
	Body     string
}

// Metadata holds model defaults declared in a template's frontmatter.
// Request values take precedence over these.
type Metadata struct {
	Description  string   `yaml:"description" toml:"description"`
	Provider     string   `yaml:"provider,omitempty" toml:"provider"`
	Model        string   `yaml:"model,omitempty" toml:"model"`
	Temperature  *float64 `yaml:"temperature,omitempty" toml:"temperature"`
	MaxTokens    *int     `yaml:"max_tokens,omitempty" toml:"max_tokens"`
	SystemPrompt string   `yaml:"system_prompt,omitempty" toml:"system_prompt"`
	Variables    []string `yaml:"variables,omitempty" toml:"variables"` // context keys the body expects
}

// MissingVariables returns the declared variables that data does not
// provide. For a dotted name only the first segment is looked up.
func (m Metadata) MissingVariables(data map[string]any) []string {
	var missing []string
	for _, v := range m.Variables {
		key, _, _ := strings.Cut(v, ".")
		if _, ok := data[strings.TrimSpace(key)]; !ok {
			missing = append(missing, v)
		}
	}
	return missing
}

const (
	yamlDelim = "---"
	tomlDelim = "+++"
)

// ParseFrontmatter splits content into metadata and body. Frontmatter is only
// recognized when the first line is exactly "---" (YAML) or "+++" (TOML) and a
// matching closing line exists; otherwise the whole content is the body.
//
//	---
//	model: gpt-4o-mini
//	temperature: 0.2
//	---
//	Summarize {{ text }}
func ParseFrontmatter(content string) (*Document, error) {
	delim, header, body, ok := splitFrontmatter(content)
	if !ok {
		return &Document{Body: content}, nil
	}

	var meta Metadata
	switch delim {
	case yamlDelim:
		if err := yaml.Unmarshal([]byte(header), &meta); err != nil {
			return nil, errors.Wrap(err, "failed to parse frontmatter YAML")
		}
	case tomlDelim:
		if _, err := toml.Decode(header, &meta); err != nil {
			return nil, errors.Wrap(err, "failed to parse frontmatter TOML")
		}
	}

	if err := meta.validate(); err != nil {
		return nil, errors.Wrap(err, "invalid frontmatter")
	}

	return &Document{Metadata: meta, Body: body}, nil
}

func splitFrontmatter(content string) (delim, header, body string, ok bool) {
	content = strings.TrimPrefix(content, "\ufeff")
	for _, d := range []string{yamlDelim, tomlDelim} {
		first, rest, found := strings.Cut(content, "\n")
		if !found || strings.TrimRight(first, "\r") != d {
			continue
		}

		// Scan for the closing delimiter line
		offset := 0
		for offset <= len(rest) {
			line, after, more := strings.Cut(rest[offset:], "\n")
			if strings.TrimRight(line, "\r") == d {
				header = rest[:offset]
				if more {
					return d, header, after, true
				}
				return d, header, "", true
			}
			if !more {
				break
			}
			offset += len(line) + 1
		}
	}
	return "", "", content, false
}

func (m *Metadata) validate() error {
	if m.Temperature != nil && (*m.Temperature < 0.0 || *m.Temperature > 2.0) {
		return errors.Newf("temperature must be between 0.0 and 2.0, got %g", *m.Temperature)
	}
	if m.MaxTokens != nil && *m.MaxTokens < 1 {
		return errors.Newf("max_tokens must be positive, got %d", *m.MaxTokens)
	}
	return nil
}
