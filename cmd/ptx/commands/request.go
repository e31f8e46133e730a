package commands

import (
	"context"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teranos/PTX/ai/model"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/run"
	"github.com/teranos/PTX/run/bind"
	"github.com/teranos/PTX/run/parse"
)

// requestFlags are the run and batch flags that build a run.Request
type requestFlags struct {
	template      string
	text          string
	textFile      string
	bindings      []string
	globals       []string
	parser        string
	schemaFile    string
	transformFile string
	provider      string
	model         string
	temperature   float64
	maxTokens     int
	systemPrompt  string
}

func (f *requestFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVarP(&f.template, "template", "t", "", "Stored template id or name")
	fl.StringVar(&f.text, "text", "", "Inline template source")
	fl.StringVar(&f.textFile, "text-file", "", "Read the template source from a file (- for stdin)")
	fl.StringArrayVarP(&f.bindings, "bind", "b", nil, "Record binding <dataset>:<key>, repeatable")
	fl.StringArrayVarP(&f.globals, "global", "g", nil, "Global binding <dataset>:<key>[@row], repeatable")
	fl.StringVarP(&f.parser, "parser", "p", string(parse.TypeRaw), "Parser: raw, structured, python")
	fl.StringVar(&f.schemaFile, "schema", "", "Schema file for the structured parser (JSON or YAML)")
	fl.StringVar(&f.transformFile, "transform", "", "File defining parse(text) for the python parser")
	fl.StringVar(&f.provider, "provider", "", "Model provider (openai, openrouter, anthropic, local)")
	fl.StringVarP(&f.model, "model", "m", "", "Model name")
	fl.Float64Var(&f.temperature, "temperature", 0, "Sampling temperature")
	fl.IntVar(&f.maxTokens, "max-tokens", 0, "Maximum tokens in the reply")
	fl.StringVar(&f.systemPrompt, "system", "", "System prompt")
}

// parseBinding reads "<dataset>:<key>" and, for global bindings, an
// optional "@<row>" suffix.
func parseBinding(spec string, scope bind.Scope) (bind.Binding, error) {
	b := bind.Binding{Scope: scope}

	if scope == bind.ScopeGlobal {
		if at := strings.LastIndex(spec, "@"); at >= 0 {
			row, err := strconv.Atoi(spec[at+1:])
			if err != nil || row < 0 {
				return b, errors.NewInvalidInputf("binding %q: row must be a non-negative integer", spec)
			}
			b.Row = &row
			spec = spec[:at]
		}
	}

	source, key, ok := strings.Cut(spec, ":")
	if !ok || source == "" || key == "" {
		return b, errors.NewInvalidInputf("binding %q must look like <dataset>:<key>", spec)
	}
	b.SourceID = source
	b.ContextKey = key
	return b, nil
}

// build assembles the request, resolving template and dataset names to ids
func (f *requestFlags) build(ctx context.Context, cmd *cobra.Command, s *session) (run.Request, error) {
	var req run.Request

	switch {
	case f.template != "":
		t, err := resolveTemplate(ctx, s.services.Templates, f.template)
		if err != nil {
			return req, err
		}
		req.TemplateID = t.ID
	case f.textFile != "":
		text, err := readSource(cmd.InOrStdin(), f.textFile)
		if err != nil {
			return req, err
		}
		req.TemplateText = text
	default:
		req.TemplateText = f.text
	}

	req.Bindings = []bind.Binding{}
	for _, spec := range f.bindings {
		b, err := parseBinding(spec, bind.ScopeRecord)
		if err != nil {
			return req, err
		}
		req.Bindings = append(req.Bindings, b)
	}
	for _, spec := range f.globals {
		b, err := parseBinding(spec, bind.ScopeGlobal)
		if err != nil {
			return req, err
		}
		req.Bindings = append(req.Bindings, b)
	}
	for i := range req.Bindings {
		id, err := resolveDataset(ctx, s.services.Datasets, req.Bindings[i].SourceID)
		if err != nil {
			return req, err
		}
		req.Bindings[i].SourceID = id
	}

	spec := &parse.Spec{Type: parse.Type(f.parser)}
	if f.schemaFile != "" {
		schema, err := readSource(cmd.InOrStdin(), f.schemaFile)
		if err != nil {
			return req, err
		}
		spec.SchemaDefinition = schema
	}
	if f.transformFile != "" {
		code, err := readSource(cmd.InOrStdin(), f.transformFile)
		if err != nil {
			return req, err
		}
		spec.TransformCode = code
	}
	if _, err := spec.Strategy(); err != nil {
		return req, err
	}
	req.Parser = spec

	llm := &model.Config{
		Provider:     f.provider,
		Model:        f.model,
		SystemPrompt: f.systemPrompt,
	}
	if cmd.Flags().Changed("temperature") {
		t := f.temperature
		llm.Temperature = &t
	}
	if cmd.Flags().Changed("max-tokens") {
		n := f.maxTokens
		llm.MaxTokens = &n
	}
	req.LLM = llm

	return req, nil
}
