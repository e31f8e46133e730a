package run

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/teranos/PTX/ai/model"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/internal/util"
	"github.com/teranos/PTX/run/bind"
	"github.com/teranos/PTX/run/parse"
)

func newExecutor(t *testing.T, tmpl memTemplates, data memDatasets, factory model.Factory) *Executor {
	t.Helper()
	return NewExecutor(ExecutorConfig{Templates: tmpl, Datasets: data, Models: factory})
}

func TestExecute_InlineTemplate(t *testing.T) {
	e := newExecutor(t, nil, memDatasets{"ds": xRecords(2)}, &model.StubFactory{})

	res := e.Execute(context.Background(), Request{
		TemplateText: "val={{x}}",
		Bindings:     []bind.Binding{{SourceID: "ds", Scope: bind.ScopeRecord}},
	}, nil)

	assert.False(t, res.Failed(), res.Error)
	assert.Equal(t, "val=1", res.RawResponse)
	assert.Equal(t, "val=1", res.ParsedResponse)
}

func TestExecute_TemplateIDWins(t *testing.T) {
	e := newExecutor(t, memTemplates{"t1": "stored {{ name }}"}, memDatasets{}, &model.StubFactory{})

	res := e.Execute(context.Background(), Request{
		TemplateID:   "t1",
		TemplateText: "inline",
	}, nil)
	assert.Equal(t, "stored ", res.RawResponse)
}

func TestExecute_EmptyTemplate(t *testing.T) {
	stub := &model.Stub{}
	e := newExecutor(t, nil, nil, &model.StubFactory{Model: stub})

	res := e.Execute(context.Background(), Request{}, nil)
	assert.False(t, res.Failed())
	assert.Equal(t, []string{""}, stub.Prompts())
}

func TestExecute_Failures(t *testing.T) {
	row := 7
	tests := []struct {
		name string
		req  Request
		kind errors.Kind
	}{
		{"unknown template", Request{TemplateID: "nope"}, errors.KindTemplateNotFound},
		{"unknown dataset", Request{Bindings: []bind.Binding{{SourceID: "gone", Scope: bind.ScopeGlobal}}}, errors.KindDatasetNotFound},
		{"row out of range", Request{Bindings: []bind.Binding{{SourceID: "ds", Scope: bind.ScopeGlobal, Row: &row}}}, errors.KindInvalidRowIndex},
		{"render error", Request{TemplateText: "{% if %}"}, errors.KindTemplateRenderError},
		{"bad frontmatter", Request{TemplateText: "---\ntemperature: hot\n---\nbody"}, errors.KindTemplateRenderError},
		{"unknown parser", Request{Parser: &parse.Spec{Type: "regex"}}, errors.KindInvalidInput},
		{"bad transform", Request{Parser: &parse.Spec{Type: parse.TypePython, TransformCode: "x = 1"}}, errors.KindInvalidTransformCode},
		{"bad schema", Request{Parser: &parse.Spec{Type: parse.TypeStructured, SchemaDefinition: "{"}}, errors.KindSchemaCompileError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newExecutor(t, memTemplates{}, memDatasets{"ds": xRecords(2)}, &model.StubFactory{})
			res := e.Execute(context.Background(), tt.req, nil)
			require.True(t, res.Failed())
			assert.Equal(t, tt.kind, res.ErrorKind)
			assert.NotEmpty(t, res.Error)
		})
	}
}

func TestExecute_ModelFactoryError(t *testing.T) {
	e := newExecutor(t, nil, nil, &model.StubFactory{Err: errors.New("OPENAI_API_KEY not set")})

	res := e.Execute(context.Background(), Request{TemplateText: "hi"}, nil)
	assert.Equal(t, errors.KindModelError, res.ErrorKind)
	assert.Contains(t, res.Error, "OPENAI_API_KEY")
}

func TestExecute_PythonScenario(t *testing.T) {
	stub := &model.Stub{CompleteFunc: func(context.Context, string) (string, error) { return "hello", nil }}
	e := newExecutor(t, nil, nil, &model.StubFactory{Model: stub})

	res := e.Execute(context.Background(), Request{
		TemplateText: "say hello",
		Parser:       &parse.Spec{Type: parse.TypePython, TransformCode: "def parse(t): return {\"len\": len(t)}"},
	}, nil)

	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, "hello", res.RawResponse)
	assert.Equal(t, map[string]any{"len": int64(5)}, res.ParsedResponse)
}

func TestExecute_TransformErrorKeepsRaw(t *testing.T) {
	stub := &model.Stub{CompleteFunc: func(context.Context, string) (string, error) { return "abc", nil }}
	e := newExecutor(t, nil, nil, &model.StubFactory{Model: stub})

	res := e.Execute(context.Background(), Request{
		Parser: &parse.Spec{Type: parse.TypePython, TransformCode: "def parse(t): return int(t)"},
	}, nil)

	assert.Equal(t, errors.KindTransformExecutionError, res.ErrorKind)
	assert.Equal(t, "abc", res.RawResponse)
	assert.Nil(t, res.ParsedResponse)
}

func TestExecute_FrontmatterDefaults(t *testing.T) {
	factory := &model.StubFactory{}
	tmpl := memTemplates{"t": "---\nmodel: gpt-4o\ntemperature: 0.1\nsystem_prompt: be brief\n---\nQ: {{ q }}"}
	e := newExecutor(t, tmpl, memDatasets{"ds": records(map[string]any{"q": "why"})}, factory)

	temp := 0.9
	res := e.Execute(context.Background(), Request{
		TemplateID: "t",
		Bindings:   []bind.Binding{{SourceID: "ds", Scope: bind.ScopeRecord}},
		LLM:        &model.Config{Provider: "openrouter", Temperature: &temp},
	}, nil)
	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, "Q: why", res.RawResponse)

	configs := factory.Configs()
	require.Len(t, configs, 1)
	assert.Equal(t, "openrouter", configs[0].Provider)
	assert.Equal(t, "gpt-4o", configs[0].Model)
	assert.Equal(t, util.Ptr(0.9), configs[0].Temperature)
	assert.Equal(t, "be brief", configs[0].SystemPrompt)
}

func TestExecute_WarnsOnMissingVariables(t *testing.T) {
	tmpl := memTemplates{"t": "---\nvariables: [q, audience]\n---\nQ: {{ q }} for {{ audience }}"}
	e := newExecutor(t, tmpl, memDatasets{"ds": records(map[string]any{"q": "why"})}, &model.StubFactory{})
	core, logs := observer.New(zapcore.WarnLevel)
	e.log = zap.New(core).Sugar()

	res := e.Execute(context.Background(), Request{
		TemplateID: "t",
		Bindings:   []bind.Binding{{SourceID: "ds", Scope: bind.ScopeRecord}},
	}, nil)
	require.False(t, res.Failed(), res.Error)
	assert.Equal(t, "Q: why for ", res.RawResponse)

	warnings := logs.FilterMessage("Template variables missing from context").All()
	require.Len(t, warnings, 1)
	assert.Equal(t, []interface{}{"audience"}, warnings[0].ContextMap()["missing"])
}

func TestExecute_CurrentRecordOverridesFallback(t *testing.T) {
	e := newExecutor(t, nil, memDatasets{"ds": xRecords(3)}, &model.StubFactory{})

	res := e.Execute(context.Background(), Request{
		TemplateText: "x={{x}}",
		Bindings:     []bind.Binding{{SourceID: "ds", Scope: bind.ScopeRecord}},
	}, map[string]any{"x": int64(42)})
	assert.Equal(t, "x=42", res.RawResponse)
}

func TestExecute_Metrics(t *testing.T) {
	metrics := NewMetrics("ptx", prometheus.NewRegistry())
	e := NewExecutor(ExecutorConfig{Templates: memTemplates{}, Datasets: memDatasets{}, Models: &model.StubFactory{}, Metrics: metrics})

	e.Execute(context.Background(), Request{TemplateText: "ok"}, nil)
	e.Execute(context.Background(), Request{TemplateID: "missing"}, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("raw", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RunsTotal.WithLabelValues("raw", "TemplateNotFound")))
}
