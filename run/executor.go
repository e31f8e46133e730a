// Package run executes the prompt pipeline: bind dataset values, render the
// template, call the model and parse its reply. Executor does this once;
// Engine does it for every record of a dataset as a background job.
package run

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/teranos/PTX/ai/model"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/logger"
	"github.com/teranos/PTX/run/bind"
	"github.com/teranos/PTX/run/parse"
	"github.com/teranos/PTX/run/render"
	"github.com/teranos/PTX/templates"
)

// TemplateSource returns template content by id, failing with a
// TemplateNotFound error for unknown ids.
type TemplateSource interface {
	Content(ctx context.Context, id string) (string, error)
}

// Request is one pipeline invocation. TemplateID wins over TemplateText
// when both are set; with neither the template is empty.
type Request struct {
	TemplateID   string         `json:"template_id,omitempty"`
	TemplateText string         `json:"template_text,omitempty"`
	Bindings     []bind.Binding `json:"datasource_bindings"`
	Parser       *parse.Spec    `json:"parser,omitempty"`
	LLM          *model.Config  `json:"llm,omitempty"`
}

// Result is what a run produced. Error is set instead of returning an error
// so a failed run still reports whatever response it got.
type Result struct {
	RawResponse    string      `json:"raw_response"`
	ParsedResponse any         `json:"parsed_response"`
	Error          string      `json:"error,omitempty"`
	ErrorKind      errors.Kind `json:"error_kind,omitempty"`
}

// Failed reports whether the run ended in an error
func (r Result) Failed() bool {
	return r.Error != ""
}

func failure(raw string, err error) Result {
	return Result{RawResponse: raw, Error: err.Error(), ErrorKind: errors.KindOf(err)}
}

// Executor runs single requests
type Executor struct {
	templates TemplateSource
	binder    *bind.Binder
	renderer  *render.Renderer
	parser    *parse.Parser
	models    model.Factory
	metrics   *Metrics
	log       *zap.SugaredLogger
}

// ExecutorConfig wires an Executor's collaborators
type ExecutorConfig struct {
	Templates TemplateSource
	Datasets  bind.DatasetSource
	Models    model.Factory
	Metrics   *Metrics // optional
	MaxSteps  uint64   // transform step budget (0 = default)
}

// NewExecutor creates an Executor
func NewExecutor(cfg ExecutorConfig) *Executor {
	return &Executor{
		templates: cfg.Templates,
		binder:    bind.New(cfg.Datasets),
		renderer:  render.New(),
		parser:    parse.New(cfg.MaxSteps),
		models:    cfg.Models,
		metrics:   cfg.Metrics,
		log:       logger.ComponentLogger("run"),
	}
}

// Execute runs req once. current is the batch record for record-scoped
// bindings, or nil for a solo run. It never returns an error; failures are
// reported in the Result.
func (e *Executor) Execute(ctx context.Context, req Request, current any) Result {
	return e.execute(ctx, req, current, model.Tracking{
		Operation:  "run",
		EntityType: "template",
		EntityID:   req.TemplateID,
	})
}

func (e *Executor) execute(ctx context.Context, req Request, current any, tracking model.Tracking) Result {
	start := time.Now()
	parserName := string(parse.TypeRaw)
	if req.Parser != nil && req.Parser.Type != "" {
		parserName = string(req.Parser.Type)
	}

	result := e.pipeline(ctx, req, current, tracking)

	e.metrics.observeRun(parserName, result.ErrorKind, time.Since(start))
	log := e.log.With(logger.FieldsFromContext(ctx)...).With(
		logger.FieldTemplateID, req.TemplateID,
		logger.FieldParser, parserName,
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	if result.Failed() {
		log.Debugw("Run failed", logger.FieldErrorKind, result.ErrorKind, logger.FieldError, result.Error)
	} else {
		log.Debugw("Run completed", logger.FieldSize, len(result.RawResponse))
	}
	return result
}

func (e *Executor) pipeline(ctx context.Context, req Request, current any, tracking model.Tracking) Result {
	doc, err := e.template(ctx, req)
	if err != nil {
		return failure("", err)
	}

	strategy, err := req.Parser.Strategy()
	if err != nil {
		return failure("", err)
	}

	data, err := e.binder.Resolve(ctx, req.Bindings, current)
	if err != nil {
		return failure("", err)
	}
	// Undeclared context renders empty, so this is only a warning
	if missing := doc.Metadata.MissingVariables(data); len(missing) > 0 {
		e.log.With(logger.FieldsFromContext(ctx)...).Warnw("Template variables missing from context",
			logger.FieldTemplateID, req.TemplateID, "missing", missing)
	}

	prompt, err := e.renderer.Render(doc.Body, data)
	if err != nil {
		return failure("", err)
	}

	m, err := e.models.New(e.modelConfig(req, doc.Metadata), tracking)
	if err != nil {
		return failure("", errors.Mark(err, errors.ErrModel))
	}

	raw, parsed, err := e.parser.Parse(ctx, strategy, prompt, m)
	if err != nil {
		return failure(raw, err)
	}
	return Result{RawResponse: raw, ParsedResponse: parsed}
}

// template loads the template text and splits off its frontmatter
func (e *Executor) template(ctx context.Context, req Request) (*templates.Document, error) {
	text := req.TemplateText
	if req.TemplateID != "" {
		content, err := e.templates.Content(ctx, req.TemplateID)
		if err != nil {
			return nil, err
		}
		text = content
	}

	doc, err := templates.ParseFrontmatter(text)
	if err != nil {
		return nil, errors.Mark(err, errors.ErrTemplateRender)
	}
	return doc, nil
}

// modelConfig layers the request over the template's frontmatter defaults
func (e *Executor) modelConfig(req Request, meta templates.Metadata) model.Config {
	var cfg model.Config
	if req.LLM != nil {
		cfg = *req.LLM
	}
	return cfg.Merge(model.Config{
		Provider:     meta.Provider,
		Model:        meta.Model,
		Temperature:  meta.Temperature,
		MaxTokens:    meta.MaxTokens,
		SystemPrompt: meta.SystemPrompt,
	})
}
