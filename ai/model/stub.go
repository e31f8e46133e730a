package model

import (
	"context"
	"sync"

	"github.com/getkin/kin-openapi/openapi3"

	"github.com/teranos/PTX/errors"
)

// Stub is a scripted Model for tests. A nil CompleteFunc echoes the prompt.
// A nil PredictFunc runs Complete and decodes the reply against the schema.
type Stub struct {
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
	PredictFunc  func(ctx context.Context, schema *openapi3.Schema, prompt string) (any, error)

	mu      sync.Mutex
	prompts []string
}

// Complete records prompt and returns the scripted reply
func (s *Stub) Complete(ctx context.Context, prompt string) (string, error) {
	s.record(prompt)
	if s.CompleteFunc == nil {
		return prompt, nil
	}
	return s.CompleteFunc(ctx, prompt)
}

// StructuredPredict records prompt and returns the scripted value
func (s *Stub) StructuredPredict(ctx context.Context, schema *openapi3.Schema, prompt string) (any, error) {
	if s.PredictFunc != nil {
		s.record(prompt)
		return s.PredictFunc(ctx, schema, prompt)
	}
	reply, err := s.Complete(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return DecodeConforming(schema, reply)
}

// Prompts returns every prompt the stub has seen, in order
func (s *Stub) Prompts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.prompts...)
}

func (s *Stub) record(prompt string) {
	s.mu.Lock()
	s.prompts = append(s.prompts, prompt)
	s.mu.Unlock()
}

// StubFactory hands out the same Stub for every request and remembers the
// configs it was asked for.
type StubFactory struct {
	Model *Stub
	Err   error

	mu      sync.Mutex
	configs []Config
}

// New returns the stub model
func (f *StubFactory) New(cfg Config, _ Tracking) (Model, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.configs = append(f.configs, cfg)
	if f.Err != nil {
		return nil, errors.Mark(f.Err, errors.ErrModel)
	}
	if f.Model == nil {
		f.Model = &Stub{}
	}
	return f.Model, nil
}

// Configs returns the configs passed to New
func (f *StubFactory) Configs() []Config {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Config(nil), f.configs...)
}
