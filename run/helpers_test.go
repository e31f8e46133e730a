package run

import (
	"context"
	"sync"

	"github.com/teranos/PTX/errors"
)

type memTemplates map[string]string

func (m memTemplates) Content(_ context.Context, id string) (string, error) {
	content, ok := m[id]
	if !ok {
		return "", errors.Wrapf(errors.ErrTemplateNotFound, "template %s", id)
	}
	return content, nil
}

type memDatasets map[string][]any

func (m memDatasets) Records(_ context.Context, id string) ([]any, error) {
	records, ok := m[id]
	if !ok {
		return nil, errors.Wrapf(errors.ErrDatasetNotFound, "dataset %s", id)
	}
	return records, nil
}

type memSink struct {
	mu    sync.Mutex
	saved map[string][]any
}

func (s *memSink) Save(_ context.Context, name string, entries []any) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = make(map[string][]any)
	}
	if _, exists := s.saved[name]; exists {
		return "", errors.Mark(errors.Newf("results %q already exist", name), errors.ErrNameCollision)
	}
	s.saved[name] = entries
	return "mem://" + name, nil
}

func records(values ...any) []any { return values }

func xRecords(n int) []any {
	out := make([]any, n)
	for i := range out {
		out[i] = map[string]any{"x": int64(i + 1)}
	}
	return out
}
