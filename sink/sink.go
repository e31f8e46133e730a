// Package sink persists the results of completed batch jobs. Every backend
// is append-only: a name can be written once and never replaced.
package sink

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/errors"
)

// Extension is appended to every saved result name
const Extension = ".jsonl"

// Sink stores a named snapshot of job results and returns its location
type Sink interface {
	Save(ctx context.Context, name string, entries []any) (string, error)
}

// New builds the sink selected by cfg.Type
func New(ctx context.Context, cfg am.SinkConfig) (Sink, error) {
	switch cfg.Type {
	case "", "file":
		return NewFileSink(cfg.Dir), nil
	case "minio":
		return NewMinIOSink(ctx, cfg.MinIO)
	case "redis":
		return NewRedisSink(ctx, cfg.Redis)
	}
	return nil, errors.NewInvalidInputf("unknown sink type %q (file, minio, redis)", cfg.Type)
}

// encodeJSONL writes one JSON document per entry
func encodeJSONL(entries []any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return nil, errors.Wrapf(err, "failed to encode result %d", i)
		}
	}
	return buf.Bytes(), nil
}

func collision(name string) error {
	err := errors.Mark(errors.Newf("a result named '%s' already exists", name), errors.ErrNameCollision)
	return errors.WithHint(err, "choose another filename")
}
