package sink

import (
	"context"
	"os"
	"path/filepath"

	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/logger"
)

// FileSink writes results to <dir>/<name>.jsonl
type FileSink struct {
	dir string
}

// NewFileSink creates a sink rooted at dir
func NewFileSink(dir string) *FileSink {
	return &FileSink{dir: dir}
}

// Save creates the file exclusively, so concurrent saves of one name
// cannot both succeed.
func (s *FileSink) Save(_ context.Context, name string, entries []any) (string, error) {
	data, err := encodeJSONL(entries)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(s.dir, am.DefaultDirPermissions); err != nil {
		return "", errors.StorageIO(err, "failed to create results directory")
	}

	path := filepath.Join(s.dir, name+Extension)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, am.DefaultFilePermissions)
	if err != nil {
		if os.IsExist(err) {
			return "", collision(name)
		}
		return "", errors.StorageIO(err, "failed to create results file")
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", errors.StorageIO(err, "failed to save results to disk")
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", errors.StorageIO(err, "failed to save results to disk")
	}

	logger.ComponentLogger("sink").Debugw("Results written", logger.FieldSink, "file", "path", path, logger.FieldSize, len(data))
	return path, nil
}
