package datasets

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	getter "github.com/hashicorp/go-getter"

	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/internal/httpclient"
	"github.com/teranos/PTX/logger"
)

// ImportOptions bounds remote dataset imports
type ImportOptions struct {
	Timeout      time.Duration
	MaxBytes     int64
	AllowPrivate bool
}

// Importer downloads datasets over HTTP(S) and stores them
type Importer struct {
	store    *Store
	client   *httpclient.SaferClient
	timeout  time.Duration
	maxBytes int64
}

// NewImporter creates an importer writing into store
func NewImporter(store *Store, opts ImportOptions) *Importer {
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	return &Importer{
		store:    store,
		client:   httpclient.NewSaferClientWithOptions(opts.Timeout, httpclient.Options{AllowPrivate: opts.AllowPrivate}),
		timeout:  opts.Timeout,
		maxBytes: opts.MaxBytes,
	}
}

// Import fetches rawURL and stores it as a dataset. An empty name or format
// is derived from the last path segment of the URL.
func (im *Importer) Import(ctx context.Context, rawURL, name string, format Format) (*Meta, error) {
	u, err := im.client.ValidateURL(rawURL)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "dataset URL rejected"), errors.ErrInvalidInput)
	}

	if name == "" || format == "" {
		derivedName, derivedFormat, err := SplitFilename(path.Base(u.Path))
		if err != nil {
			return nil, errors.WithHint(err, "pass an explicit name and format for URLs without a file extension")
		}
		if name == "" {
			name = derivedName
		}
		if format == "" {
			format = derivedFormat
		}
	}
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	data, err := im.download(ctx, u)
	if err != nil {
		return nil, err
	}
	return im.store.put(ctx, data, name, format, rawURL)
}

func (im *Importer) download(ctx context.Context, u *url.URL) ([]byte, error) {
	log := logger.ComponentLogger("datasets")

	tempDir, err := os.MkdirTemp("", "ptx-import-*")
	if err != nil {
		return nil, errors.Wrap(err, "failed to create temp directory")
	}
	defer os.RemoveAll(tempDir)

	httpGetter := &getter.HttpGetter{
		Client:                im.client.Client,
		DoNotCheckHeadFirst:   true,
		ReadTimeout:           im.timeout,
		MaxBytes:              im.maxBytes,
		XTerraformGetDisabled: true,
	}

	ctx, cancel := context.WithTimeout(ctx, im.timeout)
	defer cancel()

	dst := filepath.Join(tempDir, "download")
	client := &getter.Client{
		Ctx:  ctx,
		Src:  u.String(),
		Dst:  dst,
		Mode: getter.ClientModeFile,
		// Only plain HTTP(S). No archive unpacking, no forced getters.
		Detectors:     []getter.Detector{},
		Decompressors: map[string]getter.Decompressor{},
		Getters: map[string]getter.Getter{
			"http":  httpGetter,
			"https": httpGetter,
		},
	}

	start := time.Now()
	if err := client.Get(); err != nil {
		return nil, errors.WithDetail(errors.Wrap(err, "failed to download dataset"), "URL: "+u.Redacted())
	}

	data, err := os.ReadFile(dst)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read downloaded dataset")
	}
	if im.maxBytes > 0 && int64(len(data)) > im.maxBytes {
		return nil, errors.NewInvalidInputf("dataset exceeds %d bytes", im.maxBytes)
	}

	log.Infow("Dataset downloaded",
		"url", u.Redacted(),
		logger.FieldSize, len(data),
		logger.FieldDurationMS, time.Since(start).Milliseconds(),
	)
	return data, nil
}
