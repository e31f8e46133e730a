package datasets

import (
	"bufio"
	"bytes"
	"path/filepath"
	"strings"

	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/internal/util"
)

// Format is how a dataset's bytes are split into records
type Format string

const (
	// FormatJSONL holds one JSON value per line
	FormatJSONL Format = "jsonl"
	// FormatJSON holds a single array (one record per element) or a single object (one record)
	FormatJSON Format = "json"
	// FormatTXT is opaque text, stored as one record
	FormatTXT Format = "txt"
)

// Record is one dataset entry: map[string]any for structured rows, string
// for text. JSON integers decode to int64, other numbers to float64.
type Record = any

// ParseFormat validates a declared format name
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimPrefix(s, "."))); f {
	case FormatJSONL, FormatJSON, FormatTXT:
		return f, nil
	}
	return "", errors.NewInvalidInputf("unsupported dataset format %q (jsonl, json, txt)", s)
}

// SplitFilename derives a dataset name and format from an uploaded file name,
// e.g. "reviews.jsonl" -> ("reviews", jsonl).
func SplitFilename(filename string) (string, Format, error) {
	base := filepath.Base(filename)
	ext := filepath.Ext(base)
	if ext == "" {
		return "", "", errors.NewInvalidInputf("file %q has no extension; only .json, .jsonl and .txt files are allowed", filename)
	}
	format, err := ParseFormat(ext)
	if err != nil {
		return "", "", err
	}
	return strings.TrimSuffix(base, ext), format, nil
}

// ParseRecords splits data into records according to format
func ParseRecords(format Format, data []byte) ([]Record, error) {
	switch format {
	case FormatJSONL:
		return parseJSONL(data)
	case FormatJSON:
		return parseJSON(data)
	case FormatTXT:
		return []Record{string(data)}, nil
	}
	return nil, errors.NewInvalidInputf("unsupported dataset format %q", format)
}

func parseJSONL(data []byte) ([]Record, error) {
	records := []Record{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16<<20)

	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		v, err := util.DecodeJSON(text)
		if err != nil {
			return nil, errors.Wrapf(err, "line %d", line)
		}
		records = append(records, v)
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to scan jsonl")
	}
	return records, nil
}

func parseJSON(data []byte) ([]Record, error) {
	v, err := util.DecodeJSON(data)
	if err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case []any:
		return t, nil
	case map[string]any:
		return []Record{t}, nil
	}
	return nil, errors.Newf("json dataset must hold an array or an object, got %T", v)
}
