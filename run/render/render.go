// Package render renders prompt templates with pongo2 (Jinja/Django syntax).
package render

import (
	"io"
	"regexp"
	"strconv"
	"sync"

	"github.com/flosch/pongo2/v6"

	"github.com/teranos/PTX/errors"
)

// Tags that read other templates from the host filesystem
var bannedTags = []string{"include", "import", "extends", "ssi"}

// pongo2 refuses context keys that are not identifiers
var identifier = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

const cacheSize = 128

var autoescapeOnce sync.Once

// Renderer compiles and executes templates. Compiled templates are cached by
// source text. Safe for concurrent use.
type Renderer struct {
	set *pongo2.TemplateSet

	mu    sync.Mutex
	cache map[string]*pongo2.Template
}

// New creates a Renderer with filesystem tags banned
func New() *Renderer {
	// Prompts are plain text; Jinja does not escape HTML by default either.
	autoescapeOnce.Do(func() { pongo2.SetAutoescape(false) })

	set := pongo2.NewSet("ptx", refusingLoader{})
	for _, tag := range bannedTags {
		if err := set.BanTag(tag); err != nil {
			panic(errors.AssertionFailedf("ban tag %s: %v", tag, err))
		}
	}
	return &Renderer{set: set, cache: make(map[string]*pongo2.Template)}
}

// Render renders text against data. Undefined variables render empty.
func (r *Renderer) Render(text string, data map[string]any) (string, error) {
	tpl, err := r.compile(text)
	if err != nil {
		return "", err
	}

	out, err := tpl.Execute(renderContext(data))
	if err != nil {
		return "", errors.Mark(errors.Wrap(err, "failed to render template"), errors.ErrTemplateRender)
	}
	return out, nil
}

// Check compiles text without rendering it
func (r *Renderer) Check(text string) error {
	_, err := r.compile(text)
	return err
}

func (r *Renderer) compile(text string) (*pongo2.Template, error) {
	r.mu.Lock()
	tpl, ok := r.cache[text]
	r.mu.Unlock()
	if ok {
		return tpl, nil
	}

	tpl, err := r.set.FromString(text)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "failed to parse template"), errors.ErrTemplateRender)
	}

	r.mu.Lock()
	if len(r.cache) >= cacheSize {
		clear(r.cache)
	}
	r.cache[text] = tpl
	r.mu.Unlock()
	return tpl, nil
}

// renderContext converts data into a pongo2 context, dropping keys pongo2 cannot
// address and wrapping floats so they print like Jinja does.
func renderContext(data map[string]any) pongo2.Context {
	ctx := make(pongo2.Context, len(data))
	for k, v := range data {
		if !identifier.MatchString(k) {
			continue
		}
		ctx[k] = displayValue(v)
	}
	return ctx
}

func displayValue(v any) any {
	switch t := v.(type) {
	case float64:
		return displayFloat(t)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = displayValue(item)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = displayValue(item)
		}
		return out
	}
	return v
}

// displayFloat prints with the shortest representation (2.5, not
// 2.500000). Its kind is still float64, so filters and comparisons work.
type displayFloat float64

func (f displayFloat) String() string {
	return strconv.FormatFloat(float64(f), 'g', -1, 64)
}

// refusingLoader backs the template set; every lookup fails.
type refusingLoader struct{}

func (refusingLoader) Abs(base, name string) string { return name }

func (refusingLoader) Get(path string) (io.Reader, error) {
	return nil, errors.Newf("template %q: loading templates is not allowed", path)
}
