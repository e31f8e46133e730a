package parse

import (
	"context"
	"regexp"

	starjson "go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
	"go.starlark.net/syntax"

	"github.com/teranos/PTX/errors"
)

// DefaultMaxSteps bounds a transform when no budget is configured
const DefaultMaxSteps = 1_000_000

// Modules available to transforms without loading. "import json" lines are
// accepted for familiarity and become no-ops.
var predeclared = starlark.StringDict{
	"json": starjson.Module,
	"math": starmath.Module,
}

var importLine = regexp.MustCompile(`(?m)^[ \t]*import[ \t]+(json|math)[ \t]*$`)

var fileOptions = &syntax.FileOptions{
	Set:             true,
	While:           true,
	TopLevelControl: true,
	GlobalReassign:  true,
	Recursion:       true,
}

// Transform is a compiled parse(text) function. The module globals are
// frozen, so one Transform may be called from many goroutines.
type Transform struct {
	fn       starlark.Callable
	maxSteps uint64
}

// CompileTransform executes code as a Starlark module and looks up its
// parse function. The module has no file, network or clock access.
func CompileTransform(code string, maxSteps uint64) (*Transform, error) {
	if maxSteps == 0 {
		maxSteps = DefaultMaxSteps
	}

	thread := newThread(maxSteps)
	src := importLine.ReplaceAllString(code, "")
	globals, err := starlark.ExecFileOptions(fileOptions, thread, "transform.py", src, predeclared)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "invalid transform code"), errors.ErrInvalidTransformCode)
	}
	globals.Freeze()

	fn, ok := globals["parse"].(starlark.Callable)
	if !ok {
		return nil, errors.Mark(errors.New("a 'parse' function was not found in the transform code"), errors.ErrInvalidTransformCode)
	}
	return &Transform{fn: fn, maxSteps: maxSteps}, nil
}

// Call runs parse(text) and converts the result to Go values
func (t *Transform) Call(ctx context.Context, text string) (any, error) {
	thread := newThread(t.maxSteps)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			thread.Cancel(ctx.Err().Error())
		case <-done:
		}
	}()

	v, err := starlark.Call(thread, t.fn, starlark.Tuple{starlark.String(text)}, nil)
	if err != nil {
		return nil, errors.Mark(errors.Wrap(err, "error executing the 'parse' function"), errors.ErrTransformExecution)
	}
	return toGo(v), nil
}

func newThread(maxSteps uint64) *starlark.Thread {
	thread := &starlark.Thread{
		Name:  "transform",
		Print: func(*starlark.Thread, string) {},
		Load: func(_ *starlark.Thread, module string) (starlark.StringDict, error) {
			return nil, errors.Newf("load(%q): loading modules is not allowed", module)
		},
	}
	thread.SetMaxExecutionSteps(maxSteps)
	return thread
}

// toGo converts a Starlark value to plain Go: int64 (or a decimal string for
// ints beyond 64 bits), float64, string, bool, nil, []any, map[string]any.
func toGo(v starlark.Value) any {
	switch t := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(t)
	case starlark.Int:
		if i, ok := t.Int64(); ok {
			return i
		}
		return t.String()
	case starlark.Float:
		return float64(t)
	case starlark.String:
		return string(t)
	case starlark.Bytes:
		return string(t)
	case *starlark.List:
		out := make([]any, t.Len())
		for i := range out {
			out[i] = toGo(t.Index(i))
		}
		return out
	case starlark.Tuple:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = toGo(item)
		}
		return out
	case *starlark.Set:
		out := make([]any, 0, t.Len())
		iter := t.Iterate()
		defer iter.Done()
		var item starlark.Value
		for iter.Next(&item) {
			out = append(out, toGo(item))
		}
		return out
	case *starlark.Dict:
		out := make(map[string]any, t.Len())
		for _, item := range t.Items() {
			out[dictKey(item[0])] = toGo(item[1])
		}
		return out
	}
	return v.String()
}

func dictKey(k starlark.Value) string {
	if s, ok := starlark.AsString(k); ok {
		return s
	}
	return k.String()
}
