package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/PTX/ai/model"
	"github.com/teranos/PTX/am"
	"github.com/teranos/PTX/datasets"
	ptxtest "github.com/teranos/PTX/internal/testing"
	"github.com/teranos/PTX/run"
	ptxserver "github.com/teranos/PTX/server"
	"github.com/teranos/PTX/sink"
)

func newTestMCP(t *testing.T) (*MCPServer, *ptxserver.Services) {
	t.Helper()
	dir := t.TempDir()
	cfg := &am.Config{
		Jobs: am.JobsConfig{Workers: 1, QueueSize: 4},
		Sink: am.SinkConfig{Type: "file", Dir: dir},
	}
	services, err := ptxserver.NewServices(context.Background(), cfg, ptxtest.CreateTestDB(t), ptxserver.ServicesOptions{
		Models:   &model.StubFactory{},
		Sink:     sink.NewFileSink(dir),
		Registry: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	services.Pool.Start()
	t.Cleanup(services.Pool.Stop)
	return NewMCPServer(services), services
}

func call(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	return req
}

func text(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	content, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return content.Text
}

func TestTemplates(t *testing.T) {
	s, _ := newTestMCP(t)
	ctx := context.Background()

	result, err := s.handleCreateTemplate(ctx, call(map[string]any{"name": "greet", "content": "Hi {{name}}"}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, text(t, result), "Created template greet")

	result, err = s.handleCreateTemplate(ctx, call(map[string]any{"name": "greet", "content": "again"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "[NameCollision]")

	result, err = s.handleCreateTemplate(ctx, call(map[string]any{"name": "no-content"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleListTemplates(ctx, call(nil))
	require.NoError(t, err)
	var metas []map[string]string
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &metas))
	require.Len(t, metas, 1)

	result, err = s.handleGetTemplate(ctx, call(map[string]any{"id": metas[0]["id"]}))
	require.NoError(t, err)
	assert.Contains(t, text(t, result), "Hi {{name}}")

	result, err = s.handleGetTemplate(ctx, call(map[string]any{"id": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "[TemplateNotFound]")
}

func TestRunAndBatch(t *testing.T) {
	s, services := newTestMCP(t)
	ctx := context.Background()

	meta, err := services.Datasets.Put(ctx, []byte("{\"x\":1}\n{\"x\":2}\n"), "xs", datasets.FormatJSONL)
	require.NoError(t, err)
	bindings := `[{"source_id":"` + meta.ID + `","context_key":"","scope":"record"}]`

	result, err := s.handleGetRecord(ctx, call(map[string]any{"dataset_id": meta.ID, "index": 1}))
	require.NoError(t, err)
	assert.JSONEq(t, `{"x":2}`, text(t, result))

	result, err = s.handleRun(ctx, call(map[string]any{"template_text": "val={{x}}", "bindings": bindings}))
	require.NoError(t, err)
	assert.False(t, result.IsError)
	var runResult run.Result
	require.NoError(t, json.Unmarshal([]byte(text(t, result)), &runResult))
	assert.Equal(t, "val=1", runResult.RawResponse)

	result, err = s.handleRun(ctx, call(map[string]any{
		"template_text":  "x",
		"parser_type":    "python",
		"transform_code": "def parse(t):\n    return len(t)\n",
	}))
	require.NoError(t, err)
	assert.Contains(t, text(t, result), `"parsed_response": 1`)

	result, err = s.handleRun(ctx, call(map[string]any{"template_text": "x", "bindings": "not json"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)

	result, err = s.handleBatch(ctx, call(map[string]any{"template_text": "val={{x}}", "bindings": bindings}))
	require.NoError(t, err)
	jobID := strings.TrimPrefix(text(t, result), "Started batch job ")

	require.Eventually(t, func() bool {
		status, err := services.Engine.Status(jobID)
		return err == nil && status.Status.Terminal()
	}, 10*time.Second, 10*time.Millisecond)

	result, err = s.handleJobStatus(ctx, call(map[string]any{"job_id": jobID}))
	require.NoError(t, err)
	assert.Contains(t, text(t, result), `"status": "completed"`)

	result, err = s.handleJobResult(ctx, call(map[string]any{"job_id": jobID}))
	require.NoError(t, err)
	assert.Contains(t, text(t, result), "val=2")

	result, err = s.handleSaveResults(ctx, call(map[string]any{"job_id": jobID, "filename": "out"}))
	require.NoError(t, err)
	assert.Contains(t, text(t, result), "out.jsonl")

	result, err = s.handleJobStatus(ctx, call(map[string]any{"job_id": "nope"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "[JobNotFound]")
}

func TestFailedRunIsToolError(t *testing.T) {
	s, _ := newTestMCP(t)
	result, err := s.handleRun(context.Background(), call(map[string]any{"template_id": "missing"}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, text(t, result), "TemplateNotFound")
}
