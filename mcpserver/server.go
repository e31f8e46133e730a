// Package mcpserver exposes templates, datasets, runs and batch jobs as Model
// Context Protocol tools over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/run"
	"github.com/teranos/PTX/run/bind"
	"github.com/teranos/PTX/run/parse"
	ptxserver "github.com/teranos/PTX/server"
	"github.com/teranos/PTX/version"
)

// MCPServer wraps the pipeline services as MCP tools
type MCPServer struct {
	services *ptxserver.Services
	server   *server.MCPServer
}

// NewMCPServer creates the MCP server and registers its tools
func NewMCPServer(services *ptxserver.Services) *MCPServer {
	s := &MCPServer{services: services}
	s.server = server.NewMCPServer(
		"ptx",
		version.Get().Version,
		server.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// runArgs are shared by ptx_run and ptx_batch
func runArgs() []mcp.ToolOption {
	return []mcp.ToolOption{
		mcp.WithString("template_id",
			mcp.Description("Stored template id; takes precedence over template_text"),
		),
		mcp.WithString("template_text",
			mcp.Description("Inline template source"),
		),
		mcp.WithString("bindings",
			mcp.Description(`JSON array of bindings, e.g. [{"source_id":"...","context_key":"row","scope":"record"}]`),
		),
		mcp.WithString("parser_type",
			mcp.Description("raw (default), structured or python"),
		),
		mcp.WithString("schema_definition",
			mcp.Description("JSON or YAML schema for the structured parser"),
		),
		mcp.WithString("transform_code",
			mcp.Description("Python-dialect code defining parse(text) for the python parser"),
		),
	}
}

func (s *MCPServer) registerTools() {
	s.server.AddTool(mcp.NewTool("ptx_list_templates",
		mcp.WithDescription("List stored prompt templates"),
	), s.handleListTemplates)

	s.server.AddTool(mcp.NewTool("ptx_get_template",
		mcp.WithDescription("Get a template's source by id"),
		mcp.WithString("id", mcp.Required(), mcp.Description("Template id")),
	), s.handleGetTemplate)

	s.server.AddTool(mcp.NewTool("ptx_create_template",
		mcp.WithDescription("Store a new prompt template"),
		mcp.WithString("name", mcp.Required(), mcp.Description("Unique name without slashes")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Template source")),
	), s.handleCreateTemplate)

	s.server.AddTool(mcp.NewTool("ptx_list_datasets",
		mcp.WithDescription("List datasets with their record counts"),
	), s.handleListDatasets)

	s.server.AddTool(mcp.NewTool("ptx_get_record",
		mcp.WithDescription("Get one record of a dataset"),
		mcp.WithString("dataset_id", mcp.Required(), mcp.Description("Dataset id")),
		mcp.WithNumber("index", mcp.Required(), mcp.Description("Zero-based record index")),
	), s.handleGetRecord)

	s.server.AddTool(mcp.NewTool("ptx_run",
		append([]mcp.ToolOption{mcp.WithDescription("Render a template, call the model and parse the reply once")}, runArgs()...)...,
	), s.handleRun)

	s.server.AddTool(mcp.NewTool("ptx_batch",
		append([]mcp.ToolOption{mcp.WithDescription("Start a batch over every record of the first record-scoped binding")}, runArgs()...)...,
	), s.handleBatch)

	s.server.AddTool(mcp.NewTool("ptx_job_status",
		mcp.WithDescription("Get a batch job's status and progress"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id")),
	), s.handleJobStatus)

	s.server.AddTool(mcp.NewTool("ptx_job_result",
		mcp.WithDescription("Get the results of a completed batch job"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id")),
	), s.handleJobResult)

	s.server.AddTool(mcp.NewTool("ptx_save_results",
		mcp.WithDescription("Save a completed job's results to the result sink"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id")),
		mcp.WithString("filename", mcp.Required(), mcp.Description("Result name without slashes")),
	), s.handleSaveResults)
}

func (s *MCPServer) handleListTemplates(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metas, err := s.services.Templates.List(ctx)
	if err != nil {
		return toolError("Failed to list templates", err), nil
	}
	return jsonResult(metas)
}

func (s *MCPServer) handleGetTemplate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := s.services.Templates.Get(ctx, id)
	if err != nil {
		return toolError("Failed to get template", err), nil
	}
	return jsonResult(t)
}

func (s *MCPServer) handleCreateTemplate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := request.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := request.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	t, err := s.services.Templates.Create(ctx, name, content)
	if err != nil {
		return toolError("Failed to create template", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Created template %s (%s)", t.Name, t.ID)), nil
}

func (s *MCPServer) handleListDatasets(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	metas, err := s.services.Datasets.List(ctx)
	if err != nil {
		return toolError("Failed to list datasets", err), nil
	}
	return jsonResult(metas)
}

func (s *MCPServer) handleGetRecord(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("dataset_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	index, err := request.RequireInt("index")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	record, err := s.services.Datasets.GetRecord(ctx, id, index)
	if err != nil {
		return toolError("Failed to get record", err), nil
	}
	return jsonResult(record)
}

func (s *MCPServer) handleRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := runRequest(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	result := s.services.Executor.Execute(ctx, req, nil)
	out, err := jsonResult(result)
	if err == nil && result.Failed() {
		out.IsError = true
	}
	return out, err
}

func (s *MCPServer) handleBatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	req, err := runRequest(request)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	// The job outlives this call
	jobID, err := s.services.Engine.Submit(context.WithoutCancel(ctx), req)
	if err != nil {
		return toolError("Failed to start batch", err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("Started batch job %s", jobID)), nil
}

func (s *MCPServer) handleJobStatus(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	status, err := s.services.Engine.Status(jobID)
	if err != nil {
		return toolError("Failed to get job status", err), nil
	}
	return jsonResult(status)
}

func (s *MCPServer) handleJobResult(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.services.Engine.Result(jobID)
	if err != nil {
		return toolError("Failed to get job results", err), nil
	}
	return jsonResult(results)
}

func (s *MCPServer) handleSaveResults(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	jobID, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	filename, err := request.RequireString("filename")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	path, err := s.services.Engine.Save(ctx, jobID, filename)
	if err != nil {
		return toolError("Failed to save results", err), nil
	}
	return mcp.NewToolResultText("Results saved to " + path), nil
}

// runRequest assembles a run.Request from tool arguments
func runRequest(request mcp.CallToolRequest) (run.Request, error) {
	req := run.Request{
		TemplateID:   request.GetString("template_id", ""),
		TemplateText: request.GetString("template_text", ""),
	}
	if raw := request.GetString("bindings", ""); raw != "" {
		var bindings []bind.Binding
		if err := json.Unmarshal([]byte(raw), &bindings); err != nil {
			return run.Request{}, errors.Wrap(err, "bindings must be a JSON array of bindings")
		}
		req.Bindings = bindings
	}
	if parserType := request.GetString("parser_type", ""); parserType != "" {
		req.Parser = &parse.Spec{
			Type:             parse.Type(parserType),
			SchemaDefinition: request.GetString("schema_definition", ""),
			TransformCode:    request.GetString("transform_code", ""),
		}
	}
	return req, nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode tool result")
	}
	return mcp.NewToolResultText(string(data)), nil
}

// toolError reports err to the client with its kind
func toolError(msg string, err error) *mcp.CallToolResult {
	return mcp.NewToolResultError(fmt.Sprintf("%s [%s]: %v", msg, errors.KindOf(err), err))
}

// Serve starts the MCP server using stdio transport
func (s *MCPServer) Serve() error {
	return server.ServeStdio(s.server)
}
