package api

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/steptrace/internal/model"
)

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Recorder Recorder
	Version  string
}

const episodeURI = "episode://current"

// NewMCPServer creates an MCP server exposing the recorder controls as tools
// and the current episode as a resource.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := server.NewMCPServer(
		"steptrace",
		version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("steptrace records browser interaction episodes: pre-observation, action and post-observation for every step."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("recorder_status",
			mcp.WithDescription("Return the recorder settings: recording flag, episode id, step count, last message and options."),
		),
		mcpSettingsOp(deps.Recorder.Status),
	)

	s.AddTool(
		mcp.NewTool("recorder_start",
			mcp.WithDescription("Start a new episode. Options given here are merged over the persisted options."),
			mcp.WithBoolean("capture_screenshots", mcp.Description("Attach a screenshot to every observation")),
			mcp.WithBoolean("capture_dom_state", mcp.Description("Include the interactive element list in observations")),
		),
		mcpStart(deps),
	)

	s.AddTool(
		mcp.NewTool("recorder_stop",
			mcp.WithDescription("Stop recording. Recorded steps are kept for export."),
		),
		mcpSettingsOp(deps.Recorder.Stop),
	)

	s.AddTool(
		mcp.NewTool("recorder_clear",
			mcp.WithDescription("Delete the current episode and reset the recorder."),
		),
		mcpSettingsOp(deps.Recorder.Clear),
	)

	s.AddTool(
		mcp.NewTool("recorder_set_options",
			mcp.WithDescription("Update capture options. Omitted options are left unchanged."),
			mcp.WithBoolean("capture_screenshots", mcp.Description("Attach a screenshot to every observation")),
			mcp.WithBoolean("capture_dom_state", mcp.Description("Include the interactive element list in observations")),
		),
		mcpSetOptions(deps),
	)

	s.AddTool(
		mcp.NewTool("recorder_export",
			mcp.WithDescription("Return the current episode with its ordered steps as JSON."),
			mcp.WithBoolean("include_screenshots", mcp.Description("Keep screenshot data URLs in the output (default false)")),
		),
		mcpExport(deps),
	)

	s.AddResource(
		mcp.NewResource(
			episodeURI,
			"Current Episode",
			mcp.WithResourceDescription("The episode being recorded, with its steps, as JSON"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceEpisode(deps),
	)

	return s
}

func mcpSettingsOp(op func(context.Context) (model.Settings, error)) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := op(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("recorder error: %v", err)), nil
		}
		return mcpJSON(st)
	}
}

func mcpStart(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st, err := deps.Recorder.Start(ctx, optionsPatch(req))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to start: %v", err)), nil
		}
		return mcpJSON(st)
	}
}

func mcpSetOptions(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		patch := optionsPatch(req)
		if patch == nil {
			return mcpError("at least one of capture_screenshots or capture_dom_state is required"), nil
		}
		st, err := deps.Recorder.SetOptions(ctx, patch)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to set options: %v", err)), nil
		}
		return mcpJSON(st)
	}
}

func mcpExport(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := deps.Recorder.Export(ctx)
		if err != nil {
			return mcpError(fmt.Sprintf("export failed: %v", err)), nil
		}
		if res.Episode == nil {
			return mcpText(res.LastMessage), nil
		}
		if !req.GetBool("include_screenshots", false) {
			stripScreenshots(res.Episode.Steps)
		}
		return mcpJSON(res.Episode)
	}
}

func mcpResourceEpisode(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		res, err := deps.Recorder.Export(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to export episode: %w", err)
		}

		var v any = res
		if res.Episode != nil {
			stripScreenshots(res.Episode.Steps)
			v = res.Episode
		}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal episode: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

// optionsPatch reads the option arguments that are present. It returns nil
// when none are.
func optionsPatch(req mcp.CallToolRequest) *model.OptionsPatch {
	args := req.GetArguments()
	var p model.OptionsPatch
	set := false
	if _, ok := args["capture_screenshots"]; ok {
		v := req.GetBool("capture_screenshots", true)
		p.CaptureScreenshots = &v
		set = true
	}
	if _, ok := args["capture_dom_state"]; ok {
		v := req.GetBool("capture_dom_state", true)
		p.CaptureDOMState = &v
		set = true
	}
	if !set {
		return nil
	}
	return &p
}

// stripScreenshots drops the screenshot data URLs from steps.
func stripScreenshots(steps []model.Step) {
	for i := range steps {
		steps[i].Pre.Screenshot = ""
		if steps[i].Post != nil {
			post := *steps[i].Post
			post.Screenshot = ""
			steps[i].Post = &post
		}
	}
}

func mcpJSON(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcpError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcpText(string(b)), nil
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
