package server

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mj1618/voxnav/internal/engine"
	"gopkg.in/yaml.v3"
)

// toText serializes v to YAML for an MCP response.
func toText(v interface{}) string {
	b, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("error: %v", err)
	}
	return string(b)
}

func toolResult(v interface{}, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		return mcp.NewToolResultError(toText(ErrorResult(err))), nil
	}
	return mcp.NewToolResultText(toText(v)), nil
}

func (s *Server) registerTools() {
	s.mcp.AddTool(
		mcp.NewTool("ingest",
			mcp.WithDescription("Register a UI snapshot batch (YAML or JSON with app, version, title and either a nested tree or flat elements). Returns the screen, epoch and element diff."),
			mcp.WithString("batch", mcp.Description("Snapshot batch document"), mcp.Required()),
		),
		s.handleIngest,
	)

	s.mcp.AddTool(
		mcp.NewTool("command",
			mcp.WithDescription("Match, resolve and execute a spoken or typed command against the current screen"),
			mcp.WithString("text", mcp.Description("Recognized command text, e.g. 'tap the second button'"), mcp.Required()),
			mcp.WithString("locale", mcp.Description("BCP 47 locale of the utterance (default: catalog fallback)")),
			mcp.WithNumber("confidence", mcp.Description("Recognizer confidence 0-1; gates learning (default: 1)")),
		),
		s.handleCommand,
	)

	s.mcp.AddTool(
		mcp.NewTool("resolve",
			mcp.WithDescription("Resolve a command to an action and target element without executing it"),
			mcp.WithString("text", mcp.Description("Command text"), mcp.Required()),
			mcp.WithString("locale", mcp.Description("BCP 47 locale")),
		),
		s.handleResolve,
	)

	s.mcp.AddTool(
		mcp.NewTool("match",
			mcp.WithDescription("Normalize command text through learned corrections, fuzzy vocabulary and the locale catalog"),
			mcp.WithString("text", mcp.Description("Command text"), mcp.Required()),
			mcp.WithString("locale", mcp.Description("BCP 47 locale")),
		),
		s.handleMatch,
	)

	s.mcp.AddTool(
		mcp.NewTool("learn",
			mcp.WithDescription("Record that a misrecognized command means the corrected text"),
			mcp.WithString("original", mcp.Description("Text as recognized"), mcp.Required()),
			mcp.WithString("corrected", mcp.Description("Text that was meant"), mcp.Required()),
			mcp.WithNumber("confidence", mcp.Description("Confidence of the correction 0-1 (default: 1)")),
		),
		s.handleLearn,
	)

	s.mcp.AddTool(
		mcp.NewTool("element",
			mcp.WithDescription("Look up a registry element by identity"),
			mcp.WithString("id", mcp.Description("Element identity"), mcp.Required()),
		),
		s.handleElement,
	)

	s.mcp.AddTool(
		mcp.NewTool("elements",
			mcp.WithDescription("List the current-epoch elements of a container in document order"),
			mcp.WithString("container", mcp.Description("Container (app) id; defaults to the current view")),
		),
		s.handleElements,
	)

	s.mcp.AddTool(
		mcp.NewTool("screens",
			mcp.WithDescription("List known screens with visit counts and transitions, most recent first"),
			mcp.WithString("container", mcp.Description("Container (app) id; empty lists all")),
		),
		s.handleScreens,
	)

	s.mcp.AddTool(
		mcp.NewTool("view",
			mcp.WithDescription("Show the current view: container, epoch, visible and focused elements"),
		),
		s.handleView,
	)
}

func (s *Server) handleIngest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	return toolResult(s.ingest(ctx, []byte(stringParam(params, "batch", ""))))
}

func (s *Server) handleCommand(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	return toolResult(s.command(ctx, engine.Command{
		Text:       stringParam(params, "text", ""),
		Locale:     stringParam(params, "locale", ""),
		Confidence: floatParam(params, "confidence", 1),
	}))
}

func (s *Server) handleResolve(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	return toolResult(s.resolve(ctx, stringParam(params, "text", ""), stringParam(params, "locale", "")))
}

func (s *Server) handleMatch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	m := s.eng.Matcher().Match(ctx, stringParam(params, "text", ""), stringParam(params, "locale", ""))
	return toolResult(m, nil)
}

func (s *Server) handleLearn(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	return toolResult(s.learn(ctx,
		stringParam(params, "original", ""),
		stringParam(params, "corrected", ""),
		floatParam(params, "confidence", 1)))
}

func (s *Server) handleElement(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	return toolResult(s.element(ctx, stringParam(params, "id", "")))
}

func (s *Server) handleElements(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	return toolResult(s.elements(stringParam(params, "container", "")), nil)
}

func (s *Server) handleScreens(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	params := request.GetArguments()
	return toolResult(s.eng.Registry().Screens(stringParam(params, "container", "")), nil)
}

func (s *Server) handleView(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return toolResult(s.view(), nil)
}
