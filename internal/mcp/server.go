// Package mcp exposes the meeting library to MCP clients.
//
// Four read-only tools are registered by [New]:
//   - "list_meetings"   lists every meeting, newest first.
//   - "search_meetings" runs a case-insensitive search over the text fields.
//   - "get_meeting"     returns one meeting with transcript and analysis.
//   - "export_meeting"  renders one meeting as Markdown or JSON.
//
// The server is mounted over the streamable HTTP transport by [Server.Handler]
// and can be attached to any other transport through [Server.MCPServer].
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/MrWong99/privanote/internal/export"
	"github.com/MrWong99/privanote/internal/meeting"
	"github.com/MrWong99/privanote/internal/observe"
)

// Server serves the meeting tools. All methods are safe for concurrent use.
type Server struct {
	store   meeting.Store
	metrics *observe.Metrics
	version string
	srv     *mcpsdk.Server
}

// Option is a functional option for [New].
type Option func(*Server)

// WithMetrics records every tool call on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithVersion sets the implementation version reported to clients.
func WithVersion(v string) Option {
	return func(s *Server) { s.version = v }
}

// New builds a server that reads from store.
func New(store meeting.Store, opts ...Option) *Server {
	s := &Server{store: store, version: "dev"}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}

	s.srv = mcpsdk.NewServer(&mcpsdk.Implementation{Name: "privanote", Version: s.version}, nil)
	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "list_meetings",
		Description: "List every stored meeting, newest first, with its summary.",
	}, s.listMeetings)
	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name: "search_meetings",
		Description: "Search meetings by a case-insensitive substring. " +
			"Searches title, notes, transcript and analysis unless fields is set.",
	}, s.searchMeetings)
	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "get_meeting",
		Description: "Return one meeting with its full transcript and analysis.",
	}, s.getMeeting)
	mcpsdk.AddTool(s.srv, &mcpsdk.Tool{
		Name:        "export_meeting",
		Description: "Render one meeting as a Markdown or JSON document.",
	}, s.exportMeeting)
	return s
}

// MCPServer returns the underlying SDK server.
func (s *Server) MCPServer() *mcpsdk.Server { return s.srv }

// Handler returns an http.Handler serving the streamable HTTP transport.
func (s *Server) Handler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server { return s.srv }, nil)
}

// ─────────────────────────────────────────────────────────────────────────────
// list_meetings
// ─────────────────────────────────────────────────────────────────────────────

// listMeetingsArgs is the JSON-decoded input for the "list_meetings" tool.
type listMeetingsArgs struct{}

// summary is the compact meeting view returned by list and search.
type summary struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Date     string  `json:"date"`
	Duration float64 `json:"duration_minutes"`
	Summary  string  `json:"summary"`
}

func summarize(ms []meeting.Meeting) []summary {
	out := make([]summary, 0, len(ms))
	for _, m := range ms {
		s := summary{ID: m.ID, Title: m.Title, Date: m.Date, Duration: m.Duration}
		if m.Analysis != nil {
			s.Summary = m.Analysis.Summary
		}
		out = append(out, s)
	}
	return out
}

func (s *Server) listMeetings(ctx context.Context, _ *mcpsdk.CallToolRequest, _ listMeetingsArgs) (*mcpsdk.CallToolResult, any, error) {
	ms, err := s.store.List(ctx)
	if err != nil {
		return s.fail(ctx, "list_meetings", err), nil, nil
	}
	return s.jsonResult(ctx, "list_meetings", summarize(ms)), nil, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// search_meetings
// ─────────────────────────────────────────────────────────────────────────────

// searchMeetingsArgs is the JSON-decoded input for the "search_meetings" tool.
type searchMeetingsArgs struct {
	// Query is matched case-insensitively as a substring.
	Query string `json:"query" jsonschema:"text to look for"`

	// Fields optionally restricts the search to title, notes, transcript or
	// analysis.
	Fields []string `json:"fields,omitempty" jsonschema:"fields to search, default all"`
}

func (s *Server) searchMeetings(ctx context.Context, _ *mcpsdk.CallToolRequest, args searchMeetingsArgs) (*mcpsdk.CallToolResult, any, error) {
	if args.Query == "" {
		return s.fail(ctx, "search_meetings", errors.New("query is required")), nil, nil
	}
	fields, err := meeting.ParseFields(args.Fields)
	if err != nil {
		return s.fail(ctx, "search_meetings", err), nil, nil
	}
	ms, err := s.store.Search(ctx, args.Query, fields...)
	if err != nil {
		return s.fail(ctx, "search_meetings", err), nil, nil
	}
	return s.jsonResult(ctx, "search_meetings", summarize(ms)), nil, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// get_meeting
// ─────────────────────────────────────────────────────────────────────────────

// getMeetingArgs is the JSON-decoded input for the "get_meeting" tool.
type getMeetingArgs struct {
	ID string `json:"id" jsonschema:"meeting id as returned by list_meetings"`
}

func (s *Server) getMeeting(ctx context.Context, _ *mcpsdk.CallToolRequest, args getMeetingArgs) (*mcpsdk.CallToolResult, any, error) {
	m, err := s.store.Get(ctx, args.ID)
	if err != nil {
		return s.fail(ctx, "get_meeting", err), nil, nil
	}
	return s.jsonResult(ctx, "get_meeting", m), nil, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// export_meeting
// ─────────────────────────────────────────────────────────────────────────────

// exportMeetingArgs is the JSON-decoded input for the "export_meeting" tool.
type exportMeetingArgs struct {
	ID string `json:"id" jsonschema:"meeting id"`

	// Format is markdown or json. Defaults to markdown.
	Format string `json:"format,omitempty" jsonschema:"markdown or json"`
}

func (s *Server) exportMeeting(ctx context.Context, _ *mcpsdk.CallToolRequest, args exportMeetingArgs) (*mcpsdk.CallToolResult, any, error) {
	f, err := export.ParseFormat(args.Format)
	if err != nil {
		return s.fail(ctx, "export_meeting", err), nil, nil
	}
	m, err := s.store.Get(ctx, args.ID)
	if err != nil {
		return s.fail(ctx, "export_meeting", err), nil, nil
	}
	doc, err := export.Render(m, f)
	if err != nil {
		return s.fail(ctx, "export_meeting", err), nil, nil
	}
	s.metrics.RecordToolCall(ctx, "export_meeting", "ok")
	return textResult(doc), nil, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Result helpers
// ─────────────────────────────────────────────────────────────────────────────

func textResult(text string) *mcpsdk.CallToolResult {
	return &mcpsdk.CallToolResult{Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}}}
}

// jsonResult encodes v as indented JSON text and records a successful call.
func (s *Server) jsonResult(ctx context.Context, tool string, v any) *mcpsdk.CallToolResult {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return s.fail(ctx, tool, fmt.Errorf("mcp: encode %s result: %w", tool, err))
	}
	s.metrics.RecordToolCall(ctx, tool, "ok")
	return textResult(string(b))
}

// fail reports err to the client as a tool error so the model can react to
// it, and records a failed call.
func (s *Server) fail(ctx context.Context, tool string, err error) *mcpsdk.CallToolResult {
	s.metrics.RecordToolCall(ctx, tool, "error")
	observe.Logger(ctx).Debug("mcp tool failed", "tool", tool, "err", err)
	res := textResult(err.Error())
	res.IsError = true
	return res
}
