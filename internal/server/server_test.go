package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mj1618/voxnav/internal/engine"
	"github.com/mj1618/voxnav/internal/matcher"
	"github.com/mj1618/voxnav/internal/platform"
	"github.com/mj1618/voxnav/internal/registry"
	"github.com/mj1618/voxnav/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const mailBatch = `{
  "app": "com.example.mail",
  "version": "1.0",
  "title": "Mail",
  "elements": [
    {"ref": "1", "r": "btn", "t": "Inbox", "b": {"x": 0, "y": 0, "w": 200, "h": 48}, "flags": {"clickable": true}, "f": true},
    {"ref": "2", "r": "btn", "t": "Settings", "b": {"x": 0, "y": 60, "w": 200, "h": 48}, "flags": {"clickable": true}}
  ]
}`

func newTestServer(t *testing.T) (*Server, *platform.LogExecutor) {
	t.Helper()
	reg := registry.New(store.NewMemoryStore(), registry.Options{RetryInterval: time.Hour})
	t.Cleanup(func() { _ = reg.Close(context.Background()) })
	exec := platform.NewLogExecutor(nil)
	eng := engine.New(reg, matcher.New(reg, matcher.Options{}), exec, engine.Options{})
	t.Cleanup(func() { _ = eng.Close() })
	return New(eng, nil, "test"), exec
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var out map[string]interface{}
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec, out
}

func TestHTTP_IngestAndCommand(t *testing.T) {
	s, exec := newTestServer(t)
	h := s.Router()

	rec, body := do(t, h, http.MethodPost, "/v1/snapshots", mailBatch)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 1, body["generation"])
	assert.EqualValues(t, 2, body["elements"])
	assert.Equal(t, true, body["new_screen"])

	visible := s.eng.View().Visible
	require.Len(t, visible, 2)

	rec, body = do(t, h, http.MethodPost, "/v1/commands", `{"text": "tap settings"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, true, body["executed"])
	action := body["action"].(map[string]interface{})
	assert.Equal(t, "click", action["action"])
	assert.Equal(t, visible[1], action["target"])
	assert.Len(t, exec.History(), 1)

	rec, body = do(t, h, http.MethodGet, "/v1/elements/"+visible[1], "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Settings", body["t"])
	assert.EqualValues(t, 1, body["uses"])

	rec, body = do(t, h, http.MethodGet, "/v1/view", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, visible[0], body["focused"])
}

func TestHTTP_Errors(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()
	rec, _ := do(t, h, http.MethodPost, "/v1/snapshots", mailBatch)
	require.Equal(t, http.StatusOK, rec.Code)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		kind   string
	}{
		{"malformed command", http.MethodPost, "/v1/commands", `{"text": "dance wildly"}`, http.StatusBadRequest, "malformed_command"},
		{"unresolvable", http.MethodPost, "/v1/resolve", `{"text": "tap spaceship"}`, http.StatusNotFound, "unresolvable"},
		{"ordinal out of range", http.MethodPost, "/v1/resolve", `{"text": "tap the fifth button"}`, http.StatusNotFound, "unresolvable"},
		{"unknown element", http.MethodGet, "/v1/elements/nope", "", http.StatusNotFound, "not_found"},
		{"unknown field", http.MethodPost, "/v1/commands", `{"txt": "tap inbox"}`, http.StatusBadRequest, "bad_request"},
		{"empty text", http.MethodPost, "/v1/commands", `{"text": ""}`, http.StatusBadRequest, "bad_request"},
		{"batch without app", http.MethodPost, "/v1/snapshots", `{"elements": [{"r": "btn", "t": "x"}]}`, http.StatusBadRequest, "bad_request"},
		{"empty batch", http.MethodPost, "/v1/snapshots", `{"app": "com.example.mail"}`, http.StatusBadRequest, "bad_request"},
		{"learn same text", http.MethodPost, "/v1/corrections", `{"original": "Inbox", "corrected": "inbox"}`, http.StatusBadRequest, "bad_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, body := do(t, h, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.kind, body["kind"])
			assert.Equal(t, false, body["ok"])
		})
	}
}

func TestHTTP_LearnThenMatch(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Router()

	rec, body := do(t, h, http.MethodPost, "/v1/corrections", `{"original": "tapp inbocks", "corrected": "tap inbox", "confidence": 0.9}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "tapp inbocks", body["original"])
	assert.Equal(t, "tap inbox", body["corrected"])

	rec, body = do(t, h, http.MethodPost, "/v1/match", `{"text": "Tapp inbocks"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "learned", body["source"])
	assert.Equal(t, "tap inbox", body["text"])

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/corrections", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var list []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)
}

func TestHTTP_Health(t *testing.T) {
	s, _ := newTestServer(t)
	rec, body := do(t, s.Router(), http.MethodGet, "/healthz", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, body["ok"])
	assert.Equal(t, "test", body["version"])
	assert.Equal(t, false, body["degraded"])
}

func callTool(t *testing.T, handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), args map[string]interface{}) (string, bool) {
	t.Helper()
	var req mcp.CallToolRequest
	req.Params.Arguments = args
	res, err := handler(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok, "content is %T", res.Content[0])
	return tc.Text, res.IsError
}

func TestMCP_Tools(t *testing.T) {
	s, exec := newTestServer(t)

	text, isErr := callTool(t, s.handleIngest, map[string]interface{}{"batch": mailBatch})
	require.False(t, isErr, text)
	assert.Contains(t, text, "generation: 1")

	text, isErr = callTool(t, s.handleResolve, map[string]interface{}{"text": "press the first button"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "action: click")
	assert.Empty(t, exec.History(), "resolve does not execute")

	text, isErr = callTool(t, s.handleCommand, map[string]interface{}{"text": "tap inbox", "confidence": 0.9})
	require.False(t, isErr, text)
	assert.Contains(t, text, "executed: true")
	assert.Len(t, exec.History(), 1)

	text, isErr = callTool(t, s.handleCommand, map[string]interface{}{"text": "dance wildly"})
	assert.True(t, isErr)
	assert.Contains(t, text, "kind: malformed_command")

	text, isErr = callTool(t, s.handleElements, map[string]interface{}{})
	require.False(t, isErr, text)
	assert.Contains(t, text, "container: com.example.mail")
	assert.Contains(t, text, "t: Settings")

	text, isErr = callTool(t, s.handleScreens, map[string]interface{}{"container": "com.example.mail"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "visits: 1")

	text, isErr = callTool(t, s.handleMatch, map[string]interface{}{"text": "open settings"})
	require.False(t, isErr, text)
	assert.Contains(t, text, "source: catalog")

	text, isErr = callTool(t, s.handleElement, map[string]interface{}{"id": "missing"})
	assert.True(t, isErr)
	assert.Contains(t, text, "kind: not_found")
}

func TestNew_RegistersTools(t *testing.T) {
	s, _ := newTestServer(t)
	tools := s.MCP().ListTools()
	for _, name := range []string{"ingest", "command", "resolve", "match", "learn", "element", "elements", "screens", "view"} {
		assert.Contains(t, tools, name)
	}
}

func TestServeMCP_UnknownTransport(t *testing.T) {
	s, _ := newTestServer(t)
	assert.Error(t, s.ServeMCP(context.Background(), "carrier-pigeon", ""))
}
