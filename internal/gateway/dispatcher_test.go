package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/relaydocs/relaydocs/internal/oauth/scope"
	repodomain "github.com/relaydocs/relaydocs/internal/repo/domain"
	"github.com/relaydocs/relaydocs/internal/requestlog"
	"github.com/relaydocs/relaydocs/pkg/db"
	"go.uber.org/zap"
)

type fakeSearcher struct {
	results []SearchResult
	err     error
	query   string
}

func (f *fakeSearcher) Search(_ context.Context, _ snowflake.ID, query string, _ int) ([]SearchResult, error) {
	f.query = query
	return f.results, f.err
}

type fakeSourceLister struct {
	sources []Source
	err     error
}

func (f *fakeSourceLister) ListSources(context.Context, snowflake.ID) ([]Source, error) {
	return f.sources, f.err
}

type fakeInfoProvider struct {
	info *RepositoryInfo
	err  error
}

func (f *fakeInfoProvider) GetInfo(context.Context, snowflake.ID) (*RepositoryInfo, error) {
	return f.info, f.err
}

type fixture struct {
	dispatcher *Dispatcher
	search     *fakeSearcher
	sources    *fakeSourceLister
	info       *fakeInfoProvider
	call       Call
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}

	search := &fakeSearcher{}
	sources := &fakeSourceLister{}
	info := &fakeInfoProvider{}
	deps := Deps{Search: search, Sources: sources, Info: info}

	repository := &repodomain.Repository{
		ID:             node.Generate(),
		OwnerID:        node.Generate(),
		Name:           "Payment Docs",
		Slug:           "payment-docs",
		Public:         true,
		GatewayEnabled: true,
	}
	call := Call{
		Repository: repository,
		ClientID:   "rd_ci_test",
		UserID:     node.Generate(),
		Scopes:     scope.All(),
	}

	return &fixture{
		dispatcher: NewDispatcher(deps, "relaydocs", "test", zap.NewNop()),
		search:     search,
		sources:    sources,
		info:       info,
		call:       call,
	}
}

func rpcBody(t *testing.T, method string, params any) []byte {
	t.Helper()
	req := map[string]any{"jsonrpc": "2.0", "id": 1, "method": method}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	return body
}

func TestHandleRejectsMalformedEnvelopes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		body string
		code int
	}{
		{"empty body", "", codeParseError},
		{"bad json", "{not json", codeParseError},
		{"wrong version", `{"jsonrpc":"1.0","id":1,"method":"ping"}`, codeInvalidRequest},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, codeInvalidRequest},
	}
	for _, tc := range cases {
		resp := f.dispatcher.Handle(ctx, f.call, []byte(tc.body))
		if resp.Error == nil || resp.Error.Code != tc.code {
			t.Fatalf("%s: expected error code %d, got %+v", tc.name, tc.code, resp.Error)
		}
	}
}

func TestUnknownMethodReturnsMethodNotFound(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatcher.Handle(context.Background(), f.call, rpcBody(t, "resources/list", nil))
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method-not-found, got %+v", resp)
	}
}

func TestInitializeAdvertisesTools(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatcher.Handle(context.Background(), f.call, rpcBody(t, "initialize", nil))
	if resp.Error != nil {
		t.Fatalf("initialize failed: %+v", resp.Error)
	}
	result, ok := resp.Result.(mcp.InitializeResult)
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	if result.ProtocolVersion == "" || result.ServerInfo.Name != "relaydocs" {
		t.Fatalf("unexpected initialize result: %+v", result)
	}
	if result.Capabilities.Tools == nil {
		t.Fatal("expected tools capability to be advertised")
	}
}

func TestPing(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatcher.Handle(context.Background(), f.call, rpcBody(t, "ping", nil))
	if resp.Error != nil {
		t.Fatalf("ping failed: %+v", resp.Error)
	}
}

func TestToolsListReturnsCatalog(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatcher.Handle(context.Background(), f.call, rpcBody(t, "tools/list", nil))
	if resp.Error != nil {
		t.Fatalf("tools/list failed: %+v", resp.Error)
	}
	result, ok := resp.Result.(mcp.ListToolsResult)
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	names := make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		names = append(names, tool.Name)
	}
	want := []string{"search", "list_sources", "get_info"}
	if len(names) != len(want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, names)
		}
	}
}

func TestSearchToolFormatsResults(t *testing.T) {
	f := newFixture(t)
	f.search.results = []SearchResult{
		{Source: "guide.md", Title: "Getting started", Snippet: "Install the CLI first.", Score: 0.92},
		{Source: "faq.md", Snippet: "Tokens expire after one hour.", Score: 0.71},
	}

	resp := f.dispatcher.Handle(context.Background(), f.call, rpcBody(t, "tools/call", map[string]any{
		"name":      "search",
		"arguments": map[string]any{"query": "token expiry", "limit": 5},
	}))
	if resp.Error != nil {
		t.Fatalf("search failed: %+v", resp.Error)
	}
	if f.search.query != "token expiry" {
		t.Fatalf("expected query forwarded, got %q", f.search.query)
	}
	result, ok := resp.Result.(*mcp.CallToolResult)
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	text := toolText(t, result)
	if !strings.Contains(text, "Getting started") || !strings.Contains(text, "Tokens expire") {
		t.Fatalf("unexpected tool text: %q", text)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatcher.Handle(context.Background(), f.call, rpcBody(t, "tools/call", map[string]any{
		"name":      "search",
		"arguments": map[string]any{},
	}))
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid-params, got %+v", resp)
	}
}

func TestToolCallEnforcesScopes(t *testing.T) {
	f := newFixture(t)
	f.call.Scopes = []scope.Scope{scope.Search}

	resp := f.dispatcher.Handle(context.Background(), f.call, rpcBody(t, "tools/call", map[string]any{
		"name": "get_info",
	}))
	if resp.Error == nil || resp.Error.Code != codeInsufficientScope {
		t.Fatalf("expected insufficient-scope, got %+v", resp)
	}
}

func TestUnknownToolRejected(t *testing.T) {
	f := newFixture(t)

	resp := f.dispatcher.Handle(context.Background(), f.call, rpcBody(t, "tools/call", map[string]any{
		"name": "delete_everything",
	}))
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected invalid-params for unknown tool, got %+v", resp)
	}
}

func TestCollaboratorFailureIsOpaque(t *testing.T) {
	f := newFixture(t)
	f.sources.err = errors.New("search-svc: connection refused to 10.0.0.7:9200")

	resp := f.dispatcher.Handle(context.Background(), f.call, rpcBody(t, "tools/call", map[string]any{
		"name": "list_sources",
	}))
	if resp.Error == nil || resp.Error.Code != codeInternalError {
		t.Fatalf("expected internal error, got %+v", resp)
	}
	if strings.Contains(resp.Error.Message, "10.0.0.7") {
		t.Fatalf("internal detail leaked: %q", resp.Error.Message)
	}
}

func TestGetInfoTool(t *testing.T) {
	f := newFixture(t)
	f.info.info = &RepositoryInfo{Name: "Payment Docs", SourceCount: 3, ChunkCount: 120}

	resp := f.dispatcher.Handle(context.Background(), f.call, rpcBody(t, "tools/call", map[string]any{
		"name": "get_info",
	}))
	if resp.Error != nil {
		t.Fatalf("get_info failed: %+v", resp.Error)
	}
	result, ok := resp.Result.(*mcp.CallToolResult)
	if !ok {
		t.Fatalf("unexpected result type %T", resp.Result)
	}
	text := toolText(t, result)
	if !strings.Contains(text, "Sources: 3") {
		t.Fatalf("unexpected tool text: %q", text)
	}
}

func TestOutcomesAreLogged(t *testing.T) {
	f := newFixture(t)

	dbConn, err := db.NewTest()
	if err != nil {
		t.Fatalf("failed to open db: %v", err)
	}
	if err := dbConn.AutoMigrate(&requestlog.RequestLog{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	node, err := snowflake.NewNode(2)
	if err != nil {
		t.Fatalf("failed to create snowflake node: %v", err)
	}
	writer := requestlog.NewWriter(dbConn, node, zap.NewNop())
	f.dispatcher.logs = writer

	f.search.results = []SearchResult{{Source: "guide.md", Snippet: "hello"}}
	f.dispatcher.Handle(context.Background(), f.call, rpcBody(t, "tools/call", map[string]any{
		"name":      "search",
		"arguments": map[string]any{"query": "hello"},
	}))
	f.dispatcher.Handle(context.Background(), f.call, rpcBody(t, "nope", nil))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := writer.Close(ctx); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	logs, err := writer.ListByRepository(context.Background(), f.call.Repository.ID, 10)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 2 {
		t.Fatalf("expected 2 log rows, got %d", len(logs))
	}
	byMethod := map[string]requestlog.RequestLog{}
	for _, row := range logs {
		byMethod[row.Method] = row
	}
	if row := byMethod["tools/call"]; row.Query != "hello" || row.StatusCode != http.StatusOK {
		t.Fatalf("unexpected tools/call row: %+v", row)
	}
	if row := byMethod["nope"]; row.StatusCode != http.StatusNotFound {
		t.Fatalf("unexpected unknown-method row: %+v", row)
	}
}

func TestStreamSessionEmitsOpenAndKeepAlive(t *testing.T) {
	f := newFixture(t)

	recorder := httptest.NewRecorder()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.dispatcher.StreamSession(ctx, recorder, f.call, 10*time.Millisecond)
	}()

	time.Sleep(60 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("stream session: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("stream session did not stop on cancel")
	}

	body := recorder.Body.String()
	if !strings.Contains(body, "event: session-open") {
		t.Fatalf("missing session-open event: %q", body)
	}
	if !strings.Contains(body, fmt.Sprintf("%q", f.call.Repository.Slug)) {
		t.Fatalf("session-open missing repository: %q", body)
	}
	if !strings.Contains(body, ": keep-alive") {
		t.Fatalf("missing keep-alive frames: %q", body)
	}
	if got := recorder.Header().Get("Content-Type"); got != "text/event-stream" {
		t.Fatalf("unexpected content type %q", got)
	}
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("empty tool content")
	}
	text, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("unexpected content type %T", result.Content[0])
	}
	return text.Text
}
