package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/relaydocs/relaydocs/internal/oauth/scope"
	"github.com/relaydocs/relaydocs/internal/observability/logger"
	"github.com/relaydocs/relaydocs/internal/observability/metrics"
	repodomain "github.com/relaydocs/relaydocs/internal/repo/domain"
	"github.com/relaydocs/relaydocs/internal/requestlog"
	"go.uber.org/zap"
)

// Call carries the already-authenticated context of one gateway request.
// The server layer fills it in after token validation and entitlement.
type Call struct {
	Repository *repodomain.Repository
	ClientID   string
	UserID     snowflake.ID
	Scopes     []scope.Scope
	RequestID  string
	RemoteIP   string
}

// Dispatcher executes JSON-RPC envelopes against the tool collaborators.
// It is stateless; every call is independent.
type Dispatcher struct {
	search  Searcher
	sources SourceLister
	info    InfoProvider
	metrics *metrics.Metrics
	logs    *requestlog.Writer
	log     *zap.Logger

	serverName    string
	serverVersion string
}

type Deps struct {
	Search  Searcher
	Sources SourceLister
	Info    InfoProvider
	Metrics *metrics.Metrics
	Logs    *requestlog.Writer
}

func NewDispatcher(deps Deps, serverName, serverVersion string, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		search:        deps.Search,
		sources:       deps.Sources,
		info:          deps.Info,
		metrics:       deps.Metrics,
		logs:          deps.Logs,
		log:           log.Named("gateway"),
		serverName:    serverName,
		serverVersion: serverVersion,
	}
}

// Handle parses one envelope, dispatches it and returns the response to
// send. The outcome is appended to the request log regardless of success.
func (d *Dispatcher) Handle(ctx context.Context, call Call, body []byte) Response {
	started := time.Now()

	req, rpcErr := parseRequest(body)
	if rpcErr != nil {
		resp := errorResponse(nil, rpcErr)
		d.record(call, "", "", started, rpcErr)
		return resp
	}

	result, query, rpcErr := d.dispatch(ctx, call, req)
	d.record(call, req.Method, query, started, rpcErr)
	if d.metrics != nil {
		d.metrics.RecordGatewayRequest(ctx, call.Repository.Slug, req.Method)
	}
	if rpcErr != nil {
		return errorResponse(req.ID, rpcErr)
	}
	return resultResponse(req.ID, result)
}

func (d *Dispatcher) dispatch(ctx context.Context, call Call, req *Request) (any, string, *RPCError) {
	switch req.Method {
	case "initialize":
		return d.initializeResult(), "", nil
	case "ping":
		return struct{}{}, "", nil
	case "tools/list":
		return mcp.ListToolsResult{Tools: toolCatalog()}, "", nil
	case "tools/call":
		return d.callTool(ctx, call, req.Params)
	default:
		return nil, "", &RPCError{Code: codeMethodNotFound, Message: fmt.Sprintf("method %q not found", req.Method)}
	}
}

func (d *Dispatcher) initializeResult() mcp.InitializeResult {
	capabilities := mcp.ServerCapabilities{}
	capabilities.Tools = &struct {
		ListChanged bool `json:"listChanged,omitempty"`
	}{}
	return mcp.InitializeResult{
		ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
		Capabilities:    capabilities,
		ServerInfo: mcp.Implementation{
			Name:    d.serverName,
			Version: d.serverVersion,
		},
	}
}

// Metadata describes the gateway endpoint for plain GET requests.
type Metadata struct {
	Repository      string   `json:"repository"`
	Name            string   `json:"name"`
	Description     string   `json:"description,omitempty"`
	ProtocolVersion string   `json:"protocol_version"`
	Tools           []string `json:"tools"`
}

func (d *Dispatcher) Metadata(repository *repodomain.Repository) Metadata {
	tools := toolCatalog()
	names := make([]string, 0, len(tools))
	for _, tool := range tools {
		names = append(names, tool.Name)
	}
	return Metadata{
		Repository:      repository.Slug,
		Name:            repository.Name,
		Description:     repository.Description,
		ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
		Tools:           names,
	}
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

func (d *Dispatcher) callTool(ctx context.Context, call Call, raw json.RawMessage) (any, string, *RPCError) {
	var params callToolParams
	if len(raw) == 0 {
		return nil, "", &RPCError{Code: codeInvalidParams, Message: "params are required for tools/call"}
	}
	if err := json.Unmarshal(raw, &params); err != nil {
		return nil, "", &RPCError{Code: codeInvalidParams, Message: "invalid tools/call params"}
	}

	name := strings.TrimSpace(params.Name)
	required, known := toolScopes[name]
	if !known {
		return nil, "", &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("unknown tool %q", name)}
	}
	if !scope.Contains(call.Scopes, required) {
		return nil, "", &RPCError{
			Code:    codeInsufficientScope,
			Message: fmt.Sprintf("token is missing the %q scope", required),
		}
	}

	switch name {
	case toolSearch:
		return d.runSearch(ctx, call, params.Arguments)
	case toolListSources:
		result, rpcErr := d.runListSources(ctx, call)
		return result, "", rpcErr
	default:
		result, rpcErr := d.runGetInfo(ctx, call)
		return result, "", rpcErr
	}
}

func (d *Dispatcher) runSearch(ctx context.Context, call Call, args map[string]any) (any, string, *RPCError) {
	query, _ := args["query"].(string)
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, "", &RPCError{Code: codeInvalidParams, Message: "search requires a non-empty \"query\" argument"}
	}

	limit := defaultSearchLimit
	if raw, ok := args["limit"].(float64); ok {
		limit = int(raw)
	}
	if limit < 1 || limit > maxSearchLimit {
		return nil, query, &RPCError{Code: codeInvalidParams, Message: fmt.Sprintf("limit must be between 1 and %d", maxSearchLimit)}
	}

	results, err := d.search.Search(ctx, call.Repository.ID, query, limit)
	if err != nil {
		return nil, query, d.upstreamError(ctx, "search", err)
	}

	if len(results) == 0 {
		return mcp.NewToolResultText("No matching passages found."), query, nil
	}
	var b strings.Builder
	for i, result := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		if result.Title != "" {
			fmt.Fprintf(&b, "[%d] %s (%s)\n%s", i+1, result.Title, result.Source, result.Snippet)
		} else {
			fmt.Fprintf(&b, "[%d] %s\n%s", i+1, result.Source, result.Snippet)
		}
	}
	return mcp.NewToolResultText(b.String()), query, nil
}

func (d *Dispatcher) runListSources(ctx context.Context, call Call) (any, *RPCError) {
	sources, err := d.sources.ListSources(ctx, call.Repository.ID)
	if err != nil {
		return nil, d.upstreamError(ctx, "list_sources", err)
	}

	if len(sources) == 0 {
		return mcp.NewToolResultText("This repository has no ingested sources yet."), nil
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d sources:\n", len(sources))
	for _, source := range sources {
		fmt.Fprintf(&b, "- %s (%s)", source.Name, source.Kind)
		if source.UpdatedAt != "" {
			fmt.Fprintf(&b, ", updated %s", source.UpdatedAt)
		}
		b.WriteString("\n")
	}
	return mcp.NewToolResultText(strings.TrimRight(b.String(), "\n")), nil
}

func (d *Dispatcher) runGetInfo(ctx context.Context, call Call) (any, *RPCError) {
	info, err := d.info.GetInfo(ctx, call.Repository.ID)
	if err != nil {
		return nil, d.upstreamError(ctx, "get_info", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s\n", info.Name)
	if info.Description != "" {
		fmt.Fprintf(&b, "%s\n", info.Description)
	}
	fmt.Fprintf(&b, "Sources: %d, indexed chunks: %d", info.SourceCount, info.ChunkCount)
	return mcp.NewToolResultText(b.String()), nil
}

// upstreamError logs the collaborator failure and returns an opaque
// internal error so backend detail never reaches the caller.
func (d *Dispatcher) upstreamError(ctx context.Context, tool string, err error) *RPCError {
	logger.WithContext(ctx, d.log).Error("tool collaborator failed",
		zap.String("tool", tool),
		zap.Error(err),
	)
	return &RPCError{Code: codeInternalError, Message: "internal error"}
}

func (d *Dispatcher) record(call Call, method, query string, started time.Time, rpcErr *RPCError) {
	if d.logs == nil {
		return
	}
	d.logs.Record(requestlog.Entry{
		RepositoryID: call.Repository.ID,
		ClientID:     call.ClientID,
		UserID:       call.UserID.String(),
		Method:       method,
		Query:        query,
		StatusCode:   statusOf(rpcErr),
		Duration:     time.Since(started),
		RequestID:    call.RequestID,
		RemoteIP:     call.RemoteIP,
	})
}

// statusOf maps an RPC error to the status recorded in the request log.
// The HTTP response itself stays 200 for protocol-level errors.
func statusOf(rpcErr *RPCError) int {
	if rpcErr == nil {
		return http.StatusOK
	}
	switch rpcErr.Code {
	case codeParseError, codeInvalidRequest, codeInvalidParams:
		return http.StatusBadRequest
	case codeMethodNotFound:
		return http.StatusNotFound
	case codeInsufficientScope:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
