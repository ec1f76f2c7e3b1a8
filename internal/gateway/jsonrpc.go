package gateway

import (
	"encoding/json"
	"strings"
)

const jsonrpcVersion = "2.0"

// JSON-RPC 2.0 error codes, plus one server-defined code for scope failures.
const (
	codeParseError        = -32700
	codeInvalidRequest    = -32600
	codeMethodNotFound    = -32601
	codeInvalidParams     = -32602
	codeInternalError     = -32603
	codeInsufficientScope = -32003
)

// Request is an inbound JSON-RPC 2.0 envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response is an outbound JSON-RPC 2.0 envelope. Exactly one of Result and
// Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string { return e.Message }

// parseRequest decodes and validates one envelope. The returned RPCError is
// ready to be sent back when the body is unusable.
func parseRequest(body []byte) (*Request, *RPCError) {
	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, &RPCError{Code: codeParseError, Message: "empty request body"}
	}
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, &RPCError{Code: codeParseError, Message: "invalid JSON"}
	}
	if req.JSONRPC != jsonrpcVersion {
		return nil, &RPCError{Code: codeInvalidRequest, Message: "jsonrpc must be \"2.0\""}
	}
	if strings.TrimSpace(req.Method) == "" {
		return nil, &RPCError{Code: codeInvalidRequest, Message: "method is required"}
	}
	return &req, nil
}

func resultResponse(id json.RawMessage, result any) Response {
	return Response{JSONRPC: jsonrpcVersion, ID: id, Result: result}
}

func errorResponse(id json.RawMessage, rpcErr *RPCError) Response {
	return Response{JSONRPC: jsonrpcVersion, ID: id, Error: rpcErr}
}
