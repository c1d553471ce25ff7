// Package transport serves the JSON-RPC 2.0 surface over HTTP, with
// session streaming via server-sent events.
package transport

import (
	"encoding/json"

	"github.com/kadirpekel/dossier/pkg/research"
)

// Request is a JSON-RPC 2.0 request envelope.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// Notification is a JSON-RPC 2.0 notification (no id).
type Notification struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// RPCError is a JSON-RPC 2.0 error object.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Standard JSON-RPC 2.0 error codes.
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// errorData carries the taxonomy label alongside the message.
type errorData struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// rpcErrorFrom maps a session error onto a JSON-RPC error object.
// Validation failures are invalid params, bad configuration is an
// invalid request, everything else is internal; all carry the
// taxonomy type in data.
func rpcErrorFrom(err error) *RPCError {
	errType := research.Classify(err)
	code := InternalError
	switch errType {
	case research.ErrTypeValidation:
		code = InvalidParams
	case research.ErrTypeConfig:
		code = InvalidRequest
	}
	return &RPCError{
		Code:    code,
		Message: err.Error(),
		Data:    errorData{Type: errType, Message: err.Error()},
	}
}

func newResponse(id interface{}, result interface{}) Response {
	return Response{JSONRPC: "2.0", ID: id, Result: result}
}

func newErrorResponse(id interface{}, rpcErr *RPCError) Response {
	return Response{JSONRPC: "2.0", ID: id, Error: rpcErr}
}

func newNotification(method string, params interface{}) Notification {
	return Notification{JSONRPC: "2.0", Method: method, Params: params}
}
