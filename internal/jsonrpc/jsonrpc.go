// Package jsonrpc implements the subset of JSON-RPC 2.0 framing used by the
// MCP streamable HTTP transport: single (non-batched) requests, notifications
// and responses.
package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// Version is the only JSON-RPC protocol version this package accepts.
const Version = "2.0"

// ErrorCode is a JSON-RPC 2.0 error code.
type ErrorCode int

const (
	// ErrorCodeParseError indicates invalid JSON was received.
	ErrorCodeParseError ErrorCode = -32700
	// ErrorCodeInvalidRequest indicates the JSON is not a valid request object.
	ErrorCodeInvalidRequest ErrorCode = -32600
	// ErrorCodeMethodNotFound indicates the method does not exist.
	ErrorCodeMethodNotFound ErrorCode = -32601
	// ErrorCodeInvalidParams indicates invalid method parameters.
	ErrorCodeInvalidParams ErrorCode = -32602
	// ErrorCodeInternalError indicates an internal JSON-RPC error.
	ErrorCodeInternalError ErrorCode = -32603
	// ErrorCodeSessionRequired is the transport-assigned code for requests that
	// name no session and are not a valid initialization request.
	ErrorCodeSessionRequired ErrorCode = -32000
)

// Error is a JSON-RPC error object.
type Error struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Data    any       `json:"data,omitempty"`
}

// Request is a JSON-RPC request (ID set) or notification (ID absent).
type Request struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      *RequestID      `json:"id,omitempty"`
}

// IsNotification reports whether the request carries no ID.
func (r *Request) IsNotification() bool { return r.ID.IsNil() }

// Response is a JSON-RPC response carrying either a result or an error.
type Response struct {
	Version string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      *RequestID      `json:"id,omitempty"`
}

// NewResultResponse marshals result into a successful response for id.
func NewResultResponse(id *RequestID, result any) (*Response, error) {
	b, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return &Response{Version: Version, Result: b, ID: id}, nil
}

// NewErrorResponse builds an error response for id with the given code.
func NewErrorResponse(id *RequestID, code ErrorCode, message string, data any) *Response {
	return &Response{
		Version: Version,
		Error:   &Error{Code: code, Message: message, Data: data},
		ID:      id,
	}
}

// Message is a decoded JSON-RPC message of any kind. Use AsRequest/AsResponse
// to project it into the concrete shape.
type Message struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
	ID      *RequestID      `json:"id,omitempty"`
}

// UnmarshalJSON validates JSON-RPC 2.0 structure while decoding.
func (m *Message) UnmarshalJSON(data []byte) error {
	type plain Message
	var raw plain
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	if raw.Version != Version {
		return fmt.Errorf("unsupported jsonrpc version %q", raw.Version)
	}
	if raw.Method != "" {
		if len(raw.Result) > 0 || raw.Error != nil {
			return fmt.Errorf("request cannot carry result or error")
		}
	} else {
		if len(raw.Result) > 0 && raw.Error != nil {
			return fmt.Errorf("response cannot carry both result and error")
		}
		if len(raw.Result) == 0 && raw.Error == nil {
			return fmt.Errorf("message is neither request nor response")
		}
	}
	*m = Message(raw)
	return nil
}

// Kind returns "request", "notification" or "response".
func (m *Message) Kind() string {
	if m.Method != "" {
		if m.ID.IsNil() {
			return "notification"
		}
		return "request"
	}
	return "response"
}

// AsRequest projects the message into a Request, or nil if it is a response.
func (m *Message) AsRequest() *Request {
	if m.Method == "" {
		return nil
	}
	return &Request{Version: m.Version, Method: m.Method, Params: m.Params, ID: m.ID}
}

// AsResponse projects the message into a Response, or nil if it is a request.
func (m *Message) AsResponse() *Response {
	if m.Method != "" {
		return nil
	}
	return &Response{Version: m.Version, Result: m.Result, Error: m.Error, ID: m.ID}
}
