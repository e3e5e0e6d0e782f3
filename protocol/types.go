// Package protocol defines the JSON messages carried inside sealed
// envelopes and the wire-visible error codes.
//
// Wire shapes (inside the envelope, UTF-8 JSON):
//
//	request  := {"method": string, "params": object}
//	response := {"jsonrpc": "2.0", "result": any}
//	         |  {"jsonrpc": "2.0", "error": {"code": string, "message": string}}
//
// Exactly one of result/error appears in a response, never both.
package protocol

import "encoding/json"

// Version is the response envelope version tag.
const Version = "2.0"

// Error codes carried in RPCError.Code.
const (
	CodeInvalidRequest  = "invalid_request"
	CodeInternalError   = "internal_error"
	CodeMessageTooLarge = "message_too_large"
	CodeRateLimited     = "rate_limited"
)

// Request is one RPC call.
type Request struct {
	Method string         `json:"method"`
	Params map[string]any `json:"params,omitempty"`
}

// RPCError is the structured error half of a response. It implements error
// so handlers can return it directly to control the wire code.
type RPCError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string { return e.Code + ": " + e.Message }

// Response is the reply to one request. Error non-nil means failure; Result
// is only meaningful when Error is nil.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	Result  any       `json:"result"`
	Error   *RPCError `json:"error,omitempty"`
}

// MarshalJSON enforces the result/error exclusivity: an error response
// carries no result key, and a success response always carries result,
// even when it is null.
func (r *Response) MarshalJSON() ([]byte, error) {
	if r.Error != nil {
		return json.Marshal(struct {
			JSONRPC string    `json:"jsonrpc"`
			Error   *RPCError `json:"error"`
		}{r.JSONRPC, r.Error})
	}
	return json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		Result  any    `json:"result"`
	}{r.JSONRPC, r.Result})
}

// NewResult builds a success response.
func NewResult(result any) *Response {
	return &Response{JSONRPC: Version, Result: result}
}

// NewError builds an error response.
func NewError(code, message string) *Response {
	return &Response{JSONRPC: Version, Error: &RPCError{Code: code, Message: message}}
}
