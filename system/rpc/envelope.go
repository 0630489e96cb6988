// Package rpc implements flowrt's name-based procedure dispatch layer:
// registration, the {p,i}/{ok,r|error} envelope, and transport-agnostic
// call semantics (§4.4).
package rpc

import "encoding/json"

// Request is the wire envelope a transport decodes before dispatch.
type Request struct {
	Procedure string          `json:"p"`
	Input     json.RawMessage `json:"i"`
}

// Response is the wire envelope a transport encodes after dispatch.
type Response struct {
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"r,omitempty"`
	Error  *ErrorInfo      `json:"error,omitempty"`
}

// ErrorInfo is the structured failure half of a Response.
type ErrorInfo struct {
	Code          string         `json:"code"`
	Message       string         `json:"message"`
	CorrelationID string         `json:"correlationId,omitempty"`
	Details       map[string]any `json:"details,omitempty"`

	// HTTPStatus is the status a transport should map this error to; it is
	// never serialized onto the wire (WS/SSE clients key off Code).
	HTTPStatus int `json:"-"`
}

// Success builds an {ok:true,r:...} Response from any JSON-marshalable result.
func Success(result any) Response {
	raw, err := json.Marshal(result)
	if err != nil {
		return Failure(Internal(err), "")
	}
	return Response{OK: true, Result: raw}
}

// Failure builds an {ok:false,error:...} Response, stamping correlationID
// into the error payload when non-empty.
func Failure(err *ErrorInfo, correlationID string) Response {
	if correlationID != "" {
		err.CorrelationID = correlationID
	}
	return Response{OK: false, Error: err}
}
