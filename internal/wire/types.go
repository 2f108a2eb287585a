package wire

import (
	"encoding/json"
	"fmt"
)

// Response status values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Record is the payload of a single pushed stream frame. Payloads are
// pass-through: the venue defines their fields, the client does not.
type Record map[string]any

// Request is a command-channel request envelope.
type Request struct {
	Command   string
	Arguments map[string]any
	// CustomTag is echoed back by the venue in the matching Response.
	CustomTag string
}

// StreamRequest is a stream-channel control frame. Subscription parameters
// sit at the top level of the object, next to the command itself.
type StreamRequest struct {
	Command         string
	StreamSessionID string
	Params          map[string]any
}

// Response is a solicited command-channel reply.
type Response struct {
	Status          string          `json:"status"`
	ReturnData      json.RawMessage `json:"returnData,omitempty"`
	StreamSessionID string          `json:"streamSessionId,omitempty"`
	ErrorCode       string          `json:"errorCode,omitempty"`
	ErrorDescr      string          `json:"errorDescr,omitempty"`
	CustomTag       string          `json:"customTag,omitempty"`
}

// OK reports whether the venue accepted the command.
func (r *Response) OK() bool {
	return r.Status == StatusOK
}

// Err returns the business-level rejection carried by the response, or nil
// when the command succeeded. Business rejections are values, not
// transport failures.
func (r *Response) Err() error {
	if r.OK() {
		return nil
	}
	return &APIError{Code: r.ErrorCode, Descr: r.ErrorDescr}
}

// Decode unmarshals returnData into v.
func (r *Response) Decode(v any) error {
	if len(r.ReturnData) == 0 {
		return fmt.Errorf("response for decode has no returnData")
	}
	if err := json.Unmarshal(r.ReturnData, v); err != nil {
		return fmt.Errorf("decode returnData: %w", err)
	}
	return nil
}

// PushRecord is an unsolicited stream-channel frame. Command names the
// feed that produced it (e.g. "tickPrices").
type PushRecord struct {
	Command string `json:"command"`
	Data    Record `json:"data"`
}

// APIError is a well-formed venue rejection (status "error"). It carries
// the venue's own error code and description for the caller to interpret.
type APIError struct {
	Code  string
	Descr string
}

func (e *APIError) Error() string {
	if e.Descr == "" {
		return "venue error " + e.Code
	}
	return "venue error " + e.Code + ": " + e.Descr
}

// ProtocolError marks a frame the codec could not make sense of: malformed
// JSON, or a shape that is neither a response nor a push. Protocol errors
// are never retried.
type ProtocolError struct {
	Reason string
	Frame  []byte
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return "protocol error: " + e.Reason + ": " + e.Err.Error()
	}
	return "protocol error: " + e.Reason
}

func (e *ProtocolError) Unwrap() error {
	return e.Err
}
