package wire

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
)

// Delimiter terminates every frame on the wire.
const Delimiter = '\n'

// Encode renders the request as a single delimiter-terminated JSON frame.
func (r Request) Encode() ([]byte, error) {
	env := struct {
		Command   string         `json:"command"`
		Arguments map[string]any `json:"arguments,omitempty"`
		CustomTag string         `json:"customTag,omitempty"`
	}{
		Command:   r.Command,
		Arguments: r.Arguments,
		CustomTag: r.CustomTag,
	}

	b, err := json.Marshal(env)
	if err != nil {
		return nil, &ProtocolError{Reason: "encode request " + r.Command, Err: err}
	}
	return append(b, Delimiter), nil
}

// Encode renders the control frame as a single delimiter-terminated JSON
// frame with subscription parameters inlined at the top level.
func (r StreamRequest) Encode() ([]byte, error) {
	obj := make(map[string]any, len(r.Params)+2)
	for k, v := range r.Params {
		obj[k] = v
	}
	obj["command"] = r.Command
	if r.StreamSessionID != "" {
		obj["streamSessionId"] = r.StreamSessionID
	}

	b, err := json.Marshal(obj)
	if err != nil {
		return nil, &ProtocolError{Reason: "encode stream request " + r.Command, Err: err}
	}
	return append(b, Delimiter), nil
}

// Decode classifies a complete frame as either a solicited Response or an
// unsolicited PushRecord. Exactly one of the returns is non-nil on success.
func Decode(frame []byte) (*Response, *PushRecord, error) {
	var shape struct {
		Status  *string         `json:"status"`
		Command string          `json:"command"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(frame, &shape); err != nil {
		return nil, nil, &ProtocolError{Reason: "malformed frame", Frame: frame, Err: err}
	}

	switch {
	case shape.Status != nil:
		var resp Response
		if err := json.Unmarshal(frame, &resp); err != nil {
			return nil, nil, &ProtocolError{Reason: "malformed response", Frame: frame, Err: err}
		}
		if resp.Status != StatusOK && resp.Status != StatusError {
			return nil, nil, &ProtocolError{Reason: "unknown status " + resp.Status, Frame: frame}
		}
		return &resp, nil, nil

	case shape.Command != "" && shape.Data != nil:
		var push PushRecord
		if err := json.Unmarshal(frame, &push); err != nil {
			return nil, nil, &ProtocolError{Reason: "malformed push record", Frame: frame, Err: err}
		}
		return nil, &push, nil
	}

	return nil, nil, &ProtocolError{Reason: "frame is neither response nor push", Frame: frame}
}

// Scanner assembles delimiter-terminated frames from a byte stream.
//
// Socket reads do not align with frame boundaries: a frame may arrive in
// several reads, and a read that ends in a timeout may leave a partial
// frame behind. The scanner keeps partial data across calls and only
// yields complete frames. Blank lines between frames are skipped.
type Scanner struct {
	r       *bufio.Reader
	pending []byte
}

// NewScanner returns a scanner reading frames from r.
func NewScanner(r io.Reader) *Scanner {
	return &Scanner{r: bufio.NewReader(r)}
}

// Next returns the next complete frame without its delimiter. A read error
// (including a deadline timeout) is returned as-is; partial frame data
// stays buffered and the call can be retried.
func (s *Scanner) Next() ([]byte, error) {
	for {
		chunk, err := s.r.ReadBytes(Delimiter)
		s.pending = append(s.pending, chunk...)
		if err != nil {
			return nil, err
		}

		frame := bytes.TrimSpace(s.pending)
		s.pending = nil
		if len(frame) == 0 {
			// Delimiter padding between frames.
			continue
		}
		return frame, nil
	}
}

// Buffered reports whether a partial frame is waiting for more data.
func (s *Scanner) Buffered() bool {
	return len(s.pending) > 0
}
