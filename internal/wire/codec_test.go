package wire

import (
	"encoding/json"
	"errors"
	"io"
	"testing"
)

func TestRequestEncode(t *testing.T) {
	frame, err := Request{
		Command:   "getSymbol",
		Arguments: map[string]any{"symbol": "EURUSD"},
		CustomTag: "tag-1",
	}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if frame[len(frame)-1] != Delimiter {
		t.Fatal("frame not delimiter-terminated")
	}

	var env map[string]any
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("frame is not valid JSON: %v", err)
	}
	if env["command"] != "getSymbol" {
		t.Errorf("command = %v", env["command"])
	}
	args, ok := env["arguments"].(map[string]any)
	if !ok || args["symbol"] != "EURUSD" {
		t.Errorf("arguments = %v", env["arguments"])
	}
	if env["customTag"] != "tag-1" {
		t.Errorf("customTag = %v", env["customTag"])
	}
}

func TestRequestEncodeOmitsEmptyFields(t *testing.T) {
	frame, err := Request{Command: "ping"}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var env map[string]any
	if err := json.Unmarshal(frame, &env); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, ok := env["arguments"]; ok {
		t.Error("empty arguments not omitted")
	}
	if _, ok := env["customTag"]; ok {
		t.Error("empty customTag not omitted")
	}
}

func TestStreamRequestEncodeInlinesParams(t *testing.T) {
	frame, err := StreamRequest{
		Command:         "streamTickPrices",
		StreamSessionID: "ssid-1",
		Params:          map[string]any{"symbol": "EURUSD"},
	}.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(frame, &obj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if obj["command"] != "streamTickPrices" {
		t.Errorf("command = %v", obj["command"])
	}
	if obj["streamSessionId"] != "ssid-1" {
		t.Errorf("streamSessionId = %v", obj["streamSessionId"])
	}
	// Params sit at the top level, not nested.
	if obj["symbol"] != "EURUSD" {
		t.Errorf("symbol = %v", obj["symbol"])
	}
}

func TestDecodeClassification(t *testing.T) {
	tests := []struct {
		name     string
		frame    string
		wantResp bool
		wantPush bool
	}{
		{"ok response", `{"status":"ok","returnData":{"version":"2.5"}}`, true, false},
		{"error response", `{"status":"error","errorCode":"BE005","errorDescr":"bad creds"}`, true, false},
		{"login response", `{"status":"ok","streamSessionId":"ssid-1"}`, true, false},
		{"push record", `{"command":"tickPrices","data":{"symbol":"EURUSD","bid":1.1}}`, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, push, err := Decode([]byte(tt.frame))
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if (resp != nil) != tt.wantResp || (push != nil) != tt.wantPush {
				t.Errorf("got resp=%v push=%v", resp != nil, push != nil)
			}
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	frames := []string{
		`not json at all`,
		`{"neither":"response","nor":"push"}`,
		`{"status":"maybe"}`,
		`{"command":"tickPrices"}`,
	}

	for _, frame := range frames {
		_, _, err := Decode([]byte(frame))
		var pe *ProtocolError
		if !errors.As(err, &pe) {
			t.Errorf("Decode(%q) err = %v, want *ProtocolError", frame, err)
		}
	}
}

func TestResponseErr(t *testing.T) {
	ok := &Response{Status: StatusOK}
	if err := ok.Err(); err != nil {
		t.Errorf("ok response Err = %v", err)
	}

	rej := &Response{Status: StatusError, ErrorCode: "BE005", ErrorDescr: "bad creds"}
	var apiErr *APIError
	if !errors.As(rej.Err(), &apiErr) {
		t.Fatalf("Err = %v, want *APIError", rej.Err())
	}
	if apiErr.Code != "BE005" {
		t.Errorf("code = %q", apiErr.Code)
	}
}

func TestResponseDecode(t *testing.T) {
	resp := &Response{Status: StatusOK, ReturnData: json.RawMessage(`{"version":"2.5"}`)}

	var rd struct {
		Version string `json:"version"`
	}
	if err := resp.Decode(&rd); err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if rd.Version != "2.5" {
		t.Errorf("version = %q", rd.Version)
	}

	empty := &Response{Status: StatusOK}
	if err := empty.Decode(&rd); err == nil {
		t.Error("expected error decoding empty returnData")
	}
}

// chunkReader yields its script one element per Read call, so frames
// arrive split across reads with errors interleaved.
type chunkReader struct {
	script []any // string chunks and errors, in order
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.script) == 0 {
		return 0, io.EOF
	}
	next := r.script[0]
	r.script = r.script[1:]

	switch v := next.(type) {
	case string:
		return copy(p, v), nil
	case error:
		return 0, v
	}
	return 0, io.EOF
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestScannerReassemblesSplitFrames(t *testing.T) {
	s := NewScanner(&chunkReader{script: []any{
		`{"status":`, `"ok"}` + "\n" + `{"command":"tick`, `Prices","data":{}}` + "\n",
	}})

	frame, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(frame) != `{"status":"ok"}` {
		t.Errorf("frame 1 = %q", frame)
	}

	frame, err = s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(frame) != `{"command":"tickPrices","data":{}}` {
		t.Errorf("frame 2 = %q", frame)
	}
}

func TestScannerKeepsPartialAcrossTimeout(t *testing.T) {
	s := NewScanner(&chunkReader{script: []any{
		`{"status":"o`, timeoutErr{}, `k"}` + "\n",
	}})

	if _, err := s.Next(); err == nil {
		t.Fatal("expected timeout error")
	}
	if !s.Buffered() {
		t.Fatal("partial frame discarded across timeout")
	}

	frame, err := s.Next()
	if err != nil {
		t.Fatalf("Next after timeout: %v", err)
	}
	if string(frame) != `{"status":"ok"}` {
		t.Errorf("frame = %q", frame)
	}
}

func TestScannerSkipsBlankLines(t *testing.T) {
	s := NewScanner(&chunkReader{script: []any{"\n\n" + `{"status":"ok"}` + "\n"}})

	frame, err := s.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if string(frame) != `{"status":"ok"}` {
		t.Errorf("frame = %q", frame)
	}
}
