package bridge

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cast"
)

var ErrClosed = errors.New("native bridge closed")

// RemoteError is an error raised by the native host. It is returned to
// callers as-is.
type RemoteError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("native error %d: %s", e.Code, e.Message)
}

type request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      *int64 `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      *int64          `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RemoteError    `json:"error,omitempty"`
}

func newRequest(id *int64, method string, args []any) request {
	if args == nil {
		args = []any{}
	}
	return request{JSONRPC: "2.0", ID: id, Method: method, Params: args}
}

func decodeResult(raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("failed to decode native result: %w", err)
	}
	return v, nil
}

// Events are sent either with a single body object or positional params
// whose first element is the body.
func decodeEventPayload(raw json.RawMessage) (map[string]any, error) {
	v, err := decodeResult(raw)
	if err != nil {
		return nil, err
	}
	if list, ok := v.([]any); ok {
		if len(list) == 0 {
			return map[string]any{}, nil
		}
		v = list[0]
	}
	if v == nil {
		return map[string]any{}, nil
	}
	return cast.ToStringMapE(v)
}
