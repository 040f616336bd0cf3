package jsonrpc

import (
	"encoding/json"
	"fmt"
)

// RequestID is a JSON-RPC ID, which the wire format allows to be either a
// string or a number. A nil *RequestID (or a zero value) marks a notification.
type RequestID struct {
	value any
}

// NewRequestID wraps a string or numeric value as a RequestID. Unsupported
// types produce a nil-valued ID.
func NewRequestID(value any) *RequestID {
	switch value.(type) {
	case string, int, int32, int64, float32, float64:
		return &RequestID{value: value}
	default:
		return &RequestID{}
	}
}

// IsNil reports whether the ID is absent.
func (id *RequestID) IsNil() bool { return id == nil || id.value == nil }

// String renders the ID for logging; empty string when absent.
func (id *RequestID) String() string {
	if id.IsNil() {
		return ""
	}
	if s, ok := id.value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", id.value)
}

func (id *RequestID) MarshalJSON() ([]byte, error) {
	if id.IsNil() {
		return []byte("null"), nil
	}
	return json.Marshal(id.value)
}

func (id *RequestID) UnmarshalJSON(data []byte) error {
	var num float64
	if err := json.Unmarshal(data, &num); err == nil {
		// Preserve integral IDs as int64 so they round-trip without a
		// fractional rendering.
		if num == float64(int64(num)) {
			id.value = int64(num)
		} else {
			id.value = num
		}
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		id.value = str
		return nil
	}
	return fmt.Errorf("JSON-RPC ID must be a string or number, got %s", string(data))
}
