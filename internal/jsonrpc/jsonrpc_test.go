package jsonrpc

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestMessageKinds(t *testing.T) {
	cases := []struct {
		name string
		body string
		kind string
	}{
		{"request", `{"jsonrpc":"2.0","id":1,"method":"ping"}`, "request"},
		{"notification", `{"jsonrpc":"2.0","method":"notifications/initialized"}`, "notification"},
		{"response", `{"jsonrpc":"2.0","id":1,"result":{}}`, "response"},
		{"error response", `{"jsonrpc":"2.0","id":1,"error":{"code":-32601,"message":"nope"}}`, "response"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var m Message
			if err := json.Unmarshal([]byte(tc.body), &m); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			if m.Kind() != tc.kind {
				t.Fatalf("kind %q, want %q", m.Kind(), tc.kind)
			}
		})
	}
}

func TestMessageValidation(t *testing.T) {
	bad := []string{
		`{"jsonrpc":"1.0","id":1,"method":"ping"}`,
		`{"jsonrpc":"2.0","id":1}`,
		`{"jsonrpc":"2.0","id":1,"method":"ping","result":{}}`,
		`{"jsonrpc":"2.0","id":1,"result":{},"error":{"code":1,"message":"x"}}`,
	}
	for _, body := range bad {
		var m Message
		if err := json.Unmarshal([]byte(body), &m); err == nil {
			t.Errorf("accepted invalid message %s", body)
		}
	}
}

func TestNilRequestIDMarshalsAsNull(t *testing.T) {
	res := NewErrorResponse(nil, ErrorCodeSessionRequired, "no session", nil)
	b, err := res.ID.MarshalJSON()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(b) != "null" {
		t.Fatalf("nil id marshals to %q, want null", b)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{`"abc"`, `"abc"`},
		{`42`, `42`},
		{`4.5`, `4.5`},
	}
	for _, tc := range cases {
		var id RequestID
		if err := json.Unmarshal([]byte(tc.raw), &id); err != nil {
			t.Fatalf("unmarshal %s: %v", tc.raw, err)
		}
		b, err := json.Marshal(&id)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		if string(b) != tc.want {
			t.Fatalf("round trip %s -> %s", tc.raw, b)
		}
	}

	var id RequestID
	if err := json.Unmarshal([]byte(`{"x":1}`), &id); err == nil || !strings.Contains(err.Error(), "string or number") {
		t.Fatalf("object id accepted: %v", err)
	}
}

func TestIsNotification(t *testing.T) {
	var note Request
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`), &note); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !note.IsNotification() {
		t.Fatal("missing id not treated as notification")
	}

	var req Request
	if err := json.Unmarshal([]byte(`{"jsonrpc":"2.0","id":"7","method":"ping"}`), &req); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if req.IsNotification() {
		t.Fatal("request with id treated as notification")
	}
}
