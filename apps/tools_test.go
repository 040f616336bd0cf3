package apps

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/MCPJam/ext-apps/dogapi"
	"github.com/MCPJam/ext-apps/mcp"
)

// stubUpstream counts requests so bounds tests can assert nothing was
// fetched.
func stubUpstream(t *testing.T, body string) (*dogapi.Client, *atomic.Int64) {
	t.Helper()
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return dogapi.New(srv.URL), &hits
}

func callTool(t *testing.T, client *dogapi.Client, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	tc := NewTools(client)
	var raw json.RawMessage
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			t.Fatalf("marshal args: %v", err)
		}
		raw = b
	}
	res, err := tc.CallTool(context.Background(), &mcp.CallToolRequest{Name: name, Arguments: raw})
	if err != nil {
		t.Fatalf("call %s: %v", name, err)
	}
	return res
}

func TestGetRandomDogDerivesBreedFromURL(t *testing.T) {
	client, _ := stubUpstream(t, `{"status":"success","message":"https://images.dog.ceo/breeds/hound/n9.jpg"}`)

	res := callTool(t, client, "get-random-dog", nil)
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}
	if res.StructuredContent["breed"] != "hound" {
		t.Fatalf("breed = %v, want hound", res.StructuredContent["breed"])
	}
	if res.StructuredContent["imageUrl"] != "https://images.dog.ceo/breeds/hound/n9.jpg" {
		t.Fatalf("imageUrl = %v", res.StructuredContent["imageUrl"])
	}
	if res.Meta.Meta["openai/outputTemplate"] != "ui://widget/random-dog.html" {
		t.Fatalf("output template %v", res.Meta.Meta["openai/outputTemplate"])
	}
}

func TestGetRandomDogKeepsExplicitBreed(t *testing.T) {
	client, _ := stubUpstream(t, `{"status":"success","message":"https://images.dog.ceo/breeds/pug/p1.jpg"}`)

	res := callTool(t, client, "get-random-dog", map[string]any{"breed": "pug"})
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}
	if res.StructuredContent["breed"] != "pug" {
		t.Fatalf("breed = %v, want pug", res.StructuredContent["breed"])
	}
}

func TestGetBreedImagesCountBoundsRejectedBeforeFetch(t *testing.T) {
	client, hits := stubUpstream(t, `{"status":"success","message":["https://x/breeds/hound/1.jpg"]}`)

	for _, count := range []int{0, 31, -1} {
		res := callTool(t, client, "get-breed-images", map[string]any{"breed": "hound", "count": count})
		if !res.IsError {
			t.Fatalf("count %d accepted", count)
		}
		if res.StructuredContent["error"] == "" || res.StructuredContent["error"] == nil {
			t.Fatalf("count %d: missing error field", count)
		}
	}
	if hits.Load() != 0 {
		t.Fatalf("upstream fetched %d times for out-of-range counts", hits.Load())
	}
}

func TestGetBreedImagesDefaultsCount(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"status":"success","message":["https://x/breeds/hound/1.jpg","https://x/breeds/hound/2.jpg","https://x/breeds/hound/3.jpg"]}`))
	}))
	defer srv.Close()
	client := dogapi.New(srv.URL)

	res := callTool(t, client, "get-breed-images", map[string]any{"breed": "hound"})
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}
	if gotPath != "/breed/hound/images/random/3" {
		t.Fatalf("fetched %q, want default count 3", gotPath)
	}
	urls, ok := res.StructuredContent["imageUrls"].([]any)
	if !ok || len(urls) != 3 {
		t.Fatalf("imageUrls = %v", res.StructuredContent["imageUrls"])
	}
}

func TestGetBreedImagesRequiresBreed(t *testing.T) {
	client, hits := stubUpstream(t, `{"status":"success","message":["x"]}`)

	res := callTool(t, client, "get-breed-images", map[string]any{})
	if !res.IsError {
		t.Fatal("missing breed accepted")
	}
	if hits.Load() != 0 {
		t.Fatal("upstream fetched despite missing breed")
	}
}

func TestUpstreamFailureBecomesErrorResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()
	client := dogapi.New(srv.URL)

	for _, name := range []string{"get-random-dog", "list-breeds"} {
		res := callTool(t, client, name, nil)
		if !res.IsError {
			t.Fatalf("%s: network failure did not flag error", name)
		}
		if len(res.Content) == 0 || !strings.Contains(res.Content[0].Text, `"error"`) {
			t.Fatalf("%s: error payload missing: %+v", name, res.Content)
		}
	}
}

func TestErrorEnvelopeBecomesErrorResult(t *testing.T) {
	client, _ := stubUpstream(t, `{"status":"error","message":"Breed not found"}`)

	res := callTool(t, client, "get-random-dog", map[string]any{"breed": "nope"})
	if !res.IsError {
		t.Fatal("error envelope did not flag error")
	}
	if res.StructuredContent["error"] == nil {
		t.Fatalf("missing structured error: %+v", res.StructuredContent)
	}
}

func TestListBreedsStructuredPayload(t *testing.T) {
	client, _ := stubUpstream(t, `{"status":"success","message":{"hound":["afghan"],"pug":[]}}`)

	res := callTool(t, client, "list-breeds", nil)
	if res.IsError {
		t.Fatalf("unexpected error result: %+v", res)
	}
	breeds, ok := res.StructuredContent["breeds"].(map[string]any)
	if !ok || len(breeds) != 2 {
		t.Fatalf("breeds = %v", res.StructuredContent["breeds"])
	}
}

func TestToolDescriptorsCarryWidgetBindings(t *testing.T) {
	client, _ := stubUpstream(t, `{}`)
	tc := NewTools(client)

	tools, err := tc.ListTools(context.Background())
	if err != nil {
		t.Fatalf("list tools: %v", err)
	}
	if len(tools) != 3 {
		t.Fatalf("tool count %d", len(tools))
	}
	for _, tool := range tools {
		tmpl, _ := tool.Meta.Meta["openai/outputTemplate"].(string)
		if !strings.HasPrefix(tmpl, "ui://widget/") || !strings.HasSuffix(tmpl, ".html") {
			t.Errorf("%s: output template %q", tool.Name, tmpl)
		}
		if tool.InputSchema.Type != "object" {
			t.Errorf("%s: schema type %q", tool.Name, tool.InputSchema.Type)
		}
	}
}

func TestUnknownArgumentsRejected(t *testing.T) {
	client, hits := stubUpstream(t, `{"status":"success","message":"x"}`)

	res := callTool(t, client, "get-random-dog", map[string]any{"bread": "hound"})
	if !res.IsError {
		t.Fatal("unknown argument field accepted")
	}
	if hits.Load() != 0 {
		t.Fatal("upstream fetched despite invalid arguments")
	}
}
