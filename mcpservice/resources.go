package mcpservice

import (
	"context"
	"fmt"
	"sync"

	"github.com/MCPJam/ext-apps/mcp"
)

// ResourcesContainer owns a mutable, threadsafe set of resources and their
// contents. Contents are returned byte-for-byte as registered; there is no
// per-request templating. Replace supports hot-swapping the whole set (used
// by the widget live-reload path) and ticks the change notifier.
type ResourcesContainer struct {
	mu        sync.RWMutex
	resources []mcp.Resource
	contents  map[string][]mcp.ResourceContents

	notifier ChangeNotifier
}

// NewResourcesContainer builds a container from initial resources and
// contents keyed by URI. Inputs are copied.
func NewResourcesContainer(resources []mcp.Resource, contents map[string][]mcp.ResourceContents) *ResourcesContainer {
	rc := &ResourcesContainer{}
	rc.Replace(context.Background(), resources, contents)
	return rc
}

// Replace atomically swaps the entire resource set and contents.
func (rc *ResourcesContainer) Replace(ctx context.Context, resources []mcp.Resource, contents map[string][]mcp.ResourceContents) {
	rs := make([]mcp.Resource, len(resources))
	copy(rs, resources)
	cs := make(map[string][]mcp.ResourceContents, len(contents))
	for uri, c := range contents {
		cc := make([]mcp.ResourceContents, len(c))
		copy(cc, c)
		cs[uri] = cc
	}

	rc.mu.Lock()
	rc.resources = rs
	rc.contents = cs
	rc.mu.Unlock()

	_ = rc.notifier.Notify(ctx)
}

// ListResources returns a copy of the current resource descriptors.
func (rc *ResourcesContainer) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	rc.mu.RLock()
	defer rc.mu.RUnlock()
	out := make([]mcp.Resource, len(rc.resources))
	copy(out, rc.resources)
	return out, nil
}

// ReadResource returns the registered contents for a URI.
func (rc *ResourcesContainer) ReadResource(ctx context.Context, uri string) ([]mcp.ResourceContents, error) {
	rc.mu.RLock()
	c, ok := rc.contents[uri]
	rc.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("resource not found: %s", uri)
	}
	out := make([]mcp.ResourceContents, len(c))
	copy(out, c)
	return out, nil
}

// Subscriber returns a channel that ticks whenever the resource set is
// replaced. Callers must release it with Unsubscribe.
func (rc *ResourcesContainer) Subscriber() <-chan struct{} {
	return rc.notifier.Subscriber()
}

// Unsubscribe releases a channel returned by Subscriber.
func (rc *ResourcesContainer) Unsubscribe(ch <-chan struct{}) {
	rc.notifier.Unsubscribe(ch)
}
