// Package apps assembles the demonstration capability surface: three dog
// image tools backed by the Dog CEO API and the interactive HTML widgets that
// render their results, bound together through `_meta` template references.
package apps

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"

	"github.com/MCPJam/ext-apps/mcp"
	"github.com/MCPJam/ext-apps/mcpservice"
)

//go:embed assets/*.html
var embeddedWidgets embed.FS

// widgetMimeType marks widget bundles renderable by the host's sandboxed
// iframe runtime.
const widgetMimeType = "text/html+skybridge"

// widgetURIPrefix is the resource URI scheme under which widgets are listed.
const widgetURIPrefix = "ui://widget/"

// Widget is one pre-built HTML bundle served as an MCP resource.
type Widget struct {
	Name  string
	Title string
	HTML  string
}

// URI returns the resource URI the widget is registered under.
func (w Widget) URI() string { return widgetURIPrefix + w.Name + ".html" }

var widgetTitles = map[string]string{
	"random-dog":    "Random Dog",
	"breed-gallery": "Breed Gallery",
	"breed-list":    "Breed Explorer",
}

// WidgetRegistry owns the resource container that serves widget bundles and
// optionally watches an on-disk directory, swapping the set on change.
type WidgetRegistry struct {
	resources *mcpservice.ResourcesContainer
	log       *slog.Logger
}

// NewWidgetRegistry builds a registry serving the embedded widget set.
func NewWidgetRegistry(log *slog.Logger) (*WidgetRegistry, error) {
	widgets, err := loadWidgetsFS(embeddedWidgets, "assets")
	if err != nil {
		return nil, fmt.Errorf("load embedded widgets: %w", err)
	}
	rc := mcpservice.NewResourcesContainer(widgetResources(widgets))
	return &WidgetRegistry{resources: rc, log: log}, nil
}

// Resources exposes the backing container for wiring into a server.
func (wr *WidgetRegistry) Resources() *mcpservice.ResourcesContainer {
	return wr.resources
}

// WatchDir replaces the embedded set with bundles from dir and reloads them
// whenever the directory changes. Blocks until ctx ends; meant to run in its
// own goroutine. Used during widget development.
func (wr *WidgetRegistry) WatchDir(ctx context.Context, dir string) error {
	reload := func() error {
		widgets, err := loadWidgetsFS(os.DirFS(dir), ".")
		if err != nil {
			return err
		}
		resources, contents := widgetResources(widgets)
		wr.resources.Replace(ctx, resources, contents)
		wr.log.InfoContext(ctx, "widgets.reload", slog.Int("count", len(widgets)), slog.String("dir", dir))
		return nil
	}
	if err := reload(); err != nil {
		return fmt.Errorf("load widget dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("start widget watcher: %w", err)
	}
	defer watcher.Close()
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch widget dir: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !strings.HasSuffix(ev.Name, ".html") {
				continue
			}
			if err := reload(); err != nil {
				wr.log.WarnContext(ctx, "widgets.reload.fail", slog.String("err", err.Error()))
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			wr.log.WarnContext(ctx, "widgets.watch.err", slog.String("err", err.Error()))
		}
	}
}

func loadWidgetsFS(fsys fs.FS, root string) ([]Widget, error) {
	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return nil, err
	}
	var widgets []Widget
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".html") {
			continue
		}
		b, err := fs.ReadFile(fsys, filepath.ToSlash(filepath.Join(root, e.Name())))
		if err != nil {
			return nil, err
		}
		name := strings.TrimSuffix(e.Name(), ".html")
		title := widgetTitles[name]
		if title == "" {
			title = name
		}
		widgets = append(widgets, Widget{Name: name, Title: title, HTML: string(b)})
	}
	if len(widgets) == 0 {
		return nil, fmt.Errorf("no .html widget bundles found")
	}
	return widgets, nil
}

// widgetResources shapes a widget set into resource descriptors and contents
// served byte-for-byte.
func widgetResources(widgets []Widget) ([]mcp.Resource, map[string][]mcp.ResourceContents) {
	resources := make([]mcp.Resource, 0, len(widgets))
	contents := make(map[string][]mcp.ResourceContents, len(widgets))
	for _, w := range widgets {
		uri := w.URI()
		res := mcp.Resource{
			URI:      uri,
			Name:     w.Title,
			MimeType: widgetMimeType,
		}
		res.Meta.Meta = map[string]any{
			"openai/widgetPrefersBorder": true,
		}
		resources = append(resources, res)
		contents[uri] = []mcp.ResourceContents{{
			URI:      uri,
			MimeType: widgetMimeType,
			Text:     w.HTML,
		}}
	}
	return resources, contents
}
