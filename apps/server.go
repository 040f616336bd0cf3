package apps

import (
	"context"

	"github.com/MCPJam/ext-apps/dogapi"
	"github.com/MCPJam/ext-apps/mcp"
	"github.com/MCPJam/ext-apps/mcpservice"
	"github.com/MCPJam/ext-apps/sessions"
)

// Version is the advertised server version.
const Version = "1.0.0"

// ServerFactory returns a sessions.ServerFactory producing the demonstration
// capability surface. The tool and widget containers are shared across
// sessions; only the Server aggregate is per-session.
func ServerFactory(client *dogapi.Client, widgets *WidgetRegistry) sessions.ServerFactory {
	tools := NewTools(client)
	return func(ctx context.Context) *mcpservice.Server {
		return mcpservice.NewServer(
			mcpservice.WithServerInfo(mcp.ImplementationInfo{
				Name:    "ext-apps-dog-server",
				Title:   "Dog Image Apps",
				Version: Version,
			}),
			mcpservice.WithInstructions("Use the dog tools to fetch images; results render in the bundled widgets."),
			mcpservice.WithToolsContainer(tools),
			mcpservice.WithResourcesContainer(widgets.Resources()),
		)
	}
}
