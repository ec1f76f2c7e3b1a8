package gateway

import (
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/relaydocs/relaydocs/internal/oauth/scope"
)

const (
	toolSearch      = "search"
	toolListSources = "list_sources"
	toolGetInfo     = "get_info"

	defaultSearchLimit = 10
	maxSearchLimit     = 50
)

// toolScopes maps each tool to the scope a token must hold to call it.
var toolScopes = map[string]scope.Scope{
	toolSearch:      scope.Search,
	toolListSources: scope.ListSources,
	toolGetInfo:     scope.GetInfo,
}

// toolCatalog is the static catalog served by tools/list. The repository a
// tool operates on comes from the request path, not from tool arguments.
func toolCatalog() []mcp.Tool {
	return []mcp.Tool{
		{
			Name:        toolSearch,
			Description: "Search the repository content and return the most relevant passages.",
			InputSchema: mcp.ToolInputSchema{
				Type: "object",
				Properties: map[string]interface{}{
					"query": map[string]interface{}{
						"type":        "string",
						"description": "Natural-language search query.",
					},
					"limit": map[string]interface{}{
						"type":        "integer",
						"description": "Maximum number of passages to return (default: 10).",
						"minimum":     1,
						"maximum":     maxSearchLimit,
					},
				},
				Required: []string{"query"},
			},
		},
		{
			Name:        toolListSources,
			Description: "List the documents and feeds ingested into the repository.",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]interface{}{},
			},
		},
		{
			Name:        toolGetInfo,
			Description: "Return a summary of the repository: name, description and content counts.",
			InputSchema: mcp.ToolInputSchema{
				Type:       "object",
				Properties: map[string]interface{}{},
			},
		},
	}
}
