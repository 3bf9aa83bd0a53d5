package server

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/mdmgate/mdmgate/engine/core"
	"github.com/mdmgate/mdmgate/engine/match"
)

// compatAlias is one legacy tool name. Retained aliases forward into their
// replacement with mapped parameters; removed ones answer with a fixed
// error that names the replacement and the parameter mapping.
type compatAlias struct {
	Name        string
	Replacement string
	Mapping     string
	Removed     bool
	SearchType  match.SearchType
}

// compatAliases is the alias table consulted at dispatch. It is built once
// at startup and never mutated.
func compatAliases() []compatAlias {
	return []compatAlias{
		{
			Name:        "find_matches_by_match_score",
			Replacement: "find_potential_matches",
			Mapping:     "call find_potential_matches with search_type='score' and filter='start,end'",
			SearchType:  match.ByScore,
		},
		{
			Name:        "find_matches_by_confidence",
			Replacement: "find_potential_matches",
			Mapping:     "call find_potential_matches with search_type='confidence' and filter set to a confidence label",
			SearchType:  match.ByConfidence,
		},
		{
			Name:        "get_total_matches",
			Replacement: "get_potential_matches_stats",
			Mapping:     "use the total_matches field of get_potential_matches_stats",
			Removed:     true,
		},
		{
			Name:        "get_total_matches_by_entity_type",
			Replacement: "get_potential_matches_stats",
			Mapping:     "use the per-entity-type facet of get_potential_matches_stats",
			Removed:     true,
		},
		{
			Name:        "unmerge_entity_by_contributor",
			Replacement: "unmerge_entity",
			Mapping:     "call unmerge_entity with entity_id and contributor_id",
			Removed:     true,
		},
		{
			Name:        "unmerge_entity_tree_by_contributor",
			Replacement: "unmerge_entity",
			Mapping:     "call unmerge_entity with entity_id, contributor_id and tree=true",
			Removed:     true,
		},
	}
}

// registerCompat wires the alias table into the tool registry.
func registerCompat(s *mcpserver.MCPServer, h *handlers) {
	for _, alias := range compatAliases() {
		if alias.Removed {
			s.AddTool(removedTool(alias), removedHandler(alias))
			continue
		}
		s.AddTool(deprecatedMatchTool(alias), deprecatedMatchHandler(h, alias))
	}
}

func removedTool(alias compatAlias) mcp.Tool {
	return mcp.NewTool(alias.Name,
		mcp.WithDescription("Removed; "+alias.Mapping),
	)
}

func removedHandler(alias compatAlias) mcpserver.ToolHandlerFunc {
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return toolError(core.Removed(alias.Name, alias.Replacement, alias.Mapping)), nil
	}
}

func deprecatedMatchTool(alias compatAlias) mcp.Tool {
	return mcp.NewTool(alias.Name,
		mcp.WithDescription("Deprecated; "+alias.Mapping),
		mcp.WithString("filter", mcp.Required(),
			mcp.Description("Match filter in the legacy format")),
		mcp.WithString("entity_type",
			mcp.Description("Entity type to search, e.g. Individual or Organization")),
		mcp.WithNumber("max_results", mcp.Description("Total results to return; pages past the 10-record cap are aggregated")),
		mcp.WithNumber("offset", mcp.Description("Start position for pagination")),
		mcp.WithString("search_filters",
			mcp.Description("Extra filter expressions joined with AND")),
		tenantParam(),
	)
}

// deprecatedMatchHandler forwards a legacy match search into the unified
// operation with the search type pinned, flagging the result as deprecated.
func deprecatedMatchHandler(h *handlers, alias compatAlias) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := h.matches.FindPotentialMatches(ctx, match.FindMatchesRequest{
			SearchType:    alias.SearchType,
			Filter:        req.GetString("filter", ""),
			EntityType:    req.GetString("entity_type", ""),
			TenantID:      req.GetString("tenant_id", ""),
			MaxResults:    req.GetInt("max_results", 0),
			Offset:        req.GetInt("offset", 0),
			SearchFilters: req.GetString("search_filters", ""),
		})
		if err != nil {
			return toolError(err), nil
		}
		return renderResult(map[string]any{
			"deprecated":  true,
			"use_instead": alias.Replacement,
			"notice":      alias.Mapping,
			"matches":     res.Matches,
			"partial":     res.Partial,
		})
	}
}
