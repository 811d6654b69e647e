package tool

import (
	"context"

	"secopsmcp/internal/domain"
	"secopsmcp/internal/normalize"
	"secopsmcp/internal/scope"
)

// SearchToolsTool finds registered tools by keyword so a caller can discover
// the right integration action among hundreds.
type SearchToolsTool struct {
	reg        *Registry
	normalizer *normalize.Normalizer
}

func NewSearchToolsTool(reg *Registry, n *normalize.Normalizer) *SearchToolsTool {
	return &SearchToolsTool{reg: reg, normalizer: n}
}

func (t *SearchToolsTool) Name() string { return "search_tools" }
func (t *SearchToolsTool) Description() string {
	return "Search the available tools by keywords in their name or description. Returns matching tool names and descriptions."
}
func (t *SearchToolsTool) Parameters() map[string]any {
	return ToolParameters(
		map[string]Param{
			"query": {Type: "string", Description: "Space separated keywords, e.g. 'okta disable user'"},
		},
		[]string{"query"},
	)
}

func (t *SearchToolsTool) Execute(ctx context.Context, args map[string]any) domain.Envelope {
	query, err := RequireString(args, "query")
	if err != nil {
		return t.normalizer.Normalize(t.Name(), domain.FailWith(err))
	}
	matches := []any{}
	for _, d := range t.reg.Search(query) {
		matches = append(matches, map[string]any{"name": d.Name, "description": d.Description})
	}
	return t.normalizer.Normalize(t.Name(), domain.Succeed(map[string]any{"resources": matches}))
}

// ListScopesTool reports the predefined scope names accepted by action tools.
type ListScopesTool struct {
	scopes     *scope.Resolver
	normalizer *normalize.Normalizer
}

func NewListScopesTool(scopes *scope.Resolver, n *normalize.Normalizer) *ListScopesTool {
	return &ListScopesTool{scopes: scopes, normalizer: n}
}

func (t *ListScopesTool) Name() string { return "list_scopes" }
func (t *ListScopesTool) Description() string {
	return "List the predefined scope names accepted by the scope argument of integration action tools."
}
func (t *ListScopesTool) Parameters() map[string]any { return ToolParameters(map[string]Param{}, nil) }

func (t *ListScopesTool) Execute(ctx context.Context, _ map[string]any) domain.Envelope {
	names := []any{}
	for _, n := range t.scopes.Valid() {
		names = append(names, n)
	}
	return t.normalizer.Normalize(t.Name(), domain.Succeed(map[string]any{"resources": names}))
}
