package mcp

import "context"

// RetrievalArgs is the parsed, validated argument set shared by the four
// retrieval tools.
type RetrievalArgs struct {
	Query       string
	Limit       int
	Language    string
	FilePattern string
	MinScore    float64
}

// Retriever is the external retrieval/assembly collaborator that
// actually searches, explains, relates, or gathers context for code. This
// core never implements retrieval itself; it only decides which model
// tier should post-process the result and whether a prior answer can be
// served from cache. Production wiring injects a real implementation
// (an indexer, a language server, an agent); NullRetriever below is the
// wiring-complete placeholder used when none is configured.
type Retriever interface {
	Retrieve(ctx context.Context, tool string, args RetrievalArgs) (map[string]any, error)
}

// NullRetriever satisfies Retriever without calling out anywhere. It lets
// the routing/caching core run standalone -- useful for local development
// and for exercising the routing and cache metadata without a retrieval
// backend wired in.
type NullRetriever struct{}

func (NullRetriever) Retrieve(_ context.Context, tool string, args RetrievalArgs) (map[string]any, error) {
	return map[string]any{
		"tool":    tool,
		"query":   args.Query,
		"matches": []any{},
		"note":    "no retrieval collaborator configured",
	}, nil
}
