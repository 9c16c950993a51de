package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"signalhub/internal/costs"
	"signalhub/internal/domain"
	"signalhub/internal/routing/engine"
	"signalhub/internal/routing/escalation"
)

// retrievalToolNames are the four tools whose shape is defined by
// retrievalSchema; escalate_query has its own shape and handling.
var retrievalToolNames = []struct {
	name        string
	description string
}{
	{"search_code", "Search the codebase for matches to a natural language or code query."},
	{"explain_code", "Explain what the matched code does, with routing-selected depth."},
	{"find_similar", "Find code similar in structure or intent to the query."},
	{"get_context", "Assemble surrounding context (callers, definitions, docs) for the query."},
}

type toolHandler func(ctx context.Context, argsJSON json.RawMessage, sessionID, userID string) (map[string]any, error)

// Server is the MCP tool surface over the routing/caching core. It owns no
// transport of its own: internal/http adapts CallTool/ListTools onto HTTP.
type Server struct {
	engine     *engine.Engine
	sessions   *escalation.SessionStore
	calculator *costs.Calculator
	retriever  Retriever

	defs     []ToolDefinition
	handlers map[string]toolHandler
}

// NewServer builds a Server wired to the given routing engine, session
// store (for escalate_query's session-duration overrides), cost
// calculator (for escalate_query's cost-impact note), and retrieval
// collaborator. sessions and retriever may be nil/NullRetriever{}.
func NewServer(eng *engine.Engine, sessions *escalation.SessionStore, calc *costs.Calculator, retriever Retriever) *Server {
	if retriever == nil {
		retriever = NullRetriever{}
	}
	s := &Server{
		engine:     eng,
		sessions:   sessions,
		calculator: calc,
		retriever:  retriever,
		handlers:   make(map[string]toolHandler),
	}

	schema := retrievalSchema()
	for _, t := range retrievalToolNames {
		name := t.name
		s.defs = append(s.defs, ToolDefinition{Name: name, Description: t.description, InputSchema: schema})
		s.handlers[name] = func(ctx context.Context, argsJSON json.RawMessage, sessionID, userID string) (map[string]any, error) {
			return s.handleRetrieval(ctx, name, argsJSON, sessionID, userID)
		}
	}

	s.defs = append(s.defs, ToolDefinition{
		Name:        "escalate_query",
		Description: "Register a preference for a stronger model, for this query or for the rest of the session, and report its cost impact.",
		InputSchema: escalateQuerySchema(),
	})
	s.handlers["escalate_query"] = s.handleEscalate

	return s
}

// ListTools returns the MCP tool definitions (tools/list).
func (s *Server) ListTools() []ToolDefinition {
	out := make([]ToolDefinition, len(s.defs))
	copy(out, s.defs)
	return out
}

// CallTool dispatches one tool invocation (tools/call). sessionID and
// userID may be empty when the caller has no session/identity.
func (s *Server) CallTool(ctx context.Context, name string, argsJSON json.RawMessage, sessionID, userID string) (map[string]any, error) {
	h, ok := s.handlers[name]
	if !ok {
		return nil, domain.NewError(domain.KindInvalidInput, "mcp.CallTool", fmt.Errorf("unknown tool: %s", name))
	}
	return h(ctx, argsJSON, sessionID, userID)
}

func (s *Server) handleRetrieval(ctx context.Context, toolName string, argsJSON json.RawMessage, sessionID, userID string) (map[string]any, error) {
	if err := validateArgs(retrievalSchema(), argsJSON); err != nil {
		return nil, domain.NewError(domain.KindInvalidInput, "mcp."+toolName, err)
	}

	var raw struct {
		Query       string  `json:"query"`
		Limit       int     `json:"limit"`
		Language    string  `json:"language"`
		FilePattern string  `json:"file_pattern"`
		MinScore    float64 `json:"min_score"`
	}
	if err := json.Unmarshal(argsJSON, &raw); err != nil {
		return nil, domain.NewError(domain.KindInvalidInput, "mcp."+toolName, err)
	}
	if raw.Limit <= 0 {
		raw.Limit = 10
	}

	reqContext := map[string]string{}
	if raw.Language != "" {
		reqContext["language"] = raw.Language
	}
	if raw.FilePattern != "" {
		reqContext["file_pattern"] = raw.FilePattern
	}

	q := domain.NewQuery(raw.Query, toolName, "", reqContext)
	result, routeErr := s.engine.Route(ctx, q, sessionID, userID)

	routing := map[string]any{}
	if routeErr != nil {
		slog.Warn("mcp retrieval tool: routing degraded", "tool", toolName, "kind", domain.KindOf(routeErr), "err", routeErr)
		routing["error"] = routeErr.Error()
	}
	routing["chosen_model"] = result.Selection.ChosenModel
	routing["overridden"] = result.Selection.Overridden
	if result.Selection.Overridden {
		routing["override_source"] = result.Selection.OverrideSource
		routing["override_reason"] = result.Selection.OverrideReason
	}
	if rd := result.Selection.RoutingDecision; rd != nil {
		routing["reason"] = rd.ReasonText
		routing["confidence"] = rd.Confidence
		routing["rules_applied"] = rd.RulesApplied
	}

	payload, err := s.retriever.Retrieve(ctx, toolName, RetrievalArgs{
		Query:       raw.Query,
		Limit:       raw.Limit,
		Language:    raw.Language,
		FilePattern: raw.FilePattern,
		MinScore:    raw.MinScore,
	})
	if err != nil {
		return nil, domain.NewError(domain.KindTransient, "mcp."+toolName, err)
	}

	return map[string]any{
		"result":  payload,
		"routing": routing,
		"cache": map[string]any{
			"hit":        result.CacheHit,
			"similarity": result.Similarity,
		},
	}, nil
}

func (s *Server) handleEscalate(ctx context.Context, argsJSON json.RawMessage, sessionID, userID string) (map[string]any, error) {
	if err := validateArgs(escalateQuerySchema(), argsJSON); err != nil {
		return nil, domain.NewError(domain.KindInvalidInput, "mcp.escalate_query", err)
	}

	var raw struct {
		Query     string `json:"query"`
		Model     string `json:"model"`
		Reason    string `json:"reason"`
		Duration  string `json:"duration"`
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(argsJSON, &raw); err != nil {
		return nil, domain.NewError(domain.KindInvalidInput, "mcp.escalate_query", err)
	}
	if raw.Model == "" {
		raw.Model = "large"
	}
	if raw.Duration == "" {
		raw.Duration = "single"
	}
	tier, ok := domain.ParseTier(raw.Model)
	if !ok || tier == domain.TierSmall {
		return nil, domain.NewError(domain.KindInvalidInput, "mcp.escalate_query", fmt.Errorf("model must be medium or large, got %q", raw.Model))
	}

	target := raw.SessionID
	if target == "" {
		target = sessionID
	}

	switch raw.Duration {
	case "session":
		if target == "" {
			return nil, domain.NewError(domain.KindInvalidInput, "mcp.escalate_query", errors.New("duration=session requires a session_id"))
		}
		if s.sessions == nil {
			return nil, domain.NewError(domain.KindInvalidInput, "mcp.escalate_query", errors.New("session escalation is not enabled"))
		}
		esc := s.sessions.Set(target, tier, raw.Reason, 0)
		return map[string]any{
			"status":               "session override registered",
			"model":                tier,
			"session_id":           target,
			"expires_at":           esc.ExpiresAt,
			"times_more_expensive": s.calculator.RelativeCost(tier),
		}, nil
	case "single":
		return map[string]any{
			"status":               "plan registered; pass preferred_model on the next query to apply it",
			"model":                tier,
			"times_more_expensive": s.calculator.RelativeCost(tier),
		}, nil
	default:
		return nil, domain.NewError(domain.KindInvalidInput, "mcp.escalate_query", fmt.Errorf("unknown duration: %s", raw.Duration))
	}
}
