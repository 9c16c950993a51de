package http

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"signalhub/internal/cache/manager"
	"signalhub/internal/cache/semantic"
	"signalhub/internal/costs"
	"signalhub/internal/domain"
	"signalhub/internal/mcp"
	"signalhub/internal/routing/engine"
)

// Server exposes the MCP tool surface over HTTP/JSON-RPC, plus
// liveness/readiness probes, a Prometheus metrics endpoint, and an
// operator-facing stats/maintenance surface.
type Server struct {
	mcp     *mcp.Server
	metrics *Metrics
	mux     *http.ServeMux
	stats   *StatsSources
}

// StatsSources are the collaborators the /stats and /cache/evict routes
// read from. Any field may be nil; its section is simply omitted.
type StatsSources struct {
	Engine  *engine.Engine
	Cache   *semantic.Cache
	Manager *manager.Manager
	Ledger  costs.Ledger
}

// NewServer builds a Server wired to the given MCP tool server. A nil
// metrics is replaced by a set registered against the default Prometheus
// registry (the /metrics route itself is always registered).
func NewServer(mcpServer *mcp.Server, metrics *Metrics) *Server {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	s := &Server{mcp: mcpServer, metrics: metrics, mux: http.NewServeMux()}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("GET /tools", s.handleListTools)
	s.mux.HandleFunc("POST /tools/call", s.handleCallTool)
	s.mux.HandleFunc("POST /rpc", s.handleJSONRPC)

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /ready", s.handleReady)
	s.mux.Handle("GET /metrics", Handler())
}

// AttachStats registers the /stats and /cache/evict routes over the given
// sources. Call before serving; routes added after the handler is in use
// still work since ServeMux is safe for concurrent reads.
func (s *Server) AttachStats(src StatsSources) {
	s.stats = &src
	s.mux.HandleFunc("GET /stats", s.handleStats)
	s.mux.HandleFunc("POST /cache/evict", s.handleCacheEvict)
}

// handleStats aggregates the running state of every core component:
// routing metrics, cache statistics, maintenance health, and ledger
// totals over the trailing 30 days.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	out := map[string]any{}

	if s.stats.Engine != nil {
		out["routing"] = s.stats.Engine.MetricsSnapshot()
	}
	if s.stats.Cache != nil {
		out["cache"] = s.stats.Cache.StatsSnapshot()
	}
	if s.stats.Manager != nil {
		out["maintenance"] = s.stats.Manager.HealthSnapshot()
	}
	if s.stats.Ledger != nil {
		now := time.Now()
		summary, err := s.stats.Ledger.Summary(r.Context(), now.AddDate(0, 0, -30), now, "")
		if err != nil {
			slog.Warn("stats: ledger summary failed", "err", err)
		} else {
			out["costs"] = summary
		}
		if total, err := s.stats.Ledger.TotalCost(r.Context(), time.Time{}, time.Time{}); err == nil {
			out["total_cost_usd"] = total
		}
		if recent, err := s.stats.Ledger.Recent(r.Context(), 20, r.URL.Query().Get("user_id")); err == nil {
			out["recent_usage"] = recent
		}
	}

	s.writeJSON(w, http.StatusOK, out)
}

type cacheEvictRequest struct {
	Matching string `json:"matching"`
}

// handleCacheEvict removes cache entries: all of them, or only those whose
// query text contains the given substring.
func (s *Server) handleCacheEvict(w http.ResponseWriter, r *http.Request) {
	if s.stats.Manager == nil {
		s.writeError(w, http.StatusServiceUnavailable, "cache_error", "cache maintenance is not enabled")
		return
	}

	var req cacheEvictRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	if req.Matching == "" {
		if err := s.stats.Manager.EvictAll(r.Context()); err != nil {
			s.writeError(w, http.StatusInternalServerError, "cache_error", err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"evicted": "all"})
		return
	}

	count, err := s.stats.Manager.EvictMatching(r.Context(), req.Matching)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, "cache_error", err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"evicted": count})
}

// Handler returns the server's HTTP handler, wrapped with CORS so MCP
// clients running in a browser context can reach it directly.
func (s *Server) Handler() http.Handler {
	return s.corsMiddleware(s.mux)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Session-Id, X-User-Id")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{"tools": s.mcp.ListTools()})
}

// callToolRequest is the REST-shaped tool-call envelope, for clients that
// prefer a plain POST over JSON-RPC.
type callToolRequest struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

func (s *Server) handleCallTool(w http.ResponseWriter, r *http.Request) {
	var req callToolRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	sessionID, userID := sessionAndUser(r)

	s.metrics.RequestsInFlight.Inc()
	defer s.metrics.RequestsInFlight.Dec()

	start := time.Now()
	result, err := s.mcp.CallTool(r.Context(), req.Name, req.Arguments, sessionID, userID)
	s.recordOutcome(req.Name, result, err, start)

	if err != nil {
		s.writeToolError(w, req.Name, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) recordOutcome(tool string, result map[string]any, err error, start time.Time) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		s.metrics.RecordToolError(tool, string(domain.KindOf(err)))
	}
	s.metrics.RecordToolCall(tool, status, time.Since(start))

	if cache, ok := result["cache"].(map[string]any); ok {
		if hit, ok := cache["hit"].(bool); ok {
			s.metrics.RecordCache(hit)
		}
	}
	if routing, ok := result["routing"].(map[string]any); ok {
		if model, ok := routing["chosen_model"].(domain.ModelTier); ok {
			s.metrics.RecordRoutingDecision(string(model))
		}
	}
}

func sessionAndUser(r *http.Request) (sessionID, userID string) {
	return r.Header.Get("X-Session-Id"), r.Header.Get("X-User-Id")
}

// ============================================
// JSON-RPC TRANSPORT
// ============================================

type jsonRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type jsonRPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// handleJSONRPC implements the MCP JSON-RPC envelope (tools/list,
// tools/call, ping) over a single POST endpoint.
func (s *Server) handleJSONRPC(w http.ResponseWriter, r *http.Request) {
	var req jsonRPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeRPCError(w, nil, -32700, "parse error")
		return
	}

	sessionID, userID := sessionAndUser(r)
	slog.Debug("mcp json-rpc request", "method", req.Method)

	switch req.Method {
	case "tools/list":
		s.writeRPCResult(w, req.ID, map[string]any{"tools": s.mcp.ListTools()})

	case "tools/call":
		var p callToolParams
		if err := json.Unmarshal(req.Params, &p); err != nil {
			s.writeRPCError(w, req.ID, -32602, "invalid params")
			return
		}
		s.metrics.RequestsInFlight.Inc()
		start := time.Now()
		result, err := s.mcp.CallTool(r.Context(), p.Name, p.Arguments, sessionID, userID)
		s.metrics.RequestsInFlight.Dec()
		s.recordOutcome(p.Name, result, err, start)
		if err != nil {
			s.writeRPCError(w, req.ID, -32603, err.Error())
			return
		}
		s.writeRPCResult(w, req.ID, map[string]any{
			"content": []map[string]any{{"type": "text", "text": toJSONText(result)}},
		})

	case "ping":
		s.writeRPCResult(w, req.ID, map[string]any{})

	default:
		s.writeRPCError(w, req.ID, -32601, "method not found: "+req.Method)
	}
}

func toJSONText(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

func (s *Server) writeRPCResult(w http.ResponseWriter, id any, result any) {
	s.writeJSON(w, http.StatusOK, jsonRPCResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeRPCError(w http.ResponseWriter, id any, code int, message string) {
	s.writeJSON(w, http.StatusOK, jsonRPCResponse{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: message}})
}

// ============================================
// HELPERS
// ============================================

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func (s *Server) writeError(w http.ResponseWriter, status int, errType, message string) {
	s.writeJSON(w, status, errorResponse{Error: errorDetail{Type: errType, Message: message}})
}

// writeToolError maps a domain.Error's Kind to an HTTP status, per the
// error handling design's propagation policy.
func (s *Server) writeToolError(w http.ResponseWriter, tool string, err error) {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindInvalidInput:
		status = http.StatusBadRequest
	case domain.KindNotFound:
		status = http.StatusNotFound
	case domain.KindUnavailable:
		status = http.StatusServiceUnavailable
	case domain.KindCapacity:
		status = http.StatusServiceUnavailable
	case domain.KindTransient:
		status = http.StatusBadGateway
	}
	s.writeError(w, status, fmt.Sprintf("%s_error", tool), err.Error())
}
