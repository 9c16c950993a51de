package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalhub/internal/cache/eviction"
	"signalhub/internal/cache/manager"
	"signalhub/internal/cache/storage"
	"signalhub/internal/config"
	"signalhub/internal/costs"
	"signalhub/internal/domain"
	"signalhub/internal/mcp"
	"signalhub/internal/routing/engine"
	"signalhub/internal/routing/escalation"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	pricing := costs.NewPricingTable(map[domain.ModelTier]config.ModelConfig{
		domain.TierSmall:  {OutputPricePer1M: 1},
		domain.TierMedium: {OutputPricePer1M: 5},
		domain.TierLarge:  {OutputPricePer1M: 15},
	})
	calc := costs.NewCalculator(pricing)
	eng := engine.New(engine.Config{}, nil, nil, nil, calc, nil, nil, nil)
	sessions := escalation.NewSessionStore(0)
	mcpServer := mcp.NewServer(eng, sessions, calc, nil)
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewServer(mcpServer, metrics)
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ok")
}

func TestServer_ListTools(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/tools", nil)

	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	tools, ok := body["tools"].([]any)
	require.True(t, ok)
	assert.Len(t, tools, 5)
}

func TestServer_CallTool_InvalidArgsReturnsBadRequest(t *testing.T) {
	s := newTestServer(t)
	payload, _ := json.Marshal(callToolRequest{Name: "search_code", Arguments: json.RawMessage(`{}`)})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tools/call", bytes.NewReader(payload))

	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestServer_CallTool_EscalateQuerySucceeds(t *testing.T) {
	s := newTestServer(t)
	args, _ := json.Marshal(map[string]any{"query": "dig deeper", "model": "large"})
	payload, _ := json.Marshal(callToolRequest{Name: "escalate_query", Arguments: args})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/tools/call", bytes.NewReader(payload))

	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(15), body["times_more_expensive"])
}

func TestServer_JSONRPC_ToolsList(t *testing.T) {
	s := newTestServer(t)
	payload, _ := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: "tools/list"})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(payload))

	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp jsonRPCResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Nil(t, resp.Error)
}

func TestServer_JSONRPC_UnknownMethod(t *testing.T) {
	s := newTestServer(t)
	payload, _ := json.Marshal(jsonRPCRequest{JSONRPC: "2.0", ID: 1, Method: "bogus"})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/rpc", bytes.NewReader(payload))

	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var resp jsonRPCResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32601, resp.Error.Code)
}

func newTestServerWithStats(t *testing.T) (*Server, *manager.Manager, storage.Storage) {
	t.Helper()
	s := newTestServer(t)

	store := storage.NewMemoryStorage(100)
	mgr := manager.New(store, eviction.NewCompositePolicy(), manager.Config{MaxEntries: 100})

	pricing := costs.NewPricingTable(map[domain.ModelTier]config.ModelConfig{
		domain.TierSmall:  {OutputPricePer1M: 1},
		domain.TierMedium: {OutputPricePer1M: 5},
		domain.TierLarge:  {OutputPricePer1M: 15},
	})
	ledger := costs.NewMemoryLedger(costs.NewCalculator(pricing), nil)
	require.NoError(t, ledger.Append(context.Background(), domain.ModelUsage{
		Timestamp: time.Now(), ModelID: domain.TierSmall, CostUSD: 0.01,
	}))

	s.AttachStats(StatsSources{Manager: mgr, Ledger: ledger})
	return s, mgr, store
}

func TestServer_StatsReportsLedgerAndMaintenance(t *testing.T) {
	s, mgr, _ := newTestServerWithStats(t)
	mgr.RunOnce(context.Background())

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/stats", nil)

	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Contains(t, body, "maintenance")
	assert.Contains(t, body, "costs")
	assert.InDelta(t, 0.01, body["total_cost_usd"].(float64), 1e-9)
}

func TestServer_CacheEvictMatching(t *testing.T) {
	s, _, store := newTestServerWithStats(t)
	ctx := context.Background()

	for _, text := range []string{"explain the parser", "explain the lexer", "unrelated"} {
		_, err := store.Add(ctx, domain.CachedResponse{
			QueryText: text, QueryEmbedding: []float32{1, 0}, TTLSeconds: 3600,
		})
		require.NoError(t, err)
	}

	payload, _ := json.Marshal(map[string]string{"matching": "explain"})
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cache/evict", bytes.NewReader(payload))

	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, float64(2), body["evicted"])

	size, err := store.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestServer_CacheEvictAll(t *testing.T) {
	s, _, store := newTestServerWithStats(t)
	ctx := context.Background()

	_, err := store.Add(ctx, domain.CachedResponse{QueryText: "q", QueryEmbedding: []float32{1}, TTLSeconds: 3600})
	require.NoError(t, err)

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/cache/evict", bytes.NewReader([]byte(`{}`)))

	s.Handler().ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	size, err := store.Size(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), size)
}

func TestServer_CORSPreflight(t *testing.T) {
	s := newTestServer(t)
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/tools/call", nil)

	s.Handler().ServeHTTP(rr, req)

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}
