// Package domain defines the core data model shared by every component of
// the routing, caching, and cost-accounting pipeline.
package domain

import (
	"strings"
	"time"
)

// ModelTier is one of the three cost/capability tiers the core routes across.
type ModelTier string

const (
	TierSmall  ModelTier = "small"
	TierMedium ModelTier = "medium"
	TierLarge  ModelTier = "large"
)

// AllTiers lists the tiers cheapest to most expensive.
func AllTiers() []ModelTier {
	return []ModelTier{TierSmall, TierMedium, TierLarge}
}

// ParseTier parses a tier string, case-insensitively.
func ParseTier(s string) (ModelTier, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "small":
		return TierSmall, true
	case "medium":
		return TierMedium, true
	case "large":
		return TierLarge, true
	default:
		return "", false
	}
}

// CacheEntryStatus is the lifecycle state of a CachedResponse.
type CacheEntryStatus string

const (
	StatusActive  CacheEntryStatus = "ACTIVE"
	StatusExpired CacheEntryStatus = "EXPIRED"
	StatusEvicted CacheEntryStatus = "EVICTED"
)

// OverrideSource identifies which escalation mechanism produced a
// ModelSelection's override, in precedence order.
type OverrideSource string

const (
	OverrideNone     OverrideSource = "none"
	OverrideExplicit OverrideSource = "explicit"
	OverrideSession  OverrideSource = "session"
	OverrideInline   OverrideSource = "inline"
)

// Query is an immutable description of an incoming request to route and/or
// serve from cache.
type Query struct {
	Text            string
	ToolName        string
	PreferredModel  ModelTier
	Context         map[string]string
	lengthChars     int
	estimatedTokens int
}

// NewQuery constructs a Query, computing its derived attributes.
func NewQuery(text, toolName string, preferred ModelTier, ctx map[string]string) Query {
	return Query{
		Text:            text,
		ToolName:        toolName,
		PreferredModel:  preferred,
		Context:         ctx,
		lengthChars:     len(text),
		estimatedTokens: estimateTokens(text),
	}
}

// LengthChars is the prompt's length in characters.
func (q Query) LengthChars() int { return q.lengthChars }

// EstimatedTokens approximates token count as length_chars/4.
func (q Query) EstimatedTokens() int { return q.estimatedTokens }

func estimateTokens(text string) int {
	return len(text) / 4
}

// WithText returns a copy of q with its text (and derived attributes)
// replaced. Used by the escalation layer when an inline hint token is
// stripped from the query text.
func (q Query) WithText(text string) Query {
	q.Text = text
	q.lengthChars = len(text)
	q.estimatedTokens = estimateTokens(text)
	return q
}

// RoutingDecision is produced by exactly one rule, or by the routing
// engine's default fallback.
type RoutingDecision struct {
	ChosenModel  ModelTier
	ReasonText   string
	Confidence   float64
	RulesApplied []string
	Metadata     map[string]any
}

// ModelSelection is the final output of the routing engine for one query.
type ModelSelection struct {
	ChosenModel     ModelTier
	RoutingDecision *RoutingDecision
	Overridden      bool
	OverrideSource  OverrideSource
	OverrideReason  string
	Timestamp       time.Time
}

// CachedResponse is a single entry in the semantic cache.
type CachedResponse struct {
	ID              string
	QueryText       string
	QueryEmbedding  []float32
	ResponsePayload []byte
	ModelID         ModelTier
	CreatedAt       time.Time
	TTLSeconds      int64
	HitCount        int64
	LastAccessed    *time.Time
	Context         map[string]string
	Status          CacheEntryStatus
}

// Usable reports whether the entry is currently servable: active and
// within its TTL window.
func (c CachedResponse) Usable(now time.Time) bool {
	if c.Status != StatusActive {
		return false
	}
	return now.Sub(c.CreatedAt) <= time.Duration(c.TTLSeconds)*time.Second
}

// CacheSearchResult pairs a cache entry with its similarity to the query
// that produced the search.
type CacheSearchResult struct {
	Entry      CachedResponse
	Similarity float64
}

// ModelUsage is one immutable ledger record: a real model call or a cache
// hit that avoided one.
type ModelUsage struct {
	ID            string
	Timestamp     time.Time
	ModelID       ModelTier
	InputTokens   int64
	OutputTokens  int64
	CostUSD       float64
	RoutingReason string
	CacheHit      bool
	LatencyMs     float64
	ToolName      string
	UserID        string
	Metadata      map[string]any
}

// ModelDistributionEntry is one row of CostSummary's per-model breakdown.
type ModelDistributionEntry struct {
	ModelID  ModelTier
	Requests int64
}

// SpendRisk is an optional anomaly assessment attached to a CostSummary;
// see internal/costs/risk.go.
type SpendRisk struct {
	Score   float64
	Level   string
	Factors map[string]float64
}

// CostSummary aggregates ModelUsage records over a time window.
type CostSummary struct {
	WindowStart       time.Time
	WindowEnd         time.Time
	TotalCostUSD      float64
	TotalSavedUSD     float64
	RoutingSavedUSD   float64
	CacheSavedUSD     float64
	TotalRequests     int64
	CacheHits         int64
	HitRatePct        float64
	SavingsPct        float64
	ModelDistribution []ModelDistributionEntry
	MeanLatencyMs     float64
	Risk              *SpendRisk
}

// SessionEscalation is a session-scoped model override.
type SessionEscalation struct {
	SessionID string
	Model     ModelTier
	ExpiresAt time.Time
	Reason    string
	CreatedAt time.Time
}

// Expired reports whether the escalation is no longer active at `now`.
func (s SessionEscalation) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// ModelOverride is what the escalation layer hands to the routing engine
// when a higher-precedence-than-rules decision applies.
type ModelOverride struct {
	Model  ModelTier
	Source OverrideSource
	Reason string
}
