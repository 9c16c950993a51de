// Package engine implements the routing engine: the component that turns
// one incoming Query into a ModelSelection and, when a provider is wired
// in, an actual completion, tying together the escalation layer, rule
// stack, semantic cache, cost calculator, and cost ledger.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"signalhub/internal/cache/semantic"
	"signalhub/internal/costs"
	"signalhub/internal/domain"
	"signalhub/internal/provider"
	"signalhub/internal/routing/escalation"
	"signalhub/internal/routing/rules"
)

// Config controls engine-level behaviour not owned by one collaborator.
type Config struct {
	DefaultModel    domain.ModelTier
	ProviderTimeout time.Duration
	RetryMaxElapsed time.Duration
}

// Result is the outcome of routing and, when invocation happens, serving
// one query.
type Result struct {
	Selection  domain.ModelSelection
	Response   []byte
	CacheHit   bool
	Similarity float64
}

// Engine is the Routing Engine. It owns no persistent state of its own
// beyond running metrics; every durable concern is delegated to its
// collaborators.
type Engine struct {
	cfg          Config
	escalation   *escalation.Layer
	rules        *rules.Stack
	cache        *semantic.Cache // nil disables the cache lookup/store steps
	calculator   *costs.Calculator
	ledger       costs.Ledger
	availability *AvailabilityProber
	dispatcher   *Dispatcher

	totalQueries   int64
	overrideCount  int64
	confidenceSum  float64
	confidenceN    int64
	distributionMu sync.Mutex
	distribution   map[domain.ModelTier]int64
}

// New builds an Engine. cache may be nil to run with the semantic cache
// disabled.
func New(cfg Config, esc *escalation.Layer, ruleStack *rules.Stack, cache *semantic.Cache, calc *costs.Calculator, ledger costs.Ledger, availability *AvailabilityProber, dispatcher *Dispatcher) *Engine {
	if cfg.DefaultModel == "" {
		cfg.DefaultModel = domain.TierMedium
	}
	return &Engine{
		cfg:          cfg,
		escalation:   esc,
		rules:        ruleStack,
		cache:        cache,
		calculator:   calc,
		ledger:       ledger,
		availability: availability,
		dispatcher:   dispatcher,
		distribution: make(map[domain.ModelTier]int64),
	}
}

// Route decides which model tier serves q, consults the cache, invokes
// the provider when necessary, and records the outcome to the ledger.
// sessionID may be empty when the caller has no session.
func (e *Engine) Route(ctx context.Context, q domain.Query, sessionID, userID string) (Result, error) {
	start := time.Now()
	selection, q := e.decide(ctx, q, sessionID)
	e.recordDecision(selection)

	if e.cache != nil {
		if hit, similarity, _ := e.cache.Lookup(ctx, q.Text, q.Context); hit != nil {
			// The hit record itself carries zero tokens and cost; what the
			// reuse avoided is estimated from the query and the cached
			// payload at the tier that originally answered, and travels in
			// metadata so ledger aggregation can attribute it to caching.
			inTokens := int64(q.EstimatedTokens())
			outTokens := int64(len(hit.ResponsePayload) / 4)
			metadata := map[string]any{
				costs.MetadataCachedModel:    string(hit.ModelID),
				costs.MetadataAvoidedCostUSD: e.calculator.Cost(hit.ModelID, inTokens, outTokens),
				costs.MetadataSavedUSD:       e.calculator.Baseline(inTokens, outTokens),
			}
			e.appendUsage(ctx, selection, q, 0, 0, 0, true, time.Since(start), userID, metadata)
			return Result{Selection: selection, Response: hit.ResponsePayload, CacheHit: true, Similarity: similarity}, nil
		}
	}

	if e.availability == nil {
		return Result{Selection: selection}, domain.NewError(domain.KindUnavailable, "engine.Route", errNoProvider(selection.ChosenModel))
	}

	model := selection.ChosenModel
	p, ok := e.availability.Provider(model)
	if !ok {
		return Result{Selection: selection}, domain.NewError(domain.KindUnavailable, "engine.Route", errNoProvider(model))
	}

	result, err := e.invoke(ctx, p, q)
	if err != nil {
		return Result{Selection: selection}, domain.NewError(domain.KindTransient, "engine.Route", err)
	}

	cost := e.calculator.Cost(model, result.InputTokens, result.OutputTokens)
	e.appendUsage(ctx, selection, q, result.InputTokens, result.OutputTokens, cost, false, time.Since(start), userID, nil)

	if e.cache != nil {
		if _, err := e.cache.Store(ctx, q.Text, []byte(result.Content), model, q.Context); err != nil {
			slog.Warn("routing engine: cache store failed", "err", err)
		}
	}

	return Result{Selection: selection, Response: []byte(result.Content)}, nil
}

// decide resolves the override/rules/default cascade, returning the
// selection and the query to continue with (inline-hint stripping may
// have changed its text). An override whose model is unavailable does not
// apply; evaluation continues with the rule stack. A rule decision whose
// model is unavailable falls back to the default model with the reason
// annotated.
func (e *Engine) decide(ctx context.Context, q domain.Query, sessionID string) (domain.ModelSelection, domain.Query) {
	now := time.Now()

	if e.escalation != nil {
		override, stripped := e.escalation.Resolve(q, sessionID)
		q = stripped
		if override != nil {
			if e.modelAvailable(ctx, override.Model) {
				return domain.ModelSelection{
					ChosenModel:    override.Model,
					Overridden:     true,
					OverrideSource: override.Source,
					OverrideReason: override.Reason,
					Timestamp:      now,
				}, q
			}
			slog.Warn("override model unavailable, continuing with rule evaluation",
				"model", override.Model, "source", override.Source)
		}
	}

	var decision *domain.RoutingDecision
	if e.rules != nil {
		decision = e.rules.EvaluateAll(q)
	}
	if decision == nil {
		decision = &domain.RoutingDecision{
			ChosenModel: e.cfg.DefaultModel,
			ReasonText:  "no rule matched, default model",
			Confidence:  0.5,
		}
	}
	if decision.ChosenModel != e.cfg.DefaultModel && !e.modelAvailable(ctx, decision.ChosenModel) {
		decision.ReasonText += " (original unavailable)"
		decision.ChosenModel = e.cfg.DefaultModel
	}

	return domain.ModelSelection{
		ChosenModel:     decision.ChosenModel,
		RoutingDecision: decision,
		OverrideSource:  domain.OverrideNone,
		Timestamp:       now,
	}, q
}

// modelAvailable treats a missing prober as "everything available" so the
// decision cascade stays testable without providers wired in; Route still
// fails with Unavailable before any invocation in that case.
func (e *Engine) modelAvailable(ctx context.Context, model domain.ModelTier) bool {
	if e.availability == nil {
		return true
	}
	return e.availability.Available(ctx, model)
}

func (e *Engine) invoke(ctx context.Context, p provider.Provider, q domain.Query) (provider.CompletionResult, error) {
	req := provider.CompletionRequest{Model: p.Name(), Prompt: q.Text}

	if e.cfg.ProviderTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.cfg.ProviderTimeout)
		defer cancel()
	}

	if e.dispatcher == nil {
		return completeWithRetry(ctx, p, req, e.cfg.RetryMaxElapsed)
	}

	type outcome struct {
		result provider.CompletionResult
		err    error
	}
	done := make(chan outcome, 1)
	submitted := e.dispatcher.Submit(ctx, func() {
		r, err := completeWithRetry(ctx, p, req, e.cfg.RetryMaxElapsed)
		done <- outcome{r, err}
	})
	if !submitted {
		return provider.CompletionResult{}, ctx.Err()
	}

	select {
	case o := <-done:
		return o.result, o.err
	case <-ctx.Done():
		return provider.CompletionResult{}, ctx.Err()
	}
}

func (e *Engine) appendUsage(ctx context.Context, selection domain.ModelSelection, q domain.Query, inputTokens, outputTokens int64, cost float64, cacheHit bool, latency time.Duration, userID string, metadata map[string]any) {
	if e.ledger == nil {
		return
	}
	reason := ""
	if selection.RoutingDecision != nil {
		reason = selection.RoutingDecision.ReasonText
	}
	usage := domain.ModelUsage{
		ID:            uuid.NewString(),
		Timestamp:     time.Now(),
		ModelID:       selection.ChosenModel,
		InputTokens:   inputTokens,
		OutputTokens:  outputTokens,
		CostUSD:       cost,
		RoutingReason: reason,
		CacheHit:      cacheHit,
		LatencyMs:     float64(latency.Milliseconds()),
		ToolName:      q.ToolName,
		UserID:        userID,
		Metadata:      metadata,
	}
	if err := e.ledger.Append(ctx, usage); err != nil {
		slog.Warn("routing engine: ledger append failed", "err", err)
	}
}

func (e *Engine) recordDecision(selection domain.ModelSelection) {
	atomic.AddInt64(&e.totalQueries, 1)
	if selection.Overridden {
		atomic.AddInt64(&e.overrideCount, 1)
	}
	if selection.RoutingDecision != nil {
		e.distributionMu.Lock()
		e.confidenceSum += selection.RoutingDecision.Confidence
		e.confidenceN++
		e.distributionMu.Unlock()
	}
	e.distributionMu.Lock()
	e.distribution[selection.ChosenModel]++
	e.distributionMu.Unlock()
}

// Metrics is the Routing Engine's externally-reported state.
type Metrics struct {
	TotalQueries      int64
	OverrideCount     int64
	AverageConfidence float64
	ModelDistribution map[domain.ModelTier]int64
	RuleHitCounts     map[string]int64
	EscalationCounts  escalation.Counters
}

// MetricsSnapshot returns a point-in-time view of the engine's running
// metrics, for the HTTP metrics surface.
func (e *Engine) MetricsSnapshot() Metrics {
	e.distributionMu.Lock()
	dist := make(map[domain.ModelTier]int64, len(e.distribution))
	for k, v := range e.distribution {
		dist[k] = v
	}
	var avgConfidence float64
	if e.confidenceN > 0 {
		avgConfidence = e.confidenceSum / float64(e.confidenceN)
	}
	e.distributionMu.Unlock()

	var hitCounts map[string]int64
	if e.rules != nil {
		hitCounts = e.rules.HitCounts()
	}
	var escCounts escalation.Counters
	if e.escalation != nil {
		escCounts = e.escalation.Counters()
	}

	return Metrics{
		TotalQueries:      atomic.LoadInt64(&e.totalQueries),
		OverrideCount:     atomic.LoadInt64(&e.overrideCount),
		AverageConfidence: avgConfidence,
		ModelDistribution: dist,
		RuleHitCounts:     hitCounts,
		EscalationCounts:  escCounts,
	}
}

type unavailableError struct{ model domain.ModelTier }

func (e unavailableError) Error() string {
	return "no provider configured for model " + string(e.model)
}

func errNoProvider(model domain.ModelTier) error { return unavailableError{model: model} }
