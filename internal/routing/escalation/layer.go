package escalation

import (
	"sync/atomic"
	"time"

	"signalhub/internal/domain"
)

// Layer resolves an optional ModelOverride for a query, consulted before
// the Rule Stack. Precedence is strict: explicit, then session,
// then inline; the earliest source that fires wins.
type Layer struct {
	sessions           *SessionStore
	inlineHintsEnabled bool

	explicitCount int64
	sessionCount  int64
	inlineCount   int64
}

// New builds a Layer over the given session store.
func New(sessions *SessionStore, inlineHintsEnabled bool) *Layer {
	return &Layer{sessions: sessions, inlineHintsEnabled: inlineHintsEnabled}
}

// Resolve returns the winning override, if any, and the query to continue
// routing with (its text has the inline hint token stripped when an
// inline override wins).
func (l *Layer) Resolve(q domain.Query, sessionID string) (*domain.ModelOverride, domain.Query) {
	if q.PreferredModel != "" {
		atomic.AddInt64(&l.explicitCount, 1)
		return &domain.ModelOverride{
			Model:  q.PreferredModel,
			Source: domain.OverrideExplicit,
			Reason: "user preference",
		}, q
	}

	if sessionID != "" {
		if esc, ok := l.sessions.Get(sessionID, time.Now()); ok {
			atomic.AddInt64(&l.sessionCount, 1)
			return &domain.ModelOverride{
				Model:  esc.Model,
				Source: domain.OverrideSession,
				Reason: esc.Reason,
			}, q
		}
	}

	if l.inlineHintsEnabled {
		if tier, stripped, ok := parseInlineHint(q.Text); ok {
			atomic.AddInt64(&l.inlineCount, 1)
			return &domain.ModelOverride{
				Model:  tier,
				Source: domain.OverrideInline,
				Reason: "inline hint",
			}, q.WithText(stripped)
		}
	}

	return nil, q
}

// Counters reports how many times each source has produced the winning
// override, for the Routing Engine's metrics.
type Counters struct {
	Explicit int64
	Session  int64
	Inline   int64
}

func (l *Layer) Counters() Counters {
	return Counters{
		Explicit: atomic.LoadInt64(&l.explicitCount),
		Session:  atomic.LoadInt64(&l.sessionCount),
		Inline:   atomic.LoadInt64(&l.inlineCount),
	}
}
