package escalation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"signalhub/internal/domain"
)

func TestLayer_ExplicitBeatsEverything(t *testing.T) {
	sessions := NewSessionStore(30 * time.Minute)
	sessions.Set("sess-1", domain.TierMedium, "session preference", 0)
	layer := New(sessions, true)

	q := domain.NewQuery("@small hello", "", domain.TierLarge, nil)
	override, outQ := layer.Resolve(q, "sess-1")

	require.NotNil(t, override)
	assert.Equal(t, domain.OverrideExplicit, override.Source)
	assert.Equal(t, domain.TierLarge, override.Model)
	assert.Equal(t, q.Text, outQ.Text) // explicit override never strips text

	counters := layer.Counters()
	assert.Equal(t, int64(1), counters.Explicit)
	assert.Equal(t, int64(0), counters.Session)
}

func TestLayer_SessionBeatsInline(t *testing.T) {
	sessions := NewSessionStore(30 * time.Minute)
	sessions.Set("sess-1", domain.TierMedium, "session preference", 0)
	layer := New(sessions, true)

	q := domain.NewQuery("@large hello", "", "", nil)
	override, _ := layer.Resolve(q, "sess-1")

	require.NotNil(t, override)
	assert.Equal(t, domain.OverrideSession, override.Source)
	assert.Equal(t, domain.TierMedium, override.Model)
}

func TestLayer_InlineHintStripsToken(t *testing.T) {
	sessions := NewSessionStore(30 * time.Minute)
	layer := New(sessions, true)

	q := domain.NewQuery("@large explain this code", "", "", nil)
	override, outQ := layer.Resolve(q, "")

	require.NotNil(t, override)
	assert.Equal(t, domain.OverrideInline, override.Source)
	assert.Equal(t, domain.TierLarge, override.Model)
	assert.Equal(t, "explain this code", outQ.Text)
}

func TestLayer_InlineHintIgnoredWhenRemainderEmpty(t *testing.T) {
	sessions := NewSessionStore(30 * time.Minute)
	layer := New(sessions, true)

	q := domain.NewQuery("@large", "", "", nil)
	override, outQ := layer.Resolve(q, "")

	assert.Nil(t, override)
	assert.Equal(t, "@large", outQ.Text)
}

func TestLayer_InlineHintsDisabled(t *testing.T) {
	sessions := NewSessionStore(30 * time.Minute)
	layer := New(sessions, false)

	q := domain.NewQuery("@large hello", "", "", nil)
	override, _ := layer.Resolve(q, "")
	assert.Nil(t, override)
}

func TestLayer_NoOverrideWhenNothingFires(t *testing.T) {
	sessions := NewSessionStore(30 * time.Minute)
	layer := New(sessions, true)

	override, _ := layer.Resolve(domain.NewQuery("hello", "", "", nil), "")
	assert.Nil(t, override)
}

func TestSessionStore_ExpiredEntryIsAbsent(t *testing.T) {
	sessions := NewSessionStore(time.Minute)
	sessions.Set("s1", domain.TierLarge, "r", -time.Second) // already expired

	_, ok := sessions.Get("s1", time.Now())
	assert.False(t, ok)
}

func TestSessionStore_CleanupExpiredRemovesStaleEntries(t *testing.T) {
	sessions := NewSessionStore(time.Minute)
	sessions.Set("s1", domain.TierLarge, "r", -time.Second)
	sessions.Set("s2", domain.TierSmall, "r", time.Hour)

	removed := sessions.CleanupExpired(time.Now())
	assert.Equal(t, 1, removed)

	_, ok := sessions.Get("s2", time.Now())
	assert.True(t, ok)
}
