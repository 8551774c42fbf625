// internal/engine/contextmanager/manager_test.go
package contextmanager

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crm-assistant/internal/common/logger"
	"crm-assistant/internal/engine/contextstore"
	"crm-assistant/internal/models"
)

// ==========================
// Test Helper Functions
// ==========================

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func setupManager(t *testing.T) (*Manager, *miniredis.Miniredis, *fakeClock) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	clock := &fakeClock{now: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}
	store := contextstore.NewRedisStore(client, 3, logger.NewTestLogger(t))
	m := NewManager(store, DefaultConfig(), logger.NewTestLogger(t), WithClock(clock.Now))
	return m, mr, clock
}

func intent(tag models.IntentTag, kv ...string) models.ParsedIntent {
	e := models.Entities{}
	for i := 0; i+1 < len(kv); i += 2 {
		e.Set(models.EntityKind(kv[i]), kv[i+1])
	}
	return models.NewParsedIntent(tag, e)
}

// ==========================
// Round Trip and Merge Tests
// ==========================

func TestManager_RoundTrip(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	got, err := m.GetContext(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Nil(t, got)

	stored, err := m.UpdateContext(ctx, "u1", "c1", intent(models.IntentAccountOwnership, "accounts", "Boeing"), nil)
	require.NoError(t, err)
	require.NotNil(t, stored.LastIntent)

	got, err = m.GetContext(ctx, "u1", "c1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, models.IntentAccountOwnership, got.LastIntent.Intent)
	assert.Equal(t, []string{"Boeing"}, got.LastEntities[models.EntityAccounts])
	assert.Len(t, got.History, 1)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, "c1", got.ConversationID)
}

func TestManager_MergeLaw(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.UpdateContext(ctx, "u1", "c1", intent(models.IntentAccountOwnership, "accounts", "Boeing"), nil)
	require.NoError(t, err)

	stored, err := m.GetContext(ctx, "u1", "c1")
	require.NoError(t, err)

	resolved := Resolve(intent(models.IntentPipelineSummary), stored)
	assert.Equal(t, models.IntentPipelineSummary, resolved.Intent)
	assert.Equal(t, []string{"Boeing"}, resolved.Entities[models.EntityAccounts])

	updated, err := m.UpdateContext(ctx, "u1", "c1", intent(models.IntentPipelineSummary), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"Boeing"}, updated.LastEntities[models.EntityAccounts])
	assert.Equal(t, []string{"Boeing"}, updated.LastIntent.Entities[models.EntityAccounts])
}

func TestManager_PairsAreIsolated(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.UpdateContext(ctx, "u1", "c1", intent(models.IntentAccountOwnership, "accounts", "Boeing"), nil)
	require.NoError(t, err)

	other, err := m.GetContext(ctx, "u1", "c2")
	require.NoError(t, err)
	assert.Nil(t, other)

	other, err = m.GetContext(ctx, "u2", "c1")
	require.NoError(t, err)
	assert.Nil(t, other)
}

func TestManager_HistoryIsBounded(t *testing.T) {
	m, _, clock := setupManager(t)
	ctx := context.Background()

	for i := 0; i < 15; i++ {
		clock.Advance(time.Minute)
		_, err := m.UpdateContext(ctx, "u1", "c1", intent(models.IntentPipelineSummary), nil)
		require.NoError(t, err)
	}
	final, err := m.UpdateContext(ctx, "u1", "c1", intent(models.IntentAccountOwnership, "accounts", "Intel"), nil)
	require.NoError(t, err)

	require.Len(t, final.History, DefaultConfig().HistoryLimit)
	assert.Equal(t, models.IntentAccountOwnership, final.History[len(final.History)-1].Intent)
}

func TestManager_ResultRefsAndOrdinal(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	result := &models.QueryResult{
		Intent: models.IntentLateStagePipeline,
		Records: []models.Record{
			{ID: "1", Name: "Wing retrofit", Account: "Boeing"},
			{ID: "2", Name: "Fab expansion", Account: "Intel"},
			{ID: "3", Name: "Cloud renewal"},
		},
	}
	_, err := m.UpdateContext(ctx, "u1", "c1", intent(models.IntentLateStagePipeline), result)
	require.NoError(t, err)

	stored, err := m.GetContext(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Boeing", "Intel", "Cloud renewal"}, stored.LastResultRefs)

	resolved := Resolve(intent(models.IntentAccountOwnership, "ordinal", "2"), stored)
	assert.Equal(t, []string{"Intel"}, resolved.Entities[models.EntityAccounts])
	assert.False(t, resolved.Entities.Has(models.EntityOrdinal))

	resolved = Resolve(intent(models.IntentAccountOwnership, "ordinal", "last"), stored)
	assert.Equal(t, []string{"Cloud renewal"}, resolved.Entities[models.EntityAccounts])
}

// ==========================
// Expiry Tests
// ==========================

func TestManager_TTLExpiry(t *testing.T) {
	m, _, clock := setupManager(t)
	ctx := context.Background()

	_, err := m.UpdateContext(ctx, "u1", "c1", intent(models.IntentAccountOwnership, "accounts", "Boeing"), nil)
	require.NoError(t, err)

	clock.Advance(23 * time.Hour)
	got, err := m.GetContext(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.NotNil(t, got)

	clock.Advance(2 * time.Hour)
	got, err = m.GetContext(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Nil(t, got)

	// An expired record is replaced, not merged into.
	fresh, err := m.UpdateContext(ctx, "u1", "c1", intent(models.IntentPipelineSummary), nil)
	require.NoError(t, err)
	assert.False(t, fresh.LastEntities.Has(models.EntityAccounts))
	assert.Len(t, fresh.History, 1)
	assert.Equal(t, clock.Now(), fresh.CreatedAt)
}

func TestManager_StoreTTLIsSet(t *testing.T) {
	m, mr, _ := setupManager(t)

	_, err := m.UpdateContext(context.Background(), "u1", "c1", intent(models.IntentPipelineSummary), nil)
	require.NoError(t, err)

	key := contextstore.Key(DefaultConfig().KeyPrefix, "u1", "c1")
	assert.Equal(t, 24*time.Hour, mr.TTL(key))
}

// ==========================
// Feedback Update Tests
// ==========================

func TestManager_ApplyCorrection(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.UpdateContext(ctx, "u1", "c1", intent(models.IntentAccountOwnership, "accounts", "Intel"), nil)
	require.NoError(t, err)

	corrected := models.Entities{}
	corrected.Set(models.EntityAccounts, "Microsoft")
	updated, err := m.ApplyCorrection(ctx, "u1", "c1", corrected)
	require.NoError(t, err)

	assert.Equal(t, []string{"Microsoft"}, updated.LastEntities[models.EntityAccounts])
	assert.Equal(t, []string{"Microsoft"}, updated.LastIntent.Entities[models.EntityAccounts])
	require.Len(t, updated.History, 1)
	assert.Equal(t, []string{"Intel"}, updated.History[0].Entities[models.EntityAccounts])

	got, err := m.GetContext(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Equal(t, []string{"Microsoft"}, got.LastEntities[models.EntityAccounts])
}

func TestManager_MarkDisputed(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.UpdateContext(ctx, "u1", "c1", intent(models.IntentAccountOwnership, "accounts", "Intel"), nil)
	require.NoError(t, err)

	updated, err := m.MarkDisputed(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.True(t, updated.Disputed)
	assert.Equal(t, []string{"Intel"}, updated.LastEntities[models.EntityAccounts])

	// The next query clears the flag.
	updated, err = m.UpdateContext(ctx, "u1", "c1", intent(models.IntentPipelineSummary), nil)
	require.NoError(t, err)
	assert.False(t, updated.Disputed)
}

func TestManager_FeedbackWithoutContext(t *testing.T) {
	m, mr, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.ApplyCorrection(ctx, "u1", "c1", models.Entities{models.EntityAccounts: {"X"}})
	assert.True(t, errors.Is(err, ErrNoContext))

	_, err = m.MarkDisputed(ctx, "u1", "c1")
	assert.True(t, errors.Is(err, ErrNoContext))

	assert.Empty(t, mr.Keys())
}

// ==========================
// Error Path Tests
// ==========================

func TestManager_Reset(t *testing.T) {
	m, _, _ := setupManager(t)
	ctx := context.Background()

	_, err := m.UpdateContext(ctx, "u1", "c1", intent(models.IntentPipelineSummary), nil)
	require.NoError(t, err)
	require.NoError(t, m.Reset(ctx, "u1", "c1"))

	got, err := m.GetContext(ctx, "u1", "c1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestManager_InvalidKey(t *testing.T) {
	m, _, _ := setupManager(t)

	_, err := m.GetContext(context.Background(), "", "c1")
	assert.True(t, errors.Is(err, ErrInvalidKey))

	_, err = m.UpdateContext(context.Background(), "u1", "", intent(models.IntentPipelineSummary), nil)
	assert.True(t, errors.Is(err, ErrInvalidKey))
}

func TestManager_CorruptRecordIsAbsent(t *testing.T) {
	m, mr, _ := setupManager(t)
	key := contextstore.Key(DefaultConfig().KeyPrefix, "u1", "c1")
	require.NoError(t, mr.Set(key, "{not json"))

	got, err := m.GetContext(context.Background(), "u1", "c1")
	require.NoError(t, err)
	assert.Nil(t, got)

	updated, err := m.UpdateContext(context.Background(), "u1", "c1", intent(models.IntentPipelineSummary), nil)
	require.NoError(t, err)
	assert.Len(t, updated.History, 1)
}

func TestManager_StoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()
	m := NewManager(contextstore.NewRedisStore(client, 1, logger.NewNoOpLogger()), nil, logger.NewNoOpLogger())
	mr.Close()

	_, err = m.GetContext(context.Background(), "u1", "c1")
	assert.True(t, errors.Is(err, contextstore.ErrUnavailable))

	_, err = m.UpdateContext(context.Background(), "u1", "c1", intent(models.IntentPipelineSummary), nil)
	assert.True(t, errors.Is(err, contextstore.ErrUnavailable))
}
