package infra

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"gigsync/middleware/ratelimit/domain"
)

func TestMemoryStatsStore_CountsByCategoryAndKey(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStatsStore(WithTrackKeys(true))

	require.NoError(t, s.Record(ctx, domain.StatsEvent{Category: domain.CategoryMessage, Key: "u1", Allowed: true}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Category: domain.CategoryMessage, Key: "u1", Allowed: false}))
	require.NoError(t, s.Record(ctx, domain.StatsEvent{Category: domain.CategoryAuth, Key: "u2", Allowed: true}))

	require.Equal(t, Counters{Allowed: 2, Denied: 1}, s.Total())
	require.Equal(t, Counters{Allowed: 1, Denied: 1}, s.ByCategory()[domain.CategoryMessage])
	require.Equal(t, Counters{Allowed: 1}, s.ByKey()["auth:u2"])
}

type fakeCounter struct {
	calls map[string]int
}

func (f *fakeCounter) Decision(category string, allowed bool) {
	if allowed {
		f.calls[category+":allowed"]++
		return
	}
	f.calls[category+":denied"]++
}

type failingStats struct{}

func (failingStats) Record(context.Context, domain.StatsEvent) error { return errors.New("down") }

func TestMultiStatsStore_FansOutAndReturnsFirstError(t *testing.T) {
	ctx := context.Background()
	counter := &fakeCounter{calls: map[string]int{}}
	mem := NewMemoryStatsStore()

	multi := MultiStatsStore{failingStats{}, NewPrometheusStatsStore(counter), nil, mem}
	err := multi.Record(ctx, domain.StatsEvent{Category: domain.CategoryGigCreation, Allowed: false})
	require.EqualError(t, err, "down")

	require.Equal(t, 1, counter.calls["gig_creation:denied"])
	require.Equal(t, Counters{Denied: 1}, mem.Total())
}
