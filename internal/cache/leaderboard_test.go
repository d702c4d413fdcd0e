package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/entity"
)

type stubSource struct {
	calls   int
	entries []*entity.LeaderboardEntry
	err     error
}

func (s *stubSource) Leaderboard(_ context.Context, _ int) ([]*entity.LeaderboardEntry, error) {
	s.calls++
	return s.entries, s.err
}

// unreachable points at a closed port so every command fails fast.
func unreachable() *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLeaderboardFallsBackToSource(t *testing.T) {
	src := &stubSource{entries: []*entity.LeaderboardEntry{{Rank: 1, UserID: 9, TotalScans: 12}}}
	c := NewLeaderboard(unreachable(), src, time.Minute, discard())
	defer c.Close()

	entries, err := c.Leaderboard(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, int64(12), entries[0].TotalScans)
	assert.Equal(t, 1, src.calls)

	c.Invalidate(context.Background())
}

func TestLeaderboardSourceError(t *testing.T) {
	src := &stubSource{err: errors.New("down")}
	c := NewLeaderboard(unreachable(), src, time.Minute, discard())
	defer c.Close()

	_, err := c.Leaderboard(context.Background(), 10)
	assert.EqualError(t, err, "down")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "chartscan:leaderboard:20", key(20))
}
