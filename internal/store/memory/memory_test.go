package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/entity"
	"chartscan/internal/store"
)

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func TestReadCreatesDefaultAccount(t *testing.T) {
	m := New()
	acc, err := m.Read(context.Background(), 10, now)
	require.NoError(t, err)
	assert.Equal(t, int64(10), acc.UserID)
	assert.Equal(t, entity.ReferralCodeFor(10), acc.ReferralCode)
	assert.Zero(t, acc.BonusCredits)

	id, err := m.FindByReferralCode(context.Background(), acc.ReferralCode)
	require.NoError(t, err)
	assert.Equal(t, int64(10), id)

	_, err = m.FindByReferralCode(context.Background(), "NOPE0000")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestTransactCommitsAndDiscards(t *testing.T) {
	m := New()
	ctx := context.Background()

	acc, err := m.Transact(ctx, 1, now, func(a *entity.Account) error {
		a.BonusCredits = 5
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 5, acc.BonusCredits)
	assert.Equal(t, int64(1), acc.Version)

	acc, err = m.Transact(ctx, 1, now, func(a *entity.Account) error {
		a.BonusCredits = 100
		return store.ErrNoop
	})
	require.NoError(t, err)
	assert.Equal(t, 5, acc.BonusCredits)

	boom := errors.New("boom")
	_, err = m.Transact(ctx, 1, now, func(a *entity.Account) error {
		a.BonusCredits = 100
		a.ReferralCreditedFor = append(a.ReferralCreditedFor, 2)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	acc, err = m.Read(ctx, 1, now)
	require.NoError(t, err)
	assert.Equal(t, 5, acc.BonusCredits)
	assert.Empty(t, acc.ReferralCreditedFor)
}

func TestReturnedAccountIsACopy(t *testing.T) {
	m := New()
	acc, err := m.Read(context.Background(), 3, now)
	require.NoError(t, err)
	acc.BonusCredits = 99

	again, err := m.Read(context.Background(), 3, now)
	require.NoError(t, err)
	assert.Zero(t, again.BonusCredits)
}

func TestTransactIsSerializedPerUser(t *testing.T) {
	m := New()
	ctx := context.Background()
	const workers = 50

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := m.Transact(ctx, 7, now, func(a *entity.Account) error {
				v := a.TotalScans
				time.Sleep(time.Microsecond)
				a.TotalScans = v + 1
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	acc, err := m.Read(ctx, 7, now)
	require.NoError(t, err)
	assert.Equal(t, int64(workers), acc.TotalScans)
}

func TestDifferentUsersDoNotBlockEachOther(t *testing.T) {
	m := New()
	ctx := context.Background()

	inside := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		_, _ = m.Transact(ctx, 1, now, func(a *entity.Account) error {
			close(inside)
			<-release
			return nil
		})
		close(done)
	}()
	<-inside

	_, err := m.Transact(ctx, 2, now, func(a *entity.Account) error {
		a.BonusCredits = 1
		return nil
	})
	require.NoError(t, err)
	close(release)
	<-done
}

func TestHistoryLeaderboardStats(t *testing.T) {
	m := New()
	ctx := context.Background()

	for uid, scans := range map[int64]int64{1: 3, 2: 7, 3: 0} {
		_, err := m.Transact(ctx, uid, now, func(a *entity.Account) error {
			a.TotalScans = scans
			return nil
		})
		require.NoError(t, err)
	}
	until := now.Add(time.Hour)
	_, err := m.Transact(ctx, 3, now, func(a *entity.Account) error {
		a.PremiumUntil = &until
		return nil
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, m.SaveScan(ctx, &entity.ScanRecord{
			ID:        string(rune('a' + i)),
			UserID:    1,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		}))
	}

	history, err := m.ScanHistory(ctx, 1, 2)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, "c", history[0].ID)
	assert.Equal(t, "b", history[1].ID)

	board, err := m.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, int64(2), board[0].UserID)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, 2, board[1].Rank)

	stats, err := m.Stats(ctx, now.Add(time.Minute), now)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Accounts)
	assert.Equal(t, int64(10), stats.TotalScans)
	assert.Equal(t, int64(1), stats.PremiumActive)
	assert.Equal(t, int64(2), stats.ScansToday)
}
