package memory

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"chartscan/entity"
	"chartscan/internal/store"
)

// Memory keeps everything in process. Each user has its own mutex; the
// shared RWMutex only guards the maps and is never held across a mutation.
type Memory struct {
	mu       sync.RWMutex
	locks    map[int64]*sync.Mutex
	accounts map[int64]*entity.Account
	codes    map[string]int64
	scans    map[int64][]*entity.ScanRecord
	entries  []*entity.LedgerEntry
}

var _ store.Store = (*Memory)(nil)

func New() *Memory {
	return &Memory{
		locks:    make(map[int64]*sync.Mutex),
		accounts: make(map[int64]*entity.Account),
		codes:    make(map[string]int64),
		scans:    make(map[int64][]*entity.ScanRecord),
	}
}

func (m *Memory) Close() {}

func (m *Memory) userLock(userID int64) *sync.Mutex {
	m.mu.RLock()
	l, ok := m.locks[userID]
	m.mu.RUnlock()
	if ok {
		return l
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if l, ok = m.locks[userID]; !ok {
		l = &sync.Mutex{}
		m.locks[userID] = l
	}
	return l
}

// load returns a private copy of the stored account, creating it if needed.
func (m *Memory) load(userID int64, now time.Time) *entity.Account {
	m.mu.RLock()
	acc, ok := m.accounts[userID]
	m.mu.RUnlock()
	if ok {
		return acc.Clone()
	}
	acc = entity.NewAccount(userID, now)
	m.save(acc)
	return acc.Clone()
}

func (m *Memory) save(acc *entity.Account) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accounts[acc.UserID] = acc.Clone()
	m.codes[acc.ReferralCode] = acc.UserID
}

func (m *Memory) Read(_ context.Context, userID int64, now time.Time) (*entity.Account, error) {
	l := m.userLock(userID)
	l.Lock()
	defer l.Unlock()
	return m.load(userID, now), nil
}

func (m *Memory) Transact(_ context.Context, userID int64, now time.Time, fn store.Mutation) (*entity.Account, error) {
	l := m.userLock(userID)
	l.Lock()
	defer l.Unlock()

	current := m.load(userID, now)
	work := current.Clone()
	if err := fn(work); err != nil {
		if errors.Is(err, store.ErrNoop) {
			return current, nil
		}
		return nil, err
	}
	work.UserID = userID
	work.Version = current.Version + 1
	work.UpdatedAt = now
	m.save(work)
	return work.Clone(), nil
}

func (m *Memory) FindByReferralCode(_ context.Context, code string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.codes[code]
	if !ok {
		return 0, store.ErrNotFound
	}
	return id, nil
}

func (m *Memory) AppendEntry(_ context.Context, entry *entity.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := *entry
	m.entries = append(m.entries, &e)
	return nil
}

// Entries returns the journal lines of one user in insertion order.
func (m *Memory) Entries(userID int64) []entity.LedgerEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []entity.LedgerEntry
	for _, e := range m.entries {
		if e.UserID == userID {
			out = append(out, *e)
		}
	}
	return out
}

func (m *Memory) SaveScan(_ context.Context, scan *entity.ScanRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := *scan
	m.scans[scan.UserID] = append(m.scans[scan.UserID], &s)
	return nil
}

func (m *Memory) ScanHistory(_ context.Context, userID int64, limit int) ([]*entity.ScanRecord, error) {
	limit = store.ClampLimit(limit, store.DefaultHistoryLimit)
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.scans[userID]
	out := make([]*entity.ScanRecord, 0, min(limit, len(list)))
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		s := *list[i]
		out = append(out, &s)
	}
	return out, nil
}

func (m *Memory) Leaderboard(_ context.Context, limit int) ([]*entity.LeaderboardEntry, error) {
	limit = store.ClampLimit(limit, store.DefaultLeaderboardLimit)
	m.mu.RLock()
	entries := make([]*entity.LeaderboardEntry, 0, len(m.accounts))
	for _, acc := range m.accounts {
		if acc.TotalScans == 0 {
			continue
		}
		entries = append(entries, &entity.LeaderboardEntry{
			UserID:     acc.UserID,
			Username:   acc.Username,
			FirstName:  acc.FirstName,
			TotalScans: acc.TotalScans,
		})
	}
	m.mu.RUnlock()

	slices.SortFunc(entries, func(a, b *entity.LeaderboardEntry) int {
		if c := cmp.Compare(b.TotalScans, a.TotalScans); c != 0 {
			return c
		}
		return cmp.Compare(a.UserID, b.UserID)
	})
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return store.RankEntries(entries), nil
}

func (m *Memory) Stats(_ context.Context, dayStart, now time.Time) (*entity.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &entity.Stats{Accounts: int64(len(m.accounts))}
	for _, acc := range m.accounts {
		stats.TotalScans += acc.TotalScans
		if acc.IsPremium(now) {
			stats.PremiumActive++
		}
	}
	for _, list := range m.scans {
		for _, s := range list {
			if !s.CreatedAt.Before(dayStart) {
				stats.ScansToday++
			}
		}
	}
	return stats, nil
}
