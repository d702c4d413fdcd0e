// Package store defines the account persistence contract shared by the
// memory, MongoDB and MySQL backends.
//
// Transact is the only way to change an account. The mutation runs against a
// private copy; the backend commits it only when the mutation returns nil, and
// no other transaction on the same user may interleave. Different users never
// contend with each other.
package store

import (
	"context"
	"errors"
	"time"

	"chartscan/entity"
)

var (
	// ErrUnavailable wraps every backend failure. Nothing was written.
	ErrUnavailable = errors.New("storage unavailable")
	// ErrNoop returned by a mutation discards it without error.
	ErrNoop = errors.New("no changes")
	// ErrNotFound is returned by lookups that do not create records.
	ErrNotFound = errors.New("not found")
	// ErrConflict reports a lost optimistic update; backends retry on it.
	ErrConflict = errors.New("concurrent update")
)

type Mutation func(acc *entity.Account) error

type Accounts interface {
	Read(ctx context.Context, userID int64, now time.Time) (*entity.Account, error)
	Transact(ctx context.Context, userID int64, now time.Time, fn Mutation) (*entity.Account, error)
	FindByReferralCode(ctx context.Context, code string) (int64, error)
}

type Journal interface {
	AppendEntry(ctx context.Context, entry *entity.LedgerEntry) error
}

type History interface {
	SaveScan(ctx context.Context, scan *entity.ScanRecord) error
	ScanHistory(ctx context.Context, userID int64, limit int) ([]*entity.ScanRecord, error)
	Leaderboard(ctx context.Context, limit int) ([]*entity.LeaderboardEntry, error)
	Stats(ctx context.Context, dayStart, now time.Time) (*entity.Stats, error)
}

// Store is implemented by every backend.
type Store interface {
	Accounts
	Journal
	History
	Close()
}

// Unavailable marks err as a storage failure.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return &opError{op: op, err: err}
}

type opError struct {
	op  string
	err error
}

func (e *opError) Error() string {
	return e.op + ": " + ErrUnavailable.Error() + ": " + e.err.Error()
}

func (e *opError) Unwrap() []error {
	return []error{ErrUnavailable, e.err}
}

// RankEntries fills Rank starting at 1.
func RankEntries(entries []*entity.LeaderboardEntry) []*entity.LeaderboardEntry {
	for i, e := range entries {
		e.Rank = i + 1
	}
	return entries
}

const (
	DefaultHistoryLimit     = 10
	DefaultLeaderboardLimit = 20
	MaxListLimit            = 100
)

// ClampLimit applies the default for non-positive values and caps the rest.
func ClampLimit(limit, def int) int {
	if limit <= 0 {
		return def
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
