package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chartscan/entity"
	"chartscan/lib/sl"
)

// MaxPremiumDays bounds a single activation.
const MaxPremiumDays = 36500

// extendPremium stacks days on top of the remaining premium time, or starts
// from now when premium is absent or expired.
func extendPremium(acc *entity.Account, days int, now time.Time) time.Time {
	base := now
	if acc.PremiumUntil != nil && acc.PremiumUntil.After(now) {
		base = *acc.PremiumUntil
	}
	until := base.AddDate(0, 0, days)
	acc.PremiumUntil = &until
	return until
}

// ActivatePremium assumes the payment behind it is already confirmed.
func (l *Ledger) ActivatePremium(ctx context.Context, userID int64, days int, now time.Time) (time.Time, error) {
	if err := checkUser(userID); err != nil {
		return time.Time{}, err
	}
	if days <= 0 || days > MaxPremiumDays {
		return time.Time{}, fmt.Errorf("%w: %d", ErrInvalidDuration, days)
	}
	var until time.Time
	_, err := l.store.Transact(ctx, userID, now, func(acc *entity.Account) error {
		until = extendPremium(acc, days, now)
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("activate premium: %w", err)
	}

	l.obs.PremiumActivated(days)
	l.journal(ctx, entity.LedgerEntry{
		UserID:    userID,
		Kind:      entity.EntryPremium,
		Source:    "activation",
		Days:      days,
		CreatedAt: now,
	})
	l.log.With(
		sl.User(userID),
		slog.Int("days", days),
		slog.Time("until", until),
	).Info("premium activated")
	return until, nil
}

func (l *Ledger) IsPremium(ctx context.Context, userID int64, now time.Time) (bool, error) {
	if err := checkUser(userID); err != nil {
		return false, err
	}
	acc, err := l.store.Read(ctx, userID, now)
	if err != nil {
		return false, fmt.Errorf("read account: %w", err)
	}
	return acc.IsPremium(now), nil
}
