package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chartscan/entity"
	"chartscan/internal/store"
	"chartscan/lib/sl"
)

type Reason string

const ReasonQuotaExhausted Reason = "quota_exhausted"

// Decision is the result of TryConsume. Denial is a normal result, not an error.
type Decision struct {
	Admitted      bool                `json:"admitted"`
	Source        entity.CreditSource `json:"source,omitempty"`
	RemainingFree int                 `json:"remaining_free"`
	BonusCredits  int                 `json:"bonus_credits"`
	PremiumUntil  *time.Time          `json:"premium_until,omitempty"`
	Reason        Reason              `json:"reason,omitempty"`
	NextResetAt   time.Time           `json:"next_reset_at"`
	TotalScans    int64               `json:"total_scans"`
}

// TryConsume admits or denies one scan for userID. Premium is checked first,
// then the free daily allowance, then bonus credits. Only an admission is
// written; a denial leaves the account untouched.
func (l *Ledger) TryConsume(ctx context.Context, userID int64, now time.Time) (*Decision, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	today := l.days.DayOf(now)
	var decision Decision

	acc, err := l.store.Transact(ctx, userID, now, func(acc *entity.Account) error {
		decision = l.consume(acc, today, now)
		if !decision.Admitted {
			return store.ErrNoop
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("consume scan: %w", err)
	}

	decision.NextResetAt = l.days.NextReset(now)
	decision.TotalScans = acc.TotalScans
	if decision.Admitted {
		l.obs.ScanAdmitted(decision.Source)
	} else {
		l.obs.ScanDenied()
		l.log.With(
			sl.User(userID),
			slog.Time("next_reset", decision.NextResetAt),
		).Debug("scan denied")
	}
	return &decision, nil
}

// consume applies the lazy daily reset and the debit priority to acc.
// It may be invoked more than once per call by optimistic backends, so it
// must only depend on acc.
func (l *Ledger) consume(acc *entity.Account, today string, now time.Time) Decision {
	if acc.LastResetDay != today {
		acc.FreeScansUsedToday = 0
		acc.LastResetDay = today
	}
	limit := l.conf.FreeDailyLimit

	d := Decision{Admitted: true}
	switch {
	case acc.IsPremium(now):
		d.Source = entity.SourcePremium
	case acc.FreeScansUsedToday < limit:
		acc.FreeScansUsedToday++
		d.Source = entity.SourceFreeAllowance
	case acc.BonusCredits > 0:
		acc.BonusCredits--
		d.Source = entity.SourceBonusCredit
	default:
		d.Admitted = false
		d.Reason = ReasonQuotaExhausted
	}
	if d.Admitted {
		acc.TotalScans++
	}

	d.RemainingFree = max(limit-acc.FreeScansUsedToday, 0)
	d.BonusCredits = acc.BonusCredits
	d.PremiumUntil = acc.PremiumUntil
	return d
}

// Grant adds amount bonus credits and returns the new balance.
func (l *Ledger) Grant(ctx context.Context, userID int64, amount int, source string, now time.Time) (int, error) {
	if err := checkUser(userID); err != nil {
		return 0, err
	}
	if amount <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidAmount, amount)
	}
	acc, err := l.store.Transact(ctx, userID, now, func(acc *entity.Account) error {
		acc.BonusCredits += amount
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("grant credits: %w", err)
	}

	l.obs.CreditsGranted(source, amount)
	l.journal(ctx, entity.LedgerEntry{
		UserID:    userID,
		Kind:      entity.EntryGrant,
		Source:    source,
		Amount:    amount,
		CreatedAt: now,
	})
	l.log.With(
		sl.User(userID),
		slog.Int("amount", amount),
		slog.String("source", source),
		slog.Int("balance", acc.BonusCredits),
	).Info("credits granted")
	return acc.BonusCredits, nil
}

// AccountSummary is a read-only view; a pending daily reset is reflected in
// FreeRemaining but not written.
func (l *Ledger) AccountSummary(ctx context.Context, userID int64, now time.Time) (*entity.Summary, error) {
	if err := checkUser(userID); err != nil {
		return nil, err
	}
	acc, err := l.store.Read(ctx, userID, now)
	if err != nil {
		return nil, fmt.Errorf("read account: %w", err)
	}
	return l.summary(acc, now), nil
}

func (l *Ledger) summary(acc *entity.Account, now time.Time) *entity.Summary {
	return &entity.Summary{
		UserID:        acc.UserID,
		FreeRemaining: acc.FreeRemaining(l.days.DayOf(now), l.conf.FreeDailyLimit),
		FreeLimit:     l.conf.FreeDailyLimit,
		BonusCredits:  acc.BonusCredits,
		PremiumUntil:  acc.PremiumUntil,
		Premium:       acc.IsPremium(now),
		TotalScans:    acc.TotalScans,
		ReferralCode:  acc.ReferralCode,
		Referrals:     len(acc.ReferralCreditedFor),
		NextResetAt:   l.days.NextReset(now),
	}
}

// Register records profile fields for the bot; counters are never touched.
func (l *Ledger) Register(ctx context.Context, userID int64, username, firstName string, now time.Time) (*entity.Summary, bool, error) {
	if err := checkUser(userID); err != nil {
		return nil, false, err
	}
	created := false
	acc, err := l.store.Transact(ctx, userID, now, func(acc *entity.Account) error {
		created = acc.Version == 0
		if !created && acc.Username == username && acc.FirstName == firstName {
			return store.ErrNoop
		}
		acc.Username = username
		acc.FirstName = firstName
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("register account: %w", err)
	}
	return l.summary(acc, now), created, nil
}
