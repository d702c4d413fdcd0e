package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chartscan/entity"
	"chartscan/internal/store"
	"chartscan/lib/sl"
)

type ReferralOutcome string

const (
	ReferralApplied         ReferralOutcome = "applied"
	ReferralAlreadyReferred ReferralOutcome = "already_referred"
	ReferralInvalidCode     ReferralOutcome = "invalid_code"
	ReferralSelfReferral    ReferralOutcome = "self_referral"
)

// Rejected reports outcomes caused by a bad code.
func (o ReferralOutcome) Rejected() bool {
	return o == ReferralInvalidCode || o == ReferralSelfReferral
}

// ApplyReferral links newUserID to the owner of code and pays both bonuses.
// The referee side and the referrer side are separate transactions, each
// guarded by its own state (ReferredBy, ReferralCreditedFor), so a retry after
// a partial failure finishes the missing side without paying anything twice.
// The returned error is only set for storage failures.
func (l *Ledger) ApplyReferral(ctx context.Context, newUserID int64, code string, now time.Time) (ReferralOutcome, error) {
	if err := checkUser(newUserID); err != nil {
		return "", err
	}
	log := l.log.With(sl.User(newUserID), slog.String("code", code))

	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		l.obs.ReferralProcessed(ReferralInvalidCode)
		return ReferralInvalidCode, nil
	}
	if code == entity.ReferralCodeFor(newUserID) {
		l.obs.ReferralProcessed(ReferralSelfReferral)
		return ReferralSelfReferral, nil
	}
	referrerID, err := l.store.FindByReferralCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		l.obs.ReferralProcessed(ReferralInvalidCode)
		return ReferralInvalidCode, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve referral code: %w", err)
	}
	if referrerID == newUserID {
		l.obs.ReferralProcessed(ReferralSelfReferral)
		return ReferralSelfReferral, nil
	}

	var existing int64
	_, err = l.store.Transact(ctx, newUserID, now, func(acc *entity.Account) error {
		if acc.HasReferrer() {
			existing = acc.ReferredBy
			return store.ErrNoop
		}
		existing = 0
		acc.ReferredBy = referrerID
		acc.BonusCredits += l.conf.RefereeBonus
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("apply referee bonus: %w", err)
	}

	outcome := ReferralApplied
	switch {
	case existing == 0:
		l.journal(ctx, entity.LedgerEntry{
			UserID:    newUserID,
			Kind:      entity.EntryReferral,
			Source:    "referee",
			Amount:    l.conf.RefereeBonus,
			Reference: fmt.Sprintf("%d", referrerID),
			CreatedAt: now,
		})
	case existing == referrerID:
		// same link seen again: make sure the referrer side completed
		outcome = ReferralAlreadyReferred
	default:
		l.obs.ReferralProcessed(ReferralAlreadyReferred)
		return ReferralAlreadyReferred, nil
	}

	credited, err := l.creditReferrer(ctx, referrerID, newUserID, now)
	if err != nil {
		return "", err
	}
	if outcome == ReferralApplied || credited {
		log.With(
			slog.Int64("referrer_id", referrerID),
			slog.String("outcome", string(outcome)),
			slog.Bool("referrer_credited", credited),
		).Info("referral processed")
	}
	l.obs.ReferralProcessed(outcome)
	return outcome, nil
}

func (l *Ledger) creditReferrer(ctx context.Context, referrerID, refereeID int64, now time.Time) (bool, error) {
	credited := false
	_, err := l.store.Transact(ctx, referrerID, now, func(acc *entity.Account) error {
		credited = false
		if acc.HasCreditedReferral(refereeID) {
			return store.ErrNoop
		}
		acc.ReferralCreditedFor = append(acc.ReferralCreditedFor, refereeID)
		acc.BonusCredits += l.conf.ReferrerBonus
		credited = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("apply referrer bonus: %w", err)
	}
	if credited {
		l.journal(ctx, entity.LedgerEntry{
			UserID:    referrerID,
			Kind:      entity.EntryReferral,
			Source:    "referrer",
			Amount:    l.conf.ReferrerBonus,
			Reference: fmt.Sprintf("%d", refereeID),
			CreatedAt: now,
		})
	}
	return credited, nil
}
