package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"chartscan/entity"
	"chartscan/internal/store"
	"chartscan/lib/sl"
	"chartscan/lib/validate"
)

// ApplyPayment turns a confirmed payment into credits or premium time. The
// payment id is recorded on the account in the same transaction, so webhook
// redelivery and double-submitted Telegram updates are applied once.
func (l *Ledger) ApplyPayment(ctx context.Context, evt entity.PaymentEvent, now time.Time) (*entity.PaymentResult, error) {
	if err := validate.Struct(&evt); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayment, err)
	}
	log := l.log.With(
		sl.User(evt.UserID),
		slog.String("payment_id", evt.ID),
		slog.String("provider", string(evt.Provider)),
		slog.String("product", string(evt.Product)),
	)

	result := &entity.PaymentResult{}
	acc, err := l.store.Transact(ctx, evt.UserID, now, func(acc *entity.Account) error {
		result.Duplicate = acc.HasPayment(evt.ID)
		if result.Duplicate {
			return store.ErrNoop
		}
		switch evt.Product {
		case entity.ProductScans:
			acc.BonusCredits += evt.Quantity
		case entity.ProductPremium:
			extendPremium(acc, evt.Days, now)
		}
		acc.AppliedPayments = append(acc.AppliedPayments, evt.ID)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("apply payment: %w", err)
	}
	result.BonusCredits = acc.BonusCredits
	result.PremiumUntil = acc.PremiumUntil

	l.obs.PaymentApplied(evt.Provider, evt.Product, result.Duplicate)
	if result.Duplicate {
		log.Info("payment already applied")
		return result, nil
	}

	entry := entity.LedgerEntry{
		UserID:    evt.UserID,
		Kind:      entity.EntryPayment,
		Source:    string(evt.Provider),
		Reference: evt.ID,
		CreatedAt: now,
	}
	if evt.Product == entity.ProductScans {
		entry.Amount = evt.Quantity
		l.obs.CreditsGranted(string(evt.Provider), evt.Quantity)
	} else {
		entry.Days = evt.Days
		l.obs.PremiumActivated(evt.Days)
	}
	l.journal(ctx, entry)

	log.With(
		slog.Int64("amount", evt.Amount),
		slog.String("currency", evt.Currency),
	).Info("payment applied")
	return result, nil
}
