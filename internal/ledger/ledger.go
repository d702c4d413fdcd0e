// Package ledger decides scan admission and owns every credit mutation:
// free daily allowance, bonus credits, premium time and referral bonuses.
//
// All state changes go through store.Accounts.Transact, so operations on one
// user are linearizable while different users never share a lock. Nothing in
// here performs network I/O inside a transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chartscan/entity"
	"chartscan/internal/store"
	"chartscan/lib/clock"
	"chartscan/lib/sl"
	"chartscan/lib/validate"

	"go.jetify.com/typeid/v2"
)

var (
	ErrInvalidUser     = errors.New("invalid user id")
	ErrInvalidAmount   = errors.New("amount must be a positive integer")
	ErrInvalidDuration = errors.New("duration must be a positive number of days")
	ErrInvalidPayment  = errors.New("invalid payment event")
)

// IsRetryable reports failures after which nothing was written and the
// request may be repeated as is.
func IsRetryable(err error) bool {
	return errors.Is(err, store.ErrUnavailable)
}

// IsValidation reports caller errors that must not be retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidUser) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidDuration) ||
		errors.Is(err, ErrInvalidPayment)
}

type Config struct {
	FreeDailyLimit   int `validate:"min=0"`
	RefereeBonus     int `validate:"min=0"`
	ReferrerBonus    int `validate:"min=0"`
	UTCOffsetMinutes int `validate:"min=-720,max=840"`
}

func DefaultConfig() Config {
	return Config{
		FreeDailyLimit: 3,
		RefereeBonus:   3,
		ReferrerBonus:  5,
	}
}

type Store interface {
	store.Accounts
	store.Journal
}

// Observer receives ledger events, e.g. for metrics.
type Observer interface {
	ScanAdmitted(source entity.CreditSource)
	ScanDenied()
	CreditsGranted(source string, amount int)
	PremiumActivated(days int)
	ReferralProcessed(outcome ReferralOutcome)
	PaymentApplied(provider entity.PaymentProvider, product entity.Product, duplicate bool)
}

type Ledger struct {
	store Store
	days  clock.DayResolver
	conf  Config
	obs   Observer
	log   *slog.Logger
}

func New(st Store, conf Config, log *slog.Logger) (*Ledger, error) {
	if st == nil {
		return nil, fmt.Errorf("account store is nil")
	}
	if err := validate.Struct(&conf); err != nil {
		return nil, fmt.Errorf("ledger config: %w", err)
	}
	return &Ledger{
		store: st,
		days:  clock.NewDayResolver(conf.UTCOffsetMinutes),
		conf:  conf,
		obs:   nopObserver{},
		log:   log.With(sl.Module("ledger")),
	}, nil
}

func (l *Ledger) SetObserver(obs Observer) {
	if obs == nil {
		obs = nopObserver{}
	}
	l.obs = obs
}

func (l *Ledger) Config() Config {
	return l.conf
}

func (l *Ledger) Days() clock.DayResolver {
	return l.days
}

// journal appends an audit line after a committed change. The account state
// is already durable at this point, so a failure is only logged.
func (l *Ledger) journal(ctx context.Context, entry entity.LedgerEntry) {
	tid, err := typeid.Generate("entry")
	if err != nil {
		l.log.Warn("generate entry id", sl.Err(err))
		return
	}
	entry.ID = tid.String()
	if err = l.store.AppendEntry(ctx, &entry); err != nil {
		l.log.With(
			sl.User(entry.UserID),
			slog.String("kind", string(entry.Kind)),
			slog.String("reference", entry.Reference),
		).Warn("append journal entry", sl.Err(err))
	}
}

func checkUser(userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidUser, userID)
	}
	return nil
}

type nopObserver struct{}

func (nopObserver) ScanAdmitted(entity.CreditSource) {}
func (nopObserver) ScanDenied() {}
func (nopObserver) CreditsGranted(string, int) {}
func (nopObserver) PremiumActivated(int) {}
func (nopObserver) ReferralProcessed(ReferralOutcome) {}
func (nopObserver) PaymentApplied(entity.PaymentProvider, entity.Product, bool) {}
