package entity

import (
	"encoding/base32"
	"encoding/binary"
	"slices"
	"strconv"
	"time"
)

// Account is the per-user credit record. It is created lazily on first touch
// and never deleted.
type Account struct {
	UserID              int64      `json:"user_id" bson:"user_id"`
	Username            string     `json:"username,omitempty" bson:"username"`
	FirstName           string     `json:"first_name,omitempty" bson:"first_name"`
	ReferralCode        string     `json:"referral_code" bson:"referral_code"`
	FreeScansUsedToday  int        `json:"free_scans_used_today" bson:"free_scans_used_today"`
	LastResetDay        string     `json:"last_reset_day" bson:"last_reset_day"`
	BonusCredits        int        `json:"bonus_credits" bson:"bonus_credits"`
	PremiumUntil        *time.Time `json:"premium_until,omitempty" bson:"premium_until,omitempty"`
	ReferredBy          int64      `json:"referred_by,omitempty" bson:"referred_by"`
	ReferralCreditedFor []int64    `json:"referral_credited_for,omitempty" bson:"referral_credited_for"`
	AppliedPayments     []string   `json:"-" bson:"applied_payments"`
	TotalScans          int64      `json:"total_scans" bson:"total_scans"`
	Version             int64      `json:"-" bson:"version"`
	CreatedAt           time.Time  `json:"created_at" bson:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at" bson:"updated_at"`
}

func NewAccount(userID int64, now time.Time) *Account {
	return &Account{
		UserID:       userID,
		ReferralCode: ReferralCodeFor(userID),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// ReferralCodeLength is the fixed length of every code ReferralCodeFor returns.
const ReferralCodeLength = 13

var referralEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// ReferralCodeFor derives the stable code shared in invite links. The id is
// scrambled by a bijection on 64 bits before encoding, so two users never
// share a code while consecutive ids still look unrelated.
func ReferralCodeFor(userID int64) string {
	x := uint64(userID)
	x ^= x >> 31
	x *= 0x9e3779b97f4a7c15
	x ^= x >> 29
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], x)
	return referralEncoding.EncodeToString(buf[:])
}

func (a *Account) IsPremium(now time.Time) bool {
	return a.PremiumUntil != nil && a.PremiumUntil.After(now)
}

func (a *Account) HasReferrer() bool {
	return a.ReferredBy != 0
}

func (a *Account) HasCreditedReferral(refereeID int64) bool {
	return slices.Contains(a.ReferralCreditedFor, refereeID)
}

func (a *Account) HasPayment(id string) bool {
	return slices.Contains(a.AppliedPayments, id)
}

// FreeRemaining is the free allowance left on the scan day today, taking a
// pending lazy reset into account without applying it.
func (a *Account) FreeRemaining(today string, limit int) int {
	used := a.FreeScansUsedToday
	if a.LastResetDay != today {
		used = 0
	}
	if used >= limit {
		return 0
	}
	return limit - used
}

func (a *Account) DisplayName() string {
	if a.Username != "" {
		return "@" + a.Username
	}
	if a.FirstName != "" {
		return a.FirstName
	}
	return strconv.FormatInt(a.UserID, 10)
}

// Clone returns a deep copy, so a mutation can be discarded without
// touching the stored record.
func (a *Account) Clone() *Account {
	c := *a
	if a.PremiumUntil != nil {
		t := *a.PremiumUntil
		c.PremiumUntil = &t
	}
	c.ReferralCreditedFor = slices.Clone(a.ReferralCreditedFor)
	c.AppliedPayments = slices.Clone(a.AppliedPayments)
	return &c
}

// Summary is the read-only dashboard view of an account.
type Summary struct {
	UserID        int64      `json:"user_id"`
	FreeRemaining int        `json:"free_remaining"`
	FreeLimit     int        `json:"free_limit"`
	BonusCredits  int        `json:"bonus_credits"`
	PremiumUntil  *time.Time `json:"premium_until,omitempty"`
	Premium       bool       `json:"premium"`
	TotalScans    int64      `json:"total_scans"`
	ReferralCode  string     `json:"referral_code"`
	Referrals     int        `json:"referrals"`
	NextResetAt   time.Time  `json:"next_reset_at"`
}

// LeaderboardEntry is one row of the total-scans ranking.
type LeaderboardEntry struct {
	Rank       int    `json:"rank" bson:"-"`
	UserID     int64  `json:"user_id" bson:"user_id"`
	Username   string `json:"username,omitempty" bson:"username"`
	FirstName  string `json:"first_name,omitempty" bson:"first_name"`
	TotalScans int64  `json:"total_scans" bson:"total_scans"`
}

func (e LeaderboardEntry) DisplayName() string {
	if e.Username != "" {
		return "@" + e.Username
	}
	if e.FirstName != "" {
		return e.FirstName
	}
	return "Anon"
}

// Stats aggregates the whole account table for reports.
type Stats struct {
	Accounts      int64 `json:"accounts" bson:"accounts"`
	PremiumActive int64 `json:"premium_active" bson:"premium_active"`
	TotalScans    int64 `json:"total_scans" bson:"total_scans"`
	ScansToday    int64 `json:"scans_today" bson:"scans_today"`
}
