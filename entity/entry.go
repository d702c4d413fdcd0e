package entity

import "time"

type EntryKind string

const (
	EntryGrant    EntryKind = "grant"
	EntryReferral EntryKind = "referral"
	EntryPremium  EntryKind = "premium"
	EntryPayment  EntryKind = "payment"
)

// LedgerEntry is the audit line written after a committed credit change.
type LedgerEntry struct {
	ID        string    `json:"id" bson:"id"`
	UserID    int64     `json:"user_id" bson:"user_id"`
	Kind      EntryKind `json:"kind" bson:"kind"`
	Source    string    `json:"source" bson:"source"`
	Amount    int       `json:"amount,omitempty" bson:"amount"`
	Days      int       `json:"days,omitempty" bson:"days"`
	Reference string    `json:"reference,omitempty" bson:"reference"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
}
