package entity

import (
	"time"
)

// CreditSource names the pool a scan was paid from.
type CreditSource string

const (
	SourcePremium       CreditSource = "premium"
	SourceFreeAllowance CreditSource = "free"
	SourceBonusCredit   CreditSource = "bonus"
)

// Verdict is the structured answer of the vision service.
type Verdict struct {
	Token      string   `json:"token" bson:"token"`
	Ticker     string   `json:"ticker" bson:"ticker"`
	Contract   string   `json:"contract_address,omitempty" bson:"contract_address,omitempty"`
	Timeframe  string   `json:"timeframe,omitempty" bson:"timeframe"`
	Trend      string   `json:"trend" bson:"trend"`
	Action     string   `json:"action" bson:"action"`
	Confidence int      `json:"confidence" bson:"confidence"`
	RiskLevel  string   `json:"risk_level" bson:"risk_level"`
	Pattern    string   `json:"pattern,omitempty" bson:"pattern"`
	Price      string   `json:"current_price,omitempty" bson:"current_price,omitempty"`
	Support    []string `json:"support,omitempty" bson:"support"`
	Resistance []string `json:"resistance,omitempty" bson:"resistance"`
	Summary    string   `json:"verdict" bson:"verdict"`
}

type ScanRecord struct {
	ID        string       `json:"id" bson:"id"`
	UserID    int64        `json:"user_id" bson:"user_id"`
	Source    CreditSource `json:"source" bson:"source"`
	FileID    string       `json:"file_id,omitempty" bson:"file_id"`
	Verdict   Verdict      `json:"verdict" bson:"verdict"`
	CreatedAt time.Time    `json:"created_at" bson:"created_at"`
}
