package entity

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chartscan/lib/validate"
)

type Product string

const (
	ProductScans   Product = "scans"
	ProductPremium Product = "premium"
)

type PaymentProvider string

const (
	ProviderTelegramStars PaymentProvider = "telegram_stars"
	ProviderStripe        PaymentProvider = "stripe"
	ProviderAdmin         PaymentProvider = "admin"
)

// PaymentEvent is a confirmed, final payment. ID is the provider's charge or
// session id and is used as the idempotency key.
type PaymentEvent struct {
	ID       string          `json:"id" validate:"required"`
	Provider PaymentProvider `json:"provider" validate:"required"`
	UserID   int64           `json:"user_id" validate:"required,gt=0"`
	Product  Product         `json:"product" validate:"required,oneof=scans premium"`
	Quantity int             `json:"quantity" validate:"required_if=Product scans,omitempty,gt=0"`
	Days     int             `json:"days" validate:"required_if=Product premium,omitempty,gt=0,lte=36500"`
	Amount   int64           `json:"amount"`
	Currency string          `json:"currency"`
	PaidAt   time.Time       `json:"paid_at"`
}

type PaymentResult struct {
	Duplicate    bool       `json:"duplicate"`
	BonusCredits int        `json:"bonus_credits"`
	PremiumUntil *time.Time `json:"premium_until,omitempty"`
}

// CheckoutRequest asks for a card payment link for a product.
type CheckoutRequest struct {
	UserID   int64   `json:"user_id" validate:"required,gt=0"`
	Product  Product `json:"product" validate:"required,oneof=scans premium"`
	Quantity int     `json:"quantity" validate:"omitempty,gt=0,lte=100"`
}

func (c *CheckoutRequest) Bind(_ *http.Request) error {
	return validate.Struct(c)
}

// PaymentLink is the checkout session handed back to the caller.
type PaymentLink struct {
	Id     string `json:"id"`
	UserID int64  `json:"user_id"`
	Amount int64  `json:"amount"`
	Link   string `json:"link,omitempty"`
}

// InvoicePayload is the Telegram invoice payload: premium_<uid> or scans_<uid>_<n>.
type InvoicePayload struct {
	Product  Product
	UserID   int64
	Quantity int
}

func (p InvoicePayload) String() string {
	if p.Product == ProductPremium {
		return fmt.Sprintf("premium_%d", p.UserID)
	}
	return fmt.Sprintf("scans_%d_%d", p.UserID, p.Quantity)
}

func ParseInvoicePayload(s string) (InvoicePayload, error) {
	parts := strings.Split(s, "_")
	switch {
	case len(parts) == 2 && parts[0] == string(ProductPremium):
		uid, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || uid <= 0 {
			return InvoicePayload{}, fmt.Errorf("invalid user id in payload %q", s)
		}
		return InvoicePayload{Product: ProductPremium, UserID: uid}, nil
	case len(parts) == 3 && parts[0] == string(ProductScans):
		uid, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil || uid <= 0 {
			return InvoicePayload{}, fmt.Errorf("invalid user id in payload %q", s)
		}
		n, err := strconv.Atoi(parts[2])
		if err != nil || n <= 0 {
			return InvoicePayload{}, fmt.Errorf("invalid quantity in payload %q", s)
		}
		return InvoicePayload{Product: ProductScans, UserID: uid, Quantity: n}, nil
	default:
		return InvoicePayload{}, fmt.Errorf("unknown payload %q", s)
	}
}
