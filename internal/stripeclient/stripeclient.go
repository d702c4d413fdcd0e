package stripeclient

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"chartscan/entity"
	"chartscan/internal/config"
	"chartscan/lib/sl"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

const (
	metaUserID   = "user_id"
	metaProduct  = "product"
	metaQuantity = "quantity"
)

type StripeClient struct {
	sc            *client.API
	webhookSecret string
	successUrl    string
	currency      string
	pricing       config.Pricing
	log           *slog.Logger
	testMode      bool
}

func New(conf *config.Config, logger *slog.Logger) *StripeClient {
	stripeKey := conf.Stripe.APIKey
	webhookSecret := conf.Stripe.WebhookSecret
	if conf.Stripe.TestMode {
		stripeKey = conf.Stripe.TestKey
		webhookSecret = conf.Stripe.TestWebhookSecret
		logger.With(
			sl.Secret("api_key", stripeKey),
			sl.Secret("webhook_secret", webhookSecret),
		).Info("using test mode for stripe")
	}
	sc := &client.API{}
	sc.Init(stripeKey, nil)
	return &StripeClient{
		sc:            sc,
		webhookSecret: webhookSecret,
		successUrl:    conf.Stripe.SuccessURL,
		currency:      conf.Stripe.Currency,
		pricing:       conf.Pricing,
		testMode:      conf.Stripe.TestMode,
		log:           logger.With(sl.Module("stripe")),
	}
}

// VerifySignature checks the Stripe-Signature header. Any v1 entry signed
// with the webhook secret is accepted, so events stay valid while Stripe
// signs with both the old and the new secret during a rotation.
func (s *StripeClient) VerifySignature(payload []byte, header string, tolerance time.Duration) bool {
	var ts string
	var sigs []string
	for _, p := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(p), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			ts = value
		case "v1":
			sigs = append(sigs, value)
		}
	}
	if ts == "" || len(sigs) == 0 {
		s.log.Warn("missing timestamp or signature in header")
		return false
	}

	tsInt, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		s.log.With(sl.Err(err)).Warn("failed to parse timestamp")
		return false
	}
	eventTime := time.Unix(tsInt, 0)
	if age := time.Since(eventTime); age > tolerance {
		s.log.With(
			slog.Time("timestamp", eventTime),
			slog.Duration("age", age),
			slog.Duration("tolerance", tolerance),
		).Warn("webhook timestamp too old")
		return false
	}

	expected := []byte(sign(s.webhookSecret, ts, payload))
	for _, sig := range sigs {
		if hmac.Equal(expected, []byte(sig)) {
			return true
		}
	}
	s.log.With(slog.Int("signatures", len(sigs)), slog.Bool("test_mode", s.testMode)).Warn("signature mismatch")
	return false
}

func sign(secret, ts string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(ts))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// HandleEvent converts a paid checkout session into a payment event. Other
// event types and unpaid sessions return nil.
func (s *StripeClient) HandleEvent(evt *stripe.Event) (*entity.PaymentEvent, error) {
	if evt.Type != stripe.EventTypeCheckoutSessionCompleted {
		return nil, nil
	}
	log := s.log.With(
		slog.String("event_id", evt.ID),
		slog.Any("event_type", evt.Type),
	)

	var sess stripe.CheckoutSession
	if evt.Data == nil {
		return nil, fmt.Errorf("event %s has no data", evt.ID)
	}
	if err := json.Unmarshal(evt.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	log = log.With(
		slog.String("session_id", sess.ID),
		slog.String("payment_status", string(sess.PaymentStatus)),
	)
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		log.Info("checkout session not paid yet")
		return nil, nil
	}

	payment, err := paymentFromSession(&sess)
	if err != nil {
		return nil, err
	}
	log.With(
		sl.User(payment.UserID),
		slog.Int64("amount", payment.Amount),
	).Debug("checkout session completed")
	return payment, nil
}

func paymentFromSession(sess *stripe.CheckoutSession) (*entity.PaymentEvent, error) {
	userID, err := strconv.ParseInt(sess.Metadata[metaUserID], 10, 64)
	if err != nil || userID <= 0 {
		userID, err = strconv.ParseInt(sess.ClientReferenceID, 10, 64)
		if err != nil || userID <= 0 {
			return nil, fmt.Errorf("session %s: missing user id", sess.ID)
		}
	}
	units, err := strconv.Atoi(sess.Metadata[metaQuantity])
	if err != nil || units <= 0 {
		return nil, fmt.Errorf("session %s: invalid quantity %q", sess.ID, sess.Metadata[metaQuantity])
	}

	evt := &entity.PaymentEvent{
		ID:       sess.ID,
		Provider: entity.ProviderStripe,
		UserID:   userID,
		Product:  entity.Product(sess.Metadata[metaProduct]),
		Amount:   sess.AmountTotal,
		Currency: string(sess.Currency),
		PaidAt:   time.Unix(sess.Created, 0),
	}
	switch evt.Product {
	case entity.ProductScans:
		evt.Quantity = units
	case entity.ProductPremium:
		evt.Days = units
	default:
		return nil, fmt.Errorf("session %s: unknown product %q", sess.ID, evt.Product)
	}
	return evt, nil
}

// CreateCheckout opens a card checkout session for req.Quantity packs.
func (s *StripeClient) CreateCheckout(req *entity.CheckoutRequest) (*entity.PaymentLink, error) {
	if s.successUrl == "" {
		return nil, fmt.Errorf("missing success url")
	}
	params := s.sessionParams(req)
	log := s.log.With(
		sl.User(req.UserID),
		slog.String("product", string(req.Product)),
		slog.String("units", params.Metadata[metaQuantity]),
	)

	cs, err := s.sc.CheckoutSessions.New(params)
	if err != nil {
		err = parseErr(err)
		return nil, fmt.Errorf("stripe checkout session: %w", err)
	}

	link := &entity.PaymentLink{
		Id:     cs.ID,
		UserID: req.UserID,
		Amount: cs.AmountTotal,
		Link:   cs.URL,
	}
	log.With(slog.String("session_id", cs.ID)).Info("payment link created")
	return link, nil
}

func (s *StripeClient) sessionParams(req *entity.CheckoutRequest) *stripe.CheckoutSessionParams {
	packs := int64(max(req.Quantity, 1))

	var name string
	var units int64
	var price int64
	switch req.Product {
	case entity.ProductPremium:
		units = packs * int64(s.pricing.PremiumDays)
		price = s.pricing.PremiumPriceCents
		name = fmt.Sprintf("Premium, %d days unlimited scans", s.pricing.PremiumDays)
	default:
		units = packs * int64(s.pricing.RefillScans)
		price = s.pricing.RefillPriceCents
		name = fmt.Sprintf("%d scan credits", s.pricing.RefillScans)
	}

	uid := strconv.FormatInt(req.UserID, 10)
	return &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(s.currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(name),
					},
					UnitAmount: stripe.Int64(price),
				},
				Quantity: stripe.Int64(packs),
			},
		},
		Metadata: map[string]string{
			metaUserID:   uid,
			metaProduct:  string(req.Product),
			metaQuantity: strconv.FormatInt(units, 10),
		},
		ClientReferenceID: stripe.String(uid),
		SuccessURL:        stripe.String(s.successUrl),
	}
}
