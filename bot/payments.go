package bot

import (
	"fmt"
	"log/slog"
	"time"

	"chartscan/entity"
	"chartscan/internal/config"
	"chartscan/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// Telegram Stars currency code.
const starsCurrency = "XTR"

type invoice struct {
	title       string
	description string
	payload     entity.InvoicePayload
	amount      int64
}

func newInvoice(userId int64, product entity.Product, p config.Pricing) (*invoice, error) {
	switch product {
	case entity.ProductPremium:
		return &invoice{
			title:       premiumTitle(p.PremiumDays),
			description: fmt.Sprintf("Unlimited chart scans for %d days", p.PremiumDays),
			payload:     entity.InvoicePayload{Product: entity.ProductPremium, UserID: userId},
			amount:      p.PremiumStars,
		}, nil
	case entity.ProductScans:
		return &invoice{
			title:       fmt.Sprintf("%d Scan Refill", p.RefillScans),
			description: fmt.Sprintf("%d bonus chart scans, never expire", p.RefillScans),
			payload:     entity.InvoicePayload{Product: entity.ProductScans, UserID: userId, Quantity: p.RefillScans},
			amount:      p.RefillStars,
		}, nil
	default:
		return nil, fmt.Errorf("unknown product %q", product)
	}
}

func premiumTitle(days int) string {
	switch {
	case days == 1:
		return "Premium Plan - 1 Day"
	case days == 30:
		return "Premium Plan - 1 Month"
	case days%30 == 0:
		return fmt.Sprintf("Premium Plan - %d Months", days/30)
	default:
		return fmt.Sprintf("Premium Plan - %d Days", days)
	}
}

// checkInvoice validates a pre-checkout against the current price list, so a
// stale invoice sent before a price change is refused.
func checkInvoice(payload string, from int64, currency string, total int64, p config.Pricing) (entity.InvoicePayload, error) {
	parsed, err := entity.ParseInvoicePayload(payload)
	if err != nil {
		return parsed, err
	}
	if parsed.UserID != from {
		return parsed, fmt.Errorf("invoice belongs to user %d", parsed.UserID)
	}
	if currency != starsCurrency {
		return parsed, fmt.Errorf("unexpected currency %q", currency)
	}
	expected, err := newInvoice(from, parsed.Product, p)
	if err != nil {
		return parsed, err
	}
	if expected.amount != total || expected.payload != parsed {
		return parsed, fmt.Errorf("price changed")
	}
	return parsed, nil
}

// paymentEvent turns a confirmed Stars payment into a ledger event; the charge
// id makes a redelivered update a no-op.
func paymentEvent(payload entity.InvoicePayload, chargeId string, total int64, paidAt time.Time, p config.Pricing) entity.PaymentEvent {
	evt := entity.PaymentEvent{
		ID:       chargeId,
		Provider: entity.ProviderTelegramStars,
		UserID:   payload.UserID,
		Product:  payload.Product,
		Amount:   total,
		Currency: starsCurrency,
		PaidAt:   paidAt,
	}
	if payload.Product == entity.ProductPremium {
		evt.Days = p.PremiumDays
	} else {
		evt.Quantity = payload.Quantity
	}
	return evt
}

func (t *TgBot) sendInvoice(chatId, userId int64, product entity.Product) {
	inv, err := newInvoice(userId, product, t.config.Pricing)
	if err != nil {
		t.log.With(sl.User(userId), sl.Err(err)).Warn("invoice")
		return
	}
	_, err = t.api.SendInvoice(chatId, inv.title, inv.description, inv.payload.String(), starsCurrency,
		[]tgbotapi.LabeledPrice{{Label: inv.title, Amount: inv.amount}}, nil)
	if err != nil {
		t.reportError(chatId, "send invoice", err)
	}
}

func (t *TgBot) onPreCheckout(b *tgbotapi.Bot, ctx *ext.Context) error {
	q := ctx.PreCheckoutQuery
	log := t.log.With(sl.User(q.From.Id), slog.String("payload", q.InvoicePayload))

	_, err := checkInvoice(q.InvoicePayload, q.From.Id, q.Currency, q.TotalAmount, t.config.Pricing)
	if err != nil {
		log.With(sl.Err(err)).Warn("pre-checkout refused")
		_, err = q.Answer(b, false, &tgbotapi.AnswerPreCheckoutQueryOpts{
			ErrorMessage: "This invoice is no longer valid. Please request a new one.",
		})
		return err
	}
	_, err = q.Answer(b, true, nil)
	return err
}

func (t *TgBot) onSuccessfulPayment(_ *tgbotapi.Bot, ctx *ext.Context) error {
	msg := ctx.EffectiveMessage
	sp := msg.SuccessfulPayment
	chatId := ctx.EffectiveChat.Id
	log := t.log.With(
		sl.User(ctx.EffectiveUser.Id),
		slog.String("charge_id", sp.TelegramPaymentChargeId),
		slog.String("payload", sp.InvoicePayload),
	)

	payload, err := entity.ParseInvoicePayload(sp.InvoicePayload)
	if err != nil {
		t.reportError(chatId, "payment "+sp.TelegramPaymentChargeId, err)
		return nil
	}
	evt := paymentEvent(payload, sp.TelegramPaymentChargeId, sp.TotalAmount, time.Unix(msg.Date, 0), t.config.Pricing)

	c, cancel := requestContext()
	defer cancel()
	result, err := t.core.ApplyPayment(c, evt)
	if err != nil {
		// the charge id in the admin alert is what a manual fix needs
		t.reportError(chatId, "payment "+sp.TelegramPaymentChargeId, err)
		return nil
	}
	log.With(slog.Bool("duplicate", result.Duplicate)).Info("stars payment applied")
	t.plainResponse(chatId, paymentText(evt, result))
	return nil
}

func paymentText(evt entity.PaymentEvent, result *entity.PaymentResult) string {
	if evt.Product == entity.ProductPremium {
		until := ""
		if result.PremiumUntil != nil {
			until = fmt.Sprintf("\nActive until %s\\.", Sanitize(result.PremiumUntil.UTC().Format("2006-01-02")))
		}
		return fmt.Sprintf("💎 *Welcome to Premium\\!*\n\nUnlimited scans for %d days\\.%s", evt.Days, until)
	}
	return fmt.Sprintf("🔋 *Scans Refilled\\!*\n\n\\+%d scans added\\. Bonus balance: %d", evt.Quantity, result.BonusCredits)
}
