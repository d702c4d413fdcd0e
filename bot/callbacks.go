package bot

import (
	"errors"
	"fmt"
	"strings"

	"chartscan/entity"
	"chartscan/impl/core"
	"chartscan/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// Callback data prefixes for inline keyboard buttons.
// Telegram limits callback data to 64 bytes, so prefixes are kept short.
const (
	cbMenu = "m:" // m:help, m:energy, m:refer, m:premium, m:buy, m:board
	cbPay  = "p:" // p:premium, p:scans (Telegram Stars)
	cbCard = "c:" // c:premium, c:scans (card checkout link)
)

func mainKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{
		{{Text: "📖 How to scan", CallbackData: cbMenu + "help"}},
		{
			{Text: "⚡ My energy", CallbackData: cbMenu + "energy"},
			{Text: "🤝 Refer friends", CallbackData: cbMenu + "refer"},
		},
		{
			{Text: "💎 Premium", CallbackData: cbMenu + "premium"},
			{Text: "🏆 Leaderboard", CallbackData: cbMenu + "board"},
		},
	}}
}

func energyKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{
		{
			{Text: "🔋 Buy scans", CallbackData: cbMenu + "buy"},
			{Text: "💎 Premium", CallbackData: cbMenu + "premium"},
		},
		{{Text: "🤝 Get free scans", CallbackData: cbMenu + "refer"}},
	}}
}

// payKeyboard offers Stars and, when configured, a card checkout for product.
func payKeyboard(product entity.Product, label string, cardPayments bool) tgbotapi.InlineKeyboardMarkup {
	rows := [][]tgbotapi.InlineKeyboardButton{
		{{Text: label, CallbackData: cbPay + string(product)}},
	}
	if cardPayments {
		rows = append(rows, []tgbotapi.InlineKeyboardButton{
			{Text: "💳 Pay by card", CallbackData: cbCard + string(product)},
		})
	}
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: rows}
}

func linkKeyboard(text, url string) tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.InlineKeyboardMarkup{InlineKeyboard: [][]tgbotapi.InlineKeyboardButton{
		{{Text: text, Url: url}},
	}}
}

func (t *TgBot) premiumKeyboard() tgbotapi.InlineKeyboardMarkup {
	label := fmt.Sprintf("Subscribe (%d ⭐)", t.config.Pricing.PremiumStars)
	return payKeyboard(entity.ProductPremium, label, t.config.CardPayments)
}

func (t *TgBot) buyKeyboard() tgbotapi.InlineKeyboardMarkup {
	label := fmt.Sprintf("+%d scans (%d ⭐)", t.config.Pricing.RefillScans, t.config.Pricing.RefillStars)
	return payKeyboard(entity.ProductScans, label, t.config.CardPayments)
}

// --- Callback handlers ---

func (t *TgBot) onMenuCallback(b *tgbotapi.Bot, ctx *ext.Context) error {
	cb := ctx.CallbackQuery
	_, _ = cb.Answer(b, nil)
	chatId := ctx.EffectiveChat.Id
	userId := ctx.EffectiveUser.Id

	switch strings.TrimPrefix(cb.Data, cbMenu) {
	case "help":
		t.plainResponse(chatId, helpText())
	case "energy":
		t.sendEnergy(chatId, userId)
	case "refer":
		t.sendReferral(chatId, userId)
	case "premium":
		t.sendWithKeyboard(chatId, premiumText(t.config.Pricing.PremiumDays, t.config.Pricing.PremiumStars), t.premiumKeyboard())
	case "buy":
		t.sendWithKeyboard(chatId, buyText(t.config.Pricing.RefillScans, t.config.Pricing.RefillStars), t.buyKeyboard())
	case "board":
		t.sendLeaderboard(chatId)
	default:
		t.log.With(sl.User(userId)).Warn("unknown menu callback", "data", cb.Data)
	}
	return nil
}

func (t *TgBot) onPayCallback(b *tgbotapi.Bot, ctx *ext.Context) error {
	cb := ctx.CallbackQuery
	_, _ = cb.Answer(b, nil)
	product := entity.Product(strings.TrimPrefix(cb.Data, cbPay))
	t.sendInvoice(ctx.EffectiveChat.Id, ctx.EffectiveUser.Id, product)
	return nil
}

func (t *TgBot) onCardCallback(b *tgbotapi.Bot, ctx *ext.Context) error {
	cb := ctx.CallbackQuery
	_, _ = cb.Answer(b, nil)
	chatId := ctx.EffectiveChat.Id
	userId := ctx.EffectiveUser.Id
	product := entity.Product(strings.TrimPrefix(cb.Data, cbCard))

	link, err := t.core.StripeCheckout(&entity.CheckoutRequest{
		UserID:   userId,
		Product:  product,
		Quantity: 1,
	})
	if errors.Is(err, core.ErrNotConnected) {
		t.plainResponse(chatId, "Card payments are not available right now\\. Please pay with Stars\\.")
		return nil
	}
	if err != nil {
		t.reportError(chatId, "card checkout", err)
		return nil
	}
	t.sendWithKeyboard(chatId, "💳 Your checkout link is ready\\. Scans are added as soon as the payment clears\\.",
		linkKeyboard("Open checkout", link.Link))
	return nil
}
