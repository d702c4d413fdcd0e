package bot

import (
	"fmt"
	"log/slog"

	"chartscan/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// grant: /grant <user_id> <scans>
func (t *TgBot) grant(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	if !t.isAdmin(ctx.EffectiveUser.Id) {
		return nil
	}
	userId, amount, err := parseAdminArgs(ctx.EffectiveMessage.Text)
	if err != nil {
		t.plainResponse(chatId, fmt.Sprintf("Usage: /grant \\<user\\_id\\> \\<scans\\>\n%s", Sanitize(err.Error())))
		return nil
	}

	c, cancel := requestContext()
	defer cancel()
	balance, err := t.core.GrantCredits(c, userId, amount, "admin")
	if err != nil {
		t.reportError(chatId, "/grant", err)
		return nil
	}
	t.log.With(
		slog.Int64("admin", ctx.EffectiveUser.Id),
		sl.User(userId),
		slog.Int("amount", amount),
	).Info("credits granted")
	t.plainResponse(chatId, fmt.Sprintf("Granted %d scans to `%d`\\. Bonus balance: %d", amount, userId, balance))
	t.plainResponse(userId, fmt.Sprintf("🎁 You received %d bonus scans\\!", amount))
	return nil
}

// addPremium: /addpremium <user_id> <days>
func (t *TgBot) addPremium(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	if !t.isAdmin(ctx.EffectiveUser.Id) {
		return nil
	}
	userId, days, err := parseAdminArgs(ctx.EffectiveMessage.Text)
	if err != nil {
		t.plainResponse(chatId, fmt.Sprintf("Usage: /addpremium \\<user\\_id\\> \\<days\\>\n%s", Sanitize(err.Error())))
		return nil
	}

	c, cancel := requestContext()
	defer cancel()
	until, err := t.core.ActivatePremium(c, userId, days)
	if err != nil {
		t.reportError(chatId, "/addpremium", err)
		return nil
	}
	t.log.With(
		slog.Int64("admin", ctx.EffectiveUser.Id),
		sl.User(userId),
		slog.Int("days", days),
	).Info("premium granted")
	date := Sanitize(until.UTC().Format("2006-01-02"))
	t.plainResponse(chatId, fmt.Sprintf("Premium for `%d` active until %s", userId, date))
	t.plainResponse(userId, fmt.Sprintf("💎 Premium activated until %s\\!", date))
	return nil
}

func (t *TgBot) stats(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	if !t.isAdmin(ctx.EffectiveUser.Id) {
		return nil
	}
	c, cancel := requestContext()
	defer cancel()
	st, err := t.core.Stats(c)
	if err != nil {
		t.reportError(chatId, "/stats", err)
		return nil
	}
	t.plainResponse(chatId, formatStats(st))
	return nil
}
