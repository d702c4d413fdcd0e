package bot

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"chartscan/internal/ledger"
	"chartscan/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

const (
	historyLimit     = 5
	leaderboardLimit = 10
)

// start registers the user and applies a referral code from a /start deep link.
func (t *TgBot) start(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	user := ctx.EffectiveUser
	c, cancel := requestContext()
	defer cancel()

	summary, created, err := t.core.Register(c, user.Id, user.Username, user.FirstName)
	if err != nil {
		t.reportError(chatId, "/start", err)
		return nil
	}
	if created {
		t.log.With(sl.User(user.Id), slog.String("username", user.Username)).Info("new user")
	}

	args := strings.Fields(ctx.EffectiveMessage.Text)
	if len(args) > 1 {
		outcome, err := t.core.ApplyReferral(c, user.Id, args[1])
		if err != nil {
			t.reportError(chatId, "/start referral", err)
			return nil
		}
		if text := referralOutcomeText(outcome, t.config.RefereeBonus); text != "" {
			t.plainResponse(chatId, text)
		}
	}

	t.setChatCommands(chatId)
	t.sendWithKeyboard(chatId, welcomeText(user.FirstName, summary.FreeLimit), mainKeyboard())
	return nil
}

func referralOutcomeText(outcome ledger.ReferralOutcome, bonus int) string {
	switch outcome {
	case ledger.ReferralApplied:
		return fmt.Sprintf("🎁 Referral bonus\\! You got %d free scans\\.", bonus)
	case ledger.ReferralInvalidCode:
		return "This referral code is not valid\\."
	case ledger.ReferralSelfReferral:
		return "You can't use your own referral code\\."
	default:
		return ""
	}
}

func (t *TgBot) help(_ *tgbotapi.Bot, ctx *ext.Context) error {
	t.plainResponse(ctx.EffectiveChat.Id, helpText())
	return nil
}

func (t *TgBot) energy(_ *tgbotapi.Bot, ctx *ext.Context) error {
	t.sendEnergy(ctx.EffectiveChat.Id, ctx.EffectiveUser.Id)
	return nil
}

func (t *TgBot) sendEnergy(chatId, userId int64) {
	c, cancel := requestContext()
	defer cancel()
	summary, err := t.core.AccountSummary(c, userId)
	if err != nil {
		t.reportError(chatId, "/energy", err)
		return
	}
	t.sendWithKeyboard(chatId, formatSummary(summary, time.Now()), energyKeyboard())
}

func (t *TgBot) history(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveChat.Id
	c, cancel := requestContext()
	defer cancel()
	scans, err := t.core.ScanHistory(c, ctx.EffectiveUser.Id, historyLimit)
	if err != nil {
		t.reportError(chatId, "/history", err)
		return nil
	}
	t.plainResponse(chatId, formatHistory(scans))
	return nil
}

func (t *TgBot) refer(_ *tgbotapi.Bot, ctx *ext.Context) error {
	t.sendReferral(ctx.EffectiveChat.Id, ctx.EffectiveUser.Id)
	return nil
}

func (t *TgBot) sendReferral(chatId, userId int64) {
	c, cancel := requestContext()
	defer cancel()
	summary, err := t.core.AccountSummary(c, userId)
	if err != nil {
		t.reportError(chatId, "/refer", err)
		return
	}
	link := referralLink(t.config.BotName, summary.ReferralCode)
	t.plainResponse(chatId, formatReferral(summary, link, t.config.RefereeBonus, t.config.ReferrerBonus))
}

func (t *TgBot) premium(_ *tgbotapi.Bot, ctx *ext.Context) error {
	p := t.config.Pricing
	t.sendWithKeyboard(ctx.EffectiveChat.Id, premiumText(p.PremiumDays, p.PremiumStars), t.premiumKeyboard())
	return nil
}

func (t *TgBot) buy(_ *tgbotapi.Bot, ctx *ext.Context) error {
	p := t.config.Pricing
	t.sendWithKeyboard(ctx.EffectiveChat.Id, buyText(p.RefillScans, p.RefillStars), t.buyKeyboard())
	return nil
}

func (t *TgBot) leaderboard(_ *tgbotapi.Bot, ctx *ext.Context) error {
	t.sendLeaderboard(ctx.EffectiveChat.Id)
	return nil
}

func (t *TgBot) sendLeaderboard(chatId int64) {
	c, cancel := requestContext()
	defer cancel()
	entries, err := t.core.Leaderboard(c, leaderboardLimit)
	if err != nil {
		t.reportError(chatId, "/leaderboard", err)
		return
	}
	t.plainResponse(chatId, formatLeaderboard(entries))
}

func (t *TgBot) onText(_ *tgbotapi.Bot, ctx *ext.Context) error {
	t.plainResponse(ctx.EffectiveChat.Id, "📸 Send me a chart screenshot\\!")
	return nil
}
