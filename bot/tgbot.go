// Package bot is the Telegram front end of the scan service.
//
//   - tgbot.go     TgBot, the Core it drives, lifecycle (Start/Stop)
//   - commands.go  user commands: /start, /help, /energy, /history, /refer, /premium, /buy, /leaderboard
//   - scan.go      chart uploads: photo or image document → debit → analysis → verdict
//   - payments.go  Telegram Stars invoices, pre-checkout validation, payment confirmation
//   - callbacks.go inline keyboards and their callback handlers
//   - admin.go     admin commands: /grant, /addpremium, /stats
//   - menus.go     per-chat command menus via BotCommandScope
//   - format.go    MarkdownV2 message texts
//   - helpers.go   shared utilities: Sanitize, plainResponse, reportError
//
// Every handler resolves the account through Core, so the bot keeps no user
// state of its own. Admins are a fixed list from the config file.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"chartscan/entity"
	"chartscan/impl/core"
	"chartscan/internal/config"
	"chartscan/internal/ledger"
	"chartscan/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/callbackquery"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/message"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/precheckoutquery"
)

const (
	requestTimeout = 15 * time.Second
	scanTimeout    = 90 * time.Second
)

// BotConfig holds the bot settings taken from the config file.
type BotConfig struct {
	BotName       string
	Admins        []int64
	Pricing       config.Pricing
	RefereeBonus  int
	ReferrerBonus int
	CardPayments  bool
}

// Core is the part of the service facade the bot needs.
type Core interface {
	Register(ctx context.Context, userID int64, username, firstName string) (*entity.Summary, bool, error)
	ApplyReferral(ctx context.Context, userID int64, code string) (ledger.ReferralOutcome, error)
	AccountSummary(ctx context.Context, userID int64) (*entity.Summary, error)
	ScanChart(ctx context.Context, userID int64, fileID string, fetch core.ImageFetcher) (*core.ScanResult, error)
	ScanHistory(ctx context.Context, userID int64, limit int) ([]*entity.ScanRecord, error)
	Leaderboard(ctx context.Context, limit int) ([]*entity.LeaderboardEntry, error)
	GrantCredits(ctx context.Context, userID int64, amount int, source string) (int, error)
	ActivatePremium(ctx context.Context, userID int64, days int) (time.Time, error)
	ApplyPayment(ctx context.Context, evt entity.PaymentEvent) (*entity.PaymentResult, error)
	Stats(ctx context.Context) (*entity.Stats, error)
	StripeCheckout(req *entity.CheckoutRequest) (*entity.PaymentLink, error)
}

type TgBot struct {
	log     *slog.Logger
	api     *tgbotapi.Bot
	core    Core
	updater *ext.Updater
	config  BotConfig
}

// NewTgBot connects to the Bot API. The Core is attached later with SetCore,
// so the bot can serve as the admin notifier of the logger that Core uses.
func NewTgBot(apiKey string, log *slog.Logger, cfg BotConfig) (*TgBot, error) {
	tgBot := &TgBot{
		log:    log.With(sl.Module("tgbot")),
		config: cfg,
	}

	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %v", err)
	}
	tgBot.api = api
	if tgBot.config.BotName == "" {
		tgBot.config.BotName = api.Username
	}

	return tgBot, nil
}

func (t *TgBot) SetCore(handler Core) {
	t.core = handler
}

// Start polls for updates and blocks until Stop is called.
func (t *TgBot) Start() error {
	if t.core == nil {
		return fmt.Errorf("core is not set")
	}
	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			t.log.Error("handling update", sl.Err(err))
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	t.updater = ext.NewUpdater(dispatcher, nil)

	// User commands
	dispatcher.AddHandler(handlers.NewCommand("start", t.start))
	dispatcher.AddHandler(handlers.NewCommand("help", t.help))
	dispatcher.AddHandler(handlers.NewCommand("energy", t.energy))
	dispatcher.AddHandler(handlers.NewCommand("scan", t.energy))
	dispatcher.AddHandler(handlers.NewCommand("history", t.history))
	dispatcher.AddHandler(handlers.NewCommand("refer", t.refer))
	dispatcher.AddHandler(handlers.NewCommand("premium", t.premium))
	dispatcher.AddHandler(handlers.NewCommand("buy", t.buy))
	dispatcher.AddHandler(handlers.NewCommand("leaderboard", t.leaderboard))

	// Admin commands
	dispatcher.AddHandler(handlers.NewCommand("grant", t.grant))
	dispatcher.AddHandler(handlers.NewCommand("addpremium", t.addPremium))
	dispatcher.AddHandler(handlers.NewCommand("stats", t.stats))

	// Callback query handlers
	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Prefix(cbMenu), t.onMenuCallback))
	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Prefix(cbPay), t.onPayCallback))
	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Prefix(cbCard), t.onCardCallback))

	// Payments
	dispatcher.AddHandler(handlers.NewPreCheckoutQuery(precheckoutquery.All, t.onPreCheckout))
	dispatcher.AddHandler(handlers.NewMessage(message.SuccessfulPayment, t.onSuccessfulPayment))

	// Charts and everything else
	dispatcher.AddHandler(handlers.NewMessage(message.Photo, t.onPhoto))
	dispatcher.AddHandler(handlers.NewMessage(message.Document, t.onDocument))
	dispatcher.AddHandler(handlers.NewMessage(isPlainText, t.onText))

	t.setDefaultCommands()
	t.syncAdminMenus()

	err := t.updater.StartPolling(t.api, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout: 9,
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}
	t.log.With(slog.String("bot", t.config.BotName)).Info("telegram bot started")

	t.updater.Idle()
	return nil
}

func (t *TgBot) Stop() {
	if t.updater != nil {
		t.log.Info("stopping telegram bot")
		t.updater.Stop()
	}
}

func (t *TgBot) isAdmin(chatId int64) bool {
	return slices.Contains(t.config.Admins, chatId)
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), requestTimeout)
}
