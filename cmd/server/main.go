package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chartscan/bot"
	"chartscan/impl/auth"
	"chartscan/impl/core"
	"chartscan/internal/analyzer"
	"chartscan/internal/cache"
	"chartscan/internal/card"
	"chartscan/internal/config"
	"chartscan/internal/database"
	"chartscan/internal/http-server/api"
	"chartscan/internal/ledger"
	"chartscan/internal/market"
	"chartscan/internal/metrics"
	"chartscan/internal/report"
	"chartscan/internal/store"
	"chartscan/internal/store/memory"
	"chartscan/internal/stripeclient"
	"chartscan/lib/logger"
	"chartscan/lib/sl"
)

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	log := logger.SetupLogger(conf.Env, *logPath)
	log.Info("starting chartscan", slog.String("config", *configPath), slog.String("env", conf.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var tgBot *bot.TgBot
	if conf.Telegram.Enabled {
		var err error
		tgBot, err = bot.NewTgBot(conf.Telegram.ApiKey, log, bot.BotConfig{
			BotName:       conf.Telegram.BotName,
			Admins:        conf.Telegram.Admins,
			Pricing:       conf.Pricing,
			RefereeBonus:  conf.Ledger.RefereeBonus,
			ReferrerBonus: conf.Ledger.ReferrerBonus,
			CardPayments:  stripeEnabled(conf),
		})
		if err != nil {
			log.Error("telegram bot", sl.Err(err))
			os.Exit(1)
		}
		// everything created below reports errors to the admins too
		log = slog.New(logger.NewTelegramHandler(log.Handler(), tgBot, logger.ParseLevel(conf.Telegram.LogLevel)))
	}

	accounts, err := openStore(ctx, conf, log)
	if err != nil {
		log.Error("storage", sl.Err(err))
		os.Exit(1)
	}
	defer accounts.Close()

	l, err := ledger.New(accounts, ledger.Config(conf.Ledger), log)
	if err != nil {
		log.Error("ledger", sl.Err(err))
		os.Exit(1)
	}
	m := metrics.New()
	l.SetObserver(m)

	handler := core.New(l, accounts, log)
	handler.SetAnalyzer(analyzer.NewClient(conf.Analyzer, log))
	handler.SetAnalysisObserver(m)
	if conf.Market.Enabled {
		handler.SetEnricher(market.NewClient(conf.Market, log))
	}
	if conf.Card.Enabled {
		renderer, err := card.New(conf.Card)
		if err != nil {
			log.Error("report card", sl.Err(err))
		} else {
			handler.SetCardRenderer(renderer)
		}
	}
	handler.SetAuthService(auth.New(conf.ApiClients))
	if stripeEnabled(conf) {
		handler.SetPaymentService(stripeclient.New(conf, log))
	}
	if conf.Redis.Enabled {
		board := cache.NewLeaderboard(cache.NewRedisClient(conf.Redis), accounts,
			time.Duration(conf.Redis.TTLSeconds)*time.Second, log)
		handler.SetLeaderboardCache(board)
		defer board.Close()
		log.With(slog.String("addr", conf.Redis.Addr)).Info("leaderboard cache enabled")
	}

	server := api.New(conf, log, handler, m.Handler())
	go func() {
		if err := server.Start(); err != nil {
			log.Error("api server", sl.Err(err))
			stop()
		}
	}()

	if tgBot != nil {
		tgBot.SetCore(handler)
		go func() {
			if err := tgBot.Start(); err != nil {
				log.Error("telegram bot", sl.Err(err))
			}
		}()
		if conf.Report.Enabled {
			rep := report.New(conf.Report, handler, tgBot, log)
			rep.SetLocation(l.Days().Location())
			rep.Start()
			defer rep.Stop()
		}
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("api server shutdown", sl.Err(err))
	}
	if tgBot != nil {
		tgBot.Stop()
	}
}

func stripeEnabled(conf *config.Config) bool {
	if conf.Stripe.TestMode {
		return conf.Stripe.TestKey != ""
	}
	return conf.Stripe.APIKey != ""
}

// openStore picks MySQL, then MongoDB, and falls back to the in-memory store,
// which loses everything on restart.
func openStore(ctx context.Context, conf *config.Config, log *slog.Logger) (store.Store, error) {
	if conf.MySQL.Enabled {
		db, err := database.NewSQLClient(ctx, conf, log)
		if err != nil {
			return nil, fmt.Errorf("mysql: %w", err)
		}
		log.With(slog.String("host", conf.MySQL.HostName)).Info("using mysql storage")
		return db, nil
	}
	if conf.Mongo.Enabled {
		db, err := database.NewMongoClient(ctx, conf, log)
		if err != nil {
			return nil, fmt.Errorf("mongo: %w", err)
		}
		log.With(slog.String("host", conf.Mongo.Host)).Info("using mongodb storage")
		return db, nil
	}
	log.Warn("no database enabled, using in-memory storage")
	return memory.New(), nil
}
