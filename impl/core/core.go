package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"chartscan/entity"
	"chartscan/internal/ledger"
	"chartscan/internal/store"
	"chartscan/lib/clock"
	"chartscan/lib/sl"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"go.jetify.com/typeid/v2"
)

var (
	ErrNotConnected = errors.New("service not connected")
	// ErrAnalysisFailed is returned after the scan was already paid for.
	ErrAnalysisFailed = errors.New("chart analysis failed")
)

type AuthService interface {
	UserByToken(token string) (*entity.User, error)
}

type PaymentService interface {
	CreateCheckout(req *entity.CheckoutRequest) (*entity.PaymentLink, error)
	VerifySignature(payload []byte, header string, tolerance time.Duration) bool
	HandleEvent(evt *stripe.Event) (*entity.PaymentEvent, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, image []byte, mimeType string) (*entity.Verdict, error)
}

type LeaderboardCache interface {
	Leaderboard(ctx context.Context, limit int) ([]*entity.LeaderboardEntry, error)
	Invalidate(ctx context.Context)
}

// Enricher adds live market data for the token a verdict names.
type Enricher interface {
	Enrich(ctx context.Context, v *entity.Verdict) (*entity.MarketData, error)
}

type CardRenderer interface {
	Render(scan *entity.ScanRecord, md *entity.MarketData) ([]byte, error)
}

type AnalysisObserver interface {
	AnalysisDone(ok bool)
}

// ImageFetcher downloads the chart after the scan was admitted.
type ImageFetcher func(ctx context.Context) ([]byte, string, error)

// ScanResult carries the debit decision and, for an analyzed scan, the
// verdict plus the optional market data and report card.
type ScanResult struct {
	Decision *ledger.Decision
	Scan     *entity.ScanRecord
	Market   *entity.MarketData
	Card     []byte
}

const enrichTimeout = 10 * time.Second

// Core is the application facade shared by the bot and the HTTP API.
type Core struct {
	ledger   *ledger.Ledger
	history  store.History
	days     clock.DayResolver
	sc       PaymentService
	analyzer Analyzer
	cache    LeaderboardCache
	enricher Enricher
	cards    CardRenderer
	auth     AuthService
	observer AnalysisObserver
	now      func() time.Time
	log      *slog.Logger
}

func New(l *ledger.Ledger, history store.History, log *slog.Logger) *Core {
	if l == nil {
		panic("ledger is nil")
	}
	return &Core{
		ledger:  l,
		history: history,
		days:    l.Days(),
		now:     time.Now,
		log:     log.With(sl.Module("core")),
	}
}

func (c *Core) SetPaymentService(sc PaymentService) {
	c.sc = sc
}

func (c *Core) SetAnalyzer(a Analyzer) {
	c.analyzer = a
}

func (c *Core) SetLeaderboardCache(cache LeaderboardCache) {
	c.cache = cache
}

func (c *Core) SetEnricher(e Enricher) {
	c.enricher = e
}

func (c *Core) SetCardRenderer(r CardRenderer) {
	c.cards = r
}

func (c *Core) SetAuthService(auth AuthService) {
	c.auth = auth
}

func (c *Core) SetAnalysisObserver(obs AnalysisObserver) {
	c.observer = obs
}

func (c *Core) AuthenticateByToken(token string) (*entity.User, error) {
	if c.auth == nil {
		return nil, fmt.Errorf("auth: %w", ErrNotConnected)
	}
	return c.auth.UserByToken(token)
}

func (c *Core) Register(ctx context.Context, userID int64, username, firstName string) (*entity.Summary, bool, error) {
	return c.ledger.Register(ctx, userID, username, firstName, c.now())
}

func (c *Core) ApplyReferral(ctx context.Context, userID int64, code string) (ledger.ReferralOutcome, error) {
	return c.ledger.ApplyReferral(ctx, userID, code, c.now())
}

func (c *Core) AccountSummary(ctx context.Context, userID int64) (*entity.Summary, error) {
	return c.ledger.AccountSummary(ctx, userID, c.now())
}

func (c *Core) TryConsume(ctx context.Context, userID int64) (*ledger.Decision, error) {
	return c.ledger.TryConsume(ctx, userID, c.now())
}

func (c *Core) GrantCredits(ctx context.Context, userID int64, amount int, source string) (int, error) {
	if source == "" {
		source = string(entity.ProviderAdmin)
	}
	return c.ledger.Grant(ctx, userID, amount, source, c.now())
}

func (c *Core) ActivatePremium(ctx context.Context, userID int64, days int) (time.Time, error) {
	return c.ledger.ActivatePremium(ctx, userID, days, c.now())
}

func (c *Core) ApplyPayment(ctx context.Context, evt entity.PaymentEvent) (*entity.PaymentResult, error) {
	return c.ledger.ApplyPayment(ctx, evt, c.now())
}

// ScanChart debits one scan and, when admitted, analyzes the chart. A denial
// returns a result without Scan. Once admitted the debit stands even if the
// download or the analysis fails.
func (c *Core) ScanChart(ctx context.Context, userID int64, fileID string, fetch ImageFetcher) (*ScanResult, error) {
	decision, err := c.ledger.TryConsume(ctx, userID, c.now())
	if err != nil {
		return nil, err
	}
	result := &ScanResult{Decision: decision}
	if !decision.Admitted {
		return result, nil
	}
	log := c.log.With(
		sl.User(userID),
		slog.String("source", string(decision.Source)),
		slog.String("file_id", fileID),
	)

	verdict, err := c.analyze(ctx, fetch)
	if c.observer != nil {
		c.observer.AnalysisDone(err == nil)
	}
	if err != nil {
		log.With(sl.Err(err)).Warn("scan not analyzed")
		return result, fmt.Errorf("%w: %v", ErrAnalysisFailed, err)
	}

	scan := &entity.ScanRecord{
		UserID:    userID,
		Source:    decision.Source,
		FileID:    fileID,
		Verdict:   *verdict,
		CreatedAt: c.now(),
	}
	scan.ID = c.scanID(log)
	result.Scan = scan

	if c.history != nil {
		if err = c.history.SaveScan(ctx, scan); err != nil {
			log.With(sl.Err(err)).Error("save scan")
		}
	}
	if c.cache != nil {
		c.cache.Invalidate(ctx)
	}
	result.Market = c.enrich(ctx, log, verdict)
	if c.cards != nil {
		if result.Card, err = c.cards.Render(scan, result.Market); err != nil {
			log.With(sl.Err(err)).Warn("render report card")
		}
	}
	log.With(
		slog.String("token", verdict.Token),
		slog.String("action", verdict.Action),
	).Info("chart scanned")
	return result, nil
}

// enrich is best effort: the scan is already paid and analyzed, so a market
// lookup failure only drops the extra section.
func (c *Core) enrich(ctx context.Context, log *slog.Logger, v *entity.Verdict) *entity.MarketData {
	if c.enricher == nil {
		return nil
	}
	ectx, cancel := context.WithTimeout(ctx, enrichTimeout)
	defer cancel()
	md, err := c.enricher.Enrich(ectx, v)
	if err != nil {
		log.With(sl.Err(err)).Warn("market enrichment")
		return nil
	}
	return md
}

var generateTypeID = func(prefix string) (string, error) {
	id, err := typeid.Generate(prefix)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// scanID prefers a sortable typeid and falls back to a random uuid, so a
// saved scan never carries an empty key.
func (c *Core) scanID(log *slog.Logger) string {
	id, err := generateTypeID("scan")
	if err == nil {
		return id
	}
	log.With(sl.Err(err)).Warn("generate scan id")
	return "scan_" + uuid.NewString()
}

func (c *Core) analyze(ctx context.Context, fetch ImageFetcher) (*entity.Verdict, error) {
	if c.analyzer == nil {
		return nil, fmt.Errorf("analyzer: %w", ErrNotConnected)
	}
	image, mime, err := fetch(ctx)
	if err != nil {
		return nil, fmt.Errorf("download chart: %w", err)
	}
	return c.analyzer.Analyze(ctx, image, mime)
}

func (c *Core) ScanHistory(ctx context.Context, userID int64, limit int) ([]*entity.ScanRecord, error) {
	if c.history == nil {
		return nil, fmt.Errorf("history: %w", ErrNotConnected)
	}
	return c.history.ScanHistory(ctx, userID, limit)
}

func (c *Core) Leaderboard(ctx context.Context, limit int) ([]*entity.LeaderboardEntry, error) {
	limit = store.ClampLimit(limit, store.DefaultLeaderboardLimit)
	if c.cache != nil {
		return c.cache.Leaderboard(ctx, limit)
	}
	if c.history == nil {
		return nil, fmt.Errorf("history: %w", ErrNotConnected)
	}
	return c.history.Leaderboard(ctx, limit)
}

func (c *Core) Stats(ctx context.Context) (*entity.Stats, error) {
	if c.history == nil {
		return nil, fmt.Errorf("history: %w", ErrNotConnected)
	}
	now := c.now()
	return c.history.Stats(ctx, c.days.DayStart(now), now)
}

func (c *Core) StripeCheckout(req *entity.CheckoutRequest) (*entity.PaymentLink, error) {
	if c.sc == nil {
		return nil, fmt.Errorf("stripe: %w", ErrNotConnected)
	}
	return c.sc.CreateCheckout(req)
}

func (c *Core) StripeVerifySignature(payload []byte, header string, tolerance time.Duration) bool {
	if c.sc == nil {
		return false
	}
	return c.sc.VerifySignature(payload, header, tolerance)
}

// StripeEvent applies a completed checkout. A returned error means the
// webhook should be redelivered.
func (c *Core) StripeEvent(ctx context.Context, evt *stripe.Event) error {
	if c.sc == nil {
		return fmt.Errorf("stripe: %w", ErrNotConnected)
	}
	payment, err := c.sc.HandleEvent(evt)
	if err != nil {
		c.log.With(
			sl.Err(err),
			slog.String("event_id", evt.ID),
		).Error("stripe event")
		return nil
	}
	if payment == nil {
		return nil
	}
	_, err = c.ledger.ApplyPayment(ctx, *payment, c.now())
	return err
}
