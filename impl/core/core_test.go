package core

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/entity"
	"chartscan/internal/ledger"
	"chartscan/internal/store/memory"
)

type fakeAnalyzer struct {
	verdict *entity.Verdict
	err     error
	calls   int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ []byte, _ string) (*entity.Verdict, error) {
	f.calls++
	return f.verdict, f.err
}

type okObserver struct{ ok, failed int }

func (o *okObserver) AnalysisDone(ok bool) {
	if ok {
		o.ok++
	} else {
		o.failed++
	}
}

func fetchOK(_ context.Context) ([]byte, string, error) {
	return []byte("img"), "image/png", nil
}

func newCore(t *testing.T) (*Core, *memory.Memory) {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	st := memory.New()
	l, err := ledger.New(st, ledger.DefaultConfig(), log)
	require.NoError(t, err)
	c := New(l, st, log)
	c.now = func() time.Time { return time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC) }
	return c, st
}

func TestScanChartAdmitted(t *testing.T) {
	c, _ := newCore(t)
	an := &fakeAnalyzer{verdict: &entity.Verdict{Token: "BTC", Action: "BUY"}}
	obs := &okObserver{}
	c.SetAnalyzer(an)
	c.SetAnalysisObserver(obs)
	ctx := context.Background()

	res, err := c.ScanChart(ctx, 10, "file-1", fetchOK)
	require.NoError(t, err)
	assert.True(t, res.Decision.Admitted)
	require.NotNil(t, res.Scan)
	assert.Contains(t, res.Scan.ID, "scan_")
	assert.Equal(t, 1, obs.ok)

	history, err := c.ScanHistory(ctx, 10, 5)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "BTC", history[0].Verdict.Token)

	board, err := c.Leaderboard(ctx, 0)
	require.NoError(t, err)
	require.Len(t, board, 1)
	assert.Equal(t, int64(10), board[0].UserID)
}

func TestScanChartDeniedSkipsAnalysis(t *testing.T) {
	c, _ := newCore(t)
	an := &fakeAnalyzer{verdict: &entity.Verdict{}}
	c.SetAnalyzer(an)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := c.ScanChart(ctx, 11, "f", fetchOK)
		require.NoError(t, err)
	}
	res, err := c.ScanChart(ctx, 11, "f", fetchOK)
	require.NoError(t, err)
	assert.False(t, res.Decision.Admitted)
	assert.Nil(t, res.Scan)
	assert.Equal(t, 3, an.calls)
}

func TestScanChartFailureKeepsDebit(t *testing.T) {
	c, _ := newCore(t)
	obs := &okObserver{}
	c.SetAnalyzer(&fakeAnalyzer{err: errors.New("vision down")})
	c.SetAnalysisObserver(obs)
	ctx := context.Background()

	res, err := c.ScanChart(ctx, 12, "f", fetchOK)
	assert.ErrorIs(t, err, ErrAnalysisFailed)
	require.NotNil(t, res)
	assert.True(t, res.Decision.Admitted)
	assert.Equal(t, 1, obs.failed)

	sum, err := c.AccountSummary(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, 2, sum.FreeRemaining)
}

func TestScanChartDownloadFailure(t *testing.T) {
	c, _ := newCore(t)
	c.SetAnalyzer(&fakeAnalyzer{verdict: &entity.Verdict{}})
	fetchErr := func(context.Context) ([]byte, string, error) { return nil, "", errors.New("404") }

	_, err := c.ScanChart(context.Background(), 13, "f", fetchErr)
	assert.ErrorIs(t, err, ErrAnalysisFailed)
}

func TestStatsAndGrant(t *testing.T) {
	c, _ := newCore(t)
	ctx := context.Background()

	balance, err := c.GrantCredits(ctx, 20, 4, "")
	require.NoError(t, err)
	assert.Equal(t, 4, balance)
	_, err = c.ActivatePremium(ctx, 21, 30)
	require.NoError(t, err)

	stats, err := c.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Accounts)
	assert.Equal(t, int64(1), stats.PremiumActive)
}

func TestNotConnectedServices(t *testing.T) {
	c, _ := newCore(t)
	_, err := c.StripeCheckout(&entity.CheckoutRequest{UserID: 1, Product: entity.ProductScans})
	assert.ErrorIs(t, err, ErrNotConnected)
	_, err = c.AuthenticateByToken("x")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, c.StripeVerifySignature(nil, "", time.Minute))
}

type fakeEnricher struct {
	md    *entity.MarketData
	err   error
	token string
}

func (f *fakeEnricher) Enrich(ctx context.Context, v *entity.Verdict) (*entity.MarketData, error) {
	f.token = v.Token
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("no deadline")
	}
	return f.md, f.err
}

type fakeCards struct {
	market *entity.MarketData
	err    error
}

func (f *fakeCards) Render(_ *entity.ScanRecord, md *entity.MarketData) ([]byte, error) {
	f.market = md
	if f.err != nil {
		return nil, f.err
	}
	return []byte("png"), nil
}

func TestScanChartEnrichesAndRendersCard(t *testing.T) {
	c, _ := newCore(t)
	c.SetAnalyzer(&fakeAnalyzer{verdict: &entity.Verdict{Token: "Pepe", Ticker: "PEPE"}})
	md := &entity.MarketData{Symbol: "PEPE", PriceUSD: 0.00001}
	en := &fakeEnricher{md: md}
	cards := &fakeCards{}
	c.SetEnricher(en)
	c.SetCardRenderer(cards)

	res, err := c.ScanChart(context.Background(), 30, "f", fetchOK)
	require.NoError(t, err)
	assert.Equal(t, "Pepe", en.token)
	assert.Same(t, md, res.Market)
	assert.Same(t, md, cards.market)
	assert.Equal(t, []byte("png"), res.Card)
}

func TestScanChartEnrichmentIsBestEffort(t *testing.T) {
	c, _ := newCore(t)
	c.SetAnalyzer(&fakeAnalyzer{verdict: &entity.Verdict{Token: "Pepe"}})
	c.SetEnricher(&fakeEnricher{err: errors.New("dex down")})
	c.SetCardRenderer(&fakeCards{err: errors.New("no fonts")})
	ctx := context.Background()

	res, err := c.ScanChart(ctx, 31, "f", fetchOK)
	require.NoError(t, err)
	require.NotNil(t, res.Scan)
	assert.Nil(t, res.Market)
	assert.Nil(t, res.Card)

	history, err := c.ScanHistory(ctx, 31, 5)
	require.NoError(t, err)
	assert.Len(t, history, 1)
}

func TestScanIDFallsBackToUUID(t *testing.T) {
	orig := generateTypeID
	t.Cleanup(func() { generateTypeID = orig })
	generateTypeID = func(string) (string, error) { return "", errors.New("entropy") }

	c, _ := newCore(t)
	c.SetAnalyzer(&fakeAnalyzer{verdict: &entity.Verdict{Token: "BTC"}})
	ctx := context.Background()

	first, err := c.ScanChart(ctx, 32, "f", fetchOK)
	require.NoError(t, err)
	second, err := c.ScanChart(ctx, 32, "f", fetchOK)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(first.Scan.ID, "scan_"))
	assert.Len(t, first.Scan.ID, len("scan_")+36)
	assert.NotEqual(t, first.Scan.ID, second.Scan.ID)
}
