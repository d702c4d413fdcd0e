package card

import (
	"bytes"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/entity"
	"chartscan/internal/config"
)

func sampleScan() *entity.ScanRecord {
	return &entity.ScanRecord{
		ID:     "scan_1",
		UserID: 7,
		Verdict: entity.Verdict{
			Token:      "Pepe",
			Ticker:     "PEPE",
			Timeframe:  "4h",
			Trend:      "Bullish",
			Action:     "BUY",
			Confidence: 8,
			RiskLevel:  "HIGH",
			Pattern:    "bull flag",
			Support:    []string{"0.0000110", "0.0000100"},
			Resistance: []string{"0.0000140"},
			Price:      "$0.0000123",
			Summary:    "Breakout above the flag with rising volume, target the previous high while support holds.",
		},
		CreatedAt: time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC),
	}
}

func TestRenderSizes(t *testing.T) {
	r, err := New(config.Card{Handle: "@ChartBot"})
	require.NoError(t, err)

	data, err := r.Render(sampleScan(), nil)
	require.NoError(t, err)
	cfg, err := png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, Width, cfg.Width)
	assert.Equal(t, HeightPlain, cfg.Height)

	md := &entity.MarketData{Chain: "ethereum", Dex: "uniswap", PriceUSD: 0.0000123,
		MarketCap: 5e9, Liquidity: 25e6, Volume24h: 1.2e8, Change24h: -3.5, Buys24h: 30, Sells24h: 70}
	data, err = r.Render(sampleScan(), md)
	require.NoError(t, err)
	cfg, err = png.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, HeightMarket, cfg.Height)
}

func TestRenderEmptyVerdict(t *testing.T) {
	r, err := New(config.Card{})
	require.NoError(t, err)
	assert.Equal(t, "CHART SCANNER", r.brand)

	data, err := r.Render(&entity.ScanRecord{}, nil)
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)
}

func TestFormatting(t *testing.T) {
	assert.Equal(t, "$1.25B", USD(1.25e9))
	assert.Equal(t, "$3.40M", USD(3.4e6))
	assert.Equal(t, "$12.5K", USD(12500))
	assert.Equal(t, "$2.50", USD(2.5))
	assert.Equal(t, "$0.000123", USD(0.000123))
	assert.Equal(t, "$0", USD(0))

	assert.Equal(t, "+7.3%", Percent(7.26))
	assert.Equal(t, "-1.5%", Percent(-1.5))

	assert.Equal(t, "BSC", ChainName("bsc"))
	assert.Equal(t, "Sui Network", ChainName("sui-network"))
	assert.Equal(t, "Unknown", ChainName(""))

	assert.Equal(t, "Strong Buy Pressure", Pressure(70))
	assert.Equal(t, "Balanced", Pressure(50))
	assert.Equal(t, "Strong Sell Pressure", Pressure(10))
	assert.Equal(t, "Medium", LiquidityGrade(250_000))
	assert.Equal(t, "Very Low", LiquidityGrade(500))
}

func TestBadgeColors(t *testing.T) {
	assert.Equal(t, green, badgeColor(0, "bullish"))
	assert.Equal(t, red, badgeColor(1, "SELL"))
	assert.Equal(t, orange, badgeColor(2, "High"))
	assert.Equal(t, gray, badgeColor(1, "Unknown"))
	assert.Equal(t, yellow, confidenceColor(5))
}
