package market

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/entity"
	"chartscan/internal/config"
)

const pepePairs = `{"pairs":[
 {"chainId":"ethereum","dexId":"uniswap","url":"https://dexscreener.com/ethereum/0xa",
  "baseToken":{"address":"0x6982","name":"Pepe","symbol":"PEPE"},
  "priceUsd":"0.0000123","fdv":5000000000,"liquidity":{"usd":25000000},
  "volume":{"h24":120000000},"priceChange":{"m5":0.1,"h1":-1.5,"h6":2,"h24":7.25},
  "txns":{"h24":{"buys":700,"sells":300}},"pairCreatedAt":1681000000000},
 {"chainId":"bsc","dexId":"pancakeswap","baseToken":{"name":"Pepe","symbol":"PEPE"},
  "priceUsd":"0.0000120","liquidity":{"usd":10000}}
]}`

type recorder struct {
	mu    sync.Mutex
	paths []string
}

func (r *recorder) add(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.paths = append(r.paths, path)
}

func newServer(t *testing.T, rec *recorder, handler func(w http.ResponseWriter, r *http.Request)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.add(r.URL.RequestURI())
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return NewClient(config.Market{URL: srv.URL + "/"}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSearchPicksMostLiquidPair(t *testing.T) {
	rec := &recorder{}
	c := newServer(t, rec, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, pepePairs)
	})

	md, err := c.Search(context.Background(), "PEPE")
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.Equal(t, []string{"/search?q=PEPE"}, rec.paths)
	assert.Equal(t, "ethereum", md.Chain)
	assert.Equal(t, "uniswap", md.Dex)
	assert.InDelta(t, 0.0000123, md.PriceUSD, 1e-12)
	assert.Equal(t, 5e9, md.MarketCap, "falls back to fdv")
	assert.Equal(t, 25e6, md.Liquidity)
	assert.Equal(t, 7.25, md.Change24h)
	assert.Equal(t, 1000, md.Txns24h())
	assert.InDelta(t, 70.0, md.BuyRatio(), 0.001)
	assert.Equal(t, time.UnixMilli(1681000000000).UTC(), md.PairCreated)
}

func TestSearchByAddressUsesTokensEndpoint(t *testing.T) {
	rec := &recorder{}
	c := newServer(t, rec, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"pairs":null}`)
	})

	md, err := c.Search(context.Background(), "DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263")
	require.NoError(t, err)
	assert.Nil(t, md)
	assert.Equal(t, []string{"/tokens/DezXAZ8z7PnrnRJjz3wXBoRgixCa6xjnB7YaB1pPB263"}, rec.paths)
}

func TestEnrichFallsBackFromTickerToToken(t *testing.T) {
	rec := &recorder{}
	c := newServer(t, rec, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("q") == "Pepe" {
			_, _ = io.WriteString(w, pepePairs)
			return
		}
		_, _ = io.WriteString(w, `{"pairs":[]}`)
	})

	md, err := c.Enrich(context.Background(), &entity.Verdict{Token: "Pepe", Ticker: "$PPX"})
	require.NoError(t, err)
	require.NotNil(t, md)
	assert.Equal(t, "PEPE", md.Symbol)
	assert.Equal(t, []string{"/search?q=PPX", "/search?q=Pepe"}, rec.paths)
}

func TestEnrichSkipsPlaceholders(t *testing.T) {
	rec := &recorder{}
	c := newServer(t, rec, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, pepePairs)
	})

	md, err := c.Enrich(context.Background(), &entity.Verdict{Token: "Unknown", Ticker: "???"})
	require.NoError(t, err)
	assert.Nil(t, md)
	assert.Empty(t, rec.paths)
}

func TestEnrichReportsUpstreamError(t *testing.T) {
	rec := &recorder{}
	c := newServer(t, rec, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	})

	md, err := c.Enrich(context.Background(), &entity.Verdict{Token: "Pepe", Ticker: "PEPE"})
	assert.Nil(t, md)
	assert.ErrorContains(t, err, "429")
	assert.Len(t, rec.paths, 2)
}

func TestEnrichNotConfigured(t *testing.T) {
	c := NewClient(config.Market{}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	_, err := c.Enrich(context.Background(), &entity.Verdict{Token: "Pepe"})
	assert.ErrorIs(t, err, ErrNotConfigured)
}
