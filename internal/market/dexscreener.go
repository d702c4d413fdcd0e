// Package market looks up live pair data for the token a chart shows.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"time"

	"chartscan/entity"
	"chartscan/internal/config"
	"chartscan/lib/sl"
)

var ErrNotConfigured = errors.New("market data source is not configured")

var addressPattern = regexp.MustCompile(`^[a-zA-Z0-9]{31,}$`)

type Client struct {
	hc      *http.Client
	baseURL string
	log     *slog.Logger
}

func NewClient(conf config.Market, logger *slog.Logger) *Client {
	timeout := time.Duration(conf.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		hc:      &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(conf.URL, "/"),
		log:     logger.With(sl.Module("market")),
	}
}

type pairsResponse struct {
	Pairs []pair `json:"pairs"`
}

type pair struct {
	ChainID     string `json:"chainId"`
	DexID       string `json:"dexId"`
	URL         string `json:"url"`
	PairAddress string `json:"pairAddress"`
	BaseToken   struct {
		Address string `json:"address"`
		Name    string `json:"name"`
		Symbol  string `json:"symbol"`
	} `json:"baseToken"`
	PriceUsd  string  `json:"priceUsd"`
	MarketCap float64 `json:"marketCap"`
	Fdv       float64 `json:"fdv"`
	Liquidity struct {
		Usd float64 `json:"usd"`
	} `json:"liquidity"`
	Volume struct {
		H24 float64 `json:"h24"`
	} `json:"volume"`
	PriceChange struct {
		M5  float64 `json:"m5"`
		H1  float64 `json:"h1"`
		H6  float64 `json:"h6"`
		H24 float64 `json:"h24"`
	} `json:"priceChange"`
	Txns struct {
		H24 struct {
			Buys  int `json:"buys"`
			Sells int `json:"sells"`
		} `json:"h24"`
	} `json:"txns"`
	PairCreatedAt int64 `json:"pairCreatedAt"`
}

// Enrich tries the contract address, then the ticker, then the token name,
// and returns the first match. A verdict with nothing searchable, or no pair
// found, gives nil without error.
func (c *Client) Enrich(ctx context.Context, v *entity.Verdict) (*entity.MarketData, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}
	var lastErr error
	for _, q := range queries(v) {
		md, err := c.Search(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, err
			}
			lastErr = err
			continue
		}
		if md != nil {
			return md, nil
		}
	}
	return nil, lastErr
}

func queries(v *entity.Verdict) []string {
	var out []string
	if len(v.Contract) > 10 {
		out = append(out, v.Contract)
	}
	for _, s := range []string{v.Ticker, v.Token} {
		s = strings.TrimPrefix(strings.TrimSpace(s), "$")
		switch strings.ToLower(s) {
		case "", "???", "unknown", "n/a", "null", "none":
			continue
		}
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// Search returns the most liquid pair for a name, ticker or token address.
func (c *Client) Search(ctx context.Context, query string) (*entity.MarketData, error) {
	endpoint := c.baseURL + "/search?q=" + url.QueryEscape(query)
	if addressPattern.MatchString(query) {
		endpoint = c.baseURL + "/tokens/" + url.PathEscape(query)
	}
	log := c.log.With(slog.String("query", query))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("market request: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read market response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		log.With(slog.Int("status", resp.StatusCode)).Warn("market data source returned error")
		return nil, fmt.Errorf("market %s", resp.Status)
	}

	var pr pairsResponse
	if err = json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("decode market response: %w", err)
	}
	if len(pr.Pairs) == 0 {
		log.Debug("no pairs found")
		return nil, nil
	}
	best := slices.MaxFunc(pr.Pairs, func(a, b pair) int {
		switch {
		case a.Liquidity.Usd < b.Liquidity.Usd:
			return -1
		case a.Liquidity.Usd > b.Liquidity.Usd:
			return 1
		}
		return 0
	})
	return best.toMarketData(), nil
}

func (p pair) toMarketData() *entity.MarketData {
	price, _ := strconv.ParseFloat(p.PriceUsd, 64)
	mcap := p.MarketCap
	if mcap == 0 {
		mcap = p.Fdv
	}
	md := &entity.MarketData{
		Name:        p.BaseToken.Name,
		Symbol:      p.BaseToken.Symbol,
		Address:     p.BaseToken.Address,
		Chain:       p.ChainID,
		Dex:         p.DexID,
		PairAddress: p.PairAddress,
		PriceUSD:    price,
		MarketCap:   mcap,
		Liquidity:   p.Liquidity.Usd,
		Volume24h:   p.Volume.H24,
		Change5m:    p.PriceChange.M5,
		Change1h:    p.PriceChange.H1,
		Change6h:    p.PriceChange.H6,
		Change24h:   p.PriceChange.H24,
		Buys24h:     p.Txns.H24.Buys,
		Sells24h:    p.Txns.H24.Sells,
		URL:         p.URL,
	}
	if p.PairCreatedAt > 0 {
		md.PairCreated = time.UnixMilli(p.PairCreatedAt).UTC()
	}
	return md
}
