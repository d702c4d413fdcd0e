package entity

import "time"

// MarketData is the live pair snapshot attached to a scanned token.
type MarketData struct {
	Name        string    `json:"name"`
	Symbol      string    `json:"symbol"`
	Address     string    `json:"address,omitempty"`
	Chain       string    `json:"chain"`
	Dex         string    `json:"dex"`
	PairAddress string    `json:"pair_address,omitempty"`
	PriceUSD    float64   `json:"price_usd"`
	MarketCap   float64   `json:"market_cap"`
	Liquidity   float64   `json:"liquidity_usd"`
	Volume24h   float64   `json:"volume_24h"`
	Change5m    float64   `json:"price_change_5m"`
	Change1h    float64   `json:"price_change_1h"`
	Change6h    float64   `json:"price_change_6h"`
	Change24h   float64   `json:"price_change_24h"`
	Buys24h     int       `json:"buys_24h"`
	Sells24h    int       `json:"sells_24h"`
	PairCreated time.Time `json:"pair_created,omitzero"`
	URL         string    `json:"url,omitempty"`
}

func (m *MarketData) Txns24h() int {
	return m.Buys24h + m.Sells24h
}

// BuyRatio is the share of buys among the last day's transactions in
// percent, 50 when there were none.
func (m *MarketData) BuyRatio() float64 {
	total := m.Txns24h()
	if total == 0 {
		return 50
	}
	return float64(m.Buys24h) * 100 / float64(total)
}
