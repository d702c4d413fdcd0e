package card

import (
	"fmt"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// USD renders a dollar amount compactly: $1.25B, $3.40M, $12.5K, $0.000123.
func USD(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.2fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.1fK", v/1e3)
	case v >= 1:
		return fmt.Sprintf("$%.2f", v)
	case v > 0:
		return fmt.Sprintf("$%.6f", v)
	}
	return "$0"
}

func Percent(v float64) string {
	return fmt.Sprintf("%+.1f%%", v)
}

var chains = map[string]string{
	"solana":   "Solana",
	"ethereum": "Ethereum",
	"bsc":      "BSC",
	"base":     "Base",
	"arbitrum": "Arbitrum",
	"polygon":  "Polygon",
}

func ChainName(id string) string {
	if name, ok := chains[strings.ToLower(id)]; ok {
		return name
	}
	if id == "" {
		return "Unknown"
	}
	return title(id)
}

func title(s string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(s, "-", " "))
}

// Pressure names the buy/sell balance for a buy ratio in percent.
func Pressure(ratio float64) string {
	switch {
	case ratio >= 65:
		return "Strong Buy Pressure"
	case ratio >= 55:
		return "Slight Buy Pressure"
	case ratio >= 45:
		return "Balanced"
	case ratio >= 35:
		return "Slight Sell Pressure"
	}
	return "Strong Sell Pressure"
}

// LiquidityGrade buckets pool depth in USD.
func LiquidityGrade(usd float64) string {
	switch {
	case usd >= 500_000:
		return "High"
	case usd >= 100_000:
		return "Medium"
	case usd >= 10_000:
		return "Low"
	}
	return "Very Low"
}
