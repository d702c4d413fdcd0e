package bot

import (
	"fmt"
	"strings"
	"time"

	"chartscan/entity"
	"chartscan/internal/card"
)

const disclaimer = "_Not financial advice\\. Always DYOR\\._"

func welcomeText(firstName string, freeLimit int) string {
	name := firstName
	if name == "" {
		name = "trader"
	}
	return fmt.Sprintf("👋 Welcome, %s\\!\n\n"+
		"Send me a screenshot of any crypto chart and I will read it for you: "+
		"trend, support and resistance, patterns and a clear action\\.\n\n"+
		"You get *%d free scans every day*\\. Invite friends or go Premium for more\\.",
		Sanitize(name), freeLimit)
}

func helpText() string {
	return "📖 *How to scan*\n\n" +
		"1\\. Open a chart on any exchange or TradingView\n" +
		"2\\. Take a screenshot\n" +
		"3\\. Send it here as a photo or an image file\n\n" +
		"*Commands*\n" +
		"/energy \\- your scans left today\n" +
		"/history \\- your last scans\n" +
		"/refer \\- invite friends for bonus scans\n" +
		"/premium \\- unlimited scans\n" +
		"/buy \\- refill scans\n" +
		"/leaderboard \\- top scanners"
}

func energyBar(remaining, limit int) string {
	if limit <= 0 {
		return ""
	}
	remaining = min(max(remaining, 0), limit)
	return strings.Repeat("🟩", remaining) + strings.Repeat("⬜", limit-remaining)
}

func confidenceBar(n int) string {
	n = min(max(n, 0), 10)
	return strings.Repeat("█", n) + strings.Repeat("░", 10-n)
}

func untilReset(next, now time.Time) string {
	d := next.Sub(now)
	if d <= 0 {
		return "now"
	}
	d = d.Round(time.Minute)
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

func formatSummary(s *entity.Summary, now time.Time) string {
	var b strings.Builder
	b.WriteString("⚡ *Scan Energy*\n\n")
	if s.Premium && s.PremiumUntil != nil {
		b.WriteString(fmt.Sprintf("💎 Premium until %s\n", Sanitize(s.PremiumUntil.UTC().Format("2006-01-02"))))
		b.WriteString("Total available: *unlimited*\n")
	} else {
		b.WriteString(fmt.Sprintf("Free today: %s %d/%d\n", energyBar(s.FreeRemaining, s.FreeLimit), s.FreeRemaining, s.FreeLimit))
		b.WriteString(fmt.Sprintf("Bonus scans: %d\n", s.BonusCredits))
		b.WriteString(fmt.Sprintf("Total available: *%d*\n", s.FreeRemaining+s.BonusCredits))
		b.WriteString(fmt.Sprintf("Free refill in: %s\n", untilReset(s.NextResetAt, now)))
	}
	b.WriteString(fmt.Sprintf("\nScans ever: %d", s.TotalScans))
	return b.String()
}

func outOfScansText(s *entity.Summary, now time.Time) string {
	return fmt.Sprintf("🪫 *Out of scans*\n\n"+
		"Your free scans refill in %s\\.\n"+
		"Buy a refill, go Premium or invite a friend to keep scanning now\\.",
		untilReset(s.NextResetAt, now))
}

func trendEmoji(trend string) string {
	t := strings.ToLower(trend)
	switch {
	case strings.Contains(t, "bull"), strings.Contains(t, "up"):
		return "📈"
	case strings.Contains(t, "bear"), strings.Contains(t, "down"):
		return "📉"
	default:
		return "➡️"
	}
}

func actionEmoji(action string) string {
	switch strings.ToUpper(strings.TrimSpace(action)) {
	case "BUY", "LONG":
		return "🟢"
	case "SELL", "SHORT":
		return "🔴"
	default:
		return "🟡"
	}
}

func firstN(items []string, n int) []string {
	if len(items) > n {
		return items[:n]
	}
	return items
}

func formatVerdict(v entity.Verdict) string {
	var b strings.Builder
	title := v.Token
	if v.Ticker != "" && v.Ticker != v.Token {
		title += " (" + v.Ticker + ")"
	}
	b.WriteString(fmt.Sprintf("📊 *%s*", Sanitize(title)))
	if v.Timeframe != "" {
		b.WriteString(" · " + Sanitize(v.Timeframe))
	}
	b.WriteString("\n\n")
	b.WriteString(fmt.Sprintf("Trend: %s %s\n", trendEmoji(v.Trend), Sanitize(v.Trend)))
	if len(v.Support) > 0 {
		b.WriteString(fmt.Sprintf("Support: %s\n", Sanitize(strings.Join(firstN(v.Support, 3), ", "))))
	}
	if len(v.Resistance) > 0 {
		b.WriteString(fmt.Sprintf("Resistance: %s\n", Sanitize(strings.Join(firstN(v.Resistance, 3), ", "))))
	}
	if v.Pattern != "" {
		b.WriteString(fmt.Sprintf("Pattern: %s\n", Sanitize(v.Pattern)))
	}
	b.WriteString(fmt.Sprintf("\nAction: %s *%s*\n", actionEmoji(v.Action), Sanitize(v.Action)))
	b.WriteString(fmt.Sprintf("Risk: %s\n", Sanitize(v.RiskLevel)))
	b.WriteString(fmt.Sprintf("Confidence: %s %d/10\n", confidenceBar(v.Confidence), v.Confidence))
	if v.Summary != "" {
		b.WriteString(fmt.Sprintf("\n💬 %s\n", Sanitize(v.Summary)))
	}
	b.WriteString("\n" + disclaimer)
	return b.String()
}

func changeLine(label string, v float64) string {
	dot := "🟢"
	if v < 0 {
		dot = "🔴"
	}
	return fmt.Sprintf("%s: %s %s", label, dot, Sanitize(card.Percent(v)))
}

func formatMarket(md *entity.MarketData) string {
	var b strings.Builder
	b.WriteString("📡 *LIVE DATA*\n\n")
	b.WriteString(fmt.Sprintf("💰 Price: %s\n", Sanitize(card.USD(md.PriceUSD))))
	b.WriteString(fmt.Sprintf("📊 Market Cap: %s\n", Sanitize(card.USD(md.MarketCap))))
	b.WriteString(fmt.Sprintf("💧 Liquidity: %s \\(%s\\)\n",
		Sanitize(card.USD(md.Liquidity)), Sanitize(card.LiquidityGrade(md.Liquidity))))
	b.WriteString(fmt.Sprintf("📈 24h Volume: %s\n\n", Sanitize(card.USD(md.Volume24h))))
	b.WriteString(strings.Join([]string{
		changeLine("5m", md.Change5m),
		changeLine("1h", md.Change1h),
		changeLine("6h", md.Change6h),
		changeLine("24h", md.Change24h),
	}, "\n"))
	b.WriteString(fmt.Sprintf("\n\n🔄 24h Transactions: %d\n🟢 Buys: %d \\| 🔴 Sells: %d\n",
		md.Txns24h(), md.Buys24h, md.Sells24h))
	b.WriteString(fmt.Sprintf("Buy Ratio: %s \\- %s\n",
		Sanitize(fmt.Sprintf("%.1f%%", md.BuyRatio())), Sanitize(card.Pressure(md.BuyRatio()))))
	b.WriteString(fmt.Sprintf("⛓ Chain: %s \\| DEX: %s",
		Sanitize(card.ChainName(md.Chain)), Sanitize(card.ChainName(md.Dex))))
	if md.Address != "" {
		b.WriteString(fmt.Sprintf("\n📋 CA: `%s`", strings.NewReplacer("`", "", "\\", "").Replace(md.Address)))
	}
	if md.URL != "" {
		link := strings.NewReplacer("\\", "\\\\", ")", "\\)").Replace(md.URL)
		b.WriteString(fmt.Sprintf("\n🔗 [View on DexScreener](%s)", link))
	}
	return b.String()
}

// Photo captions are capped at 1024 characters after entity parsing.
const maxCaptionSummary = 600

func cardCaption(v entity.Verdict) string {
	name := v.Token
	if v.Ticker != "" {
		name += " (" + v.Ticker + ")"
	}
	summary := []rune(v.Summary)
	if len(summary) > maxCaptionSummary {
		summary = append(summary[:maxCaptionSummary], '…')
	}
	return fmt.Sprintf("🔬 *Chart Scan* \\- %s\n%s", Sanitize(name), Sanitize(string(summary)))
}

func formatHistory(scans []*entity.ScanRecord) string {
	if len(scans) == 0 {
		return "No scans yet\\! Send me a chart screenshot to get started\\."
	}
	var b strings.Builder
	b.WriteString("📜 *Your last scans*\n\n")
	for i, s := range scans {
		line := fmt.Sprintf("%d. %s · %s · %s",
			i+1, s.Verdict.Token, s.Verdict.Action, s.CreatedAt.UTC().Format("Jan 02 15:04"))
		b.WriteString(fmt.Sprintf("%s %s %s\n", actionEmoji(s.Verdict.Action), trendEmoji(s.Verdict.Trend), Sanitize(line)))
	}
	return b.String()
}

func rankBadge(rank int) string {
	switch rank {
	case 1:
		return "🥇"
	case 2:
		return "🥈"
	case 3:
		return "🥉"
	default:
		return fmt.Sprintf("%d\\.", rank)
	}
}

func formatLeaderboard(entries []*entity.LeaderboardEntry) string {
	if len(entries) == 0 {
		return "🏆 No scans yet\\. Be the first on the board\\!"
	}
	var b strings.Builder
	b.WriteString("🏆 *Top scanners*\n\n")
	for _, e := range entries {
		b.WriteString(fmt.Sprintf("%s %s · %d scans\n", rankBadge(e.Rank), Sanitize(e.DisplayName()), e.TotalScans))
	}
	return b.String()
}

func referralLink(botName, code string) string {
	return fmt.Sprintf("https://t.me/%s?start=%s", botName, code)
}

func formatReferral(s *entity.Summary, link string, refereeBonus, referrerBonus int) string {
	return fmt.Sprintf("🤝 *Invite friends*\n\n"+
		"Your friend gets %d bonus scans, you get %d for every friend who joins\\.\n\n"+
		"Your link:\n`%s`\n\n"+
		"Friends joined: %d\nBonus earned: %d scans",
		refereeBonus, referrerBonus, link, s.Referrals, s.Referrals*referrerBonus)
}

func premiumText(days int, stars int64) string {
	return fmt.Sprintf("💎 *Premium*\n\n"+
		"Unlimited chart scans for %d days\\.\n"+
		"No daily limit, no credits to count\\.\n\n"+
		"Price: %d ⭐", days, stars)
}

func buyText(scans int, stars int64) string {
	return fmt.Sprintf("🔋 *Refill scans*\n\n"+
		"\\+%d bonus scans for %d ⭐\\.\n"+
		"Bonus scans never expire and are used after your free ones\\.", scans, stars)
}

func formatStats(st *entity.Stats) string {
	return fmt.Sprintf("📈 *Stats*\n\n"+
		"Accounts: %d\nPremium active: %d\nScans today: %d\nScans total: %d",
		st.Accounts, st.PremiumActive, st.ScansToday, st.TotalScans)
}
