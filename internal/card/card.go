// Package card draws the shareable PNG report for a scan.
package card

import (
	"bytes"
	"fmt"
	"image/color"
	"math"
	"strings"

	"chartscan/entity"
	"chartscan/internal/config"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goregular"
)

const (
	Width        = 800
	HeightPlain  = 680
	HeightMarket = 870
	padding      = 30.0
)

var (
	bgTop      = color.RGBA{8, 12, 21, 255}
	bgBottom   = color.RGBA{12, 18, 32, 255}
	header     = color.RGBA{12, 16, 28, 255}
	accent     = color.RGBA{0, 245, 160, 255}
	accent2    = color.RGBA{0, 217, 245, 255}
	red        = color.RGBA{255, 71, 87, 255}
	green      = color.RGBA{0, 230, 118, 255}
	yellow     = color.RGBA{255, 215, 0, 255}
	orange     = color.RGBA{255, 152, 0, 255}
	white      = color.RGBA{240, 242, 245, 255}
	lightGray  = color.RGBA{180, 190, 200, 255}
	gray       = color.RGBA{100, 115, 130, 255}
	panel      = color.RGBA{16, 24, 40, 255}
	panelEdge  = color.RGBA{30, 45, 65, 255}
	trackColor = color.RGBA{25, 35, 50, 255}
)

type Renderer struct {
	brand   string
	handle  string
	regular *truetype.Font
	bold    *truetype.Font
}

func New(conf config.Card) (*Renderer, error) {
	regular, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse regular font: %w", err)
	}
	bold, err := truetype.Parse(gobold.TTF)
	if err != nil {
		return nil, fmt.Errorf("parse bold font: %w", err)
	}
	brand := conf.Brand
	if brand == "" {
		brand = "CHART SCANNER"
	}
	return &Renderer{brand: brand, handle: conf.Handle, regular: regular, bold: bold}, nil
}

// faces are created per render: a truetype face caches glyphs and is not
// safe for concurrent use.
type faces struct {
	r *Renderer
}

func (f faces) regular(size float64) font.Face {
	return truetype.NewFace(f.r.regular, &truetype.Options{Size: size})
}

func (f faces) bold(size float64) font.Face {
	return truetype.NewFace(f.r.bold, &truetype.Options{Size: size})
}

// Render draws the card for scan; md adds the live market panel when set.
func (r *Renderer) Render(scan *entity.ScanRecord, md *entity.MarketData) ([]byte, error) {
	height := HeightPlain
	if md != nil {
		height = HeightMarket
	}
	dc := gg.NewContext(Width, height)
	ft := faces{r: r}
	v := scan.Verdict

	bg := gg.NewLinearGradient(0, 0, 0, float64(height))
	bg.AddColorStop(0, bgTop)
	bg.AddColorStop(1, bgBottom)
	dc.SetFillStyle(bg)
	dc.DrawRectangle(0, 0, Width, float64(height))
	dc.Fill()

	// header
	dc.SetColor(header)
	dc.DrawRectangle(0, 0, Width, 60)
	dc.Fill()
	accentLine(dc, 58, 0, Width, 2)
	dc.SetFontFace(ft.bold(24))
	dc.SetColor(accent)
	dc.DrawStringAnchored(r.brand, padding, 10, 0, 1)
	dc.SetFontFace(ft.regular(11))
	dc.SetColor(gray)
	dc.DrawStringAnchored(scan.CreatedAt.UTC().Format("Jan 02, 2006  15:04 UTC"), Width-padding, 30, 1, 0.5)

	// token and price
	y := 76.0
	dc.SetFontFace(ft.bold(32))
	dc.SetColor(white)
	dc.DrawStringAnchored(v.Token, padding, y, 0, 1)
	tokenW, _ := dc.MeasureString(v.Token)
	if v.Ticker != "" {
		dc.SetFontFace(ft.bold(18))
		dc.SetColor(gray)
		dc.DrawStringAnchored("$"+strings.TrimPrefix(v.Ticker, "$"), padding+tokenW+10, y+10, 0, 1)
	}
	if v.Price != "" {
		dc.SetFontFace(ft.bold(24))
		dc.SetColor(white)
		dc.DrawStringAnchored(v.Price, Width-padding, y+4, 1, 1)
	}
	y += 44
	if v.Timeframe != "" {
		dc.SetFontFace(ft.regular(13))
		dc.SetColor(gray)
		dc.DrawStringAnchored(v.Timeframe, padding, y, 0, 1)
	}
	y += 24

	// trend, action and risk badges
	accentLine(dc, y, padding, Width-padding, 1)
	y += 12
	bw := (Width - padding*2 - 20) / 3
	badges := []struct{ value, label string }{
		{v.Trend, "Trend"},
		{v.Action, "Signal"},
		{v.RiskLevel, "Risk Level"},
	}
	for i, b := range badges {
		bx := padding + float64(i)*(bw+10)
		c := badgeColor(i, b.value)
		roundedPanel(dc, bx, y, bw, 64, 10)
		dc.SetColor(c)
		dc.DrawRoundedRectangle(bx, y, 4, 64, 2)
		dc.Fill()
		dc.SetFontFace(ft.bold(18))
		dc.DrawStringAnchored(strings.ToUpper(b.value), bx+14, y+10, 0, 1)
		dc.SetFontFace(ft.regular(11))
		dc.SetColor(gray)
		dc.DrawStringAnchored(b.label, bx+14, y+40, 0, 1)
	}
	y += 80

	// confidence
	conf := min(max(v.Confidence, 0), 10)
	cc := confidenceColor(conf)
	dc.SetFontFace(ft.bold(15))
	dc.SetColor(lightGray)
	dc.DrawStringAnchored("Confidence", padding, y, 0, 1)
	dc.SetColor(cc)
	dc.DrawStringAnchored(fmt.Sprintf("%d/10", conf), Width-padding, y, 1, 1)
	y += 22
	track := Width - padding*2
	dc.SetColor(trackColor)
	dc.DrawRoundedRectangle(padding, y, track, 8, 4)
	dc.Fill()
	dc.SetColor(cc)
	dc.DrawRoundedRectangle(padding, y, math.Max(4, track*float64(conf)/10), 8, 4)
	dc.Fill()
	y += 20

	// levels and patterns
	accentLine(dc, y, padding, Width-padding, 1)
	y += 10
	col2 := padding + (Width-padding*2-16)/2 + 16
	column(dc, ft, padding, y, "SUPPORT", green, joinFirst(v.Support, 3, " / ", "-"))
	column(dc, ft, padding, y+34, "RESISTANCE", red, joinFirst(v.Resistance, 3, " / ", "-"))
	column(dc, ft, col2, y, "PATTERNS", accent2, truncate(orDefault(v.Pattern, "None"), 40))
	column(dc, ft, col2, y+34, "TIMEFRAME", accent2, orDefault(v.Timeframe, "N/A"))
	y += 72

	// verdict
	roundedPanel(dc, padding, y, Width-padding*2, 50, 8)
	dc.SetFontFace(ft.regular(13))
	dc.SetColor(lightGray)
	lines := dc.WordWrap(orDefault(v.Summary, "No verdict available"), Width-padding*2-24)
	for i, line := range lines[:min(len(lines), 2)] {
		dc.DrawStringAnchored(line, padding+12, y+8+float64(i)*17, 0, 1)
	}
	y += 62

	if md != nil {
		marketPanel(dc, ft, y, md)
	}

	// footer
	fy := float64(height) - 40
	accentLine(dc, fy, 0, Width, 2)
	dc.SetFontFace(ft.bold(15))
	dc.SetColor(accent)
	dc.DrawStringAnchored(r.brand, padding, fy+10, 0, 1)
	brandW, _ := dc.MeasureString(r.brand)
	if r.handle != "" {
		dc.SetColor(accent2)
		dc.DrawStringAnchored(r.handle, Width-padding, fy+10, 1, 1)
	}
	dc.SetFontFace(ft.regular(10))
	dc.SetColor(gray)
	dc.DrawStringAnchored("•  Not financial advice  •  DYOR", padding+brandW+12, fy+13, 0, 1)

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode card: %w", err)
	}
	return buf.Bytes(), nil
}

func marketPanel(dc *gg.Context, ft faces, y float64, md *entity.MarketData) {
	accentLine(dc, y, padding, Width-padding, 1)
	y += 10
	dc.SetFontFace(ft.bold(15))
	dc.SetColor(accent2)
	dc.DrawStringAnchored("LIVE MARKET DATA", padding, y, 0, 1)
	y += 22
	roundedPanel(dc, padding, y, Width-padding*2, 130, 10)

	cx, cx2 := padding+16, float64(Width/2+8)
	ry := y + 12
	stat(dc, ft, cx, ry, "Price", USD(md.PriceUSD))
	stat(dc, ft, cx2, ry, "Market Cap", USD(md.MarketCap))
	ry += 38
	stat(dc, ft, cx, ry, "Liquidity", USD(md.Liquidity))
	stat(dc, ft, cx2, ry, "24h Volume", USD(md.Volume24h))
	ry += 38

	px := cx
	for _, ch := range []struct {
		label string
		value float64
	}{{"1h", md.Change1h}, {"6h", md.Change6h}, {"24h", md.Change24h}} {
		dc.SetFontFace(ft.regular(10))
		dc.SetColor(gray)
		dc.DrawStringAnchored(ch.label, px, ry, 0, 1)
		dc.SetFontFace(ft.bold(15))
		dc.SetColor(changeColor(ch.value))
		dc.DrawStringAnchored(Percent(ch.value), px+26, ry, 0, 1)
		px += 120
	}
	ratio := md.BuyRatio()
	dc.SetFontFace(ft.regular(10))
	dc.SetColor(gray)
	dc.DrawStringAnchored("Buys", cx2+160, ry, 0, 1)
	dc.SetFontFace(ft.bold(15))
	dc.SetColor(changeColor(ratio - 50))
	dc.DrawStringAnchored(fmt.Sprintf("%.1f%%", ratio), cx2+160, ry+13, 0, 1)
	ry += 28

	dc.SetFontFace(ft.regular(11))
	dc.SetColor(gray)
	dc.DrawStringAnchored(fmt.Sprintf("%s  •  %s", ChainName(md.Chain), title(md.Dex)), cx, ry, 0, 1)
}

func stat(dc *gg.Context, ft faces, x, y float64, label, value string) {
	dc.SetFontFace(ft.regular(10))
	dc.SetColor(gray)
	dc.DrawStringAnchored(label, x, y, 0, 1)
	dc.SetFontFace(ft.bold(18))
	dc.SetColor(white)
	dc.DrawStringAnchored(value, x, y+13, 0, 1)
}

func column(dc *gg.Context, ft faces, x, y float64, label string, c color.Color, value string) {
	dc.SetFontFace(ft.regular(10))
	dc.SetColor(c)
	dc.DrawStringAnchored(label, x, y, 0, 1)
	dc.SetFontFace(ft.regular(13))
	dc.SetColor(white)
	dc.DrawStringAnchored(value, x, y+14, 0, 1)
}

func roundedPanel(dc *gg.Context, x, y, w, h, r float64) {
	dc.DrawRoundedRectangle(x, y, w, h, r)
	dc.SetColor(panel)
	dc.FillPreserve()
	dc.SetColor(panelEdge)
	dc.SetLineWidth(1)
	dc.Stroke()
}

func accentLine(dc *gg.Context, y, x0, x1, thickness float64) {
	g := gg.NewLinearGradient(x0, y, x1, y)
	g.AddColorStop(0, accent)
	g.AddColorStop(1, accent2)
	dc.SetFillStyle(g)
	dc.DrawRectangle(x0, y, x1-x0, thickness)
	dc.Fill()
}

func badgeColor(kind int, value string) color.Color {
	v := strings.ToUpper(strings.TrimSpace(value))
	switch kind {
	case 0:
		switch v {
		case "BULLISH":
			return green
		case "BEARISH":
			return red
		case "SIDEWAYS":
			return yellow
		}
	case 1:
		switch v {
		case "BUY":
			return green
		case "SELL":
			return red
		case "HOLD":
			return yellow
		case "WAIT":
			return lightGray
		}
	case 2:
		switch v {
		case "LOW":
			return green
		case "MEDIUM":
			return yellow
		case "HIGH":
			return orange
		case "EXTREME":
			return red
		}
	}
	return gray
}

func confidenceColor(n int) color.Color {
	switch {
	case n >= 7:
		return green
	case n >= 4:
		return yellow
	}
	return red
}

func changeColor(v float64) color.Color {
	if v >= 0 {
		return green
	}
	return red
}

func joinFirst(items []string, n int, sep, empty string) string {
	if len(items) == 0 {
		return empty
	}
	return strings.Join(items[:min(len(items), n)], sep)
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
