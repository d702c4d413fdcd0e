// Package analyzer talks to the chart vision service.
package analyzer

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"chartscan/entity"
	"chartscan/internal/config"
	"chartscan/lib/sl"
)

var (
	ErrNotConfigured = errors.New("analyzer is not configured")
	ErrBadResponse   = errors.New("analyzer returned an unreadable verdict")
)

const unknown = "Unknown"

type Client struct {
	hc      *http.Client
	baseURL string
	apiKey  string
	log     *slog.Logger
}

func NewClient(conf config.Analyzer, logger *slog.Logger) *Client {
	timeout := time.Duration(conf.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		hc:      &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(conf.URL, "/"),
		apiKey:  conf.ApiKey,
		log:     logger.With(sl.Module("analyzer")),
	}
}

type request struct {
	Image    string `json:"image"`
	MimeType string `json:"mime_type"`
}

// wire is the loose JSON the model produces.
type wire struct {
	Token         string          `json:"token"`
	Ticker        string          `json:"ticker"`
	Contract      string          `json:"contract_address"`
	Price         any             `json:"current_price"`
	Timeframe     string          `json:"timeframe"`
	Trend         string          `json:"trend"`
	Action        string          `json:"action"`
	Confidence    json.RawMessage `json:"confidence"`
	RiskLevel     string          `json:"risk_level"`
	ChartPatterns []string        `json:"chart_patterns"`
	Support       []any           `json:"support_levels"`
	Resistance    []any           `json:"resistance_levels"`
	Verdict       string          `json:"verdict"`
}

// Analyze sends the chart image and returns the parsed verdict.
func (c *Client) Analyze(ctx context.Context, image []byte, mimeType string) (*entity.Verdict, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}
	log := c.log.With(slog.Int("size", len(image)), slog.String("mime", mimeType))

	status := "ERROR"
	t1 := time.Now()
	defer func() {
		log.Debug("analyzer request completed",
			slog.String("duration", fmt.Sprintf("%.3fms", float64(time.Since(t1))/float64(time.Millisecond))),
			slog.String("status", status))
	}()

	data, err := json.Marshal(request{
		Image:    base64.StdEncoding.EncodeToString(image),
		MimeType: mimeType,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("analyzer request: %w", err)
	}
	defer resp.Body.Close()
	status = resp.Status
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read analyzer response: %w", err)
	}
	if resp.StatusCode >= 300 {
		log.With(slog.String("body", string(body))).Warn("analyzer returned error")
		return nil, fmt.Errorf("analyzer %s", resp.Status)
	}
	return ParseVerdict(body)
}

var fence = regexp.MustCompile("```(?:json)?\\s*([\\s\\S]*?)\\s*```")
var trailingComma = regexp.MustCompile(`,\s*([}\]])`)

// ParseVerdict accepts the model output with or without a markdown code
// fence, fills missing required fields with "Unknown" and clamps
// confidence to 1..10.
func ParseVerdict(text []byte) (*entity.Verdict, error) {
	s := strings.TrimSpace(string(text))
	if m := fence.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	s = trailingComma.ReplaceAllString(s, "$1")

	var w wire
	if err := json.Unmarshal([]byte(s), &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadResponse, err)
	}

	v := &entity.Verdict{
		Token:      orUnknown(w.Token),
		Ticker:     w.Ticker,
		Contract:   orEmpty(w.Contract),
		Price:      priceText(w.Price),
		Timeframe:  w.Timeframe,
		Trend:      orUnknown(w.Trend),
		Action:     orUnknown(w.Action),
		Confidence: confidence(w.Confidence),
		RiskLevel:  orUnknown(w.RiskLevel),
		Support:    levels(w.Support),
		Resistance: levels(w.Resistance),
		Summary:    orUnknown(w.Verdict),
	}
	if len(w.ChartPatterns) > 0 {
		v.Pattern = strings.Join(w.ChartPatterns, ", ")
	}
	return v, nil
}

func orUnknown(s string) string {
	if strings.TrimSpace(s) == "" {
		return unknown
	}
	return s
}

// orEmpty drops the placeholders the model writes for absent values.
func orEmpty(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "null", "none", "n/a", "unknown":
		return ""
	}
	return strings.TrimSpace(s)
}

func priceText(v any) string {
	switch p := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(p, 'f', -1, 64)
	default:
		return orEmpty(fmt.Sprint(p))
	}
}

func confidence(raw json.RawMessage) int {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 5
	}
	return min(max(int(n), 1), 10)
}

func levels(in []any) []string {
	var out []string
	for _, l := range in {
		if l == nil {
			continue
		}
		out = append(out, fmt.Sprint(l))
	}
	return out
}
