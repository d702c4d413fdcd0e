package report

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
	"chartscan/internal/config"
)

type fakeSource struct {
	stats    *entity.Stats
	statsErr error
	top      []*entity.LeaderboardEntry
}

func (f *fakeSource) Stats(context.Context) (*entity.Stats, error) {
	return f.stats, f.statsErr
}

func (f *fakeSource) Leaderboard(context.Context, int) ([]*entity.LeaderboardEntry, error) {
	return f.top, nil
}

type captureNotifier struct{ sent []string }

func (c *captureNotifier) NotifyAdmins(msg string) { c.sent = append(c.sent, msg) }

func newReporter(src Source, n Notifier) *Reporter {
	return New(config.Report{DailyAt: "20:59"}, src, n, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFormat(t *testing.T) {
	day := time.Date(2026, 5, 4, 20, 59, 0, 0, time.UTC)
	st := &entity.Stats{Accounts: 12, PremiumActive: 2, ScansToday: 30, TotalScans: 400}
	top := []*entity.LeaderboardEntry{{Rank: 1, Username: "bob_1", TotalScans: 50}}

	text := Format(day, st, nil, top)
	assert.Contains(t, text, `2026\-05\-04`)
	assert.Contains(t, text, "Accounts: 12\n")
	assert.Contains(t, text, "Scans today: 30")
	assert.Contains(t, text, `1\. @bob\_1 · 50`)

	text = Format(day, st, &entity.Stats{Accounts: 9}, nil)
	assert.Contains(t, text, `Accounts: 12 \(\+3\)`)
	assert.NotContains(t, text, "Top scanners")
}

func TestSendTracksPrevious(t *testing.T) {
	src := &fakeSource{stats: &entity.Stats{Accounts: 5}}
	n := &captureNotifier{}
	r := newReporter(src, n)

	r.Send()
	src.stats = &entity.Stats{Accounts: 7}
	r.Send()

	require.Len(t, n.sent, 2)
	assert.NotContains(t, n.sent[0], `\(`)
	assert.Contains(t, n.sent[1], `\(\+2\)`)
}

func TestSendSkipsOnError(t *testing.T) {
	n := &captureNotifier{}
	r := newReporter(&fakeSource{statsErr: errors.New("db down")}, n)
	r.Send()
	assert.Empty(t, n.sent)
}

func TestSendUsesScanDayZone(t *testing.T) {
	n := &captureNotifier{}
	r := newReporter(&fakeSource{stats: &entity.Stats{}}, n)
	loc := time.FixedZone("UTC+14:00", 14*3600)
	r.SetLocation(loc)

	before := time.Now().In(loc).Format("2006-01-02")
	r.Send()
	after := time.Now().In(loc).Format("2006-01-02")

	require.Len(t, n.sent, 1)
	header := strings.SplitN(n.sent[0], "\n", 2)[0]
	assert.True(t,
		strings.Contains(header, strings.ReplaceAll(before, "-", `\-`)) ||
			strings.Contains(header, strings.ReplaceAll(after, "-", `\-`)),
		header)
}
