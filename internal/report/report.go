// Package report sends the daily usage summary to the bot admins.
package report

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"chartscan/bot"
	"chartscan/entity"
	"chartscan/internal/config"
	"chartscan/lib/sl"

	"github.com/google/uuid"
	"github.com/roylee0704/gron"
	"github.com/roylee0704/gron/xtime"
)

const topLimit = 3

type Source interface {
	Stats(ctx context.Context) (*entity.Stats, error)
	Leaderboard(ctx context.Context, limit int) ([]*entity.LeaderboardEntry, error)
}

type Notifier interface {
	NotifyAdmins(msg string)
}

type Reporter struct {
	source   Source
	notifier Notifier
	at       string
	loc      *time.Location
	cron     *gron.Cron
	log      *slog.Logger
	mu       sync.Mutex
	prev     *entity.Stats
}

func New(conf config.Report, source Source, notifier Notifier, log *slog.Logger) *Reporter {
	return &Reporter{
		source:   source,
		notifier: notifier,
		at:       conf.DailyAt,
		loc:      time.UTC,
		cron:     gron.New(),
		log:      log.With(sl.Module("report")),
	}
}

// Start schedules Send once a day at the configured "hh:mm" (local server time).
func (r *Reporter) Start() {
	r.cron.AddFunc(gron.Every(1*xtime.Day).At(r.at), r.Send)
	r.cron.Start()
	r.log.With(slog.String("at", r.at)).Info("daily report scheduled")
}

// SetLocation sets the zone the report date is rendered in, normally the
// ledger's scan-day zone.
func (r *Reporter) SetLocation(loc *time.Location) {
	if loc != nil {
		r.loc = loc
	}
}

func (r *Reporter) Stop() {
	r.cron.Stop()
}

func (r *Reporter) Send() {
	log := r.log.With(slog.String("run_id", uuid.NewString()))
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stats, err := r.source.Stats(ctx)
	if err != nil {
		log.With(sl.Err(err)).Error("report stats")
		return
	}
	top, err := r.source.Leaderboard(ctx, topLimit)
	if err != nil {
		log.With(sl.Err(err)).Warn("report leaderboard")
	}

	r.mu.Lock()
	prev := r.prev
	r.prev = stats
	r.mu.Unlock()

	r.notifier.NotifyAdmins(Format(time.Now().In(r.loc), stats, prev, top))
	log.With(
		slog.Int64("accounts", stats.Accounts),
		slog.Int64("scans_today", stats.ScansToday),
	).Info("daily report sent")
}

// Format renders the report in MarkdownV2. prev is the previous report's
// stats, or nil on the first run after a restart.
func Format(day time.Time, st, prev *entity.Stats, top []*entity.LeaderboardEntry) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 *Daily report* %s\n\n", bot.Sanitize(day.Format("2006-01-02"))))
	b.WriteString(fmt.Sprintf("Accounts: %d", st.Accounts))
	if prev != nil {
		b.WriteString(bot.Sanitize(fmt.Sprintf(" (%+d)", st.Accounts-prev.Accounts)))
	}
	b.WriteString(fmt.Sprintf("\nPremium active: %d\nScans today: %d\nScans total: %d\n",
		st.PremiumActive, st.ScansToday, st.TotalScans))
	if len(top) > 0 {
		b.WriteString("\n*Top scanners*\n")
		for _, e := range top {
			b.WriteString(fmt.Sprintf("%d\\. %s · %d\n", e.Rank, bot.Sanitize(e.DisplayName()), e.TotalScans))
		}
	}
	return b.String()
}
