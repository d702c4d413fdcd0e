package logger

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	messages []string
}

func (r *recordingNotifier) NotifyAdmins(msg string) {
	r.messages = append(r.messages, msg)
}

func TestTelegramHandlerForwardsAboveLevel(t *testing.T) {
	var buf bytes.Buffer
	base := slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})
	n := &recordingNotifier{}
	log := slog.New(NewTelegramHandler(base, n, slog.LevelError))

	log.With(slog.String("mod", "ledger")).Info("scan denied")
	log.With(slog.String("mod", "ledger")).Error("apply payment", slog.String("error", "boom."))

	assert.Contains(t, buf.String(), "scan denied")
	assert.Contains(t, buf.String(), "apply payment")

	require.Len(t, n.messages, 1)
	assert.Contains(t, n.messages[0], "*ERROR* `apply payment`")
	assert.Contains(t, n.messages[0], "mod: ledger")
	assert.Contains(t, n.messages[0], "boom\\.")
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `a\_b\.c\!`, escape("a_b.c!"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelWarn, ParseLevel("WARN"))
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelError, ParseLevel("bogus"))
}
