package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// Notifier delivers an already formatted MarkdownV2 text to the bot admins.
type Notifier interface {
	NotifyAdmins(msg string)
}

// TelegramHandler passes every record to the wrapped handler and forwards the
// ones at or above minLevel to the admins.
type TelegramHandler struct {
	handler  slog.Handler
	notifier Notifier
	minLevel slog.Level
	mu       *sync.Mutex
	attrs    []slog.Attr
	group    string
}

func NewTelegramHandler(handler slog.Handler, notifier Notifier, minLevel slog.Level) *TelegramHandler {
	return &TelegramHandler{
		handler:  handler,
		notifier: notifier,
		minLevel: minLevel,
		mu:       &sync.Mutex{},
	}
}

func (h *TelegramHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *TelegramHandler) Handle(ctx context.Context, record slog.Record) error {
	if err := h.handler.Handle(ctx, record); err != nil {
		return err
	}
	if record.Level < h.minLevel || h.notifier == nil {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifier.NotifyAdmins(h.format(record))
	return nil
}

func (h *TelegramHandler) format(record slog.Record) string {
	var sb strings.Builder
	name := record.Message
	if h.group != "" {
		name = h.group + "." + name
	}
	sb.WriteString(fmt.Sprintf("*%s* `%s`", record.Level.String(), escape(name)))

	write := func(attr slog.Attr) {
		if attr.Key == "error" {
			sb.WriteString(fmt.Sprintf("\n%s: ```error %s ```", attr.Key, escape(attr.Value.String())))
			return
		}
		sb.WriteString(escape(fmt.Sprintf("\n%s: %v", attr.Key, attr.Value)))
	}
	for _, attr := range h.attrs {
		write(attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		write(attr)
		return true
	})
	return sb.String()
}

func (h *TelegramHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	newAttrs = append(newAttrs, h.attrs...)
	newAttrs = append(newAttrs, attrs...)

	return &TelegramHandler{
		handler:  h.handler.WithAttrs(attrs),
		notifier: h.notifier,
		minLevel: h.minLevel,
		mu:       h.mu,
		attrs:    newAttrs,
		group:    h.group,
	}
}

func (h *TelegramHandler) WithGroup(name string) slog.Handler {
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}

	return &TelegramHandler{
		handler:  h.handler.WithGroup(name),
		notifier: h.notifier,
		minLevel: h.minLevel,
		mu:       h.mu,
		attrs:    h.attrs,
		group:    group,
	}
}

// escape applies the MarkdownV2 reserved-character escaping.
func escape(s string) string {
	const reserved = "\\_*[]()~`>#+-=|{}.!"
	var sb strings.Builder
	for _, r := range s {
		if strings.ContainsRune(reserved, r) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
