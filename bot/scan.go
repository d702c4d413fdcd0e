package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"chartscan/impl/core"
	"chartscan/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// Bot API downloads are capped at 20 MB.
const maxImageSize = 20 << 20

func (t *TgBot) onPhoto(b *tgbotapi.Bot, ctx *ext.Context) error {
	photos := ctx.EffectiveMessage.Photo
	if len(photos) == 0 {
		return nil
	}
	// sizes are ordered from the smallest, the last one is the original
	t.scan(b, ctx, photos[len(photos)-1].FileId, "image/jpeg")
	return nil
}

func (t *TgBot) onDocument(b *tgbotapi.Bot, ctx *ext.Context) error {
	doc := ctx.EffectiveMessage.Document
	if doc == nil {
		return nil
	}
	if !strings.HasPrefix(doc.MimeType, "image/") {
		t.plainResponse(ctx.EffectiveChat.Id, "Please send the chart as an image \\(PNG or JPG\\)\\.")
		return nil
	}
	t.scan(b, ctx, doc.FileId, doc.MimeType)
	return nil
}

func (t *TgBot) scan(b *tgbotapi.Bot, ctx *ext.Context, fileId, mime string) {
	chatId := ctx.EffectiveChat.Id
	userId := ctx.EffectiveUser.Id
	log := t.log.With(sl.User(userId), slog.String("file_id", fileId))

	_, _ = b.SendChatAction(chatId, "typing", nil)

	c, cancel := context.WithTimeout(context.Background(), scanTimeout)
	defer cancel()

	result, err := t.core.ScanChart(c, userId, fileId, t.fetcher(b, fileId, mime))
	switch {
	case errors.Is(err, core.ErrAnalysisFailed):
		log.With(sl.Err(err)).Warn("analysis failed")
		t.plainResponse(chatId, "😕 I could not read this chart\\. Try a clearer screenshot with the price axis visible\\.")
	case err != nil:
		t.reportError(chatId, "scan", err)
	case !result.Decision.Admitted:
		summary, err := t.core.AccountSummary(c, userId)
		if err != nil {
			t.reportError(chatId, "scan summary", err)
			return
		}
		t.sendWithKeyboard(chatId, outOfScansText(summary, time.Now()), energyKeyboard())
	default:
		t.plainResponse(chatId, formatVerdict(result.Scan.Verdict)+"\n\n"+remainingText(result))
		if result.Market != nil {
			t.plainResponse(chatId, formatMarket(result.Market))
		}
		if len(result.Card) > 0 {
			t.sendCard(chatId, result)
		}
	}
}

func (t *TgBot) sendCard(chatId int64, result *core.ScanResult) {
	photo := tgbotapi.InputFileByReader("scan.png", bytes.NewReader(result.Card))
	_, err := t.api.SendPhoto(chatId, photo, &tgbotapi.SendPhotoOpts{
		Caption:   cardCaption(result.Scan.Verdict),
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		t.log.With(slog.Int64("id", chatId), sl.Err(err)).Warn("sending report card")
	}
}

func remainingText(result *core.ScanResult) string {
	d := result.Decision
	if d.PremiumUntil != nil && d.PremiumUntil.After(time.Now()) {
		return "💎 Premium: unlimited scans"
	}
	return fmt.Sprintf("⚡ Scans left: %d free, %d bonus", d.RemainingFree, d.BonusCredits)
}

// fetcher downloads a Telegram file once the scan has been admitted.
func (t *TgBot) fetcher(b *tgbotapi.Bot, fileId, mime string) core.ImageFetcher {
	return func(ctx context.Context) ([]byte, string, error) {
		file, err := b.GetFile(fileId, nil)
		if err != nil {
			return nil, "", fmt.Errorf("get file: %w", err)
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.URL(b, nil), nil)
		if err != nil {
			return nil, "", fmt.Errorf("create request: %w", err)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return nil, "", fmt.Errorf("download file: %w", err)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, "", fmt.Errorf("download file: status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageSize))
		if err != nil {
			return nil, "", fmt.Errorf("read file: %w", err)
		}
		return data, mime, nil
	}
}
