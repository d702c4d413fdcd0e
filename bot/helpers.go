package bot

import (
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"unicode/utf8"

	"chartscan/lib/sl"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

// Telegram rejects longer message texts.
const maxMessageLength = 4096

func (t *TgBot) plainResponse(chatId int64, text string) {
	if text == "" {
		t.log.With("id", chatId).Debug("empty message")
		return
	}

	for _, part := range splitMessage(text, maxMessageLength) {
		_, err := t.api.SendMessage(chatId, part, &tgbotapi.SendMessageOpts{
			ParseMode: "MarkdownV2",
		})
		if err != nil {
			t.log.With(slog.Int64("id", chatId)).Warn("sending message", sl.Err(err))
			_, err = t.api.SendMessage(chatId, part, &tgbotapi.SendMessageOpts{})
			if err != nil {
				t.log.With(slog.Int64("id", chatId)).Error("sending safe message", sl.Err(err))
			}
		}
	}
}

// sendWithKeyboard sends a message with an inline keyboard attached.
func (t *TgBot) sendWithKeyboard(chatId int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	if text == "" {
		return
	}
	_, err := t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
		ParseMode:   "MarkdownV2",
		ReplyMarkup: keyboard,
	})
	if err != nil {
		t.log.With(slog.Int64("id", chatId)).Warn("sending message with keyboard", sl.Err(err))
		// Fallback: try without markdown
		_, err = t.api.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
			ReplyMarkup: keyboard,
		})
		if err != nil {
			t.log.With(slog.Int64("id", chatId)).Error("sending message with keyboard fallback", sl.Err(err))
		}
	}
}

func Sanitize(input string) string {
	const reservedChars = "\\_*[]()~`>#+-=|{}.!"
	var b strings.Builder
	b.Grow(len(input))
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			b.WriteRune('\\')
		}
		b.WriteRune(char)
	}
	return b.String()
}

// splitMessage cuts text into parts of at most maxLen bytes, preferring line
// breaks. A part never ends inside a UTF-8 sequence or between a MarkdownV2
// backslash and the character it escapes.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var parts []string
	for len(text) > maxLen {
		cutAt := strings.LastIndex(text[:maxLen], "\n") + 1
		if cutAt <= 0 {
			cutAt = safeCut(text, maxLen)
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	if len(text) > 0 {
		parts = append(parts, text)
	}
	return parts
}

func safeCut(text string, at int) int {
	cut := at
	for cut > 0 && !utf8.RuneStart(text[cut]) {
		cut--
	}
	slashes := 0
	for i := cut - 1; i >= 0 && text[i] == '\\'; i-- {
		slashes++
	}
	if slashes%2 == 1 {
		cut--
	}
	if cut <= 0 {
		return at
	}
	return cut
}

// parseAdminArgs reads "/cmd <user_id> <n>" with a positive n.
func parseAdminArgs(text string) (int64, int, error) {
	args := strings.Fields(text)
	if len(args) != 3 {
		return 0, 0, fmt.Errorf("expected two arguments")
	}
	userId, err := strconv.ParseInt(strings.TrimPrefix(args[1], "#"), 10, 64)
	if err != nil || userId <= 0 {
		return 0, 0, fmt.Errorf("invalid user id %q", args[1])
	}
	n, err := strconv.Atoi(args[2])
	if err != nil || n <= 0 {
		return 0, 0, fmt.Errorf("invalid number %q", args[2])
	}
	return userId, n, nil
}

func isPlainText(msg *tgbotapi.Message) bool {
	return msg.Text != "" && !strings.HasPrefix(msg.Text, "/")
}

// NotifyAdmins sends a MarkdownV2 text to every configured admin.
func (t *TgBot) NotifyAdmins(msg string) {
	for _, id := range t.config.Admins {
		t.plainResponse(id, msg)
	}
}

// reportError logs the error, notifies admins with details, and sends a neutral message to the user.
func (t *TgBot) reportError(chatId int64, command string, err error) {
	t.log.Error("bot command failed",
		slog.String("command", command),
		sl.User(chatId),
		sl.Err(err),
	)
	t.NotifyAdmins(fmt.Sprintf(
		"Command `%s` failed\nUser: `%d`\nError: `%s`",
		Sanitize(command), chatId, Sanitize(err.Error()),
	))
	t.plainResponse(chatId, "Something went wrong\\. Please try again later\\.")
}
