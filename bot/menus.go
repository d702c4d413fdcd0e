package bot

import (
	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

// Command lists for Telegram's menu button (the "/" icon in the chat input).
// Admins get their own list through BotCommandScopeChat.

var commandsUser = []tgbotapi.BotCommand{
	{Command: "start", Description: "Main menu"},
	{Command: "energy", Description: "Scans left today"},
	{Command: "history", Description: "Your last scans"},
	{Command: "refer", Description: "Invite friends for bonus scans"},
	{Command: "premium", Description: "Unlimited scans"},
	{Command: "buy", Description: "Refill scans"},
	{Command: "leaderboard", Description: "Top scanners"},
	{Command: "help", Description: "How to scan"},
}

var commandsAdmin = append(append([]tgbotapi.BotCommand{}, commandsUser...),
	tgbotapi.BotCommand{Command: "grant", Description: "Grant bonus scans"},
	tgbotapi.BotCommand{Command: "addpremium", Description: "Grant premium days"},
	tgbotapi.BotCommand{Command: "stats", Description: "Usage statistics"},
)

func (t *TgBot) setDefaultCommands() {
	_, err := t.api.SetMyCommands(commandsUser, &tgbotapi.SetMyCommandsOpts{
		Scope: tgbotapi.BotCommandScopeDefault{},
	})
	if err != nil {
		t.log.Warn("setting default commands", "error", err)
	}
}

// setChatCommands pushes the admin menu to admin chats; others keep the default.
func (t *TgBot) setChatCommands(chatId int64) {
	if !t.isAdmin(chatId) {
		return
	}
	_, err := t.api.SetMyCommands(commandsAdmin, &tgbotapi.SetMyCommandsOpts{
		Scope: tgbotapi.BotCommandScopeChat{ChatId: chatId},
	})
	if err != nil {
		t.log.Warn("setting admin commands", "chat_id", chatId, "error", err)
	}
}

func (t *TgBot) syncAdminMenus() {
	for _, id := range t.config.Admins {
		t.setChatCommands(id)
	}
}
