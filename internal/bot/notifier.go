package bot

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Notifier pushes statements to registered chats. Unlike Service it
// never polls for updates, so the worker can use it next to email
// delivery without owning the command loop.
type Notifier struct {
	api *tgbotapi.BotAPI
}

func NewNotifier(token string) (*Notifier, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("connect Telegram: %w", err)
	}
	return &Notifier{api: api}, nil
}

// SendStatement delivers a rendered statement as a Markdown code block.
func (n *Notifier) SendStatement(chatID int64, title, table string) error {
	msg := tgbotapi.NewMessage(chatID, fmt.Sprintf("%s\n```\n%s```", title, table))
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("send statement to chat %d: %w", chatID, err)
	}
	return nil
}
