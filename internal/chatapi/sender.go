package chatapi

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

const maxSendBytes = 4096

// Sender posts agent replies to the chat API's sendMessage endpoint.
// The only second attempt is one plain-text resend after a failed
// Markdown send; if that fails too, the reply is logged and dropped.
type Sender struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

func NewSender(token string, chatID int64, logger *zap.Logger) (*Sender, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	return &Sender{bot: bot, chatID: chatID, logger: logger}, nil
}

// Typing posts a transient typing indicator, shown while the agent
// loop is still running for this chat. A failed send is logged and
// dropped; a missed indicator is cosmetic, never worth retrying.
func (s *Sender) Typing() {
	action := tgbotapi.NewChatAction(s.chatID, tgbotapi.ChatTyping)
	if _, err := s.bot.Send(action); err != nil {
		s.logger.Debug("typing indicator failed", zap.Error(err))
	}
}

func (s *Sender) Send(text string) {
	if len(text) > maxSendBytes {
		text = text[:maxSendBytes]
	}
	msg := tgbotapi.NewMessage(s.chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := s.bot.Send(msg); err != nil {
		// Markdown parse failures are common on arbitrary tool output;
		// fall back to plain text once before giving up on this send.
		plain := tgbotapi.NewMessage(s.chatID, text)
		if _, err2 := s.bot.Send(plain); err2 != nil {
			s.logger.Warn("chat send failed", zap.Error(err2))
		}
	}
}
