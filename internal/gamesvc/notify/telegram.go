// Package notify delivers participant notifications over Telegram.
package notify

import (
	"context"
	"fmt"

	"github.com/avvvet/bingo-rounds/internal/gamesvc/engine"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// Sender is the subset of the bot api used here.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Directory resolves a participant to their chat.
type Directory interface {
	FindParticipant(ctx context.Context, id int64) (*models.Participant, error)
}

// TelegramNotifier sends a direct message to the participant's linked chat.
type TelegramNotifier struct {
	bot Sender
	dir Directory
}

var _ engine.Notifier = (*TelegramNotifier)(nil)

// NewTelegramNotifier creates a new Telegram notifier
func NewTelegramNotifier(botToken string, dir Directory) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}
	log.Infof("telegram bot authorized as %s", bot.Self.UserName)
	return NewWithSender(bot, dir), nil
}

func NewWithSender(bot Sender, dir Directory) *TelegramNotifier {
	return &TelegramNotifier{bot: bot, dir: dir}
}

func (tn *TelegramNotifier) Notify(ctx context.Context, participantID int64, eventType engine.EventType, payload any) error {
	if tn == nil || tn.bot == nil {
		return nil
	}

	p, err := tn.dir.FindParticipant(ctx, participantID)
	if err != nil {
		return fmt.Errorf("lookup participant %d: %w", participantID, err)
	}
	if p == nil || p.TelegramChatID == 0 {
		return nil
	}

	text, ok := Format(eventType, payload)
	if !ok {
		log.Debugf("no telegram template for %s", eventType)
		return nil
	}

	msg := tgbotapi.NewMessage(p.TelegramChatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := tn.bot.Send(msg); err != nil {
		return fmt.Errorf("send telegram message to chat %d: %w", p.TelegramChatID, err)
	}
	return nil
}

// Format renders the message text for a participant notification.
func Format(eventType engine.EventType, payload any) (string, bool) {
	switch ev := payload.(type) {
	case engine.CardPurchased:
		return fmt.Sprintf("🎟 Card *#%d* purchased for round *%d*. Pot is now %s.",
			ev.CardNumber, ev.RoundID, ev.NewPot.StringFixed(2)), true
	case engine.WinnerDeclared:
		return fmt.Sprintf("🏆 BINGO! Card *#%d* won round *%d*. %s has been credited to your balance.",
			ev.Card.CardNumber, ev.RoundID, ev.Winnings.StringFixed(2)), true
	case engine.CardRefunded:
		return fmt.Sprintf("↩️ Round *%d* was cancelled. %s for card *#%d* has been refunded.",
			ev.RoundID, ev.Amount.StringFixed(2), ev.CardNumber), true
	}
	return "", false
}
