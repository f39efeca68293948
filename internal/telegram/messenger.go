package telegram

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"access_share_bot/internal/logging"
)

// botAPI is the slice of the bot client the messenger and router use,
// stubbed in tests.
type botAPI interface {
	Start(ctx context.Context)
	SendMessage(ctx context.Context, params *bot.SendMessageParams) (*models.Message, error)
	EditMessageText(ctx context.Context, params *bot.EditMessageTextParams) (*models.Message, error)
	BanChatMember(ctx context.Context, params *bot.BanChatMemberParams) (bool, error)
	CreateChatInviteLink(ctx context.Context, params *bot.CreateChatInviteLinkParams) (*models.ChatInviteLink, error)
	AnswerCallbackQuery(ctx context.Context, params *bot.AnswerCallbackQueryParams) (bool, error)
}

// Messenger adapts the bot client to the outbound surface the workflows
// expect. It is created before the bot and bound to it by NewClient, which
// breaks the construction cycle between workflows and transport.
type Messenger struct {
	api    botAPI
	logger *logrus.Entry
}

// NewMessenger constructs an unbound messenger. Calls fail until a Client
// binds it to a bot.
func NewMessenger(logger *logrus.Entry) *Messenger {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Messenger{logger: logger}
}

func (m *Messenger) bind(api botAPI) {
	m.api = api
}

// Send delivers a text message with optional reply markup.
func (m *Messenger) Send(ctx context.Context, chatID int64, text string, markup models.ReplyMarkup) error {
	if m == nil || m.api == nil {
		return errors.New("messenger is not bound to a bot")
	}

	_, err := m.api.SendMessage(ctx, &bot.SendMessageParams{
		ChatID:      chatID,
		Text:        text,
		ReplyMarkup: markup,
	})
	if err != nil {
		return fmt.Errorf("send message to %d: %w", chatID, err)
	}
	return nil
}

// Edit replaces the text and markup of an existing message.
func (m *Messenger) Edit(ctx context.Context, chatID int64, messageID int, text string, markup models.ReplyMarkup) error {
	if m == nil || m.api == nil {
		return errors.New("messenger is not bound to a bot")
	}

	_, err := m.api.EditMessageText(ctx, &bot.EditMessageTextParams{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ReplyMarkup: markup,
	})
	if err != nil {
		return fmt.Errorf("edit message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

// Ban removes a user from a chat until the given time, revoking their
// messages.
func (m *Messenger) Ban(ctx context.Context, chatID, userID int64, until time.Time) error {
	if m == nil || m.api == nil {
		return errors.New("messenger is not bound to a bot")
	}

	_, err := m.api.BanChatMember(ctx, &bot.BanChatMemberParams{
		ChatID:         chatID,
		UserID:         userID,
		UntilDate:      int(until.Unix()),
		RevokeMessages: true,
	})
	if err != nil {
		return fmt.Errorf("ban %d in %d: %w", userID, chatID, err)
	}
	return nil
}

// CreateInviteLink creates a fresh single-member invite link for the chat.
func (m *Messenger) CreateInviteLink(ctx context.Context, chatID int64) (string, error) {
	if m == nil || m.api == nil {
		return "", errors.New("messenger is not bound to a bot")
	}

	link, err := m.api.CreateChatInviteLink(ctx, &bot.CreateChatInviteLinkParams{
		ChatID:      chatID,
		MemberLimit: 1,
	})
	if err != nil {
		return "", fmt.Errorf("create invite link for %d: %w", chatID, err)
	}
	return link.InviteLink, nil
}

// answerCallback acknowledges a callback query so the client stops showing a
// spinner. Failures are logged, never propagated.
func (m *Messenger) answerCallback(ctx context.Context, callbackID string) {
	if m == nil || m.api == nil {
		return
	}

	if _, err := m.api.AnswerCallbackQuery(ctx, &bot.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
	}); err != nil {
		m.logger.WithField("event", "callback_answer_failed").WithError(err).Warn("could not answer callback query")
	}
}
