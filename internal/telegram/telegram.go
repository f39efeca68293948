// Package telegram hosts the Telegram client, routing, and handlers.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"access_share_bot/internal/action"
	"access_share_bot/internal/config"
	"access_share_bot/internal/keyboard"
	"access_share_bot/internal/logging"
	"access_share_bot/internal/session"
	"access_share_bot/internal/workflow"
)

var (
	defaultAllowedUpdates = bot.AllowedUpdates{
		"message",
		"edited_message",
		"callback_query",
	}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		return bot.New(token, options...)
	}
)

// Workflows bundles the conversation flows the router dispatches into.
type Workflows struct {
	Registration *workflow.Registration
	Deletion     *workflow.Deletion
	Access       *workflow.Access
	Links        *workflow.Links
}

// Client wraps the Telegram bot instance and routes incoming updates to the
// workflows.
type Client struct {
	bot       botAPI
	messenger *Messenger
	sessions  *session.Store
	wf        Workflows
	logger    *logrus.Entry
}

// NewClient initializes the Telegram bot with long polling and binds the
// messenger to it.
func NewClient(cfg config.Config, messenger *Messenger, sessions *session.Store, wf Workflows, logger *logrus.Entry) (*Client, error) {
	if strings.TrimSpace(cfg.TelegramToken) == "" {
		return nil, errors.New("telegram token is required")
	}
	if messenger == nil {
		return nil, errors.New("messenger is required")
	}
	if sessions == nil {
		return nil, errors.New("session store is required")
	}
	if logger == nil {
		logger = logging.Logger()
	}

	c := &Client{
		messenger: messenger,
		sessions:  sessions,
		wf:        wf,
		logger:    logger,
	}

	tgBot, err := createBot(cfg.TelegramToken,
		bot.WithAllowedUpdates(defaultAllowedUpdates),
		bot.WithDefaultHandler(c.handleUpdate),
		bot.WithErrorsHandler(errorHandler(logger)),
	)
	if err != nil {
		return nil, fmt.Errorf("init telegram bot client: %w", err)
	}

	c.bot = tgBot
	messenger.bind(tgBot)

	return c, nil
}

// Start begins receiving updates via long polling until the context is canceled.
func (c *Client) Start(ctx context.Context) {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger.WithFields(logging.Fields{
		"event":           "telegram_listen",
		"allowed_updates": defaultAllowedUpdates,
	}).Info("starting telegram long polling")

	c.bot.Start(ctx)

	c.logger.WithField("event", "telegram_stopped").Info("telegram polling stopped")
}

func (c *Client) handleUpdate(ctx context.Context, _ *bot.Bot, update *models.Update) {
	if update == nil {
		return
	}

	switch {
	case update.Message != nil:
		c.handleMessage(ctx, update.Message)
	case update.CallbackQuery != nil:
		c.handleCallback(ctx, update.CallbackQuery)
	default:
		c.logger.WithField("event", "telegram_update_ignored").Debug("ignoring unsupported update type")
	}
}

func (c *Client) handleMessage(ctx context.Context, msg *models.Message) {
	senderID := userID(msg.From)
	chat := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	if senderID == 0 || text == "" {
		return
	}

	var err error
	switch {
	case strings.HasPrefix(text, "/"):
		err = c.handleCommand(ctx, msg, command(text))

	case text == keyboard.ButtonOpenAccess:
		err = c.wf.Access.Start(ctx, senderID, chat)
	case text == keyboard.ButtonAllLinks:
		err = c.wf.Links.Start(ctx, senderID, chat)
	case text == keyboard.ButtonChangeEmail:
		err = c.wf.Registration.StartChangeEmail(ctx, senderID, chat)
	case text == keyboard.ButtonDeleteUser:
		err = c.wf.Deletion.Start(ctx, senderID, chat)

	default:
		err = c.handleStepInput(ctx, msg, senderID, chat, text)
	}

	if err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "message_handler_failed",
			"user_id": senderID,
			"chat_id": chat,
		}).WithError(err).Error("message handler failed")
	}
}

func (c *Client) handleCommand(ctx context.Context, msg *models.Message, cmd string) error {
	senderID := userID(msg.From)
	chat := msg.Chat.ID

	switch cmd {
	case "/start":
		return c.wf.Registration.Start(ctx, senderID, chat)

	case "/cancel":
		c.sessions.Clear(chat)
		return c.messenger.Send(ctx, chat,
			"Action was cancelled. You can start again using /start command or others",
			keyboard.Remove())

	case "/me":
		return c.messenger.Send(ctx, chat, describeUser(msg.From), nil)
	}

	c.logger.WithFields(logging.Fields{
		"event":   "unknown_command",
		"command": cmd,
		"user_id": senderID,
	}).Debug("ignoring unknown command")
	return nil
}

// handleStepInput routes free-form text by the conversation's current step.
func (c *Client) handleStepInput(ctx context.Context, msg *models.Message, senderID, chat int64, text string) error {
	switch c.sessions.Step(chat) {
	case session.StepAwaitingEmail:
		return c.wf.Registration.HandleEmail(ctx, senderID, chat, username(msg.From), text)
	case session.StepAwaitingNewEmail:
		return c.wf.Registration.HandleNewEmail(ctx, senderID, chat, text)
	case session.StepAwaitingUsername:
		return c.wf.Deletion.HandleUsername(ctx, chat, text)
	case session.StepAwaitingLinks:
		return c.wf.Access.HandleLinks(ctx, senderID, chat, text)
	}

	c.logger.WithFields(logging.Fields{
		"event":   "unhandled_message",
		"user_id": senderID,
		"chat_id": chat,
	}).Debug("no active step for message")
	return nil
}

func (c *Client) handleCallback(ctx context.Context, cb *models.CallbackQuery) {
	defer c.messenger.answerCallback(ctx, cb.ID)

	act, err := action.Parse(cb.Data)
	if err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "callback_rejected",
			"user_id": cb.From.ID,
		}).WithError(err).Warn("discarding malformed callback payload")
		return
	}

	msg := callbackMessage(cb.Message)
	if msg == nil {
		c.logger.WithField("event", "callback_inaccessible").Warn("callback message is not accessible")
		return
	}

	chat := msg.Chat.ID
	messageID := msg.ID
	step := c.sessions.Step(chat)

	switch act := act.(type) {
	case action.Approve:
		err = c.wf.Registration.HandleApprove(ctx, messageID, act.UserID)
	case action.Deny:
		err = c.wf.Registration.HandleDeny(ctx, messageID, act.UserID)
	case action.AssignRole:
		err = c.wf.Registration.HandleAssignRole(ctx, messageID, act.Role, act.UserID)

	case action.SelectTable:
		switch step {
		case session.StepChoosingTables:
			err = c.wf.Deletion.HandleSelectTable(ctx, chat, messageID, act.Category, msg.ReplyMarkup)
		case session.StepChoosingLink:
			err = c.wf.Links.HandleChoice(ctx, chat, act.Category)
		default:
			c.logStaleCallback(cb, "table", step)
		}

	case action.Confirm:
		switch step {
		case session.StepChoosingTables:
			err = c.wf.Deletion.HandleConfirmSelection(ctx, chat, messageID)
		case session.StepConfirmingSelection:
			err = c.wf.Deletion.Execute(ctx, chat, messageID)
		default:
			c.logStaleCallback(cb, "confirm", step)
		}

	case action.Skip:
		if step == session.StepChoosingTables {
			err = c.wf.Deletion.HandleSkip(ctx, chat, messageID)
		} else {
			c.logStaleCallback(cb, "skip", step)
		}

	case action.DenySelection:
		if step == session.StepConfirmingSelection {
			err = c.wf.Deletion.HandleDeny(ctx, chat, messageID)
		} else {
			c.logStaleCallback(cb, "deny", step)
		}
	}

	if err != nil {
		c.logger.WithFields(logging.Fields{
			"event":   "callback_handler_failed",
			"user_id": cb.From.ID,
			"chat_id": chat,
		}).WithError(err).Error("callback handler failed")
	}
}

func (c *Client) logStaleCallback(cb *models.CallbackQuery, kind string, step session.Step) {
	c.logger.WithFields(logging.Fields{
		"event":   "stale_callback",
		"kind":    kind,
		"step":    string(step),
		"user_id": cb.From.ID,
	}).Warn("callback does not match the conversation step")
}

// command extracts the command word, dropping arguments and a @botname
// suffix.
func command(text string) string {
	cmd := strings.Fields(text)[0]
	if at := strings.Index(cmd, "@"); at > 0 {
		cmd = cmd[:at]
	}
	return cmd
}

func describeUser(user *models.User) string {
	if user == nil {
		return "Unknown user"
	}

	return fmt.Sprintf("User ID: %d\nFirst Name: %s\nLast Name: %s\nUsername: @%s",
		user.ID, user.FirstName, user.LastName, user.Username)
}

func errorHandler(logger *logrus.Entry) bot.ErrorsHandler {
	if logger == nil {
		logger = logging.Logger()
	}

	return func(err error) {
		if err == nil {
			return
		}

		logger.WithField("event", "telegram_error").WithError(err).Error("telegram polling error")
	}
}

func userID(user *models.User) int64 {
	if user == nil {
		return 0
	}

	return user.ID
}

func username(user *models.User) string {
	if user == nil {
		return ""
	}

	return user.Username
}

func callbackMessage(msg models.MaybeInaccessibleMessage) *models.Message {
	if msg.Type != models.MaybeInaccessibleMessageTypeMessage {
		return nil
	}

	return msg.Message
}
