package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"access_share_bot/internal/domain"
	"access_share_bot/internal/keyboard"
	"access_share_bot/internal/logging"
	"access_share_bot/internal/session"
	"access_share_bot/internal/tables"
)

// Links drives the "All Links" browsing flow: a role-dependent keyboard of
// document categories where every press answers with the category's link.
type Links struct {
	users     UserStore
	messenger Messenger
	sessions  *session.Store
	registry  *tables.Registry
	logger    *logrus.Entry
}

// NewLinks constructs the link-browsing workflow.
func NewLinks(
	users UserStore,
	messenger Messenger,
	sessions *session.Store,
	registry *tables.Registry,
	logger *logrus.Entry,
) *Links {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Links{
		users:     users,
		messenger: messenger,
		sessions:  sessions,
		registry:  registry,
		logger:    logger,
	}
}

// Start sends the category keyboard matching the caller's role.
func (l *Links) Start(ctx context.Context, userID, chatID int64) error {
	if l == nil || l.users == nil {
		return errors.New("links workflow is not initialized")
	}

	user, err := l.users.GetByID(ctx, userID)
	if err != nil || !user.IsRegistered() {
		if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
			return fmt.Errorf("look up user %d: %w", userID, err)
		}
		return l.messenger.Send(ctx, chatID,
			"You are not a registered user! Use /start to register.", nil)
	}

	markup, err := keyboard.AllLinks(user.Role, l.registry)
	if err != nil {
		return fmt.Errorf("build link keyboard for %d: %w", userID, err)
	}

	if err := l.messenger.Send(ctx, chatID,
		"Please see the list of available links", markup); err != nil {
		return err
	}

	l.sessions.SetStep(chatID, session.StepChoosingLink)
	return nil
}

// HandleChoice answers one category press with its link. The step stays
// active so the keyboard remains usable.
func (l *Links) HandleChoice(ctx context.Context, chatID int64, category string) error {
	if l == nil || l.users == nil {
		return errors.New("links workflow is not initialized")
	}

	link, err := l.registry.Resolve(category)
	if err != nil {
		l.logger.WithFields(logging.Fields{
			"event":    "unknown_link_requested",
			"category": category,
			"chat_id":  chatID,
		}).Warn("ignoring unknown link request")
		return l.messenger.Send(ctx, chatID,
			fmt.Sprintf("No link is configured for %s", tables.Label(category)), nil)
	}

	return l.messenger.Send(ctx, chatID,
		fmt.Sprintf("Link for %s: %s", tables.Label(category), link), nil)
}
