package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/sirupsen/logrus"

	"access_share_bot/internal/domain"
	"access_share_bot/internal/drive"
	"access_share_bot/internal/logging"
	"access_share_bot/internal/session"
)

// Access drives the "Open the access" flow: a registered user submits one or
// more document links and gets writer access granted for the email on their
// record.
type Access struct {
	users     UserStore
	messenger Messenger
	sessions  *session.Store
	provider  AccessProvider
	logger    *logrus.Entry
}

// NewAccess constructs the access-grant workflow.
func NewAccess(
	users UserStore,
	messenger Messenger,
	sessions *session.Store,
	provider AccessProvider,
	logger *logrus.Entry,
) *Access {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Access{
		users:     users,
		messenger: messenger,
		sessions:  sessions,
		provider:  provider,
		logger:    logger,
	}
}

// Start prompts a registered user for the links to share.
func (a *Access) Start(ctx context.Context, userID, chatID int64) error {
	if a == nil || a.users == nil {
		return errors.New("access workflow is not initialized")
	}

	user, err := a.users.GetByID(ctx, userID)
	if err != nil || !user.IsRegistered() {
		if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
			return fmt.Errorf("look up user %d: %w", userID, err)
		}
		return a.messenger.Send(ctx, chatID,
			"You are not a registered user! Use /start to register.", nil)
	}

	if err := a.messenger.Send(ctx, chatID,
		"Please send the link to the document you need access to.\n\n"+
			"You can send several links separated by commas or new lines", nil); err != nil {
		return err
	}

	a.sessions.SetStep(chatID, session.StepAwaitingLinks)
	return nil
}

// HandleLinks grants access on every valid document link in the submission
// and reports what was requested and what was rejected. The session is
// cleared whatever the outcome; a partial grant is visible in the report,
// not in a retryable step.
func (a *Access) HandleLinks(ctx context.Context, userID, chatID int64, text string) error {
	if a == nil || a.users == nil {
		return errors.New("access workflow is not initialized")
	}

	defer a.sessions.Clear(chatID)

	user, err := a.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return a.messenger.Send(ctx, chatID,
				"You are not a registered user! Use /start to register.", nil)
		}
		return fmt.Errorf("look up user %d: %w", userID, err)
	}

	var granted, rejected, failed []string
	for _, link := range SplitLinks(text) {
		if !drive.IsDocumentLink(link) {
			rejected = append(rejected, link)
			continue
		}

		if err := a.provider.GrantAccess(ctx, link, user.Email); err != nil {
			a.logger.WithFields(logging.Fields{
				"event":   "grant_failed",
				"user_id": userID,
			}).WithError(err).Error("could not grant document access")
			failed = append(failed, link)
			continue
		}
		granted = append(granted, link)
	}

	a.logger.WithFields(logging.Fields{
		"event":    "access_requested",
		"user_id":  userID,
		"granted":  len(granted),
		"rejected": len(rejected),
		"failed":   len(failed),
	}).Info("processed access request")

	return a.messenger.Send(ctx, chatID, accessReport(granted, rejected, failed), nil)
}

func accessReport(granted, rejected, failed []string) string {
	var sb strings.Builder
	if len(granted) > 0 {
		fmt.Fprintf(&sb, "Access was granted for:\n%s", strings.Join(granted, "\n"))
	} else {
		sb.WriteString("No access was granted")
	}
	if len(rejected) > 0 {
		fmt.Fprintf(&sb, "\n\nRejected as not valid document links:\n%s", strings.Join(rejected, "\n"))
	}
	if len(failed) > 0 {
		fmt.Fprintf(&sb, "\n\nFailed, please try again later:\n%s", strings.Join(failed, "\n"))
	}
	return sb.String()
}

// SplitLinks breaks a submission into candidate links on commas, spaces, and
// line breaks.
func SplitLinks(text string) []string {
	return strings.FieldsFunc(text, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
}
