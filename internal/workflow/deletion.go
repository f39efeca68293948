package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"

	"access_share_bot/internal/action"
	"access_share_bot/internal/domain"
	"access_share_bot/internal/keyboard"
	"access_share_bot/internal/logging"
	"access_share_bot/internal/session"
	"access_share_bot/internal/tables"
)

// banDuration is how long a deleted user stays banned from the shared group.
// Telegram lifts bans shorter than the platform minimum automatically, which
// is exactly the intent: kick, not exile.
const banDuration = time.Minute

// now is stubbed in tests.
var now = time.Now

// Deletion drives the admin-only removal of a user: pick a username, select
// the tables to revoke document access on, confirm, then execute in strict
// revoke-then-delete-then-ban order.
type Deletion struct {
	users     UserStore
	messenger Messenger
	sessions  *session.Store
	provider  AccessProvider
	registry  *tables.Registry
	groupChat int64
	logger    *logrus.Entry
}

// NewDeletion constructs the deletion workflow.
func NewDeletion(
	users UserStore,
	messenger Messenger,
	sessions *session.Store,
	provider AccessProvider,
	registry *tables.Registry,
	groupChat int64,
	logger *logrus.Entry,
) *Deletion {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Deletion{
		users:     users,
		messenger: messenger,
		sessions:  sessions,
		provider:  provider,
		registry:  registry,
		groupChat: groupChat,
		logger:    logger,
	}
}

// Start handles the "Delete User" button. The admin check always hits the
// store; a role cached in an old keyboard is worthless after a demotion.
func (d *Deletion) Start(ctx context.Context, userID, chatID int64) error {
	if d == nil || d.users == nil {
		return errors.New("deletion workflow is not initialized")
	}

	d.sessions.Clear(chatID)

	caller, err := d.users.GetByID(ctx, userID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return d.messenger.Send(ctx, chatID, "You are not a registered user!", nil)
	}
	if err != nil {
		return fmt.Errorf("look up caller %d: %w", userID, err)
	}

	if !caller.IsAdmin() {
		d.logger.WithFields(logging.Fields{
			"event":    "deletion_rejected",
			"user_id":  userID,
			"username": caller.Username,
		}).Warn("non-admin tried to delete a user")
		return d.messenger.Send(ctx, chatID, "Prohibited to use admins command", nil)
	}

	users, err := d.users.List(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	var sb strings.Builder
	sb.WriteString("Current users are:\n\n")
	for i, user := range users {
		fmt.Fprintf(&sb, "%d. Username: %s, Email: %s\n\n", i+1, user.Username, user.Email)
	}
	sb.WriteString("\nPlease provide telegram's username of user to delete")

	if err := d.messenger.Send(ctx, chatID, sb.String(), nil); err != nil {
		return err
	}

	d.sessions.SetStep(chatID, session.StepAwaitingUsername)
	return nil
}

// HandleUsername resolves the admin's input to a stored user and offers the
// working tables for selection.
func (d *Deletion) HandleUsername(ctx context.Context, chatID int64, text string) error {
	if d == nil || d.users == nil {
		return errors.New("deletion workflow is not initialized")
	}

	username := domain.NormalizeUsername(text)
	target, err := d.users.GetByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return d.messenger.Send(ctx, chatID,
			fmt.Sprintf("No user with username: %s was found in the database", username), nil)
	}
	if err != nil {
		return fmt.Errorf("look up %q: %w", username, err)
	}

	d.sessions.UpdateData(chatID, session.Fields{
		session.FieldTargetID:       target.UserID,
		session.FieldTargetUsername: target.Username,
		session.FieldTargetEmail:    target.Email,
	})
	d.sessions.SetStep(chatID, session.StepChoosingTables)

	return d.messenger.Send(ctx, chatID,
		"Please choose a table where to remove user's access.\n\n"+
			"Keep in mind that you will need to delete his list manually",
		keyboard.TableSelection(d.registry))
}

// HandleSelectTable records one table press. Selection is idempotent and the
// pressed button is consumed from the markup in place.
func (d *Deletion) HandleSelectTable(ctx context.Context, chatID int64, messageID int, category string, markup *models.InlineKeyboardMarkup) error {
	if d == nil || d.users == nil {
		return errors.New("deletion workflow is not initialized")
	}

	if !d.registry.Has(category) {
		d.logger.WithFields(logging.Fields{
			"event":    "unknown_table_selected",
			"category": category,
			"chat_id":  chatID,
		}).Warn("ignoring unknown table selection")
		return nil
	}

	selected := d.sessions.Data(chatID).Strings(session.FieldSelectedTables)
	seen := false
	for _, existing := range selected {
		if existing == category {
			seen = true
			break
		}
	}
	if !seen {
		selected = append(selected, category)
	}
	d.sessions.UpdateData(chatID, session.Fields{session.FieldSelectedTables: selected})

	return d.messenger.Edit(ctx, chatID, messageID,
		fmt.Sprintf("You selected %s.\n\n"+
			"Click confirm to proceed with selection.\n\n"+
			"You can skip the selection by clicking Skip button", strings.Join(selected, ", ")),
		keyboard.Excluding(action.PrefixTable+category, markup))
}

// HandleSkip discards whatever was selected and jumps straight to the final
// confirmation.
func (d *Deletion) HandleSkip(ctx context.Context, chatID int64, messageID int) error {
	if d == nil || d.users == nil {
		return errors.New("deletion workflow is not initialized")
	}

	d.sessions.UpdateData(chatID, session.Fields{
		session.FieldSelectedTables: nil,
		session.FieldTableLinks:     nil,
	})

	username := d.sessions.Data(chatID).String(session.FieldTargetUsername)
	if err := d.messenger.Edit(ctx, chatID, messageID,
		fmt.Sprintf("You have skipped the selection of tables.\n\n"+
			"Please confirm the deletion of the following user:\n\n"+
			"Username: @%s", username),
		keyboard.FinalConfirmation()); err != nil {
		return err
	}

	d.sessions.SetStep(chatID, session.StepConfirmingSelection)
	return nil
}

// HandleConfirmSelection resolves the selected categories to their links and
// shows the full summary for final confirmation.
func (d *Deletion) HandleConfirmSelection(ctx context.Context, chatID int64, messageID int) error {
	if d == nil || d.users == nil {
		return errors.New("deletion workflow is not initialized")
	}

	data := d.sessions.Data(chatID)
	selected := data.Strings(session.FieldSelectedTables)

	links := make(map[string]string, len(selected))
	var lines []string
	for _, category := range selected {
		link, err := d.registry.Resolve(category)
		if err != nil {
			return fmt.Errorf("resolve table %q: %w", category, err)
		}
		links[category] = link
		lines = append(lines, fmt.Sprintf("%s - %s", category, link))
	}

	tablesText := "No tables were selected"
	if len(lines) > 0 {
		tablesText = strings.Join(lines, "\n\n")
		d.sessions.UpdateData(chatID, session.Fields{session.FieldTableLinks: links})
	}

	if err := d.messenger.Edit(ctx, chatID, messageID,
		fmt.Sprintf("Please confirm the deletion of the following user:\n\n"+
			"Username: @%s\n\nEmail: %s\n\nTables to remove from:\n\n%s",
			data.String(session.FieldTargetUsername),
			data.String(session.FieldTargetEmail),
			tablesText),
		keyboard.FinalConfirmation()); err != nil {
		return err
	}

	d.sessions.SetStep(chatID, session.StepConfirmingSelection)
	return nil
}

// HandleDeny aborts the whole flow.
func (d *Deletion) HandleDeny(ctx context.Context, chatID int64, messageID int) error {
	if d == nil || d.users == nil {
		return errors.New("deletion workflow is not initialized")
	}

	if err := d.messenger.Edit(ctx, chatID, messageID,
		"You have denied the deletion of user", nil); err != nil {
		return err
	}

	d.sessions.Clear(chatID)
	return nil
}

// Execute runs the confirmed deletion. Document access is revoked first; any
// provider failure aborts before the record is touched so the admin can
// retry. Only after a fully clean revocation pass is the record deleted and
// the user banned from the shared group.
func (d *Deletion) Execute(ctx context.Context, chatID int64, messageID int) error {
	if d == nil || d.users == nil {
		return errors.New("deletion workflow is not initialized")
	}

	data := d.sessions.Data(chatID)
	targetID := data.Int64(session.FieldTargetID)
	targetUsername := data.String(session.FieldTargetUsername)
	targetEmail := data.String(session.FieldTargetEmail)
	selected := data.Strings(session.FieldSelectedTables)
	links := data.StringMap(session.FieldTableLinks)

	if targetID == 0 {
		d.sessions.Clear(chatID)
		return d.messenger.Edit(ctx, chatID, messageID,
			"This deletion is no longer active, please start again", nil)
	}

	var cleaned []string
	for _, category := range selected {
		link := links[category]

		permissionID, err := d.provider.FindPermissionID(ctx, link, targetEmail)
		if err != nil {
			return d.abortOnProviderError(ctx, chatID, category, err)
		}

		if permissionID == "" {
			if err := d.messenger.Send(ctx, chatID,
				fmt.Sprintf("Email: %s is not present in %s - %s", targetEmail, category, link), nil); err != nil {
				return err
			}
			continue
		}

		if err := d.provider.RevokeAccess(ctx, link, permissionID); err != nil {
			return d.abortOnProviderError(ctx, chatID, category, err)
		}
		cleaned = append(cleaned, category)
	}

	if err := d.users.Delete(ctx, targetID); err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return fmt.Errorf("delete user %d: %w", targetID, err)
	}

	report := fmt.Sprintf("User: @%s was deleted from the database"+
		" but was not matched with tables to delete from", targetUsername)
	if len(cleaned) > 0 {
		report = fmt.Sprintf("User: @%s was deleted from the database"+
			" and the following tables:\n\n%s", targetUsername, strings.Join(cleaned, ", "))
	}
	if err := d.messenger.Edit(ctx, chatID, messageID, report, nil); err != nil {
		return err
	}

	d.logger.WithFields(logging.Fields{
		"event":    "user_deleted",
		"user_id":  targetID,
		"username": targetUsername,
		"tables":   cleaned,
	}).Info("deleted user")

	d.banFromGroup(ctx, targetID, targetUsername)

	d.sessions.Clear(chatID)
	return nil
}

// abortOnProviderError reports a document-provider failure and leaves the
// session on its current step with the user record intact, so the admin can
// press confirm again once the provider recovers.
func (d *Deletion) abortOnProviderError(ctx context.Context, chatID int64, category string, err error) error {
	d.logger.WithFields(logging.Fields{
		"event":    "revocation_failed",
		"category": category,
		"chat_id":  chatID,
	}).WithError(err).Error("could not revoke document access, deletion aborted")

	return d.messenger.Send(ctx, chatID,
		fmt.Sprintf("Could not revoke access on %s: %v\n\n"+
			"The user was NOT deleted. Press confirm to retry.", category, err), nil)
}

// banFromGroup is the final step and is not allowed to undo anything: on
// failure it logs and skips the announcement.
func (d *Deletion) banFromGroup(ctx context.Context, targetID int64, targetUsername string) {
	if err := d.messenger.Ban(ctx, d.groupChat, targetID, now().Add(banDuration)); err != nil {
		d.logger.WithFields(logging.Fields{
			"event":   "ban_failed",
			"user_id": targetID,
		}).WithError(err).Error("could not ban deleted user from the group")
		return
	}

	if err := d.messenger.Send(ctx, d.groupChat,
		fmt.Sprintf("User: %s was banned", targetUsername), nil); err != nil {
		d.logger.WithFields(logging.Fields{
			"event":   "ban_announcement_failed",
			"user_id": targetID,
		}).WithError(err).Error("could not announce the ban")
	}
}
