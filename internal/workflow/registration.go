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
)

// Registration drives the approval-gated sign-up flow: a user submits an
// organizational email, the admin approves or denies it, and an approved
// user receives a role. It also covers the change-email follow-up for
// registered users.
type Registration struct {
	users     UserStore
	messenger Messenger
	sessions  *session.Store
	emails    EmailValidator
	adminChat int64
	groupChat int64
	logger    *logrus.Entry
}

// NewRegistration constructs the registration workflow.
func NewRegistration(
	users UserStore,
	messenger Messenger,
	sessions *session.Store,
	emails EmailValidator,
	adminChat, groupChat int64,
	logger *logrus.Entry,
) *Registration {
	if logger == nil {
		logger = logging.Logger()
	}

	return &Registration{
		users:     users,
		messenger: messenger,
		sessions:  sessions,
		emails:    emails,
		adminChat: adminChat,
		groupChat: groupChat,
		logger:    logger,
	}
}

// Start handles /start. Registered users get their role menu; a stale
// half-registered record is dropped and the flow restarts from the email
// prompt; unknown users go straight to the email prompt.
func (r *Registration) Start(ctx context.Context, userID, chatID int64) error {
	if r == nil || r.users == nil {
		return errors.New("registration workflow is not initialized")
	}

	r.sessions.Clear(chatID)

	user, err := r.users.GetByID(ctx, userID)
	switch {
	case err == nil && user.IsRegistered():
		menu, menuErr := keyboard.MainMenu(user.Role)
		if menuErr != nil {
			return fmt.Errorf("build menu for %d: %w", userID, menuErr)
		}
		return r.messenger.Send(ctx, chatID, "Choose what you need", menu)

	case err == nil:
		// A record exists but registration never completed. Drop it and
		// restart from scratch.
		if delErr := r.users.Delete(ctx, userID); delErr != nil && !errors.Is(delErr, domain.ErrUserNotFound) {
			return fmt.Errorf("drop stale registration for %d: %w", userID, delErr)
		}
		r.logger.WithFields(logging.Fields{
			"event":   "registration_restarted",
			"user_id": userID,
			"status":  user.Status,
		}).Info("dropped stale registration record")

	case !errors.Is(err, domain.ErrUserNotFound):
		return fmt.Errorf("look up user %d: %w", userID, err)
	}

	if err := r.messenger.Send(ctx, chatID,
		"Registration process created, please provide your email", nil); err != nil {
		return err
	}

	r.sessions.SetStep(chatID, session.StepAwaitingEmail)
	return nil
}

// HandleEmail consumes the email submission of the awaiting-email step.
func (r *Registration) HandleEmail(ctx context.Context, userID, chatID int64, username, text string) error {
	if r == nil || r.users == nil {
		return errors.New("registration workflow is not initialized")
	}

	if domain.NormalizeUsername(username) == "" {
		return r.messenger.Send(ctx, chatID,
			"Your username was not found.\n\n"+
				"Please check your username in the settings and try again.", nil)
	}

	if !r.emails.IsOrganizationalEmail(text) {
		return r.messenger.Send(ctx, chatID,
			fmt.Sprintf("Provided email: %s is not valid, please try again or contact the admin", text), nil)
	}

	user, err := r.users.Create(ctx, domain.User{
		UserID:   userID,
		Username: username,
		Email:    text,
		Status:   domain.StatusPendingApproval,
	})
	if err != nil {
		return fmt.Errorf("store registration for %d: %w", userID, err)
	}

	if err := r.messenger.Send(ctx, chatID,
		fmt.Sprintf("The email - %s was sent to approval.\n\n"+
			"We will let you know once you have the access", user.Email), nil); err != nil {
		return err
	}

	notice := fmt.Sprintf("User with parameters:\n\n"+
		"name: %s\nid: %d\nemail: %s\n"+
		"Wants to register. Approve?", user.Username, user.UserID, user.Email)
	if err := r.messenger.Send(ctx, r.adminChat, notice, keyboard.Approval(user.UserID)); err != nil {
		return fmt.Errorf("notify admin about %d: %w", userID, err)
	}

	r.logger.WithFields(logging.Fields{
		"event":    "registration_submitted",
		"user_id":  userID,
		"username": user.Username,
	}).Info("registration sent to approval")

	r.sessions.Clear(chatID)
	return nil
}

// HandleApprove moves an applicant to the role-assignment step and swaps the
// admin message for the role keyboard.
func (r *Registration) HandleApprove(ctx context.Context, messageID int, targetID int64) error {
	if r == nil || r.users == nil {
		return errors.New("registration workflow is not initialized")
	}

	_, err := r.users.Update(ctx, targetID, domain.UserPatch{
		Status: strPtr(domain.StatusPendingRole),
	})
	if errors.Is(err, domain.ErrUserNotFound) {
		return r.absorbStale(ctx, "approve", messageID, targetID)
	}
	if err != nil {
		return fmt.Errorf("approve registration for %d: %w", targetID, err)
	}

	return r.messenger.Edit(ctx, r.adminChat, messageID,
		"Please set the role to user", keyboard.RoleChoice(targetID))
}

// HandleDeny removes a pending applicant and informs both sides.
func (r *Registration) HandleDeny(ctx context.Context, messageID int, targetID int64) error {
	if r == nil || r.users == nil {
		return errors.New("registration workflow is not initialized")
	}

	user, err := r.users.GetByID(ctx, targetID)
	if errors.Is(err, domain.ErrUserNotFound) {
		return r.absorbStale(ctx, "deny", messageID, targetID)
	}
	if err != nil {
		return fmt.Errorf("look up applicant %d: %w", targetID, err)
	}

	if err := r.users.Delete(ctx, targetID); err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return fmt.Errorf("deny registration for %d: %w", targetID, err)
	}

	if err := r.messenger.Edit(ctx, r.adminChat, messageID,
		fmt.Sprintf("You have denied the registration for user: %s", user.Username), nil); err != nil {
		return err
	}

	r.logger.WithFields(logging.Fields{
		"event":    "registration_denied",
		"user_id":  targetID,
		"username": user.Username,
	}).Info("registration denied")

	return r.messenger.Send(ctx, targetID,
		"Registration process was denied by admin", nil)
}

// HandleAssignRole completes registration with the chosen role. Users with a
// non-restricted role also get a single-member invite link to the shared
// group; a failure there is logged and does not undo the registration.
func (r *Registration) HandleAssignRole(ctx context.Context, messageID int, role string, targetID int64) error {
	if r == nil || r.users == nil {
		return errors.New("registration workflow is not initialized")
	}
	if !domain.ValidRole(role) {
		return fmt.Errorf("invalid role %q", role)
	}

	user, err := r.users.Update(ctx, targetID, domain.UserPatch{
		Role:   strPtr(role),
		Status: strPtr(domain.StatusRegistered),
	})
	if errors.Is(err, domain.ErrUserNotFound) {
		return r.absorbStale(ctx, "assign_role", messageID, targetID)
	}
	if err != nil {
		return fmt.Errorf("assign role to %d: %w", targetID, err)
	}

	if err := r.messenger.Edit(ctx, r.adminChat, messageID,
		fmt.Sprintf("%s was registered with the role - %s", user.Username, role), nil); err != nil {
		return err
	}

	menu, err := keyboard.MainMenu(role)
	if err != nil {
		return fmt.Errorf("build menu for %d: %w", targetID, err)
	}
	if err := r.messenger.Send(ctx, targetID,
		"You have been registered! Please see the available options", menu); err != nil {
		return err
	}

	r.logger.WithFields(logging.Fields{
		"event":    "registration_completed",
		"user_id":  targetID,
		"username": user.Username,
		"role":     role,
	}).Info("user registered")

	if role != domain.RoleRestricted {
		r.sendInviteLink(ctx, targetID)
	}

	return nil
}

// sendInviteLink is best effort: the registration stands even when the group
// invite cannot be created or delivered.
func (r *Registration) sendInviteLink(ctx context.Context, targetID int64) {
	link, err := r.messenger.CreateInviteLink(ctx, r.groupChat)
	if err != nil {
		r.logger.WithFields(logging.Fields{
			"event":   "invite_link_failed",
			"user_id": targetID,
		}).WithError(err).Error("could not create group invite link")
		return
	}

	if err := r.messenger.Send(ctx, targetID,
		fmt.Sprintf("Your invite link: %s", link), nil); err != nil {
		r.logger.WithFields(logging.Fields{
			"event":   "invite_link_failed",
			"user_id": targetID,
		}).WithError(err).Error("could not deliver group invite link")
	}
}

// StartChangeEmail begins the change-email flow for a registered user.
func (r *Registration) StartChangeEmail(ctx context.Context, userID, chatID int64) error {
	if r == nil || r.users == nil {
		return errors.New("registration workflow is not initialized")
	}

	user, err := r.users.GetByID(ctx, userID)
	if err != nil || !user.IsRegistered() {
		if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
			return fmt.Errorf("look up user %d: %w", userID, err)
		}
		return r.messenger.Send(ctx, chatID,
			"You are not a registered user! Use /start to register.", nil)
	}

	if err := r.messenger.Send(ctx, chatID, "Please provide your new email", nil); err != nil {
		return err
	}

	r.sessions.SetStep(chatID, session.StepAwaitingNewEmail)
	return nil
}

// HandleNewEmail validates and stores the replacement email.
func (r *Registration) HandleNewEmail(ctx context.Context, userID, chatID int64, text string) error {
	if r == nil || r.users == nil {
		return errors.New("registration workflow is not initialized")
	}

	if !r.emails.IsOrganizationalEmail(text) {
		return r.messenger.Send(ctx, chatID,
			fmt.Sprintf("Provided email: %s is not valid, please try again or contact the admin", text), nil)
	}

	user, err := r.users.Update(ctx, userID, domain.UserPatch{Email: strPtr(text)})
	if err != nil {
		return fmt.Errorf("change email for %d: %w", userID, err)
	}

	r.logger.WithFields(logging.Fields{
		"event":   "email_changed",
		"user_id": userID,
	}).Info("user changed email")

	r.sessions.Clear(chatID)
	return r.messenger.Send(ctx, chatID,
		fmt.Sprintf("Your email was changed to %s", user.Email), nil)
}

// absorbStale is the landing spot for callbacks whose user record is already
// gone: log, replace the admin message, move on.
func (r *Registration) absorbStale(ctx context.Context, stage string, messageID int, targetID int64) error {
	r.logger.WithFields(logging.Fields{
		"event":   "stale_callback",
		"stage":   stage,
		"user_id": targetID,
	}).Warn("callback for a user that no longer exists")

	return r.messenger.Edit(ctx, r.adminChat, messageID,
		"This registration request is no longer pending", nil)
}
