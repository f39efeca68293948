package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"access_share_bot/internal/domain"
	"access_share_bot/internal/session"
)

const (
	adminChat = int64(100)
	groupChat = int64(200)
)

func registered(userID int64, username, role string) domain.User {
	return domain.User{
		UserID:   userID,
		Username: username,
		Email:    username + "@gmail.com",
		Role:     role,
		Status:   domain.StatusRegistered,
	}
}

func newRegistration(users *fakeUserStore, messenger *fakeMessenger, sessions *session.Store) *Registration {
	return NewRegistration(users, messenger, sessions, allowAllEmails{}, adminChat, groupChat, nullEntry())
}

func TestRegistrationStartRegisteredUserGetsMenu(t *testing.T) {
	users := newFakeUserStore(registered(1, "alice", domain.RoleUser))
	messenger := &fakeMessenger{}
	sessions := session.NewStore()
	reg := newRegistration(users, messenger, sessions)

	err := reg.Start(context.Background(), 1, 1)

	require.NoError(t, err)
	require.Len(t, messenger.sends, 1)
	assert.Equal(t, "Choose what you need", messenger.lastSend().text)
	assert.NotNil(t, messenger.lastSend().markup)
	assert.Equal(t, session.StepNone, sessions.Step(1))
}

func TestRegistrationStartDropsStaleRecord(t *testing.T) {
	users := newFakeUserStore(domain.User{
		UserID:   1,
		Username: "alice",
		Status:   domain.StatusPendingApproval,
	})
	messenger := &fakeMessenger{}
	sessions := session.NewStore()
	reg := newRegistration(users, messenger, sessions)

	err := reg.Start(context.Background(), 1, 1)

	require.NoError(t, err)
	_, getErr := users.GetByID(context.Background(), 1)
	assert.ErrorIs(t, getErr, domain.ErrUserNotFound)
	assert.Contains(t, messenger.lastSend().text, "please provide your email")
	assert.Equal(t, session.StepAwaitingEmail, sessions.Step(1))
}

func TestRegistrationStartUnknownUserPrompts(t *testing.T) {
	users := newFakeUserStore()
	messenger := &fakeMessenger{}
	sessions := session.NewStore()
	reg := newRegistration(users, messenger, sessions)

	err := reg.Start(context.Background(), 1, 1)

	require.NoError(t, err)
	assert.Contains(t, messenger.lastSend().text, "Registration process created")
	assert.Equal(t, session.StepAwaitingEmail, sessions.Step(1))
}

func TestRegistrationStartClearsPreviousSession(t *testing.T) {
	users := newFakeUserStore(registered(1, "alice", domain.RoleUser))
	messenger := &fakeMessenger{}
	sessions := session.NewStore()
	sessions.SetStep(1, session.StepAwaitingLinks)
	reg := newRegistration(users, messenger, sessions)

	require.NoError(t, reg.Start(context.Background(), 1, 1))

	assert.Equal(t, session.StepNone, sessions.Step(1))
}

func TestHandleEmailMissingUsername(t *testing.T) {
	users := newFakeUserStore()
	messenger := &fakeMessenger{}
	sessions := session.NewStore()
	sessions.SetStep(1, session.StepAwaitingEmail)
	reg := newRegistration(users, messenger, sessions)

	err := reg.HandleEmail(context.Background(), 1, 1, "", "alice@gmail.com")

	require.NoError(t, err)
	assert.Contains(t, messenger.lastSend().text, "username was not found")
	assert.Empty(t, users.users)
	// no transition: the user can retry after fixing their settings
	assert.Equal(t, session.StepAwaitingEmail, sessions.Step(1))
}

func TestHandleEmailInvalid(t *testing.T) {
	users := newFakeUserStore()
	messenger := &fakeMessenger{}
	sessions := session.NewStore()
	sessions.SetStep(1, session.StepAwaitingEmail)
	reg := NewRegistration(users, messenger, sessions, denyAllEmails{}, adminChat, groupChat, nullEntry())

	err := reg.HandleEmail(context.Background(), 1, 1, "alice", "nope@example.com")

	require.NoError(t, err)
	assert.Contains(t, messenger.lastSend().text, "is not valid")
	assert.Empty(t, users.users)
	assert.Equal(t, session.StepAwaitingEmail, sessions.Step(1))
}

func TestHandleEmailValid(t *testing.T) {
	users := newFakeUserStore()
	messenger := &fakeMessenger{}
	sessions := session.NewStore()
	sessions.SetStep(1, session.StepAwaitingEmail)
	reg := newRegistration(users, messenger, sessions)

	err := reg.HandleEmail(context.Background(), 1, 1, "Alice", "alice@gmail.com")

	require.NoError(t, err)

	stored, getErr := users.GetByID(context.Background(), 1)
	require.NoError(t, getErr)
	assert.Equal(t, "alice", stored.Username)
	assert.Equal(t, domain.StatusPendingApproval, stored.Status)

	require.Len(t, messenger.sends, 2)
	assert.Equal(t, int64(1), messenger.sends[0].chatID)
	assert.Contains(t, messenger.sends[0].text, "was sent to approval")
	assert.Equal(t, adminChat, messenger.sends[1].chatID)
	assert.Contains(t, messenger.sends[1].text, "Wants to register. Approve?")
	assert.NotNil(t, messenger.sends[1].markup)

	assert.Equal(t, session.StepNone, sessions.Step(1))
}

func TestHandleApprove(t *testing.T) {
	users := newFakeUserStore(domain.User{
		UserID:   1,
		Username: "alice",
		Status:   domain.StatusPendingApproval,
	})
	messenger := &fakeMessenger{}
	reg := newRegistration(users, messenger, session.NewStore())

	err := reg.HandleApprove(context.Background(), 7, 1)

	require.NoError(t, err)

	stored, _ := users.GetByID(context.Background(), 1)
	assert.Equal(t, domain.StatusPendingRole, stored.Status)

	edit := messenger.lastEdit()
	assert.Equal(t, adminChat, edit.chatID)
	assert.Equal(t, 7, edit.messageID)
	assert.Equal(t, "Please set the role to user", edit.text)
	assert.NotNil(t, edit.markup)
}

func TestHandleApproveStaleRecord(t *testing.T) {
	users := newFakeUserStore()
	messenger := &fakeMessenger{}
	reg := newRegistration(users, messenger, session.NewStore())

	err := reg.HandleApprove(context.Background(), 7, 1)

	require.NoError(t, err)
	assert.Contains(t, messenger.lastEdit().text, "no longer pending")
}

func TestHandleDeny(t *testing.T) {
	users := newFakeUserStore(domain.User{
		UserID:   1,
		Username: "alice",
		Status:   domain.StatusPendingApproval,
	})
	messenger := &fakeMessenger{}
	reg := newRegistration(users, messenger, session.NewStore())

	err := reg.HandleDeny(context.Background(), 7, 1)

	require.NoError(t, err)

	_, getErr := users.GetByID(context.Background(), 1)
	assert.ErrorIs(t, getErr, domain.ErrUserNotFound)

	assert.Contains(t, messenger.lastEdit().text, "denied the registration for user: alice")
	require.Len(t, messenger.sends, 1)
	assert.Equal(t, int64(1), messenger.lastSend().chatID)
	assert.Contains(t, messenger.lastSend().text, "denied by admin")
}

func TestHandleAssignRoleUser(t *testing.T) {
	users := newFakeUserStore(domain.User{
		UserID:   1,
		Username: "alice",
		Status:   domain.StatusPendingRole,
	})
	messenger := &fakeMessenger{inviteLink: "https://t.me/+invite"}
	reg := newRegistration(users, messenger, session.NewStore())

	err := reg.HandleAssignRole(context.Background(), 7, domain.RoleUser, 1)

	require.NoError(t, err)

	stored, _ := users.GetByID(context.Background(), 1)
	assert.Equal(t, domain.RoleUser, stored.Role)
	assert.Equal(t, domain.StatusRegistered, stored.Status)

	assert.Contains(t, messenger.lastEdit().text, "was registered with the role - user")
	require.Len(t, messenger.sends, 2)
	assert.Contains(t, messenger.sends[0].text, "You have been registered!")
	assert.NotNil(t, messenger.sends[0].markup)
	assert.Contains(t, messenger.sends[1].text, "https://t.me/+invite")
}

func TestHandleAssignRoleRestrictedSkipsInvite(t *testing.T) {
	users := newFakeUserStore(domain.User{
		UserID:   1,
		Username: "alice",
		Status:   domain.StatusPendingRole,
	})
	messenger := &fakeMessenger{inviteLink: "https://t.me/+invite"}
	reg := newRegistration(users, messenger, session.NewStore())

	err := reg.HandleAssignRole(context.Background(), 7, domain.RoleRestricted, 1)

	require.NoError(t, err)
	require.Len(t, messenger.sends, 1)
	assert.NotContains(t, messenger.sends[0].text, "invite")
}

func TestHandleAssignRoleInviteFailureKeepsRegistration(t *testing.T) {
	users := newFakeUserStore(domain.User{
		UserID:   1,
		Username: "alice",
		Status:   domain.StatusPendingRole,
	})
	messenger := &fakeMessenger{inviteErr: errors.New("bot is not a member")}
	reg := newRegistration(users, messenger, session.NewStore())

	err := reg.HandleAssignRole(context.Background(), 7, domain.RoleUser, 1)

	require.NoError(t, err)
	stored, _ := users.GetByID(context.Background(), 1)
	assert.Equal(t, domain.StatusRegistered, stored.Status)
}

func TestHandleAssignRoleRejectsUnknownRole(t *testing.T) {
	reg := newRegistration(newFakeUserStore(), &fakeMessenger{}, session.NewStore())

	err := reg.HandleAssignRole(context.Background(), 7, "owner", 1)

	assert.Error(t, err)
}

func TestChangeEmailFlow(t *testing.T) {
	users := newFakeUserStore(registered(1, "alice", domain.RoleUser))
	messenger := &fakeMessenger{}
	sessions := session.NewStore()
	reg := newRegistration(users, messenger, sessions)

	require.NoError(t, reg.StartChangeEmail(context.Background(), 1, 1))
	assert.Equal(t, session.StepAwaitingNewEmail, sessions.Step(1))
	assert.Contains(t, messenger.lastSend().text, "new email")

	require.NoError(t, reg.HandleNewEmail(context.Background(), 1, 1, "new@gmail.com"))

	stored, _ := users.GetByID(context.Background(), 1)
	assert.Equal(t, "new@gmail.com", stored.Email)
	assert.Equal(t, session.StepNone, sessions.Step(1))
	assert.Contains(t, messenger.lastSend().text, "changed to new@gmail.com")
}

func TestStartChangeEmailUnregistered(t *testing.T) {
	users := newFakeUserStore()
	messenger := &fakeMessenger{}
	sessions := session.NewStore()
	reg := newRegistration(users, messenger, sessions)

	require.NoError(t, reg.StartChangeEmail(context.Background(), 1, 1))

	assert.Contains(t, messenger.lastSend().text, "not a registered user")
	assert.Equal(t, session.StepNone, sessions.Step(1))
}

func TestHandleNewEmailInvalidStays(t *testing.T) {
	users := newFakeUserStore(registered(1, "alice", domain.RoleUser))
	messenger := &fakeMessenger{}
	sessions := session.NewStore()
	sessions.SetStep(1, session.StepAwaitingNewEmail)
	reg := NewRegistration(users, messenger, sessions, denyAllEmails{}, adminChat, groupChat, nullEntry())

	require.NoError(t, reg.HandleNewEmail(context.Background(), 1, 1, "bad"))

	stored, _ := users.GetByID(context.Background(), 1)
	assert.Equal(t, "alice@gmail.com", stored.Email)
	assert.Equal(t, session.StepAwaitingNewEmail, sessions.Step(1))
}
