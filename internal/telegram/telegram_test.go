package telegram

import (
	"context"
	"errors"
	"testing"

	"github.com/go-telegram/bot"
	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"access_share_bot/internal/config"
	"access_share_bot/internal/domain"
	"access_share_bot/internal/drive"
	"access_share_bot/internal/keyboard"
	"access_share_bot/internal/session"
	"access_share_bot/internal/tables"
	"access_share_bot/internal/workflow"
)

const (
	testAdminChat = int64(100)
	testGroupChat = int64(200)
)

type fakeAPI struct {
	startedWith context.Context

	sent     []*bot.SendMessageParams
	edited   []*bot.EditMessageTextParams
	banned   []*bot.BanChatMemberParams
	invites  []*bot.CreateChatInviteLinkParams
	answered []string
}

func (f *fakeAPI) Start(ctx context.Context) {
	f.startedWith = ctx
}

func (f *fakeAPI) SendMessage(_ context.Context, params *bot.SendMessageParams) (*models.Message, error) {
	f.sent = append(f.sent, params)
	return &models.Message{}, nil
}

func (f *fakeAPI) EditMessageText(_ context.Context, params *bot.EditMessageTextParams) (*models.Message, error) {
	f.edited = append(f.edited, params)
	return &models.Message{}, nil
}

func (f *fakeAPI) BanChatMember(_ context.Context, params *bot.BanChatMemberParams) (bool, error) {
	f.banned = append(f.banned, params)
	return true, nil
}

func (f *fakeAPI) CreateChatInviteLink(_ context.Context, params *bot.CreateChatInviteLinkParams) (*models.ChatInviteLink, error) {
	f.invites = append(f.invites, params)
	return &models.ChatInviteLink{InviteLink: "https://t.me/+invite"}, nil
}

func (f *fakeAPI) AnswerCallbackQuery(_ context.Context, params *bot.AnswerCallbackQueryParams) (bool, error) {
	f.answered = append(f.answered, params.CallbackQueryID)
	return true, nil
}

func (f *fakeAPI) lastSent() *bot.SendMessageParams {
	if len(f.sent) == 0 {
		return nil
	}
	return f.sent[len(f.sent)-1]
}

type memStore struct {
	users map[int64]domain.User
}

func newMemStore(users ...domain.User) *memStore {
	store := &memStore{users: make(map[int64]domain.User)}
	for _, user := range users {
		store.users[user.UserID] = user
	}
	return store
}

func (s *memStore) Create(_ context.Context, user domain.User) (domain.User, error) {
	user.Username = domain.NormalizeUsername(user.Username)
	s.users[user.UserID] = user
	return user, nil
}

func (s *memStore) GetByID(_ context.Context, userID int64) (domain.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *memStore) GetByUsername(_ context.Context, name string) (domain.User, error) {
	for _, user := range s.users {
		if user.Username == name {
			return user, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *memStore) List(_ context.Context) ([]domain.User, error) {
	users := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	return users, nil
}

func (s *memStore) Update(_ context.Context, userID int64, patch domain.UserPatch) (domain.User, error) {
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	if patch.Email != nil {
		user.Email = *patch.Email
	}
	if patch.Role != nil {
		user.Role = *patch.Role
	}
	if patch.Status != nil {
		user.Status = *patch.Status
	}
	s.users[userID] = user
	return user, nil
}

func (s *memStore) Delete(_ context.Context, userID int64) error {
	if _, ok := s.users[userID]; !ok {
		return domain.ErrUserNotFound
	}
	delete(s.users, userID)
	return nil
}

type stubProvider struct{}

func (stubProvider) GrantAccess(context.Context, string, string) error { return nil }
func (stubProvider) FindPermissionID(context.Context, string, string) (string, error) {
	return "", nil
}
func (stubProvider) RevokeAccess(context.Context, string, string) error { return nil }

type testHarness struct {
	client   *Client
	api      *fakeAPI
	store    *memStore
	sessions *session.Store
}

func newHarness(t *testing.T, users ...domain.User) *testHarness {
	t.Helper()

	origCreateBot := createBot
	t.Cleanup(func() { createBot = origCreateBot })

	api := &fakeAPI{}
	createBot = func(string, ...bot.Option) (botAPI, error) {
		return api, nil
	}

	hookLogger, _ := logtest.NewNullLogger()
	logger := logrus.NewEntry(hookLogger)

	store := newMemStore(users...)
	sessions := session.NewStore()
	messenger := NewMessenger(logger)
	registry := tables.NewRegistry(map[string]string{
		tables.WebContent:  "https://docs.google.com/spreadsheets/d/web",
		tables.SeoContent:  "https://docs.google.com/spreadsheets/d/seo",
		tables.LinkToGuide: "https://docs.google.com/document/d/guide",
	})
	emails := drive.NewEmailValidator([]string{"gmail.com"})

	wf := Workflows{
		Registration: workflow.NewRegistration(store, messenger, sessions, emails, testAdminChat, testGroupChat, logger),
		Deletion:     workflow.NewDeletion(store, messenger, sessions, stubProvider{}, registry, testGroupChat, logger),
		Access:       workflow.NewAccess(store, messenger, sessions, stubProvider{}, logger),
		Links:        workflow.NewLinks(store, messenger, sessions, registry, logger),
	}

	client, err := NewClient(config.Config{TelegramToken: "token-123"}, messenger, sessions, wf, logger)
	require.NoError(t, err)

	return &testHarness{client: client, api: api, store: store, sessions: sessions}
}

func message(userID, chatID int64, username, text string) *models.Update {
	return &models.Update{
		Message: &models.Message{
			From: &models.User{ID: userID, Username: username, FirstName: "Test"},
			Chat: models.Chat{ID: chatID},
			Text: text,
		},
	}
}

func callback(userID int64, data string, msg *models.Message) *models.Update {
	return &models.Update{
		CallbackQuery: &models.CallbackQuery{
			ID:   "cb-1",
			From: models.User{ID: userID},
			Data: data,
			Message: models.MaybeInaccessibleMessage{
				Type:    models.MaybeInaccessibleMessageTypeMessage,
				Message: msg,
			},
		},
	}
}

func registeredUser(userID int64, username, role string) domain.User {
	return domain.User{
		UserID:   userID,
		Username: username,
		Email:    username + "@gmail.com",
		Role:     role,
		Status:   domain.StatusRegistered,
	}
}

func TestNewClientCreatesBot(t *testing.T) {
	origCreateBot := createBot
	defer func() { createBot = origCreateBot }()

	var gotToken string
	var gotOptions []bot.Option
	api := &fakeAPI{}

	createBot = func(token string, options ...bot.Option) (botAPI, error) {
		gotToken = token
		gotOptions = options
		return api, nil
	}

	hookLogger, _ := logtest.NewNullLogger()
	logger := logrus.NewEntry(hookLogger)
	messenger := NewMessenger(logger)

	client, err := NewClient(config.Config{TelegramToken: "token-123"}, messenger, session.NewStore(), Workflows{}, logger)
	require.NoError(t, err)
	require.NotNil(t, client)
	require.NotNil(t, client.bot)

	assert.Equal(t, "token-123", gotToken)
	assert.Len(t, gotOptions, 3)

	// the messenger is usable once the client exists
	require.NoError(t, messenger.Send(context.Background(), 1, "hi", nil))
	assert.Len(t, api.sent, 1)
}

func TestNewClientPropagatesBotError(t *testing.T) {
	origCreateBot := createBot
	defer func() { createBot = origCreateBot }()

	expected := errors.New("boom")
	createBot = func(string, ...bot.Option) (botAPI, error) {
		return nil, expected
	}

	_, err := NewClient(config.Config{TelegramToken: "token"}, NewMessenger(nil), session.NewStore(), Workflows{}, nil)
	assert.ErrorIs(t, err, expected)
}

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(config.Config{}, NewMessenger(nil), session.NewStore(), Workflows{}, nil)
	assert.Error(t, err)

	_, err = NewClient(config.Config{TelegramToken: "t"}, nil, session.NewStore(), Workflows{}, nil)
	assert.Error(t, err)

	_, err = NewClient(config.Config{TelegramToken: "t"}, NewMessenger(nil), nil, Workflows{}, nil)
	assert.Error(t, err)
}

func TestClientStartLogsAndUsesContext(t *testing.T) {
	hookLogger, hook := logtest.NewNullLogger()
	api := &fakeAPI{}
	client := &Client{
		bot:    api,
		logger: logrus.NewEntry(hookLogger),
	}

	ctx := context.Background()
	client.Start(ctx)

	assert.Equal(t, ctx, api.startedWith)

	entries := hook.AllEntries()
	require.Len(t, entries, 2)
	assert.Equal(t, "telegram_listen", entries[0].Data["event"])
	assert.Equal(t, "telegram_stopped", entries[1].Data["event"])
}

func TestRouterStartCommand(t *testing.T) {
	h := newHarness(t)

	h.client.handleUpdate(context.Background(), nil, message(1, 1, "alice", "/start"))

	require.NotNil(t, h.api.lastSent())
	assert.Contains(t, h.api.lastSent().Text, "Registration process created")
	assert.Equal(t, session.StepAwaitingEmail, h.sessions.Step(1))
}

func TestRouterCommandWithBotSuffix(t *testing.T) {
	h := newHarness(t)

	h.client.handleUpdate(context.Background(), nil, message(1, 1, "alice", "/start@access_share_bot"))

	require.NotNil(t, h.api.lastSent())
	assert.Contains(t, h.api.lastSent().Text, "Registration process created")
}

func TestRouterCancelCommand(t *testing.T) {
	h := newHarness(t)
	h.sessions.SetStep(1, session.StepAwaitingEmail)

	h.client.handleUpdate(context.Background(), nil, message(1, 1, "alice", "/cancel"))

	assert.Equal(t, session.StepNone, h.sessions.Step(1))
	sent := h.api.lastSent()
	require.NotNil(t, sent)
	assert.Contains(t, sent.Text, "Action was cancelled")
	_, ok := sent.ReplyMarkup.(*models.ReplyKeyboardRemove)
	assert.True(t, ok)
}

func TestRouterMeCommand(t *testing.T) {
	h := newHarness(t)

	h.client.handleUpdate(context.Background(), nil, message(7, 7, "alice", "/me"))

	sent := h.api.lastSent()
	require.NotNil(t, sent)
	assert.Contains(t, sent.Text, "User ID: 7")
	assert.Contains(t, sent.Text, "Username: @alice")
}

func TestRouterEmailStep(t *testing.T) {
	h := newHarness(t)
	h.sessions.SetStep(1, session.StepAwaitingEmail)

	h.client.handleUpdate(context.Background(), nil, message(1, 1, "Alice", "alice@gmail.com"))

	stored, err := h.store.GetByID(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "alice", stored.Username)
	assert.Equal(t, domain.StatusPendingApproval, stored.Status)

	// user ack + admin notification
	require.Len(t, h.api.sent, 2)
	assert.Equal(t, testAdminChat, h.api.sent[1].ChatID)
}

func TestRouterDeleteButtonForAdmin(t *testing.T) {
	h := newHarness(t, registeredUser(1, "alice", domain.RoleAdmin))

	h.client.handleUpdate(context.Background(), nil, message(1, 1, "alice", keyboard.ButtonDeleteUser))

	require.NotNil(t, h.api.lastSent())
	assert.Contains(t, h.api.lastSent().Text, "username of user to delete")
	assert.Equal(t, session.StepAwaitingUsername, h.sessions.Step(1))
}

func TestRouterCallbackApprove(t *testing.T) {
	h := newHarness(t, domain.User{
		UserID:   2,
		Username: "bob",
		Status:   domain.StatusPendingApproval,
	})

	h.client.handleUpdate(context.Background(), nil, callback(1, "approve_2", &models.Message{
		ID:   7,
		Chat: models.Chat{ID: testAdminChat},
	}))

	stored, err := h.store.GetByID(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPendingRole, stored.Status)

	require.Len(t, h.api.edited, 1)
	assert.Equal(t, 7, h.api.edited[0].MessageID)
	assert.Equal(t, []string{"cb-1"}, h.api.answered)
}

func TestRouterCallbackMalformed(t *testing.T) {
	h := newHarness(t)

	h.client.handleUpdate(context.Background(), nil, callback(1, "nonsense?!", &models.Message{
		ID:   7,
		Chat: models.Chat{ID: 1},
	}))

	assert.Empty(t, h.api.sent)
	assert.Empty(t, h.api.edited)
	// still acknowledged so the client stops spinning
	assert.Equal(t, []string{"cb-1"}, h.api.answered)
}

func TestRouterStaleConfirmIgnored(t *testing.T) {
	h := newHarness(t)

	h.client.handleUpdate(context.Background(), nil, callback(1, "confirm", &models.Message{
		ID:   7,
		Chat: models.Chat{ID: 1},
	}))

	assert.Empty(t, h.api.sent)
	assert.Empty(t, h.api.edited)
	assert.Equal(t, []string{"cb-1"}, h.api.answered)
}

func TestRouterUnhandledTextIgnored(t *testing.T) {
	h := newHarness(t)

	h.client.handleUpdate(context.Background(), nil, message(1, 1, "alice", "hello there"))

	assert.Empty(t, h.api.sent)
}

func TestCommandParsing(t *testing.T) {
	assert.Equal(t, "/start", command("/start"))
	assert.Equal(t, "/start", command("/start@some_bot"))
	assert.Equal(t, "/start", command("/start now"))
	assert.Equal(t, "/me", command("/me"))
}
