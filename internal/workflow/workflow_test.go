package workflow

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/go-telegram/bot/models"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"

	"access_share_bot/internal/domain"
)

// trace records cross-fake call order so tests can assert sequencing.
type trace struct {
	events []string
}

func (t *trace) add(format string, args ...interface{}) {
	t.events = append(t.events, fmt.Sprintf(format, args...))
}

type sentMessage struct {
	chatID int64
	text   string
	markup models.ReplyMarkup
}

type editedMessage struct {
	chatID    int64
	messageID int
	text      string
	markup    models.ReplyMarkup
}

type banCall struct {
	chatID int64
	userID int64
	until  time.Time
}

type fakeMessenger struct {
	trace *trace

	sends []sentMessage
	edits []editedMessage
	bans  []banCall

	inviteLink string
	inviteErr  error
	sendErr    error
	banErr     error
}

func (m *fakeMessenger) Send(_ context.Context, chatID int64, text string, markup models.ReplyMarkup) error {
	if m.trace != nil {
		m.trace.add("send:%d", chatID)
	}
	if m.sendErr != nil {
		return m.sendErr
	}
	m.sends = append(m.sends, sentMessage{chatID: chatID, text: text, markup: markup})
	return nil
}

func (m *fakeMessenger) Edit(_ context.Context, chatID int64, messageID int, text string, markup models.ReplyMarkup) error {
	if m.trace != nil {
		m.trace.add("edit:%d", chatID)
	}
	m.edits = append(m.edits, editedMessage{chatID: chatID, messageID: messageID, text: text, markup: markup})
	return nil
}

func (m *fakeMessenger) Ban(_ context.Context, chatID, userID int64, until time.Time) error {
	if m.trace != nil {
		m.trace.add("ban:%d", userID)
	}
	if m.banErr != nil {
		return m.banErr
	}
	m.bans = append(m.bans, banCall{chatID: chatID, userID: userID, until: until})
	return nil
}

func (m *fakeMessenger) CreateInviteLink(_ context.Context, chatID int64) (string, error) {
	if m.trace != nil {
		m.trace.add("invite:%d", chatID)
	}
	if m.inviteErr != nil {
		return "", m.inviteErr
	}
	return m.inviteLink, nil
}

func (m *fakeMessenger) lastSend() sentMessage {
	if len(m.sends) == 0 {
		return sentMessage{}
	}
	return m.sends[len(m.sends)-1]
}

func (m *fakeMessenger) lastEdit() editedMessage {
	if len(m.edits) == 0 {
		return editedMessage{}
	}
	return m.edits[len(m.edits)-1]
}

type fakeUserStore struct {
	trace *trace

	users map[int64]domain.User

	createErr error
	getErr    error
	listErr   error
	updateErr error
	deleteErr error
}

func newFakeUserStore(users ...domain.User) *fakeUserStore {
	store := &fakeUserStore{users: make(map[int64]domain.User)}
	for _, user := range users {
		store.users[user.UserID] = user
	}
	return store
}

func (s *fakeUserStore) Create(_ context.Context, user domain.User) (domain.User, error) {
	if s.createErr != nil {
		return domain.User{}, s.createErr
	}
	user.Username = domain.NormalizeUsername(user.Username)
	s.users[user.UserID] = user
	return user, nil
}

func (s *fakeUserStore) GetByID(_ context.Context, userID int64) (domain.User, error) {
	if s.getErr != nil {
		return domain.User{}, s.getErr
	}
	user, ok := s.users[userID]
	if !ok {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

func (s *fakeUserStore) GetByUsername(_ context.Context, username string) (domain.User, error) {
	if s.getErr != nil {
		return domain.User{}, s.getErr
	}
	for _, user := range s.users {
		if user.Username == username {
			return user, nil
		}
	}
	return domain.User{}, domain.ErrUserNotFound
}

func (s *fakeUserStore) List(_ context.Context) ([]domain.User, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	users := make([]domain.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (s *fakeUserStore) Update(_ context.Context, userID int64, patch domain.UserPatch) (domain.User, error) {
	if s.updateErr != nil {
		return domain.User{}, s.updateErr
	}
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

func (s *fakeUserStore) Delete(_ context.Context, userID int64) error {
	if s.trace != nil {
		s.trace.add("delete:%d", userID)
	}
	if s.deleteErr != nil {
		return s.deleteErr
	}
	if _, ok := s.users[userID]; !ok {
		return domain.ErrUserNotFound
	}
	delete(s.users, userID)
	return nil
}

type fakeProvider struct {
	trace *trace

	// permissions maps link -> email -> permission id.
	permissions map[string]map[string]string

	grantCalls  []string
	revokeCalls []string

	grantErr   error
	findErrs   map[string]error
	revokeErrs map[string]error
}

func (p *fakeProvider) GrantAccess(_ context.Context, link, email string) error {
	if p.trace != nil {
		p.trace.add("grant:%s", link)
	}
	if p.grantErr != nil {
		return p.grantErr
	}
	p.grantCalls = append(p.grantCalls, link+"|"+email)
	return nil
}

func (p *fakeProvider) FindPermissionID(_ context.Context, link, email string) (string, error) {
	if p.trace != nil {
		p.trace.add("find:%s", link)
	}
	if err := p.findErrs[link]; err != nil {
		return "", err
	}
	return p.permissions[link][email], nil
}

func (p *fakeProvider) RevokeAccess(_ context.Context, link, permissionID string) error {
	if p.trace != nil {
		p.trace.add("revoke:%s", link)
	}
	if err := p.revokeErrs[link]; err != nil {
		return err
	}
	p.revokeCalls = append(p.revokeCalls, link+"|"+permissionID)
	return nil
}

type allowAllEmails struct{}

func (allowAllEmails) IsOrganizationalEmail(string) bool { return true }

type denyAllEmails struct{}

func (denyAllEmails) IsOrganizationalEmail(string) bool { return false }

func nullEntry() *logrus.Entry {
	logger, _ := logtest.NewNullLogger()
	return logger.WithField("test", true)
}
