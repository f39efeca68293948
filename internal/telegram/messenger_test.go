package telegram

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func boundMessenger() (*Messenger, *fakeAPI) {
	api := &fakeAPI{}
	messenger := NewMessenger(nil)
	messenger.bind(api)
	return messenger, api
}

func TestMessengerUnboundFails(t *testing.T) {
	messenger := NewMessenger(nil)

	assert.Error(t, messenger.Send(context.Background(), 1, "hi", nil))
	assert.Error(t, messenger.Edit(context.Background(), 1, 2, "hi", nil))
	assert.Error(t, messenger.Ban(context.Background(), 1, 2, time.Now()))
	_, err := messenger.CreateInviteLink(context.Background(), 1)
	assert.Error(t, err)
}

func TestMessengerSend(t *testing.T) {
	messenger, api := boundMessenger()

	require.NoError(t, messenger.Send(context.Background(), 5, "hello", nil))

	require.Len(t, api.sent, 1)
	assert.Equal(t, int64(5), api.sent[0].ChatID)
	assert.Equal(t, "hello", api.sent[0].Text)
}

func TestMessengerEdit(t *testing.T) {
	messenger, api := boundMessenger()

	require.NoError(t, messenger.Edit(context.Background(), 5, 9, "updated", nil))

	require.Len(t, api.edited, 1)
	assert.Equal(t, int64(5), api.edited[0].ChatID)
	assert.Equal(t, 9, api.edited[0].MessageID)
	assert.Equal(t, "updated", api.edited[0].Text)
}

func TestMessengerBan(t *testing.T) {
	messenger, api := boundMessenger()
	until := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	require.NoError(t, messenger.Ban(context.Background(), 5, 9, until))

	require.Len(t, api.banned, 1)
	assert.Equal(t, int64(5), api.banned[0].ChatID)
	assert.Equal(t, int64(9), api.banned[0].UserID)
	assert.Equal(t, int(until.Unix()), api.banned[0].UntilDate)
	assert.True(t, api.banned[0].RevokeMessages)
}

func TestMessengerCreateInviteLink(t *testing.T) {
	messenger, api := boundMessenger()

	link, err := messenger.CreateInviteLink(context.Background(), 5)

	require.NoError(t, err)
	assert.Equal(t, "https://t.me/+invite", link)
	require.Len(t, api.invites, 1)
	assert.Equal(t, int64(5), api.invites[0].ChatID)
	assert.Equal(t, 1, api.invites[0].MemberLimit)
}
