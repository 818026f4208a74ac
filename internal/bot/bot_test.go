package bot

import (
	"context"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aleksis/telegram-stringgen-bot/internal/mtproto"
	"github.com/aleksis/telegram-stringgen-bot/internal/storage"
)

// fakeStore is an in-memory storage.Store for routing tests.
type fakeStore struct {
	sessions map[int64]*storage.StoredSession
}

func newFakeStore() *fakeStore {
	return &fakeStore{sessions: make(map[int64]*storage.StoredSession)}
}

func (f *fakeStore) SaveSession(session *storage.StoredSession) error {
	f.sessions[session.TelegramID] = session
	return nil
}

func (f *fakeStore) GetSession(telegramID int64) (*storage.StoredSession, error) {
	return f.sessions[telegramID], nil
}

func (f *fakeStore) DeleteSession(telegramID int64) error {
	delete(f.sessions, telegramID)
	return nil
}

func (f *fakeStore) Close() error { return nil }

func makeUpdate(userID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{
		Message: &tgbotapi.Message{
			From: &tgbotapi.User{ID: userID, FirstName: "Test"},
			Text: text,
		},
	}
}

func newTestBot(t *testing.T, client *mockSessionClient) (*Bot, *mockSender, *fakeStore) {
	t.Helper()
	sender := &mockSender{}
	store := newFakeStore()
	b := NewBot(sender, store, "", 99)
	b.genHandler.newClient = func(appID int, appHash string) (mtproto.SessionClient, error) {
		return client, nil
	}
	t.Cleanup(b.Shutdown)
	return b, sender, store
}

func TestBot_StartCommand(t *testing.T) {
	b, sender, _ := newTestBot(t, &mockSessionClient{})

	b.handleUpdateSync(context.Background(), makeUpdate(1, "/start"))

	require.Len(t, sender.sent, 1)
	assert.Contains(t, sender.sent[0].Text, "Test")
	assert.Contains(t, sender.sent[0].Text, "/genstring")
}

func TestBot_FullFlowThroughWorker(t *testing.T) {
	client := &mockSessionClient{codeHash: "h1", exported: "AQAA=="}
	b, sender, store := newTestBot(t, client)
	ctx := context.Background()

	b.handleUpdateSync(ctx, makeUpdate(1, "/genstring"))
	b.handleUpdateSync(ctx, makeUpdate(1, "12345"))
	b.handleUpdateSync(ctx, makeUpdate(1, testAppHash))
	b.handleUpdateSync(ctx, makeUpdate(1, "+358401234567"))
	b.handleUpdateSync(ctx, makeUpdate(1, "111 22"))

	assert.Equal(t, formatReplyText(MsgGenSuccess), sender.lastText())
	assert.Equal(t, 1, client.closeCount)
	require.NotNil(t, store.sessions[1])
	assert.Equal(t, "AQAA==", store.sessions[1].StringSession)
	assert.Equal(t, "+358401234567", store.sessions[1].Phone)
}

func TestBot_CancelWithoutFlow(t *testing.T) {
	b, sender, _ := newTestBot(t, &mockSessionClient{})

	b.handleUpdateSync(context.Background(), makeUpdate(1, "/cancel"))

	assert.Equal(t, formatReplyText(MsgNothingToDo), sender.lastText())
}

func TestBot_RevokeCommand(t *testing.T) {
	b, sender, store := newTestBot(t, &mockSessionClient{})
	ctx := context.Background()

	b.handleUpdateSync(ctx, makeUpdate(1, "/revoke"))
	assert.Equal(t, formatReplyText(MsgNoStoredSession), sender.lastText())

	store.sessions[1] = &storage.StoredSession{TelegramID: 1, StringSession: "AQAA=="}
	b.handleUpdateSync(ctx, makeUpdate(1, "/revoke"))
	assert.Equal(t, formatReplyText(MsgSessionRevoked), sender.lastText())
	assert.Nil(t, store.sessions[1])
}

func TestBot_VersionIsOwnerOnly(t *testing.T) {
	b, sender, _ := newTestBot(t, &mockSessionClient{})
	ctx := context.Background()

	b.handleUpdateSync(ctx, makeUpdate(1, "/version"))
	assert.Empty(t, sender.sent)

	b.handleUpdateSync(ctx, makeUpdate(99, "/version"))
	assert.Contains(t, sender.lastText(), "Version")
}

func TestBot_UnknownTextPromptsUsage(t *testing.T) {
	b, sender, _ := newTestBot(t, &mockSessionClient{})

	b.handleUpdateSync(context.Background(), makeUpdate(1, "hello there"))

	assert.Equal(t, formatReplyText(MsgUsagePrompt), sender.lastText())
}

func TestBot_GenStringRestartsMidFlow(t *testing.T) {
	client := &mockSessionClient{codeHash: "h1"}
	b, sender, _ := newTestBot(t, client)
	ctx := context.Background()

	b.handleUpdateSync(ctx, makeUpdate(1, "/genstring"))
	b.handleUpdateSync(ctx, makeUpdate(1, "12345"))
	b.handleUpdateSync(ctx, makeUpdate(1, testAppHash))
	b.handleUpdateSync(ctx, makeUpdate(1, "+358401234567"))

	s := b.state.getUserSession(1, "Test")
	require.Equal(t, GenStateAwaitingCode, s.FlowState())

	// Re-entering the command mid-flow discards the attempt, releases its
	// connection, and starts over from the first step
	b.handleUpdateSync(ctx, makeUpdate(1, "/genstring"))

	assert.Equal(t, GenStateAwaitingAppID, s.FlowState())
	assert.Nil(t, s.genFlow.Client)
	assert.Equal(t, 1, client.closeCount)

	require.GreaterOrEqual(t, len(sender.sent), 2)
	assert.Equal(t, formatReplyText(MsgGenRestarted), sender.sent[len(sender.sent)-2].Text)
	assert.Equal(t, "Previous attempt discarded.", sender.sent[len(sender.sent)-2].Text)
	assert.Equal(t, formatReplyText(MsgGenStart), sender.lastText())
}

func TestBot_UsersAreIsolated(t *testing.T) {
	client := &mockSessionClient{codeHash: "h1"}
	b, _, _ := newTestBot(t, client)
	ctx := context.Background()

	b.handleUpdateSync(ctx, makeUpdate(1, "/genstring"))
	b.handleUpdateSync(ctx, makeUpdate(1, "12345"))

	// A second user's message must not advance the first user's flow
	b.handleUpdateSync(ctx, makeUpdate(2, testAppHash))

	s1 := b.state.getUserSession(1, "Test")
	s2 := b.state.getUserSession(2, "Test")
	assert.Equal(t, GenStateAwaitingAppHash, s1.FlowState())
	assert.Equal(t, GenStateNone, s2.FlowState())
}
