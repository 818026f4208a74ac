package bot

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// BotState owns the map from Telegram user id to UserSession. It is the only
// process-wide mutable state; access to the map goes through the mutex, and
// each session's own state is touched only by its worker goroutine.
type BotState struct {
	bot      *Bot
	mu       sync.Mutex
	sessions map[int64]*UserSession
}

func (bs *BotState) newUserSession(userId int64, firstName string) *UserSession {
	ctx, cancel := context.WithCancel(context.Background())
	session := UserSession{
		userId:    userId,
		firstName: firstName,
		sender:    bs.bot.tg,
		genFlow:   NewGenFlow(),
		inbox:     make(chan SessionMessage, 10), // Buffered to avoid blocking
		ctx:       ctx,
		cancel:    cancel,
	}

	log.Info().Int64("userId", userId).Msg("new user session created")
	return &session
}

func (bs *BotState) getUserSession(userId int64, firstName string) *UserSession {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if session, ok := bs.sessions[userId]; ok {
		return session
	}
	session := bs.newUserSession(userId, firstName)
	// Set the bot as the message handler and start the worker
	session.SetHandler(bs.bot)
	session.StartWorker()
	bs.sessions[userId] = session
	return session
}

// forEachSession calls fn for every known session, outside the map lock.
func (bs *BotState) forEachSession(fn func(*UserSession)) {
	bs.mu.Lock()
	sessions := make([]*UserSession, 0, len(bs.sessions))
	for _, session := range bs.sessions {
		sessions = append(sessions, session)
	}
	bs.mu.Unlock()

	for _, session := range sessions {
		fn(session)
	}
}

func (b *Bot) NewBotState() BotState {
	return BotState{
		bot:      b,
		sessions: make(map[int64]*UserSession),
	}
}

// Shutdown stops all session workers gracefully.
func (bs *BotState) Shutdown() {
	count := 0
	bs.forEachSession(func(session *UserSession) {
		session.Stop()
		count++
	})
	log.Info().Int("count", count).Msg("stopped all session workers")
}
