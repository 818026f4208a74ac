package bot

import (
	"context"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog/log"

	"github.com/aleksis/telegram-stringgen-bot/internal/storage"
)

// Version information, set at build time via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// reaperInterval is how often idle generation flows are checked for timeout.
const reaperInterval = time.Minute

// BotAPI defines the interface for Telegram bot API operations.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot is the main Telegram bot handler.
type Bot struct {
	tg      BotAPI
	state   BotState
	store   storage.Store
	ownerID int64

	genHandler *GenHandler
}

// NewBot creates a new Bot instance. ownerID may be zero when no owner is
// configured; owner-only commands are then silently dropped.
func NewBot(tg BotAPI, store storage.Store, gatewayURL string, ownerID int64) *Bot {
	bot := &Bot{
		tg:      tg,
		store:   store,
		ownerID: ownerID,
	}

	bot.state = bot.NewBotState()
	bot.genHandler = NewGenHandler(store, gatewayURL)

	return bot
}

// HandleUpdate is the main message router.
// It dispatches messages to the appropriate session worker for sequential processing.
func (b *Bot) HandleUpdate(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, false)
}

// handleUpdateSync is like HandleUpdate but waits for message processing to
// complete. Used in tests where we need synchronous behavior.
func (b *Bot) handleUpdateSync(ctx context.Context, update tgbotapi.Update) {
	b.dispatchUpdate(ctx, update, true)
}

// dispatchUpdate routes updates to the appropriate session worker.
// If sync is true, it waits for message processing to complete.
func (b *Bot) dispatchUpdate(ctx context.Context, update tgbotapi.Update, sync bool) {
	if update.Message == nil || update.Message.From == nil {
		return
	}
	if update.Message.Text == "" {
		// Photos, stickers and the like have no place in this flow
		return
	}

	session := b.state.getUserSession(update.Message.From.ID, update.Message.From.FirstName)

	log.Info().Int64("userId", session.userId).Str("text", update.Message.Text).Msg("got message")

	msg := SessionMessage{
		Type:    "text",
		Ctx:     ctx,
		Message: update.Message,
	}
	if sync {
		session.SendSync(msg)
	} else {
		session.Send(msg)
	}
}

// HandleSessionMessage implements MessageHandler.
// This is called by the session worker goroutine for sequential processing.
// No mutex locking is needed here since only one goroutine accesses session state.
func (b *Bot) HandleSessionMessage(ctx context.Context, session *UserSession, msg SessionMessage) {
	switch msg.Type {
	case "text":
		b.handleTextMessage(ctx, session, msg.Message)
	case "gen_timeout":
		b.genHandler.HandleTimeout(ctx, session)
	}
}

// handleTextMessage processes text messages.
// Called from session worker - no locking needed.
func (b *Bot) handleTextMessage(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	// An active generation flow consumes all input, including /cancel
	if b.genHandler.HandleMessage(ctx, session, message.Text) {
		return
	}

	b.handleCommand(ctx, session, message)
}

// handleCommand processes bot commands outside an active flow.
// Called from session worker - no locking needed.
func (b *Bot) handleCommand(ctx context.Context, session *UserSession, message *tgbotapi.Message) {
	command, _ := parseCommand(message.Text)
	switch command {
	case "/start":
		session.reply(MsgWelcome, escapeMarkdown(session.firstName))
	case "/genstring":
		b.genHandler.HandleGenStringCommand(ctx, session)
	case "/cancel":
		// No flow in progress; acknowledge all the same
		session.reply(MsgNothingToDo)
	case "/revoke":
		b.genHandler.HandleRevokeCommand(session)
	case "/version":
		if session.userId != b.ownerID {
			return
		}
		session.reply(MsgVersionInfo, Version, BuildTime)
	default:
		session.reply(MsgUsagePrompt)
	}
}

// RunFlowReaper periodically dispatches a timeout check to every session
// worker so abandoned flows release their gateway connections. The check runs
// inside the worker, serialized with normal message processing.
func (b *Bot) RunFlowReaper(ctx context.Context) {
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("flow reaper stopped")
			return
		case <-ticker.C:
			b.state.forEachSession(func(session *UserSession) {
				session.Send(SessionMessage{Type: "gen_timeout", Ctx: ctx})
			})
		}
	}
}

// Shutdown stops all session workers.
func (b *Bot) Shutdown() {
	b.state.Shutdown()
}
