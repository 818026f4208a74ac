package bot

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/aleksis/telegram-stringgen-bot/internal/mtproto"
	"github.com/aleksis/telegram-stringgen-bot/internal/storage"
)

// GenHandler drives the string session generation flow for the bot. All
// methods are called from the session worker, so flow state needs no locking.
type GenHandler struct {
	store storage.Store

	// newClient creates a session client for the given credentials.
	// Tests substitute a mock implementation here.
	newClient func(appID int, appHash string) (mtproto.SessionClient, error)
}

// NewGenHandler creates a new generation flow handler. gatewayURL may be
// empty to use the default gateway address.
func NewGenHandler(store storage.Store, gatewayURL string) *GenHandler {
	return &GenHandler{
		store: store,
		newClient: func(appID int, appHash string) (mtproto.SessionClient, error) {
			return mtproto.NewClient(appID, appHash, mtproto.ClientOpts{GatewayURL: gatewayURL})
		},
	}
}

// HandleGenStringCommand starts the generation flow. A flow already in
// progress is discarded first, releasing its gateway connection.
func (h *GenHandler) HandleGenStringCommand(ctx context.Context, session *UserSession) {
	if session.genFlow.IsActive() {
		session.genFlow.Reset(ctx)
		session.reply(MsgGenRestarted)
	}

	session.genFlow.State = GenStateAwaitingAppID
	session.genFlow.Touch()
	session.reply(MsgGenStart)
}

// HandleMessage handles messages while the generation flow is active.
// Returns true if the message was consumed by the flow.
// Called from session worker - no locking needed.
func (h *GenHandler) HandleMessage(ctx context.Context, session *UserSession, text string) bool {
	// Check flow timeout
	if session.genFlow.IsTimedOut() {
		session.genFlow.Reset(ctx)
		session.reply(MsgGenTimeout)
		return true
	}

	if !session.genFlow.IsActive() {
		return false
	}

	// Handle /cancel to abort the flow
	if text == "/cancel" {
		session.genFlow.Reset(ctx)
		session.reply(MsgGenCancelled)
		return true
	}

	// /genstring restarts from the first step, discarding progress and
	// releasing the open gateway connection
	if text == "/genstring" {
		h.HandleGenStringCommand(ctx, session)
		return true
	}

	// Reject other commands during the flow; whatever the user sends next is
	// interpreted as input for the step we are waiting on
	if len(text) > 0 && text[0] == '/' {
		session.reply(MsgGenInProgress)
		return true
	}

	session.genFlow.Touch()

	switch session.genFlow.State {
	case GenStateAwaitingAppID:
		h.handleAppID(session, text)
	case GenStateAwaitingAppHash:
		h.handleAppHash(session, text)
	case GenStateAwaitingPhone:
		h.handlePhone(ctx, session, text)
	case GenStateAwaitingCode:
		h.handleCode(ctx, session, text)
	case GenStateAwaitingPassword:
		h.handlePassword(ctx, session, text)
	}
	return true
}

// HandleTimeout resets the flow if it has been idle past GenFlowTimeout.
// Dispatched by the reaper through the session worker.
func (h *GenHandler) HandleTimeout(ctx context.Context, session *UserSession) {
	if !session.genFlow.IsTimedOut() {
		return
	}
	log.Info().Int64("userId", session.userId).
		Str("state", session.genFlow.State.String()).
		Msg("generation flow timed out")
	session.genFlow.Reset(ctx)
	session.reply(MsgGenTimeout)
}

// HandleRevokeCommand deletes the user's stored string session, if any.
func (h *GenHandler) HandleRevokeCommand(session *UserSession) {
	stored, err := h.store.GetSession(session.userId)
	if err != nil {
		session.replyWithError(err)
		return
	}
	if stored == nil {
		session.reply(MsgNoStoredSession)
		return
	}
	if err := h.store.DeleteSession(session.userId); err != nil {
		session.replyWithError(err)
		return
	}
	session.reply(MsgSessionRevoked)
}

// handleAppID parses the numeric api id. A malformed value re-prompts without
// advancing; this is the only input retried in place.
func (h *GenHandler) handleAppID(session *UserSession, text string) {
	appID, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		session.reply(MsgInvalidAppID)
		return
	}

	session.genFlow.AppID = appID
	session.genFlow.State = GenStateAwaitingAppHash
	session.reply(MsgSendAppHash)
}

func (h *GenHandler) handleAppHash(session *UserSession, text string) {
	// Nothing can be validated here beyond shape; the client constructor
	// checks that at the phone step
	session.genFlow.AppHash = strings.TrimSpace(text)
	session.genFlow.State = GenStateAwaitingPhone
	session.reply(MsgSendPhone)
}

// handlePhone opens the gateway connection and requests a login code. This is
// the transition that creates the client handle; from here to the terminal
// transition the flow owns a live connection.
func (h *GenHandler) handlePhone(ctx context.Context, session *UserSession, text string) {
	flow := session.genFlow
	flow.Phone = strings.TrimSpace(text)

	client, err := h.newClient(flow.AppID, flow.AppHash)
	if err != nil {
		h.fail(ctx, session, err)
		return
	}
	// Attach the handle before connecting so Reset releases it on any
	// failure from here on
	flow.Client = client

	if err := client.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("gateway connect failed")
		h.fail(ctx, session, err)
		return
	}

	codeHash, err := client.SendCode(ctx, flow.Phone)
	if err != nil {
		log.Error().Err(err).Msg("code request failed")
		h.fail(ctx, session, err)
		return
	}

	flow.CodeHash = codeHash
	flow.State = GenStateAwaitingCode
	session.reply(MsgCodeSent)
}

func (h *GenHandler) handleCode(ctx context.Context, session *UserSession, text string) {
	flow := session.genFlow
	flow.Code = normalizeCode(text)

	result, err := flow.Client.SignIn(ctx, flow.Phone, flow.CodeHash, flow.Code)
	if err != nil {
		log.Error().Err(err).Msg("sign in failed")
		h.fail(ctx, session, err)
		return
	}

	if result.PasswordRequired {
		flow.State = GenStateAwaitingPassword
		session.reply(MsgSendPassword)
		return
	}

	h.finalize(ctx, session)
}

func (h *GenHandler) handlePassword(ctx context.Context, session *UserSession, text string) {
	flow := session.genFlow
	flow.Password = text

	if err := flow.Client.CheckPassword(ctx, flow.Password); err != nil {
		log.Error().Err(err).Msg("password check failed")
		h.fail(ctx, session, err)
		return
	}

	h.finalize(ctx, session)
}

// finalize exports the string session, persists it, and delivers it to the
// user's Saved Messages. Delivery is best-effort: on failure the session is
// sent in the chat instead. The handle is released on every path.
func (h *GenHandler) finalize(ctx context.Context, session *UserSession) {
	flow := session.genFlow
	defer flow.Reset(ctx)

	stringSession, err := flow.Client.ExportSession(ctx)
	if err != nil {
		log.Error().Err(err).Msg("session export failed")
		session.reply(MsgGenFailed, err)
		return
	}

	if h.store != nil {
		stored := &storage.StoredSession{
			TelegramID:    session.userId,
			Phone:         flow.Phone,
			StringSession: stringSession,
		}
		if err := h.store.SaveSession(stored); err != nil {
			log.Warn().Err(err).Msg("failed to persist string session")
		}
	}

	if err := flow.Client.SendSelf(ctx, formatReplyText(MsgSavedMsgHeader, stringSession)); err != nil {
		log.Warn().Err(err).Msg("saved messages delivery failed, falling back to chat")
		session.reply(MsgGenFallback, stringSession)
	} else {
		session.reply(MsgGenSuccess)
	}

	log.Info().Int64("userId", session.userId).Msg("string session generated")
}

// fail reports the error to the user and terminates the flow, releasing the
// handle. Every failure past the app id step ends the conversation; the user
// restarts with /genstring.
func (h *GenHandler) fail(ctx context.Context, session *UserSession, err error) {
	session.reply(MsgGenFailed, err)
	session.genFlow.Reset(ctx)
}
