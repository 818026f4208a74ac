package bot

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/aleksis/telegram-stringgen-bot/internal/mtproto"
)

// GenState represents the current step of the string session generation flow.
type GenState int

const (
	GenStateNone GenState = iota
	GenStateAwaitingAppID
	GenStateAwaitingAppHash
	GenStateAwaitingPhone
	GenStateAwaitingCode
	GenStateAwaitingPassword
)

// GenFlowTimeout is how long we wait for user input before resetting the flow.
// An abandoned flow would otherwise hold a gateway connection open forever.
const GenFlowTimeout = 15 * time.Minute

// GenFlow tracks the state of an ongoing string session generation attempt.
// Fields are filled in state order and never mutated once set; Reset clears
// everything and releases the client handle.
type GenFlow struct {
	State    GenState
	AppID    int
	AppHash  string
	Phone    string
	CodeHash string
	Code     string
	Password string

	// Client is the live gateway connection. Non-nil only between the phone
	// step and the terminal transition.
	Client mtproto.SessionClient

	LastInteraction time.Time
}

// NewGenFlow creates a new flow in the initial state.
func NewGenFlow() *GenFlow {
	return &GenFlow{
		State:           GenStateNone,
		LastInteraction: time.Now(),
	}
}

// IsActive returns true if a generation flow is in progress.
func (f *GenFlow) IsActive() bool {
	return f.State != GenStateNone
}

// IsTimedOut returns true if the flow has been inactive for too long.
func (f *GenFlow) IsTimedOut() bool {
	if !f.IsActive() {
		return false
	}
	return time.Since(f.LastInteraction) > GenFlowTimeout
}

// Touch updates the last interaction time.
func (f *GenFlow) Touch() {
	f.LastInteraction = time.Now()
}

// Reset clears the flow state and releases the client handle if one is open.
// Safe to call in any state and more than once.
func (f *GenFlow) Reset(ctx context.Context) {
	if f.Client != nil {
		if err := f.Client.Close(ctx); err != nil {
			log.Warn().Err(err).Msg("failed to close gateway session")
		}
		f.Client = nil
	}
	f.State = GenStateNone
	f.AppID = 0
	f.AppHash = ""
	f.Phone = ""
	f.CodeHash = ""
	f.Code = ""
	f.Password = ""
	f.LastInteraction = time.Now()
}

func (s GenState) String() string {
	switch s {
	case GenStateNone:
		return "None"
	case GenStateAwaitingAppID:
		return "AwaitingAppID"
	case GenStateAwaitingAppHash:
		return "AwaitingAppHash"
	case GenStateAwaitingPhone:
		return "AwaitingPhone"
	case GenStateAwaitingCode:
		return "AwaitingCode"
	case GenStateAwaitingPassword:
		return "AwaitingPassword"
	default:
		return "Unknown"
	}
}
