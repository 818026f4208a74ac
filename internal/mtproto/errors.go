package mtproto

import (
	"errors"
	"fmt"
)

// ErrorKind classifies adapter failures so the caller can decide how to
// present them without matching on gateway error strings.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	// KindInvalidCredentials means the api id/hash pair was rejected, either
	// by client-side validation before any network call or by the gateway.
	KindInvalidCredentials
	// KindNetwork covers transport failures and gateway-side faults.
	KindNetwork
	// KindVerificationFailed means a code or password was rejected.
	KindVerificationFailed
	// KindInvalidState means an operation was called out of order on the
	// client handle. This indicates a bug in the caller, not a flow outcome.
	KindInvalidState
)

func (k ErrorKind) String() string {
	switch k {
	case KindInvalidCredentials:
		return "invalid_credentials"
	case KindNetwork:
		return "network"
	case KindVerificationFailed:
		return "verification_failed"
	case KindInvalidState:
		return "invalid_state"
	default:
		return "unknown"
	}
}

// Error is the error type returned by all Client operations.
type Error struct {
	Kind ErrorKind
	Op   string // operation that failed, e.g. "SendCode"
	Code string // gateway error code, e.g. "PHONE_CODE_INVALID", if any
	Err  error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("mtproto: %s: %s (%s)", e.Op, e.Err, e.Code)
	}
	return fmt.Sprintf("mtproto: %s: %s", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsKind reports whether err is an *Error of the given kind.
func IsKind(err error, kind ErrorKind) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// kindForCode maps Telegram RPC error codes surfaced by the gateway to an
// ErrorKind. Codes not listed here are KindUnknown.
func kindForCode(code string) ErrorKind {
	switch code {
	case "API_ID_INVALID", "API_ID_PUBLISHED_FLOOD", "API_HASH_INVALID":
		return KindInvalidCredentials
	case "PHONE_NUMBER_INVALID", "PHONE_NUMBER_BANNED", "PHONE_NUMBER_FLOOD":
		return KindVerificationFailed
	case "PHONE_CODE_INVALID", "PHONE_CODE_EXPIRED", "PHONE_CODE_EMPTY",
		"PASSWORD_HASH_INVALID", "SRP_PASSWORD_CHANGED":
		return KindVerificationFailed
	default:
		return KindUnknown
	}
}
