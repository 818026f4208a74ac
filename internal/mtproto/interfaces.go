package mtproto

import "context"

// SessionClient is the interface for one authorization session lifecycle.
// *Client is the real implementation; the bot package mocks this in tests.
type SessionClient interface {
	Connect(ctx context.Context) error
	SendCode(ctx context.Context, phone string) (string, error)
	SignIn(ctx context.Context, phone, phoneCodeHash, code string) (SignInResult, error)
	CheckPassword(ctx context.Context, password string) error
	ExportSession(ctx context.Context) (string, error)
	SendSelf(ctx context.Context, text string) error
	Close(ctx context.Context) error
}

var _ SessionClient = (*Client)(nil)
