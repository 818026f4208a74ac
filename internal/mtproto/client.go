// Package mtproto drives a single Telegram user-authorization session against
// an MTProto gateway and exports the result as a portable string session.
// The flow is:
// 1. Connect with api id/hash
// 2. Request a login code for a phone number
// 3. Sign in with the code (the account may additionally require a 2FA password)
// 4. Export the authorized session as a string
package mtproto

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

const DefaultGatewayURL = "http://127.0.0.1:8552"

// apiHashRegex matches the 32-character lowercase hex api hash issued by
// my.telegram.org.
var apiHashRegex = regexp.MustCompile(`^[0-9a-f]{32}$`)

// handleState tracks where the client is in the authorization flow. Operations
// called out of order fail with KindInvalidState instead of confusing the
// gateway.
type handleState int

const (
	stateUnopened handleState = iota
	stateConnected
	stateCodeRequested
	stateAwaitingPassword
	stateAuthorized
	stateExported
	stateClosed
)

func (s handleState) String() string {
	switch s {
	case stateUnopened:
		return "unopened"
	case stateConnected:
		return "connected"
	case stateCodeRequested:
		return "code_requested"
	case stateAwaitingPassword:
		return "awaiting_password"
	case stateAuthorized:
		return "authorized"
	case stateExported:
		return "exported"
	case stateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// SignInResult is the outcome of a SignIn call. PasswordRequired is a flow
// branch, not an error: the account has cloud password (2FA) protection and
// CheckPassword must be called next.
type SignInResult struct {
	PasswordRequired bool
}

// ClientOpts configures a Client. The zero value uses DefaultGatewayURL.
type ClientOpts struct {
	GatewayURL string
}

// Client owns one authorization session on the gateway. It is not safe for
// concurrent use; the bot serializes all calls per user.
type Client struct {
	httpClient *resty.Client
	appID      int
	appHash    string
	deviceID   string
	sessionID  string
	state      handleState
}

// gatewayError is the JSON error body returned by the gateway. Code carries
// the Telegram RPC error code when the fault originated in the API.
type gatewayError struct {
	Code        string `json:"error"`
	Description string `json:"description"`
}

// NewClient validates the credentials and returns an unconnected client.
// Structurally invalid credentials fail here with KindInvalidCredentials,
// before any network traffic.
func NewClient(appID int, appHash string, opts ClientOpts) (*Client, error) {
	if appID <= 0 {
		return nil, &Error{Kind: KindInvalidCredentials, Op: "NewClient", Err: fmt.Errorf("api id must be a positive integer, got %d", appID)}
	}
	if !apiHashRegex.MatchString(appHash) {
		return nil, &Error{Kind: KindInvalidCredentials, Op: "NewClient", Err: fmt.Errorf("api hash must be 32 hex characters")}
	}

	baseURL := DefaultGatewayURL
	if opts.GatewayURL != "" {
		baseURL = opts.GatewayURL
	}

	c := &Client{
		appID:    appID,
		appHash:  appHash,
		deviceID: uuid.NewString(),
		state:    stateUnopened,
	}
	c.httpClient = resty.New().
		SetBaseURL(baseURL).
		SetHeader("Accept", "application/json")

	return c, nil
}

func (c *Client) req(ctx context.Context, result any) *resty.Request {
	request := c.httpClient.
		NewRequest().
		SetContext(ctx).
		SetError(&gatewayError{})

	if result != nil {
		request.SetResult(result)
	}

	return request
}

// checkState verifies the handle is in one of the allowed states for op.
func (c *Client) checkState(op string, allowed ...handleState) error {
	for _, s := range allowed {
		if c.state == s {
			return nil
		}
	}
	return &Error{Kind: KindInvalidState, Op: op, Err: fmt.Errorf("called in state %s", c.state)}
}

// wrapResponse turns a transport error or non-2xx response into an *Error.
// Returns nil when the response is a success.
func wrapResponse(op string, resp *resty.Response, err error) error {
	if err != nil {
		return &Error{Kind: KindNetwork, Op: op, Err: err}
	}
	if resp.IsSuccess() {
		return nil
	}

	gwErr, _ := resp.Error().(*gatewayError)
	if gwErr == nil || gwErr.Code == "" {
		return &Error{Kind: KindNetwork, Op: op, Err: fmt.Errorf("gateway returned %s", resp.Status())}
	}

	desc := gwErr.Description
	if desc == "" {
		desc = gwErr.Code
	}
	kind := kindForCode(gwErr.Code)
	if kind == KindUnknown && resp.StatusCode() >= http.StatusInternalServerError {
		kind = KindNetwork
	}
	return &Error{Kind: kind, Op: op, Code: gwErr.Code, Err: fmt.Errorf("%s", desc)}
}

// Connect establishes the gateway session for this client's credentials.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.checkState("Connect", stateUnopened); err != nil {
		return err
	}

	var result struct {
		SessionID string `json:"session_id"`
	}
	resp, err := c.req(ctx, &result).
		SetBody(map[string]any{
			"api_id":    c.appID,
			"api_hash":  c.appHash,
			"device_id": c.deviceID,
		}).
		Post("/sessions")
	if err := wrapResponse("Connect", resp, err); err != nil {
		return err
	}
	if result.SessionID == "" {
		return &Error{Kind: KindNetwork, Op: "Connect", Err: fmt.Errorf("gateway returned no session id")}
	}

	c.sessionID = result.SessionID
	c.state = stateConnected
	return nil
}

// SendCode asks Telegram to deliver a login code to the account behind phone.
// The returned phone code hash correlates the sent code with the SignIn call.
func (c *Client) SendCode(ctx context.Context, phone string) (string, error) {
	if err := c.checkState("SendCode", stateConnected); err != nil {
		return "", err
	}

	var result struct {
		PhoneCodeHash string `json:"phone_code_hash"`
	}
	resp, err := c.req(ctx, &result).
		SetBody(map[string]string{"phone": phone}).
		Post("/sessions/" + c.sessionID + "/code")
	if err := wrapResponse("SendCode", resp, err); err != nil {
		return "", err
	}
	if result.PhoneCodeHash == "" {
		return "", &Error{Kind: KindNetwork, Op: "SendCode", Err: fmt.Errorf("gateway returned no phone code hash")}
	}

	c.state = stateCodeRequested
	return result.PhoneCodeHash, nil
}

// SignIn submits the login code the user received. When the account has a
// cloud password the result has PasswordRequired set and CheckPassword must
// be called to finish authorization.
func (c *Client) SignIn(ctx context.Context, phone, phoneCodeHash, code string) (SignInResult, error) {
	if err := c.checkState("SignIn", stateCodeRequested); err != nil {
		return SignInResult{}, err
	}

	var result struct {
		Authorized       bool `json:"authorized"`
		PasswordRequired bool `json:"password_required"`
	}
	resp, err := c.req(ctx, &result).
		SetBody(map[string]string{
			"phone":           phone,
			"phone_code_hash": phoneCodeHash,
			"code":            code,
		}).
		Post("/sessions/" + c.sessionID + "/signIn")

	// SESSION_PASSWORD_NEEDED is how the API signals the 2FA branch. Some
	// gateway builds report it as a 401 instead of a password_required field.
	if err == nil && resp.StatusCode() == http.StatusUnauthorized {
		if gwErr, ok := resp.Error().(*gatewayError); ok && gwErr.Code == "SESSION_PASSWORD_NEEDED" {
			c.state = stateAwaitingPassword
			return SignInResult{PasswordRequired: true}, nil
		}
	}
	if err := wrapResponse("SignIn", resp, err); err != nil {
		return SignInResult{}, err
	}

	if result.PasswordRequired {
		c.state = stateAwaitingPassword
		return SignInResult{PasswordRequired: true}, nil
	}
	if !result.Authorized {
		return SignInResult{}, &Error{Kind: KindVerificationFailed, Op: "SignIn", Err: fmt.Errorf("gateway did not authorize the session")}
	}

	c.state = stateAuthorized
	return SignInResult{}, nil
}

// CheckPassword submits the account's cloud password (second factor).
func (c *Client) CheckPassword(ctx context.Context, password string) error {
	if err := c.checkState("CheckPassword", stateAwaitingPassword); err != nil {
		return err
	}

	resp, err := c.req(ctx, nil).
		SetBody(map[string]string{"password": password}).
		Post("/sessions/" + c.sessionID + "/password")
	if err := wrapResponse("CheckPassword", resp, err); err != nil {
		return err
	}

	c.state = stateAuthorized
	return nil
}

// ExportSession serializes the authorized session into a portable string.
func (c *Client) ExportSession(ctx context.Context) (string, error) {
	if err := c.checkState("ExportSession", stateAuthorized); err != nil {
		return "", err
	}

	var result struct {
		StringSession string `json:"string_session"`
	}
	resp, err := c.req(ctx, &result).
		Get("/sessions/" + c.sessionID + "/export")
	if err := wrapResponse("ExportSession", resp, err); err != nil {
		return "", err
	}
	if result.StringSession == "" {
		return "", &Error{Kind: KindNetwork, Op: "ExportSession", Err: fmt.Errorf("gateway returned an empty session")}
	}

	c.state = stateExported
	return result.StringSession, nil
}

// SendSelf sends a message to the authorized account's own Saved Messages.
// Valid once the session is authorized, including after export.
func (c *Client) SendSelf(ctx context.Context, text string) error {
	if err := c.checkState("SendSelf", stateAuthorized, stateExported); err != nil {
		return err
	}

	resp, err := c.req(ctx, nil).
		SetBody(map[string]string{"text": text}).
		Post("/sessions/" + c.sessionID + "/messages")
	return wrapResponse("SendSelf", resp, err)
}

// Close releases the gateway session. It is safe to call multiple times and
// in any state; calls after the first are no-ops.
func (c *Client) Close(ctx context.Context) error {
	if c.state == stateClosed {
		return nil
	}
	// Never opened, nothing to release on the gateway.
	if c.state == stateUnopened || c.sessionID == "" {
		c.state = stateClosed
		return nil
	}

	resp, err := c.req(ctx, nil).
		Delete("/sessions/" + c.sessionID)
	c.state = stateClosed
	return wrapResponse("Close", resp, err)
}

// Closed reports whether the handle has been released.
func (c *Client) Closed() bool {
	return c.state == stateClosed
}
