// Package flock is a multi-account Discord client. Each logged-in account
// gets its own gateway session, cache, and REST access; a shared router
// dispatches normalized events to the handlers registered on the client.
package flock

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/altcord/flock/model"
)

const (
	defaultAPIVersion   = 10
	defaultCapabilities = 4093
	defaultIntents      = 98047

	defaultRequestLatency    = 100 * time.Millisecond
	defaultRateLimitCooldown = 10 * time.Second
	defaultSendDelay         = 100 * time.Millisecond
	defaultFallbackHeartbeat = 5 * time.Second
)

func defaultIdentifyProperties() model.IdentifyProperties {
	return model.IdentifyProperties{
		OS:      "Windows Desktop",
		Browser: "Chrome",
		Device:  "Windows",
	}
}

// Options configure a Client. The zero value is usable; fillDefaults
// supplies everything left unset.
type Options struct {
	// APIVersion selects the Discord API version, 9 or 10.
	APIVersion int

	// GatewayURL overrides the default gateway endpoint.
	GatewayURL string

	// APIBase overrides the default REST endpoint.
	APIBase string

	// Presence, when set, is announced by every account after login and
	// also selects the platform reported during the handshake.
	Presence *Presence

	// Debugger receives raw gateway traffic. Defaults to NilDebugger.
	Debugger Debugger

	// Logger receives client logs. Defaults to the built-in console logger.
	Logger *zap.Logger

	// Debug lowers the default logger's level. Ignored when Logger is set.
	Debug bool

	// HTTPClient performs REST requests.
	HTTPClient *http.Client

	// RequestLatency is the pause after every REST request.
	RequestLatency time.Duration

	// RateLimitCooldown is added on top of the server's retry-after wait.
	RateLimitCooldown time.Duration

	// SendDelay is the pause between consecutive gateway writes.
	SendDelay time.Duration

	// FallbackHeartbeat is the heartbeat interval used until the gateway
	// announces its own.
	FallbackHeartbeat time.Duration

	Capabilities int
	Intents      int
}

func (o *Options) fillDefaults() error {
	if o.APIVersion == 0 {
		o.APIVersion = defaultAPIVersion
	}
	if o.APIVersion != 9 && o.APIVersion != 10 {
		return ErrUnsupportedAPIVersion
	}
	if o.Debugger == nil {
		o.Debugger = NilDebugger{}
	}
	if o.Logger == nil {
		o.Logger = NewLogger(o.Debug)
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.RequestLatency == 0 {
		o.RequestLatency = defaultRequestLatency
	}
	if o.RateLimitCooldown == 0 {
		o.RateLimitCooldown = defaultRateLimitCooldown
	}
	if o.SendDelay == 0 {
		o.SendDelay = defaultSendDelay
	}
	if o.FallbackHeartbeat == 0 {
		o.FallbackHeartbeat = defaultFallbackHeartbeat
	}
	if o.Capabilities == 0 {
		o.Capabilities = defaultCapabilities
	}
	if o.Intents == 0 {
		o.Intents = defaultIntents
	}
	if o.Presence != nil {
		o.Presence.fillDefaults()
	}
	return nil
}

func (o *Options) sessionOptions() sessionOptions {
	props := defaultIdentifyProperties()
	var presence *model.StatusUpdate
	if o.Presence != nil {
		props = o.Presence.identifyProperties()
		presence = o.Presence.statusUpdate(time.Now())
	}
	return sessionOptions{
		APIVersion:        o.APIVersion,
		GatewayURL:        o.GatewayURL,
		Properties:        props,
		Capabilities:      o.Capabilities,
		Intents:           o.Intents,
		Presence:          presence,
		Debugger:          o.Debugger,
		Log:               o.Logger,
		SendDelay:         o.SendDelay,
		FallbackHeartbeat: o.FallbackHeartbeat,
	}
}

// A Client manages a set of accounts sharing one configuration and one
// event router.
type Client struct {
	opts   Options
	log    *zap.Logger
	router *Router
	tx     *Transport

	mu       sync.Mutex
	accounts []*Account
	pool     *Pool
}

// New builds a client from the given options.
func New(opts Options) (*Client, error) {
	if err := opts.fillDefaults(); err != nil {
		return nil, err
	}

	base := opts.APIBase
	if base == "" {
		base = fmt.Sprintf(restEndpoint, opts.APIVersion)
	}
	return &Client{
		opts:   opts,
		log:    opts.Logger,
		router: NewRouter(opts.Logger),
		tx:     newTransport(opts.HTTPClient, base, opts.RequestLatency, opts.RateLimitCooldown, opts.Logger),
	}, nil
}

// Login validates each token against the REST API and keeps the accounts
// that check out. Tokens that fail validation are dropped with a warning,
// never stopping the rest. ErrNoAccounts is returned when nothing survived.
func (c *Client) Login(ctx context.Context, tokens ...string) error {
	for _, token := range tokens {
		resp, err := c.tx.Do(ctx, http.MethodGet, "users/@me", token, nil)
		if err != nil {
			return err
		}
		if resp.Status != http.StatusOK {
			c.log.Warn("dropping invalid token",
				zap.String("token", truncateToken(token)),
				zap.Int("status", resp.Status))
			continue
		}

		var user model.User
		if err := resp.JSON(&user); err != nil {
			c.log.Warn("dropping token with malformed identity",
				zap.String("token", truncateToken(token)),
				zap.Error(err))
			continue
		}

		account := newAccount(token, &user, c.tx)
		c.mu.Lock()
		c.accounts = append(c.accounts, account)
		c.mu.Unlock()
		c.log.Info("account logged in", zap.String("user", account.String()))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.accounts) == 0 {
		return ErrNoAccounts
	}
	return nil
}

// Accounts returns the logged-in accounts in login order.
func (c *Client) Accounts() []*Account {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Account, len(c.accounts))
	copy(out, c.accounts)
	return out
}

// On registers a handler for a normalized event kind, shared by every
// account's session.
func (c *Client) On(kind EventKind, fn HandlerFunc) error {
	return c.router.Register(kind, fn)
}

// OnDefault registers a fallback handler used when no On handler exists for
// the kind.
func (c *Client) OnDefault(kind EventKind, fn HandlerFunc) error {
	return c.router.RegisterDefault(kind, fn)
}

func (c *Client) buildPool() (*Pool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.accounts) == 0 {
		return nil, ErrNoAccounts
	}
	if c.pool == nil {
		c.pool = newPool(c.accounts, c.router, c.opts.sessionOptions())
	}
	return c.pool, nil
}

// Run connects every account's gateway session and blocks until ctx is
// cancelled or all sessions have stopped.
func (c *Client) Run(ctx context.Context) error {
	pool, err := c.buildPool()
	if err != nil {
		return err
	}
	return pool.Run(ctx)
}

// Start connects every account's gateway session without blocking. Session
// failures arrive on the returned channel, which closes when all sessions
// have stopped.
func (c *Client) Start(ctx context.Context) (<-chan error, error) {
	pool, err := c.buildPool()
	if err != nil {
		return nil, err
	}
	return pool.Start(ctx), nil
}

// Close stops every running session.
func (c *Client) Close() {
	c.mu.Lock()
	pool := c.pool
	c.mu.Unlock()
	if pool != nil {
		pool.Close()
	}
}

// SendMessageAll sends the same message from every account. Per-account
// failures are logged and skipped; the responses of the accounts that
// succeeded are returned.
func (c *Client) SendMessageAll(ctx context.Context, channelID, content string) []*Response {
	var out []*Response
	for _, a := range c.Accounts() {
		resp, err := a.SendMessage(ctx, channelID, content)
		if err != nil {
			c.log.Warn("send failed", zap.String("account", a.ID), zap.Error(err))
			continue
		}
		out = append(out, resp)
	}
	return out
}

// SetPresenceAll announces a new presence on every live session.
func (c *Client) SetPresenceAll(ctx context.Context, p *Presence) error {
	p.fillDefaults()
	update := p.statusUpdate(time.Now())

	var firstErr error
	for _, a := range c.Accounts() {
		s, err := a.liveSession()
		if err == nil {
			err = s.Send(ctx, OpStatusUpdate, update)
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
