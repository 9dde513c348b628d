package flock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/altcord/flock/model"
)

// State is the lifecycle phase of a gateway session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateHandshaking
	StateLive
	StateResuming
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateHandshaking:
		return "handshaking"
	case StateLive:
		return "live"
	case StateResuming:
		return "resuming"
	case StateTerminated:
		return "terminated"
	}
	return fmt.Sprintf("state(%d)", int32(s))
}

// invalidateCutoff is how many consecutive INVALIDATE member-list frames a
// session tolerates before cancelling the pending request.
const invalidateCutoff = 5

// retryInterval is the fixed pause between reconnect attempts.
const retryInterval = time.Second

// identifyFrame is the login frame. The intents field rides at the top level
// of the frame, next to op and d, not inside d.
type identifyFrame struct {
	Operation Operation      `json:"op"`
	Data      model.Identify `json:"d"`
	Intents   int            `json:"intents"`
}

type sessionOptions struct {
	APIVersion        int
	GatewayURL        string
	Properties        model.IdentifyProperties
	Capabilities      int
	Intents           int
	Presence          *model.StatusUpdate
	Debugger          Debugger
	Log               *zap.Logger
	SendDelay         time.Duration
	FallbackHeartbeat time.Duration
}

// A Session owns one account's gateway connection. It runs three loops per
// connection: a receive loop decoding and routing frames, a send loop
// draining the outbound queue with a fixed pause between writes, and a
// heartbeat loop. On disconnect it resumes with the stored session id and
// sequence; without them it terminates rather than restart cold.
type Session struct {
	account *Account
	router  *Router
	opts    sessionOptions
	log     *zap.Logger

	// queue is the live outbound FIFO. Reconnects fork it so undrained
	// frames carry over to the next connection.
	qMu   sync.Mutex
	queue *queue

	conn   atomic.Value // *websocket.Conn
	state  int32
	seq    int64
	hbMS   int64 // heartbeat interval, milliseconds
	closed int32

	mu        sync.Mutex
	sessionID string
	resumeURL string

	corrMu     sync.Mutex
	corrFn     func(jsoniter.RawMessage)
	corrCancel func()

	invalidStreak int
}

func newSession(account *Account, router *Router, opts sessionOptions) *Session {
	s := &Session{
		account: account,
		router:  router,
		opts:    opts,
		log:     opts.Log.With(zap.String("account", account.ID)),
		queue:   newQueue(),
	}
	atomic.StoreInt64(&s.hbMS, opts.FallbackHeartbeat.Milliseconds())
	account.session = s
	return s
}

// State reports the current lifecycle phase.
func (s *Session) State() State {
	return State(atomic.LoadInt32(&s.state))
}

func (s *Session) setState(st State) {
	atomic.StoreInt32(&s.state, int32(st))
}

// Run connects and serves the session until ctx is cancelled or the session
// terminates. Reconnects retry on a fixed one second interval; a session
// that cannot resume stops with a TerminalError instead of logging in again
// from scratch.
func (s *Session) Run(ctx context.Context) error {
	defer s.setState(StateTerminated)
	defer func() {
		s.qMu.Lock()
		s.queue.Close()
		s.qMu.Unlock()
	}()

	policy := backoff.WithContext(backoff.NewConstantBackOff(retryInterval), ctx)

	err := backoff.Retry(func() error {
		resuming := s.resumeInfo() != nil

		err := s.serve(ctx, resuming)
		if atomic.LoadInt32(&s.closed) == 1 || ctx.Err() != nil {
			return nil
		}
		if err != nil {
			var term *TerminalError
			if errors.As(err, &term) {
				return backoff.Permanent(err)
			}
			s.log.Warn("gateway connection lost", zap.Error(err))
		}

		if s.resumeInfo() == nil {
			return backoff.Permanent(&TerminalError{
				AccountID: s.account.ID,
				Err:       errors.New("session cannot be resumed"),
			})
		}

		s.setState(StateResuming)
		return errors.New("resuming")
	}, policy)

	if err != nil && ctx.Err() == nil {
		s.log.Error("session terminated", zap.Error(err))
		return err
	}
	return nil
}

// Close stops the session permanently.
func (s *Session) Close() {
	atomic.StoreInt32(&s.closed, 1)
	if c := s.wsConn(); c != nil {
		c.Close()
	}
}

type resumeInfo struct {
	sessionID string
	url       string
	seq       int64
}

func (s *Session) resumeInfo() *resumeInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	seq := atomic.LoadInt64(&s.seq)
	if s.sessionID == "" || s.resumeURL == "" || seq == 0 {
		return nil
	}
	return &resumeInfo{sessionID: s.sessionID, url: s.resumeURL, seq: seq}
}

func (s *Session) wsConn() *websocket.Conn {
	c, _ := s.conn.Load().(*websocket.Conn)
	return c
}

// serve runs one connection to completion. When resuming, the resume frame
// is written on the raw connection before any loop starts so it is
// guaranteed to be the first frame the gateway sees.
func (s *Session) serve(ctx context.Context, resuming bool) error {
	if !resuming {
		s.setState(StateConnecting)
	}

	url := s.opts.GatewayURL
	if url == "" {
		url = fmt.Sprintf(gatewayEndpoint, s.opts.APIVersion)
	}
	if resuming {
		if ri := s.resumeInfo(); ri != nil {
			url = fmt.Sprintf("%s/?v=%d&encoding=json", ri.url, s.opts.APIVersion)
		}
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return errors.Wrap(err, "flock: gateway dial failed")
	}
	s.conn.Store(conn)
	defer conn.Close()

	s.setState(StateHandshaking)

	if resuming {
		ri := s.resumeInfo()
		payload, err := marshalPayload(OpResume, model.Resume{
			Token:     s.account.Token,
			SessionID: ri.sessionID,
			Sequence:  ri.seq,
		})
		if err != nil {
			return err
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return errors.Wrap(err, "flock: resume frame")
		}
		s.opts.Debugger.Outgoing(raw)
		if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
			return errors.Wrap(err, "flock: resume write failed")
		}
	}

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	s.qMu.Lock()
	outbound := s.queue
	s.qMu.Unlock()

	// Rotate the queue on the way out so frames this connection never
	// wrote survive into the next one. Close before forking: a closed
	// queue's Poll no longer pops, so a frame can't be popped after the
	// fork copied it and then handed back again.
	defer func() {
		outbound.Close()
		s.qMu.Lock()
		if s.queue == outbound {
			s.queue = outbound.Fork()
		}
		s.qMu.Unlock()
	}()

	errc := make(chan error, 3)

	go func() { errc <- s.readPump(serveCtx, conn) }()
	go func() { errc <- s.writePump(serveCtx, conn, outbound) }()
	go func() { errc <- s.heartbeatLoop(serveCtx) }()

	select {
	case err = <-errc:
	case <-ctx.Done():
		err = ctx.Err()
	}
	cancel()
	conn.Close()
	s.setState(StateDisconnected)
	return err
}

// readPump decodes and routes inbound frames until the connection fails.
func (s *Session) readPump(ctx context.Context, conn *websocket.Conn) error {
	for {
		kind, raw, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return errors.Wrap(err, "flock: gateway read failed")
		}

		if kind == websocket.BinaryMessage {
			if raw, err = inflate(raw); err != nil {
				s.opts.Debugger.Error(err)
				return &TerminalError{AccountID: s.account.ID, Err: err}
			}
		}
		s.opts.Debugger.Incoming(raw)

		p, err := DecodePayload(raw)
		if err != nil {
			s.opts.Debugger.Error(err)
			return &TerminalError{AccountID: s.account.ID, Err: err}
		}

		if seq := p.Seq(); seq != 0 {
			atomic.StoreInt64(&s.seq, seq)
		}
		if sid := jsoniter.Get(p.Data, "session_id").ToString(); sid != "" {
			s.mu.Lock()
			s.sessionID = sid
			s.mu.Unlock()
		}

		if err := s.handleFrame(p, conn); err != nil {
			return err
		}
	}
}

func (s *Session) handleFrame(p *Payload, conn *websocket.Conn) error {
	switch p.Operation {
	case OpReconnect:
		// The gateway asked for a fresh connection. Dropping the socket
		// sends us back through the resume path.
		s.log.Info("gateway requested reconnect")
		conn.Close()
		return nil
	case OpInvalidSession:
		s.log.Warn("gateway invalidated the session")
		s.mu.Lock()
		s.sessionID = ""
		s.mu.Unlock()
		atomic.StoreInt64(&s.seq, 0)
		conn.Close()
		return nil
	case OpHeartbeatAck:
		return nil
	}

	switch p.Event {
	case "READY":
		// A READY observed while a correlation is in flight belongs to a
		// resume, not a fresh login; the whole dispatch is dropped, resume
		// URL included.
		if s.correlationPending() {
			return nil
		}
		var ready model.Ready
		if err := json.Unmarshal(p.Data, &ready); err != nil {
			return errors.Wrap(err, "flock: malformed READY")
		}
		s.mu.Lock()
		s.resumeURL = ready.ResumeGatewayURL
		s.mu.Unlock()
		for _, g := range ready.Guilds {
			s.account.Cache.UpsertGuild(g)
		}
		s.setState(StateLive)
		s.log.Info("session ready",
			zap.String("user", s.account.String()),
			zap.Int("guilds", len(ready.Guilds)))
	case "RESUMED":
		s.setState(StateLive)
		s.log.Info("session resumed", zap.Int64("seq", atomic.LoadInt64(&s.seq)))
	}

	s.router.Route(p, s)
	return nil
}

// writePump drains the outbound queue, one frame at a time with a fixed
// pause between writes.
func (s *Session) writePump(ctx context.Context, conn *websocket.Conn, q *queue) error {
	for {
		var f *queuedFrame
		poll := q.Poll()
		select {
		case <-ctx.Done():
			// The poll may have popped the head frame already. Hand it
			// back so the next connection writes it instead of losing it.
			if frame, ok := <-poll; ok {
				q.Requeue(frame)
			}
			return ctx.Err()
		case frame, ok := <-poll:
			if !ok {
				return nil
			}
			f = frame
		}

		raw, err := json.Marshal(f.data)
		if err != nil {
			err = errors.Wrap(err, "flock: outbound frame marshal")
			f.reply(err)
			return err
		}

		s.opts.Debugger.Outgoing(raw)
		err = conn.WriteMessage(websocket.TextMessage, raw)
		f.reply(err)
		if err != nil {
			return errors.Wrap(err, "flock: gateway write failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.opts.SendDelay):
		}
	}
}

// heartbeatLoop enqueues a heartbeat on the current interval. Until the
// gateway's hello overrides it, the fallback interval applies.
func (s *Session) heartbeatLoop(ctx context.Context) error {
	for {
		interval := time.Duration(atomic.LoadInt64(&s.hbMS)) * time.Millisecond
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}

		payload, err := marshalPayload(OpHeartbeat, time.Now().UnixMilli())
		if err != nil {
			return err
		}
		s.push(payload, nil)
	}
}

// handleHello applies the gateway's heartbeat interval and, on a fresh
// connection, enqueues the login frame followed by the configured presence.
func (s *Session) handleHello(data jsoniter.RawMessage) {
	var hello model.Hello
	if err := json.Unmarshal(data, &hello); err != nil {
		s.opts.Debugger.Error(err)
		return
	}
	if hello.HeartbeatInterval > 0 {
		atomic.StoreInt64(&s.hbMS, hello.HeartbeatInterval)
	}

	if s.resumedThisConn() {
		return
	}

	s.push(&identifyFrame{
		Operation: OpIdentify,
		Data: model.Identify{
			Token:        s.account.Token,
			Capabilities: s.opts.Capabilities,
			Properties:   s.opts.Properties,
			Compress:     false,
		},
		Intents: s.opts.Intents,
	}, nil)

	if s.opts.Presence != nil {
		if payload, err := marshalPayload(OpStatusUpdate, s.opts.Presence); err == nil {
			s.push(payload, nil)
		}
	}
}

// resumedThisConn reports whether the current connection was opened with a
// resume frame, in which case hello must not trigger a second login. A
// fresh connection has no session id until READY arrives.
func (s *Session) resumedThisConn() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionID != ""
}

func (s *Session) push(data interface{}, result chan error) {
	s.qMu.Lock()
	q := s.queue
	s.qMu.Unlock()
	q.Push(&queuedFrame{data: data, result: result})
}

// Send enqueues a frame and waits for its write result.
func (s *Session) Send(ctx context.Context, op Operation, data interface{}) error {
	payload, err := marshalPayload(op, data)
	if err != nil {
		return err
	}

	result := make(chan error, 1)
	s.push(payload, result)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-result:
		return err
	}
}

// Correlate enqueues a request frame and registers its response callback.
// A session carries at most one pending correlation; registering a new one
// replaces the old, whose cancel func is invoked.
func (s *Session) Correlate(frame interface{}, fn func(jsoniter.RawMessage), cancel func()) {
	s.corrMu.Lock()
	old := s.corrCancel
	s.corrFn = fn
	s.corrCancel = cancel
	s.invalidStreak = 0
	s.corrMu.Unlock()

	if old != nil {
		old()
	}
	if frame != nil {
		s.push(frame, nil)
	}
}

// deliverCorrelation hands a one-shot response to the pending callback and
// clears the slot.
func (s *Session) deliverCorrelation(data jsoniter.RawMessage) {
	s.corrMu.Lock()
	fn := s.corrFn
	s.corrFn = nil
	s.corrCancel = nil
	s.corrMu.Unlock()

	if fn != nil {
		fn(data)
	}
}

// feedCorrelation hands a streamed response to the pending callback without
// clearing the slot.
func (s *Session) feedCorrelation(data jsoniter.RawMessage) {
	s.corrMu.Lock()
	fn := s.corrFn
	s.corrMu.Unlock()

	if fn != nil {
		fn(data)
	}
}

func (s *Session) correlationPending() bool {
	s.corrMu.Lock()
	defer s.corrMu.Unlock()
	return s.corrFn != nil
}

func (s *Session) clearCorrelation() {
	s.corrMu.Lock()
	s.corrFn = nil
	s.corrCancel = nil
	s.invalidStreak = 0
	s.corrMu.Unlock()
}

// handleMemberList feeds member list frames to the pending collector. SYNC
// frames reset the invalidate streak; enough consecutive INVALIDATE frames
// cancel the pending request, since the gateway has stopped cooperating.
// Routine UPDATE, INSERT and DELETE pages do neither.
func (s *Session) handleMemberList(data jsoniter.RawMessage) {
	var update model.MemberListUpdate
	if err := json.Unmarshal(data, &update); err != nil {
		s.opts.Debugger.Error(err)
		return
	}

	if len(update.Ops) == 0 {
		return
	}

	switch update.Ops[0].Op {
	case "SYNC":
		s.corrMu.Lock()
		s.invalidStreak = 0
		s.corrMu.Unlock()
		s.feedCorrelation(data)
	case "INVALIDATE":
		s.corrMu.Lock()
		s.invalidStreak++
		streak := s.invalidStreak
		cancel := s.corrCancel
		s.corrMu.Unlock()

		if streak >= invalidateCutoff && cancel != nil {
			s.clearCorrelation()
			cancel()
		}
	}
}
