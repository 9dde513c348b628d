package flock

import (
	"sync/atomic"
	"testing"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/altcord/flock/model"
)

func newDispatchSession() *Session {
	account := newAccount("tok", &model.User{ID: "1", Username: "u", Discriminator: "0001"}, nil)
	return newSession(account, NewRouter(zap.NewNop()), sessionOptions{
		Properties:        defaultIdentifyProperties(),
		Capabilities:      defaultCapabilities,
		Intents:           defaultIntents,
		Debugger:          NilDebugger{},
		Log:               zap.NewNop(),
		SendDelay:         time.Millisecond,
		FallbackHeartbeat: time.Minute,
	})
}

func dispatchFrame(event, data string) *Payload {
	return &Payload{Operation: OpDispatch, Event: event, Data: jsoniter.RawMessage(data)}
}

func TestRouterRejectsUnknownKind(t *testing.T) {
	r := NewRouter(zap.NewNop())
	err := r.Register("on_bogus", func(Dispatch) {})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestRouterRejectsNilHandler(t *testing.T) {
	r := NewRouter(zap.NewNop())
	assert.ErrorIs(t, r.Register(EventMessageCreate, nil), ErrNilHandler)
	assert.ErrorIs(t, r.RegisterDefault(EventMessageCreate, nil), ErrNilHandler)
}

func TestRouterDispatchesAndCaches(t *testing.T) {
	s := newDispatchSession()
	r := s.router

	got := make(chan Dispatch, 1)
	require.NoError(t, r.Register(EventMessageCreate, func(d Dispatch) { got <- d }))

	ok := r.Route(dispatchFrame("MESSAGE_CREATE",
		`{"id":"m1","guild_id":"g1","channel_id":"c1","content":"hi"}`), s)
	require.True(t, ok)

	select {
	case d := <-got:
		assert.Equal(t, EventMessageCreate, d.Kind)
		assert.Equal(t, s.account, d.Account)
		assert.Equal(t, "hi", jsoniter.Get(d.Data, "content").ToString())
		assert.Nil(t, d.Before)
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}

	_, cached := s.account.Cache.Message("g1", "m1")
	assert.True(t, cached)
}

func TestRouterEditCarriesPriorSnapshot(t *testing.T) {
	s := newDispatchSession()
	r := s.router

	got := make(chan Dispatch, 2)
	require.NoError(t, r.Register(EventMessageEdit, func(d Dispatch) { got <- d }))

	// first edit: the message was never cached, before must be an empty
	// document rather than nil
	require.True(t, r.Route(dispatchFrame("MESSAGE_UPDATE",
		`{"id":"m1","guild_id":"g1","content":"v1"}`), s))

	d := <-got
	assert.JSONEq(t, `{}`, string(d.Before))

	require.True(t, r.Route(dispatchFrame("MESSAGE_UPDATE",
		`{"id":"m1","guild_id":"g1","content":"v2"}`), s))

	d = <-got
	assert.Equal(t, "v1", jsoniter.Get(d.Before, "content").ToString())
	assert.Equal(t, "v2", jsoniter.Get(d.Data, "content").ToString())
}

func TestRouterFallsBackToDefaultHandler(t *testing.T) {
	s := newDispatchSession()
	r := s.router

	got := make(chan Dispatch, 1)
	require.NoError(t, r.RegisterDefault(EventChannelDelete, func(d Dispatch) { got <- d }))

	require.True(t, r.Route(dispatchFrame("CHANNEL_DELETE", `{"id":"c1","guild_id":"g1"}`), s))

	select {
	case d := <-got:
		assert.Equal(t, EventChannelDelete, d.Kind)
	case <-time.After(time.Second):
		t.Fatal("default handler was not invoked")
	}
}

func TestRouterDropsUnsupportedEvents(t *testing.T) {
	s := newDispatchSession()
	r := s.router

	assert.False(t, r.Route(dispatchFrame("TYPING_START", `{}`), s))
	// a supported event with no handler registered is consumed by nobody
	assert.False(t, r.Route(dispatchFrame("GUILD_BAN_ADD", `{"guild_id":"g1"}`), s))
}

func TestRouterInterceptsHello(t *testing.T) {
	s := newDispatchSession()

	ok := s.router.Route(&Payload{
		Operation: OpHello,
		Data:      jsoniter.RawMessage(`{"heartbeat_interval":41250}`),
	}, s)

	assert.True(t, ok)
	assert.EqualValues(t, 41250, atomic.LoadInt64(&s.hbMS))
}

func TestReadyDuringCorrelationIsDropped(t *testing.T) {
	s := newDispatchSession()

	got := make(chan Dispatch, 1)
	require.NoError(t, s.router.Register(EventReady, func(d Dispatch) { got <- d }))

	ready := dispatchFrame("READY",
		`{"session_id":"sid","resume_gateway_url":"wss://resume","guilds":[{"id":"g1"}]}`)

	s.Correlate(nil, func(jsoniter.RawMessage) {}, func() {})
	require.NoError(t, s.handleFrame(ready, nil))

	// The dispatch is dropped wholesale while a request is in flight.
	select {
	case <-got:
		t.Fatal("on_ready fired for a dropped dispatch")
	case <-time.After(20 * time.Millisecond):
	}
	_, cached := s.account.Cache.Guild("g1")
	assert.False(t, cached)
	assert.Empty(t, s.resumeURL)
	assert.NotEqual(t, StateLive, s.State())

	s.clearCorrelation()
	require.NoError(t, s.handleFrame(ready, nil))

	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("on_ready never fired")
	}
	_, cached = s.account.Cache.Guild("g1")
	assert.True(t, cached)
	assert.Equal(t, "wss://resume", s.resumeURL)
	assert.Equal(t, StateLive, s.State())
}

func TestRouterContainsHandlerPanics(t *testing.T) {
	s := newDispatchSession()
	r := s.router

	invoked := make(chan struct{})
	require.NoError(t, r.Register(EventGuildUpdate, func(Dispatch) {
		close(invoked)
		panic("boom")
	}))

	require.True(t, r.Route(dispatchFrame("GUILD_UPDATE", `{"id":"g1"}`), s))

	select {
	case <-invoked:
	case <-time.After(time.Second):
		t.Fatal("handler was not invoked")
	}
	// give the recover a moment; the test fails by crashing if the panic
	// escapes the dispatch goroutine
	time.Sleep(10 * time.Millisecond)
}
