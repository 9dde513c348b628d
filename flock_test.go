package flock

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewRejectsBadAPIVersion(t *testing.T) {
	_, err := New(Options{APIVersion: 8})
	assert.ErrorIs(t, err, ErrUnsupportedAPIVersion)

	_, err = New(Options{APIVersion: 9})
	assert.NoError(t, err)
}

func newLoginServer(t *testing.T, valid string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/users/@me" {
			rw.WriteHeader(http.StatusNotFound)
			return
		}
		if r.Header.Get("Authorization") != valid {
			rw.WriteHeader(http.StatusUnauthorized)
			rw.Write([]byte(`{"message":"401: Unauthorized","code":0}`))
			return
		}
		rw.Write([]byte(`{"id":"1","username":"tester","discriminator":"0001"}`))
	}))
}

func TestLoginDropsInvalidTokens(t *testing.T) {
	ts := newLoginServer(t, "good")
	defer ts.Close()

	client, err := New(Options{
		APIBase:        ts.URL + "/",
		RequestLatency: time.Millisecond,
	})
	require.NoError(t, err)

	require.NoError(t, client.Login(context.Background(), "good", "bad"))

	accounts := client.Accounts()
	require.Len(t, accounts, 1)
	assert.Equal(t, "tester", accounts[0].Username)
	assert.Equal(t, "1", accounts[0].ID)
}

func TestLoginWithNoValidTokens(t *testing.T) {
	ts := newLoginServer(t, "good")
	defer ts.Close()

	client, err := New(Options{
		APIBase:        ts.URL + "/",
		RequestLatency: time.Millisecond,
	})
	require.NoError(t, err)

	assert.ErrorIs(t, client.Login(context.Background(), "bad"), ErrNoAccounts)
}

func TestRunWithoutAccounts(t *testing.T) {
	client, err := New(Options{})
	require.NoError(t, err)

	assert.ErrorIs(t, client.Run(context.Background()), ErrNoAccounts)
}

func TestEndToEndMessageFlow(t *testing.T) {
	rest := newLoginServer(t, "good")
	defer rest.Close()

	gw := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		c, err := (&websocket.Upgrader{}).Upgrade(rw, r, nil)
		if err != nil {
			panic(err)
		}

		c.WriteMessage(websocket.TextMessage,
			[]byte(`{"op":10,"d":{"heartbeat_interval":41250}}`))
		c.ReadMessage() // identify
		c.WriteMessage(websocket.TextMessage,
			[]byte(`{"op":0,"t":"READY","s":1,"d":{"session_id":"s1","guilds":[]}}`))
		c.WriteMessage(websocket.TextMessage,
			[]byte(`{"op":0,"t":"MESSAGE_CREATE","s":2,"d":{"id":"m1","guild_id":"g1","channel_id":"c1","content":"hi"}}`))
		c.ReadMessage()
	}))
	defer gw.Close()

	client, err := New(Options{
		APIBase:        rest.URL + "/",
		GatewayURL:     strings.Replace(gw.URL, "http://", "ws://", 1),
		RequestLatency: time.Millisecond,
		Logger:         zap.NewNop(),
	})
	require.NoError(t, err)
	defer client.Close()

	got := make(chan Dispatch, 1)
	require.NoError(t, client.On(EventMessageCreate, func(d Dispatch) { got <- d }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// one bad token: the pool proceeds with the surviving account
	require.NoError(t, client.Login(ctx, "good", "bad"))
	require.Len(t, client.Accounts(), 1)

	_, err = client.Start(ctx)
	require.NoError(t, err)

	select {
	case d := <-got:
		assert.Equal(t, "1", d.Account.ID)
		assert.Equal(t, "hi", jsoniter.Get(d.Data, "content").ToString())
	case <-time.After(5 * time.Second):
		t.Fatal("message was never dispatched")
	}

	account := client.Accounts()[0]
	assert.Len(t, account.Cache.Messages("g1"), 1)
}

func TestPermissionBuilder(t *testing.T) {
	b := NewPermissionBuilder(PermSendMessages).Add(PermManageRoles)

	assert.True(t, b.Has(PermSendMessages, PermManageRoles))
	assert.False(t, b.Has(PermAdministrator))
	assert.Equal(t, "268437504", b.String())
}

func TestPresenceDefaults(t *testing.T) {
	p := &Presence{Name: "playing"}
	p.fillDefaults()

	assert.Equal(t, StatusOnline, p.Status)
	assert.Equal(t, PlatformDesktop, p.Platform)

	update := p.statusUpdate(time.Unix(1700000000, 0))
	require.Len(t, update.Activities, 1)
	assert.Equal(t, "playing", update.Activities[0].Name)
	assert.Equal(t, "online", update.Status)
}

func TestPresencePlatformSelectsProperties(t *testing.T) {
	mobile := &Presence{Name: "x", Platform: PlatformMobile}
	props := mobile.identifyProperties()
	assert.Equal(t, "Android", props.OS)
	assert.Equal(t, "Discord Android", props.Browser)

	desktop := &Presence{Name: "x", Platform: PlatformDesktop}
	assert.Equal(t, defaultIdentifyProperties(), desktop.identifyProperties())
}
