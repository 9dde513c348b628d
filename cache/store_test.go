package cache

import (
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(s string) jsoniter.RawMessage { return jsoniter.RawMessage(s) }

func TestStoreUpsertAndLookup(t *testing.T) {
	s := NewStore()

	s.UpsertGuild(doc(`{"id":"g1","name":"first"}`))
	s.UpsertChannel("g1", doc(`{"id":"c1","name":"general"}`))
	s.UpsertMessage("g1", doc(`{"id":"m1","channel_id":"c1","content":"hi"}`))

	got, ok := s.Guild("g1")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"g1","name":"first"}`, string(got))

	got, ok = s.Channel("g1", "c1")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"c1","name":"general"}`, string(got))

	got, ok = s.Message("g1", "m1")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"m1","channel_id":"c1","content":"hi"}`, string(got))

	_, ok = s.Guild("missing")
	assert.False(t, ok)
}

func TestStoreUpsertReplacesByID(t *testing.T) {
	s := NewStore()

	s.UpsertGuild(doc(`{"id":"g1","name":"old"}`))
	s.UpsertGuild(doc(`{"id":"g1","name":"new"}`))

	assert.Len(t, s.Guilds(), 1)
	got, _ := s.Guild("g1")
	assert.JSONEq(t, `{"id":"g1","name":"new"}`, string(got))
}

func TestStoreChannelLookupAcrossGuilds(t *testing.T) {
	s := NewStore()
	s.UpsertChannel("g1", doc(`{"id":"c1"}`))
	s.UpsertChannel("g2", doc(`{"id":"c2"}`))

	got, ok := s.Channel("", "c2")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"c2"}`, string(got))

	_, ok = s.Channel("g1", "c2")
	assert.False(t, ok)
}

func TestStoreMessagesInChannel(t *testing.T) {
	s := NewStore()
	s.UpsertMessage("g1", doc(`{"id":"m1","channel_id":"c1"}`))
	s.UpsertMessage("g1", doc(`{"id":"m2","channel_id":"c2"}`))
	s.UpsertMessage("g1", doc(`{"id":"m3","channel_id":"c1"}`))

	assert.Len(t, s.MessagesInChannel("g1", "c1"), 2)
	assert.Len(t, s.MessagesInChannel("g1", "c3"), 0)
	assert.Len(t, s.Messages("g1"), 3)
}

func TestSnapshotAndReplace(t *testing.T) {
	s := NewStore()

	// an entity that was never cached yields a well-formed empty document
	prev := s.SnapshotAndReplace(KindMessage, "g1", "m1", doc(`{"id":"m1","content":"v2"}`))
	assert.JSONEq(t, `{}`, string(prev))

	prev = s.SnapshotAndReplace(KindMessage, "g1", "m1", doc(`{"id":"m1","content":"v3"}`))
	assert.JSONEq(t, `{"id":"m1","content":"v2"}`, string(prev))

	got, ok := s.Message("g1", "m1")
	require.True(t, ok)
	assert.JSONEq(t, `{"id":"m1","content":"v3"}`, string(got))
}

func TestSnapshotAndReplaceGuild(t *testing.T) {
	s := NewStore()
	s.UpsertGuild(doc(`{"id":"g1","name":"before"}`))

	prev := s.SnapshotAndReplace(KindGuild, "", "g1", doc(`{"id":"g1","name":"after"}`))
	assert.JSONEq(t, `{"id":"g1","name":"before"}`, string(prev))
}
