// Package cache keeps per-account snapshots of guilds, channels, and
// messages observed on the gateway, so update events can be delivered with
// consistent before/after state.
package cache

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
)

// A Kind selects which snapshot table an operation targets.
type Kind int

const (
	KindGuild Kind = iota
	KindChannel
	KindMessage
)

// emptyDoc is returned as the "before" state of an entity that was never
// cached, so update callbacks always receive a well-formed document.
var emptyDoc = jsoniter.RawMessage(`{}`)

// A Store holds the snapshots of a single account. One Store is created per
// account; stores are never shared across sessions. Messages are cached only
// as the session observes them live, never backfilled in bulk.
type Store struct {
	mu sync.RWMutex

	guilds   map[string]jsoniter.RawMessage
	channels map[string]map[string]jsoniter.RawMessage
	messages map[string]map[string]jsoniter.RawMessage
}

// NewStore returns an empty snapshot store.
func NewStore() *Store {
	return &Store{
		guilds:   make(map[string]jsoniter.RawMessage),
		channels: make(map[string]map[string]jsoniter.RawMessage),
		messages: make(map[string]map[string]jsoniter.RawMessage),
	}
}

func entityID(doc jsoniter.RawMessage) string {
	return jsoniter.Get(doc, "id").ToString()
}

func upsert(table map[string]map[string]jsoniter.RawMessage, guildID string, doc jsoniter.RawMessage) {
	id := entityID(doc)
	if id == "" {
		return
	}

	bucket := table[guildID]
	if bucket == nil {
		bucket = make(map[string]jsoniter.RawMessage)
		table[guildID] = bucket
	}
	bucket[id] = doc
}

// UpsertGuild inserts or replaces the snapshot of a guild. At most one
// snapshot per guild id is retained.
func (s *Store) UpsertGuild(doc jsoniter.RawMessage) {
	id := entityID(doc)
	if id == "" {
		return
	}

	s.mu.Lock()
	s.guilds[id] = doc
	s.mu.Unlock()
}

// UpsertChannel inserts or replaces the snapshot of a channel under its
// parent guild.
func (s *Store) UpsertChannel(guildID string, doc jsoniter.RawMessage) {
	s.mu.Lock()
	upsert(s.channels, guildID, doc)
	s.mu.Unlock()
}

// UpsertMessage inserts or replaces the snapshot of a message under its
// parent guild.
func (s *Store) UpsertMessage(guildID string, doc jsoniter.RawMessage) {
	s.mu.Lock()
	upsert(s.messages, guildID, doc)
	s.mu.Unlock()
}

// Guild looks up a guild snapshot by id.
func (s *Store) Guild(id string) (jsoniter.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.guilds[id]
	return doc, ok
}

// Guilds returns all cached guild snapshots.
func (s *Store) Guilds() []jsoniter.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]jsoniter.RawMessage, 0, len(s.guilds))
	for _, doc := range s.guilds {
		out = append(out, doc)
	}
	return out
}

// Channel looks up a channel snapshot by id. An empty guildID searches all
// guilds.
func (s *Store) Channel(guildID, id string) (jsoniter.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if guildID != "" {
		doc, ok := s.channels[guildID][id]
		return doc, ok
	}
	for _, bucket := range s.channels {
		if doc, ok := bucket[id]; ok {
			return doc, true
		}
	}
	return nil, false
}

// Channels returns the cached channel snapshots of a guild.
func (s *Store) Channels(guildID string) []jsoniter.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return collect(s.channels[guildID])
}

// Message looks up a message snapshot by guild and message id.
func (s *Store) Message(guildID, id string) (jsoniter.RawMessage, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.messages[guildID][id]
	return doc, ok
}

// Messages returns the cached message snapshots of a guild.
func (s *Store) Messages(guildID string) []jsoniter.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return collect(s.messages[guildID])
}

// MessagesInChannel returns the cached messages of a guild filtered down to
// one channel.
func (s *Store) MessagesInChannel(guildID, channelID string) []jsoniter.RawMessage {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []jsoniter.RawMessage
	for _, doc := range s.messages[guildID] {
		if jsoniter.Get(doc, "channel_id").ToString() == channelID {
			out = append(out, doc)
		}
	}
	return out
}

func collect(bucket map[string]jsoniter.RawMessage) []jsoniter.RawMessage {
	if len(bucket) == 0 {
		return nil
	}
	out := make([]jsoniter.RawMessage, 0, len(bucket))
	for _, doc := range bucket {
		out = append(out, doc)
	}
	return out
}

// SnapshotAndReplace swaps in the next snapshot of an entity and returns the
// prior one, or an empty document if the entity was never cached. The swap
// is atomic under the store lock, so no reader can observe the new value
// before the old one has been captured.
func (s *Store) SnapshotAndReplace(kind Kind, guildID, id string, next jsoniter.RawMessage) jsoniter.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	var prev jsoniter.RawMessage
	var ok bool

	switch kind {
	case KindGuild:
		prev, ok = s.guilds[id]
		s.guilds[id] = next
	case KindChannel:
		prev, ok = s.channels[guildID][id]
		upsert(s.channels, guildID, next)
	case KindMessage:
		prev, ok = s.messages[guildID][id]
		upsert(s.messages, guildID, next)
	}

	if !ok {
		return emptyDoc
	}
	return prev
}
