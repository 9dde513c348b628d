package flock

import (
	"sync"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/altcord/flock/cache"
)

// An EventKind is one of the fixed set of normalized event names handlers
// can be registered for.
type EventKind string

const (
	EventReady EventKind = "on_ready"

	EventMessageCreate EventKind = "on_message_create"
	EventMessageDelete EventKind = "on_message_delete"
	EventMessageEdit   EventKind = "on_message_edit"

	EventMessageReactionAdd    EventKind = "on_message_reaction_add"
	EventMessageReactionRemove EventKind = "on_message_reaction_remove"

	EventChannelCreate EventKind = "on_channel_create"
	EventChannelEdit   EventKind = "on_channel_edit"
	EventChannelDelete EventKind = "on_channel_delete"

	EventGuildUpdate     EventKind = "on_guild_update"
	EventGuildRoleCreate EventKind = "on_guild_role_create"
	EventGuildRoleDelete EventKind = "on_guild_role_delete"
	EventGuildBanAdd     EventKind = "on_guild_ban_add"
	EventGuildBanRemove  EventKind = "on_guild_ban_remove"
)

// eventKinds translates raw gateway event names into normalized kinds.
// Anything outside this table is dropped before it can touch the cache or a
// handler.
var eventKinds = map[string]EventKind{
	"READY": EventReady,

	"MESSAGE_CREATE": EventMessageCreate,
	"MESSAGE_DELETE": EventMessageDelete,
	"MESSAGE_UPDATE": EventMessageEdit,

	"MESSAGE_REACTION_ADD":    EventMessageReactionAdd,
	"MESSAGE_REACTION_REMOVE": EventMessageReactionRemove,

	"CHANNEL_CREATE": EventChannelCreate,
	"CHANNEL_UPDATE": EventChannelEdit,
	"CHANNEL_DELETE": EventChannelDelete,

	"GUILD_UPDATE":      EventGuildUpdate,
	"GUILD_ROLE_CREATE": EventGuildRoleCreate,
	"GUILD_ROLE_DELETE": EventGuildRoleDelete,
	"GUILD_BAN_ADD":     EventGuildBanAdd,
	"GUILD_BAN_REMOVE":  EventGuildBanRemove,
}

// A Dispatch carries one routed event into a handler.
type Dispatch struct {
	Kind    EventKind
	Account *Account

	// Data is the raw event document.
	Data jsoniter.RawMessage

	// Before is the prior snapshot of the entity for edit/update kinds. It
	// is an empty document, never nil, when the entity was not cached.
	Before jsoniter.RawMessage
}

// A HandlerFunc consumes one dispatched event. Handlers run on their own
// goroutine; the dispatch loop never waits for them.
type HandlerFunc func(d Dispatch)

// A Router resolves inbound dispatch frames to handlers and keeps the cache
// consistent on the way. Its registration table is written during setup and
// read-only once sessions run, shared by every session of the client.
type Router struct {
	mu       sync.RWMutex
	handlers map[EventKind]HandlerFunc
	defaults map[EventKind]HandlerFunc
	log      *zap.Logger
}

// NewRouter returns a router with no registrations.
func NewRouter(log *zap.Logger) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		handlers: make(map[EventKind]HandlerFunc),
		defaults: make(map[EventKind]HandlerFunc),
		log:      log,
	}
}

func validKind(kind EventKind) bool {
	for _, k := range eventKinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Register attaches a handler to a normalized event kind. It fails fast on
// names outside the supported set and on nil handlers; neither is ever
// deferred to dispatch time.
func (r *Router) Register(kind EventKind, fn HandlerFunc) error {
	if !validKind(kind) {
		return ErrUnknownEvent
	}
	if fn == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	r.handlers[kind] = fn
	r.mu.Unlock()
	return nil
}

// RegisterDefault attaches a fallback handler invoked when no user handler
// is registered for the kind.
func (r *Router) RegisterDefault(kind EventKind, fn HandlerFunc) error {
	if !validKind(kind) {
		return ErrUnknownEvent
	}
	if fn == nil {
		return ErrNilHandler
	}

	r.mu.Lock()
	r.defaults[kind] = fn
	r.mu.Unlock()
	return nil
}

func (r *Router) resolve(kind EventKind) HandlerFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if fn := r.handlers[kind]; fn != nil {
		return fn
	}
	return r.defaults[kind]
}

// Route processes one decoded frame for a session. Protocol-control frames
// are intercepted before normal routing; normal events update the cache and
// are handed to the resolved handler as an independent goroutine. It returns
// true when the frame was consumed by a control intercept or a handler, and
// false when the event is not supported by this router.
//
// Dispatch order follows frame arrival order; handler completion order is
// unspecified.
func (r *Router) Route(p *Payload, s *Session) bool {
	switch {
	case p.Operation == OpHello:
		s.handleHello(p.Data)
		return true
	case p.Event == "GUILD_MEMBER_LIST_UPDATE":
		s.handleMemberList(p.Data)
		return true
	case p.Event == "GUILD_APPLICATION_COMMANDS_UPDATE":
		s.deliverCorrelation(p.Data)
		return true
	}

	if !p.IsEvent() {
		return false
	}

	kind, ok := eventKinds[p.Event]
	if !ok {
		return false
	}

	d := Dispatch{Kind: kind, Account: s.account, Data: p.Data}

	store := s.account.Cache
	guildID := jsoniter.Get(p.Data, "guild_id").ToString()

	switch kind {
	case EventMessageCreate:
		store.UpsertMessage(guildID, p.Data)
	case EventChannelCreate:
		store.UpsertChannel(guildID, p.Data)
	case EventMessageEdit:
		id := jsoniter.Get(p.Data, "id").ToString()
		d.Before = store.SnapshotAndReplace(cache.KindMessage, guildID, id, p.Data)
	case EventChannelEdit:
		id := jsoniter.Get(p.Data, "id").ToString()
		d.Before = store.SnapshotAndReplace(cache.KindChannel, guildID, id, p.Data)
	case EventGuildUpdate:
		id := jsoniter.Get(p.Data, "id").ToString()
		d.Before = store.SnapshotAndReplace(cache.KindGuild, "", id, p.Data)
	}

	fn := r.resolve(kind)
	if fn == nil {
		return false
	}

	go r.invoke(fn, d)
	return true
}

// invoke runs a handler, isolating the session from handler panics. A
// panicking handler is logged and dropped; it never tears down the session
// that dispatched it.
func (r *Router) invoke(fn HandlerFunc, d Dispatch) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("event handler panicked",
				zap.String("event", string(d.Kind)),
				zap.String("account", d.Account.ID),
				zap.Any("panic", rec))
		}
	}()

	fn(d)
}
