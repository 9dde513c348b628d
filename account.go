package flock

import (
	"context"
	"fmt"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/altcord/flock/cache"
	"github.com/altcord/flock/model"
)

// An Account is one validated identity of the client. It is immutable after
// construction except for the gateway session back-reference, which the pool
// sets exactly once before the session starts.
type Account struct {
	// Token is the account credential. It is a secret and is never logged
	// in full.
	Token string

	ID            string
	Username      string
	Discriminator string

	// Cache holds the snapshots this account's session observes. Stores are
	// never shared between accounts.
	Cache *cache.Store

	tx      *Transport
	session *Session
}

func newAccount(token string, user *model.User, tx *Transport) *Account {
	return &Account{
		Token:         token,
		ID:            user.ID,
		Username:      user.Username,
		Discriminator: user.Discriminator,
		Cache:         cache.NewStore(),
		tx:            tx,
	}
}

func (a *Account) String() string {
	return fmt.Sprintf("%s#%s (%s)", a.Username, a.Discriminator, a.ID)
}

// Session returns the gateway session driving this account, or nil before
// the pool has started.
func (a *Account) Session() *Session { return a.session }

func (a *Account) liveSession() (*Session, error) {
	if a.session == nil {
		return nil, ErrNotConnected
	}
	return a.session, nil
}

// SendMessage posts a message to a channel.
func (a *Account) SendMessage(ctx context.Context, channelID, content string) (*Response, error) {
	payload := map[string]interface{}{"content": content}
	return a.tx.Do(ctx, http.MethodPost, fmt.Sprintf("channels/%s/messages", channelID), a.Token, payload)
}

// ReplyMessage posts a message replying to an existing one.
func (a *Account) ReplyMessage(ctx context.Context, channelID, messageID, content string, mentionAuthor bool) (*Response, error) {
	payload := map[string]interface{}{
		"content": content,
		"message_reference": map[string]string{
			"message_id": messageID,
			"channel_id": channelID,
		},
	}
	if !mentionAuthor {
		payload["allowed_mentions"] = map[string]interface{}{"replied_user": false}
	}
	return a.tx.Do(ctx, http.MethodPost, fmt.Sprintf("channels/%s/messages", channelID), a.Token, payload)
}

// SendDM opens (or reuses) the direct-message channel with a user and sends
// a message there.
func (a *Account) SendDM(ctx context.Context, userID, content string) (*Response, error) {
	res, err := a.tx.Do(ctx, http.MethodPost, "users/@me/channels", a.Token,
		map[string]string{"recipient_id": userID})
	if err != nil {
		return nil, err
	}

	var channel model.Channel
	if err := res.JSON(&channel); err != nil || channel.ID == "" {
		return res, err
	}
	return a.SendMessage(ctx, channel.ID, content)
}

// CreateChannel creates a guild channel.
func (a *Account) CreateChannel(ctx context.Context, guildID, name string, channelType ChannelType, topic string) (*Response, error) {
	payload := map[string]interface{}{
		"name": name,
		"type": int(channelType),
	}
	if topic != "" {
		payload["topic"] = topic
	}
	return a.tx.Do(ctx, http.MethodPost, fmt.Sprintf("guilds/%s/channels", guildID), a.Token, payload)
}

// DeleteChannel deletes a channel.
func (a *Account) DeleteChannel(ctx context.Context, channelID string) (*Response, error) {
	return a.tx.Do(ctx, http.MethodDelete, fmt.Sprintf("channels/%s", channelID), a.Token, nil)
}

// Channels fetches all channels of a guild.
func (a *Account) Channels(ctx context.Context, guildID string) (*Response, error) {
	return a.tx.Do(ctx, http.MethodGet, fmt.Sprintf("guilds/%s/channels", guildID), a.Token, nil)
}

// CreateRole creates a guild role. permissions may be nil.
func (a *Account) CreateRole(ctx context.Context, guildID, name string, hoist bool, permissions *PermissionBuilder) (*Response, error) {
	payload := map[string]interface{}{
		"name":  name,
		"hoist": hoist,
	}
	if permissions != nil {
		payload["permissions"] = permissions.String()
	}
	return a.tx.Do(ctx, http.MethodPost, fmt.Sprintf("guilds/%s/roles", guildID), a.Token, payload)
}

// DeleteRole deletes a guild role.
func (a *Account) DeleteRole(ctx context.Context, guildID, roleID string) (*Response, error) {
	return a.tx.Do(ctx, http.MethodDelete, fmt.Sprintf("guilds/%s/roles/%s", guildID, roleID), a.Token, nil)
}

// Roles fetches all roles of a guild.
func (a *Account) Roles(ctx context.Context, guildID string) (*Response, error) {
	return a.tx.Do(ctx, http.MethodGet, fmt.Sprintf("guilds/%s/roles", guildID), a.Token, nil)
}

// BanMember bans a user from a guild.
func (a *Account) BanMember(ctx context.Context, guildID, userID string) (*Response, error) {
	return a.tx.Do(ctx, http.MethodPut, fmt.Sprintf("guilds/%s/bans/%s", guildID, userID), a.Token, nil)
}

// UnbanMember lifts a guild ban.
func (a *Account) UnbanMember(ctx context.Context, guildID, userID string) (*Response, error) {
	return a.tx.Do(ctx, http.MethodDelete, fmt.Sprintf("guilds/%s/bans/%s", guildID, userID), a.Token, nil)
}

// Bans fetches the ban list of a guild.
func (a *Account) Bans(ctx context.Context, guildID string) (*Response, error) {
	return a.tx.Do(ctx, http.MethodGet, fmt.Sprintf("guilds/%s/bans", guildID), a.Token, nil)
}

// Guild fetches a guild and, on success, refreshes its cache snapshot.
func (a *Account) Guild(ctx context.Context, guildID string) (*Response, error) {
	res, err := a.tx.Do(ctx, http.MethodGet, fmt.Sprintf("guilds/%s", guildID), a.Token, nil)
	if err != nil {
		return nil, err
	}
	if res.Status == http.StatusOK {
		a.Cache.UpsertGuild(jsoniter.RawMessage(res.Body))
	}
	return res, nil
}

// A ChannelType selects the kind of channel CreateChannel builds.
type ChannelType int

const (
	TextChannel     ChannelType = 0
	VoiceChannel    ChannelType = 2
	CategoryChannel ChannelType = 4
)
