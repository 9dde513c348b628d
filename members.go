package flock

import (
	"context"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"

	"github.com/altcord/flock/model"
)

// memberPageDelay is how long to wait between member-list window requests.
const memberPageDelay = 600 * time.Millisecond

// ErrMemberListInvalidated is returned when the gateway repeatedly rejects
// member-list windows for the requested channel.
var ErrMemberListInvalidated = errors.New("flock: member list request invalidated")

// memberListRequest builds the data document of one member-list sync frame.
// Each request asks for three consecutive 100-wide windows; index advances
// the windows by 100 per page.
func memberListRequest(guildID, channelID string, index int) map[string]interface{} {
	ranges := make([][2]int, 0, 3)
	for j := 1; j <= 3; j++ {
		m := index + j
		lo := m*100 - 200
		hi := m*100 + 99 - 200
		ranges = append(ranges, [2]int{lo, hi})
	}

	return map[string]interface{}{
		"guild_id": guildID,
		"typing":   true,
		// "activites" is what the official client sends, misspelling included.
		"activites": true,
		"threads":   false,
		"channels": map[string]interface{}{
			channelID: ranges,
		},
	}
}

// ScrapeMembers walks a guild channel's member list over the gateway and
// returns the members observed, deduplicated by user id. The walk stops at
// limit members (0 means no limit), at the first empty window, or when the
// gateway invalidates the request. The channel must be one the account can
// see, since the member list is per-channel.
func (a *Account) ScrapeMembers(ctx context.Context, guildID, channelID string, limit int) ([]*model.Member, error) {
	s, err := a.liveSession()
	if err != nil {
		return nil, err
	}

	pages := make(chan *model.MemberListUpdate, 8)
	invalidated := make(chan struct{})
	var once sync.Once

	collect := func(raw jsoniter.RawMessage) {
		var update model.MemberListUpdate
		if err := json.Unmarshal(raw, &update); err != nil {
			return
		}
		select {
		case pages <- &update:
		default:
		}
	}
	cancel := func() {
		once.Do(func() { close(invalidated) })
	}

	index := 1
	s.Correlate(mustPayload(OpRequestMemberList, memberListRequest(guildID, channelID, index)), collect, cancel)
	defer s.clearCorrelation()

	seen := make(map[string]struct{})
	var members []*model.Member

	for {
		select {
		case <-ctx.Done():
			return members, ctx.Err()
		case <-invalidated:
			return members, ErrMemberListInvalidated
		case update := <-pages:
			fresh := 0
			for _, op := range update.Ops {
				if op.Op != "SYNC" {
					continue
				}
				for _, item := range op.Items {
					if item.Member == nil || item.Member.User == nil {
						continue
					}
					id := item.Member.User.ID
					if _, ok := seen[id]; ok {
						continue
					}
					seen[id] = struct{}{}
					item.Member.GuildID = guildID
					members = append(members, item.Member)
					fresh++
				}
			}

			if fresh == 0 {
				return members, nil
			}
			if limit > 0 && len(members) >= limit {
				return members[:limit], nil
			}

			select {
			case <-ctx.Done():
				return members, ctx.Err()
			case <-time.After(memberPageDelay):
			}

			index++
			if err := s.Send(ctx, OpRequestMemberList, memberListRequest(guildID, channelID, index)); err != nil {
				return members, err
			}
		}
	}
}

// mustPayload builds a payload for data known to marshal cleanly.
func mustPayload(op Operation, data interface{}) *Payload {
	p, err := marshalPayload(op, data)
	if err != nil {
		panic(err)
	}
	return p
}
