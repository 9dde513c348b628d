package flock

import (
	"time"

	"github.com/altcord/flock/model"
)

// An ActivityStatus is the account's advertised availability.
type ActivityStatus string

const (
	StatusOnline  ActivityStatus = "online"
	StatusDND     ActivityStatus = "dnd"
	StatusIdle    ActivityStatus = "idle"
	StatusOffline ActivityStatus = "offline"
)

// An ActivityPlatform selects which client platform the account appears to
// connect from.
type ActivityPlatform string

const (
	PlatformDesktop ActivityPlatform = "Windows"
	PlatformMobile  ActivityPlatform = "Android"
)

// An ActivityType is the verb shown in front of the activity name.
type ActivityType int

const (
	ActivityGame      ActivityType = 0
	ActivityStreaming ActivityType = 1
	ActivityListening ActivityType = 2
	ActivityWatching  ActivityType = 3
	ActivityCompeting ActivityType = 5
)

// A Presence configures the activity every account announces after login.
type Presence struct {
	Name     string
	Details  string
	Type     ActivityType
	Status   ActivityStatus
	Platform ActivityPlatform
}

func (p *Presence) fillDefaults() {
	if p.Status == "" {
		p.Status = StatusOnline
	}
	if p.Platform == "" {
		p.Platform = PlatformDesktop
	}
}

// statusUpdate renders the presence as the gateway's status update document.
func (p *Presence) statusUpdate(now time.Time) *model.StatusUpdate {
	since := now.UnixMilli()
	return &model.StatusUpdate{
		Since:  since,
		Status: string(p.Status),
		AFK:    false,
		Activities: []model.Activity{{
			Name:      p.Name,
			Type:      int(p.Type),
			CreatedAt: since,
			Since:     since,
			Details:   p.Details,
		}},
	}
}

// identifyProperties reports the device block matching the presence
// platform, so the advertised platform and the login handshake agree.
func (p *Presence) identifyProperties() model.IdentifyProperties {
	if p.Platform == PlatformMobile {
		return model.IdentifyProperties{
			OS:      "Android",
			Browser: "Discord Android",
			Device:  "Discord Android",
		}
	}
	return defaultIdentifyProperties()
}
