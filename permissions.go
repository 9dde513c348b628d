package flock

import "strconv"

// A Permission is a single guild permission bit.
type Permission uint64

const (
	PermCreateInstantInvite  Permission = 1 << 0
	PermKickMembers          Permission = 1 << 1
	PermBanMembers           Permission = 1 << 2
	PermAdministrator        Permission = 1 << 3
	PermManageChannels       Permission = 1 << 4
	PermManageGuild          Permission = 1 << 5
	PermAddReactions         Permission = 1 << 6
	PermViewAuditLog         Permission = 1 << 7
	PermPrioritySpeaker      Permission = 1 << 8
	PermStream               Permission = 1 << 9
	PermViewChannel          Permission = 1 << 10
	PermSendMessages         Permission = 1 << 11
	PermSendTTSMessages      Permission = 1 << 12
	PermManageMessages       Permission = 1 << 13
	PermEmbedLinks           Permission = 1 << 14
	PermAttachFiles          Permission = 1 << 15
	PermReadMessageHistory   Permission = 1 << 16
	PermMentionEveryone      Permission = 1 << 17
	PermUseExternalEmojis    Permission = 1 << 18
	PermViewGuildInsights    Permission = 1 << 19
	PermConnect              Permission = 1 << 20
	PermSpeak                Permission = 1 << 21
	PermMuteMembers          Permission = 1 << 22
	PermDeafenMembers        Permission = 1 << 23
	PermMoveMembers          Permission = 1 << 24
	PermChangeNickname       Permission = 1 << 26
	PermManageNicknames      Permission = 1 << 27
	PermManageRoles          Permission = 1 << 28
	PermManageWebhooks       Permission = 1 << 29
	PermManageThreads        Permission = 1 << 34
	PermCreatePublicThreads  Permission = 1 << 35
	PermCreatePrivateThreads Permission = 1 << 36
	PermModerateMembers      Permission = 1 << 40
)

// A PermissionBuilder accumulates permission bits for role creation. The
// REST API wants the combined value as a decimal string.
type PermissionBuilder struct {
	bits Permission
}

// NewPermissionBuilder returns a builder with no permissions set.
func NewPermissionBuilder(perms ...Permission) *PermissionBuilder {
	b := &PermissionBuilder{}
	return b.Add(perms...)
}

// Add sets the given permission bits and returns the builder.
func (b *PermissionBuilder) Add(perms ...Permission) *PermissionBuilder {
	for _, p := range perms {
		b.bits |= p
	}
	return b
}

// Has reports whether every given bit is set.
func (b *PermissionBuilder) Has(perms ...Permission) bool {
	for _, p := range perms {
		if b.bits&p == 0 {
			return false
		}
	}
	return true
}

// String renders the combined bits the way the REST API expects them.
func (b *PermissionBuilder) String() string {
	return strconv.FormatUint(uint64(b.bits), 10)
}
