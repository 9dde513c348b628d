package model

import jsoniter "github.com/json-iterator/go"

// A User stores the identity data Discord returns for an account.
type User struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	Discriminator string `json:"discriminator"`
	Avatar        string `json:"avatar"`
	Email         string `json:"email"`
	Verified      bool   `json:"verified"`
}

// A Guild holds the subset of guild data the client tracks. Guilds are also
// sometimes referred to as Servers in the Discord client.
type Guild struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	OwnerID     string `json:"owner_id"`
	MemberCount int    `json:"member_count"`
}

// A Channel holds data related to an individual guild channel.
type Channel struct {
	ID            string `json:"id"`
	GuildID       string `json:"guild_id"`
	Name          string `json:"name"`
	Topic         string `json:"topic"`
	Type          int    `json:"type"`
	Position      int    `json:"position"`
	LastMessageID string `json:"last_message_id"`
}

// A Message stores data related to a specific channel message.
type Message struct {
	ID              string `json:"id"`
	ChannelID       string `json:"channel_id"`
	GuildID         string `json:"guild_id"`
	Content         string `json:"content"`
	Timestamp       string `json:"timestamp"`
	EditedTimestamp string `json:"edited_timestamp"`
	Author          *User  `json:"author"`
}

// A Role stores information about guild member roles.
type Role struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       int    `json:"color"`
	Hoist       bool   `json:"hoist"`
	Position    int    `json:"position"`
	Permissions string `json:"permissions"`
}

// A Member stores user information for guild members.
type Member struct {
	GuildID  string   `json:"guild_id"`
	JoinedAt string   `json:"joined_at"`
	Nick     string   `json:"nick"`
	User     *User    `json:"user"`
	Roles    []string `json:"roles"`
}

// A Ready stores the data of the websocket READY event that matters to a
// session: who logged in and where to reconnect. Guilds stay raw so the
// cache can hold them exactly as the gateway sent them.
type Ready struct {
	Version          int                   `json:"v"`
	SessionID        string                `json:"session_id"`
	ResumeGatewayURL string                `json:"resume_gateway_url"`
	User             *User                 `json:"user"`
	Guilds           []jsoniter.RawMessage `json:"guilds"`
}

// A Hello carries the server-chosen heartbeat interval, in milliseconds.
// It arrives on the hello control frame right after the socket opens.
type Hello struct {
	HeartbeatInterval int64 `json:"heartbeat_interval"`
}

// Identify is sent on the first connection to the server. Capabilities and
// the properties block mirror what the official client reports.
type Identify struct {
	Token        string             `json:"token"`
	Capabilities int                `json:"capabilities"`
	Properties   IdentifyProperties `json:"properties"`
	Compress     bool               `json:"compress"`
}

// IdentifyProperties describe the device connecting to the gateway.
type IdentifyProperties struct {
	OS      string `json:"os"`
	Browser string `json:"browser"`
	Device  string `json:"device"`
}

// Resume is sent over a fresh websocket to continue an existing session.
type Resume struct {
	Token     string `json:"token"`
	SessionID string `json:"session_id"`
	Sequence  int64  `json:"seq"`
}

// A StatusUpdate announces the account's presence after login.
type StatusUpdate struct {
	Since      int64      `json:"since"`
	Activities []Activity `json:"activities"`
	Status     string     `json:"status"`
	AFK        bool       `json:"afk"`
}

// An Activity is a single entry of a StatusUpdate.
type Activity struct {
	Name      string `json:"name"`
	Type      int    `json:"type"`
	CreatedAt int64  `json:"created_at"`
	Since     int64  `json:"since"`
	Details   string `json:"details"`
}

// A MemberListUpdate is the payload of the GUILD_MEMBER_LIST_UPDATE event,
// the reply stream of the member-list sync request.
type MemberListUpdate struct {
	GuildID string         `json:"guild_id"`
	Ops     []MemberListOp `json:"ops"`
}

// A MemberListOp is one page operation inside a MemberListUpdate. Op is
// "SYNC" for a delivered window and "INVALIDATE" for a rejected one.
type MemberListOp struct {
	Op    string           `json:"op"`
	Range []int            `json:"range"`
	Items []MemberListItem `json:"items"`
}

// A MemberListItem wraps either a member entry or a group separator.
type MemberListItem struct {
	Member *Member                `json:"member"`
	Group  map[string]interface{} `json:"group"`
}

// An ApplicationCommandsUpdate is the correlated reply to an application
// command search sent over the gateway.
type ApplicationCommandsUpdate struct {
	Nonce               string               `json:"nonce"`
	ApplicationCommands []ApplicationCommand `json:"application_commands"`
}

// An ApplicationCommand describes one slash command of an application.
type ApplicationCommand struct {
	ID            string                     `json:"id"`
	ApplicationID string                     `json:"application_id"`
	Version       string                     `json:"version"`
	Name          string                     `json:"name"`
	Description   string                     `json:"description"`
	Type          int                        `json:"type"`
	Options       []ApplicationCommandOption `json:"options"`
}

// An ApplicationCommandOption is an argument or subcommand of a command.
type ApplicationCommandOption struct {
	Type        int                        `json:"type"`
	Name        string                     `json:"name"`
	Description string                     `json:"description"`
	Required    bool                       `json:"required"`
	Options     []ApplicationCommandOption `json:"options"`
}
