// Package sessionkey builds and parses the opaque session-key strings that
// partition conversations across the Dispatcher. The Dispatcher never
// interprets a key's shape; channels build them here and agents read them
// back through Parse when they need to know what kind of conversation they
// are in.
package sessionkey

import (
	"fmt"
	"strings"
)

// Reserved session keys used internally by the scheduled dispatch layer.
// They never collide with a channel-produced key because those always
// contain at least three ":"-separated fields.
const (
	Heartbeat = "heartbeat"
	Cron      = "cron"
	Main      = "main"
)

// Kind identifies which routing shape a parsed session key has.
type Kind string

const (
	KindReserved Kind = "reserved"
	KindUser     Kind = "user"
	KindGuild    Kind = "guild"
	KindDM       Kind = "dm"
	KindThread   Kind = "thread"
)

// Key is the decomposed form of a session-key string.
type Key struct {
	Kind      Kind
	Platform  string // "agent" for the one-to-one chat shape, else the channel platform
	AgentID   string
	GuildID   string
	ChannelID string
	ThreadID  string
	UserID    string
	Raw       string
}

// User builds the one-to-one chat session key: agent:<agentId>:user:<userId>.
func User(agentID, userID string) string {
	return fmt.Sprintf("agent:%s:user:%s", agentID, userID)
}

// Guild builds a platform group-chat session key:
// <platform>:<agentId>:guild:<guildId>:<channelId>:<userId>.
func Guild(platform, agentID, guildID, channelID, userID string) string {
	return fmt.Sprintf("%s:%s:guild:%s:%s:%s", platform, agentID, guildID, channelID, userID)
}

// DM builds a platform direct-message session key:
// <platform>:<agentId>:dm:<userId>.
func DM(platform, agentID, userID string) string {
	return fmt.Sprintf("%s:%s:dm:%s", platform, agentID, userID)
}

// Thread builds a thread-in-channel session key:
// <platform>:<agentId>:guild:<guildId>:<channelId>:<threadId>:<userId>.
func Thread(platform, agentID, guildID, channelID, threadID, userID string) string {
	return fmt.Sprintf("%s:%s:guild:%s:%s:%s:%s", platform, agentID, guildID, channelID, threadID, userID)
}

// IsReserved reports whether key is one of the three internal session keys.
func IsReserved(key string) bool {
	switch key {
	case Heartbeat, Cron, Main:
		return true
	default:
		return false
	}
}

// Parse decomposes a session-key string into its routing shape. Reserved
// keys parse to KindReserved with every other field empty.
func Parse(key string) (Key, error) {
	if IsReserved(key) {
		return Key{Kind: KindReserved, Raw: key}, nil
	}

	parts := strings.Split(key, ":")
	switch {
	case len(parts) == 4 && parts[0] == "agent" && parts[2] == "user":
		return Key{Kind: KindUser, Platform: "agent", AgentID: parts[1], UserID: parts[3], Raw: key}, nil
	case len(parts) == 4 && parts[2] == "dm":
		return Key{Kind: KindDM, Platform: parts[0], AgentID: parts[1], UserID: parts[3], Raw: key}, nil
	case len(parts) == 6 && parts[2] == "guild":
		return Key{
			Kind: KindGuild, Platform: parts[0], AgentID: parts[1],
			GuildID: parts[3], ChannelID: parts[4], UserID: parts[5], Raw: key,
		}, nil
	case len(parts) == 7 && parts[2] == "guild":
		return Key{
			Kind: KindThread, Platform: parts[0], AgentID: parts[1],
			GuildID: parts[3], ChannelID: parts[4], ThreadID: parts[5], UserID: parts[6], Raw: key,
		}, nil
	default:
		return Key{}, fmt.Errorf("sessionkey: unrecognized session key format: %s", key)
	}
}

// Reroute rewrites key to the reserved Main session key when useMain is set
// and key's platform matches mainChannelPlatform, giving a single
// cross-channel conversation for debugging. key is returned unchanged in
// every other case, including when useMain is false, key is already a
// reserved key, or key fails to parse.
func Reroute(key string, mainChannelPlatform string, useMain bool) string {
	if !useMain {
		return key
	}
	parsed, err := Parse(key)
	if err != nil || parsed.Kind == KindReserved {
		return key
	}
	if parsed.Platform == mainChannelPlatform {
		return Main
	}
	return key
}
