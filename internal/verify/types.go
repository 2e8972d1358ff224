package verify

import (
	"context"
	"fmt"

	"github.com/janusbot/janus/internal/captcha"
)

// Method is a guild's configured verification method.
type Method string

const (
	// MethodDM performs verification in the member's direct messages.
	MethodDM Method = "DM"
	// MethodChannel performs verification in a configured guild channel.
	MethodChannel Method = "CHANNEL"
	// MethodReaction completes verification when the member reacts to a
	// configured message. No captcha challenge is involved.
	MethodReaction Method = "REACTION"
)

// EmojiRef identifies a reaction emoji: either a unicode string or a
// custom emoji ID, discriminated by IsUnicode.
type EmojiRef struct {
	Unicode   string
	CustomID  uint64
	IsUnicode bool
}

// IsZero reports whether no emoji is set.
func (e EmojiRef) IsZero() bool {
	return e.Unicode == "" && e.CustomID == 0
}

// Matches compares two emoji references by value.
func (e EmojiRef) Matches(other EmojiRef) bool {
	if e.IsUnicode != other.IsUnicode {
		return false
	}

	if e.IsUnicode {
		return e.Unicode == other.Unicode
	}

	return e.CustomID == other.CustomID
}

// GuildConfig is the typed snapshot of a guild's verification settings that a
// session operates on. Zero-valued IDs mean "not configured".
type GuildConfig struct {
	GuildID               uint64
	Method                Method
	VerifiedRoleID        uint64
	VerificationChannelID uint64
	ReactionChannelID     uint64
	ReactionMessageID     uint64
	ReactionEmoji         EmojiRef
	StartMessage          string
	SuccessMessage        string
}

// ConfigSource resolves guild verification settings. Implementations must
// provide read-your-write consistency within the process. A nil config with a
// nil error means the guild is unknown.
type ConfigSource interface {
	GuildConfig(ctx context.Context, guildID uint64) (*GuildConfig, error)
}

// Challenger issues and verifies captcha challenges.
type Challenger interface {
	Issue(ctx context.Context) (*captcha.Challenge, error)
	// Verify reports whether the answer solves the challenge. Service failures
	// count as a failed verification, not an error.
	Verify(ctx context.Context, challengeID, answer string) bool
}

// GuildInfo is the guild data needed for placeholder rendering.
type GuildInfo struct {
	ID           uint64
	Name         string
	TotalMembers int
	HumanMembers int
}

// MemberInfo is the member data needed for checks and placeholder rendering.
type MemberInfo struct {
	ID            uint64
	Username      string
	Discriminator string
	IsBot         bool
	RoleIDs       []uint64
}

// Mention returns the member's mention string.
func (m *MemberInfo) Mention() string {
	return fmt.Sprintf("<@%d>", m.ID)
}

// Tag returns the member's user tag.
func (m *MemberInfo) Tag() string {
	if m.Discriminator == "" || m.Discriminator == "0" {
		return m.Username
	}

	return m.Username + "#" + m.Discriminator
}

// HasRole reports whether the member holds the given role.
func (m *MemberInfo) HasRole(roleID uint64) bool {
	for _, id := range m.RoleIDs {
		if id == roleID {
			return true
		}
	}

	return false
}

// RoleInfo is the role data needed for placeholder rendering.
type RoleInfo struct {
	ID   uint64
	Name string
}

// Mention returns the role's mention string.
func (r *RoleInfo) Mention() string {
	return fmt.Sprintf("<@&%d>", r.ID)
}

// Message is a platform-agnostic outbound message. The gateway renders it as
// an embed, attaching the captcha image when present.
type Message struct {
	// Mention is prepended as plain content so the member gets pinged.
	Mention     string
	Title       string
	Description string
	Footer      string
	// ImagePNG is attached and displayed inside the embed when non-nil.
	ImagePNG []byte
}

// Gateway is the chat-platform surface a session talks through.
type Gateway interface {
	GuildInfo(ctx context.Context, guildID uint64) (*GuildInfo, error)
	Member(ctx context.Context, guildID, userID uint64) (*MemberInfo, error)
	// CreateDM opens (or reuses) a direct channel with the user and returns
	// its channel ID.
	CreateDM(ctx context.Context, userID uint64) (uint64, error)
	Send(ctx context.Context, channelID uint64, msg Message) error
}

// RoleGrantor applies the verified role to a member.
type RoleGrantor interface {
	// Grant adds roleID to the member. A zero roleID and an already-held role
	// are both no-ops; the latter returns the role without a platform mutation.
	// A nil RoleInfo with nil error means no role was involved.
	Grant(ctx context.Context, guildID, userID, roleID uint64) (*RoleInfo, error)
}
