package database

import "github.com/uptrace/bun"

// Verification method values stored on a guild row.
const (
	MethodDM       = "DM"
	MethodChannel  = "CHANNEL"
	MethodReaction = "REACTION"
)

// Guild is a guild the bot is a member of. Created on guild join or first
// lookup, deleted when the bot leaves.
type Guild struct {
	bun.BaseModel `bun:"table:guilds,alias:g"`

	ID                 uint64 `bun:"id,pk"`
	Name               string `bun:"name,notnull"`
	OwnerID            uint64 `bun:"owner_id,notnull"`
	Prefix             string `bun:"prefix,notnull"`
	VerificationMethod string `bun:"verification_method,notnull"`
}

// SettingKey identifies a per-guild configuration value.
type SettingKey string

const (
	SettingVerificationChannel SettingKey = "VERIFICATION_CHANNEL"
	SettingVerifiedRole        SettingKey = "VERIFIED_ROLE"
	SettingStartMessage        SettingKey = "VERIFICATION_MESSAGE_START"
	SettingSuccessMessage      SettingKey = "VERIFICATION_MESSAGE_SUCCESS"
	SettingReactionChannel     SettingKey = "REACTION_CHANNEL"
	SettingReactionMessage     SettingKey = "REACTION_MESSAGE"
	SettingReactionEmoji       SettingKey = "REACTION_EMOJI"
)

// GuildSetting is one typed configuration value for a guild. Exactly one of
// the value columns is meaningful per key; nil columns distinguish "unset"
// from zero values. The reaction emoji uses two columns at once: the string
// or int column for the emoji itself and the bool column as the is-unicode
// tag.
type GuildSetting struct {
	bun.BaseModel `bun:"table:guild_settings,alias:gs"`

	GuildID   uint64     `bun:"guild_id,pk"`
	Key       SettingKey `bun:"key,pk"`
	ValueInt  *int64     `bun:"value_int"`
	ValueStr  *string    `bun:"value_str"`
	ValueBool *bool      `bun:"value_bool"`
}
