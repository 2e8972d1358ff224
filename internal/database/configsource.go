package database

import (
	"context"

	"github.com/janusbot/janus/internal/verify"
)

// SetReactionEmoji stores the guild's reaction emoji. Unicode emojis go in
// the string column, custom emoji IDs in the int column; the bool column
// carries the is-unicode tag either way.
func (c *Client) SetReactionEmoji(ctx context.Context, guildID uint64, emoji verify.EmojiRef) error {
	isUnicode := emoji.IsUnicode
	row := &GuildSetting{
		GuildID:   guildID,
		Key:       SettingReactionEmoji,
		ValueBool: &isUnicode,
	}

	if emoji.IsUnicode {
		value := emoji.Unicode
		row.ValueStr = &value
	} else {
		value := int64(emoji.CustomID)
		row.ValueInt = &value
	}

	return c.upsertSetting(ctx, row)
}

// GuildConfig resolves a guild's settings into the typed snapshot the
// verification engine consumes. Implements verify.ConfigSource: a nil config
// with nil error means the guild is unknown.
func (c *Client) GuildConfig(ctx context.Context, guildID uint64) (*verify.GuildConfig, error) {
	guild, err := c.Guild(ctx, guildID)
	if err != nil {
		return nil, err
	}

	if guild == nil {
		return nil, nil
	}

	rows, err := c.settings(ctx, guildID)
	if err != nil {
		return nil, err
	}

	return resolveGuildConfig(guild, rows), nil
}

// resolveGuildConfig maps setting rows onto the typed config. Unset rows and
// nil columns leave the corresponding fields zero.
func resolveGuildConfig(guild *Guild, rows []GuildSetting) *verify.GuildConfig {
	cfg := &verify.GuildConfig{
		GuildID: guild.ID,
		Method:  verify.Method(guild.VerificationMethod),
	}

	for _, row := range rows {
		switch row.Key {
		case SettingVerifiedRole:
			if row.ValueInt != nil {
				cfg.VerifiedRoleID = uint64(*row.ValueInt)
			}
		case SettingVerificationChannel:
			if row.ValueInt != nil {
				cfg.VerificationChannelID = uint64(*row.ValueInt)
			}
		case SettingReactionChannel:
			if row.ValueInt != nil {
				cfg.ReactionChannelID = uint64(*row.ValueInt)
			}
		case SettingReactionMessage:
			if row.ValueInt != nil {
				cfg.ReactionMessageID = uint64(*row.ValueInt)
			}
		case SettingStartMessage:
			if row.ValueStr != nil {
				cfg.StartMessage = *row.ValueStr
			}
		case SettingSuccessMessage:
			if row.ValueStr != nil {
				cfg.SuccessMessage = *row.ValueStr
			}
		case SettingReactionEmoji:
			cfg.ReactionEmoji = resolveEmoji(row)
		}
	}

	return cfg
}

func resolveEmoji(row GuildSetting) verify.EmojiRef {
	var emoji verify.EmojiRef

	if row.ValueBool != nil {
		emoji.IsUnicode = *row.ValueBool
	}

	if row.ValueStr != nil {
		emoji.Unicode = *row.ValueStr
	}

	if row.ValueInt != nil {
		emoji.CustomID = uint64(*row.ValueInt)
	}

	return emoji
}
