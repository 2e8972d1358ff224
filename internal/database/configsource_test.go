package database

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/janusbot/janus/internal/verify"
)

func intPtr(v int64) *int64   { return &v }
func strPtr(v string) *string { return &v }
func boolPtr(v bool) *bool    { return &v }

func TestResolveGuildConfig(t *testing.T) {
	t.Parallel()

	guild := &Guild{ID: 200, VerificationMethod: MethodReaction}
	rows := []GuildSetting{
		{GuildID: 200, Key: SettingVerifiedRole, ValueInt: intPtr(300)},
		{GuildID: 200, Key: SettingVerificationChannel, ValueInt: intPtr(555)},
		{GuildID: 200, Key: SettingReactionChannel, ValueInt: intPtr(600)},
		{GuildID: 200, Key: SettingReactionMessage, ValueInt: intPtr(601)},
		{GuildID: 200, Key: SettingStartMessage, ValueStr: strPtr("hello {member_name}")},
		{GuildID: 200, Key: SettingSuccessMessage, ValueStr: strPtr("done")},
		{GuildID: 200, Key: SettingReactionEmoji, ValueStr: strPtr("✅"), ValueBool: boolPtr(true)},
	}

	cfg := resolveGuildConfig(guild, rows)

	assert.Equal(t, &verify.GuildConfig{
		GuildID:               200,
		Method:                verify.MethodReaction,
		VerifiedRoleID:        300,
		VerificationChannelID: 555,
		ReactionChannelID:     600,
		ReactionMessageID:     601,
		ReactionEmoji:         verify.EmojiRef{Unicode: "✅", IsUnicode: true},
		StartMessage:          "hello {member_name}",
		SuccessMessage:        "done",
	}, cfg)
}

func TestResolveGuildConfigDefaults(t *testing.T) {
	t.Parallel()

	guild := &Guild{ID: 200, VerificationMethod: MethodDM}

	cfg := resolveGuildConfig(guild, nil)

	assert.Equal(t, verify.MethodDM, cfg.Method)
	assert.Zero(t, cfg.VerifiedRoleID)
	assert.Empty(t, cfg.StartMessage)
	assert.True(t, cfg.ReactionEmoji.IsZero())
}

func TestResolveGuildConfigNilColumns(t *testing.T) {
	t.Parallel()

	guild := &Guild{ID: 200, VerificationMethod: MethodChannel}
	rows := []GuildSetting{
		{GuildID: 200, Key: SettingVerifiedRole},
		{GuildID: 200, Key: SettingStartMessage},
	}

	cfg := resolveGuildConfig(guild, rows)

	assert.Zero(t, cfg.VerifiedRoleID)
	assert.Empty(t, cfg.StartMessage)
}

func TestResolveEmojiCustom(t *testing.T) {
	t.Parallel()

	row := GuildSetting{Key: SettingReactionEmoji, ValueInt: intPtr(424242), ValueBool: boolPtr(false)}

	emoji := resolveEmoji(row)
	assert.Equal(t, verify.EmojiRef{CustomID: 424242}, emoji)
	assert.False(t, emoji.IsUnicode)
}
