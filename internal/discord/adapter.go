// Package discord adapts the verification engine's platform surfaces onto the
// disgo REST client.
package discord

import (
	"bytes"
	"context"
	"fmt"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/rest"
	"github.com/disgoorg/snowflake/v2"
	"go.uber.org/zap"

	"github.com/janusbot/janus/internal/verify"
)

// Adapter implements verify.Gateway over the Discord REST API.
type Adapter struct {
	rest   rest.Rest
	logger *zap.Logger
}

// NewAdapter creates a gateway adapter.
func NewAdapter(r rest.Rest, logger *zap.Logger) *Adapter {
	return &Adapter{
		rest:   r,
		logger: logger.Named("discord"),
	}
}

// GuildInfo fetches a guild with its approximate member counts. Discord does
// not expose a human-only count over REST, so presence counts stand in for
// humans in placeholder rendering.
func (a *Adapter) GuildInfo(ctx context.Context, guildID uint64) (*verify.GuildInfo, error) {
	guild, err := a.rest.GetGuild(snowflake.ID(guildID), true, rest.WithCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch guild %d: %w", guildID, err)
	}

	return &verify.GuildInfo{
		ID:           guildID,
		Name:         guild.Name,
		TotalMembers: guild.ApproximateMemberCount,
		HumanMembers: guild.ApproximatePresenceCount,
	}, nil
}

// Member fetches a guild member.
func (a *Adapter) Member(ctx context.Context, guildID, userID uint64) (*verify.MemberInfo, error) {
	member, err := a.rest.GetMember(snowflake.ID(guildID), snowflake.ID(userID), rest.WithCtx(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch member %d in guild %d: %w", userID, guildID, err)
	}

	roleIDs := make([]uint64, len(member.RoleIDs))
	for i, id := range member.RoleIDs {
		roleIDs[i] = uint64(id)
	}

	return &verify.MemberInfo{
		ID:            userID,
		Username:      member.User.Username,
		Discriminator: member.User.Discriminator,
		IsBot:         member.User.Bot,
		RoleIDs:       roleIDs,
	}, nil
}

// CreateDM opens (or reuses) the direct channel with a user.
func (a *Adapter) CreateDM(ctx context.Context, userID uint64) (uint64, error) {
	channel, err := a.rest.CreateDMChannel(snowflake.ID(userID), rest.WithCtx(ctx))
	if err != nil {
		return 0, fmt.Errorf("failed to open DM channel with %d: %w", userID, err)
	}

	return uint64(channel.ID()), nil
}

// Send delivers a message. Messages with only a description go out as plain
// content; everything else renders as an embed, with the captcha image
// attached and displayed inside the embed when present.
func (a *Adapter) Send(ctx context.Context, channelID uint64, msg verify.Message) error {
	builder := discord.NewMessageCreateBuilder()

	if msg.Title == "" && msg.Footer == "" && msg.ImagePNG == nil {
		content := msg.Description
		if msg.Mention != "" {
			content = msg.Mention + " " + content
		}

		builder.SetContent(content)
	} else {
		embed := discord.NewEmbedBuilder().
			SetTitle(msg.Title).
			SetDescription(msg.Description)

		if msg.Footer != "" {
			embed.SetFooter(msg.Footer, "")
		}

		if msg.ImagePNG != nil {
			embed.SetImage("attachment://captcha.png")
			builder.AddFiles(discord.NewFile("captcha.png", "", bytes.NewReader(msg.ImagePNG)))
		}

		builder.SetContent(msg.Mention).SetEmbeds(embed.Build())
	}

	_, err := a.rest.CreateMessage(snowflake.ID(channelID), builder.Build(), rest.WithCtx(ctx))
	if err != nil {
		return fmt.Errorf("failed to send message to channel %d: %w", channelID, err)
	}

	return nil
}
