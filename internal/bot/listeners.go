package bot

import (
	"context"

	"github.com/disgoorg/disgo/events"
	"go.uber.org/zap"

	"github.com/janusbot/janus/internal/verify"
)

// handleMemberJoin starts a verification session for every human that joins a
// guild. The session blocks until terminal, so it runs on its own goroutine.
func (b *Bot) handleMemberJoin(event *events.GuildMemberJoin) {
	if event.Member.User.Bot {
		return
	}

	trigger := verify.Trigger{
		UserID:  uint64(event.Member.User.ID),
		GuildID: uint64(event.GuildID),
	}

	go func() {
		if err := b.engine.StartSession(context.Background(), trigger); err != nil {
			b.logger.Error("Verification session failed",
				zap.Uint64("user_id", trigger.UserID),
				zap.Uint64("guild_id", trigger.GuildID),
				zap.Error(err))
		}
	}()
}

// handleMessageCreate feeds user messages to sessions waiting on them.
func (b *Bot) handleMessageCreate(event *events.MessageCreate) {
	if event.Message.Author.Bot {
		return
	}

	b.engine.HandleMessage(
		uint64(event.Message.Author.ID),
		uint64(event.ChannelID),
		event.Message.Content,
	)
}

// handleReactionAdd forwards guild reactions to the engine, which decides
// whether they complete a reaction-method verification.
func (b *Bot) handleReactionAdd(event *events.MessageReactionAdd) {
	if event.GuildID == nil {
		return
	}

	if event.Member != nil && event.Member.User.Bot {
		return
	}

	if event.UserID == b.client.ID() {
		return
	}

	emoji := verify.EmojiRef{}
	if event.Emoji.ID != nil {
		emoji.CustomID = uint64(*event.Emoji.ID)
	} else if event.Emoji.Name != nil {
		emoji.Unicode = *event.Emoji.Name
		emoji.IsUnicode = true
	}

	trigger := verify.ReactionTrigger{
		UserID:    uint64(event.UserID),
		GuildID:   uint64(*event.GuildID),
		ChannelID: uint64(event.ChannelID),
		MessageID: uint64(event.MessageID),
		Emoji:     emoji,
	}

	go func() {
		if err := b.engine.HandleReaction(context.Background(), trigger); err != nil {
			b.logger.Error("Reaction verification failed",
				zap.Uint64("user_id", trigger.UserID),
				zap.Uint64("guild_id", trigger.GuildID),
				zap.Error(err))
		}
	}()
}

// handleGuildJoin ensures a guild row exists when the bot is added to a guild.
func (b *Bot) handleGuildJoin(event *events.GuildJoin) {
	guildID := uint64(event.GuildID)

	_, err := b.db.EnsureGuild(context.Background(),
		guildID,
		event.Guild.Name,
		uint64(event.Guild.OwnerID),
		b.config.Bot.DefaultPrefix,
	)
	if err != nil {
		b.logger.Error("Failed to register guild",
			zap.Uint64("guild_id", guildID),
			zap.Error(err))

		return
	}

	b.logger.Info("Joined guild",
		zap.Uint64("guild_id", guildID),
		zap.String("name", event.Guild.Name))
}

// handleGuildLeave drops the guild's configuration when the bot is removed.
func (b *Bot) handleGuildLeave(event *events.GuildLeave) {
	guildID := uint64(event.GuildID)

	if err := b.db.DeleteGuild(context.Background(), guildID); err != nil {
		b.logger.Error("Failed to remove guild",
			zap.Uint64("guild_id", guildID),
			zap.Error(err))

		return
	}

	b.logger.Info("Left guild", zap.Uint64("guild_id", guildID))
}
