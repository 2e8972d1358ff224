package bot

import (
	"context"
	"fmt"
	"strconv"

	"github.com/disgoorg/disgo/discord"
	"github.com/disgoorg/disgo/events"
	"go.uber.org/zap"

	"github.com/janusbot/janus/internal/database"
	"github.com/janusbot/janus/internal/verify"
)

const (
	verifyCommandName = "verify"
	configCommandName = "config"
)

// commandCreates returns the global slash command definitions.
func commandCreates() []discord.ApplicationCommandCreate {
	methodChoices := []discord.ApplicationCommandOptionChoiceString{
		{Name: "DM", Value: database.MethodDM},
		{Name: "Channel", Value: database.MethodChannel},
		{Name: "Reaction", Value: database.MethodReaction},
	}

	return []discord.ApplicationCommandCreate{
		discord.SlashCommandCreate{
			Name:        verifyCommandName,
			Description: "Verify yourself in this server",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionString{
					Name:        "guild",
					Description: "Server ID, only needed when running this from a DM",
				},
			},
		},
		discord.SlashCommandCreate{
			Name:        configCommandName,
			Description: "Configure verification for this server",
			Options: []discord.ApplicationCommandOption{
				discord.ApplicationCommandOptionSubCommand{
					Name:        "method",
					Description: "Set the verification method",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionString{
							Name:        "method",
							Description: "How members get verified",
							Required:    true,
							Choices:     methodChoices,
						},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "role",
					Description: "Set the role granted on successful verification",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionRole{
							Name:        "role",
							Description: "The verified role",
							Required:    true,
						},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "channel",
					Description: "Set the channel used for channel-method verification",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionChannel{
							Name:        "channel",
							Description: "The verification channel",
							Required:    true,
						},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "start-message",
					Description: "Set the challenge prompt template",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionString{
							Name:        "template",
							Description: "Template with {member_name} style placeholders",
							Required:    true,
						},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "success-message",
					Description: "Set the success message template",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionString{
							Name:        "template",
							Description: "Template with {member_name} style placeholders",
							Required:    true,
						},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "reaction-channel",
					Description: "Set the channel holding the reaction prompt message",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionChannel{
							Name:        "channel",
							Description: "The reaction channel",
							Required:    true,
						},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "reaction-message",
					Description: "Set the message members react to",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionString{
							Name:        "message_id",
							Description: "ID of the prompt message",
							Required:    true,
						},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "reaction-emoji",
					Description: "Set the emoji that completes reaction verification",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionString{
							Name:        "emoji",
							Description: "A unicode emoji or a custom emoji like <:name:id>",
							Required:    true,
						},
					},
				},
				discord.ApplicationCommandOptionSubCommand{
					Name:        "prefix",
					Description: "Set the command prefix for this server",
					Options: []discord.ApplicationCommandOption{
						discord.ApplicationCommandOptionString{
							Name:        "prefix",
							Description: "The new prefix",
							Required:    true,
						},
					},
				},
			},
		},
	}
}

// handleApplicationCommandInteraction routes slash commands. Handlers run on a
// goroutine so the gateway loop never blocks on database or session work.
func (b *Bot) handleApplicationCommandInteraction(event *events.ApplicationCommandInteractionCreate) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				b.logger.Error("Panic in command handler", zap.Any("panic", r))
			}
		}()

		data := event.SlashCommandInteractionData()

		switch data.CommandName() {
		case verifyCommandName:
			b.handleVerifyCommand(event, data)
		case configCommandName:
			b.handleConfigCommand(event, data)
		default:
			b.respond(event, "Unknown command.")
		}
	}()
}

// handleVerifyCommand starts a manual verification session for the invoker.
// Outside a guild the target server comes from the guild option.
func (b *Bot) handleVerifyCommand(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	var guildID uint64

	switch {
	case event.GuildID() != nil:
		guildID = uint64(*event.GuildID())
	default:
		raw, ok := data.OptString("guild")
		if !ok {
			b.respond(event, "Pass the server ID when running this from a DM.")
			return
		}

		var err error
		if guildID, err = strconv.ParseUint(raw, 10, 64); err != nil {
			b.respond(event, "That does not look like a server ID.")
			return
		}
	}

	b.respond(event, "Starting verification, watch for the challenge.")

	trigger := verify.Trigger{
		UserID:    uint64(event.User().ID),
		GuildID:   guildID,
		ChannelID: uint64(event.Channel().ID()),
		Manual:    true,
	}

	if err := b.engine.StartSession(context.Background(), trigger); err != nil {
		b.logger.Error("Manual verification session failed",
			zap.Uint64("user_id", trigger.UserID),
			zap.Uint64("guild_id", trigger.GuildID),
			zap.Error(err))
	}
}

// handleConfigCommand applies a configuration subcommand. Only guild
// administrators may change settings.
func (b *Bot) handleConfigCommand(event *events.ApplicationCommandInteractionCreate, data discord.SlashCommandInteractionData) {
	if event.GuildID() == nil {
		b.respond(event, "Run this command inside a server.")
		return
	}

	member := event.Member()
	if member == nil || !member.Permissions.Has(discord.PermissionAdministrator) {
		b.respond(event, "You need the Administrator permission to change verification settings.")
		return
	}

	ctx := context.Background()
	guildID := uint64(*event.GuildID())

	// The guild row normally exists from the join event; recreate it if the
	// bot was added while offline.
	if _, err := b.db.EnsureGuild(ctx, guildID, "", uint64(event.User().ID), b.config.Bot.DefaultPrefix); err != nil {
		b.respondError(event, err)
		return
	}

	sub := ""
	if data.SubCommandName != nil {
		sub = *data.SubCommandName
	}

	var err error

	switch sub {
	case "method":
		method := data.String("method")
		if err = b.db.SetVerificationMethod(ctx, guildID, method); err == nil {
			b.respond(event, fmt.Sprintf("Verification method set to `%s`.", method))
		}

	case "role":
		roleID := data.Snowflake("role")
		if err = b.db.SetIntSetting(ctx, guildID, database.SettingVerifiedRole, int64(roleID)); err == nil {
			b.respond(event, fmt.Sprintf("Verified role set to <@&%d>.", roleID))
		}

	case "channel":
		channelID := data.Snowflake("channel")
		if err = b.db.SetIntSetting(ctx, guildID, database.SettingVerificationChannel, int64(channelID)); err == nil {
			b.respond(event, fmt.Sprintf("Verification channel set to <#%d>.", channelID))
		}

	case "start-message":
		if err = b.db.SetStrSetting(ctx, guildID, database.SettingStartMessage, data.String("template")); err == nil {
			b.respond(event, "Challenge prompt template updated.")
		}

	case "success-message":
		if err = b.db.SetStrSetting(ctx, guildID, database.SettingSuccessMessage, data.String("template")); err == nil {
			b.respond(event, "Success message template updated.")
		}

	case "reaction-channel":
		channelID := data.Snowflake("channel")
		if err = b.db.SetIntSetting(ctx, guildID, database.SettingReactionChannel, int64(channelID)); err == nil {
			b.respond(event, fmt.Sprintf("Reaction channel set to <#%d>.", channelID))
		}

	case "reaction-message":
		var messageID uint64

		messageID, err = strconv.ParseUint(data.String("message_id"), 10, 64)
		if err != nil {
			b.respond(event, "That does not look like a message ID.")
			return
		}

		if err = b.db.SetIntSetting(ctx, guildID, database.SettingReactionMessage, int64(messageID)); err == nil {
			b.respond(event, "Reaction message updated.")
		}

	case "reaction-emoji":
		emoji, ok := parseEmoji(data.String("emoji"))
		if !ok {
			b.respond(event, "That does not look like an emoji.")
			return
		}

		if err = b.db.SetReactionEmoji(ctx, guildID, emoji); err == nil {
			b.respond(event, "Reaction emoji updated.")
		}

	case "prefix":
		prefix := data.String("prefix")
		if err = b.db.SetPrefix(ctx, guildID, prefix); err == nil {
			b.respond(event, fmt.Sprintf("Prefix set to `%s`.", prefix))
		}

	default:
		b.respond(event, "Unknown setting.")
		return
	}

	if err != nil {
		b.respondError(event, err)
	}
}

// respond sends an ephemeral reply to an interaction.
func (b *Bot) respond(event *events.ApplicationCommandInteractionCreate, content string) {
	err := event.CreateMessage(discord.NewMessageCreateBuilder().
		SetContent(content).
		SetEphemeral(true).
		Build())
	if err != nil {
		b.logger.Error("Failed to respond to interaction", zap.Error(err))
	}
}

// respondError logs a command failure and tells the invoker something went
// wrong without leaking details.
func (b *Bot) respondError(event *events.ApplicationCommandInteractionCreate, err error) {
	b.logger.Error("Command failed",
		zap.String("command", event.SlashCommandInteractionData().CommandName()),
		zap.Error(err))

	b.respond(event, "Something went wrong applying that setting.")
}
