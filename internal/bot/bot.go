// Package bot wires the Discord gateway to the verification engine and the
// guild configuration store.
package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/disgoorg/disgo"
	"github.com/disgoorg/disgo/bot"
	"github.com/disgoorg/disgo/events"
	"github.com/disgoorg/disgo/gateway"
	"go.uber.org/zap"

	"github.com/janusbot/janus/internal/database"
	platform "github.com/janusbot/janus/internal/discord"
	"github.com/janusbot/janus/internal/setup/config"
	"github.com/janusbot/janus/internal/verify"
)

// Bot owns the Discord client and routes gateway events into verification
// sessions and configuration commands.
type Bot struct {
	client bot.Client
	db     *database.Client
	engine *verify.Engine
	config *config.Config
	logger *zap.Logger
}

// New builds the Discord client, the platform adapters, and the verification
// engine, and registers the event listeners.
func New(
	cfg *config.Config,
	db *database.Client,
	challenges verify.Challenger,
	logger *zap.Logger,
) (*Bot, error) {
	b := &Bot{
		db:     db,
		config: cfg,
		logger: logger.Named("bot"),
	}

	client, err := disgo.New(cfg.Bot.Token,
		bot.WithGatewayConfigOpts(
			gateway.WithIntents(
				gateway.IntentGuilds,
				gateway.IntentGuildMembers,
				gateway.IntentGuildMessages,
				gateway.IntentGuildMessageReactions,
				gateway.IntentDirectMessages,
				gateway.IntentMessageContent,
			),
		),
		bot.WithEventListeners(&events.ListenerAdapter{
			OnGuildMemberJoin:               b.handleMemberJoin,
			OnMessageCreate:                 b.handleMessageCreate,
			OnMessageReactionAdd:            b.handleReactionAdd,
			OnGuildJoin:                     b.handleGuildJoin,
			OnGuildLeave:                    b.handleGuildLeave,
			OnApplicationCommandInteraction: b.handleApplicationCommandInteraction,
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord client: %w", err)
	}

	b.client = client
	b.engine = verify.NewEngine(
		challenges,
		db,
		platform.NewAdapter(client.Rest(), logger),
		platform.NewRoleGrantor(client.Rest(), logger),
		logger,
		verify.WithResponseTimeout(time.Duration(cfg.Verification.ResponseTimeout)*time.Second),
		verify.WithMaxAttempts(cfg.Verification.MaxAttempts),
		verify.WithDebug(cfg.Bot.Debug),
		verify.WithOperator(cfg.Bot.OperatorID),
	)

	return b, nil
}

// Start registers the global commands and opens the gateway connection.
func (b *Bot) Start(ctx context.Context) error {
	b.logger.Info("Registering commands")

	_, err := b.client.Rest().SetGlobalCommands(b.client.ApplicationID(), commandCreates())
	if err != nil {
		return fmt.Errorf("failed to register commands: %w", err)
	}

	b.logger.Info("Starting bot")

	return b.client.OpenGateway(ctx)
}

// Close shuts down the gateway connection.
func (b *Bot) Close(ctx context.Context) {
	b.logger.Info("Closing bot")
	b.client.Close(ctx)
}
