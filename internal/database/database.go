// Package database stores per-guild verification settings in PostgreSQL.
package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"go.uber.org/zap"

	"github.com/janusbot/janus/internal/setup/config"
)

// Client wraps the bun connection with the guild configuration store.
type Client struct {
	db     *bun.DB
	logger *zap.Logger
}

// Connect establishes the database connection, waits for the server to accept
// it, and ensures the schema exists.
func Connect(ctx context.Context, cfg *config.PostgreSQL, logger *zap.Logger) (*Client, error) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithAddr(fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)),
		pgdriver.WithUser(cfg.User),
		pgdriver.WithPassword(cfg.Password),
		pgdriver.WithDatabase(cfg.DBName),
		pgdriver.WithInsecure(true),
		pgdriver.WithApplicationName("janus"),
	))

	db := bun.NewDB(sqldb, pgdialect.New())
	db.AddQueryHook(NewHook(logger))

	// The database may still be starting alongside the bot.
	ping := func() error {
		return db.PingContext(ctx)
	}

	err := backoff.Retry(ping, backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx))
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	client := &Client{
		db:     db,
		logger: logger.Named("database"),
	}

	if err := client.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return client, nil
}

// createSchema creates the tables if they do not exist yet.
func (c *Client) createSchema(ctx context.Context) error {
	models := []any{
		(*Guild)(nil),
		(*GuildSetting)(nil),
	}

	for _, model := range models {
		_, err := c.db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}

	return nil
}

// Close shuts down the database connection.
func (c *Client) Close() error {
	return c.db.Close()
}

// DB returns the underlying bun instance.
func (c *Client) DB() *bun.DB {
	return c.db
}

// EnsureGuild creates the guild row if it is missing and returns the current
// row. The insert-on-conflict keeps concurrent first events for the same
// guild from racing a read-then-write.
func (c *Client) EnsureGuild(ctx context.Context, id uint64, name string, ownerID uint64, prefix string) (*Guild, error) {
	guild := &Guild{
		ID:                 id,
		Name:               name,
		OwnerID:            ownerID,
		Prefix:             prefix,
		VerificationMethod: MethodDM,
	}

	_, err := c.db.NewInsert().Model(guild).
		On("CONFLICT (id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure guild %d: %w", id, err)
	}

	return c.Guild(ctx, id)
}

// Guild fetches a guild row. A nil guild with nil error means the guild is
// unknown.
func (c *Client) Guild(ctx context.Context, id uint64) (*Guild, error) {
	guild := new(Guild)

	err := c.db.NewSelect().Model(guild).Where("g.id = ?", id).Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch guild %d: %w", id, err)
	}

	return guild, nil
}

// DeleteGuild removes the guild row and all its settings.
func (c *Client) DeleteGuild(ctx context.Context, id uint64) error {
	_, err := c.db.NewDelete().Model((*GuildSetting)(nil)).Where("guild_id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete guild settings for %d: %w", id, err)
	}

	_, err = c.db.NewDelete().Model((*Guild)(nil)).Where("id = ?", id).Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete guild %d: %w", id, err)
	}

	return nil
}

// SetVerificationMethod updates a guild's verification method.
func (c *Client) SetVerificationMethod(ctx context.Context, id uint64, method string) error {
	_, err := c.db.NewUpdate().Model((*Guild)(nil)).
		Set("verification_method = ?", method).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set verification method for %d: %w", id, err)
	}

	return nil
}

// SetPrefix updates a guild's command prefix.
func (c *Client) SetPrefix(ctx context.Context, id uint64, prefix string) error {
	_, err := c.db.NewUpdate().Model((*Guild)(nil)).
		Set("prefix = ?", prefix).
		Where("id = ?", id).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set prefix for %d: %w", id, err)
	}

	return nil
}

// upsertSetting writes a setting row, replacing all value columns so a key
// always holds exactly one logical value.
func (c *Client) upsertSetting(ctx context.Context, setting *GuildSetting) error {
	_, err := c.db.NewInsert().Model(setting).
		On("CONFLICT (guild_id, key) DO UPDATE").
		Set("value_int = EXCLUDED.value_int").
		Set("value_str = EXCLUDED.value_str").
		Set("value_bool = EXCLUDED.value_bool").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert setting %s for %d: %w", setting.Key, setting.GuildID, err)
	}

	return nil
}

// SetIntSetting stores an integer setting for a guild.
func (c *Client) SetIntSetting(ctx context.Context, guildID uint64, key SettingKey, value int64) error {
	return c.upsertSetting(ctx, &GuildSetting{GuildID: guildID, Key: key, ValueInt: &value})
}

// SetStrSetting stores a string setting for a guild.
func (c *Client) SetStrSetting(ctx context.Context, guildID uint64, key SettingKey, value string) error {
	return c.upsertSetting(ctx, &GuildSetting{GuildID: guildID, Key: key, ValueStr: &value})
}

// SetBoolSetting stores a boolean setting for a guild.
func (c *Client) SetBoolSetting(ctx context.Context, guildID uint64, key SettingKey, value bool) error {
	return c.upsertSetting(ctx, &GuildSetting{GuildID: guildID, Key: key, ValueBool: &value})
}

// setting fetches one setting row. A nil row with nil error means unset.
func (c *Client) setting(ctx context.Context, guildID uint64, key SettingKey) (*GuildSetting, error) {
	row := new(GuildSetting)

	err := c.db.NewSelect().Model(row).
		Where("gs.guild_id = ?", guildID).
		Where("gs.key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to fetch setting %s for %d: %w", key, guildID, err)
	}

	return row, nil
}

// IntSetting fetches an integer setting. The boolean reports presence,
// keeping an unset value distinguishable from zero.
func (c *Client) IntSetting(ctx context.Context, guildID uint64, key SettingKey) (int64, bool, error) {
	row, err := c.setting(ctx, guildID, key)
	if err != nil || row == nil || row.ValueInt == nil {
		return 0, false, err
	}

	return *row.ValueInt, true, nil
}

// StrSetting fetches a string setting.
func (c *Client) StrSetting(ctx context.Context, guildID uint64, key SettingKey) (string, bool, error) {
	row, err := c.setting(ctx, guildID, key)
	if err != nil || row == nil || row.ValueStr == nil {
		return "", false, err
	}

	return *row.ValueStr, true, nil
}

// BoolSetting fetches a boolean setting.
func (c *Client) BoolSetting(ctx context.Context, guildID uint64, key SettingKey) (bool, bool, error) {
	row, err := c.setting(ctx, guildID, key)
	if err != nil || row == nil || row.ValueBool == nil {
		return false, false, err
	}

	return *row.ValueBool, true, nil
}

// SettingExists reports whether a setting row is present for the guild.
func (c *Client) SettingExists(ctx context.Context, guildID uint64, key SettingKey) (bool, error) {
	exists, err := c.db.NewSelect().Model((*GuildSetting)(nil)).
		Where("gs.guild_id = ?", guildID).
		Where("gs.key = ?", key).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check setting %s for %d: %w", key, guildID, err)
	}

	return exists, nil
}

// settings fetches all setting rows for a guild.
func (c *Client) settings(ctx context.Context, guildID uint64) ([]GuildSetting, error) {
	var rows []GuildSetting

	err := c.db.NewSelect().Model(&rows).Where("gs.guild_id = ?", guildID).Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch settings for %d: %w", guildID, err)
	}

	return rows, nil
}
