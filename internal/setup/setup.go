// Package setup bootstraps application dependencies in order.
package setup

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/janusbot/janus/internal/captcha"
	"github.com/janusbot/janus/internal/database"
	"github.com/janusbot/janus/internal/setup/config"
	"github.com/janusbot/janus/internal/setup/logging"
)

// App bundles the core dependencies shared by the binaries.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	DBLogger *zap.Logger
	DB       *database.Client
	Captcha  *captcha.Client
}

// InitializeApp loads configuration, brings up logging, connects the database,
// and constructs the captcha client.
func InitializeApp(ctx context.Context, logDir string) (*App, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, err
	}

	// Logging comes up first so the remaining setup can report issues.
	logger, dbLogger, err := logging.SetupLogging(logDir, cfg.Logging.Level, cfg.Logging.MaxLogsToKeep)
	if err != nil {
		return nil, err
	}

	db, err := database.Connect(ctx, &cfg.PostgreSQL, dbLogger)
	if err != nil {
		return nil, err
	}

	captchaClient := captcha.NewClient(
		cfg.Captcha.BaseURL,
		time.Duration(cfg.Captcha.RequestTimeout)*time.Millisecond,
		logger,
	)

	return &App{
		Config:   cfg,
		Logger:   logger,
		DBLogger: dbLogger,
		DB:       db,
		Captcha:  captchaClient,
	}, nil
}

// Cleanup closes connections and flushes the loggers.
func (a *App) Cleanup(_ context.Context) {
	if err := a.DB.Close(); err != nil {
		a.Logger.Error("Failed to close database connection", zap.Error(err))
	}

	_ = a.Logger.Sync()
	_ = a.DBLogger.Sync()
}
