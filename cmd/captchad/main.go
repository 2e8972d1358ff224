package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/janusbot/janus/internal/captcha/captchad"
	"github.com/janusbot/janus/internal/setup/logging"
)

const (
	captchadLogDir  = "logs/captchad_logs"
	shutdownTimeout = 10 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Printf("Error: %v", err)
		os.Exit(1)
	}
}

func run() error {
	app := &cli.Command{
		Name:  "captchad",
		Usage: "Serve captcha challenges for the verification bot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "address to listen on",
				Value: ":8090",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level: debug, info, warn, error",
				Value: "info",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			logger, _, err := logging.SetupLogging(captchadLogDir, cmd.String("log-level"), 10)
			if err != nil {
				return fmt.Errorf("failed to initialize logging: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			service := captchad.NewService(logger)

			server := &http.Server{
				Addr:              cmd.String("addr"),
				Handler:           service.Handler(),
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)

			go func() {
				logger.Info("Captcha service listening", zap.String("addr", server.Addr))
				errCh <- server.ListenAndServe()
			}()

			sc := make(chan os.Signal, 1)
			signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)

			select {
			case err := <-errCh:
				if !errors.Is(err, http.ErrServerClosed) {
					return err
				}
			case <-sc:
				logger.Info("Shutting down captcha service")

				shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
				defer cancel()

				if err := server.Shutdown(shutdownCtx); err != nil {
					return fmt.Errorf("failed to shut down cleanly: %w", err)
				}
			}

			return nil
		},
	}

	return app.Run(context.Background(), os.Args)
}
