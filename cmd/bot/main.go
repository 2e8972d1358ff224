package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/janusbot/janus/internal/bot"
	"github.com/janusbot/janus/internal/setup"
)

const botLogDir = "logs/bot_logs"

func main() {
	ctx := context.Background()

	app, err := setup.InitializeApp(ctx, botLogDir)
	if err != nil {
		log.Fatalf("Failed to initialize application: %v", err)
	}
	defer app.Cleanup(ctx)

	discordBot, err := bot.New(app.Config, app.DB, app.Captcha, app.Logger)
	if err != nil {
		log.Printf("Failed to create bot: %v", err)
		return
	}

	if err := discordBot.Start(ctx); err != nil {
		log.Printf("Failed to start bot: %v", err)
		return
	}

	log.Println("Bot has been started. Waiting for interrupt signal to gracefully shutdown...")

	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	discordBot.Close(ctx)
}
