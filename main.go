package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/aleksis/telegram-stringgen-bot/internal/bot"
	"github.com/aleksis/telegram-stringgen-bot/internal/mtproto"
	"github.com/aleksis/telegram-stringgen-bot/internal/storage"
)

func main() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	// Load .env from the working directory if present
	_ = godotenv.Load()

	botToken := os.Getenv("BOT_TOKEN")
	if botToken == "" {
		log.Fatal().Msg("BOT_TOKEN is not set")
	}

	// Key for encrypting stored string sessions (required)
	storeKey := os.Getenv("SESSION_STORE_KEY")
	if storeKey == "" {
		log.Fatal().Msg("SESSION_STORE_KEY is not set")
	}

	// MTProto gateway address (optional, defaults to local gateway)
	gatewayURL := os.Getenv("MTPROTO_GATEWAY_URL")
	if gatewayURL == "" {
		gatewayURL = mtproto.DefaultGatewayURL
	}

	// Database path (optional, defaults to sessions.db)
	dbPath := os.Getenv("STRINGGEN_DB_PATH")
	if dbPath == "" {
		dbPath = "sessions.db"
	}

	// Owner Telegram ID (optional, gates diagnostics commands)
	var ownerID int64
	if ownerIDStr := os.Getenv("OWNER_TELEGRAM_ID"); ownerIDStr != "" {
		var err error
		ownerID, err = strconv.ParseInt(ownerIDStr, 10, 64)
		if err != nil {
			log.Fatal().Err(err).Msg("OWNER_TELEGRAM_ID must be a valid integer")
		}
	}

	tg, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telegram bot")
	}
	tg.Debug = false
	log.Info().Str("username", tg.Self.UserName).Msg("authorized on account")

	// Register bot commands for Telegram's command menu
	bot.RegisterCommands(tg)

	// Derive encryption key from passphrase
	encryptionKey, err := storage.DeriveKey(storeKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to derive encryption key")
	}

	// Initialize session store
	sessionStore, err := storage.NewSQLiteStore(dbPath, encryptionKey)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize session store")
	}
	defer sessionStore.Close()
	log.Info().Str("dbPath", dbPath).Msg("session store initialized")

	// Create context that cancels on SIGINT or SIGTERM
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	b := bot.NewBot(tg, sessionStore, gatewayURL, ownerID)

	g, ctx := errgroup.WithContext(ctx)

	// Run bot update loop
	g.Go(func() error {
		return runBot(ctx, tg, b)
	})

	// Run idle flow reaper so abandoned flows release gateway connections
	g.Go(func() error {
		b.RunFlowReaper(ctx)
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("shutdown with error")
	} else {
		log.Info().Msg("shutdown complete")
	}
}

func runBot(ctx context.Context, tg *tgbotapi.BotAPI, b *bot.Bot) error {
	updateConfig := tgbotapi.NewUpdate(0)
	updateConfig.Timeout = 60
	updates := tg.GetUpdatesChan(updateConfig)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("stopping bot update loop")
			tg.StopReceivingUpdates()
			b.Shutdown()
			return ctx.Err()
		case update, ok := <-updates:
			if !ok {
				log.Warn().Msg("updates channel closed")
				b.Shutdown()
				return nil
			}
			b.HandleUpdate(ctx, update)
		}
	}
}
