package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/susu3304/gatebot/internal/admission"
	"github.com/susu3304/gatebot/internal/api"
	"github.com/susu3304/gatebot/internal/bot"
	"github.com/susu3304/gatebot/internal/captcha"
	"github.com/susu3304/gatebot/internal/config"
	"github.com/susu3304/gatebot/internal/confusable"
	"github.com/susu3304/gatebot/internal/db"
	"github.com/susu3304/gatebot/internal/dispatch"
	"github.com/susu3304/gatebot/internal/gate"
	"github.com/susu3304/gatebot/internal/spam"
	"github.com/susu3304/gatebot/internal/timer"
	"github.com/susu3304/gatebot/internal/token"
)

func main() {
	issue := flag.String("issue-token", "", "print an operator API token for `name` and exit")
	ttl := flag.Duration("token-ttl", 24*time.Hour, "lifetime of the issued operator token")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *issue != "" {
		tok, err := api.IssueToken(cfg.JWTSecret, *issue, *ttl)
		if err != nil {
			log.Fatalf("Failed to issue token: %v", err)
		}
		fmt.Println(tok)
		return
	}

	if err := confusable.Check(); err != nil {
		log.Fatalf("Confusable catalog is invalid: %v", err)
	}

	ctx := context.Background()

	// Durable ledger, or process memory without a database
	var (
		ledger     admission.Ledger
		expulsions api.ExpulsionSource
	)
	if cfg.DatabaseURL != "" {
		database, err := db.New(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer database.Close()

		if err := database.RunMigrations(ctx); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
		ledger, expulsions = database, database
	} else {
		log.Println("DATABASE_URL not set, expulsions are kept in memory")
		mem := admission.NewMemoryLedger()
		ledger, expulsions = mem, mem
	}
	store := admission.NewStore(ledger)

	session, err := bot.NewSession(cfg.DiscordToken)
	if err != nil {
		log.Fatalf("Failed to create discord session: %v", err)
	}
	transport := bot.NewTransport(session, bot.TransportOptions{
		WelcomeChannel: cfg.WelcomeChannelID,
		RestrictedRole: cfg.RestrictedRoleID,
	})

	settings := gate.DefaultSettings()
	settings.CaptchaTimer = cfg.CaptchaTimer
	settings.GreetingTimer = cfg.GreetingTimer
	settings.TemporaryRestriction = cfg.TemporaryRestriction
	settings.BannedRestriction = cfg.BannedRestriction
	settings.Answers = cfg.CaptchaAnswers
	settings.RetryURL = cfg.RetryURL
	if id, err := bot.UserIDFromToken(cfg.DiscordToken); err == nil {
		settings.BotID = id
		if settings.RetryURL == "" {
			settings.RetryURL = fmt.Sprintf("https://discord.com/users/%d", id)
		}
	} else {
		log.Printf("Could not read bot id from token: %v", err)
	}

	pool := dispatch.NewPool(cfg.DispatchWorkers, 64*cfg.DispatchWorkers)

	var machine *gate.Machine
	timers := timer.New(func(t gate.Timer) {
		if err := machine.Fire(context.Background(), t); err != nil {
			log.Printf("timer %s for chat=%d user=%d: %v", t.Kind, t.Chat, t.User, err)
		}
	})
	machine = gate.New(settings, gate.Deps{
		Store:      store,
		Transport:  transport,
		Scheduler:  timers,
		Dispatcher: pool,
		Screen:     spam.Screen{},
		Generator:  captcha.New(),
		Tokens:     token.NewIssuer(),
	})

	// Initialize Discord bot
	discordBot := bot.New(session, machine, transport)

	// Initialize API server
	apiServer := api.New(cfg.WebBind, cfg.JWTSecret, store, expulsions)

	// Start Discord bot
	if err := discordBot.Start(); err != nil {
		log.Fatalf("Failed to start discord bot: %v", err)
	}

	// Start API server
	go func() {
		if err := apiServer.Start(); err != nil {
			log.Printf("API server error: %v", err)
		}
	}()

	// Wait for signal to stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down...")
	if err := discordBot.Stop(); err != nil {
		log.Printf("Failed to close discord session: %v", err)
	}
	timers.Shutdown()
	if err := pool.Stop(); err != nil {
		log.Printf("Dispatch pool: %v", err)
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("API server shutdown: %v", err)
	}
}
