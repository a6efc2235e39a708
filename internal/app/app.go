// Package app wires configuration into the services shared by the HTTP
// server and the CLI.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/supsol/poreview/internal/ai"
	"github.com/supsol/poreview/internal/config"
	"github.com/supsol/poreview/internal/db"
	"github.com/supsol/poreview/internal/dispatch"
	"github.com/supsol/poreview/internal/guard"
	"github.com/supsol/poreview/internal/service"
	"github.com/supsol/poreview/internal/transport"
)

type App struct {
	Store    *db.Store
	Guard    guard.Guard
	Review   *service.ReviewService
	Notifier *service.NotificationService

	closers []func()
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// New connects to the store and builds every service from cfg. Channels
// without credentials fall back to log-only transports.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	store, err := db.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	a := &App{Store: store}
	a.closers = append(a.closers, store.Close)

	if err := store.Migrate(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	g, err := a.newGuard(ctx, cfg)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Guard = g

	engine, err := cfg.Engine()
	if err != nil {
		a.Close()
		return nil, err
	}
	composer, err := newComposer(cfg, logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	var mailer transport.Mailer = transport.LogMailer{Log: logger}
	if cfg.GraphConfigured() {
		mailer = transport.NewGraphMailer(ctx, transport.GraphConfig{
			TenantID:     cfg.GraphTenantID,
			ClientID:     cfg.GraphClientID,
			ClientSecret: cfg.GraphClientSecret,
			Sender:       cfg.GraphSender,
		})
	} else {
		logger.Info().Msg("graph credentials missing, emails are logged only")
	}
	var messenger transport.Messenger = transport.LogMessenger{Log: logger}
	if cfg.TwilioConfigured() {
		messenger = transport.NewTwilioMessenger(transport.TwilioConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
		})
	} else {
		logger.Info().Msg("twilio credentials missing, messages are logged only")
	}

	d := &dispatch.Dispatcher{
		Mailer:    mailer,
		Messenger: messenger,
		Calls:     transport.CallFlagger{Mailer: mailer},
		Recorder:  store,
		Opts: dispatch.Options{
			TestMode:          cfg.TestMode,
			TestEmail:         cfg.TestEmail,
			TestPhone:         cfg.TestPhone,
			FromPhone:         cfg.TwilioFromPhone,
			FromPhoneIL:       cfg.TwilioFromPhoneIL,
			MessageContentSID: cfg.TwilioMessageContent,
		},
		Log: logger.With().Str("component", "dispatch").Logger(),
	}
	if cfg.AuditAPIURL != "" {
		d.Audits = transport.AuditClient{BaseURL: cfg.AuditAPIURL, Client: &http.Client{Timeout: 30 * time.Second}}
	}
	if cfg.DispatchRPS > 0 {
		d.Limiter = rate.NewLimiter(rate.Limit(cfg.DispatchRPS), 1)
	}

	a.Review = &service.ReviewService{
		Store:       store,
		Runs:        store,
		Guard:       g,
		Engine:      engine,
		Composer:    composer,
		Dispatcher:  d,
		Logger:      logger.With().Str("component", "review").Logger(),
		Concurrency: cfg.Concurrency,
		TextLimit:   cfg.TextLimit,
	}
	a.Notifier = &service.NotificationService{
		Store:     store,
		Messenger: messenger,
		Guard:     g,
		Runs:      store,
		Logger:    logger.With().Str("component", "whatsapp").Logger(),
		Opts: service.NotificationOptions{
			TestPhone:      cfg.TestPhone,
			FromPhone:      cfg.TwilioFromPhone,
			FromPhoneIL:    cfg.TwilioFromPhoneIL,
			TemplateHebrew: cfg.TwilioTemplateHebrew,
			TemplateOther:  cfg.TwilioTemplateOther,
		},
	}
	return a, nil
}

func (a *App) newGuard(ctx context.Context, cfg config.Config) (guard.Guard, error) {
	switch cfg.GuardBackend {
	case config.GuardMemory:
		return guard.NewMemoryGuard(), nil
	case config.GuardRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Close() })
		return guard.NewRedisGuard(client, cfg.RedisPrefix), nil
	default:
		return db.NewProcessingGuard(a.Store), nil
	}
}

func newComposer(cfg config.Config, logger zerolog.Logger) (ai.Composer, error) {
	if cfg.AIURL == "" {
		logger.Info().Msg("using mock composer")
		return ai.MockComposer{ModelVersion: "mock-v1"}, nil
	}
	prompts, err := ai.NewPromptBuilder(cfg.PromptPath)
	if err != nil {
		return nil, err
	}
	return ai.OpenAICompatComposer{
		BaseURL:     cfg.AIURL,
		Model:       cfg.AIModel,
		APIKey:      cfg.AIAPIKey,
		MaxTokens:   cfg.AIMaxTokens,
		Temperature: cfg.AITemperature,
		Prompts:     prompts,
		Client:      &http.Client{Timeout: cfg.RequestTimeout},
	}, nil
}
