package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/m3rciful/vocalbot/core/bootstrap"
	"github.com/m3rciful/vocalbot/core/logger"
	coretelegram "github.com/m3rciful/vocalbot/core/telegram"
	"github.com/m3rciful/vocalbot/core/telegram/router"
	tgsender "github.com/m3rciful/vocalbot/core/telegram/sender"
	"github.com/m3rciful/vocalbot/core/telegram/state"
	"github.com/m3rciful/vocalbot/core/telegram/ui"
	"github.com/m3rciful/vocalbot/internal/booking"
	"github.com/m3rciful/vocalbot/internal/bot"
	"github.com/m3rciful/vocalbot/internal/config"
	"github.com/m3rciful/vocalbot/internal/scheduler"
	"github.com/m3rciful/vocalbot/internal/storage"
)

// Telegram allows about 30 messages per second per bot.
const (
	sendPerSecond = 25
	sendBurst     = 5
	stopTimeout   = 10 * time.Second
)

type application struct {
	cfg      *config.Config
	db       *sqlx.DB
	notifier *bot.Notifier
	sessions state.Manager
	bot      *bot.App
	sched    *scheduler.Scheduler
}

func newApplication(cfg *config.Config) (*application, error) {
	res, err := bootstrap.Run(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}
	app, err := wire(cfg, res.DB)
	if err != nil {
		_ = res.DB.Close()
		return nil, err
	}
	return app, nil
}

func wire(cfg *config.Config, db *sqlx.DB) (*application, error) {
	catalog, err := cfg.Booking.Catalog()
	if err != nil {
		return nil, fmt.Errorf("booking catalog: %w", err)
	}
	store := storage.NewSQLStore(db)
	notifier := bot.NewNotifier()
	svc, err := booking.New(booking.Options{
		Catalog:          catalog,
		Store:            store,
		Notifier:         notifier,
		Admins:           cfg.Admins(),
		MaxActivePerUser: cfg.Booking.MaxActivePerUser,
	})
	if err != nil {
		return nil, err
	}
	sessions := state.NewMemoryManager(state.Options{
		TTL:   cfg.Booking.SessionTTL,
		Flows: bot.Flows(),
	})
	handlers, err := bot.New(bot.Options{
		Service:  svc,
		Sessions: sessions,
		IsAdmin:  cfg.Telegram.IsAdmin,
		Location: cfg.Booking.Location(),
	})
	if err != nil {
		return nil, err
	}
	sched, err := scheduler.New(cfg.Scheduler, cfg.Booking.LessonDuration, svc, store, sessions)
	if err != nil {
		return nil, err
	}
	return &application{
		cfg:      cfg,
		db:       db,
		notifier: notifier,
		sessions: sessions,
		bot:      handlers,
		sched:    sched,
	}, nil
}

// TelegramRunOptions builds routes and lifecycle hooks for the bot runtime.
func (a *application) TelegramRunOptions() (coretelegram.RunOptions, error) {
	reg := coretelegram.NewRegistry()
	if err := a.bot.Register(reg); err != nil {
		return coretelegram.RunOptions{}, err
	}
	var fallbacks ui.FallbackProvider = a.bot

	routes := router.CommandRoutes(reg, router.CommandRouteOptions{IsAdmin: a.cfg.Telegram.IsAdmin})
	routes = append(routes, router.CallbackRoute(reg, router.CallbackOptions{NotFound: fallbacks.UnknownCallback()}))
	routes = append(routes, router.TextRoutes(a.sessions, reg, router.TextOptions{
		UnknownText:     fallbacks.UnknownText(),
		UnknownDocument: fallbacks.UnknownDocument(),
	})...)

	core := a.cfg.CoreConfig()
	middlewares := append([]coretelegram.Middleware{
		{Name: "session", Use: state.WithSession(a.sessions)},
	}, coretelegram.DefaultMiddlewares(core, nil)...)

	return coretelegram.RunOptions{
		Config:   core,
		Registry: reg,
		DispatcherOptions: tgsender.Options{
			MaxRetries: 2,
			PerSecond:  sendPerSecond,
			Burst:      sendBurst,
		},
		Middlewares: middlewares,
		Routes:      routes,
		OnStart: func(ctx context.Context, rt coretelegram.Runtime) error {
			a.notifier.Bind(rt.Bot, rt.Dispatcher)
			return a.sched.Start(ctx)
		},
		OnStop: func(_ context.Context, _ coretelegram.Runtime) error {
			ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			defer cancel()
			a.sched.Stop(ctx)
			a.notifier.Bind(nil, nil)
			if err := a.db.Close(); err != nil {
				logger.Warn(ctx, "app", "db.close.fail", slog.String("err", err.Error()))
			}
			return nil
		},
	}, nil
}
