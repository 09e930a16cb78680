// Package bootstrap brings up process infrastructure in a fixed order:
// logger, database connection, schema migrations.
package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/vocalbot/core/config"
	coredatabase "github.com/m3rciful/vocalbot/core/database"
	"github.com/m3rciful/vocalbot/core/logger"
)

// Options carry the configuration and, for tests, replacement stage functions.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	Connect    func(coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

func (o *Options) defaults() error {
	if o.Config == nil {
		return errors.New("bootstrap: nil config provided")
	}
	if o.LoggerInit == nil {
		o.LoggerInit = logger.InitLogger
	}
	if o.Connect == nil {
		o.Connect = coredatabase.Connect
	}
	if o.Migrate == nil {
		o.Migrate = coredatabase.RunMigrations
	}
	return nil
}

// Result exposes infrastructure initialized by Run.
type Result struct {
	DB *sqlx.DB
}

// Run initializes the logger, opens the pool the application uses and
// migrates the schema. The pool is closed again when migrations fail.
func Run(opts Options) (*Result, error) {
	if err := opts.defaults(); err != nil {
		return nil, err
	}
	if err := stage("logger", func() error { return opts.LoggerInit(opts.Config) }); err != nil {
		return nil, err
	}
	var db *sqlx.DB
	if err := stage("database", func() (err error) {
		db, err = opts.Connect(opts.Database)
		return err
	}); err != nil {
		return nil, err
	}
	if err := stage("migrations", func() error { return opts.Migrate(opts.Database) }); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Result{DB: db}, nil
}

// Migrate initializes the logger and applies migrations without keeping a pool.
func Migrate(opts Options) error {
	if err := opts.defaults(); err != nil {
		return err
	}
	if err := stage("logger", func() error { return opts.LoggerInit(opts.Config) }); err != nil {
		return err
	}
	return stage("migrations", func() error { return opts.Migrate(opts.Database) })
}

func stage(name string, fn func() error) error {
	start := time.Now()
	if err := fn(); err != nil {
		return fmt.Errorf("bootstrap: %s: %w", name, err)
	}
	logger.Debug(logger.Background(), "app", "bootstrap.stage",
		slog.String("stage", name),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil
}
