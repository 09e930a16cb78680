package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/m3rciful/vocalbot/core/logger"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// RunMigrations applies every pending up migration from cfg.MigrationsDir.
// It logs one summary line with the version range that was applied.
func RunMigrations(cfg Config) error {
	if err := cfg.Normalize(); err != nil {
		return fmt.Errorf("db config: %w", err)
	}
	if cfg.Driver == DriverPostgres {
		ctx, cancel := context.WithTimeout(context.Background(), readyTimeout)
		err := waitReady(ctx, cfg)
		cancel()
		if err != nil {
			return migrateFailed("wait", err)
		}
	}

	dir, err := filepath.Abs(cfg.MigrationsDir)
	if err != nil {
		return migrateFailed("resolve", err)
	}
	files := upMigrations(dir)
	logger.MIG.Debug("migrations resolved",
		slog.String("event", "db.migrate.resolve"),
		slog.String("path", dir),
		slog.Int("files_total", len(files)),
		slog.String("files_preview", logger.Preview(names(files), 6)),
	)

	m, err := migrate.New("file://"+filepath.ToSlash(dir), cfg.MigrateURL())
	if err != nil {
		return migrateFailed("init", err)
	}
	defer func() {
		if srcErr, dbErr := m.Close(); srcErr != nil || dbErr != nil {
			logger.MIG.Warn("migrate close failed",
				slog.String("event", "db.migrate.close"),
				slog.Any("source_err", srcErr),
				slog.Any("db_err", dbErr),
			)
		}
	}()

	from, _, _ := m.Version()
	start := time.Now()
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return migrateFailed("apply", err)
	}
	to, _, _ := m.Version()
	applied := between(files, uint64(from), uint64(to))

	logger.MIG.Info("migrations applied",
		slog.String("event", "db.migrate.summary"),
		slog.Uint64("from_ver", uint64(from)),
		slog.Uint64("to_ver", uint64(to)),
		slog.Int("files", len(applied)),
		slog.String("files_preview", logger.Preview(names(applied), 6)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}

func migrateFailed(stage string, err error) error {
	logger.MIG.Error("migration failed",
		slog.String("event", "db.migrate."+stage),
		slog.String("status", "fail"),
		slog.String("err", err.Error()),
	)
	return fmt.Errorf("migrate %s: %w", stage, err)
}

type migrationFile struct {
	version uint64
	name    string
}

// upMigrations lists the "<version>_<title>.up.sql" files of dir by version.
func upMigrations(dir string) []migrationFile {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var files []migrationFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".up.sql") {
			continue
		}
		prefix, _, _ := strings.Cut(name, "_")
		v, err := strconv.ParseUint(prefix, 10, 64)
		if err != nil {
			continue
		}
		files = append(files, migrationFile{version: v, name: name})
	}
	slices.SortFunc(files, func(a, b migrationFile) int {
		switch {
		case a.version < b.version:
			return -1
		case a.version > b.version:
			return 1
		}
		return 0
	})
	return files
}

// between returns the files with from < version <= to.
func between(files []migrationFile, from, to uint64) []migrationFile {
	var out []migrationFile
	for _, f := range files {
		if f.version > from && f.version <= to {
			out = append(out, f)
		}
	}
	return out
}

func names(files []migrationFile) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.name
	}
	return out
}
