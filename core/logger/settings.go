package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	coreconfig "github.com/m3rciful/vocalbot/core/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

var defaultDebugSample = [2]int{1, 50}

// settings is the logging section of the config after defaults are applied.
type settings struct {
	level    slog.Level
	format   logFormat
	keyOrder []string
	sample   [2]int
	profile  string
	// file is the rotating bot log; nil logs to stdout only.
	file *lumberjack.Logger
}

func resolveSettings(cfg *coreconfig.Config) settings {
	s := settings{
		level:    slog.LevelInfo,
		format:   formatJSON,
		keyOrder: append([]string(nil), defaultKeyOrder...),
		sample:   defaultDebugSample,
		profile:  "prod",
	}
	if cfg == nil {
		return s
	}
	lc := cfg.Logging

	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		s.profile = p
	}
	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		s.level = slog.LevelDebug
	case "warn", "warning":
		s.level = slog.LevelWarn
	case "error":
		s.level = slog.LevelError
	}
	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		s.format = formatKV
	case "json":
	default:
		if s.profile == "debug" || s.profile == "dev" {
			s.format = formatKV
		}
	}
	if order := splitKeys(lc.KeysOrder); len(order) > 0 {
		s.keyOrder = order
	}
	n, m := parseSampleSpec(lc.DebugSample, defaultDebugSample)
	s.sample = [2]int{n, m}

	dir, name := strings.TrimSpace(lc.Dir), strings.TrimSpace(lc.BotFile)
	if dir != "" && name != "" {
		s.file = &lumberjack.Logger{
			Filename:   filepath.Join(dir, name),
			MaxSize:    lc.MaxSizeMB,
			MaxBackups: lc.MaxBackups,
			MaxAge:     lc.MaxAgeDays,
			Compress:   lc.Compress,
		}
	}
	return s
}

func splitKeys(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "default" {
		return nil
	}
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// sinks returns stdout plus the rotating file, creating its directory.
func (s settings) sinks() ([]io.Writer, []io.Closer, error) {
	if s.file == nil {
		return []io.Writer{os.Stdout}, nil, nil
	}
	dir := filepath.Dir(s.file.Filename)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("logger: create log dir %s: %w", dir, err)
	}
	return []io.Writer{os.Stdout, s.file}, []io.Closer{s.file}, nil
}
