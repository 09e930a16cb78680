package logger

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"unicode"
)

// contextKey is a private type to avoid collisions in context.
type contextKey string

const (
	ctxRID      contextKey = "rid"
	ctxUpdateID contextKey = "update_id"
	ctxUserID   contextKey = "user_id"
	ctxChatID   contextKey = "chat_id"
	ctxLogger   contextKey = "logger"
	ctxHandler  contextKey = "handler"
	ctxJob      contextKey = "job"
	ctxRunID    contextKey = "run_id"
)

func with(ctx context.Context, key contextKey, v any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, v)
}

func value[T any](ctx context.Context, key contextKey) T {
	var zero T
	if ctx == nil {
		return zero
	}
	v, _ := ctx.Value(key).(T)
	return v
}

// WithLogger makes l the logger returned by FromContext.
func WithLogger(ctx context.Context, l *slog.Logger) context.Context {
	if l == nil {
		return with(ctx, ctxLogger, L)
	}
	return with(ctx, ctxLogger, l)
}

// FromContext returns the logger stored by WithLogger, or L.
func FromContext(ctx context.Context) *slog.Logger {
	if l := value[*slog.Logger](ctx, ctxLogger); l != nil {
		return l
	}
	return L
}

// WithRID attaches the correlation id of one Telegram update.
func WithRID(ctx context.Context, rid string) context.Context {
	return with(ctx, ctxRID, rid)
}

// RIDFrom returns the correlation id, or "".
func RIDFrom(ctx context.Context) string {
	return value[string](ctx, ctxRID)
}

// WithUpdateMeta attaches the update, user and chat ids of one Telegram update.
func WithUpdateMeta(ctx context.Context, updateID int, userID, chatID int64) context.Context {
	ctx = with(ctx, ctxUpdateID, updateID)
	ctx = with(ctx, ctxUserID, userID)
	return with(ctx, ctxChatID, chatID)
}

// UserIDFrom returns the Telegram user id, or 0.
func UserIDFrom(ctx context.Context) int64 {
	return value[int64](ctx, ctxUserID)
}

// ChatIDFrom returns the Telegram chat id, or 0.
func ChatIDFrom(ctx context.Context) int64 {
	return value[int64](ctx, ctxChatID)
}

// UpdateIDFrom returns the Telegram update id, or 0.
func UpdateIDFrom(ctx context.Context) int {
	return value[int](ctx, ctxUpdateID)
}

// WithHandler names the route handling the update.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		return with(ctx, ctxHandler, HandlerFrom(ctx))
	}
	return with(ctx, ctxHandler, handler)
}

// HandlerFrom returns the handler name, or "".
func HandlerFrom(ctx context.Context) string {
	return value[string](ctx, ctxHandler)
}

// WithRun tags background work (a scheduler tick, a sweep) so every line it
// logs carries the job name and the id of this run.
func WithRun(ctx context.Context, job, runID string) context.Context {
	if job != "" {
		ctx = with(ctx, ctxJob, job)
	}
	if runID != "" {
		ctx = with(ctx, ctxRunID, runID)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return ctx
}

// JobFrom returns the background job name stored by WithRun.
func JobFrom(ctx context.Context) string {
	return value[string](ctx, ctxJob)
}

// RunIDFrom returns the run id stored by WithRun.
func RunIDFrom(ctx context.Context) string {
	return value[string](ctx, ctxRunID)
}

// SanitizeLimit drops control and format characters (tab and newline
// survive) and keeps at most max runes. Use it for text typed by users.
func SanitizeLimit(s string, max int) string {
	if max <= 0 {
		return ""
	}
	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == max {
			break
		}
		if r != '\n' && r != '\t' && (unicode.IsControl(r) || unicode.Is(unicode.Cf, r)) {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// BuildRID returns "updateID:chatID:userID".
func BuildRID(updateID int, chatID, userID int64) string {
	return strconv.Itoa(updateID) + ":" + strconv.FormatInt(chatID, 10) + ":" + strconv.FormatInt(userID, 10)
}

// CompactRID rewrites each numeric segment of a BuildRID value in base 36
// and joins them with dots. Other values are returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, part := range parts {
		n, err := strconv.ParseInt(strings.TrimSpace(part), 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
