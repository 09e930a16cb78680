package middleware

import (
	"log/slog"

	"github.com/m3rciful/vocalbot/core/logger"
	"github.com/m3rciful/vocalbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/vocalbot/core/telegram/helpers"
	"github.com/m3rciful/vocalbot/core/telegram/state"

	tele "gopkg.in/telebot.v4"
)

const receiptLogged = "receipt_logged"

// LoggerMiddleware prepares the update context (rid, ids, logger) and logs a
// sampled update.received line. The line is written once per update even when
// the middleware wraps several handler layers.
func LoggerMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		ctx := tghelpers.BuildContext(c)
		if logged, _ := c.Get(receiptLogged).(bool); logged || !logger.ShouldSampleDebug() {
			return next(c)
		}
		c.Set(receiptLogged, true)

		attrs := []slog.Attr{slog.String("status", "ok")}
		if chat := c.Chat(); chat != nil {
			attrs = append(attrs, slog.String("chat_type", string(chat.Type)))
		}
		if user := c.Sender(); user != nil {
			if user.Username != "" {
				attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
			}
			if user.LanguageCode != "" {
				attrs = append(attrs, slog.String("lang", user.LanguageCode))
			}
		}
		if cb := c.Callback(); cb != nil {
			key, payload := callbacks.ParseCallbackData(cb)
			attrs = append(attrs,
				slog.String("cb_key", logger.SanitizeLimit(key, 128)),
				slog.String("payload", logger.SanitizeLimit(payload, 256)),
			)
		} else if t := c.Text(); t != "" {
			attrs = append(attrs, slog.Int("text_len", len([]rune(t))))
		}
		if s, ok := state.FromContext(c); ok {
			attrs = append(attrs, slog.String("flow", s.Flow), slog.String("step", string(s.State)))
		}
		logger.LogEvent(ctx, nil, slog.LevelDebug, "update.received", attrs...)
		return next(c)
	}
}
