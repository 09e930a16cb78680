package router

import (
	"log/slog"
	"time"

	tg "github.com/m3rciful/vocalbot/core/telegram"
	"github.com/m3rciful/vocalbot/core/telegram/callbacks"
	"github.com/m3rciful/vocalbot/core/telegram/middleware"

	tele "gopkg.in/telebot.v4"
)

// Dialogs routes free text to the user's open multi-step dialog, if any.
type Dialogs interface {
	InProgress(userID int64) bool
	ManagerHandler(c tele.Context) error
}

// TextOptions controls fallback behaviour for text/document updates.
type TextOptions struct {
	UnknownText     tele.HandlerFunc
	UnknownDocument tele.HandlerFunc
}

// CallbackOptions customises fallback behaviour for callbacks.
type CallbackOptions struct {
	NotFound tele.HandlerFunc
}

func wrap(h tele.HandlerFunc) tele.HandlerFunc {
	return middleware.RecoverMiddleware(middleware.LoggerMiddleware(h))
}

// TextRoutes sends plain text to an open dialog first, then to a command
// typed without the slash, and finally to opts.UnknownText.
// Documents are never expected and go to opts.UnknownDocument.
func TextRoutes(dialogs Dialogs, reg *tg.Registry, opts TextOptions) []tg.Route {
	if reg == nil {
		reg = tg.NewRegistry()
	}
	text := func(c tele.Context) error {
		start := time.Now()
		if dialogs != nil && c.Sender() != nil && dialogs.InProgress(c.Sender().ID) {
			return handleWithSummary(c, "dialog", start, dialogs.ManagerHandler)
		}
		if cmd, ok := reg.LookupCommand(c.Text()); ok {
			return handleWithSummary(c, normalizeHandlerName(cmd.Name), start, cmd.Handler)
		}
		if opts.UnknownText != nil {
			return handleWithSummary(c, "unknown_text", start, opts.UnknownText)
		}
		logSkipped(c, "unknown_text", start)
		return nil
	}

	document := func(c tele.Context) error {
		start := time.Now()
		if opts.UnknownDocument != nil {
			return handleWithSummary(c, "unexpected_document", start, opts.UnknownDocument)
		}
		logSkipped(c, "unexpected_document", start)
		return nil
	}

	return []tg.Route{
		{Endpoint: tele.OnText, Handler: wrap(text)},
		{Endpoint: tele.OnDocument, Handler: wrap(document)},
	}
}

// CallbackRoute answers every button press once and dispatches it by unique key.
func CallbackRoute(reg *tg.Registry, opts CallbackOptions) tg.Route {
	handler := func(c tele.Context) error {
		if c.Callback() == nil {
			return nil
		}
		start := time.Now()
		key, _ := callbacks.ParseCallbackData(c.Callback())
		name := "callback." + normalizeHandlerName(key)
		extras := []slog.Attr{slog.String("cb_key", key)}

		_ = c.Respond()

		h, ok := reg.Callback(key)
		if !ok {
			extras = append(extras, slog.String("reason", "not_found"))
			h = opts.NotFound
			if h == nil {
				logSkipped(c, name, start, extras...)
				return nil
			}
		}
		return handleWithSummary(c, name, start, h, extras...)
	}
	return tg.Route{Endpoint: tele.OnCallback, Handler: wrap(handler)}
}
