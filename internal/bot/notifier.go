package bot

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/m3rciful/vocalbot/core/telegram/keyboard"
	tgsender "github.com/m3rciful/vocalbot/core/telegram/sender"
	"github.com/m3rciful/vocalbot/internal/booking"

	tele "gopkg.in/telebot.v4"
)

// ErrNotifierUnbound is returned when a notification is sent before the bot runtime started.
var ErrNotifierUnbound = errors.New("bot: notifier is not bound to a running bot")

// Sender is the subset of *tele.Bot used to deliver notifications.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

type binding struct {
	sender     Sender
	dispatcher *tgsender.Dispatcher
}

// Notifier renders booking notifications and delivers them to Telegram chats.
// Recipient ids are Telegram chat ids in decimal form.
type Notifier struct {
	current atomic.Pointer[binding]
}

// NewNotifier returns an unbound notifier. Call Bind once the bot is running.
func NewNotifier() *Notifier {
	return &Notifier{}
}

// Bind attaches the bot and, optionally, the async dispatcher. A nil dispatcher sends synchronously.
func (n *Notifier) Bind(s Sender, d *tgsender.Dispatcher) {
	if s == nil {
		n.current.Store(nil)
		return
	}
	n.current.Store(&binding{sender: s, dispatcher: d})
}

// Notify implements booking.Notifier.
func (n *Notifier) Notify(ctx context.Context, recipientID string, kind booking.MessageKind, params map[string]string) error {
	b := n.current.Load()
	if b == nil {
		return ErrNotifierUnbound
	}
	chatID, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return fmt.Errorf("bot: invalid recipient %q: %w", recipientID, err)
	}
	text, markup, err := renderNotification(kind, params)
	if err != nil {
		return err
	}
	opts := &tele.SendOptions{ParseMode: tele.ModeMarkdown, ReplyMarkup: markup}
	send := func() error {
		_, err := b.sender.Send(tele.ChatID(chatID), text, opts)
		return err
	}
	if b.dispatcher == nil {
		return send()
	}
	return b.dispatcher.Enqueue(ctx, "notify."+string(kind), "sendMessage", send)
}

func renderNotification(kind booking.MessageKind, p map[string]string) (string, *tele.ReplyMarkup, error) {
	slot := fmt.Sprintf("*%s, %s* with %s", paramDateLabel(p[booking.ParamDate]), p[booking.ParamHour], md(p[booking.ParamProviderName]))
	switch kind {
	case booking.KindBookingRequested:
		var sb strings.Builder
		sb.WriteString("📝 New booking request\n")
		sb.WriteString(slot)
		sb.WriteString("\nName: " + md(p[booking.ParamName]))
		if prev := p[booking.ParamPrevDate]; prev != "" {
			sb.WriteString(fmt.Sprintf("\nMoved from %s, %s", paramDateLabel(prev), p[booking.ParamPrevHour]))
		}
		return sb.String(), keyboard.InlineButtonsRows(decideButtons(p[booking.ParamBookingID])), nil
	case booking.KindBookingConfirmed:
		return "✅ Your lesson " + slot + " is confirmed. See you!", nil, nil
	case booking.KindBookingRejected:
		return "🚫 Your request for " + slot + " was declined. Use /book to pick another time.", nil, nil
	case booking.KindBookingCancelled:
		if p[booking.ParamCancelledBy] == string(booking.RoleAdmin) {
			return "❌ Your lesson " + slot + " was cancelled by the teacher. Use /book to pick another time.", nil, nil
		}
		return "❌ Your lesson " + slot + " has been cancelled.", nil, nil
	case booking.KindBookingRescheduled:
		return fmt.Sprintf("🔁 Your lesson was moved from %s, %s to %s and awaits confirmation.",
			paramDateLabel(p[booking.ParamPrevDate]), p[booking.ParamPrevHour], slot), nil, nil
	case booking.KindLessonReminder:
		return "⏰ Reminder: your lesson " + slot + " starts soon.", nil, nil
	case booking.KindFeedbackRequest:
		return "🎤 How was your lesson " + slot + "? Rate it:", keyboard.InlineButtonsRows(rateButtons(p[booking.ParamBookingID])), nil
	case booking.KindFeedbackReview:
		stars, _ := strconv.Atoi(p[booking.ParamStars])
		text := fmt.Sprintf("⭐ New feedback %s for %s\nFrom: %s", starsLabel(stars), slot, md(p[booking.ParamName]))
		if c := p[booking.ParamComment]; c != "" {
			text += "\n“" + md(c) + "”"
		}
		markup := keyboard.InlineButtons([]keyboard.InlineBtn{
			{Text: "👍 Approve", Unique: cbApproveFB, Data: p[booking.ParamFeedbackID]},
		})
		return text, markup, nil
	}
	return "", nil, fmt.Errorf("bot: unknown message kind %q", kind)
}
