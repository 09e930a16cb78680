package bot

import (
	"errors"
	"strconv"

	"github.com/m3rciful/vocalbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/vocalbot/core/telegram/helpers"
	"github.com/m3rciful/vocalbot/core/telegram/keyboard"
	"github.com/m3rciful/vocalbot/core/telegram/state"
	"github.com/m3rciful/vocalbot/internal/booking"

	tele "gopkg.in/telebot.v4"
)

// onRate handles a star button and asks for an optional comment.
func (a *App) onRate(c tele.Context) error {
	parts, err := callbacks.PayloadFields(c, 2)
	if err != nil {
		return a.fail(c, booking.ErrInvalidFeedback)
	}
	bookingID := parts[0]
	stars, err := strconv.Atoi(parts[1])
	if err != nil || stars < 1 || stars > booking.MaxStars {
		return a.fail(c, booking.ErrInvalidFeedback)
	}

	ctx := tghelpers.BuildContext(c)
	b, err := a.svc.Get(ctx, bookingID)
	if err != nil {
		return a.fail(c, err)
	}
	if b.RequesterID != userID(c) {
		return a.fail(c, booking.ErrForbidden)
	}
	if _, err := a.svc.FeedbackFor(ctx, bookingID); err == nil {
		return a.fail(c, booking.ErrFeedbackExists)
	} else if !errors.Is(err, booking.ErrNotFound) {
		return a.fail(c, err)
	}
	if b.Status != booking.StatusFeedbackPending {
		return a.fail(c, booking.ErrInvalidFeedback)
	}

	if _, err := a.sessions.Begin(c.Sender().ID, flowFeedback); err != nil {
		return a.fail(c, err)
	}
	data := map[string]string{keyBooking: bookingID, keyStars: strconv.Itoa(stars)}
	if _, err := a.sessions.Update(c.Sender().ID, data); err != nil {
		return a.fail(c, err)
	}
	text := "You rated the lesson " + starsLabel(stars) + ".\nSend a short comment, or skip it."
	skip := keyboard.InlineButtons([]keyboard.InlineBtn{{Text: "Skip", Unique: cbSkipComment, Data: "x"}})
	return tghelpers.EditOrSendMD(c, text, skip)
}

func (a *App) onComment(c tele.Context) error {
	s, err := a.session(c, stepComment)
	if err != nil {
		return a.fail(c, err)
	}
	return a.submitFeedback(c, s, c.Text())
}

func (a *App) onSkipComment(c tele.Context) error {
	s, err := a.session(c, stepComment)
	if err != nil {
		return a.fail(c, err)
	}
	return a.submitFeedback(c, s, "")
}

func (a *App) submitFeedback(c tele.Context, s state.Session, comment string) error {
	a.sessions.Clear(c.Sender().ID)
	stars, err := strconv.Atoi(s.Value(keyStars))
	if err != nil {
		return a.fail(c, booking.ErrInvalidFeedback)
	}
	if _, err := a.svc.SubmitFeedback(tghelpers.BuildContext(c), s.Value(keyBooking), clientOf(c), stars, comment); err != nil {
		return a.fail(c, err)
	}
	return tghelpers.EditOrSendMD(c, "🙏 Thank you for your feedback!")
}
