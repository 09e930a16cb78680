package bot

import (
	"fmt"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/m3rciful/vocalbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/vocalbot/core/telegram/helpers"
	"github.com/m3rciful/vocalbot/core/telegram/keyboard"
	"github.com/m3rciful/vocalbot/internal/booking"

	tele "gopkg.in/telebot.v4"
)

// maxListed bounds list replies to stay under Telegram's message size limit.
const maxListed = 40

// onAdminBookings lists active bookings from today on, or for the date given as argument.
func (a *App) onAdminBookings(c tele.Context) error {
	now := a.svc.Clock().Now()
	filter := booking.Filter{ActiveOnly: true, From: civil.DateOf(now.In(a.loc))}
	title := "*Upcoming lessons*"
	if args := c.Args(); len(args) > 0 {
		t, ok := tghelpers.ParseFlexibleDate(strings.Join(args, " "), a.loc, now)
		if !ok {
			return tghelpers.SendText(c, "Usage: /bookings [YYYY-MM-DD or DD.MM]")
		}
		day := civil.DateOf(t)
		filter.From, filter.To = day, day
		title = "*Lessons on " + dateLabel(day) + "*"
	}
	list, err := a.svc.ListAllBookings(tghelpers.BuildContext(c), adminOf(c), filter)
	if err != nil {
		return a.fail(c, err)
	}
	if len(list) == 0 {
		return tghelpers.SendText(c, "No lessons booked.")
	}
	var sb strings.Builder
	sb.WriteString(title + "\n")
	for i, b := range list {
		if i == maxListed {
			sb.WriteString(fmt.Sprintf("… and %d more\n", len(list)-maxListed))
			break
		}
		sb.WriteString(bookingLine(b, a.providerName(b.ProviderID)) + " · " + md(b.DisplayName) + "\n")
	}
	return tghelpers.SendMD(c, sb.String())
}

// onAdminPending sends one message per pending request with approve and reject buttons.
func (a *App) onAdminPending(c tele.Context) error {
	filter := booking.Filter{Statuses: []booking.Status{booking.StatusPending}}
	list, err := a.svc.ListAllBookings(tghelpers.BuildContext(c), adminOf(c), filter)
	if err != nil {
		return a.fail(c, err)
	}
	if len(list) == 0 {
		return tghelpers.SendText(c, "No pending requests.")
	}
	for i, b := range list {
		if i == maxListed {
			return tghelpers.SendText(c, fmt.Sprintf("… and %d more", len(list)-maxListed))
		}
		text := bookingLine(b, a.providerName(b.ProviderID)) + "\nName: " + md(b.DisplayName)
		if err := tghelpers.SendMD(c, text, keyboard.InlineButtonsRows(decideButtons(b.ID))); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) onDecide(c tele.Context) error {
	parts, err := callbacks.PayloadFields(c, 2)
	if err != nil {
		return a.fail(c, booking.ErrInvalidRequest)
	}
	b, err := a.svc.Decide(tghelpers.BuildContext(c), parts[1], booking.Decision(parts[0]), adminOf(c))
	if err != nil {
		return a.fail(c, err)
	}
	return tghelpers.EditOrSendMD(c, bookingLine(b, a.providerName(b.ProviderID))+"\nName: "+md(b.DisplayName))
}

// onAdminReviews lists feedback awaiting moderation.
func (a *App) onAdminReviews(c tele.Context) error {
	ctx := tghelpers.BuildContext(c)
	list, err := a.svc.ListFeedback(ctx, adminOf(c), booking.ModerationPendingReview)
	if err != nil {
		return a.fail(c, err)
	}
	if len(list) == 0 {
		return tghelpers.SendText(c, "No feedback to review.")
	}
	for i, f := range list {
		if i == maxListed {
			return tghelpers.SendText(c, fmt.Sprintf("… and %d more", len(list)-maxListed))
		}
		text := starsLabel(f.Stars)
		if b, err := a.svc.Get(ctx, f.BookingID); err == nil {
			text += " for " + bookingLine(b, a.providerName(b.ProviderID)) + "\nFrom: " + md(b.DisplayName)
		}
		if f.Comment != "" {
			text += "\n“" + md(f.Comment) + "”"
		}
		approve := keyboard.InlineButtons([]keyboard.InlineBtn{{Text: "👍 Approve", Unique: cbApproveFB, Data: f.ID}})
		if err := tghelpers.SendMD(c, text, approve); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) onApproveFeedback(c tele.Context) error {
	f, err := a.svc.ApproveFeedback(tghelpers.BuildContext(c), callbacks.CallbackPayload(c), adminOf(c))
	if err != nil {
		return a.fail(c, err)
	}
	return tghelpers.EditOrSendMD(c, "👍 Approved "+starsLabel(f.Stars))
}
