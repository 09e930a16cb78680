package bot

import (
	"fmt"
	"strings"

	"github.com/m3rciful/vocalbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/vocalbot/core/telegram/helpers"
	"github.com/m3rciful/vocalbot/core/telegram/keyboard"
	"github.com/m3rciful/vocalbot/internal/booking"

	tele "gopkg.in/telebot.v4"
)

// activeBookings returns the caller's bookings that are not cancelled or rejected.
func (a *App) activeBookings(c tele.Context) ([]booking.Booking, error) {
	all, err := a.svc.ListBookingsFor(tghelpers.BuildContext(c), userID(c))
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, b := range all {
		if b.Status.Active() {
			out = append(out, b)
		}
	}
	return out, nil
}

func (a *App) onMy(c tele.Context) error {
	list, err := a.activeBookings(c)
	if err != nil {
		return a.fail(c, err)
	}
	if len(list) == 0 {
		return tghelpers.SendMD(c, "You have no lessons booked. Use /book to pick a time.")
	}
	var (
		sb   strings.Builder
		rows [][]keyboard.InlineBtn
	)
	sb.WriteString("*Your lessons*\n")
	for _, b := range list {
		sb.WriteString(bookingLine(b, a.providerName(b.ProviderID)) + "\n")
		short := fmt.Sprintf("%s %s", dateLabel(b.Date), b.Hour)
		var row []keyboard.InlineBtn
		if a.svc.Started(b) {
			continue
		}
		if b.Status == booking.StatusPending || b.Status == booking.StatusConfirmed {
			row = append(row, keyboard.InlineBtn{Text: "🔁 Move " + short, Unique: cbReschedule, Data: b.ID})
		}
		if booking.Cancellable(b.Status) {
			row = append(row, keyboard.InlineBtn{Text: "❌ Cancel " + short, Unique: cbCancel, Data: b.ID})
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return tghelpers.SendMD(c, sb.String())
	}
	return tghelpers.SendMD(c, sb.String(), keyboard.InlineButtonsRows(rows...))
}

func (a *App) onCancel(c tele.Context) error {
	list, err := a.activeBookings(c)
	if err != nil {
		return a.fail(c, err)
	}
	var btns []keyboard.InlineBtn
	for _, b := range list {
		if !booking.Cancellable(b.Status) || a.svc.Started(b) {
			continue
		}
		btns = append(btns, keyboard.InlineBtn{
			Text:   fmt.Sprintf("❌ %s %s · %s", dateLabel(b.Date), b.Hour, a.providerName(b.ProviderID)),
			Unique: cbCancel,
			Data:   b.ID,
		})
	}
	if len(btns) == 0 {
		return tghelpers.SendText(c, "You have no lessons to cancel.")
	}
	return tghelpers.SendMD(c, "Which lesson do you want to cancel?", keyboard.InlineButtons(btns))
}

func (a *App) onCancelBooking(c tele.Context) error {
	b, err := a.svc.RequestCancellation(tghelpers.BuildContext(c), callbacks.CallbackPayload(c), clientOf(c))
	if err != nil {
		return a.fail(c, err)
	}
	return tghelpers.EditOrSendMD(c, bookingLine(b, a.providerName(b.ProviderID)))
}

// onReschedule starts the booking dialog for a new slot of the same provider.
func (a *App) onReschedule(c tele.Context) error {
	b, err := a.svc.Get(tghelpers.BuildContext(c), callbacks.CallbackPayload(c))
	if err != nil {
		return a.fail(c, err)
	}
	if b.RequesterID != userID(c) {
		return a.fail(c, booking.ErrForbidden)
	}
	if a.svc.Started(b) {
		return a.fail(c, booking.ErrForbidden)
	}
	if b.Status != booking.StatusPending && b.Status != booking.StatusConfirmed {
		return a.fail(c, &booking.TransitionError{From: b.Status, To: booking.StatusCancelled})
	}
	if _, err := a.sessions.Begin(c.Sender().ID, flowBook); err != nil {
		return a.fail(c, err)
	}
	return a.chooseProvider(c, b.ProviderID, b.ID)
}
