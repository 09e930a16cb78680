package bot

import (
	"fmt"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"

	"github.com/m3rciful/vocalbot/core/telegram/callbacks"
	tghelpers "github.com/m3rciful/vocalbot/core/telegram/helpers"
	"github.com/m3rciful/vocalbot/core/telegram/keyboard"
	"github.com/m3rciful/vocalbot/core/telegram/state"
	"github.com/m3rciful/vocalbot/internal/booking"

	tele "gopkg.in/telebot.v4"
)

const (
	daysPerRow  = 2
	hoursPerRow = 3
)

func (a *App) onStart(c tele.Context) error {
	text := "Hi! I take bookings for vocal lessons. Pick an action:"
	return tghelpers.SendMD(c, text, keyboard.InlineButtons(menuButtons()))
}

func (a *App) onHelp(c tele.Context) error {
	text := "*How it works*\n" +
		"1. /book and pick a teacher, a day and a free hour.\n" +
		"2. Send the name to book under. The teacher confirms the request.\n" +
		"3. You get a reminder before the lesson and can rate it afterwards.\n\n" +
		"/my shows your lessons, /cancel cancels one."
	return tghelpers.SendMD(c, text)
}

func (a *App) onMenu(c tele.Context) error {
	switch callbacks.CallbackPayload(c) {
	case menuBook:
		return a.onBook(c)
	case menuMy:
		return a.onMy(c)
	}
	return nil
}

func (a *App) onBook(c tele.Context) error {
	if _, err := a.sessions.Begin(c.Sender().ID, flowBook); err != nil {
		return a.fail(c, err)
	}
	providers := a.svc.Providers()
	if len(providers) == 1 {
		return a.chooseProvider(c, providers[0].ID, "")
	}
	rows := make([][]keyboard.InlineBtn, 0, len(providers)+1)
	for _, p := range providers {
		rows = append(rows, []keyboard.InlineBtn{{Text: p.DisplayName(), Unique: cbProvider, Data: p.ID}})
	}
	rows = append(rows, []keyboard.InlineBtn{abortButton()})
	return tghelpers.EditOrSendMD(c, "Who would you like to take a lesson with?", keyboard.InlineButtonsRows(rows...))
}

func (a *App) onProvider(c tele.Context) error {
	return a.chooseProvider(c, callbacks.CallbackPayload(c), "")
}

// chooseProvider moves the dialog to the week step. A non-empty
// rescheduleID makes the dialog end in a reschedule instead of a new booking.
func (a *App) chooseProvider(c tele.Context, providerID, rescheduleID string) error {
	if _, err := a.svc.Catalog().Provider(providerID); err != nil {
		return a.fail(c, fmt.Errorf("%w: %v", booking.ErrInvalidSlot, err))
	}
	data := map[string]string{keyProvider: providerID}
	if rescheduleID != "" {
		data[keyReschedule] = rescheduleID
	}
	if _, err := a.sessions.Advance(c.Sender().ID, stepWeek, data); err != nil {
		return a.fail(c, err)
	}
	return a.showWeeks(c, providerID)
}

// showWeeks offers every week within the booking horizon that still has a
// free hour, labelled with the number of free hours.
func (a *App) showWeeks(c tele.Context, providerID string) error {
	var rows [][]keyboard.InlineBtn
	for week := 0; week <= a.svc.Catalog().WeeksAhead(); week++ {
		days, err := a.svc.ListAvailability(tghelpers.BuildContext(c), providerID, week)
		if err != nil {
			return a.fail(c, err)
		}
		free := 0
		for _, d := range days {
			free += len(d.Hours)
		}
		if free == 0 {
			continue
		}
		rows = append(rows, []keyboard.InlineBtn{{
			Text:   fmt.Sprintf("%s · %d free", weekLabel(week, days[0].Date), free),
			Unique: cbWeek,
			Data:   strconv.Itoa(week),
		}})
	}
	rows = append(rows, []keyboard.InlineBtn{abortButton()})

	name := md(a.providerName(providerID))
	text := fmt.Sprintf("Lessons with *%s*\nPick a week:", name)
	if len(rows) == 1 {
		text = fmt.Sprintf("Lessons with *%s*\nNo free hours in the coming weeks.", name)
	}
	return tghelpers.EditOrSendMD(c, text, keyboard.InlineButtonsRows(rows...))
}

func weekLabel(week int, first civil.Date) string {
	switch week {
	case 0:
		return "This week"
	case 1:
		return "Next week"
	}
	return "From " + dateLabel(first)
}

// freeDays returns the days of week that still have a free hour.
func (a *App) freeDays(c tele.Context, providerID string, week int) ([]booking.DayAvailability, error) {
	days, err := a.svc.ListAvailability(tghelpers.BuildContext(c), providerID, week)
	if err != nil {
		return nil, err
	}
	free := days[:0]
	for _, d := range days {
		if len(d.Hours) > 0 {
			free = append(free, d)
		}
	}
	return free, nil
}

// session returns the live session if it sits at want.
func (a *App) session(c tele.Context, want state.State) (state.Session, error) {
	s, ok := a.sessions.Get(c.Sender().ID)
	if !ok {
		return state.Session{}, state.ErrNoSession
	}
	if s.State != want {
		return state.Session{}, state.ErrStepOutOfOrder
	}
	return s, nil
}

func (a *App) onWeek(c tele.Context) error {
	s, err := a.session(c, stepWeek)
	if err != nil {
		return a.fail(c, err)
	}
	week, err := callbacks.PayloadInt(c)
	if err != nil || week < 0 || week > a.svc.Catalog().WeeksAhead() {
		return a.fail(c, booking.ErrInvalidRequest)
	}
	providerID := s.Value(keyProvider)
	days, err := a.freeDays(c, providerID, week)
	if err != nil {
		return a.fail(c, err)
	}
	if len(days) == 0 {
		// Booked out since the week list was drawn.
		return a.showWeeks(c, providerID)
	}
	if _, err := a.sessions.Advance(c.Sender().ID, stepDate, map[string]string{keyWeek: strconv.Itoa(week)}); err != nil {
		return a.fail(c, err)
	}

	btns := make([]keyboard.InlineBtn, 0, len(days))
	for _, d := range days {
		btns = append(btns, keyboard.InlineBtn{
			Text:   fmt.Sprintf("%s (%d)", dateLabel(d.Date), len(d.Hours)),
			Unique: cbDate,
			Data:   d.Date.String(),
		})
	}
	rows := keyboard.Chunk(btns, daysPerRow)
	rows = append(rows, []keyboard.InlineBtn{abortButton()})
	text := fmt.Sprintf("Lessons with *%s*\nPick a day:", md(a.providerName(providerID)))
	return tghelpers.EditOrSendMD(c, text, keyboard.InlineButtonsRows(rows...))
}

func (a *App) onDate(c tele.Context) error {
	s, err := a.session(c, stepDate)
	if err != nil {
		return a.fail(c, err)
	}
	date, err := civil.ParseDate(callbacks.CallbackPayload(c))
	if err != nil {
		return a.fail(c, booking.ErrInvalidRequest)
	}
	providerID := s.Value(keyProvider)
	week, _ := strconv.Atoi(s.Value(keyWeek))
	days, err := a.freeDays(c, providerID, week)
	if err != nil {
		return a.fail(c, err)
	}
	var hours []string
	for _, d := range days {
		if d.Date == date {
			hours = d.Hours
		}
	}
	if len(hours) == 0 {
		return a.fail(c, booking.ErrSlotTaken)
	}
	if _, err := a.sessions.Advance(c.Sender().ID, stepHour, map[string]string{keyDate: date.String()}); err != nil {
		return a.fail(c, err)
	}

	btns := make([]keyboard.InlineBtn, 0, len(hours))
	for _, h := range hours {
		btns = append(btns, keyboard.InlineBtn{Text: h, Unique: cbHour, Data: h})
	}
	rows := keyboard.Chunk(btns, hoursPerRow)
	rows = append(rows, []keyboard.InlineBtn{abortButton()})
	text := fmt.Sprintf("*%s* with %s\nPick a time:", dateLabel(date), md(a.providerName(providerID)))
	return tghelpers.EditOrSendMD(c, text, keyboard.InlineButtonsRows(rows...))
}

func (a *App) onHour(c tele.Context) error {
	s, err := a.session(c, stepHour)
	if err != nil {
		return a.fail(c, err)
	}
	hour := callbacks.CallbackPayload(c)
	date, err := civil.ParseDate(s.Value(keyDate))
	if err != nil {
		return a.fail(c, err)
	}

	if id := s.Value(keyReschedule); id != "" {
		if _, err := a.sessions.Advance(c.Sender().ID, stepDone, map[string]string{keyHour: hour}); err != nil {
			return a.fail(c, err)
		}
		a.sessions.Clear(c.Sender().ID)
		b, err := a.svc.Reschedule(tghelpers.BuildContext(c), id, date, hour, clientOf(c))
		if err != nil {
			return a.fail(c, err)
		}
		return tghelpers.EditOrSendMD(c, "🔁 Moved to "+bookingLine(b, a.providerName(b.ProviderID)))
	}

	if _, err := a.sessions.Advance(c.Sender().ID, stepName, map[string]string{keyHour: hour}); err != nil {
		return a.fail(c, err)
	}
	text := fmt.Sprintf("You picked *%s, %s* with %s.\nPlease send the name to book under.",
		dateLabel(date), hour, md(a.providerName(s.Value(keyProvider))))
	return tghelpers.EditOrSendMD(c, text, keyboard.InlineButtons([]keyboard.InlineBtn{abortButton()}))
}

func (a *App) onName(c tele.Context) error {
	s, err := a.session(c, stepName)
	if err != nil {
		return a.fail(c, err)
	}
	date, err := civil.ParseDate(s.Value(keyDate))
	if err != nil {
		a.sessions.Clear(c.Sender().ID)
		return a.fail(c, err)
	}
	name := strings.TrimSpace(c.Text())
	if name == "" {
		// Keep the dialog open so the user can send another name.
		return tghelpers.SendText(c, "Please send a non-empty name.")
	}
	if _, err := a.sessions.Advance(c.Sender().ID, stepDone, nil); err != nil {
		return a.fail(c, err)
	}
	defer a.sessions.Clear(c.Sender().ID)

	b, err := a.svc.CreateBooking(tghelpers.BuildContext(c), booking.ReserveRequest{
		ProviderID:  s.Value(keyProvider),
		Date:        date,
		Hour:        s.Value(keyHour),
		RequesterID: userID(c),
		DisplayName: name,
	})
	if err != nil {
		return a.fail(c, err)
	}
	text := fmt.Sprintf("📨 Request sent: *%s, %s* with %s as %s.\nYou will get a message once it is confirmed.",
		dateLabel(b.Date), b.Hour, md(a.providerName(b.ProviderID)), md(b.DisplayName))
	return tghelpers.SendMD(c, text)
}

func (a *App) onUseButtons(c tele.Context) error {
	return tghelpers.SendText(c, "Please use the buttons above, or /book to start over.")
}

func (a *App) onAbort(c tele.Context) error {
	a.sessions.Clear(c.Sender().ID)
	return tghelpers.EditOrSendMD(c, "Okay, nothing was changed.")
}
