// Package bot is the Telegram front end of the booking engine: the booking
// dialog, the client and admin commands, and the notification renderer.
package bot

import (
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/m3rciful/vocalbot/core/logger"
	tg "github.com/m3rciful/vocalbot/core/telegram"
	"github.com/m3rciful/vocalbot/core/telegram/commands"
	tghelpers "github.com/m3rciful/vocalbot/core/telegram/helpers"
	"github.com/m3rciful/vocalbot/core/telegram/keyboard"
	"github.com/m3rciful/vocalbot/core/telegram/state"
	"github.com/m3rciful/vocalbot/internal/booking"

	tele "gopkg.in/telebot.v4"
)

const component = "bot"

// Dialog flows and their steps.
const (
	flowBook     = "book"
	flowFeedback = "feedback"

	stepProvider state.State = "choosing_provider"
	stepWeek     state.State = "choosing_week"
	stepDate     state.State = "choosing_date"
	stepHour     state.State = "choosing_hour"
	stepName     state.State = "entering_name"
	// stepDone is taken just before the booking is submitted, so a repeated
	// name message or hour press cannot submit twice.
	stepDone    state.State = "done"
	stepComment state.State = "feedback.comment"
)

// Session data keys.
const (
	keyProvider   = "provider"
	keyWeek       = "week"
	keyDate       = "date"
	keyHour       = "hour"
	keyReschedule = "reschedule"
	keyBooking    = "booking"
	keyStars      = "stars"
)

// Flows returns the dialog flows the session manager must know about.
func Flows() []state.Flow {
	return []state.Flow{
		state.NewFlow(flowBook, stepProvider, stepWeek, stepDate, stepHour, stepName, stepDone),
		state.NewFlow(flowFeedback, stepComment),
	}
}

// Options wires the bot to the booking engine.
type Options struct {
	Service  *booking.Service
	Sessions state.Manager
	// IsAdmin reports whether a Telegram user id is an admin.
	IsAdmin func(userID int64) bool
	// Location resolves "today" and dates typed by admins. Defaults to UTC.
	Location *time.Location
}

// App holds the Telegram handlers.
type App struct {
	svc      *booking.Service
	sessions state.Manager
	isAdmin  func(int64) bool
	loc      *time.Location
}

// New validates options and builds the handlers.
func New(opts Options) (*App, error) {
	if opts.Service == nil {
		return nil, errors.New("bot: booking service is required")
	}
	if opts.Sessions == nil {
		return nil, errors.New("bot: session manager is required")
	}
	isAdmin := opts.IsAdmin
	if isAdmin == nil {
		isAdmin = func(int64) bool { return false }
	}
	loc := opts.Location
	if loc == nil {
		loc = time.UTC
	}
	return &App{svc: opts.Service, sessions: opts.Sessions, isAdmin: isAdmin, loc: loc}, nil
}

// Register adds commands, callbacks and dialog step handlers.
func (a *App) Register(reg *tg.Registry) error {
	cmds := []tg.CommandEntry{
		{Name: "/start", Command: commands.Command{Handler: a.onStart, Description: "Main menu"}},
		{Name: "/book", Command: commands.Command{Handler: a.onBook, Description: "Book a lesson"}},
		{Name: "/my", Command: commands.Command{Handler: a.onMy, Description: "My lessons"}},
		{Name: "/cancel", Command: commands.Command{Handler: a.onCancel, Description: "Cancel a lesson"}},
		{Name: "/help", Command: commands.Command{Handler: a.onHelp, Description: "How it works", Aliases: []string{"help"}}},
		{Name: "/bookings", Command: commands.Command{Handler: a.onAdminBookings, Description: "Upcoming lessons [date]", AdminOnly: true}},
		{Name: "/pending", Command: commands.Command{Handler: a.onAdminPending, Description: "Requests to confirm", AdminOnly: true}},
		{Name: "/reviews", Command: commands.Command{Handler: a.onAdminReviews, Description: "Feedback to moderate", AdminOnly: true}},
	}
	for _, e := range cmds {
		if err := reg.RegisterCommand(e.Name, e.Command); err != nil {
			return err
		}
	}

	callbacks := map[string]tele.HandlerFunc{
		cbMenu:        a.onMenu,
		cbProvider:    a.onProvider,
		cbWeek:        a.onWeek,
		cbDate:        a.onDate,
		cbHour:        a.onHour,
		cbAbort:       a.onAbort,
		cbCancel:      a.onCancelBooking,
		cbReschedule:  a.onReschedule,
		cbDecide:      a.adminOnly(a.onDecide),
		cbApproveFB:   a.adminOnly(a.onApproveFeedback),
		cbRate:        a.onRate,
		cbSkipComment: a.onSkipComment,
	}
	for key, h := range callbacks {
		if err := reg.RegisterCallback(key, h); err != nil {
			return err
		}
	}

	for st, h := range a.stepHandlers() {
		a.sessions.Handle(st, h)
	}
	return nil
}

// stepHandlers maps dialog steps to the handler for text sent at that step.
func (a *App) stepHandlers() map[state.State]tele.HandlerFunc {
	return map[state.State]tele.HandlerFunc{
		stepProvider: a.onUseButtons,
		stepWeek:     a.onUseButtons,
		stepDate:     a.onUseButtons,
		stepHour:     a.onUseButtons,
		stepName:     a.onName,
		stepComment:  a.onComment,
	}
}

// UnknownText answers text that matches no command or dialog step.
func (a *App) UnknownText() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendMD(c, "I did not get that. Pick an action:", keyboard.InlineButtons(menuButtons()))
	}
}

// UnknownDocument answers unexpected files.
func (a *App) UnknownDocument() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, "I can't process files. Use /book to book a lesson.")
	}
}

// UnknownCallback answers stale or foreign buttons.
func (a *App) UnknownCallback() tele.HandlerFunc {
	return func(c tele.Context) error {
		return tghelpers.SendText(c, "This button is no longer active. Use /start to begin again.")
	}
}

// adminOnly guards callbacks; admin commands are guarded by the command router.
func (a *App) adminOnly(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		if c.Sender() == nil || !a.isAdmin(c.Sender().ID) {
			return tghelpers.SendText(c, "Admins only.")
		}
		return next(c)
	}
}

func userID(c tele.Context) string {
	if c.Sender() == nil {
		return ""
	}
	return strconv.FormatInt(c.Sender().ID, 10)
}

func clientOf(c tele.Context) booking.Actor {
	return booking.Client(userID(c))
}

func adminOf(c tele.Context) booking.Actor {
	return booking.Admin(userID(c))
}

func (a *App) providerName(id string) string {
	p, err := a.svc.Catalog().Provider(id)
	if err != nil {
		return id
	}
	return p.DisplayName()
}

// fail reports err to the user. User-facing booking errors are handled here
// and swallowed; anything else is returned so the router logs it.
func (a *App) fail(c tele.Context, err error) error {
	ctx := tghelpers.BuildContext(c)
	if booking.IsUserFacing(err) || errors.Is(err, state.ErrNoSession) || errors.Is(err, state.ErrStepOutOfOrder) {
		logger.Debug(ctx, component, "request.rejected", slog.String("err", err.Error()))
		return tghelpers.SendText(c, userMessage(err))
	}
	logger.Error(ctx, component, "request.failed", slog.String("err", err.Error()))
	_ = tghelpers.SendText(c, userMessage(err))
	return err
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, booking.ErrSlotTaken):
		return "Sorry, this slot was just taken. Please pick another one with /book."
	case errors.Is(err, booking.ErrInvalidSlot):
		return "This slot is not available any more. Please pick another one with /book."
	case errors.Is(err, booking.ErrBookingLimit):
		return "You already have an upcoming lesson. Cancel it with /cancel or wait until it has passed."
	case errors.Is(err, booking.ErrInvalidRequest):
		return "That did not look right. Please try again."
	case errors.Is(err, booking.ErrNotFound):
		return "This lesson was not found."
	case errors.Is(err, booking.ErrForbidden):
		return "You are not allowed to do that."
	case errors.Is(err, booking.ErrInvalidTransition):
		return "This lesson can no longer be changed."
	case errors.Is(err, booking.ErrFeedbackExists):
		return "You have already rated this lesson. Thank you!"
	case errors.Is(err, booking.ErrInvalidFeedback):
		return "This lesson is not waiting for a rating."
	case errors.Is(err, state.ErrNoSession), errors.Is(err, state.ErrStepOutOfOrder):
		return "This menu has expired. Start again with /book."
	}
	return "Something went wrong. Please try again later."
}
