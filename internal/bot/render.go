package bot

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"

	"github.com/m3rciful/vocalbot/core/telegram/format"
	"github.com/m3rciful/vocalbot/core/telegram/keyboard"
	"github.com/m3rciful/vocalbot/internal/booking"
)

// Callback keys. Telegram limits callback data to 64 bytes, so keys stay short.
const (
	cbMenu        = "menu"
	cbProvider    = "bk_prov"
	cbWeek        = "bk_week"
	cbDate        = "bk_date"
	cbHour        = "bk_hour"
	cbAbort       = "bk_abort"
	cbCancel      = "my_cancel"
	cbReschedule  = "my_move"
	cbDecide      = "adm_decide"
	cbApproveFB   = "adm_fb_ok"
	cbRate        = "fb_rate"
	cbSkipComment = "fb_skip"
)

// Menu actions carried by cbMenu.
const (
	menuBook = "book"
	menuMy   = "my"
)

const dateLabelLayout = "Mon 02 Jan"

// md escapes user supplied text for legacy Markdown.
func md(s string) string {
	out, err := format.EscapeMarkdown(s, format.MarkdownV1, "")
	if err != nil {
		return s
	}
	return out
}

func dateLabel(d civil.Date) string {
	return d.In(time.UTC).Format(dateLabelLayout)
}

// paramDateLabel renders an ISO date carried in notification params.
func paramDateLabel(s string) string {
	d, err := civil.ParseDate(s)
	if err != nil {
		return s
	}
	return dateLabel(d)
}

func statusLabel(s booking.Status) string {
	switch s {
	case booking.StatusPending:
		return "⏳ awaiting confirmation"
	case booking.StatusConfirmed:
		return "✅ confirmed"
	case booking.StatusReminded:
		return "⏰ starting soon"
	case booking.StatusFeedbackPending:
		return "⭐ waiting for your rating"
	case booking.StatusCancelled:
		return "❌ cancelled"
	case booking.StatusRejected:
		return "🚫 declined"
	}
	return string(s)
}

func starsLabel(n int) string {
	if n < 0 {
		n = 0
	}
	if n > booking.MaxStars {
		n = booking.MaxStars
	}
	return strings.Repeat("★", n) + strings.Repeat("☆", booking.MaxStars-n)
}

// bookingLine renders one booking as a single Markdown line.
func bookingLine(b booking.Booking, provider string) string {
	return fmt.Sprintf("*%s, %s* with %s · %s", dateLabel(b.Date), b.Hour, md(provider), statusLabel(b.Status))
}

func menuButtons() []keyboard.InlineBtn {
	return []keyboard.InlineBtn{
		{Text: "📅 Book a lesson", Unique: cbMenu, Data: menuBook},
		{Text: "👀 My lessons", Unique: cbMenu, Data: menuMy},
	}
}

func abortButton() keyboard.InlineBtn {
	return keyboard.CancelButton(cbAbort, "x", "✖ Stop")
}

func decideButtons(bookingID string) []keyboard.InlineBtn {
	return []keyboard.InlineBtn{
		{Text: "✅ Approve", Unique: cbDecide, Data: string(booking.DecisionApprove) + "|" + bookingID},
		{Text: "❌ Reject", Unique: cbDecide, Data: string(booking.DecisionReject) + "|" + bookingID},
	}
}

func rateButtons(bookingID string) []keyboard.InlineBtn {
	out := make([]keyboard.InlineBtn, 0, booking.MaxStars)
	for n := 1; n <= booking.MaxStars; n++ {
		out = append(out, keyboard.InlineBtn{
			Text:   strconv.Itoa(n) + "★",
			Unique: cbRate,
			Data:   bookingID + "|" + strconv.Itoa(n),
		})
	}
	return out
}
