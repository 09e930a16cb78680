package bot

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/m3rciful/vocalbot/internal/booking"

	tele "gopkg.in/telebot.v4"
)

type fakeSender struct {
	to   []tele.Recipient
	text []string
	opts []*tele.SendOptions
	err  error
}

func (f *fakeSender) Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.to = append(f.to, to)
	f.text = append(f.text, what.(string))
	for _, o := range opts {
		if so, ok := o.(*tele.SendOptions); ok {
			f.opts = append(f.opts, so)
		}
	}
	return &tele.Message{}, nil
}

func notificationParams() map[string]string {
	return map[string]string{
		booking.ParamBookingID:    "b-7",
		booking.ParamProviderID:   "anna",
		booking.ParamProviderName: "Anna_K",
		booking.ParamDate:         "2026-10-20",
		booking.ParamHour:         "15:00",
		booking.ParamName:         "Maria",
		booking.ParamRequesterID:  "100",
		booking.ParamPrevDate:     "2026-10-21",
		booking.ParamPrevHour:     "16:00",
		booking.ParamFeedbackID:   "f-1",
		booking.ParamStars:        "2",
		booking.ParamComment:      "too *loud*",
	}
}

func TestRenderNotification(t *testing.T) {
	tests := []struct {
		kind    booking.MessageKind
		want    []string
		buttons []string
	}{
		{booking.KindBookingRequested, []string{"New booking request", "Tue 20 Oct, 15:00", "Maria", "Moved from Wed 21 Oct, 16:00"},
			[]string{cbDecide + "|approve|b-7", cbDecide + "|reject|b-7"}},
		{booking.KindBookingConfirmed, []string{"confirmed", `Anna\_K`}, nil},
		{booking.KindBookingRejected, []string{"declined"}, nil},
		{booking.KindBookingCancelled, []string{"has been cancelled"}, nil},
		{booking.KindBookingRescheduled, []string{"moved from Wed 21 Oct, 16:00"}, nil},
		{booking.KindLessonReminder, []string{"Reminder"}, nil},
		{booking.KindFeedbackRequest, []string{"Rate it"},
			[]string{cbRate + "|b-7|1", cbRate + "|b-7|5"}},
		{booking.KindFeedbackReview, []string{"★★☆☆☆", `too \*loud\*`}, []string{cbApproveFB + "|f-1"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			text, markup, err := renderNotification(tt.kind, notificationParams())
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(text, w) {
					t.Errorf("text %q does not contain %q", text, w)
				}
			}
			r := reply{markup: markup}
			for _, b := range tt.buttons {
				parts := strings.SplitN(b, "|", 2)
				if !r.hasButton(parts[0], parts[1]) {
					t.Errorf("button %q missing in %v", b, r.buttons())
				}
			}
			if tt.buttons == nil && markup != nil {
				t.Errorf("unexpected markup %v", r.buttons())
			}
		})
	}
}

func TestRenderNotificationCancelledByAdmin(t *testing.T) {
	p := notificationParams()
	p[booking.ParamCancelledBy] = string(booking.RoleAdmin)
	text, _, err := renderNotification(booking.KindBookingCancelled, p)
	if err != nil || !strings.Contains(text, "by the teacher") {
		t.Fatalf("text = %q, err = %v", text, err)
	}
}

func TestRenderNotificationUnknownKind(t *testing.T) {
	if _, _, err := renderNotification("postcard", nil); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestNotifierDelivery(t *testing.T) {
	ctx := context.Background()
	n := NewNotifier()
	if err := n.Notify(ctx, "42", booking.KindBookingConfirmed, notificationParams()); !errors.Is(err, ErrNotifierUnbound) {
		t.Fatalf("unbound: err = %v", err)
	}

	s := &fakeSender{}
	n.Bind(s, nil)
	if err := n.Notify(ctx, "not-a-chat", booking.KindBookingConfirmed, notificationParams()); err == nil {
		t.Fatal("expected error for invalid recipient")
	}
	if err := n.Notify(ctx, "42", booking.KindFeedbackRequest, notificationParams()); err != nil {
		t.Fatalf("notify: %v", err)
	}
	if len(s.to) != 1 || s.to[0].Recipient() != "42" {
		t.Fatalf("recipients = %v", s.to)
	}
	if s.opts[0].ParseMode != tele.ModeMarkdown || s.opts[0].ReplyMarkup == nil {
		t.Fatalf("options = %+v", s.opts[0])
	}

	s.err = errors.New("chat not found")
	if err := n.Notify(ctx, "42", booking.KindBookingConfirmed, notificationParams()); err == nil {
		t.Fatal("send errors must be returned")
	}
}
