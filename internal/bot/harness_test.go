package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/civil"

	"github.com/m3rciful/vocalbot/core/telegram/state"
	"github.com/m3rciful/vocalbot/internal/availability"
	"github.com/m3rciful/vocalbot/internal/booking"
	"github.com/m3rciful/vocalbot/internal/booking/bookingtest"
	"github.com/m3rciful/vocalbot/internal/storage"

	tele "gopkg.in/telebot.v4"
)

var (
	// Monday morning; Tuesday is the first bookable day.
	monday  = time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC)
	tuesday = civil.Date{Year: 2026, Month: time.October, Day: 20}
)

const (
	clientID int64 = 100
	otherID  int64 = 200
	adminID  int64 = 1
)

type reply struct {
	text   string
	markup *tele.ReplyMarkup
	edited bool
}

// buttons returns "unique|data" for every inline button of the reply.
func (r reply) buttons() []string {
	if r.markup == nil {
		return nil
	}
	var out []string
	for _, row := range r.markup.InlineKeyboard {
		for _, b := range row {
			out = append(out, b.Unique+"|"+b.Data)
		}
	}
	return out
}

func (r reply) hasButton(unique, data string) bool {
	for _, b := range r.buttons() {
		if b == unique+"|"+data {
			return true
		}
	}
	return false
}

// fakeContext implements the parts of tele.Context the handlers use.
type fakeContext struct {
	tele.Context
	user   *tele.User
	cb     *tele.Callback
	msg    *tele.Message
	args   []string
	values map[string]interface{}
	sink   *transcript
}

func (f *fakeContext) Sender() *tele.User         { return f.user }
func (f *fakeContext) Chat() *tele.Chat           { return &tele.Chat{ID: f.user.ID, Type: tele.ChatPrivate} }
func (f *fakeContext) Callback() *tele.Callback   { return f.cb }
func (f *fakeContext) Message() *tele.Message     { return f.msg }
func (f *fakeContext) Args() []string             { return f.args }
func (f *fakeContext) Get(key string) interface{} { return f.values[key] }
func (f *fakeContext) Set(key string, v interface{}) {
	f.values[key] = v
}

func (f *fakeContext) Update() tele.Update {
	return tele.Update{ID: 1, Message: f.msg, Callback: f.cb}
}

func (f *fakeContext) Text() string {
	if f.msg == nil {
		return ""
	}
	return f.msg.Text
}

func (f *fakeContext) Send(what interface{}, opts ...interface{}) error {
	f.sink.add(what, false, opts)
	return nil
}

func (f *fakeContext) Edit(what interface{}, opts ...interface{}) error {
	f.sink.add(what, true, opts)
	return nil
}

func (f *fakeContext) EditOrSend(what interface{}, opts ...interface{}) error {
	f.sink.add(what, f.cb != nil, opts)
	return nil
}

func (f *fakeContext) Respond(...*tele.CallbackResponse) error { return nil }

type transcript struct {
	mu      sync.Mutex
	replies []reply
}

func (t *transcript) add(what interface{}, edited bool, opts []interface{}) {
	r := reply{text: fmt.Sprint(what), edited: edited}
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			if v != nil {
				r.markup = v.ReplyMarkup
			}
		case *tele.ReplyMarkup:
			r.markup = v
		}
	}
	t.mu.Lock()
	t.replies = append(t.replies, r)
	t.mu.Unlock()
}

type harness struct {
	t        *testing.T
	app      *App
	svc      *booking.Service
	store    *storage.MemoryStore
	notifier *bookingtest.Notifier
	clock    *bookingtest.Clock
	sessions state.Manager
	out      *transcript
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	catalog, err := availability.NewCatalog([]availability.ProviderConfig{
		{ID: "anna", Name: "Anna", Weekdays: []int{1, 2, 3, 4}, Hours: []string{"15:00", "16:00", "17:00"}},
		{ID: "boris", Name: "Boris", Weekdays: []int{5}, Hours: []string{"10:00"}},
	}, 2, time.UTC)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	h := &harness{
		t:        t,
		store:    storage.NewMemoryStore(),
		notifier: bookingtest.NewNotifier(),
		clock:    bookingtest.NewClock(monday),
		out:      &transcript{},
	}
	var seq int
	h.svc, err = booking.New(booking.Options{
		Catalog:          catalog,
		Store:            h.store,
		Notifier:         h.notifier,
		Admins:           booking.StaticAdmins{"1", "2"},
		Clock:            h.clock,
		MaxActivePerUser: 1,
		NewID: func() string {
			seq++
			return fmt.Sprintf("b%d", seq)
		},
	})
	if err != nil {
		t.Fatalf("service: %v", err)
	}
	h.sessions = state.NewMemoryManager(state.Options{TTL: 15 * time.Minute, Flows: Flows(), Now: h.clock.Now})
	h.app, err = New(Options{
		Service:  h.svc,
		Sessions: h.sessions,
		IsAdmin:  func(id int64) bool { return id == 1 || id == 2 },
	})
	if err != nil {
		t.Fatalf("app: %v", err)
	}
	for st, fn := range h.app.stepHandlers() {
		h.sessions.Handle(st, fn)
	}
	return h
}

func (h *harness) context(user int64) *fakeContext {
	return &fakeContext{
		user:   &tele.User{ID: user, FirstName: "Test"},
		values: map[string]interface{}{},
		sink:   h.out,
	}
}

func (h *harness) last() reply {
	h.t.Helper()
	h.out.mu.Lock()
	defer h.out.mu.Unlock()
	if len(h.out.replies) == 0 {
		h.t.Fatal("no replies")
	}
	return h.out.replies[len(h.out.replies)-1]
}

func (h *harness) run(fn tele.HandlerFunc, c *fakeContext) reply {
	h.t.Helper()
	if err := fn(c); err != nil {
		h.t.Fatalf("handler: %v", err)
	}
	return h.last()
}

// command runs a command handler for user.
func (h *harness) command(user int64, fn tele.HandlerFunc, args ...string) reply {
	h.t.Helper()
	c := h.context(user)
	c.msg = &tele.Message{Text: "/cmd " + strings.Join(args, " ")}
	c.args = args
	return h.run(fn, c)
}

// press runs a callback handler as if user tapped the button unique|data.
func (h *harness) press(user int64, fn tele.HandlerFunc, unique, data string) reply {
	h.t.Helper()
	c := h.context(user)
	c.cb = &tele.Callback{ID: "cb", Data: "\f" + unique + "|" + data, Sender: c.user}
	return h.run(fn, c)
}

// say routes free text through the session manager like the text router does.
func (h *harness) say(user int64, text string) reply {
	h.t.Helper()
	c := h.context(user)
	c.msg = &tele.Message{Text: text}
	return h.run(h.sessions.ManagerHandler, c)
}

func (h *harness) seed(id string, requester int64, status booking.Status, date civil.Date, hour string) booking.Booking {
	h.t.Helper()
	b := booking.Booking{
		ID:          id,
		ProviderID:  "anna",
		Date:        date,
		Hour:        hour,
		RequesterID: fmt.Sprint(requester),
		DisplayName: "Ivan",
		Status:      status,
		CreatedAt:   monday,
		UpdatedAt:   monday,
	}
	if err := h.store.Create(context.Background(), b); err != nil {
		h.t.Fatalf("seed: %v", err)
	}
	return b
}
