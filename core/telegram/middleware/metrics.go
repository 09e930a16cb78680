package middleware

import tele "gopkg.in/telebot.v4"

const countersKey = "reply_counters"

// replyCounters counts what a handler sent back for the update summary line.
type replyCounters struct {
	messages int
	keyboard bool
}

// countingContext records every successful reply made through it.
type countingContext struct {
	tele.Context
	counters *replyCounters
}

func (c countingContext) count(err error, opts []any) error {
	if err != nil {
		return err
	}
	c.counters.messages++
	for _, o := range opts {
		switch v := o.(type) {
		case *tele.SendOptions:
			c.counters.keyboard = c.counters.keyboard || (v != nil && v.ReplyMarkup != nil)
		case *tele.ReplyMarkup:
			c.counters.keyboard = c.counters.keyboard || v != nil
		}
	}
	return nil
}

func (c countingContext) Send(what any, opts ...any) error {
	return c.count(c.Context.Send(what, opts...), opts)
}

func (c countingContext) Reply(what any, opts ...any) error {
	return c.count(c.Context.Reply(what, opts...), opts)
}

func (c countingContext) Edit(what any, opts ...any) error {
	return c.count(c.Context.Edit(what, opts...), opts)
}

func (c countingContext) EditOrSend(what any, opts ...any) error {
	return c.count(c.Context.EditOrSend(what, opts...), opts)
}

func (c countingContext) EditOrReply(what any, opts ...any) error {
	return c.count(c.Context.EditOrReply(what, opts...), opts)
}

// MessageMetricsMiddleware counts replies and keyboards sent while handling an update.
func MessageMetricsMiddleware(next tele.HandlerFunc) tele.HandlerFunc {
	return func(c tele.Context) error {
		counters := &replyCounters{}
		c.Set(countersKey, counters)
		return next(countingContext{Context: c, counters: counters})
	}
}

// GetCounters returns the number of replies and whether any carried a keyboard.
func GetCounters(c tele.Context) (int, bool) {
	counters, ok := c.Get(countersKey).(*replyCounters)
	if !ok {
		return 0, false
	}
	return counters.messages, counters.keyboard
}
