package state

import tele "gopkg.in/telebot.v4"

const sessionKey = "fsm_session"

// WithSession injects the live session, if any, into the handler context.
func WithSession(mgr Manager) tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			if user := c.Sender(); user != nil {
				if session, ok := mgr.Get(user.ID); ok {
					c.Set(sessionKey, session)
				}
			}
			return next(c)
		}
	}
}

// FromContext returns the session stored by WithSession.
func FromContext(c tele.Context) (Session, bool) {
	s, ok := c.Get(sessionKey).(Session)
	return s, ok
}
