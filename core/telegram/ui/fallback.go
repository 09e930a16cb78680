// Package ui holds contracts between the Telegram runtime and the bot's screens.
package ui

import tele "gopkg.in/telebot.v4"

// FallbackProvider supplies the replies for updates no route claims: free
// text outside a dialog, uploaded files and presses on unknown buttons.
type FallbackProvider interface {
	UnknownText() tele.HandlerFunc
	UnknownDocument() tele.HandlerFunc
	UnknownCallback() tele.HandlerFunc
}
