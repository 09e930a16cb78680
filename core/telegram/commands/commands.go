// Package commands declares slash commands for the registry.
package commands

import (
	tele "gopkg.in/telebot.v4"
)

// Command is one slash command.
//
// AdminOnly commands appear only in the admins' command menu and are refused
// for everyone else. Hidden commands work but are never listed. Aliases match
// plain text typed without the slash, e.g. "help".
type Command struct {
	Handler     tele.HandlerFunc
	Description string
	AdminOnly   bool
	Hidden      bool
	Aliases     []string
}
