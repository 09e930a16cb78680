package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/m3rciful/vocalbot/core/logger"
	"github.com/m3rciful/vocalbot/core/telegram/commands"

	tele "gopkg.in/telebot.v4"
)

var (
	// ErrInvalidRegistration is returned for an empty name, a missing
	// handler or a command without description or leading slash.
	ErrInvalidRegistration = errors.New("telegram: invalid registration")
	// ErrDuplicate is returned when a command or callback key is taken.
	ErrDuplicate = errors.New("telegram: already registered")
)

// CommandEntry is a registered command with its slash name.
type CommandEntry struct {
	Name string
	commands.Command
}

// Registry maps slash commands and callback keys to handlers. Commands keep
// their registration order, which is also the menu order.
type Registry struct {
	mu        sync.RWMutex
	commands  []CommandEntry
	callbacks map[string]tele.HandlerFunc
}

func NewRegistry() *Registry {
	return &Registry{callbacks: make(map[string]tele.HandlerFunc)}
}

// RegisterCommand adds cmd under name, e.g. "/book".
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	if !strings.HasPrefix(name, "/") || len(name) < 2 || cmd.Handler == nil || cmd.Description == "" {
		return fmt.Errorf("%w: command %q", ErrInvalidRegistration, name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if slices.ContainsFunc(r.commands, func(e CommandEntry) bool { return e.Name == name }) {
		return fmt.Errorf("%w: command %q", ErrDuplicate, name)
	}
	r.commands = append(r.commands, CommandEntry{Name: name, Command: cmd})
	return nil
}

// RegisterCallback binds the unique key of an inline button.
func (r *Registry) RegisterCallback(key string, h tele.HandlerFunc) error {
	if key == "" || h == nil {
		return fmt.Errorf("%w: callback %q", ErrInvalidRegistration, key)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.callbacks[key]; ok {
		return fmt.Errorf("%w: callback %q", ErrDuplicate, key)
	}
	r.callbacks[key] = h
	return nil
}

// Commands returns the registered commands in registration order.
func (r *Registry) Commands() []CommandEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.commands)
}

// LookupCommand resolves "/name", "name" or an alias of a command.
func (r *Registry) LookupCommand(text string) (CommandEntry, bool) {
	text = strings.TrimSpace(text)
	bare := strings.TrimPrefix(text, "/")
	if bare == "" {
		return CommandEntry{}, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.commands {
		if e.Name == "/"+bare || slices.Contains(e.Aliases, bare) || slices.Contains(e.Aliases, text) {
			return e, true
		}
	}
	return CommandEntry{}, false
}

// Callback returns the handler bound to key.
func (r *Registry) Callback(key string) (tele.HandlerFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// CallbackKeys returns the bound keys, sorted.
func (r *Registry) CallbackKeys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Menu lists the commands shown in the Telegram command menu. Hidden
// commands are never listed; admin-only ones only when admin is set.
func (r *Registry) Menu(admin bool) []tele.Command {
	var menu []tele.Command
	for _, e := range r.Commands() {
		if e.Hidden || (e.AdminOnly && !admin) {
			continue
		}
		menu = append(menu, tele.Command{Text: e.Name, Description: e.Description})
	}
	return menu
}

// SetupCommands publishes the default menu and a chat-scoped admin menu for
// each admin. Failures are logged; the bot works without a menu.
func SetupCommands(bot *tele.Bot, reg *Registry, adminIDs []int64) {
	ctx := context.Background()
	if err := bot.SetCommands(reg.Menu(false)); err != nil {
		logger.TWire.LogAttrs(ctx, slog.LevelError, "set commands",
			slog.String("event", "commands.set_failed"),
			slog.String("err", err.Error()),
		)
	}
	adminMenu := reg.Menu(true)
	for _, id := range adminIDs {
		scope := tele.CommandScope{Type: tele.CommandScopeChat, ChatID: id}
		if err := bot.SetCommands(adminMenu, scope); err != nil {
			logger.TWire.LogAttrs(ctx, slog.LevelWarn, "set admin commands",
				slog.String("event", "commands.admin_failed"),
				slog.Int64("admin_id", id),
				slog.String("err", err.Error()),
			)
		}
	}
}
