package cmd

import (
	"context"
	"errors"
	"strings"
	"testing"

	coreconfig "github.com/m3rciful/vocalbot/core/config"
	coretelegram "github.com/m3rciful/vocalbot/core/telegram"
)

type carrier struct{ core *coreconfig.Config }

func (c carrier) CoreConfig() *coreconfig.Config { return c.core }

type app struct {
	events *[]string
}

func (a app) TelegramRunOptions() (coretelegram.RunOptions, error) {
	return coretelegram.RunOptions{
		OnStart: func(context.Context, coretelegram.Runtime) error {
			*a.events = append(*a.events, "start")
			return nil
		},
		OnStop: func(context.Context, coretelegram.Runtime) error {
			*a.events = append(*a.events, "stop")
			return nil
		},
	}, nil
}

func TestRunWrapsLifecycleHooks(t *testing.T) {
	var events []string
	var loadedFrom string
	err := Run(Options{
		ConfigPath: "bot.yaml",
		LoadConfig: func(path string) (ConfigCarrier, error) {
			loadedFrom = path
			return carrier{core: &coreconfig.Config{}}, nil
		},
		Bootstrap: func(ConfigCarrier) (TelegramApp, error) {
			return app{events: &events}, nil
		},
		ShutdownLogger: func() error {
			events = append(events, "flush")
			return nil
		},
		RunTelegram: func(ctx context.Context, opts coretelegram.RunOptions) error {
			if err := opts.OnStart(ctx, coretelegram.Runtime{}); err != nil {
				return err
			}
			return opts.OnStop(ctx, coretelegram.Runtime{})
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if loadedFrom != "bot.yaml" {
		t.Fatalf("config loaded from %q", loadedFrom)
	}
	if got := strings.Join(events, ","); got != "start,stop,flush" {
		t.Fatalf("events = %s", got)
	}
}

func TestRunRejects(t *testing.T) {
	load := func(string) (ConfigCarrier, error) { return carrier{core: &coreconfig.Config{}}, nil }
	boot := func(ConfigCarrier) (TelegramApp, error) { return nil, errors.New("no database") }
	tests := []struct {
		name string
		opts Options
		want string
	}{
		{name: "no loader", opts: Options{ConfigPath: "x", Bootstrap: boot}, want: "LoadConfig is required"},
		{name: "no path", opts: Options{LoadConfig: load, Bootstrap: boot}, want: "config path is required"},
		{name: "missing core", opts: Options{
			ConfigPath: "x",
			LoadConfig: func(string) (ConfigCarrier, error) { return carrier{}, nil },
			Bootstrap:  boot,
		}, want: "missing core configuration"},
		{name: "bootstrap", opts: Options{ConfigPath: "x", LoadConfig: load, Bootstrap: boot}, want: "no database"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Run(tt.opts)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want %q", err, tt.want)
			}
		})
	}
}
