package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/m3rciful/vocalbot/core/bootstrap"
	"github.com/m3rciful/vocalbot/core/buildinfo"
	corecmd "github.com/m3rciful/vocalbot/core/cmd"
	coreconfig "github.com/m3rciful/vocalbot/core/config"
	"github.com/m3rciful/vocalbot/core/logger"
	"github.com/m3rciful/vocalbot/internal/config"
)

type globals struct {
	Config string
}

var cli struct {
	Config  string `help:"Config file path." type:"path" env:"CONFIG_PATH" default:"config.yaml"`
	EnvFile string `help:"Dotenv file applied before the config is read." type:"path" default:".env"`

	Run     runCmd     `cmd:"" help:"Run the bot." default:"1"`
	Migrate migrateCmd `cmd:"" help:"Apply database migrations and exit."`
	Version versionCmd `cmd:"" help:"Print build information."`
}

type runCmd struct{}

func (runCmd) Run(g *globals) error {
	return corecmd.Run(corecmd.Options{
		ConfigPath: g.Config,
		LoadConfig: func(path string) (corecmd.ConfigCarrier, error) {
			cfg, err := config.Load(path)
			if err != nil {
				return nil, err
			}
			return cfg, nil
		},
		Bootstrap: func(c corecmd.ConfigCarrier) (corecmd.TelegramApp, error) {
			return newApplication(c.(*config.Config))
		},
	})
}

type migrateCmd struct{}

func (migrateCmd) Run(g *globals) error {
	cfg, err := config.Load(g.Config)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	defer func() { _ = logger.Shutdown() }()
	return bootstrap.Migrate(bootstrap.Options{
		Config:   cfg.CoreConfig(),
		Database: cfg.Database,
	})
}

type versionCmd struct{}

func (versionCmd) Run() error {
	fmt.Printf("vocalbot %s\n", version())
	return nil
}

func version() string {
	v := buildinfo.Version + " (" + buildinfo.Commit + ")"
	if buildinfo.Date != "" {
		v += " " + buildinfo.Date
	}
	return v
}

// envFileArg finds --env-file in args without a full parse. The dotenv file
// has to be applied before kong reads env-backed flags such as CONFIG_PATH.
func envFileArg(args []string) string {
	path := ".env"
	for i := 0; i < len(args); i++ {
		arg := args[i]
		switch {
		case arg == "--":
			return path
		case arg == "--env-file" && i+1 < len(args):
			path = args[i+1]
			i++
		case strings.HasPrefix(arg, "--env-file="):
			path = strings.TrimPrefix(arg, "--env-file=")
		}
	}
	return path
}

func main() {
	if err := coreconfig.LoadEnvFile(envFileArg(os.Args[1:])); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	ctx := kong.Parse(&cli,
		kong.Name("vocalbot"),
		kong.Description("Telegram bot for booking vocal lessons."),
		kong.UsageOnError(),
	)
	if err := ctx.Run(&globals{Config: cli.Config}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
