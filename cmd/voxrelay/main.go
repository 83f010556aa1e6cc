// Command voxrelay is the entry point for the Discord voice transcription
// relay.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/voxrelay/internal/app"
	"github.com/MrWong99/voxrelay/internal/config"
	discordbot "github.com/MrWong99/voxrelay/internal/discord"
	"github.com/MrWong99/voxrelay/internal/discord/commands"
	"github.com/MrWong99/voxrelay/internal/health"
	"github.com/MrWong99/voxrelay/internal/observe"
	"github.com/MrWong99/voxrelay/internal/resilience"
	"github.com/MrWong99/voxrelay/pkg/provider/stt"
	"github.com/MrWong99/voxrelay/pkg/provider/stt/deepgram"
	"github.com/MrWong99/voxrelay/pkg/provider/stt/google"
	oaistt "github.com/MrWong99/voxrelay/pkg/provider/stt/openai"
	"github.com/MrWong99/voxrelay/pkg/provider/stt/whisper"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voxrelay: config file %q not found and DISCORD_TOKEN is not set\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voxrelay: %v\n", err)
		}
		return 1
	}
	if cfg.Discord.Token == "" {
		fmt.Fprintln(os.Stderr, "voxrelay: no Discord token; set discord.token or DISCORD_TOKEN")
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var logLevel slog.LevelVar
	logLevel.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: &logLevel})))

	slog.Info("voxrelay starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	tel, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voxrelay",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Speech-to-text provider ───────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(ctx, reg)

	entry := cfg.Transcription.Provider
	sttProvider, err := reg.CreateSTT(entry)
	if err != nil {
		slog.Error("failed to create stt provider", "name", entry.Name, "registered", reg.STTNames(), "err", err)
		return 1
	}
	slog.Info("provider created", "kind", "stt", "name", entry.Name)
	if c, ok := sttProvider.(io.Closer); ok {
		defer func() {
			if err := c.Close(); err != nil {
				slog.Warn("stt provider close error", "err", err)
			}
		}()
	}

	var breaker *resilience.STTProvider
	if b := cfg.Transcription.Breaker; b.Enabled() {
		breaker = resilience.NewSTTProvider(sttProvider, entry.Name, resilience.Config{
			MaxFailures:  b.MaxFailures,
			ResetTimeout: b.ResetTimeout,
		})
		sttProvider = breaker
	}

	// ── Discord bot ───────────────────────────────────────────────────────────
	bot, err := discordbot.New(ctx, discordbot.Config{
		Token:            cfg.Discord.Token,
		CommandPrefix:    cfg.Discord.CommandPrefix,
		DebugRoleID:      cfg.Discord.DebugRoleID,
		EndOfTurnSilence: cfg.Capture.EndOfTurnSilence,
		Metrics:          metrics,
	})
	if err != nil {
		slog.Error("failed to create Discord bot", "err", err)
		return 1
	}
	defer func() {
		if err := bot.Close(); err != nil {
			slog.Warn("discord bot close error", "err", err)
		}
	}()

	application, err := app.New(cfg,
		&app.Providers{STT: sttProvider, STTName: entry.Name, Audio: bot.Platform()},
		bot, bot,
		app.WithMetrics(metrics),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	commands.NewHelpCommands(bot.Router())
	commands.NewSessionCommands(bot.Router(), application.Sessions())

	// ── Run ───────────────────────────────────────────────────────────────────
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(gctx) })

	if _, err := os.Stat(*configPath); err == nil {
		watcher := config.NewWatcher(*configPath, cfg, func(old, new *config.Config) {
			applyReload(config.Diff(old, new), &logLevel, application, bot)
		})
		g.Go(func() error { return watcher.Run(gctx) })
	}

	if cfg.Server.HealthEnabled() {
		checks := []health.Checker{
			{Name: "discord", Check: bot.Ready},
			{Name: "stt", Check: func(ctx context.Context) error {
				if breaker != nil {
					return breaker.Check(ctx)
				}
				return nil
			}},
		}
		mux := http.NewServeMux()
		health.New(checks, health.WithGatherer(tel.Registry)).Register(mux)
		g.Go(func() error {
			return health.Serve(gctx, cfg.Server.ListenAddr, observe.Middleware(metrics)(mux))
		})
	}

	slog.Info("relay ready, press Ctrl+C to shut down", "prefix", cfg.Discord.CommandPrefix)

	runErr := g.Wait()
	if runErr != nil {
		slog.Error("run error", "err", runErr)
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	slog.Info("shutdown signal received, stopping…")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Leave voice channels before the gateway session closes.
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	if runErr != nil {
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// registerBuiltinProviders wires the speech-to-text factories that ship with
// the relay into reg.
func registerBuiltinProviders(ctx context.Context, reg *config.Registry) {
	reg.RegisterSTT("google", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []google.Option
		if path := entry.OptString("credentials_file"); path != "" {
			opts = append(opts, google.WithCredentialsFile(path))
		}
		if entry.APIKey != "" {
			opts = append(opts, google.WithAPIKey(entry.APIKey))
		}
		if entry.BaseURL != "" {
			opts = append(opts, google.WithEndpoint(entry.BaseURL))
		}
		return google.New(ctx, opts...)
	})

	reg.RegisterSTT("whisper", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []whisper.Option
		if entry.Model != "" {
			opts = append(opts, whisper.WithModel(entry.Model))
		}
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithLanguage(lang))
		}
		return whisper.New(entry.BaseURL, opts...)
	})

	reg.RegisterSTT("whisper-native", func(entry config.ProviderEntry) (stt.Provider, error) {
		modelPath := entry.Model
		if modelPath == "" {
			modelPath = entry.OptString("model_path")
		}
		var opts []whisper.NativeOption
		if lang := entry.OptString("language"); lang != "" {
			opts = append(opts, whisper.WithNativeLanguage(lang))
		}
		return whisper.NewNative(modelPath, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		if org := entry.OptString("organization"); org != "" {
			opts = append(opts, oaistt.WithOrganization(org))
		}
		return oaistt.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	for _, name := range reg.STTNames() {
		slog.Debug("registered provider", "kind", "stt", "name", name)
	}
}

// ── Hot reload ────────────────────────────────────────────────────────────────

func applyReload(d config.ConfigDiff, level *slog.LevelVar, application *app.App, bot *discordbot.Bot) {
	if !d.Changed() {
		return
	}
	if d.LogLevelChanged {
		level.Set(slogLevel(d.NewLogLevel))
		slog.Info("log level changed", "level", d.NewLogLevel)
	}
	application.ApplyDiff(d)
	if d.PrefixChanged {
		bot.Router().SetPrefix(d.NewPrefix)
		slog.Info("command prefix changed", "prefix", d.NewPrefix)
	}
	if d.DebugRoleChanged {
		bot.Permissions().SetRoleID(d.NewDebugRoleID)
		slog.Info("debug role changed", "role_id", d.NewDebugRoleID)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("config changes need a restart to take effect", "fields", d.RestartRequired)
	}
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
