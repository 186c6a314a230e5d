// Package main provides the bot entry point.
package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kingpin/v2"
	"github.com/bwmarrin/discordgo"
	"github.com/joho/godotenv"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/stagebox/internal/api/discord"
	"github.com/osa030/stagebox/internal/app/filter"
	"github.com/osa030/stagebox/internal/app/session"
	"github.com/osa030/stagebox/internal/infra/config"
	"github.com/osa030/stagebox/internal/infra/logger"
	"github.com/osa030/stagebox/internal/infra/spotify"
	"github.com/osa030/stagebox/internal/infra/voice"
	"github.com/osa030/stagebox/internal/infra/ytdlp"
)

var (
	app        = kingpin.New("stagebox", "stagebox Discord music bot")
	configPath = app.Flag("config", "Path to config file").Default("config/stagebox.yaml").String()
	verbose    = app.Flag("verbose", "Enable verbose (DEBUG) logging").Short('v').Bool()
	logfile    = app.Flag("logfile", "Path to log file (default: stdout)").String()

	// list-filters command
	listFiltersCmd = app.Command("list-filters", "List available filters and exit")
)

func init() {
	// start command (default) - no need to store the command
	app.Command("start", "Start the bot (default)").Default()
}

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	// Handle list-filters command
	if command == listFiltersCmd.FullCommand() {
		printFilters()
		return
	}

	// Initialize logger
	loggerConfig := logger.Config{
		Output: "stdout",
		Level:  "info",
	}
	// Override with command-line flags if specified
	if *verbose {
		loggerConfig.Level = "debug"
	}
	if *logfile != "" {
		loggerConfig.Output = *logfile
		loggerConfig.File = *logfile
	}
	logCloser, err := logger.Init(loggerConfig)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logCloser.Close()

	// Load config
	zlog.Info().Msgf("Loading config from %s", *configPath)
	cfg, err := config.Load(*configPath)
	if err != nil {
		zlog.Fatal().Msgf("Failed to load config: %v", err)
	}

	// Flags win over the config file
	if !*verbose && *logfile == "" {
		loggerConfig.Level = cfg.Log.Level
		loggerConfig.Format = cfg.Log.Format
		if _, err := logger.Init(loggerConfig); err != nil {
			zlog.Fatal().Msgf("Failed to initialize logger: %v", err)
		}
	}

	// Run bot (defer ensures shutdown hook is called)
	if err := run(cfg); err != nil {
		zlog.Error().Msgf("Bot error: %v", err)
		os.Exit(1)
	}
}

// run executes the main bot logic. Using a separate function ensures
// defer statements are executed even when returning with an error.
func run(cfg *config.Config) error {
	// Validate filter config
	if err := validateFilterConfig(cfg); err != nil {
		return fmt.Errorf("invalid filter config: %w", err)
	}

	ctx := context.Background()

	// Create Spotify client (optional)
	var expander session.Expander
	if cfg.Spotify.Enabled() {
		spotifyClient, err := spotify.New(ctx, spotify.Config{
			ClientID:     cfg.Spotify.ClientID,
			ClientSecret: cfg.Spotify.ClientSecret,
			Market:       cfg.Spotify.Market,
			MaxTracks:    cfg.Spotify.MaxTracks,
		})
		if err != nil {
			return fmt.Errorf("failed to create Spotify client: %w", err)
		}
		expander = spotifyClient
	} else {
		zlog.Info().Msg("Spotify credentials not configured, Spotify links are disabled")
	}

	resolver := ytdlp.New(ytdlp.Config{
		Binary:        cfg.YtDlp.Binary,
		Format:        cfg.YtDlp.Format,
		DefaultSearch: cfg.YtDlp.DefaultSearch,
		SourceAddress: cfg.YtDlp.SourceAddress,
	})

	// Create Discord session
	dg, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentMessageContent

	voiceConfig := voice.Config{
		FFmpeg:        cfg.FFmpeg.Binary,
		BeforeOptions: cfg.FFmpeg.BeforeOptions,
		Options:       cfg.FFmpeg.Options,
		Bitrate:       cfg.FFmpeg.Bitrate,
	}
	sessions := session.NewRegistry(cfg, func(guildID string) (session.Deps, error) {
		return session.Deps{
			Engine:   voice.NewEngine(dg, guildID, voiceConfig),
			Resolver: resolver,
			Expander: expander,
		}, nil
	})

	bot := discord.New(cfg, dg, sessions, discord.StateVoiceLocator(dg))
	bot.Register(dg)

	zlog.Info().Msg("Connecting to Discord")
	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	// Execute startup hook if configured (after the gateway is connected)
	executeHooks(cfg.Server.Hooks.OnStarted, "on_started")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	zlog.Info().Msg("Received shutdown signal...")

	// Leave every voice channel before closing the gateway
	done := make(chan struct{})
	go func() {
		sessions.CloseAll()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(cfg.Server.ShutdownTimeout):
		zlog.Warn().Msgf("Sessions did not close within %s", cfg.Server.ShutdownTimeout)
	}

	if err := dg.Close(); err != nil {
		zlog.Error().Msgf("Failed to close Discord session: %v", err)
	}

	zlog.Info().Msg("Bot stopped")

	// Execute shutdown hook if configured
	executeHooks(cfg.Server.Hooks.OnStopped, "on_stopped")

	return nil
}

// printFilters prints available filters.
func printFilters() {
	registered := filter.GetRegistered()
	names := make([]string, 0, len(registered))
	for name := range registered {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Println("Available Filters:")
	for _, name := range names {
		f := registered[name](nil)
		codes := strings.Join(f.ReturnCodes(), ", ")
		fmt.Printf("  %-30s - %s [codes: %s]\n", f.Name(), f.Description(), codes)
	}
}

// validateFilterConfig validates filter configurations.
func validateFilterConfig(cfg *config.Config) error {
	registry := filter.GetRegistered()

	for filterName, filterCfg := range cfg.Filters {
		if !filterCfg.Enabled {
			continue
		}

		factory, exists := registry[filterName]
		if !exists {
			return fmt.Errorf("unknown filter %s", filterName)
		}

		f := factory(nil)
		if err := f.ValidateConfig(filterCfg.Settings); err != nil {
			return fmt.Errorf("filter %s: %w", filterName, err)
		}
	}

	return nil
}

// executeHooks runs a list of shell commands.
func executeHooks(hooks []string, stage string) {
	if len(hooks) == 0 {
		return
	}

	zlog.Info().Msgf("Executing %s hooks (%d commands)", stage, len(hooks))

	for _, hook := range hooks {
		zlog.Info().Msgf("Executing hook: %s", hook)
		// Use sh -c to allow shell features like redirection or pipes
		cmd := exec.Command("sh", "-c", hook)
		cmd.Stdout = os.Stdout
		cmd.Stderr = os.Stderr

		if err := cmd.Run(); err != nil {
			zlog.Error().Err(err).Msgf("Failed to execute hook: %s", hook)
		}
	}
}
