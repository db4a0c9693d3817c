package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"gorm.io/gorm"

	"github.com/latoulicious/groovebox/internal/commands"
	"github.com/latoulicious/groovebox/internal/interactions"
	"github.com/latoulicious/groovebox/pkg/config"
	"github.com/latoulicious/groovebox/pkg/coordinator"
	"github.com/latoulicious/groovebox/pkg/database"
	"github.com/latoulicious/groovebox/pkg/database/repository"
	"github.com/latoulicious/groovebox/pkg/faults"
	"github.com/latoulicious/groovebox/pkg/idle"
	"github.com/latoulicious/groovebox/pkg/logging"
	"github.com/latoulicious/groovebox/pkg/metrics"
	"github.com/latoulicious/groovebox/pkg/msgref"
	"github.com/latoulicious/groovebox/pkg/preload"
	"github.com/latoulicious/groovebox/pkg/resolver"
	"github.com/latoulicious/groovebox/pkg/runner"
	"github.com/latoulicious/groovebox/pkg/session"
	"github.com/latoulicious/groovebox/pkg/settings"
	"github.com/latoulicious/groovebox/pkg/voice"
)

const (
	maintenanceInterval = 15 * time.Minute
	logRetention        = 7 * 24 * time.Hour
	shutdownGrace       = 10 * time.Second
)

func main() {
	// Initialize application with proper error handling
	if err := initializeApplication(); err != nil {
		log.Fatalf("Application initialization failed: %v", err)
	}
}

// initializeApplication wires every component, runs until a termination
// signal arrives, and tears the stack down in dependency order.
func initializeApplication() error {
	// Load configuration (reads .env, config files, and environment)
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize PostgreSQL and run schema migrations
	db, err := database.NewGormDB(cfg.Database.URL, cfg.Database.ConnectTimeout)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	dbManager, err := database.NewDatabaseManager(db)
	if err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	// Initialize centralized logging system
	initializeCentralizedLogging(db, cfg)
	systemLogger := logging.GetGlobalLoggerFactory().CreateLogger("system")

	collector := metrics.NewBasicCollector()

	// Subprocess runner for yt-dlp and ffmpeg
	retry := faults.RetryPolicy{
		MaxAttempts: cfg.Retry.MaxRetries,
		BaseDelay:   cfg.Retry.BaseDelay,
		MaxDelay:    cfg.Retry.MaxDelay,
		Multiplier:  cfg.Retry.Multiplier,
	}
	proc, err := runner.NewRunner(cfg.Audio, retry, collector)
	if err != nil {
		return fmt.Errorf("failed to create process runner: %w", err)
	}
	if err := proc.ValidateBinaries(); err != nil {
		systemLogger.Warn("Audio binary validation failed, playback may be limited", map[string]interface{}{
			"error": err.Error(),
		})
	}
	// Artifacts left behind by a previous run are stale
	if swept := proc.SweepTemp(); swept > 0 {
		systemLogger.Info("Swept leftover decode artifacts", map[string]interface{}{
			"count": swept,
		})
	}

	// Repositories
	settingsRepo := repository.NewSettingsRepository(db)
	queueRepo := repository.NewQueueStateRepository(db)
	refRepo := repository.NewMessageRefRepository(db)
	metadataRepo := repository.NewMetadataRepository(db)
	playlistRepo := repository.NewPlaylistRepository(db)
	gifRepo := repository.NewGifRepository(db)

	settingsCache := settings.NewCache(settingsRepo, settings.DefaultTTL, settings.DefaultCapacity)

	// Create a new Discord session using the provided token
	dg, err := discordgo.New("Bot " + cfg.Discord.BotToken)
	if err != nil {
		return fmt.Errorf("failed to create Discord session: %w", err)
	}
	dg.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates

	refs := msgref.NewManager(refRepo, dg)
	voiceGateway := voice.NewGateway(dg)

	// Track resolution: yt-dlp always, Spotify catalog when configured
	var catalog resolver.CatalogClient
	if spotify, err := resolver.NewSpotifyClient(cfg.Spotify, cfg.Audio.SpotifyTimeout); err != nil {
		systemLogger.Warn("Spotify catalog disabled", map[string]interface{}{
			"error": err.Error(),
		})
	} else {
		catalog = spotify
	}
	resolve := resolver.NewResolver(proc, catalog, metadataRepo, cfg.Session.MaxPlaylistTracks)

	preloader := preload.New(proc, collector)

	// The session manager needs a transition listener before the
	// coordinator exists; the relay is bound once it does.
	relay := &transitionRelay{}

	engineCtx, cancelEngines := context.WithCancel(context.Background())
	defer cancelEngines()

	sessions := session.NewManager(engineCtx, session.Deps{
		Resolver: resolve,
		Preload:  preloader,
		Decoder:  proc,
		Voice:    session.GatewayVoice{Gateway: voiceGateway},
		Starter:  session.PlayerStarter{},
		Store:    queueRepo,
		Settings: settingsCache,
		Metrics:  collector,
		Listener: relay,
		Audio:    cfg.Audio,
		Session:  cfg.Session,
	})

	idleSupervisor := idle.NewSupervisor(idle.CacheTimeout{Cache: settingsCache}, sessions)
	controlsPublisher := interactions.NewControlsPublisher(dg, refs)

	coord := coordinator.New(coordinator.Deps{
		Sessions: sessions,
		Editor:   controlsPublisher,
		Idle:     idleSupervisor,
		Refs:     refs,
		Settings: settingsCache,
		Gifs:     gifRepo,
		Plays:    metadataRepo,
		Metrics:  collector,
		Gate:     cfg.Gate,
		Debounce: cfg.Session.UIDebounce,
	})
	relay.Bind(coord)

	// Interaction dispatch
	registry := interactions.NewRegistry()
	commands.Register(registry, &commands.Deps{
		Flow:      coord,
		Sessions:  sessions,
		Settings:  settingsCache,
		Playlists: playlistRepo,
		Gifs:      gifRepo,
		Controls:  controlsPublisher,
		Voice:     commands.GatewayVoiceStates{Session: dg},
		Metrics:   collector,
	})

	server, err := interactions.NewServer(
		interactions.Config{Addr: cfg.HTTP.Addr, PublicKey: cfg.Discord.PublicKey},
		interactions.Deps{
			Registry: registry,
			Rest:     dg,
			IsOwner:  commands.GatewayOwner(dg),
			Sessions: sessions,
			Metrics:  collector,
		},
	)
	if err != nil {
		return fmt.Errorf("failed to create interaction server: %w", err)
	}

	// Open a websocket connection to Discord and begin listening
	if err := dg.Open(); err != nil {
		return fmt.Errorf("failed to open Discord session: %w", err)
	}

	// Size the connection pool now that the real guild count is known
	guildCount := len(dg.State.Guilds)
	if err := database.TunePool(db, guildCount, cfg.Database.ConnMaxIdle); err != nil {
		systemLogger.Warn("Failed to tune database connection pool", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Push the slash command set; existing deployments keep working if
	// this fails, so it is not fatal
	if err := interactions.Deploy(dg, cfg.Discord.AppID, cfg.Discord.GuildID); err != nil {
		systemLogger.Error("Slash command deployment failed", err, map[string]interface{}{
			"error": err.Error(),
		})
	}

	server.Start()
	dbManager.StartMaintenance(maintenanceInterval, logRetention)

	systemLogger.Info("Groovebox is running", map[string]interface{}{
		"guilds":    guildCount,
		"http_addr": cfg.HTTP.Addr,
	})

	// Wait here until CTRL-C or other term signal is received
	sc := make(chan os.Signal, 1)
	signal.Notify(sc, syscall.SIGINT, syscall.SIGTERM, os.Interrupt)
	<-sc

	systemLogger.Info("Shutting down gracefully", nil)

	// Stop timers and scheduled work first so nothing rearms mid-teardown
	idleSupervisor.StopAll()
	coord.Stop()

	// Kill tracked subprocesses and drop their artifacts
	preloader.Shutdown()
	proc.KillAll()
	proc.SweepTemp()

	// Tear down voice connections
	voiceGateway.DestroyAll()

	// Flush per-guild queue state through the engine persist path
	sessions.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		systemLogger.Warn("Interaction server shutdown error", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Cleanly close down the Discord session
	if err := dg.Close(); err != nil {
		systemLogger.Warn("Discord session close error", map[string]interface{}{
			"error": err.Error(),
		})
	}

	// Database goes last; everything above may still be writing to it
	if err := dbManager.Close(); err != nil {
		systemLogger.Warn("Database close error", map[string]interface{}{
			"error": err.Error(),
		})
	}

	systemLogger.Info("Application shutdown complete", nil)
	return nil
}

// initializeCentralizedLogging switches the global logger factory to the
// database-backed one when persistence is enabled.
func initializeCentralizedLogging(db *gorm.DB, cfg *config.Config) {
	if !cfg.Logger.SaveToDB {
		return
	}

	logRepo := repository.NewRuntimeLogRepository(db)
	logging.SetGlobalLoggerFactory(logging.NewDatabaseLoggerFactory(logRepo))

	systemLogger := logging.GetGlobalLoggerFactory().CreateLogger("system")
	systemLogger.Info("Centralized logging system initialized", map[string]interface{}{
		"database_sink": true,
	})
}

// transitionRelay forwards engine snapshots to a listener bound after
// construction. It exists because the session manager and the coordinator
// each need the other at build time.
type transitionRelay struct {
	mu     sync.RWMutex
	target session.Listener
}

// Bind sets the forwarding target. Called once during startup before any
// engine publishes.
func (r *transitionRelay) Bind(target session.Listener) {
	r.mu.Lock()
	r.target = target
	r.mu.Unlock()
}

func (r *transitionRelay) OnTransition(snap session.Snapshot) {
	r.mu.RLock()
	target := r.target
	r.mu.RUnlock()
	if target != nil {
		target.OnTransition(snap)
	}
}
