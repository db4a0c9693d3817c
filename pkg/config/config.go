package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DiscordConfig holds the chat platform credentials. Env only; these never
// come from config files.
type DiscordConfig struct {
	BotToken  string `yaml:"-" toml:"-" env:"BOT_TOKEN"`
	AppID     string `yaml:"-" toml:"-" env:"APP_ID"`
	PublicKey string `yaml:"-" toml:"-" env:"PUBLIC_KEY"`
	GuildID   string `yaml:"-" toml:"-" env:"GUILD_ID"`
}

// SpotifyConfig holds the Spotify client-credential pair. Env only.
type SpotifyConfig struct {
	ClientID     string `yaml:"-" toml:"-" env:"SPOTIFY_CLIENT_ID"`
	ClientSecret string `yaml:"-" toml:"-" env:"SPOTIFY_CLIENT_SECRET"`
}

// DatabaseConfig holds connection settings. The pool is sized at runtime from
// the guild count; see database.TunePool.
type DatabaseConfig struct {
	URL            string        `yaml:"-" toml:"-" env:"DATABASE_URL"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" toml:"connect_timeout" env:"DB_CONNECT_TIMEOUT"`
	ConnMaxIdle    time.Duration `yaml:"conn_max_idle" toml:"conn_max_idle" env:"DB_CONN_MAX_IDLE"`
}

// HTTPConfig holds the interactions/health server settings
type HTTPConfig struct {
	Addr string `yaml:"addr" toml:"addr" env:"HTTP_ADDR"`
}

// AudioConfig holds subprocess and encoder settings
type AudioConfig struct {
	FFmpegBinary         string        `yaml:"ffmpeg_binary" toml:"ffmpeg_binary" env:"AUDIO_FFMPEG_BINARY"`
	YtDlpBinary          string        `yaml:"ytdlp_binary" toml:"ytdlp_binary" env:"AUDIO_YTDLP_BINARY"`
	AudioFormat          string        `yaml:"audio_format" toml:"audio_format" env:"AUDIO_FORMAT"`
	SampleRate           int           `yaml:"sample_rate" toml:"sample_rate" env:"AUDIO_SAMPLE_RATE"`
	Channels             int           `yaml:"channels" toml:"channels" env:"AUDIO_CHANNELS"`
	OpusBitrate          int           `yaml:"opus_bitrate" toml:"opus_bitrate" env:"AUDIO_OPUS_BITRATE"`
	OpusFrameSize        int           `yaml:"opus_frame_size" toml:"opus_frame_size" env:"AUDIO_OPUS_FRAME_SIZE"`
	ResolveTimeout       time.Duration `yaml:"resolve_timeout" toml:"resolve_timeout" env:"AUDIO_RESOLVE_TIMEOUT"`
	DecodeTimeout        time.Duration `yaml:"decode_timeout" toml:"decode_timeout" env:"AUDIO_DECODE_TIMEOUT"`
	PlaylistTitleTimeout time.Duration `yaml:"playlist_title_timeout" toml:"playlist_title_timeout" env:"AUDIO_PLAYLIST_TITLE_TIMEOUT"`
	PlaylistItemsTimeout time.Duration `yaml:"playlist_items_timeout" toml:"playlist_items_timeout" env:"AUDIO_PLAYLIST_ITEMS_TIMEOUT"`
	SpotifyTimeout       time.Duration `yaml:"spotify_timeout" toml:"spotify_timeout" env:"AUDIO_SPOTIFY_TIMEOUT"`
	ProcessCapPerGuild   int           `yaml:"process_cap_per_guild" toml:"process_cap_per_guild" env:"AUDIO_PROCESS_CAP"`
	TempDir              string        `yaml:"temp_dir" toml:"temp_dir" env:"AUDIO_TEMP_DIR"`
}

// SessionConfig holds per-guild engine tunables
type SessionConfig struct {
	QueueCap          int           `yaml:"queue_cap" toml:"queue_cap" env:"SESSION_QUEUE_CAP"`
	HistoryCap        int           `yaml:"history_cap" toml:"history_cap" env:"SESSION_HISTORY_CAP"`
	RefillBatch       int           `yaml:"refill_batch" toml:"refill_batch" env:"SESSION_REFILL_BATCH"`
	MaxPlaylistTracks int           `yaml:"max_playlist_tracks" toml:"max_playlist_tracks" env:"SESSION_MAX_PLAYLIST_TRACKS"`
	UIDebounce        time.Duration `yaml:"ui_debounce_ms" toml:"ui_debounce_ms" env:"SESSION_UI_DEBOUNCE"`
}

// GateConfig holds state coordinator policy knobs
type GateConfig struct {
	RateWindow    time.Duration `yaml:"rate_window" toml:"rate_window" env:"GATE_RATE_WINDOW"`
	RateLimit     int           `yaml:"rate_limit" toml:"rate_limit" env:"GATE_RATE_LIMIT"`
	DeferredCap   int           `yaml:"deferred_cap" toml:"deferred_cap" env:"GATE_DEFERRED_CAP"`
	DeferredTTL   time.Duration `yaml:"deferred_ttl" toml:"deferred_ttl" env:"GATE_DEFERRED_TTL"`
	LockTTL       time.Duration `yaml:"lock_ttl" toml:"lock_ttl" env:"GATE_LOCK_TTL"`
	SweepInterval time.Duration `yaml:"sweep_interval" toml:"sweep_interval" env:"GATE_SWEEP_INTERVAL"`
}

// RetryConfig holds the backoff policy for transient failures
type RetryConfig struct {
	MaxRetries int           `yaml:"max_retries" toml:"max_retries" env:"RETRY_MAX"`
	BaseDelay  time.Duration `yaml:"base_delay" toml:"base_delay" env:"RETRY_BASE_DELAY"`
	MaxDelay   time.Duration `yaml:"max_delay" toml:"max_delay" env:"RETRY_MAX_DELAY"`
	Multiplier float64       `yaml:"multiplier" toml:"multiplier" env:"RETRY_MULTIPLIER"`
}

// LoggerConfig holds logging settings
type LoggerConfig struct {
	Level    string `yaml:"level" toml:"level" env:"LOG_LEVEL"`
	Format   string `yaml:"format" toml:"format" env:"LOG_FORMAT"`
	SaveToDB bool   `yaml:"save_to_db" toml:"save_to_db" env:"LOG_SAVE_DB"`
}

// Config is the complete application configuration
type Config struct {
	Discord  DiscordConfig  `yaml:"-" toml:"-"`
	Spotify  SpotifyConfig  `yaml:"-" toml:"-"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	HTTP     HTTPConfig     `yaml:"http" toml:"http"`
	Audio    AudioConfig    `yaml:"audio" toml:"audio"`
	Session  SessionConfig  `yaml:"session" toml:"session"`
	Gate     GateConfig     `yaml:"gate" toml:"gate"`
	Retry    RetryConfig    `yaml:"retry" toml:"retry"`
	Logger   LoggerConfig   `yaml:"logger" toml:"logger"`
}

// Load builds the configuration from, in order of preference, a YAML file
// (config/groovebox.yaml), a TOML file (config/groovebox.toml), environment
// variables, and built-in defaults. Credentials always come from the
// environment regardless of which tunable source won.
func Load() (*Config, error) {
	// Best effort; a missing .env file is fine
	_ = godotenv.Load()

	cfg := &Config{}
	setDefaults(cfg)

	if err := loadYAML(cfg); err != nil {
		if err := loadTOML(cfg); err != nil {
			loadEnvTunables(cfg)
		}
	}

	loadEnvSecrets(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadYAML(cfg *Config) error {
	yamlPath := filepath.Join("config", "groovebox.yaml")
	data, err := os.ReadFile(yamlPath)
	if err != nil {
		return fmt.Errorf("read yaml config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse yaml config: %w", err)
	}
	return nil
}

func loadTOML(cfg *Config) error {
	tomlPath := filepath.Join("config", "groovebox.toml")
	if _, err := os.Stat(tomlPath); err != nil {
		return fmt.Errorf("stat toml config: %w", err)
	}
	if _, err := toml.DecodeFile(tomlPath, cfg); err != nil {
		return fmt.Errorf("parse toml config: %w", err)
	}
	return nil
}

// loadEnvTunables fills tunables from environment variables, keeping the
// defaults where a variable is unset.
func loadEnvTunables(cfg *Config) {
	cfg.Database.ConnectTimeout = getEnvDuration("DB_CONNECT_TIMEOUT", cfg.Database.ConnectTimeout)
	cfg.Database.ConnMaxIdle = getEnvDuration("DB_CONN_MAX_IDLE", cfg.Database.ConnMaxIdle)

	cfg.HTTP.Addr = getEnvString("HTTP_ADDR", cfg.HTTP.Addr)

	cfg.Audio.FFmpegBinary = getEnvString("AUDIO_FFMPEG_BINARY", cfg.Audio.FFmpegBinary)
	cfg.Audio.YtDlpBinary = getEnvString("AUDIO_YTDLP_BINARY", cfg.Audio.YtDlpBinary)
	cfg.Audio.AudioFormat = getEnvString("AUDIO_FORMAT", cfg.Audio.AudioFormat)
	cfg.Audio.SampleRate = getEnvInt("AUDIO_SAMPLE_RATE", cfg.Audio.SampleRate)
	cfg.Audio.Channels = getEnvInt("AUDIO_CHANNELS", cfg.Audio.Channels)
	cfg.Audio.OpusBitrate = getEnvInt("AUDIO_OPUS_BITRATE", cfg.Audio.OpusBitrate)
	cfg.Audio.OpusFrameSize = getEnvInt("AUDIO_OPUS_FRAME_SIZE", cfg.Audio.OpusFrameSize)
	cfg.Audio.ResolveTimeout = getEnvDuration("AUDIO_RESOLVE_TIMEOUT", cfg.Audio.ResolveTimeout)
	cfg.Audio.DecodeTimeout = getEnvDuration("AUDIO_DECODE_TIMEOUT", cfg.Audio.DecodeTimeout)
	cfg.Audio.PlaylistTitleTimeout = getEnvDuration("AUDIO_PLAYLIST_TITLE_TIMEOUT", cfg.Audio.PlaylistTitleTimeout)
	cfg.Audio.PlaylistItemsTimeout = getEnvDuration("AUDIO_PLAYLIST_ITEMS_TIMEOUT", cfg.Audio.PlaylistItemsTimeout)
	cfg.Audio.SpotifyTimeout = getEnvDuration("AUDIO_SPOTIFY_TIMEOUT", cfg.Audio.SpotifyTimeout)
	cfg.Audio.ProcessCapPerGuild = getEnvInt("AUDIO_PROCESS_CAP", cfg.Audio.ProcessCapPerGuild)
	cfg.Audio.TempDir = getEnvString("AUDIO_TEMP_DIR", cfg.Audio.TempDir)

	cfg.Session.QueueCap = getEnvInt("SESSION_QUEUE_CAP", cfg.Session.QueueCap)
	cfg.Session.HistoryCap = getEnvInt("SESSION_HISTORY_CAP", cfg.Session.HistoryCap)
	cfg.Session.RefillBatch = getEnvInt("SESSION_REFILL_BATCH", cfg.Session.RefillBatch)
	cfg.Session.MaxPlaylistTracks = getEnvInt("SESSION_MAX_PLAYLIST_TRACKS", cfg.Session.MaxPlaylistTracks)
	cfg.Session.UIDebounce = getEnvDuration("SESSION_UI_DEBOUNCE", cfg.Session.UIDebounce)

	cfg.Gate.RateWindow = getEnvDuration("GATE_RATE_WINDOW", cfg.Gate.RateWindow)
	cfg.Gate.RateLimit = getEnvInt("GATE_RATE_LIMIT", cfg.Gate.RateLimit)
	cfg.Gate.DeferredCap = getEnvInt("GATE_DEFERRED_CAP", cfg.Gate.DeferredCap)
	cfg.Gate.DeferredTTL = getEnvDuration("GATE_DEFERRED_TTL", cfg.Gate.DeferredTTL)
	cfg.Gate.LockTTL = getEnvDuration("GATE_LOCK_TTL", cfg.Gate.LockTTL)
	cfg.Gate.SweepInterval = getEnvDuration("GATE_SWEEP_INTERVAL", cfg.Gate.SweepInterval)

	cfg.Retry.MaxRetries = getEnvInt("RETRY_MAX", cfg.Retry.MaxRetries)
	cfg.Retry.BaseDelay = getEnvDuration("RETRY_BASE_DELAY", cfg.Retry.BaseDelay)
	cfg.Retry.MaxDelay = getEnvDuration("RETRY_MAX_DELAY", cfg.Retry.MaxDelay)
	cfg.Retry.Multiplier = getEnvFloat("RETRY_MULTIPLIER", cfg.Retry.Multiplier)

	cfg.Logger.Level = getEnvString("LOG_LEVEL", cfg.Logger.Level)
	cfg.Logger.Format = getEnvString("LOG_FORMAT", cfg.Logger.Format)
	cfg.Logger.SaveToDB = getEnvBool("LOG_SAVE_DB", cfg.Logger.SaveToDB)
}

// loadEnvSecrets fills credentials from the environment. Always applied.
func loadEnvSecrets(cfg *Config) {
	cfg.Discord.BotToken = os.Getenv("BOT_TOKEN")
	cfg.Discord.AppID = os.Getenv("APP_ID")
	cfg.Discord.PublicKey = os.Getenv("PUBLIC_KEY")
	cfg.Discord.GuildID = os.Getenv("GUILD_ID")

	cfg.Spotify.ClientID = os.Getenv("SPOTIFY_CLIENT_ID")
	cfg.Spotify.ClientSecret = os.Getenv("SPOTIFY_CLIENT_SECRET")

	cfg.Database.URL = os.Getenv("DATABASE_URL")
}

// setDefaults sets the built-in default values
func setDefaults(cfg *Config) {
	cfg.Database.ConnectTimeout = 5 * time.Second
	cfg.Database.ConnMaxIdle = 30 * time.Second

	cfg.HTTP.Addr = ":8080"

	cfg.Audio = AudioConfig{
		FFmpegBinary:         "ffmpeg",
		YtDlpBinary:          "yt-dlp",
		AudioFormat:          "s16le",
		SampleRate:           48000,
		Channels:             2,
		OpusBitrate:          128000,
		OpusFrameSize:        960,
		ResolveTimeout:       30 * time.Second,
		DecodeTimeout:        2 * time.Minute,
		PlaylistTitleTimeout: 15 * time.Second,
		PlaylistItemsTimeout: 45 * time.Second,
		SpotifyTimeout:       30 * time.Second,
		ProcessCapPerGuild:   2,
		TempDir:              os.TempDir(),
	}

	cfg.Session = SessionConfig{
		QueueCap:          3,
		HistoryCap:        10,
		RefillBatch:       3,
		MaxPlaylistTracks: 100,
		UIDebounce:        100 * time.Millisecond,
	}

	cfg.Gate = GateConfig{
		RateWindow:    10 * time.Second,
		RateLimit:     10,
		DeferredCap:   16,
		DeferredTTL:   60 * time.Second,
		LockTTL:       5 * time.Minute,
		SweepInterval: 30 * time.Second,
	}

	cfg.Retry = RetryConfig{
		MaxRetries: 3,
		BaseDelay:  2 * time.Second,
		MaxDelay:   30 * time.Second,
		Multiplier: 2.0,
	}

	cfg.Logger = LoggerConfig{
		Level:    "info",
		Format:   "json",
		SaveToDB: true,
	}
}

// Validate checks the configuration for fatal misconfiguration
func (c *Config) Validate() error {
	if c.Discord.BotToken == "" {
		return fmt.Errorf("BOT_TOKEN is required")
	}
	if c.Discord.AppID == "" {
		return fmt.Errorf("APP_ID is required")
	}
	if c.Discord.PublicKey == "" {
		return fmt.Errorf("PUBLIC_KEY is required")
	}
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Audio.FFmpegBinary == "" {
		return fmt.Errorf("audio ffmpeg_binary cannot be empty")
	}
	if c.Audio.YtDlpBinary == "" {
		return fmt.Errorf("audio ytdlp_binary cannot be empty")
	}
	if !isValidAudioFormat(c.Audio.AudioFormat) {
		return fmt.Errorf("invalid audio format: %s", c.Audio.AudioFormat)
	}
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.Channels <= 0 {
		return fmt.Errorf("audio channels must be positive, got %d", c.Audio.Channels)
	}
	if c.Audio.OpusBitrate <= 0 {
		return fmt.Errorf("audio opus_bitrate must be positive, got %d", c.Audio.OpusBitrate)
	}
	if c.Audio.OpusFrameSize <= 0 {
		return fmt.Errorf("audio opus_frame_size must be positive, got %d", c.Audio.OpusFrameSize)
	}
	if c.Audio.ProcessCapPerGuild <= 0 {
		return fmt.Errorf("audio process_cap_per_guild must be positive, got %d", c.Audio.ProcessCapPerGuild)
	}

	if c.Session.QueueCap < 1 {
		return fmt.Errorf("session queue_cap must be at least 1, got %d", c.Session.QueueCap)
	}
	if c.Session.HistoryCap < 0 {
		return fmt.Errorf("session history_cap must be non-negative, got %d", c.Session.HistoryCap)
	}
	if c.Session.RefillBatch < 1 {
		return fmt.Errorf("session refill_batch must be at least 1, got %d", c.Session.RefillBatch)
	}
	if c.Session.UIDebounce < 0 {
		return fmt.Errorf("session ui_debounce_ms must be non-negative, got %v", c.Session.UIDebounce)
	}

	if c.Gate.RateLimit < 1 {
		return fmt.Errorf("gate rate_limit must be at least 1, got %d", c.Gate.RateLimit)
	}
	if c.Gate.RateWindow <= 0 {
		return fmt.Errorf("gate rate_window must be positive, got %v", c.Gate.RateWindow)
	}
	if c.Gate.DeferredCap < 1 {
		return fmt.Errorf("gate deferred_cap must be at least 1, got %d", c.Gate.DeferredCap)
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry max_retries must be non-negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.Multiplier <= 1.0 {
		return fmt.Errorf("retry multiplier must be greater than 1.0, got %f", c.Retry.Multiplier)
	}

	if !isValidLogLevel(c.Logger.Level) {
		return fmt.Errorf("invalid logger level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}
	if !isValidLogFormat(c.Logger.Format) {
		return fmt.Errorf("invalid logger format: %s (must be json or text)", c.Logger.Format)
	}

	return nil
}

// HasSpotify reports whether Spotify credentials are configured. Without
// them, spotify intents are rejected at resolution time.
func (c *Config) HasSpotify() bool {
	return c.Spotify.ClientID != "" && c.Spotify.ClientSecret != ""
}

// Helper functions for environment variable parsing
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validation helpers
func isValidLogLevel(level string) bool {
	switch strings.ToLower(level) {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}

func isValidLogFormat(format string) bool {
	switch strings.ToLower(format) {
	case "json", "text":
		return true
	}
	return false
}

func isValidAudioFormat(format string) bool {
	switch strings.ToLower(format) {
	case "s16le", "s16be", "s32le", "s32be", "f32le", "f32be":
		return true
	}
	return false
}
