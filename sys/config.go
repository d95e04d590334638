package sys

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	MsgConfigFailedToLoad   = "Failed to load config: %v"
	MsgConfigMissingToken   = "DISCORD_TOKEN is not set in .env file"
	MsgConfigInvalidGuildID = "invalid GUILD_ID: must be a valid Snowflake"
	MsgConfigInvalidValue   = "invalid %s: %v"

	// Environment Variables
	EnvDiscordToken    = "DISCORD_TOKEN"
	EnvGuildID         = "GUILD_ID"
	EnvSilent          = "SILENT"
	EnvDebug           = "DEBUG"
	EnvDatabasePath    = "DATABASE_PATH"
	EnvYtdlpPath       = "YTDLP_PATH"
	EnvFFmpegPath      = "FFMPEG_PATH"
	EnvYoutubeProxy    = "YOUTUBE_PROXY"
	EnvResolveTimeout  = "RESOLVE_TIMEOUT"
	EnvPlaylistTimeout = "PLAYLIST_TIMEOUT"
	EnvPlaylistLimit   = "PLAYLIST_LIMIT"
	EnvSettleDelay     = "SETTLE_DELAY"
	EnvResolveRate     = "RESOLVE_RATE"
	EnvResolveBurst    = "RESOLVE_BURST"
	EnvOpusBitrate     = "OPUS_BITRATE"
)

type Config struct {
	Token        string
	GuildID      string
	DatabasePath string
	Silent       bool

	// Audio pipeline
	YtdlpPath       string
	FFmpegPath      string
	YoutubeProxy    string
	ResolveTimeout  time.Duration
	PlaylistTimeout time.Duration
	PlaylistLimit   int
	SettleDelay     time.Duration
	ResolveRate     float64
	ResolveBurst    int
	OpusBitrate     int64
}

var GlobalConfig *Config

// DefaultConfig returns the pipeline defaults without reading the environment.
func DefaultConfig() *Config {
	return &Config{
		DatabasePath:    filepath.Join(".", GetProjectName()+".db"),
		YtdlpPath:       "yt-dlp",
		FFmpegPath:      "ffmpeg",
		ResolveTimeout:  15 * time.Second,
		PlaylistTimeout: 30 * time.Second,
		PlaylistLimit:   100,
		SettleDelay:     300 * time.Millisecond,
		ResolveRate:     2,
		ResolveBurst:    4,
		OpusBitrate:     128000,
	}
}

// LoadConfig initializes the configuration from environment variables.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	cfg.Token = os.Getenv(EnvDiscordToken)
	cfg.GuildID = strings.TrimSpace(os.Getenv(EnvGuildID))
	cfg.Silent, _ = strconv.ParseBool(os.Getenv(EnvSilent))
	cfg.YoutubeProxy = os.Getenv(EnvYoutubeProxy)

	if v := os.Getenv(EnvDatabasePath); v != "" {
		cfg.DatabasePath = v
	}
	if v := os.Getenv(EnvYtdlpPath); v != "" {
		cfg.YtdlpPath = v
	}
	if v := os.Getenv(EnvFFmpegPath); v != "" {
		cfg.FFmpegPath = v
	}

	var err error
	if cfg.ResolveTimeout, err = envDuration(EnvResolveTimeout, cfg.ResolveTimeout); err != nil {
		return nil, err
	}
	if cfg.PlaylistTimeout, err = envDuration(EnvPlaylistTimeout, cfg.PlaylistTimeout); err != nil {
		return nil, err
	}
	if cfg.SettleDelay, err = envDuration(EnvSettleDelay, cfg.SettleDelay); err != nil {
		return nil, err
	}

	if v := os.Getenv(EnvPlaylistLimit); v != "" {
		if cfg.PlaylistLimit, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, EnvPlaylistLimit, err)
		}
	}
	if v := os.Getenv(EnvResolveRate); v != "" {
		if cfg.ResolveRate, err = strconv.ParseFloat(v, 64); err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, EnvResolveRate, err)
		}
	}
	if v := os.Getenv(EnvResolveBurst); v != "" {
		if cfg.ResolveBurst, err = strconv.Atoi(v); err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, EnvResolveBurst, err)
		}
	}
	if v := os.Getenv(EnvOpusBitrate); v != "" {
		if cfg.OpusBitrate, err = strconv.ParseInt(v, 10, 64); err != nil {
			return nil, fmt.Errorf(MsgConfigInvalidValue, EnvOpusBitrate, err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Silent {
		SetSilentMode(true)
	}

	GlobalConfig = cfg
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Token == "" {
		return fmt.Errorf(MsgConfigMissingToken)
	}
	if c.GuildID != "" && (len(c.GuildID) < 17 || len(c.GuildID) > 20) {
		return fmt.Errorf(MsgConfigInvalidGuildID)
	}
	if c.PlaylistLimit <= 0 {
		return fmt.Errorf(MsgConfigInvalidValue, EnvPlaylistLimit, c.PlaylistLimit)
	}
	if c.ResolveRate <= 0 || c.ResolveBurst <= 0 {
		return fmt.Errorf(MsgConfigInvalidValue, EnvResolveRate, c.ResolveRate)
	}
	if c.SettleDelay < 0 {
		return fmt.Errorf(MsgConfigInvalidValue, EnvSettleDelay, c.SettleDelay)
	}
	return nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf(MsgConfigInvalidValue, key, err)
	}
	return d, nil
}

func GetProjectName() string {
	exePath, err := os.Executable()
	projectName := "vibestream"
	if err == nil {
		projectName = strings.TrimSuffix(filepath.Base(exePath), ".exe")

		if projectName == "main" || strings.HasPrefix(projectName, "go_build_") || strings.HasSuffix(projectName, ".test") {
			projectName = "vibestream"
			if modData, err := os.ReadFile("go.mod"); err == nil {
				lines := strings.Split(string(modData), "\n")
				if len(lines) > 0 && strings.HasPrefix(lines[0], "module ") {
					parts := strings.Split(lines[0], "/")
					projectName = strings.TrimSpace(parts[len(parts)-1])
				}
			}
		}
	}
	return projectName
}
