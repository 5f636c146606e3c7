package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// BackupConfig controls scheduled SQLite snapshots.
type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	StoragePath   string `yaml:"path"`
	RetentionDays int    `yaml:"retention_days"`
}

type Config struct {
	Server struct {
		Address             string `yaml:"address"`
		BaseURL             string `yaml:"base_url"`
		ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
		WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
		// TrustedProxies lists reverse proxy addresses or CIDRs whose
		// X-Forwarded-For header is believed. Empty means none.
		TrustedProxies []string `yaml:"trusted_proxies"`
	} `yaml:"server"`

	Logging struct {
		Level   string `yaml:"level"`
		Console bool   `yaml:"console"`
	} `yaml:"logging"`

	Database struct {
		Path string `yaml:"path"`
	} `yaml:"database"`

	Backup BackupConfig `yaml:"backup"`

	Uploads struct {
		Dir         string `yaml:"dir"`
		MaxUploadMB int    `yaml:"max_upload_mb"`
	} `yaml:"uploads"`

	Session struct {
		CookieName string `yaml:"cookie_name"`
		TTLHours   int    `yaml:"ttl_hours"`
		Secure     bool   `yaml:"secure"`
	} `yaml:"session"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Status struct {
		PageTTLSeconds int `yaml:"page_ttl_seconds"`
		PollTTLSeconds int `yaml:"poll_ttl_seconds"`
		ProbeTimeoutMS int `yaml:"probe_timeout_ms"`
	} `yaml:"status"`

	Discord struct {
		APIBaseURL        string  `yaml:"api_base_url"`
		BotToken          string  `yaml:"bot_token"`
		GuildID           string  `yaml:"guild_id"`
		FallbackChannelID string  `yaml:"fallback_channel_id"`
		RatePerSecond     float64 `yaml:"rate_per_second"`
		Burst             int     `yaml:"burst"`
	} `yaml:"discord"`

	Mojang struct {
		MojangURL       string `yaml:"mojang_url"`
		AshconURL       string `yaml:"ashcon_url"`
		PlayerDBURL     string `yaml:"playerdb_url"`
		TimeoutSeconds  int    `yaml:"timeout_seconds"`
		CacheTTLMinutes int    `yaml:"cache_ttl_minutes"`
	} `yaml:"mojang"`

	Whitelist struct {
		Path     string `yaml:"path"`
		Schedule string `yaml:"schedule"`
	} `yaml:"whitelist"`

	Calendar struct {
		Timezone string `yaml:"timezone"`
	} `yaml:"calendar"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	ServersFile string `yaml:"servers_file"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	if err = os.MkdirAll(filepath.Dir(cfg.Database.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	c.Server.BaseURL = strings.TrimRight(c.Server.BaseURL, "/")
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/portal.db"
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "data/backups"
	}
	if c.Backup.Schedule == "" {
		c.Backup.Schedule = "@daily"
	}
	if c.Uploads.Dir == "" {
		c.Uploads.Dir = "data/uploads"
	}
	if c.Uploads.MaxUploadMB <= 0 {
		c.Uploads.MaxUploadMB = 32
	}
	if c.Session.CookieName == "" {
		c.Session.CookieName = "portal_session"
	}
	if c.Status.PageTTLSeconds <= 0 {
		c.Status.PageTTLSeconds = 30
	}
	if c.Status.PollTTLSeconds <= 0 {
		c.Status.PollTTLSeconds = 1
	}
	if c.Status.ProbeTimeoutMS <= 0 {
		c.Status.ProbeTimeoutMS = 1500
	}
	if c.Discord.APIBaseURL == "" {
		c.Discord.APIBaseURL = "https://discord.com/api/v10"
	}
	if c.Discord.RatePerSecond <= 0 {
		c.Discord.RatePerSecond = 5
	}
	if c.Discord.Burst <= 0 {
		c.Discord.Burst = 5
	}
	if c.Mojang.MojangURL == "" {
		c.Mojang.MojangURL = "https://api.mojang.com/users/profiles/minecraft/"
	}
	if c.Mojang.AshconURL == "" {
		c.Mojang.AshconURL = "https://api.ashcon.app/mojang/v2/user/"
	}
	if c.Mojang.PlayerDBURL == "" {
		c.Mojang.PlayerDBURL = "https://playerdb.co/api/player/minecraft/"
	}
	if c.Whitelist.Schedule == "" {
		c.Whitelist.Schedule = "@every 1m"
	}
	if c.Calendar.Timezone == "" {
		c.Calendar.Timezone = "UTC"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
}

func (c *Config) SessionTTL() time.Duration {
	if c.Session.TTLHours <= 0 {
		return 7 * 24 * time.Hour
	}
	return time.Duration(c.Session.TTLHours) * time.Hour
}

func (c *Config) StatusPageTTL() time.Duration {
	return time.Duration(c.Status.PageTTLSeconds) * time.Second
}

func (c *Config) StatusPollTTL() time.Duration {
	return time.Duration(c.Status.PollTTLSeconds) * time.Second
}

func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Status.ProbeTimeoutMS) * time.Millisecond
}

func (c *Config) MojangTimeout() time.Duration {
	if c.Mojang.TimeoutSeconds <= 0 {
		return 4 * time.Second
	}
	return time.Duration(c.Mojang.TimeoutSeconds) * time.Second
}

func (c *Config) MojangCacheTTL() time.Duration {
	return time.Duration(c.Mojang.CacheTTLMinutes) * time.Minute
}

func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Uploads.MaxUploadMB) << 20
}

func (c *Config) ReadTimeout() time.Duration {
	if c.Server.ReadTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Server.ReadTimeoutSeconds) * time.Second
}

func (c *Config) WriteTimeout() time.Duration {
	if c.Server.WriteTimeoutSeconds <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.Server.WriteTimeoutSeconds) * time.Second
}

// Location resolves the calendar timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Calendar.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
