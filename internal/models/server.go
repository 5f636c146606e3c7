package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// DefaultServerPort is the standard Minecraft Java edition port.
const DefaultServerPort = 25565

// Server is a Minecraft server shown on the status dashboard.
type Server struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Host      string    `json:"host"`
	Port      int       `json:"port"`
	Enabled   bool      `json:"enabled"`
	SortOrder int       `json:"sort_order"`
	CreatedAt time.Time `json:"created_at"`
}

// NewServer validates a server row. A zero port falls back to 25565.
func NewServer(name, host string, port int) (*Server, error) {
	name = strings.TrimSpace(name)
	host = strings.TrimSpace(host)
	if name == "" || host == "" {
		return nil, fmt.Errorf("%w: name and host are required", ErrValidation)
	}
	if port == 0 {
		port = DefaultServerPort
	}
	if port < 1 || port > 65535 {
		return nil, fmt.Errorf("%w: port %d out of range", ErrValidation, port)
	}
	return &Server{Name: name, Host: host, Port: port, Enabled: true}, nil
}

// StatusSnapshot is the last probe result persisted per server.
type StatusSnapshot struct {
	ServerID      int64
	Online        bool
	PlayersOnline *int
	PlayersMax    *int
	Version       *string
	LatencyMS     *float64
	RawJSON       json.RawMessage
	CheckedAt     time.Time
}

// Setting keys stored in site_settings.
const (
	SettingApplyEnabled        = "apply_enabled"
	SettingApplyTitle          = "apply_title"
	SettingDiscordBotToken     = "discord_bot_token"
	SettingDiscordGuildID      = "discord_guild_id"
	SettingDiscordFallbackChan = "discord_fallback_channel_id"
	SettingWhitelistPath       = "whitelist_json_path"
)

// DefaultApplyTitle is used when no project title has been configured.
const DefaultApplyTitle = "Projekt-Anmeldung"

// SiteSettings is the typed view over site_settings.
type SiteSettings struct {
	ApplyEnabled      bool   `json:"apply_enabled"`
	ApplyTitle        string `json:"apply_title"`
	DiscordBotToken   string `json:"discord_bot_token"`
	DiscordGuildID    string `json:"discord_guild_id"`
	DiscordFallbackID string `json:"discord_fallback_channel_id"`
	WhitelistPath     string `json:"whitelist_json_path"`
}

// SettingsFromMap builds SiteSettings from raw key/value rows.
func SettingsFromMap(kv map[string]string) SiteSettings {
	s := SiteSettings{
		ApplyEnabled:      kv[SettingApplyEnabled] == "1",
		ApplyTitle:        strings.TrimSpace(kv[SettingApplyTitle]),
		DiscordBotToken:   strings.TrimSpace(kv[SettingDiscordBotToken]),
		DiscordGuildID:    strings.TrimSpace(kv[SettingDiscordGuildID]),
		DiscordFallbackID: strings.TrimSpace(kv[SettingDiscordFallbackChan]),
		WhitelistPath:     strings.TrimSpace(kv[SettingWhitelistPath]),
	}
	if s.ApplyTitle == "" {
		s.ApplyTitle = DefaultApplyTitle
	}
	return s
}

// ToMap is the inverse of SettingsFromMap.
func (s SiteSettings) ToMap() map[string]string {
	enabled := "0"
	if s.ApplyEnabled {
		enabled = "1"
	}
	return map[string]string{
		SettingApplyEnabled:        enabled,
		SettingApplyTitle:          s.ApplyTitle,
		SettingDiscordBotToken:     s.DiscordBotToken,
		SettingDiscordGuildID:      s.DiscordGuildID,
		SettingDiscordFallbackChan: s.DiscordFallbackID,
		SettingWhitelistPath:       s.WhitelistPath,
	}
}
