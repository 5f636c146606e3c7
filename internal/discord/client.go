// Package discord talks to the Discord REST API with a bot token.
package discord

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"mcportal/internal/metrics"
	"mcportal/internal/models"
)

// FallbackPrefix is put in front of messages that could not be delivered as DM.
const FallbackPrefix = "Benachrichtigung für **%s** (DM nicht möglich): "

var (
	ErrNotConfigured = errors.New("discord credentials not configured")
	ErrNoMember      = errors.New("no matching guild member")
)

// Credentials are the bot token and target ids.
type Credentials struct {
	BotToken          string
	GuildID           string
	FallbackChannelID string
}

// CredentialSource resolves the current credentials. They may change at runtime.
type CredentialSource interface {
	DiscordCredentials(ctx context.Context) (Credentials, error)
}

// SettingsStore is the part of the database the settings-backed source needs.
type SettingsStore interface {
	LoadSiteSettings(ctx context.Context) (models.SiteSettings, error)
}

// SettingsCredentials reads credentials from site settings, falling back to
// Defaults for every empty value.
type SettingsCredentials struct {
	Store    SettingsStore
	Defaults Credentials
}

// DiscordCredentials implements CredentialSource.
func (s SettingsCredentials) DiscordCredentials(ctx context.Context) (Credentials, error) {
	out := s.Defaults
	if s.Store == nil {
		return out, nil
	}
	settings, err := s.Store.LoadSiteSettings(ctx)
	if err != nil {
		return out, fmt.Errorf("load discord settings: %w", err)
	}
	if settings.DiscordBotToken != "" {
		out.BotToken = settings.DiscordBotToken
	}
	if settings.DiscordGuildID != "" {
		out.GuildID = settings.DiscordGuildID
	}
	if settings.DiscordFallbackID != "" {
		out.FallbackChannelID = settings.DiscordFallbackID
	}
	return out, nil
}

// Client is a minimal Discord REST v10 client.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	creds      CredentialSource
	logger     zerolog.Logger
}

// NewClient creates a client that paces requests to ratePerSecond with burst.
func NewClient(baseURL string, creds CredentialSource, ratePerSecond float64, burst int, logger zerolog.Logger) *Client {
	if burst <= 0 {
		burst = 1
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 8 * time.Second},
		limiter:    rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		creds:      creds,
		logger:     logger.With().Str("component", "discord").Logger(),
	}
}

type guildMember struct {
	Nick string `json:"nick"`
	User struct {
		ID         string `json:"id"`
		Username   string `json:"username"`
		GlobalName string `json:"global_name"`
	} `json:"user"`
}

// FindUserID searches the guild for name. An exact case-insensitive match on
// global name, username or nick wins; otherwise the first result is used.
func (c *Client) FindUserID(ctx context.Context, name string) (string, error) {
	creds, err := c.credentials(ctx)
	if err != nil {
		return "", err
	}
	if creds.GuildID == "" {
		return "", ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/guilds/%s/members/search?query=%s&limit=5",
		c.baseURL, url.PathEscape(creds.GuildID), url.QueryEscape(name))
	var members []guildMember
	if err := c.do(ctx, creds, http.MethodGet, endpoint, nil, &members); err != nil {
		return "", fmt.Errorf("member search: %w", err)
	}

	want := strings.ToLower(name)
	for _, m := range members {
		for _, cand := range []string{m.User.GlobalName, m.User.Username, m.Nick} {
			if cand != "" && strings.ToLower(cand) == want {
				return m.User.ID, nil
			}
		}
	}
	if len(members) > 0 && members[0].User.ID != "" {
		return members[0].User.ID, nil
	}
	return "", ErrNoMember
}

// SendDM opens a DM channel with userID and posts msg.
func (c *Client) SendDM(ctx context.Context, userID, msg string) error {
	creds, err := c.credentials(ctx)
	if err != nil {
		return err
	}

	var channel struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, creds, http.MethodPost, c.baseURL+"/users/@me/channels",
		map[string]string{"recipient_id": userID}, &channel); err != nil {
		return fmt.Errorf("open dm: %w", err)
	}
	if channel.ID == "" {
		return errors.New("open dm: empty channel id")
	}
	return c.postMessage(ctx, creds, channel.ID, msg)
}

// SendFallback posts msg to the fallback channel.
func (c *Client) SendFallback(ctx context.Context, msg string) error {
	creds, err := c.credentials(ctx)
	if err != nil {
		return err
	}
	if creds.FallbackChannelID == "" {
		return ErrNotConfigured
	}
	return c.postMessage(ctx, creds, creds.FallbackChannelID, msg)
}

// NotifyByName delivers msg as DM to the guild member called name, or to the
// fallback channel with a prefix naming the recipient. Without a bot token it
// does nothing.
func (c *Client) NotifyByName(ctx context.Context, name, msg string) error {
	creds, err := c.creds.DiscordCredentials(ctx)
	if err != nil {
		return err
	}
	if creds.BotToken == "" {
		c.logger.Info().Str("recipient", name).Msg("discord not configured, skipping notification")
		metrics.IncDiscord("dm", "skipped")
		return nil
	}

	userID, err := c.FindUserID(ctx, name)
	if err == nil {
		if err = c.SendDM(ctx, userID, msg); err == nil {
			metrics.IncDiscord("dm", "ok")
			return nil
		}
	}
	metrics.IncDiscord("dm", "error")
	c.logger.Warn().Err(err).Str("recipient", name).Msg("dm failed, using fallback channel")

	if err := c.SendFallback(ctx, fmt.Sprintf(FallbackPrefix, name)+msg); err != nil {
		metrics.IncDiscord("fallback", "error")
		return fmt.Errorf("notify %s: %w", name, err)
	}
	metrics.IncDiscord("fallback", "ok")
	return nil
}

func (c *Client) postMessage(ctx context.Context, creds Credentials, channelID, msg string) error {
	endpoint := fmt.Sprintf("%s/channels/%s/messages", c.baseURL, url.PathEscape(channelID))
	if err := c.do(ctx, creds, http.MethodPost, endpoint, map[string]string{"content": msg}, nil); err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	return nil
}

func (c *Client) credentials(ctx context.Context) (Credentials, error) {
	creds, err := c.creds.DiscordCredentials(ctx)
	if err != nil {
		return creds, err
	}
	if creds.BotToken == "" {
		return creds, ErrNotConfigured
	}
	return creds, nil
}

func (c *Client) do(ctx context.Context, creds Credentials, method, endpoint string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	var reader io.Reader = http.NoBody
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bot "+creds.BotToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
