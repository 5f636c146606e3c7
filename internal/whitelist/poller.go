// Package whitelist watches the server whitelist file and greets newly
// whitelisted players on Discord.
package whitelist

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"mcportal/internal/events"
	"mcportal/internal/metrics"
	"mcportal/internal/models"
)

// Entry is one element of whitelist.json.
type Entry struct {
	UUID string `json:"uuid"`
	Name string `json:"name"`
}

// Repository is the storage used by Poller. *database.DB implements it.
type Repository interface {
	LoadSiteSettings(ctx context.Context) (models.SiteSettings, error)
	MarkWhitelistSeen(ctx context.Context, uuid string) (bool, error)
	FindDiscordNameForPlayer(ctx context.Context, uuid, name string) (string, error)
}

// Publisher is the event bus.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) int
}

// Poller compares the whitelist with the players seen so far.
type Poller struct {
	repo        Repository
	bus         Publisher
	defaultPath string
	logger      zerolog.Logger

	mu sync.Mutex
}

func NewPoller(repo Repository, bus Publisher, defaultPath string, logger zerolog.Logger) *Poller {
	return &Poller{
		repo:        repo,
		bus:         bus,
		defaultPath: defaultPath,
		logger:      logger.With().Str("component", "whitelist").Logger(),
	}
}

// NormalizeUUID trims, strips dashes and lower-cases a UUID.
func NormalizeUUID(u string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(u), "-", ""))
}

func (p *Poller) path(ctx context.Context) string {
	st, err := p.repo.LoadSiteSettings(ctx)
	if err == nil && st.WhitelistPath != "" {
		return st.WhitelistPath
	}
	return p.defaultPath
}

// Check reads the whitelist once and returns how many players were
// notified. An unreadable or malformed file notifies nobody.
func (p *Poller) Check(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	path := p.path(ctx)
	if path == "" {
		p.logger.Debug().Msg("no whitelist path configured")
		return 0, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		p.logger.Warn().Err(err).Str("path", path).Msg("whitelist not readable")
		return 0, nil
	}
	var entries []Entry
	if err := json.Unmarshal(raw, &entries); err != nil {
		p.logger.Warn().Err(err).Str("path", path).Msg("invalid whitelist json")
		return 0, nil
	}

	notified := 0
	for _, e := range entries {
		uuid := NormalizeUUID(e.UUID)
		name := strings.TrimSpace(e.Name)
		if uuid == "" || name == "" {
			continue
		}
		fresh, err := p.repo.MarkWhitelistSeen(ctx, uuid)
		if err != nil {
			return notified, fmt.Errorf("mark %s: %w", name, err)
		}
		if !fresh {
			continue
		}
		discord, err := p.repo.FindDiscordNameForPlayer(ctx, uuid, name)
		if err != nil {
			p.logger.Error().Err(err).Str("player", name).Msg("discord lookup failed")
			continue
		}
		if discord == "" {
			p.logger.Info().Str("player", name).Msg("whitelisted player without discord name")
			continue
		}
		p.bus.Publish(ctx, events.Event{Type: events.WhitelistAdded, Payload: events.WhitelistAddedPayload{
			PlayerName:  name,
			DiscordName: discord,
		}})
		notified++
	}

	metrics.AddWhitelistNotified(notified)
	if notified > 0 {
		p.logger.Info().Int("notified", notified).Msg("whitelist check done")
	}
	return notified, nil
}

// Schedule registers the periodic check on c.
func (p *Poller) Schedule(c *cron.Cron, spec string) error {
	_, err := c.AddFunc(spec, func() {
		if _, err := p.Check(context.Background()); err != nil {
			p.logger.Error().Err(err).Msg("scheduled whitelist check failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid whitelist schedule %q: %w", spec, err)
	}
	p.logger.Info().Str("schedule", spec).Msg("whitelist check scheduled")
	return nil
}
