// Package mojang resolves Minecraft Java account names to UUIDs.
package mojang

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Status is the outcome of a lookup.
type Status string

const (
	StatusOK       Status = "ok"
	StatusNotFound Status = "not_found"
	StatusError    Status = "error"
)

// Result is a lookup outcome. UUID is 32 lower-case hex digits when Status is ok.
type Result struct {
	Status Status `json:"status"`
	UUID   string `json:"uuid,omitempty"`
}

var hex32 = regexp.MustCompile(`^[0-9a-f]{32}$`)

// Endpoints are the base URLs of the three providers; the name is appended.
type Endpoints struct {
	Mojang   string
	Ashcon   string
	PlayerDB string
}

// Client queries Mojang, then Ashcon, then PlayerDB until one gives a
// definitive answer.
type Client struct {
	endpoints  Endpoints
	httpClient *http.Client
	logger     zerolog.Logger

	redis    *redis.Client
	cacheTTL time.Duration
}

// NewClient creates a lookup client with a per-request timeout.
func NewClient(endpoints Endpoints, timeout time.Duration, logger zerolog.Logger) *Client {
	if timeout <= 0 {
		timeout = 4 * time.Second
	}
	return &Client{
		endpoints:  endpoints,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger.With().Str("component", "mojang").Logger(),
	}
}

// UseRedisCache caches definitive results (ok, not_found) for ttl.
func (c *Client) UseRedisCache(redisClient *redis.Client, ttl time.Duration) {
	c.redis = redisClient
	c.cacheTTL = ttl
}

type provider struct {
	name  string
	base  string
	parse func(code int, body []byte) (Result, bool)
}

// Lookup resolves name. Transport failures of one provider fall through to
// the next; StatusError means no provider could answer.
func (c *Client) Lookup(ctx context.Context, name string) Result {
	cacheKey := "mojang:uuid:" + strings.ToLower(name)
	var cached Result
	if c.readCache(ctx, cacheKey, &cached) {
		return cached
	}

	providers := []provider{
		{"mojang", c.endpoints.Mojang, parseMojang},
		{"ashcon", c.endpoints.Ashcon, parseAshcon},
		{"playerdb", c.endpoints.PlayerDB, parsePlayerDB},
	}
	for _, p := range providers {
		if p.base == "" {
			continue
		}
		code, body, err := c.get(ctx, p.base+url.PathEscape(name))
		if err != nil {
			c.logger.Warn().Err(err).Str("provider", p.name).Str("name", name).Msg("lookup failed")
			continue
		}
		if res, ok := p.parse(code, body); ok {
			c.writeCache(ctx, cacheKey, res)
			return res
		}
	}
	return Result{Status: StatusError}
}

func parseMojang(code int, body []byte) (Result, bool) {
	switch code {
	case http.StatusOK:
		var j struct {
			ID string `json:"id"`
		}
		if json.Unmarshal(body, &j) == nil {
			if id := strings.ToLower(j.ID); hex32.MatchString(id) {
				return Result{Status: StatusOK, UUID: id}, true
			}
		}
	case http.StatusNoContent, http.StatusNotFound:
		return Result{Status: StatusNotFound}, true
	}
	return Result{}, false
}

func parseAshcon(code int, body []byte) (Result, bool) {
	switch code {
	case http.StatusOK:
		var j struct {
			UUID string `json:"uuid"`
		}
		if json.Unmarshal(body, &j) == nil {
			if id := normalize(j.UUID); hex32.MatchString(id) {
				return Result{Status: StatusOK, UUID: id}, true
			}
		}
	case http.StatusNotFound:
		return Result{Status: StatusNotFound}, true
	}
	return Result{}, false
}

func parsePlayerDB(code int, body []byte) (Result, bool) {
	if code != http.StatusOK {
		return Result{}, false
	}
	var j struct {
		Success bool   `json:"success"`
		Code    string `json:"code"`
		Data    struct {
			Player struct {
				ID string `json:"id"`
			} `json:"player"`
		} `json:"data"`
	}
	if json.Unmarshal(body, &j) != nil {
		return Result{}, false
	}
	if j.Success || j.Code == "player.found" {
		if id := normalize(j.Data.Player.ID); hex32.MatchString(id) {
			return Result{Status: StatusOK, UUID: id}, true
		}
		return Result{}, false
	}
	if j.Code == "player.missing" {
		return Result{Status: StatusNotFound}, true
	}
	return Result{}, false
}

// normalize lower-cases a UUID and removes dashes.
func normalize(id string) string {
	return strings.ToLower(strings.ReplaceAll(strings.TrimSpace(id), "-", ""))
}

func (c *Client) get(ctx context.Context, endpoint string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "mcportal/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, fmt.Errorf("read body: %w", err)
	}
	return resp.StatusCode, body, nil
}

func (c *Client) readCache(ctx context.Context, key string, out any) bool {
	if c.redis == nil || c.cacheTTL <= 0 {
		return false
	}
	val, err := c.redis.Get(ctx, key).Result()
	if err != nil {
		return false
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false
	}
	return true
}

func (c *Client) writeCache(ctx context.Context, key string, val any) {
	if c.redis == nil || c.cacheTTL <= 0 {
		return
	}
	data, err := json.Marshal(val)
	if err != nil {
		return
	}
	_ = c.redis.Set(ctx, key, data, c.cacheTTL).Err()
}
