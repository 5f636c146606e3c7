// Package status serves Minecraft server status through a persisted TTL cache.
package status

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"mcportal/internal/mcping"
	"mcportal/internal/metrics"
	"mcportal/internal/models"
)

// Result is what the dashboard shows for one server.
type Result struct {
	ServerID      int64    `json:"id"`
	Online        bool     `json:"online"`
	PlayersOnline *int     `json:"players_online"`
	PlayersMax    *int     `json:"players_max"`
	Version       *string  `json:"version"`
	LatencyMS     *float64 `json:"latency_ms"`
	Cached        bool     `json:"cached"`
}

// Repository persists the last probe result per server.
type Repository interface {
	GetStatusSnapshot(ctx context.Context, serverID int64) (*models.StatusSnapshot, error)
	UpsertStatusSnapshot(ctx context.Context, snap *models.StatusSnapshot) error
}

// Prober queries a live server.
type Prober interface {
	Probe(ctx context.Context, host string, port int) (*mcping.Response, error)
}

// PingProber probes with the server list ping protocol.
type PingProber struct {
	Timeout time.Duration
}

// Probe implements Prober.
func (p PingProber) Probe(ctx context.Context, host string, port int) (*mcping.Response, error) {
	return mcping.Ping(ctx, host, port, p.Timeout)
}

// Service answers status queries from the cache, probing when stale.
type Service struct {
	repo   Repository
	prober Prober
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates a status service.
func NewService(repo Repository, prober Prober, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		prober: prober,
		now:    time.Now,
		logger: logger.With().Str("component", "status").Logger(),
	}
}

// WithClock replaces the time source.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Get returns the cached snapshot when it is at most ttl old, otherwise probes
// and stores the outcome. Probe failures are reported as offline.
func (s *Service) Get(ctx context.Context, serverID int64, host string, port int, ttl time.Duration) Result {
	now := s.now()

	snap, err := s.repo.GetStatusSnapshot(ctx, serverID)
	switch {
	case err == nil && snap != nil && now.Sub(snap.CheckedAt) <= ttl:
		metrics.IncStatusCache("hit")
		res := fromSnapshot(snap)
		res.Cached = true
		return res
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		s.logger.Warn().Err(err).Int64("server_id", serverID).Msg("read status cache")
	}
	metrics.IncStatusCache("miss")

	fresh := &models.StatusSnapshot{ServerID: serverID, CheckedAt: now}
	resp, err := s.prober.Probe(ctx, host, port)
	if err != nil {
		metrics.IncStatusProbe("offline")
		s.logger.Debug().Err(err).Int64("server_id", serverID).Str("host", host).Int("port", port).Msg("server offline")
	} else {
		metrics.IncStatusProbe("online")
		metrics.ObserveProbeLatency(resp.LatencyMS)
		latency := resp.LatencyMS
		fresh.Online = true
		fresh.PlayersOnline = resp.PlayersOnline
		fresh.PlayersMax = resp.PlayersMax
		fresh.Version = resp.Version
		fresh.LatencyMS = &latency
		fresh.RawJSON = resp.Raw
	}

	if err := s.repo.UpsertStatusSnapshot(ctx, fresh); err != nil {
		s.logger.Error().Err(err).Int64("server_id", serverID).Msg("write status cache")
	}
	return fromSnapshot(fresh)
}

// ServerRef identifies a server to check.
type ServerRef struct {
	ID   int64
	Host string
	Port int
}

// GetAll checks the given servers in order.
func (s *Service) GetAll(ctx context.Context, servers []ServerRef, ttl time.Duration) []Result {
	out := make([]Result, 0, len(servers))
	for _, srv := range servers {
		out = append(out, s.Get(ctx, srv.ID, srv.Host, srv.Port, ttl))
	}
	return out
}

func fromSnapshot(snap *models.StatusSnapshot) Result {
	return Result{
		ServerID:      snap.ServerID,
		Online:        snap.Online,
		PlayersOnline: snap.PlayersOnline,
		PlayersMax:    snap.PlayersMax,
		Version:       snap.Version,
		LatencyMS:     snap.LatencyMS,
	}
}
