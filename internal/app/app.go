// Package app wires the portal services from the loaded configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"mcportal/internal/access"
	"mcportal/internal/api"
	"mcportal/internal/applications"
	"mcportal/internal/audit"
	"mcportal/internal/calendar"
	"mcportal/internal/config"
	"mcportal/internal/database"
	"mcportal/internal/discord"
	"mcportal/internal/documents"
	"mcportal/internal/events"
	"mcportal/internal/mojang"
	"mcportal/internal/notify"
	"mcportal/internal/session"
	"mcportal/internal/status"
	"mcportal/internal/tickets"
	"mcportal/internal/uploads"
	"mcportal/internal/users"
	"mcportal/internal/whitelist"
)

// App holds the database, optional Redis client and every service.
type App struct {
	Config *config.Config
	Logger zerolog.Logger

	DB    *database.DB
	Redis *redis.Client
	Bus   *events.EventBus

	Access       *access.Service
	Sessions     *session.Manager
	Users        *users.Service
	Applications *applications.Service
	Tickets      *tickets.Service
	Documents    *documents.Service
	Calendar     *calendar.Service
	Status       *status.Service
	Whitelist    *whitelist.Poller
	Exporter     *audit.Exporter
	Uploads      *uploads.Store
	Discord      *discord.Client
	Backup       *database.BackupService

	memSessions *session.MemoryStore
}

// NewLogger builds the process logger: console output when configured,
// JSON otherwise.
func NewLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	if cfg.Logging.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, err := zerolog.ParseLevel(cfg.Logging.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).Level(level).With().Timestamp().Logger()
}

// New opens the database, connects Redis when configured and builds the
// services. Close releases both.
func New(cfg *config.Config, logger zerolog.Logger) (*App, error) {
	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &App{Config: cfg, Logger: logger, DB: db, Bus: events.NewEventBus(logger)}

	if cfg.Redis.Address != "" {
		a.Redis = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	a.Uploads, err = uploads.NewStore(cfg.Uploads.Dir, cfg.MaxUploadBytes(), logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("prepare uploads: %w", err)
	}

	a.memSessions = session.NewMemoryStore()
	var sessions session.Store = a.memSessions
	if a.Redis != nil {
		sessions = session.NewFailoverStore(session.NewRedisStore(a.Redis), sessions, &logger)
	}
	a.Sessions = session.NewManager(sessions, cfg.Session.CookieName, cfg.SessionTTL(), cfg.Session.Secure, logger)

	lookup := mojang.NewClient(mojang.Endpoints{
		Mojang:   cfg.Mojang.MojangURL,
		Ashcon:   cfg.Mojang.AshconURL,
		PlayerDB: cfg.Mojang.PlayerDBURL,
	}, cfg.MojangTimeout(), logger)
	if a.Redis != nil && cfg.MojangCacheTTL() > 0 {
		lookup.UseRedisCache(a.Redis, cfg.MojangCacheTTL())
	}

	a.Discord = discord.NewClient(cfg.Discord.APIBaseURL, discord.SettingsCredentials{
		Store: db,
		Defaults: discord.Credentials{
			BotToken:          cfg.Discord.BotToken,
			GuildID:           cfg.Discord.GuildID,
			FallbackChannelID: cfg.Discord.FallbackChannelID,
		},
	}, cfg.Discord.RatePerSecond, cfg.Discord.Burst, logger)
	notify.NewService(a.Discord, db, cfg.Server.BaseURL, time.Now, logger).Register(a.Bus)

	a.Access = access.NewService(db, logger)
	a.Users = users.NewService(db, logger)
	a.Applications = applications.NewService(db, lookup, a.Users, a.Bus, logger)
	a.Tickets = tickets.NewService(db, a.Bus, logger)
	a.Documents = documents.NewService(db, a.Uploads, a.Bus, logger)
	a.Calendar = calendar.NewService(db, cfg.Location(), logger)
	a.Status = status.NewService(db, status.PingProber{Timeout: cfg.ProbeTimeout()}, logger)
	a.Whitelist = whitelist.NewPoller(db, a.Bus, cfg.Whitelist.Path, logger)
	a.Exporter = audit.NewExporter(db, cfg.Location(), logger)
	a.Backup = database.NewBackupService(db, cfg.Backup, &logger)
	return a, nil
}

// APIDeps hands the services to the HTTP layer.
func (a *App) APIDeps() api.Deps {
	return api.Deps{
		Store:        a.DB,
		Access:       a.Access,
		Sessions:     a.Sessions,
		Users:        a.Users,
		Applications: a.Applications,
		Tickets:      a.Tickets,
		Documents:    a.Documents,
		Calendar:     a.Calendar,
		Status:       a.Status,
		Whitelist:    a.Whitelist,
		Exporter:     a.Exporter,
		Uploads:      a.Uploads,
		Bus:          a.Bus,
	}
}

// SyncServers loads servers.yaml once into the database. A missing file is
// not an error.
func (a *App) SyncServers(ctx context.Context) error {
	if a.Config.ServersFile == "" {
		return nil
	}
	if _, err := os.Stat(a.Config.ServersFile); os.IsNotExist(err) {
		a.Logger.Info().Str("path", a.Config.ServersFile).Msg("no servers file")
		return nil
	}
	cfg, err := config.LoadServersConfig(a.Config.ServersFile)
	if err != nil {
		return err
	}
	return a.DB.SyncServersFromConfig(ctx, cfg)
}

// Ready pings the database and, if configured, Redis.
func (a *App) Ready(ctx context.Context) error {
	if err := a.DB.PingContext(ctx); err != nil {
		return fmt.Errorf("db not ready: %w", err)
	}
	if a.Redis != nil {
		if err := a.Redis.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis not ready: %w", err)
		}
	}
	return nil
}

// PurgeSessions drops expired sessions from the in-memory store.
func (a *App) PurgeSessions() int {
	return a.memSessions.Purge()
}

func (a *App) Close() error {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	return a.DB.Close()
}
