// Package applications handles the public apply form and its admin review.
package applications

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"mcportal/internal/database"
	"mcportal/internal/events"
	"mcportal/internal/metrics"
	"mcportal/internal/models"
	"mcportal/internal/mojang"
	"mcportal/internal/users"
)

// GeneratedPasswordLength is the length of passwords handed to accepted applicants.
const GeneratedPasswordLength = 14

const youtubePrefix = "https://www.youtube.com/watch?"

// Problems reported back to the applicant.
const (
	ProblemYouTube       = "Der Link muss mit https://www.youtube.com/watch? beginnen und einen gültigen v-Parameter enthalten."
	ProblemMCName        = "Bitte gib einen gültigen Minecraft-Java-Namen an (3–16 Zeichen, A–Z, 0–9, _)."
	ProblemMCNotFound    = "Der angegebene Minecraft-Account existiert nicht."
	ProblemMCUnavailable = "Verifizierung des Minecraft-Accounts ist derzeit nicht möglich. Bitte später erneut versuchen."
	ProblemDiscord       = "Bitte gib deinen Discord-Namen an."
	ProblemDuplicate     = "Du hast dich bereits beworben. Doppelbewerbungen sind nicht erlaubt."
)

var (
	ErrClosed          = errors.New("applications are closed")
	ErrDuplicate       = errors.New("already applied")
	ErrNotFound        = errors.New("application not found")
	ErrNotShortlisted  = errors.New("application is not shortlisted")
	ErrUnknownDecision = errors.New("unknown decision")
)

var (
	videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)
	mcNamePattern  = regexp.MustCompile(`^[A-Za-z0-9_]{3,16}$`)
)

// Repository is the storage used by Service. *database.DB implements it.
type Repository interface {
	LoadSiteSettings(ctx context.Context) (models.SiteSettings, error)
	ApplicationTaken(ctx context.Context, mcName, discordName string) (bool, bool, error)
	CreateApplication(ctx context.Context, a *models.Application) (int64, error)
	GetApplication(ctx context.Context, id int64) (*models.Application, error)
	ListApplications(ctx context.Context, status models.ApplicationStatus) ([]models.Application, error)
	SetApplicationStatus(ctx context.Context, id int64, to models.ApplicationStatus, from ...models.ApplicationStatus) (bool, error)
	AcceptApplication(ctx context.Context, id int64, passwordHash, plainPassword string) (*models.Application, error)
	ReleaseApplication(ctx context.Context, id int64, status models.ApplicationStatus) (*models.Application, error)
	DeleteApplication(ctx context.Context, id int64) error
}

// UUIDLookup resolves Minecraft names. *mojang.Client implements it.
type UUIDLookup interface {
	Lookup(ctx context.Context, name string) mojang.Result
}

// PasswordHasher hashes generated passwords. *users.Service implements it.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
}

// Publisher is the event bus.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) int
}

// Form is the raw apply form input.
type Form struct {
	YouTubeURL  string `json:"youtube"`
	MCName      string `json:"mcname"`
	DiscordName string `json:"discord"`
}

// Service validates submissions and applies review decisions.
type Service struct {
	repo   Repository
	lookup UUIDLookup
	hasher PasswordHasher
	bus    Publisher
	logger zerolog.Logger
}

func NewService(repo Repository, lookup UUIDLookup, hasher PasswordHasher, bus Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		lookup: lookup,
		hasher: hasher,
		bus:    bus,
		logger: logger.With().Str("component", "applications").Logger(),
	}
}

// ExtractVideoID returns the v parameter of a strict YouTube watch URL, or "".
func ExtractVideoID(raw string) string {
	if len(raw) < len(youtubePrefix) || !strings.EqualFold(raw[:len(youtubePrefix)], youtubePrefix) {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || !strings.EqualFold(u.Host, "www.youtube.com") || u.Path != "/watch" {
		return ""
	}
	v := u.Query().Get("v")
	if !videoIDPattern.MatchString(v) {
		return ""
	}
	return v
}

// ValidMCName reports whether name is a syntactically valid Java edition name.
func ValidMCName(name string) bool {
	return mcNamePattern.MatchString(name)
}

// Info is what the public apply page shows.
type Info struct {
	Enabled bool   `json:"enabled"`
	Title   string `json:"title"`
}

// Info returns whether the form is open and its project title.
func (s *Service) Info(ctx context.Context) (Info, error) {
	st, err := s.repo.LoadSiteSettings(ctx)
	if err != nil {
		return Info{}, err
	}
	return Info{Enabled: st.ApplyEnabled, Title: st.ApplyTitle}, nil
}

// Submit validates the form and stores a pending application. Validation
// problems are returned together as *models.ValidationError; duplicates
// additionally match ErrDuplicate.
func (s *Service) Submit(ctx context.Context, form Form) (*models.Application, error) {
	st, err := s.repo.LoadSiteSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}
	if !st.ApplyEnabled {
		return nil, ErrClosed
	}

	youtube := strings.TrimSpace(form.YouTubeURL)
	mcName := strings.TrimSpace(form.MCName)
	discord := strings.TrimSpace(form.DiscordName)

	var problems []string
	videoID := ExtractVideoID(youtube)
	if videoID == "" {
		problems = append(problems, ProblemYouTube)
	}

	var uuid string
	if !ValidMCName(mcName) {
		problems = append(problems, ProblemMCName)
	} else {
		res := s.lookup.Lookup(ctx, mcName)
		switch res.Status {
		case mojang.StatusOK:
			uuid = res.UUID
		case mojang.StatusNotFound:
			problems = append(problems, ProblemMCNotFound)
		default:
			problems = append(problems, ProblemMCUnavailable)
		}
	}

	if len(discord) < 2 {
		problems = append(problems, ProblemDiscord)
	}
	if len(problems) > 0 {
		return nil, &models.ValidationError{Problems: problems}
	}

	mcTaken, discordTaken, err := s.repo.ApplicationTaken(ctx, mcName, discord)
	if err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	if mcTaken || discordTaken {
		return nil, duplicate()
	}

	app, err := models.NewApplication(youtube, videoID, mcName, uuid, discord, st.ApplyTitle)
	if err != nil {
		return nil, err
	}
	id, err := s.repo.CreateApplication(ctx, app)
	if errors.Is(err, database.ErrDuplicate) {
		return nil, duplicate()
	}
	if err != nil {
		return nil, err
	}
	app.ID = id
	app.CreatedAt = time.Now().UTC()

	metrics.IncApplication("submitted")
	s.logger.Info().Int64("application_id", id).Str("mc_name", mcName).Msg("application submitted")
	return app, nil
}

func duplicate() error {
	return fmt.Errorf("%w: %w", ErrDuplicate, &models.ValidationError{Problems: []string{ProblemDuplicate}})
}

// Get returns one application.
func (s *Service) Get(ctx context.Context, id int64) (*models.Application, error) {
	app, err := s.repo.GetApplication(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return app, err
}

// List returns applications newest first; an empty status lists all.
func (s *Service) List(ctx context.Context, status models.ApplicationStatus) ([]models.Application, error) {
	return s.repo.ListApplications(ctx, status)
}

// Decision is a review action.
type Decision string

const (
	DecisionShortlist   Decision = "shortlist"
	DecisionUnshortlist Decision = "unshortlist"
	DecisionAccept      Decision = "accept"
	DecisionReject      Decision = "reject"
	DecisionReset       Decision = "reset"
	DecisionDelete      Decision = "delete"
)

// Decide dispatches a review action by name.
func (s *Service) Decide(ctx context.Context, id int64, d Decision) error {
	var err error
	switch d {
	case DecisionShortlist:
		err = s.Shortlist(ctx, id)
	case DecisionUnshortlist:
		err = s.Unshortlist(ctx, id)
	case DecisionAccept:
		_, err = s.Accept(ctx, id)
	case DecisionReject:
		err = s.Reject(ctx, id)
	case DecisionReset:
		err = s.Reset(ctx, id)
	case DecisionDelete:
		err = s.Delete(ctx, id)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownDecision, d)
	}
	if err != nil {
		return err
	}
	metrics.IncApplication(string(d))
	return nil
}

// Shortlist moves any application to the shortlist.
func (s *Service) Shortlist(ctx context.Context, id int64) error {
	ok, err := s.repo.SetApplicationStatus(ctx, id, models.ApplicationShortlisted)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return nil
}

// Unshortlist moves a shortlisted application back to pending.
func (s *Service) Unshortlist(ctx context.Context, id int64) error {
	ok, err := s.repo.SetApplicationStatus(ctx, id, models.ApplicationPending, models.ApplicationShortlisted)
	if err != nil {
		return err
	}
	if !ok {
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrNotShortlisted
	}
	return nil
}

// Accept creates (or reuses) the applicant's account and tells them the
// login data on Discord.
func (s *Service) Accept(ctx context.Context, id int64) (*models.Application, error) {
	plain, err := users.GeneratePassword(GeneratedPasswordLength)
	if err != nil {
		return nil, err
	}
	hash, err := s.hasher.HashPassword(plain)
	if err != nil {
		return nil, err
	}
	app, err := s.repo.AcceptApplication(ctx, id, hash, plain)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return nil, ErrNotFound
	case errors.Is(err, database.ErrDuplicate):
		return nil, fmt.Errorf("accept application %d: %w", id, users.ErrUsernameTaken)
	case err != nil:
		return nil, fmt.Errorf("accept application %d: %w", id, err)
	}

	s.logger.Info().Int64("application_id", id).Str("mc_name", app.MCName).Msg("application accepted")
	s.publish(ctx, events.ApplicationAccepted, app, app.GeneratedPassword)
	return app, nil
}

// Reject removes the created account, if any, and informs the applicant.
func (s *Service) Reject(ctx context.Context, id int64) error {
	before, err := s.release(ctx, id, models.ApplicationRejected)
	if err != nil {
		return err
	}
	s.logger.Info().Int64("application_id", id).Str("mc_name", before.MCName).Msg("application rejected")
	s.publish(ctx, events.ApplicationRejected, before, "")
	return nil
}

// Reset removes the created account and puts the application back to pending.
func (s *Service) Reset(ctx context.Context, id int64) error {
	_, err := s.release(ctx, id, models.ApplicationPending)
	return err
}

// Delete removes the created account and the application.
func (s *Service) Delete(ctx context.Context, id int64) error {
	err := s.repo.DeleteApplication(ctx, id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	s.logger.Info().Int64("application_id", id).Msg("application deleted")
	return nil
}

func (s *Service) release(ctx context.Context, id int64, status models.ApplicationStatus) (*models.Application, error) {
	before, err := s.repo.ReleaseApplication(ctx, id, status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("release application %d: %w", id, err)
	}
	return before, nil
}

func (s *Service) publish(ctx context.Context, eventType string, app *models.Application, password string) {
	if s.bus == nil || strings.TrimSpace(app.DiscordName) == "" {
		return
	}
	project := app.ProjectName
	if project == "" {
		if st, err := s.repo.LoadSiteSettings(ctx); err == nil {
			project = st.ApplyTitle
		} else {
			project = models.DefaultApplyTitle
		}
	}
	s.bus.Publish(ctx, events.Event{
		Type: eventType,
		Payload: events.ApplicationDecisionPayload{
			ApplicationID: app.ID,
			ProjectName:   project,
			MCName:        app.MCName,
			DiscordName:   app.DiscordName,
			Password:      password,
		},
	})
}
