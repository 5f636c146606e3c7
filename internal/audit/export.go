package audit

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"mcportal/internal/models"
)

// Source provides the rows to export. *database.DB implements it.
type Source interface {
	ListApplications(ctx context.Context, status models.ApplicationStatus) ([]models.Application, error)
	ListUsers(ctx context.Context) ([]models.User, error)
}

var applicationColumns = []string{
	"ID", "Projekt", "Minecraft-Name", "UUID", "Discord", "YouTube", "Status", "Konto", "Eingegangen",
}

var userColumns = []string{"ID", "Benutzer", "Admin", "Discord", "Angelegt"}

// Exporter writes applications and accounts into a workbook.
type Exporter struct {
	source    Source
	newWriter func() SheetWriter
	location  *time.Location
	logger    zerolog.Logger
}

func NewExporter(source Source, loc *time.Location, logger zerolog.Logger) *Exporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Exporter{
		source:    source,
		newWriter: NewExcelizeWriter,
		location:  loc,
		logger:    logger.With().Str("component", "audit").Logger(),
	}
}

// Filename returns the download name for an export made at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("bewerbungen_%s.xlsx", t.Format("2006-01-02"))
}

// ExportApplications writes the workbook to out. An empty status exports all
// applications.
func (e *Exporter) ExportApplications(ctx context.Context, status models.ApplicationStatus, out io.Writer) error {
	w, err := e.build(ctx, status)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Save(out)
}

// ExportApplicationsToFile is the CLI variant of ExportApplications.
func (e *Exporter) ExportApplicationsToFile(ctx context.Context, status models.ApplicationStatus, path string) error {
	w, err := e.build(ctx, status)
	if err != nil {
		return err
	}
	defer w.Close()
	return w.SaveToFile(path)
}

func (e *Exporter) build(ctx context.Context, status models.ApplicationStatus) (SheetWriter, error) {
	apps, err := e.source.ListApplications(ctx, status)
	if err != nil {
		return nil, fmt.Errorf("load applications: %w", err)
	}
	accounts, err := e.source.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}

	w := e.newWriter()
	if err := e.writeApplications(w, apps); err != nil {
		w.Close()
		return nil, err
	}
	if err := e.writeUsers(w, accounts); err != nil {
		w.Close()
		return nil, err
	}
	e.logger.Info().Int("applications", len(apps)).Int("users", len(accounts)).Msg("export built")
	return w, nil
}

func (e *Exporter) stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(e.location).Format("02.01.2006 15:04")
}

func (e *Exporter) writeApplications(w SheetWriter, apps []models.Application) error {
	if err := w.AddSheet("Bewerbungen"); err != nil {
		return err
	}
	if err := w.WriteHeader(applicationColumns); err != nil {
		return err
	}
	for _, a := range apps {
		account := ""
		if a.CreatedUserID != nil {
			account = a.MCName
		}
		row := []any{
			a.ID, a.ProjectName, a.MCName, a.MCUUID, a.DiscordName, a.YouTubeURL,
			a.Status.Label(), account, e.stamp(a.CreatedAt),
		}
		if err := w.WriteRow(row); err != nil {
			return err
		}
	}
	return nil
}

func (e *Exporter) writeUsers(w SheetWriter, accounts []models.User) error {
	if err := w.AddSheet("Nutzer"); err != nil {
		return err
	}
	if err := w.WriteHeader(userColumns); err != nil {
		return err
	}
	for _, u := range accounts {
		admin := "nein"
		if u.IsAdmin {
			admin = "ja"
		}
		if err := w.WriteRow([]any{u.ID, u.Username, admin, u.DiscordName, e.stamp(u.CreatedAt)}); err != nil {
			return err
		}
	}
	return nil
}
