package models

import (
	"fmt"
	"time"
)

// ApplicationStatus is the review state of an applicant.
type ApplicationStatus string

const (
	ApplicationPending     ApplicationStatus = "pending"
	ApplicationShortlisted ApplicationStatus = "shortlisted"
	ApplicationAccepted    ApplicationStatus = "accepted"
	ApplicationRejected    ApplicationStatus = "rejected"
)

// ParseApplicationStatus maps stored text to a status.
func ParseApplicationStatus(s string) (ApplicationStatus, error) {
	switch ApplicationStatus(s) {
	case ApplicationPending, ApplicationShortlisted, ApplicationAccepted, ApplicationRejected:
		return ApplicationStatus(s), nil
	default:
		return "", fmt.Errorf("%w: unknown application status %q", ErrValidation, s)
	}
}

// Label returns the German display label.
func (s ApplicationStatus) Label() string {
	switch s {
	case ApplicationPending:
		return "offen"
	case ApplicationShortlisted:
		return "Shortlist"
	case ApplicationAccepted:
		return "angenommen"
	case ApplicationRejected:
		return "abgelehnt"
	default:
		return string(s)
	}
}

// Application is a submission of the public apply form.
type Application struct {
	ID                int64             `json:"id"`
	YouTubeURL        string            `json:"youtube_url"`
	YouTubeVideoID    string            `json:"youtube_video_id"`
	MCName            string            `json:"mc_name"`
	MCUUID            string            `json:"mc_uuid"`
	DiscordName       string            `json:"discord_name"`
	Status            ApplicationStatus `json:"status"`
	GeneratedPassword string            `json:"generated_password,omitempty"`
	CreatedUserID     *int64            `json:"created_user_id,omitempty"`
	ProjectName       string            `json:"project_name"`
	CreatedAt         time.Time         `json:"created_at"`
}

// NewApplication builds a pending application. Field formats are checked by the intake service.
func NewApplication(youtubeURL, videoID, mcName, mcUUID, discordName, projectName string) (*Application, error) {
	if youtubeURL == "" || videoID == "" || mcName == "" || mcUUID == "" || discordName == "" {
		return nil, fmt.Errorf("%w: incomplete application", ErrValidation)
	}
	if projectName == "" {
		projectName = DefaultApplyTitle
	}
	return &Application{
		YouTubeURL:     youtubeURL,
		YouTubeVideoID: videoID,
		MCName:         mcName,
		MCUUID:         mcUUID,
		DiscordName:    discordName,
		Status:         ApplicationPending,
		ProjectName:    projectName,
	}, nil
}
