package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// TimeLayout is the storage format for all timestamps (UTC).
const TimeLayout = "2006-01-02 15:04:05"

// PreciseTimeLayout keeps milliseconds for rows compared against
// sub-second TTLs. Values still parse with TimeLayout.
const PreciseTimeLayout = "2006-01-02 15:04:05.000"

// DateLayout is the storage format for calendar dates.
const DateLayout = "2006-01-02"

var ErrValidation = errors.New("validation failed")

// ValidationError collects every problem found in one request.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return strings.Join(e.Problems, "; ")
}

// Is makes errors.Is(err, ErrValidation) hold for collected problems.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// User is a portal account.
type User struct {
	ID            int64     `json:"id"`
	Username      string    `json:"username"`
	PasswordHash  string    `json:"-"`
	IsAdmin       bool      `json:"is_admin"`
	DiscordName   string    `json:"discord_name,omitempty"`
	CalendarColor string    `json:"calendar_color,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// NewUser validates the fields needed to insert a user.
func NewUser(username, passwordHash string, isAdmin bool, discordName string) (*User, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if passwordHash == "" {
		return nil, fmt.Errorf("%w: password hash is required", ErrValidation)
	}
	return &User{
		Username:     username,
		PasswordHash: passwordHash,
		IsAdmin:      isAdmin,
		DiscordName:  strings.TrimSpace(discordName),
	}, nil
}

// Document is an uploaded file that can be assigned to users or made public.
type Document struct {
	ID         int64     `json:"id"`
	Filename   string    `json:"filename"`
	Path       string    `json:"-"`
	IsPublic   bool      `json:"is_public"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// Post is a news entry on the home page.
type Post struct {
	ID        int64     `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	Published bool      `json:"published"`
	ImagePath string    `json:"image_path,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// NewPost validates a post before insert or update.
func NewPost(title, content string, published bool) (*Post, error) {
	title = strings.TrimSpace(title)
	content = strings.TrimSpace(content)
	if title == "" || content == "" {
		return nil, fmt.Errorf("%w: title and content are required", ErrValidation)
	}
	return &Post{Title: title, Content: content, Published: published}, nil
}
