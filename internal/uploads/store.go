// Package uploads stores uploaded documents and post images on disk.
package uploads

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ImageURLPrefix is the public path under which post images are served.
const ImageURLPrefix = "/uploads/posts/"

var (
	ErrTooLarge         = errors.New("upload too large")
	ErrUnsupportedImage = errors.New("unsupported image type")
)

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

var allowedImages = map[string]bool{
	"image/jpeg":    true,
	"image/png":     true,
	"image/gif":     true,
	"image/webp":    true,
	"image/svg+xml": true,
}

// SanitizeFilename keeps the base name and replaces unsafe characters with
// underscores. An empty name becomes file_<unix>.
func SanitizeFilename(name string, now time.Time) string {
	name = strings.TrimSpace(name)
	if name != "" {
		name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	}
	if name == "" || name == "." || name == "/" {
		return fmt.Sprintf("file_%d", now.Unix())
	}
	return unsafeChars.ReplaceAllString(name, "_")
}

// Store writes files below a root directory.
type Store struct {
	dir      string
	maxBytes int64
	now      func() time.Time
	logger   zerolog.Logger
}

func NewStore(dir string, maxBytes int64, logger zerolog.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, "posts"), 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	return &Store{
		dir:      dir,
		maxBytes: maxBytes,
		now:      time.Now,
		logger:   logger.With().Str("component", "uploads").Logger(),
	}, nil
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.dir
}

// SaveDocument stores r and returns the sanitized display name and the
// path on disk. Stored names carry a uuid prefix so equal names never clash.
func (s *Store) SaveDocument(r io.Reader, name string) (filename, path string, err error) {
	filename = SanitizeFilename(name, s.now())
	path = filepath.Join(s.dir, uuid.NewString()+"_"+filename)
	if err := s.write(path, r); err != nil {
		return "", "", err
	}
	return filename, path, nil
}

// SaveImage checks the content type of r and stores it as a post image. It
// returns the public URL path.
func (s *Store) SaveImage(r io.Reader, name string) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(r, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read image: %w", err)
	}
	head = head[:n]
	if mime := sniffImage(head); !allowedImages[mime] {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedImage, mime)
	}

	safe := SanitizeFilename(name, s.now())
	ext := filepath.Ext(safe)
	base := strings.TrimSuffix(safe, ext)
	if ext == "" {
		ext = ".img"
	}
	if base == "" {
		base = fmt.Sprintf("img_%d", s.now().Unix())
	}
	stored := base + "_" + uuid.NewString()[:8] + ext

	if err := s.write(filepath.Join(s.dir, "posts", stored), io.MultiReader(bytes.NewReader(head), r)); err != nil {
		return "", err
	}
	return ImageURLPrefix + stored, nil
}

// ImagePath maps a public image URL back to its file, or "" for foreign URLs.
func (s *Store) ImagePath(url string) string {
	if !strings.HasPrefix(url, ImageURLPrefix) {
		return ""
	}
	name := filepath.Base(strings.TrimPrefix(url, ImageURLPrefix))
	if name == "." || name == "/" || name == "" {
		return ""
	}
	return filepath.Join(s.dir, "posts", name)
}

// RemoveImage deletes the file behind a public image URL.
func (s *Store) RemoveImage(url string) {
	if p := s.ImagePath(url); p != "" {
		s.Remove(p)
	}
}

// Remove deletes a stored file. Missing files are ignored.
func (s *Store) Remove(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		s.logger.Warn().Err(err).Str("path", path).Msg("failed to remove upload")
	}
}

func (s *Store) write(path string, r io.Reader) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	src := r
	if s.maxBytes > 0 {
		src = io.LimitReader(r, s.maxBytes+1)
	}
	written, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && s.maxBytes > 0 && written > s.maxBytes {
		err = ErrTooLarge
	}
	if err != nil {
		_ = os.Remove(path)
		return err
	}
	return nil
}

func sniffImage(head []byte) string {
	mime := http.DetectContentType(head)
	if i := strings.IndexByte(mime, ';'); i >= 0 {
		mime = mime[:i]
	}
	if (mime == "text/xml" || mime == "text/plain") && bytes.Contains(bytes.ToLower(head), []byte("<svg")) {
		return "image/svg+xml"
	}
	return mime
}
