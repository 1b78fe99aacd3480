// Package photos stores the pictures guests upload during a party, one album
// per session.
package photos

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	// DirPermission is used for album directories
	DirPermission = 0o750
	// FilePermission is used for stored photos
	FilePermission = 0o640

	timeLayout = "20060102-150405"
)

var (
	ErrTooLarge    = errors.New("photo too large")
	ErrUnsupported = errors.New("unsupported photo format")
	ErrNotFound    = errors.New("photo not found")
	ErrBadSession  = errors.New("invalid session")
)

var supportedExtensions = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".webp": "image/webp",
	".heic": "image/heic",
}

var (
	guestSlugRegex = regexp.MustCompile(`[^a-z0-9]+`)
	// <time>_<guest>_<id>.<ext>
	photoNameRegex = regexp.MustCompile(`^(\d{8}-\d{6})_([a-z0-9-]*)_([0-9a-f]{8})(\.[a-z]+)$`)
)

type Photo struct {
	Name        string    `json:"name"`
	Guest       string    `json:"guest"`
	Size        int64     `json:"size"`
	ContentType string    `json:"contentType"`
	UploadedAt  time.Time `json:"uploadedAt"`
}

// Store keeps albums under a root directory.
type Store struct {
	root     string
	maxBytes int64
	logger   *zap.Logger
	now      func() time.Time
}

func NewStore(root string, maxBytes int64, logger *zap.Logger) *Store {
	return &Store{root: root, maxBytes: maxBytes, logger: logger, now: time.Now}
}

// ContentType returns the MIME type for a supported file name, or "".
func ContentType(filename string) string {
	return supportedExtensions[strings.ToLower(filepath.Ext(filename))]
}

func (s *Store) albumDir(session string) (string, error) {
	if session == "" || session != filepath.Base(session) || strings.HasPrefix(session, ".") {
		return "", ErrBadSession
	}
	return filepath.Join(s.root, session), nil
}

func guestSlug(guest string) string {
	slug := strings.Trim(guestSlugRegex.ReplaceAllString(strings.ToLower(guest), "-"), "-")
	if len(slug) > 32 {
		slug = slug[:32]
	}
	return slug
}

// Save writes a photo into the session album. The format is taken from the
// file extension; uploads over the size limit are discarded.
func (s *Store) Save(session, guest, filename string, r io.Reader) (*Photo, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	contentType, ok := supportedExtensions[ext]
	if !ok {
		return nil, ErrUnsupported
	}
	if ext == ".jpeg" {
		ext = ".jpg"
	}

	dir, err := s.albumDir(session)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, DirPermission); err != nil {
		return nil, fmt.Errorf("failed to create album directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create upload file: %w", err)
	}
	defer func() {
		// no-op once renamed
		_ = os.Remove(tmp.Name())
	}()

	limit := s.maxBytes
	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	size, err := io.Copy(tmp, src)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return nil, fmt.Errorf("failed to write photo: %w", err)
	}
	if limit > 0 && size > limit {
		return nil, ErrTooLarge
	}
	if err := os.Chmod(tmp.Name(), FilePermission); err != nil {
		return nil, fmt.Errorf("failed to set photo permissions: %w", err)
	}

	uploaded := s.now()
	slug := guestSlug(guest)
	name := fmt.Sprintf("%s_%s_%s%s", uploaded.UTC().Format(timeLayout), slug, uuid.NewString()[:8], ext)

	if err := os.Rename(tmp.Name(), filepath.Join(dir, name)); err != nil {
		return nil, fmt.Errorf("failed to store photo: %w", err)
	}

	s.logger.Info("Photo uploaded",
		zap.String("session", session),
		zap.String("guest", guest),
		zap.String("name", name),
		zap.Int64("size", size))

	return &Photo{
		Name:        name,
		Guest:       slug,
		Size:        size,
		ContentType: contentType,
		UploadedAt:  uploaded.UTC().Truncate(time.Second),
	}, nil
}

// List returns the photos of a session, oldest first. A session without an
// album has no photos.
func (s *Store) List(session string) ([]Photo, error) {
	dir, err := s.albumDir(session)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return []Photo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read album: %w", err)
	}

	photos := make([]Photo, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := photoNameRegex.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		uploaded, _ := time.Parse(timeLayout, m[1])
		photos = append(photos, Photo{
			Name:        e.Name(),
			Guest:       m[2],
			Size:        info.Size(),
			ContentType: supportedExtensions[m[4]],
			UploadedAt:  uploaded,
		})
	}
	sort.SliceStable(photos, func(i, j int) bool {
		return photos[i].Name < photos[j].Name
	})
	return photos, nil
}

// Open returns a reader for one photo. The caller must close it.
func (s *Store) Open(session, name string) (io.ReadCloser, *Photo, error) {
	dir, err := s.albumDir(session)
	if err != nil {
		return nil, nil, err
	}
	m := photoNameRegex.FindStringSubmatch(name)
	if m == nil {
		return nil, nil, ErrNotFound
	}
	f, err := os.Open(filepath.Join(dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open photo: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("failed to stat photo: %w", err)
	}
	uploaded, _ := time.Parse(timeLayout, m[1])
	return f, &Photo{
		Name:        name,
		Guest:       m[2],
		Size:        info.Size(),
		ContentType: supportedExtensions[m[4]],
		UploadedAt:  uploaded,
	}, nil
}

// ExportZip writes every photo of the session into a zip archive and returns
// the number of photos written.
func (s *Store) ExportZip(session string, w io.Writer) (int, error) {
	photos, err := s.List(session)
	if err != nil {
		return 0, err
	}

	zw := zip.NewWriter(w)
	for _, p := range photos {
		if err := s.addToZip(zw, session, p); err != nil {
			_ = zw.Close()
			return 0, err
		}
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("failed to finish zip: %w", err)
	}

	s.logger.Info("Exported photo album",
		zap.String("session", session),
		zap.Int("photos", len(photos)))
	return len(photos), nil
}

func (s *Store) addToZip(zw *zip.Writer, session string, p Photo) error {
	rc, _, err := s.Open(session, p.Name)
	if err != nil {
		return err
	}
	defer rc.Close()

	header := &zip.FileHeader{
		Name:     p.Name,
		Method:   zip.Store, // images are already compressed
		Modified: p.UploadedAt,
	}
	fw, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to add %s to zip: %w", p.Name, err)
	}
	if _, err := io.Copy(fw, rc); err != nil {
		return fmt.Errorf("failed to copy %s to zip: %w", p.Name, err)
	}
	return nil
}
