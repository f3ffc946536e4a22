package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/goliatone/go-sso"
)

// DefaultMaxSize caps a single upload
const DefaultMaxSize = 5 << 20

// URLPrefix is where the HTTP server exposes the upload directory
const URLPrefix = "/static/uploads/"

var allowedTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp"}

var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// LocalStorage keeps uploaded images on the local filesystem
type LocalStorage struct {
	dir     string
	baseURL string
	maxSize int64
}

type Option func(*LocalStorage)

// WithMaxSize overrides the upload size limit
func WithMaxSize(size int64) Option {
	return func(s *LocalStorage) {
		if size > 0 {
			s.maxSize = size
		}
	}
}

func NewLocalStorage(dir, publicBaseURL string, opts ...Option) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}

	s := &LocalStorage{
		dir:     dir,
		baseURL: strings.TrimRight(publicBaseURL, "/"),
		maxSize: DefaultMaxSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Save sniffs the content, keeps it only when it is a supported image and
// returns the stored file name: name plus the detected extension. An
// existing file is never replaced.
func (s *LocalStorage) Save(ctx context.Context, name string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if !validName.MatchString(name) {
		return "", sso.ErrInvalidImage.Clone().WithMetadata(map[string]any{"name": name})
	}

	limited := io.LimitReader(r, s.maxSize+1)

	header := make([]byte, 3072)
	n, err := io.ReadFull(limited, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read upload: %w", err)
	}
	header = header[:n]

	if n == 0 {
		return "", sso.ErrInvalidImage.Clone().WithMetadata(map[string]any{"name": name, "reason": "empty"})
	}

	mtype := mimetype.Detect(header)
	if !mimetype.EqualsAny(mtype.String(), allowedTypes...) {
		return "", sso.ErrInvalidImage.Clone().WithMetadata(map[string]any{
			"name":      name,
			"mime_type": mtype.String(),
		})
	}

	filename := name + mtype.Extension()
	path := filepath.Join(s.dir, filename)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create %s: %w", filename, err)
	}

	written, err := io.Copy(f, io.MultiReader(bytes.NewReader(header), limited))
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil && written > s.maxSize {
		err = sso.ErrInvalidImage.Clone().WithMetadata(map[string]any{
			"name":   name,
			"reason": "too large",
		})
	}
	if err != nil {
		os.Remove(path)
		return "", err
	}

	return filename, nil
}

func (s *LocalStorage) Delete(ctx context.Context, filename string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if filename == "" || filename != filepath.Base(filename) {
		return fmt.Errorf("invalid file name %q", filename)
	}

	err := os.Remove(filepath.Join(s.dir, filename))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// URL resolves the public address of a stored file
func (s *LocalStorage) URL(filename string) string {
	if filename == "" {
		return ""
	}
	return s.baseURL + URLPrefix + url.PathEscape(filename)
}

// Dir is the directory served under URLPrefix
func (s *LocalStorage) Dir() string {
	return s.dir
}
