package estimate

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

type Stager struct {
	dir       string
	extension string
	maxBytes  int64
}

func NewStager(dir, extension string, maxBytes int64) (*Stager, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create upload dir %s: %w", dir, err)
	}
	return &Stager{dir: dir, extension: NormalizeExtension(extension), maxBytes: maxBytes}, nil
}

// NormalizeExtension lowercases ext and ensures it has a leading dot.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

func (s *Stager) Dir() string {
	return s.dir
}

// CheckName validates the declared filename without touching the filesystem.
func (s *Stager) CheckName(declaredName string) error {
	name := filepath.Base(strings.TrimSpace(declaredName))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return fmt.Errorf("%w: missing filename", ErrInvalidFormat)
	}
	if ext := strings.ToLower(filepath.Ext(name)); ext != s.extension {
		return fmt.Errorf("%w: expected %s file, got %q", ErrInvalidFormat, s.extension, ext)
	}
	return nil
}

// Stage writes data to a fresh path named by a random id. On any error no
// file is left behind.
func (s *Stager) Stage(data io.Reader, declaredName string) (*UploadedModel, error) {
	if err := s.CheckName(declaredName); err != nil {
		return nil, err
	}

	id := uuid.New()
	path := filepath.Join(s.dir, id.String()+s.extension)

	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to create staged file: %w", err)
	}

	n, err := io.Copy(file, io.LimitReader(data, s.maxBytes+1))
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}

	switch {
	case err != nil:
		err = fmt.Errorf("failed to write staged file: %w", err)
	case n > s.maxBytes:
		err = fmt.Errorf("%w: limit is %d bytes", ErrPayloadTooLarge, s.maxBytes)
	case n == 0:
		err = fmt.Errorf("%w: empty file", ErrInvalidFormat)
	}

	if err != nil {
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
			slog.Error("failed to remove rejected upload", "path", path, "error", rmErr)
		}
		return nil, err
	}

	return &UploadedModel{
		Id:           id,
		OriginalName: filepath.Base(declaredName),
		StoredPath:   path,
		SizeBytes:    n,
		Extension:    s.extension,
	}, nil
}
