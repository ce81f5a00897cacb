package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/helpdesk-workflow/internal/config"
	apperrors "github.com/spec-kit/helpdesk-workflow/pkg/util/errorutil"
)

// DefaultMaxBytes caps a single attachment.
const DefaultMaxBytes int64 = 10 << 20

// allowedTypes maps accepted extensions to the content type stored with them.
var allowedTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".webp": "image/webp",
	".pdf":  "application/pdf",
}

// Upload is one incoming file.
type Upload struct {
	Filename string
	Size     int64
	Content  io.Reader
}

// Metadata describes a stored file.
type Metadata struct {
	OriginalName string
	StoredPath   string
	ContentType  string
	SizeBytes    int64
	UploadedAt   time.Time
}

// DiskStore keeps attachments under a root directory, one folder per ticket.
type DiskStore struct {
	root     string
	maxBytes int64
	now      func() time.Time
}

// NewDiskStore prepares the root directory.
func NewDiskStore(cfg config.StorageConfig) (*DiskStore, error) {
	root := strings.TrimSpace(cfg.AttachmentDir)
	if root == "" {
		root = "uploads"
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create attachment dir: %w", err)
	}
	maxBytes := cfg.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &DiskStore{root: root, maxBytes: maxBytes, now: time.Now}, nil
}

// MaxBytes is the largest accepted upload.
func (s *DiskStore) MaxBytes() int64 { return s.maxBytes }

// Save validates and writes upload. Unsupported types and oversized files
// are rejected with a validation error before anything is written.
func (s *DiskStore) Save(ctx context.Context, ticketID int64, upload Upload) (*Metadata, error) {
	name := filepath.Base(strings.TrimSpace(upload.Filename))
	ext := strings.ToLower(filepath.Ext(name))
	contentType, ok := allowedTypes[ext]
	if name == "" || name == "." || !ok {
		return nil, apperrors.NewValidationError("unsupported attachment type; only images and PDF files are accepted",
			map[string]any{"file": upload.Filename})
	}
	if upload.Size > s.maxBytes {
		return nil, s.tooLarge(name)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rel := filepath.Join("tickets", strconv.FormatInt(ticketID, 10), uuid.NewString()+ext)
	full := filepath.Join(s.root, rel)
	if err := os.MkdirAll(filepath.Dir(full), 0o750); err != nil {
		return nil, fmt.Errorf("create ticket dir: %w", err)
	}
	f, err := os.OpenFile(full, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return nil, fmt.Errorf("create attachment: %w", err)
	}

	written, err := io.Copy(f, io.LimitReader(upload.Content, s.maxBytes+1))
	closeErr := f.Close()
	switch {
	case err != nil:
		_ = os.Remove(full)
		return nil, fmt.Errorf("write attachment: %w", err)
	case closeErr != nil:
		_ = os.Remove(full)
		return nil, fmt.Errorf("close attachment: %w", closeErr)
	case written > s.maxBytes:
		_ = os.Remove(full)
		return nil, s.tooLarge(name)
	case written == 0:
		_ = os.Remove(full)
		return nil, apperrors.NewValidationError("attachment is empty", map[string]any{"file": name})
	}

	return &Metadata{
		OriginalName: name,
		StoredPath:   filepath.ToSlash(rel),
		ContentType:  contentType,
		SizeBytes:    written,
		UploadedAt:   s.now().UTC(),
	}, nil
}

// Remove deletes a stored file. Missing files are not an error.
func (s *DiskStore) Remove(storedPath string) error {
	err := os.Remove(filepath.Join(s.root, filepath.FromSlash(storedPath)))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func (s *DiskStore) tooLarge(name string) error {
	return apperrors.NewValidationError(
		fmt.Sprintf("attachment exceeds the %d MB limit", s.maxBytes>>20),
		map[string]any{"file": name, "max_bytes": s.maxBytes})
}
