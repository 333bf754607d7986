package filestore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cwygoda/shotgrab/internal/domain"
	"github.com/cwygoda/shotgrab/internal/logging"
	"github.com/sirupsen/logrus"
)

// ErrInvalidKey is returned for job keys that cannot be used as a file name.
var ErrInvalidKey = errors.New("invalid job key for file name")

// Store writes images into a directory as {key}.png.
type Store struct {
	perm os.FileMode
	log  logrus.FieldLogger
}

var _ domain.ImageStore = (*Store)(nil)

// New creates a file store. Files are written with mode 0644.
func New(log logrus.FieldLogger) *Store {
	if log == nil {
		log = logging.Discard()
	}
	return &Store{perm: 0644, log: log.WithField("component", "filestore")}
}

// Save streams r into dir/{key}.png. Data goes to a temp file in dir first
// and is renamed into place only after it is fully written, synced and
// closed, so the destination never holds a partial image. An existing file
// is replaced. dir must already exist.
func (s *Store) Save(ctx context.Context, dir string, key domain.JobKey, r io.Reader) (string, error) {
	if err := validKey(key); err != nil {
		return "", err
	}
	dst := domain.FilePath(dir, key)

	tmp, err := os.CreateTemp(dir, "."+string(key)+"-*.part")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	n, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		return "", fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		return "", fmt.Errorf("sync %s: %w", tmpPath, err)
	}
	if err := tmp.Chmod(s.perm); err != nil {
		return "", fmt.Errorf("chmod %s: %w", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return "", fmt.Errorf("rename to %s: %w", dst, err)
	}
	committed = true

	s.log.WithFields(logrus.Fields{"job_key": key, "path": dst, "bytes": n}).Info("saved capture")
	return dst, nil
}

func validKey(key domain.JobKey) error {
	k := string(key)
	if strings.TrimSpace(k) == "" || k == "." || k == ".." || strings.ContainsAny(k, `/\`) || strings.ContainsRune(k, 0) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, k)
	}
	return nil
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

// EnsureDir creates dir and its parents if missing.
func EnsureDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return fmt.Errorf("output directory is empty")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}
