package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/desertthunder/yt2pt/internal/shared"
)

// Stager writes downloaded assets into the staging directory.
//
// A file is written to "<id>.part" and renamed to "<id>.mp4" only after a complete, synced copy, so a staged path
// always refers to a whole asset.
type Stager struct {
	dir string
}

// NewStager creates a Stager rooted at dir.
func NewStager(dir string) *Stager {
	if dir == "" {
		dir = "."
	}
	return &Stager{dir: dir}
}

// Path returns the final location of itemID's asset.
func (s *Stager) Path(itemID string) string {
	return filepath.Join(s.dir, itemID+".mp4")
}

// Exists reports whether a staged file is present at path.
func (s *Stager) Exists(path string) bool {
	if path == "" {
		return false
	}
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

// Remove deletes a staged file. A missing file is not an error.
func (s *Stager) Remove(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Stage copies r into the staging directory and returns the final path and the number of bytes written.
//
// Read failures wrap [shared.ErrRemoteTransfer]; local file failures wrap [shared.ErrStorage].
func (s *Stager) Stage(ctx context.Context, itemID string, r io.Reader) (path string, n int64, err error) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", 0, fmt.Errorf("%w: create staging dir: %w", shared.ErrStorage, err)
	}

	final := s.Path(itemID)
	part := filepath.Join(s.dir, itemID+".part")

	f, err := os.Create(part)
	if err != nil {
		return "", 0, fmt.Errorf("%w: create %s: %w", shared.ErrStorage, part, err)
	}
	defer func() {
		if err != nil {
			f.Close()
			os.Remove(part)
		}
	}()

	n, err = io.Copy(f, &ctxReader{ctx: ctx, r: r})
	if err != nil {
		var rerr *readError
		if errors.As(err, &rerr) {
			return "", n, rerr.err
		}
		return "", n, fmt.Errorf("%w: write %s: %w", shared.ErrStorage, part, err)
	}
	if err = f.Sync(); err != nil {
		return "", n, fmt.Errorf("%w: sync %s: %w", shared.ErrStorage, part, err)
	}
	if err = f.Close(); err != nil {
		return "", n, fmt.Errorf("%w: close %s: %w", shared.ErrStorage, part, err)
	}
	if err = os.Rename(part, final); err != nil {
		return "", n, fmt.Errorf("%w: rename %s: %w", shared.ErrStorage, part, err)
	}
	return final, n, nil
}

// ctxReader stops a copy once ctx is done and tags source errors so they can be told apart from write errors.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, &readError{err: err}
	}
	n, err := c.r.Read(p)
	if err != nil && err != io.EOF {
		if !errors.Is(err, shared.ErrRemoteTransfer) && !errors.Is(err, shared.ErrRejected) {
			err = fmt.Errorf("%w: read asset: %w", shared.ErrRemoteTransfer, err)
		}
		return n, &readError{err: err}
	}
	return n, err
}

type readError struct {
	err error
}

func (e *readError) Error() string { return e.err.Error() }
func (e *readError) Unwrap() error { return e.err }
