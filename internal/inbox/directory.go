package inbox

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Directory is a drop-folder inbox: files appear in the drop directory, are
// read on poll, and are moved to a consumed subdirectory so they are not
// delivered twice. A crash between read and move redelivers the file, which
// the dedup index absorbs.
type Directory struct {
	dropPath     string
	consumedPath string
}

func NewDirectory(dropPath string) (*Directory, error) {
	consumed := filepath.Join(dropPath, "consumed")
	if err := os.MkdirAll(consumed, 0755); err != nil {
		return nil, fmt.Errorf("creating consumed directory: %w", err)
	}
	return &Directory{dropPath: dropPath, consumedPath: consumed}, nil
}

func (d *Directory) Poll(ctx context.Context) ([]Envelope, error) {
	entries, err := os.ReadDir(d.dropPath)
	if err != nil {
		return nil, fmt.Errorf("reading drop directory: %w", err)
	}

	// Per-file failures never abort the batch. Earlier entries have already
	// been moved into consumed/, so dropping them here would lose receipts
	// that no longer exist anywhere else.
	var envelopes []Envelope
	var errs []error
	for _, entry := range entries {
		if ctx.Err() != nil {
			return envelopes, errors.Join(append(errs, ctx.Err())...)
		}
		if entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		path := filepath.Join(d.dropPath, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			errs = append(errs, fmt.Errorf("reading %s: %w", entry.Name(), err))
			continue
		}
		if err := os.Rename(path, filepath.Join(d.consumedPath, entry.Name())); err != nil {
			// Deliver anyway; the next poll redelivers the file and the
			// dedup index absorbs it.
			errs = append(errs, fmt.Errorf("consuming %s: %w", entry.Name(), err))
		}
		envelopes = append(envelopes, Envelope{
			SourceRef: "file:" + entry.Name(),
			Data:      data,
		})
	}
	return envelopes, errors.Join(errs...)
}
