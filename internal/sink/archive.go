package sink

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Dir archives receipt files under a local directory, one file per job.
type Dir struct {
	basePath string
}

func NewDir(basePath string) (*Dir, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	return &Dir{basePath: basePath}, nil
}

func (d *Dir) Archive(_ context.Context, jobID uuid.UUID, data []byte) (string, error) {
	path := filepath.Join(d.basePath, jobID.String()+".bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing archive file: %w", err)
	}
	return "file://" + path, nil
}
