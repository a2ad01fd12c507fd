// Package export hands a finished collection to durable storage: the PDF
// plus a small YAML manifest describing how every page ended.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Sink stores one named object and returns where it can be found.
type Sink interface {
	Save(ctx context.Context, name string, data []byte, contentType string) (string, error)
}

// DirSink writes objects as files under a local directory.
type DirSink struct {
	dir string
}

func NewDirSink(dir string) (*DirSink, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, fmt.Errorf("export directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}
	return &DirSink{dir: dir}, nil
}

func (s *DirSink) Save(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	clean, err := cleanName(name)
	if err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, clean)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", clean, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("rename %s: %w", clean, err)
	}
	return path, nil
}

func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	base := filepath.Base(name)
	if name == "" || base != name || base == "." || base == ".." {
		return "", fmt.Errorf("invalid object name %q", name)
	}
	return base, nil
}
