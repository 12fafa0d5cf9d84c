// Package gallery persists transformed captures, either to a local directory or to
// Azure Blob Storage. Saves are awaited and report where the image landed.
package gallery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrDisabled is returned by Nop.Save.
var ErrDisabled = errors.New("gallery disabled")

// Gallery stores one JPEG with a human readable description.
type Gallery interface {
	Save(ctx context.Context, name string, jpeg []byte, description string) (location string, err error)
}

// Nop discards images; used when media access is denied.
type Nop struct{}

func (Nop) Save(context.Context, string, []byte, string) (string, error) { return "", ErrDisabled }

// DirGallery writes images under a local directory.
type DirGallery struct {
	Dir string
}

// NewDirGallery creates the directory if needed.
func NewDirGallery(dir string) (*DirGallery, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create gallery dir: %w", err)
	}
	return &DirGallery{Dir: dir}, nil
}

// Save stamps the description into the EXIF block and writes the file.
func (g *DirGallery) Save(ctx context.Context, name string, jpeg []byte, description string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := StampDescription(jpeg, description)
	if err != nil {
		return "", err
	}
	path := filepath.Join(g.Dir, sanitize(name))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write gallery image: %w", err)
	}
	return path, nil
}

// Clear removes the captures this gallery wrote and returns how many were deleted.
// Other files and the directory itself are left alone.
func (g *DirGallery) Clear() (int, error) {
	entries, err := os.ReadDir(g.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.EqualFold(filepath.Ext(e.Name()), ".jpg") {
			continue
		}
		path := filepath.Join(g.Dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return removed, err
		}
		if !IsStamped(data) {
			continue
		}
		if err := os.Remove(path); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

func sanitize(name string) string {
	name = filepath.Base(name)
	if !strings.HasSuffix(strings.ToLower(name), ".jpg") {
		name += ".jpg"
	}
	return name
}
