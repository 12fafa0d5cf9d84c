package permission

import (
	"context"
	"errors"
	"fmt"
	"os"
)

// ErrCameraDenied marks a capture that never started for lack of camera access.
var ErrCameraDenied = errors.New("no access to camera")

// Grant is the outcome of a permission request. Queried once per subcommand.
type Grant struct {
	Camera       bool
	MediaLibrary bool
	// Reasons holds the cause of each denial, keyed by "camera" or "media".
	Reasons map[string]error
}

// Gate checks access to the capture input and the gallery destination.
type Gate struct {
	Input string
	// GalleryDir is created if missing. Empty means no local gallery is requested.
	GalleryDir string
}

// Request probes both resources. It never fails on a denial; denials are reported in the Grant.
func (g Gate) Request(ctx context.Context) (Grant, error) {
	if err := ctx.Err(); err != nil {
		return Grant{}, err
	}
	grant := Grant{Reasons: map[string]error{}}

	if err := checkReadable(g.Input); err != nil {
		grant.Reasons["camera"] = err
	} else {
		grant.Camera = true
	}

	if g.GalleryDir == "" {
		grant.MediaLibrary = true
		return grant, nil
	}
	if err := checkWritable(g.GalleryDir); err != nil {
		grant.Reasons["media"] = err
	} else {
		grant.MediaLibrary = true
	}
	return grant, nil
}

func checkReadable(path string) error {
	if path == "" {
		return fmt.Errorf("no input configured")
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, ".facegate-probe-*")
	if err != nil {
		return err
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}
