package permission

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestRequest(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "clip.mp4")
	if err := os.WriteFile(input, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name        string
		gate        Gate
		wantCamera  bool
		wantGallery bool
	}{
		{"Both Granted", Gate{Input: input, GalleryDir: filepath.Join(dir, "gallery")}, true, true},
		{"No Gallery Requested", Gate{Input: input}, true, true},
		{"Missing Input", Gate{Input: filepath.Join(dir, "nope.mp4")}, false, true},
		{"Empty Input", Gate{}, false, true},
		// A regular file in the way of the directory cannot be created.
		{"Gallery Blocked", Gate{Input: input, GalleryDir: filepath.Join(blocker, "sub")}, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			grant, err := tt.gate.Request(context.Background())
			if err != nil {
				t.Fatalf("Request() error: %v", err)
			}
			if grant.Camera != tt.wantCamera {
				t.Errorf("Camera = %v, want %v (reason %v)", grant.Camera, tt.wantCamera, grant.Reasons["camera"])
			}
			if grant.MediaLibrary != tt.wantGallery {
				t.Errorf("MediaLibrary = %v, want %v (reason %v)", grant.MediaLibrary, tt.wantGallery, grant.Reasons["media"])
			}
		})
	}
}

func TestRequestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := (Gate{Input: "x"}).Request(ctx); err == nil {
		t.Error("expected context error")
	}
}
