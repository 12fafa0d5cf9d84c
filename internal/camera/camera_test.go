package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"io"
	"testing"
	"time"
)

func jpegFrame(t *testing.T, w, h int) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, image.NewGray(image.Rect(0, 0, w, h)), nil); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestSourceStreamsFrames(t *testing.T) {
	stream := new(bytes.Buffer)
	stream.Write(jpegFrame(t, 32, 24))
	stream.Write(jpegFrame(t, 64, 48))

	src := FromReader(context.Background(), Options{Buffer: 4}, io.NopCloser(stream))

	var got int
	for f := range src.Frames() {
		got++
		if f.Index != got {
			t.Errorf("Expected frame index %d, got %d", got, f.Index)
		}
	}
	if got != 2 {
		t.Fatalf("Expected 2 frames, got %d", got)
	}
	if err := src.Err(); err != nil {
		t.Errorf("Unexpected stream error: %v", err)
	}

	still, err := src.Still()
	if err != nil {
		t.Fatalf("Still failed: %v", err)
	}
	if still.PixelWidth != 64 || still.PixelHeight != 48 {
		t.Errorf("Expected latest frame 64x48, got %dx%d", still.PixelWidth, still.PixelHeight)
	}
	if still.ID == "" || still.TakenAt.IsZero() {
		t.Errorf("Still is missing identity: %+v", still)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}

func TestSourceMinInterval(t *testing.T) {
	stream := new(bytes.Buffer)
	for i := 0; i < 5; i++ {
		stream.Write(jpegFrame(t, 8, 8))
	}

	src := FromReader(context.Background(), Options{Buffer: 8, MinInterval: time.Hour}, io.NopCloser(stream))
	delivered := 0
	for range src.Frames() {
		delivered++
	}
	read, dropped := src.Stats()
	if delivered != 1 || read != 5 || dropped != 4 {
		t.Errorf("Expected 1 delivered/5 read/4 dropped, got %d/%d/%d", delivered, read, dropped)
	}
}

func TestStillBeforeFirstFrame(t *testing.T) {
	src := newSource(Options{}, io.NopCloser(new(bytes.Buffer)))
	if _, err := src.Still(); !errors.Is(err, ErrNoFrame) {
		t.Errorf("Expected ErrNoFrame, got %v", err)
	}
}

func TestStillFromBytesRejectsGarbage(t *testing.T) {
	if _, err := StillFromBytes([]byte("nope")); err == nil {
		t.Error("Expected error for non-image bytes")
	}
}
