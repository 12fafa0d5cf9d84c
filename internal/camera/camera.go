// Package camera streams JPEG frames from ffmpeg and serves the latest one as a still.
package camera

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	"io"
	"sync"
	"time"

	"github.com/andresmejia3/facegate/internal/types"
	"github.com/andresmejia3/facegate/internal/utils"
	"github.com/google/uuid"
)

const megabyte = 1024 * 1024

// ErrNoFrame is returned by Still before the first frame arrives.
var ErrNoFrame = errors.New("no frame captured yet")

// Options configures a Source.
type Options struct {
	Input       string
	Realtime    bool          // pace file inputs at their native frame rate
	MinInterval time.Duration // frames closer together than this are dropped
	Buffer      int
}

// Source reads frames from an io.Reader split on JPEG markers.
type Source struct {
	opts    Options
	cmd     *utils.SafeCommand
	reader  io.ReadCloser
	frames  chan types.FrameTask
	mu      sync.Mutex
	latest  []byte
	read    int
	dropped int
	err     error
	done    chan struct{}
}

// Open starts ffmpeg for the input and begins streaming.
func Open(ctx context.Context, opts Options) (*Source, error) {
	cmd := utils.NewFFmpegCmd(ctx, opts.Input, opts.Realtime)
	out, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create ffmpeg stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}
	s := newSource(opts, out)
	s.cmd = cmd
	go s.loop(ctx)
	return s, nil
}

// FromReader streams frames from an existing MJPEG byte stream.
func FromReader(ctx context.Context, opts Options, r io.ReadCloser) *Source {
	s := newSource(opts, r)
	go s.loop(ctx)
	return s
}

func newSource(opts Options, r io.ReadCloser) *Source {
	if opts.Buffer <= 0 {
		opts.Buffer = 1
	}
	return &Source{
		opts:   opts,
		reader: r,
		frames: make(chan types.FrameTask, opts.Buffer),
		done:   make(chan struct{}),
	}
}

// Frames delivers frames until the stream ends; check Err afterwards.
func (s *Source) Frames() <-chan types.FrameTask { return s.frames }

func (s *Source) loop(ctx context.Context) {
	defer close(s.done)
	defer close(s.frames)

	scanner := bufio.NewScanner(s.reader)
	scanner.Buffer(make([]byte, megabyte), 64*megabyte)
	scanner.Split(utils.SplitJpeg)

	var last time.Time
	index := 0
	for scanner.Scan() {
		index++
		frame := append([]byte(nil), scanner.Bytes()...)

		s.mu.Lock()
		s.latest = frame
		s.read++
		s.mu.Unlock()

		now := time.Now()
		if s.opts.MinInterval > 0 && !last.IsZero() && now.Sub(last) < s.opts.MinInterval {
			s.countDrop()
			continue
		}

		select {
		case s.frames <- types.FrameTask{Index: index, Data: frame}:
			last = now
		case <-ctx.Done():
			s.setErr(ctx.Err())
			return
		default:
			// consumer busy: the detection loop only ever needs the freshest frame
			s.countDrop()
		}
	}
	if err := scanner.Err(); err != nil {
		s.setErr(fmt.Errorf("frame scanner failed: %w", err))
	}
}

func (s *Source) countDrop() {
	s.mu.Lock()
	s.dropped++
	s.mu.Unlock()
}

func (s *Source) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

// Err reports the first streaming error once Frames is closed.
func (s *Source) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Stats returns how many frames were read and how many were dropped.
func (s *Source) Stats() (read, dropped int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read, s.dropped
}

// Still returns the most recent full-resolution frame as a captured photo.
func (s *Source) Still() (types.CapturedPhoto, error) {
	s.mu.Lock()
	frame := s.latest
	s.mu.Unlock()
	if frame == nil {
		return types.CapturedPhoto{}, ErrNoFrame
	}
	return StillFromBytes(frame)
}

// StillFromBytes wraps JPEG bytes as a captured photo, reading its pixel dimensions.
func StillFromBytes(data []byte) (types.CapturedPhoto, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return types.CapturedPhoto{}, fmt.Errorf("failed to read still dimensions: %w", err)
	}
	return types.CapturedPhoto{
		ID:          uuid.NewString(),
		Data:        data,
		PixelWidth:  cfg.Width,
		PixelHeight: cfg.Height,
		TakenAt:     time.Now(),
	}, nil
}

// Close stops the stream and waits for ffmpeg to exit.
func (s *Source) Close() error {
	s.reader.Close()
	<-s.done
	if s.cmd == nil {
		return nil
	}
	if err := s.cmd.Wait(); err != nil && s.cmd.Stderr.Len() > 0 {
		return fmt.Errorf("ffmpeg: %w: %s", err, bytes.TrimSpace(s.cmd.Stderr.Bytes()))
	}
	return nil
}

// Command exposes the ffmpeg process for error reporting.
func (s *Source) Command() *utils.SafeCommand { return s.cmd }
