package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"math"
	"os"
	"sync"
	"time"

	"github.com/andresmejia3/facegate/internal/detect"
	"github.com/andresmejia3/facegate/internal/types"
	"github.com/andresmejia3/facegate/internal/utils"
)

const (
	statusOK    = 0
	statusError = 1

	maxFaces   = 256
	maxPayload = 16 * 1024 * 1024
)

// ErrWorkerStopped is returned for every frame after the worker lost its reply framing.
var ErrWorkerStopped = fmt.Errorf("detector worker stopped: %w", detect.ErrUnavailable)

// DetectorWorker drives an external face detector process.
//
// Protocol: frames go to the child's stdin as [u32 len][jpeg]. Replies come back on
// FD 3 as [u32 len][payload], payload being
//
//	[status u8=0][u32 n] n*([4]f32 box, f32 leftEye, f32 rightEye, f32 score)
//	[status u8=1][u32 len][message]
type DetectorWorker struct {
	ID          int
	Cmd         *utils.SafeCommand
	Stdin       io.WriteCloser
	DataPipe    io.ReadCloser
	ReadTimeout time.Duration

	mu     sync.Mutex
	broken error
}

// NewDetectorWorker starts the detector command with a side-channel pipe on FD 3.
func NewDetectorWorker(ctx context.Context, id int, name string, args []string, readTimeout time.Duration) (*DetectorWorker, error) {
	cmd := utils.NewSafeCommand(ctx, name, args...)

	// Create a side-channel pipe (FD 3) for clean data transfer
	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create pipe: %w", err)
	}
	cmd.Cmd.ExtraFiles = []*os.File{w}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		w.Close()
		r.Close()
		return nil, fmt.Errorf("detector worker %d failed to start: %w", id, err)
	}

	// Close the write-end in the parent so only the child holds it
	w.Close()

	return &DetectorWorker{
		ID:          id,
		Cmd:         cmd,
		Stdin:       stdin,
		DataPipe:    r,
		ReadTimeout: readTimeout,
	}, nil
}

// Detect encodes the preview frame as JPEG and asks the worker for faces.
func (w *DetectorWorker) Detect(ctx context.Context, img image.Image) ([]types.DetectedFace, error) {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 90}); err != nil {
		return nil, fmt.Errorf("failed to encode preview: %w", err)
	}
	return w.ProcessFrame(ctx, buf.Bytes())
}

// ProcessFrame sends one JPEG frame and decodes the worker's reply.
// A timeout or cancellation mid-read stops the worker: a late reply would desync the stream.
func (w *DetectorWorker) ProcessFrame(ctx context.Context, data []byte) ([]types.DetectedFace, error) {
	if err := w.stopped(); err != nil {
		return nil, err
	}
	if err := binary.Write(w.Stdin, binary.BigEndian, uint32(len(data))); err != nil {
		return nil, err
	}
	if _, err := w.Stdin.Write(data); err != nil {
		return nil, err
	}

	payload, err := w.readReply(ctx)
	if err != nil {
		return nil, err
	}
	return decodeReply(payload)
}

func (w *DetectorWorker) readReply(ctx context.Context) ([]byte, error) {
	type reply struct {
		body []byte
		err  error
	}
	done := make(chan reply, 1)
	go func() {
		header := make([]byte, 4)
		if _, err := io.ReadFull(w.DataPipe, header); err != nil {
			done <- reply{err: err}
			return
		}
		n := binary.BigEndian.Uint32(header)
		if n > maxPayload {
			done <- reply{err: fmt.Errorf("reply of %d bytes exceeds limit", n)}
			return
		}
		body := make([]byte, n)
		_, err := io.ReadFull(w.DataPipe, body)
		done <- reply{body: body, err: err}
	}()

	var timeout <-chan time.Time
	if w.ReadTimeout > 0 {
		t := time.NewTimer(w.ReadTimeout)
		defer t.Stop()
		timeout = t.C
	}

	select {
	case r := <-done:
		return r.body, r.err
	case <-timeout:
		return nil, w.stop(fmt.Errorf("detector worker %d timed out after %s", w.ID, w.ReadTimeout))
	case <-ctx.Done():
		return nil, w.stop(ctx.Err())
	}
}

func (w *DetectorWorker) stopped() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.broken
}

// stop closes the reply pipe, which unblocks the abandoned reader, and kills the process.
func (w *DetectorWorker) stop(cause error) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.broken == nil {
		w.broken = fmt.Errorf("%w: %w", ErrWorkerStopped, cause)
		w.DataPipe.Close()
		if w.Cmd != nil && w.Cmd.Process != nil {
			w.Cmd.Process.Kill()
		}
	}
	return w.broken
}

func decodeReply(payload []byte) ([]types.DetectedFace, error) {
	r := bytes.NewReader(payload)
	status, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("empty reply: %w", err)
	}

	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return nil, fmt.Errorf("truncated reply: %w", err)
	}

	if status == statusError {
		if int(n) > r.Len() {
			return nil, fmt.Errorf("truncated error message")
		}
		msg := make([]byte, n)
		io.ReadFull(r, msg)
		return nil, fmt.Errorf("detector worker error: %s", msg)
	}
	if status != statusOK {
		return nil, fmt.Errorf("unknown reply status %d", status)
	}
	if n > maxFaces {
		return nil, fmt.Errorf("reply claims %d faces", n)
	}

	faces := make([]types.DetectedFace, 0, n)
	for i := uint32(0); i < n; i++ {
		var rec struct {
			Box   [4]float32
			Left  float32
			Right float32
			Score float32
		}
		if err := binary.Read(r, binary.BigEndian, &rec); err != nil {
			return nil, fmt.Errorf("truncated face %d: %w", i, err)
		}
		faces = append(faces, types.DetectedFace{
			Box: types.BoundingBox{
				X:      float64(rec.Box[0]),
				Y:      float64(rec.Box[1]),
				Width:  float64(rec.Box[2]),
				Height: float64(rec.Box[3]),
			},
			LeftEyeOpenProbability:  clamp01(rec.Left),
			RightEyeOpenProbability: clamp01(rec.Right),
			Score:                   float64(rec.Score),
		})
	}
	return faces, nil
}

func clamp01(v float32) float64 {
	if math.IsNaN(float64(v)) {
		return 0
	}
	return math.Max(0, math.Min(1, float64(v)))
}

// Close shuts the worker's pipes and waits for it to exit.
func (w *DetectorWorker) Close() error {
	w.Stdin.Close()
	w.DataPipe.Close()
	if w.Cmd == nil {
		return nil
	}
	return w.Cmd.Wait()
}
