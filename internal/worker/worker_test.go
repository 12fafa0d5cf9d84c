package worker

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"testing"
	"time"

	"github.com/andresmejia3/facegate/internal/detect"
)

// MockCloser wraps a bytes.Buffer to satisfy io.ReadCloser and io.WriteCloser interfaces.
// This allows us to use in-memory buffers as if they were OS Pipes.
type MockCloser struct {
	*bytes.Buffer
}

func (m *MockCloser) Close() error { return nil }

func newMockWorker(reply []byte) (*DetectorWorker, *MockCloser) {
	stdinMock := &MockCloser{Buffer: new(bytes.Buffer)}
	dataPipeMock := &MockCloser{Buffer: new(bytes.Buffer)}

	binary.Write(dataPipeMock, binary.BigEndian, uint32(len(reply)))
	dataPipeMock.Write(reply)

	// Cmd is nil because we aren't testing process management, just the protocol
	return &DetectorWorker{
		ID:          1,
		Stdin:       stdinMock,
		DataPipe:    dataPipeMock,
		ReadTimeout: time.Second,
	}, stdinMock
}

func TestProcessFrame(t *testing.T) {
	// Protocol: [Status:0] [NumFaces:1] [Box] [Left] [Right] [Score]
	payload := new(bytes.Buffer)
	payload.WriteByte(0)
	binary.Write(payload, binary.BigEndian, uint32(1))
	binary.Write(payload, binary.BigEndian, [4]float32{10, 20, 30, 40})
	binary.Write(payload, binary.BigEndian, float32(0.995))
	binary.Write(payload, binary.BigEndian, float32(1.2)) // out of range, clamped
	binary.Write(payload, binary.BigEndian, float32(0.8))

	w, stdinMock := newMockWorker(payload.Bytes())

	inputFrame := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	faces, err := w.ProcessFrame(context.Background(), inputFrame)
	if err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}

	// Expect 4 bytes header + 4 bytes data
	if sent := stdinMock.Bytes(); len(sent) != 4+len(inputFrame) {
		t.Errorf("Expected %d bytes sent, got %d", 4+len(inputFrame), len(sent))
	}

	if len(faces) != 1 {
		t.Fatalf("Expected 1 face, got %d", len(faces))
	}
	f := faces[0]
	if f.Box.X != 10 || f.Box.Y != 20 || f.Box.Width != 30 || f.Box.Height != 40 {
		t.Errorf("Unexpected box %+v", f.Box)
	}
	if math.Abs(f.LeftEyeOpenProbability-0.995) > 1e-6 {
		t.Errorf("Expected left eye approx 0.995, got %f", f.LeftEyeOpenProbability)
	}
	if f.RightEyeOpenProbability != 1 {
		t.Errorf("Expected right eye clamped to 1, got %f", f.RightEyeOpenProbability)
	}
}

func TestProcessFrame_NoFaces(t *testing.T) {
	payload := new(bytes.Buffer)
	payload.WriteByte(0)
	binary.Write(payload, binary.BigEndian, uint32(0))

	w, _ := newMockWorker(payload.Bytes())
	faces, err := w.ProcessFrame(context.Background(), []byte("frame"))
	if err != nil {
		t.Fatalf("ProcessFrame failed: %v", err)
	}
	if len(faces) != 0 {
		t.Errorf("Expected no faces, got %d", len(faces))
	}
}

func TestProcessFrame_Error(t *testing.T) {
	// Protocol: [Status:1] [MsgLen] [Msg]
	payload := new(bytes.Buffer)
	payload.WriteByte(1)

	errMsg := "model not found"
	binary.Write(payload, binary.BigEndian, uint32(len(errMsg)))
	payload.WriteString(errMsg)

	w, _ := newMockWorker(payload.Bytes())
	_, err := w.ProcessFrame(context.Background(), []byte("frame"))
	if err == nil {
		t.Fatal("Expected error, got nil")
	}
	if err.Error() != "detector worker error: "+errMsg {
		t.Errorf("Expected error message '%s', got '%v'", "detector worker error: "+errMsg, err)
	}
}

func TestProcessFrame_Truncated(t *testing.T) {
	payload := new(bytes.Buffer)
	payload.WriteByte(0)
	binary.Write(payload, binary.BigEndian, uint32(2))
	binary.Write(payload, binary.BigEndian, [4]float32{1, 2, 3, 4})

	w, _ := newMockWorker(payload.Bytes())
	if _, err := w.ProcessFrame(context.Background(), []byte("frame")); err == nil {
		t.Fatal("Expected truncation error")
	}
}

func TestProcessFrame_TimeoutStopsWorker(t *testing.T) {
	pr, pw := io.Pipe()
	w := &DetectorWorker{
		ID:          2,
		Stdin:       &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe:    pr,
		ReadTimeout: 50 * time.Millisecond,
	}

	// Frame A: the worker never answers in time.
	_, err := w.ProcessFrame(context.Background(), []byte("frame A"))
	if !errors.Is(err, ErrWorkerStopped) {
		t.Fatalf("Expected ErrWorkerStopped after timeout, got %v", err)
	}
	if !errors.Is(err, detect.ErrUnavailable) {
		t.Errorf("Expected timeout to mark the detector unavailable, got %v", err)
	}

	// A late reply for A must not be readable by anyone: the reply pipe is closed.
	payload := []byte{0, 0, 0, 0, 0}
	if _, werr := pw.Write(append([]byte{0, 0, 0, 5}, payload...)); werr == nil {
		t.Error("Expected late reply write to fail on a closed pipe")
	}

	// Frame B fails fast with the same sticky error instead of reading a split stream.
	start := time.Now()
	faces, err := w.ProcessFrame(context.Background(), []byte("frame B"))
	if !errors.Is(err, ErrWorkerStopped) {
		t.Fatalf("Expected sticky ErrWorkerStopped, got faces=%v err=%v", faces, err)
	}
	if time.Since(start) > 40*time.Millisecond {
		t.Errorf("Expected stopped worker to fail without waiting for the timeout")
	}
}

func TestProcessFrame_CancelStopsWorker(t *testing.T) {
	pr, _ := io.Pipe()
	w := &DetectorWorker{
		ID:       3,
		Stdin:    &MockCloser{Buffer: new(bytes.Buffer)},
		DataPipe: pr,
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := w.ProcessFrame(ctx, []byte("frame"))
	if !errors.Is(err, context.Canceled) || !errors.Is(err, ErrWorkerStopped) {
		t.Fatalf("Expected cancelled and stopped, got %v", err)
	}
}
