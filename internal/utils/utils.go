package utils

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// --- 1. Process Safety & Command Wrapping ---

// SafeCommand wraps a standard exec.Cmd with a buffer to catch Stderr.
// This ensures we don't lose crash information if ffmpeg or a detector worker dies.
type SafeCommand struct {
	*exec.Cmd
	Stderr *bytes.Buffer
}

// NewSafeCommand initializes a command bound to ctx and attaches a buffer to its Stderr pipe.
// It prepares the command for execution but does not start it.
func NewSafeCommand(ctx context.Context, name string, args ...string) *SafeCommand {
	cmd := exec.CommandContext(ctx, name, args...)
	stderr := &bytes.Buffer{}
	cmd.Stderr = stderr
	return &SafeCommand{Cmd: cmd, Stderr: stderr}
}

// ShowError prints a formatted error box and dumps subprocess logs if a SafeCommand is provided.
func ShowError(context string, err error, s *SafeCommand) {
	fmt.Fprintf(os.Stderr, "\n---------------------------------------------------------\n")
	fmt.Fprintf(os.Stderr, "🚨 FACEGATE ERROR: %s\n", context)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAILS: %v\n", err)
	}

	// If we have a SafeCommand and it captured logs, print them.
	if s != nil && s.Stderr.Len() > 0 {
		fmt.Fprintf(os.Stderr, "\nSUBPROCESS LOGS:\n%s\n", s.Stderr.String())
	}
	fmt.Fprintf(os.Stderr, "---------------------------------------------------------\n")
}

// Die is ShowError followed by exit(1).
func Die(context string, err error, s *SafeCommand) {
	ShowError(context, err, s)
	os.Exit(1)
}

// --- 2. Camera Engine ---

var (
	JpegSOI = []byte{0xFF, 0xD8} // Start of Image
	JpegEOI = []byte{0xFF, 0xD9} // End of Image
)

// SplitJpeg is the custom splitter for bufio.Scanner
// It locates the Start Of Image (FFD8) and End Of Image (FFD9) markers to extract full JPEG frames.
func SplitJpeg(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	start := bytes.Index(data, JpegSOI)
	if start == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	end := bytes.Index(data[start:], JpegEOI)
	if end == -1 {
		if atEOF {
			return len(data), nil, nil
		}
		return 0, nil, nil
	}
	return start + end + 2, data[start : start+end+2], nil
}

// IsDevice reports whether the input names a V4L2 capture device rather than a file.
func IsDevice(input string) bool {
	return strings.HasPrefix(input, "/dev/video")
}

// NewFFmpegCmd creates a decoder that emits the input as MJPEG frames on Stdout.
// Devices are opened through v4l2; files are read at their native rate when realtime is set.
func NewFFmpegCmd(ctx context.Context, input string, realtime bool) *SafeCommand {
	args := []string{"-hide_banner", "-loglevel", "error"}
	if IsDevice(input) {
		args = append(args, "-f", "v4l2")
	} else if realtime {
		args = append(args, "-re")
	}
	args = append(args, "-i", input, "-f", "image2pipe", "-vcodec", "mjpeg", "-q:v", "2", "-")
	return NewSafeCommand(ctx, "ffmpeg", args...)
}

// GenerateSourceID creates a deterministic hash for the capture source
// based on its path, size, and modification time. Devices hash by path alone.
func GenerateSourceID(path string) (string, error) {
	input := path
	if !IsDevice(path) {
		info, err := os.Stat(path)
		if err != nil {
			return "", err
		}
		input = fmt.Sprintf("%s-%d-%d", path, info.Size(), info.ModTime().UnixNano())
	}
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:]), nil
}

// FmtDuration renders a duration as HH:MM:SS.
func FmtDuration(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
