package log

import (
	"bytes"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestSetupLevel(t *testing.T) {
	defer logger.SetLevel(logrus.WarnLevel)
	defer SetOutput(os.Stderr)

	if err := Setup(Config{Level: "debug"}); err != nil {
		t.Fatalf("Setup failed: %v", err)
	}
	var buf bytes.Buffer
	SetOutput(&buf)

	Debug(Fields{"frame": 3}, "offered batch")
	if !bytes.Contains(buf.Bytes(), []byte("offered batch")) {
		t.Errorf("expected debug entry, got %q", buf.String())
	}
	if !bytes.Contains(buf.Bytes(), []byte("frame:3")) {
		t.Errorf("expected field in output, got %q", buf.String())
	}
}

func TestSetupRejectsUnknownLevel(t *testing.T) {
	if err := Setup(Config{Level: "loud"}); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLevelFilters(t *testing.T) {
	defer SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	var buf bytes.Buffer
	SetOutput(&buf)

	Info(nil, "hidden")
	Warn(nil, "shown")
	if bytes.Contains(buf.Bytes(), []byte("hidden")) {
		t.Errorf("info entry should be filtered at warn level")
	}
	if !bytes.Contains(buf.Bytes(), []byte("shown")) {
		t.Errorf("warn entry missing")
	}
}
