package core

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNewLogger(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "netmanager.log")
	logger, err := NewLogger(&Config{LogLevel: "warn", LogFilePath: logPath})
	if err != nil {
		t.Fatalf("NewLogger() returned an unexpected error: %v", err)
	}
	if logger.Level != logrus.WarnLevel {
		t.Errorf("NewLogger() level = %v, want %v", logger.Level, logrus.WarnLevel)
	}

	logger.Info("should be filtered")
	logger.Warn("scene load stalled")

	contents, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("error reading log file: %v", err)
	}
	if strings.Contains(string(contents), "should be filtered") {
		t.Error("info message was written despite warn level")
	}
	if !strings.Contains(string(contents), "scene load stalled") {
		t.Error("warn message was not written to the log file")
	}
}

func TestNewLogger_BadLevel(t *testing.T) {
	if _, err := NewLogger(&Config{LogLevel: "chatty"}); err == nil {
		t.Error("expected NewLogger() to reject an unknown log level")
	}
}
