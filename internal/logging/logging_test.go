package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONLoggerWritesFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("debug", "json", &buf)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	Named(logger, "capture").Info("delivery captured", "id", "abc", "bytes", 7)

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if rec["msg"] != "delivery captured" || rec["component"] != "capture" || rec["id"] != "abc" {
		t.Fatalf("unexpected record: %v", rec)
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New("warn", "text", &buf)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	logger.Info("hidden")
	logger.Debug("hidden")
	logger.Warn("shown")
	out := buf.String()
	if strings.Contains(out, "hidden") || !strings.Contains(out, "shown") {
		t.Fatalf("unexpected output: %q", out)
	}
}

func TestInvalidSettings(t *testing.T) {
	if _, err := New("loud", "text", nil); err == nil {
		t.Fatalf("expected invalid level error")
	}
	if _, err := New("info", "xml", nil); err == nil {
		t.Fatalf("expected invalid format error")
	}
}

func TestStdWriter(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := New("info", "text", &buf)
	if _, err := StdWriter(logger).Write([]byte("GET /deliveries 200\n")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), "GET /deliveries 200") {
		t.Fatalf("std line not forwarded: %q", buf.String())
	}
}
