package logx

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"
)

func TestLoggerWritesFieldsAndComponent(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := NewWriter(&buf, "info").Named("pipeline")

	log.Debug("hidden")
	log.Warn("send failed", Int("chunk", 2), Err(errors.New("boom")), Set("token", "x"))

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("want exactly one JSON line, got %q: %v", buf.String(), err)
	}
	if line["comp"] != "pipeline" || line["message"] != "send failed" || line["err"] != "boom" {
		t.Fatalf("line = %v", line)
	}
	if line["chunk"] != float64(2) || line["token_set"] != true {
		t.Fatalf("fields = %v", line)
	}
	if _, ok := line["token"]; ok {
		t.Fatalf("secret leaked: %v", line)
	}
}

func TestZeroLoggerIsSafe(t *testing.T) {
	t.Parallel()
	var l Logger
	if !l.IsZero() {
		t.Fatal("zero Logger should report IsZero")
	}
	l.Error("nothing happens")
	if Nop().IsZero() {
		t.Fatal("Nop should not be zero")
	}
}

func TestValidLevel(t *testing.T) {
	t.Parallel()
	for _, s := range []string{"", "debug", "INFO", "warning", "error", "trace"} {
		if !ValidLevel(s) {
			t.Errorf("ValidLevel(%q) = false", s)
		}
	}
	for _, s := range []string{"loud", "verbose"} {
		if ValidLevel(s) {
			t.Errorf("ValidLevel(%q) = true", s)
		}
	}
}

func TestServiceStderrFallbackHonorsJSON(t *testing.T) {
	t.Parallel()
	var stdout, stderr bytes.Buffer
	s := &Service{stdout: &stdout, stderr: &stderr}
	s.Apply(Config{Level: "info", JSON: true})
	s.Logger().Named("app").Info("started")

	if stdout.Len() != 0 {
		t.Fatalf("stdout written without Console: %q", stdout.String())
	}
	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(stderr.Bytes()), &line); err != nil {
		t.Fatalf("stderr is not JSON: %q: %v", stderr.String(), err)
	}
	if line["message"] != "started" || line["comp"] != "app" {
		t.Fatalf("line = %v", line)
	}

	stderr.Reset()
	s.Apply(Config{Level: "info", Console: true, JSON: true})
	s.Logger().Info("moved")
	if stderr.Len() != 0 || !bytes.Contains(stdout.Bytes(), []byte(`"message":"moved"`)) {
		t.Fatalf("stdout = %q stderr = %q", stdout.String(), stderr.String())
	}
}
