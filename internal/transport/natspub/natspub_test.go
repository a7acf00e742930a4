package natspub

import (
	"encoding/json"
	"testing"
	"time"
)

func TestReady(t *testing.T) {
	t.Parallel()
	if err := New(Config{}).Ready(); err == nil {
		t.Fatal("expected error without url")
	}
	if err := New(Config{URL: "nats://127.0.0.1:4222", Subject: "bad subject"}).Ready(); err == nil {
		t.Fatal("expected error for subject with spaces")
	}
	p := New(Config{URL: "nats://127.0.0.1:4222"})
	if err := p.Ready(); err != nil {
		t.Fatalf("Ready: %v", err)
	}
	if p.cfg.Subject != DefaultSubject {
		t.Fatalf("Subject = %q", p.cfg.Subject)
	}
}

func TestEncode(t *testing.T) {
	t.Parallel()
	at := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("JST", 9*3600))
	b, err := Encode([]string{"a", "b"}, at)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(env.Texts) != 2 || env.Texts[1] != "b" {
		t.Fatalf("Texts = %q", env.Texts)
	}
	if !env.SentAt.Equal(at) || env.SentAt.Location() != time.UTC {
		t.Fatalf("SentAt = %v", env.SentAt)
	}
}
