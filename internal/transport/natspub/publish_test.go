package natspub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

func startServer(t *testing.T) *natsserver.Server {
	t.Helper()
	srv, err := natsserver.NewServer(&natsserver.Options{Host: "127.0.0.1", Port: -1})
	if err != nil {
		t.Fatalf("nats server: %v", err)
	}
	srv.Start()
	if !srv.ReadyForConnections(3 * time.Second) {
		t.Fatal("nats server not ready")
	}
	t.Cleanup(srv.Shutdown)
	return srv
}

func TestPushPublishesEnvelope(t *testing.T) {
	t.Parallel()
	srv := startServer(t)

	sub, err := nats.Connect(srv.ClientURL())
	if err != nil {
		t.Fatalf("subscriber connect: %v", err)
	}
	defer sub.Close()
	msgs := make(chan *nats.Msg, 4)
	if _, err := sub.ChanSubscribe("slots.test", msgs); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := sub.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	p := New(Config{URL: srv.ClientURL(), Subject: "slots.test", Timeout: 2 * time.Second})
	defer p.Close()

	var first *nats.Conn
	for i, texts := range [][]string{{"header\n・A", "header\n・B"}, {"header\n・C"}} {
		res, err := p.Push(context.Background(), texts)
		if err != nil {
			t.Fatalf("Push: %v", err)
		}
		if res.Body != "slots.test" {
			t.Fatalf("Result = %+v", res)
		}
		if i == 0 {
			first = p.nc
		}
	}

	var got [][]string
	for len(got) < 2 {
		select {
		case m := <-msgs:
			var env Envelope
			if err := json.Unmarshal(m.Data, &env); err != nil {
				t.Fatalf("payload %q: %v", m.Data, err)
			}
			if env.SentAt.IsZero() {
				t.Fatalf("sent_at missing: %s", m.Data)
			}
			got = append(got, env.Texts)
		case <-time.After(3 * time.Second):
			t.Fatalf("received %d of 2 messages", len(got))
		}
	}
	if len(got[0]) != 2 || got[0][1] != "header\n・B" || got[1][0] != "header\n・C" {
		t.Fatalf("got %q", got)
	}
	if first == nil || p.nc != first || first.IsClosed() {
		t.Fatal("connection should be reused between pushes")
	}
}

func TestPushConnectFailure(t *testing.T) {
	t.Parallel()
	srv := startServer(t)
	url := srv.ClientURL()
	srv.Shutdown()

	p := New(Config{URL: url, Timeout: 500 * time.Millisecond})
	if _, err := p.Push(context.Background(), []string{"x"}); err == nil {
		t.Fatal("expected connect error with the server down")
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close without a connection: %v", err)
	}
}
