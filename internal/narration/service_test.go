package narration

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/loqalabs/culinascan/internal/bus"
	"github.com/loqalabs/culinascan/internal/config"
	"github.com/loqalabs/culinascan/internal/natsserver"
	"github.com/loqalabs/culinascan/internal/playback"
	"github.com/loqalabs/culinascan/internal/protocol"
)

func startBus(t *testing.T) *bus.Client {
	t.Helper()
	srv, err := natsserver.Start(config.BusConfig{
		Enabled:  true,
		Embedded: true,
		Port:     -1,
		StoreDir: t.TempDir(),
	}, newLogger())
	if err != nil {
		t.Fatalf("start nats: %v", err)
	}
	t.Cleanup(srv.Shutdown)

	client, err := bus.Connect(context.Background(), config.BusConfig{
		Servers:        []string{srv.ClientURL()},
		ConnectTimeout: 2000,
	}, newLogger())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(client.Close)
	return client
}

func TestServiceNarratesFromBus(t *testing.T) {
	client := startBus(t)

	sink := &manualSink{}
	player := playback.NewController(sink, newLogger())
	session := NewSession(tone(), player, Options{Voice: "Kore"}, newLogger())
	spotlight := NewSpotlight(client, newLogger())

	svc := NewService(context.Background(), client, session, spotlight, newLogger())
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}
	t.Cleanup(svc.Close)

	started, err := client.Conn().SubscribeSync(protocol.SubjectNarrationStarted)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	ended, err := client.Conn().SubscribeSync(protocol.SubjectNarrationEnded)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := client.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}

	data, _ := json.Marshal(protocol.NarrationRequest{CardID: "soup", Text: "simmer gently"})
	if err := client.Publish(protocol.SubjectNarrationRequest, data); err != nil {
		t.Fatalf("publish: %v", err)
	}

	msg, err := started.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("waiting for started: %v", err)
	}
	var status protocol.NarrationStatus
	if err := json.Unmarshal(msg.Data, &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if status.CardID != "soup" || !status.Speaking {
		t.Fatalf("unexpected status %+v", status)
	}
	if spotlight.Speaking() != "soup" {
		t.Fatalf("spotlight not lit, got %q", spotlight.Speaking())
	}

	stop, _ := json.Marshal(protocol.NarrationStop{CardID: "soup"})
	if err := client.Publish(protocol.SubjectNarrationStop, stop); err != nil {
		t.Fatalf("publish stop: %v", err)
	}
	if _, err := ended.NextMsg(2 * time.Second); err != nil {
		t.Fatalf("waiting for ended: %v", err)
	}
	if player.Active() {
		t.Fatal("playback should be stopped")
	}
}

func TestServiceIgnoresIncompleteRequests(t *testing.T) {
	client := startBus(t)

	sink := &manualSink{}
	session := NewSession(tone(), playback.NewController(sink, newLogger()), Options{}, newLogger())
	svc := NewService(context.Background(), client, session, NewSpotlight(nil, newLogger()), newLogger())
	if err := svc.Start(); err != nil {
		t.Fatalf("start service: %v", err)
	}

	for _, payload := range [][]byte{[]byte("{"), []byte(`{"card_id":"x"}`)} {
		if err := client.Publish(protocol.SubjectNarrationRequest, payload); err != nil {
			t.Fatalf("publish: %v", err)
		}
	}
	if err := client.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	svc.Close()

	if sink.count() != 0 {
		t.Fatalf("expected no playback, got %d voices", sink.count())
	}
}
