// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package websocket

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/UVuruna/Robin-sub000/internal/logging"
	"github.com/UVuruna/Robin-sub000/internal/models"
	"github.com/UVuruna/Robin-sub000/internal/uplink"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{
		Level:  "info",
		Format: "console",
		Output: io.Discard,
	})
}

// setupHub creates and starts a hub that stops with the test.
func setupHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = hub.RunWithContext(ctx) }()
	return hub
}

func createTestClient(hub *Hub) *Client {
	return &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message, 256)}
}

// registerClient registers a client and waits until the hub has it.
func registerClient(t *testing.T, hub *Hub, client *Client) {
	t.Helper()
	want := hub.GetClientCount() + 1
	hub.Register <- client
	deadline := time.Now().Add(time.Second)
	for hub.GetClientCount() < want {
		if time.Now().After(deadline) {
			t.Fatal("client registration timed out")
		}
		time.Sleep(time.Millisecond)
	}
}

func receive(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case msg := <-c.send:
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return Message{}
	}
}

func expectNone(t *testing.T, c *Client) {
	t.Helper()
	select {
	case msg := <-c.send:
		t.Fatalf("unexpected message %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNewHub(t *testing.T) {
	hub := NewHub()
	if hub.clients == nil || hub.broadcast == nil || hub.Register == nil || hub.Unregister == nil {
		t.Fatal("hub not fully initialized")
	}
	if hub.GetClientCount() != 0 {
		t.Errorf("Expected 0 clients initially, got %d", hub.GetClientCount())
	}
}

func TestHub_HandleFrameBroadcasts(t *testing.T) {
	hub := setupHub(t)
	client := createTestClient(hub)
	registerClient(t, hub, client)

	frames := []uplink.Frame{
		{Type: uplink.FrameHealth, Target: "a", Health: &models.HealthSample{Target: "a"}},
		{Type: uplink.FrameSnapshot, Target: "a", Snapshot: &models.RuntimeState{Target: "a", Phase: models.PhaseActive}},
		{Type: uplink.FrameRound, Target: "a", Round: &models.RoundRecord{ID: 3, Target: "a"}},
		{Type: uplink.FrameMilestone, Target: "a", Milestone: &models.MilestoneEvent{Target: "a", RoundID: 3}},
	}
	for _, f := range frames {
		hub.HandleFrame(f)
	}

	for _, f := range frames {
		msg := receive(t, client)
		if msg.Type != string(f.Type) || msg.Target != "a" || msg.Data == nil {
			t.Errorf("got %+v for frame %s", msg, f.Type)
		}
	}
}

func TestHub_UnknownFrameIgnored(t *testing.T) {
	hub := setupHub(t)
	client := createTestClient(hub)
	registerClient(t, hub, client)

	hub.HandleFrame(uplink.Frame{Type: "bogus", Target: "a"})
	expectNone(t, client)
}

func TestHub_TargetFilter(t *testing.T) {
	hub := setupHub(t)
	all := createTestClient(hub)
	onlyB := createTestClient(hub)
	onlyB.SetTargets([]string{"b"})
	registerClient(t, hub, all)
	registerClient(t, hub, onlyB)

	hub.BroadcastStatus(models.WorkerStatus{Name: "a", State: models.WorkerRunning})
	hub.BroadcastStatus(models.WorkerStatus{Name: "b", State: models.WorkerCrashed})

	if msg := receive(t, all); msg.Target != "a" {
		t.Errorf("first message target = %q", msg.Target)
	}
	if msg := receive(t, all); msg.Target != "b" {
		t.Errorf("second message target = %q", msg.Target)
	}
	msg := receive(t, onlyB)
	if msg.Target != "b" || msg.Type != MessageTypeWorkerStatus {
		t.Errorf("filtered client got %+v", msg)
	}
	expectNone(t, onlyB)

	// Messages without a target reach filtered clients too.
	hub.Broadcast(Message{Type: "notice"})
	if msg := receive(t, onlyB); msg.Type != "notice" {
		t.Errorf("untargeted message not delivered, got %+v", msg)
	}
}

func TestHub_Unregister(t *testing.T) {
	hub := setupHub(t)
	client := createTestClient(hub)
	registerClient(t, hub, client)

	hub.Unregister <- client
	select {
	case _, ok := <-client.send:
		if ok {
			t.Error("expected closed send channel")
		}
	case <-time.After(time.Second):
		t.Fatal("send channel not closed")
	}

	// Unregistering twice must not panic.
	hub.Unregister <- client
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	hub := NewHub()
	slow := &Client{id: clientIDCounter.Add(1), hub: hub, send: make(chan Message)}
	hub.clients[slow] = true

	hub.broadcastToClients(Message{Type: MessageTypeHealth, Target: "a"})

	if hub.GetClientCount() != 0 {
		t.Error("slow client not removed")
	}
	if _, ok := <-slow.send; ok {
		t.Error("slow client channel not closed")
	}
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	hub := NewHub()
	for i := 0; i < cap(hub.broadcast); i++ {
		if !hub.Broadcast(Message{Type: MessageTypeHealth}) {
			t.Fatalf("broadcast %d dropped before buffer full", i)
		}
	}

	done := make(chan bool)
	go func() { done <- hub.Broadcast(Message{Type: MessageTypeHealth}) }()
	select {
	case queued := <-done:
		if queued {
			t.Error("expected drop when buffer full")
		}
	case <-time.After(time.Second):
		t.Fatal("Broadcast blocked")
	}
}

func TestHub_RunWithContext(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- hub.RunWithContext(ctx) }()

	client := createTestClient(hub)
	registerClient(t, hub, client)
	cancel()

	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("RunWithContext() = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("hub did not stop")
	}
	if hub.GetClientCount() != 0 {
		t.Error("clients not closed on shutdown")
	}
}

func TestGetShutdownReason(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if got := getShutdownReason(ctx); got != ShutdownReasonContextCanceled {
		t.Errorf("canceled: got %s", got)
	}

	ctx, cancel = context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()
	if got := getShutdownReason(ctx); got != ShutdownReasonContextDeadline {
		t.Errorf("deadline: got %s", got)
	}
}

func TestMarshalMessage(t *testing.T) {
	data, err := MarshalMessage(Message{Type: MessageTypeRound, Target: "a", Data: map[string]int{"id": 1}})
	if err != nil {
		t.Fatal(err)
	}
	want := `{"type":"round","target":"a","data":{"id":1}}`
	if string(data) != want {
		t.Errorf("MarshalMessage() = %s, want %s", data, want)
	}
}
