// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package source

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/UVuruna/Robin-sub000/internal/config"
	"github.com/UVuruna/Robin-sub000/internal/models"
)

func TestHTTPSourceReadSignal(t *testing.T) {
	var body atomic.Value
	body.Store(`{"value": 1.87}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Table") != "7" {
			http.Error(w, "missing header", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(body.Load().(string)))
	}))
	defer srv.Close()

	src := NewHTTPSource(config.SourceConfig{
		Kind:    "http",
		URL:     srv.URL,
		Headers: map[string]string{"X-Table": "7"},
	}, time.Second)

	v, ok, err := src.ReadSignal(context.Background(), "table-7")
	if err != nil || !ok || v != 1.87 {
		t.Fatalf("ReadSignal() = %v, %v, %v", v, ok, err)
	}

	body.Store(`{"value": null}`)
	_, ok, err = src.ReadSignal(context.Background(), "table-7")
	if err != nil || ok {
		t.Fatalf("null value should be absent, got ok=%v err=%v", ok, err)
	}
}

func TestHTTPSourceBreakerOpens(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	src := NewHTTPSource(config.SourceConfig{Kind: "http", URL: srv.URL}, time.Second)
	for i := 0; i < 10; i++ {
		_, ok, err := src.ReadSignal(context.Background(), "t")
		if ok || err == nil {
			t.Fatalf("read %d: expected failure", i)
		}
		if i < 5 && !errors.Is(err, ErrBadStatus) {
			t.Errorf("read %d: expected ErrBadStatus, got %v", i, err)
		}
	}
	if got := calls.Load(); got != 5 {
		t.Errorf("expected breaker to stop calls after 5 failures, server saw %d", got)
	}
	if src.BreakerState() != "open" {
		t.Errorf("breaker state = %s", src.BreakerState())
	}
}

func TestHTTPSourceTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	src := NewHTTPSource(config.SourceConfig{Kind: "http", URL: srv.URL}, 50*time.Millisecond)
	start := time.Now()
	_, ok, err := src.ReadSignal(context.Background(), "t")
	if ok || err == nil {
		t.Fatal("expected timeout error")
	}
	if time.Since(start) > time.Second {
		t.Error("read was not bounded by timeout")
	}
}

func TestHTTPSourceAux(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"players": 120, "total_bet": 4500.5}`))
	}))
	defer srv.Close()

	src := NewHTTPSource(config.SourceConfig{Kind: "http", URL: srv.URL, AuxURL: srv.URL}, time.Second)
	aux, ok, err := src.ReadAuxiliary(context.Background(), "t")
	if err != nil || !ok {
		t.Fatalf("ReadAuxiliary() = %v, %v", ok, err)
	}
	if aux["players"] != 120 || aux["total_bet"] != 4500.5 {
		t.Errorf("aux = %v", aux)
	}

	noAux := NewHTTPSource(config.SourceConfig{Kind: "http", URL: srv.URL}, time.Second)
	if _, ok, _ := noAux.ReadAuxiliary(context.Background(), "t"); ok {
		t.Error("source without aux url should report absent")
	}
}

func TestReplayHoldsLast(t *testing.T) {
	r := NewReplay(false, models.Absent, models.Value(1.2), models.Value(2.0))
	ctx := context.Background()

	want := []models.Reading{models.Absent, models.Value(1.2), models.Value(2.0), models.Value(2.0), models.Value(2.0)}
	for i, w := range want {
		v, ok, err := r.ReadSignal(ctx, "t")
		if err != nil {
			t.Fatal(err)
		}
		if got := (models.Reading{Value: v, Present: ok}); !got.Equal(w) {
			t.Errorf("read %d = %+v, want %+v", i, got, w)
		}
	}
}

func TestReplayLoops(t *testing.T) {
	r := NewReplay(true, models.Value(1), models.Value(2))
	ctx := context.Background()
	var got []float64
	for i := 0; i < 5; i++ {
		v, _, _ := r.ReadSignal(ctx, "t")
		got = append(got, v)
	}
	want := []float64{1, 2, 1, 2, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestLoadReplay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "script.yaml")
	script := "readings: [null, null, 1.2, 1.5]\naux:\n  players: 40\n"
	if err := os.WriteFile(path, []byte(script), 0o600); err != nil {
		t.Fatal(err)
	}

	src, err := New(config.SourceConfig{Kind: "replay", Script: path}, time.Second)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx := context.Background()
	if _, ok, _ := src.ReadSignal(ctx, "t"); ok {
		t.Error("first scripted reading should be absent")
	}
	_, _, _ = src.ReadSignal(ctx, "t")
	if v, ok, _ := src.ReadSignal(ctx, "t"); !ok || v != 1.2 {
		t.Errorf("third reading = %v, %v", v, ok)
	}
	if aux, ok, _ := src.ReadAuxiliary(ctx, "t"); !ok || aux["players"] != 40 {
		t.Errorf("aux = %v, %v", aux, ok)
	}
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New(config.SourceConfig{Kind: "ocr"}, time.Second); err == nil {
		t.Error("expected error for unknown kind")
	}
}
