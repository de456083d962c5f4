// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

//go:build unix

package supervisor

import (
	"io"
	"os/exec"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/UVuruna/Robin-sub000/internal/logging"
	"github.com/UVuruna/Robin-sub000/internal/models"
	"github.com/UVuruna/Robin-sub000/internal/uplink"
)

func TestExecLauncherKilledWorkerIsRestarted(t *testing.T) {
	sleep, err := exec.LookPath("sleep")
	if err != nil {
		t.Skip("sleep not available")
	}

	launcher := &ExecLauncher{Command: []string{sleep, "60"}, Logger: logging.NewTestLogger(io.Discard)}
	sup := New(testSupervisorConfig(), WithLauncher(launcher))
	cfg := testWorkerConfig("alpha")
	cfg.Restart.Delay = 20 * time.Millisecond
	if err := sup.Register(cfg); err != nil {
		t.Fatal(err)
	}
	if err := sup.Start("alpha"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { _ = sup.ShutdownAll() })

	st, _ := sup.Status("alpha")
	firstPid := st.PID
	if firstPid <= 0 {
		t.Fatalf("pid = %d", firstPid)
	}

	if err := syscall.Kill(firstPid, syscall.SIGKILL); err != nil {
		t.Fatalf("kill: %v", err)
	}

	st = checkUntil(t, sup, func(st models.WorkerStatus) bool {
		return st.State == models.WorkerRunning && st.RestartCount == 1
	}, "alpha")
	if st.PID == firstPid || st.PID <= 0 {
		t.Errorf("pid after restart = %d, first was %d", st.PID, firstPid)
	}
	if st.CrashCount != 1 {
		t.Errorf("CrashCount = %d", st.CrashCount)
	}

	if err := sup.ShutdownAll(); err != nil {
		t.Errorf("ShutdownAll: %v", err)
	}
	st, _ = sup.Status("alpha")
	if st.State != models.WorkerStopped {
		t.Errorf("state after shutdown = %s", st.State)
	}
}

func TestExecLauncherPassesEnvironment(t *testing.T) {
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}

	var (
		mu     sync.Mutex
		frames []uplink.Frame
	)
	handler := uplink.HandlerFunc(func(f uplink.Frame) {
		mu.Lock()
		frames = append(frames, f)
		mu.Unlock()
	})

	// The script echoes its environment back as a health frame.
	script := `printf '{"type":"health","target":"%s","health":{"target":"%s","metrics":{"round_id":%s}}}\n' "$ROBIN_TARGET" "$ROBIN_TARGET" "$ROBIN_ROUND_SEQ"`
	launcher := &ExecLauncher{Command: []string{sh, "-c", script}, Logger: logging.NewTestLogger(io.Discard)}

	proc, err := launcher.Launch(LaunchSpec{Target: "alpha", RoundSeq: 7, Uplink: handler})
	if err != nil {
		t.Fatalf("Launch: %v", err)
	}
	select {
	case <-proc.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
	if err := proc.Err(); err != nil {
		t.Fatalf("exit: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 1
	})
	mu.Lock()
	defer mu.Unlock()
	f := frames[0]
	if f.Target != "alpha" || f.Health == nil || f.Health.Metrics.RoundID != 7 {
		t.Errorf("frame = %+v", f)
	}
}
