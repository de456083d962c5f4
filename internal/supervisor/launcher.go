// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package supervisor

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"syscall"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/UVuruna/Robin-sub000/internal/config"
	"github.com/UVuruna/Robin-sub000/internal/uplink"
)

// Environment passed to every worker process.
const (
	EnvTarget   = "ROBIN_TARGET"
	EnvRoundSeq = "ROBIN_ROUND_SEQ"
	EnvConfig   = "ROBIN_CONFIG"

	// EnvWorkerConfig carries the JSON encoded target configuration, so
	// targets registered at runtime reach the worker without a config file.
	EnvWorkerConfig = "ROBIN_WORKER_CONFIG"
)

// LaunchSpec describes one worker process to start.
type LaunchSpec struct {
	Target string

	// Config is the registered configuration of Target.
	Config config.WorkerConfig

	// RoundSeq is the last round id seen for the target. The worker
	// numbers its next round RoundSeq+1.
	RoundSeq uint64

	// Uplink receives the frames the worker writes to stdout.
	Uplink uplink.Handler
}

// Process is a running worker process.
type Process interface {
	Pid() int

	// Signal delivers sig to the worker and everything it spawned.
	Signal(sig syscall.Signal) error

	// Done is closed once the process has exited and been reaped.
	Done() <-chan struct{}

	// Err returns the exit error after Done is closed.
	Err() error
}

// Launcher starts worker processes.
type Launcher interface {
	Launch(spec LaunchSpec) (Process, error)
}

// ExecLauncher runs each worker as a child process in its own process
// group. Stdout carries uplink frames; stderr is inherited for logs.
type ExecLauncher struct {
	// Command replaces the worker command line. Empty re-executes the
	// current binary as "worker --config <ConfigPath> --target <name>".
	Command []string

	ConfigPath string
	Env        []string
	Logger     zerolog.Logger
}

func (l *ExecLauncher) commandLine(target string) (string, []string, error) {
	if len(l.Command) > 0 {
		return l.Command[0], l.Command[1:], nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("resolve executable: %w", err)
	}
	args := []string{"worker", "--target", target}
	if l.ConfigPath != "" {
		args = append(args, "--config", l.ConfigPath)
	}
	return self, args, nil
}

// Launch starts the worker process for spec.
func (l *ExecLauncher) Launch(spec LaunchSpec) (Process, error) {
	name, args, err := l.commandLine(spec.Target)
	if err != nil {
		return nil, err
	}

	encoded, err := json.Marshal(spec.Config)
	if err != nil {
		return nil, fmt.Errorf("encode worker config: %w", err)
	}

	cmd := exec.Command(name, args...)
	cmd.Env = append(os.Environ(), l.Env...)
	cmd.Env = append(cmd.Env,
		EnvTarget+"="+spec.Target,
		EnvRoundSeq+"="+strconv.FormatUint(spec.RoundSeq, 10),
		EnvWorkerConfig+"="+string(encoded),
	)
	if l.ConfigPath != "" {
		cmd.Env = append(cmd.Env, EnvConfig+"="+l.ConfigPath)
	}
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = sysProcAttr()

	r, w, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("create uplink pipe: %w", err)
	}
	cmd.Stdout = w

	if err := cmd.Start(); err != nil {
		_ = r.Close()
		_ = w.Close()
		return nil, fmt.Errorf("start worker %s: %w", spec.Target, err)
	}
	_ = w.Close()

	p := &execProcess{cmd: cmd, done: make(chan struct{})}
	logger := l.Logger.With().Str("target", spec.Target).Int("pid", cmd.Process.Pid).Logger()

	go func() {
		defer r.Close()
		if spec.Uplink != nil {
			if err := uplink.Read(r, spec.Uplink, logger); err != nil {
				logger.Warn().Err(err).Msg("Uplink read failed")
			}
		}
		// Keep draining so the worker never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}()
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()

	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

func (p *execProcess) Pid() int                        { return p.cmd.Process.Pid }
func (p *execProcess) Done() <-chan struct{}           { return p.done }
func (p *execProcess) Signal(sig syscall.Signal) error { return signalGroup(p.cmd.Process, sig) }

func (p *execProcess) Err() error {
	<-p.done
	return p.err
}
