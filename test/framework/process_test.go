package framework

import (
	"strings"
	"testing"
	"time"
)

// TestProcessGracefulShutdown exercises the two-phase shutdown semantics
// pkg/supervisor.KillGracefully relies on: a process that traps SIGTERM and
// exits cleanly should never need the SIGKILL fallback.
func TestProcessGracefulShutdown(t *testing.T) {
	p := NewProcess("sh")
	p.Args = []string{"-c", `trap 'echo caught-term; exit 0' TERM; echo ready; while true; do sleep 0.05; done`}

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := p.WaitForLog("ready", 2*time.Second); err != nil {
		t.Fatalf("process never became ready: %v", err)
	}
	if !p.IsRunning() {
		t.Fatal("IsRunning() = false, want true right after start")
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if p.IsRunning() {
		t.Error("IsRunning() = true after Stop(), want false")
	}
	if !strings.Contains(p.Logs(), "caught-term") {
		t.Errorf("logs = %q, want it to contain %q", p.Logs(), "caught-term")
	}
}

// TestProcessKillEscalation verifies that Kill's SIGKILL stops a process
// that ignores SIGTERM, the kind of survivor pkg/supervisor.KillGracefully
// escalates on. It calls Kill directly rather than waiting out Stop's
// timeout.
func TestProcessKillEscalation(t *testing.T) {
	p := NewProcess("sh")
	p.Args = []string{"-c", `trap '' TERM; echo ready; while true; do sleep 0.05; done`}

	if err := p.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := p.WaitForLog("ready", 2*time.Second); err != nil {
		t.Fatalf("process never became ready: %v", err)
	}

	if err := p.Kill(); err != nil {
		t.Fatalf("Kill() error = %v", err)
	}
	if p.IsRunning() {
		t.Error("IsRunning() = true after Kill(), want false")
	}
}

// TestLogBufferContains verifies the log capture buffer used to detect
// readiness markers and shutdown acknowledgements.
func TestLogBufferContains(t *testing.T) {
	lb := &LogBuffer{}
	lb.Append("starting up")
	lb.Append("listening on :4000")

	if !lb.Contains("listening") {
		t.Error("Contains(\"listening\") = false, want true")
	}
	if lb.Contains("shutting down") {
		t.Error("Contains(\"shutting down\") = true, want false")
	}
	if lb.Lines() != 2 {
		t.Errorf("Lines() = %d, want 2", lb.Lines())
	}
}
