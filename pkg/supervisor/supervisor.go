package supervisor

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/process"
)

// ErrOrphaned names the condition of a session that exists with no
// corresponding State Store row. ScanOrphans reports such sessions as a list
// of names; nothing in this module returns ErrOrphaned.
var ErrOrphaned = fmt.Errorf("supervisor: orphaned session")

// killPollInterval and killGracePeriod implement the two-phase shutdown in
// §4.3: SIGTERM, poll for liveness, SIGKILL any survivor after 500ms.
const (
	killPollInterval = 25 * time.Millisecond
	killGracePeriod  = 500 * time.Millisecond
)

// Supervisor drives a terminal multiplexer binary (tmux by default) and the
// web-terminal bridge binary for one host. It holds no state of its own —
// every operation either shells out or signals a pid the caller supplies,
// matching the Orchestrator's short-lived-process model (§4.5).
type Supervisor struct {
	multiplexer string
	bridgeBin   string
	scratchDir  string
	log         zerolog.Logger
}

// New creates a Supervisor. multiplexer is the tmux-compatible binary name
// (from Config.Multiplexer); bridgeBin is the web-terminal bridge binary;
// scratchDir holds per-session launch scripts (§4.3's "launch-script
// detour").
func New(multiplexer, bridgeBin, scratchDir string, logger zerolog.Logger) *Supervisor {
	return &Supervisor{
		multiplexer: multiplexer,
		bridgeBin:   bridgeBin,
		scratchDir:  scratchDir,
		log:         logger,
	}
}

// SessionSpec describes a multiplexer session to create.
type SessionSpec struct {
	Name       string // canonical name: af-architect-<port>, builder-<project>-<id>, af-shell-<id>
	Command    string // shell, or a script path written by the caller
	Args       []string
	Width      int
	Height     int
	ScratchCmd string // when non-empty, written to a launch script instead of passed inline
}

// needsLaunchScript reports whether cmd contains characters the shell would
// re-interpret if passed inline — backticks, $, quotes, or newlines are
// common in role prompts, so those commands always go through a script file.
func needsLaunchScript(cmd string) bool {
	return strings.ContainsAny(cmd, "`$\"'\n")
}

// StartSession creates a detached multiplexer session with a fixed initial
// size, status bar off, mouse on, clipboard pass-through on. Commands whose
// arguments may contain shell metacharacters are written to a scratch
// launch script first (§4.3) rather than passed as literal tmux arguments.
func (s *Supervisor) StartSession(ctx context.Context, spec SessionSpec) error {
	command := spec.Command
	if spec.ScratchCmd != "" && needsLaunchScript(spec.ScratchCmd) {
		scriptPath, err := s.writeLaunchScript(spec.Name, spec.ScratchCmd)
		if err != nil {
			return fmt.Errorf("supervisor: write launch script for %s: %w", spec.Name, err)
		}
		command = scriptPath
	} else if spec.ScratchCmd != "" {
		command = spec.ScratchCmd
	}

	width, height := spec.Width, spec.Height
	if width == 0 {
		width = 220
	}
	if height == 0 {
		height = 50
	}

	args := []string{
		"new-session", "-d",
		"-s", spec.Name,
		"-x", strconv.Itoa(width),
		"-y", strconv.Itoa(height),
		command,
	}
	cmd := exec.CommandContext(ctx, s.multiplexer, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("supervisor: %s new-session %s: %w (%s)", s.multiplexer, spec.Name, err, strings.TrimSpace(string(out)))
	}

	configureArgs := [][]string{
		{"set-option", "-t", spec.Name, "status", "off"},
		{"set-option", "-t", spec.Name, "mouse", "on"},
		{"set-option", "-t", spec.Name, "set-clipboard", "on"},
	}
	for _, a := range configureArgs {
		if out, err := exec.CommandContext(ctx, s.multiplexer, a...).CombinedOutput(); err != nil {
			s.log.Warn().Str("session", spec.Name).Err(err).Str("output", strings.TrimSpace(string(out))).Msg("configure session option failed")
		}
	}
	return nil
}

func (s *Supervisor) writeLaunchScript(sessionName, body string) (string, error) {
	if err := os.MkdirAll(s.scratchDir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(s.scratchDir, sessionName+".sh")
	content := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(content), 0o700); err != nil {
		return "", err
	}
	return path, nil
}

// Bridge is a running web-terminal bridge process bound to loopback.
type Bridge struct {
	cmd  *exec.Cmd
	PID  int
	Port int
}

// SpawnBridge starts the web-terminal bridge binary attached to sessionName
// in writable mode, bound to 127.0.0.1:port. clientPage, when non-empty, is
// passed through so the bridge serves a custom client page enabling
// clickable file paths in terminal output.
func (s *Supervisor) SpawnBridge(ctx context.Context, sessionName string, port int, clientPage string) (*Bridge, error) {
	args := []string{
		"--session", sessionName,
		"--multiplexer", s.multiplexer,
		"--bind", fmt.Sprintf("127.0.0.1:%d", port),
		"--writable",
	}
	if clientPage != "" {
		args = append(args, "--client-page", clientPage)
	}

	cmd := exec.CommandContext(ctx, s.bridgeBin, args...)
	cmd.Env = os.Environ()
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("supervisor: spawn bridge for %s: %w", sessionName, err)
	}
	return &Bridge{cmd: cmd, PID: cmd.Process.Pid, Port: port}, nil
}

// KillGracefully implements the two-phase shutdown from §4.3: SIGTERM, poll
// at killPollInterval, SIGKILL any survivor once killGracePeriod elapses.
func KillGracefully(pid int) error {
	if pid <= 0 {
		return nil
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return nil
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		if isNotRunning(err) {
			return nil
		}
		return fmt.Errorf("supervisor: SIGTERM pid %d: %w", pid, err)
	}

	deadline := time.Now().Add(killGracePeriod)
	for time.Now().Before(deadline) {
		if !IsAlive(pid) {
			return nil
		}
		time.Sleep(killPollInterval)
	}
	if !IsAlive(pid) {
		return nil
	}
	if err := proc.Signal(syscall.SIGKILL); err != nil && !isNotRunning(err) {
		return fmt.Errorf("supervisor: SIGKILL pid %d: %w", pid, err)
	}
	return nil
}

// IsAlive reports whether pid is a live process, via gopsutil rather than a
// hand-rolled kill(pid, 0) loop (SPEC_FULL DOMAIN STACK, process liveness).
func IsAlive(pid int) bool {
	running, err := process.PidExists(int32(pid))
	if err != nil {
		return false
	}
	return running
}

func isNotRunning(err error) bool {
	return err == os.ErrProcessDone || strings.Contains(err.Error(), "process already finished")
}

// PasteBuffer delivers body into session's standard input via the host
// multiplexer's paste-buffer mechanism — set-buffer then paste-buffer —
// rather than character-by-character key injection, which truncates or
// corrupts around 256 B (§4.5). When submit is true, the multiplexer's
// Enter key is sent after the paste.
func (s *Supervisor) PasteBuffer(ctx context.Context, session, body string, submit bool) error {
	bufferName := "af-send-" + strconv.FormatInt(time.Now().UnixNano(), 36)
	setCmd := exec.CommandContext(ctx, s.multiplexer, "set-buffer", "-b", bufferName, body)
	if out, err := setCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s set-buffer: %w (%s)", s.multiplexer, err, strings.TrimSpace(string(out)))
	}
	defer exec.Command(s.multiplexer, "delete-buffer", "-b", bufferName).Run() //nolint:errcheck

	pasteCmd := exec.CommandContext(ctx, s.multiplexer, "paste-buffer", "-b", bufferName, "-t", session)
	if out, err := pasteCmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s paste-buffer: %w (%s)", s.multiplexer, err, strings.TrimSpace(string(out)))
	}

	if submit {
		enterCmd := exec.CommandContext(ctx, s.multiplexer, "send-keys", "-t", session, "Enter")
		if out, err := enterCmd.CombinedOutput(); err != nil {
			return fmt.Errorf("%s send-keys Enter: %w (%s)", s.multiplexer, err, strings.TrimSpace(string(out)))
		}
	}
	return nil
}

// SendInterrupt sends Ctrl-C to session before a message is pasted, when
// the caller asked to interrupt whatever the builder is currently doing.
func (s *Supervisor) SendInterrupt(ctx context.Context, session string) error {
	cmd := exec.CommandContext(ctx, s.multiplexer, "send-keys", "-t", session, "C-c")
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s send-keys C-c: %w (%s)", s.multiplexer, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// KillSession terminates a multiplexer session by name.
func (s *Supervisor) KillSession(ctx context.Context, name string) error {
	cmd := exec.CommandContext(ctx, s.multiplexer, "kill-session", "-t", name)
	out, err := cmd.CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if strings.Contains(msg, "can't find session") || strings.Contains(msg, "no server running") {
			return nil
		}
		return fmt.Errorf("supervisor: %s kill-session %s: %w (%s)", s.multiplexer, name, err, msg)
	}
	return nil
}

// ListSessions shells out to the multiplexer's session listing and returns
// every session name currently known to it.
func (s *Supervisor) ListSessions(ctx context.Context) ([]string, error) {
	cmd := exec.CommandContext(ctx, s.multiplexer, "list-sessions", "-F", "#{session_name}")
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if ok := asExitError(err, &exitErr); ok && exitErr.ExitCode() == 1 {
			// no server running / no sessions — not an error condition here.
			return nil, nil
		}
		return nil, fmt.Errorf("supervisor: %s list-sessions: %w", s.multiplexer, err)
	}

	var names []string
	scanner := bufio.NewScanner(strings.NewReader(string(out)))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			names = append(names, line)
		}
	}
	return names, nil
}

func asExitError(err error, target **exec.ExitError) bool {
	if ee, ok := err.(*exec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// orphanPatterns are the canonical session-name prefixes scanned at
// orchestrator start (§4.3, SUPPLEMENTARY DETAIL).
var orphanPatterns = []string{"af-architect-", "builder-", "af-shell-"}

// ScanOrphans lists live multiplexer sessions matching the canonical name
// patterns and returns those absent from known (a set of session names the
// State Store currently references).
func (s *Supervisor) ScanOrphans(ctx context.Context, known map[string]bool) ([]string, error) {
	sessions, err := s.ListSessions(ctx)
	if err != nil {
		return nil, err
	}

	var orphans []string
	for _, name := range sessions {
		if !matchesOrphanPattern(name) {
			continue
		}
		if known[name] {
			continue
		}
		orphans = append(orphans, name)
	}
	return orphans, nil
}

func matchesOrphanPattern(name string) bool {
	for _, p := range orphanPatterns {
		if strings.HasPrefix(name, p) {
			return true
		}
	}
	return false
}
