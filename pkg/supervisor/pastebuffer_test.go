package supervisor

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMultiplexer writes a script standing in for tmux that appends each
// invocation's arguments to a log file, so PasteBuffer's set-buffer /
// paste-buffer / send-keys sequencing can be asserted without a real
// multiplexer server (mirrors supervisor_test.go's preference for
// substituting the binary over depending on a live tmux session).
func fakeMultiplexer(t *testing.T) (binPath, logPath string) {
	t.Helper()
	dir := t.TempDir()
	logPath = filepath.Join(dir, "calls.log")
	binPath = filepath.Join(dir, "tmux-fake.sh")

	script := `#!/bin/sh
{
  printf '--call--\n'
  for a in "$@"; do printf '%s\n' "$a"; done
} >> "` + logPath + `"
exit 0
`
	require.NoError(t, os.WriteFile(binPath, []byte(script), 0o755))
	return binPath, logPath
}

// TestPasteBufferSendsWholeBodyInOneArgument is the send round-trip test for
// §4.5's paste-buffer delivery: the message body must reach set-buffer as a
// single untouched argument, never split across multiple send-keys calls,
// which is what the 256-byte key-injection truncation this mechanism avoids
// would otherwise require.
func TestPasteBufferSendsWholeBodyInOneArgument(t *testing.T) {
	bin, logPath := fakeMultiplexer(t)
	s := New(bin, "ttyd", t.TempDir(), testLogger())

	body := strings.Repeat("the quick brown fox jumps over the lazy dog. ", 20) // > 256B
	require.NoError(t, s.PasteBuffer(context.Background(), "af-builder-0001", body, true))

	out, err := os.ReadFile(logPath)
	require.NoError(t, err)
	calls := strings.Split(strings.Trim(string(out), "\n"), "--call--\n")
	var invocations []string
	for _, c := range calls {
		if strings.TrimSpace(c) != "" {
			invocations = append(invocations, c)
		}
	}
	require.Len(t, invocations, 4, "expected set-buffer, paste-buffer, send-keys Enter, delete-buffer")

	assert.Contains(t, invocations[0], "set-buffer\n")
	assert.Contains(t, invocations[0], body, "body must travel whole, in one set-buffer call")
	assert.Contains(t, invocations[1], "paste-buffer\n")
	assert.Contains(t, invocations[1], "af-builder-0001\n")
	assert.Contains(t, invocations[2], "send-keys\n")
	assert.Contains(t, invocations[2], "Enter\n")
	assert.Contains(t, invocations[3], "delete-buffer\n")
}

// TestPasteBufferNoSubmitSkipsEnter verifies submit=false never sends the
// trailing Enter key-press.
func TestPasteBufferNoSubmitSkipsEnter(t *testing.T) {
	bin, logPath := fakeMultiplexer(t)
	s := New(bin, "ttyd", t.TempDir(), testLogger())

	require.NoError(t, s.PasteBuffer(context.Background(), "af-builder-0001", "hello", false))

	out, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "Enter")
}

// TestPasteBufferPropagatesSetBufferFailure verifies a failing set-buffer
// call surfaces as an error instead of silently proceeding to paste-buffer.
func TestPasteBufferPropagatesSetBufferFailure(t *testing.T) {
	dir := t.TempDir()
	bin := filepath.Join(dir, "tmux-fail.sh")
	require.NoError(t, os.WriteFile(bin, []byte("#!/bin/sh\necho boom >&2\nexit 1\n"), 0o755))

	s := New(bin, "ttyd", t.TempDir(), testLogger())
	err := s.PasteBuffer(context.Background(), "af-builder-0001", "hello", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "set-buffer")
}
