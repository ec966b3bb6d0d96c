package pathsafe

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_RejectsMaliciousInputs(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "ok.txt"), []byte("hi"), 0o644))

	outside := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("no"), 0o644))
	symlink := filepath.Join(root, "escape")
	require.NoError(t, os.Symlink(outside, symlink))

	cases := []string{
		"/etc/passwd",
		"../../etc/passwd",
		"%2e%2e/etc/passwd",
		"dir/../../../etc/passwd",
		"escape/secret.txt",
	}
	for _, c := range cases {
		_, err := Validate(root, c)
		assert.ErrorIsf(t, err, ErrUnsafe, "input %q should be rejected", c)
	}
}

func TestValidate_AllowsProjectRootedPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "ok.txt"), []byte("hi"), 0o644))

	resolved, err := Validate(root, "ok.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "ok.txt"), resolved)
}
