package pathsafe

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

// ErrUnsafe is returned for any input that fails validation; callers
// translate it to an HTTP 400 with no further filesystem I/O (§7).
var ErrUnsafe = errors.New("pathsafe: unsafe path")

// Validate resolves rel against root and returns the absolute path, applying
// every check in §7: URL-decode, reject absolute paths, reject `..`
// segments after normalization, verify the root prefix, and — if the
// resolved path exists — re-verify the prefix after resolving symlinks.
func Validate(root, rel string) (string, error) {
	decoded, err := url.QueryUnescape(rel)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsafe, err)
	}

	if filepath.IsAbs(decoded) {
		return "", fmt.Errorf("%w: absolute path", ErrUnsafe)
	}

	cleaned := filepath.Clean(decoded)
	for _, seg := range strings.Split(cleaned, string(filepath.Separator)) {
		if seg == ".." {
			return "", fmt.Errorf("%w: parent traversal", ErrUnsafe)
		}
	}

	rootAbs, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnsafe, err)
	}
	resolved := filepath.Join(rootAbs, cleaned)
	if !withinRoot(rootAbs, resolved) {
		return "", fmt.Errorf("%w: escapes project root", ErrUnsafe)
	}

	if real, err := filepath.EvalSymlinks(resolved); err == nil {
		if !withinRoot(rootAbs, real) {
			return "", fmt.Errorf("%w: symlink escapes project root", ErrUnsafe)
		}
		return real, nil
	}

	return resolved, nil
}

func withinRoot(root, candidate string) bool {
	rel, err := filepath.Rel(root, candidate)
	if err != nil {
		return false
	}
	return rel == "." || (!strings.HasPrefix(rel, "..") && rel != "..")
}
