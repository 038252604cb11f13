// Package pathvalidate implements the path validator: the single gate
// every input to a reconcile pass passes through before the walker
// ever touches it. Canonicalization uses an LRU cache of resolved
// parent directories to avoid re-resolving the same ancestor
// directories on every call in a long `watch` session.
package pathvalidate

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	ierrors "github.com/indexsync/indexsync/internal/errors"
)

// parentCacheSize bounds the canonicalization cache.
const parentCacheSize = 1000

// Validator guarantees every canonical path it returns sits at or
// below the allowed base directory.
type Validator struct {
	allowedBase   string
	baseDirectory string
	logger        *slog.Logger
	parentCache   *lru.Cache[string, string]
}

// New builds a Validator rooted at allowedBase (must already be an
// absolute path — the config value feeding it is required to be).
// baseDirectory resolves relative inputs; an empty value falls back
// to the process working directory at validation time.
func New(allowedBase, baseDirectory string, logger *slog.Logger) (*Validator, error) {
	if !filepath.IsAbs(allowedBase) {
		return nil, fmt.Errorf("allowed base directory must be absolute: %q", allowedBase)
	}
	cache, err := lru.New[string, string](parentCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create path validation cache: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Validator{
		allowedBase:   filepath.Clean(allowedBase),
		baseDirectory: baseDirectory,
		logger:        logger,
		parentCache:   cache,
	}, nil
}

// Validate resolves input to its canonical absolute form and checks it
// against the allowed base. When checkExistence is true the resolved
// path itself must exist; otherwise only its parent directory must
// exist and be a directory. On any failure it logs once at error level
// and returns a non-nil *errors.IndexError rather than panicking.
func (v *Validator) Validate(input string, checkExistence bool) (string, error) {
	if input == "" {
		return v.fail(ierrors.InvalidPath(input, nil).WithSuggestion("pass a non-empty path"))
	}

	hadTrailingSlash := input != "/" && strings.HasSuffix(input, "/")

	resolved := v.resolve(input)
	if resolved != "/" {
		resolved = strings.TrimRight(resolved, "/")
		if resolved == "" {
			resolved = "/"
		}
	}

	canonical, err := v.canonicalize(resolved)
	if err != nil {
		return v.fail(ierrors.InvalidPath(input, err))
	}

	if hadTrailingSlash {
		info, statErr := os.Stat(canonical)
		if statErr != nil || !info.IsDir() {
			return v.fail(ierrors.New(ierrors.ErrCodeNotADirectory,
				fmt.Sprintf("path %q has a trailing slash but is not a directory", input), statErr).
				WithDetail("path", input))
		}
	}

	if !v.withinAllowedBase(canonical) {
		return v.fail(ierrors.New(ierrors.ErrCodeNotInAllowedBase,
			fmt.Sprintf("path %q is not inside the allowed base directory %q", canonical, v.allowedBase), nil).
			WithDetail("path", canonical).
			WithDetail("allowed_base_directory", v.allowedBase))
	}

	if checkExistence {
		if _, err := os.Lstat(canonical); err != nil {
			return v.fail(ierrors.InvalidPath(input, err).WithDetail("reason", "does not exist"))
		}
	} else {
		parent := filepath.Dir(canonical)
		info, err := os.Stat(parent)
		if err != nil || !info.IsDir() {
			return v.fail(ierrors.InvalidPath(input, err).
				WithDetail("reason", "parent directory does not exist or is not a directory"))
		}
	}

	return canonical, nil
}

// resolve turns input into an absolute (but not yet canonicalized)
// path, logging a debug line for any relative input that is not "."
// or "./X".
func (v *Validator) resolve(input string) string {
	if strings.HasPrefix(input, "/") {
		return input
	}
	base := v.baseDirectory
	if base == "" {
		if wd, err := os.Getwd(); err == nil {
			base = wd
		}
	}
	resolved := filepath.Join(base, input)
	if input != "." && !strings.HasPrefix(input, "./") {
		v.logger.Debug(fmt.Sprintf("Processing '%s' as '%s'.", input, resolved))
	}
	return resolved
}

// canonicalize resolves symlinks in path's parent directory chain but
// keeps path's own basename literally, so a symlink is indexed under
// its own name rather than its target's.
func (v *Validator) canonicalize(path string) (string, error) {
	if path == "/" {
		return "/", nil
	}
	parent := filepath.Dir(path)
	base := filepath.Base(path)

	canonicalParent, ok := v.parentCache.Get(parent)
	if !ok {
		resolved, err := filepath.EvalSymlinks(parent)
		if err != nil {
			return "", fmt.Errorf("resolve parent directory %q: %w", parent, err)
		}
		canonicalParent = resolved
		v.parentCache.Add(parent, canonicalParent)
	}
	return filepath.Join(canonicalParent, base), nil
}

// withinAllowedBase reports whether canonical is the allowed base
// itself or strictly below it.
func (v *Validator) withinAllowedBase(canonical string) bool {
	if canonical == v.allowedBase {
		return true
	}
	return strings.HasPrefix(canonical, v.allowedBase+string(filepath.Separator))
}

func (v *Validator) fail(err *ierrors.IndexError) (string, error) {
	v.logger.Error(err.Error(), slog.String("code", err.Code))
	return "", err
}
