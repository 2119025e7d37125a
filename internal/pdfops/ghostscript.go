package pdfops

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
)

var (
	gsOnce sync.Once
	gsPath string
)

// GhostscriptPath locates the Ghostscript executable. Priority: the
// GHOSTSCRIPT_EXECUTABLE environment variable, then PATH (gs, then the
// Windows binary names). The result is cached for the process lifetime.
func GhostscriptPath() string {
	gsOnce.Do(func() {
		if env := os.Getenv("GHOSTSCRIPT_EXECUTABLE"); env != "" {
			if p, err := exec.LookPath(env); err == nil {
				gsPath = p
				return
			}
		}
		for _, name := range []string{"gs", "gswin64c", "gswin32c"} {
			if p, err := exec.LookPath(name); err == nil {
				gsPath = p
				return
			}
		}
	})
	return gsPath
}

// GhostscriptInstalled reports whether Ghostscript was found.
func GhostscriptInstalled() bool {
	return GhostscriptPath() != ""
}

// ErrGhostscriptNotFound is returned when no gs binary could be located.
var ErrGhostscriptNotFound = fmt.Errorf("ghostscript executable not found; install Ghostscript and make sure it is on PATH")

// runGhostscript executes gs with the given arguments, returning combined
// output on failure for diagnostics.
func runGhostscript(ctx context.Context, args ...string) error {
	gs := GhostscriptPath()
	if gs == "" {
		return ErrGhostscriptNotFound
	}

	out, err := exec.CommandContext(ctx, gs, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("ghostscript failed: %v: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}
