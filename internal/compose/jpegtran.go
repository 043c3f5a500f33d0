package compose

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/kiesman99/dezoom/internal/logging"
)

// Jpegtran runs the jpegtran tool from the "crop 'n' drop" distribution
// (http://jpegclub.org/jpegtran/), which adds -drop to the stock tool.
type Jpegtran struct {
	Path string
}

// Locate returns the jpegtran executable to use: path if set, otherwise a
// jpegtran next to the running executable, otherwise one on PATH.
func Locate(path string) (string, error) {
	if path != "" {
		return path, nil
	}

	name := "jpegtran"
	if runtime.GOOS == "windows" {
		name = "jpegtran.exe"
	}
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	found, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%w: no jpegtran executable found next to the program or on PATH, use -j to set its location",
			ErrUnavailable)
	}
	return found, nil
}

// Check runs "jpegtran --help" and looks for the -drop and -perfect switches.
func (j *Jpegtran) Check(ctx context.Context) error {
	info, err := os.Stat(j.Path)
	if err != nil {
		return fmt.Errorf("%w: jpegtran executable not found at %s", ErrUnavailable, j.Path)
	}
	if info.IsDir() || (runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0) {
		return fmt.Errorf("%w: %s does not have execute permission", ErrUnavailable, j.Path)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	cmd := exec.CommandContext(ctx, j.Path, "--help")
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		// jpegtran exits non-zero after printing its usage.
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return fmt.Errorf("%w: unable to start %s: %v", ErrUnavailable, j.Path, err)
		}
	}

	help := out.String()
	for _, feature := range []string{"-drop", "-perfect"} {
		if !strings.Contains(help, feature) {
			return fmt.Errorf("%w: %s does not have the '%s' feature, get the crop 'n' drop build from http://jpegclub.org/jpegtran/",
				ErrUnavailable, j.Path, feature)
		}
	}
	return nil
}

// Crop implements Primitive with "jpegtran -crop"; regions larger than src use its crop extension.
func (j *Jpegtran) Crop(ctx context.Context, src, dst string, width, height, x, y int) error {
	return j.run(ctx,
		"-copy", "all",
		"-crop", fmt.Sprintf("%dx%d+%d+%d", width, height, x, y),
		"-outfile", dst,
		src)
}

// Drop implements Primitive with "jpegtran -perfect -drop".
func (j *Jpegtran) Drop(ctx context.Context, base, patch, dst string, x, y int) error {
	return j.run(ctx,
		"-perfect",
		"-copy", "all",
		"-drop", fmt.Sprintf("+%d+%d", x, y), patch,
		"-outfile", dst,
		base)
}

// Optimize implements Primitive with "jpegtran -optimize".
func (j *Jpegtran) Optimize(ctx context.Context, src, dst string) error {
	return j.run(ctx,
		"-copy", "all",
		"-optimize",
		"-outfile", dst,
		src)
}

// run executes one jpegtran invocation. Cancelling ctx kills the process.
func (j *Jpegtran) run(ctx context.Context, args ...string) error {
	logging.Logger().Debug("jpegtran", "args", strings.Join(args, " "))

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, j.Path, args...)
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("jpegtran %s: %v: %s", args[0], err, strings.TrimSpace(stderr.String()))
	}
	return nil
}
