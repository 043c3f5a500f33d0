package compose

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// fakeJpegtran writes a shell script standing in for jpegtran. It prints
// help and records its arguments to args.txt next to itself.
func fakeJpegtran(t *testing.T, help string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	dir := t.TempDir()
	script := "#!/bin/sh\n" +
		"if [ \"$1\" = \"--help\" ]; then echo '" + help + "' >&2; exit 1; fi\n" +
		"echo \"$@\" > " + filepath.Join(dir, "args.txt") + "\n"
	path := filepath.Join(dir, "jpegtran")
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func recordedArgs(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(filepath.Join(filepath.Dir(path), "args.txt"))
	if err != nil {
		t.Fatalf("jpegtran was not invoked: %v", err)
	}
	return strings.TrimSpace(string(b))
}

func TestJpegtran_Check(t *testing.T) {
	good := fakeJpegtran(t, "usage: jpegtran -perfect -drop +X+Y filename")
	if err := (&Jpegtran{Path: good}).Check(context.Background()); err != nil {
		t.Errorf("Expected crop 'n' drop build to pass, got %v", err)
	}

	stock := fakeJpegtran(t, "usage: jpegtran -perfect -crop WxH+X+Y")
	err := (&Jpegtran{Path: stock}).Check(context.Background())
	if !errors.Is(err, ErrUnavailable) || !strings.Contains(err.Error(), "-drop") {
		t.Errorf("Expected ErrUnavailable naming -drop, got %v", err)
	}

	missing := filepath.Join(t.TempDir(), "nope")
	if err := (&Jpegtran{Path: missing}).Check(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable for a missing executable, got %v", err)
	}
}

func TestJpegtran_CheckNotExecutable(t *testing.T) {
	path := fakeJpegtran(t, "-drop -perfect")
	if err := os.Chmod(path, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := (&Jpegtran{Path: path}).Check(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable without execute permission, got %v", err)
	}
}

func TestJpegtran_Arguments(t *testing.T) {
	path := fakeJpegtran(t, "-drop -perfect")
	j := &Jpegtran{Path: path}
	ctx := context.Background()

	tests := []struct {
		name string
		run  func() error
		want string
	}{
		{
			name: "crop",
			run:  func() error { return j.Crop(ctx, "tile.jpg", "column.jpg", 256, 4000, 0, 0) },
			want: "-copy all -crop 256x4000+0+0 -outfile column.jpg tile.jpg",
		},
		{
			name: "drop",
			run:  func() error { return j.Drop(ctx, "column_0.jpg", "tile.jpg", "column_1.jpg", 0, 512) },
			want: "-perfect -copy all -drop +0+512 tile.jpg -outfile column_1.jpg column_0.jpg",
		},
		{
			name: "optimize",
			run:  func() error { return j.Optimize(ctx, "final_1.jpg", "out.jpg") },
			want: "-copy all -optimize -outfile out.jpg final_1.jpg",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(); err != nil {
				t.Fatalf("%s failed: %v", tt.name, err)
			}
			if got := recordedArgs(t, path); got != tt.want {
				t.Errorf("Unexpected arguments.\nExpected: %s\nGot:      %s", tt.want, got)
			}
		})
	}
}

func TestLocate_ExplicitPath(t *testing.T) {
	got, err := Locate("/opt/bin/jpegtran")
	if err != nil || got != "/opt/bin/jpegtran" {
		t.Errorf("Locate with an explicit path = %q, %v", got, err)
	}
}
