package preflight

import (
	"os"
	"path/filepath"
	"testing"

	"reclink/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckFileReadable(t *testing.T) {
	dir := t.TempDir()
	full := filepath.Join(dir, "full.csv")
	empty := filepath.Join(dir, "empty.csv")
	if err := os.WriteFile(full, []byte("NAME\nacme\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		pass bool
	}{
		{full, true},
		{empty, false},
		{dir, false},
		{filepath.Join(dir, "missing.csv"), false},
	}
	for _, tc := range tests {
		if got := CheckFileReadable("input", tc.path); got.Passed != tc.pass {
			t.Fatalf("CheckFileReadable(%s) passed=%v detail=%s", tc.path, got.Passed, got.Detail)
		}
	}
}

func TestRunAll(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	testsupport.WriteCSVFile(t, cfg.Paths.LeftFile, [][]string{{"NAME"}, {"acme"}})

	results := RunAll(cfg)
	failed := Failed(results)
	if len(failed) != 1 || failed[0].Name != "Right input" {
		t.Fatalf("expected only the right input to fail, got %+v", failed)
	}
	if RunAll(nil) != nil {
		t.Fatal("expected nil results for nil config")
	}
}
