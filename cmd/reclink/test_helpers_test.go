package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"reclink/internal/testsupport"
)

type cliTestEnv struct {
	baseDir    string
	workDir    string
	configPath string
}

func (e *cliTestEnv) path(rel string) string {
	return filepath.Join(e.workDir, filepath.FromSlash(rel))
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	base := t.TempDir()
	homeDir := filepath.Join(base, "home")
	if err := os.MkdirAll(homeDir, 0o755); err != nil {
		t.Fatalf("mkdir home: %v", err)
	}
	t.Setenv("HOME", homeDir)

	env := &cliTestEnv{
		baseDir:    base,
		workDir:    filepath.Join(base, "work"),
		configPath: filepath.Join(base, "reclink.toml"),
	}
	writeTestConfig(t, env.configPath, env.workDir)

	testsupport.WriteCSVFile(t, env.path("data-input/left.csv"), [][]string{
		{"NAME", "CITY"},
		{"Acme Family Clinic", "Boston"},
		{"Beta Dental Labs", "New York"},
		{"Gamma Vision Care", "San Francisco"},
	})
	testsupport.WriteCSVFile(t, env.path("data-input/right.csv"), [][]string{
		{"NAME", "CITY"},
		{"Beta Dental Lab", "New York"},
		{"Acme Family Clinic Inc", "Boston"},
		{"Omega Pet Hospital", "Chicago"},
	})
	return env
}

func writeTestConfig(t *testing.T, path, workDir string) {
	t.Helper()
	content := fmt.Sprintf(`[paths]
work_dir = %q

[linkage]
threshold = 0.0

[[fields]]
field = "NAME"
type = "name"
`, filepath.ToSlash(workDir))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func runCLI(t *testing.T, args []string, configPath, stdin string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetIn(strings.NewReader(stdin))
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
