package testsupport

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
)

// WriteCSV writes rows (header first) to dir/name and returns the path.
func WriteCSV(t testing.TB, dir, name string, rows [][]string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	WriteCSVFile(t, path, rows)
	return path
}

// WriteCSVFile writes rows (header first) to path, creating parent
// directories.
func WriteCSVFile(t testing.TB, path string, rows [][]string) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.WriteAll(rows); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// ReadCSV parses the CSV at path.
func ReadCSV(t testing.TB, path string) [][]string {
	t.Helper()

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open %s: %v", path, err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("parse %s: %v", path, err)
	}
	return rows
}
