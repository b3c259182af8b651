package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "evergreen.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadValidDocument(t *testing.T) {
	path := writeTemp(t, `
services:
  main:
    lifecycle:
      run: "sleep 1"
    dependencies: ["db:HARD"]
  db:
    lifecycle:
      run: "sleep 1"
`)
	specs, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(specs) != 2 {
		t.Fatalf("expected 2 services, got %d", len(specs))
	}
	if len(specs["main"].Dependencies) != 1 || specs["main"].Dependencies[0].To != "db" {
		t.Fatalf("expected main to depend on db, got %+v", specs["main"].Dependencies)
	}
}

func TestLoadMissingMainIsInvalidConfig(t *testing.T) {
	path := writeTemp(t, `
services:
  db:
    lifecycle:
      run: "sleep 1"
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for missing main service")
	}
}

func TestLoadCyclicDependenciesRejected(t *testing.T) {
	path := writeTemp(t, `
services:
  main:
    dependencies: ["a:HARD"]
  a:
    dependencies: ["main:HARD"]
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for cyclic dependencies")
	}
}
