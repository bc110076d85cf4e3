package testsupport

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
)

// recorder captures failures that would otherwise end the test.
type recorder struct {
	testing.TB
	errors []string
}

func (r *recorder) Helper() {}

func (r *recorder) Logf(string, ...any) {}

func (r *recorder) Errorf(format string, args ...any) {
	r.errors = append(r.errors, fmt.Sprintf(format, args...))
}

func TestLoadFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.txt")
	if err := os.WriteFile(path, []byte("fixture"), 0o644); err != nil {
		t.Fatal(err)
	}

	if got := string(LoadFixture(t, path)); got != "fixture" {
		t.Errorf("LoadFixture() = %q", got)
	}
}

func TestLoadFixtureJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.json")
	if err := os.WriteFile(path, []byte(`{"name":"get_user","args":["Bob"]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	var result struct {
		Name string   `json:"name"`
		Args []string `json:"args"`
	}
	LoadFixtureJSON(t, path, &result)

	if result.Name != "get_user" || len(result.Args) != 1 || result.Args[0] != "Bob" {
		t.Errorf("LoadFixtureJSON() = %+v", result)
	}
}

func TestWriteGolden(t *testing.T) {
	path := filepath.Join(t.TempDir(), "subdir", "test.golden")
	WriteGolden(t, path, []byte("golden"))

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("golden file not written: %v", err)
	}
	if string(data) != "golden" {
		t.Errorf("golden file = %q", data)
	}
}

func TestCompareWithGolden(t *testing.T) {
	t.Setenv(UpdateGoldenEnv, "")
	path := filepath.Join(t.TempDir(), "keys.golden")

	// Missing file is created.
	CompareWithGolden(t, path, []byte("a\n"))
	if data, err := os.ReadFile(path); err != nil || string(data) != "a\n" {
		t.Fatalf("golden file = %q, %v", data, err)
	}

	r := &recorder{TB: t}
	CompareWithGolden(r, path, []byte("a\n"))
	if len(r.errors) != 0 {
		t.Errorf("matching output reported %v", r.errors)
	}

	CompareWithGolden(r, path, []byte("b\n"))
	if len(r.errors) != 1 {
		t.Errorf("mismatch reported %d errors, want 1", len(r.errors))
	}
}

func TestCompareWithGolden_Update(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.golden")
	WriteGolden(t, path, []byte("old\n"))

	t.Setenv(UpdateGoldenEnv, "1")
	CompareWithGolden(t, path, []byte("new\n"))

	if data := LoadFixture(t, path); string(data) != "new\n" {
		t.Errorf("golden file = %q, want rewritten", data)
	}
}

func TestPaths(t *testing.T) {
	if got, want := FixturePath("test.json"), filepath.Join("testdata", "test.json"); got != want {
		t.Errorf("FixturePath() = %q, want %q", got, want)
	}
	if got, want := GoldenPath("keys.txt"), filepath.Join("testdata", "golden", "keys.txt"); got != want {
		t.Errorf("GoldenPath() = %q, want %q", got, want)
	}
}
