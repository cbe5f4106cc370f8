package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetHome_EnvVar(t *testing.T) {
	ResetHome()
	t.Setenv("DOMKIT_HOME", "/custom/path")

	got := GetHome()
	if got != "/custom/path" {
		t.Errorf("GetHome() = %q, want %q", got, "/custom/path")
	}
}

func TestGetHome_EnvVarTakesPrecedence(t *testing.T) {
	ResetHome()
	t.Setenv("DOMKIT_HOME", "/override")

	got := GetHome()
	if got != "/override" {
		t.Errorf("GetHome() = %q, want %q", got, "/override")
	}
}

func TestGetHome_FallbackToCwd(t *testing.T) {
	ResetHome()
	t.Setenv("DOMKIT_HOME", "")

	got := GetHome()
	cwd, _ := os.Getwd()

	// When not in a bin/ directory and no env var, should fall back to cwd
	// (unless the test binary happens to be in a bin/ directory)
	if got == "" {
		t.Error("GetHome() returned empty string")
	}
	_ = cwd // cwd is valid fallback
}

func TestGetHome_Cached(t *testing.T) {
	ResetHome()
	t.Setenv("DOMKIT_HOME", "/first")

	first := GetHome()

	// Changing env must not affect the cached value
	t.Setenv("DOMKIT_HOME", "/second")
	second := GetHome()

	if first != second {
		t.Errorf("GetHome() not cached: first=%q, second=%q", first, second)
	}
}

func TestGetCacheDir(t *testing.T) {
	ResetHome()
	t.Setenv("DOMKIT_HOME", "/test/home")

	got := GetCacheDir()
	want := filepath.Join("/test/home", "cache")
	if got != want {
		t.Errorf("GetCacheDir() = %q, want %q", got, want)
	}
}

func TestHomeSubdirs(t *testing.T) {
	tests := []struct {
		name string
		fn   func() string
		want string
	}{
		{"browser", GetBrowserDir, filepath.Join("/test/home", "browser")},
		{"reports", GetReportsDir, filepath.Join("/test/home", "reports")},
	}

	for _, tt := range tests {
		ResetHome()
		t.Setenv("DOMKIT_HOME", "/test/home")

		if got := tt.fn(); got != tt.want {
			t.Errorf("%s dir = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestResolveHome_BinaryRelative(t *testing.T) {
	// Create a temp directory structure: <tmpdir>/bin/
	tmpDir := t.TempDir()
	binDir := filepath.Join(tmpDir, "bin")
	if err := os.MkdirAll(binDir, 0755); err != nil {
		t.Fatal(err)
	}

	// resolveHome uses os.Executable() which we can't mock directly,
	// but we can verify the logic by testing the env var path
	ResetHome()
	t.Setenv("DOMKIT_HOME", tmpDir)

	got := GetHome()
	if got != tmpDir {
		t.Errorf("GetHome() = %q, want %q", got, tmpDir)
	}
}
