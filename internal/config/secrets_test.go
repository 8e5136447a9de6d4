package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetEnvOrFile(t *testing.T) {
	const directKey = "TEST_SFTPDECK_TOKEN"
	const fileKey = "TEST_SFTPDECK_TOKEN_FILE"

	secretFile := filepath.Join(t.TempDir(), "token")
	if err := os.WriteFile(secretFile, []byte("file-secret\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Run("direct value", func(t *testing.T) {
		t.Setenv(directKey, "direct")
		t.Setenv(fileKey, "")
		if got := getEnvOrFile(directKey, fileKey); got != "direct" {
			t.Errorf("getEnvOrFile() = %q, want %q", got, "direct")
		}
	})

	t.Run("file takes precedence", func(t *testing.T) {
		t.Setenv(directKey, "direct")
		t.Setenv(fileKey, secretFile)
		if got := getEnvOrFile(directKey, fileKey); got != "file-secret" {
			t.Errorf("getEnvOrFile() = %q, want %q (file content trimmed)", got, "file-secret")
		}
	})

	t.Run("unreadable file falls back", func(t *testing.T) {
		t.Setenv(directKey, "direct")
		t.Setenv(fileKey, "/nonexistent/secret")
		if got := getEnvOrFile(directKey, fileKey); got != "direct" {
			t.Errorf("getEnvOrFile() = %q, want %q", got, "direct")
		}
	})
}

func TestEnvPrefix(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"box", "SFTPDECK_BOX_"},
		{"prod-box", "SFTPDECK_PROD_BOX_"},
		{"db.internal", "SFTPDECK_DB_INTERNAL_"},
		{"my box", "SFTPDECK_MY_BOX_"},
	}

	for _, tt := range tests {
		if got := envPrefix(tt.name); got != tt.want {
			t.Errorf("envPrefix(%q) = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestSplitList(t *testing.T) {
	got := splitList(" a ,, b,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("splitList() = %v, want [a b]", got)
	}
	if splitList("") != nil {
		t.Error("splitList(\"\") != nil")
	}
}

func TestMergeEnv_Errors(t *testing.T) {
	t.Setenv("SFTPDECK_SSH_TIMEOUT", "later")
	t.Setenv("SFTPDECK_HEALTH_PORT", "http")

	errs := mergeEnv(defaults())
	if len(errs) != 2 {
		t.Errorf("mergeEnv() returned %d errors, want 2: %v", len(errs), errs)
	}
}
