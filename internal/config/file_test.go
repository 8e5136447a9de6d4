package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestInterpolateEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "test-value")
	t.Setenv("API_TOKEN", "secret123")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"simple variable", "${TEST_VAR}", "test-value"},
		{"variable in string", "prefix-${TEST_VAR}-suffix", "prefix-test-value-suffix"},
		{"multiple variables", "${TEST_VAR}:${API_TOKEN}", "test-value:secret123"},
		{"unset variable", "${NONEXISTENT_VAR}", ""},
		{"default value", "${NONEXISTENT_VAR:-default}", "default"},
		{"default value not used when set", "${TEST_VAR:-default}", "test-value"},
		{"no variables", "plain string", "plain string"},
		{"empty default", "${NONEXISTENT:-}", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := InterpolateEnvVars(tt.input)
			if result != tt.expected {
				t.Errorf("InterpolateEnvVars(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestLoadFile_PrivateKeyNotInterpolated(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	content := "connections:\n  - name: k\n    host: h\n    username: u\n    private_key: \"KEY ${NOT_A_VAR}\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if got := cfg.Connections[0].PrivateKey; got != "KEY ${NOT_A_VAR}" {
		t.Errorf("PrivateKey = %q, want untouched", got)
	}
}

func TestLoadFile_ParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
		want    string
	}{
		{"yaml", "cfg.yaml", "connections: [unterminated", "parsing YAML config"},
		{"toml", "cfg.toml", "[[connections]\nname = ", "parsing TOML config"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.file)
			if err := os.WriteFile(path, []byte(tt.content), 0o600); err != nil {
				t.Fatal(err)
			}
			_, err := LoadFile(path)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("LoadFile() error = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestResolvePath(t *testing.T) {
	tests := []struct {
		base, p, want string
	}{
		{"/etc/sftpdeck", "key", "/etc/sftpdeck/key"},
		{"/etc/sftpdeck", "/abs/key", "/abs/key"},
		{"/etc/sftpdeck", "", ""},
	}

	for _, tt := range tests {
		if got := resolvePath(tt.base, tt.p); got != tt.want {
			t.Errorf("resolvePath(%q, %q) = %q, want %q", tt.base, tt.p, got, tt.want)
		}
	}
}
