package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// executeCmd runs the CLI with args and returns captured stdout and any
// error.
func executeCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	// no .env from the working directory leaks into tests
	root.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "none.env")))

	err := root.Execute()
	return stdout.String(), err
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "syncano.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestRunValidate_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
api_key: secret
instance: demo-app
backoff:
  base: 1s
  max: 8s
  jitter: 0.25
channels:
  - name: chat
  - name: rooms
    room: lobby
    start_after: 12
`)

	output, err := executeCmd(t, "validate", "-c", path)
	if err != nil {
		t.Fatalf("validate command error = %v", err)
	}

	expectedPhrases := []string{
		"Config is valid!",
		"Base URL:  https://api.syncano.io",
		"Auth:      api key",
		"Instance:  demo-app",
		"Timeout:   1m0s",
		"Backoff:   1s..8s ±25%",
		"Channels:  2",
		"- demo-app/chat",
		"- demo-app/rooms room=lobby start_after=12",
	}
	for _, phrase := range expectedPhrases {
		if !strings.Contains(output, phrase) {
			t.Errorf("output missing %q\nGot: %s", phrase, output)
		}
	}
}

func TestRunValidate_InvalidConfig(t *testing.T) {
	path := writeConfig(t, `
api_key: secret
instance: demo-app
channels:
  - name: ""
`)

	_, err := executeCmd(t, "validate", "-c", path)
	if err == nil {
		t.Fatal("validate command expected error for invalid config, got nil")
	}
	if !strings.Contains(err.Error(), "name is required") {
		t.Errorf("error should mention 'name is required', got: %v", err)
	}
}

func TestRunValidate_MissingFile(t *testing.T) {
	_, err := executeCmd(t, "validate", "-c", "/nonexistent/path/syncano.yaml")
	if err == nil {
		t.Fatal("validate command expected error for missing file, got nil")
	}
	if !strings.Contains(err.Error(), "failed to read") {
		t.Errorf("error should mention 'failed to read', got: %v", err)
	}
}

func TestRunValidate_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, "test.env")
	if err := os.WriteFile(envPath, []byte("SYNCANO_TEST_ENV_KEY=from-dotenv\n"), 0o644); err != nil {
		t.Fatalf("failed to write env file: %v", err)
	}
	t.Cleanup(func() { os.Unsetenv("SYNCANO_TEST_ENV_KEY") })

	path := writeConfig(t, "user_key: ${SYNCANO_TEST_ENV_KEY}\n")

	var stdout bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetArgs([]string{"validate", "-c", path, "--env-file", envPath})
	if err := root.Execute(); err != nil {
		t.Fatalf("validate command error = %v", err)
	}
	if !strings.Contains(stdout.String(), "Auth:      user key") {
		t.Errorf("output = %s, want the key from the env file", stdout.String())
	}
}

func TestVersion(t *testing.T) {
	output, err := executeCmd(t, "version")
	if err != nil {
		t.Fatalf("version command error = %v", err)
	}
	if !strings.HasPrefix(output, "syncano dev") {
		t.Errorf("output = %q", output)
	}
}
