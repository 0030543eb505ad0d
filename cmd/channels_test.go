package cmd

import (
	"bytes"
	"os"
	"strings"
	"testing"

	"nvrexport/config"
)

// loadTestConfig initializes the package config from the environment the
// way main does, for the env-gated integration tests.
func loadTestConfig(t *testing.T) {
	t.Helper()
	c, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load() error = %v", err)
	}
	cfg = c
}

// Integration test for the channels command against a real device.
// Skipped by default; set NVR_INTEGRATION_TEST=true plus the NVR_HOST,
// NVR_USERNAME and NVR_PASSWORD variables to run it.
func TestChannelsCommand(t *testing.T) {
	if os.Getenv("NVR_INTEGRATION_TEST") != "true" {
		t.Skip("Skipping integration test; set NVR_INTEGRATION_TEST=true to run")
	}

	loadTestConfig(t)

	oldStdout := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	channelsCmd.SetArgs([]string{})
	err := channelsCmd.Execute()

	w.Close()
	os.Stdout = oldStdout

	var buf bytes.Buffer
	buf.ReadFrom(r)
	output := buf.String()

	if err != nil {
		t.Fatalf("Channels command failed: %v", err)
	}

	if !strings.Contains(output, "channels") {
		t.Errorf("Output doesn't contain channel list: %s", output)
	}

	if !strings.Contains(output, "channel_id") {
		t.Errorf("Output doesn't contain channel ids: %s", output)
	}
}
