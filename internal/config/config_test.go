// ABOUTME: Tests for configuration loading, env expansion, defaults and validation.
// ABOUTME: Covers duration parsing and the recognized dm_policy values.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Minimal(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: "http://localhost:4100"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	// Defaults fill in everything else
	assert.Equal(t, "pairing", cfg.Security.DMPolicy)
	assert.Equal(t, DefaultPairingCodeLength, cfg.Security.PairingCodeLength)
	assert.Equal(t, DefaultPairingTTL, cfg.Security.PairingTTL)
	assert.Equal(t, DefaultPollInterval, cfg.Correlator.PollInterval)
	assert.Equal(t, DefaultCorrelateTimeout, cfg.Correlator.Timeout)
	assert.Equal(t, DefaultAccumulatorTTL, cfg.Accumulator.TTL)
	assert.Equal(t, DefaultQueueMaxSize, cfg.Queue.MaxSize)
	assert.Equal(t, DefaultQueueConcurrency, cfg.Queue.Concurrency)
	assert.Equal(t, "state", cfg.State.Dir)
}

func TestLoad_Durations(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: "http://localhost:4100"
security:
  pairing_ttl: "30m"
correlator:
  poll_interval: "500ms"
  timeout: "45s"
accumulator:
  ttl: "90s"
queue:
  retry_base: "1s"
  retry_cap: "10s"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 30*time.Minute, cfg.Security.PairingTTL)
	assert.Equal(t, 500*time.Millisecond, cfg.Correlator.PollInterval)
	assert.Equal(t, 45*time.Second, cfg.Correlator.Timeout)
	assert.Equal(t, 90*time.Second, cfg.Accumulator.TTL)
	assert.Equal(t, time.Second, cfg.Queue.RetryBase)
	assert.Equal(t, 10*time.Second, cfg.Queue.RetryCap)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
backend:
  base_url: "http://localhost:4100"
correlator:
  poll_interval: "soon"
`)

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("HEARTH_TEST_BACKEND", "http://backend:9999")

	path := writeConfig(t, `
backend:
  base_url: "${HEARTH_TEST_BACKEND}"
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://backend:9999", cfg.Backend.BaseURL)
}

func TestLoad_MissingBackendURL(t *testing.T) {
	path := writeConfig(t, `
security:
  dm_policy: "open"
`)

	_, err := Load(path)
	assert.ErrorContains(t, err, "backend.base_url")
}

func TestValidate_DMPolicy(t *testing.T) {
	for _, policy := range []string{"open", "pairing", "allowlist", "disabled"} {
		cfg := &Config{Backend: BackendConfig{BaseURL: "http://x"}, Security: SecurityConfig{DMPolicy: policy}}
		assert.NoError(t, cfg.Validate(), policy)
	}

	cfg := &Config{Backend: BackendConfig{BaseURL: "http://x"}, Security: SecurityConfig{DMPolicy: "vip-only"}}
	assert.Error(t, cfg.Validate())
}

func TestValidate_EventsRequireURL(t *testing.T) {
	cfg := &Config{
		Backend:  BackendConfig{BaseURL: "http://x", EventsEnabled: true},
		Security: SecurityConfig{DMPolicy: "open"},
	}
	assert.ErrorContains(t, cfg.Validate(), "events_url")
}

func TestValidate_AdminNeedsCredential(t *testing.T) {
	cfg := &Config{
		Backend:  BackendConfig{BaseURL: "http://x"},
		Security: SecurityConfig{DMPolicy: "open"},
		Admin:    AdminConfig{Addr: "localhost:8090"},
	}
	assert.ErrorContains(t, cfg.Validate(), "admin.jwt_secret")
}
