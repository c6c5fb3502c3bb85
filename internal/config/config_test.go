// ABOUTME: Tests for configuration loading, env expansion, and validation.
// ABOUTME: Covers defaults, duration parsing, and required-field failures.

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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
account_id: acct-123
base_url: https://chat.example.com
greeting: "Hi there!"
customer:
  email: jo@example.com
  external_id: ext-42
engine:
  game_mode_trigger: "/konami"
  lobby_refetch_delay: "750ms"
logging:
  level: debug
  format: json
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "acct-123", cfg.AccountID)
	assert.Equal(t, "https://chat.example.com", cfg.BaseURL)
	assert.Equal(t, "Hi there!", cfg.Greeting)
	assert.Equal(t, "jo@example.com", cfg.Customer.Email)
	assert.Equal(t, "ext-42", cfg.Customer.ExternalID)
	assert.Equal(t, "/konami", cfg.Engine.GameModeTrigger)
	assert.Equal(t, 750*time.Millisecond, cfg.Engine.LobbyRefetchDelay)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, "account_id: acct-123\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, DefaultGameModeTrigger, cfg.Engine.GameModeTrigger)
	assert.Equal(t, DefaultLobbyRefetchDelay, cfg.Engine.LobbyRefetchDelay)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	t.Setenv("WIDGETSYNC_TEST_ACCOUNT", "acct-from-env")
	path := writeConfig(t, "account_id: \"${WIDGETSYNC_TEST_ACCOUNT}\"\n")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "acct-from-env", cfg.AccountID)
}

func TestLoad_EnvVarExpansion_UnsetVarFailsValidation(t *testing.T) {
	path := writeConfig(t, "account_id: \"${WIDGETSYNC_DEFINITELY_UNSET}\"\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "account_id is required")
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_InvalidDuration(t *testing.T) {
	path := writeConfig(t, `
account_id: acct-123
engine:
  lobby_refetch_delay: "soon"
`)

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lobby_refetch_delay")
}

func TestWebsocketURL_DerivedFromBaseURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://chat.example.com"
	assert.Equal(t, "wss://chat.example.com/socket", cfg.WebsocketURL())

	cfg.BaseURL = "http://localhost:4000"
	assert.Equal(t, "ws://localhost:4000/socket", cfg.WebsocketURL())

	cfg.WSURL = "wss://sockets.example.com/socket"
	assert.Equal(t, "wss://sockets.example.com/socket", cfg.WebsocketURL())
}
