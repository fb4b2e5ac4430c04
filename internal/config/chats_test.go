package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Humphreey/pinokio/internal/config"
)

func TestLoadChatsConfigDefaultsEnabledWhenAbsent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config_chats.yaml")
	yamlDoc := `
chat1:
  input_chat_name: support
  pinger:
    whitelist:
      - "@opA"
  silencer:
    enabled: false
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	chats, err := config.LoadChatsConfig(path)
	require.NoError(t, err)
	assert.True(t, chats["chat1"].Pinger.Enabled)
}

func TestLoadChatsConfigRespectsExplicitDisabled(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config_chats.yaml")
	yamlDoc := `
chat1:
  input_chat_name: support
  pinger:
    enabled: false
    whitelist:
      - "@opA"
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	chats, err := config.LoadChatsConfig(path)
	require.NoError(t, err)
	assert.False(t, chats["chat1"].Pinger.Enabled)
}
