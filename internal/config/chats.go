package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PingerConfig is the "pinger" sub-section of a chat's static configuration:
// working hours, whitelist and the per-author burst window.
type PingerConfig struct {
	WhitelistRaw       []string `yaml:"whitelist"`
	BotEnabled         bool     `yaml:"bot_enabled"`
	MessageTimeoutS    int      `yaml:"message_timeout"`
	RedisBufferWindowS int      `yaml:"redis_buffer_window"`
	OutputChatID       string   `yaml:"output_chat_id"`
	Enabled            bool     `yaml:"enabled"`
	StartTime          string   `yaml:"start_time"`
	EndTime            string   `yaml:"end_time"`
	Days               []string `yaml:"days"`
}

// UnmarshalYAML defaults Enabled to true when the chat config omits the
// "enabled" key, matching chats that never opted out of working hours.
func (p *PingerConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain PingerConfig
	aux := plain{Enabled: true}
	if err := value.Decode(&aux); err != nil {
		return err
	}
	*p = PingerConfig(aux)
	return nil
}

// SilencerConfig controls the silent-chat notification branch.
type SilencerConfig struct {
	Enabled         bool   `yaml:"enabled"`
	SilenceTimeoutS int    `yaml:"silence_timeout"`
	OutputChatID    string `yaml:"output_chat_id"`
}

// ChatConfig is one entry of configs/config_chats.yaml.
type ChatConfig struct {
	InputChatName string         `yaml:"input_chat_name"`
	Pinger        PingerConfig   `yaml:"pinger"`
	Silencer      SilencerConfig `yaml:"silencer"`
}

// Whitelist returns the configured operator handles with their leading "@".
func (c ChatConfig) Whitelist() []string { return c.Pinger.WhitelistRaw }

// MessageTimeoutS returns the merchant reminder timeout, defaulting to 30s.
func (c ChatConfig) MessageTimeoutS() int {
	if c.Pinger.MessageTimeoutS <= 0 {
		return 30
	}
	return c.Pinger.MessageTimeoutS
}

// WindowS returns the burst-fusion window, defaulting to 2s.
func (c ChatConfig) WindowS() int {
	if c.Pinger.RedisBufferWindowS <= 0 {
		return 2
	}
	return c.Pinger.RedisBufferWindowS
}

// SilenceTimeoutSOrDefault returns the silence-notification threshold, defaulting to 90s.
func (c SilencerConfig) SilenceTimeoutSOrDefault() int {
	if c.SilenceTimeoutS <= 0 {
		return 90
	}
	return c.SilenceTimeoutS
}

// ChatsConfig is the chat_id -> ChatConfig map loaded from YAML.
type ChatsConfig map[string]ChatConfig

// LoadChatsConfig reads configs/config_chats.yaml into a ChatsConfig.
func LoadChatsConfig(path string) (ChatsConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read chats config: %w", err)
	}
	var c ChatsConfig
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse chats config: %w", err)
	}
	return c, nil
}
