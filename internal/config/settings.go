// Package config loads the environment and YAML configuration the sidecar
// needs at startup. Missing required env vars or unreadable YAML are fatal,
// per the "config errors: fatal at startup" policy.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Settings holds the required environment variables.
type Settings struct {
	BearerToken     string
	DefaultUserBot  string
	KafkaSenderURL  string
	LLMURL          string
	LLMAPIKey       string
	LLMModel        string
	CheckIntervalS  int
}

// LoadSettings reads and validates the required environment variables.
func LoadSettings() (*Settings, error) {
	s := &Settings{
		BearerToken:    os.Getenv("BEARER_TOKEN"),
		DefaultUserBot: os.Getenv("DEFAULT_USER_ID_BOT"),
		KafkaSenderURL: os.Getenv("KAFKA_SENDER_URL"),
		LLMURL:         os.Getenv("LLM_URL"),
		LLMAPIKey:      os.Getenv("LLM_API_KEY"),
		LLMModel:       os.Getenv("LLM_MODEL"),
	}

	checkInterval := os.Getenv("CHECK_INTERVAL")
	if checkInterval == "" {
		return nil, fmt.Errorf("config: CHECK_INTERVAL is required")
	}
	n, err := strconv.Atoi(checkInterval)
	if err != nil {
		return nil, fmt.Errorf("config: CHECK_INTERVAL must be an integer: %w", err)
	}
	s.CheckIntervalS = n

	for name, v := range map[string]string{
		"BEARER_TOKEN":       s.BearerToken,
		"DEFAULT_USER_ID_BOT": s.DefaultUserBot,
		"KAFKA_SENDER_URL":    s.KafkaSenderURL,
		"LLM_URL":             s.LLMURL,
		"LLM_API_KEY":         s.LLMAPIKey,
		"LLM_MODEL":           s.LLMModel,
	} {
		if v == "" {
			return nil, fmt.Errorf("config: %s is required", name)
		}
	}

	return s, nil
}
