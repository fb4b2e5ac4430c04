package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// PromptsConfig is configs/prompts.yaml: the LLM system prompts and the two
// JSON schemas the classifier/matcher constrain their responses to.
type PromptsConfig struct {
	SystemPrompt       string         `yaml:"system_prompt"`
	ClassificationSchema map[string]any `yaml:"classification_schema"`
	QALinkSystemPrompt string         `yaml:"qa_link_system_prompt"`
	QALinkSchema       map[string]any `yaml:"qa_link_schema"`
}

// LoadPromptsConfig reads configs/prompts.yaml.
func LoadPromptsConfig(path string) (*PromptsConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read prompts config: %w", err)
	}
	var c PromptsConfig
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse prompts config: %w", err)
	}
	return &c, nil
}
