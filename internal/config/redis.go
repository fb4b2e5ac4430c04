package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RedisConnConfig holds connection parameters for the stream store.
type RedisConnConfig struct {
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	DB              int    `yaml:"db"`
	Password        string `yaml:"password"`
	DecodeResponses bool   `yaml:"decode_responses"`
}

// KeyTemplates holds the per-chat key templates ("{chat_id}" placeholders).
type KeyTemplates struct {
	RawStream   string `yaml:"raw_stream"`
	FinalStream string `yaml:"final_stream"`
	AggHash     string `yaml:"agg_hash"`
	SchedZset   string `yaml:"sched_zset"`
	ConfHash    string `yaml:"conf_hash"`
	MetricsHash string `yaml:"metrics_hash"`
}

// AggregationConfig holds the aggregator's defaults.
type AggregationConfig struct {
	WindowSecondsDefault int    `yaml:"window_seconds_default"`
	GroupName            string `yaml:"group_name"`
}

// WorkerConfig holds per-chat worker tuning.
type WorkerConfig struct {
	MaxBatch int `yaml:"max_batch"`
	BlockMs  int `yaml:"block_ms"`
}

// SchedulerConfig holds the global deadline scheduler's tick interval.
type SchedulerConfig struct {
	IntervalMs int `yaml:"interval_ms"`
}

// RedisConfig is the full configs/config_redis.yaml document.
type RedisConfig struct {
	Redis       RedisConnConfig    `yaml:"redis"`
	Keys        KeyTemplates       `yaml:"keys"`
	Aggregation AggregationConfig  `yaml:"aggregation"`
	Workers     WorkerConfig       `yaml:"workers"`
	Scheduler   SchedulerConfig    `yaml:"scheduler"`
}

// LoadRedisConfig reads configs/config_redis.yaml.
func LoadRedisConfig(path string) (*RedisConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read redis config: %w", err)
	}
	var c RedisConfig
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("config: parse redis config: %w", err)
	}
	if c.Aggregation.WindowSecondsDefault <= 0 {
		c.Aggregation.WindowSecondsDefault = 2
	}
	if c.Workers.MaxBatch <= 0 {
		c.Workers.MaxBatch = 64
	}
	if c.Workers.BlockMs <= 0 {
		c.Workers.BlockMs = 5000
	}
	if c.Scheduler.IntervalMs <= 0 {
		c.Scheduler.IntervalMs = 200
	}
	return &c, nil
}

// Addr returns "host:port" for the redis client options.
func (c RedisConnConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
