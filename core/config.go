package core

import (
	"fmt"
	"strings"
	"time"
)

type RetryConfig struct {
	MaxRetries  int `koanf:"max_retries" mapstructure:"max_retries"`
	BaseDelayMS int `koanf:"base_delay_ms" mapstructure:"base_delay_ms"`
	MaxDelayMS  int `koanf:"max_delay_ms" mapstructure:"max_delay_ms"`
}

func (c RetryConfig) BaseDelay() time.Duration {
	return time.Duration(c.BaseDelayMS) * time.Millisecond
}

func (c RetryConfig) MaxDelay() time.Duration {
	return time.Duration(c.MaxDelayMS) * time.Millisecond
}

type EvaluatorConfig struct {
	AllowUnorderedPaging bool `koanf:"allow_unordered_paging" mapstructure:"allow_unordered_paging"`
}

type Config struct {
	ServiceName string          `koanf:"service_name" mapstructure:"service_name"`
	Retry       RetryConfig     `koanf:"retry" mapstructure:"retry"`
	Evaluator   EvaluatorConfig `koanf:"evaluator" mapstructure:"evaluator"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "unitofwork",
		Retry: RetryConfig{
			MaxRetries:  3,
			BaseDelayMS: 1000,
		},
		Evaluator: EvaluatorConfig{},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("core: retry.max_retries must not be negative")
	}
	if c.Retry.BaseDelayMS < 0 {
		return fmt.Errorf("core: retry.base_delay_ms must not be negative")
	}
	if c.Retry.MaxDelayMS < 0 {
		return fmt.Errorf("core: retry.max_delay_ms must not be negative")
	}
	return nil
}
