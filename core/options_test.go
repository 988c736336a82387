package core

import (
	"context"
	"testing"
)

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

func TestCfgxConfigProvider_AppliesDefaults(t *testing.T) {
	provider := NewCfgxConfigProvider(nil)
	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != "unitofwork" {
		t.Fatalf("expected default service name, got %q", cfg.ServiceName)
	}
	if cfg.Retry.MaxRetries != 3 {
		t.Fatalf("expected default max retries 3, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BaseDelayMS != 1000 {
		t.Fatalf("expected default base delay 1000ms, got %d", cfg.Retry.BaseDelayMS)
	}
}

func TestCfgxConfigProvider_LoadsRawValues(t *testing.T) {
	provider := NewCfgxConfigProvider(mapRawLoader{values: map[string]any{
		"service_name": "from-config",
		"retry": map[string]any{
			"max_retries": 5,
		},
	}})

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ServiceName != "from-config" {
		t.Fatalf("expected loaded service name, got %q", cfg.ServiceName)
	}
	if cfg.Retry.MaxRetries != 5 {
		t.Fatalf("expected loaded max retries, got %d", cfg.Retry.MaxRetries)
	}
	if cfg.Retry.BaseDelayMS != 1000 {
		t.Fatalf("expected default base delay to survive, got %d", cfg.Retry.BaseDelayMS)
	}
}

func TestGoOptionsResolver_RuntimeWinsOverConfig(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{
		ServiceName: "from-config",
		Retry:       RetryConfig{MaxRetries: 5, BaseDelayMS: 250},
	}
	runtime := Config{ServiceName: "from-runtime"}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if resolved.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime value to win, got %q", resolved.ServiceName)
	}
	if resolved.Retry.MaxRetries != 5 {
		t.Fatalf("expected config layer max retries, got %d", resolved.Retry.MaxRetries)
	}
	if resolved.Retry.BaseDelayMS != 250 {
		t.Fatalf("expected config layer base delay, got %d", resolved.Retry.BaseDelayMS)
	}
	if resolved.Retry.MaxDelayMS != 0 {
		t.Fatalf("expected zero max delay from defaults, got %d", resolved.Retry.MaxDelayMS)
	}
}

func TestGoOptionsResolver_EvaluatorFlagLayering(t *testing.T) {
	defaults := DefaultConfig()
	loaded := Config{Evaluator: EvaluatorConfig{AllowUnorderedPaging: true}}

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, Config{})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if !resolved.Evaluator.AllowUnorderedPaging {
		t.Fatalf("expected config layer to enable unordered paging")
	}
	if resolved.ServiceName != "unitofwork" {
		t.Fatalf("expected default service name to survive, got %q", resolved.ServiceName)
	}
}

func TestConfigValidate_RejectsNegativeRetrySettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Retry.MaxRetries = -1
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for negative max retries")
	}

	cfg = DefaultConfig()
	cfg.Retry.BaseDelayMS = -10
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for negative base delay")
	}

	cfg = DefaultConfig()
	cfg.ServiceName = "  "
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for blank service name")
	}
}
