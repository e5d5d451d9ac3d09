package config

import (
	"os"
	"testing"
)

// BenchmarkConfig_Validate benchmarks configuration validation
func BenchmarkConfig_Validate(b *testing.B) {
	cfg, err := LoadFromEnv()
	if err != nil {
		b.Fatalf("load config: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = cfg.Validate()
	}
}

// BenchmarkConfig_LoadFromEnv benchmarks environment variable loading
func BenchmarkConfig_LoadFromEnv(b *testing.B) {
	os.Setenv("ARB_MIN_SPREAD_USD", "0.02")
	os.Setenv("ARB_MAX_TRADE_SIZE_USD", "25.0")
	os.Setenv("ARB_DRY_RUN", "true")
	defer func() {
		os.Unsetenv("ARB_MIN_SPREAD_USD")
		os.Unsetenv("ARB_MAX_TRADE_SIZE_USD")
		os.Unsetenv("ARB_DRY_RUN")
	}()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = LoadFromEnv()
	}
}
