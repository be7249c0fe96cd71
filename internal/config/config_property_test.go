package config

import (
	"fmt"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// durationDefaults maps every duration-valued key to its default.
var durationDefaults = map[string]time.Duration{
	"ORACLE_TIMEOUT":   2 * time.Second,
	"WEBHOOK_TIMEOUT":  5 * time.Second,
	"VWAP_WINDOW":      5 * time.Minute,
	"READ_TIMEOUT":     5 * time.Second,
	"WRITE_TIMEOUT":    10 * time.Second,
	"IDLE_TIMEOUT":     60 * time.Second,
	"SHUTDOWN_TIMEOUT": 10 * time.Second,
}

var allEnvKeys = []string{
	"PORT", "LOG_LEVEL", "MARKET_AGENT_URL", "ORACLE_LAST_TRADE_FALLBACK",
	"SELF_TRADE_POLICY", "CORS_ALLOWED_ORIGINS",
	"ORACLE_TIMEOUT", "WEBHOOK_TIMEOUT", "VWAP_WINDOW",
	"READ_TIMEOUT", "WRITE_TIMEOUT", "IDLE_TIMEOUT", "SHUTDOWN_TIMEOUT",
}

func unsetAllConfigEnv() {
	for _, key := range allEnvKeys {
		os.Unsetenv(key)
	}
}

func durationFields(cfg *Config) map[string]time.Duration {
	return map[string]time.Duration{
		"ORACLE_TIMEOUT":   cfg.OracleTimeout,
		"WEBHOOK_TIMEOUT":  cfg.WebhookTimeout,
		"VWAP_WINDOW":      cfg.VWAPWindow,
		"READ_TIMEOUT":     cfg.ReadTimeout,
		"WRITE_TIMEOUT":    cfg.WriteTimeout,
		"IDLE_TIMEOUT":     cfg.IdleTimeout,
		"SHUTDOWN_TIMEOUT": cfg.ShutdownTimeout,
	}
}

func TestProperty_DurationsParsedOrDefaulted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		want := make(map[string]time.Duration, len(durationDefaults))
		for key, def := range durationDefaults {
			want[key] = def
			if !rapid.Bool().Draw(t, key+"-set") {
				continue
			}
			d := time.Duration(rapid.IntRange(1, 600).Draw(t, key)) *
				rapid.SampledFrom([]time.Duration{time.Millisecond, time.Second, time.Minute}).Draw(t, key+"-unit")
			os.Setenv(key, d.String())
			want[key] = d
		}

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error for valid durations: %v", err)
		}
		for key, got := range durationFields(cfg) {
			if got != want[key] {
				t.Fatalf("%s = %v, want %v", key, got, want[key])
			}
		}
	})
}

func TestProperty_InvalidDurationReturnsError(t *testing.T) {
	keys := make([]string, 0, len(durationDefaults))
	for key := range durationDefaults {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		key := rapid.SampledFrom(keys).Draw(t, "key")
		invalid := rapid.StringMatching(`[a-zA-Z]{2,10}`).Filter(func(s string) bool {
			_, err := time.ParseDuration(s)
			return err != nil
		}).Draw(t, "invalid")
		os.Setenv(key, invalid)

		if _, err := Load(); err == nil {
			t.Fatalf("Load() accepted %s=%q", key, invalid)
		}
	})
}

func TestProperty_CORSOriginsTrimmed(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		origins := rapid.SliceOfN(
			rapid.Map(rapid.StringMatching(`[a-z]{1,8}`), func(h string) string { return "https://" + h + ".example" }),
			1, 5,
		).Draw(t, "origins")
		padded := make([]string, len(origins))
		for i, o := range origins {
			padded[i] = strings.Repeat(" ", rapid.IntRange(0, 2).Draw(t, fmt.Sprintf("pad-%d", i))) + o
		}
		os.Setenv("CORS_ALLOWED_ORIGINS", strings.Join(padded, ",")+",")

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load() returned error: %v", err)
		}
		if !slices.Equal(cfg.CORSAllowedOrigins, origins) {
			t.Fatalf("CORSAllowedOrigins = %v, want %v", cfg.CORSAllowedOrigins, origins)
		}
	})
}

func TestProperty_SelfTradePolicyParsing(t *testing.T) {
	valid := []string{"allow", "cancel_aggressor", "cancel_resting", "cancel_both"}

	rapid.Check(t, func(t *rapid.T) {
		unsetAllConfigEnv()
		defer unsetAllConfigEnv()

		policy := rapid.OneOf(
			rapid.SampledFrom(valid),
			rapid.StringMatching(`[a-z_]{1,20}`),
		).Draw(t, "policy")
		os.Setenv("SELF_TRADE_POLICY", policy)

		cfg, err := Load()
		if slices.Contains(valid, policy) {
			if err != nil {
				t.Fatalf("Load() rejected valid policy %q: %v", policy, err)
			}
			if string(cfg.SelfTradePolicy) != policy {
				t.Fatalf("SelfTradePolicy = %q, want %q", cfg.SelfTradePolicy, policy)
			}
			return
		}
		if err == nil {
			t.Fatalf("Load() accepted unknown policy %q", policy)
		}
	})
}
