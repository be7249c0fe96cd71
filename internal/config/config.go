package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/efreitasn/tradedesk/internal/domain"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the trading desk.
type Config struct {
	Port     int
	LogLevel string

	// MarketAgentURL is the base URL of the external price source. Empty
	// disables the HTTP oracle.
	MarketAgentURL          string
	OracleTimeout           time.Duration
	OracleLastTradeFallback bool
	SelfTradePolicy         domain.SelfTradePolicy

	WebhookTimeout     time.Duration
	VWAPWindow         time.Duration
	CORSAllowedOrigins []string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	ShutdownTimeout    time.Duration
}

// Load reads configuration from a .env file in the working directory, if
// there is one, and the environment. See LoadFrom.
func Load() (*Config, error) {
	return LoadFrom(".env")
}

// LoadFrom reads configuration from environment variables, applies
// defaults, and validates values. Variables in envFile are added to the
// environment first without overriding ones already set; a missing file
// is ignored. It returns an error for any invalid value.
func LoadFrom(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}

	port, err := getInt("PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("invalid PORT: %w", err)
	}

	logLevel := getStr("LOG_LEVEL", "info")
	if !isValidLogLevel(logLevel) {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q, must be one of: debug, info, warn, error", logLevel)
	}

	marketAgentURL := getStr("MARKET_AGENT_URL", "")
	if marketAgentURL != "" {
		u, err := url.Parse(marketAgentURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, fmt.Errorf("invalid MARKET_AGENT_URL: %q, must be an absolute http(s) URL", marketAgentURL)
		}
		marketAgentURL = strings.TrimRight(marketAgentURL, "/")
	}

	oracleTimeout, err := getDuration("ORACLE_TIMEOUT", 2*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid ORACLE_TIMEOUT: %w", err)
	}

	lastTradeFallback, err := getBool("ORACLE_LAST_TRADE_FALLBACK", true)
	if err != nil {
		return nil, fmt.Errorf("invalid ORACLE_LAST_TRADE_FALLBACK: %w", err)
	}

	selfTrade, err := domain.ParseSelfTradePolicy(getStr("SELF_TRADE_POLICY", string(domain.SelfTradeAllow)))
	if err != nil {
		return nil, fmt.Errorf("invalid SELF_TRADE_POLICY: %w", err)
	}

	webhookTimeout, err := getDuration("WEBHOOK_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WEBHOOK_TIMEOUT: %w", err)
	}

	vwapWindow, err := getDuration("VWAP_WINDOW", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("invalid VWAP_WINDOW: %w", err)
	}

	readTimeout, err := getDuration("READ_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid READ_TIMEOUT: %w", err)
	}

	writeTimeout, err := getDuration("WRITE_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid WRITE_TIMEOUT: %w", err)
	}

	idleTimeout, err := getDuration("IDLE_TIMEOUT", 60*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid IDLE_TIMEOUT: %w", err)
	}

	shutdownTimeout, err := getDuration("SHUTDOWN_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("invalid SHUTDOWN_TIMEOUT: %w", err)
	}

	return &Config{
		Port:                    port,
		LogLevel:                logLevel,
		MarketAgentURL:          marketAgentURL,
		OracleTimeout:           oracleTimeout,
		OracleLastTradeFallback: lastTradeFallback,
		SelfTradePolicy:         selfTrade,
		WebhookTimeout:          webhookTimeout,
		VWAPWindow:              vwapWindow,
		CORSAllowedOrigins:      getList("CORS_ALLOWED_ORIGINS", []string{"*"}),
		ReadTimeout:             readTimeout,
		WriteTimeout:            writeTimeout,
		IdleTimeout:             idleTimeout,
		ShutdownTimeout:         shutdownTimeout,
	}, nil
}

func getStr(key, defaultVal string) string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	return v
}

func getInt(key string, defaultVal int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.Atoi(v)
}

func getBool(key string, defaultVal bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return strconv.ParseBool(v)
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal, nil
	}
	return time.ParseDuration(v)
}

// getList splits a comma-separated value, dropping blanks.
func getList(key string, defaultVal []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	if len(out) == 0 {
		return defaultVal
	}
	return out
}

func isValidLogLevel(level string) bool {
	switch level {
	case "debug", "info", "warn", "error":
		return true
	}
	return false
}
