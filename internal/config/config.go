// Package config loads process configuration from the environment,
// grounded on the teacher's config.go: godotenv.Load() followed by
// os.Getenv-with-defaults, then a .validate() pass that fails fast on
// missing required connection settings.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every environment-sourced setting from spec.md §6's
// environment table.
type Config struct {
	// Storage (metadata store)
	DatabaseURL string

	// LedgerClusterID names this engine instance for operational tooling;
	// LedgerAddresses is reused as the Kafka bootstrap broker list the CDC
	// transport connects to (there is no separate ledger cluster in this
	// single-process engine).
	LedgerClusterID string
	LedgerAddresses []string

	// CDC bus
	BusURL          string
	CDCExchange     string
	CDCQueue        string
	CDCRoutingKeys  []string
	CDCAutoAck      bool
	CDCDeadLetter   string

	// Scheduler
	SchedulerTickInterval string // parsed by callers via time.ParseDuration

	// SystemAccountsPath is where the per-currency suspense/equity account
	// id bootstrap file is read from and atomically rewritten to.
	SystemAccountsPath string

	// SEPA
	SEPA SEPAConfig

	// Logging
	LogLevel string

	// Env is the deployment environment name (development/staging/production).
	Env string
}

// SEPAConfig mirrors spec.md §6's sepa.* settings.
type SEPAConfig struct {
	DailyCapMinor          int64
	MaxTransactionCapMinor int64
	CutOffHour             int
	SimulateWeekends       bool
}

// Load reads configuration from environment variables, loading a .env file
// first if one exists (ignoring its absence), then validates required
// connection settings.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:     getEnv("DATABASE_URL", ""),
		LedgerClusterID: getEnv("LEDGER_CLUSTER_ID", "default"),
		LedgerAddresses: splitList(getEnv("LEDGER_ADDRESSES", "")),

		BusURL:        getEnv("BUS_URL", ""),
		CDCExchange:   getEnv("CDC_EXCHANGE", "ledger"),
		CDCQueue:      getEnv("CDC_QUEUE", "ledger-consumer"),
		CDCRoutingKeys: splitList(getEnv("CDC_ROUTING_KEYS", "single_phase,two_phase_pending,two_phase_posted,two_phase_voided,two_phase_expired")),
		CDCAutoAck:    getEnv("CDC_AUTO_ACK", "false") == "true",
		CDCDeadLetter: getEnv("CDC_DEAD_LETTER_TOPIC", "ledger.dead_letter"),

		SchedulerTickInterval: getEnv("SCHEDULER_TICK_INTERVAL", "720h"),
		SystemAccountsPath:    getEnv("SYSTEM_ACCOUNTS_PATH", "system-accounts.json"),

		SEPA: SEPAConfig{
			DailyCapMinor:          getEnvInt64("SEPA_DAILY_CAP_MINOR", 100000000),
			MaxTransactionCapMinor: getEnvInt64("SEPA_MAX_TRANSACTION_CAP_MINOR", 5000000),
			CutOffHour:             int(getEnvInt64("SEPA_CUT_OFF_HOUR", 15)),
			SimulateWeekends:       getEnv("SEPA_SIMULATE_WEEKENDS", "true") == "true",
		},

		LogLevel: getEnv("LOG_LEVEL", "info"),
		Env:      getEnv("ENV", "development"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.BusURL == "" {
		return fmt.Errorf("BUS_URL is required")
	}
	if len(c.LedgerAddresses) == 0 {
		return fmt.Errorf("LEDGER_ADDRESSES is required")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
