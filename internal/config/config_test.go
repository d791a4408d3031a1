package config

import "testing"

func clearRequiredEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"DATABASE_URL", "BUS_URL", "LEDGER_ADDRESSES"} {
		t.Setenv(key, "")
	}
}

func TestLoadFailsWithoutDatabaseURL(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("BUS_URL", "amqp://localhost:5672")
	t.Setenv("LEDGER_ADDRESSES", "127.0.0.1:3000")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error when DATABASE_URL is unset")
	}
}

func TestLoadFailsWithoutBusURL(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/ledgerd")
	t.Setenv("LEDGER_ADDRESSES", "127.0.0.1:3000")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error when BUS_URL is unset")
	}
}

func TestLoadFailsWithoutLedgerAddresses(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/ledgerd")
	t.Setenv("BUS_URL", "amqp://localhost:5672")

	if _, err := Load(); err == nil {
		t.Fatal("expected an error when LEDGER_ADDRESSES is unset")
	}
}

func TestLoadAppliesDefaultsWhenOnlyRequiredFieldsSet(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/ledgerd")
	t.Setenv("BUS_URL", "amqp://localhost:5672")
	t.Setenv("LEDGER_ADDRESSES", "127.0.0.1:3000,127.0.0.1:3001")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.LedgerAddresses) != 2 {
		t.Fatalf("expected 2 ledger addresses, got %d: %v", len(cfg.LedgerAddresses), cfg.LedgerAddresses)
	}
	if cfg.LedgerClusterID != "default" {
		t.Errorf("expected default ledger cluster id, got %q", cfg.LedgerClusterID)
	}
	if cfg.CDCExchange != "ledger" {
		t.Errorf("expected default cdc exchange, got %q", cfg.CDCExchange)
	}
	if cfg.SchedulerTickInterval != "720h" {
		t.Errorf("expected default scheduler tick interval, got %q", cfg.SchedulerTickInterval)
	}
	if cfg.SystemAccountsPath != "system-accounts.json" {
		t.Errorf("expected default system accounts path, got %q", cfg.SystemAccountsPath)
	}
	if cfg.SEPA.DailyCapMinor != 100000000 {
		t.Errorf("expected default sepa daily cap, got %d", cfg.SEPA.DailyCapMinor)
	}
	if cfg.SEPA.CutOffHour != 15 {
		t.Errorf("expected default sepa cut-off hour, got %d", cfg.SEPA.CutOffHour)
	}
	if !cfg.SEPA.SimulateWeekends {
		t.Error("expected sepa weekend simulation to default to true")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("expected default log level, got %q", cfg.LogLevel)
	}
	if cfg.Env != "development" {
		t.Errorf("expected default env, got %q", cfg.Env)
	}
}

func TestLoadOverridesDefaultsFromEnv(t *testing.T) {
	clearRequiredEnv(t)
	t.Setenv("DATABASE_URL", "postgres://localhost/ledgerd")
	t.Setenv("BUS_URL", "amqp://localhost:5672")
	t.Setenv("LEDGER_ADDRESSES", "10.0.0.1:3000")
	t.Setenv("SEPA_DAILY_CAP_MINOR", "250000")
	t.Setenv("SEPA_SIMULATE_WEEKENDS", "false")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.SEPA.DailyCapMinor != 250000 {
		t.Errorf("expected overridden sepa daily cap, got %d", cfg.SEPA.DailyCapMinor)
	}
	if cfg.SEPA.SimulateWeekends {
		t.Error("expected sepa weekend simulation override to false")
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected overridden log level, got %q", cfg.LogLevel)
	}
}

func TestSplitListTrimsAndDropsEmpty(t *testing.T) {
	got := splitList(" a , b ,,c")
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}

func TestSplitListEmptyStringYieldsNil(t *testing.T) {
	if got := splitList(""); got != nil {
		t.Fatalf("expected nil, got %v", got)
	}
}
