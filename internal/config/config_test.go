package config

import (
	"os"
	"reflect"
	"testing"

	"github.com/spf13/viper"
)

func TestLoadConfig_Defaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	for _, key := range []string{
		"SERVER_PORT", "EVENT_EXCHANGE", "PROCESSOR_EVENT_QUEUE", "SETTLEMENT_CURRENCY",
		"TOP_UP_MIN_AMOUNT", "TOP_UP_MAX_AMOUNT", "PAYOUT_MIN_AMOUNT",
		"FAILED_PAYMENT_MAX_RETRIES", "COMPLETION_APPROVAL_ORDER_TYPES",
	} {
		unsetEnvWithCleanup(t, key)
	}

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.ServerPort != "8080" {
		t.Errorf("expected default ServerPort 8080, got %q", cfg.ServerPort)
	}
	if cfg.EventExchange != "giglane.events" {
		t.Errorf("expected default EventExchange giglane.events, got %q", cfg.EventExchange)
	}
	if cfg.SettlementCurrency != "USD" {
		t.Errorf("expected default SettlementCurrency USD, got %q", cfg.SettlementCurrency)
	}
	if cfg.TopUpMinAmount != 500 || cfg.TopUpMaxAmount != 10000000 {
		t.Errorf("expected default top-up bounds 500/10000000, got %d/%d", cfg.TopUpMinAmount, cfg.TopUpMaxAmount)
	}
	if cfg.PayoutMinAmount != 100 {
		t.Errorf("expected default PayoutMinAmount 100, got %d", cfg.PayoutMinAmount)
	}
	if cfg.FailedPaymentMaxRetries != 3 {
		t.Errorf("expected default FailedPaymentMaxRetries 3, got %d", cfg.FailedPaymentMaxRetries)
	}
}

func TestLoadConfig_InvalidBoundsFallBackToDefaults(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "TOP_UP_MIN_AMOUNT", "-5")
	setEnvWithCleanup(t, "TOP_UP_MAX_AMOUNT", "100")
	setEnvWithCleanup(t, "PAYOUT_MIN_AMOUNT", "0")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.TopUpMinAmount != 500 {
		t.Errorf("expected negative top-up minimum replaced with 500, got %d", cfg.TopUpMinAmount)
	}
	if cfg.TopUpMaxAmount != 10000000 {
		t.Errorf("expected max below min replaced with 10000000, got %d", cfg.TopUpMaxAmount)
	}
	if cfg.PayoutMinAmount != 100 {
		t.Errorf("expected zero payout minimum replaced with 100, got %d", cfg.PayoutMinAmount)
	}
}

func TestLoadConfig_TrimsInternalAPIKey(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	setEnvWithCleanup(t, "INTERNAL_API_KEY", "  secret-key \n")

	cfg, err := LoadConfig(t.TempDir())
	if err != nil {
		t.Fatalf("LoadConfig returned error: %v", err)
	}
	if cfg.InternalAPIKey != "secret-key" {
		t.Fatalf("expected trimmed InternalAPIKey, got %q", cfg.InternalAPIKey)
	}
}

func TestApprovalOrderTypes_ParsesCommaSeparatedList(t *testing.T) {
	cfg := Config{CompletionApprovalOrderTypes: " Service, digital ,,BOOKING "}

	got := cfg.ApprovalOrderTypes()
	want := []string{"service", "digital", "booking"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestApprovalOrderTypes_EmptyConfigYieldsNoTypes(t *testing.T) {
	cfg := Config{CompletionApprovalOrderTypes: " , "}

	if got := cfg.ApprovalOrderTypes(); len(got) != 0 {
		t.Fatalf("expected no approval order types, got %v", got)
	}
}

func setEnvWithCleanup(t *testing.T, key string, value string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Setenv(key, value); err != nil {
		t.Fatalf("failed to set env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}

func unsetEnvWithCleanup(t *testing.T, key string) {
	t.Helper()
	prev, hadPrev := os.LookupEnv(key)
	if err := os.Unsetenv(key); err != nil {
		t.Fatalf("failed to unset env %s: %v", key, err)
	}
	t.Cleanup(func() {
		if hadPrev {
			_ = os.Setenv(key, prev)
			return
		}
		_ = os.Unsetenv(key)
	})
}
