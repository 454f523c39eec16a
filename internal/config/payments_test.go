package config

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func TestPaymentDefaultsFallBackToEnvConfig(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg := Config{Payment: PaymentConfig{DefaultRecipient: "RecipientFromEnv", DefaultMinConfirmations: 7}}
	holder, err := NewPaymentDefaultsHolder(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new holder: %v", err)
	}

	got := holder.Get()
	if got.Recipient != "RecipientFromEnv" || got.MinConfirmations != 7 {
		t.Fatalf("unexpected defaults: %+v", got)
	}
}

func TestPaymentDefaultsFileOverridesEnv(t *testing.T) {
	dir := t.TempDir()
	content := []byte("payments:\n  recipient: RecipientFromFile\n  minConfirmations: 32\n")
	if err := os.WriteFile(filepath.Join(dir, "payments.yml"), content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg := Config{Payment: PaymentConfig{DefaultRecipient: "RecipientFromEnv", DefaultMinConfirmations: 7}}
	holder, err := NewPaymentDefaultsHolder(cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("new holder: %v", err)
	}

	got := holder.Get()
	if got.Recipient != "RecipientFromFile" {
		t.Fatalf("expected file recipient, got %q", got.Recipient)
	}
	if got.MinConfirmations != 32 {
		t.Fatalf("expected 32 confirmations, got %d", got.MinConfirmations)
	}
}
