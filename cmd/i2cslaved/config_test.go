package main

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "i2cslaved.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
address: 0x42
bankSize: 128
initial: "de ad be ef"
logLevel: debug
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error = %v", err)
	}
	if cfg.Address != 0x42 {
		t.Errorf("Address = %#x, want 0x42", cfg.Address)
	}
	if cfg.BankSize != 128 {
		t.Errorf("BankSize = %d, want 128", cfg.BankSize)
	}
	if cfg.Device != "/dev/mem" {
		t.Errorf("Device = %q, want default /dev/mem", cfg.Device)
	}
	if err := cfg.validate(); err != nil {
		t.Errorf("validate() error = %v", err)
	}
	data, err := cfg.initialBytes()
	if err != nil {
		t.Fatalf("initialBytes() error = %v", err)
	}
	if len(data) != 4 || data[0] != 0xDE || data[3] != 0xEF {
		t.Errorf("initialBytes() = %#x, want deadbeef", data)
	}
}

func TestConfigDefaults(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.BankSize != 256 || cfg.Device != "/dev/mem" || cfg.LogLevel != "info" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	// No address yet: must not validate.
	if err := cfg.validate(); err == nil {
		t.Error("validate() passed without an address")
	}
}

func TestConfigValidate(t *testing.T) {
	bad := []Config{
		{Address: 0x80, BankSize: 256},
		{Address: 0x42, BankSize: 1 << 17},
		{Address: 0x42, BankSize: 4, Initial: "deadbeefff"},
		{Address: 0x42, BankSize: 256, Initial: "zz"},
	}
	for i, cfg := range bad {
		if err := cfg.validate(); err == nil {
			t.Errorf("case %d: validate() passed, want error", i)
		}
	}
}

func TestLoadConfigMissing(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("LoadConfig() passed on missing file")
	}
}
