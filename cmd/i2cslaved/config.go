package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config describes an i2cslaved instance: the bus address to answer on
// and the register bank served to the master.
type Config struct {
	// Address is the 7-bit slave address to listen on.
	Address uint `yaml:"address"`

	Device string `yaml:"device,omitempty"`
	IOBase uint64 `yaml:"ioBase,omitempty"`
	SDAPin uint   `yaml:"sdaPin,omitempty"`
	SCLPin uint   `yaml:"sclPin,omitempty"`

	// BankSize is the register bank size in bytes, at most 65536.
	BankSize int `yaml:"bankSize,omitempty"`
	// Initial is a hex string preloaded into the bank at offset 0,
	// e.g. "deadbeef" or "de ad be ef".
	Initial string `yaml:"initial,omitempty"`

	LogLevel string `yaml:"logLevel,omitempty"`
}

func (c *Config) normalize() {
	if c.Device == "" {
		c.Device = "/dev/mem"
	}
	if c.BankSize == 0 {
		c.BankSize = 256
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

func (c *Config) validate() error {
	if c.Address == 0 || c.Address > 0x7F {
		return fmt.Errorf("address %#x out of 7-bit range", c.Address)
	}
	if c.BankSize < 1 || c.BankSize > 1<<16 {
		return fmt.Errorf("bankSize %d out of range [1, 65536]", c.BankSize)
	}
	if _, err := c.initialBytes(); err != nil {
		return err
	}
	return nil
}

func (c *Config) initialBytes() ([]byte, error) {
	s := strings.ReplaceAll(c.Initial, " ", "")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("initial: %w", err)
	}
	if len(data) > c.BankSize {
		return nil, fmt.Errorf("initial: %d bytes exceed bank size %d", len(data), c.BankSize)
	}
	return data, nil
}

// DefaultConfig returns a config with defaults filled in and no
// address; the address must come from the file or the command line.
func DefaultConfig() *Config {
	c := &Config{}
	c.normalize()
	return c
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := &Config{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	c.normalize()
	return c, nil
}
