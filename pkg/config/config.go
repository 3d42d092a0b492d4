// Package config resolves the acme-dns hook configuration from an optional
// JSON file and ACMEDNS_* environment variables. Environment values win over
// file values field by field; built-in defaults fill the rest.
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"
)

// DefaultPath is the config file location when --config is not given
const DefaultPath = "/etc/letsencrypt/acme-dns-hook.json"

// Environment variables that override file configuration
const (
	EnvURL           = "ACMEDNS_URL"
	EnvAllowFrom     = "ACMEDNS_ALLOW_FROM"
	EnvForceRegister = "ACMEDNS_FORCE_REGISTER"
	EnvConfigPath    = "ACMEDNS_CONFIG_PATH"
	EnvStoragePath   = "ACMEDNS_STORAGE_PATH"
)

// Config is the resolved, immutable configuration for one run
type Config struct {
	// URL is the base URL of the acme-dns instance
	URL string `json:"url"`
	// AllowFrom restricts which networks may push updates with the
	// registered account (CIDR strings, enforced by acme-dns)
	AllowFrom []string `json:"allow_from"`
	// ForceRegister replaces an already stored account on the next run
	ForceRegister bool `json:"force_register"`
}

// Resolve builds a Config from the JSON file at path and the ACMEDNS_*
// environment. A missing file is fine as long as the environment supplies a
// URL; a present-but-broken source is a hard error.
func Resolve(path string) (*Config, error) {
	cfg := &Config{
		AllowFrom: []string{},
	}

	fileExists := true
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("Invalid configuration: cannot read config file %s: %w", path, err)
		}
		fileExists = false
	}

	// An existing but empty file carries no settings; only non-empty
	// content has to parse.
	if len(bytes.TrimSpace(data)) > 0 {
		v := viper.New()
		v.SetConfigType("json")
		if err := v.ReadConfig(bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("Invalid configuration: cannot parse config file %s: %w", path, err)
		}
		cfg.URL = v.GetString("url")
		if v.IsSet("allow_from") {
			cfg.AllowFrom = v.GetStringSlice("allow_from")
		}
		cfg.ForceRegister = v.GetBool("force_register")
	}

	envURL, envHasURL := os.LookupEnv(EnvURL)
	if envHasURL {
		cfg.URL = envURL
	}

	if raw, ok := os.LookupEnv(EnvAllowFrom); ok {
		var allowFrom []string
		if err := json.Unmarshal([]byte(raw), &allowFrom); err != nil {
			return nil, fmt.Errorf("Invalid configuration: %s must be a JSON array of strings: %w", EnvAllowFrom, err)
		}
		cfg.AllowFrom = allowFrom
	}

	if raw, ok := os.LookupEnv(EnvForceRegister); ok {
		force, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("Invalid configuration: %s must be a boolean, got %q", EnvForceRegister, raw)
		}
		cfg.ForceRegister = force
	}

	// With no file and no URL in the environment there is nothing to work
	// with: every later step needs the acme-dns endpoint.
	if !fileExists && !envHasURL {
		return nil, fmt.Errorf("No configuration supplied: %s does not exist and %s is not set", path, EnvURL)
	}

	return cfg, nil
}
