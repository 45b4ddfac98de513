// Copyright (c) 2026 The InnoDB Cluster Operator Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package config loads the handful of process-wide knobs this operator
// reads once at startup: the IP allowlist extension and the
// retry/circuit-breaker tunables, both overridable by environment variable
// and otherwise defaulting to the values the rest of this repo's packages
// already hard-code.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mysql-operator/innodbcluster-operator/pkg/cluster/retry"
)

// alwaysAllowed is unconditionally appended to IPAllowlistExtra: loopback
// and its IPv6 equivalent go into every cluster's allowlist regardless of
// what the operator configures.
const alwaysAllowed = "127.0.0.1/8,::1/128"

// Config is the set of process-wide knobs read once at startup.
type Config struct {
	// IPAllowlistExtra is appended, verbatim, to every created/joined
	// instance's ipAllowlist option, always extended with alwaysAllowed.
	IPAllowlistExtra string

	// RetryMaxAttempts bounds the total number of invocations (the first
	// call included) the retry loop gives a transient error before giving up.
	RetryMaxAttempts int

	// BreakerOpenDelay is the fail-fast delay surfaced while a cluster's
	// circuit breaker is open.
	BreakerOpenDelay time.Duration

	// ProbeTimeout bounds each individual pod probe during diagnosis.
	ProbeTimeout time.Duration
}

// fileConfig is Config's on-disk YAML shape. Durations are strings
// ("30s", "1m") parsed through time.ParseDuration, since the yaml decoder
// has no native duration support.
type fileConfig struct {
	IPAllowlistExtra string `yaml:"ipAllowlistExtra"`
	RetryMaxAttempts *int   `yaml:"retryMaxAttempts"`
	BreakerOpenDelay string `yaml:"breakerOpenDelay"`
	ProbeTimeout     string `yaml:"probeTimeout"`
}

// Load builds a Config from an optional YAML file (MYSQL_OPERATOR_CONFIG
// names its path, typically a mounted ConfigMap) overlaid with environment
// variables, falling back to this repo's existing defaults
// (pkg/cluster/retry.DefaultMaxAttempts/BreakerOpenDelay,
// pkg/cluster/diagnose.ProbeTimeout's value) for anything unset, then
// validates the result. Env vars win over the file.
func Load() (*Config, error) {
	cfg := &Config{
		RetryMaxAttempts: retry.DefaultMaxAttempts,
		BreakerOpenDelay: retry.BreakerOpenDelay,
		ProbeTimeout:     5 * time.Second,
	}
	if path := os.Getenv("MYSQL_OPERATOR_CONFIG"); path != "" {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, err
		}
	}
	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}
	cfg.IPAllowlistExtra = mergeAllowlist(cfg.IPAllowlistExtra)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	if fc.IPAllowlistExtra != "" {
		cfg.IPAllowlistExtra = fc.IPAllowlistExtra
	}
	if fc.RetryMaxAttempts != nil {
		cfg.RetryMaxAttempts = *fc.RetryMaxAttempts
	}
	if fc.BreakerOpenDelay != "" {
		d, err := time.ParseDuration(fc.BreakerOpenDelay)
		if err != nil {
			return fmt.Errorf("parse breakerOpenDelay in %s: %w", path, err)
		}
		cfg.BreakerOpenDelay = d
	}
	if fc.ProbeTimeout != "" {
		d, err := time.ParseDuration(fc.ProbeTimeout)
		if err != nil {
			return fmt.Errorf("parse probeTimeout in %s: %w", path, err)
		}
		cfg.ProbeTimeout = d
	}
	return nil
}

func mergeAllowlist(extra string) string {
	if extra == "" {
		return alwaysAllowed
	}
	return extra + "," + alwaysAllowed
}

func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("MYSQL_OPERATOR_IP_ALLOWLIST_EXTRA"); v != "" {
		cfg.IPAllowlistExtra = v
	}
	if v := os.Getenv("MYSQL_OPERATOR_RETRY_MAX_ATTEMPTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parse MYSQL_OPERATOR_RETRY_MAX_ATTEMPTS: %w", err)
		}
		cfg.RetryMaxAttempts = n
	}
	if v := os.Getenv("MYSQL_OPERATOR_BREAKER_OPEN_DELAY"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse MYSQL_OPERATOR_BREAKER_OPEN_DELAY: %w", err)
		}
		cfg.BreakerOpenDelay = d
	}
	if v := os.Getenv("MYSQL_OPERATOR_PROBE_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("parse MYSQL_OPERATOR_PROBE_TIMEOUT: %w", err)
		}
		cfg.ProbeTimeout = d
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.RetryMaxAttempts <= 0 {
		return fmt.Errorf("retry max attempts must be greater than 0, got %d", cfg.RetryMaxAttempts)
	}
	if cfg.BreakerOpenDelay <= 0 {
		return fmt.Errorf("breaker open delay must be positive, got %s", cfg.BreakerOpenDelay)
	}
	if cfg.ProbeTimeout <= 0 {
		return fmt.Errorf("probe timeout must be positive, got %s", cfg.ProbeTimeout)
	}
	return nil
}
