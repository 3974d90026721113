// Copyright 2025 Blink Labs Software
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

package config

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v2"
)

const (
	// MaxDifficulty is the number of hex characters in a 256-bit digest
	MaxDifficulty = 64
)

type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Miner   MinerConfig   `yaml:"miner"`
	Metrics MetricsConfig `yaml:"metrics"`
}

type LoggingConfig struct {
	Debug bool `yaml:"debug" envconfig:"LOGGING_DEBUG"`
}

type LedgerConfig struct {
	Difficulty    int    `yaml:"difficulty"    envconfig:"LEDGER_DIFFICULTY"`
	HashAlgorithm string `yaml:"hashAlgorithm" envconfig:"LEDGER_HASH_ALGORITHM"`
}

type MinerConfig struct {
	WorkerCount      int    `yaml:"workers"          envconfig:"WORKER_COUNT"`
	MaxIterations    uint64 `yaml:"maxIterations"    envconfig:"MINER_MAX_ITERATIONS"`
	HashRateInterval int    `yaml:"hashRateInterval" envconfig:"HASH_RATE_INTERVAL"`
}

type MetricsConfig struct {
	ListenAddress string `yaml:"address" envconfig:"METRICS_LISTEN_ADDRESS"`
	ListenPort    uint   `yaml:"port"    envconfig:"METRICS_LISTEN_PORT"`
}

// Singleton config instance with default values
var globalConfig = defaultConfig()

func defaultConfig() *Config {
	return &Config{
		Ledger: LedgerConfig{
			Difficulty:    5,
			HashAlgorithm: "sha256",
		},
		// A single worker reproduces the sequential nonce search
		Miner: MinerConfig{
			WorkerCount:      1,
			HashRateInterval: 60,
		},
		Metrics: MetricsConfig{
			ListenAddress: "",
			ListenPort:    0,
		},
	}
}

func Load(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		err = yaml.Unmarshal(buf, globalConfig)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}
	}
	// Load config values from environment variables
	// We use "dummy" as the app name here to (mostly) prevent picking up env
	// vars that we hadn't explicitly specified in annotations above
	err := envconfig.Process("dummy", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %w", err)
	}
	if err := globalConfig.validate(); err != nil {
		return nil, err
	}
	return globalConfig, nil
}

// GetConfig returns the global config instance
func GetConfig() *Config {
	return globalConfig
}

// Reset restores the global config to its default values
func Reset() {
	globalConfig = defaultConfig()
}

func (c *Config) validate() error {
	if c.Ledger.Difficulty < 0 || c.Ledger.Difficulty > MaxDifficulty {
		return fmt.Errorf(
			"ledger difficulty must be between 0 and %d, got %d",
			MaxDifficulty,
			c.Ledger.Difficulty,
		)
	}
	if c.Miner.WorkerCount < 1 {
		return fmt.Errorf(
			"miner worker count must be at least 1, got %d",
			c.Miner.WorkerCount,
		)
	}
	if c.Miner.HashRateInterval < 0 {
		return fmt.Errorf(
			"miner hash rate interval cannot be negative, got %d",
			c.Miner.HashRateInterval,
		)
	}
	return nil
}
