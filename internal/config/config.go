// Copyright 2026 Blink Labs Software
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
	"context"
	"fmt"
	"maps"
	"os"
	"path/filepath"

	"github.com/blinklabs-io/tally/database/plugin"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

type ctxKey string

const configContextKey ctxKey = "tally.config"

const DefaultShutdownTimeout = "30s"

func WithContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configContextKey, cfg)
}

func FromContext(ctx context.Context) *Config {
	cfg, ok := ctx.Value(configContextKey).(*Config)
	if !ok {
		return nil
	}
	return cfg
}

const (
	DefaultBlobPlugin     = "badger"
	DefaultMetadataPlugin = "sqlite"
)

// RunMode represents the operational mode of the tally coordinator
type RunMode string

const (
	RunModeServe RunMode = "serve" // Coordinator with external oracle (default)
	RunModeDev   RunMode = "dev"   // Development mode (in-memory stores, loopback oracle)
)

// Valid returns true if the RunMode is a known valid mode
func (m RunMode) Valid() bool {
	switch m {
	case RunModeServe, RunModeDev, "":
		return true
	default:
		return false
	}
}

// IsDevMode returns true if the mode enables development behaviors
// (in-memory stores, generated keys, loopback oracle)
func (m RunMode) IsDevMode() bool {
	return m == RunModeDev
}

type tempConfig struct {
	Config   *Config                   `yaml:"config,omitempty"`
	Database *databaseConfig           `yaml:"database,omitempty"`
	Blob     map[string]map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]map[string]any `yaml:"metadata,omitempty"`
}

type databaseConfig struct {
	Blob     map[string]any `yaml:"blob,omitempty"`
	Metadata map[string]any `yaml:"metadata,omitempty"`
}

type Config struct {
	MetadataPlugin  string  `yaml:"metadataPlugin"  envconfig:"TALLY_DATABASE_METADATA_PLUGIN"`
	BlobPlugin      string  `yaml:"blobPlugin"      envconfig:"TALLY_DATABASE_BLOB_PLUGIN"`
	DatabasePath    string  `yaml:"databasePath"                                              split_words:"true"`
	BindAddr        string  `yaml:"bindAddr"                                                  split_words:"true"`
	ShutdownTimeout string  `yaml:"shutdownTimeout"                                           split_words:"true"`
	ApiPort         uint    `yaml:"apiPort"         envconfig:"port"`
	MetricsPort     uint    `yaml:"metricsPort"                                               split_words:"true"`
	RunMode         RunMode `yaml:"runMode"         envconfig:"TALLY_RUN_MODE"`
	// Administrator bootstraps the administrator identity on first start.
	// Once persisted, the stored identity wins.
	Administrator string `yaml:"administrator" split_words:"true"`
	// CooldownSeconds seeds the rate limiter cooldown on first start
	CooldownSeconds uint64 `yaml:"cooldownSeconds" split_words:"true"`
	// Key material paths (empty = derived from keyDir)
	KeyDir                 string `yaml:"keyDir"                 split_words:"true"`
	IdentityKeyFile        string `yaml:"identityKeyFile"        split_words:"true"`
	OracleSecretFile       string `yaml:"oracleSecretFile"       split_words:"true"`
	PaillierPublicKeyFile  string `yaml:"paillierPublicKeyFile"  split_words:"true"`
	PaillierPrivateKeyFile string `yaml:"paillierPrivateKeyFile" split_words:"true"`
	// Oracle endpoint configuration (unused in dev mode)
	OracleUrl         string `yaml:"oracleUrl"         split_words:"true"`
	OracleCallbackUrl string `yaml:"oracleCallbackUrl" split_words:"true"`
	// Tracing
	Tracing       bool `yaml:"tracing"       split_words:"true"`
	TracingStdout bool `yaml:"tracingStdout" split_words:"true"`
}

// IdentityKeyPath returns the effective coordinator identity key file path
func (c *Config) IdentityKeyPath() string {
	if c.IdentityKeyFile != "" {
		return c.IdentityKeyFile
	}
	return filepath.Join(c.KeyDir, "identity.json")
}

// OracleSecretPath returns the effective oracle shared secret file path
func (c *Config) OracleSecretPath() string {
	if c.OracleSecretFile != "" {
		return c.OracleSecretFile
	}
	return filepath.Join(c.KeyDir, "oracle-secret.json")
}

// PaillierPublicKeyPath returns the effective Paillier public key file path
func (c *Config) PaillierPublicKeyPath() string {
	if c.PaillierPublicKeyFile != "" {
		return c.PaillierPublicKeyFile
	}
	return filepath.Join(c.KeyDir, "paillier-public.json")
}

// PaillierPrivateKeyPath returns the effective Paillier private key file
// path. The private key belongs with the decryption oracle; it is only
// present on the coordinator host when running the built-in development
// oracle.
func (c *Config) PaillierPrivateKeyPath() string {
	if c.PaillierPrivateKeyFile != "" {
		return c.PaillierPrivateKeyFile
	}
	return filepath.Join(c.KeyDir, "paillier-private.json")
}

var globalConfig = &Config{
	BindAddr:        "0.0.0.0",
	DatabasePath:    ".tally",
	ApiPort:         8080,
	MetricsPort:     8081,
	BlobPlugin:      DefaultBlobPlugin,
	MetadataPlugin:  DefaultMetadataPlugin,
	RunMode:         RunModeServe,
	CooldownSeconds: 60,
	KeyDir:          ".tally/keys",
	ShutdownTimeout: DefaultShutdownTimeout,
}

func LoadConfig(configFile string) (*Config, error) {
	// Load config file as YAML if provided
	if configFile == "" {
		// Check for config file in this path: ~/.tally/tally.yaml
		if homeDir, err := os.UserHomeDir(); err == nil {
			userPath := filepath.Join(homeDir, ".tally", "tally.yaml")
			if _, err := os.Stat(userPath); err == nil {
				configFile = userPath
			}
		}

		// Try to check for /etc/tally/tally.yaml if still not found
		if configFile == "" {
			systemPath := "/etc/tally/tally.yaml"
			if _, err := os.Stat(systemPath); err == nil {
				configFile = systemPath
			}
		}
	}

	if configFile != "" {
		buf, err := os.ReadFile(configFile)
		if err != nil {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}

		// First unmarshal into temp config to handle plugin sections
		var tempCfg tempConfig
		err = yaml.Unmarshal(buf, &tempCfg)
		if err != nil {
			return nil, fmt.Errorf("error parsing config file: %w", err)
		}

		// If config section exists, use it for main config
		if tempCfg.Config != nil {
			// Overlay config values onto existing defaults
			configBytes, err := yaml.Marshal(tempCfg.Config)
			if err != nil {
				return nil, fmt.Errorf("error re-marshalling config: %w", err)
			}
			err = yaml.Unmarshal(configBytes, globalConfig)
			if err != nil {
				return nil, fmt.Errorf("error parsing config section: %w", err)
			}
		} else {
			// Otherwise unmarshal the whole file as main config (backward compatibility)
			err = yaml.Unmarshal(buf, globalConfig)
			if err != nil {
				return nil, fmt.Errorf("error parsing config file: %w", err)
			}
		}

		// Process plugin configurations
		pluginConfig := make(map[string]map[string]map[string]any)
		if tempCfg.Blob != nil {
			pluginConfig["blob"] = tempCfg.Blob
		}
		if tempCfg.Metadata != nil {
			pluginConfig["metadata"] = tempCfg.Metadata
		}
		// Handle database section if present
		if tempCfg.Database != nil {
			if tempCfg.Database.Blob != nil {
				// Extract plugin name if specified
				if pluginVal, exists := tempCfg.Database.Blob["plugin"]; exists {
					if pluginName, ok := pluginVal.(string); ok {
						globalConfig.BlobPlugin = pluginName
						// Remove plugin from config map
						delete(tempCfg.Database.Blob, "plugin")
					}
				}
				blobConfig := pluginSectionConfig(
					"blob",
					tempCfg.Database.Blob,
				)
				// Merge with existing blob config instead of overwriting
				if pluginConfig["blob"] == nil {
					pluginConfig["blob"] = blobConfig
				} else {
					maps.Copy(pluginConfig["blob"], blobConfig)
				}
			}
			if tempCfg.Database.Metadata != nil {
				// Extract plugin name if specified
				if pluginVal, exists := tempCfg.Database.Metadata["plugin"]; exists {
					if pluginName, ok := pluginVal.(string); ok {
						globalConfig.MetadataPlugin = pluginName
						// Remove plugin from config map
						delete(tempCfg.Database.Metadata, "plugin")
					}
				}
				metadataConfig := pluginSectionConfig(
					"metadata",
					tempCfg.Database.Metadata,
				)
				// Merge with existing metadata config instead of overwriting
				if pluginConfig["metadata"] == nil {
					pluginConfig["metadata"] = metadataConfig
				} else {
					maps.Copy(pluginConfig["metadata"], metadataConfig)
				}
			}
		}
		if len(pluginConfig) > 0 {
			err = plugin.ProcessConfig(pluginConfig)
			if err != nil {
				return nil, fmt.Errorf(
					"error processing plugin config: %w",
					err,
				)
			}
		}
	}
	// Process environment variables
	err := envconfig.Process("tally", globalConfig)
	if err != nil {
		return nil, fmt.Errorf("error processing environment: %+w", err)
	}

	// Process plugin environment variables
	err = plugin.ProcessEnvVars()
	if err != nil {
		return nil, fmt.Errorf(
			"error processing plugin environment variables: %w",
			err,
		)
	}

	// Validate and default RunMode
	if !globalConfig.RunMode.Valid() {
		return nil, fmt.Errorf(
			"invalid runMode: %q (must be 'serve' or 'dev')",
			globalConfig.RunMode,
		)
	}
	if globalConfig.RunMode == "" {
		globalConfig.RunMode = RunModeServe
	}

	return globalConfig, nil
}

// pluginSectionConfig converts a database plugin config section into the
// per-plugin option maps expected by plugin.ProcessConfig
func pluginSectionConfig(
	section string,
	raw map[string]any,
) map[string]map[string]any {
	sectionConfig := make(map[string]map[string]any)
	for k, v := range raw {
		if val, ok := v.(map[string]any); ok {
			sectionConfig[k] = val
		} else if val, ok := v.(map[any]any); ok {
			// Convert map[any]any to map[string]any
			stringAnyMap := make(map[string]any)
			for vk, vv := range val {
				if keyStr, ok := vk.(string); ok {
					stringAnyMap[keyStr] = vv
				}
			}
			sectionConfig[k] = stringAnyMap
		} else {
			// Log skipped non-map config entries
			fmt.Fprintf(
				os.Stderr,
				"warning: skipping %s config entry %q: expected map, got %T\n",
				section,
				k,
				v,
			)
		}
	}
	return sectionConfig
}

func GetConfig() *Config {
	return globalConfig
}
