// Package config resolves process configuration from flags, environment
// variables, and an optional config file, in that order of precedence.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// ConfigDir is the default directory viper searches for a config file
// when none is given via --config-file.
const ConfigDir = "$HOME/.config/docetl"

const masterKeyEnvVar = "MASTER_ENCRYPTION_KEY"

// Config is the fully resolved process configuration.
type Config struct {
	DBPath         string
	LogLevel       string
	LogFormat      string
	StartScheduler bool
	BatchMode      bool
	InputFiles     []string
	DiskPath       string

	// MasterKey is the 32-byte encryption key used by internal/script's
	// sealed script store. Never read from a config file: env-only.
	MasterKey []byte
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("db-path", "unified_storage.sqlite")
	v.SetDefault("log-level", "info")
	v.SetDefault("log-format", "text")
	v.SetDefault("start-scheduler", false)
	v.SetDefault("batch-mode", false)
	v.SetDefault("disk-path", "/")
}

// Load resolves Config from v, which the caller has already bound to
// command-line flags via viper.BindPFlag. Load adds env var and config
// file resolution on top of whatever flags v already carries.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	setDefaults(v)

	v.SetEnvPrefix("docetl")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(ConfigDir)
		v.SetConfigType("yaml")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configFile != "" {
			return nil, fmt.Errorf("config: reading config file: %w", err)
		}
	}

	key, err := resolveMasterKey()
	if err != nil {
		return nil, err
	}

	return &Config{
		DBPath:         v.GetString("db-path"),
		LogLevel:       v.GetString("log-level"),
		LogFormat:      v.GetString("log-format"),
		StartScheduler: v.GetBool("start-scheduler"),
		BatchMode:      v.GetBool("batch-mode"),
		InputFiles:     v.GetStringSlice("input-files"),
		DiskPath:       v.GetString("disk-path"),
		MasterKey:      key,
	}, nil
}

// resolveMasterKey reads MASTER_ENCRYPTION_KEY (base64, 32 bytes after
// decoding). If unset, it generates a fresh key and exports it into the
// process environment so child script workers spawned later inherit it.
func resolveMasterKey() ([]byte, error) {
	if encoded := os.Getenv(masterKeyEnvVar); encoded != "" {
		key, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("config: decoding %s: %w", masterKeyEnvVar, err)
		}
		if len(key) != 32 {
			return nil, fmt.Errorf("config: %s must decode to 32 bytes, got %d", masterKeyEnvVar, len(key))
		}
		return key, nil
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("config: generating master key: %w", err)
	}
	if err := os.Setenv(masterKeyEnvVar, base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, fmt.Errorf("config: exporting %s: %w", masterKeyEnvVar, err)
	}
	return key, nil
}
