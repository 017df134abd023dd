package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/viper"
)

// FileName is the config file name searched for in $HOME and the working
// directory, without extension.
const FileName = "nartool"

type Config struct {
	LogLevel        string `mapstructure:"log_level"`
	LogFormat       string `mapstructure:"log_format"`
	StoreType       string `mapstructure:"store_type"`
	Level           string `mapstructure:"level"`
	Workers         int    `mapstructure:"workers"`
	AutoDecrypt     bool   `mapstructure:"auto_decrypt"`
	VerifyOnExtract bool   `mapstructure:"verify_on_extract"`
	Catalog         string `mapstructure:"catalog"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("store_type", "encoded")
	v.SetDefault("level", "normal")
	v.SetDefault("workers", runtime.NumCPU())
	v.SetDefault("auto_decrypt", false)
	v.SetDefault("verify_on_extract", false)
	v.SetDefault("catalog", "nartool.db")
}

// Load reads configuration from cfgFile, or from nartool.yaml in $HOME or
// the working directory when cfgFile is empty. A missing file leaves the
// defaults in place.
func Load(cfgFile string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}

		v.AddConfigPath(home)
		v.AddConfigPath(".")
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}
