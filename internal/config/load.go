package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. SETTINGS_STORE_BACKEND.
const EnvPrefix = "SETTINGS"

// DotEnvFiles are loaded from the working directory before the environment
// is read. Variables already set are never overridden.
var DotEnvFiles = []string{".env.local", ".env"}

// Load reads configuration from file (or ./settingsctl.yaml when file is
// empty and the default file exists) and the environment. Environment
// variables, including those from DotEnvFiles, take precedence over file
// values. SETTINGS_DOTENV=off skips the dotenv files.
func Load(file string) (*Config, error) {
	if err := loadDotEnv(); err != nil {
		return nil, err
	}
	v := viper.New()
	setDefaults(v)

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("settingsctl")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: reading config: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: decoding: %w", err)
	}
	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate applies the struct validation tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config: validation failed: %w", err)
	}
	return nil
}

func loadDotEnv() error {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(EnvPrefix + "_DOTENV"))) {
	case "0", "false", "off", "no":
		return nil
	}
	for _, path := range DotEnvFiles {
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("config: loading %s: %w", path, err)
		}
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.development", false)
	v.SetDefault("store.backend", "file")
	v.SetDefault("store.dir", ".settings")
	v.SetDefault("store.path", "")
	v.SetDefault("evaluator.engine", "expr")
}
