package config

import (
	"errors"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the optional s3mirror configuration file.
type Config struct {
	Defaults DefaultsConfig `toml:"defaults"`
	S3       S3Config       `toml:"s3"`
}

// DefaultsConfig holds persistent flag defaults.
type DefaultsConfig struct {
	Workers        *int    `toml:"workers"`
	MaxRetries     *int    `toml:"max_retries"`
	Compare        *string `toml:"compare"`
	ReportInterval *string `toml:"report_interval"`
	BWLimit        *string `toml:"bwlimit"`
	LogFailures    *bool   `toml:"log_failures"`
}

// S3Config holds client settings used when either side is an S3 location.
// Static keys are optional; the SDK's default credential chain applies
// otherwise.
type S3Config struct {
	Region    *string `toml:"region"`
	Endpoint  *string `toml:"endpoint"`
	Profile   *string `toml:"profile"`
	PathStyle *bool   `toml:"path_style"`
	Proxy     *string `toml:"proxy"`
	AccessKey *string `toml:"access_key"`
	SecretKey *string `toml:"secret_key"`
}

func configDir() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "s3mirror")
}

// ConfigPath returns the resolved path to the config file.
func ConfigPath() string {
	dir := configDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.toml")
}

// Load reads the config file from the XDG path. Returns a zero Config
// (no error) if the file does not exist. Config is always optional.
func Load() (Config, error) {
	return LoadFile(ConfigPath())
}

// LoadFile reads the config file at path with the same rules as Load.
func LoadFile(path string) (Config, error) {
	if path == "" {
		return Config{}, nil
	}

	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Config{}, nil
		}
		return Config{}, err
	}
	return cfg, nil
}
