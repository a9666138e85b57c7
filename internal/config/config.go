package config

import (
	"bytes"
	"errors"
	"fmt"
	"github.com/caarlos0/env/v11"
	"github.com/cirruslabs/tensorcraft/internal/loader/strategy"
	"gopkg.in/yaml.v3"
	"io"
	"os"
	"time"
)

const (
	DefaultAddr = "127.0.0.1:5678"
	EnvPrefix   = "TENSORCRAFT_"
)

type Config struct {
	Addr     string   `yaml:"addr"`
	DataRoot string   `yaml:"data-root"`
	Strategy string   `yaml:"strategy"`
	Preload  bool     `yaml:"preload"`
	Isolated Isolated `yaml:"isolated"`
	S3       *S3      `yaml:"s3"`
	TLS      *TLS     `yaml:"tls"`
}

type Isolated struct {
	Workers int           `yaml:"workers"`
	Queue   *int          `yaml:"queue"`
	Timeout time.Duration `yaml:"timeout"`
}

type S3 struct {
	Bucket          string `yaml:"bucket"`
	Endpoint        string `yaml:"endpoint"`
	Region          string `yaml:"region"`
	AccessKeyID     string `yaml:"access-key-id"`
	AccessKeySecret string `yaml:"access-key-secret"`
	Prefix          string `yaml:"prefix"`
}

type TLS struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`

	// Require clients to present a certificate signed by this CA
	ClientCA string `yaml:"client-ca"`
}

// overrides are the settings that can be changed through
// the environment variables without editing the file.
type overrides struct {
	Addr     string `env:"ADDR"`
	DataRoot string `env:"DATA_ROOT"`
	Strategy string `env:"STRATEGY"`
	Preload  *bool  `env:"PRELOAD"`
}

func Parse(r io.Reader) (*Config, error) {
	var config Config

	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	// An empty file is a valid configuration
	if err := decoder.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}

	return &config, nil
}

// Load parses the configuration file at path, if any, and applies
// the environment variable overrides on top of it.
func Load(path string) (*Config, error) {
	config := &Config{}

	if path != "" {
		configBytes, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read configuration file at path %s: %w", path, err)
		}

		config, err = Parse(bytes.NewReader(configBytes))
		if err != nil {
			return nil, fmt.Errorf("failed to parse configuration file at path %s: %w", path, err)
		}
	}

	if err := config.ApplyEnvironment(nil); err != nil {
		return nil, err
	}

	return config, nil
}

// ApplyEnvironment overrides the settings with the TENSORCRAFT_*
// environment variables, if any. The environ argument is optional
// and defaults to the process environment.
func (config *Config) ApplyEnvironment(environ map[string]string) error {
	var overrides overrides

	opts := env.Options{
		Prefix: EnvPrefix,
	}

	if environ != nil {
		opts.Environment = environ
	}

	if err := env.ParseWithOptions(&overrides, opts); err != nil {
		return fmt.Errorf("failed to parse environment variables: %w", err)
	}

	if overrides.Addr != "" {
		config.Addr = overrides.Addr
	}

	if overrides.DataRoot != "" {
		config.DataRoot = overrides.DataRoot
	}

	if overrides.Strategy != "" {
		config.Strategy = overrides.Strategy
	}

	if overrides.Preload != nil {
		config.Preload = *overrides.Preload
	}

	return nil
}

// Validate fills in the defaults and checks that the
// configuration describes a runnable server.
func (config *Config) Validate() error {
	if config.Addr == "" {
		config.Addr = DefaultAddr
	}

	if config.DataRoot == "" {
		return fmt.Errorf("data root directory (data-root) needs to be specified")
	}

	parsedStrategy, err := strategy.Parse(config.Strategy)
	if err != nil {
		return err
	}
	config.Strategy = string(parsedStrategy)

	if config.Isolated.Workers < 0 {
		return fmt.Errorf("number of isolated workers cannot be negative, got %d", config.Isolated.Workers)
	}

	if config.Isolated.Queue != nil && *config.Isolated.Queue < 0 {
		return fmt.Errorf("isolated queue size cannot be negative, got %d", *config.Isolated.Queue)
	}

	if config.Isolated.Timeout < 0 {
		return fmt.Errorf("isolated load timeout cannot be negative, got %s", config.Isolated.Timeout)
	}

	if config.S3 != nil && config.S3.Bucket == "" {
		return fmt.Errorf("S3 bucket name (s3.bucket) needs to be specified")
	}

	if config.TLS != nil && (config.TLS.Cert == "" || config.TLS.Key == "") {
		return fmt.Errorf("both TLS certificate (tls.cert) and key (tls.key) need to be specified")
	}

	return nil
}
