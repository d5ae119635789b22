package main

import (
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

// Config represents the qdqconf configuration file (~/.config/qdqconf/config.yaml).
// Empty strings and nil pointers mean "not set".
type Config struct {
	// Resolution defaults
	ActivationType   string `yaml:"activation_type"`
	WeightType       string `yaml:"weight_type"`
	CalibrateMethod  string `yaml:"calibrate_method"`
	AddQTypeConverts *bool  `yaml:"add_qtype_converts"`

	// Output
	LogLevel     string `yaml:"log_level"`
	LogFormat    string `yaml:"log_format"`
	OutputFormat string `yaml:"output_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

// configPathOverride is a seam for tests.
var configPathOverride string

func configPath() string {
	if configPathOverride != "" {
		return configPathOverride
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "qdqconf", "config.yaml")
}

// applyLoggingConfig applies config file defaults to the root logging flags.
func applyLoggingConfig(c *cli.Command, cfg Config) {
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyQuantConfig applies config file defaults to resolution settings
// when the corresponding CLI flag was not explicitly set.
func applyQuantConfig(c *cli.Command, cfg Config, s *quantSettings) {
	if cfg.ActivationType != "" && !c.IsSet("activation-type") {
		s.activationType = cfg.ActivationType
	}
	if cfg.WeightType != "" && !c.IsSet("weight-type") {
		s.weightType = cfg.WeightType
	}
	if cfg.CalibrateMethod != "" && !c.IsSet("calibrate-method") {
		s.calibrateMethod = cfg.CalibrateMethod
	}
	if cfg.AddQTypeConverts != nil && !c.IsSet("add-qtype-converts") {
		s.addQTypeConverts = *cfg.AddQTypeConverts
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}

// LoadConfig reads the config file. Returns a zero Config if the file doesn't exist.
func LoadConfig() Config {
	path := configPath()
	if path == "" {
		return Config{}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}
	}
	return cfg
}
