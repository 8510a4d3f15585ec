// Package config provides configuration for the scoredit command.
package config

import (
	"os"
	"strconv"

	"github.com/juju/loggo"
	errgo "gopkg.in/errgo.v1"
	"gopkg.in/yaml.v3"

	"go-scoredit/engine"
	"go-scoredit/quant"
	"go-scoredit/score"
)

// Config holds the command configuration.
type Config struct {
	// DataPath is the SQLite database holding the documents.
	DataPath string `yaml:"data"`
	// Resolution is the number of quants per whole note of new
	// documents.
	Resolution int `yaml:"resolution"`
	// DefaultMode is "overwrite" or "insert".
	DefaultMode string `yaml:"mode"`
	// TimeSignature of the measures of new documents, e.g. "3/4".
	TimeSignature string `yaml:"time"`
	// LogLevel is a loggo level name or a full loggo specification.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file or environment
// variable says otherwise.
func Default() *Config {
	return &Config{
		DataPath:      "scoredit.db",
		Resolution:    quant.Default.PerWhole,
		DefaultMode:   engine.Overwrite.String(),
		TimeSignature: "4/4",
		LogLevel:      "WARNING",
	}
}

// Load reads the YAML file at path over the defaults, then applies
// the environment. A missing file is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, errgo.Notef(err, "parsing %s", path)
			}
		case os.IsNotExist(err):
		default:
			return nil, errgo.Notef(err, "reading config")
		}
	}
	cfg.FromEnv()
	if err := cfg.Validate(); err != nil {
		return nil, errgo.Mask(err, errgo.Any)
	}
	return cfg, nil
}

// FromEnv overrides fields from SCOREDIT_* environment variables.
func (cfg *Config) FromEnv() {
	cfg.DataPath = getEnv("SCOREDIT_DATA", cfg.DataPath)
	cfg.Resolution = getEnvInt("SCOREDIT_RESOLUTION", cfg.Resolution)
	cfg.DefaultMode = getEnv("SCOREDIT_MODE", cfg.DefaultMode)
	cfg.TimeSignature = getEnv("SCOREDIT_TIME", cfg.TimeSignature)
	cfg.LogLevel = getEnv("SCOREDIT_LOG", cfg.LogLevel)
}

func (cfg *Config) Validate() error {
	if cfg.Resolution <= 0 || cfg.Resolution%4 != 0 {
		return errgo.Newf("resolution %d is not a positive multiple of 4", cfg.Resolution)
	}
	if _, err := cfg.Mode(); err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	ts, err := cfg.TimeSig()
	if err != nil {
		return errgo.Mask(err, errgo.Any)
	}
	if _, err := cfg.Table().Capacity(ts.Num, ts.Den); err != nil {
		return errgo.Notef(err, "time signature %s", ts)
	}
	return nil
}

func (cfg *Config) Mode() (engine.Mode, error) {
	return engine.ParseMode(cfg.DefaultMode)
}

func (cfg *Config) TimeSig() (score.TimeSignature, error) {
	return score.ParseTimeSignature(cfg.TimeSignature)
}

func (cfg *Config) Table() quant.Table {
	return quant.Table{PerWhole: cfg.Resolution}
}

// LoggerSpec returns the argument for loggo.ConfigureLoggers.
func (cfg *Config) LoggerSpec() string {
	if level, ok := loggo.ParseLevel(cfg.LogLevel); ok {
		return "<root>=" + level.String()
	}
	return cfg.LogLevel
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
