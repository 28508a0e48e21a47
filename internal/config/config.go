// Package config loads a barrow host's on-disk settings: the data-file
// path, logging level, and the maintenance schedule.
//
// What: Load reads a YAML file into a Config, applying defaults for any
// field the file omits.
// How: A plain tagged struct decoded with gopkg.in/yaml.v3, the same
// "Type string `yaml:"Type"`" tagging style the storage-config pack repos
// use, rather than a flag-only or env-only configuration surface.
// Why: A file-based config lets a host (the REPL, a future server) pin
// its data file and maintenance cadence without recompiling, while still
// letting cmd/repl override individual fields with flags for one-off runs.
package config

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Config is a barrow host's full on-disk configuration.
type Config struct {
	// DataFile is the path to the database's backing file. Empty means
	// run entirely in memory (stg.Memory).
	DataFile string `yaml:"DataFile"`

	// Logging controls the process-wide logger.
	Logging LoggingConfig `yaml:"Logging"`

	// Maintenance controls the periodic REPACKFILE/VERIFYDB scheduler.
	Maintenance MaintenanceConfig `yaml:"Maintenance"`
}

// LoggingConfig mirrors logging.Config's fields for YAML decoding.
type LoggingConfig struct {
	Level  string `yaml:"Level"`
	Pretty bool   `yaml:"Pretty"`
}

// MaintenanceConfig describes one or more cron-scheduled maintenance jobs.
type MaintenanceConfig struct {
	// Enabled turns the scheduler on; when false, no jobs run.
	Enabled bool `yaml:"Enabled"`

	// RepackSchedule is a standard 5-field cron expression controlling
	// how often every table is repacked. Empty disables repacking.
	RepackSchedule string `yaml:"RepackSchedule"`

	// VerifySchedule is a standard 5-field cron expression controlling
	// how often VerifyDB's digest is logged. Empty disables verification.
	VerifySchedule string `yaml:"VerifySchedule"`
}

// Default returns a Config with sensible defaults for an interactive,
// in-memory REPL session.
func Default() Config {
	return Config{
		Logging: LoggingConfig{Level: "info", Pretty: true},
		Maintenance: MaintenanceConfig{
			Enabled:        false,
			RepackSchedule: "0 3 * * *",
			VerifySchedule: "0 */6 * * *",
		},
	}
}

// Load reads and decodes the YAML file at path over Default(), so any
// field the file omits keeps its default value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "config: reading %s", path)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, errors.Wrapf(err, "config: parsing %s", path)
	}
	return cfg, nil
}
