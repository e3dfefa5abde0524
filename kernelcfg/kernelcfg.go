// Package kernelcfg loads the YAML scenario description used by ports and
// by the tlsim host simulator. The kernel's own capacities are compile-time
// constants; a config describes a scenario against them, it does not resize
// anything.
package kernelcfg

import (
	"fmt"
	"os"

	"github.com/inhies/go-bytesize"
	"gopkg.in/yaml.v2"

	"github.com/tinyrt-org/tinyrt/internal/task"
	"github.com/tinyrt-org/tinyrt/tls"
)

// Config is one scenario.
type Config struct {
	// StorageSlots and the lock counts document what the port was built
	// with, for reporting and sanity checks.
	StorageSlots int `yaml:"storage-slots"`
	SystemLocks  int `yaml:"system-locks"`
	FileLocks    int `yaml:"file-locks"`

	// SegmentSize is the per-task storage segment size, in a
	// human-readable form such as "4KB".
	SegmentSize string `yaml:"segment-size"`

	// Simulator knobs.
	Tasks      int   `yaml:"tasks"`
	Iterations int   `yaml:"iterations"`
	Seed       int64 `yaml:"seed"`
}

// Default returns the scenario used when no config file is given.
func Default() *Config {
	return &Config{
		StorageSlots: 8,
		SystemLocks:  4,
		FileLocks:    8,
		SegmentSize:  "4KB",
		Tasks:        4,
		Iterations:   2000,
		Seed:         1,
	}
}

// Load reads and validates a scenario file. Fields absent from the file
// keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("kernelcfg: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("kernelcfg: parsing %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("kernelcfg: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the scenario for values the simulator cannot run with,
// and cross-checks the declared capacities against what this kernel was
// actually built with.
func (c *Config) Validate() error {
	if c.StorageSlots <= 0 {
		return fmt.Errorf("storage-slots must be positive, got %d", c.StorageSlots)
	}
	if c.SystemLocks < 0 || c.FileLocks < 0 {
		return fmt.Errorf("lock counts must not be negative, got %d and %d", c.SystemLocks, c.FileLocks)
	}
	if c.StorageSlots != task.NumSlots {
		return fmt.Errorf("storage-slots is %d, this kernel was built with %d", c.StorageSlots, task.NumSlots)
	}
	if c.SystemLocks != tls.NumSystemLocks || c.FileLocks != tls.NumFileLocks {
		return fmt.Errorf("lock counts are %d+%d, this kernel was built with %d+%d",
			c.SystemLocks, c.FileLocks, tls.NumSystemLocks, tls.NumFileLocks)
	}
	if c.Tasks <= 0 {
		return fmt.Errorf("tasks must be positive, got %d", c.Tasks)
	}
	if c.Iterations <= 0 {
		return fmt.Errorf("iterations must be positive, got %d", c.Iterations)
	}
	if _, err := c.SegmentBytes(); err != nil {
		return err
	}
	return nil
}

// SegmentBytes returns the parsed segment size in bytes.
func (c *Config) SegmentBytes() (int, error) {
	sz, err := bytesize.Parse(c.SegmentSize)
	if err != nil {
		return 0, fmt.Errorf("segment-size %q: %w", c.SegmentSize, err)
	}
	if sz == 0 {
		return 0, fmt.Errorf("segment-size %q: must not be zero", c.SegmentSize)
	}
	return int(sz), nil
}
