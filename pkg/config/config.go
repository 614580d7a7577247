// Package config externalizes the tuning knobs the teacher hardcodes
// (data directory, WAL sync policy, optimizer GA figures) into a YAML file
// loaded at startup, the way cuemby/warren and untoldecay/BeadsLog do.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/bobboyms/reldb/pkg/lock"
	"github.com/bobboyms/reldb/pkg/wal"
)

// WALConfig mirrors wal.Options in YAML-friendly shape; SyncPolicy is a
// string (eager|interval|batch) rather than wal's int enum so the file
// stays human-editable.
type WALConfig struct {
	SyncPolicy           string        `yaml:"sync_policy"`
	SyncIntervalDuration time.Duration `yaml:"sync_interval"`
	SyncBatchBytes       int64         `yaml:"sync_batch_bytes"`
	BufferSize           int           `yaml:"buffer_size"`
}

// OptimizerConfig mirrors optimizer.Options, the genetic search's figures.
type OptimizerConfig struct {
	PopulationSize int     `yaml:"population_size"`
	Generations    int     `yaml:"generations"`
	MutationRate   float64 `yaml:"mutation_rate"`
	CrossoverRate  float64 `yaml:"crossover_rate"`
	Elitism        int     `yaml:"elitism"`
}

// Config is the full set of knobs a running server needs.
type Config struct {
	DataDir             string          `yaml:"data_dir"`
	WAL                 WALConfig       `yaml:"wal"`
	CheckpointThreshold int             `yaml:"checkpoint_threshold"`
	CCVariant           string          `yaml:"cc_variant"`
	Optimizer           OptimizerConfig `yaml:"optimizer"`
	ServerPort          int             `yaml:"server_port"`
}

// DefaultConfig returns a ready-to-run configuration without reading a
// file, matching wal.DefaultOptions' pattern of a safe, explicit default.
func DefaultConfig() Config {
	return Config{
		DataDir: "./data",
		WAL: WALConfig{
			SyncPolicy:           "interval",
			SyncIntervalDuration: 200 * time.Millisecond,
			SyncBatchBytes:       1 * 1024 * 1024,
			BufferSize:           64 * 1024,
		},
		CheckpointThreshold: 5,
		CCVariant:           "wait-die",
		Optimizer: OptimizerConfig{
			PopulationSize: 50,
			Generations:    100,
			MutationRate:   0.1,
			CrossoverRate:  0.8,
			Elitism:        2,
		},
		ServerPort: 5433,
	}
}

// Load reads path and unmarshals it over DefaultConfig, so a partial file
// only overrides the keys it names.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// WALOptions translates WAL into wal.Options, defaulting an unrecognized
// or empty sync policy to SyncInterval rather than rejecting the file.
func (c Config) WALOptions(dirPath string) wal.Options {
	opts := wal.DefaultOptions()
	opts.DirPath = dirPath
	opts.BufferSize = c.WAL.BufferSize
	opts.SyncIntervalDuration = c.WAL.SyncIntervalDuration
	opts.SyncBatchBytes = c.WAL.SyncBatchBytes
	switch c.WAL.SyncPolicy {
	case "eager":
		opts.SyncPolicy = wal.SyncEveryWrite
	case "batch":
		opts.SyncPolicy = wal.SyncBatch
	default:
		opts.SyncPolicy = wal.SyncInterval
	}
	return opts
}

// LockVariant translates CCVariant into lock.Variant, defaulting an
// unrecognized name to WaitDieVariant.
func (c Config) LockVariant() lock.Variant {
	switch c.CCVariant {
	case "tso":
		return lock.TSOVariant
	case "occ":
		return lock.OCCVariant
	case "mvcc":
		return lock.MVCCVariant
	default:
		return lock.WaitDieVariant
	}
}
