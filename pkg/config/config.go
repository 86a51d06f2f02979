package config

import (
	"fmt"
	"os"
	"time"

	"github.com/c2h5oh/datasize"
	"gopkg.in/yaml.v3"

	"github.com/cuemby/burrow/pkg/engine"
)

// Config is the producer manifest loaded by the CLI.
type Config struct {
	// StagingDir holds cycle artifacts while they are staged.
	StagingDir string `yaml:"stagingDir"`

	// StorePath is the bbolt blob store file.
	StorePath string `yaml:"storePath"`

	// Dataset is the path to the dataset definition file the demo
	// populator reads each cycle.
	Dataset string `yaml:"dataset"`

	// CycleInterval is the pause between produce cycles.
	CycleInterval time.Duration `yaml:"cycleInterval"`

	// NumStatesBetweenSnapshots controls snapshot cadence; 0 publishes
	// a snapshot synchronously every cycle.
	NumStatesBetweenSnapshots int `yaml:"numStatesBetweenSnapshots"`

	// TargetMaxTypeShardSize is a human-readable byte size ("16MB")
	// forwarded to the write engine as a shard sizing hint.
	TargetMaxTypeShardSize string `yaml:"targetMaxTypeShardSize"`

	// Compression is the blob body codec: "none" or "snappy".
	Compression string `yaml:"compression"`

	Log LogConfig `yaml:"log"`
}

// LogConfig mirrors pkg/log's configuration.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load reads and validates a manifest.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := &Config{
		CycleInterval: 30 * time.Second,
		Compression:   "none",
		Log:           LogConfig{Level: "info"},
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse YAML: %w", err)
	}

	if cfg.StagingDir == "" {
		return nil, fmt.Errorf("config: stagingDir is required")
	}
	if cfg.StorePath == "" {
		return nil, fmt.Errorf("config: storePath is required")
	}
	switch cfg.Compression {
	case "none", "snappy":
	default:
		return nil, fmt.Errorf("config: unknown compression %q", cfg.Compression)
	}
	if _, err := cfg.ShardSizeBytes(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ShardSizeBytes parses the shard size hint; 0 means use the engine
// default.
func (c *Config) ShardSizeBytes() (int64, error) {
	if c.TargetMaxTypeShardSize == "" {
		return 0, nil
	}
	var v datasize.ByteSize
	if err := v.UnmarshalText([]byte(c.TargetMaxTypeShardSize)); err != nil {
		return 0, fmt.Errorf("config: parse targetMaxTypeShardSize: %w", err)
	}
	return int64(v.Bytes()), nil
}

// DatasetType is one record type of a dataset definition file.
type DatasetType struct {
	Name   string `yaml:"name"`
	Fields []struct {
		Name string `yaml:"name"`
		Type string `yaml:"type"`
	} `yaml:"fields"`
	Records []map[string]any `yaml:"records"`
}

// Dataset is the demo populator's input: full desired content per cycle.
type Dataset struct {
	Types []DatasetType `yaml:"types"`
}

// LoadDataset reads a dataset definition file.
func LoadDataset(path string) (*Dataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read dataset: %w", err)
	}
	var ds Dataset
	if err := yaml.Unmarshal(data, &ds); err != nil {
		return nil, fmt.Errorf("config: parse dataset: %w", err)
	}
	return &ds, nil
}

// Schema converts a dataset type to an engine schema.
func (t DatasetType) Schema() (engine.Schema, error) {
	s := engine.Schema{Name: t.Name}
	for _, f := range t.Fields {
		ft, err := fieldType(f.Type)
		if err != nil {
			return engine.Schema{}, fmt.Errorf("config: type %q field %q: %w", t.Name, f.Name, err)
		}
		s.Fields = append(s.Fields, engine.Field{Name: f.Name, Type: ft})
	}
	if err := s.Validate(); err != nil {
		return engine.Schema{}, err
	}
	return s, nil
}

func fieldType(name string) (engine.FieldType, error) {
	switch name {
	case "int":
		return engine.FieldInt, nil
	case "float":
		return engine.FieldFloat, nil
	case "bool":
		return engine.FieldBool, nil
	case "string":
		return engine.FieldString, nil
	case "bytes":
		return engine.FieldBytes, nil
	default:
		return 0, fmt.Errorf("unknown field type %q", name)
	}
}
