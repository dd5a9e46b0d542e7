// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"fmt"

	"github.com/BurntSushi/toml"
	"github.com/huandu/go-clone"
)

type LogOptions struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
	Output string `toml:"output"`
}

type MemoryOptions struct {
	//bytes. 0 means unlimited
	Limit int64 `toml:"limit"`
}

type AggregateOptions struct {
	InitialCapacity int `toml:"initialCapacity"`
	Workers         int `toml:"workers"`
	RadixBits       int `toml:"radixBits"`
}

type SortOptions struct {
	Desc       bool `toml:"desc"`
	NullsFirst bool `toml:"nullsFirst"`
	PrefixLen  int  `toml:"prefixLen"`
}

type ColumnOption struct {
	Name string `toml:"name"`
	Type string `toml:"type"`
}

type InputOptions struct {
	Path       string         `toml:"path"`
	Format     string         `toml:"format"`
	Delimiter  string         `toml:"delimiter"`
	HasHeader  bool           `toml:"hasHeader"`
	Columns    []ColumnOption `toml:"columns"`
	GroupBy    []string       `toml:"groupBy"`
	Aggregates []string       `toml:"aggregates"`
}

type DebugOptions struct {
	Verify      bool `toml:"verify"`
	PrintLayout bool `toml:"printLayout"`
	MaxRows     int  `toml:"maxRows"`
}

type Config struct {
	Log       LogOptions       `toml:"log"`
	Memory    MemoryOptions    `toml:"memory"`
	Aggregate AggregateOptions `toml:"aggregate"`
	Sort      SortOptions      `toml:"sort"`
	Input     InputOptions     `toml:"input"`
	Debug     DebugOptions     `toml:"debug"`
}

var defaultConfig = Config{
	Log: LogOptions{
		Level:  "info",
		Format: "console",
	},
	Aggregate: AggregateOptions{
		InitialCapacity: 4096,
		Workers:         1,
	},
	Sort: SortOptions{
		NullsFirst: true,
		PrefixLen:  12,
	},
	Input: InputOptions{
		Format:    "csv",
		Delimiter: ",",
		HasHeader: true,
	},
}

// DefaultConfig returns a fresh copy of the built-in defaults.
func DefaultConfig() *Config {
	cfg := clone.Clone(defaultConfig).(Config)
	return &cfg
}

// LoadConfig decodes the toml file at path over the defaults.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	if !FileIsValid(path) {
		return nil, fmt.Errorf("config file %s does not exist", path)
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (cfg *Config) Validate() error {
	if cfg.Aggregate.InitialCapacity < 0 {
		return fmt.Errorf("aggregate.initialCapacity must not be negative")
	}
	if cfg.Aggregate.InitialCapacity > 0 &&
		!IsPowerOfTwo(uint64(cfg.Aggregate.InitialCapacity)) {
		return fmt.Errorf("aggregate.initialCapacity %d is not a power of two",
			cfg.Aggregate.InitialCapacity)
	}
	if cfg.Aggregate.RadixBits < 0 || cfg.Aggregate.RadixBits > 10 {
		return fmt.Errorf("aggregate.radixBits %d out of range [0,10]",
			cfg.Aggregate.RadixBits)
	}
	if cfg.Aggregate.Workers < 0 {
		return fmt.Errorf("aggregate.workers must not be negative")
	}
	if cfg.Sort.PrefixLen < 0 {
		return fmt.Errorf("sort.prefixLen must not be negative")
	}
	switch cfg.Input.Format {
	case "", "csv", "parquet":
	default:
		return fmt.Errorf("unsupported input format %q", cfg.Input.Format)
	}
	return nil
}
