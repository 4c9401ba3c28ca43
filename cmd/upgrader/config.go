package main

import (
	"encoding/hex"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/iov-one/upgrade/errors"
	"github.com/iov-one/upgrade/migration"
)

// config holds all settings of a single upgrader execution.
type config struct {
	Home      string
	LogLevel  string
	MaxWeight uint64
	// Weight is nil unless the database weights were configured.
	Weight *migration.DBWeight
	Expect []migration.Expectation
}

func defaultConfig() *config {
	return &config{LogLevel: "info"}
}

type fileConfig struct {
	Home        string         `toml:"home"`
	LogLevel    string         `toml:"log_level"`
	MaxWeight   uint64         `toml:"max_weight"`
	ReadWeight  uint64         `toml:"read_weight"`
	WriteWeight uint64         `toml:"write_weight"`
	Expect      []expectConfig `toml:"expect"`
}

// expectConfig declares a single verification expectation. Unit together
// with Version expects a schema version. Otherwise Key is required and
// either Absent or a hex encoded Value must be given.
type expectConfig struct {
	Unit    string `toml:"unit"`
	Version uint32 `toml:"version"`
	Key     string `toml:"key"`
	Value   string `toml:"value"`
	Absent  bool   `toml:"absent"`
}

func loadConfig(path string) (*config, error) {
	conf := defaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "load config %s: %s", path, err)
	}

	if meta.IsDefined("home") {
		conf.Home = strings.TrimSpace(raw.Home)
	}
	if meta.IsDefined("log_level") {
		conf.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("max_weight") {
		conf.MaxWeight = raw.MaxWeight
	}
	if meta.IsDefined("read_weight") || meta.IsDefined("write_weight") {
		c := migration.Configuration{ReadWeight: raw.ReadWeight, WriteWeight: raw.WriteWeight}
		if err := c.Validate(); err != nil {
			return nil, errors.Wrap(err, "database weight")
		}
		w := c.DBWeight()
		conf.Weight = &w
	}
	for i, e := range raw.Expect {
		exp, err := e.expectation()
		if err != nil {
			return nil, errors.Wrapf(err, "expectation %d", i)
		}
		conf.Expect = append(conf.Expect, exp)
	}
	return conf, nil
}

func (e expectConfig) expectation() (migration.Expectation, error) {
	if e.Unit != "" {
		return migration.ExpectVersion(e.Unit, migration.Version(e.Version)), nil
	}
	if e.Key == "" {
		return nil, errors.Wrap(errors.ErrEmpty, "either unit or key is required")
	}
	if e.Absent {
		if e.Value != "" {
			return nil, errors.Wrap(errors.ErrInput, "absent key cannot have a value")
		}
		return migration.ExpectAbsent([]byte(e.Key)), nil
	}
	value, err := hex.DecodeString(e.Value)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrInput, "value of %q: %s", e.Key, err)
	}
	return migration.ExpectValue([]byte(e.Key), value), nil
}
