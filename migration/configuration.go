package migration

import (
	"github.com/iov-one/upgrade/errors"
	"github.com/iov-one/upgrade/gconf"
)

// configPkg is the gconf package name of the migration configuration.
const configPkg = "migration"

// Configuration is the migration configuration kept in the store. It
// declares the cost of database operations used to compute step weights.
type Configuration struct {
	ReadWeight  uint64
	WriteWeight uint64
}

// NewConfiguration returns a configuration declaring given database weights.
func NewConfiguration(w DBWeight) Configuration {
	return Configuration{
		ReadWeight:  uint64(w.Read),
		WriteWeight: uint64(w.Write),
	}
}

func (c *Configuration) Validate() error {
	var errs error
	if c.ReadWeight == 0 {
		errs = errors.AppendField(errs, "ReadWeight", errors.ErrEmpty)
	}
	if c.WriteWeight == 0 {
		errs = errors.AppendField(errs, "WriteWeight", errors.ErrEmpty)
	}
	return errs
}

func (c *Configuration) Marshal() ([]byte, error) {
	return cdc.MarshalBinaryBare(c)
}

func (c *Configuration) Unmarshal(raw []byte) error {
	if err := cdc.UnmarshalBinaryBare(raw, c); err != nil {
		return errors.Wrap(errors.ErrInput, err.Error())
	}
	return nil
}

// DBWeight returns the declared database weights.
func (c Configuration) DBWeight() DBWeight {
	return DBWeight{
		Read:  Weight(c.ReadWeight),
		Write: Weight(c.WriteWeight),
	}
}

// SaveConfiguration validates and writes the configuration to the store.
func SaveConfiguration(db gconf.Store, c Configuration) error {
	return gconf.Save(db, configPkg, &c)
}

// LoadDBWeight returns database weights stored in the configuration.
// RocksDBWeight is returned if no configuration was saved.
func LoadDBWeight(db gconf.ReadStore) (DBWeight, error) {
	var conf Configuration
	_, err := gconf.LoadOrDefault(db, configPkg, &conf, func() {
		conf = NewConfiguration(RocksDBWeight)
	})
	if err != nil {
		return DBWeight{}, errors.Wrap(err, "load configuration")
	}
	return conf.DBWeight(), nil
}
