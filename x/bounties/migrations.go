package bounties

import (
	"github.com/iov-one/upgrade/migration"
)

// Unit is the name under which the bounties schema version is stamped.
const Unit = "bounties"

// Version is the schema version of the bounties data layout.
const Version migration.Version = 4

// Migrations returns all schema migrations of the bounties unit.
func Migrations() *migration.Set {
	steps := make([]migration.Provider, 0, Version)
	for v := migration.Version(0); v < Version; v++ {
		steps = append(steps, migration.NoModification(Unit, v))
	}
	return migration.MustNewSet(steps...)
}
