/*
Package migration implements versioned, in-place upgrades of the data kept in
a key-value store.

Every unit (an extension package owning a part of the store) has a schema
version stamped in the store under the "_sv:" key prefix followed by the unit
name. A missing stamp means version zero.


Declaring steps.

A step moves exactly one unit from version N to version N+1. Multi version
upgrades are declared as several steps. Each step must be idempotent, because
a failed run is retried from the last stamped version. For example:

    var Migrations = migration.MustNewSet(
        migration.NoModification("bounties", 0),
        &migration.Definition{
            Unit:    "pools",
            From:    0,
            Name:    "set parameters",
            Migrate: setParameters,
        },
    )


Composition.

Sets nest. The application builds a single set from all units in a fixed
order that is part of the reviewed source code. That order is the order in
which units are migrated. Use Set.Describe to print the flat composition.


Running.

Runner.Run upgrades every unit to the newest known version and returns the
total cost of the applied steps. Budgeting that cost is up to the caller. The
stamp of a unit is written once, after all its steps succeeded.

Harness wraps the same runner for dry runs. All checks are fatal there and the
store is never modified.
*/
package migration
