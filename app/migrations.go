package app

import (
	"github.com/iov-one/upgrade/migration"
	"github.com/iov-one/upgrade/x/bounties"
	"github.com/iov-one/upgrade/x/pools"
	"github.com/iov-one/upgrade/x/scheduler"
)

// Migrations returns the set of all migrations known to this application.
// Upstream units come first, followed by the units declared locally.
func Migrations(w migration.DBWeight) *migration.Set {
	return migration.MustNewSet(
		upstream(w),
		local(w),
	)
}

func upstream(w migration.DBWeight) *migration.Set {
	return migration.MustNewSet(
		scheduler.Migrations(w),
		bounties.Migrations(),
	)
}

func local(w migration.DBWeight) *migration.Set {
	return pools.Migrations(w)
}
