package migration

import (
	amino "github.com/tendermint/go-amino"
)

// cdc serializes snapshots and the package configuration.
var cdc = amino.NewCodec()
