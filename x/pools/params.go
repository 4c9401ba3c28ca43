package pools

import (
	amino "github.com/tendermint/go-amino"

	"github.com/iov-one/upgrade"
	"github.com/iov-one/upgrade/errors"
)

// Unit is the name under which the pools schema version is stamped.
const Unit = "pools"

// AVL is the number of base units in a single token.
const AVL uint64 = 1000000000000000000

// Parameter values set by the migration to version 1.
const (
	MinJoinBond           = 1 * AVL
	MinCreateBond         = 10 * AVL
	MaxPools              = 16
	MaxPoolMembersPerPool = 100
	MaxPoolMembers        = 1600
)

var (
	MinJoinBondKey           = []byte("pools:MinJoinBond")
	MinCreateBondKey         = []byte("pools:MinCreateBond")
	MaxPoolsKey              = []byte("pools:MaxPools")
	MaxPoolMembersPerPoolKey = []byte("pools:MaxPoolMembersPerPool")
	MaxPoolMembersKey        = []byte("pools:MaxPoolMembers")
)

var cdc = amino.NewCodec()

// param is a single stored parameter together with the value it must hold
// after the migration.
type param struct {
	name  string
	key   []byte
	value uint64
}

// params are written in this order.
var params = []param{
	{name: "MinJoinBond", key: MinJoinBondKey, value: MinJoinBond},
	{name: "MinCreateBond", key: MinCreateBondKey, value: MinCreateBond},
	{name: "MaxPools", key: MaxPoolsKey, value: MaxPools},
	{name: "MaxPoolMembersPerPool", key: MaxPoolMembersPerPoolKey, value: MaxPoolMembersPerPool},
	{name: "MaxPoolMembers", key: MaxPoolMembersKey, value: MaxPoolMembers},
}

// Param returns the value of a stored parameter. False is returned if the
// parameter is not set.
func Param(db upgrade.ReadOnlyKVStore, key []byte) (uint64, bool, error) {
	raw, err := db.Get(key)
	if err != nil {
		return 0, false, errors.Wrapf(err, "get %q", key)
	}
	if raw == nil {
		return 0, false, nil
	}
	var v uint64
	if err := cdc.UnmarshalBinaryBare(raw, &v); err != nil {
		return 0, false, errors.Wrapf(errors.ErrState, "cannot decode %q: %s", key, err)
	}
	return v, true, nil
}

// SetParam writes the value of a parameter.
func SetParam(db upgrade.SetDeleter, key []byte, value uint64) error {
	raw, err := cdc.MarshalBinaryBare(value)
	if err != nil {
		return errors.Wrapf(errors.ErrInput, "cannot encode %q: %s", key, err)
	}
	return db.Set(key, raw)
}
