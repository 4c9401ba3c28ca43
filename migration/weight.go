package migration

import (
	"math"
	"math/bits"
)

// Weight is an abstract cost of the work done by migration steps. The runner
// only sums it up. Comparing it with any budget is up to the caller.
type Weight uint64

// MaxWeight is the highest weight value. Additions never go beyond it.
const MaxWeight Weight = math.MaxUint64

// Add returns the sum of both weights, saturating at MaxWeight.
func (w Weight) Add(other Weight) Weight {
	sum, carry := bits.Add64(uint64(w), uint64(other), 0)
	if carry != 0 {
		return MaxWeight
	}
	return Weight(sum)
}

// Mul returns w multiplied by n, saturating at MaxWeight.
func (w Weight) Mul(n uint64) Weight {
	hi, lo := bits.Mul64(uint64(w), n)
	if hi != 0 {
		return MaxWeight
	}
	return Weight(lo)
}

// DBWeight declares the cost of a single database access.
type DBWeight struct {
	Read  Weight
	Write Weight
}

// RocksDBWeight is the default cost of a read and a write on a disk backed
// database.
var RocksDBWeight = DBWeight{
	Read:  25000000,
	Write: 100000000,
}

// Reads returns the cost of n reads.
func (d DBWeight) Reads(n uint64) Weight {
	return d.Read.Mul(n)
}

// Writes returns the cost of n writes.
func (d DBWeight) Writes(n uint64) Weight {
	return d.Write.Mul(n)
}

// ReadsWrites returns the cost of r reads and w writes.
func (d DBWeight) ReadsWrites(r, w uint64) Weight {
	return d.Reads(r).Add(d.Writes(w))
}
