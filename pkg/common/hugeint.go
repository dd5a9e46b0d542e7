package common

import (
	"math"
	"math/big"
)

type Hugeint struct {
	Lower uint64
	Upper int64
}

func HugeintFromInt64(v int64) Hugeint {
	ret := Hugeint{Lower: uint64(v)}
	if v < 0 {
		ret.Upper = -1
	}
	return ret
}

func (h Hugeint) Big() *big.Int {
	ret := big.NewInt(h.Upper)
	ret.Lsh(ret, 64)
	return ret.Add(ret, new(big.Int).SetUint64(h.Lower))
}

func (h Hugeint) String() string {
	return h.Big().String()
}

func (h *Hugeint) Equal(o *Hugeint) bool {
	return h.Lower == o.Lower && h.Upper == o.Upper
}

func (h *Hugeint) Less(o *Hugeint) bool {
	if h.Upper != o.Upper {
		return h.Upper < o.Upper
	}
	return h.Lower < o.Lower
}

func (h *Hugeint) Greater(o *Hugeint) bool {
	return o.Less(h)
}

// Float64 is lossy for magnitudes beyond 2^53.
func (h Hugeint) Float64() float64 {
	return float64(h.Upper)*math.Pow(2, 64) + float64(h.Lower)
}

// AddInplace returns false on overflow.
func AddInplace(lhs, rhs *Hugeint) bool {
	ladd := lhs.Lower + rhs.Lower
	overflow := int64(0)
	if ladd < lhs.Lower {
		overflow = 1
	}
	if rhs.Upper >= 0 {
		if lhs.Upper > (math.MaxInt64 - rhs.Upper - overflow) {
			return false
		}
		lhs.Upper = lhs.Upper + overflow + rhs.Upper
	} else {
		if lhs.Upper < (math.MinInt64 - rhs.Upper - overflow) {
			return false
		}
		lhs.Upper = lhs.Upper + (overflow + rhs.Upper)
	}
	lhs.Lower = ladd
	if lhs.Upper == math.MinInt64 && lhs.Lower == 0 {
		return false
	}
	return true
}
