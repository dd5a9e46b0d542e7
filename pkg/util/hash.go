package util

import (
	"unsafe"
)

const (
	M    uint64 = 0xc6a4a7935bd1e995
	SEED uint64 = 0xe17a1465
	R    uint64 = 47
)

// HashBytes is murmur64a over len bytes starting at ptr.
func HashBytes(ptr unsafe.Pointer, len uint64) uint64 {
	h := SEED ^ (len * M)

	nBlocks := len / 8
	for i := uint64(0); i < nBlocks; i++ {
		k := Load[uint64](PointerAdd(ptr, int(i*8)))
		k *= M
		k ^= k >> R
		k *= M

		h ^= k
		h *= M
	}
	tail := PointerAdd(ptr, int(nBlocks*8))
	rest := len & 7
	if rest != 0 {
		for i := int(rest) - 1; i >= 0; i-- {
			h ^= uint64(Load[byte](PointerAdd(tail, i))) << (8 * uint(i))
		}
		h *= M
	}
	h ^= h >> R
	h *= M
	h ^= h >> R
	return h
}

func HashString(s []byte) uint64 {
	if len(s) == 0 {
		return HashBytes(nil, 0)
	}
	return HashBytes(BytesSliceToPointer(s), uint64(len(s)))
}
