package util

import (
	"math"
	"unsafe"
)

// BSWAP helpers assume a little-endian host.
func BSWAP16(x uint16) uint16 {
	return ((x & 0xff00) >> 8) | ((x & 0x00ff) << 8)
}

func BSWAP32(x uint32) uint32 {
	return ((x & 0xff000000) >> 24) | ((x & 0x00ff0000) >> 8) |
		((x & 0x0000ff00) << 8) | ((x & 0x000000ff) << 24)
}

func BSWAP64(x uint64) uint64 {
	return ((x & 0xff00000000000000) >> 56) | ((x & 0x00ff000000000000) >> 40) |
		((x & 0x0000ff0000000000) >> 24) | ((x & 0x000000ff00000000) >> 8) |
		((x & 0x00000000ff000000) << 8) | ((x & 0x0000000000ff0000) << 24) |
		((x & 0x000000000000ff00) << 40) | ((x & 0x00000000000000ff) << 56)

}

func FlipSign(b uint8) uint8 {
	return b ^ 128
}

// EncodeFloat maps a float32 onto a uint32 whose unsigned order is the
// numeric order. Both zeros share one code. Out of range values
// saturate to the extremes.
func EncodeFloat(x float32) uint32 {
	if x == 0 {
		return 1 << 31
	}
	if x > math.MaxFloat32 {
		return math.MaxUint32
	}
	if x < -math.MaxFloat32 {
		return 0
	}
	buff := math.Float32bits(x)
	if buff&(1<<31) == 0 {
		buff |= 1 << 31
	} else {
		buff = ^buff
	}
	return buff
}

// EncodeDouble is EncodeFloat for float64.
func EncodeDouble(x float64) uint64 {
	if x == 0 {
		return 1 << 63
	}
	if x > math.MaxFloat64 {
		return math.MaxUint64
	}
	if x < -math.MaxFloat64 {
		return 0
	}
	buff := math.Float64bits(x)
	if buff < 1<<63 {
		buff += 1 << 63
	} else {
		buff = ^buff
	}
	return buff
}

func EncodeInt8(ptr unsafe.Pointer, value int8) {
	Store[uint8](FlipSign(uint8(value)), ptr)
}

func EncodeInt16(ptr unsafe.Pointer, value int16) {
	Store[uint16](BSWAP16(uint16(value)), ptr)
	Store[uint8](FlipSign(Load[uint8](ptr)), ptr)
}

func EncodeInt32(ptr unsafe.Pointer, value int32) {
	Store[uint32](BSWAP32(uint32(value)), ptr)
	Store[uint8](FlipSign(Load[uint8](ptr)), ptr)
}

func EncodeInt64(ptr unsafe.Pointer, value int64) {
	Store[uint64](BSWAP64(uint64(value)), ptr)
	Store[uint8](FlipSign(Load[uint8](ptr)), ptr)
}

func EncodeUint16(ptr unsafe.Pointer, value uint16) {
	Store[uint16](BSWAP16(value), ptr)
}

func EncodeUint32(ptr unsafe.Pointer, value uint32) {
	Store[uint32](BSWAP32(value), ptr)
}

func EncodeUint64(ptr unsafe.Pointer, value uint64) {
	Store[uint64](BSWAP64(value), ptr)
}
