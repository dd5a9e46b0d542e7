package util

import (
	"bytes"
	"unsafe"
)

func Load[T any](ptr unsafe.Pointer) T {
	return *(*T)(ptr)
}

func LoadAt[T any](ptr unsafe.Pointer, offset int) T {
	return *(*T)(PointerAdd(ptr, offset))
}

func Store[T any](val T, ptr unsafe.Pointer) {
	*(*T)(ptr) = val
}

func StoreAt[T any](val T, ptr unsafe.Pointer, offset int) {
	*(*T)(PointerAdd(ptr, offset)) = val
}

func Memset(ptr unsafe.Pointer, val byte, size int) {
	if size <= 0 {
		return
	}
	dst := PointerToSlice[byte](ptr, size)
	for i := range dst {
		dst[i] = val
	}
}

func Fill[T any](data []T, count int, val T) {
	for i := 0; i < count; i++ {
		data[i] = val
	}
}

// ToSlice reinterprets a byte buffer as a slice of T with element size pSize.
func ToSlice[T any](data []byte, pSize int) []T {
	if len(data) == 0 || pSize == 0 {
		return nil
	}
	slen := len(data) / pSize
	return unsafe.Slice((*T)(unsafe.Pointer(unsafe.SliceData(data))), slen)
}

func BytesSliceToPointer(data []byte) unsafe.Pointer {
	return unsafe.Pointer(unsafe.SliceData(data))
}

func PointerAdd(base unsafe.Pointer, offset int) unsafe.Pointer {
	return unsafe.Add(base, offset)
}

func PointerToSlice[T any](base unsafe.Pointer, len int) []T {
	return unsafe.Slice((*T)(base), len)
}

func PointerCopy(dst, src unsafe.Pointer, len int) {
	if len <= 0 {
		return
	}
	copy(PointerToSlice[byte](dst, len), PointerToSlice[byte](src, len))
}

func PointerCopyFrom(dst unsafe.Pointer, src []byte) {
	if len(src) == 0 {
		return
	}
	copy(PointerToSlice[byte](dst, len(src)), src)
}

func PointerMemcmp(lAddr, rAddr unsafe.Pointer, len int) int {
	if len <= 0 {
		return 0
	}
	return bytes.Compare(
		PointerToSlice[byte](lAddr, len),
		PointerToSlice[byte](rAddr, len))
}

// InvertBits complements size bytes starting at base.
func InvertBits(base unsafe.Pointer, size int) {
	if size <= 0 {
		return
	}
	data := PointerToSlice[byte](base, size)
	for i := range data {
		data[i] = ^data[i]
	}
}
