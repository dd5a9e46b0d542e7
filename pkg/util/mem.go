package util

import (
	"unsafe"
)

//#include <stdlib.h>
import "C"

func CMalloc(sz int) unsafe.Pointer {
	return C.malloc(C.size_t(sz))
}

func CFree(ptr unsafe.Pointer) {
	C.free(ptr)
}

// CStringCopy returns a malloc'd copy of data. The caller owns the memory.
func CStringCopy(data []byte) unsafe.Pointer {
	if len(data) == 0 {
		return nil
	}
	ptr := CMalloc(len(data))
	PointerCopyFrom(ptr, data)
	return ptr
}

// BytesAllocator backs the Go side buffers of vectors and bitmaps.
type BytesAllocator interface {
	Alloc(sz int) []byte
	Free([]byte)
}

type DefaultAllocator struct {
}

func (alloc *DefaultAllocator) Alloc(sz int) []byte {
	return make([]byte, sz)
}

func (alloc *DefaultAllocator) Free(bytes []byte) {
}

var GAlloc BytesAllocator = &DefaultAllocator{}
