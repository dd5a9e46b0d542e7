// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package storage

import (
	"fmt"
	"sync/atomic"
	"unsafe"

	"go.uber.org/zap"

	"github.com/daviszhen/rowagg/pkg/util"
)

//#include <stdlib.h>
import "C"

type Allocator struct {
}

func NewAllocator() *Allocator {
	return &Allocator{}
}

func (alloc *Allocator) AllocateData(sz uint64) unsafe.Pointer {
	ptr := C.malloc(C.size_t(sz))
	if ptr == nil {
		panic(fmt.Sprintf("allocate %d bytes failed.", sz))
	}
	return ptr
}

func (alloc *Allocator) FreeData(ptr unsafe.Pointer, sz uint64) {
	C.free(ptr)
}

func (alloc *Allocator) ReallocateData(ptr unsafe.Pointer, oldSz, sz uint64) unsafe.Pointer {
	ptr2 := C.realloc(ptr, C.size_t(sz))
	if ptr2 == nil {
		panic(fmt.Sprintf("realloc %d bytes failed.", sz))
	}
	return ptr2
}

// BufferManager hands out C memory in blocks and enforces a memory
// limit. A limit <= 0 disables the check.
type BufferManager struct {
	_bufferAlloc *Allocator
	_tempId      atomic.Int64
	_memoryLimit int64
	_used        atomic.Int64
}

func NewBufferManager(memoryLimit int64) *BufferManager {
	ret := &BufferManager{
		_bufferAlloc: NewAllocator(),
		_memoryLimit: memoryLimit,
	}
	ret._tempId.Store(int64(FIRST_TEMP_BLOCK))
	return ret
}

func (mgr *BufferManager) MemoryLimit() int64 {
	return mgr._memoryLimit
}

func (mgr *BufferManager) UsedMemory() int64 {
	return mgr._used.Load()
}

func (mgr *BufferManager) reserve(sz int64) error {
	if sz > 0 {
		if err := util.InjectFault(util.FaultScopeStorage, FaultReserve); err != nil {
			return fmt.Errorf("reserve %d bytes: %w", sz, err)
		}
	}
	for {
		used := mgr._used.Load()
		if mgr._memoryLimit > 0 && sz > 0 && used+sz > mgr._memoryLimit {
			return fmt.Errorf("reserve %d bytes with %d of %d in use: %w",
				sz, used, mgr._memoryLimit, ErrOutOfMemory)
		}
		if mgr._used.CompareAndSwap(used, used+sz) {
			return nil
		}
	}
}

func (mgr *BufferManager) bufferType(sz uint64) FileBufferType {
	if sz < BLOCK_SIZE {
		return TINY_BUFFER
	}
	return MANAGED_BUFFER
}

// RegisterMemory allocates a buffer of at least sz bytes.
func (mgr *BufferManager) RegisterMemory(
	sz uint64,
	canDestroy bool,
) (*BlockHandle, error) {
	typ := mgr.bufferType(sz)
	_, allocSz := calculateMemory(typ, sz)
	err := mgr.reserve(int64(allocSz))
	if err != nil {
		return nil, err
	}
	buffer := NewFileBuffer(mgr._bufferAlloc, typ, sz)
	id := mgr._tempId.Add(1)
	return NewBlockHandle(mgr, BlockID(id), buffer, canDestroy), nil
}

// Allocate registers a new buffer and pins it. The block handle is
// stored into block when it is not nil.
func (mgr *BufferManager) Allocate(
	sz uint64,
	canDestroy bool,
	block **BlockHandle,
) (*BufferHandle, error) {
	var local *BlockHandle
	if block == nil {
		block = &local
	}
	var err error
	*block, err = mgr.RegisterMemory(sz, canDestroy)
	if err != nil {
		return nil, err
	}
	return mgr.Pin(*block), nil
}

// ReAllocate resizes the buffer of a pinned block. The data moves.
func (mgr *BufferManager) ReAllocate(
	handle *BlockHandle,
	sz uint64,
) error {
	handle.Lock()
	defer handle.Unlock()
	util.AssertFunc(handle._state == LOADED)
	_, allocSz := calculateMemory(handle._buffer._typ, sz)
	delta := int64(allocSz) - int64(handle._buffer.AllocSize())
	if delta == 0 {
		return nil
	}
	err := mgr.reserve(delta)
	if err != nil {
		return err
	}
	handle._buffer.Resize(sz)
	util.Debug("reallocate block",
		zap.Int64("id", int64(handle._blockId)),
		zap.Uint64("size", sz))
	return nil
}

func (mgr *BufferManager) Pin(handle *BlockHandle) *BufferHandle {
	handle.Lock()
	defer handle.Unlock()
	handle._readers.Add(1)
	return handle.load()
}

func (mgr *BufferManager) Unpin(handle *BlockHandle) {
	handle.Lock()
	defer handle.Unlock()
	if handle._state != LOADED {
		return
	}
	util.AssertFunc(handle._readers.Load() > 0)
	handle._readers.Add(-1)
}

// Destroy frees the buffer of handle regardless of pins.
func (mgr *BufferManager) Destroy(handle *BlockHandle) {
	handle.Lock()
	defer handle.Unlock()
	sz := handle.close()
	handle._readers.Store(0)
	mgr._used.Add(-int64(sz))
}

type FileBufferType int

const (
	MANAGED_BUFFER FileBufferType = 2
	TINY_BUFFER    FileBufferType = 3
)

type FileBuffer struct {
	_bufferAlloc    *Allocator
	_typ            FileBufferType
	_buffer         unsafe.Pointer
	_size           uint64
	_internalBuffer unsafe.Pointer
	_internalSize   uint64
}

func NewFileBuffer(
	alloc *Allocator,
	bufferType FileBufferType,
	sz uint64) *FileBuffer {
	ret := &FileBuffer{
		_bufferAlloc: alloc,
		_typ:         bufferType,
	}
	ret.Init()
	if sz > 0 {
		ret.Resize(sz)
	}
	return ret
}

func (fbuf *FileBuffer) Init() {
	fbuf._buffer = nil
	fbuf._internalBuffer = nil
	fbuf._internalSize = 0
	fbuf._size = 0
}

func (fbuf *FileBuffer) Close() {
	if fbuf == nil {
		return
	}
	if fbuf._internalBuffer != nil {
		fbuf._bufferAlloc.FreeData(fbuf._internalBuffer, fbuf._internalSize)
	}
	fbuf.Init()
}

func calculateMemory(typ FileBufferType, sz uint64) (headerSz uint64, allocSz uint64) {
	if typ == TINY_BUFFER {
		return 0, max(sz, 1)
	} else {
		return BLOCK_HEADER_SIZE,
			util.AlignValue(BLOCK_HEADER_SIZE+sz, SECTOR_SIZE)
	}
}

func (fbuf *FileBuffer) CalculateMemory(sz uint64) (headerSz uint64, allocSz uint64) {
	return calculateMemory(fbuf._typ, sz)
}

func (fbuf *FileBuffer) Resize(nsz uint64) {
	headerSz, allocSz := fbuf.CalculateMemory(nsz)
	fbuf.ReallocBuffer(allocSz)
	fbuf._buffer = util.PointerAdd(fbuf._internalBuffer, int(headerSz))
	fbuf._size = fbuf._internalSize - headerSz
}

func (fbuf *FileBuffer) ReallocBuffer(nSz uint64) {
	var ptr unsafe.Pointer
	if fbuf._internalBuffer != nil {
		ptr = fbuf._bufferAlloc.ReallocateData(fbuf._internalBuffer, fbuf._internalSize, nSz)
	} else {
		ptr = fbuf._bufferAlloc.AllocateData(nSz)
	}
	fbuf._internalBuffer = ptr
	fbuf._internalSize = nSz
	fbuf._size = 0
	fbuf._buffer = nil
}

func (fbuf *FileBuffer) AllocSize() uint64 {
	return fbuf._internalSize
}

func (fbuf *FileBuffer) Size() uint64 {
	return fbuf._size
}

func (fbuf *FileBuffer) Clear() {
	if fbuf._internalBuffer != nil {
		util.Memset(fbuf._internalBuffer, 0, int(fbuf._internalSize))
	}
}

type BufferHandle struct {
	_handle *BlockHandle
	_node   *FileBuffer
}

func (handle *BufferHandle) FileBuffer() *FileBuffer {
	return handle._node
}

func (handle *BufferHandle) BlockHandle() *BlockHandle {
	return handle._handle
}

func (handle *BufferHandle) Ptr() unsafe.Pointer {
	return handle._node._buffer
}

// Close releases the pin.
func (handle *BufferHandle) Close() {
	if handle._handle == nil || handle._node == nil {
		return
	}
	handle._handle._bufferMgr.Unpin(handle._handle)
	handle._handle = nil
	handle._node = nil
}
