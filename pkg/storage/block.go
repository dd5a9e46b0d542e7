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
	"sync"
	"sync/atomic"
)

type BlockState int

const (
	LOADED    BlockState = 1
	DESTROYED BlockState = 2
)

// BlockHandle owns one buffer of a BufferManager. Pins are counted; the
// buffer stays resident until Destroy.
type BlockHandle struct {
	sync.Mutex
	_bufferMgr  *BufferManager
	_state      BlockState
	_readers    atomic.Int32
	_blockId    BlockID
	_buffer     *FileBuffer
	_canDestroy bool
}

func NewBlockHandle(
	bufferMgr *BufferManager,
	blockId BlockID,
	buffer *FileBuffer,
	canDestroy bool,
) *BlockHandle {
	return &BlockHandle{
		_bufferMgr:  bufferMgr,
		_state:      LOADED,
		_blockId:    blockId,
		_buffer:     buffer,
		_canDestroy: canDestroy,
	}
}

func (handle *BlockHandle) BlockId() BlockID {
	return handle._blockId
}

func (handle *BlockHandle) Readers() int32 {
	return handle._readers.Load()
}

// Size is the usable size of the buffer.
func (handle *BlockHandle) Size() uint64 {
	handle.Lock()
	defer handle.Unlock()
	if handle._buffer == nil {
		return 0
	}
	return handle._buffer._size
}

func (handle *BlockHandle) Destroyed() bool {
	handle.Lock()
	defer handle.Unlock()
	return handle._state == DESTROYED
}

func (handle *BlockHandle) load() *BufferHandle {
	if handle._state != LOADED {
		panic(fmt.Sprintf("pin destroyed block %d", handle._blockId))
	}
	return &BufferHandle{
		_handle: handle,
		_node:   handle._buffer,
	}
}

func (handle *BlockHandle) close() uint64 {
	if handle._state == DESTROYED {
		return 0
	}
	sz := handle._buffer.AllocSize()
	handle._buffer.Close()
	handle._buffer = nil
	handle._state = DESTROYED
	return sz
}

func (handle *BlockHandle) CanDestroy() bool {
	return handle._canDestroy
}
