package compute

import (
	"fmt"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/storage"
	"github.com/daviszhen/rowagg/pkg/util"
)

// RowDataBlock is one buffer of a RowDataCollection. For fixed size
// entries capacity counts entries, for variable size entries it counts
// bytes.
type RowDataBlock struct {
	_block      *storage.BlockHandle
	_capacity   int
	_entrySize  int
	_count      int
	_byteOffset int
	//collection pin of a keepPinned collection
	_pinned *storage.BufferHandle
}

func (block *RowDataBlock) Count() int {
	return block._count
}

func (block *RowDataBlock) Block() *storage.BlockHandle {
	return block._block
}

type BlockAppendEntry struct {
	_basePtr unsafe.Pointer
	_count   int
}

// RowDataCollection appends rows into buffer manager blocks. Rows never
// move once written. With entrySize 1 the collection stores variable
// size entries and blockCapacity is in bytes.
type RowDataCollection struct {
	_lock          sync.Mutex
	_bufMgr        *storage.BufferManager
	_count         int
	_blockCapacity int
	_entrySize     int
	_blocks        []*RowDataBlock
	_keepPinned    bool
	_pinnedBlocks  []*storage.BufferHandle
}

// RowDataMark is the extent of a RowDataCollection at one point. Rollback
// returns the collection to it.
type RowDataMark struct {
	_count        int
	_blockCnt     int
	_pinnedCnt    int
	_lastCount    int
	_lastOffset   int
	_lastCapacity int
	_lastPinned   bool
}

func NewRowDataCollection(
	bufMgr *storage.BufferManager,
	bcap int,
	entSize int,
	keepPinned bool,
) *RowDataCollection {
	util.AssertFunc(bcap > 0 && entSize > 0)
	return &RowDataCollection{
		_bufMgr:        bufMgr,
		_blockCapacity: bcap,
		_entrySize:     entSize,
		_keepPinned:    keepPinned,
	}
}

func (cdc *RowDataCollection) Count() int {
	cdc._lock.Lock()
	defer cdc._lock.Unlock()
	return cdc._count
}

func (cdc *RowDataCollection) Blocks() []*RowDataBlock {
	cdc._lock.Lock()
	defer cdc._lock.Unlock()
	return cdc._blocks
}

func (cdc *RowDataCollection) EntrySize() int {
	return cdc._entrySize
}

// SizeInBytes is the allocated size of all blocks.
func (cdc *RowDataCollection) SizeInBytes() int {
	cdc._lock.Lock()
	defer cdc._lock.Unlock()
	sz := 0
	for _, block := range cdc._blocks {
		sz += int(block._block.Size())
	}
	return sz
}

// Build reserves addedCnt entries and stores their addresses in keyLocs.
// Fixed size entries land in keyLocs[sel[i]]; variable size entries of
// entrySizes[i] bytes land in keyLocs[i]. The blocks written to stay
// pinned: either by the collection (keepPinned) or by the returned
// handles, which the caller must close.
func (cdc *RowDataCollection) Build(
	addedCnt int,
	keyLocs []unsafe.Pointer,
	entrySizes []int,
	sel *chunk.SelectVector,
) ([]*storage.BufferHandle, error) {
	appendEntries := make([]BlockAppendEntry, 0)
	var handles []*storage.BufferHandle
	err := func() error {
		cdc._lock.Lock()
		defer cdc._lock.Unlock()
		mark := cdc.markLocked()
		err := cdc.build(addedCnt, entrySizes, &appendEntries, &handles)
		if err != nil {
			for _, handle := range handles {
				handle.Close()
			}
			handles = nil
			cdc.rollbackLocked(mark)
			return err
		}
		cdc._count += addedCnt
		if util.DebugEnabled() {
			util.Debug("row collection build",
				zap.Int("added", addedCnt),
				zap.Int("count", cdc._count),
				zap.Int("blocks", len(cdc._blocks)),
				util.GoID())
		}
		return nil
	}()
	if err != nil {
		return nil, err
	}

	//fill keyLocs
	aidx := 0
	for _, entry := range appendEntries {
		next := aidx + entry._count
		if entrySizes != nil {
			for ; aidx < next; aidx++ {
				keyLocs[aidx] = entry._basePtr
				entry._basePtr = util.PointerAdd(entry._basePtr, entrySizes[aidx])
			}
		} else {
			for ; aidx < next; aidx++ {
				idx := sel.GetIndex(aidx)
				keyLocs[idx] = entry._basePtr
				entry._basePtr = util.PointerAdd(entry._basePtr, cdc._entrySize)
			}
		}
	}
	return handles, nil
}

func (cdc *RowDataCollection) build(
	addedCnt int,
	entrySizes []int,
	appendEntries *[]BlockAppendEntry,
	handles *[]*storage.BufferHandle,
) error {
	remaining := addedCnt
	//to last block
	if len(cdc._blocks) != 0 {
		lastBlock := util.Back(cdc._blocks)
		if lastBlock._count < lastBlock._capacity {
			handle := cdc.pinBlock(lastBlock, handles)
			appendCnt, err := cdc.AppendToBlock(lastBlock, handle, appendEntries, remaining, entrySizes)
			if err != nil {
				return err
			}
			remaining -= appendCnt
		}
	}
	for remaining > 0 {
		newBlock, handle, err := cdc.CreateBlock()
		if err != nil {
			return err
		}
		cdc.keepHandle(newBlock, handle, handles)
		var offsetEntrySizes []int
		if entrySizes != nil {
			offsetEntrySizes = entrySizes[addedCnt-remaining:]
		}
		appendCnt, err := cdc.AppendToBlock(newBlock, handle, appendEntries, remaining, offsetEntrySizes)
		if err != nil {
			return err
		}
		util.AssertFunc(newBlock._count > 0)
		remaining -= appendCnt
	}
	return nil
}

// pinBlock returns a pin on block. A keepPinned collection pins each
// block once.
func (cdc *RowDataCollection) pinBlock(
	block *RowDataBlock,
	handles *[]*storage.BufferHandle,
) *storage.BufferHandle {
	if cdc._keepPinned && block._pinned != nil {
		return block._pinned
	}
	handle := cdc._bufMgr.Pin(block._block)
	cdc.keepHandle(block, handle, handles)
	return handle
}

func (cdc *RowDataCollection) keepHandle(
	block *RowDataBlock,
	handle *storage.BufferHandle,
	handles *[]*storage.BufferHandle,
) {
	if cdc._keepPinned {
		block._pinned = handle
		cdc._pinnedBlocks = append(cdc._pinnedBlocks, handle)
	} else {
		*handles = append(*handles, handle)
	}
}

// Mark records the current extent of the collection.
func (cdc *RowDataCollection) Mark() RowDataMark {
	cdc._lock.Lock()
	defer cdc._lock.Unlock()
	return cdc.markLocked()
}

func (cdc *RowDataCollection) markLocked() RowDataMark {
	mark := RowDataMark{
		_count:     cdc._count,
		_blockCnt:  len(cdc._blocks),
		_pinnedCnt: len(cdc._pinnedBlocks),
	}
	if len(cdc._blocks) != 0 {
		last := util.Back(cdc._blocks)
		mark._lastCount = last._count
		mark._lastOffset = last._byteOffset
		mark._lastCapacity = last._capacity
		mark._lastPinned = last._pinned != nil
	}
	return mark
}

// Rollback drops every entry added after mark. Blocks created since are
// freed and the addresses handed out for the dropped entries are invalid.
func (cdc *RowDataCollection) Rollback(mark RowDataMark) {
	cdc._lock.Lock()
	defer cdc._lock.Unlock()
	cdc.rollbackLocked(mark)
}

func (cdc *RowDataCollection) rollbackLocked(mark RowDataMark) {
	util.AssertFunc(mark._blockCnt <= len(cdc._blocks))
	if mark._pinnedCnt <= len(cdc._pinnedBlocks) {
		for _, handle := range cdc._pinnedBlocks[mark._pinnedCnt:] {
			handle.Close()
		}
		cdc._pinnedBlocks = cdc._pinnedBlocks[:mark._pinnedCnt]
	}
	for _, block := range cdc._blocks[mark._blockCnt:] {
		block._pinned = nil
		cdc._bufMgr.Destroy(block._block)
	}
	cdc._blocks = cdc._blocks[:mark._blockCnt]
	if mark._blockCnt != 0 {
		last := util.Back(cdc._blocks)
		last._count = mark._lastCount
		last._byteOffset = mark._lastOffset
		last._capacity = mark._lastCapacity
		if !mark._lastPinned {
			last._pinned = nil
		}
	}
	cdc._count = mark._count
}

// PinnedCount is the number of pins held by the collection.
func (cdc *RowDataCollection) PinnedCount() int {
	cdc._lock.Lock()
	defer cdc._lock.Unlock()
	return len(cdc._pinnedBlocks)
}

// AppendToBlock places as many of the remaining entries as fit into
// block. A variable size entry larger than a whole block gets the empty
// block reallocated to its size.
func (cdc *RowDataCollection) AppendToBlock(
	block *RowDataBlock,
	handle *storage.BufferHandle,
	appendEntries *[]BlockAppendEntry,
	remaining int,
	entrySizes []int,
) (int, error) {
	appendCnt := 0
	var dataPtr unsafe.Pointer
	if entrySizes != nil {
		util.AssertFunc(cdc._entrySize == 1)
		dataPtr = util.PointerAdd(handle.Ptr(), block._byteOffset)
		for i := 0; i < remaining; i++ {
			if block._byteOffset+entrySizes[i] > block._capacity {
				if block._count == 0 &&
					appendCnt == 0 &&
					entrySizes[i] > block._capacity {
					err := cdc._bufMgr.ReAllocate(block._block, uint64(entrySizes[i]))
					if err != nil {
						return 0, fmt.Errorf("row collection entry of %d bytes: %w", entrySizes[i], err)
					}
					block._capacity = entrySizes[i]
					dataPtr = handle.Ptr()
					appendCnt++
					block._byteOffset += entrySizes[i]
				}
				break
			}
			appendCnt++
			block._byteOffset += entrySizes[i]
		}
	} else {
		appendCnt = min(remaining, block._capacity-block._count)
		dataPtr = util.PointerAdd(handle.Ptr(), block._count*block._entrySize)
	}
	*appendEntries = append(*appendEntries, BlockAppendEntry{
		_basePtr: dataPtr,
		_count:   appendCnt,
	})
	block._count += appendCnt
	return appendCnt, nil
}

// CreateBlock allocates a new block and returns it pinned.
func (cdc *RowDataCollection) CreateBlock() (*RowDataBlock, *storage.BufferHandle, error) {
	nb := &RowDataBlock{
		_capacity:  cdc._blockCapacity,
		_entrySize: cdc._entrySize,
	}
	sz := max(storage.BLOCK_SIZE, uint64(cdc._blockCapacity*cdc._entrySize))
	handle, err := cdc._bufMgr.Allocate(sz, false, &nb._block)
	if err != nil {
		return nil, nil, fmt.Errorf("row collection block: %w", err)
	}
	cdc._blocks = append(cdc._blocks, nb)
	return nb, handle, nil
}

// Unpin releases the pins held by the collection.
func (cdc *RowDataCollection) Unpin() {
	cdc._lock.Lock()
	defer cdc._lock.Unlock()
	for _, handle := range cdc._pinnedBlocks {
		handle.Close()
	}
	cdc._pinnedBlocks = nil
	for _, block := range cdc._blocks {
		block._pinned = nil
	}
}

// Close frees every block.
func (cdc *RowDataCollection) Close() {
	cdc.Unpin()
	cdc._lock.Lock()
	defer cdc._lock.Unlock()
	for _, block := range cdc._blocks {
		cdc._bufMgr.Destroy(block._block)
	}
	cdc._blocks = nil
	cdc._count = 0
}
