package compute

import (
	"fmt"
	"unsafe"

	"go.uber.org/zap"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/storage"
	"github.com/daviszhen/rowagg/pkg/util"
)

const (
	LOAD_FACTOR = 1.5
	// InitialCapacity is the directory size of a new table unless
	// configured otherwise.
	InitialCapacity = 4096
	minCapacity     = 16
)

// GroupedAggrHashTable maps group keys to rows holding the group columns,
// the hash and the aggregate states. The directory holds salted pointers
// to the rows; rows never move once created.
//
// A table has one writer at a time. Combine, Append and Partition need
// exclusive access to both tables.
type GroupedAggrHashTable struct {
	_layout       *AggrRowLayout
	_payloadTypes []common.LType
	_bufMgr       *storage.BufferManager

	_dataCollection *RowDataCollection
	_stringHeap     *RowDataCollection

	_capacity     int
	_bitmask      uint64
	_entriesBlock *storage.BlockHandle
	_entriesHdl   *storage.BufferHandle
	_entries      unsafe.Pointer

	_finalized bool
}

func NewGroupedAggrHashTable(
	groupTypes []common.LType,
	aggrObjs []*AggrObject,
	initCap int,
	bufMgr *storage.BufferManager,
) (*GroupedAggrHashTable, error) {
	ret := new(GroupedAggrHashTable)
	ret._bufMgr = bufMgr
	ret._layout = NewAggrRowLayout(groupTypes, aggrObjs)
	ret._payloadTypes = PayloadTypes(aggrObjs)

	rowWidth := ret._layout._rowWidth
	ret._dataCollection = NewRowDataCollection(
		bufMgr,
		max(1, int(storage.BLOCK_SIZE)/rowWidth),
		rowWidth,
		true)
	ret._stringHeap = NewRowDataCollection(
		bufMgr,
		int(storage.BLOCK_SIZE),
		1,
		true)

	if initCap <= 0 {
		initCap = InitialCapacity
	}
	initCap = int(util.NextPowerOfTwo(uint64(max(initCap, minCapacity))))
	err := ret.Resize(initCap)
	if err != nil {
		ret.Close()
		return nil, err
	}
	return ret, nil
}

func (aht *GroupedAggrHashTable) Layout() *AggrRowLayout {
	return aht._layout
}

func (aht *GroupedAggrHashTable) PayloadTypes() []common.LType {
	return aht._payloadTypes
}

func (aht *GroupedAggrHashTable) Count() int {
	return aht._dataCollection.Count()
}

func (aht *GroupedAggrHashTable) Capacity() int {
	return aht._capacity
}

func (aht *GroupedAggrHashTable) ResizeThreshold() int {
	return int(float64(aht._capacity) / LOAD_FACTOR)
}

func (aht *GroupedAggrHashTable) Finalized() bool {
	return aht._finalized
}

func (aht *GroupedAggrHashTable) entries() []aggrHTEntry {
	return util.PointerToSlice[aggrHTEntry](aht._entries, aht._capacity)
}

// AddChunk hashes the group columns and adds the chunk. filter lists the
// aggregates to update in ascending order; nil updates all of them.
// It returns the number of new groups.
func (aht *GroupedAggrHashTable) AddChunk(
	state *AggrHTAppendState,
	groups *chunk.Chunk,
	payload *chunk.Chunk,
	filter []int,
) (int, error) {
	hashes := chunk.NewFlatVector(common.HashType(), util.DefaultVectorSize)
	groups.Hash(hashes)
	return aht.AddChunkWithHashes(
		state,
		groups,
		hashes,
		payload,
		filter,
	)
}

func (aht *GroupedAggrHashTable) AddChunkWithHashes(
	state *AggrHTAppendState,
	groups *chunk.Chunk,
	groupHashes *chunk.Vector,
	payload *chunk.Chunk,
	filter []int,
) (int, error) {
	util.AssertFunc(!aht._finalized)
	if groups.Card() == 0 {
		return 0, nil
	}

	newGroupCount, err := aht.FindOrCreateGroups(
		state,
		groups,
		groupHashes,
		state._addresses,
		state._newGroups,
	)
	if err != nil {
		return 0, err
	}
	if len(aht._layout._aggregates) == 0 {
		return newGroupCount, nil
	}
	card := groups.Card()
	util.AssertFunc(payload == nil || payload.Card() == card)

	states := NewPointerVector(chunk.GetSliceInPhyFormatFlat[unsafe.Pointer](state._addresses)[:card])
	AddInPlace(states, int64(aht._layout._aggrOffset), card)

	filterIdx := 0
	payloadIdx := 0
	for i, aggr := range aht._layout._aggregates {
		skip := filter != nil &&
			(filterIdx >= len(filter) || i < filter[filterIdx])
		if !skip {
			if filter != nil {
				util.AssertFunc(i == filter[filterIdx])
				filterIdx++
			}
			UpdateStates(
				aggr,
				states,
				payload,
				payloadIdx,
				card,
			)
		}
		payloadIdx += aggr._childCount
		if i+1 < len(aht._layout._aggregates) {
			AddInPlace(states,
				int64(aht._layout._aggrOffsets[i+1]-aht._layout._aggrOffsets[i]),
				card)
		}
	}
	return newGroupCount, nil
}

// FindOrCreateGroups stores the row address of every group of groups in
// addresses, creating rows for the groups not in the table yet. The rows
// created are selected by newGroupsOut. It returns their count. On error
// no group of groups has been added.
func (aht *GroupedAggrHashTable) FindOrCreateGroups(
	state *AggrHTAppendState,
	groups *chunk.Chunk,
	groupHashes *chunk.Vector,
	addresses *chunk.Vector,
	newGroupsOut *chunk.SelectVector,
) (int, error) {
	util.AssertFunc(!aht._finalized)
	card := groups.Card()
	if card == 0 {
		return 0, nil
	}

	for aht.Count()+card > aht.ResizeThreshold() {
		err := aht.Resize(aht._capacity * 2)
		if err != nil {
			return 0, err
		}
	}
	return aht.probeGroups(state, groups, groupHashes, addresses, newGroupsOut, true)
}

// probeGroups finds the rows of groups. Missing groups get new rows with
// create and are a bug without it.
func (aht *GroupedAggrHashTable) probeGroups(
	state *AggrHTAppendState,
	groups *chunk.Chunk,
	groupHashes *chunk.Vector,
	addresses *chunk.Vector,
	newGroupsOut *chunk.SelectVector,
	create bool,
) (int, error) {
	util.AssertFunc(groups.ColumnCount()+1 == aht._layout.ColumnCount())
	util.AssertFunc(groupHashes.Typ().Id == common.HashType().Id)
	util.AssertFunc(addresses.Typ().Id == common.PointerType().Id)
	util.AssertFunc(groups.Card() <= util.DefaultVectorSize)

	card := groups.Card()
	groupHashes.Flatten(card)
	groupHashesSlice := chunk.GetSliceInPhyFormatFlat[uint64](groupHashes)

	addresses.Flatten(card)
	addressesSlice := chunk.GetSliceInPhyFormatFlat[unsafe.Pointer](addresses)

	htOffsetsPtr := chunk.GetSliceInPhyFormatFlat[uint64](state._htOffsets)
	hashSaltsPtr := chunk.GetSliceInPhyFormatFlat[uint64](state._hashSalts)
	for i := 0; i < card; i++ {
		ele := groupHashesSlice[i]
		htOffsetsPtr[i] = ele & aht._bitmask
		hashSaltsPtr[i] = ExtractSalt(ele)
	}

	if state._groupChunk.ColumnCount() == 0 {
		state._groupChunk.Init(aht._layout.Types(), util.DefaultVectorSize)
	}
	util.AssertFunc(state._groupChunk.ColumnCount() == aht._layout.ColumnCount())
	for i := 0; i < groups.ColumnCount(); i++ {
		state._groupChunk.Data[i].Reference(groups.Data[i])
	}
	state._groupChunk.Data[groups.ColumnCount()].Reference(groupHashes)
	state._groupChunk.SetCard(card)
	state._groupData = state._groupChunk.ToUnifiedFormat()

	//slots claimed by this call and the extent of the rows before it
	var claimed []uint64
	dataMark := aht._dataCollection.Mark()
	heapMark := aht._stringHeap.Mark()

	var selVec *chunk.SelectVector
	newGroupCount := 0
	remainingEntries := card
	iterations := 0
	for remainingEntries > 0 {
		iterations++
		util.AssertFuncf(iterations <= aht._capacity,
			"probing did not terminate after %d passes", iterations)

		newEntryCount := 0
		needCompareCount := 0
		noMatchCount := 0

		htEntrySlice := aht.entries()
		for i := 0; i < remainingEntries; i++ {
			idx := selVec.GetIndex(i)
			htEntry := &htEntrySlice[htOffsetsPtr[idx]]
			if !htEntry.IsOccupied() {
				//empty cell
				util.AssertFuncf(create, "group of row %d is not in the table", idx)
				htEntry.SetSalt(hashSaltsPtr[idx])
				claimed = append(claimed, htOffsetsPtr[idx])

				state._emptyVector.SetIndex(newEntryCount, idx)
				newEntryCount++

				newGroupsOut.SetIndex(newGroupCount, idx)
				newGroupCount++
			} else if htEntry.GetSalt() == hashSaltsPtr[idx] {
				//salt equal. need compare again
				state._groupCompareVector.SetIndex(needCompareCount, idx)
				needCompareCount++
			} else {
				state._noMatchVector.SetIndex(noMatchCount, idx)
				noMatchCount++
			}
		}

		if newEntryCount > 0 {
			rowLocs, err := aht.createRows(state, state._emptyVector, newEntryCount)
			if err != nil {
				for _, slot := range claimed {
					htEntrySlice[slot].clean()
				}
				aht._stringHeap.Rollback(heapMark)
				aht._dataCollection.Rollback(dataMark)
				return 0, err
			}
			for j := 0; j < newEntryCount; j++ {
				idx := state._emptyVector.GetIndex(j)
				htEntrySlice[htOffsetsPtr[idx]].SetPointer(rowLocs[j])
				addressesSlice[idx] = rowLocs[j]
			}
		}

		if needCompareCount > 0 {
			for j := 0; j < needCompareCount; j++ {
				idx := state._groupCompareVector.GetIndex(j)
				htEntry := &htEntrySlice[htOffsetsPtr[idx]]
				addressesSlice[idx] = htEntry.GetPointer()
			}

			Match(
				state._groupChunk,
				state._groupData,
				aht._layout,
				addresses,
				state._groupCompareVector,
				needCompareCount,
				state._noMatchVector,
				&noMatchCount,
			)
		}

		for i := 0; i < noMatchCount; i++ {
			idx := state._noMatchVector.GetIndex(i)
			htOffsetsPtr[idx]++
			if htOffsetsPtr[idx] >= uint64(aht._capacity) {
				htOffsetsPtr[idx] = 0
			}
		}

		selVec = state._noMatchVector
		remainingEntries = noMatchCount
	}

	return newGroupCount, nil
}

// createRows appends one row per group chunk row selected by sel, writes
// the group columns and the hash and initializes the states. On error the
// caller rolls back both collections.
func (aht *GroupedAggrHashTable) createRows(
	state *AggrHTAppendState,
	sel *chunk.SelectVector,
	cnt int,
) ([]unsafe.Pointer, error) {
	rowLocs := make([]unsafe.Pointer, cnt)
	_, err := aht._dataCollection.Build(cnt, rowLocs, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("aggregate rows: %w", err)
	}
	layout := aht._layout
	for i := 0; i < cnt; i++ {
		util.Memset(rowLocs[i], 0xFF, layout._validityWidth)
	}

	groupChunk := state._groupChunk
	keyLocs := make([]unsafe.Pointer, cnt)
	for colIdx, vec := range groupChunk.Data {
		offset := layout._offsets[colIdx]
		if heapGroup(vec.Typ()) {
			entrySizes := make([]int, cnt)
			ComputeEntrySizes(vec, entrySizes, groupChunk.Card(), cnt, sel, 0)
			_, err = aht._stringHeap.Build(cnt, keyLocs, entrySizes, nil)
			if err != nil {
				return nil, fmt.Errorf("aggregate string heap: %w", err)
			}
			for i := 0; i < cnt; i++ {
				var heapPtr unsafe.Pointer
				if entrySizes[i] != 0 {
					heapPtr = keyLocs[i]
				}
				util.Store[unsafe.Pointer](heapPtr, util.PointerAdd(rowLocs[i], offset))
			}
		} else {
			for i := 0; i < cnt; i++ {
				keyLocs[i] = util.PointerAdd(rowLocs[i], offset)
			}
		}
		SerializeVector(vec, groupChunk.Card(), sel, cnt, colIdx, keyLocs, rowLocs, 0)
	}

	InitStates(layout, NewPointerVector(rowLocs), nil, cnt)
	return rowLocs, nil
}

// FetchAggregates finalizes the states of groups, which must all exist,
// into result.
func (aht *GroupedAggrHashTable) FetchAggregates(groups, result *chunk.Chunk) error {
	util.AssertFunc(!aht._finalized)
	util.AssertFunc(result.ColumnCount() == len(aht._layout._aggregates))
	result.SetCard(groups.Card())
	if groups.Card() == 0 {
		return nil
	}

	appendState := NewAggrHTAppendState()
	hashes := chunk.NewFlatVector(common.HashType(), util.DefaultVectorSize)
	groups.Hash(hashes)

	_, err := aht.probeGroups(
		appendState,
		groups,
		hashes,
		appendState._addresses,
		appendState._newGroups,
		false)
	if err != nil {
		return err
	}

	FinalizeStates(aht._layout, appendState._addresses, result, 0)
	return nil
}

// scanRows collects up to len(rowLocs) row addresses from the scan
// position. The blocks stay pinned by the scan state.
func (aht *GroupedAggrHashTable) scanRows(state *AggrHTScanState, rowLocs []unsafe.Pointer) int {
	if state._done {
		return 0
	}
	blocks := aht._dataCollection.Blocks()
	rowWidth := aht._layout._rowWidth
	n := 0
	for n < len(rowLocs) && state._blockIdx < len(blocks) {
		block := blocks[state._blockIdx]
		if len(state._handles) <= state._blockIdx {
			state._handles = append(state._handles, aht._bufMgr.Pin(block._block))
		}
		base := util.Back(state._handles).Ptr()
		for state._rowIdx < block._count && n < len(rowLocs) {
			rowLocs[n] = util.PointerAdd(base, state._rowIdx*rowWidth)
			n++
			state._rowIdx++
		}
		if state._rowIdx >= block._count {
			state._blockIdx++
			state._rowIdx = 0
		}
	}
	state._scanned += n
	return n
}

// gatherGroups reads the group columns and the hash of rows. VARCHAR
// values are copied out of the string heap with copyStrings, otherwise
// they reference it. Nested values are always copied.
func (aht *GroupedAggrHashTable) gatherGroups(
	rowLocs []unsafe.Pointer,
	groups []*chunk.Vector,
	hashes *chunk.Vector,
	copyStrings bool,
) {
	layout := aht._layout
	n := len(rowLocs)
	keyLocs := make([]unsafe.Pointer, n)
	for colIdx, vec := range groups {
		offset := layout._offsets[colIdx]
		vec.SetPhyFormat(chunk.PF_FLAT)
		if heapGroup(vec.Typ()) {
			for i := 0; i < n; i++ {
				keyLocs[i] = util.Load[unsafe.Pointer](util.PointerAdd(rowLocs[i], offset))
			}
			if copyStrings || vec.Typ().GetInternalType() != common.VARCHAR {
				DeserializeIntoVector(vec, n, colIdx, keyLocs, rowLocs)
			} else {
				referenceHeapStrings(vec, n, colIdx, keyLocs, rowLocs)
			}
			continue
		}
		for i := 0; i < n; i++ {
			keyLocs[i] = util.PointerAdd(rowLocs[i], offset)
		}
		DeserializeIntoVector(vec, n, colIdx, keyLocs, rowLocs)
	}
	if hashes != nil {
		for i := 0; i < n; i++ {
			keyLocs[i] = util.PointerAdd(rowLocs[i], layout._hashOffset)
		}
		DeserializeIntoVector(hashes, n, layout.GroupCount(), keyLocs, nil)
	}
}

func referenceHeapStrings(
	vec *chunk.Vector,
	n int,
	colIdx int,
	heapLocs []unsafe.Pointer,
	rowLocs []unsafe.Pointer,
) {
	strs := chunk.GetSliceInPhyFormatFlat[common.String](vec)
	for i := 0; i < n; i++ {
		valid := isValidAt(rowLocs[i], colIdx)
		vec.Mask.Set(uint64(i), valid)
		if !valid {
			strs[i] = common.String{}
			continue
		}
		strs[i] = common.String{
			Len:  int(util.Load[uint32](heapLocs[i])),
			Data: util.PointerAdd(heapLocs[i], common.Int32Size),
		}
	}
}

// Scan writes the next groups and their finalized aggregates into result:
// the group columns first, then one column per aggregate. It returns the
// number of rows written, 0 at the end. Scan also works after Finalize.
func (aht *GroupedAggrHashTable) Scan(state *AggrHTScanState, result *chunk.Chunk) int {
	groupCnt := aht._layout.GroupCount()
	util.AssertFunc(result.ColumnCount() == groupCnt+len(aht._layout._aggregates))
	rowLocs := make([]unsafe.Pointer, min(util.DefaultVectorSize, result.Cap()))
	n := aht.scanRows(state, rowLocs)
	if n == 0 {
		if !state._done {
			util.AssertFuncf(state._scanned == aht.Count(),
				"scan visited %d rows of %d groups", state._scanned, aht.Count())
		}
		state._done = true
		state.Close()
		result.SetCard(0)
		return 0
	}
	rowLocs = rowLocs[:n]
	aht.gatherGroups(rowLocs, result.Data[:groupCnt], nil, true)
	result.SetCard(n)
	FinalizeStates(aht._layout, NewPointerVector(rowLocs), result, groupCnt)
	return n
}

// forEachRowBatch visits the rows of the table in batches of at most
// DefaultVectorSize rows. fn must not add rows to the table.
func (aht *GroupedAggrHashTable) forEachRowBatch(fn func(rowLocs []unsafe.Pointer) error) error {
	state := NewAggrHTScanState()
	defer state.Close()
	rowLocs := make([]unsafe.Pointer, util.DefaultVectorSize)
	for {
		n := aht.scanRows(state, rowLocs)
		if n == 0 {
			util.AssertFuncf(state._scanned == aht.Count(),
				"visited %d rows of %d groups", state._scanned, aht.Count())
			return nil
		}
		err := fn(rowLocs[:n])
		if err != nil {
			return err
		}
	}
}

// Combine merges the groups of other into the table. Groups new to the
// table start from an initialized state.
func (aht *GroupedAggrHashTable) Combine(other *GroupedAggrHashTable) error {
	util.AssertFunc(!aht._finalized)
	util.AssertFunc(aht._layout.Compatible(other._layout))
	if other.Count() == 0 {
		return nil
	}

	state := NewAggrHTAppendState()
	groupChunk := chunk.NewChunk(aht._layout._groupTypes, util.DefaultVectorSize)
	hashes := chunk.NewFlatVector(common.HashType(), util.DefaultVectorSize)
	return other.forEachRowBatch(func(rowLocs []unsafe.Pointer) error {
		return aht.combineRows(state, other, rowLocs, groupChunk, hashes)
	})
}

func (aht *GroupedAggrHashTable) combineRows(
	state *AggrHTAppendState,
	other *GroupedAggrHashTable,
	rowLocs []unsafe.Pointer,
	groupChunk *chunk.Chunk,
	hashes *chunk.Vector,
) error {
	n := len(rowLocs)
	other.gatherGroups(rowLocs, groupChunk.Data, hashes, false)
	groupChunk.SetCard(n)
	_, err := aht.FindOrCreateGroups(
		state,
		groupChunk,
		hashes,
		state._addresses,
		state._newGroups)
	if err != nil {
		return err
	}
	CombineRowStates(aht._layout, NewPointerVector(rowLocs), state._addresses, n)
	return nil
}

// Append copies the rows of other into the table without looking for
// equal groups. The group sets of both tables must be disjoint.
func (aht *GroupedAggrHashTable) Append(other *GroupedAggrHashTable) error {
	util.AssertFunc(!aht._finalized)
	util.AssertFunc(aht._layout.Compatible(other._layout))
	if other.Count() == 0 {
		return nil
	}
	for aht.Count()+other.Count() > aht.ResizeThreshold() {
		err := aht.Resize(aht._capacity * 2)
		if err != nil {
			return err
		}
	}

	rowWidth := aht._layout._rowWidth
	return other.forEachRowBatch(func(srcLocs []unsafe.Pointer) error {
		n := len(srcLocs)
		dataMark := aht._dataCollection.Mark()
		heapMark := aht._stringHeap.Mark()
		rowLocs := make([]unsafe.Pointer, n)
		_, err := aht._dataCollection.Build(n, rowLocs, nil, nil)
		if err != nil {
			return fmt.Errorf("aggregate rows: %w", err)
		}
		for i := 0; i < n; i++ {
			util.PointerCopy(rowLocs[i], srcLocs[i], rowWidth)
		}
		err = aht.copyHeapGroups(srcLocs, rowLocs)
		if err != nil {
			aht._stringHeap.Rollback(heapMark)
			aht._dataCollection.Rollback(dataMark)
			return err
		}
		for i := 0; i < n; i++ {
			aht.insertRow(rowLocs[i])
		}
		return nil
	})
}

// copyHeapGroups moves the heap values of the group columns of srcLocs
// into the heap of the table and points rowLocs at the copies.
func (aht *GroupedAggrHashTable) copyHeapGroups(srcLocs, rowLocs []unsafe.Pointer) error {
	layout := aht._layout
	n := len(srcLocs)
	entrySizes := make([]int, n)
	heapLocs := make([]unsafe.Pointer, n)
	var nested *chunk.Vector
	for colIdx, typ := range layout._groupTypes {
		if !heapGroup(typ) {
			continue
		}
		offset := layout._offsets[colIdx]
		for i := 0; i < n; i++ {
			heapLocs[i] = util.Load[unsafe.Pointer](util.PointerAdd(srcLocs[i], offset))
		}
		if typ.GetInternalType() != common.VARCHAR {
			//decode and encode again
			nested = chunk.NewFlatVector(typ, n)
			DeserializeIntoVector(nested, n, colIdx, heapLocs, srcLocs)
			clear(entrySizes)
			ComputeEntrySizes(nested, entrySizes, n, n, nil, 0)
		} else {
			for i := 0; i < n; i++ {
				entrySizes[i] = 0
				if heapLocs[i] != nil {
					entrySizes[i] = common.Int32Size + int(util.Load[uint32](heapLocs[i]))
				}
			}
		}
		dstLocs := make([]unsafe.Pointer, n)
		_, err := aht._stringHeap.Build(n, dstLocs, entrySizes, nil)
		if err != nil {
			return fmt.Errorf("aggregate string heap: %w", err)
		}
		for i := 0; i < n; i++ {
			var dst unsafe.Pointer
			if entrySizes[i] != 0 {
				dst = dstLocs[i]
				if nested == nil {
					util.PointerCopy(dst, heapLocs[i], entrySizes[i])
				}
			}
			util.Store[unsafe.Pointer](dst, util.PointerAdd(rowLocs[i], offset))
		}
		if nested != nil {
			SerializeVector(nested, n, nil, n, colIdx, dstLocs, nil, 0)
			nested = nil
		}
	}
	return nil
}

// insertRow puts row into the first empty directory slot from its hash.
func (aht *GroupedAggrHashTable) insertRow(row unsafe.Pointer) {
	hashesArr := aht.entries()
	hash := util.Load[uint64](util.PointerAdd(row, aht._layout._hashOffset))
	entIdx := hash & aht._bitmask
	for hashesArr[entIdx].IsOccupied() {
		entIdx++
		if entIdx >= uint64(aht._capacity) {
			entIdx = 0
		}
	}
	htEnt := &hashesArr[entIdx]
	htEnt.SetSalt(ExtractSalt(hash))
	htEnt.SetPointer(row)
}

// PartitionIndex is the partition of hash among 2^radixBits partitions.
func PartitionIndex(hash uint64, radixBits int) int {
	if radixBits == 0 {
		return 0
	}
	return int(hash >> (64 - radixBits))
}

// Partition combines every group into targets[PartitionIndex(hash)].
// With sinkDone the targets are finalized afterwards.
func (aht *GroupedAggrHashTable) Partition(
	targets []*GroupedAggrHashTable,
	radixBits int,
	sinkDone bool,
) error {
	util.AssertFunc(radixBits >= 0 && radixBits <= 16)
	util.AssertFunc(len(targets) == 1<<radixBits)

	states := make([]*AggrHTAppendState, len(targets))
	for i := range states {
		states[i] = NewAggrHTAppendState()
	}
	groupChunk := chunk.NewChunk(aht._layout._groupTypes, util.DefaultVectorSize)
	hashes := chunk.NewFlatVector(common.HashType(), util.DefaultVectorSize)
	parts := make([][]unsafe.Pointer, len(targets))
	err := aht.forEachRowBatch(func(rowLocs []unsafe.Pointer) error {
		for i := range parts {
			parts[i] = parts[i][:0]
		}
		for _, row := range rowLocs {
			hash := util.Load[uint64](util.PointerAdd(row, aht._layout._hashOffset))
			p := PartitionIndex(hash, radixBits)
			parts[p] = append(parts[p], row)
		}
		for p, part := range parts {
			if len(part) == 0 {
				continue
			}
			err := targets[p].combineRows(states[p], aht, part, groupChunk, hashes)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	if util.DebugEnabled() {
		counts := make([]int, len(targets))
		for i, target := range targets {
			counts[i] = target.Count()
		}
		util.Debug("aggregate partition",
			zap.Int("groups", aht.Count()),
			zap.Int("radixBits", radixBits),
			zap.Ints("counts", counts))
	}
	if sinkDone {
		for _, target := range targets {
			target.Finalize()
		}
	}
	return nil
}

// Resize rebuilds the directory with size slots. Rows stay where they
// are.
func (aht *GroupedAggrHashTable) Resize(size int) error {
	util.AssertFunc(!aht._finalized)
	util.AssertFunc(util.IsPowerOfTwo(uint64(size)))
	util.AssertFunc(size >= aht._capacity)
	util.AssertFunc(size > aht.Count())

	var block *storage.BlockHandle
	byteSize := size * aggrEntrySize
	hdl, err := aht._bufMgr.Allocate(uint64(byteSize), true, &block)
	if err != nil {
		return fmt.Errorf("aggregate directory of %d entries: %w", size, err)
	}
	util.Memset(hdl.Ptr(), 0, byteSize)
	aht.releaseDirectory()
	aht._entriesBlock = block
	aht._entriesHdl = hdl
	aht._entries = hdl.Ptr()
	aht._capacity = size
	aht._bitmask = uint64(size - 1)

	if aht.Count() != 0 {
		err = aht.forEachRowBatch(func(rowLocs []unsafe.Pointer) error {
			for _, row := range rowLocs {
				aht.insertRow(row)
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	if util.DebugEnabled() {
		util.Debug("aggregate resize",
			zap.Int("capacity", size),
			zap.Int("groups", aht.Count()))
	}
	return nil
}

func (aht *GroupedAggrHashTable) releaseDirectory() {
	if aht._entriesBlock == nil {
		return
	}
	aht._entriesHdl.Close()
	aht._bufMgr.Destroy(aht._entriesBlock)
	aht._entriesBlock = nil
	aht._entriesHdl = nil
	aht._entries = nil
}

// Verify checks that every group has exactly one directory entry whose
// salt matches the stored hash.
func (aht *GroupedAggrHashTable) Verify() {
	util.AssertFunc(!aht._finalized)
	count := 0
	for _, ent := range aht.entries() {
		if !ent.IsOccupied() {
			continue
		}
		hash := util.Load[uint64](util.PointerAdd(ent.GetPointer(), aht._layout._hashOffset))
		util.AssertFuncf(ent.GetSalt() == ExtractSalt(hash),
			"salt %x does not match hash %x", ent.GetSalt(), hash)
		count++
	}
	util.AssertFuncf(count == aht.Count(),
		"%d directory entries for %d groups", count, aht.Count())
}

// Finalize ends the sink. The directory is freed and the row blocks are
// unpinned; only Scan is allowed afterwards.
func (aht *GroupedAggrHashTable) Finalize() {
	if aht._finalized {
		return
	}
	aht.releaseDirectory()
	aht._dataCollection.Unpin()
	aht._stringHeap.Unpin()
	aht._finalized = true
}

// Close frees all memory of the table.
func (aht *GroupedAggrHashTable) Close() {
	aht.Finalize()
	aht._dataCollection.Close()
	aht._stringHeap.Close()
}
