package compute

import (
	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/storage"
	"github.com/daviszhen/rowagg/pkg/util"
)

// AggrHTScanState is the position of a scan over the rows of a
// GroupedAggrHashTable. The blocks visited stay pinned until the scan is
// exhausted or closed.
type AggrHTScanState struct {
	_blockIdx int
	_rowIdx   int
	_scanned  int
	_handles  []*storage.BufferHandle
	_done     bool
}

func NewAggrHTScanState() *AggrHTScanState {
	return &AggrHTScanState{}
}

func (state *AggrHTScanState) Scanned() int {
	return state._scanned
}

// Close releases the pins of the scan.
func (state *AggrHTScanState) Close() {
	for _, handle := range state._handles {
		handle.Close()
	}
	state._handles = nil
}

// AggrHTAppendState is the scratch space of FindOrCreateGroups. One
// state serves one caller at a time.
type AggrHTAppendState struct {
	_htOffsets          *chunk.Vector
	_hashSalts          *chunk.Vector
	_groupCompareVector *chunk.SelectVector
	_noMatchVector      *chunk.SelectVector
	_emptyVector        *chunk.SelectVector
	_newGroups          *chunk.SelectVector
	_addresses          *chunk.Vector
	//unified format of the group chunk
	_groupData []*chunk.UnifiedFormat
	//groups plus the hash column
	_groupChunk *chunk.Chunk
}

func NewAggrHTAppendState() *AggrHTAppendState {
	ret := new(AggrHTAppendState)
	ret._htOffsets = chunk.NewFlatVector(common.UbigintType(), util.DefaultVectorSize)
	ret._hashSalts = chunk.NewFlatVector(common.UbigintType(), util.DefaultVectorSize)
	ret._groupCompareVector = chunk.NewSelectVector(util.DefaultVectorSize)
	ret._noMatchVector = chunk.NewSelectVector(util.DefaultVectorSize)
	ret._emptyVector = chunk.NewSelectVector(util.DefaultVectorSize)
	ret._newGroups = chunk.NewSelectVector(util.DefaultVectorSize)
	ret._addresses = chunk.NewVector2(common.PointerType(), util.DefaultVectorSize)
	ret._groupChunk = &chunk.Chunk{}
	return ret
}

// Addresses holds the row address of every group of the last
// FindOrCreateGroups call.
func (state *AggrHTAppendState) Addresses() *chunk.Vector {
	return state._addresses
}

// NewGroups selects the groups created by the last FindOrCreateGroups
// call.
func (state *AggrHTAppendState) NewGroups() *chunk.SelectVector {
	return state._newGroups
}

type AggrInputData struct {
}

func NewAggrInputData() *AggrInputData {
	return &AggrInputData{}
}

type AggrFinalizeData struct {
	_result    *chunk.Vector
	_input     *AggrInputData
	_resultIdx int
}

func NewAggrFinalizeData(result *chunk.Vector, input *AggrInputData) *AggrFinalizeData {
	return &AggrFinalizeData{
		_result: result,
		_input:  input,
	}
}

func (data *AggrFinalizeData) ReturnNull() {
	switch data._result.PhyFormat() {
	case chunk.PF_FLAT:
		chunk.SetNullInPhyFormatFlat(data._result, uint64(data._resultIdx), true)
	case chunk.PF_CONST:
		chunk.SetNullInPhyFormatConst(data._result, true)
	default:
		panic("usp")
	}
}

// State is the per group state of the built-in aggregates. It lives in
// row memory, so T must not hold Go pointers.
type State[T any] struct {
	_isset bool
	_value T
	_count uint64
}

func (state *State[T]) Init() {
	var zero T
	state._isset = false
	state._value = zero
	state._count = 0
}

func (state *State[T]) SetIsset(b bool) {
	state._isset = b
}

func (state *State[T]) SetValue(val T) {
	state._value = val
}

func (state *State[T]) GetIsset() bool {
	return state._isset
}

func (state *State[T]) GetValue() T {
	return state._value
}

func (state *State[T]) GetCount() uint64 {
	return state._count
}
