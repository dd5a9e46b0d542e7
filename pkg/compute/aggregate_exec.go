package compute

import (
	"unsafe"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/util"
)

// InitStates runs the init function of every aggregate on the rows
// addresses[sel[i]].
func InitStates(
	layout *AggrRowLayout,
	addresses *chunk.Vector,
	sel *chunk.SelectVector,
	cnt int,
) {
	if cnt == 0 {
		return
	}

	pointers := chunk.GetSliceInPhyFormatFlat[unsafe.Pointer](addresses)
	for aggrIdx, aggr := range layout._aggregates {
		offset := layout._aggrOffsets[aggrIdx]
		for i := 0; i < cnt; i++ {
			rowIdx := sel.GetIndex(i)
			row := pointers[rowIdx]
			aggr._func._init(util.PointerAdd(row, offset))
		}
	}
}

// UpdateStates feeds the argument columns of aggr, starting at argIdx in
// payload, into the states at addresses.
func UpdateStates(
	aggr *AggrObject,
	addresses *chunk.Vector,
	payload *chunk.Chunk,
	argIdx int,
	cnt int,
) {
	inputData := &AggrInputData{}
	var input []*chunk.Vector
	if aggr._childCount != 0 {
		input = payload.Data[argIdx : argIdx+aggr._childCount]
	}
	aggr._func._update(
		input,
		inputData,
		aggr._childCount,
		addresses,
		cnt,
	)
}

// CombineRowStates merges the states of the source rows into the target
// rows pairwise. Both vectors point at row starts and are left unchanged.
func CombineRowStates(
	layout *AggrRowLayout,
	sources *chunk.Vector,
	targets *chunk.Vector,
	cnt int,
) {
	if cnt == 0 {
		return
	}
	src := NewPointerVector(chunk.GetSliceInPhyFormatFlat[unsafe.Pointer](sources)[:cnt])
	dst := NewPointerVector(chunk.GetSliceInPhyFormatFlat[unsafe.Pointer](targets)[:cnt])
	AddInPlace(src, int64(layout._aggrOffset), cnt)
	AddInPlace(dst, int64(layout._aggrOffset), cnt)
	for i, aggr := range layout._aggregates {
		aggr._func._combine(src, dst, NewAggrInputData(), cnt)
		if i+1 < len(layout._aggregates) {
			delta := int64(layout._aggrOffsets[i+1] - layout._aggrOffsets[i])
			AddInPlace(src, delta, cnt)
			AddInPlace(dst, delta, cnt)
		}
	}
}

// FinalizeStates writes the results of every aggregate of the rows at
// addresses into result columns aggrIdx, aggrIdx+1, ...
func FinalizeStates(
	layout *AggrRowLayout,
	addresses *chunk.Vector,
	result *chunk.Chunk,
	aggrIdx int,
) {
	cnt := result.Card()
	if cnt == 0 {
		return
	}
	states := NewPointerVector(chunk.GetSliceInPhyFormatFlat[unsafe.Pointer](addresses)[:cnt])
	AddInPlace(states, int64(layout._aggrOffset), cnt)
	for i, aggr := range layout._aggregates {
		target := result.Data[aggrIdx+i]
		util.AssertFunc(target.Typ().Equal(aggr._retType))
		aggr._func._finalize(states, NewAggrInputData(), target, cnt, 0)
		if i+1 < len(layout._aggregates) {
			AddInPlace(states, int64(layout._aggrOffsets[i+1]-layout._aggrOffsets[i]), cnt)
		}
	}
}
