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

package compute

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/util"
)

// slotEqual compares an input value with the row slot at ptr.
type slotEqual[T any] func(val *T, ptr unsafe.Pointer) bool

func equalFixed[T comparable](val *T, ptr unsafe.Pointer) bool {
	return *val == util.Load[T](ptr)
}

func equalFloat[T float32 | float64](val *T, ptr unsafe.Pointer) bool {
	stored := util.Load[T](ptr)
	if math.IsNaN(float64(*val)) && math.IsNaN(float64(stored)) {
		return true
	}
	return *val == stored
}

func equalHugeint(val *common.Hugeint, ptr unsafe.Pointer) bool {
	stored := util.Load[common.Hugeint](ptr)
	return val.Equal(&stored)
}

func equalInterval(val *common.Interval, ptr unsafe.Pointer) bool {
	stored := util.Load[common.Interval](ptr)
	return val.Equal(&stored)
}

// equalHeapString compares with a string stored in native format in the
// string heap. The slot holds the heap pointer.
func equalHeapString(val *common.String, ptr unsafe.Pointer) bool {
	heap := util.Load[unsafe.Pointer](ptr)
	if heap == nil {
		return false
	}
	l := int(util.Load[uint32](heap))
	if l != val.Length() {
		return false
	}
	if l == 0 {
		return true
	}
	return util.PointerMemcmp(val.DataPtr(), util.PointerAdd(heap, common.Int32Size), l) == 0
}

// Match keeps in sel the rows whose group columns and hash equal the row
// at rows[sel[i]] and returns their count. The others are appended to
// noMatch. NULL equals NULL.
func Match(
	columns *chunk.Chunk,
	colData []*chunk.UnifiedFormat,
	layout *AggrRowLayout,
	rows *chunk.Vector,
	sel *chunk.SelectVector,
	cnt int,
	noMatch *chunk.SelectVector,
	noMatchCnt *int,
) int {
	util.AssertFunc(columns.ColumnCount() == layout.ColumnCount())
	types := layout.Types()
	for i := 0; i < layout.ColumnCount(); i++ {
		switch types[i].GetInternalType() {
		case common.STRUCT, common.LIST:
			matchNested(columns.Data[i], layout, rows, sel, &cnt, i, noMatch, noMatchCnt)
			continue
		}
		TemplatedMatchOp(
			colData[i],
			layout,
			rows,
			sel,
			&cnt,
			i,
			noMatch,
			noMatchCnt,
		)
	}
	return cnt
}

func TemplatedMatchOp(
	col *chunk.UnifiedFormat,
	layout *AggrRowLayout,
	rows *chunk.Vector,
	sel *chunk.SelectVector,
	cnt *int,
	colNo int,
	noMatch *chunk.SelectVector,
	noMatchCnt *int,
) {
	if *cnt == 0 {
		return
	}
	colOffset := layout._offsets[colNo]
	typ := layout.Types()[colNo]
	switch typ.GetInternalType() {
	case common.BOOL:
		TemplatedMatchType[bool](col, rows, sel, cnt, colOffset, colNo, noMatch, noMatchCnt, equalFixed[bool])
	case common.INT8:
		TemplatedMatchType[int8](col, rows, sel, cnt, colOffset, colNo, noMatch, noMatchCnt, equalFixed[int8])
	case common.INT16:
		TemplatedMatchType[int16](col, rows, sel, cnt, colOffset, colNo, noMatch, noMatchCnt, equalFixed[int16])
	case common.INT32:
		TemplatedMatchType[int32](col, rows, sel, cnt, colOffset, colNo, noMatch, noMatchCnt, equalFixed[int32])
	case common.INT64:
		TemplatedMatchType[int64](col, rows, sel, cnt, colOffset, colNo, noMatch, noMatchCnt, equalFixed[int64])
	case common.UINT8:
		TemplatedMatchType[uint8](col, rows, sel, cnt, colOffset, colNo, noMatch, noMatchCnt, equalFixed[uint8])
	case common.UINT16:
		TemplatedMatchType[uint16](col, rows, sel, cnt, colOffset, colNo, noMatch, noMatchCnt, equalFixed[uint16])
	case common.UINT32:
		TemplatedMatchType[uint32](col, rows, sel, cnt, colOffset, colNo, noMatch, noMatchCnt, equalFixed[uint32])
	case common.UINT64:
		TemplatedMatchType[uint64](col, rows, sel, cnt, colOffset, colNo, noMatch, noMatchCnt, equalFixed[uint64])
	case common.FLOAT:
		TemplatedMatchType[float32](col, rows, sel, cnt, colOffset, colNo, noMatch, noMatchCnt, equalFloat[float32])
	case common.DOUBLE:
		TemplatedMatchType[float64](col, rows, sel, cnt, colOffset, colNo, noMatch, noMatchCnt, equalFloat[float64])
	case common.INT128:
		TemplatedMatchType[common.Hugeint](col, rows, sel, cnt, colOffset, colNo, noMatch, noMatchCnt, equalHugeint)
	case common.INTERVAL:
		TemplatedMatchType[common.Interval](col, rows, sel, cnt, colOffset, colNo, noMatch, noMatchCnt, equalInterval)
	case common.VARCHAR:
		TemplatedMatchType[common.String](col, rows, sel, cnt, colOffset, colNo, noMatch, noMatchCnt, equalHeapString)
	default:
		panic(fmt.Sprintf("usp match type %v", typ))
	}
}

func TemplatedMatchType[T any](
	col *chunk.UnifiedFormat,
	rows *chunk.Vector,
	sel *chunk.SelectVector,
	cnt *int,
	colOffset int,
	colNo int,
	noMatch *chunk.SelectVector,
	noMatchCnt *int,
	equal slotEqual[T],
) {
	entryIdx, idxInEntry := util.GetEntryIndex(uint64(colNo))
	dataSlice := chunk.GetSliceInPhyFormatUnifiedFormat[T](col)
	ptrs := chunk.GetSliceInPhyFormatFlat[unsafe.Pointer](rows)
	matchCnt := 0
	for i := 0; i < *cnt; i++ {
		idx := sel.GetIndex(i)
		e := util.Load[uint8](util.PointerAdd(ptrs[idx], int(entryIdx)))
		isNull := !util.RowIsValidInEntry(e, idxInEntry)
		colIdx := col.Sel.GetIndex(idx)
		var matched bool
		if !col.Mask.RowIsValid(uint64(colIdx)) {
			matched = isNull
		} else {
			matched = !isNull && equal(&dataSlice[colIdx], util.PointerAdd(ptrs[idx], colOffset))
		}
		if matched {
			sel.SetIndex(matchCnt, idx)
			matchCnt++
		} else {
			noMatch.SetIndex(*noMatchCnt, idx)
			*noMatchCnt++
		}
	}
	*cnt = matchCnt
}

// matchNested compares a STRUCT or LIST column by value with the rows.
// The stored values are decoded from the string heap first.
func matchNested(
	col *chunk.Vector,
	layout *AggrRowLayout,
	rows *chunk.Vector,
	sel *chunk.SelectVector,
	cnt *int,
	colNo int,
	noMatch *chunk.SelectVector,
	noMatchCnt *int,
) {
	if *cnt == 0 {
		return
	}
	n := *cnt
	colOffset := layout._offsets[colNo]
	ptrs := chunk.GetSliceInPhyFormatFlat[unsafe.Pointer](rows)
	rowLocs := make([]unsafe.Pointer, n)
	heapLocs := make([]unsafe.Pointer, n)
	for i := 0; i < n; i++ {
		rowLocs[i] = ptrs[sel.GetIndex(i)]
		heapLocs[i] = util.Load[unsafe.Pointer](util.PointerAdd(rowLocs[i], colOffset))
	}
	stored := chunk.NewFlatVector(col.Typ(), n)
	DeserializeIntoVector(stored, n, colNo, heapLocs, rowLocs)

	matchCnt := 0
	for i := 0; i < n; i++ {
		idx := sel.GetIndex(i)
		if col.GetValue(idx).Equal(stored.GetValue(i)) {
			sel.SetIndex(matchCnt, idx)
			matchCnt++
		} else {
			noMatch.SetIndex(*noMatchCnt, idx)
			*noMatchCnt++
		}
	}
	*cnt = matchCnt
}
