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
	"unsafe"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/util"
)

// AddInPlace left += delta
func AddInPlace(input *chunk.Vector, right int64, cnt int) {
	util.AssertFunc(input.Typ().Id == common.LTID_POINTER)
	if right == 0 {
		return
	}
	switch input.PhyFormat() {
	case chunk.PF_CONST:
		util.AssertFunc(!chunk.IsNullInPhyFormatConst(input))
		data := chunk.GetSliceInPhyFormatConst[unsafe.Pointer](input)
		data[0] = util.PointerAdd(data[0], int(right))
	default:
		util.AssertFunc(input.PhyFormat().IsFlat())
		data := chunk.GetSliceInPhyFormatFlat[unsafe.Pointer](input)
		for i := 0; i < cnt; i++ {
			data[i] = util.PointerAdd(data[i], int(right))
		}
	}
}

// NewPointerVector is a flat pointer vector holding ptrs.
func NewPointerVector(ptrs []unsafe.Pointer) *chunk.Vector {
	vec := chunk.NewFlatVector(common.PointerType(), max(util.DefaultVectorSize, len(ptrs)))
	copy(chunk.GetSliceInPhyFormatFlat[unsafe.Pointer](vec), ptrs)
	return vec
}

// GatherPointers copies the pointers of addresses selected by sel.
func GatherPointers(addresses *chunk.Vector, sel *chunk.SelectVector, cnt int) []unsafe.Pointer {
	src := chunk.GetSliceInPhyFormatFlat[unsafe.Pointer](addresses)
	ret := make([]unsafe.Pointer, cnt)
	for i := 0; i < cnt; i++ {
		ret[i] = src[sel.GetIndex(i)]
	}
	return ret
}
