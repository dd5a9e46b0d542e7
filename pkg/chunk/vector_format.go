package chunk

import (
	"github.com/daviszhen/rowagg/pkg/util"
)

// Flatten turns a constant or dictionary vector into a flat one holding
// the first cnt rows.
func (vec *Vector) Flatten(cnt int) {
	if vec.PhyFormat().IsFlat() {
		return
	}
	flat := NewFlatVector(vec._Typ, max(util.DefaultVectorSize, cnt))
	if child := ListChildCollectionOrNil(vec); child != nil {
		flat.ListChild = NewChunkCollection(child.Types(), child.SegmentCapacity())
	}
	Copy(vec, flat, nil, cnt, 0, 0)
	vec.Reinterpret(flat)
}

// ListChildCollectionOrNil is ListChildCollection for vectors that may not
// be lists.
func ListChildCollectionOrNil(vec *Vector) *ChunkCollection {
	if vec.PhyFormat().IsDict() {
		return ListChildCollectionOrNil(GetChildInPhyFormatDict(vec))
	}
	return vec.ListChild
}

func (vec *Vector) ToUnifiedFormat(count int, output *UnifiedFormat) {
	output.PTypSize = vec._Typ.GetInternalType().Size()
	switch vec.PhyFormat() {
	case PF_DICT:
		sel := GetSelVectorInPhyFormatDict(vec)
		child := GetChildInPhyFormatDict(vec)
		if !child.PhyFormat().IsFlat() {
			maxIdx := 0
			for i := 0; i < count; i++ {
				maxIdx = max(maxIdx, sel.GetIndex(i))
			}
			child.Flatten(maxIdx + 1)
		}
		output.Sel = sel
		output.Data = GetDataInPhyFormatFlat(child)
		output.Mask = GetMaskInPhyFormatFlat(child)
	case PF_CONST:
		output.Sel = ZeroSelectVectorInPhyFormatConst(count, &output.InterSel)
		output.Data = GetDataInPhyFormatConst(vec)
		output.Mask = GetMaskInPhyFormatConst(vec)
	case PF_FLAT:
		output.Sel = IncrSelectVectorInPhyFormatFlat()
		output.Data = GetDataInPhyFormatFlat(vec)
		output.Mask = GetMaskInPhyFormatFlat(vec)
	}
}

func (vec *Vector) SliceOnSelf(sel *SelectVector, count int) {
	if vec.PhyFormat().IsConst() {
	} else if vec.PhyFormat().IsDict() {
		curSel := GetSelVectorInPhyFormatDict(vec)
		buf := curSel.Slice(sel, count)
		vec.Buf = NewDictBuffer(buf)
	} else {
		child := &Vector{
			_Typ: vec.Typ(),
		}
		child.Reference(vec)
		childRef := NewChildBuffer(child)
		dictBuf := NewDictBuffer2(sel)
		vec._PhyFormat = PF_DICT
		vec.Buf = dictBuf
		vec.Aux = childRef
	}
}

func (vec *Vector) Slice(other *Vector, sel *SelectVector, count int) {
	vec.Reference(other)
	vec.SliceOnSelf(sel, count)
}
