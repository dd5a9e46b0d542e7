package chunk

import (
	"fmt"

	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/util"
)

func NewVector(lTyp common.LType, initData bool, cap int) *Vector {
	vec := &Vector{
		_PhyFormat: PF_FLAT,
		_Typ:       lTyp,
		Mask:       &util.Bitmap{},
	}
	if initData {
		vec.Init(cap)
	}
	return vec
}

func NewVector2(lTyp common.LType, cap int) *Vector {
	return NewVector(lTyp, true, cap)
}

func NewFlatVector(lTyp common.LType, cap int) *Vector {
	return NewVector2(lTyp, cap)
}

// NewListVector creates a flat list vector whose element collection uses
// segments of segCap rows.
func NewListVector(lTyp common.LType, cap int, segCap int) *Vector {
	vec := NewVector(lTyp, false, cap)
	vec.initWithSegment(cap, segCap)
	return vec
}

func NewConstVector(lTyp common.LType) *Vector {
	vec := NewVector2(lTyp, util.DefaultVectorSize)
	vec.SetPhyFormat(PF_CONST)
	return vec
}

func NewVarcharFlatVector(v []string, sz int) *Vector {
	vec := NewFlatVector(common.VarcharType(), sz)
	data := GetSliceInPhyFormatFlat[common.String](vec)
	for i := 0; i < len(v); i++ {
		data[i] = common.NewString(v[i])
	}
	return vec
}

// NewFlatVectorFromValues builds a flat vector holding vals.
func NewFlatVectorFromValues(typ common.LType, vals []*Value) *Vector {
	vec := NewFlatVector(typ, max(len(vals), util.DefaultVectorSize))
	for i, val := range vals {
		vec.SetValue(i, val)
	}
	return vec
}

// Copy copies rows [srcOffset, srcCount) of srcP, as seen through selP,
// into dstP starting at dstOffset. dstP must be flat and large enough.
// Strings are duplicated; list elements are appended to the element
// collection of dstP.
func Copy(
	srcP *Vector,
	dstP *Vector,
	selP *SelectVector,
	srcCount int,
	srcOffset int,
	dstOffset int,
) {
	util.AssertFunc(srcOffset <= srcCount)
	util.AssertFunc(srcP.Typ().Id == dstP.Typ().Id)
	copyCount := srcCount - srcOffset
	finished := false

	ownedSel := &SelectVector{}
	sel := selP
	if sel == nil {
		sel = IncrSelectVectorInPhyFormatFlat()
	}
	src := srcP

	for !finished {
		switch src.PhyFormat() {
		case PF_DICT:
			child := GetChildInPhyFormatDict(src)
			dictSel := GetSelVectorInPhyFormatDict(src)
			newBuff := dictSel.Slice(sel, srcCount)
			ownedSel = &SelectVector{}
			ownedSel.Init3(newBuff)
			sel = ownedSel
			src = child
		case PF_CONST:
			sel = ZeroSelectVectorInPhyFormatConst(srcCount, ownedSel)
			finished = true
		case PF_FLAT:
			finished = true
		default:
			panic("usp")
		}
	}

	if copyCount == 0 {
		return
	}

	if copyCount == 1 && dstP.PhyFormat().IsDict() {
		dstOffset = 0
		dstP.SetPhyFormat(PF_FLAT)
	}

	util.AssertFunc(dstP.PhyFormat().IsFlat())

	//copy bitmap
	dstBitmap := GetMaskInPhyFormatFlat(dstP)
	if src.PhyFormat().IsConst() {
		valid := !IsNullInPhyFormatConst(src)
		for i := 0; i < copyCount; i++ {
			dstBitmap.Set(uint64(dstOffset+i), valid)
		}
	} else {
		srcBitmap := src.Mask
		if !srcBitmap.AllValid() {
			for i := 0; i < copyCount; i++ {
				idx := sel.GetIndex(srcOffset + i)
				if srcBitmap.RowIsValid(uint64(idx)) {
					dstBitmap.SetValid(uint64(dstOffset + i))
				} else {
					dstBitmap.SetInvalid(uint64(dstOffset + i))
				}
			}
		} else if !dstBitmap.AllValid() {
			for i := 0; i < copyCount; i++ {
				dstBitmap.SetValid(uint64(dstOffset + i))
			}
		}
	}

	//copy data
	pTyp := src.Typ().GetInternalType()
	switch pTyp {
	case common.VARCHAR:
		srcSlice := GetSliceInPhyFormatConst[common.String](src)
		dstSlice := GetSliceInPhyFormatFlat[common.String](dstP)
		for i := 0; i < copyCount; i++ {
			srcIdx := sel.GetIndex(srcOffset + i)
			dstIdx := dstOffset + i
			if dstBitmap.RowIsValid(uint64(dstIdx)) {
				srcStr := srcSlice[srcIdx]
				dstSlice[dstIdx] = common.String{
					Data: util.CStringCopy(srcStr.DataSlice()),
					Len:  srcStr.Length(),
				}
			} else {
				dstSlice[dstIdx] = common.String{}
			}
		}
	case common.STRUCT:
		for i, child := range src.Children {
			Copy(child, dstP.Children[i], sel, srcCount, srcOffset, dstOffset)
		}
	case common.LIST:
		srcSlice := GetSliceInPhyFormatConst[common.ListEntry](src)
		dstSlice := GetSliceInPhyFormatFlat[common.ListEntry](dstP)
		for i := 0; i < copyCount; i++ {
			srcIdx := sel.GetIndex(srcOffset + i)
			dstIdx := dstOffset + i
			if !dstBitmap.RowIsValid(uint64(dstIdx)) {
				dstSlice[dstIdx] = common.ListEntry{}
				continue
			}
			entry := srcSlice[srcIdx]
			dstSlice[dstIdx] = common.ListEntry{
				Offset: uint64(dstP.ListChild.Count()),
				Length: entry.Length,
			}
			dstP.ListChild.AppendRange(src.ListChild, int(entry.Offset), int(entry.Length))
		}
	default:
		if !pTyp.IsConstant() {
			panic(fmt.Sprintf("usp copy %v", src.Typ()))
		}
		TemplatedCopyBytes(src, sel, dstP, srcOffset, dstOffset, copyCount, pTyp.Size())
	}
}

// TemplatedCopyBytes copies fixed width values without interpreting them.
func TemplatedCopyBytes(
	src *Vector,
	sel *SelectVector,
	dst *Vector,
	srcOffset int,
	dstOffset int,
	copyCount int,
	width int,
) {
	for i := 0; i < copyCount; i++ {
		srcIdx := sel.GetIndex(srcOffset + i)
		dstIdx := dstOffset + i
		copy(dst.Data[dstIdx*width:(dstIdx+1)*width],
			src.Data[srcIdx*width:(srcIdx+1)*width])
	}
}
