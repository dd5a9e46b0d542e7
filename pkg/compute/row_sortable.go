package compute

import (
	"fmt"
	"unsafe"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/util"
)

// EncodeData writes value at ptr so that memcmp order of the bytes is
// the natural order of the values.
func EncodeData[T any](ptr unsafe.Pointer, value T) {
	switch v := any(value).(type) {
	case bool:
		if v {
			util.EncodeInt8(ptr, 1)
		} else {
			util.EncodeInt8(ptr, 0)
		}
	case int8:
		util.EncodeInt8(ptr, v)
	case int16:
		util.EncodeInt16(ptr, v)
	case int32:
		util.EncodeInt32(ptr, v)
	case int64:
		util.EncodeInt64(ptr, v)
	case uint8:
		util.Store[uint8](v, ptr)
	case uint16:
		util.EncodeUint16(ptr, v)
	case uint32:
		util.EncodeUint32(ptr, v)
	case uint64:
		util.EncodeUint64(ptr, v)
	case float32:
		util.EncodeUint32(ptr, util.EncodeFloat(v))
	case float64:
		util.EncodeUint64(ptr, util.EncodeDouble(v))
	case common.Hugeint:
		util.EncodeInt64(ptr, v.Upper)
		util.EncodeUint64(util.PointerAdd(ptr, common.Int64Size), v.Lower)
	case common.Interval:
		util.EncodeInt32(ptr, v.Months)
		util.EncodeInt32(util.PointerAdd(ptr, common.Int32Size), v.Days)
		util.EncodeInt64(util.PointerAdd(ptr, 2*common.Int32Size), v.Micros)
	default:
		panic(fmt.Sprintf("not implemented: sortable encoding of %T", value))
	}
}

// EncodeStringData writes the first prefixLen bytes of value, zero
// padded.
func EncodeStringData(ptr unsafe.Pointer, value common.String, prefixLen int) {
	n := min(value.Length(), prefixLen)
	if n > 0 {
		util.PointerCopy(ptr, value.DataPtr(), n)
	}
	if n < prefixLen {
		util.Memset(util.PointerAdd(ptr, n), 0, prefixLen-n)
	}
}

// SortableWidth is the width of the sortable encoding of typ without the
// validity byte.
func SortableWidth(typ common.LType, prefixLen int) int {
	pTyp := typ.GetInternalType()
	switch pTyp {
	case common.VARCHAR:
		return prefixLen
	case common.BOOL, common.INT8, common.UINT8:
		return 1
	case common.INT16, common.UINT16,
		common.INT32, common.UINT32,
		common.INT64, common.UINT64,
		common.FLOAT, common.DOUBLE,
		common.INT128, common.INTERVAL:
		return pTyp.Size()
	default:
		panic(fmt.Sprintf("not implemented: sortable encoding of %v", typ))
	}
}

// SerializeVectorSortable appends the sortable encoding of serCount rows
// of vec to keyLocations. Row i is vec[sel[i]]. With hasNull a validity
// byte precedes each value; desc complements every byte written.
func SerializeVectorSortable(
	vec *chunk.Vector,
	vcount int,
	sel *chunk.SelectVector,
	serCount int,
	keyLocations []unsafe.Pointer,
	desc bool,
	hasNull bool,
	nullsFirst bool,
	prefixLen int,
) {
	var vdata chunk.UnifiedFormat
	vec.ToUnifiedFormat(vcount, &vdata)

	pTyp := vec.Typ().GetInternalType()
	switch pTyp {
	case common.BOOL:
		templatedSerializeSortable[bool](&vdata, sel, serCount, keyLocations, desc, hasNull, nullsFirst)
	case common.INT8:
		templatedSerializeSortable[int8](&vdata, sel, serCount, keyLocations, desc, hasNull, nullsFirst)
	case common.INT16:
		templatedSerializeSortable[int16](&vdata, sel, serCount, keyLocations, desc, hasNull, nullsFirst)
	case common.INT32:
		templatedSerializeSortable[int32](&vdata, sel, serCount, keyLocations, desc, hasNull, nullsFirst)
	case common.INT64:
		templatedSerializeSortable[int64](&vdata, sel, serCount, keyLocations, desc, hasNull, nullsFirst)
	case common.UINT8:
		templatedSerializeSortable[uint8](&vdata, sel, serCount, keyLocations, desc, hasNull, nullsFirst)
	case common.UINT16:
		templatedSerializeSortable[uint16](&vdata, sel, serCount, keyLocations, desc, hasNull, nullsFirst)
	case common.UINT32:
		templatedSerializeSortable[uint32](&vdata, sel, serCount, keyLocations, desc, hasNull, nullsFirst)
	case common.UINT64:
		templatedSerializeSortable[uint64](&vdata, sel, serCount, keyLocations, desc, hasNull, nullsFirst)
	case common.FLOAT:
		templatedSerializeSortable[float32](&vdata, sel, serCount, keyLocations, desc, hasNull, nullsFirst)
	case common.DOUBLE:
		templatedSerializeSortable[float64](&vdata, sel, serCount, keyLocations, desc, hasNull, nullsFirst)
	case common.INT128:
		templatedSerializeSortable[common.Hugeint](&vdata, sel, serCount, keyLocations, desc, hasNull, nullsFirst)
	case common.INTERVAL:
		templatedSerializeSortable[common.Interval](&vdata, sel, serCount, keyLocations, desc, hasNull, nullsFirst)
	case common.VARCHAR:
		serializeStringSortable(&vdata, sel, serCount, keyLocations, desc, hasNull, nullsFirst, prefixLen)
	default:
		panic(fmt.Sprintf("not implemented: sortable encoding of %v", vec.Typ()))
	}
}

// validityBytes returns the validity byte of valid and invalid rows.
// They are swapped under desc so that the complement keeps NULLs where
// nullsFirst puts them.
func validityBytes(desc, nullsFirst bool) (valid, invalid uint8) {
	if nullsFirst {
		valid, invalid = 1, 0
	} else {
		valid, invalid = 0, 1
	}
	if desc {
		valid, invalid = invalid, valid
	}
	return
}

func templatedSerializeSortable[T any](
	vdata *chunk.UnifiedFormat,
	sel *chunk.SelectVector,
	serCount int,
	keyLocations []unsafe.Pointer,
	desc bool,
	hasNull bool,
	nullsFirst bool,
) {
	srcSlice := chunk.GetSliceInPhyFormatUnifiedFormat[T](vdata)
	var zero T
	width := int(unsafe.Sizeof(zero))
	if hasNull {
		validByte, invalidByte := validityBytes(desc, nullsFirst)
		for i := 0; i < serCount; i++ {
			idx := sel.GetIndex(i)
			srcIdx := vdata.Sel.GetIndex(idx)
			if vdata.Mask.RowIsValid(uint64(srcIdx)) {
				util.Store[uint8](validByte, keyLocations[i])
				EncodeData[T](util.PointerAdd(keyLocations[i], 1), srcSlice[srcIdx])
			} else {
				util.Store[uint8](invalidByte, keyLocations[i])
				util.Memset(util.PointerAdd(keyLocations[i], 1), 0, width)
			}
			if desc {
				util.InvertBits(keyLocations[i], width+1)
			}
			keyLocations[i] = util.PointerAdd(keyLocations[i], width+1)
		}
	} else {
		for i := 0; i < serCount; i++ {
			idx := sel.GetIndex(i)
			srcIdx := vdata.Sel.GetIndex(idx)
			EncodeData[T](keyLocations[i], srcSlice[srcIdx])
			if desc {
				util.InvertBits(keyLocations[i], width)
			}
			keyLocations[i] = util.PointerAdd(keyLocations[i], width)
		}
	}
}

func serializeStringSortable(
	vdata *chunk.UnifiedFormat,
	sel *chunk.SelectVector,
	serCount int,
	keyLocations []unsafe.Pointer,
	desc bool,
	hasNull bool,
	nullsFirst bool,
	prefixLen int,
) {
	srcSlice := chunk.GetSliceInPhyFormatUnifiedFormat[common.String](vdata)
	if hasNull {
		validByte, invalidByte := validityBytes(desc, nullsFirst)
		for i := 0; i < serCount; i++ {
			idx := sel.GetIndex(i)
			srcIdx := vdata.Sel.GetIndex(idx)
			if vdata.Mask.RowIsValid(uint64(srcIdx)) {
				util.Store[uint8](validByte, keyLocations[i])
				EncodeStringData(util.PointerAdd(keyLocations[i], 1), srcSlice[srcIdx], prefixLen)
			} else {
				util.Store[uint8](invalidByte, keyLocations[i])
				util.Memset(util.PointerAdd(keyLocations[i], 1), 0, prefixLen)
			}
			if desc {
				util.InvertBits(keyLocations[i], prefixLen+1)
			}
			keyLocations[i] = util.PointerAdd(keyLocations[i], prefixLen+1)
		}
	} else {
		for i := 0; i < serCount; i++ {
			idx := sel.GetIndex(i)
			srcIdx := vdata.Sel.GetIndex(idx)
			EncodeStringData(keyLocations[i], srcSlice[srcIdx], prefixLen)
			if desc {
				util.InvertBits(keyLocations[i], prefixLen)
			}
			keyLocations[i] = util.PointerAdd(keyLocations[i], prefixLen)
		}
	}
}
