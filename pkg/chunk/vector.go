package chunk

import (
	"fmt"
	"unsafe"

	"go.uber.org/zap"

	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/util"
)

// DefaultListSegmentCapacity is the segment size of a list vector's
// child collection unless set otherwise.
const DefaultListSegmentCapacity = util.DefaultVectorSize

type Vector struct {
	_PhyFormat PhyFormat
	_Typ       common.LType
	Data       []byte
	Mask       *util.Bitmap
	Buf        *VecBuffer
	Aux        *VecBuffer

	// STRUCT fields, in type order
	Children []*Vector
	// LIST elements. Data holds one common.ListEntry per row.
	ListChild *ChunkCollection
}

func (vec *Vector) Init(cap int) {
	vec.initWithSegment(cap, DefaultListSegmentCapacity)
}

func (vec *Vector) initWithSegment(cap int, segCap int) {
	vec.Aux = nil
	vec.Mask.Reset()
	pTyp := vec.Typ().GetInternalType()
	sz := pTyp.Size()
	if sz > 0 {
		vec.Buf = NewStandardBuffer(vec.Typ(), cap)
		vec.Data = vec.Buf.Data
	}
	switch pTyp {
	case common.STRUCT:
		vec.Children = make([]*Vector, len(vec._Typ.Children))
		for i, childTyp := range vec._Typ.Children {
			vec.Children[i] = NewVector2(childTyp, cap)
		}
	case common.LIST:
		vec.ListChild = NewChunkCollection(
			[]common.LType{vec._Typ.ListChild()},
			segCap)
	}
	if cap > util.DefaultVectorSize {
		vec.Mask.Resize(util.DefaultVectorSize, cap)
	}
}

func (vec *Vector) Typ() common.LType {
	return vec._Typ
}

func (vec *Vector) PhyFormat() PhyFormat {
	return vec._PhyFormat
}

func (vec *Vector) SetPhyFormat(pf PhyFormat) {
	vec._PhyFormat = pf
	if vec.Typ().GetInternalType().IsConstant() &&
		(vec.PhyFormat().IsConst() || vec.PhyFormat().IsFlat()) {
		vec.Aux = nil
	}
	if pf.IsConst() {
		for _, child := range vec.Children {
			child.SetPhyFormat(PF_CONST)
		}
	}
}

func (vec *Vector) Reference(other *Vector) {
	util.AssertFunc(vec.Typ().Equal(other.Typ()))
	vec.Reinterpret(other)
}

func (vec *Vector) Reinterpret(other *Vector) {
	vec._PhyFormat = other._PhyFormat
	vec.Buf = other.Buf
	vec.Aux = other.Aux
	vec.Data = other.Data
	vec.Mask = other.Mask
	vec.Children = other.Children
	vec.ListChild = other.ListChild
}

func (vec *Vector) GetValue(idx int) *Value {
	switch vec.PhyFormat() {
	case PF_CONST:
		idx = 0
	case PF_FLAT:
	case PF_DICT:
		sel := GetSelVectorInPhyFormatDict(vec)
		child := GetChildInPhyFormatDict(vec)
		return child.GetValue(sel.GetIndex(idx))
	default:
		panic("usp")
	}
	if !vec.Mask.RowIsValid(uint64(idx)) {
		return &Value{
			Typ:    vec.Typ(),
			IsNull: true,
		}
	}

	ret := &Value{Typ: vec.Typ()}
	switch vec.Typ().GetInternalType() {
	case common.BOOL:
		ret.Bool = GetSliceInPhyFormatFlat[bool](vec)[idx]
	case common.INT8:
		ret.I64 = int64(GetSliceInPhyFormatFlat[int8](vec)[idx])
	case common.INT16:
		ret.I64 = int64(GetSliceInPhyFormatFlat[int16](vec)[idx])
	case common.INT32:
		ret.I64 = int64(GetSliceInPhyFormatFlat[int32](vec)[idx])
	case common.INT64:
		ret.I64 = GetSliceInPhyFormatFlat[int64](vec)[idx]
	case common.UINT8:
		ret.U64 = uint64(GetSliceInPhyFormatFlat[uint8](vec)[idx])
	case common.UINT16:
		ret.U64 = uint64(GetSliceInPhyFormatFlat[uint16](vec)[idx])
	case common.UINT32:
		ret.U64 = uint64(GetSliceInPhyFormatFlat[uint32](vec)[idx])
	case common.UINT64:
		ret.U64 = GetSliceInPhyFormatFlat[uint64](vec)[idx]
	case common.FLOAT:
		ret.F64 = float64(GetSliceInPhyFormatFlat[float32](vec)[idx])
	case common.DOUBLE:
		ret.F64 = GetSliceInPhyFormatFlat[float64](vec)[idx]
	case common.INT128:
		ret.I128 = GetSliceInPhyFormatFlat[common.Hugeint](vec)[idx]
	case common.INTERVAL:
		ret.Interval = GetSliceInPhyFormatFlat[common.Interval](vec)[idx]
	case common.VARCHAR:
		data := GetSliceInPhyFormatFlat[common.String](vec)
		ret.Str = data[idx].String()
	case common.STRUCT:
		ret.Children = make([]*Value, len(vec.Children))
		for i, child := range vec.Children {
			ret.Children[i] = child.GetValue(idx)
		}
	case common.LIST:
		entry := GetSliceInPhyFormatFlat[common.ListEntry](vec)[idx]
		ret.Children = make([]*Value, entry.Length)
		for i := uint64(0); i < entry.Length; i++ {
			ret.Children[i] = vec.ListChild.GetValue(0, int(entry.Offset+i))
		}
	default:
		panic(fmt.Sprintf("usp %v", vec.Typ()))
	}
	return ret
}

func (vec *Vector) SetValue(idx int, val *Value) {
	if vec.PhyFormat().IsDict() {
		sel := GetSelVectorInPhyFormatDict(vec)
		child := GetChildInPhyFormatDict(vec)
		child.SetValue(sel.GetIndex(idx), val)
		return
	}
	util.AssertFunc(val.Typ.GetInternalType() == vec.Typ().GetInternalType())
	vec.Mask.Set(uint64(idx), !val.IsNull)
	pTyp := vec.Typ().GetInternalType()
	if val.IsNull {
		// nested children stay aligned with the parent row
		for _, child := range vec.Children {
			child.SetValue(idx, &Value{Typ: child.Typ(), IsNull: true})
		}
		if pTyp == common.LIST {
			GetSliceInPhyFormatFlat[common.ListEntry](vec)[idx] = common.ListEntry{}
		}
		return
	}
	switch pTyp {
	case common.BOOL:
		GetSliceInPhyFormatFlat[bool](vec)[idx] = val.Bool
	case common.INT8:
		GetSliceInPhyFormatFlat[int8](vec)[idx] = int8(val.I64)
	case common.INT16:
		GetSliceInPhyFormatFlat[int16](vec)[idx] = int16(val.I64)
	case common.INT32:
		GetSliceInPhyFormatFlat[int32](vec)[idx] = int32(val.I64)
	case common.INT64:
		GetSliceInPhyFormatFlat[int64](vec)[idx] = val.I64
	case common.UINT8:
		GetSliceInPhyFormatFlat[uint8](vec)[idx] = uint8(val.U64)
	case common.UINT16:
		GetSliceInPhyFormatFlat[uint16](vec)[idx] = uint16(val.U64)
	case common.UINT32:
		GetSliceInPhyFormatFlat[uint32](vec)[idx] = uint32(val.U64)
	case common.UINT64:
		GetSliceInPhyFormatFlat[uint64](vec)[idx] = val.U64
	case common.FLOAT:
		GetSliceInPhyFormatFlat[float32](vec)[idx] = float32(val.F64)
	case common.DOUBLE:
		GetSliceInPhyFormatFlat[float64](vec)[idx] = val.F64
	case common.INT128:
		GetSliceInPhyFormatFlat[common.Hugeint](vec)[idx] = val.I128
	case common.INTERVAL:
		GetSliceInPhyFormatFlat[common.Interval](vec)[idx] = val.Interval
	case common.VARCHAR:
		GetSliceInPhyFormatFlat[common.String](vec)[idx] = common.NewString(val.Str)
	case common.STRUCT:
		util.AssertFunc(len(val.Children) == len(vec.Children))
		for i, child := range vec.Children {
			child.SetValue(idx, val.Children[i])
		}
	case common.LIST:
		entry := common.ListEntry{
			Offset: uint64(vec.ListChild.Count()),
			Length: uint64(len(val.Children)),
		}
		for _, elem := range val.Children {
			vec.ListChild.AppendRow(elem)
		}
		GetSliceInPhyFormatFlat[common.ListEntry](vec)[idx] = entry
	default:
		panic(fmt.Sprintf("usp %v", vec.Typ()))
	}
}

func (vec *Vector) Reset() {
	vec._PhyFormat = PF_FLAT
	vec.Mask.Reset()
}

func (vec *Vector) Print(prefix string, rowCount int) {
	fields := make([]zap.Field, 0, rowCount)
	for j := 0; j < rowCount; j++ {
		val := vec.GetValue(j)
		fields = append(fields, zap.String("", val.String()))
	}
	util.Info(prefix, fields...)
}

// constant vector
func GetDataInPhyFormatConst(vec *Vector) []byte {
	util.AssertFunc(vec.PhyFormat().IsConst() || vec.PhyFormat().IsFlat())
	return vec.Data
}

func GetSliceInPhyFormatConst[T any](vec *Vector) []T {
	util.AssertFunc(vec.PhyFormat().IsConst() || vec.PhyFormat().IsFlat())
	pSize := vec.Typ().GetInternalType().Size()
	return util.ToSlice[T](vec.Data, pSize)
}

func IsNullInPhyFormatConst(vec *Vector) bool {
	util.AssertFunc(vec.PhyFormat().IsConst())
	return !vec.Mask.RowIsValid(0)
}

func SetNullInPhyFormatConst(vec *Vector, null bool) {
	util.AssertFunc(vec.PhyFormat().IsConst())
	vec.Mask.Set(0, !null)
}

func ZeroSelectVectorInPhyFormatConst(cnt int, sel *SelectVector) *SelectVector {
	sel.Init(cnt)
	return sel
}

func GetMaskInPhyFormatConst(vec *Vector) *util.Bitmap {
	util.AssertFunc(vec.PhyFormat().IsConst())
	return vec.Mask
}

// flat vector
func GetDataInPhyFormatFlat(vec *Vector) []byte {
	return GetDataInPhyFormatConst(vec)
}

func GetSliceInPhyFormatFlat[T any](vec *Vector) []T {
	return GetSliceInPhyFormatConst[T](vec)
}

func GetMaskInPhyFormatFlat(vec *Vector) *util.Bitmap {
	util.AssertFunc(vec.PhyFormat().IsFlat())
	return vec.Mask
}

func SetNullInPhyFormatFlat(vec *Vector, idx uint64, null bool) {
	util.AssertFunc(vec.PhyFormat().IsFlat())
	vec.Mask.Set(idx, !null)
}

func IncrSelectVectorInPhyFormatFlat() *SelectVector {
	return &SelectVector{}
}

// dictionary vector
func GetSelVectorInPhyFormatDict(vec *Vector) *SelectVector {
	util.AssertFunc(vec.PhyFormat().IsDict())
	return vec.Buf.GetSelVector()
}

func GetChildInPhyFormatDict(vec *Vector) *Vector {
	util.AssertFunc(vec.PhyFormat().IsDict())
	return vec.Aux.Child
}

// nested vectors

// StructEntries returns the field vectors of a struct vector. The
// entries are indexed the same way as the unified format of vec.
func StructEntries(vec *Vector) []*Vector {
	util.AssertFunc(vec.Typ().GetInternalType() == common.STRUCT)
	if vec.PhyFormat().IsDict() {
		return StructEntries(GetChildInPhyFormatDict(vec))
	}
	return vec.Children
}

// ListChildCollection returns the element storage of a list vector.
func ListChildCollection(vec *Vector) *ChunkCollection {
	util.AssertFunc(vec.Typ().GetInternalType() == common.LIST)
	if vec.PhyFormat().IsDict() {
		return ListChildCollection(GetChildInPhyFormatDict(vec))
	}
	return vec.ListChild
}

// SetListChildCollection replaces the element storage of a flat list
// vector.
func SetListChildCollection(vec *Vector, cc *ChunkCollection) {
	util.AssertFunc(vec.PhyFormat().IsFlat())
	util.AssertFunc(vec.Typ().GetInternalType() == common.LIST)
	vec.ListChild = cc
}

// DataPointer is the address of the first value of a flat vector.
func DataPointer(vec *Vector) unsafe.Pointer {
	return util.BytesSliceToPointer(vec.Data)
}

func HasNull(input *Vector, count int) bool {
	if count == 0 {
		return false
	}

	if input.PhyFormat() == PF_CONST {
		return IsNullInPhyFormatConst(input)
	} else {
		var data UnifiedFormat
		input.ToUnifiedFormat(count, &data)

		if data.Mask.AllValid() {
			return false
		}
		for i := 0; i < count; i++ {
			idx := data.Sel.GetIndex(i)
			if !data.Mask.RowIsValid(uint64(idx)) {
				return true
			}
		}
		return false
	}
}
