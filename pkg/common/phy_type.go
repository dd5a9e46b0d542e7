package common

import (
	"fmt"
	"unsafe"
)

type PhyType int

const (
	NA       PhyType = 0
	BOOL     PhyType = 1
	UINT8    PhyType = 2
	INT8     PhyType = 3
	UINT16   PhyType = 4
	INT16    PhyType = 5
	UINT32   PhyType = 6
	INT32    PhyType = 7
	UINT64   PhyType = 8
	INT64    PhyType = 9
	FLOAT    PhyType = 11
	DOUBLE   PhyType = 12
	INTERVAL PhyType = 21
	LIST     PhyType = 23
	STRUCT   PhyType = 24
	VARCHAR  PhyType = 200
	INT128   PhyType = 204
	UNKNOWN  PhyType = 205
	BIT      PhyType = 206

	INVALID PhyType = 255
)

var pTypeToStr = map[PhyType]string{
	NA:       "NA",
	BOOL:     "BOOL",
	UINT8:    "UINT8",
	INT8:     "INT8",
	UINT16:   "UINT16",
	INT16:    "INT16",
	UINT32:   "UINT32",
	INT32:    "INT32",
	UINT64:   "UINT64",
	INT64:    "INT64",
	FLOAT:    "FLOAT",
	DOUBLE:   "DOUBLE",
	INTERVAL: "INTERVAL",
	LIST:     "LIST",
	STRUCT:   "STRUCT",
	VARCHAR:  "VARCHAR",
	INT128:   "INT128",
	UNKNOWN:  "UNKNOWN",
	BIT:      "BIT",
	INVALID:  "INVALID",
}

var (
	BoolSize     int
	Int8Size     int
	Int16Size    int
	Int32Size    int
	Int64Size    int
	Int128Size   int
	Float32Size  int
	Float64Size  int
	VarcharSize  int
	IntervalSize int
	ListSize     int
	PointerSize  int
)

func init() {
	b := false
	BoolSize = int(unsafe.Sizeof(b))
	Int8Size = int(unsafe.Sizeof(int8(0)))
	Int16Size = int(unsafe.Sizeof(int16(0)))
	Int32Size = int(unsafe.Sizeof(int32(0)))
	Int64Size = int(unsafe.Sizeof(int64(0)))
	Int128Size = int(unsafe.Sizeof(Hugeint{}))
	Float32Size = int(unsafe.Sizeof(float32(0)))
	Float64Size = int(unsafe.Sizeof(float64(0)))
	VarcharSize = int(unsafe.Sizeof(String{}))
	IntervalSize = int(unsafe.Sizeof(Interval{}))
	ListSize = int(unsafe.Sizeof(ListEntry{}))
	PointerSize = int(unsafe.Sizeof(unsafe.Pointer(nil)))
}

func (pt PhyType) String() string {
	if s, has := pTypeToStr[pt]; has {
		return s
	}
	panic(fmt.Sprintf("usp %d", pt))
}

// Size is the width of one value in a flat vector. STRUCT vectors carry
// no data of their own.
func (pt PhyType) Size() int {
	switch pt {
	case BIT, BOOL:
		return BoolSize
	case INT8, UINT8:
		return Int8Size
	case INT16, UINT16:
		return Int16Size
	case INT32, UINT32:
		return Int32Size
	case INT64, UINT64:
		return Int64Size
	case INT128:
		return Int128Size
	case FLOAT:
		return Float32Size
	case DOUBLE:
		return Float64Size
	case VARCHAR:
		return VarcharSize
	case INTERVAL:
		return IntervalSize
	case LIST:
		return ListSize
	case STRUCT, UNKNOWN:
		return 0
	default:
		panic(fmt.Sprintf("usp size of %v", pt))
	}
}

// IsConstant reports whether every value of the type has the same
// encoded width.
func (pt PhyType) IsConstant() bool {
	return pt >= BOOL && pt <= DOUBLE ||
		pt == INTERVAL ||
		pt == INT128
}

func (pt PhyType) IsVarchar() bool {
	return pt == VARCHAR
}

func (pt PhyType) IsNested() bool {
	return pt == LIST || pt == STRUCT
}

// ListEntry locates one list in the child collection of a list vector.
type ListEntry struct {
	Offset uint64
	Length uint64
}
