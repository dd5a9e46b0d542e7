package chunk

import (
	"fmt"
	"math"
	"strings"

	"github.com/daviszhen/rowagg/pkg/common"
)

type Value struct {
	Typ    common.LType
	IsNull bool
	//value
	Bool     bool
	I64      int64
	U64      uint64
	F64      float64
	Str      string
	I128     common.Hugeint
	Interval common.Interval
	// struct fields or list elements
	Children []*Value
}

func NullValue(typ common.LType) *Value {
	return &Value{Typ: typ, IsNull: true}
}

func IntegerValue(v int32) *Value {
	return &Value{Typ: common.IntegerType(), I64: int64(v)}
}

func BigintValue(v int64) *Value {
	return &Value{Typ: common.BigintType(), I64: v}
}

func DoubleValue(v float64) *Value {
	return &Value{Typ: common.DoubleType(), F64: v}
}

func VarcharValue(s string) *Value {
	return &Value{Typ: common.VarcharType(), Str: s}
}

func HugeintValue(v common.Hugeint) *Value {
	return &Value{Typ: common.HugeintType(), I128: v}
}

func DecimalValue(coef int64, width, scale int) *Value {
	return &Value{Typ: common.DecimalType(width, scale), I64: coef}
}

func StructValue(typ common.LType, fields ...*Value) *Value {
	return &Value{Typ: typ, Children: fields}
}

func ListValue(typ common.LType, elems ...*Value) *Value {
	return &Value{Typ: typ, Children: elems}
}

func (val Value) String() string {
	if val.IsNull {
		return "NULL"
	}
	switch val.Typ.Id {
	case common.LTID_BOOLEAN:
		return fmt.Sprintf("%v", val.Bool)
	case common.LTID_TINYINT, common.LTID_SMALLINT,
		common.LTID_INTEGER, common.LTID_BIGINT:
		return fmt.Sprintf("%d", val.I64)
	case common.LTID_UTINYINT, common.LTID_USMALLINT,
		common.LTID_UINTEGER, common.LTID_UBIGINT:
		return fmt.Sprintf("%d", val.U64)
	case common.LTID_POINTER:
		return fmt.Sprintf("0x%x", val.U64)
	case common.LTID_DECIMAL:
		return common.DecimalString(val.I64, val.Typ.Scale)
	case common.LTID_FLOAT, common.LTID_DOUBLE:
		return fmt.Sprintf("%v", val.F64)
	case common.LTID_HUGEINT:
		return val.I128.String()
	case common.LTID_INTERVAL:
		return val.Interval.String()
	case common.LTID_VARCHAR:
		return val.Str
	case common.LTID_STRUCT:
		sb := strings.Builder{}
		sb.WriteByte('{')
		for i, child := range val.Children {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(val.Typ.Names[i])
			sb.WriteString(": ")
			sb.WriteString(child.String())
		}
		sb.WriteByte('}')
		return sb.String()
	case common.LTID_LIST:
		sb := strings.Builder{}
		sb.WriteByte('[')
		for i, child := range val.Children {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(child.String())
		}
		sb.WriteByte(']')
		return sb.String()
	default:
		panic("usp")
	}
}

// Equal treats two NULLs of the same type as equal and +0 as equal to -0.
func (val *Value) Equal(o *Value) bool {
	if val.Typ.Id != o.Typ.Id || val.IsNull != o.IsNull {
		return false
	}
	if val.IsNull {
		return true
	}
	switch val.Typ.GetInternalType() {
	case common.BOOL:
		return val.Bool == o.Bool
	case common.INT8, common.INT16, common.INT32, common.INT64:
		return val.I64 == o.I64
	case common.UINT8, common.UINT16, common.UINT32, common.UINT64:
		return val.U64 == o.U64
	case common.FLOAT, common.DOUBLE:
		if math.IsNaN(val.F64) && math.IsNaN(o.F64) {
			return true
		}
		return val.F64 == o.F64
	case common.INT128:
		return val.I128.Equal(&o.I128)
	case common.INTERVAL:
		return val.Interval.Equal(&o.Interval)
	case common.VARCHAR:
		return val.Str == o.Str
	case common.STRUCT, common.LIST:
		if len(val.Children) != len(o.Children) {
			return false
		}
		for i := range val.Children {
			if !val.Children[i].Equal(o.Children[i]) {
				return false
			}
		}
		return true
	default:
		panic("usp")
	}
}

var (
	POWERS_OF_TEN = []int64{
		1,
		10,
		100,
		1000,
		10000,
		100000,
		1000000,
		10000000,
		100000000,
		1000000000,
		10000000000,
		100000000000,
		1000000000000,
		10000000000000,
		100000000000000,
		1000000000000000,
		10000000000000000,
		100000000000000000,
		1000000000000000000,
	}
)
