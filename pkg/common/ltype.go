package common

import (
	"fmt"
	"strings"
)

// MaxDecimalWidth is the widest DECIMAL that still fits an INT64.
const MaxDecimalWidth = 18

type LType struct {
	Id    LTypeId
	PTyp  PhyType
	Width int
	Scale int

	// struct fields or the list element
	Children []LType
	Names    []string
}

func MakeLType(id LTypeId) LType {
	ret := LType{Id: id}
	ret.PTyp = ret.GetInternalType()
	return ret
}

func Null() LType {
	return MakeLType(LTID_NULL)
}

func DecimalType(width, scale int) LType {
	if width <= 0 || width > MaxDecimalWidth || scale < 0 || scale > width {
		panic(fmt.Sprintf("usp decimal(%d,%d)", width, scale))
	}
	ret := MakeLType(LTID_DECIMAL)
	ret.Width = width
	ret.Scale = scale
	return ret
}

func HugeintType() LType {
	return MakeLType(LTID_HUGEINT)
}

func BigintType() LType {
	return MakeLType(LTID_BIGINT)
}

func IntegerType() LType {
	return MakeLType(LTID_INTEGER)
}

func HashType() LType {
	return MakeLType(LTID_UBIGINT)
}

func FloatType() LType {
	return MakeLType(LTID_FLOAT)
}

func DoubleType() LType {
	return MakeLType(LTID_DOUBLE)
}

func TinyintType() LType {
	return MakeLType(LTID_TINYINT)
}

func SmallintType() LType {
	return MakeLType(LTID_SMALLINT)
}

func UTinyintType() LType {
	return MakeLType(LTID_UTINYINT)
}

func USmallintType() LType {
	return MakeLType(LTID_USMALLINT)
}

func UIntegerType() LType {
	return MakeLType(LTID_UINTEGER)
}

func UbigintType() LType {
	return MakeLType(LTID_UBIGINT)
}

func VarcharType() LType {
	return MakeLType(LTID_VARCHAR)
}

func BooleanType() LType {
	return MakeLType(LTID_BOOLEAN)
}

func IntervalType() LType {
	return MakeLType(LTID_INTERVAL)
}

func PointerType() LType {
	return MakeLType(LTID_POINTER)
}

func StructType(names []string, children []LType) LType {
	if len(names) != len(children) {
		panic("struct names and children mismatch")
	}
	ret := MakeLType(LTID_STRUCT)
	ret.Names = append([]string(nil), names...)
	ret.Children = CopyLTypes(children...)
	return ret
}

func ListType(child LType) LType {
	ret := MakeLType(LTID_LIST)
	ret.Children = []LType{child}
	return ret
}

func CopyLTypes(typs ...LType) []LType {
	ret := make([]LType, 0, len(typs))
	ret = append(ret, typs...)
	return ret
}

// ListChild is the element type of a LIST.
func (lt LType) ListChild() LType {
	if lt.Id != LTID_LIST || len(lt.Children) != 1 {
		panic(fmt.Sprintf("%v is not a list", lt))
	}
	return lt.Children[0]
}

func (lt LType) IsNumeric() bool {
	switch lt.Id {
	case LTID_TINYINT, LTID_SMALLINT, LTID_INTEGER, LTID_BIGINT,
		LTID_HUGEINT, LTID_FLOAT, LTID_DOUBLE, LTID_DECIMAL,
		LTID_UTINYINT, LTID_USMALLINT, LTID_UINTEGER, LTID_UBIGINT:
		return true
	default:
		return false
	}
}

func (lt LType) IsIntegral() bool {
	switch lt.Id {
	case LTID_TINYINT, LTID_SMALLINT, LTID_INTEGER, LTID_BIGINT,
		LTID_UTINYINT, LTID_USMALLINT, LTID_UINTEGER, LTID_UBIGINT,
		LTID_HUGEINT:
		return true
	default:
		return false
	}
}

func (lt LType) IsSigned() bool {
	switch lt.Id {
	case LTID_TINYINT, LTID_SMALLINT, LTID_INTEGER, LTID_BIGINT,
		LTID_HUGEINT, LTID_DECIMAL:
		return true
	default:
		return false
	}
}

func (lt LType) IsPointer() bool {
	return lt.Id == LTID_POINTER
}

func (lt LType) Equal(o LType) bool {
	if lt.Id != o.Id {
		return false
	}
	switch lt.Id {
	case LTID_DECIMAL:
		return lt.Width == o.Width && lt.Scale == o.Scale
	case LTID_STRUCT, LTID_LIST:
		if len(lt.Children) != len(o.Children) ||
			len(lt.Names) != len(o.Names) {
			return false
		}
		for i := range lt.Children {
			if !lt.Children[i].Equal(o.Children[i]) {
				return false
			}
		}
		for i := range lt.Names {
			if lt.Names[i] != o.Names[i] {
				return false
			}
		}
	}
	return true
}

func (lt LType) GetInternalType() PhyType {
	switch lt.Id {
	case LTID_BOOLEAN:
		return BOOL
	case LTID_TINYINT:
		return INT8
	case LTID_UTINYINT:
		return UINT8
	case LTID_SMALLINT:
		return INT16
	case LTID_USMALLINT:
		return UINT16
	case LTID_NULL, LTID_INTEGER:
		return INT32
	case LTID_UINTEGER:
		return UINT32
	case LTID_BIGINT, LTID_DECIMAL:
		return INT64
	case LTID_UBIGINT, LTID_POINTER:
		return UINT64
	case LTID_HUGEINT:
		return INT128
	case LTID_FLOAT:
		return FLOAT
	case LTID_DOUBLE:
		return DOUBLE
	case LTID_VARCHAR, LTID_BIT:
		return VARCHAR
	case LTID_INTERVAL:
		return INTERVAL
	case LTID_STRUCT:
		return STRUCT
	case LTID_LIST:
		return LIST
	case LTID_INVALID, LTID_UNKNOWN:
		return INVALID
	default:
		panic(fmt.Sprintf("usp logical type %d", lt.Id))
	}
}

func (lt LType) String() string {
	switch lt.Id {
	case LTID_DECIMAL:
		return fmt.Sprintf("DECIMAL(%d,%d)", lt.Width, lt.Scale)
	case LTID_LIST:
		return fmt.Sprintf("%v[]", lt.ListChild())
	case LTID_STRUCT:
		sb := strings.Builder{}
		sb.WriteString("STRUCT(")
		for i, child := range lt.Children {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(lt.Names[i])
			sb.WriteByte(' ')
			sb.WriteString(child.String())
		}
		sb.WriteByte(')')
		return sb.String()
	default:
		return lt.Id.String()
	}
}

// ParseLType understands the type names accepted in config files:
// boolean, tinyint .. bigint, utinyint .. ubigint, hugeint, float,
// double, varchar, interval and decimal(w,s).
func ParseLType(name string) (LType, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	switch n {
	case "boolean", "bool":
		return BooleanType(), nil
	case "tinyint":
		return TinyintType(), nil
	case "smallint":
		return SmallintType(), nil
	case "integer", "int":
		return IntegerType(), nil
	case "bigint":
		return BigintType(), nil
	case "utinyint":
		return UTinyintType(), nil
	case "usmallint":
		return USmallintType(), nil
	case "uinteger":
		return UIntegerType(), nil
	case "ubigint":
		return UbigintType(), nil
	case "hugeint":
		return HugeintType(), nil
	case "float":
		return FloatType(), nil
	case "double":
		return DoubleType(), nil
	case "varchar", "string", "text":
		return VarcharType(), nil
	case "interval":
		return IntervalType(), nil
	}
	var width, scale int
	if _, err := fmt.Sscanf(n, "decimal(%d,%d)", &width, &scale); err == nil {
		if width <= 0 || width > MaxDecimalWidth || scale < 0 || scale > width {
			return LType{}, fmt.Errorf("invalid decimal type %q", name)
		}
		return DecimalType(width, scale), nil
	}
	return LType{}, fmt.Errorf("unknown type %q", name)
}
