package compute

import (
	"math"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/common"
)

type nativeRows struct {
	validity [][]byte
	data     [][]byte
	sizes    []int
}

// serializeRows writes n rows of vec into one buffer per row and returns
// them with a one byte row validity each.
func serializeRows(t *testing.T, vec *chunk.Vector, n int) *nativeRows {
	rows := &nativeRows{sizes: make([]int, n)}
	ComputeEntrySizes(vec, rows.sizes, n, n, nil, 0)
	keyLocs := make([]unsafe.Pointer, n)
	validityLocs := make([]unsafe.Pointer, n)
	for i := 0; i < n; i++ {
		rows.validity = append(rows.validity, []byte{0xFF})
		rows.data = append(rows.data, make([]byte, rows.sizes[i]+1))
		keyLocs[i] = unsafe.Pointer(&rows.data[i][0])
		validityLocs[i] = unsafe.Pointer(&rows.validity[i][0])
	}
	SerializeVector(vec, n, nil, n, 0, keyLocs, validityLocs, 0)
	for i := 0; i < n; i++ {
		written := int(uintptr(keyLocs[i]) - uintptr(unsafe.Pointer(&rows.data[i][0])))
		require.Equal(t, rows.sizes[i], written, "row %d", i)
	}
	return rows
}

func (rows *nativeRows) deserialize(vec *chunk.Vector) {
	n := len(rows.data)
	keyLocs := make([]unsafe.Pointer, n)
	validityLocs := make([]unsafe.Pointer, n)
	for i := 0; i < n; i++ {
		keyLocs[i] = unsafe.Pointer(&rows.data[i][0])
		validityLocs[i] = unsafe.Pointer(&rows.validity[i][0])
	}
	DeserializeIntoVector(vec, n, 0, keyLocs, validityLocs)
}

func requireSameValues(t *testing.T, want []*chunk.Value, got *chunk.Vector) {
	for i, val := range want {
		require.Truef(t, val.Equal(got.GetValue(i)),
			"row %d: want %v got %v", i, val, got.GetValue(i))
	}
}

func TestNativeRoundTripFixedWidth(t *testing.T) {
	cases := []struct {
		typ  common.LType
		vals []*chunk.Value
	}{
		{
			common.IntegerType(),
			[]*chunk.Value{
				chunk.IntegerValue(1),
				chunk.NullValue(common.IntegerType()),
				chunk.IntegerValue(math.MinInt32),
			},
		},
		{
			common.DoubleType(),
			[]*chunk.Value{
				chunk.DoubleValue(-1.5),
				chunk.DoubleValue(math.Inf(1)),
				chunk.NullValue(common.DoubleType()),
			},
		},
		{
			common.HugeintType(),
			[]*chunk.Value{
				chunk.HugeintValue(common.Hugeint{Lower: 7, Upper: -1}),
				chunk.NullValue(common.HugeintType()),
			},
		},
		{
			common.IntervalType(),
			[]*chunk.Value{
				{Typ: common.IntervalType(), Interval: common.Interval{Months: 1, Days: 2, Micros: 3}},
				chunk.NullValue(common.IntervalType()),
			},
		},
	}
	for _, c := range cases {
		t.Run(c.typ.String(), func(t *testing.T) {
			vec := chunk.NewFlatVectorFromValues(c.typ, c.vals)
			rows := serializeRows(t, vec, len(c.vals))
			for i, sz := range rows.sizes {
				assert.Equal(t, c.typ.GetInternalType().Size(), sz)
				assert.Equal(t, !c.vals[i].IsNull, rows.validity[i][0]&1 == 1)
			}
			out := chunk.NewFlatVector(c.typ, len(c.vals))
			rows.deserialize(out)
			requireSameValues(t, c.vals, out)
		})
	}
}

func TestNativeRoundTripVarchar(t *testing.T) {
	vals := []*chunk.Value{
		chunk.VarcharValue("hello"),
		chunk.NullValue(common.VarcharType()),
		chunk.VarcharValue(""),
		chunk.VarcharValue("a string that is longer than any inline prefix"),
	}
	vec := chunk.NewFlatVectorFromValues(common.VarcharType(), vals)
	rows := serializeRows(t, vec, len(vals))
	assert.Equal(t, []int{4 + 5, 0, 4, 4 + len(vals[3].Str)}, rows.sizes)

	out := chunk.NewFlatVector(common.VarcharType(), len(vals))
	rows.deserialize(out)
	requireSameValues(t, vals, out)
}

func TestNativeRoundTripStruct(t *testing.T) {
	typ := common.StructType(
		[]string{"a", "b"},
		[]common.LType{common.IntegerType(), common.VarcharType()})
	vals := []*chunk.Value{
		chunk.StructValue(typ, chunk.IntegerValue(1), chunk.VarcharValue("x")),
		chunk.StructValue(typ, chunk.NullValue(common.IntegerType()), chunk.VarcharValue("yy")),
		chunk.NullValue(typ),
		chunk.StructValue(typ, chunk.IntegerValue(4), chunk.NullValue(common.VarcharType())),
	}
	vec := chunk.NewFlatVectorFromValues(typ, vals)
	rows := serializeRows(t, vec, len(vals))
	//validity byte + int32 + string
	assert.Equal(t, 1+4+4+1, rows.sizes[0])
	assert.Equal(t, 1+4, rows.sizes[3])

	out := chunk.NewFlatVector(typ, len(vals))
	rows.deserialize(out)
	requireSameValues(t, vals, out)
}

func TestNativeStructAdvancesPastChildren(t *testing.T) {
	typ := common.StructType(
		[]string{"s"},
		[]common.LType{common.VarcharType()})
	vals := []*chunk.Value{
		chunk.StructValue(typ, chunk.VarcharValue("abc")),
	}
	vec := chunk.NewFlatVectorFromValues(typ, vals)
	tail := chunk.NewFlatVectorFromValues(common.BigintType(), []*chunk.Value{chunk.BigintValue(99)})

	sizes := make([]int, 1)
	ComputeEntrySizes(vec, sizes, 1, 1, nil, 0)
	ComputeEntrySizes(tail, sizes, 1, 1, nil, 0)
	require.Equal(t, 1+4+3+8, sizes[0])

	buf := make([]byte, sizes[0])
	validity := []byte{0xFF}
	start := unsafe.Pointer(&buf[0])
	keyLocs := []unsafe.Pointer{start}
	validityLocs := []unsafe.Pointer{unsafe.Pointer(&validity[0])}
	SerializeVector(vec, 1, nil, 1, 0, keyLocs, validityLocs, 0)
	SerializeVector(tail, 1, nil, 1, 1, keyLocs, validityLocs, 0)
	assert.Equal(t, uintptr(start)+uintptr(sizes[0]), uintptr(keyLocs[0]))

	keyLocs[0] = start
	outStruct := chunk.NewFlatVector(typ, 1)
	outTail := chunk.NewFlatVector(common.BigintType(), 1)
	DeserializeIntoVector(outStruct, 1, 0, keyLocs, validityLocs)
	DeserializeIntoVector(outTail, 1, 1, keyLocs, validityLocs)
	requireSameValues(t, vals, outStruct)
	assert.Equal(t, int64(99), outTail.GetValue(0).I64)
}

func TestNativeRoundTripListSpansSegments(t *testing.T) {
	typ := common.ListType(common.BigintType())
	vec := chunk.NewListVector(typ, 8, 3)
	long := make([]*chunk.Value, 0, 5)
	for i := 0; i < 5; i++ {
		long = append(long, chunk.BigintValue(int64(i*10)))
	}
	vals := []*chunk.Value{
		chunk.ListValue(typ, chunk.BigintValue(-1)),
		chunk.ListValue(typ, long...),
		chunk.NullValue(typ),
		chunk.ListValue(typ),
		chunk.ListValue(typ, chunk.BigintValue(7), chunk.NullValue(common.BigintType())),
	}
	for i, val := range vals {
		vec.SetValue(i, val)
	}
	rows := serializeRows(t, vec, len(vals))
	//length + validity + elements
	assert.Equal(t, 8+1+5*8, rows.sizes[1])
	assert.Equal(t, 0, rows.sizes[2])
	assert.Equal(t, 8+0, rows.sizes[3])

	out := chunk.NewListVector(typ, 8, 3)
	rows.deserialize(out)
	requireSameValues(t, vals, out)
}

func TestNativeRoundTripListOfVarchar(t *testing.T) {
	typ := common.ListType(common.VarcharType())
	vec := chunk.NewListVector(typ, 4, 2)
	vals := []*chunk.Value{
		chunk.ListValue(typ,
			chunk.VarcharValue("a"),
			chunk.NullValue(common.VarcharType()),
			chunk.VarcharValue("ccc")),
		chunk.ListValue(typ, chunk.VarcharValue("")),
	}
	for i, val := range vals {
		vec.SetValue(i, val)
	}
	rows := serializeRows(t, vec, len(vals))
	//length + validity + 3 sizes + strings
	assert.Equal(t, 8+1+3*8+(4+1)+(4+3), rows.sizes[0])

	out := chunk.NewListVector(typ, 4, 2)
	rows.deserialize(out)
	requireSameValues(t, vals, out)
}

func TestNativeSelectionAndOffset(t *testing.T) {
	vals := []*chunk.Value{
		chunk.VarcharValue("r0"),
		chunk.VarcharValue("row1"),
		chunk.VarcharValue("r2"),
		chunk.VarcharValue("rowthree"),
	}
	vec := chunk.NewFlatVectorFromValues(common.VarcharType(), vals)
	sel := chunk.NewSelectVector3([]int{1, 3})
	sizes := make([]int, 2)
	ComputeEntrySizes(vec, sizes, 4, 2, sel, 0)
	assert.Equal(t, []int{4 + 4, 4 + 8}, sizes)

	sizes = make([]int, 2)
	ComputeEntrySizes(vec, sizes, 4, 2, nil, 2)
	assert.Equal(t, []int{4 + 2, 4 + 8}, sizes)
}
