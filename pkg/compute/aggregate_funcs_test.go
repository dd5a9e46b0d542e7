package compute

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/storage"
	"github.com/daviszhen/rowagg/pkg/util"
)

// aggregateAll runs name over vals as one group. The values are split
// into two tables that are combined, so Combine is exercised too.
func aggregateAll(t *testing.T, name string, typ common.LType, vals ...*chunk.Value) *chunk.Value {
	args := []common.LType{typ}
	if name == "count_star" {
		args = nil
	}
	fun, err := GetAggrFunc(name, args)
	require.NoError(t, err)
	aggrs := []*AggrObject{NewAggrObject(fun)}

	mgr := storage.NewBufferManager(0)
	tables := make([]*GroupedAggrHashTable, 2)
	for i := range tables {
		tables[i], err = NewGroupedAggrHashTable([]common.LType{common.IntegerType()}, aggrs, 0, mgr)
		require.NoError(t, err)
		defer tables[i].Close()
	}

	half := len(vals) / 2
	for i, part := range [][]*chunk.Value{vals[:half], vals[half:]} {
		if len(part) == 0 {
			continue
		}
		groups := chunk.NewChunk([]common.LType{common.IntegerType()}, util.DefaultVectorSize)
		payload := chunk.NewChunk([]common.LType{typ}, util.DefaultVectorSize)
		for j, val := range part {
			groups.SetValue(0, j, chunk.IntegerValue(0))
			payload.SetValue(0, j, val)
		}
		groups.SetCard(len(part))
		payload.SetCard(len(part))
		if args == nil {
			payload = nil
		}
		_, err = tables[i].AddChunk(NewAggrHTAppendState(), groups, payload, nil)
		require.NoError(t, err)
	}
	require.NoError(t, tables[0].Combine(tables[1]))

	got := scanAll(t, tables[0])
	require.Len(t, got, 1)
	ret := got["0"][0]
	assert.Equal(t, fun.ReturnType().Id, ret.Typ.Id)
	return ret
}

func TestAggrSum(t *testing.T) {
	sum := aggregateAll(t, "sum", common.IntegerType(),
		chunk.IntegerValue(math.MaxInt32),
		chunk.NullValue(common.IntegerType()),
		chunk.IntegerValue(math.MaxInt32),
		chunk.IntegerValue(-2),
	)
	assert.True(t, hugeintValue(2*math.MaxInt32-2).Equal(sum), sum.String())

	big := aggregateAll(t, "sum", common.BigintType(),
		chunk.BigintValue(math.MaxInt64),
		chunk.BigintValue(math.MaxInt64),
	)
	assert.Equal(t, common.Hugeint{Lower: math.MaxUint64 - 1, Upper: 0}, big.I128)

	dbl := aggregateAll(t, "sum", common.DoubleType(),
		chunk.DoubleValue(1.5),
		chunk.DoubleValue(-0.25),
	)
	assert.Equal(t, 1.25, dbl.F64)

	decTyp := common.DecimalType(10, 2)
	dec := aggregateAll(t, "sum", decTyp,
		chunk.DecimalValue(150, 10, 2),
		chunk.DecimalValue(275, 10, 2),
	)
	assert.Equal(t, int64(425), dec.I64)
	assert.Equal(t, common.MaxDecimalWidth, dec.Typ.Width)
	assert.Equal(t, "4.25", dec.String())
}

func TestAggrSumOfNullsIsNull(t *testing.T) {
	for _, name := range []string{"sum", "min", "max", "avg"} {
		t.Run(name, func(t *testing.T) {
			ret := aggregateAll(t, name, common.BigintType(),
				chunk.NullValue(common.BigintType()),
				chunk.NullValue(common.BigintType()),
			)
			assert.True(t, ret.IsNull)
		})
	}
}

func TestAggrDecimalSumOverflowPanics(t *testing.T) {
	typ := common.DecimalType(18, 0)
	assert.PanicsWithValue(t, "decimal sum overflow", func() {
		aggregateAll(t, "sum", typ,
			chunk.DecimalValue(math.MaxInt64-1, 18, 0),
			chunk.DecimalValue(math.MaxInt64-1, 18, 0),
		)
	})
}

func TestAggrAvg(t *testing.T) {
	avg := aggregateAll(t, "avg", common.IntegerType(),
		chunk.IntegerValue(1),
		chunk.IntegerValue(2),
		chunk.NullValue(common.IntegerType()),
		chunk.IntegerValue(4),
	)
	assert.InDelta(t, 7.0/3, avg.F64, 1e-12)

	typ := common.DecimalType(10, 2)
	dec := aggregateAll(t, "avg", typ,
		chunk.DecimalValue(100, 10, 2),
		chunk.DecimalValue(200, 10, 2),
		chunk.DecimalValue(200, 10, 2),
	)
	assert.Equal(t, int64(167), dec.I64)
	assert.Equal(t, 2, dec.Typ.Scale)

	neg := aggregateAll(t, "avg", typ,
		chunk.DecimalValue(-100, 10, 2),
		chunk.DecimalValue(-200, 10, 2),
		chunk.DecimalValue(-200, 10, 2),
	)
	assert.Equal(t, int64(-167), neg.I64)
}

func TestAggrMinMax(t *testing.T) {
	vals := []*chunk.Value{
		chunk.DoubleValue(3),
		chunk.NullValue(common.DoubleType()),
		chunk.DoubleValue(-7.5),
		chunk.DoubleValue(math.Inf(1)),
		chunk.DoubleValue(0),
	}
	assert.Equal(t, -7.5, aggregateAll(t, "min", common.DoubleType(), vals...).F64)
	assert.Equal(t, math.Inf(1), aggregateAll(t, "max", common.DoubleType(), vals...).F64)

	ints := []*chunk.Value{
		chunk.IntegerValue(5),
		chunk.IntegerValue(math.MinInt32),
		chunk.IntegerValue(9),
	}
	assert.Equal(t, int64(math.MinInt32), aggregateAll(t, "MIN", common.IntegerType(), ints...).I64)
	assert.Equal(t, int64(9), aggregateAll(t, "max", common.IntegerType(), ints...).I64)
}

func TestAggrCount(t *testing.T) {
	vals := []*chunk.Value{
		chunk.VarcharValue("a"),
		chunk.NullValue(common.VarcharType()),
		chunk.VarcharValue(""),
		chunk.NullValue(common.VarcharType()),
	}
	cnt := aggregateAll(t, "count", common.VarcharType(), vals...)
	assert.False(t, cnt.IsNull)
	assert.Equal(t, int64(2), cnt.I64)

	star := aggregateAll(t, "count_star", common.VarcharType(), vals...)
	assert.Equal(t, int64(4), star.I64)

	nulls := aggregateAll(t, "count", common.VarcharType(), vals[1], vals[3])
	assert.False(t, nulls.IsNull, "count is never NULL")
	assert.Equal(t, int64(0), nulls.I64)
}

func TestGetAggrFunc(t *testing.T) {
	fun, err := GetAggrFunc("COUNT", nil)
	require.NoError(t, err)
	assert.Equal(t, "count_star", fun.Name())
	assert.Equal(t, common.LTID_BIGINT, fun.ReturnType().Id)

	fun, err = GetAggrFunc("sum", []common.LType{common.SmallintType()})
	require.NoError(t, err)
	assert.Equal(t, common.LTID_HUGEINT, fun.ReturnType().Id)
	assert.Equal(t, "sum(SMALLINT) -> HUGEINT", fun.String())

	fun, err = GetAggrFunc("avg", []common.LType{common.FloatType()})
	require.NoError(t, err)
	assert.Equal(t, common.LTID_DOUBLE, fun.ReturnType().Id)

	_, err = GetAggrFunc("median", []common.LType{common.IntegerType()})
	assert.ErrorContains(t, err, "unknown aggregate")
	_, err = GetAggrFunc("sum", []common.LType{common.VarcharType()})
	assert.Error(t, err)
	_, err = GetAggrFunc("min", []common.LType{common.IntegerType(), common.IntegerType()})
	assert.ErrorContains(t, err, "one argument")
}

func TestAggrObjectTypes(t *testing.T) {
	sum, err := GetSumAggr(common.IntegerType())
	require.NoError(t, err)
	aggrs := []*AggrObject{
		NewAggrObject(sum),
		NewAggrObject(GetCountStarAggr()),
		NewAggrObject(GetCountAggr(common.VarcharType())),
	}
	payload := PayloadTypes(aggrs)
	require.Len(t, payload, 2)
	assert.Equal(t, common.LTID_INTEGER, payload[0].Id)
	assert.Equal(t, common.LTID_VARCHAR, payload[1].Id)

	results := ResultTypes(aggrs)
	require.Len(t, results, 3)
	assert.Equal(t, common.LTID_HUGEINT, results[0].Id)
	assert.Equal(t, common.LTID_BIGINT, results[1].Id)
	assert.Equal(t, 0, aggrs[1].ChildCount())
	assert.Equal(t, sum.StateSize(), aggrs[0].PayloadSize())
}
