package compute

import (
	"math"
	"strings"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/storage"
	"github.com/daviszhen/rowagg/pkg/util"
)

func sumAggr(t *testing.T, typ common.LType) *AggrObject {
	fun, err := GetSumAggr(typ)
	require.NoError(t, err)
	return NewAggrObject(fun)
}

func hugeintValue(v int64) *chunk.Value {
	return chunk.HugeintValue(common.HugeintFromInt64(v))
}

// rowsChunk builds a chunk of the given rows.
func rowsChunk(types []common.LType, rows ...[]*chunk.Value) *chunk.Chunk {
	c := chunk.NewChunk(types, util.DefaultVectorSize)
	for i, row := range rows {
		for j, val := range row {
			c.SetValue(j, i, val)
		}
	}
	c.SetCard(len(rows))
	return c
}

// bigintChunk is a one column chunk of vals.
func bigintChunk(vals ...int64) *chunk.Chunk {
	c := chunk.NewChunk([]common.LType{common.BigintType()}, util.DefaultVectorSize)
	for i, v := range vals {
		c.SetValue(0, i, chunk.BigintValue(v))
	}
	c.SetCard(len(vals))
	return c
}

func newSumTable(t *testing.T, mgr *storage.BufferManager, initCap int) *GroupedAggrHashTable {
	ht, err := NewGroupedAggrHashTable(
		[]common.LType{common.BigintType()},
		[]*AggrObject{sumAggr(t, common.BigintType())},
		initCap,
		mgr)
	require.NoError(t, err)
	return ht
}

// scanAll reads every group of ht keyed by its group values joined by "|".
func scanAll(t *testing.T, ht *GroupedAggrHashTable) map[string][]*chunk.Value {
	layout := ht.Layout()
	groupCnt := layout.GroupCount()
	types := append(common.CopyLTypes(layout.GroupTypes()...), ResultTypes(layout.Aggregates())...)
	ret := make(map[string][]*chunk.Value)
	state := NewAggrHTScanState()
	for {
		result := chunk.NewChunk(types, util.DefaultVectorSize)
		if ht.Scan(state, result) == 0 {
			break
		}
		for i := 0; i < result.Card(); i++ {
			keys := make([]string, groupCnt)
			for j := 0; j < groupCnt; j++ {
				keys[j] = result.GetValue(j, i).String()
			}
			key := strings.Join(keys, "|")
			require.NotContains(t, ret, key, "group scanned twice")
			row := make([]*chunk.Value, 0, len(types)-groupCnt)
			for j := groupCnt; j < len(types); j++ {
				row = append(row, result.GetValue(j, i))
			}
			ret[key] = row
		}
	}
	assert.Equal(t, ht.Count(), state.Scanned())
	return ret
}

func requireSums(t *testing.T, want map[string]int64, got map[string][]*chunk.Value) {
	require.Len(t, got, len(want))
	for key, sum := range want {
		require.Contains(t, got, key)
		assert.Truef(t, hugeintValue(sum).Equal(got[key][0]),
			"group %s: want %d got %v", key, sum, got[key][0])
	}
}

func findAddresses(t *testing.T, ht *GroupedAggrHashTable, groups *chunk.Chunk) ([]unsafe.Pointer, int) {
	state := NewAggrHTAppendState()
	hashes := chunk.NewFlatVector(common.HashType(), util.DefaultVectorSize)
	groups.Hash(hashes)
	newCnt, err := ht.FindOrCreateGroups(state, groups, hashes, state.Addresses(), state.NewGroups())
	require.NoError(t, err)
	return GatherPointers(state.Addresses(), nil, groups.Card()), newCnt
}

func TestAggrHTGroupIdentityAcrossChunks(t *testing.T) {
	ht := newSumTable(t, storage.NewBufferManager(0), 0)
	defer ht.Close()
	state := NewAggrHTAppendState()

	newCnt, err := ht.AddChunk(state, bigintChunk(1, 2, 1, 3), bigintChunk(10, 20, 30, 40), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, newCnt)
	first := GatherPointers(state.Addresses(), nil, 4)
	assert.Equal(t, first[0], first[2])

	newCnt, err = ht.AddChunk(state, bigintChunk(3, 1, 4), bigintChunk(1, 1, 1), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, newCnt)
	assert.Equal(t, 2, state.NewGroups().GetIndex(0))
	second := GatherPointers(state.Addresses(), nil, 3)
	assert.Equal(t, first[3], second[0])
	assert.Equal(t, first[0], second[1])

	assert.Equal(t, 4, ht.Count())
	ht.Verify()
	requireSums(t, map[string]int64{"1": 41, "2": 20, "3": 41, "4": 1}, scanAll(t, ht))
}

func TestAggrHTAddressesStableAcrossResize(t *testing.T) {
	ht := newSumTable(t, storage.NewBufferManager(0), 16)
	defer ht.Close()
	assert.Equal(t, 16, ht.Capacity())
	assert.Equal(t, 10, ht.ResizeThreshold())

	head := bigintChunk(0, 1, 2, 3, 4, 5, 6, 7)
	before, newCnt := findAddresses(t, ht, head)
	require.Equal(t, 8, newCnt)

	vals := make([]int64, 0, 1000)
	for i := int64(8); i < 1000; i++ {
		vals = append(vals, i)
	}
	state := NewAggrHTAppendState()
	newCnt, err := ht.AddChunk(state, bigintChunk(vals...), bigintChunk(vals...), nil)
	require.NoError(t, err)
	assert.Equal(t, len(vals), newCnt)
	assert.Equal(t, 2048, ht.Capacity())
	assert.Equal(t, 1000, ht.Count())
	ht.Verify()

	after, newCnt := findAddresses(t, ht, head)
	assert.Equal(t, 0, newCnt)
	assert.Equal(t, before, after)

	require.NoError(t, ht.Resize(ht.Capacity()*4))
	ht.Verify()
	again, newCnt := findAddresses(t, ht, head)
	assert.Equal(t, 0, newCnt)
	assert.Equal(t, before, again)
}

func TestAggrHTSaltCollisionsAreNotMerged(t *testing.T) {
	ht, err := NewGroupedAggrHashTable(
		[]common.LType{common.VarcharType()},
		[]*AggrObject{sumAggr(t, common.BigintType())},
		16,
		storage.NewBufferManager(0))
	require.NoError(t, err)
	defer ht.Close()

	//a and b share slot and salt, c only the slot
	const h1 = uint64(0xABCD000000000005)
	const h2 = uint64(0x1234000000000005)
	groups := rowsChunk([]common.LType{common.VarcharType()},
		[]*chunk.Value{chunk.VarcharValue("a")},
		[]*chunk.Value{chunk.VarcharValue("b")},
		[]*chunk.Value{chunk.VarcharValue("c")},
		[]*chunk.Value{chunk.VarcharValue("a")},
	)
	hashes := chunk.NewFlatVector(common.HashType(), util.DefaultVectorSize)
	copy(chunk.GetSliceInPhyFormatFlat[uint64](hashes), []uint64{h1, h1, h2, h1})

	state := NewAggrHTAppendState()
	newCnt, err := ht.AddChunkWithHashes(state, groups, hashes, bigintChunk(1, 2, 3, 4), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, newCnt)
	assert.Equal(t, 3, ht.Count())

	entries := ht.entries()
	for slot := 5; slot <= 7; slot++ {
		assert.True(t, entries[slot].IsOccupied(), "slot %d", slot)
	}
	assert.False(t, entries[8].IsOccupied())
	assert.Equal(t, ExtractSalt(h1), entries[5].GetSalt())
	assert.Equal(t, ExtractSalt(h1), entries[6].GetSalt())
	assert.Equal(t, ExtractSalt(h2), entries[7].GetSalt())
	ht.Verify()

	requireSums(t, map[string]int64{"a": 5, "b": 2, "c": 3}, scanAll(t, ht))
}

func TestAggrHTCombineSums(t *testing.T) {
	mgr := storage.NewBufferManager(0)
	types := []common.LType{common.VarcharType()}
	newTable := func() *GroupedAggrHashTable {
		ht, err := NewGroupedAggrHashTable(types, []*AggrObject{sumAggr(t, common.BigintType())}, 0, mgr)
		require.NoError(t, err)
		return ht
	}
	a := newTable()
	defer a.Close()
	b := newTable()
	defer b.Close()

	_, err := a.AddChunk(NewAggrHTAppendState(),
		rowsChunk(types, []*chunk.Value{chunk.VarcharValue("x")}, []*chunk.Value{chunk.VarcharValue("y")}),
		bigintChunk(1, 2), nil)
	require.NoError(t, err)
	_, err = b.AddChunk(NewAggrHTAppendState(),
		rowsChunk(types, []*chunk.Value{chunk.VarcharValue("x")}),
		bigintChunk(3), nil)
	require.NoError(t, err)

	require.NoError(t, a.Combine(b))
	a.Verify()
	requireSums(t, map[string]int64{"x": 4, "y": 2}, scanAll(t, a))
	//the source is left intact
	requireSums(t, map[string]int64{"x": 3}, scanAll(t, b))
}

func TestAggrHTCombineManyGroups(t *testing.T) {
	mgr := storage.NewBufferManager(0)
	a := newSumTable(t, mgr, 16)
	defer a.Close()
	b := newSumTable(t, mgr, 16)
	defer b.Close()

	want := make(map[string]int64)
	var left, right []int64
	for i := int64(0); i < 3000; i++ {
		left = append(left, i)
		want[chunk.BigintValue(i).String()] += i
	}
	for i := int64(2000); i < 5000; i++ {
		right = append(right, i)
		want[chunk.BigintValue(i).String()] += i
	}
	for _, part := range [][]int64{left[:2048], left[2048:]} {
		_, err := a.AddChunk(NewAggrHTAppendState(), bigintChunk(part...), bigintChunk(part...), nil)
		require.NoError(t, err)
	}
	for _, part := range [][]int64{right[:2048], right[2048:]} {
		_, err := b.AddChunk(NewAggrHTAppendState(), bigintChunk(part...), bigintChunk(part...), nil)
		require.NoError(t, err)
	}

	require.NoError(t, a.Combine(b))
	assert.Equal(t, 5000, a.Count())
	a.Verify()
	requireSums(t, want, scanAll(t, a))
}

func TestAggrHTPartitionCoversAllGroups(t *testing.T) {
	mgr := storage.NewBufferManager(0)
	src := newSumTable(t, mgr, 0)
	defer src.Close()

	const n = 1500
	vals := make([]int64, n)
	for i := range vals {
		vals[i] = int64(i * 7)
	}
	_, err := src.AddChunk(NewAggrHTAppendState(), bigintChunk(vals...), bigintChunk(vals...), nil)
	require.NoError(t, err)

	const radixBits = 2
	targets := make([]*GroupedAggrHashTable, 1<<radixBits)
	for i := range targets {
		targets[i] = newSumTable(t, mgr, 0)
		defer targets[i].Close()
	}
	require.NoError(t, src.Partition(targets, radixBits, false))

	total := 0
	for p, target := range targets {
		total += target.Count()
		target.Verify()
		hashOffset := target.Layout().HashOffset()
		err = target.forEachRowBatch(func(rowLocs []unsafe.Pointer) error {
			for _, row := range rowLocs {
				hash := util.Load[uint64](util.PointerAdd(row, hashOffset))
				assert.Equal(t, p, PartitionIndex(hash, radixBits))
			}
			return nil
		})
		require.NoError(t, err)
	}
	assert.Equal(t, n, total)

	got := make(map[string][]*chunk.Value)
	for _, target := range targets {
		target.Finalize()
		for key, row := range scanAll(t, target) {
			got[key] = row
		}
	}
	want := make(map[string]int64)
	for _, v := range vals {
		want[chunk.BigintValue(v).String()] = v
	}
	requireSums(t, want, got)
}

func TestAggrHTPartitionFinalizesTargetsWhenSinkDone(t *testing.T) {
	mgr := storage.NewBufferManager(0)
	src := newSumTable(t, mgr, 0)
	defer src.Close()
	_, err := src.AddChunk(NewAggrHTAppendState(), bigintChunk(1, 2, 3), bigintChunk(1, 2, 3), nil)
	require.NoError(t, err)

	targets := []*GroupedAggrHashTable{newSumTable(t, mgr, 0)}
	defer targets[0].Close()
	require.NoError(t, src.Partition(targets, 0, true))
	assert.True(t, targets[0].Finalized())
	assert.False(t, src.Finalized())
	requireSums(t, map[string]int64{"1": 1, "2": 2, "3": 3}, scanAll(t, targets[0]))
}

func TestPartitionIndexUsesTopBits(t *testing.T) {
	assert.Equal(t, 0, PartitionIndex(math.MaxUint64, 0))
	assert.Equal(t, 1, PartitionIndex(1<<63, 1))
	assert.Equal(t, 3, PartitionIndex(0xC000000000000000, 2))
	assert.Equal(t, 2, PartitionIndex(0x8FFFFFFFFFFFFFFF, 2))
	assert.Equal(t, 0xFF, PartitionIndex(math.MaxUint64, 8))
}

func TestAggrHTAppendDisjointGroups(t *testing.T) {
	mgr := storage.NewBufferManager(0)
	types := []common.LType{common.VarcharType(), common.IntegerType()}
	newTable := func() *GroupedAggrHashTable {
		ht, err := NewGroupedAggrHashTable(types, []*AggrObject{sumAggr(t, common.BigintType())}, 16, mgr)
		require.NoError(t, err)
		return ht
	}
	a := newTable()
	defer a.Close()
	b := newTable()

	_, err := a.AddChunk(NewAggrHTAppendState(),
		rowsChunk(types,
			[]*chunk.Value{chunk.VarcharValue("left group with a long name"), chunk.IntegerValue(1)},
			[]*chunk.Value{chunk.NullValue(common.VarcharType()), chunk.IntegerValue(2)},
		),
		bigintChunk(10, 20), nil)
	require.NoError(t, err)

	rows := make([][]*chunk.Value, 0, 20)
	payload := make([]int64, 0, 20)
	want := map[string]int64{
		"left group with a long name|1": 10,
		"NULL|2":                        20,
	}
	for i := 0; i < 20; i++ {
		name := strings.Repeat("r", i+1)
		rows = append(rows, []*chunk.Value{chunk.VarcharValue(name), chunk.IntegerValue(int32(i))})
		payload = append(payload, int64(i))
		want[name+"|"+chunk.IntegerValue(int32(i)).String()] = int64(i)
	}
	_, err = b.AddChunk(NewAggrHTAppendState(), rowsChunk(types, rows...), bigintChunk(payload...), nil)
	require.NoError(t, err)

	require.NoError(t, a.Append(b))
	//strings were copied, b can go
	b.Close()

	assert.Equal(t, 22, a.Count())
	a.Verify()
	requireSums(t, want, scanAll(t, a))

	//appended groups are found again
	_, newCnt := findAddresses(t, a, rowsChunk(types, rows[3]))
	assert.Equal(t, 0, newCnt)
}

func TestAggrHTFetchAggregates(t *testing.T) {
	fun, err := GetAvgAggr(common.BigintType())
	require.NoError(t, err)
	ht, err := NewGroupedAggrHashTable(
		[]common.LType{common.BigintType()},
		[]*AggrObject{sumAggr(t, common.BigintType()), NewAggrObject(fun)},
		0,
		storage.NewBufferManager(0))
	require.NoError(t, err)
	defer ht.Close()

	payload := rowsChunk([]common.LType{common.BigintType(), common.BigintType()},
		[]*chunk.Value{chunk.BigintValue(1), chunk.BigintValue(1)},
		[]*chunk.Value{chunk.BigintValue(2), chunk.BigintValue(2)},
		[]*chunk.Value{chunk.BigintValue(4), chunk.BigintValue(4)},
	)
	_, err = ht.AddChunk(NewAggrHTAppendState(), bigintChunk(7, 8, 7), payload, nil)
	require.NoError(t, err)

	result := chunk.NewChunk(ResultTypes(ht.Layout().Aggregates()), util.DefaultVectorSize)
	require.NoError(t, ht.FetchAggregates(bigintChunk(8, 7), result))
	require.Equal(t, 2, result.Card())
	assert.True(t, hugeintValue(2).Equal(result.GetValue(0, 0)))
	assert.True(t, hugeintValue(5).Equal(result.GetValue(0, 1)))
	assert.Equal(t, 2.0, result.GetValue(1, 0).F64)
	assert.Equal(t, 2.5, result.GetValue(1, 1).F64)
	assert.Equal(t, 2, ht.Count())

	//a missing group fails before the table changes
	assert.Panics(t, func() {
		_ = ht.FetchAggregates(bigintChunk(8, 9), result)
	})
	assert.Equal(t, 2, ht.Count())
	ht.Verify()
	requireSums(t, map[string]int64{"7": 5, "8": 2}, scanAll(t, ht))
}

func TestAggrHTFilterUpdatesSelectedAggregates(t *testing.T) {
	ht, err := NewGroupedAggrHashTable(
		[]common.LType{common.BigintType()},
		[]*AggrObject{
			sumAggr(t, common.BigintType()),
			NewAggrObject(GetCountStarAggr()),
			sumAggr(t, common.BigintType()),
		},
		0,
		storage.NewBufferManager(0))
	require.NoError(t, err)
	defer ht.Close()

	payload := rowsChunk([]common.LType{common.BigintType(), common.BigintType()},
		[]*chunk.Value{chunk.BigintValue(1), chunk.BigintValue(100)},
		[]*chunk.Value{chunk.BigintValue(2), chunk.BigintValue(200)},
	)
	_, err = ht.AddChunk(NewAggrHTAppendState(), bigintChunk(1, 1), payload, []int{1, 2})
	require.NoError(t, err)

	got := scanAll(t, ht)
	require.Contains(t, got, "1")
	row := got["1"]
	assert.True(t, row[0].IsNull, "sum not updated stays NULL")
	assert.Equal(t, int64(2), row[1].I64)
	assert.True(t, hugeintValue(300).Equal(row[2]))
}

func TestAggrHTCountStarWithoutPayload(t *testing.T) {
	ht, err := NewGroupedAggrHashTable(
		[]common.LType{common.BigintType()},
		[]*AggrObject{NewAggrObject(GetCountStarAggr())},
		0,
		storage.NewBufferManager(0))
	require.NoError(t, err)
	defer ht.Close()
	assert.Empty(t, ht.PayloadTypes())

	_, err = ht.AddChunk(NewAggrHTAppendState(), bigintChunk(5, 6, 5, 5), nil, nil)
	require.NoError(t, err)
	got := scanAll(t, ht)
	assert.Equal(t, int64(3), got["5"][0].I64)
	assert.Equal(t, int64(1), got["6"][0].I64)
}

func TestAggrHTNullAndFloatGroups(t *testing.T) {
	types := []common.LType{common.DoubleType()}
	ht, err := NewGroupedAggrHashTable(types, []*AggrObject{sumAggr(t, common.BigintType())}, 0,
		storage.NewBufferManager(0))
	require.NoError(t, err)
	defer ht.Close()

	groups := rowsChunk(types,
		[]*chunk.Value{chunk.NullValue(common.DoubleType())},
		[]*chunk.Value{chunk.DoubleValue(0)},
		[]*chunk.Value{chunk.DoubleValue(math.Copysign(0, -1))},
		[]*chunk.Value{chunk.NullValue(common.DoubleType())},
		[]*chunk.Value{chunk.DoubleValue(math.NaN())},
		[]*chunk.Value{chunk.DoubleValue(math.NaN())},
	)
	_, err = ht.AddChunk(NewAggrHTAppendState(), groups, bigintChunk(1, 2, 3, 4, 5, 6), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, ht.Count())

	got := scanAll(t, ht)
	requireSums(t, map[string]int64{"NULL": 5, "0": 5, "NaN": 11}, got)
}

func TestAggrHTVarcharGroupsAcrossBlocks(t *testing.T) {
	ht, err := NewGroupedAggrHashTable(
		[]common.LType{common.VarcharType()},
		[]*AggrObject{NewAggrObject(GetCountStarAggr())},
		0,
		storage.NewBufferManager(0))
	require.NoError(t, err)
	defer ht.Close()

	//large strings need several heap blocks
	long := strings.Repeat("z", 4096)
	state := NewAggrHTAppendState()
	want := make(map[string]int64)
	for round := 0; round < 2; round++ {
		rows := make([][]*chunk.Value, 0, 1000)
		for i := 0; i < 1000; i++ {
			name := long + chunk.IntegerValue(int32(i)).String()
			rows = append(rows, []*chunk.Value{chunk.VarcharValue(name)})
			want[name]++
		}
		_, err = ht.AddChunk(state, rowsChunk([]common.LType{common.VarcharType()}, rows...), nil, nil)
		require.NoError(t, err)
	}
	assert.Equal(t, 1000, ht.Count())
	ht.Verify()

	ht.Finalize()
	got := scanAll(t, ht)
	require.Len(t, got, len(want))
	for key, cnt := range want {
		assert.Equal(t, cnt, got[key][0].I64)
	}
}

func TestAggrHTFinalizeIsIdempotentAndFinal(t *testing.T) {
	ht := newSumTable(t, storage.NewBufferManager(0), 0)
	defer ht.Close()
	_, err := ht.AddChunk(NewAggrHTAppendState(), bigintChunk(1), bigintChunk(1), nil)
	require.NoError(t, err)

	ht.Finalize()
	ht.Finalize()
	assert.True(t, ht.Finalized())
	requireSums(t, map[string]int64{"1": 1}, scanAll(t, ht))
	//a second scan sees the same rows
	requireSums(t, map[string]int64{"1": 1}, scanAll(t, ht))

	assert.Panics(t, func() {
		_, _ = ht.AddChunk(NewAggrHTAppendState(), bigintChunk(2), bigintChunk(2), nil)
	})
}

func TestAggrHTOutOfMemory(t *testing.T) {
	mgr := storage.NewBufferManager(int64(storage.BLOCK_SIZE))
	ht := newSumTable(t, mgr, 16)
	defer ht.Close()

	_, err := ht.AddChunk(NewAggrHTAppendState(), bigintChunk(1, 2), bigintChunk(1, 2), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrOutOfMemory)
	assert.Equal(t, 0, ht.Count())
	ht.Verify()
}

func TestAggrHTResizeFailureKeepsGroups(t *testing.T) {
	ht := newSumTable(t, storage.NewBufferManager(0), 16)
	defer ht.Close()
	state := NewAggrHTAppendState()
	_, err := ht.AddChunk(state, bigintChunk(0, 1, 2, 3, 4, 5, 6, 7), bigintChunk(1, 1, 1, 1, 1, 1, 1, 1), nil)
	require.NoError(t, err)

	util.EnableFaults(util.FaultScopeStorage)
	defer util.DisableFaults(util.FaultScopeStorage)
	util.RegisterFault(util.FaultScopeStorage, storage.FaultReserve, nil, func([]string) error {
		return storage.ErrOutOfMemory
	})

	vals := make([]int64, 0, 100)
	for i := int64(100); i < 200; i++ {
		vals = append(vals, i)
	}
	_, err = ht.AddChunk(state, bigintChunk(vals...), bigintChunk(vals...), nil)
	assert.ErrorIs(t, err, storage.ErrOutOfMemory)
	assert.Equal(t, 16, ht.Capacity())
	assert.Equal(t, 8, ht.Count())
	ht.Verify()

	//existing groups need no memory
	newCnt, err := ht.AddChunk(state, bigintChunk(0, 7), bigintChunk(10, 10), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, newCnt)

	util.DisableFaults(util.FaultScopeStorage)
	newCnt, err = ht.AddChunk(state, bigintChunk(vals...), bigintChunk(vals...), nil)
	require.NoError(t, err)
	assert.Equal(t, len(vals), newCnt)
	ht.Verify()

	want := map[string]int64{"0": 11, "1": 1, "2": 1, "3": 1, "4": 1, "5": 1, "6": 1, "7": 11}
	for _, v := range vals {
		want[chunk.BigintValue(v).String()] = v
	}
	requireSums(t, want, scanAll(t, ht))
}

func TestAggrHTLayoutTree(t *testing.T) {
	ht := newSumTable(t, storage.NewBufferManager(0), 0)
	defer ht.Close()
	layout := ht.Layout()
	assert.Equal(t, 0, layout.RowWidth()%8)
	assert.Greater(t, layout.AggrOffset(), layout.HashOffset())
	tree := layout.Tree().String()
	assert.Contains(t, tree, "hash")
	assert.Contains(t, tree, "sum")
}

// addBigintGroups adds the groups [from,to) with their own value as payload.
func addBigintGroups(t *testing.T, ht *GroupedAggrHashTable, state *AggrHTAppendState, from, to int64) {
	for lo := from; lo < to; lo += int64(util.DefaultVectorSize) {
		hi := min(lo+int64(util.DefaultVectorSize), to)
		vals := make([]int64, 0, hi-lo)
		for v := lo; v < hi; v++ {
			vals = append(vals, v)
		}
		_, err := ht.AddChunk(state, bigintChunk(vals...), bigintChunk(vals...), nil)
		require.NoError(t, err)
	}
}

func TestAggrHTFailedAddChunkAcrossBlocksAddsNoGroups(t *testing.T) {
	ht := newSumTable(t, storage.NewBufferManager(0), 1<<15)
	defer ht.Close()
	blockCap := int(storage.BLOCK_SIZE) / ht.Layout().RowWidth()
	state := NewAggrHTAppendState()
	addBigintGroups(t, ht, state, 0, int64(blockCap-1))

	//one new row fits into the last block
	failReserve(t)
	_, err := ht.AddChunk(state, bigintChunk(-1, -2), bigintChunk(-1, -2), nil)
	assert.ErrorIs(t, err, storage.ErrOutOfMemory)
	assert.Equal(t, blockCap-1, ht.Count())
	ht.Verify()
	assert.Len(t, scanAll(t, ht), blockCap-1)

	util.DisableFaults(util.FaultScopeStorage)
	newCnt, err := ht.AddChunk(state, bigintChunk(-1, -2), bigintChunk(-1, -2), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, newCnt)
	assert.Equal(t, blockCap+1, ht.Count())
	require.NoError(t, ht.Resize(ht.Capacity()*2))
	ht.Verify()
	got := scanAll(t, ht)
	assert.Len(t, got, blockCap+1)
	assert.True(t, hugeintValue(-2).Equal(got["-2"][0]))
}

func TestAggrHTFailureInLaterPassDropsEarlierPasses(t *testing.T) {
	ht := newSumTable(t, storage.NewBufferManager(0), 1<<15)
	defer ht.Close()
	blockCap := int(storage.BLOCK_SIZE) / ht.Layout().RowWidth()
	state := NewAggrHTAppendState()
	addBigintGroups(t, ht, state, 0, int64(blockCap-1))

	//same slot, different salts: -2 is created one pass after -1
	hashes := chunk.NewFlatVector(common.HashType(), util.DefaultVectorSize)
	copy(chunk.GetSliceInPhyFormatFlat[uint64](hashes), []uint64{
		0x0001000000000005,
		0x0002000000000005,
	})
	failReserve(t)
	_, err := ht.AddChunkWithHashes(state, bigintChunk(-1, -2), hashes, bigintChunk(1, 2), nil)
	assert.ErrorIs(t, err, storage.ErrOutOfMemory)
	assert.Equal(t, blockCap-1, ht.Count())
	ht.Verify()
	got := scanAll(t, ht)
	assert.Len(t, got, blockCap-1)
	assert.NotContains(t, got, "-1")

	util.DisableFaults(util.FaultScopeStorage)
	newCnt, err := ht.AddChunkWithHashes(state, bigintChunk(-1, -2), hashes, bigintChunk(1, 2), nil)
	require.NoError(t, err)
	assert.Equal(t, 2, newCnt)
	ht.Verify()
	got = scanAll(t, ht)
	assert.Len(t, got, blockCap+1)
	assert.True(t, hugeintValue(1).Equal(got["-1"][0]))
	assert.True(t, hugeintValue(2).Equal(got["-2"][0]))
}

// fullHeapTable holds one VARCHAR group that leaves 10 bytes of its heap
// block free.
func fullHeapTable(t *testing.T) *GroupedAggrHashTable {
	ht, err := NewGroupedAggrHashTable(
		[]common.LType{common.VarcharType()},
		[]*AggrObject{NewAggrObject(GetCountStarAggr())},
		0,
		storage.NewBufferManager(0))
	require.NoError(t, err)
	big := strings.Repeat("h", int(storage.BLOCK_SIZE)-common.Int32Size-10)
	groups := rowsChunk([]common.LType{common.VarcharType()}, []*chunk.Value{chunk.VarcharValue(big)})
	_, err = ht.AddChunk(NewAggrHTAppendState(), groups, nil, nil)
	require.NoError(t, err)
	require.Len(t, ht._stringHeap.Blocks(), 1)
	return ht
}

func TestAggrHTHeapFailureAfterRowsDropsRows(t *testing.T) {
	ht := fullHeapTable(t)
	defer ht.Close()
	groups := rowsChunk([]common.LType{common.VarcharType()},
		[]*chunk.Value{chunk.VarcharValue(strings.Repeat("s", 20))})

	//the row fits into the data block, the string does not fit the heap
	failReserve(t)
	_, err := ht.AddChunk(NewAggrHTAppendState(), groups, nil, nil)
	assert.ErrorIs(t, err, storage.ErrOutOfMemory)
	assert.Equal(t, 1, ht.Count())
	ht.Verify()
	assert.Len(t, scanAll(t, ht), 1)

	util.DisableFaults(util.FaultScopeStorage)
	newCnt, err := ht.AddChunk(NewAggrHTAppendState(), groups, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, newCnt)
	ht.Verify()
	got := scanAll(t, ht)
	require.Contains(t, got, strings.Repeat("s", 20))
	assert.Equal(t, int64(1), got[strings.Repeat("s", 20)][0].I64)
}

func TestAggrHTAppendHeapFailureDropsRows(t *testing.T) {
	ht := fullHeapTable(t)
	defer ht.Close()
	src, err := NewGroupedAggrHashTable(
		[]common.LType{common.VarcharType()},
		[]*AggrObject{NewAggrObject(GetCountStarAggr())},
		0,
		storage.NewBufferManager(0))
	require.NoError(t, err)
	defer src.Close()
	groups := rowsChunk([]common.LType{common.VarcharType()},
		[]*chunk.Value{chunk.VarcharValue(strings.Repeat("s", 20))},
		[]*chunk.Value{chunk.NullValue(common.VarcharType())})
	_, err = src.AddChunk(NewAggrHTAppendState(), groups, nil, nil)
	require.NoError(t, err)

	failReserve(t)
	err = ht.Append(src)
	assert.ErrorIs(t, err, storage.ErrOutOfMemory)
	assert.Equal(t, 1, ht.Count())
	ht.Verify()
	assert.Len(t, scanAll(t, ht), 1)

	util.DisableFaults(util.FaultScopeStorage)
	require.NoError(t, ht.Append(src))
	assert.Equal(t, 3, ht.Count())
	ht.Verify()
	got := scanAll(t, ht)
	assert.Contains(t, got, "NULL")
	assert.Contains(t, got, strings.Repeat("s", 20))
}

func TestAggrHTNestedGroups(t *testing.T) {
	structTyp := common.StructType(
		[]string{"a", "b"},
		[]common.LType{common.IntegerType(), common.VarcharType()})
	listTyp := common.ListType(common.IntegerType())
	types := []common.LType{structTyp, listTyp}
	newTable := func() *GroupedAggrHashTable {
		ht, err := NewGroupedAggrHashTable(types,
			[]*AggrObject{NewAggrObject(GetCountStarAggr())},
			0,
			storage.NewBufferManager(0))
		require.NoError(t, err)
		return ht
	}
	s := func(a, b *chunk.Value) *chunk.Value {
		return chunk.StructValue(structTyp, a, b)
	}
	l := func(elems ...*chunk.Value) *chunk.Value {
		return chunk.ListValue(listTyp, elems...)
	}
	one := chunk.IntegerValue(1)
	two := chunk.IntegerValue(2)
	x := chunk.VarcharValue("x")
	nullInt := chunk.NullValue(common.IntegerType())
	nullStr := chunk.NullValue(common.VarcharType())

	distinct := [][]*chunk.Value{
		{s(one, x), l(one, two)},
		{s(one, nullStr), l(one, nullInt)},
		{chunk.NullValue(structTyp), chunk.NullValue(listTyp)},
		{s(nullInt, nullStr), l()},
		{s(one, x), l(two, one)},
	}
	rows := append([][]*chunk.Value{}, distinct...)
	rows = append(rows, distinct[0], distinct[1], distinct[2])

	ht := newTable()
	defer ht.Close()
	state := NewAggrHTAppendState()
	newCnt, err := ht.AddChunk(state, rowsChunk(types, rows...), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 5, newCnt)
	//equal values of a new chunk find their groups
	newCnt, err = ht.AddChunk(state, rowsChunk(types, distinct[3], distinct[4]), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, newCnt)
	ht.Verify()

	want := []int64{2, 2, 2, 2, 2}
	fetch := func(ht *GroupedAggrHashTable) {
		result := chunk.NewChunk(ResultTypes(ht.Layout().Aggregates()), util.DefaultVectorSize)
		require.NoError(t, ht.FetchAggregates(rowsChunk(types, distinct...), result))
		for i, cnt := range want {
			assert.Equal(t, cnt, result.GetValue(0, i).I64, "group %d", i)
		}
	}
	fetch(ht)

	got := scanAll(t, ht)
	require.Len(t, got, 5)
	assert.Contains(t, got, "{a: 1, b: x}|[1, 2]")
	assert.Contains(t, got, "{a: 1, b: NULL}|[1, NULL]")
	assert.Contains(t, got, "NULL|NULL")
	assert.Contains(t, got, "{a: NULL, b: NULL}|[]")

	combined := newTable()
	defer combined.Close()
	require.NoError(t, combined.Combine(ht))
	require.NoError(t, combined.Combine(ht))
	want = []int64{4, 4, 4, 4, 4}
	fetch(combined)

	appended := newTable()
	defer appended.Close()
	require.NoError(t, appended.Append(ht))
	appended.Verify()
	want = []int64{2, 2, 2, 2, 2}
	fetch(appended)
}
