package compute

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/storage"
	"github.com/daviszhen/rowagg/pkg/util"
)

// ChunkReader fills the chunk with the next batch. It returns false at
// the end of the input.
type ChunkReader func(*chunk.Chunk) (bool, error)

type ParallelOptions struct {
	Workers         int
	RadixBits       int
	InitialCapacity int
	//check the directory of every result table before finalizing
	Verify bool
}

// ParallelAggregator runs a grouped aggregation with one hash table per
// worker. The worker tables are merged into one table, or into
// 2^RadixBits tables each holding the groups of one hash partition.
type ParallelAggregator struct {
	_inputTypes  []common.LType
	_groupCols   []int
	_payloadCols []int
	_groupTypes  []common.LType
	_payloadTyps []common.LType
	_aggregates  []*AggrObject
	_opts        ParallelOptions
	_bufMgr      *storage.BufferManager
}

// NewParallelAggregator groups input rows by the columns groupCols and
// feeds the columns payloadCols, in aggregate argument order, to the
// aggregates.
func NewParallelAggregator(
	inputTypes []common.LType,
	groupCols []int,
	payloadCols []int,
	aggregates []*AggrObject,
	opts ParallelOptions,
	bufMgr *storage.BufferManager,
) (*ParallelAggregator, error) {
	if len(groupCols) == 0 {
		return nil, fmt.Errorf("no group columns")
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.RadixBits < 0 || opts.RadixBits > 10 {
		return nil, fmt.Errorf("radix bits %d out of range [0,10]", opts.RadixBits)
	}
	ret := &ParallelAggregator{
		_inputTypes:  inputTypes,
		_groupCols:   groupCols,
		_payloadCols: payloadCols,
		_aggregates:  aggregates,
		_opts:        opts,
		_bufMgr:      bufMgr,
	}
	for _, col := range groupCols {
		if col < 0 || col >= len(inputTypes) {
			return nil, fmt.Errorf("group column %d out of range", col)
		}
		ret._groupTypes = append(ret._groupTypes, inputTypes[col])
	}
	for _, col := range payloadCols {
		if col < 0 || col >= len(inputTypes) {
			return nil, fmt.Errorf("payload column %d out of range", col)
		}
		ret._payloadTyps = append(ret._payloadTyps, inputTypes[col])
	}
	want := PayloadTypes(aggregates)
	if len(want) != len(ret._payloadTyps) {
		return nil, fmt.Errorf("aggregates take %d arguments, got %d payload columns",
			len(want), len(ret._payloadTyps))
	}
	for i, typ := range want {
		if !typ.Equal(ret._payloadTyps[i]) {
			return nil, fmt.Errorf("argument %d: want %v, got %v", i, typ, ret._payloadTyps[i])
		}
	}
	return ret, nil
}

// ResultTypes are the group types followed by the aggregate result types.
func (pa *ParallelAggregator) ResultTypes() []common.LType {
	ret := common.CopyLTypes(pa._groupTypes...)
	return append(ret, ResultTypes(pa._aggregates)...)
}

func (pa *ParallelAggregator) GroupTypes() []common.LType {
	return pa._groupTypes
}

func (pa *ParallelAggregator) newTable() (*GroupedAggrHashTable, error) {
	return NewGroupedAggrHashTable(pa._groupTypes, pa._aggregates, pa._opts.InitialCapacity, pa._bufMgr)
}

type inputBatch struct {
	groups  *chunk.Chunk
	payload *chunk.Chunk
}

// Run reads the input until exhausted and returns the finalized result
// tables. The caller scans and closes them.
func (pa *ParallelAggregator) Run(ctx context.Context, next ChunkReader) ([]*GroupedAggrHashTable, error) {
	workerTables, err := pa.sink(ctx, next)
	if err != nil {
		closeTables(workerTables)
		return nil, err
	}
	var results []*GroupedAggrHashTable
	if pa._opts.RadixBits == 0 {
		results, err = pa.combineAll(workerTables)
	} else {
		results, err = pa.partitionAll(ctx, workerTables)
	}
	if err != nil {
		return nil, err
	}
	for _, table := range results {
		if pa._opts.Verify {
			table.Verify()
		}
		table.Finalize()
	}
	return results, nil
}

func (pa *ParallelAggregator) sink(ctx context.Context, next ChunkReader) ([]*GroupedAggrHashTable, error) {
	tables := make([]*GroupedAggrHashTable, pa._opts.Workers)
	for i := range tables {
		table, err := pa.newTable()
		if err != nil {
			return tables, err
		}
		tables[i] = table
	}

	g, gctx := errgroup.WithContext(ctx)
	batches := make(chan inputBatch, pa._opts.Workers)

	g.Go(func() (retErr error) {
		defer close(batches)
		defer func() {
			if xre := recover(); xre != nil {
				retErr = util.ConvertPanicError(xre)
			}
		}()
		for {
			input := chunk.NewChunk(pa._inputTypes, util.DefaultVectorSize)
			ok, err := next(input)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			if input.Card() == 0 {
				continue
			}
			batch := inputBatch{
				groups:  chunk.NewChunk(pa._groupTypes, util.DefaultVectorSize),
				payload: chunk.NewChunk(pa._payloadTyps, util.DefaultVectorSize),
			}
			batch.groups.ReferenceIndice(input, pa._groupCols)
			batch.payload.ReferenceIndice(input, pa._payloadCols)
			select {
			case batches <- batch:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	for w := 0; w < pa._opts.Workers; w++ {
		table := tables[w]
		g.Go(func() (retErr error) {
			defer func() {
				if xre := recover(); xre != nil {
					retErr = util.ConvertPanicError(xre)
				}
			}()
			state := NewAggrHTAppendState()
			rows := 0
			for batch := range batches {
				_, err := table.AddChunk(state, batch.groups, batch.payload, nil)
				if err != nil {
					return err
				}
				rows += batch.groups.Card()
			}
			util.Debug("aggregate worker done",
				zap.Int("worker", w),
				zap.Int("rows", rows),
				zap.Int("groups", table.Count()),
				util.GoID())
			return nil
		})
	}
	return tables, g.Wait()
}

func (pa *ParallelAggregator) combineAll(tables []*GroupedAggrHashTable) ([]*GroupedAggrHashTable, error) {
	final := tables[0]
	for _, table := range tables[1:] {
		err := final.Combine(table)
		if err != nil {
			closeTables(tables)
			return nil, err
		}
		table.Close()
	}
	return []*GroupedAggrHashTable{final}, nil
}

func (pa *ParallelAggregator) partitionAll(
	ctx context.Context,
	tables []*GroupedAggrHashTable,
) ([]*GroupedAggrHashTable, error) {
	partCnt := 1 << pa._opts.RadixBits
	parts := make([][]*GroupedAggrHashTable, len(tables))
	defer func() {
		for _, ps := range parts {
			closeTables(ps)
		}
	}()

	for w := range tables {
		parts[w] = make([]*GroupedAggrHashTable, partCnt)
		for p := range parts[w] {
			part, err := pa.newTable()
			if err != nil {
				closeTables(tables)
				return nil, err
			}
			parts[w][p] = part
		}
	}

	g, _ := errgroup.WithContext(ctx)
	for w, table := range tables {
		targets := parts[w]
		g.Go(func() (retErr error) {
			defer func() {
				if xre := recover(); xre != nil {
					retErr = util.ConvertPanicError(xre)
				}
			}()
			defer table.Close()
			return table.Partition(targets, pa._opts.RadixBits, false)
		})
	}
	err := g.Wait()
	if err != nil {
		return nil, err
	}

	results := make([]*GroupedAggrHashTable, partCnt)
	g, _ = errgroup.WithContext(ctx)
	for p := 0; p < partCnt; p++ {
		g.Go(func() (retErr error) {
			defer func() {
				if xre := recover(); xre != nil {
					retErr = util.ConvertPanicError(xre)
				}
			}()
			final := parts[0][p]
			for w := 1; w < len(parts); w++ {
				err := final.Combine(parts[w][p])
				if err != nil {
					return err
				}
			}
			results[p] = final
			return nil
		})
	}
	err = g.Wait()
	if err != nil {
		return nil, err
	}
	//the first worker's parts became the results
	parts[0] = nil
	util.Debug("aggregate partitions combined",
		zap.Int("partitions", partCnt),
		zap.Int("workers", len(tables)))
	return results, nil
}

func closeTables(tables []*GroupedAggrHashTable) {
	for _, table := range tables {
		if table != nil {
			table.Close()
		}
	}
}

// ScanTables scans every table into chunks of resultTypes.
func ScanTables(tables []*GroupedAggrHashTable, resultTypes []common.LType, fn func(*chunk.Chunk) error) error {
	for _, table := range tables {
		state := NewAggrHTScanState()
		for {
			result := chunk.NewChunk(resultTypes, util.DefaultVectorSize)
			if table.Scan(state, result) == 0 {
				break
			}
			err := fn(result)
			if err != nil {
				state.Close()
				return err
			}
		}
	}
	return nil
}
