package compute

import (
	"cmp"
	"fmt"
	"math"
	"strings"
	"unsafe"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/util"
)

type aggrStateSize func() int
type aggrInit func(pointer unsafe.Pointer)
type aggrUpdate func(inputs []*chunk.Vector, data *AggrInputData, inputCount int, states *chunk.Vector, count int)
type aggrCombine func(source *chunk.Vector, target *chunk.Vector, data *AggrInputData, count int)
type aggrFinalize func(states *chunk.Vector, data *AggrInputData, result *chunk.Vector, count int, offset int)

// AggrFunc is an aggregate function over states in row memory. The hash
// table only knows the state size and the four entry points.
type AggrFunc struct {
	_name      string
	_args      []common.LType
	_retType   common.LType
	_stateSize aggrStateSize
	_init      aggrInit
	_update    aggrUpdate
	_combine   aggrCombine
	_finalize  aggrFinalize
}

func (fun *AggrFunc) Name() string {
	return fun._name
}

func (fun *AggrFunc) Args() []common.LType {
	return fun._args
}

func (fun *AggrFunc) ReturnType() common.LType {
	return fun._retType
}

func (fun *AggrFunc) StateSize() int {
	return fun._stateSize()
}

func (fun *AggrFunc) String() string {
	args := make([]string, len(fun._args))
	for i, arg := range fun._args {
		args[i] = arg.String()
	}
	return fmt.Sprintf("%s(%s) -> %v", fun._name, strings.Join(args, ", "), fun._retType)
}

type AggrObject struct {
	_name        string
	_func        *AggrFunc
	_childCount  int
	_payloadSize int
	_retType     common.LType
}

func NewAggrObject(fun *AggrFunc) *AggrObject {
	return &AggrObject{
		_name:        fun._name,
		_func:        fun,
		_childCount:  len(fun._args),
		_payloadSize: fun._stateSize(),
		_retType:     fun._retType,
	}
}

func (aggr *AggrObject) Func() *AggrFunc {
	return aggr._func
}

func (aggr *AggrObject) ChildCount() int {
	return aggr._childCount
}

func (aggr *AggrObject) PayloadSize() int {
	return aggr._payloadSize
}

func (aggr *AggrObject) ReturnType() common.LType {
	return aggr._retType
}

// PayloadTypes are the argument types of aggrObjs in order.
func PayloadTypes(aggrObjs []*AggrObject) []common.LType {
	ret := make([]common.LType, 0)
	for _, aggr := range aggrObjs {
		ret = append(ret, aggr._func._args...)
	}
	return ret
}

// ResultTypes are the return types of aggrObjs in order.
func ResultTypes(aggrObjs []*AggrObject) []common.LType {
	ret := make([]common.LType, 0, len(aggrObjs))
	for _, aggr := range aggrObjs {
		ret = append(ret, aggr._retType)
	}
	return ret
}

func StateSize[T any]() int {
	var val State[T]
	return int(unsafe.Sizeof(val))
}

type AggrOp[ResultT any, InputT any] interface {
	Init(*State[ResultT])
	Operation(*State[ResultT], *InputT)
	ConstantOperation(*State[ResultT], *InputT, int)
	Combine(*State[ResultT], *State[ResultT])
	Finalize(*State[ResultT], *ResultT, *AggrFinalizeData)
	IgnoreNull() bool
}

// UnaryAggregate builds a one argument aggregate over State[ResultT].
// StateT is the type held by the state, ResultT the result slice type.
func UnaryAggregate[StateT any, ResultT any, InputT any](
	name string,
	inputTyp common.LType,
	retTyp common.LType,
	aop AggrOp[StateT, InputT],
	fin func(*State[StateT], *ResultT, *AggrFinalizeData),
) *AggrFunc {
	return &AggrFunc{
		_name:    name,
		_args:    []common.LType{inputTyp},
		_retType: retTyp,
		_stateSize: func() int {
			return StateSize[StateT]()
		},
		_init: func(pointer unsafe.Pointer) {
			aop.Init((*State[StateT])(pointer))
		},
		_update: func(inputs []*chunk.Vector, data *AggrInputData, inputCount int, states *chunk.Vector, count int) {
			util.AssertFunc(inputCount == 1)
			UnaryScatter[StateT, InputT](inputs[0], states, data, count, aop)
		},
		_combine: func(source *chunk.Vector, target *chunk.Vector, data *AggrInputData, count int) {
			CombineStates[StateT, InputT](source, target, data, count, aop)
		},
		_finalize: func(states *chunk.Vector, data *AggrInputData, result *chunk.Vector, count int, offset int) {
			FinalizeAggr[StateT, ResultT](states, data, result, count, offset, fin)
		},
	}
}

func UnaryScatter[StateT any, InputT any](
	input *chunk.Vector,
	states *chunk.Vector,
	data *AggrInputData,
	count int,
	aop AggrOp[StateT, InputT],
) {
	if input.PhyFormat().IsConst() &&
		states.PhyFormat().IsConst() {
		if aop.IgnoreNull() && chunk.IsNullInPhyFormatConst(input) {
			return
		}
		inputSlice := chunk.GetSliceInPhyFormatConst[InputT](input)
		statesPtrSlice := chunk.GetSliceInPhyFormatConst[unsafe.Pointer](states)
		aop.ConstantOperation((*State[StateT])(statesPtrSlice[0]), &inputSlice[0], count)
	} else if input.PhyFormat().IsFlat() && states.PhyFormat().IsFlat() {
		inputSlice := chunk.GetSliceInPhyFormatFlat[InputT](input)
		statesPtrSlice := chunk.GetSliceInPhyFormatFlat[unsafe.Pointer](states)
		UnaryFlatLoop[StateT, InputT](
			inputSlice,
			statesPtrSlice,
			chunk.GetMaskInPhyFormatFlat(input),
			count,
			aop,
		)
	} else {
		var idata, sdata chunk.UnifiedFormat
		input.ToUnifiedFormat(count, &idata)
		states.ToUnifiedFormat(count, &sdata)
		UnaryScatterLoop[StateT, InputT](
			chunk.GetSliceInPhyFormatUnifiedFormat[InputT](&idata),
			chunk.GetSliceInPhyFormatUnifiedFormat[unsafe.Pointer](&sdata),
			idata.Sel,
			sdata.Sel,
			idata.Mask,
			count,
			aop,
		)
	}
}

func UnaryFlatLoop[StateT any, InputT any](
	inputSlice []InputT,
	statesPtrSlice []unsafe.Pointer,
	mask *util.Bitmap,
	count int,
	aop AggrOp[StateT, InputT],
) {
	if aop.IgnoreNull() && !mask.AllValid() {
		baseIdx := 0
		eCnt := util.EntryCount(count)
		for eIdx := 0; eIdx < eCnt; eIdx++ {
			e := mask.GetEntry(uint64(eIdx))
			next := min(baseIdx+8, count)
			if e == 0xFF {
				for ; baseIdx < next; baseIdx++ {
					aop.Operation((*State[StateT])(statesPtrSlice[baseIdx]), &inputSlice[baseIdx])
				}
			} else if e == 0 {
				baseIdx = next
				continue
			} else {
				start := baseIdx
				for ; baseIdx < next; baseIdx++ {
					if util.RowIsValidInEntry(e, uint64(baseIdx-start)) {
						aop.Operation((*State[StateT])(statesPtrSlice[baseIdx]), &inputSlice[baseIdx])
					}
				}
			}
		}
	} else {
		for i := 0; i < count; i++ {
			aop.Operation((*State[StateT])(statesPtrSlice[i]), &inputSlice[i])
		}
	}
}

func UnaryScatterLoop[StateT any, InputT any](
	inputSlice []InputT,
	statesPtrSlice []unsafe.Pointer,
	isel *chunk.SelectVector,
	ssel *chunk.SelectVector,
	mask *util.Bitmap,
	count int,
	aop AggrOp[StateT, InputT],
) {
	if aop.IgnoreNull() && !mask.AllValid() {
		for i := 0; i < count; i++ {
			iidx := isel.GetIndex(i)
			sidx := ssel.GetIndex(i)
			if mask.RowIsValid(uint64(iidx)) {
				aop.Operation((*State[StateT])(statesPtrSlice[sidx]), &inputSlice[iidx])
			}
		}
	} else {
		for i := 0; i < count; i++ {
			iidx := isel.GetIndex(i)
			sidx := ssel.GetIndex(i)
			aop.Operation((*State[StateT])(statesPtrSlice[sidx]), &inputSlice[iidx])
		}
	}
}

func CombineStates[StateT any, InputT any](
	source *chunk.Vector,
	target *chunk.Vector,
	_ *AggrInputData,
	count int,
	aop AggrOp[StateT, InputT],
) {
	util.AssertFunc(source.Typ().IsPointer())
	util.AssertFunc(target.Typ().IsPointer())
	sourcePtrSlice := chunk.GetSliceInPhyFormatFlat[unsafe.Pointer](source)
	targetPtrSlice := chunk.GetSliceInPhyFormatFlat[unsafe.Pointer](target)
	for i := 0; i < count; i++ {
		aop.Combine((*State[StateT])(sourcePtrSlice[i]),
			(*State[StateT])(targetPtrSlice[i]))
	}
}

func FinalizeAggr[StateT any, ResultT any](
	states *chunk.Vector,
	data *AggrInputData,
	result *chunk.Vector,
	count int,
	offset int,
	fin func(*State[StateT], *ResultT, *AggrFinalizeData),
) {
	util.AssertFunc(states.PhyFormat().IsFlat())
	result.SetPhyFormat(chunk.PF_FLAT)
	statePtrSlice := chunk.GetSliceInPhyFormatFlat[unsafe.Pointer](states)
	resultSlice := chunk.GetSliceInPhyFormatFlat[ResultT](result)
	final := NewAggrFinalizeData(result, data)
	for i := 0; i < count; i++ {
		final._resultIdx = i + offset
		chunk.SetNullInPhyFormatFlat(result, uint64(final._resultIdx), false)
		fin((*State[StateT])(statePtrSlice[i]), &resultSlice[final._resultIdx], final)
	}
}

type Integer interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64
}

type Number interface {
	Integer | ~float32 | ~float64
}

func toHugeint[T Integer](v T) common.Hugeint {
	switch any(v).(type) {
	case uint8, uint16, uint32, uint64:
		return common.Hugeint{Lower: uint64(v)}
	default:
		return common.HugeintFromInt64(int64(v))
	}
}

// SumHugeintOp sums integers into a 128 bit state. Overflow panics.
type SumHugeintOp[InputT Integer] struct{}

func (SumHugeintOp[InputT]) Init(s *State[common.Hugeint]) {
	s.Init()
}

func (SumHugeintOp[InputT]) Operation(s *State[common.Hugeint], input *InputT) {
	s._isset = true
	v := toHugeint(*input)
	if !common.AddInplace(&s._value, &v) {
		panic("sum overflow")
	}
}

func (op SumHugeintOp[InputT]) ConstantOperation(s *State[common.Hugeint], input *InputT, count int) {
	for i := 0; i < count; i++ {
		op.Operation(s, input)
	}
}

func (SumHugeintOp[InputT]) Combine(src *State[common.Hugeint], target *State[common.Hugeint]) {
	if !src._isset {
		return
	}
	target._isset = true
	if !common.AddInplace(&target._value, &src._value) {
		panic("sum overflow")
	}
}

func (SumHugeintOp[InputT]) Finalize(s *State[common.Hugeint], target *common.Hugeint, data *AggrFinalizeData) {
	if !s._isset {
		data.ReturnNull()
	} else {
		*target = s._value
	}
}

func (SumHugeintOp[InputT]) IgnoreNull() bool {
	return true
}

type SumDoubleOp[InputT ~float32 | ~float64] struct{}

func (SumDoubleOp[InputT]) Init(s *State[float64]) {
	s.Init()
}

func (SumDoubleOp[InputT]) Operation(s *State[float64], input *InputT) {
	s._isset = true
	s._value += float64(*input)
}

func (SumDoubleOp[InputT]) ConstantOperation(s *State[float64], input *InputT, count int) {
	s._isset = true
	s._value += float64(*input) * float64(count)
}

func (SumDoubleOp[InputT]) Combine(src *State[float64], target *State[float64]) {
	if !src._isset {
		return
	}
	target._isset = true
	target._value += src._value
}

func (SumDoubleOp[InputT]) Finalize(s *State[float64], target *float64, data *AggrFinalizeData) {
	if !s._isset {
		data.ReturnNull()
	} else {
		*target = s._value
	}
}

func (SumDoubleOp[InputT]) IgnoreNull() bool {
	return true
}

func addInt64Checked(a, b int64) int64 {
	r := a + b
	if (a > 0 && b > 0 && r < 0) || (a < 0 && b < 0 && r >= 0) {
		panic("decimal sum overflow")
	}
	return r
}

// SumDecimalOp sums decimal coefficients of one scale.
type SumDecimalOp struct{}

func (SumDecimalOp) Init(s *State[int64]) {
	s.Init()
}

func (SumDecimalOp) Operation(s *State[int64], input *int64) {
	s._isset = true
	s._value = addInt64Checked(s._value, *input)
}

func (op SumDecimalOp) ConstantOperation(s *State[int64], input *int64, count int) {
	for i := 0; i < count; i++ {
		op.Operation(s, input)
	}
}

func (SumDecimalOp) Combine(src *State[int64], target *State[int64]) {
	if !src._isset {
		return
	}
	target._isset = true
	target._value = addInt64Checked(target._value, src._value)
}

func (SumDecimalOp) Finalize(s *State[int64], target *int64, data *AggrFinalizeData) {
	if !s._isset {
		data.ReturnNull()
	} else {
		*target = s._value
	}
}

func (SumDecimalOp) IgnoreNull() bool {
	return true
}

// CountOp counts the non NULL inputs. InputT only fixes the slice type.
type CountOp[InputT any] struct{}

func (CountOp[InputT]) Init(s *State[int64]) {
	s.Init()
}

func (CountOp[InputT]) Operation(s *State[int64], _ *InputT) {
	s._count++
}

func (CountOp[InputT]) ConstantOperation(s *State[int64], _ *InputT, count int) {
	s._count += uint64(count)
}

func (CountOp[InputT]) Combine(src *State[int64], target *State[int64]) {
	target._count += src._count
}

func (CountOp[InputT]) Finalize(s *State[int64], target *int64, _ *AggrFinalizeData) {
	*target = int64(s._count)
}

func (CountOp[InputT]) IgnoreNull() bool {
	return true
}

type MinMaxOp[T cmp.Ordered] struct {
	_max bool
}

func (MinMaxOp[T]) Init(s *State[T]) {
	s.Init()
}

func (op MinMaxOp[T]) better(input, current T) bool {
	if op._max {
		return cmp.Compare(input, current) > 0
	}
	return cmp.Compare(input, current) < 0
}

func (op MinMaxOp[T]) Operation(s *State[T], input *T) {
	if !s._isset {
		s._value = *input
		s._isset = true
	} else if op.better(*input, s._value) {
		s._value = *input
	}
}

func (op MinMaxOp[T]) ConstantOperation(s *State[T], input *T, _ int) {
	op.Operation(s, input)
}

func (op MinMaxOp[T]) Combine(src *State[T], target *State[T]) {
	if !src._isset {
		return
	}
	op.Operation(target, &src._value)
}

func (MinMaxOp[T]) Finalize(s *State[T], target *T, data *AggrFinalizeData) {
	if !s._isset {
		data.ReturnNull()
	} else {
		*target = s._value
	}
}

func (MinMaxOp[T]) IgnoreNull() bool {
	return true
}

// AvgOp keeps a float64 sum and the count.
type AvgOp[InputT Number] struct{}

func (AvgOp[InputT]) Init(s *State[float64]) {
	s.Init()
}

func (AvgOp[InputT]) Operation(s *State[float64], input *InputT) {
	s._count++
	s._value += float64(*input)
}

func (AvgOp[InputT]) ConstantOperation(s *State[float64], input *InputT, count int) {
	s._count += uint64(count)
	s._value += float64(*input) * float64(count)
}

func (AvgOp[InputT]) Combine(src *State[float64], target *State[float64]) {
	target._count += src._count
	target._value += src._value
}

func (AvgOp[InputT]) Finalize(s *State[float64], target *float64, data *AggrFinalizeData) {
	if s._count == 0 {
		data.ReturnNull()
	} else {
		*target = s._value / float64(s._count)
	}
}

func (AvgOp[InputT]) IgnoreNull() bool {
	return true
}

// AvgDecimalOp keeps the coefficient sum and the count. The quotient is
// rounded to the scale of the result type.
type AvgDecimalOp struct{}

func (AvgDecimalOp) Init(s *State[int64]) {
	s.Init()
}

func (AvgDecimalOp) Operation(s *State[int64], input *int64) {
	s._count++
	s._value = addInt64Checked(s._value, *input)
}

func (op AvgDecimalOp) ConstantOperation(s *State[int64], input *int64, count int) {
	for i := 0; i < count; i++ {
		op.Operation(s, input)
	}
}

func (AvgDecimalOp) Combine(src *State[int64], target *State[int64]) {
	target._count += src._count
	target._value = addInt64Checked(target._value, src._value)
}

func (AvgDecimalOp) Finalize(s *State[int64], target *int64, data *AggrFinalizeData) {
	if s._count == 0 {
		data.ReturnNull()
		return
	}
	if s._count > math.MaxInt64 {
		panic("avg count overflow")
	}
	ret, err := common.DecimalDiv(s._value, int64(s._count), data._result.Typ().Scale)
	if err != nil {
		panic(err)
	}
	*target = ret
}

func (AvgDecimalOp) IgnoreNull() bool {
	return true
}

func GetCountStarAggr() *AggrFunc {
	op := CountOp[int64]{}
	return &AggrFunc{
		_name:    "count_star",
		_retType: common.BigintType(),
		_stateSize: func() int {
			return StateSize[int64]()
		},
		_init: func(pointer unsafe.Pointer) {
			op.Init((*State[int64])(pointer))
		},
		_update: func(_ []*chunk.Vector, _ *AggrInputData, inputCount int, states *chunk.Vector, count int) {
			util.AssertFunc(inputCount == 0)
			var sdata chunk.UnifiedFormat
			states.ToUnifiedFormat(count, &sdata)
			ptrs := chunk.GetSliceInPhyFormatUnifiedFormat[unsafe.Pointer](&sdata)
			for i := 0; i < count; i++ {
				(*State[int64])(ptrs[sdata.Sel.GetIndex(i)])._count++
			}
		},
		_combine: func(source *chunk.Vector, target *chunk.Vector, data *AggrInputData, count int) {
			CombineStates[int64, int64](source, target, data, count, op)
		},
		_finalize: func(states *chunk.Vector, data *AggrInputData, result *chunk.Vector, count int, offset int) {
			FinalizeAggr[int64, int64](states, data, result, count, offset, op.Finalize)
		},
	}
}

// GetCountAggr counts the non NULL values of any type, nested included.
func GetCountAggr(inputTyp common.LType) *AggrFunc {
	op := CountOp[int64]{}
	fun := GetCountStarAggr()
	fun._name = "count"
	fun._args = []common.LType{inputTyp}
	fun._update = func(inputs []*chunk.Vector, _ *AggrInputData, inputCount int, states *chunk.Vector, count int) {
		util.AssertFunc(inputCount == 1)
		var idata, sdata chunk.UnifiedFormat
		inputs[0].ToUnifiedFormat(count, &idata)
		states.ToUnifiedFormat(count, &sdata)
		ptrs := chunk.GetSliceInPhyFormatUnifiedFormat[unsafe.Pointer](&sdata)
		for i := 0; i < count; i++ {
			if idata.Mask.RowIsValid(uint64(idata.Sel.GetIndex(i))) {
				op.Operation((*State[int64])(ptrs[sdata.Sel.GetIndex(i)]), nil)
			}
		}
	}
	return fun
}

func GetSumAggr(inputTyp common.LType) (*AggrFunc, error) {
	switch inputTyp.Id {
	case common.LTID_DECIMAL:
		op := SumDecimalOp{}
		return UnaryAggregate[int64, int64, int64]("sum", inputTyp,
			common.DecimalType(common.MaxDecimalWidth, inputTyp.Scale), op, op.Finalize), nil
	case common.LTID_FLOAT:
		op := SumDoubleOp[float32]{}
		return UnaryAggregate[float64, float64, float32]("sum", inputTyp, common.DoubleType(), op, op.Finalize), nil
	case common.LTID_DOUBLE:
		op := SumDoubleOp[float64]{}
		return UnaryAggregate[float64, float64, float64]("sum", inputTyp, common.DoubleType(), op, op.Finalize), nil
	}
	switch inputTyp.GetInternalType() {
	case common.INT8:
		return sumHugeint[int8](inputTyp), nil
	case common.INT16:
		return sumHugeint[int16](inputTyp), nil
	case common.INT32:
		return sumHugeint[int32](inputTyp), nil
	case common.INT64:
		return sumHugeint[int64](inputTyp), nil
	case common.UINT8:
		return sumHugeint[uint8](inputTyp), nil
	case common.UINT16:
		return sumHugeint[uint16](inputTyp), nil
	case common.UINT32:
		return sumHugeint[uint32](inputTyp), nil
	case common.UINT64:
		return sumHugeint[uint64](inputTyp), nil
	default:
		return nil, fmt.Errorf("sum(%v) is not supported", inputTyp)
	}
}

func sumHugeint[T Integer](inputTyp common.LType) *AggrFunc {
	op := SumHugeintOp[T]{}
	return UnaryAggregate[common.Hugeint, common.Hugeint, T]("sum", inputTyp, common.HugeintType(), op, op.Finalize)
}

func GetAvgAggr(inputTyp common.LType) (*AggrFunc, error) {
	if inputTyp.Id == common.LTID_DECIMAL {
		op := AvgDecimalOp{}
		return UnaryAggregate[int64, int64, int64]("avg", inputTyp, inputTyp, op, op.Finalize), nil
	}
	switch inputTyp.GetInternalType() {
	case common.INT8:
		return avgDouble[int8](inputTyp), nil
	case common.INT16:
		return avgDouble[int16](inputTyp), nil
	case common.INT32:
		return avgDouble[int32](inputTyp), nil
	case common.INT64:
		return avgDouble[int64](inputTyp), nil
	case common.UINT8:
		return avgDouble[uint8](inputTyp), nil
	case common.UINT16:
		return avgDouble[uint16](inputTyp), nil
	case common.UINT32:
		return avgDouble[uint32](inputTyp), nil
	case common.UINT64:
		return avgDouble[uint64](inputTyp), nil
	case common.FLOAT:
		return avgDouble[float32](inputTyp), nil
	case common.DOUBLE:
		return avgDouble[float64](inputTyp), nil
	default:
		return nil, fmt.Errorf("avg(%v) is not supported", inputTyp)
	}
}

func avgDouble[T Number](inputTyp common.LType) *AggrFunc {
	op := AvgOp[T]{}
	return UnaryAggregate[float64, float64, T]("avg", inputTyp, common.DoubleType(), op, op.Finalize)
}

func GetMinMaxAggr(name string, inputTyp common.LType) (*AggrFunc, error) {
	isMax := name == "max"
	switch inputTyp.GetInternalType() {
	case common.INT8:
		return minMax[int8](name, inputTyp, isMax), nil
	case common.INT16:
		return minMax[int16](name, inputTyp, isMax), nil
	case common.INT32:
		return minMax[int32](name, inputTyp, isMax), nil
	case common.INT64:
		return minMax[int64](name, inputTyp, isMax), nil
	case common.UINT8:
		return minMax[uint8](name, inputTyp, isMax), nil
	case common.UINT16:
		return minMax[uint16](name, inputTyp, isMax), nil
	case common.UINT32:
		return minMax[uint32](name, inputTyp, isMax), nil
	case common.UINT64:
		return minMax[uint64](name, inputTyp, isMax), nil
	case common.FLOAT:
		return minMax[float32](name, inputTyp, isMax), nil
	case common.DOUBLE:
		return minMax[float64](name, inputTyp, isMax), nil
	default:
		return nil, fmt.Errorf("%s(%v) is not supported", name, inputTyp)
	}
}

func minMax[T cmp.Ordered](name string, inputTyp common.LType, isMax bool) *AggrFunc {
	op := MinMaxOp[T]{_max: isMax}
	return UnaryAggregate[T, T, T](name, inputTyp, inputTyp, op, op.Finalize)
}

// GetAggrFunc binds an aggregate by name and argument types.
func GetAggrFunc(name string, args []common.LType) (*AggrFunc, error) {
	name = strings.ToLower(name)
	if name == "count_star" || (name == "count" && len(args) == 0) {
		return GetCountStarAggr(), nil
	}
	if len(args) != 1 {
		return nil, fmt.Errorf("%s takes one argument, got %d", name, len(args))
	}
	switch name {
	case "count":
		return GetCountAggr(args[0]), nil
	case "sum":
		return GetSumAggr(args[0])
	case "avg":
		return GetAvgAggr(args[0])
	case "min", "max":
		return GetMinMaxAggr(name, args[0])
	default:
		return nil, fmt.Errorf("unknown aggregate %q", name)
	}
}
