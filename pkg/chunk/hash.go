// Copyright 2023-2024 daviszhen
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package chunk

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/util"
)

const (
	NULL_HASH = 0xbf58476d1ce4e5b9
)

func murmurhash64(x uint64) uint64 {
	x ^= x >> 32
	x *= 0xd6e8feb86659fd93
	x ^= x >> 32
	x *= 0xd6e8feb86659fd93
	x ^= x >> 32
	return x
}

func murmurhash32(x uint32) uint64 {
	return murmurhash64(uint64(x))
}

func CombineHashScalar(a, b uint64) uint64 {
	return (a * 0xbf58476d1ce4e5b9) ^ b
}

type HashFunc[T any] interface {
	fun(value T) uint64
}

type HashOp[T any] interface {
	operation(input T, isNull bool) uint64
}

type integral interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64
}

type HashFuncInt[T integral] struct {
}

func (hfun HashFuncInt[T]) fun(value T) uint64 {
	return murmurhash64(uint64(value))
}

type HashFuncBool struct {
}

func (hfun HashFuncBool) fun(value bool) uint64 {
	if value {
		return murmurhash64(1)
	}
	return murmurhash64(0)
}

// floats hash by value: -0 and +0 collide, every NaN collides.
type HashFuncFloat struct {
}

func (hfun HashFuncFloat) fun(value float32) uint64 {
	return HashFuncDouble{}.fun(float64(value))
}

type HashFuncDouble struct {
}

func (hfun HashFuncDouble) fun(value float64) uint64 {
	if value == 0 {
		value = 0
	} else if math.IsNaN(value) {
		value = math.NaN()
	}
	return murmurhash64(math.Float64bits(value))
}

type HashFuncString struct {
}

func (hfun HashFuncString) fun(value common.String) uint64 {
	return util.HashBytes(value.DataPtr(), uint64(value.Length()))
}

type HashFuncHugeint struct {
}

func (HashFuncHugeint) fun(value common.Hugeint) uint64 {
	return murmurhash64(uint64(value.Upper)) ^ murmurhash64(value.Lower)
}

type HashFuncInterval struct {
}

func (HashFuncInterval) fun(value common.Interval) uint64 {
	return murmurhash32(uint32(value.Months)) ^
		murmurhash32(uint32(value.Days)) ^
		murmurhash64(uint64(value.Micros))
}

// HashOpNull hashes NULL to NULL_HASH and everything else with F.
type HashOpNull[T any, F HashFunc[T]] struct {
}

func (op HashOpNull[T, F]) operation(input T, isNull bool) uint64 {
	if isNull {
		return NULL_HASH
	}
	var f F
	return f.fun(input)
}

func HashTypeSwitch(
	input, result *Vector,
	rsel *SelectVector,
	count int,
	hasRsel bool,
) {
	util.AssertFunc(result.Typ().Id == common.LTID_UBIGINT)
	switch input.Typ().GetInternalType() {
	case common.BOOL:
		TemplatedLoopHash[bool](input, result, rsel, count, hasRsel, HashOpNull[bool, HashFuncBool]{}, HashFuncBool{})
	case common.INT8:
		TemplatedLoopHash[int8](input, result, rsel, count, hasRsel, HashOpNull[int8, HashFuncInt[int8]]{}, HashFuncInt[int8]{})
	case common.INT16:
		TemplatedLoopHash[int16](input, result, rsel, count, hasRsel, HashOpNull[int16, HashFuncInt[int16]]{}, HashFuncInt[int16]{})
	case common.INT32:
		TemplatedLoopHash[int32](input, result, rsel, count, hasRsel, HashOpNull[int32, HashFuncInt[int32]]{}, HashFuncInt[int32]{})
	case common.INT64:
		TemplatedLoopHash[int64](input, result, rsel, count, hasRsel, HashOpNull[int64, HashFuncInt[int64]]{}, HashFuncInt[int64]{})
	case common.UINT8:
		TemplatedLoopHash[uint8](input, result, rsel, count, hasRsel, HashOpNull[uint8, HashFuncInt[uint8]]{}, HashFuncInt[uint8]{})
	case common.UINT16:
		TemplatedLoopHash[uint16](input, result, rsel, count, hasRsel, HashOpNull[uint16, HashFuncInt[uint16]]{}, HashFuncInt[uint16]{})
	case common.UINT32:
		TemplatedLoopHash[uint32](input, result, rsel, count, hasRsel, HashOpNull[uint32, HashFuncInt[uint32]]{}, HashFuncInt[uint32]{})
	case common.UINT64:
		TemplatedLoopHash[uint64](input, result, rsel, count, hasRsel, HashOpNull[uint64, HashFuncInt[uint64]]{}, HashFuncInt[uint64]{})
	case common.FLOAT:
		TemplatedLoopHash[float32](input, result, rsel, count, hasRsel, HashOpNull[float32, HashFuncFloat]{}, HashFuncFloat{})
	case common.DOUBLE:
		TemplatedLoopHash[float64](input, result, rsel, count, hasRsel, HashOpNull[float64, HashFuncDouble]{}, HashFuncDouble{})
	case common.VARCHAR:
		TemplatedLoopHash[common.String](input, result, rsel, count, hasRsel, HashOpNull[common.String, HashFuncString]{}, HashFuncString{})
	case common.INT128:
		TemplatedLoopHash[common.Hugeint](input, result, rsel, count, hasRsel, HashOpNull[common.Hugeint, HashFuncHugeint]{}, HashFuncHugeint{})
	case common.INTERVAL:
		TemplatedLoopHash[common.Interval](input, result, rsel, count, hasRsel, HashOpNull[common.Interval, HashFuncInterval]{}, HashFuncInterval{})
	case common.STRUCT, common.LIST:
		hashNested(input, result, rsel, count, hasRsel, false)
	default:
		panic(fmt.Sprintf("usp hash %v", input.Typ()))
	}
}

func TemplatedLoopHash[T any](
	input, result *Vector,
	rsel *SelectVector,
	count int,
	hasRsel bool,
	hashOp HashOp[T],
	hashFun HashFunc[T],
) {
	if input.PhyFormat().IsConst() {
		result.SetPhyFormat(PF_CONST)

		data := GetSliceInPhyFormatConst[T](input)
		resData := GetSliceInPhyFormatConst[uint64](result)
		resData[0] = hashOp.operation(data[0], IsNullInPhyFormatConst(input))
	} else {
		result.SetPhyFormat(PF_FLAT)
		var data UnifiedFormat
		input.ToUnifiedFormat(count, &data)
		TightLoopHash[T](
			GetSliceInPhyFormatUnifiedFormat[T](&data),
			GetSliceInPhyFormatFlat[uint64](result),
			rsel,
			count,
			data.Sel,
			data.Mask,
			hasRsel,
			hashOp,
			hashFun,
		)
	}
}

func TightLoopHash[T any](
	ldata []T,
	resultData []uint64,
	rsel *SelectVector,
	count int,
	selVec *SelectVector,
	mask *util.Bitmap,
	hasRsel bool,
	hashOp HashOp[T],
	hashFun HashFunc[T],
) {
	if !mask.AllValid() {
		for i := 0; i < count; i++ {
			ridx := i
			if hasRsel {
				ridx = rsel.GetIndex(i)
			}
			idx := selVec.GetIndex(ridx)
			resultData[ridx] = hashOp.operation(ldata[idx], !mask.RowIsValid(uint64(idx)))
		}
	} else {
		for i := 0; i < count; i++ {
			ridx := i
			if hasRsel {
				ridx = rsel.GetIndex(i)
			}
			idx := selVec.GetIndex(ridx)
			resultData[ridx] = hashFun.fun(ldata[idx])
		}
	}
}

func CombineHashTypeSwitch(
	hashes *Vector,
	input *Vector,
	rsel *SelectVector,
	count int,
	hasRsel bool,
) {
	util.AssertFunc(hashes.Typ().Id == common.LTID_UBIGINT)
	switch input.Typ().GetInternalType() {
	case common.BOOL:
		TemplatedLoopCombineHash[bool](input, hashes, rsel, count, hasRsel, HashOpNull[bool, HashFuncBool]{}, HashFuncBool{})
	case common.INT8:
		TemplatedLoopCombineHash[int8](input, hashes, rsel, count, hasRsel, HashOpNull[int8, HashFuncInt[int8]]{}, HashFuncInt[int8]{})
	case common.INT16:
		TemplatedLoopCombineHash[int16](input, hashes, rsel, count, hasRsel, HashOpNull[int16, HashFuncInt[int16]]{}, HashFuncInt[int16]{})
	case common.INT32:
		TemplatedLoopCombineHash[int32](input, hashes, rsel, count, hasRsel, HashOpNull[int32, HashFuncInt[int32]]{}, HashFuncInt[int32]{})
	case common.INT64:
		TemplatedLoopCombineHash[int64](input, hashes, rsel, count, hasRsel, HashOpNull[int64, HashFuncInt[int64]]{}, HashFuncInt[int64]{})
	case common.UINT8:
		TemplatedLoopCombineHash[uint8](input, hashes, rsel, count, hasRsel, HashOpNull[uint8, HashFuncInt[uint8]]{}, HashFuncInt[uint8]{})
	case common.UINT16:
		TemplatedLoopCombineHash[uint16](input, hashes, rsel, count, hasRsel, HashOpNull[uint16, HashFuncInt[uint16]]{}, HashFuncInt[uint16]{})
	case common.UINT32:
		TemplatedLoopCombineHash[uint32](input, hashes, rsel, count, hasRsel, HashOpNull[uint32, HashFuncInt[uint32]]{}, HashFuncInt[uint32]{})
	case common.UINT64:
		TemplatedLoopCombineHash[uint64](input, hashes, rsel, count, hasRsel, HashOpNull[uint64, HashFuncInt[uint64]]{}, HashFuncInt[uint64]{})
	case common.FLOAT:
		TemplatedLoopCombineHash[float32](input, hashes, rsel, count, hasRsel, HashOpNull[float32, HashFuncFloat]{}, HashFuncFloat{})
	case common.DOUBLE:
		TemplatedLoopCombineHash[float64](input, hashes, rsel, count, hasRsel, HashOpNull[float64, HashFuncDouble]{}, HashFuncDouble{})
	case common.VARCHAR:
		TemplatedLoopCombineHash[common.String](input, hashes, rsel, count, hasRsel, HashOpNull[common.String, HashFuncString]{}, HashFuncString{})
	case common.INT128:
		TemplatedLoopCombineHash[common.Hugeint](input, hashes, rsel, count, hasRsel, HashOpNull[common.Hugeint, HashFuncHugeint]{}, HashFuncHugeint{})
	case common.INTERVAL:
		TemplatedLoopCombineHash[common.Interval](input, hashes, rsel, count, hasRsel, HashOpNull[common.Interval, HashFuncInterval]{}, HashFuncInterval{})
	case common.STRUCT, common.LIST:
		hashNested(input, hashes, rsel, count, hasRsel, true)
	default:
		panic(fmt.Sprintf("usp hash %v", input.Typ()))
	}
}

func TemplatedLoopCombineHash[T any](
	input *Vector,
	hashes *Vector,
	rsel *SelectVector,
	count int,
	hasRsel bool,
	hashOp HashOp[T],
	hashFun HashFunc[T],
) {
	if input.PhyFormat().IsConst() && hashes.PhyFormat().IsConst() {
		ldata := GetSliceInPhyFormatConst[T](input)
		hashData := GetSliceInPhyFormatConst[uint64](hashes)
		otherHash := hashOp.operation(ldata[0], IsNullInPhyFormatConst(input))
		hashData[0] = CombineHashScalar(hashData[0], otherHash)
	} else {
		var data UnifiedFormat
		input.ToUnifiedFormat(count, &data)
		if hashes.PhyFormat().IsConst() {
			hashData := GetSliceInPhyFormatConst[uint64](hashes)
			hashes.SetPhyFormat(PF_FLAT)
			TightLoopCombineHashConstant[T](
				GetSliceInPhyFormatUnifiedFormat[T](&data),
				hashData[0],
				GetSliceInPhyFormatFlat[uint64](hashes),
				rsel,
				count,
				data.Sel,
				data.Mask,
				hasRsel,
				hashOp,
				hashFun,
			)
		} else {
			util.AssertFunc(hashes.PhyFormat().IsFlat())
			TightLoopCombineHash[T](
				GetSliceInPhyFormatUnifiedFormat[T](&data),
				GetSliceInPhyFormatFlat[uint64](hashes),
				rsel,
				count,
				data.Sel,
				data.Mask,
				hasRsel,
				hashOp,
				hashFun,
			)
		}
	}
}

func TightLoopCombineHashConstant[T any](
	ldata []T,
	constHash uint64,
	hashData []uint64,
	rsel *SelectVector,
	count int,
	selVec *SelectVector,
	mask *util.Bitmap,
	hasRsel bool,
	hashOp HashOp[T],
	hashFun HashFunc[T],
) {
	if !mask.AllValid() {
		for i := 0; i < count; i++ {
			ridx := i
			if hasRsel {
				ridx = rsel.GetIndex(i)
			}
			idx := selVec.GetIndex(ridx)
			otherHash := hashOp.operation(ldata[idx], !mask.RowIsValid(uint64(idx)))
			hashData[ridx] = CombineHashScalar(constHash, otherHash)
		}
	} else {
		for i := 0; i < count; i++ {
			ridx := i
			if hasRsel {
				ridx = rsel.GetIndex(i)
			}
			idx := selVec.GetIndex(ridx)
			otherHash := hashFun.fun(ldata[idx])
			hashData[ridx] = CombineHashScalar(constHash, otherHash)
		}
	}
}

func TightLoopCombineHash[T any](
	ldata []T,
	hashData []uint64,
	rsel *SelectVector,
	count int,
	selVec *SelectVector,
	mask *util.Bitmap,
	hasRsel bool,
	hashOp HashOp[T],
	hashFun HashFunc[T],
) {
	if !mask.AllValid() {
		for i := 0; i < count; i++ {
			ridx := i
			if hasRsel {
				ridx = rsel.GetIndex(i)
			}
			idx := selVec.GetIndex(ridx)
			otherHash := hashOp.operation(ldata[idx], !mask.RowIsValid(uint64(idx)))
			hashData[ridx] = CombineHashScalar(hashData[ridx], otherHash)
		}
	} else {
		for i := 0; i < count; i++ {
			ridx := i
			if hasRsel {
				ridx = rsel.GetIndex(i)
			}
			idx := selVec.GetIndex(ridx)
			otherHash := hashFun.fun(ldata[idx])
			hashData[ridx] = CombineHashScalar(hashData[ridx], otherHash)
		}
	}
}

// HashValue hashes val the way the vector hash functions hash its type.
// STRUCT and LIST values combine the hashes of their children.
func HashValue(val *Value) uint64 {
	if val.IsNull {
		return NULL_HASH
	}
	switch val.Typ.GetInternalType() {
	case common.BOOL:
		return HashFuncBool{}.fun(val.Bool)
	case common.INT8, common.INT16, common.INT32, common.INT64:
		return murmurhash64(uint64(val.I64))
	case common.UINT8, common.UINT16, common.UINT32, common.UINT64:
		return murmurhash64(val.U64)
	case common.FLOAT, common.DOUBLE:
		return HashFuncDouble{}.fun(val.F64)
	case common.VARCHAR:
		return util.HashBytes(unsafe.Pointer(unsafe.StringData(val.Str)), uint64(len(val.Str)))
	case common.INT128:
		return HashFuncHugeint{}.fun(val.I128)
	case common.INTERVAL:
		return HashFuncInterval{}.fun(val.Interval)
	case common.STRUCT, common.LIST:
		h := murmurhash64(uint64(len(val.Children)))
		for _, child := range val.Children {
			h = CombineHashScalar(h, HashValue(child))
		}
		return h
	default:
		panic(fmt.Sprintf("usp hash %v", val.Typ))
	}
}

// hashNested hashes STRUCT and LIST rows value by value. With combine the
// hashes are combined into the existing ones.
func hashNested(
	input, hashes *Vector,
	rsel *SelectVector,
	count int,
	hasRsel bool,
	combine bool,
) {
	if combine && hashes.PhyFormat().IsConst() {
		constHash := GetSliceInPhyFormatConst[uint64](hashes)[0]
		hashes.SetPhyFormat(PF_FLAT)
		hashData := GetSliceInPhyFormatFlat[uint64](hashes)
		for i := 0; i < count; i++ {
			ridx := i
			if hasRsel {
				ridx = rsel.GetIndex(i)
			}
			hashData[ridx] = constHash
		}
	}
	if !combine {
		hashes.SetPhyFormat(PF_FLAT)
	}
	util.AssertFunc(hashes.PhyFormat().IsFlat())
	hashData := GetSliceInPhyFormatFlat[uint64](hashes)
	for i := 0; i < count; i++ {
		ridx := i
		if hasRsel {
			ridx = rsel.GetIndex(i)
		}
		h := HashValue(input.GetValue(ridx))
		if combine {
			hashData[ridx] = CombineHashScalar(hashData[ridx], h)
		} else {
			hashData[ridx] = h
		}
	}
}
