package compute

import (
	"fmt"
	"unsafe"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/util"
)

// Native row format of one value:
//
//	fixed width : the value bytes, also written for NULL
//	VARCHAR     : uint32 length + bytes, nothing for NULL
//	STRUCT      : child validity bytes (all set, cleared per NULL child)
//	              followed by every child in order
//	LIST        : uint64 length, element validity bytes, one uint64 size
//	              per element when the element type is variable width,
//	              then the elements. Nothing for NULL.
//
// The NULL state of a value is a cleared bit colIdx in the validity bytes
// of the enclosing row or struct.

// ComputeEntrySizes adds the native encoded width of serCount rows of vec
// to entrySizes. Row i is vec[sel[i]+offset].
func ComputeEntrySizes(
	vec *chunk.Vector,
	entrySizes []int,
	vcount int,
	serCount int,
	sel *chunk.SelectVector,
	offset int,
) {
	pTyp := vec.Typ().GetInternalType()
	if pTyp.IsConstant() {
		sz := pTyp.Size()
		for i := 0; i < serCount; i++ {
			entrySizes[i] += sz
		}
		return
	}
	switch pTyp {
	case common.VARCHAR:
		computeStringEntrySizes(vec, entrySizes, vcount, serCount, sel, offset)
	case common.STRUCT:
		computeStructEntrySizes(vec, entrySizes, vcount, serCount, sel, offset)
	case common.LIST:
		computeListEntrySizes(vec, entrySizes, vcount, serCount, sel, offset)
	default:
		panic(fmt.Sprintf("not implemented: native encoding of %v", vec.Typ()))
	}
}

// ComputeChunkEntrySizes sets entrySizes to constSize plus the width of
// every variable width column of c.
func ComputeChunkEntrySizes(c *chunk.Chunk, entrySizes []int, constSize int) {
	for i := 0; i < c.Card(); i++ {
		entrySizes[i] = constSize
	}
	for _, vec := range c.Data {
		if vec.Typ().GetInternalType().IsConstant() {
			continue
		}
		ComputeEntrySizes(vec, entrySizes, c.Card(), c.Card(), nil, 0)
	}
}

func computeStringEntrySizes(
	vec *chunk.Vector,
	entrySizes []int,
	vcount int,
	serCount int,
	sel *chunk.SelectVector,
	offset int,
) {
	var vdata chunk.UnifiedFormat
	vec.ToUnifiedFormat(vcount, &vdata)
	strs := chunk.GetSliceInPhyFormatUnifiedFormat[common.String](&vdata)
	for i := 0; i < serCount; i++ {
		srcIdx := vdata.Sel.GetIndex(sel.GetIndex(i) + offset)
		if vdata.Mask.RowIsValid(uint64(srcIdx)) {
			entrySizes[i] += common.Int32Size + strs[srcIdx].Length()
		}
	}
}

func computeStructEntrySizes(
	vec *chunk.Vector,
	entrySizes []int,
	vcount int,
	serCount int,
	sel *chunk.SelectVector,
	offset int,
) {
	children := chunk.StructEntries(vec)
	validitySize := util.EntryCount(len(children))
	for i := 0; i < serCount; i++ {
		entrySizes[i] += validitySize
	}
	var vdata chunk.UnifiedFormat
	vec.ToUnifiedFormat(vcount, &vdata)
	childSel := structChildSel(&vdata, sel, serCount, offset)
	for _, child := range children {
		ComputeEntrySizes(child, entrySizes, vcount, serCount, childSel, 0)
	}
}

func computeListEntrySizes(
	vec *chunk.Vector,
	entrySizes []int,
	vcount int,
	serCount int,
	sel *chunk.SelectVector,
	offset int,
) {
	var vdata chunk.UnifiedFormat
	vec.ToUnifiedFormat(vcount, &vdata)
	entries := chunk.GetSliceInPhyFormatUnifiedFormat[common.ListEntry](&vdata)
	cc := chunk.ListChildCollection(vec)
	constChild := vec.Typ().ListChild().GetInternalType().IsConstant()
	for i := 0; i < serCount; i++ {
		srcIdx := vdata.Sel.GetIndex(sel.GetIndex(i) + offset)
		if !vdata.Mask.RowIsValid(uint64(srcIdx)) {
			continue
		}
		entry := entries[srcIdx]
		length := int(entry.Length)
		entrySizes[i] += common.Int64Size + util.EntryCount(length)
		if !constChild {
			entrySizes[i] += length * common.Int64Size
		}
		forEachListPiece(cc, int(entry.Offset), length, func(c *chunk.Chunk, inChunk, n int) {
			sizes := make([]int, n)
			ComputeEntrySizes(c.Data[0], sizes, c.Card(), n, nil, inChunk)
			for _, sz := range sizes {
				entrySizes[i] += sz
			}
		})
	}
}

// forEachListPiece visits the elements [offset, offset+length) of a list
// child collection one chunk at a time.
func forEachListPiece(
	cc *chunk.ChunkCollection,
	offset int,
	length int,
	fn func(c *chunk.Chunk, inChunk int, n int),
) {
	for length > 0 {
		c := cc.GetChunkForRow(offset)
		inChunk := offset % cc.SegmentCapacity()
		n := min(c.Card()-inChunk, length)
		fn(c, inChunk, n)
		offset += n
		length -= n
	}
}

// structChildSel maps the rows of a struct onto the rows of its children.
func structChildSel(
	vdata *chunk.UnifiedFormat,
	sel *chunk.SelectVector,
	serCount int,
	offset int,
) *chunk.SelectVector {
	childSel := chunk.NewSelectVector(serCount)
	for i := 0; i < serCount; i++ {
		childSel.SetIndex(i, vdata.Sel.GetIndex(sel.GetIndex(i)+offset))
	}
	return childSel
}

func setInvalidAt(validity unsafe.Pointer, idx int) {
	entryIdx, idxInEntry := util.GetEntryIndex(uint64(idx))
	ptr := util.PointerAdd(validity, int(entryIdx))
	util.Store[uint8](util.Load[uint8](ptr)&^(1<<idxInEntry), ptr)
}

func isValidAt(validity unsafe.Pointer, idx int) bool {
	entryIdx, idxInEntry := util.GetEntryIndex(uint64(idx))
	e := util.Load[uint8](util.PointerAdd(validity, int(entryIdx)))
	return util.RowIsValidInEntry(e, idxInEntry)
}

// SerializeVector writes serCount rows of vec in native format at
// keyLocations and advances them. Row i is vec[sel[i]+offset]. NULL rows
// clear bit colIdx at validityLocations[i] when validityLocations is not
// nil.
func SerializeVector(
	vec *chunk.Vector,
	vcount int,
	sel *chunk.SelectVector,
	serCount int,
	colIdx int,
	keyLocations []unsafe.Pointer,
	validityLocations []unsafe.Pointer,
	offset int,
) {
	pTyp := vec.Typ().GetInternalType()
	if pTyp.IsConstant() {
		serializeFixed(vec, vcount, sel, serCount, colIdx, keyLocations, validityLocations, offset)
		return
	}
	switch pTyp {
	case common.VARCHAR:
		serializeString(vec, vcount, sel, serCount, colIdx, keyLocations, validityLocations, offset)
	case common.STRUCT:
		serializeStruct(vec, vcount, sel, serCount, colIdx, keyLocations, validityLocations, offset)
	case common.LIST:
		serializeList(vec, vcount, sel, serCount, colIdx, keyLocations, validityLocations, offset)
	default:
		panic(fmt.Sprintf("not implemented: native encoding of %v", vec.Typ()))
	}
}

func serializeFixed(
	vec *chunk.Vector,
	vcount int,
	sel *chunk.SelectVector,
	serCount int,
	colIdx int,
	keyLocations []unsafe.Pointer,
	validityLocations []unsafe.Pointer,
	offset int,
) {
	var vdata chunk.UnifiedFormat
	vec.ToUnifiedFormat(vcount, &vdata)
	width := vec.Typ().GetInternalType().Size()
	for i := 0; i < serCount; i++ {
		srcIdx := vdata.Sel.GetIndex(sel.GetIndex(i) + offset)
		if vdata.Mask.RowIsValid(uint64(srcIdx)) {
			util.PointerCopyFrom(keyLocations[i], vdata.Data[srcIdx*width:(srcIdx+1)*width])
		} else {
			util.Memset(keyLocations[i], 0, width)
			if validityLocations != nil {
				setInvalidAt(validityLocations[i], colIdx)
			}
		}
		keyLocations[i] = util.PointerAdd(keyLocations[i], width)
	}
}

func serializeString(
	vec *chunk.Vector,
	vcount int,
	sel *chunk.SelectVector,
	serCount int,
	colIdx int,
	keyLocations []unsafe.Pointer,
	validityLocations []unsafe.Pointer,
	offset int,
) {
	var vdata chunk.UnifiedFormat
	vec.ToUnifiedFormat(vcount, &vdata)
	strs := chunk.GetSliceInPhyFormatUnifiedFormat[common.String](&vdata)
	for i := 0; i < serCount; i++ {
		srcIdx := vdata.Sel.GetIndex(sel.GetIndex(i) + offset)
		if !vdata.Mask.RowIsValid(uint64(srcIdx)) {
			if validityLocations != nil {
				setInvalidAt(validityLocations[i], colIdx)
			}
			continue
		}
		str := strs[srcIdx]
		util.Store[uint32](uint32(str.Length()), keyLocations[i])
		keyLocations[i] = util.PointerAdd(keyLocations[i], common.Int32Size)
		util.PointerCopy(keyLocations[i], str.DataPtr(), str.Length())
		keyLocations[i] = util.PointerAdd(keyLocations[i], str.Length())
	}
}

func serializeStruct(
	vec *chunk.Vector,
	vcount int,
	sel *chunk.SelectVector,
	serCount int,
	colIdx int,
	keyLocations []unsafe.Pointer,
	validityLocations []unsafe.Pointer,
	offset int,
) {
	var vdata chunk.UnifiedFormat
	vec.ToUnifiedFormat(vcount, &vdata)
	children := chunk.StructEntries(vec)
	validitySize := util.EntryCount(len(children))

	structKeyLocations := make([]unsafe.Pointer, serCount)
	for i := 0; i < serCount; i++ {
		util.Memset(keyLocations[i], 0xFF, validitySize)
		structKeyLocations[i] = util.PointerAdd(keyLocations[i], validitySize)
	}
	if validityLocations != nil {
		for i := 0; i < serCount; i++ {
			srcIdx := vdata.Sel.GetIndex(sel.GetIndex(i) + offset)
			if !vdata.Mask.RowIsValid(uint64(srcIdx)) {
				setInvalidAt(validityLocations[i], colIdx)
			}
		}
	}

	childSel := structChildSel(&vdata, sel, serCount, offset)
	for childIdx, child := range children {
		SerializeVector(child, vcount, childSel, serCount, childIdx,
			structKeyLocations, keyLocations, 0)
	}
	copy(keyLocations, structKeyLocations)
}

func serializeList(
	vec *chunk.Vector,
	vcount int,
	sel *chunk.SelectVector,
	serCount int,
	colIdx int,
	keyLocations []unsafe.Pointer,
	validityLocations []unsafe.Pointer,
	offset int,
) {
	var vdata chunk.UnifiedFormat
	vec.ToUnifiedFormat(vcount, &vdata)
	entries := chunk.GetSliceInPhyFormatUnifiedFormat[common.ListEntry](&vdata)
	cc := chunk.ListChildCollection(vec)
	childPTyp := vec.Typ().ListChild().GetInternalType()
	constChild := childPTyp.IsConstant()

	for i := 0; i < serCount; i++ {
		srcIdx := vdata.Sel.GetIndex(sel.GetIndex(i) + offset)
		if !vdata.Mask.RowIsValid(uint64(srcIdx)) {
			if validityLocations != nil {
				setInvalidAt(validityLocations[i], colIdx)
			}
			continue
		}
		entry := entries[srcIdx]
		length := int(entry.Length)

		util.Store[uint64](entry.Length, keyLocations[i])
		keyLocations[i] = util.PointerAdd(keyLocations[i], common.Int64Size)
		listValidity := keyLocations[i]
		util.Memset(listValidity, 0xFF, util.EntryCount(length))
		keyLocations[i] = util.PointerAdd(keyLocations[i], util.EntryCount(length))
		var varSizes unsafe.Pointer
		if !constChild {
			varSizes = keyLocations[i]
			keyLocations[i] = util.PointerAdd(keyLocations[i], length*common.Int64Size)
		}

		done := 0
		forEachListPiece(cc, int(entry.Offset), length, func(c *chunk.Chunk, inChunk, n int) {
			child := c.Data[0]
			var cdata chunk.UnifiedFormat
			child.ToUnifiedFormat(c.Card(), &cdata)
			for j := 0; j < n; j++ {
				if !cdata.Mask.RowIsValid(uint64(cdata.Sel.GetIndex(inChunk + j))) {
					setInvalidAt(listValidity, done+j)
				}
			}

			childLocations := make([]unsafe.Pointer, n)
			if constChild {
				width := childPTyp.Size()
				for j := 0; j < n; j++ {
					childLocations[j] = util.PointerAdd(keyLocations[i], j*width)
				}
			} else {
				sizes := make([]int, n)
				ComputeEntrySizes(child, sizes, c.Card(), n, nil, inChunk)
				ptr := keyLocations[i]
				for j := 0; j < n; j++ {
					util.StoreAt[uint64](uint64(sizes[j]), varSizes, (done+j)*common.Int64Size)
					childLocations[j] = ptr
					ptr = util.PointerAdd(ptr, sizes[j])
				}
			}
			SerializeVector(child, c.Card(), nil, n, 0, childLocations, nil, inChunk)
			keyLocations[i] = childLocations[n-1]
			done += n
		})
	}
}

// DeserializeIntoVector reads vcount native encoded rows at keyLocations
// into the flat vector vec and advances keyLocations. With
// validityLocations nil the mask of vec is taken as is.
func DeserializeIntoVector(
	vec *chunk.Vector,
	vcount int,
	colIdx int,
	keyLocations []unsafe.Pointer,
	validityLocations []unsafe.Pointer,
) {
	util.AssertFunc(vec.PhyFormat().IsFlat())
	if validityLocations != nil {
		for i := 0; i < vcount; i++ {
			vec.Mask.Set(uint64(i), isValidAt(validityLocations[i], colIdx))
		}
	}

	pTyp := vec.Typ().GetInternalType()
	if pTyp.IsConstant() {
		width := pTyp.Size()
		base := chunk.DataPointer(vec)
		for i := 0; i < vcount; i++ {
			util.PointerCopy(util.PointerAdd(base, i*width), keyLocations[i], width)
			keyLocations[i] = util.PointerAdd(keyLocations[i], width)
		}
		return
	}
	switch pTyp {
	case common.VARCHAR:
		strs := chunk.GetSliceInPhyFormatFlat[common.String](vec)
		for i := 0; i < vcount; i++ {
			if !vec.Mask.RowIsValid(uint64(i)) {
				strs[i] = common.String{}
				continue
			}
			length := int(util.Load[uint32](keyLocations[i]))
			keyLocations[i] = util.PointerAdd(keyLocations[i], common.Int32Size)
			strs[i] = common.String{
				Len:  length,
				Data: util.CStringCopy(util.PointerToSlice[byte](keyLocations[i], length)),
			}
			keyLocations[i] = util.PointerAdd(keyLocations[i], length)
		}
	case common.STRUCT:
		validitySize := util.EntryCount(len(vec.Children))
		structValidity := make([]unsafe.Pointer, vcount)
		for i := 0; i < vcount; i++ {
			structValidity[i] = keyLocations[i]
			keyLocations[i] = util.PointerAdd(keyLocations[i], validitySize)
		}
		for childIdx, child := range vec.Children {
			DeserializeIntoVector(child, vcount, childIdx, keyLocations, structValidity)
		}
	case common.LIST:
		deserializeList(vec, vcount, keyLocations)
	default:
		panic(fmt.Sprintf("not implemented: native encoding of %v", vec.Typ()))
	}
}

func deserializeList(
	vec *chunk.Vector,
	vcount int,
	keyLocations []unsafe.Pointer,
) {
	entries := chunk.GetSliceInPhyFormatFlat[common.ListEntry](vec)
	childTyp := vec.Typ().ListChild()
	childPTyp := childTyp.GetInternalType()
	constChild := childPTyp.IsConstant()
	segCap := chunk.DefaultListSegmentCapacity
	if vec.ListChild != nil {
		segCap = vec.ListChild.SegmentCapacity()
	}
	cc := chunk.NewChunkCollection([]common.LType{childTyp}, segCap)

	for i := 0; i < vcount; i++ {
		if !vec.Mask.RowIsValid(uint64(i)) {
			entries[i] = common.ListEntry{}
			continue
		}
		length := int(util.Load[uint64](keyLocations[i]))
		keyLocations[i] = util.PointerAdd(keyLocations[i], common.Int64Size)
		listValidity := keyLocations[i]
		keyLocations[i] = util.PointerAdd(keyLocations[i], util.EntryCount(length))
		var varSizes unsafe.Pointer
		if !constChild {
			varSizes = keyLocations[i]
			keyLocations[i] = util.PointerAdd(keyLocations[i], length*common.Int64Size)
		}
		entries[i] = common.ListEntry{
			Offset: uint64(cc.Count()),
			Length: uint64(length),
		}

		for done := 0; done < length; {
			n := min(length-done, segCap)
			piece := chunk.NewChunk([]common.LType{childTyp}, max(n, util.DefaultVectorSize))
			child := piece.Data[0]
			childLocations := make([]unsafe.Pointer, n)
			for j := 0; j < n; j++ {
				childLocations[j] = keyLocations[i]
				if !isValidAt(listValidity, done+j) {
					child.Mask.SetInvalid(uint64(j))
				}
				if constChild {
					keyLocations[i] = util.PointerAdd(keyLocations[i], childPTyp.Size())
				} else {
					sz := util.LoadAt[uint64](varSizes, (done+j)*common.Int64Size)
					keyLocations[i] = util.PointerAdd(keyLocations[i], int(sz))
				}
			}
			DeserializeIntoVector(child, n, 0, childLocations, nil)
			piece.SetCard(n)
			cc.Append(piece)
			done += n
		}
	}
	chunk.SetListChildCollection(vec, cc)
}
