package chunk

import (
	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/util"
)

// ChunkCollection stores rows in chunks of a fixed segment capacity.
// Every chunk but the last is full, so row r lives in chunk r/segCap at
// position r%segCap.
type ChunkCollection struct {
	types  []common.LType
	segCap int
	chunks []*Chunk
	count  int
}

func NewChunkCollection(types []common.LType, segCap int) *ChunkCollection {
	util.AssertFunc(segCap > 0)
	return &ChunkCollection{
		types:  common.CopyLTypes(types...),
		segCap: segCap,
	}
}

func (cc *ChunkCollection) Types() []common.LType {
	return cc.types
}

func (cc *ChunkCollection) Count() int {
	return cc.count
}

func (cc *ChunkCollection) SegmentCapacity() int {
	return cc.segCap
}

func (cc *ChunkCollection) ChunkCount() int {
	return len(cc.chunks)
}

func (cc *ChunkCollection) GetChunk(i int) *Chunk {
	return cc.chunks[i]
}

// GetChunkForRow returns the chunk that holds row.
func (cc *ChunkCollection) GetChunkForRow(row int) *Chunk {
	util.AssertFunc(row >= 0 && row < cc.count)
	return cc.chunks[row/cc.segCap]
}

func (cc *ChunkCollection) GetValue(col, row int) *Value {
	return cc.GetChunkForRow(row).GetValue(col, row%cc.segCap)
}

func (cc *ChunkCollection) lastWithRoom() *Chunk {
	if len(cc.chunks) > 0 {
		last := cc.chunks[len(cc.chunks)-1]
		if last.Card() < cc.segCap {
			return last
		}
	}
	c := &Chunk{}
	c.Init(cc.types, cc.segCap)
	for i, typ := range cc.types {
		if typ.GetInternalType() == common.LIST {
			c.Data[i] = NewListVector(typ, cc.segCap, cc.segCap)
		}
	}
	cc.chunks = append(cc.chunks, c)
	return c
}

// Append copies the rows of c. The last segment is filled before a new
// one is started.
func (cc *ChunkCollection) Append(c *Chunk) {
	cc.appendPart(c, 0, c.Card())
}

func (cc *ChunkCollection) appendPart(c *Chunk, start, n int) {
	util.AssertFunc(c.ColumnCount() == len(cc.types))
	for n > 0 {
		last := cc.lastWithRoom()
		m := min(cc.segCap-last.Card(), n)
		for col := 0; col < c.ColumnCount(); col++ {
			Copy(c.Data[col], last.Data[col], nil, start+m, start, last.Card())
		}
		last.SetCard(last.Card() + m)
		cc.count += m
		start += m
		n -= m
	}
}

// AppendRange copies rows [offset, offset+length) of src.
func (cc *ChunkCollection) AppendRange(src *ChunkCollection, offset, length int) {
	for length > 0 {
		c := src.GetChunkForRow(offset)
		inChunk := offset % src.segCap
		n := min(c.Card()-inChunk, length)
		cc.appendPart(c, inChunk, n)
		offset += n
		length -= n
	}
}

// AppendRow appends one row given as one value per column.
func (cc *ChunkCollection) AppendRow(vals ...*Value) {
	util.AssertFunc(len(vals) == len(cc.types))
	last := cc.lastWithRoom()
	row := last.Card()
	for col, val := range vals {
		last.SetValue(col, row, val)
	}
	last.SetCard(row + 1)
	cc.count++
}

func (cc *ChunkCollection) Reset() {
	cc.chunks = nil
	cc.count = 0
}
