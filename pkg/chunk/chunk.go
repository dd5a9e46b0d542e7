package chunk

import (
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/util"
)

type Chunk struct {
	Data  []*Vector
	Count int
	_Cap  int
}

func NewChunk(types []common.LType, cap int) *Chunk {
	c := &Chunk{}
	c.Init(types, cap)
	return c
}

func (c *Chunk) Init(types []common.LType, cap int) {
	c._Cap = cap
	c.Data = nil
	for _, lType := range types {
		c.Data = append(c.Data, NewVector2(lType, c._Cap))
	}
}

// Reset gives every column fresh storage and an empty row count.
func (c *Chunk) Reset() {
	if len(c.Data) == 0 {
		return
	}
	for i, vec := range c.Data {
		c.Data[i] = NewVector2(vec.Typ(), c._Cap)
	}
	c.Count = 0
}

func (c *Chunk) Cap() int {
	return c._Cap
}

func (c *Chunk) SetCap(cap int) {
	c._Cap = cap
}

func (c *Chunk) SetCard(count int) {
	util.AssertFunc(count <= c._Cap)
	c.Count = count
}

func (c *Chunk) Card() int {
	return c.Count
}

func (c *Chunk) ColumnCount() int {
	if c == nil {
		return 0
	}
	return len(c.Data)
}

func (c *Chunk) Types() []common.LType {
	ret := make([]common.LType, 0, len(c.Data))
	for _, vec := range c.Data {
		ret = append(ret, vec.Typ())
	}
	return ret
}

func (c *Chunk) GetValue(col, row int) *Value {
	return c.Data[col].GetValue(row)
}

func (c *Chunk) SetValue(col, row int, val *Value) {
	c.Data[col].SetValue(row, val)
}

// ReferenceIndice makes column i of c reference column indice[i] of other.
func (c *Chunk) ReferenceIndice(other *Chunk, indice []int) {
	c.SetCap(other.Cap())
	c.SetCard(other.Card())
	for i, idx := range indice {
		c.Data[i].Reference(other.Data[idx])
	}
}

func (c *Chunk) Reference(other *Chunk) {
	util.AssertFunc(other.ColumnCount() <= c.ColumnCount())
	c.SetCap(other.Cap())
	c.SetCard(other.Card())
	for i := 0; i < other.ColumnCount(); i++ {
		c.Data[i].Reference(other.Data[i])
	}
}

func (c *Chunk) Slice(other *Chunk, sel *SelectVector, count int, colOffset int) {
	util.AssertFunc(other.ColumnCount() <= colOffset+c.ColumnCount())
	c.SetCard(count)
	for i := 0; i < other.ColumnCount(); i++ {
		if other.Data[i].PhyFormat().IsDict() {
			c.Data[i+colOffset].Reference(other.Data[i])
			c.Data[i+colOffset].SliceOnSelf(sel, count)
		} else {
			c.Data[i+colOffset].Slice(other.Data[i], sel, count)
		}
	}
}

func (c *Chunk) ToUnifiedFormat() []*UnifiedFormat {
	ret := make([]*UnifiedFormat, c.ColumnCount())
	for i := 0; i < c.ColumnCount(); i++ {
		ret[i] = &UnifiedFormat{}
		c.Data[i].ToUnifiedFormat(c.Card(), ret[i])
	}
	return ret
}

// Hash combines the hashes of every column into result.
func (c *Chunk) Hash(result *Vector) {
	util.AssertFunc(result.Typ().Id == common.HashType().Id)
	HashTypeSwitch(c.Data[0], result, nil, c.Card(), false)
	for i := 1; i < c.ColumnCount(); i++ {
		CombineHashTypeSwitch(result, c.Data[i], nil, c.Card(), false)
	}
}

func (c *Chunk) Flatten() {
	for i := 0; i < c.ColumnCount(); i++ {
		c.Data[i].Flatten(c.Card())
	}
}

// Append copies the rows of other after the rows of c.
func (c *Chunk) Append(other *Chunk) {
	util.AssertFunc(c.Card()+other.Card() <= c.Cap())
	for i := 0; i < c.ColumnCount(); i++ {
		Copy(other.Data[i], c.Data[i], nil, other.Card(), 0, c.Card())
	}
	c.SetCard(c.Card() + other.Card())
}

func (c *Chunk) Print(prefix string) {
	for i := 0; i < c.Card(); i++ {
		fields := make([]zap.Field, 0, c.ColumnCount())
		for j := 0; j < c.ColumnCount(); j++ {
			fields = append(fields, zap.String("", c.GetValue(j, i).String()))
		}
		util.Info(prefix, fields...)
	}
}

// WriteTo writes the rows as tab separated text.
func (c *Chunk) WriteTo(w io.Writer) (int64, error) {
	var total int64
	sb := strings.Builder{}
	for i := 0; i < c.Card(); i++ {
		sb.Reset()
		for j := 0; j < c.ColumnCount(); j++ {
			if j > 0 {
				sb.WriteByte('\t')
			}
			sb.WriteString(c.GetValue(j, i).String())
		}
		sb.WriteByte('\n')
		n, err := io.WriteString(w, sb.String())
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
