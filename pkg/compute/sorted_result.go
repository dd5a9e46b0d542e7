package compute

import (
	"bytes"
	"io"
	"strings"
	"unsafe"

	"github.com/tidwall/btree"

	"github.com/daviszhen/rowagg/pkg/chunk"
	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/util"
)

type SortOptions struct {
	Desc       bool
	NullsFirst bool
	PrefixLen  int
}

type sortedRow struct {
	_key    []byte
	_seq    uint64
	_values []*chunk.Value
}

func sortedRowLess(a, b *sortedRow) bool {
	ret := bytes.Compare(a._key, b._key)
	if ret != 0 {
		return ret < 0
	}
	return a._seq < b._seq
}

// SortedResult orders result rows by the sortable encoding of their first
// keyCnt columns. Rows with equal keys keep their arrival order. VARCHAR
// keys compare on their first PrefixLen bytes only.
type SortedResult struct {
	_types    []common.LType
	_keyCnt   int
	_keyWidth int
	_opts     SortOptions
	_tree     *btree.BTreeG[*sortedRow]
	_seq      uint64
}

func NewSortedResult(types []common.LType, keyCnt int, opts SortOptions) *SortedResult {
	util.AssertFunc(keyCnt <= len(types))
	ret := &SortedResult{
		_types:  common.CopyLTypes(types...),
		_keyCnt: keyCnt,
		_opts:   opts,
		_tree:   btree.NewBTreeG[*sortedRow](sortedRowLess),
	}
	for i := 0; i < keyCnt; i++ {
		ret._keyWidth += 1 + SortableWidth(types[i], opts.PrefixLen)
	}
	return ret
}

func (sr *SortedResult) Len() int {
	return sr._tree.Len()
}

// Add copies the rows of data.
func (sr *SortedResult) Add(data *chunk.Chunk) {
	util.AssertFunc(data.ColumnCount() == len(sr._types))
	cnt := data.Card()
	if cnt == 0 {
		return
	}
	keys := make([]byte, max(1, cnt*sr._keyWidth))
	keyLocs := make([]unsafe.Pointer, cnt)
	for i := 0; i < cnt; i++ {
		keyLocs[i] = unsafe.Pointer(&keys[i*sr._keyWidth])
	}
	for i := 0; i < sr._keyCnt; i++ {
		SerializeVectorSortable(
			data.Data[i],
			cnt,
			nil,
			cnt,
			keyLocs,
			sr._opts.Desc,
			true,
			sr._opts.NullsFirst,
			sr._opts.PrefixLen,
		)
	}
	for i := 0; i < cnt; i++ {
		row := &sortedRow{
			_key: keys[i*sr._keyWidth : (i+1)*sr._keyWidth],
			_seq: sr._seq,
		}
		sr._seq++
		for j := 0; j < data.ColumnCount(); j++ {
			row._values = append(row._values, data.GetValue(j, i))
		}
		sr._tree.Set(row)
	}
}

// Scan visits the rows in order until fn returns false.
func (sr *SortedResult) Scan(fn func(values []*chunk.Value) bool) {
	sr._tree.Scan(func(row *sortedRow) bool {
		return fn(row._values)
	})
}

// WriteTo writes the rows in order as tab separated text.
func (sr *SortedResult) WriteTo(w io.Writer) (int64, error) {
	var total int64
	var err error
	sb := strings.Builder{}
	sr.Scan(func(values []*chunk.Value) bool {
		sb.Reset()
		for i, val := range values {
			if i > 0 {
				sb.WriteByte('\t')
			}
			sb.WriteString(val.String())
		}
		sb.WriteByte('\n')
		var n int
		n, err = io.WriteString(w, sb.String())
		total += int64(n)
		return err == nil
	})
	return total, err
}
