package compute

import (
	"fmt"

	"github.com/xlab/treeprint"

	"github.com/daviszhen/rowagg/pkg/common"
	"github.com/daviszhen/rowagg/pkg/util"
)

/*
AggrRowLayout
format:

	validity | group columns | hash | padding | aggr states |
	|--------|---------------|------|---------|-------------|
	         |               |      |         |             |
	validityWidth            |      |         |             |
	groupsWidth--------------|      |         |             |
	hashOffset----------------------|         |             |
	aggrOffset--------------------------------|             |
	rowWidth------------------------------------------------|

A fixed width group column occupies its physical size. A VARCHAR, STRUCT
or LIST group column occupies a pointer into the string heap where the
value is stored in native format. The validity bit of column i covers group i; bit
len(groups) covers the hash and is always set.
*/
type AggrRowLayout struct {
	_groupTypes []common.LType

	_validityWidth int

	//offsets of the group columns and the hash
	_offsets []int

	_hashOffset int

	_aggrOffset int

	_aggrWidth int

	_rowWidth int

	_aggregates []*AggrObject

	//offsets of the aggr states
	_aggrOffsets []int

	_allConst bool
}

func NewAggrRowLayout(groupTypes []common.LType, aggrObjs []*AggrObject) *AggrRowLayout {
	layout := &AggrRowLayout{
		_groupTypes: common.CopyLTypes(groupTypes...),
		_aggregates: aggrObjs,
		_allConst:   true,
	}
	layout._validityWidth = util.EntryCount(len(groupTypes) + 1)
	layout._rowWidth = layout._validityWidth

	for _, typ := range layout._groupTypes {
		pTyp := typ.GetInternalType()
		layout._offsets = append(layout._offsets, layout._rowWidth)
		switch {
		case heapGroup(typ):
			layout._allConst = false
			layout._rowWidth += common.PointerSize
		case pTyp.IsConstant():
			layout._rowWidth += pTyp.Size()
		default:
			panic(fmt.Sprintf("usp group type %v", typ))
		}
	}

	layout._hashOffset = layout._rowWidth
	layout._offsets = append(layout._offsets, layout._hashOffset)
	layout._rowWidth += common.Int64Size

	layout._rowWidth = util.AlignValue8(layout._rowWidth)
	layout._aggrOffset = layout._rowWidth
	for _, aggr := range layout._aggregates {
		layout._aggrOffsets = append(layout._aggrOffsets, layout._rowWidth)
		layout._rowWidth += util.AlignValue8(aggr._payloadSize)
	}
	layout._aggrWidth = layout._rowWidth - layout._aggrOffset
	return layout
}

// heapGroup reports whether a group column of typ is stored in the string
// heap.
func heapGroup(typ common.LType) bool {
	switch typ.GetInternalType() {
	case common.VARCHAR, common.STRUCT, common.LIST:
		return true
	}
	return false
}

func (layout *AggrRowLayout) GroupCount() int {
	return len(layout._groupTypes)
}

// ColumnCount counts the group columns and the hash.
func (layout *AggrRowLayout) ColumnCount() int {
	return len(layout._groupTypes) + 1
}

func (layout *AggrRowLayout) GroupTypes() []common.LType {
	return layout._groupTypes
}

// Types are the group types followed by the hash type.
func (layout *AggrRowLayout) Types() []common.LType {
	ret := common.CopyLTypes(layout._groupTypes...)
	return append(ret, common.HashType())
}

func (layout *AggrRowLayout) Offsets() []int {
	return layout._offsets
}

func (layout *AggrRowLayout) HashOffset() int {
	return layout._hashOffset
}

func (layout *AggrRowLayout) AggrOffset() int {
	return layout._aggrOffset
}

func (layout *AggrRowLayout) RowWidth() int {
	return layout._rowWidth
}

func (layout *AggrRowLayout) ValidityWidth() int {
	return layout._validityWidth
}

func (layout *AggrRowLayout) Aggregates() []*AggrObject {
	return layout._aggregates
}

func (layout *AggrRowLayout) AllConstant() bool {
	return layout._allConst
}

// Tree renders the byte ranges of the row.
func (layout *AggrRowLayout) Tree() treeprint.Tree {
	tree := treeprint.NewWithRoot(fmt.Sprintf("row width %d", layout._rowWidth))
	tree.AddNode(fmt.Sprintf("validity [0,%d)", layout._validityWidth))
	groups := tree.AddBranch("groups")
	for i, typ := range layout._groupTypes {
		start := layout._offsets[i]
		end := layout._offsets[i+1]
		label := typ.String()
		if heapGroup(typ) {
			label += " (heap pointer)"
		}
		groups.AddNode(fmt.Sprintf("%d: %s [%d,%d)", i, label, start, end))
	}
	tree.AddNode(fmt.Sprintf("hash [%d,%d)", layout._hashOffset, layout._hashOffset+common.Int64Size))
	aggrs := tree.AddBranch(fmt.Sprintf("states [%d,%d)", layout._aggrOffset, layout._rowWidth))
	for i, aggr := range layout._aggregates {
		aggrs.AddNode(fmt.Sprintf("%d: %s [%d,%d)",
			i, aggr._name,
			layout._aggrOffsets[i],
			layout._aggrOffsets[i]+aggr._payloadSize))
	}
	return tree
}

// Compatible reports whether rows of o can be merged into rows of layout.
func (layout *AggrRowLayout) Compatible(o *AggrRowLayout) bool {
	if len(layout._groupTypes) != len(o._groupTypes) ||
		len(layout._aggregates) != len(o._aggregates) ||
		layout._rowWidth != o._rowWidth {
		return false
	}
	for i, typ := range layout._groupTypes {
		if !typ.Equal(o._groupTypes[i]) {
			return false
		}
	}
	for i, aggr := range layout._aggregates {
		other := o._aggregates[i]
		if aggr._name != other._name ||
			aggr._payloadSize != other._payloadSize ||
			!aggr._retType.Equal(other._retType) {
			return false
		}
	}
	return true
}
