package chunk

import (
	"github.com/daviszhen/rowagg/pkg/util"
)

// UnifiedFormat is a read view over a vector in any physical format:
// row i lives at Data[Sel.GetIndex(i)].
type UnifiedFormat struct {
	Sel      *SelectVector
	Data     []byte
	Mask     *util.Bitmap
	InterSel SelectVector
	PTypSize int
}

func GetSliceInPhyFormatUnifiedFormat[T any](uni *UnifiedFormat) []T {
	return util.ToSlice[T](uni.Data, uni.PTypSize)
}
