package common

import (
	"bytes"
	"unsafe"

	"github.com/daviszhen/rowagg/pkg/util"
)

// String is a length plus a pointer into C memory. The owner of the
// memory is whoever allocated it: a vector buffer, a string heap block
// or the value itself.
type String struct {
	Len  int
	Data unsafe.Pointer
}

// NewString copies s into freshly allocated C memory.
func NewString(s string) String {
	if len(s) == 0 {
		return String{}
	}
	return String{
		Len:  len(s),
		Data: util.CStringCopy([]byte(s)),
	}
}

func (s *String) DataSlice() []byte {
	return util.PointerToSlice[byte](s.Data, s.Len)
}

func (s *String) DataPtr() unsafe.Pointer {
	return s.Data
}

func (s *String) String() string {
	return string(s.DataSlice())
}

func (s *String) Equal(o *String) bool {
	if s.Len != o.Len {
		return false
	}
	return bytes.Equal(s.DataSlice(), o.DataSlice())
}

func (s *String) Less(o *String) bool {
	return bytes.Compare(s.DataSlice(), o.DataSlice()) < 0
}

func (s *String) Length() int {
	return s.Len
}

// Free releases memory allocated by NewString.
func (s *String) Free() {
	if s.Data != nil {
		util.CFree(s.Data)
		s.Data = nil
		s.Len = 0
	}
}
