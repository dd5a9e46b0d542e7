package compute

import (
	"fmt"
	"unsafe"

	"github.com/daviszhen/rowagg/pkg/util"
)

// aggrHTEntry packs a 16 bit salt and a 48 bit row pointer into one
// word. A zero word is an empty slot.
type aggrHTEntry struct {
	_value uint64
}

const (
	SALT_MASK    uint64 = 0xFFFF000000000000
	POINTER_MASK uint64 = 0x0000FFFFFFFFFFFF
)

var (
	aggrEntrySize = int(unsafe.Sizeof(aggrHTEntry{}))
)

// ExtractSalt keeps the top 16 bits of hash and sets the pointer bits, so
// that it can be compared against GetSalt directly.
func ExtractSalt(hash uint64) uint64 {
	return hash | POINTER_MASK
}

func (ent *aggrHTEntry) IsOccupied() bool {
	return ent._value != 0
}

func (ent *aggrHTEntry) GetPointer() unsafe.Pointer {
	return unsafe.Pointer(uintptr(ent._value & POINTER_MASK))
}

// SetPointer keeps the salt. SetSalt must come first.
func (ent *aggrHTEntry) SetPointer(ptr unsafe.Pointer) {
	p := uint64(uintptr(ptr))
	util.AssertFuncf(p&SALT_MASK == 0, "row pointer %x wider than 48 bits", p)
	ent._value &= p | SALT_MASK
}

func (ent *aggrHTEntry) GetSalt() uint64 {
	return ent._value | POINTER_MASK
}

// SetSalt overwrites the whole word. The pointer bits are all ones until
// SetPointer, which keeps the slot occupied meanwhile.
func (ent *aggrHTEntry) SetSalt(salt uint64) {
	ent._value = salt
}

func (ent *aggrHTEntry) clean() {
	ent._value = 0
}

func (ent *aggrHTEntry) String() string {
	return fmt.Sprintf("salt:%x ptr:%x", ent._value>>48, ent._value&POINTER_MASK)
}
