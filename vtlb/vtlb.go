/*
Package vtlb translates the 32-bit guest virtual address space of the EE
core onto host memory or onto registered handler sets.

Physical map handled by the tables:

	[0000 0000, 2000 0000) -> the physical window, 4 KiB pages
	[2000 0000, FFFF FFFF] -> outside the window, always a bus error

Every page of the window holds either a host offset or a handler slot.
Every page of the virtual space holds a delta: adding it to the guest
address gives a host offset (sign bit clear) or a value that still
carries the target address and whose entry names the handler slot (sign
bit set). One add and one sign test decide between the two paths; the
recompiler inlines the same sequence.
*/
package vtlb

import (
	"errors"
	"fmt"
	"log"
	"unsafe"

	"ee/hostmem"
	"ee/interrupts"
	"ee/logger"
)

const (
	PageBits = 12
	PageSize = 1 << PageBits
	PageMask = PageSize - 1

	// PhysicalWindow is the part of the physical space the tables can map.
	PhysicalWindow = 0x20000000

	// MaxHandlers is the capacity of the handler dispatch table.
	MaxHandlers = 128

	pmapItems = PhysicalWindow / PageSize
	vmapItems = 1 << (32 - PageBits)

	handlerBit = 0x80000000
)

// Slot identifies a registered handler set.
type Slot uint8

// Width of a guest access.
type Width uint8

const (
	W8 Width = iota
	W16
	W32
	W64
	W128
)

// Bits returns the access size in bits.
func (w Width) Bits() int { return 8 << w }

// Bytes returns the access size in bytes.
func (w Width) Bytes() int { return 1 << w }

func (w Width) String() string {
	return fmt.Sprintf("%d-bit", w.Bits())
}

// Uint128 is a quadword; Lo holds the bytes at the lower address.
type Uint128 struct {
	Lo, Hi uint64
}

var (
	// ErrPrecondition is wrapped by every panic caused by a malformed
	// mapping request. Those are bugs in the calling emulator.
	ErrPrecondition = errors.New("vtlb: precondition violated")

	// ErrHandlerTableFull is raised when more than MaxHandlers sets are
	// registered.
	ErrHandlerTableFull = fmt.Errorf("handler table full: %w", ErrPrecondition)
)

// Options configure a VTLB.
type Options struct {
	// Dispatcher receives TLB misses and bus errors. Defaults to a
	// LogDispatcher on Log.
	Dispatcher interrupts.Dispatcher
	Log        *log.Logger

	// Debug logs every default-handler hit.
	Debug bool
}

// VTLB owns the physical and virtual page tables and the handler table of
// one emulated CPU. It is not safe for concurrent use; mappings change only
// while the CPU is paused.
type VTLB struct {
	host *hostmem.Arena

	pmap []int32
	vmap []int32

	handlers [MaxHandlers]Handlers
	count    int

	unmappedVirt [2]Slot
	unmappedPhys [2]Slot
	defaultPhys  Slot

	dispatcher interrupts.Dispatcher
	log        *log.Logger
	debug      bool

	resetHooks []func()
}

// New allocates the tables over host. Call Initialize before use.
func New(host *hostmem.Arena, opts Options) *VTLB {
	v := &VTLB{
		host:       host,
		pmap:       make([]int32, pmapItems),
		vmap:       make([]int32, vmapItems),
		dispatcher: opts.Dispatcher,
		log:        opts.Log,
		debug:      opts.Debug,
	}
	if v.log == nil {
		v.log = logger.Discard()
	}
	if v.dispatcher == nil {
		v.dispatcher = interrupts.LogDispatcher{Log: v.log}
	}
	return v
}

// Initialize clears every table, registers the built-in handlers and marks
// the physical window as default-handled and the virtual space as unmapped.
func (v *VTLB) Initialize() {
	v.count = 0
	v.handlers = [MaxHandlers]Handlers{}
	clear(v.pmap)
	clear(v.vmap)

	// Unmapped handlers must be registered first. Translation cannot keep
	// the top address bit, so each half of the space gets its own slot and
	// the handler puts the bit back.
	v.unmappedVirt[0] = v.RegisterHandler(v.unmappedVirtual(0))
	v.unmappedVirt[1] = v.RegisterHandler(v.unmappedVirtual(handlerBit))
	v.unmappedPhys[0] = v.RegisterHandler(v.unmappedPhysical(0))
	v.unmappedPhys[1] = v.RegisterHandler(v.unmappedPhysical(handlerBit))
	v.defaultPhys = v.RegisterHandler(Handlers{})

	v.MapHandler(v.defaultPhys, 0, PhysicalWindow)
	v.unmapPages(0, vmapItems)
}

// OnReset registers translation-cache state layered on top of the tables
// that Reset must clear.
func (v *VTLB) OnReset(fn func()) {
	v.resetHooks = append(v.resetHooks, fn)
}

// Reset clears the layered translation caches. The tables are not touched
// beyond what those layers unmap themselves.
func (v *VTLB) Reset() {
	for _, fn := range v.resetHooks {
		fn()
	}
}

// Shutdown releases nothing; the host arena belongs to the caller.
func (v *VTLB) Shutdown() {}

// Host returns the arena direct entries point into.
func (v *VTLB) Host() *hostmem.Arena { return v.host }

// DefaultSlot is the handler every physical page starts out with.
func (v *VTLB) DefaultSlot() Slot { return v.defaultPhys }

// VmapAddr is the host address of the virtual page table, for the
// recompiler.
func (v *VTLB) VmapAddr() uintptr {
	return uintptr(unsafe.Pointer(&v.vmap[0]))
}

func verify(ok bool, op, format string, args ...any) {
	if !ok {
		panic(fmt.Errorf("vtlb: %s: %s: %w", op, fmt.Sprintf(format, args...), ErrPrecondition))
	}
}

func verifyRange(op string, start, size uint32, limit uint64) {
	verify(start&PageMask == 0, op, "start %#08x is not page aligned", start)
	verify(size&PageMask == 0 && size > 0, op, "size %#x must be a non-zero page multiple", size)
	verify(uint64(start)+uint64(size) <= limit, op, "range %#08x+%#x exceeds %#x", start, size, limit)
}
