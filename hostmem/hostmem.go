// Package hostmem reserves the host address space that backs guest memory.
//
// Page-table values must fit in 31 bits so the translation fast path can
// tell a host location from a handler entry with a single sign test. A
// 64-bit host cannot promise that for raw pointers, so all backing memory is
// carved out of one contiguous reservation and referred to by offset.
package hostmem

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"
)

const (
	// PageSize is the allocation granularity.
	PageSize = 4096

	// MaxSize keeps every offset (plus an in-page displacement) below 2^31.
	MaxSize = 0x80000000 - PageSize

	// GuardSize is the page at offset 0 that Alloc never hands out. Table
	// entries near the top of the 32-bit space wrap to small offsets, and
	// those must not alias a real buffer.
	GuardSize = PageSize
)

var (
	ErrInvalidSize = errors.New("hostmem: invalid size")
	ErrExhausted   = errors.New("hostmem: arena exhausted")
	ErrClosed      = errors.New("hostmem: arena closed")
)

// Buffer is a page-aligned allocation inside an Arena.
type Buffer struct {
	Offset uint32
	Size   uint32
}

// End returns the first offset past the buffer.
func (b Buffer) End() uint32 {
	return b.Offset + b.Size
}

// Arena is a bump allocator over a single host reservation.
type Arena struct {
	mem    []byte
	next   uint32
	mapped bool
}

// New reserves the guard page plus size bytes of host memory. The
// reservation is lazily committed by the OS where possible, so large arenas
// are cheap until touched.
func New(size int) (*Arena, error) {
	if size <= 0 || size > MaxSize-GuardSize || size%PageSize != 0 {
		return nil, fmt.Errorf("%w: %#x", ErrInvalidSize, size)
	}
	mem, mapped, err := reserve(GuardSize + size)
	if err != nil {
		return nil, fmt.Errorf("hostmem: reserve %#x bytes: %w", size, err)
	}
	return &Arena{mem: mem, next: GuardSize, mapped: mapped}, nil
}

// Alloc hands out the next size bytes, rounded up to a whole page.
func (a *Arena) Alloc(size uint32) (Buffer, error) {
	if a.mem == nil {
		return Buffer{}, ErrClosed
	}
	if size == 0 {
		return Buffer{}, ErrInvalidSize
	}
	rounded := (uint64(size) + PageSize - 1) &^ (PageSize - 1)
	if uint64(a.next)+rounded > uint64(len(a.mem)) {
		return Buffer{}, fmt.Errorf("%w: want %#x, %#x left", ErrExhausted, rounded, uint32(len(a.mem))-a.next)
	}
	b := Buffer{Offset: a.next, Size: uint32(rounded)}
	a.next += uint32(rounded)
	return b, nil
}

// Close releases the reservation. Buffers handed out earlier become invalid.
func (a *Arena) Close() error {
	if a.mem == nil {
		return nil
	}
	var err error
	if a.mapped {
		err = release(a.mem)
	}
	a.mem = nil
	a.next = 0
	return err
}

// Size returns the reserved size in bytes, guard page included.
func (a *Arena) Size() int { return len(a.mem) }

// Used returns the allocation mark: the guard page plus every byte handed
// out by Alloc.
func (a *Arena) Used() uint32 { return a.next }

// SetUsed moves the allocation mark, used when restoring a saved arena.
func (a *Arena) SetUsed(n uint32) error {
	if n < GuardSize || uint64(n) > uint64(len(a.mem)) || n%PageSize != 0 {
		return fmt.Errorf("%w: used mark %#x", ErrInvalidSize, n)
	}
	a.next = n
	return nil
}

// Base returns the host address of offset 0. Only the recompiler needs it.
func (a *Arena) Base() uintptr {
	if len(a.mem) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&a.mem[0]))
}

// Bytes returns the memory behind b.
func (a *Arena) Bytes(b Buffer) []byte {
	return a.mem[b.Offset:b.End():b.End()]
}

// Slice returns n bytes starting at off.
func (a *Arena) Slice(off, n uint32) []byte {
	end := uint64(off) + uint64(n)
	return a.mem[off:end:end]
}

// Load8 reads a byte at off.
func (a *Arena) Load8(off uint32) uint8 {
	return a.mem[off]
}

// Load16 reads a little-endian halfword at off.
func (a *Arena) Load16(off uint32) uint16 {
	return binary.LittleEndian.Uint16(a.mem[off : off+2])
}

// Load32 reads a little-endian word at off.
func (a *Arena) Load32(off uint32) uint32 {
	return binary.LittleEndian.Uint32(a.mem[off : off+4])
}

func (a *Arena) Store8(off uint32, v uint8) {
	a.mem[off] = v
}

func (a *Arena) Store16(off uint32, v uint16) {
	binary.LittleEndian.PutUint16(a.mem[off:off+2], v)
}

func (a *Arena) Store32(off uint32, v uint32) {
	binary.LittleEndian.PutUint32(a.mem[off:off+4], v)
}
