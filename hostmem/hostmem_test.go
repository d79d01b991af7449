package hostmem

import (
	"errors"
	"testing"
)

func TestNewRejectsBadSizes(t *testing.T) {
	tests := []struct {
		name string
		size int
	}{
		{"zero", 0},
		{"negative", -PageSize},
		{"unaligned", PageSize + 1},
		{"too large", MaxSize + PageSize},
		{"no room for the guard page", MaxSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.size); !errors.Is(err, ErrInvalidSize) {
				t.Errorf("New(%#x) error = %v, want ErrInvalidSize", tt.size, err)
			}
		})
	}
}

func TestAllocRoundsToPages(t *testing.T) {
	a, err := New(16 * PageSize)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	b1, err := a.Alloc(10)
	if err != nil {
		t.Fatal(err)
	}
	b2, err := a.Alloc(PageSize + 1)
	if err != nil {
		t.Fatal(err)
	}
	if b1.Offset != GuardSize || b1.Size != PageSize {
		t.Errorf("first buffer = %+v, want offset %#x size %#x", b1, GuardSize, PageSize)
	}
	if b2.Offset != GuardSize+PageSize || b2.Size != 2*PageSize {
		t.Errorf("second buffer = %+v, want offset %#x size %#x", b2, GuardSize+PageSize, 2*PageSize)
	}
	if a.Used() != GuardSize+3*PageSize {
		t.Errorf("Used() = %#x, want %#x", a.Used(), GuardSize+3*PageSize)
	}
}

func TestGuardPageNeverHandedOut(t *testing.T) {
	a, err := New(PageSize)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if a.Size() != GuardSize+PageSize {
		t.Errorf("Size() = %#x, want %#x", a.Size(), GuardSize+PageSize)
	}
	b, err := a.Alloc(PageSize)
	if err != nil {
		t.Fatal(err)
	}
	if b.Offset < GuardSize {
		t.Errorf("buffer %+v overlaps the guard page", b)
	}

	tests := []struct {
		name string
		mark uint32
		ok   bool
	}{
		{"empty", 0, false},
		{"inside guard", GuardSize / 2, false},
		{"guard only", GuardSize, true},
		{"full", GuardSize + PageSize, true},
		{"past end", GuardSize + 2*PageSize, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := a.SetUsed(tt.mark)
			if (err == nil) != tt.ok {
				t.Errorf("SetUsed(%#x) = %v, want ok %v", tt.mark, err, tt.ok)
			}
		})
	}
	if err := a.SetUsed(GuardSize); err != nil {
		t.Fatal(err)
	}
	if b, _ := a.Alloc(1); b.Offset != GuardSize {
		t.Errorf("Alloc after reset = %+v", b)
	}
}

func TestAllocExhaustion(t *testing.T) {
	a, err := New(2 * PageSize)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	if _, err := a.Alloc(2 * PageSize); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Alloc(1); !errors.Is(err, ErrExhausted) {
		t.Errorf("Alloc past the end error = %v, want ErrExhausted", err)
	}
	if _, err := a.Alloc(0); !errors.Is(err, ErrInvalidSize) {
		t.Errorf("Alloc(0) error = %v, want ErrInvalidSize", err)
	}
}

func TestLittleEndianAccess(t *testing.T) {
	a, err := New(PageSize)
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()

	b, err := a.Alloc(PageSize)
	if err != nil {
		t.Fatal(err)
	}
	a.Store32(b.Offset+0x10, 0xdeadbeef)
	if got := a.Load8(b.Offset + 0x10); got != 0xef {
		t.Errorf("Load8 = %#x, want 0xef", got)
	}
	if got := a.Load16(b.Offset + 0x12); got != 0xdead {
		t.Errorf("Load16 = %#x, want 0xdead", got)
	}
	a.Store16(b.Offset+0x20, 0x1234)
	a.Store8(b.Offset+0x22, 0x56)
	if got := a.Load32(b.Offset + 0x20); got != 0x00561234 {
		t.Errorf("Load32 = %#x, want 0x00561234", got)
	}
	if s := a.Slice(b.Offset+0x20, 3); len(s) != 3 || s[2] != 0x56 {
		t.Errorf("Slice = % x", s)
	}
}

func TestCloseInvalidatesArena(t *testing.T) {
	a, err := New(PageSize)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := a.Alloc(1); !errors.Is(err, ErrClosed) {
		t.Errorf("Alloc after Close error = %v, want ErrClosed", err)
	}
	if err := a.Close(); err != nil {
		t.Errorf("second Close error = %v", err)
	}
}
