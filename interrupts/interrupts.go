package interrupts

/**
 * Separate package exists mainly in order to avoid cyclic imports
 * between the translation core and the system that owns the CPU state.
 */

import (
	"fmt"
	"log"
)

// Direction of a guest memory access.
type Direction int

const (
	Read Direction = iota
	Write
)

func (d Direction) String() string {
	if d == Write {
		return "write"
	}
	return "read"
}

/********************************
 * R5900 exception codes (Cause.ExcCode):
 ********************************/

// ExcTLBL : TLB miss on load or instruction fetch
const ExcTLBL = 2

// ExcTLBS : TLB miss on store
const ExcTLBS = 3

// ExcDBE : bus error on data access
const ExcDBE = 7

// Trap is raised (panicked) when a guest access has to divert control flow.
// The run loop recovers it.
type Trap struct {
	Code     uint32
	BadVAddr uint32
	Msg      string
}

func (t Trap) Error() string {
	return t.Msg
}

// Dispatcher receives the guest-visible faults found during translation.
// TlbMiss is expected not to return when the CPU takes the exception.
type Dispatcher interface {
	TlbMiss(addr uint32, dir Direction)
	BusError(addr uint32, dir Direction)
}

// LogDispatcher only reports faults. It is the default when nobody owns
// the exception machinery, e.g. tooling peeking at guest memory.
type LogDispatcher struct {
	Log *log.Logger
}

func (d LogDispatcher) TlbMiss(addr uint32, dir Direction) {
	if d.Log != nil {
		d.Log.Printf("vtlb miss: addr %#08x, %s\n", addr, dir)
	}
}

func (d LogDispatcher) BusError(addr uint32, dir Direction) {
	if d.Log != nil {
		d.Log.Printf("vtlb bus error: addr %#08x, %s\n", addr, dir)
	}
}

// TrapDispatcher models the COP0 side of a fault: it latches BadVAddr and
// the exception code, then panics with a Trap on TLB misses. Bus errors on
// this machine are not precise, so they are only counted and logged.
type TrapDispatcher struct {
	BadVAddr  uint32
	Cause     uint32
	BusErrors int
	Log       *log.Logger
}

func (d *TrapDispatcher) TlbMiss(addr uint32, dir Direction) {
	code := uint32(ExcTLBL)
	if dir == Write {
		code = ExcTLBS
	}
	d.BadVAddr = addr
	d.Cause = code << 2
	panic(Trap{
		Code:     code,
		BadVAddr: addr,
		Msg:      fmt.Sprintf("TLB miss on %s at %#08x", dir, addr)})
}

func (d *TrapDispatcher) BusError(addr uint32, dir Direction) {
	d.BusErrors++
	if d.Log != nil {
		d.Log.Printf("bus error on %s at %#08x\n", dir, addr)
	}
}
