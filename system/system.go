package system

import (
	"fmt"
	"log"

	"ee/console"
	"ee/hostmem"
	"ee/interrupts"
	"ee/logger"
	"ee/tlb"
	"ee/vtlb"
)

// Config of the emulated memory system.
type Config struct {
	// ROMPath is the boot ROM image. Empty leaves the ROM zeroed.
	ROMPath string

	// Debug logs every default handler and register file access.
	Debug bool

	// ArenaSize is the host memory reserved for RAM, ROM and scratchpad.
	ArenaSize int
}

// DefaultConfig returns the retail EE configuration without a ROM image.
func DefaultConfig() Config {
	return Config{
		ArenaSize: RAMSize + ROMSize + ScratchpadSize,
	}
}

// System definition.
type System struct {
	Host *hostmem.Arena
	VTLB *vtlb.VTLB
	TLB  *tlb.TLB

	// COP0 latches the fault state of the last trap.
	COP0 *interrupts.TrapDispatcher

	RAM        hostmem.Buffer
	ROM        hostmem.Buffer
	Scratchpad hostmem.Buffer

	Registers *RegisterFile
	GS        *RegisterFile

	ioSlot       vtlb.Slot
	gsSlot       vtlb.Slot
	reservedSlot vtlb.Slot

	log     *log.Logger
	console console.Console
}

// New reserves host memory and builds the EE memory map.
func New(cfg Config, c console.Console, log *log.Logger) (*System, error) {
	if log == nil {
		log = logger.Discard()
	}
	if c == nil {
		c = console.Discard{}
	}
	if cfg.ArenaSize == 0 {
		cfg.ArenaSize = DefaultConfig().ArenaSize
	}

	host, err := hostmem.New(cfg.ArenaSize)
	if err != nil {
		return nil, fmt.Errorf("system: %w", err)
	}
	sys := &System{
		Host:    host,
		COP0:    &interrupts.TrapDispatcher{Log: log},
		log:     log,
		console: c,
	}
	if err := sys.alloc(); err != nil {
		host.Close()
		return nil, err
	}

	sys.Registers = NewRegisterFile("hw", RegisterBase, RegisterSize, log, cfg.Debug)
	sys.GS = NewRegisterFile("gs", GSBase, GSSize, log, cfg.Debug)
	sys.VTLB = vtlb.New(host, vtlb.Options{Dispatcher: sys.COP0, Log: log, Debug: cfg.Debug})
	sys.TLB = tlb.New(sys.VTLB, sys.Scratchpad, log)

	_ = sys.console.WriteConsole("Initializing EE memory map.\n")
	sys.Map()

	if cfg.ROMPath != "" {
		if err := sys.LoadROM(cfg.ROMPath); err != nil {
			host.Close()
			return nil, err
		}
		_ = sys.console.WriteConsole(fmt.Sprintf("ROM %s loaded.\n", cfg.ROMPath))
	}
	return sys, nil
}

func (sys *System) alloc() error {
	var err error
	if sys.RAM, err = sys.Host.Alloc(RAMSize); err != nil {
		return fmt.Errorf("system: ram: %w", err)
	}
	if sys.ROM, err = sys.Host.Alloc(ROMSize); err != nil {
		return fmt.Errorf("system: rom: %w", err)
	}
	if sys.Scratchpad, err = sys.Host.Alloc(ScratchpadSize); err != nil {
		return fmt.Errorf("system: scratchpad: %w", err)
	}
	return nil
}

// Map clears the tables and installs the power-on memory map. Host memory
// contents are kept.
func (sys *System) Map() {
	sys.VTLB.Initialize()
	sys.TLB.Flush()
	sys.mapPhysical()
	sys.mapVirtual()
}

// Reset drops the TLB mappings the guest made; the fixed segments stay.
func (sys *System) Reset() {
	sys.VTLB.Reset()
	sys.Registers.Clear()
	sys.GS.Clear()
	_ = sys.console.WriteConsole("Reset.\n")
}

// Close releases host memory. The system is unusable afterwards.
func (sys *System) Close() error {
	sys.VTLB.Shutdown()
	return sys.Host.Close()
}

// Memory is the guest view used by CPU cores and tools.
func (sys *System) Memory() vtlb.Memory { return sys.VTLB }

// Exec runs fn the way the CPU loop runs an instruction: a TLB miss raised
// inside ends fn early and is returned. Other panics propagate.
func (sys *System) Exec(fn func()) (trap *interrupts.Trap) {
	defer func() {
		t := recover()
		switch t := t.(type) {
		case interrupts.Trap:
			sys.log.Printf("TRAP %d at %#08x: %s\n", t.Code, t.BadVAddr, t.Msg)
			trap = &t
		case nil:
			// ignore
		default:
			panic(t)
		}
	}()
	fn()
	return nil
}

// Slots returns the handler slots the memory map registered, in order.
func (sys *System) Slots() []vtlb.Slot {
	return []vtlb.Slot{sys.ioSlot, sys.gsSlot, sys.reservedSlot}
}
