package vtlb

import "fmt"

// Kind classifies a translated virtual page.
type Kind int

const (
	Direct Kind = iota
	Handled
	Unmapped
	BusError
)

func (k Kind) String() string {
	switch k {
	case Direct:
		return "direct"
	case Handled:
		return "handler"
	case Unmapped:
		return "unmapped"
	case BusError:
		return "bus error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Translation is the decoded virtual table entry for one address.
type Translation struct {
	Kind Kind

	// Host is the host offset for Direct pages.
	Host uint32

	// Slot and Address are set for every other kind. Address is the
	// physical address for handler and bus error pages and the virtual
	// address for unmapped ones, with the top bit restored.
	Slot    Slot
	Address uint32
}

// Lookup decodes the translation of vaddr without performing an access.
func (v *VTLB) Lookup(vaddr uint32) Translation {
	vmv := v.vmap[vaddr>>PageBits]
	ppf := vaddr + uint32(vmv)
	if direct(ppf) {
		return Translation{Kind: Direct, Host: ppf}
	}
	slot := Slot(uint8(vmv))
	t := Translation{Kind: Handled, Slot: slot, Address: ppf - uint32(slot) + handlerBit}
	switch slot {
	case v.unmappedVirt[0]:
		t.Kind = Unmapped
	case v.unmappedVirt[1]:
		t.Kind = Unmapped
		t.Address |= handlerBit
	case v.unmappedPhys[0], v.defaultPhys:
		t.Kind = BusError
	case v.unmappedPhys[1]:
		t.Kind = BusError
		t.Address |= handlerBit
	}
	return t
}

// Region is a run of virtual pages with the same kind and slot whose
// targets are contiguous.
type Region struct {
	Start uint32
	Size  uint64
	Translation
}

func (r Region) String() string {
	end := uint64(r.Start) + r.Size - 1
	switch r.Kind {
	case Direct:
		return fmt.Sprintf("%08x-%08x direct host+%08x", r.Start, end, r.Host)
	case Unmapped:
		return fmt.Sprintf("%08x-%08x unmapped", r.Start, end)
	default:
		return fmt.Sprintf("%08x-%08x %s slot %d -> %08x", r.Start, end, r.Kind, r.Slot, r.Address)
	}
}

// Regions walks the whole virtual space and coalesces it into regions.
func (v *VTLB) Regions() []Region {
	var out []Region
	for page := uint64(0); page < vmapItems; page++ {
		vaddr := uint32(page << PageBits)
		t := v.Lookup(vaddr)
		if n := len(out); n > 0 && continues(out[n-1], t) {
			out[n-1].Size += PageSize
			continue
		}
		out = append(out, Region{Start: vaddr, Size: PageSize, Translation: t})
	}
	return out
}

func continues(r Region, t Translation) bool {
	if r.Kind != t.Kind || r.Slot != t.Slot {
		return false
	}
	switch r.Kind {
	case Direct:
		return uint64(r.Host)+r.Size == uint64(t.Host)
	case Unmapped:
		return true
	default:
		return uint64(r.Address)+r.Size == uint64(t.Address)
	}
}

// PageTables exposes the live tables. The recompiler and the snapshot code
// read them; nobody outside this package may write them.
func (v *VTLB) PageTables() (pmap, vmap []int32) {
	return v.pmap, v.vmap
}

// RestoreTables overwrites both tables with saved copies. The caller must
// have registered the same handler sets, in the same order, as when they
// were saved.
func (v *VTLB) RestoreTables(pmap, vmap []int32, handlers int) error {
	if len(pmap) != len(v.pmap) || len(vmap) != len(v.vmap) {
		return fmt.Errorf("vtlb: restore: table sizes %d/%d, want %d/%d", len(pmap), len(vmap), len(v.pmap), len(v.vmap))
	}
	if handlers != v.count {
		return fmt.Errorf("vtlb: restore: saved with %d handler sets, %d registered", handlers, v.count)
	}
	copy(v.pmap, pmap)
	copy(v.vmap, vmap)
	return nil
}
