package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"ee/console"
	"ee/logger"
)

func TestBootScriptAndSnapshot(t *testing.T) {
	dir := t.TempDir()
	lua := filepath.Join(dir, "poke.lua")
	src := `write32(0x80001000, 0x6c6c6548) write8(0x80001004, 0x6f)`
	if err := os.WriteFile(lua, []byte(src), 0o644); err != nil {
		t.Fatal(err)
	}
	snap := filepath.Join(dir, "ee.snap")

	var out strings.Builder
	opts := options{script: lua, snapshot: snap}
	sys, engine, err := boot(opts, console.NewSimple(&out), logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	var dump strings.Builder
	renderMemory(&dump, sys, 0x80001000, 1)
	if want := "80001000  48 65 6c 6c 6f "; !strings.HasPrefix(dump.String(), want) {
		t.Errorf("memory line %q, want prefix %q", dump.String(), want)
	}
	if !strings.Contains(dump.String(), "Hello") {
		t.Errorf("text column missing: %q", dump.String())
	}
	if err := halt(opts, sys, engine); err != nil {
		t.Fatal(err)
	}

	// a fresh machine restored from the snapshot sees the same bytes
	sys, engine, err = boot(options{restore: snap}, console.NewSimple(&out), logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer halt(options{}, sys, engine)
	if got := sys.Memory().Read32(0x00001000); got != 0x6c6c6548 {
		t.Errorf("restored word = %#x", got)
	}
	if !strings.Contains(out.String(), "restored") {
		t.Errorf("console output %q", out.String())
	}
}

func TestRenderFaultingPages(t *testing.T) {
	sys, engine, err := boot(options{}, console.Discard{}, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer halt(options{}, sys, engine)

	var dump strings.Builder
	renderMemory(&dump, sys, 0x20000000, 2)
	lines := strings.Split(strings.TrimSpace(dump.String()), "\n")
	if len(lines) != 2 || !strings.HasPrefix(lines[1], "20000010  -- --") {
		t.Errorf("unmapped dump:\n%s", dump.String())
	}
	if sys.COP0.BadVAddr != 0 || sys.COP0.BusErrors != 0 {
		t.Errorf("rendering raised faults")
	}

	var m strings.Builder
	renderMap(&m, sys.VTLB)
	for _, want := range []string{
		"00000000-01ffffff direct",
		"70000000-70003fff direct",
		"80000000-81ffffff direct",
		"c0000000-ffffffff unmapped",
	} {
		if !strings.Contains(m.String(), want) {
			t.Errorf("map lacks %q:\n%s", want, m.String())
		}
	}
}

func TestBootErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		opts options
	}{
		{"missing rom", options{rom: filepath.Join(dir, "none.bin")}},
		{"missing script", options{script: filepath.Join(dir, "none.lua")}},
		{"missing snapshot", options{restore: filepath.Join(dir, "none.snap")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := boot(tt.opts, console.Discard{}, logger.Discard()); err == nil {
				t.Errorf("boot succeeded")
			}
		})
	}
}

func TestRenderCodegen(t *testing.T) {
	sys, engine, err := boot(options{}, console.Discard{}, logger.Discard())
	if err != nil {
		t.Fatal(err)
	}
	defer halt(options{}, sys, engine)

	var out strings.Builder
	if err := renderCodegen(&out, sys); err != nil {
		t.Fatal(err)
	}
	if n := strings.Count(out.String(), "; "); n != 12 {
		t.Errorf("%d sequences, want 12", n)
	}
	if strings.Contains(out.String(), " db ") {
		t.Errorf("undecodable output:\n%s", out.String())
	}
}
