package system

import (
	"fmt"
	"os"
)

/*
	Boot ROM -> read the image into the ROM block, the reset vector at
	bfc0 0000 (kseg1) then sees its first word.
*/

const (
	// ResetVector is where the R5900 starts fetching after reset.
	ResetVector = 0xBFC00000
)

// LoadROM copies the image at path to the start of the ROM block and
// clears the rest. Images larger than ROMSize are rejected.
func (sys *System) LoadROM(path string) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("load rom: %w", err)
	}
	return sys.SetROM(image)
}

// SetROM installs image as the ROM contents.
func (sys *System) SetROM(image []byte) error {
	if len(image) > ROMSize {
		return fmt.Errorf("rom image is %d bytes, at most %d fit", len(image), ROMSize)
	}
	rom := sys.Host.Bytes(sys.ROM)
	n := copy(rom, image)
	clear(rom[n:])
	sys.log.Printf("ROM: %d bytes loaded\n", n)
	return nil
}
