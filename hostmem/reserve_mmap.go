//go:build linux || darwin

package hostmem

import "golang.org/x/sys/unix"

func reserve(size int) ([]byte, bool, error) {
	mem, err := unix.Mmap(-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANON|unix.MAP_PRIVATE|unix.MAP_NORESERVE)
	if err != nil {
		return nil, false, err
	}
	return mem, true, nil
}

func release(mem []byte) error {
	return unix.Munmap(mem)
}
