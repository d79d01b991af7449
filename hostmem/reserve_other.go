//go:build !linux && !darwin

package hostmem

// Without mmap the reservation is an ordinary heap slice.
func reserve(size int) ([]byte, bool, error) {
	return make([]byte, size), false, nil
}

func release(mem []byte) error {
	return nil
}
