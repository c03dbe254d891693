//go:build !linux && !darwin && !freebsd

package cpu

func allocArena(size int) ([]byte, error) {
	return make([]byte, size), nil
}

func freeArena(p []byte) error {
	return nil
}
