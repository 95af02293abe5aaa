//go:build !(linux || darwin || freebsd)

package osmem

// Default falls back to heap reservations where anonymous mappings are not
// wired up.
func Default() Memory {
	return NewHeap()
}
