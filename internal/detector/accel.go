//go:build !cuda

package detector

// AcceleratorCount returns the number of usable accelerator devices.
// Builds without the cuda tag have no accelerator support.
func AcceleratorCount() int {
	return 0
}
