//go:build cuda

package detector

import "gocv.io/x/gocv/cuda"

// AcceleratorCount returns the number of CUDA-enabled devices visible to OpenCV.
func AcceleratorCount() int {
	return cuda.GetCudaEnabledDeviceCount()
}
