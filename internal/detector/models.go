package detector

import (
	"fmt"
	"path/filepath"
	"slices"
)

// Backend selects the compute target used for inference.
type Backend int

const (
	// BackendCPU runs inference on the general purpose processor.
	BackendCPU Backend = 0
	// BackendAccelerated runs inference on a hardware accelerator.
	BackendAccelerated Backend = 1
)

// String returns "cpu" or "accelerated".
func (b Backend) String() string {
	switch b {
	case BackendCPU:
		return "cpu"
	case BackendAccelerated:
		return "accelerated"
	default:
		return fmt.Sprintf("backend(%d)", int(b))
	}
}

// Valid reports whether b is a known backend.
func (b Backend) Valid() bool {
	return b == BackendCPU || b == BackendAccelerated
}

// Model family identifiers.
const (
	FamilyBlazeFace  = "blazeface"
	FamilyFaceMesh   = "facemesh"
	FamilyRetinaFace = "retinaface"
)

// familySizes lists the input sizes each family ships weights for.
var familySizes = map[string][]int{
	FamilyBlazeFace:  {192, 320, 640},
	FamilyFaceMesh:   {192, 320, 640},
	FamilyRetinaFace: {640},
}

// ModelSpec is one entry of the model table addressed by numeric model id.
type ModelSpec struct {
	ID         int    `json:"id"`
	Family     string `json:"family"`
	TargetSize int    `json:"target_size"`
}

// Models is the table of selectable models, indexed by model id.
var Models = []ModelSpec{
	{ID: 0, Family: FamilyBlazeFace, TargetSize: 192},
	{ID: 1, Family: FamilyBlazeFace, TargetSize: 320},
	{ID: 2, Family: FamilyBlazeFace, TargetSize: 640},
	{ID: 3, Family: FamilyFaceMesh, TargetSize: 192},
	{ID: 4, Family: FamilyFaceMesh, TargetSize: 320},
	{ID: 5, Family: FamilyFaceMesh, TargetSize: 640},
	{ID: 6, Family: FamilyRetinaFace, TargetSize: 640},
}

// ModelConfig selects a model family, its input size and the backend to run it on.
type ModelConfig struct {
	Family     string  `json:"family"`
	TargetSize int     `json:"target_size"`
	Backend    Backend `json:"backend"`
}

// String formats the config as family/size@backend.
func (c ModelConfig) String() string {
	return fmt.Sprintf("%s/%d@%s", c.Family, c.TargetSize, c.Backend)
}

// Validate checks the family, target size and backend against the model table.
func (c ModelConfig) Validate() error {
	sizes, ok := familySizes[c.Family]
	if !ok {
		return fmt.Errorf("%w: unknown model family %q", ErrInvalidConfig, c.Family)
	}
	if !slices.Contains(sizes, c.TargetSize) {
		return fmt.Errorf("%w: family %s does not support target size %d", ErrInvalidConfig, c.Family, c.TargetSize)
	}
	if !c.Backend.Valid() {
		return fmt.Errorf("%w: unknown backend %d", ErrInvalidConfig, int(c.Backend))
	}
	return nil
}

// ModelPath returns the weights location for the family under dir.
func (c ModelConfig) ModelPath(dir string) string {
	return filepath.Join(dir, c.Family)
}

// ConfigFor maps a numeric model id and backend to a ModelConfig.
// Returns ErrInvalidConfig if either is out of range.
func ConfigFor(modelID, backend int) (ModelConfig, error) {
	if modelID < 0 || modelID >= len(Models) {
		return ModelConfig{}, fmt.Errorf("%w: model id %d out of range [0,%d]", ErrInvalidConfig, modelID, len(Models)-1)
	}
	b := Backend(backend)
	if !b.Valid() {
		return ModelConfig{}, fmt.Errorf("%w: backend %d out of range", ErrInvalidConfig, backend)
	}

	spec := Models[modelID]
	return ModelConfig{
		Family:     spec.Family,
		TargetSize: spec.TargetSize,
		Backend:    b,
	}, nil
}
