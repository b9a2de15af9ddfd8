package models

// Error types attached to errors returned by the reconstruction packages.
// Use errors.Type or errors.IsType from go-tooling to classify them.
const (
	// ErrTypeInvalidConfig reports a non-positive grid resolution, a bad
	// padding, an empty point cloud or a degenerate bounding box.
	ErrTypeInvalidConfig = "invalid-config"

	// ErrTypeOutOfBounds reports a voxel coordinate outside the grid.
	ErrTypeOutOfBounds = "out-of-bounds"

	// ErrTypeSingularSystem reports an interpolation system that is not
	// positive definite, typically because of an isolated vertex.
	ErrTypeSingularSystem = "singular-system"

	// ErrTypeNotInitialized reports an operation on a component that has
	// not been initialized yet.
	ErrTypeNotInitialized = "not-initialized"

	// ErrTypeInvalidInput reports a malformed point cloud file.
	ErrTypeInvalidInput = "invalid-input"
)
