package angles

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingTransform matches any MissingTransformError.
	ErrMissingTransform = errors.New("missing transform")

	// ErrInvalidParameter matches any InvalidParameterError.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrArtifactWrite matches any ArtifactWriteError.
	ErrArtifactWrite = errors.New("artifact write failed")
)

// MissingTransformError reports a particle without a usable orientation.
type MissingTransformError struct {
	Index  int
	ID     int64
	Reason string
}

func (e *MissingTransformError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("particle %d (id %d): missing transform", e.Index, e.ID)
	}
	return fmt.Sprintf("particle %d (id %d): unusable transform: %s", e.Index, e.ID, e.Reason)
}

func (e *MissingTransformError) Is(target error) bool {
	return target == ErrMissingTransform
}

// InvalidParameterError reports a physical parameter outside its domain.
type InvalidParameterError struct {
	Name  string
	Value float64
}

func (e *InvalidParameterError) Error() string {
	return fmt.Sprintf("invalid parameter %s: %g must be a positive finite number", e.Name, e.Value)
}

func (e *InvalidParameterError) Is(target error) bool {
	return target == ErrInvalidParameter
}

// ArtifactWriteError reports a failure to persist a run artifact.
type ArtifactWriteError struct {
	Path string
	Err  error
}

func (e *ArtifactWriteError) Error() string {
	return fmt.Sprintf("write artifact %s: %v", e.Path, e.Err)
}

func (e *ArtifactWriteError) Unwrap() error {
	return e.Err
}

func (e *ArtifactWriteError) Is(target error) bool {
	return target == ErrArtifactWrite
}
