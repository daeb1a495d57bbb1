package model

import (
	"fmt"

	"github.com/pkg/errors"
)

// Error definitions for the model package.
var (
	ErrNotFound        = errors.New("model not found in registry")
	ErrMissingArtifact = errors.New("missing model file")
	ErrOutputMismatch  = errors.New("model output size does not match class labels")
	ErrInputMismatch   = errors.New("model input shape does not match configuration")
	ErrInference       = errors.New("inference failed")
	ErrUnknownClass    = errors.New("unknown class index")
)

// UnknownClassError reports an arg-max index with no label.
type UnknownClassError struct {
	Model string
	Index int
}

func (e *UnknownClassError) Error() string {
	return fmt.Sprintf("%s: unknown class index %d", e.Model, e.Index)
}

func (e *UnknownClassError) Is(target error) bool {
	return target == ErrUnknownClass
}
