package embedding

import (
	"errors"

	"shopassist/internal/domain"
)

// Embedder converts free text or an image into a numeric vector representation.
type Embedder = domain.Embedder

// ErrImageUnsupported is returned by embedders that only understand text.
var ErrImageUnsupported = errors.New("embedder does not support images")

// IsZero reports whether every component of vec is zero, which happens when a
// query has no tokens the embedder recognises.
func IsZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}
