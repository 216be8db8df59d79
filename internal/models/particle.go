package models

import (
	"fmt"
	"math"
)

// Transform is a particle's rigid transform in row-major order.
// Rows and Cols are 3x3, 3x4 or 4x4; only the upper-left 3x3
// rotation block is used and the translation column is ignored.
type Transform struct {
	Rows, Cols int
	Data       []float64
}

// NewTransform wraps row-major data as a Transform.
func NewTransform(rows, cols int, data []float64) *Transform {
	return &Transform{Rows: rows, Cols: cols, Data: data}
}

// IdentityTransform returns a 4x4 identity transform.
func IdentityTransform() *Transform {
	return &Transform{Rows: 4, Cols: 4, Data: []float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}}
}

// At returns the element at row i, column j.
func (t *Transform) At(i, j int) float64 {
	return t.Data[i*t.Cols+j]
}

// Validate checks the shape and that the rotation block is finite.
func (t *Transform) Validate() error {
	switch {
	case t.Rows == 3 && t.Cols == 3:
	case t.Rows == 3 && t.Cols == 4:
	case t.Rows == 4 && t.Cols == 4:
	default:
		return fmt.Errorf("unsupported transform shape %dx%d", t.Rows, t.Cols)
	}
	if len(t.Data) != t.Rows*t.Cols {
		return fmt.Errorf("transform has %d values, want %d", len(t.Data), t.Rows*t.Cols)
	}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			v := t.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("transform element (%d,%d) is not finite", i, j)
			}
		}
	}
	return nil
}

// ParticleRecord is the projection of a host particle that the
// extraction step reads. It is never mutated.
type ParticleRecord struct {
	// ID is the host's object identifier
	ID int64

	// Index is the zero-based position in iteration order
	Index int

	// Transform is the estimated orientation; nil when the host has none
	Transform *Transform

	// Filename is the image stack holding the particle
	Filename string

	// ImageIndex is the 1-based position inside the stack
	ImageIndex int
}

// AngleTriple holds the Euler angles of one particle in extraction order.
type AngleTriple struct {
	Psi   float64
	Theta float64
	Rot   float64
}

// Values returns the triple in file column order.
func (a AngleTriple) Values() [3]float64 {
	return [3]float64{a.Psi, a.Theta, a.Rot}
}
