// Package angles turns particle transforms into the Euler angle side
// information consumed by the SCF program.
//
// Angles follow the static-frame x-y-z convention ("sxyz"): a rotation
// matrix R is decomposed as R = Rz(rot) * Ry(theta) * Rx(psi). This is
// the convention of the transformations module that produced the particle
// matrices upstream, so rows written here line up with what the SCF
// program was validated against.
package angles

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"

	"scfanalysis/internal/models"
)

// gimbalEpsilon is the threshold on cos(theta) below which psi and rot
// can no longer be separated.
const gimbalEpsilon = 4 * 2.220446049250313e-16

// Unit selects how angles are reported.
type Unit int

const (
	Degrees Unit = iota
	Radians
)

// ParseUnit maps a configuration value to a Unit.
func ParseUnit(s string) (Unit, error) {
	switch s {
	case "", "degrees", "deg":
		return Degrees, nil
	case "radians", "rad":
		return Radians, nil
	default:
		return Degrees, fmt.Errorf("unknown angle unit %q (must be degrees or radians)", s)
	}
}

func (u Unit) String() string {
	if u == Radians {
		return "radians"
	}
	return "degrees"
}

// RotationBlock copies the upper-left 3x3 block of t.
func RotationBlock(t *models.Transform) *mat.Dense {
	r := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r.Set(i, j, t.At(i, j))
		}
	}
	return r
}

// Decompose returns the sxyz Euler angles of r in radians.
//
// At gimbal lock (theta = ±90°) rot is fixed to zero and the whole
// in-plane rotation is assigned to psi.
func Decompose(r mat.Matrix) models.AngleTriple {
	cy := math.Sqrt(r.At(0, 0)*r.At(0, 0) + r.At(1, 0)*r.At(1, 0))
	if cy > gimbalEpsilon {
		return models.AngleTriple{
			Psi:   math.Atan2(r.At(2, 1), r.At(2, 2)),
			Theta: math.Atan2(-r.At(2, 0), cy),
			Rot:   math.Atan2(r.At(1, 0), r.At(0, 0)),
		}
	}
	return models.AngleTriple{
		Psi:   math.Atan2(-r.At(1, 2), r.At(1, 1)),
		Theta: math.Atan2(-r.At(2, 0), cy),
		Rot:   0,
	}
}

// Compose builds the rotation matrix for a triple given in radians.
// It is the inverse of Decompose.
func Compose(a models.AngleTriple) *mat.Dense {
	si, sj, sk := math.Sin(a.Psi), math.Sin(a.Theta), math.Sin(a.Rot)
	ci, cj, ck := math.Cos(a.Psi), math.Cos(a.Theta), math.Cos(a.Rot)
	cc, cs := ci*ck, ci*sk
	sc, ss := si*ck, si*sk

	return mat.NewDense(3, 3, []float64{
		cj * ck, sj*sc - cs, sj*cc + ss,
		cj * sk, sj*ss + cc, sj*cs - sc,
		-sj, cj * si, cj * ci,
	})
}

// ToRadians converts a triple expressed in unit u to radians.
func ToRadians(a models.AngleTriple, u Unit) models.AngleTriple {
	if u == Radians {
		return a
	}
	f := math.Pi / 180
	return models.AngleTriple{Psi: a.Psi * f, Theta: a.Theta * f, Rot: a.Rot * f}
}

func fromRadians(a models.AngleTriple, u Unit) models.AngleTriple {
	if u == Radians {
		return a
	}
	f := 180 / math.Pi
	return models.AngleTriple{Psi: a.Psi * f, Theta: a.Theta * f, Rot: a.Rot * f}
}

// Extractor decomposes particle transforms into angle triples.
type Extractor struct {
	unit Unit
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithUnit sets the output angle unit.
func WithUnit(u Unit) Option {
	return func(e *Extractor) {
		e.unit = u
	}
}

// NewExtractor creates an extractor reporting degrees unless overridden.
func NewExtractor(opts ...Option) *Extractor {
	e := &Extractor{unit: Degrees}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Unit returns the output angle unit.
func (e *Extractor) Unit() Unit {
	return e.unit
}

// DecomposeTransform converts a single transform into (psi, theta, rot).
func (e *Extractor) DecomposeTransform(t *models.Transform) (models.AngleTriple, error) {
	if t == nil {
		return models.AngleTriple{}, &MissingTransformError{}
	}
	if err := t.Validate(); err != nil {
		return models.AngleTriple{}, &MissingTransformError{Reason: err.Error()}
	}
	return fromRadians(Decompose(RotationBlock(t)), e.unit), nil
}
