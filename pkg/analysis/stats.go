package analysis

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"scfanalysis/internal/models"
)

// AxisStats summarises one angle column.
type AxisStats struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
}

// AngleStats summarises the angles written to the side-info file. The
// values are plain (non-circular) statistics in the side-info unit and are
// only reported, never passed to the SCF program.
type AngleStats struct {
	Count int
	Psi   AxisStats
	Theta AxisStats
	Rot   AxisStats
}

// ComputeStats summarises a sequence of triples.
func ComputeStats(triples []models.AngleTriple) AngleStats {
	s := AngleStats{Count: len(triples)}
	if len(triples) == 0 {
		return s
	}

	psi := make([]float64, len(triples))
	theta := make([]float64, len(triples))
	rot := make([]float64, len(triples))
	for i, t := range triples {
		psi[i], theta[i], rot[i] = t.Psi, t.Theta, t.Rot
	}

	s.Psi = axisStats(psi)
	s.Theta = axisStats(theta)
	s.Rot = axisStats(rot)
	return s
}

func axisStats(x []float64) AxisStats {
	a := AxisStats{Min: floats.Min(x), Max: floats.Max(x)}
	if len(x) == 1 {
		a.Mean = x[0]
		return a
	}
	a.Mean, a.StdDev = stat.MeanStdDev(x, nil)
	return a
}
