// Package dataset provides read-only access to particle sets owned by the
// host platform.
package dataset

import (
	"context"
	"iter"

	"scfanalysis/internal/models"
)

// Dataset is a particle set read by one analysis run. Iteration order is
// stable across repeated passes.
type Dataset interface {
	// SamplingRate is the pixel size in Å/px
	SamplingRate() float64

	// BoxSize is the x dimension, in pixels, shared by every particle image
	BoxSize(ctx context.Context) (int, error)

	// Particles yields records in stable order
	Particles(ctx context.Context) iter.Seq2[models.ParticleRecord, error]
}

// Memory is a Dataset backed by a slice.
type Memory struct {
	Sampling float64
	Box      int
	Records  []models.ParticleRecord
}

// NewMemory creates an in-memory dataset.
func NewMemory(sampling float64, box int, records []models.ParticleRecord) *Memory {
	return &Memory{Sampling: sampling, Box: box, Records: records}
}

func (m *Memory) SamplingRate() float64 {
	return m.Sampling
}

func (m *Memory) BoxSize(context.Context) (int, error) {
	return m.Box, nil
}

func (m *Memory) Particles(ctx context.Context) iter.Seq2[models.ParticleRecord, error] {
	return func(yield func(models.ParticleRecord, error) bool) {
		for i, rec := range m.Records {
			if err := ctx.Err(); err != nil {
				yield(models.ParticleRecord{}, err)
				return
			}
			rec.Index = i
			if !yield(rec, nil) {
				return
			}
		}
	}
}

var _ Dataset = (*Memory)(nil)
