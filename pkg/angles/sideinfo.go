package angles

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"scfanalysis/internal/models"
)

// sideInfoPrecision is the number of decimals written per angle.
const sideInfoPrecision = 6

// BuildSideInfo decomposes every record in iteration order and writes the
// resulting triples to path, one tab-separated row per particle.
//
// Any previous file at path is removed first. A record without a usable
// transform aborts the build with a MissingTransformError before anything
// is written, so path never holds a truncated file. The file is written to
// a temporary sibling, synced and renamed into place.
func (e *Extractor) BuildSideInfo(ctx context.Context, records iter.Seq2[models.ParticleRecord, error], path string) ([]models.AngleTriple, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, &ArtifactWriteError{Path: path, Err: err}
	}

	triples := make([]models.AngleTriple, 0)
	position := 0
	for rec, err := range records {
		if err != nil {
			return nil, fmt.Errorf("read particle %d: %w", position, err)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		triple, err := e.DecomposeTransform(rec.Transform)
		if err != nil {
			var mte *MissingTransformError
			if errors.As(err, &mte) {
				mte.Index = position
				mte.ID = rec.ID
			}
			return nil, err
		}
		triples = append(triples, triple)
		position++
	}

	if err := WriteSideInfo(path, triples); err != nil {
		return nil, err
	}
	return triples, nil
}

// WriteSideInfo atomically replaces path with the given triples.
func WriteSideInfo(path string, triples []models.AngleTriple) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &ArtifactWriteError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return &ArtifactWriteError{Path: path, Err: err}
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	w := bufio.NewWriter(tmp)
	if err := encodeSideInfo(w, triples); err != nil {
		return &ArtifactWriteError{Path: path, Err: err}
	}
	if err := w.Flush(); err != nil {
		return &ArtifactWriteError{Path: path, Err: err}
	}
	// The SCF program opens the file by path once it starts.
	if err := tmp.Sync(); err != nil {
		return &ArtifactWriteError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &ArtifactWriteError{Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return &ArtifactWriteError{Path: path, Err: err}
	}
	committed = true
	return nil
}

func encodeSideInfo(w io.Writer, triples []models.AngleTriple) error {
	for _, t := range triples {
		v := t.Values()
		line := formatAngle(v[0]) + "\t" + formatAngle(v[1]) + "\t" + formatAngle(v[2]) + "\n"
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}
	return nil
}

func formatAngle(v float64) string {
	s := strconv.FormatFloat(v, 'f', sideInfoPrecision, 64)
	if strings.HasPrefix(s, "-") && strings.Trim(s[1:], "0.") == "" {
		return s[1:]
	}
	return s
}

// ReadSideInfo parses a side-info file back into triples.
func ReadSideInfo(path string) ([]models.AngleTriple, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var triples []models.AngleTriple
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Split(scanner.Text(), "\t")
		if len(fields) != 3 {
			return nil, fmt.Errorf("%s:%d: expected 3 fields, got %d", path, line, len(fields))
		}
		var vals [3]float64
		for i, field := range fields {
			v, err := strconv.ParseFloat(field, 64)
			if err != nil || math.IsNaN(v) {
				return nil, fmt.Errorf("%s:%d: bad value %q", path, line, field)
			}
			vals[i] = v
		}
		triples = append(triples, models.AngleTriple{Psi: vals[0], Theta: vals[1], Rot: vals[2]})
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return triples, nil
}
