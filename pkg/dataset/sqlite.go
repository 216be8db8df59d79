package dataset

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	"scfanalysis/internal/models"
	"scfanalysis/pkg/angles"
)

// Labels of the particle attributes in a set's Classes table.
const (
	LabelMatrix   = "_transform._matrix"
	LabelFilename = "_filename"
	LabelIndex    = "_index"

	propSamplingRate = "_samplingRate"
)

var columnPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLiteSet reads a particle set stored in the host's sqlite layout:
// a Classes table mapping attribute labels to columns, an Objects table
// with one row per particle and a Properties key/value table.
type SQLiteSet struct {
	db         *sql.DB
	path       string
	projectDir string
	box        int
	sampling   float64
	columns    map[string]string
}

// SQLiteOption configures an SQLiteSet.
type SQLiteOption func(*SQLiteSet)

// WithProjectDir sets the directory image paths are relative to.
// Defaults to the directory holding the sqlite file.
func WithProjectDir(dir string) SQLiteOption {
	return func(s *SQLiteSet) {
		if dir != "" {
			s.projectDir = dir
		}
	}
}

// WithBoxSize skips reading the image header and reports box instead.
func WithBoxSize(box int) SQLiteOption {
	return func(s *SQLiteSet) {
		s.box = box
	}
}

// OpenSQLite opens a particle set file and loads its set-level metadata.
func OpenSQLite(ctx context.Context, path string, opts ...SQLiteOption) (*SQLiteSet, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open particle set: %w", err)
	}

	s := &SQLiteSet{
		db:         db,
		path:       path,
		projectDir: filepath.Dir(path),
		columns:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.loadColumns(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.loadSamplingRate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the database handle.
func (s *SQLiteSet) Close() error {
	return s.db.Close()
}

func (s *SQLiteSet) loadColumns(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT label_property, column_name FROM Classes`)
	if err != nil {
		return fmt.Errorf("read set classes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var label, column string
		if err := rows.Scan(&label, &column); err != nil {
			return fmt.Errorf("scan set classes: %w", err)
		}
		if !columnPattern.MatchString(column) {
			return fmt.Errorf("set classes: invalid column name %q for %s", column, label)
		}
		s.columns[label] = column
	}
	return rows.Err()
}

func (s *SQLiteSet) loadSamplingRate(ctx context.Context) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM Properties WHERE key = ?`, propSamplingRate).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("particle set %s has no %s property", s.path, propSamplingRate)
	}
	if err != nil {
		return fmt.Errorf("read sampling rate: %w", err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("parse sampling rate %q: %w", raw, err)
	}
	s.sampling = v
	return nil
}

// SamplingRate returns the set's pixel size.
func (s *SQLiteSet) SamplingRate() float64 {
	return s.sampling
}

// Count returns the number of particles in the set.
func (s *SQLiteSet) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM Objects`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count particles: %w", err)
	}
	return n, nil
}

// BoxSize returns the configured box size, or the x dimension of the
// first particle's image stack.
func (s *SQLiteSet) BoxSize(ctx context.Context) (int, error) {
	if s.box > 0 {
		return s.box, nil
	}
	for rec, err := range s.Particles(ctx) {
		if err != nil {
			return 0, err
		}
		if rec.Filename == "" {
			return 0, fmt.Errorf("particle %d has no image file to read the box size from", rec.ID)
		}
		h, err := ReadMRCHeader(s.resolve(rec.Filename))
		if err != nil {
			return 0, err
		}
		return h.NX, nil
	}
	return 0, errors.New("particle set is empty")
}

func (s *SQLiteSet) resolve(filename string) string {
	if filepath.IsAbs(filename) {
		return filename
	}
	return filepath.Join(s.projectDir, filename)
}

func (s *SQLiteSet) selectColumn(label string) string {
	if c, ok := s.columns[label]; ok {
		return `"` + c + `"`
	}
	return "NULL"
}

// Particles yields every particle ordered by object id.
func (s *SQLiteSet) Particles(ctx context.Context) iter.Seq2[models.ParticleRecord, error] {
	query := fmt.Sprintf(`SELECT id, %s, %s, %s FROM Objects ORDER BY id`,
		s.selectColumn(LabelMatrix), s.selectColumn(LabelFilename), s.selectColumn(LabelIndex))

	return func(yield func(models.ParticleRecord, error) bool) {
		rows, err := s.db.QueryContext(ctx, query)
		if err != nil {
			yield(models.ParticleRecord{}, fmt.Errorf("query particles: %w", err))
			return
		}
		defer rows.Close()

		index := 0
		for rows.Next() {
			var (
				id       int64
				matrix   sql.NullString
				filename sql.NullString
				imgIndex sql.NullInt64
			)
			if err := rows.Scan(&id, &matrix, &filename, &imgIndex); err != nil {
				yield(models.ParticleRecord{}, fmt.Errorf("scan particle: %w", err))
				return
			}

			rec := models.ParticleRecord{ID: id, Index: index, ImageIndex: int(imgIndex.Int64)}
			rec.Filename, rec.ImageIndex = splitLocation(filename.String, rec.ImageIndex)
			if matrix.Valid && strings.TrimSpace(matrix.String) != "" {
				t, err := ParseMatrix(matrix.String)
				if err != nil {
					yield(rec, &angles.MissingTransformError{Index: index, ID: id, Reason: err.Error()})
					return
				}
				rec.Transform = t
			}

			if !yield(rec, nil) {
				return
			}
			index++
		}
		if err := rows.Err(); err != nil {
			yield(models.ParticleRecord{}, fmt.Errorf("iterate particles: %w", err))
		}
	}
}

// splitLocation accepts both "path" and "index@path" forms.
func splitLocation(location string, index int) (string, int) {
	at := strings.Index(location, "@")
	if at <= 0 {
		return location, index
	}
	if n, err := strconv.Atoi(location[:at]); err == nil {
		return location[at+1:], n
	}
	return location, index
}

// ParseMatrix decodes a nested-list matrix such as
// "[[1.0, 0.0, 0.0, 0.0], [0.0, 1.0, 0.0, 0.0], ...]".
func ParseMatrix(raw string) (*models.Transform, error) {
	var rows [][]float64
	if err := json.Unmarshal([]byte(raw), &rows); err != nil {
		return nil, fmt.Errorf("parse transform matrix: %w", err)
	}
	if len(rows) == 0 {
		return nil, errors.New("parse transform matrix: empty matrix")
	}
	cols := len(rows[0])
	data := make([]float64, 0, len(rows)*cols)
	for i, r := range rows {
		if len(r) != cols {
			return nil, fmt.Errorf("parse transform matrix: row %d has %d columns, want %d", i, len(r), cols)
		}
		data = append(data, r...)
	}
	return models.NewTransform(len(rows), cols, data), nil
}

var _ Dataset = (*SQLiteSet)(nil)
