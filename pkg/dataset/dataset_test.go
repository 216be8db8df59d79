package dataset

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scfanalysis/internal/models"
	"scfanalysis/pkg/angles"
)

const identityMatrix = "[[1.0, 0.0, 0.0, 0.0], [0.0, 1.0, 0.0, 0.0], [0.0, 0.0, 1.0, 0.0], [0.0, 0.0, 0.0, 1.0]]"

type testParticle struct {
	matrix   any
	filename string
	index    int
}

// createParticleSet writes a minimal particle set in the host sqlite layout.
func createParticleSet(t *testing.T, dir string, sampling string, particles []testParticle) string {
	t.Helper()

	path := filepath.Join(dir, "particles.sqlite")
	db, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	defer db.Close()

	stmts := []string{
		`CREATE TABLE Properties (key TEXT UNIQUE, value TEXT DEFAULT NULL)`,
		`CREATE TABLE Classes (id INTEGER PRIMARY KEY AUTOINCREMENT, label_property TEXT UNIQUE, column_name TEXT UNIQUE, class_name TEXT DEFAULT NULL)`,
		`CREATE TABLE Objects (id INTEGER PRIMARY KEY, enabled INTEGER DEFAULT 1, label TEXT DEFAULT NULL, comment TEXT DEFAULT NULL, creation DATE, c01 INTEGER DEFAULT NULL, c02 TEXT DEFAULT NULL, c03 TEXT DEFAULT NULL)`,
		`INSERT INTO Classes (label_property, column_name, class_name) VALUES ('_index', 'c01', 'Integer'), ('_filename', 'c02', 'String'), ('_transform._matrix', 'c03', 'Matrix')`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err, stmt)
	}
	if sampling != "" {
		_, err := db.Exec(`INSERT INTO Properties (key, value) VALUES ('_samplingRate', ?)`, sampling)
		require.NoError(t, err)
	}
	// Insert in reverse so ordering by id is observable.
	for i := len(particles) - 1; i >= 0; i-- {
		p := particles[i]
		_, err := db.Exec(`INSERT INTO Objects (id, c01, c02, c03) VALUES (?, ?, ?, ?)`, i+1, p.index, p.filename, p.matrix)
		require.NoError(t, err)
	}
	return path
}

func writeMRC(t *testing.T, path string, nx, ny, nz int32, order binary.ByteOrder, stamp byte) {
	t.Helper()
	hdr := make([]byte, mrcHeaderSize)
	order.PutUint32(hdr[0:4], uint32(nx))
	order.PutUint32(hdr[4:8], uint32(ny))
	order.PutUint32(hdr[8:12], uint32(nz))
	order.PutUint32(hdr[12:16], 2)
	hdr[mrcStampOffset] = stamp
	require.NoError(t, os.WriteFile(path, hdr, 0644))
}

func TestSQLiteSetParticles(t *testing.T) {
	dir := t.TempDir()
	path := createParticleSet(t, dir, "1.35", []testParticle{
		{matrix: identityMatrix, filename: "stack.mrcs", index: 1},
		{matrix: "[[0.0, -1.0, 0.0], [1.0, 0.0, 0.0], [0.0, 0.0, 1.0]]", filename: "2@other.mrcs"},
		{matrix: nil, filename: "stack.mrcs", index: 3},
	})

	set, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer set.Close()

	assert.Equal(t, 1.35, set.SamplingRate())

	n, err := set.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	var got []models.ParticleRecord
	for rec, err := range set.Particles(context.Background()) {
		require.NoError(t, err)
		got = append(got, rec)
	}
	require.Len(t, got, 3)

	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, 0, got[0].Index)
	require.NotNil(t, got[0].Transform)
	assert.Equal(t, 4, got[0].Transform.Rows)
	assert.Equal(t, 1.0, got[0].Transform.At(2, 2))

	assert.Equal(t, "other.mrcs", got[1].Filename)
	assert.Equal(t, 2, got[1].ImageIndex)
	assert.Equal(t, 3, got[1].Transform.Cols)
	assert.Equal(t, -1.0, got[1].Transform.At(0, 1))

	assert.Nil(t, got[2].Transform)
	assert.Equal(t, 2, got[2].Index)
}

func TestSQLiteSetStableOrder(t *testing.T) {
	path := createParticleSet(t, t.TempDir(), "2.0", []testParticle{
		{matrix: identityMatrix}, {matrix: identityMatrix}, {matrix: identityMatrix}, {matrix: identityMatrix},
	})
	set, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer set.Close()

	collect := func() []int64 {
		var ids []int64
		for rec, err := range set.Particles(context.Background()) {
			require.NoError(t, err)
			ids = append(ids, rec.ID)
		}
		return ids
	}
	first := collect()
	assert.Equal(t, []int64{1, 2, 3, 4}, first)
	assert.Equal(t, first, collect())
}

func TestSQLiteSetBoxSizeFromHeader(t *testing.T) {
	dir := t.TempDir()
	writeMRC(t, filepath.Join(dir, "stack.mrcs"), 200, 200, 10, binary.LittleEndian, 0x44)
	path := createParticleSet(t, dir, "1.0", []testParticle{
		{matrix: identityMatrix, filename: "stack.mrcs", index: 1},
	})

	set, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer set.Close()

	box, err := set.BoxSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 200, box)
}

func TestSQLiteSetBoxSizeOverride(t *testing.T) {
	path := createParticleSet(t, t.TempDir(), "1.0", []testParticle{{matrix: identityMatrix, filename: "missing.mrcs"}})

	set, err := OpenSQLite(context.Background(), path, WithBoxSize(128))
	require.NoError(t, err)
	defer set.Close()

	box, err := set.BoxSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 128, box)
}

func TestSQLiteSetMissingSamplingRate(t *testing.T) {
	path := createParticleSet(t, t.TempDir(), "", nil)

	_, err := OpenSQLite(context.Background(), path)
	assert.Error(t, err)
}

func TestSQLiteSetMalformedMatrix(t *testing.T) {
	path := createParticleSet(t, t.TempDir(), "1.0", []testParticle{{matrix: "[[1.0, 0.0], [0.0]]"}})
	set, err := OpenSQLite(context.Background(), path)
	require.NoError(t, err)
	defer set.Close()

	var iterErr error
	for _, err := range set.Particles(context.Background()) {
		if err != nil {
			iterErr = err
			break
		}
	}
	assert.ErrorIs(t, iterErr, angles.ErrMissingTransform)

	var mte *angles.MissingTransformError
	require.ErrorAs(t, iterErr, &mte)
	assert.Equal(t, 0, mte.Index)
	assert.Equal(t, int64(1), mte.ID)
	assert.NotEmpty(t, mte.Reason)
}

func TestReadMRCHeaderBigEndian(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.mrc")
	writeMRC(t, path, 96, 64, 1, binary.BigEndian, 0x11)

	h, err := ReadMRCHeader(path)
	require.NoError(t, err)
	assert.Equal(t, MRCHeader{NX: 96, NY: 64, NZ: 1, Mode: 2}, h)
}

func TestReadMRCHeaderTruncated(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.mrc")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3}, 0644))

	_, err := ReadMRCHeader(path)
	assert.Error(t, err)
}

func TestMemoryParticles(t *testing.T) {
	m := NewMemory(1.5, 64, []models.ParticleRecord{{ID: 5}, {ID: 6}})

	var indexes []int
	for rec, err := range m.Particles(context.Background()) {
		require.NoError(t, err)
		indexes = append(indexes, rec.Index)
	}
	assert.Equal(t, []int{0, 1}, indexes)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, err := range m.Particles(ctx) {
		assert.True(t, errors.Is(err, context.Canceled))
	}
}

func TestSplitLocation(t *testing.T) {
	f, i := splitLocation("12@Runs/stack.mrcs", 0)
	assert.Equal(t, "Runs/stack.mrcs", f)
	assert.Equal(t, 12, i)

	f, i = splitLocation("plain.mrcs", 4)
	assert.Equal(t, "plain.mrcs", f)
	assert.Equal(t, 4, i)
}
