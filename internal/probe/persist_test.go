package probe

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trainedDetector(t *testing.T) *Detector {
	t.Helper()
	d := newTestDetector(t)
	f := discFrame(120, 120, 60, 60, 20.5)
	for i := 0; i < 6; i++ {
		_, err := d.Train(f, Circle(60, 60, 20.5), 0.2)
		require.NoError(t, err)
	}
	return d
}

func TestSaveLoad_RoundTrip(t *testing.T) {
	src := trainedDetector(t)
	path := filepath.Join(t.TempDir(), "tables.gob.gz")
	require.NoError(t, src.Save(path))

	dst := newTestDetector(t)
	require.NoError(t, dst.Load(path))

	for _, tbl := range []struct{ a, b *Table }{
		{src.coarse.table, dst.coarse.table},
		{src.fine.table, dst.fine.table},
	} {
		if diff := cmp.Diff(tbl.a.state(), tbl.b.state()); diff != "" {
			t.Errorf("restored table differs (-saved +loaded):\n%s", diff)
		}
	}

	// Scores are bit-identical after the round trip.
	f := discFrame(120, 120, 55, 62, 17.5)
	for _, h := range []struct {
		x, y int
		r    float64
	}{{55, 62, 18}, {60, 60, 20}, {30, 40, 12}} {
		want, err := src.Score(f, h.x, h.y, h.r)
		require.NoError(t, err)
		got, err := dst.Score(f, h.x, h.y, h.r)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	want, err := src.Detect(f)
	require.NoError(t, err)
	got, err := dst.Detect(f)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestSave_NoTempFilesLeft(t *testing.T) {
	dir := t.TempDir()
	d := newTestDetector(t)
	require.NoError(t, d.Save(filepath.Join(dir, "tables")))
	require.NoError(t, d.Save(filepath.Join(dir, "tables")))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tables", entries[0].Name())
}

func TestLoad_ParamsMismatchLeavesTablesIntact(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tables")
	require.NoError(t, trainedDetector(t).Save(path))

	p := testParams()
	p.OrientationStep = 10
	d, err := New(p, DefaultRefinement(), testOptions())
	require.NoError(t, err)
	d.coarse.table.weight[0] = 7
	before := d.coarse.table.state()

	err = d.Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrFormat), "got %v", err)
	assert.Contains(t, err.Error(), path)

	if diff := cmp.Diff(before, d.coarse.table.state()); diff != "" {
		t.Errorf("failed load modified the table:\n%s", diff)
	}
}

func TestLoad_RefinementMismatch(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, newTestDetector(t).Encode(&buf))

	ref := DefaultRefinement()
	ref.Band = 4
	d, err := New(testParams(), ref, testOptions())
	require.NoError(t, err)
	assert.True(t, errors.Is(d.Decode(&buf), ErrFormat))
}

func TestDecode_Malformed(t *testing.T) {
	good := newTestDetector(t)
	state := good.coarse.table.state()

	encode := func(s snapshot) []byte {
		var buf bytes.Buffer
		gz := gzip.NewWriter(&buf)
		require.NoError(t, gob.NewEncoder(gz).Encode(&s))
		require.NoError(t, gz.Close())
		return buf.Bytes()
	}
	negative := state
	negative.Weight = append([]float64(nil), state.Weight...)
	negative.Weight[3] = -1
	short := state
	short.Used = state.Used[:10]

	tests := []struct {
		name string
		data []byte
	}{
		{"not gzip", []byte("plain text")},
		{"gzip but not gob", func() []byte {
			var buf bytes.Buffer
			gz := gzip.NewWriter(&buf)
			_, _ = gz.Write([]byte("garbage"))
			_ = gz.Close()
			return buf.Bytes()
		}()},
		{"wrong magic", encode(snapshot{Magic: "other", Version: snapshotVersion})},
		{"future version", encode(snapshot{Magic: snapshotMagic, Version: snapshotVersion + 1})},
		{"negative weight", encode(snapshot{Magic: snapshotMagic, Version: snapshotVersion, Coarse: negative, Fine: good.fine.table.state()})},
		{"short arrays", encode(snapshot{Magic: snapshotMagic, Version: snapshotVersion, Coarse: short, Fine: good.fine.table.state()})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newTestDetector(t)
			err := d.Decode(bytes.NewReader(tt.data))
			assert.True(t, errors.Is(err, ErrFormat), "got %v", err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	d := newTestDetector(t)
	err := d.Load(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))
}
