package probe

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"

	"github.com/ironsheep/pupil-tools-mcp/internal/monitoring"
)

const (
	snapshotMagic   = "pupil-probe-tables"
	snapshotVersion = 1
)

// tableState is the persisted learned state of one table. Offsets are not
// stored: they are rebuilt deterministically from Params.
type tableState struct {
	Params  Params
	Used    []bool
	Weight  []float64
	Strikes []uint16
}

type snapshot struct {
	Magic   string
	Version int
	Coarse  tableState
	Fine    tableState
}

func (t *Table) state() tableState {
	return tableState{
		Params:  t.params,
		Used:    append([]bool(nil), t.used...),
		Weight:  append([]float64(nil), t.weight...),
		Strikes: append([]uint16(nil), t.strikes...),
	}
}

// check verifies that s was produced by a table shaped like t.
func (s tableState) check(name string, t *Table) error {
	if s.Params != t.params {
		return fmt.Errorf("%w: %s table built for %+v, detector configured for %+v", ErrFormat, name, s.Params, t.params)
	}
	n := t.Len()
	if len(s.Used) != n || len(s.Weight) != n || len(s.Strikes) != n {
		return fmt.Errorf("%w: %s table holds %d/%d/%d entries, want %d",
			ErrFormat, name, len(s.Used), len(s.Weight), len(s.Strikes), n)
	}
	for i, w := range s.Weight {
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return fmt.Errorf("%w: %s weight %d is %g", ErrFormat, name, i, w)
		}
	}
	return nil
}

func (t *Table) restore(s tableState) {
	copy(t.used, s.Used)
	copy(t.weight, s.Weight)
	copy(t.strikes, s.Strikes)
}

// Encode writes the learned state of both tables as a gzip-compressed gob
// stream.
func (d *Detector) Encode(w io.Writer) error {
	d.mu.RLock()
	snap := snapshot{
		Magic:   snapshotMagic,
		Version: snapshotVersion,
		Coarse:  d.coarse.table.state(),
		Fine:    d.fine.table.state(),
	}
	d.mu.RUnlock()

	gz := gzip.NewWriter(w)
	if err := gob.NewEncoder(gz).Encode(&snap); err != nil {
		gz.Close()
		return fmt.Errorf("failed to encode tables: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("failed to flush tables: %w", err)
	}
	return nil
}

// Decode reads a stream written by Encode. The stream must match the current
// configuration; otherwise ErrFormat is returned and the tables are left
// untouched.
func (d *Detector) Decode(r io.Reader) error {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	defer gz.Close()

	var snap snapshot
	if err := gob.NewDecoder(gz).Decode(&snap); err != nil {
		return fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if snap.Magic != snapshotMagic {
		return fmt.Errorf("%w: unexpected magic %q", ErrFormat, snap.Magic)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrFormat, snap.Version)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := snap.Coarse.check("coarse", d.coarse.table); err != nil {
		return err
	}
	if err := snap.Fine.check("fine", d.fine.table); err != nil {
		return err
	}
	d.coarse.table.restore(snap.Coarse)
	d.fine.table.restore(snap.Fine)
	return nil
}

// Save writes the tables to path. The file is written next to its final name
// and renamed into place, so a crash never leaves a truncated table behind.
func (d *Detector) Save(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".probe-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create table file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := d.Encode(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write table file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to store table file: %w", err)
	}
	monitoring.Logf("probe: tables saved to %s", path)
	return nil
}

// Load restores tables written by Save. See Decode for validation.
func (d *Detector) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open table file: %w", err)
	}
	defer f.Close()
	if err := d.Decode(f); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	monitoring.Logf("probe: tables loaded from %s", path)
	return nil
}
