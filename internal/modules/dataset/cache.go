package dataset

import (
	"fmt"
	"os"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/aristath/factorsweep/internal/domain"
)

// cacheVersion is bumped whenever the snapshot layout changes; stale
// snapshots are rejected and rebuilt from the CSVs.
const cacheVersion = 1

// panelSnapshot is the serialized form of a cleaned panel. The proxy
// columns are deliberately not stored; they are recomputed by the sweep.
type panelSnapshot struct {
	Version     int          `msgpack:"version"`
	FactorNames []string     `msgpack:"factor_names"`
	Rows        []domain.Row `msgpack:"rows"`
}

// SavePanel writes a cleaned-panel snapshot so repeated sweeps can skip
// the CSV pipeline. The write goes through a temp file and rename so a
// crash never leaves a truncated snapshot behind.
func SavePanel(path string, p *domain.Panel) error {
	data, err := msgpack.Marshal(panelSnapshot{
		Version:     cacheVersion,
		FactorNames: p.FactorNames,
		Rows:        p.Rows,
	})
	if err != nil {
		return fmt.Errorf("encoding panel snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing panel snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("committing panel snapshot: %w", err)
	}
	return nil
}

// LoadPanel reads a snapshot back. Version or factor-set mismatches are
// errors; the caller treats any error as "rebuild from the CSVs".
func LoadPanel(path string, wantFactors []string) (*domain.Panel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var snap panelSnapshot
	if err := msgpack.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decoding panel snapshot: %w", err)
	}
	if snap.Version != cacheVersion {
		return nil, fmt.Errorf("panel snapshot version %d, want %d", snap.Version, cacheVersion)
	}
	if len(wantFactors) > 0 && !equalStrings(snap.FactorNames, wantFactors) {
		return nil, fmt.Errorf("panel snapshot factor set %v does not match requested %v",
			snap.FactorNames, wantFactors)
	}

	// Revalidate: the snapshot must still satisfy the panel invariants.
	return domain.NewPanel(snap.FactorNames, snap.Rows)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
