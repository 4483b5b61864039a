// Package results persists sweep runs and their result surfaces to
// SQLite so past sweeps can be compared and served over the API.
package results

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/factorsweep/internal/database"
	"github.com/aristath/factorsweep/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS sweep_runs (
	id              TEXT PRIMARY KEY,
	created_at      TEXT NOT NULL,
	seed            INTEGER NOT NULL,
	use_pls         INTEGER NOT NULL,
	pls_components  INTEGER NOT NULL,
	proxy_window    INTEGER NOT NULL,
	days            INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sweep_cells (
	run_id        TEXT NOT NULL REFERENCES sweep_runs(id) ON DELETE CASCADE,
	f_idx         INTEGER NOT NULL,
	l_idx         INTEGER NOT NULL,
	feature_count INTEGER NOT NULL,
	lambda        REAL NOT NULL,
	status        TEXT NOT NULL,
	reason        TEXT NOT NULL DEFAULT '',
	days          INTEGER NOT NULL,
	mean          REAL,
	std           REAL,
	sharpe        REAL,
	PRIMARY KEY (run_id, f_idx, l_idx)
);

CREATE INDEX IF NOT EXISTS idx_sweep_cells_run ON sweep_cells(run_id);
`

// RunMeta describes one persisted sweep run.
type RunMeta struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Seed          uint64    `json:"seed"`
	UsePLS        bool      `json:"use_pls"`
	PLSComponents int       `json:"pls_components"`
	ProxyWindow   int       `json:"proxy_window"`
	Days          int       `json:"days"`
}

// Store is the sweep-run repository.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a results store and ensures its schema exists.
func NewStore(db *database.DB, log zerolog.Logger) (*Store, error) {
	if _, err := db.Conn().Exec(schema); err != nil {
		return nil, fmt.Errorf("creating results schema: %w", err)
	}
	return &Store{
		db:  db,
		log: log.With().Str("component", "results").Logger(),
	}, nil
}

// SaveRun persists a run and its full surface in one transaction and
// returns the run id.
func (s *Store) SaveRun(meta RunMeta, surface *domain.Surface) (string, error) {
	if meta.ID == "" {
		meta.ID = uuid.NewString()
	}
	if meta.CreatedAt.IsZero() {
		meta.CreatedAt = time.Now().UTC()
	}
	if meta.Days == 0 {
		for i := range surface.Cells {
			for j := range surface.Cells[i] {
				if d := surface.Cells[i][j].Days; d > meta.Days {
					meta.Days = d
				}
			}
		}
	}

	tx, err := s.db.Conn().Begin()
	if err != nil {
		return "", fmt.Errorf("starting save transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO sweep_runs (id, created_at, seed, use_pls, pls_components, proxy_window, days)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		meta.ID, meta.CreatedAt.Format(time.RFC3339), int64(meta.Seed),
		boolToInt(meta.UsePLS), meta.PLSComponents, meta.ProxyWindow, meta.Days,
	)
	if err != nil {
		return "", fmt.Errorf("inserting run: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO sweep_cells (run_id, f_idx, l_idx, feature_count, lambda, status, reason, days, mean, std, sharpe)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return "", fmt.Errorf("preparing cell insert: %w", err)
	}
	defer stmt.Close()

	for i, n := range surface.FeatureCounts {
		for j, lambda := range surface.Lambdas {
			cell := surface.Cells[i][j]
			mean, std, sharpe := cellValues(cell)
			if _, err := stmt.Exec(
				meta.ID, i, j, n, lambda,
				string(cell.Status), cell.Reason, cell.Days,
				mean, std, sharpe,
			); err != nil {
				return "", fmt.Errorf("inserting cell (n=%d, lambda=%g): %w", n, lambda, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing run: %w", err)
	}

	s.log.Info().Str("run_id", meta.ID).Int("days", meta.Days).Msg("Sweep run saved")
	return meta.ID, nil
}

// cellValues maps a cell to nullable storage values: skipped cells have
// no aggregates at all, zero-variance cells have no Sharpe.
func cellValues(cell domain.Cell) (mean, std, sharpe sql.NullFloat64) {
	if cell.Status != domain.CellComputed {
		return
	}
	mean = sql.NullFloat64{Float64: cell.Mean, Valid: true}
	std = sql.NullFloat64{Float64: cell.Std, Valid: true}
	if cell.SharpeValid {
		sharpe = sql.NullFloat64{Float64: cell.Sharpe, Valid: true}
	}
	return
}

// ListRuns returns run metadata, newest first.
func (s *Store) ListRuns(limit int) ([]RunMeta, error) {
	if limit < 1 {
		limit = 50
	}
	rows, err := s.db.Conn().Query(
		`SELECT id, created_at, seed, use_pls, pls_components, proxy_window, days
		 FROM sweep_runs ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var out []RunMeta
	for rows.Next() {
		meta, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, meta)
	}
	return out, rows.Err()
}

// GetRun returns one run's metadata.
func (s *Store) GetRun(id string) (*RunMeta, error) {
	row := s.db.Conn().QueryRow(
		`SELECT id, created_at, seed, use_pls, pls_components, proxy_window, days
		 FROM sweep_runs WHERE id = ?`, id)
	meta, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run %s not found", id)
	}
	if err != nil {
		return nil, err
	}
	return &meta, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(r rowScanner) (RunMeta, error) {
	var meta RunMeta
	var createdAt string
	var seed int64
	var usePLS int
	if err := r.Scan(&meta.ID, &createdAt, &seed, &usePLS,
		&meta.PLSComponents, &meta.ProxyWindow, &meta.Days); err != nil {
		return meta, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return meta, fmt.Errorf("parsing run timestamp: %w", err)
	}
	meta.CreatedAt = t
	meta.Seed = uint64(seed)
	meta.UsePLS = usePLS != 0
	return meta, nil
}

// LoadSurface reconstructs a run's result surface in its original grid
// order.
func (s *Store) LoadSurface(id string) (*domain.Surface, error) {
	rows, err := s.db.Conn().Query(
		`SELECT f_idx, l_idx, feature_count, lambda, status, reason, days, mean, std, sharpe
		 FROM sweep_cells WHERE run_id = ? ORDER BY f_idx, l_idx`, id)
	if err != nil {
		return nil, fmt.Errorf("loading surface for %s: %w", id, err)
	}
	defer rows.Close()

	var featureCounts []int
	var lambdas []float64
	type storedCell struct {
		fi, li int
		cell   domain.Cell
	}
	var cells []storedCell

	for rows.Next() {
		var fi, li, n, days int
		var lambda float64
		var status, reason string
		var mean, std, sharpe sql.NullFloat64
		if err := rows.Scan(&fi, &li, &n, &lambda, &status, &reason, &days, &mean, &std, &sharpe); err != nil {
			return nil, err
		}
		if fi == len(featureCounts) {
			featureCounts = append(featureCounts, n)
		}
		if fi == 0 && li == len(lambdas) {
			lambdas = append(lambdas, lambda)
		}
		cell := domain.Cell{
			Status: domain.CellStatus(status),
			Reason: reason,
			Days:   days,
		}
		if mean.Valid {
			cell.Mean = mean.Float64
			cell.Std = std.Float64
		}
		if sharpe.Valid {
			cell.Sharpe = sharpe.Float64
			cell.SharpeValid = true
		}
		cells = append(cells, storedCell{fi: fi, li: li, cell: cell})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(cells) == 0 {
		return nil, fmt.Errorf("run %s has no cells", id)
	}

	surface := domain.NewSurface(featureCounts, lambdas)
	for _, c := range cells {
		*surface.Cell(c.fi, c.li) = c.cell
	}
	return surface, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
