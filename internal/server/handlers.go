package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/aristath/factorsweep/internal/domain"
)

// handleHealth handles liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	response := map[string]interface{}{
		"status":  "healthy",
		"service": "factorsweep",
	}

	s.writeJSON(w, http.StatusOK, response)
}

// handleSystemHealth reports process and host health alongside the
// results database status.
// GET /api/health
func (s *Server) handleSystemHealth(w http.ResponseWriter, r *http.Request) {
	cpuAvg, ramPercent := s.getSystemStats()

	status := "healthy"
	dbStatus := "ok"
	if err := s.resultsDB.HealthCheck(r.Context()); err != nil {
		status = "degraded"
		dbStatus = err.Error()
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":       status,
		"database":     dbStatus,
		"uptime_hours": time.Since(s.startup).Hours(),
		"cpu_percent":  cpuAvg,
		"ram_percent":  ramPercent,
	})
}

// getSystemStats calculates CPU and RAM usage percentages. A short
// sampling interval keeps the health endpoint responsive.
func (s *Server) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}

	return cpuAvg, memStat.UsedPercent
}

// handleListRuns lists persisted sweep runs, newest first.
// GET /api/runs?limit=N
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := s.store.ListRuns(limit)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to list runs")
		s.writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"runs": runs})
}

// handleGetRun returns one run's metadata.
// GET /api/runs/{id}
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	meta, err := s.store.GetRun(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	s.writeJSON(w, http.StatusOK, meta)
}

// cellResponse is the JSON form of one grid cell. Sharpe is null when
// the per-day returns had zero variance, mean/std are null for skipped
// cells.
type cellResponse struct {
	Status string   `json:"status"`
	Reason string   `json:"reason,omitempty"`
	Days   int      `json:"days"`
	Mean   *float64 `json:"mean"`
	Std    *float64 `json:"std"`
	Sharpe *float64 `json:"sharpe"`
}

type surfaceResponse struct {
	FeatureCounts []int            `json:"feature_counts"`
	Lambdas       []float64        `json:"lambdas"`
	LambdaLabels  []string         `json:"lambda_labels"`
	Cells         [][]cellResponse `json:"cells"`
}

// handleGetSurface returns a run's full result surface.
// GET /api/runs/{id}/surface
func (s *Server) handleGetSurface(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	surface, err := s.store.LoadSurface(id)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}

	resp := surfaceResponse{
		FeatureCounts: surface.FeatureCounts,
		Lambdas:       surface.Lambdas,
		LambdaLabels:  make([]string, len(surface.Lambdas)),
		Cells:         make([][]cellResponse, len(surface.FeatureCounts)),
	}
	for j, lambda := range surface.Lambdas {
		resp.LambdaLabels[j] = domain.LambdaLabel(lambda)
	}
	for i := range surface.Cells {
		row := make([]cellResponse, len(surface.Cells[i]))
		for j := range surface.Cells[i] {
			row[j] = toCellResponse(surface.Cells[i][j])
		}
		resp.Cells[i] = row
	}

	s.writeJSON(w, http.StatusOK, resp)
}

func toCellResponse(cell domain.Cell) cellResponse {
	resp := cellResponse{
		Status: string(cell.Status),
		Reason: cell.Reason,
		Days:   cell.Days,
	}
	if cell.Status == domain.CellComputed {
		mean, std := cell.Mean, cell.Std
		resp.Mean, resp.Std = &mean, &std
		if cell.SharpeValid {
			sharpe := cell.Sharpe
			resp.Sharpe = &sharpe
		}
	}
	return resp
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
