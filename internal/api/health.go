package api

import (
	"context"
	"net/http"
	"time"

	"github.com/muzman01/subgraph-studio/internal/database"
)

type healthStatus struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Database  dbStatus  `json:"database"`
}

type dbStatus struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
}

func (s *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := healthStatus{
		Status:    "healthy",
		Timestamp: time.Now().UTC(),
		Database:  dbStatus{Connected: true},
	}
	httpStatus := http.StatusOK
	if err := s.db.Ping(ctx); err != nil {
		status.Status = "unhealthy"
		status.Database = dbStatus{Connected: false, Error: err.Error()}
		httpStatus = http.StatusServiceUnavailable
	}
	JSON(w, httpStatus, status, nil)
}

// handleStatus reports sync progress (per-deployment checkpoints) and
// entity counts per kind.
func (s *APIServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	checkpoints, err := database.ListCheckpoints(ctx, s.db)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	counts, err := database.CountEntities(ctx, s.db)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}

	JSON(w, http.StatusOK, map[string]any{
		"checkpoints": checkpoints,
		"entities":    counts,
		"time":        time.Now().UTC(),
	}, nil)
}
