package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/muzman01/subgraph-studio/internal/database"
	"github.com/muzman01/subgraph-studio/internal/entity"
)

// APIServer serves the derived entity state over plain HTTP. It is
// read-only; all writes go through the indexer's flush path.
type APIServer struct {
	mux    *http.ServeMux
	db     *pgxpool.Pool
	logger zerolog.Logger
}

func NewAPIServer(db *pgxpool.Pool, logger zerolog.Logger) *APIServer {
	s := &APIServer{
		mux:    http.NewServeMux(),
		db:     db,
		logger: logger.With().Str("component", "api").Logger(),
	}
	s.registerRoutes()
	return s
}

func (s *APIServer) Start(ctx context.Context, addr string) error {
	s.logger.Info().Str("addr", addr).Msg("Starting API server")
	server := &http.Server{
		Addr:    addr,
		Handler: s.logMiddleware(s.mux),
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info().Msg("Shutting down API server...")
		_ = server.Shutdown(shutdownCtx)
	}()
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *APIServer) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/status", s.handleStatus)

	s.mux.HandleFunc("/factory", s.handleFactory)
	s.mux.HandleFunc("/bundle", s.handleBundle)

	s.mux.HandleFunc("/pools", s.handlePools)
	s.mux.HandleFunc("/pools/", s.handlePoolPrefix)
	s.mux.HandleFunc("/tokens", s.handleTokens)
	s.mux.HandleFunc("/tokens/", s.handleTokenDetail)
}

func (s *APIServer) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("latency", time.Since(start)).
			Msg("http")
	})
}

func (s *APIServer) handleFactory(w http.ResponseWriter, r *http.Request) {
	items, err := database.ListEntities(r.Context(), s.db, entity.KindFactory, 1, 0, "", "")
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	if len(items) == 0 {
		Error(w, http.StatusNotFound, "factory not found")
		return
	}
	JSON(w, http.StatusOK, items[0], nil)
}

func (s *APIServer) handleBundle(w http.ResponseWriter, r *http.Request) {
	data, err := database.GetEntity(r.Context(), s.db, entity.KindBundle, entity.BundleID)
	if err != nil {
		Error(w, http.StatusNotFound, "bundle not found")
		return
	}
	JSON(w, http.StatusOK, data, nil)
}

func (s *APIServer) handlePools(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset, page, perPage := parsePagination(r)
	sortBy := r.URL.Query().Get("sort_by")
	sortOrder := r.URL.Query().Get("sort_order")
	items, err := database.ListEntities(ctx, s.db, entity.KindPool, limit, offset, sortBy, sortOrder)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	pg := &Pagination{Page: page, PerPage: perPage, HasNext: len(items) == perPage}
	JSON(w, http.StatusOK, items, pg)
}

// recordKinds maps pool sub-resources to entity kinds.
var recordKinds = map[string]string{
	"swaps":    entity.KindSwap,
	"mints":    entity.KindMint,
	"burns":    entity.KindBurn,
	"collects": entity.KindCollect,
}

var bucketKinds = map[string]string{
	"hours": entity.KindPoolHourData,
	"days":  entity.KindPoolDayData,
	"weeks": entity.KindPoolWeekData,
}

func (s *APIServer) handlePoolPrefix(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/pools/")
	parts := strings.Split(path, "/")

	address := parts[0]
	if address == "" {
		Error(w, http.StatusNotFound, "not found")
		return
	}
	if len(parts) == 1 {
		s.handlePoolDetail(w, r, address)
		return
	}

	if kind, ok := recordKinds[parts[1]]; ok {
		s.handlePoolRecords(w, r, kind, address)
		return
	}
	if kind, ok := bucketKinds[parts[1]]; ok {
		s.handlePoolBuckets(w, r, kind, address)
		return
	}
	Error(w, http.StatusNotFound, "not found")
}

func (s *APIServer) handlePoolDetail(w http.ResponseWriter, r *http.Request, address string) {
	data, err := database.GetEntity(r.Context(), s.db, entity.KindPool, address)
	if err != nil {
		Error(w, http.StatusNotFound, "pool not found")
		return
	}
	JSON(w, http.StatusOK, data, nil)
}

func (s *APIServer) handlePoolRecords(w http.ResponseWriter, r *http.Request, kind, address string) {
	limit, offset, page, perPage := parsePagination(r)
	items, err := database.ListPoolRecords(r.Context(), s.db, kind, address, limit, offset)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	pg := &Pagination{Page: page, PerPage: perPage, HasNext: len(items) == perPage}
	JSON(w, http.StatusOK, items, pg)
}

func (s *APIServer) handlePoolBuckets(w http.ResponseWriter, r *http.Request, kind, address string) {
	limit, offset, page, perPage := parsePagination(r)
	items, err := database.ListPoolBuckets(r.Context(), s.db, kind, address, limit, offset)
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	pg := &Pagination{Page: page, PerPage: perPage, HasNext: len(items) == perPage}
	JSON(w, http.StatusOK, items, pg)
}

func (s *APIServer) handleTokens(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	limit, offset, page, perPage := parsePagination(r)

	var (
		items []json.RawMessage
		err   error
	)
	if search := r.URL.Query().Get("search"); search != "" {
		items, err = database.SearchTokens(ctx, s.db, search, limit, offset)
	} else {
		items, err = database.ListEntities(ctx, s.db, entity.KindToken, limit, offset,
			r.URL.Query().Get("sort_by"), r.URL.Query().Get("sort_order"))
	}
	if err != nil {
		Error(w, http.StatusInternalServerError, err.Error())
		return
	}
	pg := &Pagination{Page: page, PerPage: perPage, HasNext: len(items) == perPage}
	JSON(w, http.StatusOK, items, pg)
}

func (s *APIServer) handleTokenDetail(w http.ResponseWriter, r *http.Request) {
	address := strings.TrimPrefix(r.URL.Path, "/tokens/")
	data, err := database.GetEntity(r.Context(), s.db, entity.KindToken, address)
	if err != nil {
		Error(w, http.StatusNotFound, "token not found")
		return
	}
	JSON(w, http.StatusOK, data, nil)
}
