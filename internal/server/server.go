package server

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rohmanhakim/webarchiver/internal/config"
	"github.com/rohmanhakim/webarchiver/internal/runlog"
	"github.com/rohmanhakim/webarchiver/internal/store"
)

/*
Responsibilities
- Serve run history, page content and previews over HTTP
- Start, observe and stop a subordinate crawl process
- Export Prometheus metrics and a health probe

The server reads finished runs from the output directory's manifests.
When a database is configured the run list comes from the store
instead, so history survives output directory cleanup.
*/

const defaultPageListLimit = 50

// Server is the control-plane HTTP server.
type Server struct {
	cfg        config.Config
	index      runIndex
	history    *store.Store
	supervisor *supervisor
	metrics    *serverMetrics
	logger     *zap.Logger
}

// NewServer wires a control server from a built config. history may be
// nil; every store-backed answer then comes from the filesystem scan.
func NewServer(cfg config.Config, history *store.Store, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		cfg: cfg,
		index: runIndex{
			outputDir:  cfg.OutputDir(),
			archiveDir: cfg.ArchiveDir(),
		},
		history:    history,
		supervisor: newSupervisor(runlog.FileName, logger),
		metrics:    newServerMetrics(),
		logger:     logger,
	}
}

// Router assembles the chi routing tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Get("/runs", s.handleRuns)
		r.Route("/run/{runID}", func(r chi.Router) {
			r.Get("/", s.handleRunDetail)
			r.Get("/pages", s.handleRunPages)
			r.Get("/page/{digest}", s.handlePageContent)
			r.Get("/preview/{digest}", s.handlePreview)
			r.Get("/stats", s.handleRunStats)
		})
		r.Get("/archives", s.handleArchives)
		r.Get("/search", s.handleSearch)
		r.Route("/scrape", func(r chi.Router) {
			r.Post("/start", s.handleScrapeStart)
			r.Get("/status", s.handleScrapeStatus)
			r.Post("/stop", s.handleScrapeStop)
			r.Get("/config", s.handleScrapeConfig)
		})
	})
	r.Get("/metrics", s.handleMetrics)
	r.Get("/healthz", s.handleHealthz)
	return r
}

// ListenAndServe runs the server until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:              s.cfg.ListenAddr(),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("control server listening", zap.String("addr", s.cfg.ListenAddr()))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// requestLogger logs each request on completion with its chi request
// id.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.history != nil {
		runs, err := s.history.ListRuns(r.Context())
		if err == nil {
			s.respondJSON(w, http.StatusOK, runs)
			return
		}
		s.logger.Warn("run store list failed, falling back to filesystem", zap.Error(err))
	}
	s.respondJSON(w, http.StatusOK, s.index.listRuns())
}

func (s *Server) handleRunDetail(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if !runIDPattern.MatchString(runID) {
		s.respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	manifest, err := s.index.loadManifest(runID)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	s.respondJSON(w, http.StatusOK, runDetail{
		ID:                runID,
		Metadata:          manifest,
		CompressionReport: s.index.compressionReport(runID),
	})
}

func (s *Server) handleRunPages(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if !runIDPattern.MatchString(runID) {
		s.respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	manifest, err := s.index.loadManifest(runID)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}

	limit := queryInt(r, "limit", defaultPageListLimit)
	offset := queryInt(r, "offset", 0)
	pages, total := filterPages(
		manifest.Pages,
		r.URL.Query().Get("search"),
		r.URL.Query().Get("domain"),
		limit,
		offset,
	)
	s.respondJSON(w, http.StatusOK, pageListResponse{
		Pages: pages,
		Pagination: pagination{
			Limit:  limit,
			Offset: offset,
			Total:  total,
		},
	})
}

func (s *Server) handlePageContent(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	digest := chi.URLParam(r, "digest")
	if !runIDPattern.MatchString(runID) || !digestPattern.MatchString(digest) {
		s.respondError(w, http.StatusBadRequest, "invalid request parameters")
		return
	}
	path, fileType, found := s.index.pageFile(runID, digest)
	if !found {
		s.respondError(w, http.StatusNotFound, "page content not found")
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "page content unreadable")
		return
	}
	s.respondJSON(w, http.StatusOK, pageContent{
		Content: string(content),
		Type:    fileType,
		Size:    len(content),
	})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	digest := chi.URLParam(r, "digest")
	if !runIDPattern.MatchString(runID) || !digestPattern.MatchString(digest) {
		s.respondError(w, http.StatusBadRequest, "invalid request parameters")
		return
	}
	path, fileType, found := s.index.pageFile(runID, digest)
	if !found || fileType != "html" {
		http.Error(w, "page not found in archive", http.StatusNotFound)
		return
	}
	content, err := os.ReadFile(path)
	if err != nil {
		http.Error(w, "page unreadable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(content)
}

func (s *Server) handleRunStats(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if !runIDPattern.MatchString(runID) {
		s.respondError(w, http.StatusBadRequest, "invalid run id")
		return
	}
	manifest, err := s.index.loadManifest(runID)
	if err != nil {
		s.respondError(w, http.StatusNotFound, "run not found")
		return
	}
	s.respondJSON(w, http.StatusOK, statsFor(manifest))
}

func (s *Server) handleArchives(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.index.listArchives())
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.respondJSON(w, http.StatusOK, searchResponse{Results: []searchResult{}})
		return
	}
	limit := queryInt(r, "limit", 100)
	results := s.index.searchRuns(query, limit)
	s.respondJSON(w, http.StatusOK, searchResponse{
		Results: results,
		Total:   len(results),
		Query:   query,
	})
}

func (s *Server) handleScrapeStart(w http.ResponseWriter, r *http.Request) {
	var request startScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	pid, err := s.supervisor.Start(request)
	if err != nil {
		serverErr, ok := err.(*ServerError)
		if ok && serverErr.Cause == ErrCauseScrapeActive {
			s.respondError(w, http.StatusConflict, serverErr.Message)
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "started",
		"pid":    pid,
	})
}

func (s *Server) handleScrapeStatus(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.supervisor.Status())
}

func (s *Server) handleScrapeStop(w http.ResponseWriter, r *http.Request) {
	if err := s.supervisor.Stop(); err != nil {
		serverErr, ok := err.(*ServerError)
		if ok && serverErr.Cause == ErrCauseScrapeIdle {
			s.respondError(w, http.StatusBadRequest, serverErr.Message)
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleScrapeConfig echoes the effective configuration in the same
// env-style keys the start endpoint accepts as overrides.
func (s *Server) handleScrapeConfig(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"START_URL":          s.cfg.StartURL(),
		"MAX_WORKERS":        s.cfg.MaxWorkers(),
		"MAX_DEPTH":          s.cfg.MaxDepth(),
		"MAX_PAGES":          s.cfg.MaxPages(),
		"PAGES_PER_DOMAIN":   s.cfg.PagesPerDomain(),
		"OUTPUT_DIR":         s.cfg.OutputDir(),
		"ARCHIVE_DIR":        s.cfg.ArchiveDir(),
		"SKIP_ASSETS":        s.cfg.SkipAssets(),
		"RESPECT_ROBOTS_TXT": s.cfg.RespectRobots(),
		"REQUEST_DELAY":      s.cfg.RequestDelay().Seconds(),
		"COMPRESSION_LEVEL":  s.cfg.CompressionLevel(),
		"LISTEN_ADDR":        s.cfg.ListenAddr(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	s.metrics.observe(s.index.listRuns(), s.supervisor.Running())
	promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("response encoding failed", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, errorResponse{Error: message})
}

func queryInt(r *http.Request, name string, fallback int) int {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
