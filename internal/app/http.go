package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cam3ron2/devboard/internal/cache"
	"github.com/cam3ron2/devboard/internal/githubapi"
	"github.com/cam3ron2/devboard/internal/report"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RateBudgetFunc probes the origin's remaining request budget.
type RateBudgetFunc func(ctx context.Context) (githubapi.RateBudget, error)

// ServerConfig configures the query surface.
type ServerConfig struct {
	DefaultPeriod   report.Period
	LeaderboardSize int
	Now             func() time.Time
}

// Server exposes the report query surface over HTTP.
type Server struct {
	manager    *cache.Manager
	rateBudget RateBudgetFunc
	logger     *zap.Logger
	metrics    *Metrics
	cfg        ServerConfig
}

// NewServer wires the query surface over the cache manager.
func NewServer(manager *cache.Manager, rateBudget RateBudgetFunc, metrics *Metrics, logger *zap.Logger, cfg ServerConfig) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultPeriod == "" {
		cfg.DefaultPeriod = report.PeriodDaily
	}
	if cfg.LeaderboardSize <= 0 {
		cfg.LeaderboardSize = 10
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	server := &Server{
		manager:    manager,
		rateBudget: rateBudget,
		logger:     logger,
		metrics:    metrics,
		cfg:        cfg,
	}
	if manager != nil && metrics != nil {
		manager.Observe = metrics.ObserveCache
	}
	return server
}

// Handler builds the HTTP routing surface.
func (s *Server) Handler() http.Handler {
	router := chi.NewRouter()
	router.Get("/api/report", s.handleReport)
	router.Get("/api/leaderboard", s.handleLeaderboard)
	router.Get("/api/developers/{handle}", s.handleDeveloper)
	router.Post("/api/cache/clear", s.handleCacheClear)
	router.Get("/api/rate", s.handleRateBudget)
	router.Get("/healthz", s.handleHealth)
	router.Get("/readyz", s.handleHealth)
	if s.metrics != nil {
		router.Handle("/metrics", s.metrics.Handler())
	}
	return router
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	period, anchor, err := s.parsePeriodAndDate(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	forceRefresh := parseBool(r.URL.Query().Get("refresh"))

	key := cache.MultiKey(period, anchor)
	if repo := strings.TrimSpace(r.URL.Query().Get("repo")); repo != "" {
		key = cache.SingleKey(repo, period, anchor)
	}

	rep, err := s.manager.Get(r.Context(), key, forceRefresh)
	if err != nil {
		s.metrics.ObserveReport(string(period), "error")
		s.writeReportError(w, err)
		return
	}
	s.metrics.ObserveReport(string(period), "ok")
	s.writeJSON(w, http.StatusOK, rep)
}

type leaderboardResponse struct {
	Period          report.Period        `json:"period"`
	Date            string               `json:"date"`
	Top             []report.AuthorStats `json:"top"`
	Bottom          []report.AuthorStats `json:"bottom"`
	Inactive        []report.AuthorStats `json:"inactive"`
	TotalDevelopers int                  `json:"totalDevelopers"`
	GeneratedAt     time.Time            `json:"generatedAt"`
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	period, anchor, err := s.parsePeriodAndDate(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	topN := parseCount(r.URL.Query().Get("top"), s.cfg.LeaderboardSize)
	bottomN := parseCount(r.URL.Query().Get("bottom"), 0)

	rep, err := s.manager.Get(r.Context(), cache.MultiKey(period, anchor), false)
	if err != nil {
		s.metrics.ObserveReport(string(period), "error")
		s.writeReportError(w, err)
		return
	}
	s.metrics.ObserveReport(string(period), "ok")

	active, inactive := report.PartitionActivity(rep.Aggregated)
	top, bottom := report.TopBottom(active, topN, bottomN)
	s.writeJSON(w, http.StatusOK, leaderboardResponse{
		Period:          rep.Period,
		Date:            rep.Date,
		Top:             top,
		Bottom:          bottom,
		Inactive:        inactive,
		TotalDevelopers: rep.TotalDevelopers,
		GeneratedAt:     rep.GeneratedAt,
	})
}

type developerResponse struct {
	Handle  string                               `json:"handle"`
	Date    string                               `json:"date"`
	Periods map[report.Period]report.AuthorStats `json:"periods"`
}

func (s *Server) handleDeveloper(w http.ResponseWriter, r *http.Request) {
	handle := strings.TrimSpace(chi.URLParam(r, "handle"))
	if handle == "" {
		s.writeError(w, http.StatusBadRequest, errors.New("handle is required"))
		return
	}
	anchor, err := s.parseDate(r.URL.Query().Get("date"))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}

	detail, found, err := s.manager.AuthorDetail(r.Context(), handle, anchor)
	if err != nil {
		s.writeReportError(w, err)
		return
	}
	if !found {
		s.writeError(w, http.StatusNotFound, errors.New("unknown developer: "+handle))
		return
	}
	s.writeJSON(w, http.StatusOK, developerResponse{
		Handle:  handle,
		Date:    anchor.UTC().Format(report.DateFormat),
		Periods: detail,
	})
}

type cacheClearResponse struct {
	MemoryEvicted    int `json:"memoryEvicted"`
	SnapshotsRemoved int `json:"snapshotsRemoved"`
}

func (s *Server) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	scope := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("scope")))
	switch scope {
	case "", "memory":
		evicted := s.manager.ClearMemory()
		s.writeJSON(w, http.StatusOK, cacheClearResponse{MemoryEvicted: evicted})
	case "all":
		evicted, removed, err := s.manager.ClearAll(r.Context())
		if err != nil {
			s.logger.Error("cache clear failed", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, err)
			return
		}
		s.writeJSON(w, http.StatusOK, cacheClearResponse{MemoryEvicted: evicted, SnapshotsRemoved: removed})
	default:
		s.writeError(w, http.StatusBadRequest, errors.New("scope must be memory or all"))
	}
}

func (s *Server) handleRateBudget(w http.ResponseWriter, r *http.Request) {
	if s.rateBudget == nil {
		s.writeError(w, http.StatusNotFound, errors.New("rate budget probe not configured"))
		return
	}
	budget, err := s.rateBudget(r.Context())
	if err != nil {
		s.writeReportError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, budget)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) parsePeriodAndDate(r *http.Request) (report.Period, time.Time, error) {
	raw := r.URL.Query().Get("period")
	if strings.TrimSpace(raw) == "" {
		raw = string(s.cfg.DefaultPeriod)
	}
	period, err := report.ParsePeriod(raw)
	if err != nil {
		return "", time.Time{}, err
	}
	anchor, err := s.parseDate(r.URL.Query().Get("date"))
	if err != nil {
		return "", time.Time{}, err
	}
	return period, anchor, nil
}

func (s *Server) parseDate(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return s.cfg.Now(), nil
	}
	anchor, err := time.Parse(report.DateFormat, trimmed)
	if err != nil {
		return time.Time{}, errors.New("date must be YYYY-MM-DD")
	}
	return anchor, nil
}

// writeReportError maps the failure taxonomy onto status codes. A
// zero-activity report is a valid 200, never an error.
func (s *Server) writeReportError(w http.ResponseWriter, err error) {
	switch githubapi.KindOf(err) {
	case githubapi.KindAuth:
		s.writeError(w, http.StatusUnauthorized, err)
	case githubapi.KindRateLimited:
		if resetAt, ok := githubapi.ResetTime(err); ok {
			w.Header().Set("Retry-After", strconv.FormatInt(int64(time.Until(resetAt).Seconds())+1, 10))
		}
		s.writeError(w, http.StatusTooManyRequests, err)
	case githubapi.KindNotFound:
		s.writeError(w, http.StatusNotFound, err)
	default:
		s.writeError(w, http.StatusServiceUnavailable, err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("response encode failed", zap.Error(err))
	}
}

func parseBool(raw string) bool {
	parsed, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false
	}
	return parsed
}

func parseCount(raw string, fallback int) int {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(trimmed)
	if err != nil || parsed < 0 {
		return fallback
	}
	return parsed
}
