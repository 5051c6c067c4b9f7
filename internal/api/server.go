// Package api exposes the HTTP interface: the public read endpoints over
// the canonical store and the authenticated admin mutations.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/leaklook/leaklook/internal/config"
	"github.com/leaklook/leaklook/internal/engine"
	"github.com/leaklook/leaklook/internal/feed"
	"github.com/leaklook/leaklook/internal/store"
	"github.com/leaklook/leaklook/internal/telemetry"
)

const defaultRecentLimit = 100

// Server wires HTTP handlers to the engine and the canonical store.
type Server struct {
	router chi.Router
	eng    *engine.Engine
	store  store.Store
	cfg    config.Config
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. The read
// endpoints are public; the admin subtree requires the configured API key.
func NewServer(
	eng *engine.Engine,
	st store.Store,
	cfg config.Config,
	logger *zap.Logger,
	registry *prometheus.Registry,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		eng:    eng,
		store:  st,
		cfg:    cfg,
		logger: logger,
	}
	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(timeoutMiddleware(60 * time.Second))
	if registry != nil {
		metrics, err := telemetry.NewHTTPMetrics(registry)
		if err != nil {
			logger.Warn("http metrics disabled", zap.Error(err))
		} else {
			r.Use(metricsMiddleware(metrics))
		}
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	if registry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Get("/groups", s.listGroups(feed.CategoryGroup))
		r.Get("/markets", s.listGroups(feed.CategoryMarket))
		r.Get("/groups/{name}", s.getGroup(feed.CategoryGroup))
		r.Get("/markets/{name}", s.getGroup(feed.CategoryMarket))
		r.Get("/groups/{name}/posts", s.getPosts)
		r.Get("/recent", s.recentPosts)
		r.Get("/audit", s.auditLog)
		r.Get("/search", s.search)

		r.Route("/admin", func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
			}
			r.Post("/locations", s.addLocation)
			r.Patch("/groups/{name}", s.editGroup)
			r.Post("/groups/{name}/rename", s.renameGroup)
			r.Delete("/groups/{name}", s.deleteGroup)
			r.Post("/ingest", s.runIngest)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.ListGroups(r.Context(), feed.CategoryGroup); err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) listGroups(cat feed.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groups, err := s.store.ListGroups(r.Context(), cat)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to list groups")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{string(cat) + "s": groups})
	}
}

func (s *Server) getGroup(cat feed.Category) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := feed.NormalizeGroupName(chi.URLParam(r, "name"))
		g, err := s.store.GetGroup(r.Context(), cat, name)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeError(w, http.StatusNotFound, "group not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "failed to load group")
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func (s *Server) getPosts(w http.ResponseWriter, r *http.Request) {
	name := feed.NormalizeGroupName(chi.URLParam(r, "name"))
	if _, err := s.store.GetGroup(r.Context(), feed.CategoryGroup, name); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "group not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load group")
		return
	}
	posts, err := s.store.PostsFor(r.Context(), name)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load posts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"group": name, "posts": posts})
}

func (s *Server) recentPosts(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	posts, err := s.store.RecentPosts(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load posts")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (s *Server) auditLog(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.AuditLog(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load audit log")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		writeError(w, http.StatusBadRequest, "query parameter q is required")
		return
	}
	res, err := s.store.Search(r.Context(), query)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "search failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type addLocationRequest struct {
	Category string `json:"category"`
	Group    string `json:"group"`
	URL      string `json:"url"`
}

func (s *Server) addLocation(w http.ResponseWriter, r *http.Request) {
	var req addLocationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	cat := category(req.Category)
	out, err := s.eng.AddLocation(r.Context(), actor(r), cat, req.Group, req.URL)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	status := http.StatusCreated
	if out == engine.OutcomeDuplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]string{"outcome": string(out)})
}

type editGroupRequest struct {
	Category string            `json:"category"`
	Meta     *string           `json:"meta"`
	Profile  map[string]string `json:"profile"`
	Links    []string          `json:"links"`
}

func (s *Server) editGroup(w http.ResponseWriter, r *http.Request) {
	var req editGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	name := chi.URLParam(r, "name")
	err := s.eng.EditGroup(r.Context(), actor(r), category(req.Category), name, engine.GroupUpdate{
		Meta:    req.Meta,
		Profile: req.Profile,
		Links:   req.Links,
	})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "group not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"group": feed.NormalizeGroupName(name)})
}

type renameGroupRequest struct {
	Category string `json:"category"`
	NewName  string `json:"new_name"`
}

func (s *Server) renameGroup(w http.ResponseWriter, r *http.Request) {
	var req renameGroupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	oldName := chi.URLParam(r, "name")
	err := s.eng.RenameGroup(r.Context(), actor(r), category(req.Category), oldName, req.NewName)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "group not found")
		case errors.Is(err, store.ErrExists):
			writeError(w, http.StatusConflict, "target name already exists")
		default:
			writeError(w, http.StatusBadRequest, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"group": feed.NormalizeGroupName(req.NewName),
	})
}

func (s *Server) deleteGroup(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	cat := category(r.URL.Query().Get("category"))
	err := s.eng.DeleteGroup(r.Context(), actor(r), cat, name)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "group not found")
			return
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"deleted": feed.NormalizeGroupName(name)})
}

func (s *Server) runIngest(w http.ResponseWriter, r *http.Request) {
	report, err := s.eng.Run(r.Context())
	if err != nil {
		s.logger.Error("ingestion cycle failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"error":  err.Error(),
			"report": report,
		})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// category defaults the request field to the group partition.
func category(raw string) feed.Category {
	if raw == "" {
		return feed.CategoryGroup
	}
	return feed.Category(raw)
}

// actor resolves the audit actor from the request, defaulting to "api".
func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "api"
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
