package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SimplyPrint/lpa-bridge/internal/bridge"
	"github.com/SimplyPrint/lpa-bridge/internal/logging"
	"github.com/SimplyPrint/lpa-bridge/internal/lpa"
	"github.com/SimplyPrint/lpa-bridge/internal/table"
	"github.com/SimplyPrint/lpa-bridge/internal/updater"
)

// Version information (set via ldflags in production builds)
var (
	Version   = ""
	BuildTime = ""
	GitCommit = ""
)

func init() {
	// If version wasn't set via ldflags, this is a dev build
	// Try to get VCS info from Go's build info
	if Version == "" {
		Version = "dev"
		if info, ok := debug.ReadBuildInfo(); ok {
			var vcsRevision, vcsTime string
			var vcsModified bool
			for _, setting := range info.Settings {
				switch setting.Key {
				case "vcs.revision":
					vcsRevision = setting.Value
				case "vcs.time":
					vcsTime = setting.Value
				case "vcs.modified":
					vcsModified = setting.Value == "true"
				}
			}
			if vcsRevision != "" {
				shortCommit := vcsRevision
				if len(shortCommit) > 7 {
					shortCommit = shortCommit[:7]
				}
				GitCommit = vcsRevision
				Version = "dev-" + shortCommit
				if vcsModified {
					Version += "-dirty"
				}
			}
			if vcsTime != "" {
				BuildTime = vcsTime
			}
		}
	}
}

const (
	requestIDHeader = "X-Request-ID"
	maxFormBody     = 1 << 20
)

// Dispatcher runs bridge requests. *bridge.Router implements it.
type Dispatcher interface {
	Dispatch(ctx context.Context, req bridge.Request, columns []string) *table.Table
	Endpoints() []string
}

// CardLister reports the reachable card/port pairs for health checks.
// *bridge.Router implements it inside its exclusive section; pass that
// rather than a bare channel manager so enumeration never overlaps card work.
type CardLister interface {
	ListCards(ctx context.Context) ([]lpa.CardPort, error)
}

// UpdateChecker reports whether a newer release exists. *updater.Checker
// implements it.
type UpdateChecker interface {
	Check(ctx context.Context, forceRefresh bool) *updater.UpdateInfo
}

// Options configures a Server.
type Options struct {
	Dispatcher Dispatcher
	Cards      CardLister
	// Gatherer backs GET /metrics. Optional.
	Gatherer prometheus.Gatherer
	// Updates backs GET /v1/updates. Optional.
	Updates UpdateChecker
	// Shutdown is invoked after POST /v1/shutdown has been answered. Optional.
	Shutdown func()
}

// Server is the HTTP and WebSocket front end of the bridge.
type Server struct {
	dispatcher Dispatcher
	cards      CardLister
	gatherer   prometheus.Gatherer
	updates    UpdateChecker
	shutdown   func()
	hub        *WSHub
	mux        chi.Router
}

// NewServer builds the route table. Call Hub().Run before serving WebSocket
// clients.
func NewServer(opts Options) *Server {
	s := &Server{
		dispatcher: opts.Dispatcher,
		cards:      opts.Cards,
		gatherer:   opts.Gatherer,
		updates:    opts.Updates,
		shutdown:   opts.Shutdown,
	}
	s.hub = NewWSHub(s)

	r := chi.NewRouter()
	r.Use(requestIDMiddleware, corsMiddleware, recoveryMiddleware)

	r.Get("/v1/health", s.handleHealth)
	r.Get("/v1/version", s.handleVersion)
	r.Get("/v1/updates", s.handleUpdates)
	r.Get("/v1/logs", handleLogs)
	r.Delete("/v1/logs", handleClearLogs)
	r.Get("/v1/crashes", handleCrashes)
	r.Post("/v1/shutdown", s.handleShutdown)
	r.Get("/v1/ws", s.hub.ServeHTTP)

	for _, pattern := range []string{"/v1/lpa", "/v1/lpa/", "/v1/lpa/{endpoint}"} {
		r.Get(pattern, s.handleLPA)
		r.Post(pattern, s.handleLPA)
	}

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	s.mux = r
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler { return s.mux }

// Hub returns the WebSocket hub.
func (s *Server) Hub() *WSHub { return s.hub }

// BroadcastProgress forwards a download progress event to every WebSocket
// client. It never blocks.
func (s *Server) BroadcastProgress(ev lpa.DownloadEvent) {
	s.hub.BroadcastProgress(ev)
}

type requestIDKey struct{}

// RequestID returns the request ID stored in ctx by the server, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// requestIDMiddleware tags every request with an ID, reusing the caller's
// X-Request-ID when present.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

// recoveryMiddleware catches panics and logs them to crash files.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				stack := debug.Stack()
				context := fmt.Sprintf("HTTP %s %s", r.Method, r.URL.Path)

				crashFile := logging.ReportPanic(context, rec, stack)
				fmt.Fprintf(os.Stderr, "\n=== PANIC in %s ===\n%v\n\nStack trace:\n%s\n", context, rec, string(stack))

				respondJSON(w, http.StatusInternalServerError, map[string]string{
					"error":     "internal server error",
					"crashFile": crashFile,
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware adds CORS headers to allow browser access from any origin.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
		w.Header().Set("Access-Control-Expose-Headers", requestIDHeader)

		// Handle preflight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleLPA dispatches /v1/lpa/{endpoint}. Arguments come from the query
// string followed by a form body; on duplicate keys the query wins. The
// response is always 200 with the result table, errors included.
func (s *Server) handleLPA(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.RawQuery
	if r.Method == http.MethodPost && isFormBody(r) {
		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxFormBody))
		if err != nil {
			respondJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
				"error": "request body too large",
			})
			return
		}
		raw = joinQuery(raw, string(body))
	}

	req := bridge.Request{
		Endpoint: chi.URLParam(r, "endpoint"),
		Args:     bridge.ParseQuery(raw).Without("columns"),
	}
	columns := parseColumns(raw)

	result := s.dispatcher.Dispatch(r.Context(), req, columns)

	logData := map[string]any{
		"requestId": RequestID(r.Context()),
		"endpoint":  req.Endpoint,
		"args":      req.Args.Keys(),
	}
	if msg, failed := result.ErrorMessage(); failed {
		logData["error"] = msg
	}
	logging.Debug(logging.CatHTTP, "LPA request", logData)

	respondJSON(w, http.StatusOK, result)
}

func isFormBody(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "application/x-www-form-urlencoded")
}

func joinQuery(parts ...string) string {
	var nonEmpty []string
	for _, p := range parts {
		if p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, "&")
}

// parseColumns collects every columns parameter, each holding a comma
// separated list.
func parseColumns(raw string) []string {
	values, _ := url.ParseQuery(raw)
	var columns []string
	for _, v := range values["columns"] {
		for _, c := range strings.Split(v, ",") {
			if c = strings.TrimSpace(c); c != "" {
				columns = append(columns, c)
			}
		}
	}
	return columns
}

func (s *Server) versionInfo() map[string]any {
	return map[string]any{
		"version":   Version,
		"buildTime": BuildTime,
		"gitCommit": GitCommit,
		"endpoints": s.dispatcher.Endpoints(),
	}
}

func (s *Server) healthInfo(ctx context.Context) map[string]any {
	info := map[string]any{"status": "ok"}
	if s.cards == nil {
		return info
	}
	cards, err := s.cards.ListCards(ctx)
	if err != nil {
		info["status"] = "degraded"
		info["error"] = err.Error()
		info["cardCount"] = 0
		return info
	}
	info["cardCount"] = len(cards)
	return info
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.versionInfo())
}

// handleUpdates serves the cached release check; ?force=1 refetches.
func (s *Server) handleUpdates(w http.ResponseWriter, r *http.Request) {
	if s.updates == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "update checks disabled",
		})
		return
	}
	force, _ := strconv.ParseBool(r.URL.Query().Get("force"))
	respondJSON(w, http.StatusOK, s.updates.Check(r.Context(), force))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.healthInfo(r.Context()))
}

func (s *Server) handleShutdown(w http.ResponseWriter, r *http.Request) {
	if s.shutdown == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"error": "shutdown not available",
		})
		return
	}

	logging.Info(logging.CatSystem, "Shutdown requested via API", nil)
	respondJSON(w, http.StatusOK, map[string]string{
		"success": "shutting down",
	})

	// Trigger shutdown after response is sent
	go s.shutdown()
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // header already sent
}

func handleLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// Limit (default 100, max 1000)
	limit := 100
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = min(l, 1000)
		}
	}

	var minLevel *logging.Level
	if l, ok := logging.ParseLevel(query.Get("level")); ok {
		minLevel = &l
	}

	var category *logging.Category
	if catStr := query.Get("category"); catStr != "" {
		c := logging.Category(catStr)
		category = &c
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"entries": logging.Get().GetEntries(limit, minLevel, category),
		"stats":   logging.Get().Stats(),
	})
}

func handleClearLogs(w http.ResponseWriter, r *http.Request) {
	logging.Get().Clear()
	respondJSON(w, http.StatusOK, map[string]string{
		"success": "logs cleared",
	})
}

func handleCrashes(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	// Check if requesting a specific crash log
	if filename := query.Get("file"); filename != "" {
		content, err := logging.ReadCrashLog(filename)
		if err != nil {
			respondJSON(w, http.StatusNotFound, map[string]string{
				"error": "crash log not found: " + err.Error(),
			})
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"filename": filename,
			"content":  content,
		})
		return
	}

	limit := 20
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			limit = min(l, 100)
		}
	}

	logs, err := logging.GetCrashLogs(limit)
	if err != nil {
		respondJSON(w, http.StatusInternalServerError, map[string]string{
			"error": "failed to list crash logs: " + err.Error(),
		})
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"crashes":  logs,
		"crashDir": logging.CrashLogDir(),
	})
}
