// Package catalog exposes the dashboard and query catalogs over HTTP and
// serves the browsing UI bundle.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"catalogbrowser/internal/blob"
	domain "catalogbrowser/internal/catalog"
)

// Catalog is the read side of the catalog store used by the handler.
type Catalog interface {
	SearchDashboards(query string) []domain.Dashboard
	SearchQueries(query string) []domain.Query
	Dashboard(id string) (domain.Dashboard, bool)
	DistinctDashboardValues(field domain.Field) []string
	Count(kind domain.Kind) int
	Location(kind domain.Kind) (blob.Location, bool)
	Present(ctx context.Context, kind domain.Kind) bool
}

// Metrics records served requests and exposes the scrape endpoint.
type Metrics interface {
	ObserveRequest(route, method string, code int, elapsed time.Duration)
	Handler() http.Handler
}

// DefaultDevOrigin is the CORS origin of the UI dev server.
const DefaultDevOrigin = "http://localhost:5173"

const (
	corsAllowHeaders = "Content-Type"
	corsAllowMethods = "GET,POST,PUT,DELETE,OPTIONS"
)

// Handler provides HTTP access to the catalogs.
type Handler struct {
	Catalog   Catalog
	Metrics   Metrics
	Log       *zap.Logger
	DevOrigin string
	Now       func() time.Time

	clientDir string
	files     http.Handler
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithLogger sets the logger used for recovered panics.
func WithLogger(l *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if l != nil {
			h.Log = l
		}
	}
}

// WithMetrics enables request metrics and the /metrics endpoint.
func WithMetrics(m Metrics) HandlerOption {
	return func(h *Handler) { h.Metrics = m }
}

// WithDevOrigin overrides the CORS origin.
func WithDevOrigin(origin string) HandlerOption {
	return func(h *Handler) {
		if origin != "" {
			h.DevOrigin = origin
		}
	}
}

// WithClientDist serves the built UI from dir. A directory that does not
// exist at construction time disables UI serving.
func WithClientDist(dir string) HandlerOption {
	return func(h *Handler) {
		if dir == "" {
			return
		}
		if info, err := os.Stat(dir); err == nil && info.IsDir() {
			h.clientDir = dir
			h.files = http.FileServer(http.Dir(dir))
		}
	}
}

// WithClock overrides time.Now for the health timestamp.
func WithClock(now func() time.Time) HandlerOption {
	return func(h *Handler) { h.Now = now }
}

// NewHandler constructs a catalog HTTP handler.
func NewHandler(c Catalog, opts ...HandlerOption) *Handler {
	h := &Handler{
		Catalog:   c,
		Log:       zap.NewNop(),
		DevOrigin: DefaultDevOrigin,
		Now:       time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// ServingClient reports whether a UI bundle was found.
func (h *Handler) ServingClient() bool { return h.clientDir != "" }

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w}
	defer func() {
		if p := recover(); p != nil {
			if p == http.ErrAbortHandler {
				panic(p)
			}
			message := panicMessage(p)
			h.Log.Error("handler panic",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("panic", message),
				zap.Stack("stack"))
			if !sw.wrote {
				writeError(sw, http.StatusInternalServerError, message)
			}
		}
		if h.Metrics != nil {
			h.Metrics.ObserveRequest(routeLabel(r.URL.Path), r.Method, sw.code(), time.Since(start))
		}
	}()

	h.setCORS(sw.Header())
	if r.Method == http.MethodOptions {
		sw.WriteHeader(http.StatusNoContent)
		return
	}

	p := r.URL.Path
	switch {
	case p == "/metrics" && h.Metrics != nil:
		if !allowRead(sw, r) {
			return
		}
		h.Metrics.Handler().ServeHTTP(sw, r)
	case p == "/api" || strings.HasPrefix(p, "/api/"):
		if h.Catalog == nil {
			writeError(sw, http.StatusInternalServerError, "catalog not configured")
			return
		}
		h.serveAPI(sw, r, strings.TrimSuffix(p, "/"))
	default:
		h.serveClient(sw, r)
	}
}

func (h *Handler) setCORS(header http.Header) {
	header.Set("Access-Control-Allow-Origin", h.DevOrigin)
	header.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	header.Set("Access-Control-Allow-Methods", corsAllowMethods)
}

func (h *Handler) serveAPI(w http.ResponseWriter, r *http.Request, p string) {
	switch {
	case p == "/api/health":
		if allowRead(w, r) {
			h.handleHealth(w, r)
		}
	case p == "/api/dashboards":
		if allowRead(w, r) {
			h.handleListDashboards(w, r)
		}
	case strings.HasPrefix(p, "/api/dashboards/"):
		// Ids may contain an escaped "/", so split on the raw path.
		segment := strings.TrimPrefix(strings.TrimSuffix(r.URL.EscapedPath(), "/"), "/api/dashboards/")
		if strings.Contains(segment, "/") {
			h.apiNotFound(w, r)
			return
		}
		id, err := url.PathUnescape(segment)
		if err != nil {
			id = segment
		}
		if allowRead(w, r) {
			h.handleGetDashboard(w, strings.TrimSpace(id))
		}
	case p == "/api/meta":
		if allowRead(w, r) {
			h.handleMeta(w)
		}
	case p == "/api/queries":
		if allowRead(w, r) {
			h.handleListQueries(w, r)
		}
	default:
		h.apiNotFound(w, r)
	}
}

// apiNotFound hands unknown API reads to the UI entry point when a bundle is
// served, like any other unmatched path.
func (h *Handler) apiNotFound(w http.ResponseWriter, r *http.Request) {
	if h.clientDir != "" && (r.Method == http.MethodGet || r.Method == http.MethodHead) {
		h.serveClient(w, r)
		return
	}
	writeError(w, http.StatusNotFound, "endpoint not found")
}

func allowRead(w http.ResponseWriter, r *http.Request) bool {
	if r.Method == http.MethodGet || r.Method == http.MethodHead {
		return true
	}
	w.Header().Set("Allow", "GET, HEAD, OPTIONS")
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	return false
}

type healthResponse struct {
	OK             bool   `json:"ok"`
	Dashboards     int    `json:"dashboards"`
	Queries        int    `json:"queries"`
	DashboardsFile string `json:"dashboardsFile"`
	QueriesFile    string `json:"queriesFile"`
	UpdatedAt      string `json:"updatedAt"`
}

func (h *Handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		OK:             true,
		Dashboards:     h.Catalog.Count(domain.KindDashboards),
		Queries:        h.Catalog.Count(domain.KindQueries),
		DashboardsFile: h.locate(domain.KindDashboards),
		QueriesFile:    h.locate(domain.KindQueries),
		UpdatedAt:      h.Now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
	})
}

func (h *Handler) locate(kind domain.Kind) string {
	loc, ok := h.Catalog.Location(kind)
	if !ok {
		return ""
	}
	return loc.Path
}

type dashboardList struct {
	Count int                `json:"count"`
	Items []domain.Dashboard `json:"items"`
}

type queryList struct {
	Count  int            `json:"count"`
	Items  []domain.Query `json:"items"`
	Source string         `json:"source"`
}

func (h *Handler) handleListDashboards(w http.ResponseWriter, r *http.Request) {
	items := h.Catalog.SearchDashboards(r.URL.Query().Get("search"))
	if items == nil {
		items = []domain.Dashboard{}
	}
	writeJSON(w, http.StatusOK, dashboardList{Count: len(items), Items: items})
}

func (h *Handler) handleGetDashboard(w http.ResponseWriter, id string) {
	d, ok := h.Catalog.Dashboard(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Dashboard not found", "id": id})
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type metaResponse struct {
	ManagingGroups []string `json:"gerencias"`
	Developers     []string `json:"desarrolladores"`
	Statuses       []string `json:"estados"`
}

func (h *Handler) handleMeta(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, metaResponse{
		ManagingGroups: nonNil(h.Catalog.DistinctDashboardValues(domain.FieldManagingGroup)),
		Developers:     nonNil(h.Catalog.DistinctDashboardValues(domain.FieldDeveloper)),
		Statuses:       nonNil(h.Catalog.DistinctDashboardValues(domain.FieldStatus)),
	})
}

func (h *Handler) handleListQueries(w http.ResponseWriter, r *http.Request) {
	items := h.Catalog.SearchQueries(r.URL.Query().Get("search"))
	if items == nil {
		items = []domain.Query{}
	}
	source := "none"
	if h.Catalog.Present(r.Context(), domain.KindQueries) {
		source = "csv"
	}
	writeJSON(w, http.StatusOK, queryList{Count: len(items), Items: items, Source: source})
}

const clientHint = `Client not built yet.
- Dev: run the UI dev server and open %s
- Prod: build the UI into the client dist directory, restart and open http://%s
`

// serveClient serves files from the UI bundle and falls back to index.html
// so client-side routes resolve.
func (h *Handler) serveClient(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}
	if h.clientDir == "" {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, clientHint, h.DevOrigin, r.Host)
		return
	}
	name := filepath.Join(h.clientDir, filepath.FromSlash(path.Clean("/"+r.URL.Path)))
	if info, err := os.Stat(name); err == nil && !info.IsDir() {
		h.files.ServeHTTP(w, r)
		return
	}
	http.ServeFile(w, r, filepath.Join(h.clientDir, "index.html"))
}

func routeLabel(p string) string {
	switch {
	case p == "/metrics":
		return p
	case strings.HasPrefix(p, "/api/dashboards/"):
		return "/api/dashboards/{id}"
	case strings.HasPrefix(p, "/api"):
		switch t := strings.TrimSuffix(p, "/"); t {
		case "/api/health", "/api/dashboards", "/api/meta", "/api/queries":
			return t
		}
		return "/api/other"
	default:
		return "static"
	}
}

func panicMessage(p any) string {
	if err, ok := p.(error); ok {
		return err.Error()
	}
	return fmt.Sprint(p)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

// statusWriter remembers whether the response has started.
type statusWriter struct {
	http.ResponseWriter
	status int
	wrote  bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wrote {
		w.status = code
		w.wrote = true
	}
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.wrote {
		w.WriteHeader(http.StatusOK)
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }

func (w *statusWriter) code() int {
	if !w.wrote {
		return http.StatusOK
	}
	return w.status
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
