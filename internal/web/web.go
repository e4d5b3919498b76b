package web

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"backupviz/internal/capture"
	"backupviz/internal/config"
	"backupviz/internal/derive"
	"backupviz/internal/export"
	appLog "backupviz/internal/log"
	"backupviz/internal/model"
	"backupviz/internal/refresh"
	"backupviz/internal/view"
)

// Server exposes the visualization page, its hover endpoints and a small
// JSON/ICS API over one shared View.
type Server struct {
	cfg       *config.Config
	view      *view.View
	refresher *refresh.Refresher
	loc       *time.Location
	mux       *http.ServeMux

	// capturePage is swapped out in tests.
	capturePage func(context.Context, capture.Options) error
}

// NewServer constructs a Server. refresher may be nil.
func NewServer(cfg *config.Config, v *view.View, refresher *refresh.Refresher, loc *time.Location) *Server {
	if loc == nil {
		loc = time.UTC
	}
	s := &Server{
		cfg:         cfg,
		view:        v,
		refresher:   refresher,
		loc:         loc,
		mux:         http.NewServeMux(),
		capturePage: capture.PagePNG,
	}
	s.registerRoutes()
	return s
}

// Handler returns the root handler with request logging and, when
// configured, basic auth.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		h = s.basicAuthMiddleware(h)
	}
	return requestLogger(h)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen, "basic_auth", s.basicAuthEnabled())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /{$}", s.handlePage)
	s.mux.HandleFunc("POST /filter", s.handleFilter)

	s.mux.HandleFunc("POST /api/hover/cell", s.handleCellEnter)
	s.mux.HandleFunc("POST /api/hover/cell/leave", s.handleCellLeave)
	s.mux.HandleFunc("POST /api/hover/marker", s.handleMarkerEnter)
	s.mux.HandleFunc("POST /api/hover/marker/leave", s.handleMarkerLeave)

	s.mux.HandleFunc("GET /api/state", s.handleState)
	s.mux.HandleFunc("GET /api/export.ics", s.handleExport)
	s.mux.HandleFunc("POST /api/capture", s.handleCapture)
	s.mux.HandleFunc("GET /preview.png", s.handlePreview)
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password means disabled.
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="backupviz", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// requestLogger tags every request with an id and logs it at debug level.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.NewString()
		w.Header().Set("X-Request-Id", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		started := time.Now()
		next.ServeHTTP(rec, r)
		appLog.Debug("http request",
			"id", id,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"took", time.Since(started).Round(time.Microsecond),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (s *Server) handlePage(w http.ResponseWriter, _ *http.Request) {
	s.writePage(w, http.StatusOK)
}

// handleFilter sets both bounds from the form and applies them.
//
//	POST /filter  start=2024-01-01T00:00&end=2024-01-02T00:00
//
// Success (or a missing bound, which is a no-op) redirects to /. A bound
// that does not parse re-renders the page with 422 and the message.
func (s *Server) handleFilter(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	s.view.SetStart(r.PostForm.Get("start"))
	s.view.SetEnd(r.PostForm.Get("end"))

	err := s.view.Filter()
	var we *derive.WindowError
	if errors.As(err, &we) {
		s.writePage(w, http.StatusUnprocessableEntity)
		return
	}
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// hoverSeq reads the optional ?seq= counter the page script attaches to
// hover events. Absent means unordered.
func hoverSeq(r *http.Request) (uint64, error) {
	raw := r.URL.Query().Get("seq")
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (s *Server) handleCellEnter(w http.ResponseWriter, r *http.Request) {
	seq, err := hoverSeq(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid seq")
		return
	}
	q := r.URL.Query()
	category := model.ScheduleID(q.Get("category"))
	start := q.Get("time")
	if _, ok := s.view.CellEnterAt(seq, category, start); !ok {
		appLog.Debug("cell hover not applied", "category", category, "time", start, "seq", seq)
	}
	s.writeFragment(w, s.view.RenderDetails)
}

func (s *Server) handleCellLeave(w http.ResponseWriter, r *http.Request) {
	seq, err := hoverSeq(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid seq")
		return
	}
	s.view.CellLeaveAt(seq)
	s.writeFragment(w, s.view.RenderDetails)
}

func (s *Server) handleMarkerEnter(w http.ResponseWriter, r *http.Request) {
	seq, err := hoverSeq(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid seq")
		return
	}
	q := r.URL.Query()
	s.view.MarkerEnterAt(seq, model.ScheduleID(q.Get("id")), q.Get("time"))
	s.writeFragment(w, s.view.RenderGrid)
}

func (s *Server) handleMarkerLeave(w http.ResponseWriter, r *http.Request) {
	seq, err := hoverSeq(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid seq")
		return
	}
	s.view.MarkerLeaveAt(seq)
	s.writeFragment(w, s.view.RenderGrid)
}

// stateResponse is the JSON shape of /api/state.
type stateResponse struct {
	Input       model.FilterInput    `json:"input"`
	Ready       bool                 `json:"ready"`
	Validation  string               `json:"validation,omitempty"`
	WindowStart *time.Time           `json:"window_start,omitempty"`
	WindowEnd   *time.Time           `json:"window_end,omitempty"`
	Categories  []model.Category     `json:"categories"`
	Intervals   []model.TimeInterval `json:"intervals"`
	Occurrences []model.Occurrence   `json:"occurrences"`
	Unparseable int                  `json:"unparseable"`
	Hovered     *model.MarkerKey     `json:"hovered,omitempty"`
	Detail      *model.HoverDetail   `json:"detail,omitempty"`
	HoverSeq    uint64               `json:"hover_seq"`
	Refresh     *refresh.Status      `json:"refresh,omitempty"`
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	st := s.view.Snapshot()
	resp := stateResponse{
		Input:       st.Input,
		Ready:       st.Ready,
		Validation:  st.Validation,
		Categories:  st.Categories,
		Intervals:   st.Intervals,
		Occurrences: st.Filtered,
		Unparseable: st.Unparseable,
		Hovered:     st.Hovered,
		Detail:      st.Detail,
		HoverSeq:    st.HoverSeq,
	}
	if st.Window != nil {
		resp.WindowStart = &st.Window.From
		resp.WindowEnd = &st.Window.To
	}
	if s.refresher != nil {
		rs := s.refresher.Status()
		resp.Refresh = &rs
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleExport returns the filtered occurrences as an iCalendar feed.
func (s *Server) handleExport(w http.ResponseWriter, _ *http.Request) {
	st := s.view.Snapshot()
	if st.Window == nil {
		writeError(w, http.StatusConflict, "no filter applied")
		return
	}

	var buf bytes.Buffer
	if err := export.ICS(&buf, st.Categories, st.Filtered, s.loc, time.Now()); err != nil {
		appLog.Error("export failed", err)
		writeError(w, http.StatusInternalServerError, "failed to export occurrences")
		return
	}
	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="backup-schedule.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// handleCapture renders the current page through headless Chromium and
// stores it for /preview.png.
func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	opts := capture.Options{
		URL:        capture.LocalURL(s.cfg.Listen, "/"),
		OutputPath: s.cfg.Capture.OutputPath,
		Width:      s.cfg.Capture.Width,
		Height:     s.cfg.Capture.Height,
		Timeout:    time.Duration(s.cfg.Capture.TimeoutSec) * time.Second,
	}
	if s.basicAuthEnabled() {
		appLog.Warn("capture requested with basic auth enabled; the page may not load", "url", opts.URL)
	}
	if err := s.capturePage(r.Context(), opts); err != nil {
		appLog.Error("capture failed", err)
		writeError(w, http.StatusBadGateway, "capture failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"path": "/preview.png"})
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	// ServeFile maps missing files to 404.
	http.ServeFile(w, r, s.cfg.Capture.OutputPath)
}

func (s *Server) writePage(w http.ResponseWriter, status int) {
	var buf bytes.Buffer
	if err := s.view.Render(&buf); err != nil {
		appLog.Error("page render failed", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) writeFragment(w http.ResponseWriter, render func(io.Writer) error) {
	var buf bytes.Buffer
	if err := render(&buf); err != nil {
		appLog.Error("fragment render failed", err)
		http.Error(w, "render failed", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
