// Package api serves the monitoring status and event history over HTTP.
package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/banshee-data/bedside/internal/db"
	"github.com/banshee-data/bedside/internal/device"
	"github.com/banshee-data/bedside/internal/httputil"
	"github.com/banshee-data/bedside/internal/monitor"
	"github.com/banshee-data/bedside/internal/monitoring"
	"github.com/banshee-data/bedside/internal/version"
)

// ANSI escape codes for the request log
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
)

// Monitor is the running session.
type Monitor interface {
	Status() monitor.Status
	Recalibrate()
}

// Device is the sensor bridge. It may be nil when only history is served.
type Device interface {
	Info() device.Info
	SetTilt(degrees int) error
}

// History returns recent events, newest first. Both *db.DB and
// *monitor.Recorder implement it.
type History interface {
	RecentAlerts(limit int, kind monitor.AlertKind) ([]monitor.Alert, error)
	RecentTransitions(limit int) ([]monitor.Transition, error)
}

// SessionStore lists stored sessions.
type SessionStore interface {
	Sessions(limit int) ([]db.SessionRow, error)
}

type Server struct {
	monitor  Monitor
	device   Device
	history  History
	sessions SessionStore
}

// NewServer wires the handlers. device and sessions may be nil.
func NewServer(m Monitor, d Device, h History, sessions SessionStore) *Server {
	return &Server{
		monitor:  m,
		device:   d,
		history:  h,
		sessions: sessions,
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		monitoring.Logf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.showStatus)
	mux.HandleFunc("/api/alerts", s.listAlerts)
	mux.HandleFunc("/api/transitions", s.listTransitions)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/recalibrate", s.recalibrate)
	mux.HandleFunc("/api/tilt", s.setTilt)
	return mux
}

// StatusResponse is the body of /api/status.
type StatusResponse struct {
	Version string         `json:"version"`
	Session monitor.Status `json:"session"`
	Device  *device.Info   `json:"device,omitempty"`
}

func (s *Server) showStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	resp := StatusResponse{
		Version: version.String(),
		Session: s.monitor.Status(),
	}
	if s.device != nil {
		info := s.device.Info()
		resp.Device = &info
	}
	httputil.WriteJSONOK(w, resp)
}

func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit, err := httputil.QueryLimit(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	kind := monitor.AlertKind(r.URL.Query().Get("kind"))
	alerts, err := s.history.RecentAlerts(limit, kind)
	if err != nil {
		monitoring.Logf("api: list alerts: %v", err)
		httputil.InternalServerError(w, "failed to list alerts")
		return
	}
	if alerts == nil {
		alerts = []monitor.Alert{}
	}
	httputil.WriteJSONOK(w, alerts)
}

func (s *Server) listTransitions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	limit, err := httputil.QueryLimit(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	trs, err := s.history.RecentTransitions(limit)
	if err != nil {
		monitoring.Logf("api: list transitions: %v", err)
		httputil.InternalServerError(w, "failed to list transitions")
		return
	}
	if trs == nil {
		trs = []monitor.Transition{}
	}
	httputil.WriteJSONOK(w, trs)
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.sessions == nil {
		httputil.WriteJSONError(w, http.StatusNotFound, "no database configured")
		return
	}
	limit, err := httputil.QueryLimit(r, defaultHistoryLimit, maxHistoryLimit)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	rows, err := s.sessions.Sessions(limit)
	if err != nil {
		monitoring.Logf("api: list sessions: %v", err)
		httputil.InternalServerError(w, "failed to list sessions")
		return
	}
	if rows == nil {
		rows = []db.SessionRow{}
	}
	httputil.WriteJSONOK(w, rows)
}

func (s *Server) recalibrate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	s.monitor.Recalibrate()
	monitoring.Logf("bed recalibration requested from %s", r.RemoteAddr)
	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{"status": "recalibration requested"})
}

func (s *Server) setTilt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		httputil.MethodNotAllowed(w)
		return
	}
	if s.device == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no device attached")
		return
	}
	degrees, err := strconv.Atoi(r.FormValue("degrees"))
	if err != nil {
		httputil.BadRequest(w, "degrees must be an integer")
		return
	}
	if err := s.device.SetTilt(degrees); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	httputil.WriteJSONOK(w, map[string]int{"tilt": degrees})
}
