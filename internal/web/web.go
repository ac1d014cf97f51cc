package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"calimport/internal/cache"
	"calimport/internal/config"
	"calimport/internal/importer"
	appLog "calimport/internal/log"
	"calimport/internal/recurrence"
)

const (
	dateLayout      = "2006-01-02"
	localTimeLayout = "2006-01-02T15:04:05"
	shutdownTimeout = 5 * time.Second
)

// Server exposes import status and recurrence previews over HTTP.
type Server struct {
	cfg    *config.Config
	board  *importer.Board
	events *cache.EventCache
	mux    *http.ServeMux
}

// NewServer constructs a new Server. board and events may be nil.
func NewServer(cfg *config.Config, board *importer.Board, events *cache.EventCache) *Server {
	s := &Server{
		cfg:    cfg,
		board:  board,
		events: events,
		mux:    http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

// ListenAndServe serves on cfg.Listen until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="calimport", charset="UTF-8"`)
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

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/import", s.handleImport)
	s.mux.HandleFunc("GET /api/events", s.handleEvents)
	s.mux.HandleFunc("GET /api/recurrence", s.handleRecurrence)
	s.mux.HandleFunc("GET /api/recurrence/truncate", s.handleTruncate)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleImport returns the progress of the latest import run.
//
// GET /api/import        latest run
// GET /api/import?all=1  latest run of every source
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	if s.board == nil {
		writeError(w, http.StatusNotFound, "no import has run yet")
		return
	}
	if all, _ := strconv.ParseBool(r.URL.Query().Get("all")); all {
		runs := s.board.All()
		sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
		writeJSON(w, http.StatusOK, runs)
		return
	}
	snap, ok := s.board.Latest()
	if !ok {
		writeError(w, http.StatusNotFound, "no import has run yet")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// eventDTO is a JSON-friendly view of a cached event.
type eventDTO struct {
	ID       string    `json:"id"`
	UID      string    `json:"uid"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	AllDay   bool      `json:"all_day"`
	RRule    string    `json:"rrule,omitempty"`
	Modified time.Time `json:"modified"`
}

// handleEvents lists the imported events of the destination calendar.
func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	dtos := []eventDTO{}
	if s.events != nil {
		for _, ev := range s.events.ByCalendar(s.cfg.Import.CalendarID) {
			dtos = append(dtos, eventDTO{
				ID:       ev.ID,
				UID:      ev.UID,
				Start:    time.Unix(ev.StartTime, 0).UTC(),
				End:      time.Unix(ev.EndTime, 0).UTC(),
				AllDay:   ev.FullDay == 1,
				RRule:    ev.RRule,
				Modified: time.Unix(ev.ModifyTime, 0).UTC(),
			})
		}
	}
	sort.Slice(dtos, func(i, j int) bool { return dtos[i].Start.Before(dtos[j].Start) })
	writeJSON(w, http.StatusOK, dtos)
}

// recurrenceResponse is the JSON response shape for /api/recurrence.
type recurrenceResponse struct {
	RRule     string                    `json:"rrule"`
	Model     recurrence.FrequencyModel `json:"model"`
	RoundTrip string                    `json:"round_trip"`
}

// handleRecurrence previews how a rule is shown in the editor.
//
// GET /api/recurrence?rrule=FREQ=WEEKLY;BYDAY=MO&start=2024-06-03T09:00:00&tz=Europe/Zurich
//   - start: YYYY-MM-DD for all-day events, otherwise a local or RFC 3339 time
//   - tz:    event timezone, UTC when empty
func (s *Server) handleRecurrence(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := parseStart(q.Get("start"), q.Get("tz"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var rule *recurrence.Rule
	if raw := strings.TrimSpace(q.Get("rrule")); raw != "" {
		rule, err = recurrence.ParseRule(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	m := recurrence.RuleToModel(rule, start.Time, s.recurrenceOptions()...)
	resp := recurrenceResponse{Model: m}
	if rule != nil {
		resp.RRule = rule.String()
	}
	if back := recurrence.ModelToRule(m, start); back != nil {
		resp.RoundTrip = back.String()
	}
	writeJSON(w, http.StatusOK, resp)
}

// truncateResponse is the JSON response shape for /api/recurrence/truncate.
type truncateResponse struct {
	Occurrence int     `json:"occurrence"`
	RRule      *string `json:"rrule"`
}

// handleTruncate previews "delete this and future occurrences".
//
// GET /api/recurrence/truncate?rrule=...&start=...&tz=...&from=...
//   - from: start of the first removed occurrence, same format as start
//
// A null rrule means no occurrence is left.
func (s *Server) handleTruncate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	start, err := parseStart(q.Get("start"), q.Get("tz"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	from, err := parseStart(q.Get("from"), q.Get("tz"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "from: "+err.Error())
		return
	}
	rule, err := recurrence.ParseRule(q.Get("rrule"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n, err := recurrence.OccurrenceNumber(rule, start, from.Time)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	truncated, err := recurrence.TruncateBefore(rule, start, from.Time, n)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	resp := truncateResponse{Occurrence: n}
	if truncated != nil {
		str := truncated.String()
		resp.RRule = &str
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) recurrenceOptions() []recurrence.Option {
	if s.cfg == nil {
		return nil
	}
	f, ok := recurrence.ParseFrequency(s.cfg.Recurrence.DefaultFrequency)
	if !ok {
		return nil
	}
	return []recurrence.Option{recurrence.WithBaseFrequency(f)}
}

var errMissingStart = errors.New("start is required")

// parseStart reads an event start. A bare date is an all-day start anchored
// at midnight UTC.
func parseStart(value, tz string) (recurrence.DateTime, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return recurrence.DateTime{}, errMissingStart
	}
	if d, err := time.Parse(dateLayout, value); err == nil {
		return recurrence.DateTime{Time: d, AllDay: true}, nil
	}

	loc, err := resolveLocation(tz)
	if err != nil {
		return recurrence.DateTime{}, err
	}
	if t, err := time.ParseInLocation(localTimeLayout, value, loc); err == nil {
		return recurrence.DateTime{Time: t}, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return recurrence.DateTime{}, errors.New("invalid start " + strconv.Quote(value))
	}
	return recurrence.DateTime{Time: t.In(loc)}, nil
}

func resolveLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, errors.New("unknown timezone " + strconv.Quote(name))
	}
	return loc, nil
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
