package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/newtondotcom/roomplanv2/internal/capture"
	"github.com/newtondotcom/roomplanv2/internal/importer"
	"github.com/newtondotcom/roomplanv2/internal/journal"
	"github.com/newtondotcom/roomplanv2/internal/merge"
	"github.com/newtondotcom/roomplanv2/internal/monitoring"
	"github.com/newtondotcom/roomplanv2/internal/plan"
	"github.com/newtondotcom/roomplanv2/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// Server exposes the project store, the capture session, and the merge and
// import workflows over HTTP.
type Server struct {
	store    *plan.Store
	session  *capture.Controller
	merger   *merge.Coordinator
	importer *importer.Coordinator
	journal  *journal.Journal // optional, may be nil
}

func NewServer(store *plan.Store, session *capture.Controller, merger *merge.Coordinator, imp *importer.Coordinator, jnl *journal.Journal) *Server {
	return &Server{
		store:    store,
		session:  session,
		merger:   merger,
		importer: imp,
		journal:  jnl,
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

	mux.HandleFunc("GET /api/projects", s.listProjects)
	mux.HandleFunc("POST /api/projects", s.createProject)
	mux.HandleFunc("GET /api/projects/{id}", s.showProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.deleteProject)
	mux.HandleFunc("POST /api/projects/{id}/rename", s.renameProject)
	mux.HandleFunc("POST /api/projects/{id}/rooms/{room}/rename", s.renameRoom)
	mux.HandleFunc("DELETE /api/projects/{id}/rooms/{room}", s.deleteRoom)
	mux.HandleFunc("POST /api/projects/{id}/merge", s.mergeProject)
	mux.HandleFunc("POST /api/projects/{id}/import", s.importFiles)

	mux.HandleFunc("GET /api/session", s.sessionState)
	mux.HandleFunc("POST /api/session/start", s.sessionStart)
	mux.HandleFunc("POST /api/session/stop", s.sessionStop)
	mux.HandleFunc("POST /api/session/process", s.sessionProcess)
	mux.HandleFunc("POST /api/session/end", s.sessionEnd)
	mux.HandleFunc("POST /api/projects/{id}/session/complete", s.sessionComplete)

	mux.HandleFunc("GET /api/journal", s.showJournal)
	mux.HandleFunc("GET /api/version", s.showVersion)

	return mux
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]string{
		"version":    version.Version,
		"git_sha":    version.GitSHA,
		"build_time": version.BuildTime,
	})
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "Failed to write response")
	}
}

// errorStatus maps workflow errors onto HTTP status codes.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, plan.ErrProjectNotFound), errors.Is(err, plan.ErrRoomNotFound):
		return http.StatusNotFound
	case errors.Is(err, plan.ErrEmptyName),
		errors.Is(err, plan.ErrInvalidGeometry),
		errors.Is(err, plan.ErrReadOnlyProject),
		errors.Is(err, merge.ErrInsufficientMergeInput),
		errors.Is(err, capture.ErrNoPendingRoomData):
		return http.StatusBadRequest
	case errors.Is(err, merge.ErrMergeInProgress), errors.Is(err, capture.ErrSessionEnded):
		return http.StatusConflict
	case errors.Is(err, capture.ErrCaptureTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) projectID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid project id")
		return uuid.Nil, false
	}
	return id, true
}

func (s *Server) record(kind string, projectID uuid.UUID, format string, v ...interface{}) {
	if s.journal == nil {
		return
	}
	s.journal.Record(kind, projectID, fmt.Sprintf(format, v...))
}

func (s *Server) listProjects(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.store.List())
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	p, err := s.store.Create(req.Name)
	if err != nil {
		s.writeJSONError(w, errorStatus(err), err.Error())
		return
	}
	s.record("project_created", p.ID, "created project %q", p.Name)
	w.WriteHeader(http.StatusCreated)
	s.writeJSON(w, p)
}

func (s *Server) showProject(w http.ResponseWriter, r *http.Request) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	p, found := s.store.Get(id)
	if !found {
		s.writeJSONError(w, http.StatusNotFound, plan.ErrProjectNotFound.Error())
		return
	}
	s.writeJSON(w, p)
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	if err := s.store.Delete(id); err != nil {
		s.writeJSONError(w, errorStatus(err), err.Error())
		return
	}
	s.record("project_deleted", id, "deleted project")
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) renameProject(w http.ResponseWriter, r *http.Request) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.store.RenameProject(id, req.Name); err != nil {
		s.writeJSONError(w, errorStatus(err), err.Error())
		return
	}
	s.record("project_renamed", id, "renamed project to %q", req.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) renameRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	roomID, err := uuid.Parse(r.PathValue("room"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid room id")
		return
	}
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if err := s.store.RenameRoom(id, roomID, req.Name); err != nil {
		s.writeJSONError(w, errorStatus(err), err.Error())
		return
	}
	s.record("room_renamed", id, "renamed room %s to %q", roomID, req.Name)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteRoom(w http.ResponseWriter, r *http.Request) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	roomID, err := uuid.Parse(r.PathValue("room"))
	if err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid room id")
		return
	}
	if err := s.store.DeleteRoom(id, roomID); err != nil {
		s.writeJSONError(w, errorStatus(err), err.Error())
		return
	}
	s.record("room_deleted", id, "deleted room %s", roomID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) mergeProject(w http.ResponseWriter, r *http.Request) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	if err := s.merger.Merge(r.Context(), id); err != nil {
		s.writeJSONError(w, errorStatus(err), err.Error())
		return
	}
	s.record("project_merged", id, "merge completed")
	p, _ := s.store.Get(id)
	s.writeJSON(w, p)
}

func (s *Server) importFiles(w http.ResponseWriter, r *http.Request) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	var req struct {
		Paths []string `json:"paths"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	added, err := s.importer.Import(r.Context(), id, req.Paths)
	var batch *plan.BatchError
	switch {
	case err == nil:
		s.record("rooms_imported", id, "imported %d rooms", len(added))
		s.writeJSON(w, map[string]interface{}{"rooms": added})
	case errors.As(err, &batch):
		// partial success: report both the added rooms and the failures
		s.record("rooms_imported", id, "imported %d rooms, %d failed", batch.Succeeded, len(batch.Failures))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMultiStatus)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"rooms": added,
			"error": batch.Error(),
		})
	default:
		s.writeJSONError(w, errorStatus(err), err.Error())
	}
}

func (s *Server) sessionState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]interface{}{
		"state":        s.session.State(),
		"pending_room": s.session.HasPendingRoom(),
		"room_count":   s.session.RoomCount(),
	})
}

func (s *Server) sessionStart(w http.ResponseWriter, r *http.Request) {
	if err := s.session.Start(); err != nil {
		s.writeJSONError(w, errorStatus(err), err.Error())
		return
	}
	s.sessionState(w, r)
}

func (s *Server) sessionStop(w http.ResponseWriter, r *http.Request) {
	if err := s.session.StopCurrentRoom(r.Context()); err != nil {
		s.writeJSONError(w, errorStatus(err), err.Error())
		return
	}
	s.sessionState(w, r)
}

func (s *Server) sessionProcess(w http.ResponseWriter, r *http.Request) {
	if err := s.session.ProcessPendingRoom(r.Context()); err != nil {
		s.writeJSONError(w, errorStatus(err), err.Error())
		return
	}
	s.sessionState(w, r)
}

func (s *Server) sessionEnd(w http.ResponseWriter, r *http.Request) {
	s.session.End()
	s.sessionState(w, r)
}

// sessionComplete finishes the scan workflow for a project: any buffered room
// is processed, every accumulated geometry is saved as a named room, and the
// session is closed. Room names come from the request body and pair up with
// the session's rooms by position.
func (s *Server) sessionComplete(w http.ResponseWriter, r *http.Request) {
	id, ok := s.projectID(w, r)
	if !ok {
		return
	}
	var req struct {
		Names []string `json:"names"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	// a still-buffered final room joins the batch; nothing buffered is fine
	if err := s.session.ProcessPendingRoom(r.Context()); err != nil && !errors.Is(err, capture.ErrNoPendingRoomData) {
		s.writeJSONError(w, errorStatus(err), err.Error())
		return
	}

	geometries := s.session.Rooms()
	if len(geometries) == 0 {
		s.writeJSONError(w, http.StatusBadRequest, "session has no rooms to save")
		return
	}

	scanned := make([]merge.ScannedRoom, len(geometries))
	for i, g := range geometries {
		var name string
		if i < len(req.Names) {
			name = req.Names[i]
		}
		scanned[i] = merge.ScannedRoom{Name: name, Geometry: g}
	}

	added, err := s.merger.StoreScannedRooms(id, scanned)
	var batch *plan.BatchError
	switch {
	case err == nil:
		s.session.End()
		s.record("session_completed", id, "saved %d rooms", len(added))
		s.writeJSON(w, map[string]interface{}{"rooms": added})
	case errors.As(err, &batch):
		// the saved subset is durable; the session ends either way
		s.session.End()
		s.record("session_completed", id, "saved %d rooms, %d failed", batch.Succeeded, len(batch.Failures))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMultiStatus)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"rooms": added,
			"error": batch.Error(),
		})
	default:
		s.writeJSONError(w, errorStatus(err), err.Error())
	}
}

func (s *Server) showJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeJSONError(w, http.StatusNotFound, "journal disabled")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			s.writeJSONError(w, http.StatusBadRequest, "Invalid 'limit' parameter")
			return
		}
		limit = parsed
	}

	entries, err := s.journal.Recent(limit)
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError,
			fmt.Sprintf("Failed to retrieve journal: %v", err))
		return
	}
	s.writeJSON(w, entries)
}
