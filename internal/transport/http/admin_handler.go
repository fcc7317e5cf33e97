package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"training-ledger-service/internal/app"
	"training-ledger-service/internal/domain"
)

// AdminHandler serves the dashboard rollup and the course content editor.
type AdminHandler struct {
	reporter *app.Reporter
	courses  *app.CourseService
	log      *zap.Logger
}

func NewAdminHandler(reporter *app.Reporter, courses *app.CourseService, log *zap.Logger) *AdminHandler {
	return &AdminHandler{reporter: reporter, courses: courses, log: log}
}

// Register mounts the admin routes on mux.
func (h *AdminHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /report", h.report)
	mux.HandleFunc("PUT /courses/{id}/content", h.updateCourseContent)
}

func (h *AdminHandler) report(w http.ResponseWriter, r *http.Request) {
	report, err := h.reporter.Report(r.Context())
	if err != nil {
		h.log.Error("build report", zap.Error(err))
		http.Error(w, "report unavailable", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (h *AdminHandler) updateCourseContent(w http.ResponseWriter, r *http.Request) {
	courseID := r.PathValue("id")

	var content domain.CourseContent
	if err := json.NewDecoder(r.Body).Decode(&content); err != nil {
		http.Error(w, "invalid content payload", http.StatusBadRequest)
		return
	}

	course, err := h.courses.UpdateContent(r.Context(), courseID, content)
	if errors.Is(err, domain.ErrCourseNotFound) {
		http.Error(w, "course not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.log.Error("update course content", zap.String("course", courseID), zap.Error(err))
		http.Error(w, "update failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, course)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
