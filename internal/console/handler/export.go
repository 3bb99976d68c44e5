package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/xela07ax/coffee-export-workflow/internal/domain"
	"github.com/xela07ax/coffee-export-workflow/internal/infra/auth"
	"github.com/xela07ax/coffee-export-workflow/internal/workflow"
)

// ExportService Описываем, что нам нужно от движка workflow
type ExportService interface {
	CreateExport(ctx context.Context, in workflow.CreateInput) (*domain.ExportRecord, error)
	GetExport(ctx context.Context, id string) (*domain.ExportRecord, error)
	ListExports(ctx context.Context, status domain.Status, limit int) ([]*domain.ExportRecord, error)
	ApplyTransition(ctx context.Context, id string, target domain.Status, role domain.Role, actorID, reason string) (*domain.ExportRecord, error)
	Resubmit(ctx context.Context, id string, role domain.Role, actorID string) (*domain.ExportRecord, error)
	AvailableActionsFor(ctx context.Context, id string, role domain.Role) ([]workflow.Action, error)
	HistoryOf(ctx context.Context, id string) ([]domain.TransitionEvent, error)
}

type ExportHandler struct {
	service  ExportService
	progress *workflow.Calculator
}

func NewExportHandler(s ExportService, progress *workflow.Calculator) *ExportHandler {
	return &ExportHandler{service: s, progress: progress}
}

func (h *ExportHandler) Create(w http.ResponseWriter, r *http.Request) {
	var in workflow.CreateInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	// Партию заводит сам экспортер; ID владельца берем из сессии
	if role := workflow.NormalizeRole(auth.RoleFromContext(r.Context())); role != domain.RoleExporter {
		writeError(w, domain.ErrForbidden)
		return
	}
	if in.ExporterID == "" {
		in.ExporterID = auth.UserIDFromContext(r.Context())
	}

	rec, err := h.service.CreateExport(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rec)
}

func (h *ExportHandler) Get(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetExport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// List — очереди организаций: ?status=ECX_PENDING отдает decision queue ECX.
func (h *ExportHandler) List(w http.ResponseWriter, r *http.Request) {
	status := domain.Status(r.URL.Query().Get("status"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.service.ListExports(r.Context(), status, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type TransitionRequest struct {
	TargetStatus domain.Status `json:"target_status"`
	Reason       string        `json:"reason"`
}

// Transition — командный путь. Роль и ID актора только из сессии:
// клиентскому JSON здесь не доверяем.
func (h *ExportHandler) Transition(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req TransitionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.TargetStatus == "" {
		http.Error(w, "target_status is required", http.StatusBadRequest)
		return
	}

	rec, err := h.service.ApplyTransition(r.Context(), id,
		req.TargetStatus,
		auth.RoleFromContext(r.Context()),
		auth.UserIDFromContext(r.Context()),
		req.Reason,
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *ExportHandler) Resubmit(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Resubmit(r.Context(), chi.URLParam(r, "id"),
		auth.RoleFromContext(r.Context()),
		auth.UserIDFromContext(r.Context()),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Actions — по этому списку UI рисует кнопки. Командный путь все равно
// перепроверит: клиенту с вычислением прав не доверяем никогда.
func (h *ExportHandler) Actions(w http.ResponseWriter, r *http.Request) {
	actions, err := h.service.AvailableActionsFor(r.Context(), chi.URLParam(r, "id"),
		auth.RoleFromContext(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, actions)
}

func (h *ExportHandler) History(w http.ResponseWriter, r *http.Request) {
	events, err := h.service.HistoryOf(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

type ProgressResponse struct {
	ExportID   string                   `json:"export_id"`
	Status     domain.Status            `json:"status"`
	Percentage int                      `json:"percentage"`
	Stages     []workflow.StageProgress `json:"stages"`
}

// Progress — сводка для трекера этапов на дашборде.
func (h *ExportHandler) Progress(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.GetExport(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	pct, err := h.progress.ProgressOf(rec.Status)
	if err != nil {
		writeError(w, err)
		return
	}
	stages, err := h.progress.Summary(rec.Status)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, ProgressResponse{
		ExportID:   rec.ID,
		Status:     rec.Status,
		Percentage: pct,
		Stages:     stages,
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError мапит терминальную таксономию движка на HTTP-классы.
// Внутренние детали (SQL, конфигурация) наружу не утекают.
func writeError(w http.ResponseWriter, err error) {
	var status int
	var code string

	switch {
	case errors.Is(err, domain.ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrForbidden):
		status, code = http.StatusForbidden, "forbidden"
	case errors.Is(err, domain.ErrInvalidArgument):
		status, code = http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, domain.ErrConflict):
		status, code = http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrUnknownStatus), errors.Is(err, domain.ErrUnknownRole),
		errors.Is(err, domain.ErrWorkflowConfiguration):
		status, code = http.StatusInternalServerError, "configuration_error"
	default:
		status, code = http.StatusInternalServerError, "internal"
	}

	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}
