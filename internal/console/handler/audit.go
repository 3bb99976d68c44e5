package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/xela07ax/coffee-export-workflow/internal/audit"
)

// AuditReader Читающая сторона журнала аудита
type AuditReader interface {
	FetchLogs(ctx context.Context, exportID, actorRole string, limit int) ([]audit.Event, error)
}

type AuditHandler struct {
	reader AuditReader
}

func NewAuditHandler(r AuditReader) *AuditHandler {
	return &AuditHandler{reader: r}
}

// GetLogs отдает журнал переходов с фильтрами ?export_id= и ?actor_role=.
func (h *AuditHandler) GetLogs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	logs, err := h.reader.FetchLogs(r.Context(), q.Get("export_id"), q.Get("actor_role"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, logs)
}
