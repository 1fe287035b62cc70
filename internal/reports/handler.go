package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	alerts "classroom-sentinel/internal/alerts/domain"
	"classroom-sentinel/internal/audit"
	"classroom-sentinel/internal/auth"
	"classroom-sentinel/internal/observability/metrics"
)

// Export row caps keep report files bounded.
const maxExportRows = 5000

// AlertReader lists stored alerts for export.
type AlertReader interface {
	List(ctx context.Context, roomID, alertType string, from, to time.Time, limit int) ([]alerts.Alert, error)
}

// Handler serves alert report exports under /api/v1/reports/.
type Handler struct {
	reader      AlertReader
	logger      *log.Logger
	auditLogger audit.Logger
	now         func() time.Time
}

// Option configures the handler.
type Option func(*Handler)

// WithAuditLogger records report exports in the audit log.
func WithAuditLogger(logger audit.Logger) Option {
	return func(h *Handler) { h.auditLogger = logger }
}

// NewHandler constructs a report handler.
func NewHandler(reader AlertReader, logger *log.Logger, opts ...Option) (*Handler, error) {
	if reader == nil {
		return nil, errors.New("reports handler: nil reader")
	}
	if logger == nil {
		logger = log.Default()
	}
	h := &Handler{reader: reader, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP handles /api/v1/reports/alerts.{xlsx,pdf}.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	name := strings.TrimPrefix(r.URL.Path, "/api/v1/reports/")
	var format string
	switch name {
	case "alerts.xlsx":
		format = "xlsx"
	case "alerts.pdf":
		format = "pdf"
	default:
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h.export(w, r, format)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request, format string) {
	start := time.Now()

	query := r.URL.Query()
	roomID := query.Get("room_id")
	alertType := query.Get("type")
	if alertType != "" && !alerts.AlertType(alertType).Valid() {
		http.Error(w, "unknown alert type", http.StatusBadRequest)
		return
	}
	from, ok := parseTime(w, query.Get("from"), "from")
	if !ok {
		return
	}
	to, ok := parseTime(w, query.Get("to"), "to")
	if !ok {
		return
	}
	if !from.IsZero() && !to.IsZero() && !to.After(from) {
		http.Error(w, "to must be after from", http.StatusBadRequest)
		return
	}
	limit := maxExportRows
	if raw := query.Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if parsed < limit {
			limit = parsed
		}
	}

	list, err := h.reader.List(r.Context(), roomID, alertType, from, to, limit)
	if err != nil {
		h.logger.Printf("reports: list alerts: %v", err)
		metrics.ObserveReportExport(format, metrics.ResultError, time.Since(start))
		http.Error(w, "report generation failed", http.StatusInternalServerError)
		return
	}

	summary := Summarize(list, roomID, from, to, h.now())
	var payload []byte
	var contentType string
	switch format {
	case "xlsx":
		payload, err = BuildAlertsXLSX(summary, list)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case "pdf":
		payload, err = BuildAlertsPDF(summary, list)
		contentType = "application/pdf"
	}
	if err != nil {
		h.logger.Printf("reports: build %s: %v", format, err)
		metrics.ObserveReportExport(format, metrics.ResultError, time.Since(start))
		http.Error(w, "report generation failed", http.StatusInternalServerError)
		return
	}

	metrics.ObserveReportExport(format, metrics.ResultSuccess, time.Since(start))
	filename := fmt.Sprintf("alerts-%s.%s", h.now().UTC().Format("2006-01-02"), format)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	_, _ = w.Write(payload)
	h.logAudit(r, roomID, format)
}

func (h *Handler) logAudit(r *http.Request, roomID, format string) {
	if h.auditLogger == nil {
		return
	}
	payload, _ := json.Marshal(map[string]any{"format": format})
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       "report.export",
		ResourceType: "report",
		ResourceID:   "alerts." + format,
		RoomID:       roomID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

func parseTime(w http.ResponseWriter, raw, name string) (time.Time, bool) {
	if raw == "" {
		return time.Time{}, true
	}
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		http.Error(w, name+" must be RFC3339", http.StatusBadRequest)
		return time.Time{}, false
	}
	return parsed.UTC(), true
}
