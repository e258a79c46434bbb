package http

import (
	"bytes"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"budgetsync/internal/amqp"
	"budgetsync/internal/core"
	"budgetsync/internal/export"
	blog "budgetsync/internal/log"
	"budgetsync/internal/services"
	"budgetsync/internal/sheets"
)

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady reports ready once the database answers and the local
// snapshot can be loaded.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(r.Context()); err != nil {
			blog.FromContext(r.Context()).ErrorContext(r.Context(), "Database ping failed", blog.FieldError, err)
			ErrorResponse(http.StatusServiceUnavailable, "database unavailable").Write(w)
			return
		}
	}
	if _, err := s.ledger.Snapshot(r.Context()); err != nil {
		blog.FromContext(r.Context()).ErrorContext(r.Context(), "Readiness check failed", blog.FieldError, err)
		ErrorResponse(http.StatusServiceUnavailable, "snapshot unavailable").Write(w)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleGetSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		s.fail(w, r, "load snapshot", err)
		return
	}
	NewResponse().JSON(snap).Write(w)
}

// handleImportSnapshot replaces local state with a document of any shape.
func (s *Server) handleImportSnapshot(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(r, maxSnapshotBody)
	if err != nil {
		s.fail(w, r, "read import", err)
		return
	}
	raw, err := export.Import(bytes.NewReader(body))
	if err != nil {
		BadRequestError("body is not valid JSON").Write(w)
		return
	}
	snap, err := s.ledger.Import(r.Context(), raw)
	if err != nil {
		s.fail(w, r, "import snapshot", err)
		return
	}
	NewResponse().JSON(snap).Write(w)
}

type insightsResponse struct {
	WealthMetrics core.WealthMetrics `json:"wealthMetrics"`
	Insights      []core.Insight     `json:"insights"`
}

func (s *Server) handleInsights(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		s.fail(w, r, "load snapshot", err)
		return
	}
	NewResponse().JSON(insightsResponse{WealthMetrics: snap.WealthMetrics, Insights: snap.Insights}).Write(w)
}

// handleExport serves /api/export.json and /api/export.csv. The optional
// rule query parameter applies a smart export rule's filters; record=true
// appends the export to the snapshot's history.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	format := export.FormatJSON
	if strings.HasSuffix(r.URL.Path, ".csv") {
		format = export.FormatCSV
	}

	snap, err := s.ledger.Snapshot(r.Context())
	if err != nil {
		s.fail(w, r, "load snapshot", err)
		return
	}

	ruleID := r.URL.Query().Get("rule")
	filter, err := export.RuleFilter(snap, ruleID, format)
	if err != nil {
		s.fail(w, r, "resolve export rule", err)
		return
	}

	var buf bytes.Buffer
	count, err := export.Write(&buf, format, snap, filter)
	if err != nil {
		s.fail(w, r, "render export", err)
		return
	}

	fileName := export.FileName(format, s.now())
	if record, _ := strconv.ParseBool(r.URL.Query().Get("record")); record {
		_, err := s.ledger.RecordExport(r.Context(), core.ExportRecord{
			RuleID:    ruleID,
			Format:    format,
			FileName:  fileName,
			ItemCount: count,
		})
		if err != nil {
			blog.FromContext(r.Context()).WarnContext(r.Context(), "Failed to record export", blog.FieldError, err)
		}
	}

	contentType := "application/json"
	if format == export.FormatCSV {
		contentType = "text/csv; charset=utf-8"
	}
	NewResponse().
		Header("Content-Disposition", `attachment; filename="`+fileName+`"`).
		Raw(contentType, buf.Bytes()).
		Write(w)
}

type syncResponse struct {
	Revision     int64 `json:"revision"`
	RemoteFound  bool  `json:"remoteFound"`
	LocalChanged bool  `json:"localChanged"`
	Pushed       bool  `json:"pushed"`
}

// handleSync reconciles with the remote inline, or with async=true only
// requests a sync from the worker.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if async, _ := strconv.ParseBool(r.URL.Query().Get("async")); async {
		if err := s.ledger.RequestSync(r.Context(), amqp.ReasonManual); err != nil {
			s.fail(w, r, "request sync", err)
			return
		}
		NewResponse().Status(http.StatusAccepted).JSON(map[string]string{"status": "queued"}).Write(w)
		return
	}

	result, err := s.ledger.Sync(r.Context())
	if err != nil {
		s.fail(w, r, "sync", err)
		return
	}
	NewResponse().JSON(syncResponse{
		Revision:     result.Snapshot.Revision,
		RemoteFound:  result.RemoteFound,
		LocalChanged: result.LocalChanged,
		Pushed:       result.Pushed,
	}).Write(w)
}

type syncStatusResponse struct {
	RemoteFound    bool  `json:"remoteFound"`
	RemoteRevision int64 `json:"remoteRevision"`
	LocalRevision  int64 `json:"localRevision"`
	Behind         bool  `json:"behind"`
}

func (s *Server) handleSyncStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.ledger.RemoteStatus(r.Context())
	if err != nil {
		s.fail(w, r, "remote status", err)
		return
	}
	NewResponse().JSON(syncStatusResponse{
		RemoteFound:    status.RemoteFound,
		RemoteRevision: status.RemoteRevision,
		LocalRevision:  status.LocalRevision,
		Behind:         status.Behind(),
	}).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := decodeJSON(r, &req); err != nil {
		if errors.Is(err, errBodyTooLarge) {
			ErrorResponse(http.StatusRequestEntityTooLarge, err.Error()).Write(w)
			return
		}
		BadRequestError("invalid request body").Write(w)
		return
	}

	tx, err := req.toTransaction(s.now())
	if err != nil {
		UnprocessableEntityError(err.Error()).Write(w)
		return
	}
	saved, err := s.ledger.SaveTransaction(r.Context(), tx)
	if err != nil {
		s.fail(w, r, "save transaction", err)
		return
	}
	NewResponse().Status(http.StatusCreated).JSON(saved).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	id := sanitizeInput(r.PathValue("id"))
	if err := s.ledger.DeleteTransaction(r.Context(), id); err != nil {
		s.fail(w, r, "delete transaction", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps domain errors to status codes and logs the rest.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	switch {
	case isValidationError(err):
		UnprocessableEntityError(err.Error()).Write(w)
	case errors.Is(err, services.ErrNotFound), errors.Is(err, export.ErrRuleNotFound):
		NotFoundError(err.Error()).Write(w)
	case errors.Is(err, sheets.ErrNotConfigured):
		ErrorResponse(http.StatusServiceUnavailable, "no sync backend configured").Write(w)
	case errors.Is(err, errBodyTooLarge):
		ErrorResponse(http.StatusRequestEntityTooLarge, err.Error()).Write(w)
	default:
		blog.NewStructuredLogger(blog.FromContext(r.Context())).
			LogError(r.Context(), "Request failed", err, blog.ComponentHTTP, op, nil)
		InternalServerError("internal error").Write(w)
	}
}

func isValidationError(err error) bool {
	for _, target := range []error{
		core.ErrInvalidAmount, core.ErrInvalidDate, core.ErrEmptyName,
		core.ErrMissingID, core.ErrUnknownType, core.ErrTooLong,
		export.ErrRuleDisabled, export.ErrRuleFormat,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
