package httpserver

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	domain "github.com/bryanwahyu/mediscan/internal/domain/analysis"
	"github.com/bryanwahyu/mediscan/internal/infra/export"
	"github.com/bryanwahyu/mediscan/internal/middleware"
)

// GET /v1/analyses?page=&page_size=
func (r *Router) handleAnalyses(w http.ResponseWriter, req *http.Request) error {
	page := middleware.ValidatePage(queryInt(req, "page"))
	size := middleware.ValidateLimit(queryInt(req, "page_size"))

	list, err := r.analysis.ListAnalyses(req.Context(), userID(req), page, size)
	if err != nil {
		return err
	}
	if list.Data == nil {
		list.Data = []*domain.Result{}
	}
	return writeJSON(w, http.StatusOK, list)
}

// GET /v1/analyses/{id}
func (r *Router) handleAnalysis(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "analysis")
	if err != nil {
		return err
	}
	res, err := r.analysis.GetAnalysis(req.Context(), userID(req), domain.ResultID(id))
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, res)
}

// GET /v1/analyses/{id}/findings
func (r *Router) handleFindings(w http.ResponseWriter, req *http.Request) error {
	id, err := pathID(req, "analysis")
	if err != nil {
		return err
	}
	findings, err := r.analysis.Findings(req.Context(), userID(req), domain.ResultID(id))
	if err != nil {
		return err
	}
	if findings == nil {
		findings = []domain.DisplayFinding{}
	}
	return writeJSON(w, http.StatusOK, map[string]any{"findings": findings})
}

// GET /v1/summary?days=30
func (r *Router) handleSummary(w http.ResponseWriter, req *http.Request) error {
	days := middleware.ValidateDays(queryInt(req, "days"))
	summary, err := r.analysis.Summary(req.Context(), userID(req), days)
	if err != nil {
		return err
	}
	return writeJSON(w, http.StatusOK, map[string]any{
		"days":    days,
		"summary": summary,
	})
}

// GET /v1/reports/analyses.xlsx
func (r *Router) handleExport(w http.ResponseWriter, req *http.Request) error {
	results, err := r.analysis.AllAnalyses(req.Context(), userID(req))
	if err != nil {
		return err
	}

	// build in memory so a failure can still be reported as JSON
	var buf bytes.Buffer
	if err := export.WriteAnalyses(&buf, results); err != nil {
		return fmt.Errorf("export analyses: %w", err)
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="analyses.xlsx"`)
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		r.log.WithError(err).Warn("write export")
	}
	return nil
}
