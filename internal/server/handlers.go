package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-multierror"
	"github.com/testkube/quality-dashboard/internal/charts"
	"github.com/testkube/quality-dashboard/internal/classifier"
	"github.com/testkube/quality-dashboard/internal/dashboard"
	"github.com/testkube/quality-dashboard/internal/database"
	"github.com/testkube/quality-dashboard/internal/records"
)

// maxIngestBytes bounds the body of an ingest request.
const maxIngestBytes = 32 << 20

// windowParam reads the optional ?window= parameter.
func (s *Server) windowParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return s.windowDays, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > maxWindowDays {
		return 0, fmt.Errorf("window must be an integer between 1 and %d", maxWindowDays)
	}
	return n, nil
}

// windowRecords returns the records that can fall inside a window ending
// today, together with the reference time.
func (s *Server) windowRecords(ctx context.Context, window int) ([]records.TestRecord, time.Time, error) {
	reference := s.now().In(s.location)
	y, m, d := reference.Date()
	since := time.Date(y, m, d-(window-1), 0, 0, 0, 0, s.location)

	recs, err := s.db.ListRecords(ctx, since)
	if err != nil {
		return nil, reference, fmt.Errorf("failed to list records: %w", err)
	}
	return recs, reference, nil
}

func (s *Server) payload(w http.ResponseWriter, r *http.Request) (dashboard.Payload, bool) {
	window, err := s.windowParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return dashboard.Payload{}, false
	}
	recs, reference, err := s.windowRecords(r.Context(), window)
	if err != nil {
		s.log.WithError(err).Error("Error loading dashboard")
		writeError(w, http.StatusInternalServerError, "failed to load records")
		return dashboard.Payload{}, false
	}
	return dashboard.Compose(recs, window, reference), true
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	p, ok := s.payload(w, r)
	if !ok {
		return
	}
	s.render(w, "dashboard.html", map[string]interface{}{
		"Payload":   p,
		"Sparkline": template.HTML(s.charts.Sparkline(charts.PassRates(p.RecentTrends))),
	})
}

func (s *Server) handleDashboardAPI(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.payload(w, r); ok {
		writeJSON(w, http.StatusOK, p)
	}
}

func (s *Server) handleTrendChart(w http.ResponseWriter, r *http.Request) {
	p, ok := s.payload(w, r)
	if !ok {
		return
	}
	html, err := s.charts.TrendChart(p.RecentTrends)
	s.writeChart(w, html, err)
}

func (s *Server) handlePassRateChart(w http.ResponseWriter, r *http.Request) {
	p, ok := s.payload(w, r)
	if !ok {
		return
	}
	html, err := s.charts.PassRateChart(p.RecentTrends)
	s.writeChart(w, html, err)
}

func (s *Server) handleSuiteChart(w http.ResponseWriter, r *http.Request) {
	p, ok := s.payload(w, r)
	if !ok {
		return
	}
	html, err := s.charts.SuiteChart(p.Projects)
	s.writeChart(w, html, err)
}

func (s *Server) writeChart(w http.ResponseWriter, html string, err error) {
	if err != nil {
		s.log.WithError(err).Error("Chart error")
		http.Error(w, "Failed to render chart", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(html))
}

func (s *Server) handleFailureAnalysisAPI(w http.ResponseWriter, r *http.Request) {
	window, err := s.windowParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, _, err := s.windowRecords(r.Context(), window)
	if err != nil {
		s.log.WithError(err).Error("Error loading failure analysis")
		writeError(w, http.StatusInternalServerError, "failed to load records")
		return
	}
	writeJSON(w, http.StatusOK, dashboard.AnalyzeFailures(recs))
}

type classifyRequest struct {
	Message string `json:"message"`
	Trace   string `json:"trace"`
}

func (s *Server) handleClassifyAPI(w http.ResponseWriter, r *http.Request) {
	var req classifyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, classifier.Classify(req.Message, req.Trace))
}

func (s *Server) handleListResultsAPI(w http.ResponseWriter, r *http.Request) {
	window, err := s.windowParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	recs, _, err := s.windowRecords(r.Context(), window)
	if err != nil {
		s.log.WithError(err).Error("Error listing results")
		writeError(w, http.StatusInternalServerError, "failed to load records")
		return
	}
	writeJSON(w, http.StatusOK, recs)
}

type ingestResponse struct {
	Inserted []records.TestRecord `json:"inserted"`
	Errors   []string             `json:"errors,omitempty"`
}

// handleIngestAPI accepts a JSON array of raw records, or a single object.
func (s *Server) handleIngestAPI(w http.ResponseWriter, r *http.Request) {
	var body json.RawMessage
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIngestBytes)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var raws []records.Raw
	if err := json.Unmarshal(body, &raws); err != nil {
		var single records.Raw
		if err := json.Unmarshal(body, &single); err != nil || single == nil {
			writeError(w, http.StatusBadRequest, "expected a JSON object or array of objects")
			return
		}
		raws = []records.Raw{single}
	}

	recs := make([]records.TestRecord, 0, len(raws))
	for _, raw := range raws {
		if raw == nil {
			continue
		}
		recs = append(recs, records.Normalize(raw))
	}

	stored, err := s.db.InsertRecords(r.Context(), recs)
	resp := ingestResponse{Inserted: stored}
	if err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, e := range merr.Errors {
				resp.Errors = append(resp.Errors, e.Error())
			}
		} else {
			resp.Errors = []string{err.Error()}
		}
		s.log.WithError(err).WithField("records", len(recs)).Warn("Ingest stored only part of the batch")
		if len(stored) == 0 && len(recs) > 0 {
			writeJSON(w, http.StatusInternalServerError, resp)
			return
		}
	}

	s.log.WithField("records", len(stored)).Info("Ingested test results")
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) record(w http.ResponseWriter, r *http.Request) (*records.TestRecord, bool) {
	id := chi.URLParam(r, "id")
	rec, err := s.db.GetRecord(r.Context(), id)
	if errors.Is(err, database.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Result not found")
		return nil, false
	}
	if err != nil {
		s.log.WithError(err).WithField("id", id).Error("Error loading result")
		writeError(w, http.StatusInternalServerError, "failed to load result")
		return nil, false
	}
	return rec, true
}

func (s *Server) handleGetResultAPI(w http.ResponseWriter, r *http.Request) {
	if rec, ok := s.record(w, r); ok {
		writeJSON(w, http.StatusOK, rec)
	}
}

// handleResultAnalysisAPI classifies a stored failing result on demand.
func (s *Server) handleResultAnalysisAPI(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.record(w, r)
	if !ok {
		return
	}
	result, failing := dashboard.Diagnose(*rec)
	if !failing {
		writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("result has status %s; only failed or broken results are analyzed", rec.Status))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleTestMetricsAPI(w http.ResponseWriter, r *http.Request) {
	historyID := pathParam(r, "historyId")
	recs, err := s.db.ListRecords(r.Context(), time.Time{})
	if err != nil {
		s.log.WithError(err).WithField("history_id", historyID).Error("Error loading test history")
		writeError(w, http.StatusInternalServerError, "failed to load records")
		return
	}
	metrics, ok := dashboard.TestMetrics(recs, historyID)
	if !ok {
		writeError(w, http.StatusNotFound, "Test not found")
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) handleSuiteAPI(w http.ResponseWriter, r *http.Request) {
	window, err := s.windowParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	name := pathParam(r, "name")
	recs, reference, err := s.windowRecords(r.Context(), window)
	if err != nil {
		s.log.WithError(err).WithField("suite", name).Error("Error loading suite")
		writeError(w, http.StatusInternalServerError, "failed to load records")
		return
	}
	report, ok := dashboard.SuiteStats(recs, name, window, reference)
	if !ok {
		writeError(w, http.StatusNotFound, "Suite not found")
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// pathParam returns a URL parameter with any remaining percent-encoding
// removed, so suite names holding separators can be addressed.
func pathParam(r *http.Request, key string) string {
	v := chi.URLParam(r, key)
	if unescaped, err := url.PathUnescape(v); err == nil {
		return unescaped
	}
	return v
}
