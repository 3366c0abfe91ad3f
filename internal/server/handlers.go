package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/logsentry/internal/app"
	"github.com/hyperjump/logsentry/internal/detector"
	"github.com/hyperjump/logsentry/internal/ingest"
	"github.com/hyperjump/logsentry/internal/models"
	"github.com/hyperjump/logsentry/internal/rules"
	"github.com/hyperjump/logsentry/internal/search"
)

// noComparableResponse is returned when the baseline has nothing to compare the text with.
type noComparableResponse struct {
	Text   string `json:"text"`
	Status string `json:"status"`
}

// CalibrateResponse is the body of POST /api/v1/calibrate.
type CalibrateResponse struct {
	// Status is "calibrated" or "unavailable".
	Status      string              `json:"status"`
	Calibration *models.Calibration `json:"calibration,omitempty"`
	Threshold   models.Threshold    `json:"threshold"`
}

type addBaselineRequest struct {
	models.EntryInput
	Entries []models.EntryInput `json:"entries,omitempty"`
}

type rulesCheckRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleDetect(w http.ResponseWriter, r *http.Request) {
	var req models.DetectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("detect request", zap.Int("k", req.K), zap.String("method", req.ScoreMethod))
	verdict, err := s.app.Detect(r.Context(), &req)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, verdict)
	case errors.Is(err, detector.ErrNoComparableData):
		s.respondJSON(w, http.StatusOK, noComparableResponse{Text: req.Text, Status: models.StatusNoComparableData})
	case errors.Is(err, detector.ErrInvalidRequest):
		s.respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, detector.ErrEmbedding), errors.Is(err, detector.ErrSearch):
		s.respondError(w, http.StatusBadGateway, err.Error())
	default:
		s.logger.Error("detection failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleCalibrate(w http.ResponseWriter, r *http.Request) {
	var req models.CalibrationRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	cal, err := s.app.Calibrate(r.Context(), &req)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, CalibrateResponse{Status: "calibrated", Calibration: cal, Threshold: s.app.Thresholds.Get()})
	case errors.Is(err, app.ErrCalibrationUnavailable):
		s.respondJSON(w, http.StatusOK, CalibrateResponse{Status: "unavailable", Threshold: s.app.Thresholds.Get()})
	case errors.Is(err, detector.ErrInvalidRequest):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("calibration failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleThreshold(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, s.app.Thresholds.Get())
}

func (s *Server) handleAddBaseline(w http.ResponseWriter, r *http.Request) {
	var req addBaselineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	inputs := req.Entries
	if req.Text != "" {
		inputs = append(inputs, req.EntryInput)
	}
	if len(inputs) == 0 {
		s.respondError(w, http.StatusBadRequest, "text or entries is required")
		return
	}
	report, err := s.app.Ingester.IngestEntries(r.Context(), inputs)
	if err != nil {
		if errors.Is(err, ingest.ErrEmptyText) {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.logger.Error("baseline ingest failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusCreated, report)
}

func (s *Server) handleGetBaseline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entry, err := s.app.Storage.GetEntry(r.Context(), id)
	if err != nil {
		if ingest.IsNotFound(err) {
			s.respondError(w, http.StatusNotFound, "entry not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteBaseline(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s.logger.Debug("delete baseline request", zap.String("id", id))
	if err := s.app.Ingester.DeleteEntry(r.Context(), id); err != nil {
		if ingest.IsNotFound(err) {
			s.respondError(w, http.StatusNotFound, "entry not found")
			return
		}
		s.logger.Error("deletion failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleSearchBaseline(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := &search.Request{
		Query:          q.Get("q"),
		Mode:           q.Get("mode"),
		Limit:          queryInt(q.Get("limit"), 10),
		KeywordWeight:  queryFloat(q.Get("keyword_weight")),
		SemanticWeight: queryFloat(q.Get("semantic_weight")),
		Fuzzy:          q.Get("fuzzy") == "true",
	}
	for _, field := range []string{"category", "source"} {
		if v := q.Get(field); v != "" {
			if req.Filters == nil {
				req.Filters = map[string]string{}
			}
			req.Filters[field] = v
		}
	}

	resp, err := s.app.Search.Search(r.Context(), req)
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusOK, resp)
	case errors.Is(err, search.ErrInvalidQuery):
		s.respondError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("baseline search failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleRulesCheck(w http.ResponseWriter, r *http.Request) {
	var req rulesCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	matches, err := s.app.CheckRules(req.Text)
	if err != nil {
		s.respondRulesError(w, err)
		return
	}
	if matches == nil {
		matches = []rules.Match{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"matches": matches, "count": len(matches)})
}

func (s *Server) handleRulesHunt(w http.ResponseWriter, r *http.Request) {
	hits, err := s.app.HuntRules(r.Context(), queryInt(r.URL.Query().Get("limit"), 0))
	if err != nil {
		s.respondRulesError(w, err)
		return
	}
	for _, h := range hits {
		s.logger.Warn("ioc found in baseline", zap.String("ioc", h.IOC.Value), zap.String("entry", h.EntryID))
	}
	if hits == nil {
		hits = []rules.HuntHit{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"hits": hits, "count": len(hits)})
}

func (s *Server) handleRulesReload(w http.ResponseWriter, r *http.Request) {
	n, err := s.app.ReloadRules()
	if err != nil {
		s.respondRulesError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"iocs": n, "status": "reloaded"})
}

func (s *Server) respondRulesError(w http.ResponseWriter, err error) {
	if errors.Is(err, app.ErrNoRules) {
		s.respondError(w, http.StatusNotImplemented, err.Error())
		return
	}
	s.logger.Error("rules request failed", zap.Error(err))
	s.respondError(w, http.StatusInternalServerError, err.Error())
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.Status(r.Context())
	if err != nil {
		s.logger.Error("status failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func queryInt(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// queryFloat parses v, returning 0 when it is empty or malformed.
func queryFloat(v string) float64 {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0
	}
	return f
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
