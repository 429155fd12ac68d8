package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/FranksOps/tubebrief/internal/pipeline"
	"github.com/FranksOps/tubebrief/internal/report"
	"github.com/FranksOps/tubebrief/internal/storage"
	"github.com/FranksOps/tubebrief/internal/summarize"
)

const (
	maxBodyBytes = 1 << 20

	defaultRunsLimit = 50
	maxRunsLimit     = 500
)

// briefRequest is the body accepted by /youtube and /api/scrape.
type briefRequest struct {
	Keyword    string `json:"keyword"`
	MaxResults *int   `json:"maxResults,omitempty"`
}

type successResponse struct {
	Success bool             `json:"success"`
	Data    summarize.Result `json:"data"`
}

type failureResponse struct {
	Success bool   `json:"success"`
	Stage   string `json:"stage"`
	Error   string `json:"error"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleYouTube(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	outcome := s.pipeline.Execute(r.Context(), req)
	s.recordRun(r.Context(), req, pipeline.ModePipeline, outcome.Records, outcome.Err, time.Since(start))

	if !outcome.OK() {
		s.writeFailure(w, req, outcome.Err)
		return
	}

	writeJSON(w, http.StatusOK, successResponse{Success: true, Data: outcome.Result})
}

func (s *Server) handleScrape(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeRequest(w, r)
	if !ok {
		return
	}

	start := time.Now()
	acq := s.pipeline.Acquire(r.Context(), req)
	s.recordRun(r.Context(), req, pipeline.ModeAcquire, acq.Count, acq.Err, time.Since(start))

	if !acq.OK() {
		s.writeFailure(w, req, acq.Err)
		return
	}

	body, err := acq.Records.MarshalJSON()
	if err != nil {
		s.logger.Error("encode records failed", "keyword", req.Keyword, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to encode records"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// decodeRequest writes a 400 and returns false when the body is unusable.
// Nothing is spawned for a rejected request.
func (s *Server) decodeRequest(w http.ResponseWriter, r *http.Request) (pipeline.Request, bool) {
	var body briefRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		msg := "invalid JSON body"
		if errors.Is(err, io.EOF) {
			msg = "request body is empty"
		}
		s.logger.Debug("rejected request", "path", r.URL.Path, "err", err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
		return pipeline.Request{}, false
	}

	maxResults := 0
	if body.MaxResults != nil {
		maxResults = *body.MaxResults
	}

	req, err := pipeline.NewRequest(body.Keyword, maxResults)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return pipeline.Request{}, false
	}

	return req, true
}

func (s *Server) writeFailure(w http.ResponseWriter, req pipeline.Request, serr *pipeline.StageError) {
	s.logger.Error("pipeline failed",
		"keyword", req.Keyword,
		"max_results", req.MaxResults,
		"stage", serr.Stage,
		"err", serr.Err,
	)
	writeJSON(w, http.StatusInternalServerError, failureResponse{
		Success: false,
		Stage:   string(serr.Stage),
		Error:   serr.Error(),
	})
}

// recordRun appends the run to history. Storage errors are logged and never
// change the response.
func (s *Server) recordRun(ctx context.Context, req pipeline.Request, mode string, records int, serr *pipeline.StageError, d time.Duration) {
	if s.history == nil {
		return
	}

	rec := storage.NewRunRecord(req.Keyword, req.MaxResults, mode)
	rec.Records = records
	rec.Duration = d
	rec.Success = serr == nil
	if serr != nil {
		rec.Stage = string(serr.Stage)
		rec.Error = serr.Error()
	}

	// The client may already be gone; the audit row is still wanted.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.saveTimeout)
	defer cancel()

	if err := s.history.Save(ctx, rec); err != nil {
		s.logger.Warn("failed to record run", "keyword", req.Keyword, "mode", mode, "err", err)
	}
}

func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run history is disabled"})
		return
	}

	filter, err := parseFilter(r, true)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	runs, err := s.history.Query(r.Context(), filter)
	if err != nil {
		s.logger.Error("query runs failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to query run history"})
		return
	}
	if runs == nil {
		runs = []*storage.RunRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"runs":  runs,
		"count": len(runs),
	})
}

func (s *Server) handleRunsSummary(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "run history is disabled"})
		return
	}

	filter, err := parseFilter(r, false)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	format := r.URL.Query().Get("format")
	if format == "" {
		format = "json"
	}

	runs, err := s.history.Query(r.Context(), filter)
	if err != nil {
		s.logger.Error("query runs failed", "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to query run history"})
		return
	}

	var buf bytes.Buffer
	if err := report.Write(&buf, format, report.GenerateSummary(runs)); err != nil {
		if errors.Is(err, report.ErrUnknownFormat) {
			writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
			return
		}
		s.logger.Error("render summary failed", "format", format, "err", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to render summary"})
		return
	}

	switch format {
	case "json":
		w.Header().Set("Content-Type", "application/json")
	case "html":
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// parseFilter reads keyword, mode, success and since; paged adds limit and
// offset.
func parseFilter(r *http.Request, paged bool) (storage.Filter, error) {
	q := r.URL.Query()
	filter := storage.Filter{
		Keyword: q.Get("keyword"),
		Mode:    q.Get("mode"),
	}

	if v := q.Get("success"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return filter, fmt.Errorf("invalid success %q", v)
		}
		filter.Success = &b
	}

	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return filter, fmt.Errorf("invalid since %q: want RFC 3339", v)
		}
		filter.Since = &t
	}

	if !paged {
		return filter, nil
	}

	filter.Limit = defaultRunsLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return filter, fmt.Errorf("invalid limit %q", v)
		}
		filter.Limit = min(n, maxRunsLimit)
	}

	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return filter, fmt.Errorf("invalid offset %q", v)
		}
		filter.Offset = n
	}

	return filter, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
