package server

import (
	"context"
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/jonathan/insight-pipeline/internal/dataset"
	"github.com/jonathan/insight-pipeline/internal/db"
	"github.com/jonathan/insight-pipeline/internal/pipeline"
	"github.com/jonathan/insight-pipeline/internal/types"
)

// RunRequest represents the request body for /run and /run/stream.
// Exactly one of DatasetURL and CSV supplies the dataset; multipart requests
// upload it as the "dataset" file instead.
type RunRequest struct {
	Query      string         `json:"query"`
	DatasetURL string         `json:"dataset_url,omitempty"`
	CSV        string         `json:"csv,omitempty"`
	Metadata   types.Metadata `json:"metadata,omitempty"` // Generated when empty
}

// MetadataResponse represents the response for /metadata
type MetadataResponse struct {
	Rows     int            `json:"rows"`
	Columns  []string       `json:"columns"`
	Metadata types.Metadata `json:"metadata"`
}

// handleRun runs the pipeline to completion and returns the final state
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	in, err := s.prepareRun(r)
	if err != nil {
		s.failure(w, err)
		return
	}

	orch, err := s.cfg.NewOrchestrator(nil)
	if err != nil {
		s.failure(w, err)
		return
	}

	st, err := orch.Run(r.Context(), in)
	if err != nil {
		s.failure(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, st)
}

// handleRunStream runs the pipeline and streams progress via SSE
func (s *Server) handleRunStream(w http.ResponseWriter, r *http.Request) {
	in, err := s.prepareRun(r)
	if err != nil {
		s.failure(w, err)
		return
	}

	sse, err := NewSSEWriter(w)
	if err != nil {
		s.errorResponse(w, http.StatusInternalServerError, err.Error())
		return
	}

	orch, err := s.cfg.NewOrchestrator(func(event pipeline.ProgressEvent) {
		if err := sse.WriteEvent("step", event); err != nil {
			s.log.Warn("error writing SSE event", "error", err)
		}
	})
	if err != nil {
		sse.WriteError(err.Error())
		return
	}

	st, err := orch.Run(r.Context(), in)
	if st != nil {
		if werr := sse.WriteEvent("result", st); werr != nil {
			s.log.Warn("error writing SSE result", "error", werr)
		}
	}
	if err != nil {
		sse.WriteError(err.Error())
		return
	}
	sse.WriteComplete(st)
}

// handleMetadata profiles and describes an uploaded dataset without running the pipeline
func (s *Server) handleMetadata(w http.ResponseWriter, r *http.Request) {
	req, table, err := s.readDataset(r)
	if err != nil {
		s.failure(w, err)
		return
	}

	md := req.Metadata
	if len(md) == 0 {
		md, err = s.cfg.Metadata(r.Context(), table)
		if err != nil {
			s.failure(w, err)
			return
		}
	}

	s.jsonResponse(w, http.StatusOK, MetadataResponse{
		Rows:     table.Len(),
		Columns:  table.Columns,
		Metadata: md,
	})
}

// prepareRun turns a request into pipeline input, generating metadata when absent
func (s *Server) prepareRun(r *http.Request) (pipeline.Input, error) {
	req, table, err := s.readDataset(r)
	if err != nil {
		return pipeline.Input{}, err
	}
	if strings.TrimSpace(req.Query) == "" {
		return pipeline.Input{}, &ErrValidation{Field: "query", Message: "is required"}
	}

	md := req.Metadata
	if len(md) == 0 {
		md, err = s.cfg.Metadata(r.Context(), table)
		if err != nil {
			return pipeline.Input{}, err
		}
	} else if err := md.Validate(); err != nil {
		return pipeline.Input{}, &ErrValidation{Field: "metadata", Message: err.Error()}
	}

	return pipeline.Input{
		Query:    strings.TrimSpace(req.Query),
		Metadata: md,
		Source:   table,
	}, nil
}

// readDataset decodes the request and loads its dataset
func (s *Server) readDataset(r *http.Request) (RunRequest, *types.Table, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, s.cfg.MaxUploadBytes)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		return s.readMultipart(r)
	}

	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return req, nil, &ErrValidation{Field: "body", Message: "invalid JSON: " + err.Error()}
	}

	switch {
	case req.CSV != "" && req.DatasetURL != "":
		return req, nil, &ErrValidation{Field: "dataset", Message: "csv and dataset_url are mutually exclusive"}
	case req.CSV != "":
		table, err := dataset.LoadCSV(strings.NewReader(req.CSV), "request")
		return req, table, err
	case req.DatasetURL != "":
		table, err := s.loadURL(r.Context(), req.DatasetURL)
		return req, table, err
	default:
		return req, nil, &ErrValidation{Field: "dataset", Message: "one of csv or dataset_url is required"}
	}
}

func (s *Server) readMultipart(r *http.Request) (RunRequest, *types.Table, error) {
	req := RunRequest{
		Query:      r.FormValue("query"),
		DatasetURL: r.FormValue("dataset_url"),
	}
	if raw := r.FormValue("metadata"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Metadata); err != nil {
			return req, nil, &ErrValidation{Field: "metadata", Message: "invalid JSON: " + err.Error()}
		}
	}

	file, header, err := r.FormFile("dataset")
	if errors.Is(err, http.ErrMissingFile) {
		if req.DatasetURL == "" {
			return req, nil, &ErrValidation{Field: "dataset", Message: "upload a dataset file or set dataset_url"}
		}
		table, err := s.loadURL(r.Context(), req.DatasetURL)
		return req, table, err
	}
	if err != nil {
		return req, nil, &ErrValidation{Field: "dataset", Message: err.Error()}
	}
	defer file.Close() //nolint:errcheck

	table, err := dataset.LoadNamed(file, header.Filename)
	return req, table, err
}

func (s *Server) loadURL(ctx context.Context, url string) (*types.Table, error) {
	if s.cfg.Loader == nil {
		return nil, &ErrUnavailable{Feature: "dataset_url", Hint: "the server was started without a dataset loader"}
	}
	if err := checkDatasetURL(url, s.cfg.AllowedURLHosts); err != nil {
		return nil, err
	}
	return s.cfg.Loader.LoadURL(ctx, url)
}

// handleListRuns lists recent runs, optionally filtered by status
func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if !s.requireRuns(w) {
		return
	}

	filters := db.RunFilters{Status: r.URL.Query().Get("status")}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			s.failure(w, &ErrValidation{Field: "limit", Message: "must be a positive integer"})
			return
		}
		filters.Limit = limit
	}

	runs, err := s.cfg.Runs.ListRuns(r.Context(), filters)
	if err != nil {
		s.failure(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"runs": runs, "count": len(runs)})
}

// handleGetRun returns one run record
func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	run, err := s.cfg.Runs.GetRun(r.Context(), runID)
	if err != nil {
		s.failure(w, err)
		return
	}
	if run == nil {
		s.failure(w, &ErrNotFound{Resource: "run", ID: runID.String()})
		return
	}
	s.jsonResponse(w, http.StatusOK, run)
}

// handleDeleteRun deletes a run and its artifacts
func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	run, err := s.cfg.Runs.GetRun(r.Context(), runID)
	if err != nil {
		s.failure(w, err)
		return
	}
	if run == nil {
		s.failure(w, &ErrNotFound{Resource: "run", ID: runID.String()})
		return
	}
	if err := s.cfg.Runs.DeleteRun(r.Context(), runID); err != nil {
		s.failure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRunArtifacts lists a run's artifacts
func (s *Server) handleRunArtifacts(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}

	artifacts, err := s.cfg.Runs.ListArtifacts(r.Context(), runID)
	if err != nil {
		s.failure(w, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, map[string]any{"run_id": runID, "artifacts": artifacts})
}

// handleRunArtifact returns one artifact by step key, e.g. plan_attempt_1
func (s *Server) handleRunArtifact(w http.ResponseWriter, r *http.Request) {
	runID, ok := s.runID(w, r)
	if !ok {
		return
	}
	step := r.PathValue("step")

	artifact, err := s.cfg.Runs.GetArtifact(r.Context(), runID, step)
	if err != nil {
		s.failure(w, err)
		return
	}
	if artifact == nil {
		s.failure(w, &ErrNotFound{Resource: "artifact", ID: step})
		return
	}
	s.jsonResponse(w, http.StatusOK, artifact)
}

func (s *Server) requireRuns(w http.ResponseWriter) bool {
	if s.cfg.Runs == nil {
		s.failure(w, &ErrUnavailable{Feature: "run history", Hint: "set database_url to record runs"})
		return false
	}
	return true
}

func (s *Server) runID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	if !s.requireRuns(w) {
		return uuid.Nil, false
	}
	runID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		s.failure(w, &ErrValidation{Field: "id", Message: "invalid run ID format"})
		return uuid.Nil, false
	}
	return runID, true
}
