package server

import (
	"net/http"

	"github.com/teranos/PTX/logger"
	"github.com/teranos/PTX/run"
)

// HandleRun executes one request. Pipeline failures are part of the result,
// so this always answers 200 once the body decodes.
func (s *PTXServer) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req run.Request
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	result := s.services.Executor.Execute(r.Context(), req, nil)
	if result.Failed() {
		s.logger.Debugw("Run failed",
			logger.FieldTemplateID, req.TemplateID,
			logger.FieldErrorKind, result.ErrorKind,
			logger.FieldError, result.Error)
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleBatch starts a batch job and returns its id immediately
func (s *PTXServer) HandleBatch(w http.ResponseWriter, r *http.Request) {
	var req run.Request
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	jobID, err := s.services.Engine.Submit(r.Context(), req)
	if err != nil {
		writeKindError(w, s.logger, err, "failed to start batch")
		return
	}
	writeJSON(w, http.StatusOK, batchResponse{JobID: jobID})
}

// HandleListJobs lists retained jobs, newest first, optionally filtered by
// ?status=
func (s *PTXServer) HandleListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := s.services.Engine.Jobs(r.URL.Query().Get("status"))
	if err != nil {
		writeKindError(w, s.logger, err, "failed to list jobs")
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

// HandleJobStatus returns a job's status and progress
func (s *PTXServer) HandleJobStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.services.Engine.Status(r.PathValue("id"))
	if err != nil {
		writeKindError(w, s.logger, err, "failed to read job")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// HandleJobResult returns the results of a completed job
func (s *PTXServer) HandleJobResult(w http.ResponseWriter, r *http.Request) {
	results, err := s.services.Engine.Result(r.PathValue("id"))
	if err != nil {
		writeKindError(w, s.logger, err, "failed to read job results")
		return
	}
	writeJSON(w, http.StatusOK, jobResultResponse{Results: results})
}

// HandleSaveResults writes a completed job's results to the sink
func (s *PTXServer) HandleSaveResults(w http.ResponseWriter, r *http.Request) {
	var req saveRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	path, err := s.services.Engine.Save(r.Context(), req.JobID, req.Filename)
	if err != nil {
		writeKindError(w, s.logger, err, "failed to save results")
		return
	}
	s.logger.Infow("Results saved", logger.FieldJobID, req.JobID, "path", path)
	writeJSON(w, http.StatusOK, saveResponse{Message: "Results saved successfully", Path: path})
}
