package server

import (
	"io"
	"net/http"
	"strconv"

	"github.com/teranos/PTX/datasets"
	"github.com/teranos/PTX/errors"
	"github.com/teranos/PTX/logger"
)

// HandleListDatasets lists dataset metadata
func (s *PTXServer) HandleListDatasets(w http.ResponseWriter, r *http.Request) {
	metas, err := s.services.Datasets.List(r.Context())
	if err != nil {
		writeKindError(w, s.logger, err, "failed to list datasets")
		return
	}
	writeJSON(w, http.StatusOK, metas)
}

// HandleUploadDataset stores the multipart field "file". The extension
// decides the format and the remaining filename becomes the dataset name
// unless a "name" field is given.
func (s *PTXServer) HandleUploadDataset(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxUploadBytes)
	if err := r.ParseMultipartForm(MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid multipart upload: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file provided")
		return
	}
	defer file.Close()

	name, format, err := datasets.SplitFilename(header.Filename)
	if err != nil {
		writeKindError(w, s.logger, err, "failed to read upload")
		return
	}
	if override := r.FormValue("name"); override != "" {
		name = override
	}

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read uploaded file")
		return
	}

	meta, err := s.services.Datasets.Put(r.Context(), data, name, format)
	if err != nil {
		writeKindError(w, s.logger, err, "failed to store dataset")
		return
	}
	s.logger.Infow("Dataset uploaded",
		logger.FieldDatasetID, meta.ID,
		"name", meta.Name,
		logger.FieldSize, len(data))
	writeJSON(w, http.StatusOK, meta)
}

// HandleImportDataset downloads a dataset from a URL
func (s *PTXServer) HandleImportDataset(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	if req.URL == "" {
		writeKindError(w, s.logger, errors.NewInvalidInputf("url is required"), "failed to import dataset")
		return
	}
	var format datasets.Format
	if req.Format != "" {
		f, err := datasets.ParseFormat(req.Format)
		if err != nil {
			writeKindError(w, s.logger, err, "failed to import dataset")
			return
		}
		format = f
	}

	meta, err := s.services.Importer.Import(r.Context(), req.URL, req.Name, format)
	if err != nil {
		writeKindError(w, s.logger, err, "failed to import dataset")
		return
	}
	writeJSON(w, http.StatusOK, meta)
}

// HandleGetDataset returns metadata including the record count
func (s *PTXServer) HandleGetDataset(w http.ResponseWriter, r *http.Request) {
	ds, err := s.services.Datasets.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeKindError(w, s.logger, err, "failed to read dataset")
		return
	}
	writeJSON(w, http.StatusOK, ds.Meta)
}

// HandleDeleteDataset deletes a dataset; a missing dataset is not an error
func (s *PTXServer) HandleDeleteDataset(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Datasets.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeKindError(w, s.logger, err, "failed to delete dataset")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleGetRecord returns one record. An index outside the dataset is a 404
// here, unlike a bad row in a run binding.
func (s *PTXServer) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(r.PathValue("idx"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Record index must be an integer")
		return
	}
	record, err := s.services.Datasets.GetRecord(r.Context(), r.PathValue("id"), idx)
	if err != nil {
		if errors.Is(err, datasets.ErrRecordNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "Record not found at that index.", Kind: string(errors.KindInvalidRowIndex)})
			return
		}
		writeKindError(w, s.logger, err, "failed to read record")
		return
	}
	writeJSON(w, http.StatusOK, record)
}
