package server

import (
	"net/http"

	"github.com/teranos/PTX/logger"
	"github.com/teranos/PTX/templates"
)

// HandleListTemplates lists template ids and names
func (s *PTXServer) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	metas, err := s.services.Templates.List(r.Context())
	if err != nil {
		writeKindError(w, s.logger, err, "failed to list templates")
		return
	}
	writeJSON(w, http.StatusOK, metas)
}

// HandleCreateTemplate stores a new template and returns its id and name
func (s *PTXServer) HandleCreateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	t, err := s.services.Templates.Create(r.Context(), req.Name, req.Content)
	if err != nil {
		writeKindError(w, s.logger, err, "failed to create template")
		return
	}
	s.logger.Infow("Template created", logger.FieldTemplateID, t.ID, "name", t.Name)
	writeJSON(w, http.StatusOK, templates.Meta{ID: t.ID, Name: t.Name})
}

// HandleGetTemplate returns a template with its content
func (s *PTXServer) HandleGetTemplate(w http.ResponseWriter, r *http.Request) {
	t, err := s.services.Templates.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeKindError(w, s.logger, err, "failed to read template")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HandleUpdateTemplate replaces a template's name and content
func (s *PTXServer) HandleUpdateTemplate(w http.ResponseWriter, r *http.Request) {
	var req templateRequest
	if err := readJSON(w, r, &req); err != nil {
		return
	}
	t, err := s.services.Templates.Update(r.Context(), r.PathValue("id"), templates.Update{
		Name:    &req.Name,
		Content: &req.Content,
	})
	if err != nil {
		writeKindError(w, s.logger, err, "failed to update template")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HandleDeleteTemplate deletes a template; a missing template is not an error
func (s *PTXServer) HandleDeleteTemplate(w http.ResponseWriter, r *http.Request) {
	if err := s.services.Templates.Delete(r.Context(), r.PathValue("id")); err != nil {
		writeKindError(w, s.logger, err, "failed to delete template")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
