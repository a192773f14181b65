package http

import (
	"net/http"

	"kharcha/internal/auth"
	"kharcha/internal/core"
)

type nameRequest struct {
	Name string `json:"name"`
}

// taxonomyRoutes registers list, create, rename and delete for one kind.
func (s *Server) taxonomyRoutes(mux *http.ServeMux, base string, kind core.TaxonKind) {
	mux.Handle("GET "+base, s.authed(s.handleListTaxa(kind)))
	mux.Handle("POST "+base, s.authed(s.handleCreateTaxon(kind)))
	mux.Handle("PATCH "+base+"/{id}", s.authed(s.handleRenameTaxon(kind)))
	mux.Handle("DELETE "+base+"/{id}", s.authed(s.handleDeleteTaxon(kind)))
}

func (s *Server) handleListTaxa(kind core.TaxonKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		taxa, err := s.deps.Taxonomy.ListWithRetry(r.Context(), auth.GetUserID(r.Context()), kind)
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, list(taxa))
	}
}

func (s *Server) handleCreateTaxon(kind core.TaxonKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req nameRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		t, err := s.deps.Taxonomy.Create(r.Context(), auth.GetUserID(r.Context()), kind, sanitizeInput(req.Name))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusCreated, t)
	}
}

func (s *Server) handleRenameTaxon(kind core.TaxonKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req nameRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, err)
			return
		}
		t, err := s.deps.Taxonomy.Rename(r.Context(), auth.GetUserID(r.Context()), kind, r.PathValue("id"), sanitizeInput(req.Name))
		if err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, r, http.StatusOK, t)
	}
}

func (s *Server) handleDeleteTaxon(kind core.TaxonKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.deps.Taxonomy.Delete(r.Context(), auth.GetUserID(r.Context()), kind, r.PathValue("id")); err != nil {
			writeError(w, r, err)
			return
		}
		noContent(w)
	}
}
