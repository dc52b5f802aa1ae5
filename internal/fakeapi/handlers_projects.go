package fakeapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) ListProjects() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := userIDFrom(r.Context())

		s.mu.Lock()
		projects := make([]Project, 0, len(s.projects))
		for _, p := range s.projects {
			if p.OwnerID == owner {
				projects = append(projects, p)
			}
		}
		s.mu.Unlock()

		writeData(w, http.StatusOK, projects, map[string]any{"total": len(projects)})
	}
}

func (s *Server) CreateProject() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Name string `json:"name"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeDetail(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if strings.TrimSpace(req.Name) == "" {
			writeDetail(w, http.StatusUnprocessableEntity, "name is required")
			return
		}

		p := Project{
			ID:        uuid.NewString(),
			Name:      req.Name,
			OwnerID:   userIDFrom(r.Context()),
			CreatedAt: s.nowFunc().UTC(),
		}
		s.mu.Lock()
		s.projects = append(s.projects, p)
		s.mu.Unlock()

		writeData(w, http.StatusCreated, p, nil)
	}
}

func (s *Server) GetProject() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		owner := userIDFrom(r.Context())

		s.mu.Lock()
		defer s.mu.Unlock()
		for _, p := range s.projects {
			if p.ID == id && p.OwnerID == owner {
				writeData(w, http.StatusOK, p, nil)
				return
			}
		}
		writeDetail(w, http.StatusNotFound, "project not found")
	}
}
