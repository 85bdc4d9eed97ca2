package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadpipe/internal/finder"
	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/parser"
)

func (s *Server) listSources(w http.ResponseWriter, r *http.Request) {
	sources, err := s.deps.Store.ListSources(r.Context())
	if err != nil {
		s.writeStoreError(w, err, "sources")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sources": sources})
}

func (s *Server) getSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.deps.Store.GetSource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err, "source")
		return
	}
	writeJSON(w, http.StatusOK, src)
}

type sourceRequest struct {
	Name     string            `json:"name"`
	Type     string            `json:"source_type"`
	Active   *bool             `json:"is_active"`
	Keywords []string          `json:"search_keywords"`
	Config   map[string]string `json:"config"`
}

func (s *Server) createSource(w http.ResponseWriter, r *http.Request) {
	var req sourceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	src, err := s.toSource(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Store.SaveSource(r.Context(), src); err != nil {
		s.writeStoreError(w, err, "source")
		return
	}
	writeJSON(w, http.StatusCreated, src)
}

func (s *Server) toSource(req sourceRequest) (lead.Source, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return lead.Source{}, errors.New("name required")
	}
	typ := lead.SourceType(req.Type)
	if !parser.KnownType(typ) {
		return lead.Source{}, fmt.Errorf("%w: %q", parser.ErrUnknownSourceType, req.Type)
	}
	id, err := s.deps.IDs.NewID()
	if err != nil {
		return lead.Source{}, fmt.Errorf("generate source id: %w", err)
	}
	active := true
	if req.Active != nil {
		active = *req.Active
	}
	return lead.Source{
		ID:        id,
		Name:      name,
		Type:      typ,
		Active:    active,
		Keywords:  req.Keywords,
		Config:    req.Config,
		CreatedAt: s.deps.Clock.Now(),
	}, nil
}

func (s *Server) toggleSource(w http.ResponseWriter, r *http.Request) {
	src, err := s.deps.Store.GetSource(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err, "source")
		return
	}
	src.Active = !src.Active
	if err := s.deps.Store.SaveSource(r.Context(), src); err != nil {
		s.writeStoreError(w, err, "source")
		return
	}
	s.logger.Info("source toggled", zap.String("source_id", src.ID), zap.Bool("active", src.Active))
	writeJSON(w, http.StatusOK, src)
}

type searchRequest struct {
	SourceTypes []string `json:"source_types"`
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	types := make([]lead.SourceType, 0, len(req.SourceTypes))
	for _, raw := range req.SourceTypes {
		t := lead.SourceType(raw)
		if !parser.KnownType(t) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown source type %q", raw))
			return
		}
		types = append(types, t)
	}
	summary, err := s.deps.Searcher.Search(r.Context(), finder.TriggerManual, types)
	if err != nil {
		s.writeStoreError(w, err, "sources")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}
