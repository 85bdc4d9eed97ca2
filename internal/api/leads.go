package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/JakeFAU/leadpipe/internal/lead"
	"github.com/JakeFAU/leadpipe/internal/proposal"
	"github.com/JakeFAU/leadpipe/internal/worker"
)

const defaultListLimit = 50

func (s *Server) listLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := lead.LeadFilter{Limit: defaultListLimit}
	if raw := q.Get("status"); raw != "" {
		status, err := lead.ParseStatus(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		filter.Status = status
	}
	var err error
	if filter.MinScore, err = intParam(q.Get("min_score"), 0); err != nil {
		writeError(w, http.StatusBadRequest, "invalid min_score")
		return
	}
	if filter.Limit, err = intParam(q.Get("limit"), defaultListLimit); err != nil || filter.Limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	leads, err := s.deps.Store.ListLeads(r.Context(), filter)
	if err != nil {
		s.writeStoreError(w, err, "leads")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads, "count": len(leads)})
}

func (s *Server) hotLeads(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r.URL.Query().Get("limit"), defaultListLimit)
	if err != nil || limit < 0 {
		writeError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	leads, err := s.deps.Store.HotLeads(r.Context(), limit)
	if err != nil {
		s.writeStoreError(w, err, "leads")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads, "count": len(leads)})
}

func (s *Server) getLead(w http.ResponseWriter, r *http.Request) {
	l, err := s.deps.Store.GetLead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (s *Server) getAnalysis(w http.ResponseWriter, r *http.Request) {
	a, err := s.deps.Store.GetAnalysis(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeStoreError(w, err, "analysis")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

func (s *Server) qualifyLead(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := s.deps.Processor.Process(r.Context(), id)
	resp := map[string]any{"result": res}
	switch {
	case errors.Is(err, worker.ErrPublish):
		// the score is stored; only the notification failed
		s.logger.Warn("hot lead notification failed", zap.String("lead_id", id), zap.Error(err))
		resp["warning"] = err.Error()
	case err != nil:
		s.writeStoreError(w, err, "lead")
		return
	}
	l, err := s.deps.Store.GetLead(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}
	resp["lead"] = l
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) qualifyNew(w http.ResponseWriter, r *http.Request) {
	leads, err := s.deps.Store.ListLeads(r.Context(), lead.LeadFilter{Status: lead.StatusNew})
	if err != nil {
		s.writeStoreError(w, err, "leads")
		return
	}
	ids := make([]string, 0, len(leads))
	for _, l := range leads {
		ids = append(ids, l.ID)
	}
	queued, err := s.deps.Enqueuer.EnqueueLeads(r.Context(), ids)
	if err != nil {
		s.logger.Error("queue new leads", zap.Int("queued", queued), zap.Int("total", len(ids)), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"queued": queued})
}

type statusRequest struct {
	Status string `json:"status"`
	Reopen bool   `json:"reopen"`
}

func (s *Server) setStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if !req.Reopen && req.Status == "" {
		writeError(w, http.StatusBadRequest, "status or reopen required")
		return
	}
	id := chi.URLParam(r, "id")
	l, err := s.deps.Store.GetLead(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}

	var next lead.Status
	if req.Reopen {
		next = lead.Reopen(l.Status)
	} else {
		target, err := lead.ParseStatus(req.Status)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if next, err = lead.Transition(l.Status, target); err != nil {
			s.writeStoreError(w, err, "lead")
			return
		}
	}
	if err := s.deps.Store.SetStatus(r.Context(), id, next); err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}
	l.Status = next
	writeJSON(w, http.StatusOK, l)
}

type proposalRequest struct {
	Channel string `json:"channel"`
}

func (s *Server) draftProposal(w http.ResponseWriter, r *http.Request) {
	var req proposalRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	channel := lead.ChannelEmail
	if req.Channel != "" {
		channel = lead.ProposalChannel(strings.ToLower(req.Channel))
	}

	id := chi.URLParam(r, "id")
	l, err := s.deps.Store.GetLead(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}
	var analysis *lead.WebsiteAnalysis
	a, err := s.deps.Store.GetAnalysis(r.Context(), id)
	switch {
	case err == nil:
		analysis = &a
	case !errors.Is(err, lead.ErrNotFound):
		s.writeStoreError(w, err, "analysis")
		return
	}

	p, err := s.deps.Drafter.Draft(l, analysis, channel)
	if err != nil {
		if errors.Is(err, proposal.ErrUnknownChannel) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeStoreError(w, err, "proposal")
		return
	}
	if err := s.deps.Store.SaveProposal(r.Context(), p); err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

func (s *Server) listProposals(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.deps.Store.GetLead(r.Context(), id); err != nil {
		s.writeStoreError(w, err, "lead")
		return
	}
	proposals, err := s.deps.Store.ListProposals(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, err, "proposals")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"proposals": proposals})
}

func intParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
