package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/zen-systems/switchboard/pkg/agent"
	"github.com/zen-systems/switchboard/pkg/handoff"
	"github.com/zen-systems/switchboard/pkg/router"
)

const (
	defaultStatsWindow  = 24 * time.Hour
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
)

type agentInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Specialist  bool   `json:"specialist"`
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	roles := agent.AllRoles()
	out := make([]agentInfo, 0, len(roles))
	for _, role := range roles {
		out = append(out, agentInfo{
			Name:        role.String(),
			Description: role.Description(),
			Specialist:  role.IsSpecialist(),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.deps.Store != nil {
		if err := s.deps.Store.Ping(r.Context()); err != nil {
			s.logger.Warn("store not ready", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	var req routeRequest
	if !s.decode(w, r, &req) {
		return
	}
	opts := router.RouteOptions{ForceClassifier: req.ForceClassifier}
	if req.CurrentAgent != "" {
		opts.Current = agent.MustParseAgentRole(req.CurrentAgent)
	}
	d, err := s.deps.Engine.Route(r.Context(), req.Text, opts)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req decideRequest
	if !s.decode(w, r, &req) {
		return
	}
	d, err := s.deps.Handoff.Decide(r.Context(), req.Text, agent.MustParseAgentRole(req.CurrentAgent))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if !s.decode(w, r, &req) {
		return
	}
	// Unknown names stay zero and are rejected by the protocol; the
	// failure message is rewritten to carry the name the caller sent.
	from, fromErr := agent.ParseAgentRole(req.From)
	to, toErr := agent.ParseAgentRole(req.TargetAgent)
	h := agent.Handoff{From: from, TargetAgent: to, Reason: req.Reason, Context: req.Context}

	res := s.deps.Handoff.Execute(r.Context(), h, req.Message, req.UserID, req.ThreadID)
	if f := res.Failure; f != nil {
		if f.Code == handoff.FailureUnknownAgent {
			switch {
			case fromErr != nil:
				f.Message = fmt.Sprintf("unknown source agent %q", req.From)
			case toErr != nil:
				f.Message = fmt.Sprintf("unknown target agent %q", req.TargetAgent)
			}
		}
		writeJSON(w, failureStatus(f.Code), res)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func failureStatus(code handoff.FailureCode) int {
	switch code {
	case handoff.FailureTransitionNotAllowed:
		return http.StatusConflict
	case handoff.FailureRecordFailed:
		return http.StatusInternalServerError
	default:
		return http.StatusUnprocessableEntity
	}
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := defaultHistoryLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}
	records, err := s.deps.Handoff.History(r.Context(), q.Get("user_id"), q.Get("thread_id"), limit)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if records == nil {
		records = []agent.HandoffRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleSubmitFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if !s.decode(w, r, &req) {
		return
	}
	entry, err := req.toEntry()
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	id, err := s.deps.Feedback.Submit(r.Context(), entry)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	since := time.Now().Add(-defaultStatsWindow)
	switch {
	case q.Get("since") != "":
		t, err := time.Parse(time.RFC3339, q.Get("since"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		since = t
	case q.Get("window") != "":
		d, err := time.ParseDuration(q.Get("window"))
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "window must be a positive duration")
			return
		}
		since = time.Now().Add(-d)
	}
	stats, err := s.deps.Feedback.RoutingStats(r.Context(), since)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleProcessFeedback(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Feedback.ProcessPending(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"promoted": n})
}

func (s *Server) handleSeedExamples(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Feedback.SeedExampleEmbeddings(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"seeded": n})
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	var verr *agent.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error:  verr.Error(),
			Fields: []fieldError{{Field: verr.Field, Rule: "domain"}},
		})
	case errors.Is(err, context.Canceled):
		writeError(w, http.StatusServiceUnavailable, "request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
