package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/rollcall/internal/campaign"
)

// StartRequest is the request body for POST /campaigns/{community}/start
type StartRequest struct {
	Days int `json:"days"`
}

// ExtendRequest is the request body for POST /campaigns/{community}/extend
type ExtendRequest struct {
	Days int `json:"days"`
}

// ConfigureRequest is the request body for PUT /campaigns/{community}/config
type ConfigureRequest struct {
	TargetRoleID  *string `json:"role_target_id,omitempty"`
	FormerRoleID  *string `json:"role_former_member_id,omitempty"`
	PendingRoleID *string `json:"role_pending_id,omitempty"`
	LogChannelID  *string `json:"log_channel_id,omitempty"`
	AttemptsMax   *int    `json:"attempts_max,omitempty"`
}

// AnswerRequest is the webhook body the gateway posts when a member
// clicks a roll-call button.
type AnswerRequest struct {
	Community   string `json:"community"`
	CampaignID  string `json:"campaign_id"`
	UserID      string `json:"user_id"`
	ResponderID string `json:"responder_id"`
	Answer      string `json:"answer"`
}

// OutcomeResponse is the generic success body.
type OutcomeResponse struct {
	Message string `json:"message"`
	Sent    int    `json:"sent,omitempty"`
}

// ErrorResponse is the error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// handleStart handles POST /api/v1/campaigns/{community}/start
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	community := chi.URLParam(r, "community")

	req := StartRequest{Days: 7}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.sendError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Days <= 0 {
		s.sendError(w, http.StatusBadRequest, "days must be positive")
		return
	}

	sent, err := s.manager.Start(r.Context(), community, req.Days)
	if err != nil {
		s.sendCampaignError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, OutcomeResponse{Message: "campaign started", Sent: sent})
}

// handlePause handles POST /api/v1/campaigns/{community}/pause
func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Pause(r.Context(), chi.URLParam(r, "community")); err != nil {
		s.sendCampaignError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, OutcomeResponse{Message: "campaign paused"})
}

// handleResume handles POST /api/v1/campaigns/{community}/resume
func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Resume(r.Context(), chi.URLParam(r, "community")); err != nil {
		s.sendCampaignError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, OutcomeResponse{Message: "campaign resumed"})
}

// handleExtend handles POST /api/v1/campaigns/{community}/extend
func (s *Server) handleExtend(w http.ResponseWriter, r *http.Request) {
	var req ExtendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Days <= 0 {
		s.sendError(w, http.StatusBadRequest, "days must be positive")
		return
	}

	if err := s.manager.Extend(r.Context(), chi.URLParam(r, "community"), req.Days); err != nil {
		s.sendCampaignError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, OutcomeResponse{Message: "deadline extended"})
}

// handleClose handles POST /api/v1/campaigns/{community}/close
func (s *Server) handleClose(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Close(r.Context(), chi.URLParam(r, "community")); err != nil {
		s.sendCampaignError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, OutcomeResponse{Message: "campaign closed"})
}

// handleResend handles POST /api/v1/campaigns/{community}/resend:
// an immediate forced pass over recipients still pending.
func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	sent, err := s.runner.Run(r.Context(), chi.URLParam(r, "community"), true)
	if err != nil {
		s.logger.Error("forced delivery pass failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "delivery pass failed")
		return
	}
	s.sendJSON(w, http.StatusOK, OutcomeResponse{Message: "resend triggered", Sent: sent})
}

// handleConfigure handles PUT /api/v1/campaigns/{community}/config
func (s *Server) handleConfigure(w http.ResponseWriter, r *http.Request) {
	var req ConfigureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	cfg := campaign.Config{
		TargetRoleID:  req.TargetRoleID,
		FormerRoleID:  req.FormerRoleID,
		PendingRoleID: req.PendingRoleID,
		LogChannelID:  req.LogChannelID,
		AttemptsMax:   req.AttemptsMax,
	}
	if err := s.manager.Configure(r.Context(), chi.URLParam(r, "community"), cfg); err != nil {
		s.sendCampaignError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, OutcomeResponse{Message: "configuration updated"})
}

// handleStatus handles GET /api/v1/campaigns/{community}/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	summary, err := s.manager.Status(r.Context(), chi.URLParam(r, "community"))
	if err != nil {
		s.logger.Error("failed to load status", "error", err)
		s.sendError(w, http.StatusInternalServerError, "failed to load status")
		return
	}
	s.sendJSON(w, http.StatusOK, summary)
}

// handleAnswer handles POST /api/v1/answers
func (s *Server) handleAnswer(w http.ResponseWriter, r *http.Request) {
	var req AnswerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.sendError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Community == "" || req.CampaignID == "" || req.UserID == "" {
		s.sendError(w, http.StatusBadRequest, "community, campaign_id and user_id are required")
		return
	}

	answer, err := campaign.ParseAnswer(req.Answer)
	if err != nil {
		s.sendError(w, http.StatusBadRequest, err.Error())
		return
	}

	err = s.manager.ApplyAnswer(r.Context(), req.Community, req.CampaignID, req.UserID, req.ResponderID, answer)
	if err != nil {
		s.sendCampaignError(w, err)
		return
	}
	s.sendJSON(w, http.StatusOK, OutcomeResponse{Message: "answer recorded"})
}

// handleHealth handles GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sendCampaignError maps the campaign error taxonomy onto HTTP statuses.
// These are advisory messages, not failures of the service.
func (s *Server) sendCampaignError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, campaign.ErrBusy):
		s.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, campaign.ErrMisconfigured):
		s.sendError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, campaign.ErrNoActiveCampaign):
		s.sendError(w, http.StatusConflict, err.Error())
	case errors.Is(err, campaign.ErrWrongRecipient):
		s.sendError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, campaign.ErrStaleCampaign):
		s.sendError(w, http.StatusGone, err.Error())
	case errors.Is(err, campaign.ErrAlreadyAnswered):
		s.sendError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("campaign operation failed", "error", err)
		s.sendError(w, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

func (s *Server) sendError(w http.ResponseWriter, status int, msg string) {
	s.sendJSON(w, status, ErrorResponse{Error: msg})
}
