package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gramcare/gramcare/internal/flow"
	"github.com/gramcare/gramcare/internal/messaging"
	"github.com/gramcare/gramcare/internal/models"
	"github.com/gramcare/gramcare/internal/util"
	"github.com/openai/openai-go"
)

// twilioWebhookHandler handles POST /: the inbound Twilio WhatsApp webhook.
// Twilio always gets a TwiML document with exactly one message back; a
// persistence failure degrades to the apology reply rather than an error
// status, since the user is waiting on this response.
func (s *Server) twilioWebhookHandler(w http.ResponseWriter, r *http.Request) {
	reqID := util.GenerateRequestID()

	if err := r.ParseForm(); err != nil {
		slog.Warn("Server.twilioWebhookHandler: failed to parse form", "error", err, "request_id", reqID)
		http.Error(w, "Bad request", http.StatusBadRequest)
		return
	}

	msg := messaging.ParseTwilioWebhook(r.PostForm)
	slog.Info("Server.twilioWebhookHandler: inbound message", "request_id", reqID, "user_id", msg.UserID, "type", msg.Type)

	reply, err := s.coordinator.HandleMessage(r.Context(), msg)
	if err != nil {
		slog.Error("Server.twilioWebhookHandler: message handling failed", "error", err, "request_id", reqID, "user_id", msg.UserID)
		reply = flow.ApologyReply
	}

	writeTwiMLResponse(w, reply)
}

// askRequest is the body of POST /api.
type askRequest struct {
	Msg string `json:"msg"`
}

// askHandler handles POST /api: a stateless question against the
// non-personalized system prompt, answered as plain text.
func (s *Server) askHandler(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.askHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Msg == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("msg is required"))
		return
	}

	reply, err := s.genaiClient.GenerateWithMessages(r.Context(), []openai.ChatCompletionMessageParamUnion{
		openai.SystemMessage(flow.StaticSystemPrompt),
		openai.UserMessage(req.Msg),
	})
	if err != nil {
		slog.Error("Server.askHandler: oracle call failed", "error", err)
		reply = flow.ApologyReply
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if _, err := w.Write([]byte(reply)); err != nil {
		slog.Error("Server.askHandler: failed to write response", "error", err)
	}
}

// sendRequest is the body of POST /send.
type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// sendHandler handles POST /send: a proactive outbound message through the
// configured messaging service.
func (s *Server) sendHandler(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sendHandler: invalid JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.To == "" || req.Body == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("to and body are required"))
		return
	}

	if err := s.msgService.SendMessage(r.Context(), req.To, req.Body); err != nil {
		slog.Error("Server.sendHandler: send failed", "error", err, "to", req.To)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send message"))
		return
	}

	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Message sent", nil))
}

// listProfilesHandler handles GET /profiles.
func (s *Server) listProfilesHandler(w http.ResponseWriter, r *http.Request) {
	profiles, err := s.st.ListProfiles(r.Context())
	if err != nil {
		slog.Error("Server.listProfilesHandler: list failed", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to list profiles"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(profiles))
}

// getProfileHandler handles GET /profiles/{id}.
func (s *Server) getProfileHandler(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	profile, err := s.st.GetProfile(r.Context(), id)
	if err != nil {
		slog.Error("Server.getProfileHandler: load failed", "error", err, "user_id", id)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to get profile"))
		return
	}
	if profile == nil {
		writeJSONResponse(w, http.StatusNotFound, models.Error("Profile not found"))
		return
	}
	writeJSONResponse(w, http.StatusOK, models.Success(profile))
}

// healthHandler handles GET /health.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("ok", nil))
}
