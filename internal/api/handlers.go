// Package api provides HTTP handlers for the bridge's operational endpoints.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/yomakenya/smsbridge/internal/models"
)

// healthResponse is the /health probe body.
type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSONResponse(w, http.StatusOK, healthResponse{
		Status:    "UP",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// sendRequest is the operator-initiated SMS payload.
type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// sendHandler lets an operator push an ad-hoc SMS through the configured
// transport, e.g. to announce downtime to a stuck registrant.
func (s *Server) sendHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		slog.Warn("Server.sendHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	token := r.Header.Get(WebhookTokenHeader)
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.webhookToken)) != 1 {
		slog.Warn("Server.sendHandler: token mismatch", "remote", r.RemoteAddr)
		writeJSONResponse(w, http.StatusUnauthorized, models.Error("Unauthorized"))
		return
	}

	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		slog.Warn("Server.sendHandler: failed to decode JSON", "error", err)
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Invalid JSON format"))
		return
	}
	if req.Body == "" {
		writeJSONResponse(w, http.StatusBadRequest, models.Error("Message body cannot be empty"))
		return
	}

	canonicalTo, err := s.msgService.ValidateAndCanonicalizeRecipient(req.To)
	if err != nil {
		slog.Warn("Server.sendHandler: recipient validation failed", "error", err, "original_to", req.To)
		writeJSONResponse(w, http.StatusBadRequest, models.Error(err.Error()))
		return
	}

	if err := s.msgService.SendMessage(r.Context(), canonicalTo, req.Body); err != nil {
		slog.Error("Server.sendHandler: failed to send message", "error", err, "to", canonicalTo)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to send message"))
		return
	}

	slog.Info("Server.sendHandler: message sent successfully", "to", canonicalTo)
	writeJSONResponse(w, http.StatusOK, models.SuccessWithMessage("Message sent successfully", nil))
}

func (s *Server) onboardedHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		slog.Warn("Server.onboardedHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// ?phone=... checks a single contact instead of listing the trail.
	if phoneNumber := r.URL.Query().Get("phone"); phoneNumber != "" {
		onboarded, err := s.audit.IsOnboarded("", phoneNumber)
		if err != nil {
			slog.Error("Server.onboardedHandler: onboarded check failed", "error", err, "phone", phoneNumber)
			writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to check onboarded status"))
			return
		}
		writeJSONResponse(w, http.StatusOK, models.Success(map[string]bool{"onboarded": onboarded}))
		return
	}

	users, err := s.audit.GetOnboarded()
	if err != nil {
		slog.Error("Server.onboardedHandler: failed to load audit trail", "error", err)
		writeJSONResponse(w, http.StatusInternalServerError, models.Error("Failed to load onboarded users"))
		return
	}
	slog.Debug("Server.onboardedHandler: returning audit trail", "count", len(users))
	writeJSONResponse(w, http.StatusOK, models.Success(users))
}
