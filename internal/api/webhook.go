// Package api provides the aggregator webhook handler.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/yomakenya/smsbridge/internal/metrics"
	"github.com/yomakenya/smsbridge/internal/models"
	"github.com/yomakenya/smsbridge/internal/phone"
)

// WebhookTokenHeader carries the aggregator's shared secret.
const WebhookTokenHeader = "X-Advanta-Token"

// Aggregator payloads are not uniform across delivery routes; fields are
// resolved by trying each alias in order.
var (
	phoneFieldAliases   = []string{"msisdn", "mobile", "phoneNumber", "phone", "from"}
	messageFieldAliases = []string{"message", "text", "msg", "content"}
)

func (s *Server) webhookHandler(w http.ResponseWriter, r *http.Request) {
	if r.Body != nil {
		defer r.Body.Close()
	}
	slog.Debug("Server.webhookHandler: processing inbound SMS", "method", r.Method, "path", r.URL.Path)
	if r.Method != http.MethodPost && r.Method != http.MethodGet {
		w.Header().Set("Allow", "GET, POST")
		slog.Warn("Server.webhookHandler: method not allowed", "method", r.Method)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	token := r.Header.Get(WebhookTokenHeader)
	if subtle.ConstantTimeCompare([]byte(token), []byte(s.webhookToken)) != 1 {
		slog.Warn("Server.webhookHandler: webhook token mismatch", "remote", r.RemoteAddr)
		metrics.WebhookRequests.WithLabelValues(metrics.OutcomeError).Inc()
		writeJSONResponse(w, http.StatusUnauthorized, models.WebhookResponse{Success: false, Message: "Unauthorized"})
		return
	}

	phoneNumber, message, shortcode, partnerID := extractWebhookFields(r)
	if phoneNumber == "" {
		slog.Warn("Server.webhookHandler: payload missing phone number")
		metrics.WebhookRequests.WithLabelValues(metrics.OutcomeError).Inc()
		writeJSONResponse(w, http.StatusBadRequest, models.WebhookResponse{Success: false, Message: "Missing phone number"})
		return
	}
	if message == "" {
		slog.Warn("Server.webhookHandler: payload missing message", "phone", phoneNumber)
		metrics.WebhookRequests.WithLabelValues(metrics.OutcomeError).Inc()
		writeJSONResponse(w, http.StatusBadRequest, models.WebhookResponse{Success: false, Message: "Missing message"})
		return
	}

	canonical := phone.Normalize(phoneNumber)
	slog.Debug("Server.webhookHandler: dispatching to engine",
		"phone", canonical, "shortcode", shortcode, "partnerId", partnerID)

	res := s.engine.ProcessMessage(r.Context(), canonical, message)
	if res.Err != nil {
		slog.Error("Server.webhookHandler: dialogue step failed", "error", res.Err, "phone", canonical)
		metrics.WebhookRequests.WithLabelValues(metrics.OutcomeError).Inc()
		writeJSONResponse(w, http.StatusInternalServerError, models.WebhookResponse{Success: false, Message: res.Message})
		return
	}

	metrics.WebhookRequests.WithLabelValues(metrics.OutcomeOK).Inc()
	writeJSONResponse(w, http.StatusOK, models.WebhookResponse{Success: res.Success, Message: res.Message})
}

// extractWebhookFields resolves the payload fields from the request, trying
// query/form parameters first and a JSON body second. Shortcode and partner
// ID are informational and logged only.
func extractWebhookFields(r *http.Request) (phoneNumber, message, shortcode, partnerID string) {
	if err := r.ParseForm(); err != nil {
		slog.Debug("Server.webhookHandler: form parse failed", "error", err)
	}

	var body map[string]interface{}
	if ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type")); err == nil && ct == "application/json" {
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		if err := dec.Decode(&body); err != nil {
			slog.Debug("Server.webhookHandler: JSON body decode failed", "error", err)
		}
	}

	lookup := func(aliases []string) string {
		for _, key := range aliases {
			if v := strings.TrimSpace(r.Form.Get(key)); v != "" {
				return v
			}
		}
		for _, key := range aliases {
			switch v := body[key].(type) {
			case string:
				if t := strings.TrimSpace(v); t != "" {
					return t
				}
			case json.Number:
				return v.String()
			}
		}
		return ""
	}

	return lookup(phoneFieldAliases), lookup(messageFieldAliases),
		lookup([]string{"shortcode"}), lookup([]string{"partnerId", "partnerID"})
}
