package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"fiberops/core/alerts"
	"fiberops/core/utils"
)

const webhookMaxBytes = 256 * 1024

type WebhooksHandler struct {
	alerts *alerts.Service
	logger *utils.Logger
}

func NewWebhooksHandler(svc *alerts.Service, logger *utils.Logger) *WebhooksHandler {
	return &WebhooksHandler{alerts: svc, logger: logger}
}

// Receive is the vendor webhook endpoint. Auth failures answer 4xx; every
// other outcome answers 200 so monitoring systems do not retry deliveries we
// already recorded, including unparseable but authenticated payloads.
func (h *WebhooksHandler) Receive(w http.ResponseWriter, r *http.Request) {
	source := strings.ToLower(strings.TrimSpace(pathString(r, "source")))
	if source == "" {
		writeError(w, http.StatusBadRequest, "missing source")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, webhookMaxBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "cannot read body")
		return
	}

	res, err := h.alerts.HandleDelivery(r.Context(), source, r, body, time.Now().UTC())
	if err != nil {
		h.logger.Errorf("webhook %s: %v", source, err)
		writeError(w, http.StatusInternalServerError, "delivery failed")
		return
	}
	switch res.Outcome {
	case alerts.OutcomeForbidden:
		writeError(w, http.StatusForbidden, "source address not allowed")
	case alerts.OutcomeUnauthorized:
		writeError(w, http.StatusUnauthorized, "invalid signature")
	default:
		resp := map[string]any{"outcome": string(res.Outcome)}
		if res.Incident != nil {
			resp["incident_id"] = res.Incident.ID
			resp["repeat_count"] = res.Incident.RepeatCount
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
