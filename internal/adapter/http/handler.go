package http

import (
	"encoding/json"
	"net/http"
	"time"

	"savings-rate-service/internal/domain/model"
	"savings-rate-service/internal/domain/ports"
	"savings-rate-service/internal/metrics"
	"savings-rate-service/pkg/logger"
)

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

type rateResponse struct {
	Pair        string       `json:"pair"`
	Rate        float64      `json:"rate"`
	ObservedAt  time.Time    `json:"observed_at"`
	Source      model.Source `json:"source"`
	Description string       `json:"description"`
}

type quotaResponse struct {
	Remaining int `json:"remaining"`
	Limit     int `json:"limit"`
}

type Handler struct {
	acquirer ports.RateAcquirer
	log      *logger.Logger
	metrics  *metrics.Metrics
}

func NewHandler(acquirer ports.RateAcquirer, log *logger.Logger, metrics *metrics.Metrics) *Handler {
	return &Handler{
		acquirer: acquirer,
		log:      log,
		metrics:  metrics,
	}
}

func newRateResponse(sample model.RateSample) rateResponse {
	return rateResponse{
		Pair:        model.TrackedPair.String(),
		Rate:        sample.Rate,
		ObservedAt:  sample.ObservedAt.UTC(),
		Source:      sample.Source,
		Description: sample.Source.Description(),
	}
}

func (h *Handler) GetRateHandler(w http.ResponseWriter, r *http.Request) {
	sample := h.acquirer.Fetch(r.Context())
	h.sendSuccessResponse(w, newRateResponse(sample))
}

func (h *Handler) RefreshRateHandler(w http.ResponseWriter, r *http.Request) {
	sample := h.acquirer.ForceRefresh(r.Context())
	h.sendSuccessResponse(w, newRateResponse(sample))
}

func (h *Handler) GetQuotaHandler(w http.ResponseWriter, r *http.Request) {
	h.sendSuccessResponse(w, quotaResponse{
		Remaining: h.acquirer.RemainingQuota(r.Context()),
		Limit:     h.acquirer.QuotaLimit(),
	})
}

func (h *Handler) InspectHandler(w http.ResponseWriter, r *http.Request) {
	h.metrics.InspectionRequestsTotal.Inc()

	info := h.acquirer.Inspect(r.Context())
	h.sendSuccessResponse(w, model.NewInspectionReport(info, h.acquirer.QuotaLimit()))
}

func (h *Handler) ClearHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.acquirer.Clear(r.Context()); err != nil {
		h.log.Error("Failed to clear rate state", "error", err)
		h.sendErrorResponse(w, http.StatusInternalServerError, "failed to clear cache and limits")
		return
	}
	h.sendSuccessResponse(w, model.NewInspectionReport(h.acquirer.Inspect(r.Context()), h.acquirer.QuotaLimit()))
}

func (h *Handler) sendSuccessResponse(w http.ResponseWriter, data interface{}) {
	response := Response{
		Success: true,
		Data:    data,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode response", "error", err)
	}
}

func (h *Handler) sendErrorResponse(w http.ResponseWriter, statusCode int, message string) {
	response := Response{
		Success: false,
		Error:   message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.Error("Failed to encode error response", "error", err)
	}
}
