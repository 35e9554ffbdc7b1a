package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/rl1809/pokestore/internal/core/domain"
	"github.com/rl1809/pokestore/internal/core/service"
	"github.com/rl1809/pokestore/internal/metrics"
	"github.com/rl1809/pokestore/internal/pkg/logging"
)

const idempotencyKeyHeader = "Idempotency-Key"

type HTTPHandler struct {
	itemService     *service.ItemService
	purchaseService *service.PurchaseService
	logger          *zap.Logger
	metrics         *metrics.Metrics
	gatherer        prometheus.Gatherer
}

type ItemResponse struct {
	Name  string `json:"name"`
	Price int    `json:"price"`
	Stock int    `json:"stock"`
}

type ErrorsResponse struct {
	Errors []string `json:"errors"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type DeletedResponse struct {
	Deleted int64 `json:"deleted"`
}

func NewHTTPHandler(
	itemService *service.ItemService,
	purchaseService *service.PurchaseService,
	logger *zap.Logger,
	m *metrics.Metrics,
	gatherer prometheus.Gatherer,
) *HTTPHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPHandler{
		itemService:     itemService,
		purchaseService: purchaseService,
		logger:          logger,
		metrics:         m,
		gatherer:        gatherer,
	}
}

func (h *HTTPHandler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(Observability(h.logger, h.metrics))

	r.Get("/pokemons", h.ListItems)
	r.Put("/pokemons", h.CreateItem)
	r.Post("/pokemons/{name}", h.UpdateItem)
	r.Delete("/pokemons/{name}", h.DeleteItem)
	r.Post("/orders/pokemon", h.Purchase)

	r.Get("/health", h.HealthCheck)
	if h.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.itemService.List(r.Context())
	if err != nil {
		h.internalError(w, r, err)
		return
	}

	resp := make([]ItemResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, toItemResponse(it))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *HTTPHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody[createItemRequest](r.Body)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	item, err := h.itemService.Create(r.Context(), *body.Name, int(*body.Price), body.stock())
	if err != nil {
		if errors.Is(err, domain.ErrDuplicateName) {
			writeJSON(w, http.StatusConflict, MessageResponse{Message: "pokemon already exists"})
			return
		}
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemResponse(*item))
}

func (h *HTTPHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody[updateItemRequest](r.Body)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	item, err := h.itemService.Update(r.Context(), chi.URLParam(r, "name"), body.patch())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeNotFound(w)
			return
		}
		h.internalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemResponse(*item))
}

func (h *HTTPHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	n, err := h.itemService.Delete(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		h.internalError(w, r, err)
		return
	}
	if n <= 0 {
		writeNotFound(w)
		return
	}
	writeJSON(w, http.StatusOK, DeletedResponse{Deleted: n})
}

func (h *HTTPHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	body, err := decodeBody[purchaseRequest](r.Body)
	if err != nil {
		writeValidationError(w, err)
		return
	}

	out, err := h.purchaseService.Purchase(r.Context(), body.toDomain(r.Header.Get(idempotencyKeyHeader)))
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrDuplicateRequest):
			writeJSON(w, http.StatusConflict, MessageResponse{Message: "duplicate request"})
		case errors.Is(err, domain.ErrPurchaseInProgress):
			writeJSON(w, http.StatusConflict, MessageResponse{Message: "another purchase of this pokemon is in progress"})
		case errors.Is(err, domain.ErrShuttingDown):
			writeJSON(w, http.StatusServiceUnavailable, MessageResponse{Message: "service is shutting down"})
		default:
			h.internalError(w, r, err)
		}
		return
	}

	switch out.Status {
	case domain.OutcomePaid:
		writeJSON(w, http.StatusOK, toItemResponse(out.Item))
	case domain.OutcomePaidButPersistFailed:
		// Charged already; stock is fixed later by reconciliation.
		writeJSON(w, http.StatusAccepted, toItemResponse(out.Item))
	case domain.OutcomeInsufficientStock:
		writeJSON(w, http.StatusBadRequest, ErrorsResponse{Errors: []string{
			fmt.Sprintf("Not enough %s in stock: %d", out.Item.Name, out.Item.Stock),
		}})
	case domain.OutcomePaymentDeclined:
		writeJSON(w, http.StatusForbidden, MessageResponse{Message: "payment declined"})
	case domain.OutcomeNotFound:
		writeNotFound(w)
	default:
		h.internalError(w, r, fmt.Errorf("unexpected purchase outcome %q", out.Status))
	}
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) internalError(w http.ResponseWriter, r *http.Request, err error) {
	logging.FromContext(r.Context()).Error("http_internal_error",
		zap.String("path", r.URL.Path),
		zap.Error(err),
	)
	writeJSON(w, http.StatusInternalServerError, MessageResponse{Message: "internal error"})
}

func toItemResponse(it domain.Item) ItemResponse {
	return ItemResponse{Name: it.Name, Price: it.Price, Stock: it.Stock}
}

func writeValidationError(w http.ResponseWriter, err error) {
	var verr *domain.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, http.StatusBadRequest, ErrorsResponse{Errors: verr.Messages})
		return
	}
	writeJSON(w, http.StatusBadRequest, ErrorsResponse{Errors: []string{err.Error()}})
}

func writeNotFound(w http.ResponseWriter) {
	writeJSON(w, http.StatusNotFound, MessageResponse{Message: "pokemon not found"})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
