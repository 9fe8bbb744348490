package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"orderstream/libs/db"
	"orderstream/libs/event"
	"orderstream/libs/httpx"
	"orderstream/services/order-service/internal/audit"
	"orderstream/services/order-service/internal/events"
	"orderstream/services/order-service/internal/storage"
)

type Handler struct {
	pool      *db.Pool
	orders    *storage.OrderRepository
	products  *storage.ProductRepository
	eventLog  *storage.OrderEventReader
	publisher *events.Publisher
	auditor   *audit.Emitter
	logger    *slog.Logger
}

func New(pool *db.Pool, orders *storage.OrderRepository, products *storage.ProductRepository, eventLog *storage.OrderEventReader, publisher *events.Publisher, auditor *audit.Emitter, logger *slog.Logger) *Handler {
	return &Handler{
		pool:      pool,
		orders:    orders,
		products:  products,
		eventLog:  eventLog,
		publisher: publisher,
		auditor:   auditor,
		logger:    logger,
	}
}

type orderRequest struct {
	Email        string   `json:"email"`
	ProductCodes []string `json:"productCodes"`
	Payment      string   `json:"payment"`
	Shipping     struct {
		Type    string `json:"type"`
		Carrier string `json:"carrier"`
	} `json:"shipping"`
}

type orderResponse struct {
	Email     string                 `json:"email"`
	ID        string                 `json:"id"`
	CreatedAt int64                  `json:"createdAt"`
	Products  []storage.OrderProduct `json:"products"`
	Billing   event.OrderBilling     `json:"billing"`
	Shipping  event.OrderShipping    `json:"shipping"`
}

func toOrderResponse(o storage.Order) orderResponse {
	return orderResponse{
		Email:     o.Email,
		ID:        o.OrderID,
		CreatedAt: o.CreatedAt.UnixMilli(),
		Products:  o.Products,
		Billing:   event.OrderBilling{Payment: o.Payment, TotalPrice: o.TotalPrice},
		Shipping:  event.OrderShipping{Type: o.ShippingType, Carrier: o.ShippingCarrier},
	}
}

func (h *Handler) Orders(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.getOrders(w, r)
	case http.MethodPost:
		h.createOrder(w, r)
	case http.MethodDelete:
		h.deleteOrder(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) getOrders(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	orderID := strings.TrimSpace(r.URL.Query().Get("orderId"))

	switch {
	case email != "" && orderID != "":
		o, err := h.orders.Get(r.Context(), email, orderID)
		if errors.Is(err, storage.ErrOrderNotFound) {
			http.Error(w, "order not found", http.StatusNotFound)
			return
		}
		if err != nil {
			http.Error(w, "failed to load order", http.StatusInternalServerError)
			return
		}
		writeJSON(w, toOrderResponse(o))
	case email != "":
		list, err := h.orders.ListByEmail(r.Context(), email)
		if err != nil {
			http.Error(w, "failed to load orders", http.StatusInternalServerError)
			return
		}
		writeJSON(w, toOrderResponses(list))
	default:
		list, err := h.orders.ListAll(r.Context())
		if err != nil {
			http.Error(w, "failed to load orders", http.StatusInternalServerError)
			return
		}
		writeJSON(w, toOrderResponses(list))
	}
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req orderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(req.Email)
	if req.Email == "" || len(req.ProductCodes) == 0 {
		http.Error(w, "email and productCodes are required", http.StatusBadRequest)
		return
	}

	requestID := httpx.RequestIDFromContext(r.Context())

	products, err := h.products.GetByCodes(r.Context(), req.ProductCodes)
	if err != nil {
		http.Error(w, "failed to load products", http.StatusInternalServerError)
		return
	}
	if len(products) != len(req.ProductCodes) {
		h.auditor.Emit(r.Context(), event.AuditEvent{
			Source:     event.SourceOrder,
			DetailType: event.DetailTypeOrder,
			Detail: map[string]any{
				"reason":       event.ReasonProductNotFound,
				"email":        req.Email,
				"requestId":    requestID,
				"productCodes": req.ProductCodes,
			},
		})
		http.Error(w, "some products were not found", http.StatusNotFound)
		return
	}

	o := buildOrder(req, products)

	// Order row and pending event commit atomically; the dispatcher takes it
	// from there, so the mutation never silently loses its event.
	err = h.pool.WithinTx(r.Context(), func(tx pgx.Tx) error {
		if err := h.orders.Insert(r.Context(), tx, o); err != nil {
			return err
		}
		return h.publisher.Publish(r.Context(), tx, event.TypeOrderCreated, o, requestID)
	})
	if err != nil {
		h.logger.Error("order create failed", "err", err, "request_id", requestID)
		http.Error(w, "failed to create order", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(toOrderResponse(o))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	orderID := strings.TrimSpace(r.URL.Query().Get("orderId"))
	if email == "" || orderID == "" {
		http.Error(w, "email and orderId are required", http.StatusBadRequest)
		return
	}

	requestID := httpx.RequestIDFromContext(r.Context())

	var deleted storage.Order
	err := h.pool.WithinTx(r.Context(), func(tx pgx.Tx) error {
		o, err := h.orders.Delete(r.Context(), tx, email, orderID)
		if err != nil {
			return err
		}
		deleted = o
		return h.publisher.Publish(r.Context(), tx, event.TypeOrderDeleted, o, requestID)
	})
	if errors.Is(err, storage.ErrOrderNotFound) {
		http.Error(w, "order not found", http.StatusNotFound)
		return
	}
	if err != nil {
		h.logger.Error("order delete failed", "err", err, "request_id", requestID)
		http.Error(w, "failed to delete order", http.StatusInternalServerError)
		return
	}

	writeJSON(w, toOrderResponse(deleted))
}

// OrderEvents serves GET /orders/events?email=...&eventType=... from the
// durable log's customer index.
func (h *Handler) OrderEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	if email == "" {
		http.Error(w, "email is required", http.StatusBadRequest)
		return
	}
	eventType := strings.TrimSpace(r.URL.Query().Get("eventType"))

	views, err := h.eventLog.ListByEmail(r.Context(), email, eventType)
	if err != nil {
		http.Error(w, "failed to load events", http.StatusInternalServerError)
		return
	}
	if views == nil {
		views = []storage.OrderEventView{}
	}
	writeJSON(w, views)
}

func buildOrder(req orderRequest, products []storage.Product) storage.Order {
	var total float64
	items := make([]storage.OrderProduct, 0, len(products))
	for _, p := range products {
		total += p.Price
		items = append(items, storage.OrderProduct{Code: p.Code, Price: p.Price})
	}
	return storage.Order{
		Email:           req.Email,
		OrderID:         uuid.NewString(),
		Products:        items,
		Payment:         req.Payment,
		TotalPrice:      total,
		ShippingType:    req.Shipping.Type,
		ShippingCarrier: req.Shipping.Carrier,
		CreatedAt:       time.Now().UTC(),
	}
}

func toOrderResponses(orders []storage.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
