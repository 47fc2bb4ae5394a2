package pos

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kesspos/kesspos/internal/platform/httpx"
	"github.com/kesspos/kesspos/internal/platform/store"
	"github.com/kesspos/kesspos/internal/session"
)

// SyncTrigger is the slice of the sync engine the facade needs.
type SyncTrigger interface {
	Signal()
	Flush(ctx context.Context) error
}

// Handler is the local HTTP facade consumed by the presentation layer.
// It carries the mutation API, the query API, the login surface and a
// server-sent-events change feed.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	sessions *session.Manager
	engine   SyncTrigger
	validate *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *session.Manager, engine SyncTrigger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:   logger,
		service:  service,
		sessions: sessions,
		engine:   engine,
		validate: validator.New(),
	}
}

// MountRoutes registers the facade routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/session/login", h.login)
	r.Post("/session/logout", h.logout)
	r.Get("/session", h.currentSession)

	r.Post("/sales", h.recordSale)
	r.Post("/stock/adjustments", h.adjustStock)
	r.Post("/credits/payments", h.addCreditPayment)
	r.Post("/credits/settle", h.settleCustomerCredit)

	r.Get("/reports/dashboard", h.dashboard)
	r.Get("/reports/popular-products", h.popularProducts)
	r.Get("/reports/low-stock", h.lowStock)

	r.Get("/events", h.events)
	r.Post("/sync/trigger", h.syncTrigger)

	r.Get("/{kind}", h.list)
	r.Post("/{kind}", h.create)
	r.Patch("/{kind}/{id}", h.update)
	r.Delete("/{kind}/{id}", h.delete)
}

func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionInvalid):
		httpx.Problem(w, http.StatusUnauthorized, "Session Invalid", err.Error())
	case errors.Is(err, ErrEntityNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid State", err.Error())
	case errors.Is(err, ErrInvalidOperation):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Operation", err.Error())
	default:
		h.logger.Error("request failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func (h *Handler) decodeValid(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("decode request: %w", err)
	}
	if err := h.validate.Struct(target); err != nil {
		return err
	}
	return nil
}

type loginRequest struct {
	Company string `json:"company" validate:"required"`
	Pos     string `json:"pos" validate:"required"`
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	sess, err := h.sessions.Login(r.Context(), req.Company, req.Pos)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sess)
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessions.Logout(r.Context()); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) currentSession(w http.ResponseWriter, r *http.Request) {
	sess, err := h.sessions.Current(r.Context())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, sess)
}

func (h *Handler) scope(r *http.Request) (session.Scope, error) {
	return h.sessions.Scope(r.Context())
}

func kindFromURL(r *http.Request) (Kind, error) {
	return ParseKind(chi.URLParam(r, "kind"))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	kind, err := kindFromURL(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	scope, err := h.scope(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	docs, err := h.service.List(r.Context(), scope, kind)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if docs == nil {
		docs = []store.Doc{}
	}
	httpx.JSON(w, http.StatusOK, docs)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	kind, err := kindFromURL(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	scope, err := h.scope(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var payload store.Doc
	if err := httpx.DecodeJSON(r, &payload); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	id, err := h.service.Create(r.Context(), scope, kind, payload)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	kind, err := kindFromURL(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	scope, err := h.scope(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	var patch store.Doc
	if err := httpx.DecodeJSON(r, &patch); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Update(r.Context(), scope, kind, chi.URLParam(r, "id"), patch); err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	kind, err := kindFromURL(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	scope, err := h.scope(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	id := chi.URLParam(r, "id")

	switch kind {
	case KindSuppliers:
		err = h.service.DeleteSupplier(r.Context(), scope, id)
	case KindCustomers:
		err = h.service.DeleteCustomer(r.Context(), scope, id)
	default:
		err = h.service.Delete(r.Context(), scope, kind, id)
	}
	if err != nil {
		h.respondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type saleItemRequest struct {
	ID       string  `json:"id" validate:"required"`
	Name     string  `json:"name" validate:"required"`
	Price    float64 `json:"price" validate:"gte=0"`
	Quantity int     `json:"quantity" validate:"gt=0"`
	Type     string  `json:"type" validate:"required,oneof=product service"`
}

type saleRequest struct {
	Items          []saleItemRequest `json:"items" validate:"required,min=1,dive"`
	Subtotal       float64           `json:"subtotal" validate:"gte=0"`
	Discount       float64           `json:"discount" validate:"gte=0"`
	VAT            float64           `json:"vat" validate:"gte=0"`
	Total          float64           `json:"total" validate:"gte=0"`
	PaymentMethod  string            `json:"paymentMethod" validate:"required,oneof=cash mobile_money card credit"`
	PaymentDetails PaymentDetails    `json:"paymentDetails"`
	CustomerID     string            `json:"customerId"`
}

func (h *Handler) recordSale(w http.ResponseWriter, r *http.Request) {
	var req saleRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	scope, err := h.scope(r)
	if err != nil {
		h.respondError(w, err)
		return
	}

	draft := SaleDraft{
		Subtotal:       req.Subtotal,
		Discount:       req.Discount,
		VAT:            req.VAT,
		Total:          req.Total,
		PaymentMethod:  PaymentMethod(req.PaymentMethod),
		PaymentDetails: req.PaymentDetails,
		CustomerID:     req.CustomerID,
	}
	for _, item := range req.Items {
		draft.Items = append(draft.Items, SaleItem{
			ID:       item.ID,
			Name:     item.Name,
			Price:    item.Price,
			Quantity: item.Quantity,
			Type:     ProductType(item.Type),
		})
	}

	sale, err := h.service.RecordSale(r.Context(), scope, draft)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, sale)
}

type adjustStockRequest struct {
	ProductID      string `json:"productId" validate:"required"`
	QuantityChange int    `json:"quantityChange"`
	Reason         string `json:"reason" validate:"required"`
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	var req adjustStockRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	scope, err := h.scope(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	newStock, err := h.service.AdjustStock(r.Context(), scope, req.ProductID, req.QuantityChange, req.Reason)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"stock": newStock})
}

type creditPaymentRequest struct {
	SaleID        string  `json:"saleId" validate:"required"`
	Amount        float64 `json:"amount" validate:"gt=0"`
	PaymentMethod string  `json:"paymentMethod" validate:"required,oneof=cash mobile_money card"`
}

func (h *Handler) addCreditPayment(w http.ResponseWriter, r *http.Request) {
	var req creditPaymentRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	scope, err := h.scope(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	payment, err := h.service.AddCreditPayment(r.Context(), scope, req.SaleID, req.Amount, PaymentMethod(req.PaymentMethod))
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, payment)
}

type settleCreditRequest struct {
	CustomerID    string  `json:"customerId" validate:"required"`
	Amount        float64 `json:"amount" validate:"gt=0"`
	PaymentMethod string  `json:"paymentMethod" validate:"required,oneof=cash mobile_money card"`
}

func (h *Handler) settleCustomerCredit(w http.ResponseWriter, r *http.Request) {
	var req settleCreditRequest
	if err := h.decodeValid(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	scope, err := h.scope(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	allocations, err := h.service.SettleCustomerCredit(r.Context(), scope, req.CustomerID, req.Amount, PaymentMethod(req.PaymentMethod))
	if err != nil {
		h.respondError(w, err)
		return
	}
	if allocations == nil {
		allocations = []Allocation{}
	}
	httpx.JSON(w, http.StatusOK, allocations)
}

func (h *Handler) dashboard(w http.ResponseWriter, r *http.Request) {
	scope, err := h.scope(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	stats, err := h.service.Dashboard(r.Context(), scope, time.Now())
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, stats)
}

func (h *Handler) popularProducts(w http.ResponseWriter, r *http.Request) {
	scope, err := h.scope(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	ranked, err := h.service.PopularProducts(r.Context(), scope, 5)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if ranked == nil {
		ranked = []PopularProduct{}
	}
	httpx.JSON(w, http.StatusOK, ranked)
}

func (h *Handler) lowStock(w http.ResponseWriter, r *http.Request) {
	scope, err := h.scope(r)
	if err != nil {
		h.respondError(w, err)
		return
	}
	products, err := h.service.LowStock(r.Context(), scope)
	if err != nil {
		h.respondError(w, err)
		return
	}
	if products == nil {
		products = []Product{}
	}
	httpx.JSON(w, http.StatusOK, products)
}

// events streams collection change notifications as server-sent events so
// the UI can re-run its queries.
func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "streaming unsupported")
		return
	}

	// The server's write timeout is sized for request/response calls; an
	// event stream outlives it. The stream's lifetime is bounded by the
	// request context instead.
	if err := http.NewResponseController(w).SetWriteDeadline(time.Time{}); err != nil {
		h.logger.Warn("clear stream write deadline", slog.Any("error", err))
	}

	sub := h.service.Store().Subscribe()
	defer sub.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case tables := <-sub.C:
			payload, err := json.Marshal(tables)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (h *Handler) syncTrigger(w http.ResponseWriter, r *http.Request) {
	if err := h.engine.Flush(r.Context()); err != nil {
		// Retryable by design: the records stay pending.
		h.logger.Warn("triggered flush failed", slog.Any("error", err))
	}
	w.WriteHeader(http.StatusAccepted)
}
