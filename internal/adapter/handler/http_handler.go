package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/currency"
	"golang.org/x/time/rate"

	"github.com/rl1809/storefront/internal/core/board"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
	"github.com/rl1809/storefront/internal/metrics"
)

type Catalog interface {
	CreateProduct(ctx context.Context, in service.ProductInput) (domain.Product, error)
	UpdateProduct(ctx context.Context, id string, in service.ProductInput) (domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
	ListProducts(ctx context.Context, activeOnly bool) ([]domain.Product, error)
	AddOption(ctx context.Context, productID, group, label string, priceDeltaCents int64) (domain.CustomizationOption, error)
	RemoveOption(ctx context.Context, optionID string) error
	SetStock(ctx context.Context, productID string, stock int) error
}

type Orders interface {
	PlaceOrder(ctx context.Context, in service.PlaceOrderInput) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	History(ctx context.Context, id string) ([]domain.StatusChange, error)
	UpdateLine(ctx context.Context, in service.UpdateLineInput) (domain.Order, error)
	SetDiscount(ctx context.Context, orderID string, expectedVersion int, discountCents int64) (domain.Order, error)
	SetLineDiscount(ctx context.Context, orderID, lineID string, expectedVersion int, amountCents int64) (domain.Order, error)
	OrderBoard(ctx context.Context) (board.Board, error)
	MoveOrder(ctx context.Context, in service.MoveInput) (service.MoveResult, error)
}

type Events interface {
	CreateEvent(ctx context.Context, in service.EventInput) (domain.Event, error)
	UpdateEvent(ctx context.Context, id string, in service.EventInput) (domain.Event, error)
	GetEvent(ctx context.Context, id string) (domain.Event, error)
	ListEvents(ctx context.Context, publishedOnly bool) ([]domain.Event, error)
}

type Registrations interface {
	Register(ctx context.Context, in service.RegisterInput) (domain.EventRegistration, error)
	GetRegistration(ctx context.Context, id string) (domain.EventRegistration, error)
	CancelRegistration(ctx context.Context, id, actor string) (domain.EventRegistration, error)
	RegistrationBoard(ctx context.Context, eventID string) (board.Board, error)
	MoveRegistration(ctx context.Context, in service.MoveInput) (service.MoveResult, error)
}

type Reviews interface {
	SubmitReview(ctx context.Context, in service.ReviewInput) (domain.Review, error)
	Moderate(ctx context.Context, id string, approve bool) (domain.Review, error)
	ListApproved(ctx context.Context, productID string) ([]domain.Review, error)
	ListPending(ctx context.Context) ([]domain.Review, error)
	Summary(ctx context.Context, productID string) (domain.RatingSummary, error)
}

type Pages interface {
	SavePage(ctx context.Context, in service.SavePageInput) (domain.ContentPage, error)
	Publish(ctx context.Context, slug string) (domain.ContentPage, error)
	Unpublish(ctx context.Context, slug string) (domain.ContentPage, error)
	GetPublished(ctx context.Context, slug string) (domain.ContentPage, error)
	GetPage(ctx context.Context, slug string) (domain.ContentPage, error)
	ListPages(ctx context.Context) ([]domain.ContentPage, error)
}

// Services groups the operations exposed over HTTP.
type Services struct {
	Catalog       Catalog
	Orders        Orders
	Events        Events
	Registrations Registrations
	Reviews       Reviews
	Pages         Pages
}

// Pinger is a dependency checked by /health.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HTTPOptions struct {
	AdminToken     string
	Currency       currency.Unit
	RateLimitRPS   float64
	RateLimitBurst int
	Health         map[string]Pinger
	Log            logrus.FieldLogger
}

type HTTPHandler struct {
	svc     Services
	opts    HTTPOptions
	limiter *ipLimiter
	log     logrus.FieldLogger
}

func NewHTTPHandler(svc Services, opts HTTPOptions) *HTTPHandler {
	if opts.Log == nil {
		opts.Log = logrus.StandardLogger()
	}
	if opts.Currency == (currency.Unit{}) {
		opts.Currency = currency.USD
	}
	return &HTTPHandler{
		svc:     svc,
		opts:    opts,
		limiter: newIPLimiter(rate.Limit(opts.RateLimitRPS), opts.RateLimitBurst),
		log:     opts.Log,
	}
}

// Routes builds the router for the storefront and admin APIs.
func (h *HTTPHandler) Routes() http.Handler {
	r := mux.NewRouter()
	r.Use(metrics.InstrumentHandler, h.accessLog)

	r.HandleFunc("/health", h.HealthCheck).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/products", h.ListProducts).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}", h.GetProduct).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}/reviews", h.ListReviews).Methods(http.MethodGet)
	api.HandleFunc("/products/{id}/rating", h.Rating).Methods(http.MethodGet)
	api.HandleFunc("/events", h.ListEvents).Methods(http.MethodGet)
	api.HandleFunc("/events/{id}", h.GetEvent).Methods(http.MethodGet)
	api.HandleFunc("/pages/{slug}", h.GetPage).Methods(http.MethodGet)

	writes := api.NewRoute().Subrouter()
	writes.Use(h.rateLimit)
	writes.HandleFunc("/orders", h.PlaceOrder).Methods(http.MethodPost)
	writes.HandleFunc("/products/{id}/reviews", h.SubmitReview).Methods(http.MethodPost)
	writes.HandleFunc("/events/{id}/registrations", h.Register).Methods(http.MethodPost)
	writes.HandleFunc("/registrations/{id}", h.CancelRegistration).Methods(http.MethodDelete)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(h.adminOnly)
	admin.HandleFunc("/products", h.AdminListProducts).Methods(http.MethodGet)
	admin.HandleFunc("/products", h.CreateProduct).Methods(http.MethodPost)
	admin.HandleFunc("/products/{id}", h.AdminGetProduct).Methods(http.MethodGet)
	admin.HandleFunc("/products/{id}", h.UpdateProduct).Methods(http.MethodPut)
	admin.HandleFunc("/products/{id}/options", h.AddOption).Methods(http.MethodPost)
	admin.HandleFunc("/options/{id}", h.RemoveOption).Methods(http.MethodDelete)
	admin.HandleFunc("/products/{id}/stock", h.SetStock).Methods(http.MethodPut)

	admin.HandleFunc("/orders/{id}", h.GetOrder).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}/history", h.OrderHistory).Methods(http.MethodGet)
	admin.HandleFunc("/orders/{id}/lines/{lineID}", h.UpdateLine).Methods(http.MethodPatch)
	admin.HandleFunc("/orders/{id}/discount", h.SetDiscount).Methods(http.MethodPut)
	admin.HandleFunc("/orders/{id}/lines/{lineID}/discount", h.SetLineDiscount).Methods(http.MethodPut)
	admin.HandleFunc("/boards/orders", h.OrderBoard).Methods(http.MethodGet)
	admin.HandleFunc("/boards/orders/moves", h.MoveOrder).Methods(http.MethodPost)

	admin.HandleFunc("/events", h.AdminListEvents).Methods(http.MethodGet)
	admin.HandleFunc("/events", h.CreateEvent).Methods(http.MethodPost)
	admin.HandleFunc("/events/{id}", h.AdminGetEvent).Methods(http.MethodGet)
	admin.HandleFunc("/events/{id}", h.UpdateEvent).Methods(http.MethodPut)
	admin.HandleFunc("/boards/events/{id}/registrations", h.RegistrationBoard).Methods(http.MethodGet)
	admin.HandleFunc("/boards/registrations/moves", h.MoveRegistration).Methods(http.MethodPost)

	admin.HandleFunc("/reviews", h.PendingReviews).Methods(http.MethodGet)
	admin.HandleFunc("/reviews/{id}/approve", h.moderate(true)).Methods(http.MethodPost)
	admin.HandleFunc("/reviews/{id}/reject", h.moderate(false)).Methods(http.MethodPost)

	admin.HandleFunc("/pages", h.ListPages).Methods(http.MethodGet)
	admin.HandleFunc("/pages/{slug}", h.AdminGetPage).Methods(http.MethodGet)
	admin.HandleFunc("/pages/{slug}", h.SavePage).Methods(http.MethodPut)
	admin.HandleFunc("/pages/{slug}/publish", h.publish(true)).Methods(http.MethodPost)
	admin.HandleFunc("/pages/{slug}/unpublish", h.publish(false)).Methods(http.MethodPost)

	return r
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.opts.Health))
	status := http.StatusOK
	for name, p := range h.opts.Health {
		if err := p.Ping(ctx); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	overall := "ok"
	if status != http.StatusOK {
		overall = "degraded"
	}
	writeJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

type errorResponse struct {
	Error string     `json:"error"`
	Code  string     `json:"code"`
	Board *boardView `json:"board,omitempty"`
	Order *orderView `json:"order,omitempty"`
}

type errorMapping struct {
	err    error
	status int
	code   string
}

var errorMappings = []errorMapping{
	{domain.ErrNotFound, http.StatusNotFound, "not_found"},
	{domain.ErrVersionConflict, http.StatusConflict, "version_conflict"},
	{domain.ErrDuplicateRequest, http.StatusConflict, "duplicate_request"},
	{domain.ErrDuplicateRegistration, http.StatusConflict, "duplicate_registration"},
	{domain.ErrDuplicateReview, http.StatusConflict, "duplicate_review"},
	{domain.ErrDuplicateSKU, http.StatusConflict, "duplicate_sku"},
	{domain.ErrDuplicateSlug, http.StatusConflict, "duplicate_slug"},
	{domain.ErrInsufficientStock, http.StatusGone, "sold_out"},
	{domain.ErrEventFull, http.StatusGone, "event_full"},
	{domain.ErrInvalidTransition, http.StatusUnprocessableEntity, "invalid_transition"},
	{domain.ErrEventNotOpen, http.StatusUnprocessableEntity, "event_not_open"},
	{domain.ErrCapacityBelowHeld, http.StatusUnprocessableEntity, "capacity_below_held"},
	{domain.ErrDiscountTooLarge, http.StatusUnprocessableEntity, "discount_too_large"},
	{domain.ErrInvalidAmount, http.StatusBadRequest, "invalid_amount"},
	{domain.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity"},
	{domain.ErrInvalidOption, http.StatusBadRequest, "invalid_option"},
	{domain.ErrInvalidRating, http.StatusBadRequest, "invalid_rating"},
	{domain.ErrInvalidSlug, http.StatusBadRequest, "invalid_slug"},
	{domain.ErrValidation, http.StatusBadRequest, "validation"},
	{board.ErrUnknownColumn, http.StatusBadRequest, "unknown_column"},
	{domain.ErrShuttingDown, http.StatusServiceUnavailable, "shutting_down"},
}

func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "internal"
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classify(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		h.log.WithError(err).WithFields(logrus.Fields{"method": r.Method, "path": r.URL.Path}).Error("request failed")
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg, Code: "bad_request"})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		badRequest(w, "invalid request body")
		return false
	}
	return true
}
