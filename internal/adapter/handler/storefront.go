package handler

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

func (h *HTTPHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Catalog.ListProducts(r.Context(), true)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p := h.presenter(r)
	out := make([]productView, 0, len(products))
	for _, pr := range products {
		out = append(out, p.product(pr))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	pr, err := h.svc.Catalog.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err == nil && !pr.Active {
		err = domain.ErrNotFound
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presenter(r).product(pr))
}

type PlaceOrderRequest struct {
	RequestID     string             `json:"request_id"`
	CustomerName  string             `json:"customer_name"`
	CustomerEmail string             `json:"customer_email"`
	ShippingCents int64              `json:"shipping_cents"`
	Items         []OrderItemRequest `json:"items"`
}

type OrderItemRequest struct {
	ProductID string   `json:"product_id"`
	Quantity  int      `json:"quantity"`
	OptionIDs []string `json:"option_ids"`
}

// PlaceOrder accepts the order once stock is reserved. The order is stored
// asynchronously, so the response is 202.
func (h *HTTPHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get("Idempotency-Key")
	}

	in := service.PlaceOrderInput{
		RequestID:     req.RequestID,
		CustomerName:  req.CustomerName,
		CustomerEmail: req.CustomerEmail,
		ShippingCents: req.ShippingCents,
		Items:         make([]service.OrderItem, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, service.OrderItem{ProductID: it.ProductID, Quantity: it.Quantity, OptionIDs: it.OptionIDs})
	}

	order, err := h.svc.Orders.PlaceOrder(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, h.presenter(r).order(order))
}

func (h *HTTPHandler) ListReviews(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Reviews.ListApproved(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews(list, false))
}

type ReviewRequest struct {
	AuthorName string `json:"author_name"`
	Email      string `json:"email"`
	Rating     int    `json:"rating"`
	Title      string `json:"title"`
	Body       string `json:"body"`
}

func (h *HTTPHandler) SubmitReview(w http.ResponseWriter, r *http.Request) {
	var req ReviewRequest
	if !decode(w, r, &req) {
		return
	}
	rv, err := h.svc.Reviews.SubmitReview(r.Context(), service.ReviewInput{
		ProductID:  mux.Vars(r)["id"],
		AuthorName: req.AuthorName,
		Email:      req.Email,
		Rating:     req.Rating,
		Title:      req.Title,
		Body:       req.Body,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, review(rv, false))
}

func (h *HTTPHandler) Rating(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Reviews.Summary(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ratingView{Count: s.Count, Average: s.Average, Histogram: s.Histogram})
}

func (h *HTTPHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	h.listEvents(w, r, true)
}

func (h *HTTPHandler) listEvents(w http.ResponseWriter, r *http.Request, publishedOnly bool) {
	events, err := h.svc.Events.ListEvents(r.Context(), publishedOnly)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	p := h.presenter(r)
	out := make([]eventView, 0, len(events))
	for _, e := range events {
		out = append(out, p.event(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) GetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Events.GetEvent(r.Context(), mux.Vars(r)["id"])
	if err == nil && !e.Published {
		err = domain.ErrNotFound
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presenter(r).event(e))
}

type RegisterRequest struct {
	RequestID    string `json:"request_id"`
	AttendeeName string `json:"attendee_name"`
	Email        string `json:"email"`
	Seats        int    `json:"seats"`
}

// Register returns 201 for a pending registration and 202 when the
// attendee was put on the waitlist.
func (h *HTTPHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !decode(w, r, &req) {
		return
	}
	if req.RequestID == "" {
		req.RequestID = r.Header.Get("Idempotency-Key")
	}
	if req.Seats == 0 {
		req.Seats = 1
	}
	reg, err := h.svc.Registrations.Register(r.Context(), service.RegisterInput{
		RequestID:    req.RequestID,
		EventID:      mux.Vars(r)["id"],
		AttendeeName: req.AttendeeName,
		Email:        req.Email,
		Seats:        req.Seats,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusCreated
	if reg.Status == domain.RegistrationStatusWaitlisted {
		status = http.StatusAccepted
	}
	writeJSON(w, status, registration(reg))
}

// CancelRegistration lets an attendee withdraw. The email query parameter
// must match the registration.
func (h *HTTPHandler) CancelRegistration(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	email := strings.TrimSpace(r.URL.Query().Get("email"))
	reg, err := h.svc.Registrations.GetRegistration(r.Context(), id)
	if err == nil && !strings.EqualFold(reg.Email, email) {
		err = domain.ErrNotFound
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	reg, err = h.svc.Registrations.CancelRegistration(r.Context(), id, "attendee")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, registration(reg))
}

func (h *HTTPHandler) GetPage(w http.ResponseWriter, r *http.Request) {
	pg, err := h.svc.Pages.GetPublished(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page(pg))
}
