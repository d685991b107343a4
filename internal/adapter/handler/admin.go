package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/service"
)

type ProductRequest struct {
	SKU         string `json:"sku"`
	Name        string `json:"name"`
	Description string `json:"description"`
	PriceCents  int64  `json:"price_cents"`
	Stock       int    `json:"stock"`
	Active      bool   `json:"active"`
}

func (req ProductRequest) input() service.ProductInput {
	return service.ProductInput{
		SKU:         req.SKU,
		Name:        req.Name,
		Description: req.Description,
		PriceCents:  req.PriceCents,
		Stock:       req.Stock,
		Active:      req.Active,
	}
}

func (h *HTTPHandler) AdminListProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.svc.Catalog.ListProducts(r.Context(), false)
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

func (h *HTTPHandler) AdminGetProduct(w http.ResponseWriter, r *http.Request) {
	pr, err := h.svc.Catalog.GetProduct(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presenter(r).product(pr))
}

func (h *HTTPHandler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decode(w, r, &req) {
		return
	}
	pr, err := h.svc.Catalog.CreateProduct(r.Context(), req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.presenter(r).product(pr))
}

func (h *HTTPHandler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	var req ProductRequest
	if !decode(w, r, &req) {
		return
	}
	pr, err := h.svc.Catalog.UpdateProduct(r.Context(), mux.Vars(r)["id"], req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presenter(r).product(pr))
}

type OptionRequest struct {
	Group           string `json:"group"`
	Label           string `json:"label"`
	PriceDeltaCents int64  `json:"price_delta_cents"`
}

func (h *HTTPHandler) AddOption(w http.ResponseWriter, r *http.Request) {
	var req OptionRequest
	if !decode(w, r, &req) {
		return
	}
	opt, err := h.svc.Catalog.AddOption(r.Context(), mux.Vars(r)["id"], req.Group, req.Label, req.PriceDeltaCents)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.presenter(r).option(opt))
}

func (h *HTTPHandler) RemoveOption(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Catalog.RemoveOption(r.Context(), mux.Vars(r)["id"]); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type StockRequest struct {
	Stock int `json:"stock"`
}

func (h *HTTPHandler) SetStock(w http.ResponseWriter, r *http.Request) {
	var req StockRequest
	if !decode(w, r, &req) {
		return
	}
	id := mux.Vars(r)["id"]
	if err := h.svc.Catalog.SetStock(r.Context(), id, req.Stock); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_id": id, "stock": req.Stock})
}

func (h *HTTPHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.Orders.GetOrder(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presenter(r).order(order))
}

func (h *HTTPHandler) OrderHistory(w http.ResponseWriter, r *http.Request) {
	changes, err := h.svc.Orders.History(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history(changes))
}

type LineEditRequest struct {
	ExpectedVersion int   `json:"expected_version"`
	UnitPriceCents  int64 `json:"unit_price_cents"`
	Quantity        int   `json:"quantity"`
}

func (h *HTTPHandler) UpdateLine(w http.ResponseWriter, r *http.Request) {
	var req LineEditRequest
	if !decode(w, r, &req) {
		return
	}
	vars := mux.Vars(r)
	order, err := h.svc.Orders.UpdateLine(r.Context(), service.UpdateLineInput{
		OrderID:         vars["id"],
		LineID:          vars["lineID"],
		ExpectedVersion: req.ExpectedVersion,
		UnitPriceCents:  req.UnitPriceCents,
		Quantity:        req.Quantity,
	})
	h.writeOrderEdit(w, r, vars["id"], order, err)
}

type DiscountRequest struct {
	ExpectedVersion int   `json:"expected_version"`
	AmountCents     int64 `json:"amount_cents"`
}

func (h *HTTPHandler) SetDiscount(w http.ResponseWriter, r *http.Request) {
	var req DiscountRequest
	if !decode(w, r, &req) {
		return
	}
	id := mux.Vars(r)["id"]
	order, err := h.svc.Orders.SetDiscount(r.Context(), id, req.ExpectedVersion, req.AmountCents)
	h.writeOrderEdit(w, r, id, order, err)
}

func (h *HTTPHandler) SetLineDiscount(w http.ResponseWriter, r *http.Request) {
	var req DiscountRequest
	if !decode(w, r, &req) {
		return
	}
	vars := mux.Vars(r)
	order, err := h.svc.Orders.SetLineDiscount(r.Context(), vars["id"], vars["lineID"], req.ExpectedVersion, req.AmountCents)
	h.writeOrderEdit(w, r, vars["id"], order, err)
}

// writeOrderEdit answers an order edit. A version conflict carries the
// current order so the editor can retry against it.
func (h *HTTPHandler) writeOrderEdit(w http.ResponseWriter, r *http.Request, id string, order domain.Order, err error) {
	if err == nil {
		writeJSON(w, http.StatusOK, h.presenter(r).order(order))
		return
	}
	if !errors.Is(err, domain.ErrVersionConflict) {
		h.writeError(w, r, err)
		return
	}
	resp := errorResponse{Error: err.Error(), Code: "version_conflict"}
	if fresh, ferr := h.svc.Orders.GetOrder(r.Context(), id); ferr == nil {
		v := h.presenter(r).order(fresh)
		resp.Order = &v
	}
	writeJSON(w, http.StatusConflict, resp)
}

func (h *HTTPHandler) OrderBoard(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Orders.OrderBoard(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presenter(r).board(b))
}

type MoveRequest struct {
	ID              string `json:"id"`
	ExpectedVersion int    `json:"expected_version"`
	ToStatus        string `json:"to_status"`
	ToIndex         int    `json:"to_index"`
}

func (req MoveRequest) input(actor string) service.MoveInput {
	return service.MoveInput{
		ID:              req.ID,
		ExpectedVersion: req.ExpectedVersion,
		ToStatus:        req.ToStatus,
		ToIndex:         req.ToIndex,
		Actor:           actor,
	}
}

func actor(r *http.Request) string {
	if a := r.Header.Get("X-Actor"); a != "" {
		return a
	}
	return "admin"
}

func (h *HTTPHandler) MoveOrder(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Orders.MoveOrder(r.Context(), req.input(actor(r)))
	h.writeMove(w, r, res, err)
}

// writeMove answers a stale move with the board the service read back from
// the database so the client can drop its optimistic state.
func (h *HTTPHandler) writeMove(w http.ResponseWriter, r *http.Request, res service.MoveResult, err error) {
	p := h.presenter(r)
	if errors.Is(err, domain.ErrVersionConflict) {
		resp := errorResponse{Error: err.Error(), Code: "version_conflict"}
		if len(res.Board.Columns) > 0 {
			b := p.board(res.Board)
			resp.Board = &b
		}
		writeJSON(w, http.StatusConflict, resp)
		return
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, moveView{Card: p.card(res.Card), Board: p.board(res.Board)})
}

type EventRequest struct {
	Slug       string    `json:"slug"`
	Title      string    `json:"title"`
	StartsAt   time.Time `json:"starts_at"`
	Capacity   int       `json:"capacity"`
	PriceCents int64     `json:"price_cents"`
	Published  bool      `json:"published"`
}

func (req EventRequest) input() service.EventInput {
	return service.EventInput{
		Slug:       req.Slug,
		Title:      req.Title,
		StartsAt:   req.StartsAt,
		Capacity:   req.Capacity,
		PriceCents: req.PriceCents,
		Published:  req.Published,
	}
}

func (h *HTTPHandler) AdminListEvents(w http.ResponseWriter, r *http.Request) {
	h.listEvents(w, r, false)
}

func (h *HTTPHandler) AdminGetEvent(w http.ResponseWriter, r *http.Request) {
	e, err := h.svc.Events.GetEvent(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presenter(r).event(e))
}

func (h *HTTPHandler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.svc.Events.CreateEvent(r.Context(), req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.presenter(r).event(e))
}

func (h *HTTPHandler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var req EventRequest
	if !decode(w, r, &req) {
		return
	}
	e, err := h.svc.Events.UpdateEvent(r.Context(), mux.Vars(r)["id"], req.input())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presenter(r).event(e))
}

func (h *HTTPHandler) RegistrationBoard(w http.ResponseWriter, r *http.Request) {
	b, err := h.svc.Registrations.RegistrationBoard(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.presenter(r).board(b))
}

func (h *HTTPHandler) MoveRegistration(w http.ResponseWriter, r *http.Request) {
	var req MoveRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.svc.Registrations.MoveRegistration(r.Context(), req.input(actor(r)))
	h.writeMove(w, r, res, err)
}

func (h *HTTPHandler) PendingReviews(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.Reviews.ListPending(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, reviews(list, true))
}

func (h *HTTPHandler) moderate(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rv, err := h.svc.Reviews.Moderate(r.Context(), mux.Vars(r)["id"], approve)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, review(rv, true))
	}
}

func (h *HTTPHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.svc.Pages.ListPages(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]pageView, 0, len(pages))
	for _, pg := range pages {
		out = append(out, page(pg))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) AdminGetPage(w http.ResponseWriter, r *http.Request) {
	pg, err := h.svc.Pages.GetPage(r.Context(), mux.Vars(r)["slug"])
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page(pg))
}

type PageRequest struct {
	Title           string `json:"title"`
	Body            string `json:"body"`
	ExpectedVersion int    `json:"expected_version"`
}

// SavePage creates the page when expected_version is 0.
func (h *HTTPHandler) SavePage(w http.ResponseWriter, r *http.Request) {
	var req PageRequest
	if !decode(w, r, &req) {
		return
	}
	pg, err := h.svc.Pages.SavePage(r.Context(), service.SavePageInput{
		Slug:            mux.Vars(r)["slug"],
		Title:           req.Title,
		Body:            req.Body,
		ExpectedVersion: req.ExpectedVersion,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if req.ExpectedVersion == 0 {
		status = http.StatusCreated
	}
	writeJSON(w, status, page(pg))
}

func (h *HTTPHandler) publish(published bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slug := mux.Vars(r)["slug"]
		var (
			pg  domain.ContentPage
			err error
		)
		if published {
			pg, err = h.svc.Pages.Publish(r.Context(), slug)
		} else {
			pg, err = h.svc.Pages.Unpublish(r.Context(), slug)
		}
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, page(pg))
	}
}
