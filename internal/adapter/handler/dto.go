package handler

import (
	"net/http"
	"strings"
	"time"

	"golang.org/x/text/currency"
	"golang.org/x/text/language"

	"github.com/rl1809/storefront/internal/core/board"
	"github.com/rl1809/storefront/internal/core/domain"
	"github.com/rl1809/storefront/internal/core/pricing"
)

var displayLanguages = language.NewMatcher([]language.Tag{
	language.AmericanEnglish,
	language.BritishEnglish,
	language.German,
	language.French,
	language.Spanish,
	language.Vietnamese,
	language.Japanese,
})

// displayTag picks the locale used for price display from Accept-Language.
func displayTag(r *http.Request) language.Tag {
	accept := strings.TrimSpace(r.Header.Get("Accept-Language"))
	if accept == "" {
		return language.AmericanEnglish
	}
	tags, _, err := language.ParseAcceptLanguage(accept)
	if err != nil || len(tags) == 0 {
		return language.AmericanEnglish
	}
	tag, _, _ := displayLanguages.Match(tags...)
	return tag
}

type presenter struct {
	unit currency.Unit
	tag  language.Tag
}

func (h *HTTPHandler) presenter(r *http.Request) presenter {
	return presenter{unit: h.opts.Currency, tag: displayTag(r)}
}

type priceView struct {
	Cents   int64  `json:"cents"`
	Display string `json:"display"`
}

func (p presenter) price(cents int64) priceView {
	return priceView{Cents: cents, Display: pricing.Format(cents, p.unit, p.tag)}
}

type optionView struct {
	ID         string    `json:"id"`
	Group      string    `json:"group"`
	Label      string    `json:"label"`
	PriceDelta priceView `json:"price_delta"`
}

type productView struct {
	ID          string       `json:"id"`
	SKU         string       `json:"sku"`
	Name        string       `json:"name"`
	Description string       `json:"description"`
	Price       priceView    `json:"price"`
	Stock       int          `json:"stock"`
	Active      bool         `json:"active"`
	Options     []optionView `json:"options"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

func (p presenter) option(o domain.CustomizationOption) optionView {
	return optionView{ID: o.ID, Group: o.Group, Label: o.Label, PriceDelta: p.price(o.PriceDeltaCents)}
}

func (p presenter) product(pr domain.Product) productView {
	v := productView{
		ID:          pr.ID,
		SKU:         pr.SKU,
		Name:        pr.Name,
		Description: pr.Description,
		Price:       p.price(pr.PriceCents),
		Stock:       pr.Stock,
		Active:      pr.Active,
		Options:     make([]optionView, 0, len(pr.Options)),
		UpdatedAt:   pr.UpdatedAt,
	}
	for _, o := range pr.Options {
		v.Options = append(v.Options, p.option(o))
	}
	return v
}

type lineView struct {
	ID             string    `json:"id"`
	ProductID      string    `json:"product_id"`
	Name           string    `json:"name"`
	UnitPrice      priceView `json:"unit_price"`
	OptionsDelta   priceView `json:"options_delta"`
	OptionLabels   []string  `json:"option_labels"`
	Quantity       int       `json:"quantity"`
	Subtotal       priceView `json:"subtotal"`
	Discount       priceView `json:"discount"`
	DiscountPinned bool      `json:"discount_pinned"`
}

type orderView struct {
	ID            string     `json:"id"`
	CustomerName  string     `json:"customer_name"`
	CustomerEmail string     `json:"customer_email"`
	Status        string     `json:"status"`
	Lines         []lineView `json:"lines"`
	Subtotal      priceView  `json:"subtotal"`
	Discount      priceView  `json:"discount"`
	Shipping      priceView  `json:"shipping"`
	Total         priceView  `json:"total"`
	Version       int        `json:"version"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

func (p presenter) order(o domain.Order) orderView {
	v := orderView{
		ID:            o.ID,
		CustomerName:  o.CustomerName,
		CustomerEmail: o.CustomerEmail,
		Status:        string(o.Status),
		Lines:         make([]lineView, 0, len(o.Lines)),
		Subtotal:      p.price(o.SubtotalCents),
		Discount:      p.price(o.DiscountCents),
		Shipping:      p.price(o.ShippingCents),
		Total:         p.price(o.TotalCents),
		Version:       o.Version,
		CreatedAt:     o.CreatedAt,
		UpdatedAt:     o.UpdatedAt,
	}
	for _, l := range o.Lines {
		labels := l.OptionLabels
		if labels == nil {
			labels = []string{}
		}
		v.Lines = append(v.Lines, lineView{
			ID:             l.ID,
			ProductID:      l.ProductID,
			Name:           l.Name,
			UnitPrice:      p.price(l.UnitPriceCents),
			OptionsDelta:   p.price(l.OptionsDeltaCents),
			OptionLabels:   labels,
			Quantity:       l.Quantity,
			Subtotal:       p.price(l.SubtotalCents()),
			Discount:       p.price(l.DiscountCents),
			DiscountPinned: l.DiscountPinned,
		})
	}
	return v
}

type historyView struct {
	From  string    `json:"from"`
	To    string    `json:"to"`
	Actor string    `json:"actor"`
	At    time.Time `json:"at"`
}

func history(changes []domain.StatusChange) []historyView {
	out := make([]historyView, 0, len(changes))
	for _, c := range changes {
		out = append(out, historyView{From: c.From, To: c.To, Actor: c.Actor, At: c.At})
	}
	return out
}

type eventView struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Title     string    `json:"title"`
	StartsAt  time.Time `json:"starts_at"`
	Capacity  int       `json:"capacity"`
	Price     priceView `json:"price"`
	Published bool      `json:"published"`
}

func (p presenter) event(e domain.Event) eventView {
	return eventView{
		ID:        e.ID,
		Slug:      e.Slug,
		Title:     e.Title,
		StartsAt:  e.StartsAt,
		Capacity:  e.Capacity,
		Price:     p.price(e.PriceCents),
		Published: e.Published,
	}
}

type registrationView struct {
	ID           string    `json:"id"`
	EventID      string    `json:"event_id"`
	AttendeeName string    `json:"attendee_name"`
	Email        string    `json:"email"`
	Seats        int       `json:"seats"`
	Status       string    `json:"status"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"created_at"`
}

func registration(r domain.EventRegistration) registrationView {
	return registrationView{
		ID:           r.ID,
		EventID:      r.EventID,
		AttendeeName: r.AttendeeName,
		Email:        r.Email,
		Seats:        r.Seats,
		Status:       string(r.Status),
		Version:      r.Version,
		CreatedAt:    r.CreatedAt,
	}
}

type reviewView struct {
	ID         string    `json:"id"`
	ProductID  string    `json:"product_id"`
	AuthorName string    `json:"author_name"`
	Email      string    `json:"email,omitempty"`
	Rating     int       `json:"rating"`
	Title      string    `json:"title"`
	Body       string    `json:"body"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// reviews renders reviews; emails are only shown to admins.
func reviews(list []domain.Review, withEmail bool) []reviewView {
	out := make([]reviewView, 0, len(list))
	for _, r := range list {
		out = append(out, review(r, withEmail))
	}
	return out
}

func review(r domain.Review, withEmail bool) reviewView {
	v := reviewView{
		ID:         r.ID,
		ProductID:  r.ProductID,
		AuthorName: r.AuthorName,
		Rating:     r.Rating,
		Title:      r.Title,
		Body:       r.Body,
		Status:     string(r.Status),
		CreatedAt:  r.CreatedAt,
	}
	if withEmail {
		v.Email = r.Email
	}
	return v
}

type ratingView struct {
	Count     int     `json:"count"`
	Average   float64 `json:"average"`
	Histogram [5]int  `json:"histogram"`
}

type pageView struct {
	Slug        string     `json:"slug"`
	Title       string     `json:"title"`
	Body        string     `json:"body"`
	Published   bool       `json:"published"`
	Version     int        `json:"version"`
	UpdatedAt   time.Time  `json:"updated_at"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

func page(p domain.ContentPage) pageView {
	return pageView{
		Slug:        p.Slug,
		Title:       p.Title,
		Body:        p.Body,
		Published:   p.Published,
		Version:     p.Version,
		UpdatedAt:   p.UpdatedAt,
		PublishedAt: p.PublishedAt,
	}
}

type cardView struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	Rank      int64     `json:"rank"`
	Version   int       `json:"version"`
	Title     string    `json:"title"`
	Subtitle  string    `json:"subtitle"`
	Amount    priceView `json:"amount"`
	CreatedAt time.Time `json:"created_at"`
}

type columnView struct {
	Status string     `json:"status"`
	Cards  []cardView `json:"cards"`
}

type boardView struct {
	Kind    string       `json:"kind"`
	Columns []columnView `json:"columns"`
}

func (p presenter) card(c board.Card) cardView {
	return cardView{
		ID:        c.ID,
		Status:    c.Status,
		Rank:      c.Rank,
		Version:   c.Version,
		Title:     c.Title,
		Subtitle:  c.Subtitle,
		Amount:    p.price(c.AmountCents),
		CreatedAt: c.CreatedAt,
	}
}

func (p presenter) board(b board.Board) boardView {
	v := boardView{Kind: string(b.Kind), Columns: make([]columnView, 0, len(b.Columns))}
	for _, col := range b.Columns {
		cv := columnView{Status: col.Status, Cards: make([]cardView, 0, len(col.Cards))}
		for _, c := range col.Cards {
			cv.Cards = append(cv.Cards, p.card(c))
		}
		v.Columns = append(v.Columns, cv)
	}
	return v
}

type moveView struct {
	Card  cardView  `json:"card"`
	Board boardView `json:"board"`
}
