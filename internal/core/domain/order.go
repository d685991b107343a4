package domain

import "time"

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusPaid       OrderStatus = "paid"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderStatuses lists order workflow states in board column order.
var OrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPaid,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:    {OrderStatusPaid, OrderStatusCancelled},
	OrderStatusPaid:       {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusShipped, OrderStatusPaid, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusProcessing},
}

func (s OrderStatus) Valid() bool {
	for _, st := range OrderStatuses {
		if st == s {
			return true
		}
	}
	return false
}

// CanTransition reports whether an order may move from s to next.
// Staying in the same status is always allowed so cards can be reordered.
func (s OrderStatus) CanTransition(next OrderStatus) bool {
	if s == next {
		return s.Valid()
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// RestocksOnCancel reports whether cancelling from s returns goods to stock.
// Goods that have left the warehouse do not come back by cancelling.
func (s OrderStatus) RestocksOnCancel() bool {
	return s.Editable()
}

// Editable reports whether lines and discounts may still be changed.
func (s OrderStatus) Editable() bool {
	return s == OrderStatusPending || s == OrderStatusPaid || s == OrderStatusProcessing
}

type Order struct {
	ID            string
	CustomerName  string
	CustomerEmail string
	Status        OrderStatus
	Lines         []OrderedProduct
	SubtotalCents int64
	DiscountCents int64
	ShippingCents int64
	TotalCents    int64
	Rank          int64
	Version       int // optimistic locking
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// OrderedProduct is a line of an order, priced at the time of purchase.
type OrderedProduct struct {
	ID                string
	OrderID           string
	ProductID         string
	Name              string
	UnitPriceCents    int64
	OptionsDeltaCents int64
	OptionLabels      []string
	Quantity          int
	DiscountCents     int64
	DiscountPinned    bool
}

func (l OrderedProduct) SubtotalCents() int64 {
	return (l.UnitPriceCents + l.OptionsDeltaCents) * int64(l.Quantity)
}

func (o *Order) Line(lineID string) (int, bool) {
	for i, l := range o.Lines {
		if l.ID == lineID {
			return i, true
		}
	}
	return -1, false
}

// StatusChange is one entry of a workflow history.
type StatusChange struct {
	EntityID string
	Kind     BoardKind
	From     string
	To       string
	Actor    string
	At       time.Time
}
