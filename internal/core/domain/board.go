package domain

type BoardKind string

const (
	BoardKindOrders        BoardKind = "orders"
	BoardKindRegistrations BoardKind = "registrations"
)

func (k BoardKind) Valid() bool {
	return k == BoardKindOrders || k == BoardKindRegistrations
}
