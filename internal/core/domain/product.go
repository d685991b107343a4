package domain

import "time"

type Product struct {
	ID          string
	SKU         string
	Name        string
	Description string
	PriceCents  int64
	Stock       int
	Active      bool
	Options     []CustomizationOption
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CustomizationOption is a priced choice within an option group, e.g.
// group "size" with label "XL" at +300 cents.
type CustomizationOption struct {
	ID              string
	ProductID       string
	Group           string
	Label           string
	PriceDeltaCents int64
}

// ResolveOptions returns the selected options of p. Every id must belong to
// the product, no two may share a group and the options may not take the
// unit price below zero.
func (p Product) ResolveOptions(ids []string) ([]CustomizationOption, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	byID := make(map[string]CustomizationOption, len(p.Options))
	for _, o := range p.Options {
		byID[o.ID] = o
	}
	groups := make(map[string]bool, len(ids))
	out := make([]CustomizationOption, 0, len(ids))
	unit := p.PriceCents
	for _, id := range ids {
		opt, ok := byID[id]
		if !ok {
			return nil, ErrInvalidOption
		}
		if groups[opt.Group] {
			return nil, ErrInvalidOption
		}
		groups[opt.Group] = true
		unit += opt.PriceDeltaCents
		out = append(out, opt)
	}
	if unit < 0 {
		return nil, ErrInvalidAmount
	}
	return out, nil
}
