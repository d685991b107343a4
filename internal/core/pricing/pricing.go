// Package pricing holds the order arithmetic behind the admin order dialog:
// line subtotals, totals, and splitting an order-level discount across lines.
package pricing

import (
	"errors"
	"math/bits"
	"sort"

	"github.com/rl1809/storefront/internal/core/domain"
)

type Totals struct {
	SubtotalCents int64
	DiscountCents int64
	ShippingCents int64
	TotalCents    int64
}

func Subtotal(lines []domain.OrderedProduct) int64 {
	var sum int64
	for _, l := range lines {
		sum += l.SubtotalCents()
	}
	return sum
}

// Compute totals from lines whose discounts are already distributed.
func Compute(lines []domain.OrderedProduct, shippingCents int64) Totals {
	t := Totals{SubtotalCents: Subtotal(lines), ShippingCents: shippingCents}
	for _, l := range lines {
		t.DiscountCents += l.DiscountCents
	}
	t.TotalCents = t.SubtotalCents - t.DiscountCents + t.ShippingCents
	return t
}

// Apply writes lines and their totals onto o.
func Apply(o *domain.Order, lines []domain.OrderedProduct) {
	t := Compute(lines, o.ShippingCents)
	o.Lines = lines
	o.SubtotalCents = t.SubtotalCents
	o.DiscountCents = t.DiscountCents
	o.TotalCents = t.TotalCents
}

// Distribute spreads discountCents over lines. Pinned lines keep their
// discount; the rest is split across unpinned lines in proportion to their
// subtotal using largest remainders, ties going to the earlier line.
// The returned lines always sum to exactly discountCents and no line is
// discounted below zero. A line with a negative subtotal is rejected.
func Distribute(lines []domain.OrderedProduct, discountCents int64) ([]domain.OrderedProduct, error) {
	if discountCents < 0 {
		return nil, domain.ErrInvalidAmount
	}
	for _, l := range lines {
		if l.SubtotalCents() < 0 {
			return nil, domain.ErrInvalidAmount
		}
	}
	out := clone(lines)
	if discountCents > Subtotal(out) {
		return nil, domain.ErrDiscountTooLarge
	}

	var pinned, weight int64
	for _, l := range out {
		if l.DiscountPinned {
			if l.DiscountCents < 0 || l.DiscountCents > l.SubtotalCents() {
				return nil, domain.ErrDiscountTooLarge
			}
			pinned += l.DiscountCents
			continue
		}
		weight += l.SubtotalCents()
	}
	if pinned > discountCents {
		return nil, domain.ErrDiscountTooLarge
	}
	remaining := discountCents - pinned
	if remaining > weight {
		return nil, domain.ErrDiscountTooLarge
	}

	type share struct {
		idx int
		rem uint64
	}
	shares := make([]share, 0, len(out))
	var assigned int64
	for i := range out {
		if out[i].DiscountPinned {
			continue
		}
		if remaining == 0 {
			out[i].DiscountCents = 0
			continue
		}
		q, r := mulDiv(uint64(remaining), uint64(out[i].SubtotalCents()), uint64(weight))
		out[i].DiscountCents = int64(q)
		assigned += int64(q)
		shares = append(shares, share{idx: i, rem: r})
	}

	sort.SliceStable(shares, func(a, b int) bool { return shares[a].rem > shares[b].rem })
	for k := int64(0); k < remaining-assigned; k++ {
		out[shares[k].idx].DiscountCents++
	}
	return out, nil
}

// SetLineDiscount pins line i at amountCents and redistributes the rest of
// the order discount over the other unpinned lines.
func SetLineDiscount(lines []domain.OrderedProduct, i int, amountCents, orderDiscountCents int64) ([]domain.OrderedProduct, error) {
	if i < 0 || i >= len(lines) {
		return nil, domain.ErrNotFound
	}
	if amountCents < 0 {
		return nil, domain.ErrInvalidAmount
	}
	if amountCents > lines[i].SubtotalCents() {
		return nil, domain.ErrDiscountTooLarge
	}
	out := clone(lines)
	out[i].DiscountCents = amountCents
	out[i].DiscountPinned = true
	return Distribute(out, orderDiscountCents)
}

// UpdateLine applies an inline price/quantity edit to line i. A pin that no
// longer fits its line is dropped and the order discount is clamped to the
// new subtotal. The effective order discount is returned with the lines.
func UpdateLine(lines []domain.OrderedProduct, i int, unitPriceCents int64, quantity int, orderDiscountCents int64) ([]domain.OrderedProduct, int64, error) {
	if i < 0 || i >= len(lines) {
		return nil, 0, domain.ErrNotFound
	}
	if quantity < 1 {
		return nil, 0, domain.ErrInvalidQuantity
	}
	if unitPriceCents < 0 || unitPriceCents+lines[i].OptionsDeltaCents < 0 {
		return nil, 0, domain.ErrInvalidAmount
	}

	out := clone(lines)
	out[i].UnitPriceCents = unitPriceCents
	out[i].Quantity = quantity
	if out[i].DiscountPinned && out[i].DiscountCents > out[i].SubtotalCents() {
		out[i].DiscountPinned = false
	}

	discount := orderDiscountCents
	if sub := Subtotal(out); discount > sub {
		discount = sub
	}

	distributed, err := Distribute(out, discount)
	if errors.Is(err, domain.ErrDiscountTooLarge) {
		for k := range out {
			out[k].DiscountPinned = false
		}
		distributed, err = Distribute(out, discount)
	}
	if err != nil {
		return nil, 0, err
	}
	return distributed, discount, nil
}

func clone(lines []domain.OrderedProduct) []domain.OrderedProduct {
	out := make([]domain.OrderedProduct, len(lines))
	copy(out, lines)
	return out
}

// mulDiv returns a*b/c and its remainder without intermediate overflow.
// The caller guarantees a <= c.
func mulDiv(a, b, c uint64) (uint64, uint64) {
	hi, lo := bits.Mul64(a, b)
	return bits.Div64(hi, lo, c)
}
