package order

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"ordena/internal"
	"ordena/internal/config"
)

// UnverifiedError blocks finalization and names every watch-listed
// product still awaiting operator confirmation.
type UnverifiedError struct {
	Products []string
}

func (e *UnverifiedError) Error() string {
	return fmt.Sprintf("cannot finalize: %d product(s) need weight confirmation: %s",
		len(e.Products), strings.Join(e.Products, ", "))
}

// PlausibilityWarning flags a confirmed weight above the category
// ceiling. It never blocks by itself; the caller decides whether to
// proceed after an explicit confirmation.
type PlausibilityWarning struct {
	ProductName string
	Category    string
	QuantityKg  float64
	CeilingKg   float64
}

func (w PlausibilityWarning) String() string {
	return fmt.Sprintf("%s: %.2f kg exceeds the plausible ceiling of %.2f kg for %s",
		w.ProductName, w.QuantityKg, w.CeilingKg, w.Category)
}

// Unverified lists the watch-listed lines not yet confirmed, sorted by
// product name for stable error messages.
func Unverified(draft internal.DraftOrder) []internal.DraftLine {
	var out []internal.DraftLine
	for _, line := range draft.Lines {
		if line.RequiresVerification && !line.Verified {
			out = append(out, line)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductName < out[j].ProductName })
	return out
}

// MarkVerified confirms one line with the weight and unit count the
// operator actually measured. The line subtotal is recomputed from the
// confirmed weight times the unit price, and the returned warning, when
// non-nil, must be acknowledged by the caller before persisting.
func MarkVerified(draft internal.DraftOrder, productID int, confirmedWeightKg, confirmedUnits float64, policy config.Policy, catalog map[int]internal.CatalogProduct) (internal.DraftOrder, *PlausibilityWarning, error) {
	if draft.Status == internal.DraftFinalized {
		return draft, nil, ErrDraftFinalized
	}
	line, ok := draft.Lines[productID]
	if !ok {
		return draft, nil, fmt.Errorf("draft %s has no line for product %d", draft.ID, productID)
	}

	next := clone(draft)
	line.Verified = true
	line.VerifiedWeight = &confirmedWeightKg
	line.VerifiedUnits = &confirmedUnits
	line.Subtotal = line.UnitPrice.Mul(decimal.NewFromFloat(confirmedWeightKg)).Round(2)

	if product, known := catalog[productID]; known && product.PricedByWeight {
		line.Quantity = confirmedWeightKg
	} else {
		line.Quantity = confirmedUnits
	}

	next.Lines[productID] = line
	next.Totals = ComputeTotals(next, policy, catalog)

	var warning *PlausibilityWarning
	if rule, watched := policy.MatchWatch(line.ProductName); watched && rule.Implausible(confirmedWeightKg) {
		warning = &PlausibilityWarning{
			ProductName: line.ProductName,
			Category:    rule.Category,
			QuantityKg:  confirmedWeightKg,
			CeilingKg:   rule.MaxPlausibleKg,
		}
	}
	return next, warning, nil
}

// MarkAllVerified accepts the parsed values as correct for every listed
// line without touching quantities or subtotals.
func MarkAllVerified(draft internal.DraftOrder, productIDs []int) (internal.DraftOrder, error) {
	if draft.Status == internal.DraftFinalized {
		return draft, ErrDraftFinalized
	}

	next := clone(draft)
	for _, pid := range productIDs {
		line, ok := next.Lines[pid]
		if !ok {
			return draft, fmt.Errorf("draft %s has no line for product %d", draft.ID, pid)
		}
		line.Verified = true
		next.Lines[pid] = line
	}
	return next, nil
}

// Finalize transitions the draft to its terminal state. It fails with an
// UnverifiedError naming every outstanding watch-listed product; a
// finalized draft never changes again.
func Finalize(draft internal.DraftOrder) (internal.DraftOrder, error) {
	if draft.Status == internal.DraftFinalized {
		return draft, ErrDraftFinalized
	}

	if pending := Unverified(draft); len(pending) > 0 {
		names := make([]string, 0, len(pending))
		for _, line := range pending {
			name := line.ProductName
			if name == "" {
				name = fmt.Sprintf("product %d", line.ProductID)
			}
			names = append(names, name)
		}
		return draft, &UnverifiedError{Products: names}
	}

	next := clone(draft)
	next.Status = internal.DraftFinalized
	return next, nil
}
