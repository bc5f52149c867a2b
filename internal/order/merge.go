package order

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"ordena/internal"
	"ordena/internal/config"
)

var (
	// ErrDraftFinalized rejects any mutation of a finalized draft.
	ErrDraftFinalized = errors.New("draft is finalized and can no longer change")

	// ErrEmailAlreadyMerged rejects reprocessing the same source email
	// into a draft, so duplicate delivery never double-counts lines.
	ErrEmailAlreadyMerged = errors.New("source email was already merged into this draft")
)

// UnresolvedLinesError blocks a merge while extracted lines without a
// catalog match are still awaiting review, so they cannot silently
// vanish from the draft.
type UnresolvedLinesError struct {
	Branch string
	Texts  []string
}

func (e *UnresolvedLinesError) Error() string {
	return fmt.Sprintf("branch %q has %d unresolved line(s) awaiting review: %s",
		e.Branch, len(e.Texts), strings.Join(e.Texts, "; "))
}

// Merge folds one parsed branch into a cumulative draft and returns the
// updated draft. Pure reducer: the input draft is not mutated, nothing
// is persisted here. Quantities and subtotals for a product already in
// the draft are added, not replaced, and totals are recomputed from
// scratch afterwards.
func Merge(draft internal.DraftOrder, branch internal.ParsedBranch, emailID string, policy config.Policy, catalog map[int]internal.CatalogProduct) (internal.DraftOrder, error) {
	if draft.Status == internal.DraftFinalized {
		return draft, ErrDraftFinalized
	}
	if draft.HasProcessed(emailID) {
		return draft, ErrEmailAlreadyMerged
	}

	next := clone(draft)

	for _, line := range branch.Lines {
		if line.MatchedProductID == nil {
			continue
		}
		pid := *line.MatchedProductID
		product, known := catalog[pid]

		existing, ok := next.Lines[pid]
		if !ok {
			dl := internal.DraftLine{
				ProductID:            pid,
				Quantity:             line.Quantity,
				Subtotal:             line.Subtotal,
				RequiresVerification: line.RequiresVerification,
			}
			if line.UnitPrice != nil {
				dl.UnitPrice = *line.UnitPrice
			}
			if known {
				dl.ProductName = product.Name
				dl.SaleUnit = product.SaleUnit
				if _, watched := policy.MatchWatch(product.Name); watched {
					dl.RequiresVerification = true
				}
			}
			next.Lines[pid] = dl
			continue
		}

		existing.Quantity += line.Quantity
		existing.Subtotal = existing.Subtotal.Add(line.Subtotal)
		if existing.UnitPrice.IsZero() && line.UnitPrice != nil {
			existing.UnitPrice = *line.UnitPrice
		}
		// More quantity arrived after an operator confirmed the old
		// amount; the confirmation no longer covers the line.
		if existing.RequiresVerification {
			existing.Verified = false
			existing.VerifiedWeight = nil
			existing.VerifiedUnits = nil
		}
		next.Lines[pid] = existing
	}

	next.ProcessedEmailIDs = append(next.ProcessedEmailIDs, emailID)
	next.Totals = ComputeTotals(next, policy, catalog)
	return next, nil
}

// ComputeTotals rebuilds the draft totals from the current line
// subtotals. Stored line amounts are tax-inclusive, so each line's net
// is amount / (1 + sum of its applicable rates); sums are rounded to
// currency precision only at the end.
func ComputeTotals(draft internal.DraftOrder, policy config.Policy, catalog map[int]internal.CatalogProduct) internal.DraftTotals {
	net := decimal.Zero
	tax := decimal.Zero
	grand := decimal.Zero

	for pid, line := range draft.Lines {
		amount := line.Subtotal
		rate := 0.0
		if product, ok := catalog[pid]; ok {
			if product.AppliesTaxA {
				rate += policy.Taxes.TaxARate
			}
			if product.AppliesTaxB {
				rate += policy.Taxes.TaxBRate
			}
		}

		lineNet := amount
		if rate > 0 {
			lineNet = amount.Div(decimal.NewFromFloat(1 + rate))
		}
		net = net.Add(lineNet)
		tax = tax.Add(amount.Sub(lineNet))
		grand = grand.Add(amount)
	}

	return internal.DraftTotals{
		Net:   net.Round(2),
		Tax:   tax.Round(2),
		Grand: grand.Round(2),
	}
}

func clone(draft internal.DraftOrder) internal.DraftOrder {
	next := draft
	next.Lines = make(map[int]internal.DraftLine, len(draft.Lines))
	for k, v := range draft.Lines {
		next.Lines[k] = v
	}
	next.ProcessedEmailIDs = append([]string(nil), draft.ProcessedEmailIDs...)
	return next
}
