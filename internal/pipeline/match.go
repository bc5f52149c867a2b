package pipeline

import (
	"github.com/shopspring/decimal"

	"ordena/internal"
	"ordena/internal/catalog"
	"ordena/internal/config"
)

// Matcher turns extracted candidates into catalog-matched, priced and
// unit-normalized order lines.
type Matcher struct {
	index      *catalog.Index
	policy     config.Policy
	minOverlap float64
}

func NewMatcher(cfg config.Config, policy config.Policy, products []internal.CatalogProduct) *Matcher {
	return &Matcher{
		index:      catalog.BuildIndex(products),
		policy:     policy,
		minOverlap: cfg.MatchMinOverlap,
	}
}

// Line resolves one candidate. Unmatched candidates are kept with
// MatchKind none so a human can resolve them during review; they are
// never silently dropped.
func (m *Matcher) Line(c Candidate, source internal.LineSource) internal.ParsedLine {
	line := internal.ParsedLine{
		Source:         source,
		RawProductText: c.ProductText,
		RawQuantity:    c.QuantityRaw,
		RawUnitHint:    c.UnitHint,
		Quantity:       c.Quantity,
		Unit:           c.UnitHint,
		MatchKind:      internal.MatchNone,
	}

	res := m.index.Resolve(c.ProductText, m.minOverlap)
	if res.Kind == internal.MatchNone || res.Product == nil {
		return line
	}

	product := *res.Product
	line.MatchedProductID = &product.ID
	line.MatchKind = res.Kind

	nq := NormalizeQuantity(c.Quantity, c.QuantityRaw, c.UnitHint, product)
	line.Quantity = nq.Quantity
	line.Unit = nq.Unit
	line.Annotation = nq.Annotation

	if _, watched := m.policy.MatchWatch(product.Name); watched {
		line.RequiresVerification = true
	}

	if product.QuotedPrice != nil {
		price := *product.QuotedPrice
		line.UnitPrice = &price
		line.Subtotal = price.Mul(decimal.NewFromFloat(nq.Quantity)).Round(2)
	}

	return line
}

// ResolvedLine builds a line for a product already identified by id,
// skipping text resolution. The fallback extractor uses this when it is
// certain of the catalog entry.
func (m *Matcher) ResolvedLine(c Candidate, product internal.CatalogProduct, source internal.LineSource) internal.ParsedLine {
	line := internal.ParsedLine{
		Source:           source,
		RawProductText:   c.ProductText,
		RawQuantity:      c.QuantityRaw,
		RawUnitHint:      c.UnitHint,
		MatchedProductID: &product.ID,
		MatchKind:        internal.MatchExact,
	}

	nq := NormalizeQuantity(c.Quantity, c.QuantityRaw, c.UnitHint, product)
	line.Quantity = nq.Quantity
	line.Unit = nq.Unit
	line.Annotation = nq.Annotation

	if _, watched := m.policy.MatchWatch(product.Name); watched {
		line.RequiresVerification = true
	}
	if product.QuotedPrice != nil {
		price := *product.QuotedPrice
		line.UnitPrice = &price
		line.Subtotal = price.Mul(decimal.NewFromFloat(nq.Quantity)).Round(2)
	}
	return line
}

// MatchedLineCount reports how many lines across all branches resolved
// to a catalog product. Zero across a whole parse is the signal to
// escalate to the AI fallback.
func MatchedLineCount(branches []internal.ParsedBranch) int {
	n := 0
	for _, b := range branches {
		for _, l := range b.Lines {
			if l.MatchedProductID != nil {
				n++
			}
		}
	}
	return n
}
