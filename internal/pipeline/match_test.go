package pipeline

import (
	"testing"

	"github.com/shopspring/decimal"

	"ordena/internal"
	"ordena/internal/config"
	"ordena/internal/util"
)

func decPtr(s string) *decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return &d
}

func testMatcher() *Matcher {
	products := []internal.CatalogProduct{
		{ID: 1, Name: "QUESO OAXACA", SaleUnit: "pz", WeightPerUnit: util.FloatPtr(25), QuotedPrice: decPtr("80")},
		{ID: 2, Name: "YOGURT NATURAL 1L", SaleUnit: "pz", QuotedPrice: decPtr("35.50")},
		{ID: 3, Name: "MANTEQUILLA", SaleUnit: "kg", PricedByWeight: true, QuotedPrice: decPtr("120")},
	}
	cfg := config.Config{MatchMinOverlap: 0.5}
	return NewMatcher(cfg, config.DefaultPolicy(), products)
}

func TestMatcherLine(t *testing.T) {
	m := testMatcher()

	line := m.Line(Candidate{ProductText: "QUESO OAXACA", Quantity: 925, QuantityRaw: "925.00", UnitHint: "kg"}, internal.SourceEmailBody)
	if line.MatchedProductID == nil || *line.MatchedProductID != 1 {
		t.Fatalf("product=%v", line.MatchedProductID)
	}
	if line.MatchKind != internal.MatchExact {
		t.Fatalf("kind=%s", line.MatchKind)
	}
	if line.Quantity != 37 || line.Unit != "pz" {
		t.Fatalf("qty=%v unit=%q", line.Quantity, line.Unit)
	}
	if line.Annotation == nil || *line.Annotation != "925.00 kg" {
		t.Fatalf("annotation=%v", line.Annotation)
	}
	if !line.RequiresVerification {
		t.Fatalf("watch-listed product not flagged")
	}
	if !line.Subtotal.Equal(decimal.NewFromInt(2960)) {
		t.Fatalf("subtotal=%s", line.Subtotal)
	}
}

func TestMatcherLinePricing(t *testing.T) {
	m := testMatcher()

	line := m.Line(Candidate{ProductText: "YOGURT NATURAL", Quantity: 24, QuantityRaw: "24", UnitHint: "pz"}, internal.SourceEmailBody)
	if line.MatchedProductID == nil || *line.MatchedProductID != 2 {
		t.Fatalf("product=%v", line.MatchedProductID)
	}
	if line.RequiresVerification {
		t.Fatalf("yogurt is not watch-listed")
	}
	if !line.Subtotal.Equal(decimal.NewFromInt(852)) {
		t.Fatalf("subtotal=%s", line.Subtotal)
	}
}

func TestMatcherLineUnmatchedKept(t *testing.T) {
	m := testMatcher()

	line := m.Line(Candidate{ProductText: "REFRESCO DE COLA", Quantity: 6, QuantityRaw: "6", UnitHint: "pz"}, internal.SourceEmailBody)
	if line.MatchedProductID != nil {
		t.Fatalf("unexpected match: %v", *line.MatchedProductID)
	}
	if line.MatchKind != internal.MatchNone {
		t.Fatalf("kind=%s", line.MatchKind)
	}
	if line.RawProductText != "REFRESCO DE COLA" || line.Quantity != 6 {
		t.Fatalf("raw data lost: %+v", line)
	}
}

func TestMatchedLineCount(t *testing.T) {
	branches := []internal.ParsedBranch{
		{Lines: []internal.ParsedLine{
			{MatchedProductID: util.IntPtr(1)},
			{MatchKind: internal.MatchNone},
		}},
		{Lines: []internal.ParsedLine{{MatchedProductID: util.IntPtr(2)}}},
	}
	if n := MatchedLineCount(branches); n != 2 {
		t.Fatalf("count=%d", n)
	}
}
