package order

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ordena/internal"
	"ordena/internal/config"
	"ordena/internal/util"
)

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func decPtr(s string) *decimal.Decimal {
	d := dec(s)
	return &d
}

func testCatalog() map[int]internal.CatalogProduct {
	return map[int]internal.CatalogProduct{
		1: {ID: 1, Name: "QUESO OAXACA", SaleUnit: "pz", AppliesTaxA: true},
		2: {ID: 2, Name: "CREMA BOTE 900ML", SaleUnit: "pz"},
		3: {ID: 3, Name: "MANTEQUILLA", SaleUnit: "kg", PricedByWeight: true, AppliesTaxA: true, AppliesTaxB: true},
	}
}

func emptyDraft() internal.DraftOrder {
	return internal.DraftOrder{
		ID:           "d1",
		ClientID:     "c1",
		BranchID:     10,
		BranchName:   "DALLAS",
		DeliveryDate: "2026-05-12",
		Status:       internal.DraftOpen,
		Lines:        map[int]internal.DraftLine{},
	}
}

func parsedBranch(lines ...internal.ParsedLine) internal.ParsedBranch {
	return internal.ParsedBranch{
		NameAsWritten:   "DALLAS",
		MatchedBranchID: util.IntPtr(10),
		Lines:           lines,
	}
}

func matchedLine(productID int, qty float64, subtotal string) internal.ParsedLine {
	return internal.ParsedLine{
		MatchedProductID: util.IntPtr(productID),
		MatchKind:        internal.MatchExact,
		Quantity:         qty,
		UnitPrice:        decPtr("10"),
		Subtotal:         dec(subtotal),
	}
}

func TestMergeCreatesLines(t *testing.T) {
	policy := config.DefaultPolicy()
	catalog := testCatalog()

	next, err := Merge(emptyDraft(), parsedBranch(
		matchedLine(1, 5, "58"),
		matchedLine(2, 24, "852"),
	), "email-1", policy, catalog)
	require.NoError(t, err)

	assert.Len(t, next.Lines, 2)
	assert.Equal(t, []string{"email-1"}, next.ProcessedEmailIDs)
	assert.Equal(t, "QUESO OAXACA", next.Lines[1].ProductName)
	assert.True(t, next.Lines[1].RequiresVerification, "watch-listed product must be flagged")
	assert.False(t, next.Lines[2].RequiresVerification)
}

func TestMergeSumsQuantitiesAcrossEmails(t *testing.T) {
	policy := config.DefaultPolicy()
	catalog := testCatalog()

	first, err := Merge(emptyDraft(), parsedBranch(
		matchedLine(1, 5, "50"),
		matchedLine(2, 10, "100"),
	), "email-1", policy, catalog)
	require.NoError(t, err)

	second, err := Merge(first, parsedBranch(
		matchedLine(2, 7, "70"),
		matchedLine(3, 40, "400"),
	), "email-2", policy, catalog)
	require.NoError(t, err)

	assert.Len(t, second.Lines, 3)
	assert.Equal(t, 5.0, second.Lines[1].Quantity)
	assert.Equal(t, 17.0, second.Lines[2].Quantity)
	assert.Equal(t, 40.0, second.Lines[3].Quantity)
	assert.True(t, second.Lines[2].Subtotal.Equal(dec("170")))
	assert.Equal(t, []string{"email-1", "email-2"}, second.ProcessedEmailIDs)

	// first is untouched: Merge is a pure reducer.
	assert.Len(t, first.Lines, 2)
	assert.Equal(t, 10.0, first.Lines[2].Quantity)
}

func TestMergeRejectsDuplicateEmail(t *testing.T) {
	policy := config.DefaultPolicy()
	catalog := testCatalog()

	first, err := Merge(emptyDraft(), parsedBranch(matchedLine(1, 5, "50")), "email-1", policy, catalog)
	require.NoError(t, err)

	_, err = Merge(first, parsedBranch(matchedLine(1, 5, "50")), "email-1", policy, catalog)
	assert.ErrorIs(t, err, ErrEmailAlreadyMerged)
	assert.Equal(t, 5.0, first.Lines[1].Quantity, "duplicate must not double-count")
}

func TestMergeRejectsFinalizedDraft(t *testing.T) {
	draft := emptyDraft()
	draft.Status = internal.DraftFinalized

	_, err := Merge(draft, parsedBranch(matchedLine(1, 5, "50")), "email-1", config.DefaultPolicy(), testCatalog())
	assert.ErrorIs(t, err, ErrDraftFinalized)
}

func TestMergeSkipsUnmatchedLines(t *testing.T) {
	branch := parsedBranch(
		matchedLine(1, 5, "50"),
		internal.ParsedLine{MatchKind: internal.MatchNone, RawProductText: "PRODUCTO DESCONOCIDO", Quantity: 3},
	)

	next, err := Merge(emptyDraft(), branch, "email-1", config.DefaultPolicy(), testCatalog())
	require.NoError(t, err)
	assert.Len(t, next.Lines, 1)
}

func TestMergeResetsVerificationOnNewQuantity(t *testing.T) {
	policy := config.DefaultPolicy()
	catalog := testCatalog()

	draft := emptyDraft()
	draft.Lines[1] = internal.DraftLine{
		ProductID:            1,
		ProductName:          "QUESO OAXACA",
		Quantity:             5,
		Subtotal:             dec("50"),
		RequiresVerification: true,
		Verified:             true,
		VerifiedWeight:       util.FloatPtr(125),
	}

	next, err := Merge(draft, parsedBranch(matchedLine(1, 3, "30")), "email-2", policy, catalog)
	require.NoError(t, err)

	line := next.Lines[1]
	assert.Equal(t, 8.0, line.Quantity)
	assert.False(t, line.Verified, "new quantity invalidates the confirmation")
	assert.Nil(t, line.VerifiedWeight)
}

func TestComputeTotalsDecomposesTaxInclusiveAmounts(t *testing.T) {
	policy := config.DefaultPolicy()
	catalog := testCatalog()

	draft := emptyDraft()
	// Product 1 carries 16% tax A; 116.00 inclusive is 100.00 net.
	draft.Lines[1] = internal.DraftLine{ProductID: 1, Subtotal: dec("116")}
	// Product 2 is untaxed.
	draft.Lines[2] = internal.DraftLine{ProductID: 2, Subtotal: dec("50")}
	// Product 3 carries both taxes: 124.00 inclusive is 100.00 net.
	draft.Lines[3] = internal.DraftLine{ProductID: 3, Subtotal: dec("124")}

	totals := ComputeTotals(draft, policy, catalog)
	assert.True(t, totals.Net.Equal(dec("250")), "net=%s", totals.Net)
	assert.True(t, totals.Tax.Equal(dec("40")), "tax=%s", totals.Tax)
	assert.True(t, totals.Grand.Equal(dec("290")), "grand=%s", totals.Grand)
}

func TestComputeTotalsRoundsAtTheEnd(t *testing.T) {
	policy := config.DefaultPolicy()
	catalog := testCatalog()

	draft := emptyDraft()
	draft.Lines[1] = internal.DraftLine{ProductID: 1, Subtotal: dec("10.01")}

	totals := ComputeTotals(draft, policy, catalog)
	// 10.01 / 1.16 = 8.6293..., rounded once to 8.63.
	assert.True(t, totals.Net.Equal(dec("8.63")), "net=%s", totals.Net)
	assert.True(t, totals.Tax.Equal(dec("1.38")), "tax=%s", totals.Tax)
}
