package fallback

import (
	"context"
	"fmt"
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

func TestClassifyTimeout(t *testing.T) {
	err := classify(fmt.Errorf("request: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestClassifyNil(t *testing.T) {
	assert.NoError(t, classify(nil))
}

func TestClassifyGeneric(t *testing.T) {
	err := classify(fmt.Errorf("connection reset"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrRateLimited)
	assert.NotErrorIs(t, err, ErrQuotaExhausted)
}

func testClient() *Client {
	return &Client{
		cfg:    config.Config{MatchMinOverlap: 0.5},
		policy: config.DefaultPolicy(),
	}
}

func testInput() internal.EmailInput {
	return internal.EmailInput{
		EmailID: "email-1",
		Catalog: []internal.CatalogProduct{
			{ID: 1, Name: "QUESO OAXACA", SaleUnit: "pz", WeightPerUnit: util.FloatPtr(25), QuotedPrice: decPtr("80")},
			{ID: 2, Name: "TORTILLA DE MAIZ", SaleUnit: "pz"},
		},
		Branches: []internal.Branch{{ID: 10, Name: "DALLAS"}},
	}
}

func TestToParsedOrderTrustsCatalogID(t *testing.T) {
	wire := wireOrder{
		Confidence: 0.9,
		Branches: []wireBranch{{
			BranchName:   "DALLAS",
			DeliveryDate: "2026-05-12",
			Lines: []wireLine{
				{ProductText: "queso de hebra", Quantity: 925, Unit: "kg", CatalogID: 1},
			},
		}},
	}

	out := testClient().toParsedOrder(wire, testInput())
	require.Len(t, out.Branches, 1)
	require.Len(t, out.Branches[0].Lines, 1)

	line := out.Branches[0].Lines[0]
	assert.Equal(t, internal.SourceAIFallback, line.Source)
	require.NotNil(t, line.MatchedProductID)
	assert.Equal(t, 1, *line.MatchedProductID)
	// The quantity still goes through weight-to-unit normalization.
	assert.Equal(t, 37.0, line.Quantity)
	assert.True(t, line.RequiresVerification)

	assert.Equal(t, 0.9, out.Confidence)
	require.NotNil(t, out.Branches[0].MatchedBranchID)
	assert.Equal(t, 10, *out.Branches[0].MatchedBranchID)
}

func TestToParsedOrderResolvesByText(t *testing.T) {
	wire := wireOrder{
		Confidence: 2, // clamped
		Branches: []wireBranch{{
			BranchName: "DALLAS",
			Lines: []wireLine{
				{ProductText: "TORTILLA DE MAIZ", Quantity: 40, Unit: "pz"},
				{ProductText: "PRODUCTO INVENTADO", Quantity: 3, SuggestedPrice: 12.5},
				{ProductText: "", Quantity: 5},
				{ProductText: "ALGO", Quantity: 0},
			},
		}},
	}

	out := testClient().toParsedOrder(wire, testInput())
	assert.Equal(t, 1.0, out.Confidence)
	require.Len(t, out.Branches, 1)
	require.Len(t, out.Branches[0].Lines, 2, "empty and zero-quantity lines are dropped")

	matched := out.Branches[0].Lines[0]
	require.NotNil(t, matched.MatchedProductID)
	assert.Equal(t, 2, *matched.MatchedProductID)

	unmatched := out.Branches[0].Lines[1]
	assert.Nil(t, unmatched.MatchedProductID)
	assert.Equal(t, internal.MatchNone, unmatched.MatchKind)
	// A suggested price still values the unmatched line for review.
	require.NotNil(t, unmatched.UnitPrice)
	assert.True(t, unmatched.Subtotal.Equal(dec("37.50")), "subtotal=%s", unmatched.Subtotal)
}
