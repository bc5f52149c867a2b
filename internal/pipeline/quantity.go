package pipeline

import (
	"math"

	"ordena/internal"
	"ordena/internal/util"
)

// NormalizedQty is a quantity expressed in the catalog's canonical unit
// for the product. Annotation keeps the original weight wording when a
// weight was converted into discrete sale units.
type NormalizedQty struct {
	Quantity   float64
	Unit       string
	Annotation *string
}

// NormalizeQuantity converts a raw parsed quantity into the unit the
// catalog prices the product in. Pure function of its inputs:
//
//   - weight-priced products take the raw quantity as kilograms, no
//     matter what unit the email used;
//   - discrete products ordered by weight are converted through the
//     product's kg-per-unit factor, rounded to the nearest whole unit,
//     with the original weight kept as an annotation;
//   - everything else passes through unchanged.
func NormalizeQuantity(rawQty float64, rawQtyText, rawUnitHint string, product internal.CatalogProduct) NormalizedQty {
	if product.PricedByWeight {
		return NormalizedQty{Quantity: rawQty, Unit: "kg"}
	}

	if util.IsWeightUnit(rawUnitHint) && product.WeightPerUnit != nil && *product.WeightPerUnit > 0 {
		units := math.Round(rawQty / *product.WeightPerUnit)
		note := rawQtyText + " kg"
		return NormalizedQty{Quantity: units, Unit: product.SaleUnit, Annotation: &note}
	}

	unit := rawUnitHint
	if unit == "" {
		unit = product.SaleUnit
	}
	return NormalizedQty{Quantity: rawQty, Unit: unit}
}
