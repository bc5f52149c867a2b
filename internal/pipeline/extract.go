package pipeline

import (
	"regexp"
	"strings"

	"ordena/internal/util"
)

// Candidate is one (product text, quantity, unit hint) triple lifted
// from a table row before catalog resolution.
type Candidate struct {
	ProductText string
	Quantity    float64
	QuantityRaw string
	UnitHint    string
}

var (
	rePureNumber = regexp.MustCompile(`^[\d\s.,]+$`)
	reHasLetter  = regexp.MustCompile(`\pL`)
	reCodeName   = regexp.MustCompile(`^\d+\s*(\pL.*)$`)
)

// ExtractLine pulls a candidate from one tab-delimited row of an open
// branch block. Rows with fewer than two columns, no product text or no
// usable quantity yield ok=false; that is absence of data, not an error.
func ExtractLine(line string) (Candidate, bool) {
	cols := splitColumns(line)
	if len(cols) < 2 {
		return Candidate{}, false
	}

	product := productColumn(cols)
	if product == "" {
		return Candidate{}, false
	}

	qty, raw, unit := quantityColumn(cols)
	if qty <= 0 {
		return Candidate{}, false
	}

	return Candidate{ProductText: product, Quantity: qty, QuantityRaw: raw, UnitHint: unit}, true
}

func splitColumns(line string) []string {
	parts := strings.Split(line, "\t")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// productColumn scans the first three columns: purely numeric columns
// are product codes and skipped; the first column with letters wins.
// A code glued to the name in one column keeps only the letter suffix.
func productColumn(cols []string) string {
	limit := len(cols)
	if limit > 3 {
		limit = 3
	}
	for _, col := range cols[:limit] {
		if rePureNumber.MatchString(col) {
			continue
		}
		if !reHasLetter.MatchString(col) {
			continue
		}
		// "40 KG" is a quantity cell, not a product name.
		if util.ParseQty(col).Qty != nil {
			continue
		}
		if m := reCodeName.FindStringSubmatch(col); m != nil {
			return strings.TrimSpace(m[1])
		}
		return col
	}
	return ""
}

// quantityColumn prefers a column carrying an explicit unit ("925.00
// KILOS", "12 PZ"); failing that, the first column that is a bare
// positive number below the order-quantity cap.
func quantityColumn(cols []string) (qty float64, raw string, unit string) {
	for _, col := range cols {
		parsed := util.ParseQty(col)
		if parsed.Qty != nil {
			return *parsed.Qty, *parsed.QtyRaw, *parsed.Unit
		}
	}
	for _, col := range cols {
		if n := util.ParseNumber(col); n != nil {
			return *n, strings.TrimSpace(col), ""
		}
	}
	return 0, "", ""
}
