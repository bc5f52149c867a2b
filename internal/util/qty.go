package util

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	qtyWithUnit = regexp.MustCompile(`(?i)(?:^|[^0-9.,])(\d{1,3}(?:[\s.,]\d{3})+|\d+(?:[.,]\d+)?)\s*(KILOS?|KGS?\.?|PIEZAS?|PZS?\.?)(?:$|[^A-Za-z])`)
	bareNumber  = regexp.MustCompile(`^\d{1,3}(?:[\s.,]\d{3})+$|^\d+(?:[.,]\d+)?$`)
)

type ParsedQty struct {
	Qty    *float64
	Unit   *string
	QtyRaw *string
}

// ParseQty extracts a quantity written together with a unit word, e.g.
// "925.00 KILOS" or "12 PZ". Absence of a unit yields no result; callers
// fall back to ParseNumber for bare numeric columns.
func ParseQty(input string) ParsedQty {
	line := strings.ReplaceAll(input, " ", " ")
	m := qtyWithUnit.FindStringSubmatch(line)
	if len(m) == 0 {
		return ParsedQty{}
	}

	token := strings.TrimSpace(m[1])
	parsed, err := strconv.ParseFloat(normalizeNumericToken(token), 64)
	if err != nil {
		return ParsedQty{}
	}

	unit := NormalizeUnit(m[2])
	return ParsedQty{Qty: FloatPtr(parsed), Unit: &unit, QtyRaw: &token}
}

// ParseNumber parses a column that is nothing but a positive number.
// Values of 100000 and above are rejected: they are codes or totals,
// never order quantities.
func ParseNumber(input string) *float64 {
	compact := strings.TrimSpace(strings.ReplaceAll(input, " ", " "))
	if compact == "" || !bareNumber.MatchString(compact) {
		return nil
	}
	parsed, err := strconv.ParseFloat(normalizeNumericToken(compact), 64)
	if err != nil || parsed <= 0 || parsed >= 100000 {
		return nil
	}
	return FloatPtr(parsed)
}

// NormalizeUnit maps unit spellings to canonical labels: "kg" or "pz".
func NormalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSuffix(strings.TrimSpace(unit), "."))
	switch u {
	case "kilo", "kilos", "kg", "kgs":
		return "kg"
	case "pieza", "piezas", "pz", "pzs":
		return "pz"
	default:
		return u
	}
}

// IsWeightUnit reports whether a unit hint denotes kilograms.
func IsWeightUnit(unit string) bool {
	return NormalizeUnit(unit) == "kg"
}

func normalizeNumericToken(token string) string {
	compact := strings.ReplaceAll(token, " ", "")
	if regexp.MustCompile(`^\d{1,3}(?:\.\d{3})+$`).MatchString(compact) {
		return strings.ReplaceAll(compact, ".", "")
	}
	if regexp.MustCompile(`^\d{1,3}(?:,\d{3})+$`).MatchString(compact) {
		return strings.ReplaceAll(compact, ",", "")
	}
	if strings.Contains(compact, ",") && !strings.Contains(compact, ".") {
		return strings.ReplaceAll(compact, ",", ".")
	}
	return compact
}
