package fallback

import (
	"encoding/json"
	"fmt"
	"strings"

	"ordena/internal"
)

// wireOrder is the fixed output schema the extraction tool must emit.
type wireOrder struct {
	Branches     []wireBranch `json:"branches"`
	Confidence   float64      `json:"confidence"`
	GeneralNotes string       `json:"general_notes,omitempty"`
}

type wireBranch struct {
	BranchName   string     `json:"branch_name"`
	DeliveryDate string     `json:"delivery_date,omitempty"`
	Lines        []wireLine `json:"lines"`
}

type wireLine struct {
	ProductText    string  `json:"product_text"`
	Quantity       float64 `json:"quantity"`
	Unit           string  `json:"unit,omitempty"`
	SuggestedPrice float64 `json:"suggested_price,omitempty"`
	Notes          string  `json:"notes,omitempty"`
	CatalogID      int     `json:"catalog_id,omitempty"`
}

const toolName = "record_order"

// toolSchema is the JSON schema for the record_order tool input.
func toolSchema() map[string]any {
	line := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"product_text":    map[string]any{"type": "string", "description": "product wording as written in the email"},
			"quantity":        map[string]any{"type": "number"},
			"unit":            map[string]any{"type": "string", "description": "kg or pz when stated"},
			"suggested_price": map[string]any{"type": "number"},
			"notes":           map[string]any{"type": "string"},
			"catalog_id":      map[string]any{"type": "integer", "description": "matching catalog id when certain"},
		},
		"required": []string{"product_text", "quantity"},
	}
	branch := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"branch_name":   map[string]any{"type": "string"},
			"delivery_date": map[string]any{"type": "string", "description": "YYYY-MM-DD"},
			"lines":         map[string]any{"type": "array", "items": line},
		},
		"required": []string{"branch_name", "lines"},
	}
	return map[string]any{
		"branches":      map[string]any{"type": "array", "items": branch},
		"confidence":    map[string]any{"type": "number", "minimum": 0, "maximum": 1},
		"general_notes": map[string]any{"type": "string"},
	}
}

const systemPrompt = `You extract wholesale purchase orders from free-form emails sent by
grocery clients. Each email may order for several branches (sucursales).
Quantities appear in kilograms (KILOS, KG) or pieces (PIEZAS, PZ).
Record every order line exactly as written; do not invent products.
Only set catalog_id when the catalog entry is an unambiguous match.`

// buildPrompt assembles the user turn: the normalized email text plus
// the client's catalog subset for grounding.
func buildPrompt(text string, catalog []internal.CatalogProduct) string {
	type catRow struct {
		ID       int    `json:"id"`
		Name     string `json:"name"`
		SaleUnit string `json:"sale_unit"`
		ByWeight bool   `json:"priced_by_weight"`
	}
	rows := make([]catRow, 0, len(catalog))
	for _, p := range catalog {
		rows = append(rows, catRow{ID: p.ID, Name: p.Name, SaleUnit: p.SaleUnit, ByWeight: p.PricedByWeight})
	}
	catJSON, _ := json.Marshal(rows)

	var b strings.Builder
	fmt.Fprintf(&b, "Client catalog:\n%s\n\n", catJSON)
	fmt.Fprintf(&b, "Email text:\n%s\n", text)
	return b.String()
}
