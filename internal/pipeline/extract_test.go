package pipeline

import "testing"

func TestExtractLine(t *testing.T) {
	cases := []struct {
		name        string
		line        string
		wantProduct string
		wantQty     float64
		wantUnit    string
	}{
		{
			name:        "code product weight columns",
			line:        "123\tQUESO OAXACA 400G\t925.00 KILOS",
			wantProduct: "QUESO OAXACA 400G",
			wantQty:     925,
			wantUnit:    "kg",
		},
		{
			name:        "code glued to name",
			line:        "123 QUESO PANELA\t12 PIEZAS",
			wantProduct: "QUESO PANELA",
			wantQty:     12,
			wantUnit:    "pz",
		},
		{
			name:        "bare number quantity",
			line:        "CREMA BOTE\t24",
			wantProduct: "CREMA BOTE",
			wantQty:     24,
			wantUnit:    "",
		},
		{
			name:        "quantity before product",
			line:        "40 KG\tMANTEQUILLA BARRA",
			wantProduct: "MANTEQUILLA BARRA",
			wantQty:     40,
			wantUnit:    "kg",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cand, ok := ExtractLine(tc.line)
			if !ok {
				t.Fatalf("not extracted")
			}
			if cand.ProductText != tc.wantProduct {
				t.Fatalf("product=%q want %q", cand.ProductText, tc.wantProduct)
			}
			if cand.Quantity != tc.wantQty {
				t.Fatalf("qty=%v want %v", cand.Quantity, tc.wantQty)
			}
			if cand.UnitHint != tc.wantUnit {
				t.Fatalf("unit=%q want %q", cand.UnitHint, tc.wantUnit)
			}
		})
	}
}

func TestExtractLineRejects(t *testing.T) {
	cases := []string{
		"QUESO OAXACA",            // single column
		"QUESO\tOAXACA",           // no quantity
		"123\t456",                // no product text
		"QUESO OAXACA\t123456",    // number too large for a quantity
		"TOTAL\t0",                // zero quantity
	}
	for _, line := range cases {
		if cand, ok := ExtractLine(line); ok {
			t.Fatalf("%q extracted as %+v", line, cand)
		}
	}
}
