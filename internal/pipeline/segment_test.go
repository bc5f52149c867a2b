package pipeline

import (
	"testing"
	"time"

	"ordena/internal"
)

func pinTime(t *testing.T, v time.Time) {
	t.Helper()
	old := timeNow
	timeNow = func() time.Time { return v }
	t.Cleanup(func() { timeNow = old })
}

func TestSegmentBranches(t *testing.T) {
	pinTime(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	lines := []string{
		"BUEN DIA, LES MANDO EL PEDIDO",
		"VENTAS TOTALES PRODUCTO A ENTREGAR",
		"12 DALLAS",
		"ENTREGA 12/05",
		"QUESO OAXACA\t925.00 KILOS",
		"7 NORTE CENTRO",
		"CREMA BOTE\t24 PIEZAS",
		"TOTAL GENERAL\t949",
	}

	blocks := SegmentBranches(lines)
	if len(blocks) != 2 {
		t.Fatalf("blocks=%d", len(blocks))
	}
	if blocks[0].NameAsWritten != "DALLAS" {
		t.Fatalf("block 1 name=%q", blocks[0].NameAsWritten)
	}
	if blocks[0].DeliveryDate == nil || *blocks[0].DeliveryDate != "2026-05-12" {
		t.Fatalf("block 1 date=%v", blocks[0].DeliveryDate)
	}
	if len(blocks[0].Lines) != 1 || blocks[0].Lines[0] != "QUESO OAXACA\t925.00 KILOS" {
		t.Fatalf("block 1 lines=%q", blocks[0].Lines)
	}
	if blocks[1].NameAsWritten != "NORTE CENTRO" {
		t.Fatalf("block 2 name=%q", blocks[1].NameAsWritten)
	}
	if len(blocks[1].Lines) != 1 {
		t.Fatalf("block 2 lines=%q", blocks[1].Lines)
	}
}

func TestSegmentBranchesNoHeader(t *testing.T) {
	blocks := SegmentBranches([]string{"QUESO OAXACA\t10 KILOS", "CREMA\t5"})
	if len(blocks) != 0 {
		t.Fatalf("text before any header must be discarded, got %d blocks", len(blocks))
	}
}

func TestBranchHeaderRejectsLongLines(t *testing.T) {
	if _, ok := branchHeaderName("12 SUCURSAL CON UN NOMBRE DEMASIADO LARGO"); ok {
		t.Fatalf("over-length header accepted")
	}
	if _, ok := branchHeaderName("925.00 KILOS"); ok {
		t.Fatalf("quantity cell treated as header")
	}
	if name, ok := branchHeaderName("3 CD JUÁREZ"); !ok || name != "CD JUÁREZ" {
		t.Fatalf("accented header: %q %v", name, ok)
	}
	// 28 runes but 31 bytes; the cap counts characters, not bytes.
	if name, ok := branchHeaderName("12 PEÑÓN MANZANILLO MAZATLÁN"); !ok || name != "PEÑÓN MANZANILLO MAZATLÁN" {
		t.Fatalf("accented header near the cap: %q %v", name, ok)
	}
}

func TestDeliveryDateFromLine(t *testing.T) {
	now := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)

	if date, ok := deliveryDateFromLine("FECHA DE ENTREGA 02/09", now); !ok || date != "2026-09-02" {
		t.Fatalf("got %q %v", date, ok)
	}
	if date, ok := deliveryDateFromLine("ENTREGA 15/01/27", now); !ok || date != "2027-01-15" {
		t.Fatalf("explicit year: %q %v", date, ok)
	}
	if _, ok := deliveryDateFromLine("12/05 SIN CONTEXTO", now); ok {
		t.Fatalf("bare date without keyword accepted")
	}
	if _, ok := deliveryDateFromLine("ENTREGA 45/05", now); ok {
		t.Fatalf("out-of-range day accepted")
	}
}

func TestMatchBranch(t *testing.T) {
	branches := []internal.Branch{{ID: 1, Name: "DALLAS"}, {ID: 2, Name: "NORTE CENTRO"}}

	if id := MatchBranch("Dallas", branches); id == nil || *id != 1 {
		t.Fatalf("exact: %v", id)
	}
	if id := MatchBranch("SUC NORTE CENTRO", branches); id == nil || *id != 2 {
		t.Fatalf("substring: %v", id)
	}
	if id := MatchBranch("TULSA", branches); id != nil {
		t.Fatalf("unknown branch matched: %v", *id)
	}
}
