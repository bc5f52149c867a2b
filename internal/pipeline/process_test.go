package pipeline

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"ordena/internal"
	"ordena/internal/config"
	"ordena/internal/storage"
	"ordena/internal/util"
)

func rawEmail(subject, body string) []byte {
	return []byte(strings.Join([]string{
		"Message-Id: <pedido-1@cliente.mx>",
		"Subject: " + subject,
		"From: compras@cliente.mx",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n"))
}

func smokeDB(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "app.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	products := []internal.CatalogProduct{
		{ID: 1, Name: "QUESO OAXACA", SaleUnit: "pz", WeightPerUnit: util.FloatPtr(25), QuotedPrice: decPtr("80")},
		{ID: 2, Name: "CREMA BOTE 900ML", SaleUnit: "pz", QuotedPrice: decPtr("35.50")},
	}
	if err := db.UpsertProducts(products); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertBranches([]internal.Branch{{ID: 10, Name: "DALLAS"}}); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestProcessRawSmoke(t *testing.T) {
	pinTime(t, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))
	db := smokeDB(t)

	cfg := config.Config{MatchMinOverlap: 0.5}
	svc := NewProcessingService(db, cfg, config.DefaultPolicy(), nil)

	body := strings.Join([]string{
		"BUEN DIA, PEDIDO DE LA SEMANA",
		"12 DALLAS",
		"ENTREGA 12/05",
		"QUESO OAXACA\t925.00 KILOS",
		"CREMA BOTE\t24 PIEZAS",
	}, "\n")

	parsed, err := svc.ProcessRaw(context.Background(), rawEmail("Pedido sucursales", body), "c1")
	if err != nil {
		t.Fatal(err)
	}

	if parsed.SourceEmailID != "pedido-1@cliente.mx" {
		t.Fatalf("email id=%q", parsed.SourceEmailID)
	}
	if len(parsed.Branches) != 1 {
		t.Fatalf("branches=%d", len(parsed.Branches))
	}
	branch := parsed.Branches[0]
	if branch.MatchedBranchID == nil || *branch.MatchedBranchID != 10 {
		t.Fatalf("branch=%v", branch.MatchedBranchID)
	}
	if len(branch.Lines) != 2 || MatchedLineCount(parsed.Branches) != 2 {
		t.Fatalf("lines=%+v", branch.Lines)
	}
}

func TestProcessRawSkipsNonOrders(t *testing.T) {
	db := smokeDB(t)
	svc := NewProcessingService(db, config.Config{MatchMinOverlap: 0.5}, config.DefaultPolicy(), nil)

	parsed, err := svc.ProcessRaw(context.Background(), rawEmail("Re: saludos", "gracias por su visita"), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if len(parsed.Branches) != 0 {
		t.Fatalf("branches=%+v", parsed.Branches)
	}
	if parsed.GeneralNotes == "" {
		t.Fatalf("skip reason missing")
	}
}

func TestProcessRawNoMatchesWithoutFallback(t *testing.T) {
	db := smokeDB(t)
	svc := NewProcessingService(db, config.Config{MatchMinOverlap: 0.5}, config.DefaultPolicy(), nil)

	body := "12 DALLAS\nPRODUCTO INVENTADO\t50 KILOS\nOTRO DESCONOCIDO\t10 PIEZAS\n"
	_, err := svc.ProcessRaw(context.Background(), rawEmail("Pedido sucursal", body), "c1")
	if err == nil {
		t.Fatal("expected an error when nothing matches and no fallback is configured")
	}
}

type stubParser struct {
	order internal.ParsedOrder
}

func (s stubParser) Parse(context.Context, internal.EmailInput) (internal.ParsedOrder, error) {
	return s.order, nil
}

func TestProcessRawEscalatesToFallback(t *testing.T) {
	db := smokeDB(t)

	fb := stubParser{order: internal.ParsedOrder{
		SourceEmailID: "pedido-1@cliente.mx",
		Confidence:    0.8,
		Branches: []internal.ParsedBranch{{
			NameAsWritten:   "DALLAS",
			MatchedBranchID: util.IntPtr(10),
			Lines: []internal.ParsedLine{{
				Source:           internal.SourceAIFallback,
				MatchedProductID: util.IntPtr(1),
				MatchKind:        internal.MatchExact,
				Quantity:         2,
			}},
		}},
	}}
	svc := NewProcessingService(db, config.Config{MatchMinOverlap: 0.5}, config.DefaultPolicy(), fb)

	body := "12 DALLAS\nPRODUCTO INVENTADO\t50 KILOS\nOTRO DESCONOCIDO\t10 PIEZAS\n"
	parsed, err := svc.ProcessRaw(context.Background(), rawEmail("Pedido sucursal", body), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if MatchedLineCount(parsed.Branches) != 1 {
		t.Fatalf("fallback output not used: %+v", parsed)
	}
	if parsed.Branches[0].Lines[0].Source != internal.SourceAIFallback {
		t.Fatalf("source=%s", parsed.Branches[0].Lines[0].Source)
	}
}
