package pipeline

import (
	"bytes"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"ordena/internal"
)

func mkXLSX(t *testing.T, rows [][]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	if _, err := f.WriteTo(buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestAttachmentLinesXLSX(t *testing.T) {
	blob := mkXLSX(t, [][]any{
		{"12 DALLAS"},
		{"QUESO OAXACA", "925.00 KILOS"},
		{"CREMA BOTE", 24},
	})

	lines := AttachmentLines([]internal.Attachment{{FileName: "pedido.xlsx", Content: blob}})
	if len(lines) != 3 {
		t.Fatalf("lines=%d: %+v", len(lines), lines)
	}
	for _, l := range lines {
		if l.source != internal.SourceXLSAttachment {
			t.Fatalf("source=%s", l.source)
		}
	}
	if lines[1].text != "QUESO OAXACA\t925.00 KILOS" {
		t.Fatalf("row=%q", lines[1].text)
	}
}

func TestAttachmentLinesSkipsUnreadable(t *testing.T) {
	atts := []internal.Attachment{
		{FileName: "roto.xlsx", Content: []byte("not a spreadsheet")},
		{FileName: "roto.pdf", Content: []byte("not a pdf")},
		{FileName: "foto.jpg", Content: []byte{0xff, 0xd8}},
	}
	if lines := AttachmentLines(atts); len(lines) != 0 {
		t.Fatalf("lines=%+v", lines)
	}
}

func TestReadRawEmail(t *testing.T) {
	raw := strings.Join([]string{
		"Message-Id: <pedido-123@cliente.mx>",
		"Subject: Pedido Dallas",
		"From: compras@cliente.mx",
		"Content-Type: text/plain; charset=utf-8",
		"",
		"12 DALLAS",
		"QUESO OAXACA\t925.00 KILOS",
		"",
	}, "\r\n")

	mail, err := ReadRawEmail([]byte(raw))
	if err != nil {
		t.Fatal(err)
	}
	if mail.MessageID != "pedido-123@cliente.mx" {
		t.Fatalf("message id=%q", mail.MessageID)
	}
	if mail.Subject != "Pedido Dallas" {
		t.Fatalf("subject=%q", mail.Subject)
	}
	if !strings.Contains(mail.Text, "QUESO OAXACA") {
		t.Fatalf("body lost: %q", mail.Text)
	}
}
