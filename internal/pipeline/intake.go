package pipeline

import (
	"bytes"
	"regexp"
	"strings"

	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"ordena/internal"
	"ordena/internal/util"
)

// RawEmail is a decoded RFC822 message, ready to become an EmailInput.
type RawEmail struct {
	MessageID   string
	Subject     string
	From        string
	Text        string
	HTML        string
	Attachments []internal.Attachment
}

// ReadRawEmail decodes a raw MIME message. Transport is someone else's
// problem; this only unpacks what was already delivered.
func ReadRawEmail(raw []byte) (RawEmail, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return RawEmail{}, err
	}

	out := RawEmail{
		MessageID: strings.Trim(env.GetHeader("Message-Id"), "<>"),
		Subject:   env.GetHeader("Subject"),
		From:      env.GetHeader("From"),
		Text:      env.Text,
		HTML:      env.HTML,
	}
	for _, att := range env.Attachments {
		name := strings.TrimSpace(att.FileName)
		if name == "" {
			name = "attachment"
		}
		out.Attachments = append(out.Attachments, internal.Attachment{FileName: name, Content: att.Content})
	}
	return out, nil
}

// AttachmentLines flattens XLSX and PDF purchase orders into the same
// tab-delimited line stream the email body produces, so one segmenter
// and extractor serve all sources. Unreadable attachments are skipped.
func AttachmentLines(atts []internal.Attachment) []sourcedLine {
	var out []sourcedLine
	for _, att := range atts {
		lower := strings.ToLower(att.FileName)
		switch {
		case strings.HasSuffix(lower, ".xlsx") || strings.HasSuffix(lower, ".xls"):
			lines, err := xlsxLines(att.Content)
			if err != nil {
				continue
			}
			for _, l := range lines {
				out = append(out, sourcedLine{text: l, source: internal.SourceXLSAttachment})
			}
		case strings.HasSuffix(lower, ".pdf"):
			lines, err := pdfLines(att.Content)
			if err != nil {
				continue
			}
			for _, l := range lines {
				out = append(out, sourcedLine{text: l, source: internal.SourcePDFAttachment})
			}
		}
	}
	return out
}

func xlsxLines(content []byte) ([]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		for _, row := range rows {
			cells := make([]string, 0, len(row))
			for _, c := range row {
				cells = append(cells, util.NormalizeSpaces(c))
			}
			joined := strings.TrimSpace(strings.Join(cells, "\t"))
			if joined != "" {
				out = append(out, joined)
			}
		}
	}
	return out, nil
}

var reWideGap = regexp.MustCompile(`\s{2,}`)

func pdfLines(content []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, err
	}

	var out []string
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		for _, line := range util.SplitLines(text) {
			// Column gaps in extracted PDF text arrive as space runs.
			out = append(out, reWideGap.ReplaceAllString(line, "\t"))
		}
	}
	return out, nil
}
