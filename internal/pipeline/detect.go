package pipeline

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

type DetectResult struct {
	IsOrder bool
	Score   float64
	Reason  string
}

var orderKeywords = []string{"pedido", "orden", "sucursal", "entrega", "kilos", "piezas", "producto"}

// DetectOrderShape scores whether an email looks like a purchase order
// before any parsing work is spent on it. Keyword hits, quantity
// density, order-like attachments and HTML table mass all add to the
// score; the threshold decides.
func DetectOrderShape(subject, text, html string, attachmentNames []string) DetectResult {
	subject = strings.ToLower(subject)
	text = strings.ToLower(text)

	score := 0.0
	for _, kw := range orderKeywords {
		if strings.Contains(subject, kw) {
			score += 0.2
		}
		if strings.Contains(text, kw) || strings.Contains(strings.ToLower(html), kw) {
			score += 0.1
		}
	}

	qtyHits := countNumberRuns(text)
	if qtyHits >= 4 {
		score += 0.4
	} else if qtyHits >= 2 {
		score += 0.2
	}

	for _, name := range attachmentNames {
		ln := strings.ToLower(name)
		if strings.HasSuffix(ln, ".xlsx") || strings.HasSuffix(ln, ".xls") || strings.HasSuffix(ln, ".pdf") {
			score += 0.25
			break
		}
	}

	if rows := htmlTableRows(html); rows >= 3 {
		score += 0.25
	}
	if score > 1 {
		score = 1
	}

	isOrder := score >= 0.45
	reason := "rules_negative"
	if isOrder {
		reason = "rules_positive"
	}
	return DetectResult{IsOrder: isOrder, Score: score, Reason: reason}
}

func htmlTableRows(html string) int {
	if html == "" || !strings.Contains(strings.ToLower(html), "<table") {
		return 0
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 0
	}
	return doc.Find("table tr").Length()
}

func countNumberRuns(text string) int {
	count := 0
	for i := 0; i < len(text); i++ {
		if text[i] >= '0' && text[i] <= '9' {
			count++
			for i+1 < len(text) && text[i+1] >= '0' && text[i+1] <= '9' {
				i++
			}
		}
	}
	return count
}
