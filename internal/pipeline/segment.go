package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"ordena/internal"
	"ordena/internal/util"
)

// BranchBlock is the raw text belonging to one branch header, before
// line extraction.
type BranchBlock struct {
	NameAsWritten string
	DeliveryDate  *string
	Lines         []string
}

var (
	reBranchHeader = regexp.MustCompile(`^(\d+)\s*([A-ZÁÉÍÓÚÜÑ]+(?: [A-ZÁÉÍÓÚÜÑ]+){0,2})$`)
	reDateToken    = regexp.MustCompile(`(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?`)

	productWords = []string{"PRODUCTO", "PRODUCT"}
	deliverWords = []string{"ENTREGAR", "PEDIDO", "DELIVER", "ORDER"}
)

// timeNow is swapped in tests that pin the delivery-date year.
var timeNow = time.Now

// SegmentBranches splits normalized text lines into per-branch blocks.
// A branch header is a short line of digits followed by 1-3 uppercase
// words; everything before the first header is discarded. Table
// header/footer lines are skipped wherever they appear.
func SegmentBranches(lines []string) []BranchBlock {
	var blocks []BranchBlock
	var open *BranchBlock

	for _, line := range lines {
		if isTableFurniture(line) {
			continue
		}
		if name, ok := branchHeaderName(line); ok {
			if open != nil {
				blocks = append(blocks, *open)
			}
			open = &BranchBlock{NameAsWritten: name}
			continue
		}
		if open == nil {
			continue
		}
		if date, ok := deliveryDateFromLine(line, timeNow()); ok && open.DeliveryDate == nil {
			open.DeliveryDate = &date
			continue
		}
		open.Lines = append(open.Lines, line)
	}
	if open != nil {
		blocks = append(blocks, *open)
	}
	return blocks
}

func branchHeaderName(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if utf8.RuneCountInString(trimmed) > 30 {
		return "", false
	}
	m := reBranchHeader.FindStringSubmatch(trimmed)
	if m == nil {
		return "", false
	}
	return m[2], true
}

// isTableFurniture matches column headers and grand-total footers that
// free-form emails scatter through the table body.
func isTableFurniture(line string) bool {
	upper := strings.ToUpper(line)
	if strings.Contains(upper, "TOTAL GENERAL") {
		return true
	}
	if !containsAny(upper, productWords) {
		return false
	}
	return containsAny(upper, deliverWords)
}

func containsAny(s string, words []string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// deliveryDateFromLine picks up "ENTREGA 12/05" style annotations. Bare
// dates elsewhere are left alone; too many numeric cells look like them.
func deliveryDateFromLine(line string, now time.Time) (string, bool) {
	upper := strings.ToUpper(line)
	if !strings.Contains(upper, "ENTREGA") && !strings.Contains(upper, "FECHA") {
		return "", false
	}
	m := reDateToken.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}

	day, _ := strconv.Atoi(m[1])
	month, _ := strconv.Atoi(m[2])
	if day < 1 || day > 31 || month < 1 || month > 12 {
		return "", false
	}

	year := now.Year()
	if m[3] != "" {
		y, _ := strconv.Atoi(m[3])
		if y < 100 {
			y += 2000
		}
		year = y
	}
	return fmt.Sprintf("%04d-%02d-%02d", year, month, day), true
}

// MatchBranch resolves a branch name as written in the email against the
// client's registered branches: exact normalized equality first, then
// substring containment either direction.
func MatchBranch(nameAsWritten string, branches []internal.Branch) *int {
	norm := util.NormalizeName(nameAsWritten)
	if norm == "" {
		return nil
	}

	for _, b := range branches {
		if util.NormalizeName(b.Name) == norm {
			return util.IntPtr(b.ID)
		}
	}
	for _, b := range branches {
		bn := util.NormalizeName(b.Name)
		if bn == "" {
			continue
		}
		if strings.Contains(bn, norm) || strings.Contains(norm, bn) {
			return util.IntPtr(b.ID)
		}
	}
	return nil
}
