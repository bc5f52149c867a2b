package pipeline

import (
	"context"

	"ordena/internal"
	"ordena/internal/config"
	"ordena/internal/util"
)

// Parser converts one email into a ParsedOrder. The rule-based parser
// and the AI fallback both satisfy it; the processing service selects
// between them.
type Parser interface {
	Parse(ctx context.Context, input internal.EmailInput) (internal.ParsedOrder, error)
}

// RuleParser is the deterministic path: strip markup, segment branches,
// extract lines, resolve against the catalog. CPU-bound, no suspension
// points, safe to run concurrently across independent emails.
type RuleParser struct {
	cfg    config.Config
	policy config.Policy
}

func NewRuleParser(cfg config.Config, policy config.Policy) *RuleParser {
	return &RuleParser{cfg: cfg, policy: policy}
}

type sourcedLine struct {
	text   string
	source internal.LineSource
}

func (p *RuleParser) Parse(_ context.Context, input internal.EmailInput) (internal.ParsedOrder, error) {
	body := input.EmailBody
	if input.EmailHTML != "" {
		body = input.EmailHTML
	}
	text := StripHTML(body)

	lines := make([]sourcedLine, 0, 64)
	for _, l := range util.SplitLines(text) {
		lines = append(lines, sourcedLine{text: l, source: internal.SourceEmailBody})
	}
	lines = append(lines, AttachmentLines(input.Attachments)...)

	texts := make([]string, len(lines))
	sources := map[string]internal.LineSource{}
	for i, l := range lines {
		texts[i] = l.text
		if _, seen := sources[l.text]; !seen {
			sources[l.text] = l.source
		}
	}

	blocks := SegmentBranches(texts)
	matcher := NewMatcher(p.cfg, p.policy, input.Catalog)

	order := internal.ParsedOrder{SourceEmailID: input.EmailID}
	totalLines, matchedLines := 0, 0

	for _, block := range blocks {
		branch := internal.ParsedBranch{
			NameAsWritten:   block.NameAsWritten,
			MatchedBranchID: MatchBranch(block.NameAsWritten, input.Branches),
			DeliveryDate:    block.DeliveryDate,
		}
		if branch.DeliveryDate == nil {
			branch.DeliveryDate = subjectDeliveryDate(input.EmailSubject)
		}

		for _, raw := range block.Lines {
			cand, ok := ExtractLine(raw)
			if !ok {
				continue
			}
			source := sources[raw]
			if source == "" {
				source = internal.SourceEmailBody
			}
			line := matcher.Line(cand, source)
			branch.Lines = append(branch.Lines, line)
			totalLines++
			if line.MatchedProductID != nil {
				matchedLines++
			}
		}

		if len(branch.Lines) > 0 {
			order.Branches = append(order.Branches, branch)
		}
	}

	if totalLines > 0 {
		order.Confidence = float64(matchedLines) / float64(totalLines)
	}
	return order, nil
}

func subjectDeliveryDate(subject string) *string {
	if date, ok := deliveryDateFromLine(subject, timeNow()); ok {
		return &date
	}
	return nil
}
