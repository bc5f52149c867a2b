package pipeline

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	reCellRuns  = regexp.MustCompile(`[ \t]*\t[ \t]*`)
	reSpaceRuns = regexp.MustCompile(` +`)
	reNumEntity = regexp.MustCompile(`&#(\d{1,4});`)

	entityReplacer = strings.NewReplacer(
		"&nbsp;", " ",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&amp;", "&",
	)
)

// StripHTML flattens an email body into plain text with table structure
// kept as tabs and newlines. One left-to-right scan: style/script
// content is dropped wholesale, a closing row or paragraph tag (or any
// line break) emits "\n", a closing cell tag emits "\t", every other tag
// vanishes and its trailing text is kept. Plain-text bodies pass through
// with only entity decoding and whitespace collapsing.
func StripHTML(input string) string {
	var b strings.Builder
	b.Grow(len(input))

	segments := strings.Split(input, "<")
	skipUntil := ""
	b.WriteString(segments[0])

	for _, seg := range segments[1:] {
		end := strings.IndexByte(seg, '>')
		if end < 0 {
			// Bare '<' in text, not a tag.
			if skipUntil == "" {
				b.WriteByte('<')
				b.WriteString(seg)
			}
			continue
		}

		tag := strings.ToLower(strings.TrimSpace(seg[:end]))
		text := seg[end+1:]
		name, closing := tagName(tag)

		if skipUntil != "" {
			if closing && name == skipUntil {
				skipUntil = ""
			}
			continue
		}

		switch {
		case name == "style" || name == "script":
			if !closing {
				skipUntil = name
			}
		case name == "br":
			b.WriteByte('\n')
		case closing && (name == "tr" || name == "p"):
			b.WriteByte('\n')
		case closing && (name == "td" || name == "th"):
			b.WriteByte('\t')
		}

		b.WriteString(text)
	}

	return collapse(decodeEntities(b.String()))
}

func tagName(tag string) (name string, closing bool) {
	if strings.HasPrefix(tag, "/") {
		closing = true
		tag = tag[1:]
	}
	tag = strings.TrimSuffix(tag, "/")
	if i := strings.IndexAny(tag, " \t\n\r"); i >= 0 {
		tag = tag[:i]
	}
	return strings.TrimSpace(tag), closing
}

func decodeEntities(text string) string {
	text = reNumEntity.ReplaceAllStringFunc(text, func(m string) string {
		n, err := strconv.Atoi(m[2 : len(m)-1])
		if err != nil || n <= 0 {
			return " "
		}
		return string(rune(n))
	})
	return entityReplacer.Replace(text)
}

func collapse(text string) string {
	text = strings.ReplaceAll(text, " ", " ")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = reCellRuns.ReplaceAllString(text, "\t")
	text = reSpaceRuns.ReplaceAllString(text, " ")
	return text
}

// TruncateForFallback caps text handed to the AI fallback. The rule
// parser always sees the full text; only the network call is bounded.
// The cut lands on a line boundary when one exists inside the cap.
func TruncateForFallback(text string, maxBytes int) string {
	if maxBytes <= 0 || len(text) <= maxBytes {
		return text
	}
	cut := text[:maxBytes]
	if i := strings.LastIndexByte(cut, '\n'); i > 0 {
		cut = cut[:i]
	}
	return cut
}
