package pipeline

import (
	"context"

	"ordena/internal"
	"ordena/internal/config"
)

// ParseSnippet runs the rule path over bare text or HTML with an
// in-memory catalog, no database and no email envelope. Used by the
// one-off `run` command and handy in tests.
func ParseSnippet(cfg config.Config, policy config.Policy, body string, catalog []internal.CatalogProduct, branches []internal.Branch) internal.ParsedOrder {
	parser := NewRuleParser(cfg, policy)
	parsed, _ := parser.Parse(context.Background(), internal.EmailInput{
		EmailID:   "oneshot",
		EmailBody: body,
		Catalog:   catalog,
		Branches:  branches,
	})
	return parsed
}
