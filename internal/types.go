package internal

import (
	"github.com/shopspring/decimal"
)

type LineSource string

const (
	SourceEmailBody     LineSource = "email_body"
	SourceXLSAttachment LineSource = "xlsx_attachment"
	SourcePDFAttachment LineSource = "pdf_attachment"
	SourceAIFallback    LineSource = "ai_fallback"
)

type MatchKind string

const (
	MatchExact   MatchKind = "exact"
	MatchPartial MatchKind = "partial"
	MatchNone    MatchKind = "none"
)

// CatalogProduct is one sellable product as the distributor prices it.
// WeightPerUnit is kg per discrete sale unit and is only meaningful when
// PricedByWeight is false.
type CatalogProduct struct {
	ID             int
	Name           string
	SaleUnit       string
	PricedByWeight bool
	WeightPerUnit  *float64
	AppliesTaxA    bool
	AppliesTaxB    bool
	QuotedPrice    *decimal.Decimal
}

// Branch is a registered client delivery location.
type Branch struct {
	ID   int
	Name string
}

// ParsedLine is one extracted order line, raw and normalized side by side.
type ParsedLine struct {
	Source               LineSource
	RawProductText       string
	RawQuantity          string
	RawUnitHint          string
	MatchedProductID     *int
	MatchKind            MatchKind
	Quantity             float64
	Unit                 string
	RequiresVerification bool
	UnitPrice            *decimal.Decimal
	Subtotal             decimal.Decimal
	Annotation           *string
	Notes                *string
}

// ParsedBranch groups the lines extracted for one branch block.
type ParsedBranch struct {
	NameAsWritten   string
	MatchedBranchID *int
	DeliveryDate    *string // YYYY-MM-DD
	Lines           []ParsedLine
}

// ParsedOrder is the ephemeral result of parsing a single email.
type ParsedOrder struct {
	SourceEmailID string
	Branches      []ParsedBranch
	Confidence    float64
	GeneralNotes  string
}

type DraftStatus string

const (
	DraftOpen      DraftStatus = "draft"
	DraftFinalized DraftStatus = "finalized"
)

// DraftLine is one accumulated product line inside a cumulative draft.
type DraftLine struct {
	ProductID            int
	ProductName          string
	SaleUnit             string
	Quantity             float64
	UnitPrice            decimal.Decimal
	Subtotal             decimal.Decimal
	RequiresVerification bool
	Verified             bool
	VerifiedWeight       *float64
	VerifiedUnits        *float64
}

// DraftTotals are always recomputed from the current line subtotals.
type DraftTotals struct {
	Net   decimal.Decimal
	Tax   decimal.Decimal
	Grand decimal.Decimal
}

// DraftOrder is the running sales-order-in-progress for one
// (client, branch, delivery date) key. At most one exists per key while
// its status is draft.
type DraftOrder struct {
	ID                string
	ClientID          string
	BranchID          int
	BranchName        string
	DeliveryDate      string // YYYY-MM-DD
	Status            DraftStatus
	ProcessedEmailIDs []string
	Lines             map[int]DraftLine
	Totals            DraftTotals
}

// HasProcessed reports whether the draft already absorbed this email.
func (d DraftOrder) HasProcessed(emailID string) bool {
	for _, id := range d.ProcessedEmailIDs {
		if id == emailID {
			return true
		}
	}
	return false
}

// EmailInput is the pipeline's input contract for one email.
type EmailInput struct {
	EmailID      string
	EmailBody    string
	EmailHTML    string
	EmailSubject string
	EmailFrom    string
	ClientID     string
	Catalog      []CatalogProduct
	Branches     []Branch
	Attachments  []Attachment
}

// Attachment is a decoded email attachment handed to the intake layer.
type Attachment struct {
	FileName string
	Content  []byte
}

// SalesOrderRef identifies a downstream sales order created at finalize.
type SalesOrderRef struct {
	ID       string
	DraftID  string
	BranchID int
}
