package order

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"ordena/internal"
	"ordena/internal/config"
)

// Store is the persistence surface the aggregator needs. *storage.DB
// satisfies it.
type Store interface {
	FindOpenDraft(clientID string, branchID int, deliveryDate string) (*internal.DraftOrder, error)
	GetDraft(id string) (*internal.DraftOrder, error)
	SaveDraft(draft internal.DraftOrder, orders []internal.SalesOrderRef) error
	DeleteDraft(id string) error
}

// Service applies the pure merge/verify reducers against persisted
// drafts. Each mutation is loaded, reduced and saved as a unit; SaveDraft
// runs in a single transaction underneath.
type Service struct {
	store   Store
	policy  config.Policy
	catalog map[int]internal.CatalogProduct
}

func NewService(store Store, policy config.Policy, catalog []internal.CatalogProduct) *Service {
	byID := make(map[int]internal.CatalogProduct, len(catalog))
	for _, p := range catalog {
		byID[p.ID] = p
	}
	return &Service{store: store, policy: policy, catalog: byID}
}

// MergeParsed folds every resolved branch of a parsed order into its
// cumulative draft, creating drafts on first contact. Branches without a
// registered branch match, or without a single matched line, are left
// for the review step and not merged. A mergeable branch that still
// carries unresolved lines refuses with UnresolvedLinesError before
// anything is written, unless the caller explicitly skips them.
// Reprocessing an email already in a draft's processed set is skipped,
// never double-counted.
func (s *Service) MergeParsed(parsed internal.ParsedOrder, clientID string, skipUnresolved bool) ([]internal.DraftOrder, error) {
	log := zap.L().With(zap.String("email_id", parsed.SourceEmailID), zap.String("client_id", clientID))

	for _, branch := range parsed.Branches {
		if branch.MatchedBranchID == nil || !hasMatchedLine(branch) {
			continue
		}
		if texts := unresolvedTexts(branch); len(texts) > 0 {
			if !skipUnresolved {
				return nil, &UnresolvedLinesError{Branch: branch.NameAsWritten, Texts: texts}
			}
			log.Warn("unresolved lines skipped by merge",
				zap.String("branch", branch.NameAsWritten),
				zap.Strings("lines", texts),
			)
		}
	}

	var out []internal.DraftOrder
	for _, branch := range parsed.Branches {
		if branch.MatchedBranchID == nil || !hasMatchedLine(branch) {
			log.Info("branch left for review", zap.String("branch", branch.NameAsWritten))
			continue
		}

		date := time.Now().Format("2006-01-02")
		if branch.DeliveryDate != nil {
			date = *branch.DeliveryDate
		}

		draft, err := s.store.FindOpenDraft(clientID, *branch.MatchedBranchID, date)
		if err != nil {
			return out, eris.Wrapf(err, "order: find draft for branch %d", *branch.MatchedBranchID)
		}
		if draft == nil {
			draft = &internal.DraftOrder{
				ID:           uuid.NewString(),
				ClientID:     clientID,
				BranchID:     *branch.MatchedBranchID,
				BranchName:   branch.NameAsWritten,
				DeliveryDate: date,
				Status:       internal.DraftOpen,
				Lines:        map[int]internal.DraftLine{},
			}
		}

		merged, err := Merge(*draft, branch, parsed.SourceEmailID, s.policy, s.catalog)
		if errors.Is(err, ErrEmailAlreadyMerged) {
			log.Info("duplicate email skipped", zap.String("draft_id", draft.ID))
			out = append(out, *draft)
			continue
		}
		if err != nil {
			return out, eris.Wrapf(err, "order: merge into draft %s", draft.ID)
		}

		if err := s.store.SaveDraft(merged, nil); err != nil {
			return out, eris.Wrapf(err, "order: save draft %s", merged.ID)
		}
		log.Info("branch merged",
			zap.String("draft_id", merged.ID),
			zap.Int("branch_id", merged.BranchID),
			zap.String("delivery_date", merged.DeliveryDate),
			zap.Int("lines", len(merged.Lines)),
			zap.String("grand_total", merged.Totals.Grand.String()),
		)
		out = append(out, merged)
	}
	return out, nil
}

// MarkVerified confirms one watch-listed line. When the confirmed
// weight trips the plausibility ceiling and accept is false, nothing is
// persisted and the warning is returned for the operator to acknowledge.
func (s *Service) MarkVerified(draftID string, productID int, weightKg, units float64, accept bool) (*internal.DraftOrder, *PlausibilityWarning, error) {
	draft, err := s.loadDraft(draftID)
	if err != nil {
		return nil, nil, err
	}

	next, warning, err := MarkVerified(*draft, productID, weightKg, units, s.policy, s.catalog)
	if err != nil {
		return nil, nil, err
	}
	if warning != nil && !accept {
		return nil, warning, nil
	}
	if err := s.store.SaveDraft(next, nil); err != nil {
		return nil, nil, eris.Wrapf(err, "order: save draft %s", draftID)
	}
	return &next, warning, nil
}

// MarkAllVerified bulk-accepts parsed values. An empty productIDs slice
// means every still-unverified watch-listed line.
func (s *Service) MarkAllVerified(draftID string, productIDs []int) (*internal.DraftOrder, error) {
	draft, err := s.loadDraft(draftID)
	if err != nil {
		return nil, err
	}

	if len(productIDs) == 0 {
		for _, line := range Unverified(*draft) {
			productIDs = append(productIDs, line.ProductID)
		}
	}

	next, err := MarkAllVerified(*draft, productIDs)
	if err != nil {
		return nil, err
	}
	if err := s.store.SaveDraft(next, nil); err != nil {
		return nil, eris.Wrapf(err, "order: save draft %s", draftID)
	}
	return &next, nil
}

// Finalize runs the verification gate and, when it passes, transitions
// the draft and creates the downstream sales order record in the same
// transaction. Returns the ids of the created records.
func (s *Service) Finalize(draftID string) ([]internal.SalesOrderRef, error) {
	draft, err := s.loadDraft(draftID)
	if err != nil {
		return nil, err
	}

	finalized, err := Finalize(*draft)
	if err != nil {
		return nil, err
	}

	refs := []internal.SalesOrderRef{{
		ID:       uuid.NewString(),
		DraftID:  finalized.ID,
		BranchID: finalized.BranchID,
	}}
	if err := s.store.SaveDraft(finalized, refs); err != nil {
		return nil, eris.Wrapf(err, "order: finalize draft %s", draftID)
	}

	zap.L().Info("draft finalized",
		zap.String("draft_id", draftID),
		zap.String("sales_order_id", refs[0].ID),
		zap.String("grand_total", finalized.Totals.Grand.String()),
	)
	return refs, nil
}

// Delete removes an open draft. Finalized drafts are terminal records
// and stay.
func (s *Service) Delete(draftID string) error {
	draft, err := s.loadDraft(draftID)
	if err != nil {
		return err
	}
	if draft.Status == internal.DraftFinalized {
		return ErrDraftFinalized
	}
	return s.store.DeleteDraft(draftID)
}

func (s *Service) loadDraft(draftID string) (*internal.DraftOrder, error) {
	draft, err := s.store.GetDraft(draftID)
	if err != nil {
		return nil, eris.Wrapf(err, "order: load draft %s", draftID)
	}
	if draft == nil {
		return nil, eris.Errorf("order: draft %s not found", draftID)
	}
	return draft, nil
}

func hasMatchedLine(branch internal.ParsedBranch) bool {
	for _, line := range branch.Lines {
		if line.MatchedProductID != nil {
			return true
		}
	}
	return false
}

func unresolvedTexts(branch internal.ParsedBranch) []string {
	var texts []string
	for _, line := range branch.Lines {
		if line.MatchKind == internal.MatchNone {
			texts = append(texts, line.RawProductText)
		}
	}
	return texts
}
