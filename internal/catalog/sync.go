package catalog

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"ordena/internal/config"
	"ordena/internal/storage"
)

// SyncService refreshes the local catalog mirror from the back-office
// API. Matching always runs against the local copy, so a failed sync
// degrades to stale data rather than an outage.
type SyncService struct {
	db     *storage.DB
	client *Client
	cfg    config.Config
}

func NewSyncService(db *storage.DB, cfg config.Config) *SyncService {
	return &SyncService{db: db, client: NewClient(cfg), cfg: cfg}
}

func (s *SyncService) SyncProducts(ctx context.Context) (int, error) {
	products, err := s.client.GetProductsAll(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "catalog: fetch products")
	}
	if err := s.db.UpsertProducts(products); err != nil {
		return 0, eris.Wrap(err, "catalog: store products")
	}
	_ = s.db.SetMetadata("catalog.last_product_sync", time.Now().UTC().Format(time.RFC3339))
	zap.L().Info("catalog sync complete", zap.Int("products", len(products)))
	return len(products), nil
}

func (s *SyncService) SyncBranches(ctx context.Context, clientID string) (int, error) {
	branches, err := s.client.GetBranches(ctx, clientID)
	if err != nil {
		return 0, eris.Wrapf(err, "catalog: fetch branches for %s", clientID)
	}
	if err := s.db.UpsertBranches(branches); err != nil {
		return 0, eris.Wrap(err, "catalog: store branches")
	}
	_ = s.db.SetMetadata("catalog.last_branch_sync."+clientID, time.Now().UTC().Format(time.RFC3339))
	return len(branches), nil
}

// LastProductSync returns the timestamp of the last successful product
// sync, or nil if none has run.
func (s *SyncService) LastProductSync() (*time.Time, error) {
	raw, err := s.db.GetMetadata("catalog.last_product_sync")
	if err != nil || raw == nil {
		return nil, err
	}
	parsed, err := time.Parse(time.RFC3339, *raw)
	if err != nil {
		return nil, nil
	}
	return &parsed, nil
}
