package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"ordena/internal"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if _, err := conn.Exec(`PRAGMA foreign_keys = ON;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS products (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL,
  saleUnit TEXT NOT NULL,
  pricedByWeight INTEGER NOT NULL DEFAULT 0,
  weightPerUnit REAL,
  appliesTaxA INTEGER NOT NULL DEFAULT 0,
  appliesTaxB INTEGER NOT NULL DEFAULT 0,
  quotedPrice TEXT,
  lastSeenAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_products_name ON products(name);

CREATE TABLE IF NOT EXISTS branches (
  id INTEGER PRIMARY KEY,
  name TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS drafts (
  id TEXT PRIMARY KEY,
  clientId TEXT NOT NULL,
  branchId INTEGER NOT NULL,
  branchName TEXT NOT NULL DEFAULT '',
  deliveryDate TEXT NOT NULL,
  status TEXT NOT NULL DEFAULT 'draft',
  netTotal TEXT NOT NULL DEFAULT '0',
  taxTotal TEXT NOT NULL DEFAULT '0',
  grandTotal TEXT NOT NULL DEFAULT '0',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE UNIQUE INDEX IF NOT EXISTS ux_drafts_open
  ON drafts(clientId, branchId, deliveryDate) WHERE status = 'draft';

CREATE TABLE IF NOT EXISTS draft_lines (
  draftId TEXT NOT NULL,
  productId INTEGER NOT NULL,
  productName TEXT NOT NULL DEFAULT '',
  saleUnit TEXT NOT NULL DEFAULT '',
  quantity REAL NOT NULL,
  unitPrice TEXT NOT NULL DEFAULT '0',
  subtotal TEXT NOT NULL DEFAULT '0',
  requiresVerification INTEGER NOT NULL DEFAULT 0,
  verified INTEGER NOT NULL DEFAULT 0,
  verifiedWeight REAL,
  verifiedUnits REAL,
  PRIMARY KEY (draftId, productId),
  FOREIGN KEY (draftId) REFERENCES drafts(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS draft_emails (
  draftId TEXT NOT NULL,
  emailId TEXT NOT NULL,
  PRIMARY KEY (draftId, emailId),
  FOREIGN KEY (draftId) REFERENCES drafts(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS sales_orders (
  id TEXT PRIMARY KEY,
  draftId TEXT NOT NULL,
  branchId INTEGER NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS emails (
  emailId TEXT PRIMARY KEY,
  subject TEXT,
  sender TEXT,
  status TEXT NOT NULL DEFAULT 'received',
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  emailId TEXT,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`
	_, err := d.conn.Exec(schema)
	return err
}

func (d *DB) UpsertProducts(products []internal.CatalogProduct) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO products (id, name, saleUnit, pricedByWeight, weightPerUnit, appliesTaxA, appliesTaxB, quotedPrice, lastSeenAt)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(id) DO UPDATE SET
  name=excluded.name,
  saleUnit=excluded.saleUnit,
  pricedByWeight=excluded.pricedByWeight,
  weightPerUnit=excluded.weightPerUnit,
  appliesTaxA=excluded.appliesTaxA,
  appliesTaxB=excluded.appliesTaxB,
  quotedPrice=excluded.quotedPrice,
  lastSeenAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range products {
		var price *string
		if p.QuotedPrice != nil {
			s := p.QuotedPrice.String()
			price = &s
		}
		if _, err := stmt.Exec(p.ID, p.Name, p.SaleUnit, boolInt(p.PricedByWeight), p.WeightPerUnit, boolInt(p.AppliesTaxA), boolInt(p.AppliesTaxB), price); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) ListProducts() ([]internal.CatalogProduct, error) {
	rows, err := d.conn.Query(`
SELECT id, name, saleUnit, pricedByWeight, weightPerUnit, appliesTaxA, appliesTaxB, quotedPrice
FROM products ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.CatalogProduct
	for rows.Next() {
		var p internal.CatalogProduct
		var byWeight, taxA, taxB int
		var price *string
		if err := rows.Scan(&p.ID, &p.Name, &p.SaleUnit, &byWeight, &p.WeightPerUnit, &taxA, &taxB, &price); err != nil {
			return nil, err
		}
		p.PricedByWeight = byWeight != 0
		p.AppliesTaxA = taxA != 0
		p.AppliesTaxB = taxB != 0
		if price != nil {
			if dec, err := decimal.NewFromString(*price); err == nil {
				p.QuotedPrice = &dec
			}
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (d *DB) UpsertBranches(branches []internal.Branch) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	for _, b := range branches {
		if _, err := tx.Exec(`
INSERT INTO branches (id, name) VALUES (?, ?)
ON CONFLICT(id) DO UPDATE SET name=excluded.name`, b.ID, b.Name); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (d *DB) ListBranches() ([]internal.Branch, error) {
	rows, err := d.conn.Query(`SELECT id, name FROM branches ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Branch
	for rows.Next() {
		var b internal.Branch
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

// FindOpenDraft returns the single open draft for a (client, branch,
// delivery date) key, or nil when none exists.
func (d *DB) FindOpenDraft(clientID string, branchID int, deliveryDate string) (*internal.DraftOrder, error) {
	var id string
	err := d.conn.QueryRow(`
SELECT id FROM drafts
WHERE clientId = ? AND branchId = ? AND deliveryDate = ? AND status = 'draft'`,
		clientID, branchID, deliveryDate).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return d.GetDraft(id)
}

func (d *DB) GetDraft(id string) (*internal.DraftOrder, error) {
	var draft internal.DraftOrder
	var net, tax, grand string
	err := d.conn.QueryRow(`
SELECT id, clientId, branchId, branchName, deliveryDate, status, netTotal, taxTotal, grandTotal
FROM drafts WHERE id = ?`, id).Scan(
		&draft.ID, &draft.ClientID, &draft.BranchID, &draft.BranchName, &draft.DeliveryDate,
		&draft.Status, &net, &tax, &grand,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	draft.Totals.Net, _ = decimal.NewFromString(net)
	draft.Totals.Tax, _ = decimal.NewFromString(tax)
	draft.Totals.Grand, _ = decimal.NewFromString(grand)

	draft.Lines = map[int]internal.DraftLine{}
	rows, err := d.conn.Query(`
SELECT productId, productName, saleUnit, quantity, unitPrice, subtotal,
       requiresVerification, verified, verifiedWeight, verifiedUnits
FROM draft_lines WHERE draftId = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var line internal.DraftLine
		var unitPrice, subtotal string
		var requires, verified int
		if err := rows.Scan(&line.ProductID, &line.ProductName, &line.SaleUnit, &line.Quantity,
			&unitPrice, &subtotal, &requires, &verified, &line.VerifiedWeight, &line.VerifiedUnits); err != nil {
			return nil, err
		}
		line.UnitPrice, _ = decimal.NewFromString(unitPrice)
		line.Subtotal, _ = decimal.NewFromString(subtotal)
		line.RequiresVerification = requires != 0
		line.Verified = verified != 0
		draft.Lines[line.ProductID] = line
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	emailRows, err := d.conn.Query(`SELECT emailId FROM draft_emails WHERE draftId = ? ORDER BY emailId`, id)
	if err != nil {
		return nil, err
	}
	defer emailRows.Close()
	for emailRows.Next() {
		var emailID string
		if err := emailRows.Scan(&emailID); err != nil {
			return nil, err
		}
		draft.ProcessedEmailIDs = append(draft.ProcessedEmailIDs, emailID)
	}
	return &draft, emailRows.Err()
}

// ListDrafts returns draft headers filtered by status; pass "" for all.
func (d *DB) ListDrafts(status internal.DraftStatus) ([]internal.DraftOrder, error) {
	query := `SELECT id FROM drafts ORDER BY createdAt`
	args := []any{}
	if status != "" {
		query = `SELECT id FROM drafts WHERE status = ? ORDER BY createdAt`
		args = append(args, string(status))
	}

	rows, err := d.conn.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]internal.DraftOrder, 0, len(ids))
	for _, id := range ids {
		draft, err := d.GetDraft(id)
		if err != nil {
			return nil, err
		}
		if draft != nil {
			out = append(out, *draft)
		}
	}
	return out, nil
}

// SaveDraft writes the whole draft state (header, lines, processed
// emails, totals) in one transaction, so a merge either lands fully or
// not at all. Sales order refs, when given, are created in the same
// transaction at finalize time.
func (d *DB) SaveDraft(draft internal.DraftOrder, orders []internal.SalesOrderRef) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
INSERT INTO drafts (id, clientId, branchId, branchName, deliveryDate, status, netTotal, taxTotal, grandTotal)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  branchName=excluded.branchName,
  deliveryDate=excluded.deliveryDate,
  status=excluded.status,
  netTotal=excluded.netTotal,
  taxTotal=excluded.taxTotal,
  grandTotal=excluded.grandTotal,
  updatedAt=CURRENT_TIMESTAMP
`, draft.ID, draft.ClientID, draft.BranchID, draft.BranchName, draft.DeliveryDate, string(draft.Status),
		draft.Totals.Net.String(), draft.Totals.Tax.String(), draft.Totals.Grand.String()); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM draft_lines WHERE draftId = ?`, draft.ID); err != nil {
		return err
	}
	for _, line := range draft.Lines {
		if _, err := tx.Exec(`
INSERT INTO draft_lines (draftId, productId, productName, saleUnit, quantity, unitPrice, subtotal,
                         requiresVerification, verified, verifiedWeight, verifiedUnits)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			draft.ID, line.ProductID, line.ProductName, line.SaleUnit, line.Quantity,
			line.UnitPrice.String(), line.Subtotal.String(),
			boolInt(line.RequiresVerification), boolInt(line.Verified),
			line.VerifiedWeight, line.VerifiedUnits); err != nil {
			return err
		}
	}

	if _, err := tx.Exec(`DELETE FROM draft_emails WHERE draftId = ?`, draft.ID); err != nil {
		return err
	}
	for _, emailID := range draft.ProcessedEmailIDs {
		if _, err := tx.Exec(`INSERT INTO draft_emails (draftId, emailId) VALUES (?, ?)`, draft.ID, emailID); err != nil {
			return err
		}
	}

	for _, ref := range orders {
		if _, err := tx.Exec(`INSERT INTO sales_orders (id, draftId, branchId) VALUES (?, ?, ?)`,
			ref.ID, ref.DraftID, ref.BranchID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) DeleteDraft(id string) error {
	_, err := d.conn.Exec(`DELETE FROM drafts WHERE id = ?`, id)
	return err
}

func (d *DB) UpsertEmail(emailID, subject, sender, status string) error {
	_, err := d.conn.Exec(`
INSERT INTO emails (emailId, subject, sender, status) VALUES (?, ?, ?, ?)
ON CONFLICT(emailId) DO UPDATE SET
  subject=excluded.subject,
  sender=excluded.sender,
  status=excluded.status,
  updatedAt=CURRENT_TIMESTAMP`, emailID, subject, sender, status)
	return err
}

func (d *DB) UpdateEmailStatus(emailID, status string) error {
	_, err := d.conn.Exec(`UPDATE emails SET status = ?, updatedAt = CURRENT_TIMESTAMP WHERE emailId = ?`, status, emailID)
	return err
}

func (d *DB) InsertRun(traceID, emailID string, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO runs (traceId, emailId, timingsJson, countsJson) VALUES (?, ?, ?, ?)`,
		traceID, emailID, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value, updatedAt) VALUES (?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP`,
		key, value)
	return err
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
