package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"notaflow/internal"
)

// DB is the processing journal: every enriched invoice and every
// submission attempt leaves a row. It is an audit trail, not a source of
// truth; losing it costs history, not correctness.
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
CREATE TABLE IF NOT EXISTS invoices (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  supplierName TEXT NOT NULL,
  supplierId TEXT,
  buyerName TEXT,
  buyerId TEXT,
  invDate TEXT,
  matchedCount INTEGER NOT NULL,
  unmatchedCount INTEGER NOT NULL,
  totalMatched REAL NOT NULL,
  sourceRef TEXT,
  rawJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS invoice_lines (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  invoiceId INTEGER NOT NULL,
  lineNo INTEGER NOT NULL,
  rawName TEXT NOT NULL,
  name TEXT NOT NULL,
  quantity REAL NOT NULL,
  unit TEXT,
  price REAL NOT NULL,
  productId TEXT,
  matchScore REAL NOT NULL,
  matchStatus TEXT NOT NULL,
  isValid INTEGER NOT NULL,
  conversionApplied INTEGER NOT NULL,
  originalQuantity REAL,
  originalUnit TEXT,
  UNIQUE(invoiceId, lineNo),
  FOREIGN KEY(invoiceId) REFERENCES invoices(id)
);
CREATE INDEX IF NOT EXISTS idx_lines_invoice ON invoice_lines(invoiceId);

CREATE TABLE IF NOT EXISTS submissions (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  invoiceId INTEGER NOT NULL,
  documentId TEXT,
  status TEXT NOT NULL,
  error TEXT,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  FOREIGN KEY(invoiceId) REFERENCES invoices(id)
);
`
	_, err := d.conn.Exec(schema)
	return err
}

// InsertInvoice journals an enriched invoice with its lines and returns
// the journal id.
func (d *DB) InsertInvoice(inv *internal.Invoice, sourceRef string) (int64, error) {
	rawJSON, err := json.Marshal(inv)
	if err != nil {
		return 0, err
	}

	tx, err := d.conn.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.Exec(`
INSERT INTO invoices (supplierName, supplierId, buyerName, buyerId, invDate, matchedCount, unmatchedCount, totalMatched, sourceRef, rawJson)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`, inv.SupplierName, nullString(inv.SupplierID), nullString(inv.BuyerName), nullString(inv.BuyerID), inv.Date,
		inv.MatchedCount, inv.UnmatchedCount, inv.TotalMatchedAmount, nullString(sourceRef), string(rawJSON))
	if err != nil {
		return 0, err
	}
	invoiceID, err := result.LastInsertId()
	if err != nil {
		return 0, err
	}

	stmt, err := tx.Prepare(`
INSERT INTO invoice_lines (invoiceId, lineNo, rawName, name, quantity, unit, price, productId, matchScore, matchStatus, isValid, conversionApplied, originalQuantity, originalUnit)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for i, line := range inv.Lines {
		var origQty any
		var origUnit any
		if line.ConversionApplied {
			origQty = line.OriginalQuantity
			origUnit = line.OriginalUnit
		}
		if _, err := stmt.Exec(
			invoiceID, i+1, line.RawName, line.Name, line.Quantity, line.Unit, line.Price,
			nullString(line.ProductID), line.MatchScore, string(line.Status),
			boolInt(line.IsValid), boolInt(line.ConversionApplied), origQty, origUnit,
		); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return invoiceID, nil
}

// RecordSubmission journals one submission attempt.
func (d *DB) RecordSubmission(invoiceID int64, documentID string, submitErr error) error {
	status := "sent"
	var errText any
	if submitErr != nil {
		status = "failed"
		errText = submitErr.Error()
	}
	_, err := d.conn.Exec(`
INSERT INTO submissions (invoiceId, documentId, status, error) VALUES (?, ?, ?, ?)
`, invoiceID, nullString(documentID), status, errText)
	return err
}

// ExportRows reads an invoice's lines back in line order for xlsx export.
func (d *DB) ExportRows(invoiceID int64) ([]internal.ExportRow, error) {
	rows, err := d.conn.Query(`
SELECT lineNo, rawName, name, quantity, unit, price, productId, matchScore, matchStatus, isValid, conversionApplied, originalQuantity, originalUnit
FROM invoice_lines WHERE invoiceId = ? ORDER BY lineNo ASC
`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.ExportRow
	for rows.Next() {
		var row internal.ExportRow
		var unit sql.NullString
		var isValid, converted int
		if err := rows.Scan(
			&row.LineNo, &row.RawName, &row.Name, &row.Quantity, &unit, &row.Price,
			&row.ProductID, &row.MatchScore, &row.MatchStatus, &isValid, &converted,
			&row.OriginalQuantity, &row.OriginalUnit,
		); err != nil {
			return nil, err
		}
		row.Unit = unit.String
		row.IsValid = isValid != 0
		row.ConversionApplied = converted != 0
		row.Amount = row.Quantity * row.Price
		out = append(out, row)
	}
	return out, rows.Err()
}

// GetInvoice reconstructs a journaled invoice from its raw JSON snapshot.
func (d *DB) GetInvoice(invoiceID int64) (*internal.Invoice, error) {
	var rawJSON string
	err := d.conn.QueryRow(`SELECT rawJson FROM invoices WHERE id = ?`, invoiceID).Scan(&rawJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var inv internal.Invoice
	if err := json.Unmarshal([]byte(rawJSON), &inv); err != nil {
		return nil, err
	}
	return &inv, nil
}

func nullString(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func boolInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
