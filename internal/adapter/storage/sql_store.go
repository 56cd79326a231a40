package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"stockledger/internal/core/domain"
	"stockledger/internal/port"
)

const batchColumns = `id, nomenclature_id, batch_number, manufacture_year, manufacturer, quantity, location, created_at`

// SQLStore implements port.Store over database/sql. The same code serves
// SQLite, PostgreSQL and MySQL; everything backend-specific lives in the
// Dialect.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

func (s *SQLStore) InsertItem(ctx context.Context, item *domain.Item) error {
	id, err := s.dialect.InsertID(ctx, s.db,
		`INSERT INTO nomenclature (code, name, category) VALUES (?, ?, ?)`,
		item.Code, item.Name, nullString(item.Category))
	if err != nil {
		if s.dialect.IsUniqueViolation(err) {
			return domain.ErrDuplicateCode
		}
		return &domain.StorageError{Op: "insert item", Err: err}
	}
	item.ID = id
	return nil
}

func (s *SQLStore) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	var item domain.Item
	var category sql.NullString
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT id, code, name, category FROM nomenclature WHERE id = ?`), id,
	).Scan(&item.ID, &item.Code, &item.Name, &category)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("item %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get item", Err: err}
	}
	item.Category = category.String
	return &item, nil
}

func (s *SQLStore) ListItemsWithStock(ctx context.Context) ([]domain.ItemStock, error) {
	// One query so the aggregation is a single consistent snapshot.
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(`
		SELECT n.id, n.code, n.name, n.category, COALESCE(SUM(b.quantity), 0)
		FROM nomenclature n
		LEFT JOIN batches b ON b.nomenclature_id = n.id
		GROUP BY n.id, n.code, n.name, n.category
		ORDER BY n.name`))
	if err != nil {
		return nil, &domain.StorageError{Op: "list items with stock", Err: err}
	}
	defer rows.Close()

	items := []domain.ItemStock{}
	for rows.Next() {
		var it domain.ItemStock
		var category sql.NullString
		if err := rows.Scan(&it.ID, &it.Code, &it.Name, &category, &it.TotalQuantity); err != nil {
			return nil, &domain.StorageError{Op: "scan item with stock", Err: err}
		}
		it.Category = category.String
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "list items with stock", Err: err}
	}
	return items, nil
}

func (s *SQLStore) GetBatch(ctx context.Context, id int64) (*domain.Batch, error) {
	b, err := scanBatch(s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT `+batchColumns+` FROM batches WHERE id = ?`), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get batch", Err: err}
	}
	return b, nil
}

func (s *SQLStore) ListActiveBatches(ctx context.Context, nomenclatureID int64) ([]domain.Batch, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT `+batchColumns+` FROM batches
		 WHERE nomenclature_id = ? AND quantity > 0
		 ORDER BY created_at DESC, id DESC`), nomenclatureID)
	if err != nil {
		return nil, &domain.StorageError{Op: "list active batches", Err: err}
	}
	defer rows.Close()

	batches := []domain.Batch{}
	for rows.Next() {
		b, err := scanBatch(rows)
		if err != nil {
			return nil, &domain.StorageError{Op: "scan batch", Err: err}
		}
		batches = append(batches, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "list active batches", Err: err}
	}
	return batches, nil
}

func (s *SQLStore) TotalForItem(ctx context.Context, nomenclatureID int64) (int64, error) {
	var total int64
	err := s.db.QueryRowContext(ctx, s.dialect.Rebind(
		`SELECT COALESCE(SUM(quantity), 0) FROM batches
		 WHERE nomenclature_id = ? AND quantity > 0`), nomenclatureID,
	).Scan(&total)
	if err != nil {
		return 0, &domain.StorageError{Op: "total for item", Err: err}
	}
	return total, nil
}

func (s *SQLStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT id, doc_number, doc_type, doc_date, issued_by, notes
		 FROM documents ORDER BY doc_date DESC, id DESC`))
	if err != nil {
		return nil, &domain.StorageError{Op: "list documents", Err: err}
	}
	defer rows.Close()

	docs := []domain.Document{}
	for rows.Next() {
		var d domain.Document
		var issuedBy, notes sql.NullString
		if err := rows.Scan(&d.ID, &d.DocNumber, &d.DocType, &d.DocDate, &issuedBy, &notes); err != nil {
			return nil, &domain.StorageError{Op: "scan document", Err: err}
		}
		d.IssuedBy = issuedBy.String
		d.Notes = notes.String
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "list documents", Err: err}
	}
	return docs, nil
}

func (s *SQLStore) ListBatchTransactions(ctx context.Context, batchID int64) ([]domain.StockTransaction, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.Rebind(
		`SELECT id, batch_id, document_id, quantity_change, created_at
		 FROM transactions WHERE batch_id = ? ORDER BY id`), batchID)
	if err != nil {
		return nil, &domain.StorageError{Op: "list transactions", Err: err}
	}
	defer rows.Close()

	txs := []domain.StockTransaction{}
	for rows.Next() {
		var t domain.StockTransaction
		if err := rows.Scan(&t.ID, &t.BatchID, &t.DocumentID, &t.QuantityChange, &t.CreatedAt); err != nil {
			return nil, &domain.StorageError{Op: "scan transaction", Err: err}
		}
		txs = append(txs, t)
	}
	if err := rows.Err(); err != nil {
		return nil, &domain.StorageError{Op: "list transactions", Err: err}
	}
	return txs, nil
}

// Update runs fn in one storage transaction. Rollback is the default exit
// path; only a nil error from fn commits.
func (s *SQLStore) Update(ctx context.Context, fn func(tx port.StoreTx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &domain.StorageError{Op: "begin tx", Err: err}
	}
	defer tx.Rollback()

	if err := fn(&storeTx{tx: tx, dialect: s.dialect}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return &domain.StorageError{Op: "commit", Err: err}
	}
	return nil
}

type storeTx struct {
	tx      *sql.Tx
	dialect Dialect
}

func (t *storeTx) FindBatchByIdentity(ctx context.Context, key domain.BatchKey) (*domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches
		WHERE nomenclature_id = ? AND batch_number = ? AND manufacture_year = ? AND manufacturer = ?`
	if t.dialect.SupportsRowLocking() {
		query += ` FOR UPDATE`
	}
	b, err := scanBatch(t.tx.QueryRowContext(ctx, t.dialect.Rebind(query),
		key.NomenclatureID, key.BatchNumber, key.ManufactureYear, key.Manufacturer))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "find batch by identity", Err: err}
	}
	return b, nil
}

func (t *storeTx) GetBatchForUpdate(ctx context.Context, id int64) (*domain.Batch, error) {
	query := `SELECT ` + batchColumns + ` FROM batches WHERE id = ?`
	if t.dialect.SupportsRowLocking() {
		query += ` FOR UPDATE`
	}
	b, err := scanBatch(t.tx.QueryRowContext(ctx, t.dialect.Rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %d: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, &domain.StorageError{Op: "get batch for update", Err: err}
	}
	return b, nil
}

func (t *storeTx) InsertDocument(ctx context.Context, doc *domain.Document) error {
	id, err := t.dialect.InsertID(ctx, t.tx,
		`INSERT INTO documents (doc_number, doc_type, doc_date, issued_by, notes)
		 VALUES (?, ?, ?, ?, ?)`,
		doc.DocNumber, string(doc.DocType), doc.DocDate,
		nullString(doc.IssuedBy), nullString(doc.Notes))
	if err != nil {
		return &domain.StorageError{Op: "insert document", Err: err}
	}
	doc.ID = id
	return nil
}

func (t *storeTx) InsertBatch(ctx context.Context, b *domain.Batch) error {
	id, err := t.dialect.InsertID(ctx, t.tx,
		`INSERT INTO batches (nomenclature_id, batch_number, manufacture_year, manufacturer, quantity, location, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		b.NomenclatureID, b.BatchNumber, b.ManufactureYear, b.Manufacturer,
		b.Quantity, nullString(b.Location), b.CreatedAt)
	if err != nil {
		if t.dialect.IsUniqueViolation(err) {
			return domain.ErrDuplicateBatch
		}
		return &domain.StorageError{Op: "insert batch", Err: err}
	}
	b.ID = id
	return nil
}

func (t *storeTx) AddQuantity(ctx context.Context, batchID, delta int64) (int64, error) {
	_, err := t.tx.ExecContext(ctx, t.dialect.Rebind(
		`UPDATE batches SET quantity = quantity + ? WHERE id = ?`), delta, batchID)
	if err != nil {
		return 0, &domain.StorageError{Op: "add quantity", Err: err}
	}
	return t.quantity(ctx, batchID)
}

func (t *storeTx) DeductQuantity(ctx context.Context, batchID, qty int64) (int64, bool, error) {
	// Sufficiency check and deduction in one statement: concurrent
	// write-offs cannot both pass the check and drive quantity negative.
	res, err := t.tx.ExecContext(ctx, t.dialect.Rebind(
		`UPDATE batches SET quantity = quantity - ? WHERE id = ? AND quantity >= ?`),
		qty, batchID, qty)
	if err != nil {
		return 0, false, &domain.StorageError{Op: "deduct quantity", Err: err}
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return 0, false, &domain.StorageError{Op: "deduct quantity", Err: err}
	}
	if rows == 0 {
		return 0, false, nil
	}
	remaining, err := t.quantity(ctx, batchID)
	if err != nil {
		return 0, false, err
	}
	return remaining, true, nil
}

func (t *storeTx) AppendTransaction(ctx context.Context, txn *domain.StockTransaction) error {
	id, err := t.dialect.InsertID(ctx, t.tx,
		`INSERT INTO transactions (batch_id, document_id, quantity_change, created_at)
		 VALUES (?, ?, ?, ?)`,
		txn.BatchID, txn.DocumentID, txn.QuantityChange, txn.CreatedAt)
	if err != nil {
		return &domain.StorageError{Op: "append transaction", Err: err}
	}
	txn.ID = id
	return nil
}

func (t *storeTx) quantity(ctx context.Context, batchID int64) (int64, error) {
	var q int64
	err := t.tx.QueryRowContext(ctx, t.dialect.Rebind(
		`SELECT quantity FROM batches WHERE id = ?`), batchID).Scan(&q)
	if err != nil {
		return 0, &domain.StorageError{Op: "read quantity", Err: err}
	}
	return q, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBatch(row rowScanner) (*domain.Batch, error) {
	var b domain.Batch
	var location sql.NullString
	err := row.Scan(&b.ID, &b.NomenclatureID, &b.BatchNumber, &b.ManufactureYear,
		&b.Manufacturer, &b.Quantity, &location, &b.CreatedAt)
	if err != nil {
		return nil, err
	}
	b.Location = location.String
	return &b, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
