package port

import (
	"context"

	"stockledger/internal/core/domain"
)

// Store is the persistence port for the inventory ledger. Read methods see
// a single consistent snapshot per call. All writes that must be atomic go
// through Update.
type Store interface {
	// InsertItem adds a nomenclature item and sets its ID.
	// Returns domain.ErrDuplicateCode if the code is taken.
	InsertItem(ctx context.Context, item *domain.Item) error

	// GetItem returns domain.ErrNotFound if the item does not exist.
	GetItem(ctx context.Context, id int64) (*domain.Item, error)

	// ListItemsWithStock returns every item with its summed batch quantity
	// (0 for items with no batches), ordered by name ascending.
	ListItemsWithStock(ctx context.Context) ([]domain.ItemStock, error)

	// GetBatch returns domain.ErrNotFound if the batch does not exist.
	GetBatch(ctx context.Context, id int64) (*domain.Batch, error)

	// ListActiveBatches returns batches with quantity > 0 for an item,
	// newest first.
	ListActiveBatches(ctx context.Context, nomenclatureID int64) ([]domain.Batch, error)

	// TotalForItem sums quantity across the item's active batches.
	TotalForItem(ctx context.Context, nomenclatureID int64) (int64, error)

	// ListDocuments returns all documents, doc date descending then id
	// descending.
	ListDocuments(ctx context.Context) ([]domain.Document, error)

	// ListBatchTransactions returns the ledger entries for a batch in
	// append order.
	ListBatchTransactions(ctx context.Context, batchID int64) ([]domain.StockTransaction, error)

	// Update runs fn inside one storage transaction. If fn returns an
	// error, every write made through the StoreTx is rolled back and the
	// error is returned unchanged; otherwise the transaction commits.
	Update(ctx context.Context, fn func(tx StoreTx) error) error
}

// StoreTx is the write scope handed to Store.Update callbacks.
type StoreTx interface {
	// FindBatchByIdentity returns the live batch for the key, locked for
	// the rest of the transaction where the backend supports row locks,
	// or nil if no such batch exists.
	FindBatchByIdentity(ctx context.Context, key domain.BatchKey) (*domain.Batch, error)

	// GetBatchForUpdate is FindBatchByIdentity's by-id counterpart.
	// Returns domain.ErrNotFound if the batch does not exist.
	GetBatchForUpdate(ctx context.Context, id int64) (*domain.Batch, error)

	// InsertDocument appends a document record and sets its ID.
	InsertDocument(ctx context.Context, doc *domain.Document) error

	// InsertBatch creates a batch row and sets its ID. Returns
	// domain.ErrDuplicateBatch if the identity key lost a race to a
	// concurrent insert.
	InsertBatch(ctx context.Context, b *domain.Batch) error

	// AddQuantity increments a batch's quantity and returns the new value.
	AddQuantity(ctx context.Context, batchID, delta int64) (int64, error)

	// DeductQuantity decrements quantity only if at least qty is on hand.
	// ok is false, and nothing changes, when stock is insufficient.
	DeductQuantity(ctx context.Context, batchID, qty int64) (remaining int64, ok bool, err error)

	// AppendTransaction adds a ledger entry and sets its ID.
	AppendTransaction(ctx context.Context, t *domain.StockTransaction) error
}
