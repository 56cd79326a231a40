package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stockledger/internal/core/domain"
	"stockledger/internal/port"
)

// DocumentFields is the paperwork input for a ledger operation. One
// document is created per Receive/WriteOff call.
type DocumentFields struct {
	DocNumber string
	DocType   domain.DocType
	DocDate   string
	IssuedBy  string
	Notes     string
}

type ReceiveInput struct {
	NomenclatureID  int64
	BatchNumber     string
	ManufactureYear int
	Manufacturer    string
	Quantity        int64
	Location        string
	Document        DocumentFields
}

type WriteOffInput struct {
	BatchID        int64
	NomenclatureID int64
	Quantity       int64
	Document       DocumentFields
}

// LedgerService is the only component that touches batches, documents and
// transactions together. Receive and WriteOff each run as one storage
// transaction: either the document, the batch change and the ledger entry
// are all visible, or none are.
type LedgerService struct {
	store port.Store
}

func NewLedgerService(store port.Store) *LedgerService {
	return &LedgerService{store: store}
}

// Receive books quantity into the batch identified by
// (nomenclatureID, batchNumber, manufactureYear, manufacturer), creating
// the batch or merging into the existing row. Returns the batch with its
// new quantity.
func (s *LedgerService) Receive(ctx context.Context, in ReceiveInput) (*domain.Batch, error) {
	in.BatchNumber = strings.TrimSpace(in.BatchNumber)
	in.Manufacturer = strings.TrimSpace(in.Manufacturer)
	in.Location = strings.TrimSpace(in.Location)

	if in.Quantity <= 0 {
		return nil, &domain.ValidationError{Field: "quantity", Reason: "must be a positive integer"}
	}
	if in.ManufactureYear <= 0 {
		return nil, &domain.ValidationError{Field: "manufacture_year", Reason: "must be a positive integer"}
	}
	if in.BatchNumber == "" {
		return nil, &domain.ValidationError{Field: "batch_number", Reason: "must not be empty"}
	}
	if in.Manufacturer == "" {
		return nil, &domain.ValidationError{Field: "manufacturer", Reason: "must not be empty"}
	}
	if err := validateDocument(&in.Document); err != nil {
		return nil, err
	}

	if _, err := s.store.GetItem(ctx, in.NomenclatureID); err != nil {
		return nil, err
	}

	// A lost race on the batch identity key surfaces as ErrDuplicateBatch;
	// rerunning the transaction finds the winner's row and merges into it.
	var batch *domain.Batch
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		batch, err = s.receiveTx(ctx, in)
		if !errors.Is(err, domain.ErrDuplicateBatch) {
			break
		}
	}
	return batch, err
}

func (s *LedgerService) receiveTx(ctx context.Context, in ReceiveInput) (*domain.Batch, error) {
	key := domain.BatchKey{
		NomenclatureID:  in.NomenclatureID,
		BatchNumber:     in.BatchNumber,
		ManufactureYear: in.ManufactureYear,
		Manufacturer:    in.Manufacturer,
	}

	var batch *domain.Batch
	err := s.store.Update(ctx, func(tx port.StoreTx) error {
		existing, err := tx.FindBatchByIdentity(ctx, key)
		if err != nil {
			return err
		}

		doc := newDocument(in.Document)
		if err := tx.InsertDocument(ctx, &doc); err != nil {
			return err
		}

		if existing == nil {
			batch = &domain.Batch{
				NomenclatureID:  key.NomenclatureID,
				BatchNumber:     key.BatchNumber,
				ManufactureYear: key.ManufactureYear,
				Manufacturer:    key.Manufacturer,
				Quantity:        in.Quantity,
				Location:        in.Location,
				CreatedAt:       time.Now().UTC(),
			}
			if err := tx.InsertBatch(ctx, batch); err != nil {
				return err
			}
		} else {
			newQty, err := tx.AddQuantity(ctx, existing.ID, in.Quantity)
			if err != nil {
				return err
			}
			existing.Quantity = newQty
			batch = existing
		}

		return tx.AppendTransaction(ctx, &domain.StockTransaction{
			BatchID:        batch.ID,
			DocumentID:     doc.ID,
			QuantityChange: in.Quantity,
			CreatedAt:      time.Now().UTC(),
		})
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

// WriteOff deducts quantity from a batch, rejecting the operation when the
// batch does not hold enough stock. The sufficiency check and the deduction
// are one atomic statement, so concurrent write-offs cannot drive the
// quantity negative. Returns the remaining quantity.
func (s *LedgerService) WriteOff(ctx context.Context, in WriteOffInput) (int64, error) {
	if in.Quantity <= 0 {
		return 0, &domain.ValidationError{Field: "quantity", Reason: "must be a positive integer"}
	}
	if err := validateDocument(&in.Document); err != nil {
		return 0, err
	}

	var remaining int64
	err := s.store.Update(ctx, func(tx port.StoreTx) error {
		batch, err := tx.GetBatchForUpdate(ctx, in.BatchID)
		if err != nil {
			return err
		}
		if batch.NomenclatureID != in.NomenclatureID {
			return fmt.Errorf("batch %d does not belong to item %d: %w",
				in.BatchID, in.NomenclatureID, domain.ErrNotFound)
		}

		doc := newDocument(in.Document)
		if err := tx.InsertDocument(ctx, &doc); err != nil {
			return err
		}

		left, ok, err := tx.DeductQuantity(ctx, in.BatchID, in.Quantity)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrInsufficientStock
		}
		remaining = left

		return tx.AppendTransaction(ctx, &domain.StockTransaction{
			BatchID:        in.BatchID,
			DocumentID:     doc.ID,
			QuantityChange: -in.Quantity,
			CreatedAt:      time.Now().UTC(),
		})
	})
	if err != nil {
		return 0, err
	}
	return remaining, nil
}

// ActiveBatches lists an item's batches that still hold stock, newest first.
func (s *LedgerService) ActiveBatches(ctx context.Context, nomenclatureID int64) ([]domain.Batch, error) {
	return s.store.ListActiveBatches(ctx, nomenclatureID)
}

// TotalForItem sums quantity across an item's active batches.
func (s *LedgerService) TotalForItem(ctx context.Context, nomenclatureID int64) (int64, error) {
	return s.store.TotalForItem(ctx, nomenclatureID)
}

// Documents lists the document log, newest doc date first.
func (s *LedgerService) Documents(ctx context.Context) ([]domain.Document, error) {
	return s.store.ListDocuments(ctx)
}

// GetBatch returns one batch by id.
func (s *LedgerService) GetBatch(ctx context.Context, id int64) (*domain.Batch, error) {
	return s.store.GetBatch(ctx, id)
}

// BatchTransactions returns the ledger entries for a batch in append order.
func (s *LedgerService) BatchTransactions(ctx context.Context, batchID int64) ([]domain.StockTransaction, error) {
	if _, err := s.store.GetBatch(ctx, batchID); err != nil {
		return nil, err
	}
	return s.store.ListBatchTransactions(ctx, batchID)
}

func newDocument(f DocumentFields) domain.Document {
	return domain.Document{
		DocNumber: strings.TrimSpace(f.DocNumber),
		DocType:   f.DocType,
		DocDate:   strings.TrimSpace(f.DocDate),
		IssuedBy:  strings.TrimSpace(f.IssuedBy),
		Notes:     strings.TrimSpace(f.Notes),
	}
}

func validateDocument(f *DocumentFields) error {
	if strings.TrimSpace(f.DocNumber) == "" {
		return &domain.ValidationError{Field: "doc_number", Reason: "must not be empty"}
	}
	if !f.DocType.Valid() {
		return &domain.ValidationError{Field: "doc_type", Reason: "unknown document type"}
	}
	date := strings.TrimSpace(f.DocDate)
	if date == "" {
		return &domain.ValidationError{Field: "doc_date", Reason: "must not be empty"}
	}
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return &domain.ValidationError{Field: "doc_date", Reason: "must be YYYY-MM-DD"}
	}
	return nil
}
