package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"stockledger/internal/core/domain"
	"stockledger/internal/port"
)

// mockStore is an in-memory port.Store. Update clones the state, applies
// the callback to the clone and swaps it in only on success, mirroring the
// all-or-nothing behavior of a real storage transaction.
type mockStore struct {
	mu sync.Mutex
	st mockState
}

type mockState struct {
	items   map[int64]domain.Item
	batches map[int64]domain.Batch
	docs    map[int64]domain.Document
	txs     []domain.StockTransaction
	nextID  int64
}

func newMockStore() *mockStore {
	return &mockStore{st: mockState{
		items:   make(map[int64]domain.Item),
		batches: make(map[int64]domain.Batch),
		docs:    make(map[int64]domain.Document),
	}}
}

func (s mockState) clone() mockState {
	c := mockState{
		items:   make(map[int64]domain.Item, len(s.items)),
		batches: make(map[int64]domain.Batch, len(s.batches)),
		docs:    make(map[int64]domain.Document, len(s.docs)),
		txs:     append([]domain.StockTransaction(nil), s.txs...),
		nextID:  s.nextID,
	}
	for k, v := range s.items {
		c.items[k] = v
	}
	for k, v := range s.batches {
		c.batches[k] = v
	}
	for k, v := range s.docs {
		c.docs[k] = v
	}
	return c
}

func (s *mockStore) InsertItem(ctx context.Context, item *domain.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, it := range s.st.items {
		if it.Code == item.Code {
			return domain.ErrDuplicateCode
		}
	}
	s.st.nextID++
	item.ID = s.st.nextID
	s.st.items[item.ID] = *item
	return nil
}

func (s *mockStore) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.st.items[id]
	if !ok {
		return nil, fmt.Errorf("item %d: %w", id, domain.ErrNotFound)
	}
	return &it, nil
}

func (s *mockStore) ListItemsWithStock(ctx context.Context) ([]domain.ItemStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.ItemStock{}
	for _, it := range s.st.items {
		stock := domain.ItemStock{Item: it}
		for _, b := range s.st.batches {
			if b.NomenclatureID == it.ID {
				stock.TotalQuantity += b.Quantity
			}
		}
		out = append(out, stock)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *mockStore) GetBatch(ctx context.Context, id int64) (*domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.st.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %d: %w", id, domain.ErrNotFound)
	}
	return &b, nil
}

func (s *mockStore) ListActiveBatches(ctx context.Context, nomenclatureID int64) ([]domain.Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Batch{}
	for _, b := range s.st.batches {
		if b.NomenclatureID == nomenclatureID && b.Quantity > 0 {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *mockStore) TotalForItem(ctx context.Context, nomenclatureID int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var total int64
	for _, b := range s.st.batches {
		if b.NomenclatureID == nomenclatureID && b.Quantity > 0 {
			total += b.Quantity
		}
	}
	return total, nil
}

func (s *mockStore) ListDocuments(ctx context.Context) ([]domain.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.Document{}
	for _, d := range s.st.docs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DocDate != out[j].DocDate {
			return out[i].DocDate > out[j].DocDate
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (s *mockStore) ListBatchTransactions(ctx context.Context, batchID int64) ([]domain.StockTransaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []domain.StockTransaction{}
	for _, t := range s.st.txs {
		if t.BatchID == batchID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *mockStore) Update(ctx context.Context, fn func(tx port.StoreTx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.st.clone()
	if err := fn(&mockTx{st: &staged}); err != nil {
		return err
	}
	s.st = staged
	return nil
}

type mockTx struct {
	st *mockState
}

func (t *mockTx) FindBatchByIdentity(ctx context.Context, key domain.BatchKey) (*domain.Batch, error) {
	for _, b := range t.st.batches {
		if b.Key() == key {
			found := b
			return &found, nil
		}
	}
	return nil, nil
}

func (t *mockTx) GetBatchForUpdate(ctx context.Context, id int64) (*domain.Batch, error) {
	b, ok := t.st.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %d: %w", id, domain.ErrNotFound)
	}
	return &b, nil
}

func (t *mockTx) InsertDocument(ctx context.Context, doc *domain.Document) error {
	t.st.nextID++
	doc.ID = t.st.nextID
	t.st.docs[doc.ID] = *doc
	return nil
}

func (t *mockTx) InsertBatch(ctx context.Context, b *domain.Batch) error {
	for _, other := range t.st.batches {
		if other.Key() == b.Key() {
			return domain.ErrDuplicateBatch
		}
	}
	t.st.nextID++
	b.ID = t.st.nextID
	t.st.batches[b.ID] = *b
	return nil
}

func (t *mockTx) AddQuantity(ctx context.Context, batchID, delta int64) (int64, error) {
	b, ok := t.st.batches[batchID]
	if !ok {
		return 0, fmt.Errorf("batch %d: %w", batchID, domain.ErrNotFound)
	}
	b.Quantity += delta
	t.st.batches[batchID] = b
	return b.Quantity, nil
}

func (t *mockTx) DeductQuantity(ctx context.Context, batchID, qty int64) (int64, bool, error) {
	b, ok := t.st.batches[batchID]
	if !ok {
		return 0, false, fmt.Errorf("batch %d: %w", batchID, domain.ErrNotFound)
	}
	if b.Quantity < qty {
		return 0, false, nil
	}
	b.Quantity -= qty
	t.st.batches[batchID] = b
	return b.Quantity, true, nil
}

func (t *mockTx) AppendTransaction(ctx context.Context, txn *domain.StockTransaction) error {
	t.st.nextID++
	txn.ID = t.st.nextID
	t.st.txs = append(t.st.txs, *txn)
	return nil
}
