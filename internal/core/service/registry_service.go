package service

import (
	"context"
	"strings"

	"stockledger/internal/core/domain"
	"stockledger/internal/port"
)

// RegistryService manages the nomenclature catalog. It never touches the
// ledger: registering an item creates one row and nothing else.
type RegistryService struct {
	store port.Store
}

func NewRegistryService(store port.Store) *RegistryService {
	return &RegistryService{store: store}
}

// RegisterItem adds a nomenclature item. Code matching is case-sensitive
// and exact; a taken code yields domain.ErrDuplicateCode.
func (s *RegistryService) RegisterItem(ctx context.Context, code, name, category string) (*domain.Item, error) {
	code = strings.TrimSpace(code)
	name = strings.TrimSpace(name)
	category = strings.TrimSpace(category)

	if code == "" {
		return nil, &domain.ValidationError{Field: "code", Reason: "must not be empty"}
	}
	if name == "" {
		return nil, &domain.ValidationError{Field: "name", Reason: "must not be empty"}
	}

	item := &domain.Item{Code: code, Name: name, Category: category}
	if err := s.store.InsertItem(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

// ListWithStock returns every item with its total quantity on hand,
// ordered by name. Items without batches report zero.
func (s *RegistryService) ListWithStock(ctx context.Context) ([]domain.ItemStock, error) {
	return s.store.ListItemsWithStock(ctx)
}

// GetItem returns one item by id.
func (s *RegistryService) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	return s.store.GetItem(ctx, id)
}
