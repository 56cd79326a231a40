package domain

import "time"

// Item is a nomenclature entry: a distinct kind of stocked good.
// Rows are immutable after creation and never deleted.
type Item struct {
	ID       int64
	Code     string
	Name     string
	Category string
}

// ItemStock pairs an item with the summed quantity of all its batches.
type ItemStock struct {
	Item
	TotalQuantity int64
}

// BatchKey is the natural identity of a batch. At most one live batch row
// exists per key; a second receipt with the same key merges into it.
type BatchKey struct {
	NomenclatureID  int64
	BatchNumber     string
	ManufactureYear int
	Manufacturer    string
}

// Batch is a traceable lot of a nomenclature item. Quantity is a cached
// running total: it must always equal the sum of QuantityChange over the
// batch's transactions, and it never goes negative.
type Batch struct {
	ID              int64
	NomenclatureID  int64
	BatchNumber     string
	ManufactureYear int
	Manufacturer    string
	Quantity        int64
	Location        string
	CreatedAt       time.Time
}

func (b *Batch) Key() BatchKey {
	return BatchKey{
		NomenclatureID:  b.NomenclatureID,
		BatchNumber:     b.BatchNumber,
		ManufactureYear: b.ManufactureYear,
		Manufacturer:    b.Manufacturer,
	}
}
