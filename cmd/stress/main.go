package main

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"stockledger/internal/adapter/storage"
	"stockledger/internal/core/service"
)

const (
	initialStock  = 20
	totalRequests = 50
)

// Drives concurrent write-offs against a single batch and checks that
// successes never exceed the available quantity.
func main() {
	ctx := context.Background()

	db, dialect, err := storage.Open(ctx, "", "", ":memory:")
	if err != nil {
		log.Fatalf("failed to open store: %v", err)
	}
	defer db.Close()

	if err := storage.Migrate(db, dialect); err != nil {
		log.Fatalf("failed to migrate: %v", err)
	}

	store := storage.NewSQLStore(db, dialect)
	registry := service.NewRegistryService(store)
	ledger := service.NewLedgerService(store)

	item, err := registry.RegisterItem(ctx, "STRESS-1", "Stress test item", "")
	if err != nil {
		log.Fatalf("failed to register item: %v", err)
	}

	batch, err := ledger.Receive(ctx, service.ReceiveInput{
		NomenclatureID:  item.ID,
		BatchNumber:     "B-1",
		ManufactureYear: 2024,
		Manufacturer:    "ACME",
		Quantity:        initialStock,
		Document: service.DocumentFields{
			DocNumber: "D-1",
			DocType:   "receipt note",
			DocDate:   "2024-01-01",
		},
	})
	if err != nil {
		log.Fatalf("failed to receive: %v", err)
	}

	var successCount atomic.Int32
	var failCount atomic.Int32

	var wg sync.WaitGroup
	start := time.Now()

	for i := 0; i < totalRequests; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()

			_, err := ledger.WriteOff(ctx, service.WriteOffInput{
				BatchID:        batch.ID,
				NomenclatureID: item.ID,
				Quantity:       1,
				Document: service.DocumentFields{
					DocNumber: fmt.Sprintf("WO-%d", n),
					DocType:   "write-off act",
					DocDate:   "2024-01-02",
				},
			})
			if err == nil {
				successCount.Add(1)
			} else {
				failCount.Add(1)
			}
		}(i)
	}

	wg.Wait()
	elapsed := time.Since(start)

	success := successCount.Load()
	fail := failCount.Load()

	fmt.Println("========== STRESS TEST RESULTS ==========")
	fmt.Printf("Initial Stock:    %d\n", initialStock)
	fmt.Printf("Total Requests:   %d\n", totalRequests)
	fmt.Printf("Successful:       %d\n", success)
	fmt.Printf("Failed:           %d\n", fail)
	fmt.Printf("Duration:         %v\n", elapsed)
	fmt.Println("==========================================")

	if success == int32(initialStock) && fail == int32(totalRequests-initialStock) {
		fmt.Printf("PASS: Exactly %d write-offs succeeded, %d rejected\n", initialStock, totalRequests-initialStock)
	} else {
		fmt.Printf("FAIL: Expected %d success/%d fail, got %d/%d\n",
			initialStock, totalRequests-initialStock, success, fail)
	}

	remaining, err := ledger.GetBatch(ctx, batch.ID)
	if err != nil {
		log.Fatalf("failed to read batch: %v", err)
	}
	fmt.Printf("Final Quantity: %d\n", remaining.Quantity)

	if remaining.Quantity == 0 {
		fmt.Println("PASS: Stock depleted to 0")
	} else {
		fmt.Printf("FAIL: Expected quantity 0, got %d\n", remaining.Quantity)
	}
}
