package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"stockledger/internal/adapter/storage"
	"stockledger/internal/core/domain"
	"stockledger/internal/core/service"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	ctx := context.Background()
	db, dialect, err := storage.Open(ctx, "", "", ":memory:")
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := storage.Migrate(db, dialect); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	store := storage.NewSQLStore(db, dialect)
	registry := service.NewRegistryService(store)
	ledger := service.NewLedgerService(store)

	h := NewHTTPHandler(registry, ledger, zap.NewNop())
	srv := httptest.NewServer(NewRouter(h, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()

	b, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal body: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("post %s failed: %v", url, err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func registerTestItem(t *testing.T, srv *httptest.Server, code, name string) int64 {
	t.Helper()

	resp := postJSON(t, srv.URL+"/api/items", map[string]string{"code": code, "name": name})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 registering item, got %d", resp.StatusCode)
	}
	var item struct {
		ID int64 `json:"id"`
	}
	decodeBody(t, resp, &item)
	return item.ID
}

func receiveBody(docNumber string, quantity int64) map[string]any {
	return map[string]any{
		"batch_number":     "B-1",
		"manufacture_year": 2024,
		"manufacturer":     "ACME",
		"quantity":         quantity,
		"doc_number":       docNumber,
		"doc_type":         "receipt note",
		"doc_date":         "2024-05-10",
	}
}

func TestRegisterItemEndpoint(t *testing.T) {
	srv := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/items", map[string]string{"code": "A1", "name": "Widget", "category": "tools"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	var item struct {
		ID       int64  `json:"id"`
		Code     string `json:"code"`
		Name     string `json:"name"`
		Category string `json:"category"`
	}
	decodeBody(t, resp, &item)
	if item.ID == 0 || item.Code != "A1" || item.Category != "tools" {
		t.Errorf("unexpected item: %+v", item)
	}

	resp = postJSON(t, srv.URL+"/api/items", map[string]string{"code": "A1", "name": "Other"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for duplicate code, got %d", resp.StatusCode)
	}

	resp = postJSON(t, srv.URL+"/api/items", map[string]string{"code": "B2"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for missing name, got %d", resp.StatusCode)
	}
}

func TestReceiveWriteOffFlow(t *testing.T) {
	srv := newTestServer(t)
	itemID := registerTestItem(t, srv, "A1", "Widget")
	itemURL := fmt.Sprintf("%s/api/items/%d", srv.URL, itemID)

	resp := postJSON(t, itemURL+"/receipts", receiveBody("D-1", 10))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 on receive, got %d", resp.StatusCode)
	}
	var batch struct {
		ID       int64 `json:"id"`
		Quantity int64 `json:"quantity"`
	}
	decodeBody(t, resp, &batch)
	if batch.Quantity != 10 {
		t.Errorf("expected quantity 10, got %d", batch.Quantity)
	}

	// Same identity again: merges into the existing batch.
	resp = postJSON(t, itemURL+"/receipts", receiveBody("D-2", 5))
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 on second receive, got %d", resp.StatusCode)
	}
	var merged struct {
		ID       int64 `json:"id"`
		Quantity int64 `json:"quantity"`
	}
	decodeBody(t, resp, &merged)
	if merged.ID != batch.ID || merged.Quantity != 15 {
		t.Errorf("expected batch %d with quantity 15, got %d/%d", batch.ID, merged.ID, merged.Quantity)
	}

	httpResp, err := http.Get(itemURL)
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	var detail struct {
		Batches       []struct{ ID int64 } `json:"batches"`
		TotalQuantity int64                `json:"total_quantity"`
	}
	decodeBody(t, httpResp, &detail)
	if len(detail.Batches) != 1 || detail.TotalQuantity != 15 {
		t.Errorf("expected 1 batch with total 15, got %d batches, total %d", len(detail.Batches), detail.TotalQuantity)
	}

	writeOffURL := fmt.Sprintf("%s/api/batches/%d/write-offs", srv.URL, batch.ID)
	resp = postJSON(t, writeOffURL, map[string]any{
		"nomenclature_id": itemID,
		"quantity":        6,
		"doc_number":      "WO-1",
		"doc_type":        "write-off act",
		"doc_date":        "2024-05-11",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 on write-off, got %d", resp.StatusCode)
	}
	var wo struct {
		RemainingQuantity int64 `json:"remaining_quantity"`
	}
	decodeBody(t, resp, &wo)
	if wo.RemainingQuantity != 9 {
		t.Errorf("expected remaining 9, got %d", wo.RemainingQuantity)
	}

	resp = postJSON(t, writeOffURL, map[string]any{
		"nomenclature_id": itemID,
		"quantity":        20,
		"doc_number":      "WO-2",
		"doc_type":        "write-off act",
		"doc_date":        "2024-05-12",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409 for insufficient stock, got %d", resp.StatusCode)
	}

	httpResp, err = http.Get(fmt.Sprintf("%s/api/batches/%d/transactions", srv.URL, batch.ID))
	if err != nil {
		t.Fatalf("get transactions failed: %v", err)
	}
	var txs []struct {
		QuantityChange int64 `json:"quantity_change"`
	}
	decodeBody(t, httpResp, &txs)
	if len(txs) != 3 {
		t.Fatalf("expected 3 transactions, got %d", len(txs))
	}
	var sum int64
	for _, tx := range txs {
		sum += tx.QuantityChange
	}
	if sum != 9 {
		t.Errorf("expected ledger sum 9, got %d", sum)
	}

	httpResp, err = http.Get(srv.URL + "/api/documents")
	if err != nil {
		t.Fatalf("get documents failed: %v", err)
	}
	var docs []struct {
		DocNumber string `json:"doc_number"`
	}
	decodeBody(t, httpResp, &docs)
	if len(docs) != 3 {
		t.Errorf("expected 3 documents, got %d", len(docs))
	}
}

func TestNotFoundMapping(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/api/items/999")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown item, got %d", resp.StatusCode)
	}

	wo := postJSON(t, srv.URL+"/api/batches/999/write-offs", map[string]any{
		"nomenclature_id": 1,
		"quantity":        1,
		"doc_number":      "WO-1",
		"doc_type":        "write-off act",
		"doc_date":        "2024-05-11",
	})
	wo.Body.Close()
	if wo.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown batch, got %d", wo.StatusCode)
	}

	resp, err = http.Get(srv.URL + "/api/items/abc")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad id, got %d", resp.StatusCode)
	}
}

func TestReceiveValidationMapping(t *testing.T) {
	srv := newTestServer(t)
	itemID := registerTestItem(t, srv, "A1", "Widget")

	body := receiveBody("D-1", 10)
	body["doc_type"] = "unknown paper"
	resp := postJSON(t, fmt.Sprintf("%s/api/items/%d/receipts", srv.URL, itemID), body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for bad doc type, got %d", resp.StatusCode)
	}
}

func TestItemDetailTotalMatchesBatches(t *testing.T) {
	srv := newTestServer(t)
	itemID := registerTestItem(t, srv, "A1", "Widget")
	itemURL := fmt.Sprintf("%s/api/items/%d", srv.URL, itemID)

	first := receiveBody("D-1", 10)
	second := receiveBody("D-2", 15)
	second["batch_number"] = "B-2"
	for _, body := range []map[string]any{first, second} {
		resp := postJSON(t, itemURL+"/receipts", body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("expected 201 on receive, got %d", resp.StatusCode)
		}
	}

	resp, err := http.Get(itemURL)
	if err != nil {
		t.Fatalf("get item failed: %v", err)
	}
	var detail struct {
		Batches []struct {
			Quantity int64 `json:"quantity"`
		} `json:"batches"`
		TotalQuantity int64 `json:"total_quantity"`
	}
	decodeBody(t, resp, &detail)

	var sum int64
	for _, b := range detail.Batches {
		sum += b.Quantity
	}
	if len(detail.Batches) != 2 || sum != 25 {
		t.Fatalf("expected 2 batches summing to 25, got %d batches, sum %d", len(detail.Batches), sum)
	}
	if detail.TotalQuantity != sum {
		t.Errorf("total %d disagrees with listed batches sum %d", detail.TotalQuantity, sum)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	h := NewHTTPHandler(nil, nil, zap.NewNop())

	cases := []struct {
		name string
		err  error
		want int
	}{
		{"validation", &domain.ValidationError{Field: "quantity", Reason: "must be a positive integer"}, http.StatusBadRequest},
		{"not found", fmt.Errorf("item 9: %w", domain.ErrNotFound), http.StatusNotFound},
		{"duplicate code", domain.ErrDuplicateCode, http.StatusConflict},
		{"insufficient stock", domain.ErrInsufficientStock, http.StatusConflict},
		{"batch race exhausted retry", domain.ErrDuplicateBatch, http.StatusConflict},
		{"storage failure", &domain.StorageError{Op: "commit", Err: errors.New("disk full")}, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.writeError(rec, tc.err)
			if rec.Code != tc.want {
				t.Errorf("expected status %d, got %d", tc.want, rec.Code)
			}
		})
	}
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t)

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	var body map[string]string
	decodeBody(t, resp, &body)
	if resp.StatusCode != http.StatusOK || body["status"] != "ok" {
		t.Errorf("unexpected health response: %d %v", resp.StatusCode, body)
	}
}
