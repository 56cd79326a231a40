package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"stockledger/internal/core/domain"
	"stockledger/internal/core/service"
)

// HTTPHandler is the JSON shell over the ledger core. It extracts and
// converts request fields and maps error kinds to status codes; all
// validation of meaning happens in the services.
type HTTPHandler struct {
	registry *service.RegistryService
	ledger   *service.LedgerService
	log      *zap.Logger
}

func NewHTTPHandler(registry *service.RegistryService, ledger *service.LedgerService, log *zap.Logger) *HTTPHandler {
	return &HTTPHandler{registry: registry, ledger: ledger, log: log}
}

type registerItemRequest struct {
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category"`
}

type itemResponse struct {
	ID       int64  `json:"id"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
}

type itemStockResponse struct {
	itemResponse
	TotalQuantity int64 `json:"total_quantity"`
}

type batchResponse struct {
	ID              int64     `json:"id"`
	NomenclatureID  int64     `json:"nomenclature_id"`
	BatchNumber     string    `json:"batch_number"`
	ManufactureYear int       `json:"manufacture_year"`
	Manufacturer    string    `json:"manufacturer"`
	Quantity        int64     `json:"quantity"`
	Location        string    `json:"location,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

type itemDetailResponse struct {
	Item          itemResponse    `json:"item"`
	Batches       []batchResponse `json:"batches"`
	TotalQuantity int64           `json:"total_quantity"`
}

type receiveRequest struct {
	BatchNumber     string `json:"batch_number"`
	ManufactureYear int    `json:"manufacture_year"`
	Manufacturer    string `json:"manufacturer"`
	Quantity        int64  `json:"quantity"`
	Location        string `json:"location"`
	DocNumber       string `json:"doc_number"`
	DocType         string `json:"doc_type"`
	DocDate         string `json:"doc_date"`
	IssuedBy        string `json:"issued_by"`
	Notes           string `json:"notes"`
}

type writeOffRequest struct {
	NomenclatureID int64  `json:"nomenclature_id"`
	Quantity       int64  `json:"quantity"`
	DocNumber      string `json:"doc_number"`
	DocType        string `json:"doc_type"`
	DocDate        string `json:"doc_date"`
	IssuedBy       string `json:"issued_by"`
	Notes          string `json:"notes"`
}

type writeOffResponse struct {
	BatchID           int64 `json:"batch_id"`
	RemainingQuantity int64 `json:"remaining_quantity"`
}

type documentResponse struct {
	ID        int64  `json:"id"`
	DocNumber string `json:"doc_number"`
	DocType   string `json:"doc_type"`
	DocDate   string `json:"doc_date"`
	IssuedBy  string `json:"issued_by,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

type transactionResponse struct {
	ID             int64     `json:"id"`
	BatchID        int64     `json:"batch_id"`
	DocumentID     int64     `json:"document_id"`
	QuantityChange int64     `json:"quantity_change"`
	CreatedAt      time.Time `json:"created_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h *HTTPHandler) RegisterItem(w http.ResponseWriter, r *http.Request) {
	var req registerItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	item, err := h.registry.RegisterItem(r.Context(), req.Code, req.Name, req.Category)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toItemResponse(item))
}

func (h *HTTPHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.registry.ListWithStock(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]itemStockResponse, 0, len(items))
	for _, it := range items {
		out = append(out, itemStockResponse{
			itemResponse:  toItemResponse(&it.Item),
			TotalQuantity: it.TotalQuantity,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	item, err := h.registry.GetItem(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	batches, err := h.ledger.ActiveBatches(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	// Total is derived from the batches just fetched so the detail view is
	// internally consistent even while concurrent write-offs land.
	out := itemDetailResponse{
		Item:    toItemResponse(item),
		Batches: make([]batchResponse, 0, len(batches)),
	}
	for i := range batches {
		out.Batches = append(out.Batches, toBatchResponse(&batches[i]))
		out.TotalQuantity += batches[i].Quantity
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) Receive(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req receiveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	batch, err := h.ledger.Receive(r.Context(), service.ReceiveInput{
		NomenclatureID:  id,
		BatchNumber:     req.BatchNumber,
		ManufactureYear: req.ManufactureYear,
		Manufacturer:    req.Manufacturer,
		Quantity:        req.Quantity,
		Location:        req.Location,
		Document: service.DocumentFields{
			DocNumber: req.DocNumber,
			DocType:   domain.DocType(req.DocType),
			DocDate:   req.DocDate,
			IssuedBy:  req.IssuedBy,
			Notes:     req.Notes,
		},
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBatchResponse(batch))
}

func (h *HTTPHandler) WriteOff(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req writeOffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}

	remaining, err := h.ledger.WriteOff(r.Context(), service.WriteOffInput{
		BatchID:        id,
		NomenclatureID: req.NomenclatureID,
		Quantity:       req.Quantity,
		Document: service.DocumentFields{
			DocNumber: req.DocNumber,
			DocType:   domain.DocType(req.DocType),
			DocDate:   req.DocDate,
			IssuedBy:  req.IssuedBy,
			Notes:     req.Notes,
		},
	})
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, writeOffResponse{BatchID: id, RemainingQuantity: remaining})
}

func (h *HTTPHandler) BatchTransactions(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	txs, err := h.ledger.BatchTransactions(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		out = append(out, transactionResponse{
			ID:             t.ID,
			BatchID:        t.BatchID,
			DocumentID:     t.DocumentID,
			QuantityChange: t.QuantityChange,
			CreatedAt:      t.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) ListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := h.ledger.Documents(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}

	out := make([]documentResponse, 0, len(docs))
	for _, d := range docs {
		out = append(out, documentResponse{
			ID:        d.ID,
			DocNumber: d.DocNumber,
			DocType:   string(d.DocType),
			DocDate:   d.DocDate,
			IssuedBy:  d.IssuedBy,
			Notes:     d.Notes,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *HTTPHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *HTTPHandler) writeError(w http.ResponseWriter, err error) {
	var ve *domain.ValidationError
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: ve.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, domain.ErrDuplicateCode):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "code already exists"})
	case errors.Is(err, domain.ErrInsufficientStock):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "insufficient stock"})
	case errors.Is(err, domain.ErrDuplicateBatch):
		writeJSON(w, http.StatusConflict, errorResponse{Error: "batch created concurrently, retry"})
	default:
		h.log.Error("internal error", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid id"})
		return 0, false
	}
	return id, true
}

func toItemResponse(item *domain.Item) itemResponse {
	return itemResponse{ID: item.ID, Code: item.Code, Name: item.Name, Category: item.Category}
}

func toBatchResponse(b *domain.Batch) batchResponse {
	return batchResponse{
		ID:              b.ID,
		NomenclatureID:  b.NomenclatureID,
		BatchNumber:     b.BatchNumber,
		ManufactureYear: b.ManufactureYear,
		Manufacturer:    b.Manufacturer,
		Quantity:        b.Quantity,
		Location:        b.Location,
		CreatedAt:       b.CreatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
