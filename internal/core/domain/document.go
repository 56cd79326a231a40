package domain

import "time"

type DocType string

const (
	DocTypeReceiptNote DocType = "receipt note"
	DocTypeIssueSheet  DocType = "issue sheet"
	DocTypeOrder       DocType = "order"
	DocTypeSeizureAct  DocType = "seizure act"
	DocTypeWriteOffAct DocType = "write-off act"
)

// Valid reports whether t is one of the fixed document types. No other
// values are accepted by the document log.
func (t DocType) Valid() bool {
	switch t {
	case DocTypeReceiptNote, DocTypeIssueSheet, DocTypeOrder, DocTypeSeizureAct, DocTypeWriteOffAct:
		return true
	}
	return false
}

// Document is the paperwork record authorizing a stock movement.
// Immutable once created. DocDate is an ISO YYYY-MM-DD string.
type Document struct {
	ID        int64
	DocNumber string
	DocType   DocType
	DocDate   string
	IssuedBy  string
	Notes     string
}

// StockTransaction is one immutable signed quantity change, linked to
// exactly one batch and one document. The transaction ledger is the source
// of truth; batch quantity is a projection of it.
type StockTransaction struct {
	ID             int64
	BatchID        int64
	DocumentID     int64
	QuantityChange int64
	CreatedAt      time.Time
}
