package txstore

import "time"

type State uint8

const (
	StateInitiated State = 1 + iota
	StateSent
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInitiated:
		return "INITIATED"
	case StateSent:
		return "SENT"
	case StateCompleted:
		return "COMPLETED"
	case StateFailed:
		return "FAILED"
	}
	return "UNKNOWN"
}

// Terminal reports whether the state accepts no further transitions.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Pending reports whether the record still awaits a terminal outcome.
func (s State) Pending() bool {
	return s == StateInitiated || s == StateSent
}

// Record is the durable bookkeeping entry of a single transfer request.
// Records are created in StateInitiated and only ever move forward:
// Initiated -> Sent -> Completed, or Initiated -> Failed. A Sent record is
// never demoted; its outcome is owned by the ledger and the only transition
// out of Sent is Completed, driven by ledger history evidence.
type Record struct {
	_            struct{}  `cbor:",toarray"`
	ID           string    `json:"id"`
	State        State     `json:"state"`
	FromAddress  string    `json:"fromAddress"`
	ToAddress    string    `json:"toAddress"`
	Amount       string    `json:"amount"`
	LedgerID     string    `json:"ledgerId,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}
