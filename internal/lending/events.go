package lending

// EventKind names a committed state change.
type EventKind string

const (
	EventScoreInitialized EventKind = "reputation.initialized"
	EventLoanIssued       EventKind = "loan.issued"
	EventRepayment        EventKind = "loan.repayment"
	EventLoanRepaid       EventKind = "loan.repaid"
	EventLoanDefaulted    EventKind = "loan.defaulted"
)

// Event is published after its unit of work commits.
type Event struct {
	Kind       EventKind `json:"kind"`
	User       string    `json:"user"`
	LoanID     uint64    `json:"loan_id,omitempty"`
	Amount     uint64    `json:"amount,omitempty"`
	Collateral uint64    `json:"collateral,omitempty"`
	Score      uint64    `json:"score"`
	Treasury   uint64    `json:"treasury"`
	Height     uint64    `json:"height"`
}

// EventSink receives committed events. Publish must not block.
type EventSink interface {
	Publish(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Publish(e Event) { f(e) }
