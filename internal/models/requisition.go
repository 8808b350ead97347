package models

import "time"

// RequisitionStatus enumerates the purchase requisition lifecycle.
type RequisitionStatus string

const (
	StatusDraft           RequisitionStatus = "DRAFT"
	StatusPendingApproval RequisitionStatus = "PENDING_APPROVAL"
	StatusApproved        RequisitionStatus = "APPROVED"
	StatusRejected        RequisitionStatus = "REJECTED"
	StatusCancelled       RequisitionStatus = "CANCELLED"
)

// statusTransitions is the closed transition table. APPROVED, REJECTED and
// CANCELLED are terminal.
var statusTransitions = map[RequisitionStatus][]RequisitionStatus{
	StatusDraft:           {StatusPendingApproval, StatusCancelled},
	StatusPendingApproval: {StatusApproved, StatusRejected, StatusCancelled},
	StatusApproved:        {},
	StatusRejected:        {},
	StatusCancelled:       {},
}

// Valid reports whether the value is a known status.
func (s RequisitionStatus) Valid() bool {
	_, ok := statusTransitions[s]
	return ok
}

// CanTransitionTo reports whether moving from s to next is legal.
func (s RequisitionStatus) CanTransitionTo(next RequisitionStatus) bool {
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Urgency enumerates requisition priority levels.
type Urgency string

const (
	UrgencyLow    Urgency = "Low"
	UrgencyMedium Urgency = "Medium"
	UrgencyHigh   Urgency = "High"
)

// Valid reports whether the value is a known urgency level.
func (u Urgency) Valid() bool {
	switch u {
	case UrgencyLow, UrgencyMedium, UrgencyHigh:
		return true
	}
	return false
}

// Requisition is the purchase requisition header. TotalAmount is derived from
// the line item totals at creation time and never client-authoritative.
type Requisition struct {
	ID          int64             `db:"id" json:"id"`
	PRNumber    string            `db:"pr_number" json:"pr_number"`
	Title       string            `db:"title" json:"title"`
	Status      RequisitionStatus `db:"status" json:"status"`
	RequestedBy int64             `db:"requested_by" json:"requested_by"`
	Department  string            `db:"department" json:"department"`
	Company     string            `db:"company" json:"company"`
	Urgency     Urgency           `db:"urgency" json:"urgency"`
	TotalAmount float64           `db:"total_amount" json:"total_amount"`
	Currency    string            `db:"currency" json:"currency"`
	Notes       *string           `db:"notes" json:"notes,omitempty"`
	CreatedAt   time.Time         `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at" json:"updated_at"`

	Items []RequisitionItem `db:"-" json:"items,omitempty"`
}

// RequisitionItem is one line of a requisition. TotalPrice is accepted as
// supplied by the caller; the service never recomputes it from quantity and
// unit price.
type RequisitionItem struct {
	ID            int64   `db:"id" json:"id"`
	RequisitionID int64   `db:"requisition_id" json:"requisition_id"`
	StockCode     string  `db:"stock_code" json:"stock_code"`
	Description   string  `db:"description" json:"description"`
	Quantity      float64 `db:"quantity" json:"quantity"`
	UOM           string  `db:"uom" json:"uom"`
	UnitPrice     float64 `db:"unit_price" json:"unit_price"`
	TotalPrice    float64 `db:"total_price" json:"total_price"`
}

// RequisitionFilter narrows list queries.
type RequisitionFilter struct {
	Status     RequisitionStatus
	Department string
	Urgency    Urgency
	Limit      int
	Offset     int
}

// ApprovalDecision enumerates stage outcomes.
type ApprovalDecision string

const (
	DecisionApproved ApprovalDecision = "APPROVED"
	DecisionRejected ApprovalDecision = "REJECTED"
)

// ApprovalChainStages is the number of manager stages a requisition passes
// through before it is fully approved.
const ApprovalChainStages = 3

// RequisitionApproval records one stage decision of the approval chain.
type RequisitionApproval struct {
	ID            int64            `db:"id" json:"id"`
	RequisitionID int64            `db:"requisition_id" json:"requisition_id"`
	Stage         int              `db:"stage" json:"stage"`
	Decision      ApprovalDecision `db:"decision" json:"decision"`
	DecidedBy     int64            `db:"decided_by" json:"decided_by"`
	Note          *string          `db:"note" json:"note,omitempty"`
	DecidedAt     time.Time        `db:"decided_at" json:"decided_at"`
}
