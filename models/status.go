package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Tender statuses
const (
	TenderDraft      = "draft"
	TenderOpen       = "open"
	TenderClosed     = "closed"
	TenderAwarded    = "awarded"
	TenderInProgress = "in_progress"
	TenderCompleted  = "completed"
	TenderCancelled  = "cancelled"
)

// Bid statuses
const (
	BidSubmitted   = "submitted"
	BidShortlisted = "shortlisted"
	BidAwarded     = "awarded"
	BidRejected    = "rejected"
)

const (
	ContractActive     = "active"
	ContractCompleted  = "completed"
	ContractTerminated = "terminated"
)

const (
	TranchePending   = "pending"
	TrancheDisbursed = "disbursed"
	TrancheHeld      = "held"
)

const (
	MilestonePending       = "pending"
	MilestoneInProgress    = "in_progress"
	MilestoneProofUploaded = "proof_uploaded"
	MilestoneUnderReview   = "under_review"
	MilestoneApproved      = "approved"
	MilestoneRejected      = "rejected"
)

const (
	ProofPendingAssignment = "pending_assignment"
	ProofUnderReview       = "under_review"
	ProofApproved          = "approved"
	ProofRejected          = "rejected"
)

const (
	VoteApprove = "approve"
	VoteReject  = "reject"
)

const (
	ComplaintSubmitted     = "submitted"
	ComplaintAssigned      = "assigned_to_ngo"
	ComplaintInvestigating = "investigating"
	ComplaintVerified      = "verified"
	ComplaintDismissed     = "dismissed"
	ComplaintActionTaken   = "action_taken"
)

const (
	ResultPending        = "pending"
	ResultConfirmedValid = "confirmed_valid"
	ResultConfirmedFake  = "confirmed_fake"
)

const (
	CaseOpen      = "open"
	CaseInReview  = "in_review"
	CaseEscalated = "escalated"
	CaseClosed    = "closed"
)

const (
	PriorityLow      = "low"
	PriorityMedium   = "medium"
	PriorityHigh     = "high"
	PriorityCritical = "critical"
)

// EvidenceRefs is stored as a JSONB array.
type EvidenceRefs []EvidenceRef

func (e EvidenceRefs) Value() (driver.Value, error) {
	if e == nil {
		return "[]", nil
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(raw), nil
}

func (e *EvidenceRefs) Scan(src any) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*e = nil
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return errors.New("evidence: unsupported scan type")
	}
	return json.Unmarshal(raw, e)
}
