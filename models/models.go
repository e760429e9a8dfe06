package models

import (
	"encoding/json"
	"time"
)

// User is any participant: state officer, contractor, reviewer, NGO, citizen or admin.
type User struct {
	ID           int64     `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Role         string    `db:"role" json:"role"`
	Jurisdiction string    `db:"jurisdiction" json:"jurisdiction"`
	Points       int       `db:"points" json:"points"`
	Reputation   float64   `db:"reputation" json:"reputation"`
	Warnings     int       `db:"warnings" json:"warnings"`
	Verified     bool      `db:"verified" json:"verified"`
	Blacklisted  bool      `db:"blacklisted" json:"blacklisted"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// Tender is a published piece of public work.
type Tender struct {
	ID              int64     `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Description     string    `db:"description" json:"description"`
	Jurisdiction    string    `db:"jurisdiction" json:"jurisdiction"`
	Budget          int64     `db:"budget" json:"budget,omitempty"`
	BidDeadline     time.Time `db:"bid_deadline" json:"bidDeadline"`
	ProjectDeadline time.Time `db:"project_deadline" json:"projectDeadline"`
	Status          string    `db:"status" json:"status"`
	TrancheCount    int       `db:"tranche_count" json:"trancheCount"`
	CreatedBy       int64     `db:"created_by" json:"createdBy"`
	CreatedAt       time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt       time.Time `db:"updated_at" json:"updatedAt"`
}

// Bid is a contractor's offer on a tender.
type Bid struct {
	ID             int64     `db:"id" json:"id"`
	TenderID       int64     `db:"tender_id" json:"tenderId"`
	ContractorID   int64     `db:"contractor_id" json:"contractorId"`
	Amount         int64     `db:"amount" json:"amount"`
	TimelineDays   *int      `db:"timeline_days" json:"timelineDays,omitempty"`
	Proposal       string    `db:"proposal" json:"proposal"`
	ProximityScore float64   `db:"proximity_score" json:"proximityScore"`
	AIScore        float64   `db:"ai_score" json:"aiScore"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// Contract is created once per tender from the winning bid.
type Contract struct {
	ID             int64     `db:"id" json:"id"`
	TenderID       int64     `db:"tender_id" json:"tenderId"`
	BidID          int64     `db:"bid_id" json:"bidId"`
	ContractorID   int64     `db:"contractor_id" json:"contractorId"`
	TotalAmount    int64     `db:"total_amount" json:"totalAmount"`
	EscrowBalance  int64     `db:"escrow_balance" json:"escrowBalance"`
	TrancheCount   int       `db:"tranche_count" json:"trancheCount"`
	CurrentTranche int       `db:"current_tranche" json:"currentTranche"`
	Status         string    `db:"status" json:"status"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// ContractTranche is one ordered slice of a contract's value.
type ContractTranche struct {
	ID          int64      `db:"id" json:"id"`
	ContractID  int64      `db:"contract_id" json:"contractId"`
	Sequence    int        `db:"sequence" json:"sequence"`
	Amount      int64      `db:"amount" json:"amount"`
	Status      string     `db:"status" json:"status"`
	DisbursedAt *time.Time `db:"disbursed_at" json:"disbursedAt,omitempty"`
}

// Payment pairs 1:1 with a disbursed tranche.
type Payment struct {
	ID         int64     `db:"id" json:"id"`
	ContractID int64     `db:"contract_id" json:"contractId"`
	TrancheID  int64     `db:"tranche_id" json:"trancheId"`
	Amount     int64     `db:"amount" json:"amount"`
	Reference  string    `db:"reference" json:"reference"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

type Milestone struct {
	ID         int64     `db:"id" json:"id"`
	ContractID int64     `db:"contract_id" json:"contractId"`
	Sequence   int       `db:"sequence" json:"sequence"`
	Title      string    `db:"title" json:"title"`
	Status     string    `db:"status" json:"status"`
	UpdatedAt  time.Time `db:"updated_at" json:"updatedAt"`
}

// EvidenceRef points at an uploaded file; bytes live in the evidence store.
type EvidenceRef struct {
	URL        string     `json:"url"`
	SHA256     string     `json:"sha256,omitempty"`
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	CapturedAt *time.Time `json:"capturedAt,omitempty"`
}

// WorkProof is a contractor's claim of progress on a contract.
type WorkProof struct {
	ID                int64         `db:"id" json:"id"`
	ContractID        int64         `db:"contract_id" json:"contractId"`
	ContractorID      int64         `db:"contractor_id" json:"contractorId"`
	MilestoneID       *int64        `db:"milestone_id" json:"milestoneId,omitempty"`
	Description       string        `db:"description" json:"description"`
	Evidence          EvidenceRefs  `db:"evidence" json:"evidence"`
	WorkPercentage    float64       `db:"work_percentage" json:"workPercentage"`
	AmountRequested   int64         `db:"amount_requested" json:"amountRequested"`
	Status            string        `db:"status" json:"status"`
	ReviewerCount     int           `db:"reviewer_count" json:"reviewerCount"`
	RequiredApprovals int           `db:"required_approvals" json:"requiredApprovals"`
	ApprovalCount     int           `db:"approval_count" json:"approvalCount"`
	RejectionCount    int           `db:"rejection_count" json:"rejectionCount"`
	CreatedAt         time.Time     `db:"created_at" json:"createdAt"`
	UpdatedAt         time.Time     `db:"updated_at" json:"updatedAt"`
}

type ProofReviewer struct {
	ProofID    int64     `db:"proof_id" json:"proofId"`
	ReviewerID int64     `db:"reviewer_id" json:"reviewerId"`
	AssignedBy int64     `db:"assigned_by" json:"assignedBy"`
	AssignedAt time.Time `db:"assigned_at" json:"assignedAt"`
}

type ProofVote struct {
	ID         int64     `db:"id" json:"id"`
	ProofID    int64     `db:"proof_id" json:"proofId"`
	ReviewerID int64     `db:"reviewer_id" json:"reviewerId"`
	Decision   string    `db:"decision" json:"decision"`
	Comment    string    `db:"comment" json:"comment"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

type Complaint struct {
	ID                  int64      `db:"id" json:"id"`
	ReporterID          int64      `db:"reporter_id" json:"reporterId"`
	TenderID            *int64     `db:"tender_id" json:"tenderId,omitempty"`
	Subject             string     `db:"subject" json:"subject"`
	Description         string     `db:"description" json:"description"`
	Status              string     `db:"status" json:"status"`
	InvestigationResult string     `db:"investigation_result" json:"investigationResult"`
	InvestigatorID      *int64     `db:"investigator_id" json:"investigatorId,omitempty"`
	Findings            string     `db:"findings" json:"findings"`
	CreatedAt           time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updatedAt"`
	ResolvedAt          *time.Time `db:"resolved_at" json:"resolvedAt,omitempty"`
}

// Case is the optional formal escalation of a complaint.
type Case struct {
	ID          int64     `db:"id" json:"id"`
	ComplaintID int64     `db:"complaint_id" json:"complaintId"`
	Status      string    `db:"status" json:"status"`
	Priority    string    `db:"priority" json:"priority"`
	Notes       string    `db:"notes" json:"notes"`
	CreatedBy   int64     `db:"created_by" json:"createdBy"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time `db:"updated_at" json:"updatedAt"`
}

// PointsEntry is one immutable row of the points/reputation ledger.
type PointsEntry struct {
	ID            int64     `db:"id" json:"id"`
	UserID        int64     `db:"user_id" json:"userId"`
	Points        int       `db:"points" json:"points"`
	Reputation    float64   `db:"reputation" json:"reputation"`
	Reason        string    `db:"reason" json:"reason"`
	ReferenceType string    `db:"reference_type" json:"referenceType"`
	ReferenceID   int64     `db:"reference_id" json:"referenceId"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// AuditEntry is one link of the audit hash chain.
type AuditEntry struct {
	ID         int64           `db:"id" json:"id"`
	EntryID    string          `db:"entry_id" json:"entryId"`
	ActorID    int64           `db:"actor_id" json:"actorId"`
	ActorRole  string          `db:"actor_role" json:"actorRole"`
	Action     string          `db:"action" json:"action"`
	EntityType string          `db:"entity_type" json:"entityType"`
	EntityID   int64           `db:"entity_id" json:"entityId"`
	Details    json.RawMessage `db:"details" json:"details"`
	PrevHash   string          `db:"prev_hash" json:"prevHash"`
	EntryHash  string          `db:"entry_hash" json:"entryHash"`
	CreatedAt  time.Time       `db:"created_at" json:"createdAt"`
}
