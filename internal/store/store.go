// Package store declares the transactional storage the lifecycle engine runs on.
//
// Every business operation runs inside Store.InTx; the callback's writes
// become visible together on success and are discarded together on error.
// Lock* methods read a row for update: the row stays locked until the
// enclosing transaction ends.
package store

import (
	"context"
	"time"

	"procurement/models"
)

type Store interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

type Tx interface {
	Users
	Tenders
	Bids
	Contracts
	Proofs
	Complaints
	PointsLedger
	AuditLog
}

type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id int64) (*models.User, error)
	GetUsers(ctx context.Context, ids []int64) ([]models.User, error)
	// AdjustUserTotals increments the denormalized totals and returns the row.
	AdjustUserTotals(ctx context.Context, id int64, points int, reputation float64) (*models.User, error)
	IncrementWarnings(ctx context.Context, id int64) (int, error)
	SetUserStanding(ctx context.Context, id int64, verified, blacklisted bool) error
}

type Tenders interface {
	CreateTender(ctx context.Context, t *models.Tender) error
	GetTender(ctx context.Context, id int64) (*models.Tender, error)
	LockTender(ctx context.Context, id int64) (*models.Tender, error)
	UpdateTenderStatus(ctx context.Context, id int64, status string, at time.Time) error
}

type Bids interface {
	// CreateBid fails with a conflict when the contractor already bid on the tender.
	CreateBid(ctx context.Context, b *models.Bid) error
	ListBids(ctx context.Context, tenderID int64) ([]models.Bid, error)
	UpdateBidScores(ctx context.Context, id int64, proximity, ai float64) error
	UpdateBidStatus(ctx context.Context, id int64, status string, at time.Time) error
}

type Contracts interface {
	// CreateContract fails with a conflict when the tender already has one.
	CreateContract(ctx context.Context, c *models.Contract) error
	GetContract(ctx context.Context, id int64) (*models.Contract, error)
	LockContract(ctx context.Context, id int64) (*models.Contract, error)
	GetContractByTender(ctx context.Context, tenderID int64) (*models.Contract, error)
	UpdateContract(ctx context.Context, c *models.Contract) error

	CreateTranche(ctx context.Context, tr *models.ContractTranche) error
	ListTranches(ctx context.Context, contractID int64) ([]models.ContractTranche, error)
	// MarkTrancheDisbursed flips a pending tranche; any other status is a conflict.
	MarkTrancheDisbursed(ctx context.Context, id int64, at time.Time) error
	CreatePayment(ctx context.Context, p *models.Payment) error
	ListPayments(ctx context.Context, contractID int64) ([]models.Payment, error)

	CreateMilestone(ctx context.Context, m *models.Milestone) error
	GetMilestone(ctx context.Context, id int64) (*models.Milestone, error)
	ListMilestones(ctx context.Context, contractID int64) ([]models.Milestone, error)
	UpdateMilestoneStatus(ctx context.Context, id int64, status string, at time.Time) error
}

type Proofs interface {
	CreateProof(ctx context.Context, p *models.WorkProof) error
	GetProof(ctx context.Context, id int64) (*models.WorkProof, error)
	LockProof(ctx context.Context, id int64) (*models.WorkProof, error)
	UpdateProof(ctx context.Context, p *models.WorkProof) error
	// ListProofs returns proofs of a contract; an empty status matches all.
	ListProofs(ctx context.Context, contractID int64, status string) ([]models.WorkProof, error)

	AddReviewer(ctx context.Context, r *models.ProofReviewer) error
	ListReviewers(ctx context.Context, proofID int64) ([]models.ProofReviewer, error)
	// CreateVote fails with a conflict on a second vote by the same reviewer.
	CreateVote(ctx context.Context, v *models.ProofVote) error
	ListVotes(ctx context.Context, proofID int64) ([]models.ProofVote, error)
}

type Complaints interface {
	CreateComplaint(ctx context.Context, c *models.Complaint) error
	GetComplaint(ctx context.Context, id int64) (*models.Complaint, error)
	LockComplaint(ctx context.Context, id int64) (*models.Complaint, error)
	UpdateComplaint(ctx context.Context, c *models.Complaint) error

	// CreateCase fails with a conflict when the complaint already has a case.
	CreateCase(ctx context.Context, c *models.Case) error
	GetCaseByComplaint(ctx context.Context, complaintID int64) (*models.Case, error)
	UpdateCase(ctx context.Context, c *models.Case) error
}

type PointsLedger interface {
	InsertPointsEntry(ctx context.Context, e *models.PointsEntry) error
	ListPointsEntries(ctx context.Context, userID int64) ([]models.PointsEntry, error)
}

type AuditLog interface {
	// LockChainHead returns the hash of the latest entry and holds the
	// sequencing lock until the transaction ends.
	LockChainHead(ctx context.Context) (string, error)
	SetChainHead(ctx context.Context, hash string) error
	InsertAuditEntry(ctx context.Context, e *models.AuditEntry) error
	ListAuditEntries(ctx context.Context) ([]models.AuditEntry, error)
}
