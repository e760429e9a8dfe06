package handlers

import (
	"procurement/internal/audit"
	"procurement/internal/award"
	"procurement/internal/complaint"
	"procurement/internal/consensus"
	"procurement/internal/escrow"
	"procurement/internal/points"
	"procurement/internal/tender"
	"procurement/internal/users"
)

// Services - всё, что вызывает HTTP слой
type Services struct {
	Users      *users.Service
	Tenders    *tender.Service
	Awards     *award.Engine
	Escrow     *escrow.Service
	Proofs     *consensus.Service
	Complaints *complaint.Service
	Points     *points.Ledger
	Audit      *audit.Chain
}
