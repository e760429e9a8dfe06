package memstore

import (
	"context"
	"time"

	"procurement/internal/apperr"
	"procurement/models"
)

func (t *tx) CreateContract(_ context.Context, c *models.Contract) error {
	for _, other := range t.st.contracts {
		if other.TenderID == c.TenderID {
			return apperr.Conflict("contract.create", "tender %d already has a contract", c.TenderID)
		}
	}
	c.ID = t.st.next("contracts")
	t.st.contracts[c.ID] = *c
	return nil
}

func (t *tx) GetContract(_ context.Context, id int64) (*models.Contract, error) {
	c, ok := t.st.contracts[id]
	if !ok {
		return nil, apperr.NotFound("contract.get", "contract %d not found", id)
	}
	return &c, nil
}

func (t *tx) LockContract(ctx context.Context, id int64) (*models.Contract, error) {
	return t.GetContract(ctx, id)
}

func (t *tx) GetContractByTender(_ context.Context, tenderID int64) (*models.Contract, error) {
	for _, c := range t.st.contracts {
		if c.TenderID == tenderID {
			return &c, nil
		}
	}
	return nil, apperr.NotFound("contract.by_tender", "tender %d has no contract", tenderID)
}

func (t *tx) UpdateContract(_ context.Context, c *models.Contract) error {
	if _, ok := t.st.contracts[c.ID]; !ok {
		return apperr.NotFound("contract.update", "contract %d not found", c.ID)
	}
	t.st.contracts[c.ID] = *c
	return nil
}

func (t *tx) CreateTranche(_ context.Context, tr *models.ContractTranche) error {
	for _, other := range t.st.tranches {
		if other.ContractID == tr.ContractID && other.Sequence == tr.Sequence {
			return apperr.Conflict("tranche.create", "tranche %d exists", tr.Sequence)
		}
	}
	tr.ID = t.st.next("tranches")
	t.st.tranches[tr.ID] = *tr
	return nil
}

func (t *tx) ListTranches(_ context.Context, contractID int64) ([]models.ContractTranche, error) {
	out := sortedValues(t.st.tranches, func(tr models.ContractTranche) bool { return tr.ContractID == contractID })
	sortBySequence(out, func(tr models.ContractTranche) int { return tr.Sequence })
	return out, nil
}

func (t *tx) MarkTrancheDisbursed(_ context.Context, id int64, at time.Time) error {
	tr, ok := t.st.tranches[id]
	if !ok {
		return apperr.NotFound("tranche.disburse", "tranche %d not found", id)
	}
	if tr.Status != models.TranchePending {
		return apperr.Conflict("tranche.disburse", "tranche %d is %s", id, tr.Status)
	}
	tr.Status = models.TrancheDisbursed
	tr.DisbursedAt = &at
	t.st.tranches[id] = tr
	return nil
}

func (t *tx) CreatePayment(_ context.Context, p *models.Payment) error {
	for _, other := range t.st.payments {
		if other.TrancheID == p.TrancheID {
			return apperr.Conflict("payment.create", "tranche %d already paid", p.TrancheID)
		}
	}
	p.ID = t.st.next("payments")
	t.st.payments[p.ID] = *p
	return nil
}

func (t *tx) ListPayments(_ context.Context, contractID int64) ([]models.Payment, error) {
	return sortedValues(t.st.payments, func(p models.Payment) bool { return p.ContractID == contractID }), nil
}

func (t *tx) CreateMilestone(_ context.Context, m *models.Milestone) error {
	m.ID = t.st.next("milestones")
	t.st.milestones[m.ID] = *m
	return nil
}

func (t *tx) GetMilestone(_ context.Context, id int64) (*models.Milestone, error) {
	m, ok := t.st.milestones[id]
	if !ok {
		return nil, apperr.NotFound("milestone.get", "milestone %d not found", id)
	}
	return &m, nil
}

func (t *tx) ListMilestones(_ context.Context, contractID int64) ([]models.Milestone, error) {
	out := sortedValues(t.st.milestones, func(m models.Milestone) bool { return m.ContractID == contractID })
	sortBySequence(out, func(m models.Milestone) int { return m.Sequence })
	return out, nil
}

func (t *tx) UpdateMilestoneStatus(_ context.Context, id int64, status string, at time.Time) error {
	m, ok := t.st.milestones[id]
	if !ok {
		return apperr.NotFound("milestone.update", "milestone %d not found", id)
	}
	m.Status = status
	m.UpdatedAt = at
	t.st.milestones[id] = m
	return nil
}

func sortBySequence[V any](vs []V, seq func(V) int) {
	for i := 1; i < len(vs); i++ {
		for j := i; j > 0 && seq(vs[j]) < seq(vs[j-1]); j-- {
			vs[j], vs[j-1] = vs[j-1], vs[j]
		}
	}
}
