package db

import (
	"context"

	"procurement/models"
)

func (s *txStore) CreateComplaint(ctx context.Context, c *models.Complaint) error {
	query := `
        INSERT INTO complaints (reporter_id, tender_id, subject, description, status,
                                investigation_result, investigator_id, findings, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING id`
	err := s.tx.QueryRowContext(ctx, query, c.ReporterID, c.TenderID, c.Subject, c.Description, c.Status,
		c.InvestigationResult, c.InvestigatorID, c.Findings, c.CreatedAt, c.UpdatedAt).Scan(&c.ID)
	return mapErr("complaint.create", "complaint", err)
}

func (s *txStore) GetComplaint(ctx context.Context, id int64) (*models.Complaint, error) {
	return s.complaint(ctx, "complaint.get", `SELECT * FROM complaints WHERE id=$1`, id)
}

func (s *txStore) LockComplaint(ctx context.Context, id int64) (*models.Complaint, error) {
	return s.complaint(ctx, "complaint.lock", `SELECT * FROM complaints WHERE id=$1 FOR UPDATE`, id)
}

func (s *txStore) complaint(ctx context.Context, op, query string, id int64) (*models.Complaint, error) {
	c := &models.Complaint{}
	if err := s.tx.GetContext(ctx, c, query, id); err != nil {
		return nil, mapErr(op, "complaint", err)
	}
	return c, nil
}

func (s *txStore) UpdateComplaint(ctx context.Context, c *models.Complaint) error {
	query := `
        UPDATE complaints
        SET status=$2, investigation_result=$3, investigator_id=$4, findings=$5,
            updated_at=$6, resolved_at=$7
        WHERE id=$1`
	res, err := s.tx.ExecContext(ctx, query, c.ID, c.Status, c.InvestigationResult, c.InvestigatorID,
		c.Findings, c.UpdatedAt, c.ResolvedAt)
	return exactlyOne("complaint.update", "complaint", res, err)
}

// Cases

func (s *txStore) CreateCase(ctx context.Context, c *models.Case) error {
	query := `
        INSERT INTO cases (complaint_id, status, priority, notes, created_by, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id`
	err := s.tx.QueryRowContext(ctx, query, c.ComplaintID, c.Status, c.Priority, c.Notes,
		c.CreatedBy, c.CreatedAt, c.UpdatedAt).Scan(&c.ID)
	return mapErr("case.create", "case", err)
}

func (s *txStore) GetCaseByComplaint(ctx context.Context, complaintID int64) (*models.Case, error) {
	c := &models.Case{}
	if err := s.tx.GetContext(ctx, c, `SELECT * FROM cases WHERE complaint_id=$1`, complaintID); err != nil {
		return nil, mapErr("case.get", "case", err)
	}
	return c, nil
}

func (s *txStore) UpdateCase(ctx context.Context, c *models.Case) error {
	res, err := s.tx.ExecContext(ctx, `UPDATE cases SET status=$2, priority=$3, notes=$4, updated_at=$5 WHERE id=$1`,
		c.ID, c.Status, c.Priority, c.Notes, c.UpdatedAt)
	return exactlyOne("case.update", "case", res, err)
}
