package db

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"procurement/internal/apperr"
	"procurement/internal/store"
	"procurement/models"
)

func newMock(t *testing.T) (*Storage, sqlmock.Sqlmock) {
	t.Helper()
	conn, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, mock.ExpectationsWereMet())
		conn.Close()
	})
	return NewStorage(sqlx.NewDb(conn, "postgres")), mock
}

func TestInTxCommits(t *testing.T) {
	s, mock := newMock(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO users")).
		WithArgs("Ada", "contractor", "north", 0, 50.0, 0, true, false, now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	u := &models.User{Name: "Ada", Role: "contractor", Jurisdiction: "north", Reputation: 50, Verified: true, CreatedAt: now}
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateUser(context.Background(), u)
	})
	require.NoError(t, err)
	require.Equal(t, int64(7), u.ID)
}

func TestInTxRollsBackOnError(t *testing.T) {
	s, mock := newMock(t)
	boom := errors.New("boom")

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE tenders SET status")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(tx store.Tx) error {
		if err := tx.UpdateTenderStatus(context.Background(), 1, models.TenderOpen, time.Now()); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
}

func TestUniqueViolationIsConflict(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("INSERT INTO bids")).
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(tx store.Tx) error {
		return tx.CreateBid(context.Background(), &models.Bid{TenderID: 1, ContractorID: 2, Amount: 100})
	})
	require.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
}

func TestMissingRowIsNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM tenders WHERE id=$1 FOR UPDATE")).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "title"}))
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(tx store.Tx) error {
		_, err := tx.LockTender(context.Background(), 42)
		return err
	})
	require.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
}

func TestUpdateWithoutRowIsNotFound(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET verified")).
		WithArgs(int64(9), true, true).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(tx store.Tx) error {
		return tx.SetUserStanding(context.Background(), 9, true, true)
	})
	require.True(t, apperr.Is(err, apperr.KindNotFound), "got %v", err)
}

func TestDisburseOnlyPendingTranche(t *testing.T) {
	s, mock := newMock(t)
	at := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE contract_tranches SET status=$2, disbursed_at=$3 WHERE id=$1 AND status=$4")).
		WithArgs(int64(3), models.TrancheDisbursed, at, models.TranchePending).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := s.InTx(context.Background(), func(tx store.Tx) error {
		return tx.MarkTrancheDisbursed(context.Background(), 3, at)
	})
	require.True(t, apperr.Is(err, apperr.KindConflict), "got %v", err)
}

func TestAdjustUserTotalsReturnsRow(t *testing.T) {
	s, mock := newMock(t)
	cols := []string{"id", "name", "role", "jurisdiction", "points", "reputation", "warnings", "verified", "blacklisted", "created_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("UPDATE users")).
		WithArgs(int64(5), 20, 2.0).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(5, "Ada", "contractor", "north", 20, 52.0, 0, true, false, time.Now()))
	mock.ExpectCommit()

	var got *models.User
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		got, err = tx.AdjustUserTotals(context.Background(), 5, 20, 2)
		return err
	})
	require.NoError(t, err)
	require.Equal(t, 20, got.Points)
	require.Equal(t, 52.0, got.Reputation)
}

func TestChainHeadLocksRow(t *testing.T) {
	s, mock := newMock(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT head FROM audit_chain_head WHERE id = 1 FOR UPDATE")).
		WillReturnRows(sqlmock.NewRows([]string{"head"}).AddRow("sha256:abc"))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE audit_chain_head SET head=$1")).
		WithArgs("sha256:def").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.InTx(context.Background(), func(tx store.Tx) error {
		head, err := tx.LockChainHead(context.Background())
		if err != nil {
			return err
		}
		require.Equal(t, "sha256:abc", head)
		return tx.SetChainHead(context.Background(), "sha256:def")
	})
	require.NoError(t, err)
}

func TestListProofsFiltersByStatus(t *testing.T) {
	s, mock := newMock(t)
	now := time.Now()
	cols := []string{"id", "contract_id", "contractor_id", "milestone_id", "description", "evidence",
		"work_percentage", "amount_requested", "status", "reviewer_count", "required_approvals",
		"approval_count", "rejection_count", "created_at", "updated_at"}

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT * FROM work_proofs WHERE contract_id=$1 AND ($2 = '' OR status = $2)")).
		WithArgs(int64(1), models.ProofUnderReview).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(4, 1, 2, nil, "slab poured", []byte(`[{"url":"https://e.example/1.jpg"}]`), 40.0, 0, models.ProofUnderReview, 5, 3, 1, 0, now, now))
	mock.ExpectCommit()

	var got []models.WorkProof
	err := s.InTx(context.Background(), func(tx store.Tx) error {
		var err error
		got, err = tx.ListProofs(context.Background(), 1, models.ProofUnderReview)
		return err
	})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Nil(t, got[0].MilestoneID)
	require.Len(t, got[0].Evidence, 1)
	require.Equal(t, "https://e.example/1.jpg", got[0].Evidence[0].URL)
}
