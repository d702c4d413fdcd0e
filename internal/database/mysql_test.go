package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartscan/entity"
	"chartscan/internal/store"
)

const sqlUser int64 = 7

var (
	sqlNow    = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	qInsert   = regexp.QuoteMeta("INSERT INTO accounts (user_id, referral_code")
	qSelect   = `FROM accounts WHERE user_id = \?$`
	qLock     = regexp.QuoteMeta("FOR UPDATE")
	qCredits  = regexp.QuoteMeta("SELECT referee_id FROM referral_credits")
	qPayments = regexp.QuoteMeta("SELECT payment_id FROM applied_payments")
	qUpdate   = regexp.QuoteMeta("UPDATE accounts SET")
	qCredit   = regexp.QuoteMeta("INSERT IGNORE INTO referral_credits")
	qPayment  = regexp.QuoteMeta("INSERT IGNORE INTO applied_payments")
)

func newMockSQL(t *testing.T) (*MySql, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return &MySql{
		db:         db,
		statements: make(map[string]*sql.Stmt),
		log:        slog.New(slog.NewTextHandler(io.Discard, nil)),
	}, mock
}

func accountRow(bonus int64, version int64) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"user_id", "username", "first_name", "referral_code", "free_scans_used_today",
		"last_reset_day", "bonus_credits", "premium_until", "referred_by", "total_scans",
		"version", "created_at", "updated_at",
	}).AddRow(sqlUser, "ann", "Ann", entity.ReferralCodeFor(sqlUser), int64(1),
		"2026-05-04", bonus, nil, int64(0), int64(9), version, sqlNow, sqlNow)
}

func column(name string, values ...driver.Value) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{name})
	for _, v := range values {
		rows.AddRow(v)
	}
	return rows
}

// expectLockedLoad sets up the statement cache and the locked read of sqlUser
// holding one referral credit and one applied payment.
func expectLockedLoad(mock sqlmock.Sqlmock, bonus, version int64) {
	for _, q := range []string{qInsert, qLock, qCredits, qPayments, qUpdate, qCredit, qPayment} {
		mock.ExpectPrepare(q)
	}
	mock.ExpectBegin()
	mock.ExpectExec(qInsert).
		WithArgs(sqlUser, entity.ReferralCodeFor(sqlUser), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(qLock).WithArgs(sqlUser).WillReturnRows(accountRow(bonus, version))
	mock.ExpectQuery(qCredits).WithArgs(sqlUser).WillReturnRows(column("referee_id", int64(100)))
	mock.ExpectQuery(qPayments).WithArgs(sqlUser).WillReturnRows(column("payment_id", "ch_1"))
}

func TestMySqlTransactWritesOnlyNewChildRows(t *testing.T) {
	s, mock := newMockSQL(t)
	expectLockedLoad(mock, 5, 3)
	mock.ExpectExec(qUpdate).
		WithArgs("ann", "Ann", 1, "2026-05-04", 7, nil, int64(0), int64(9), int64(4), sqlmock.AnyArg(), sqlUser).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(qCredit).WithArgs(sqlUser, int64(200)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(qPayment).WithArgs(sqlUser, "ch_2").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	acc, err := s.Transact(context.Background(), sqlUser, sqlNow, func(acc *entity.Account) error {
		assert.Equal(t, []int64{100}, acc.ReferralCreditedFor)
		assert.Equal(t, []string{"ch_1"}, acc.AppliedPayments)
		acc.BonusCredits += 2
		acc.ReferralCreditedFor = append(acc.ReferralCreditedFor, 200)
		acc.AppliedPayments = append(acc.AppliedPayments, "ch_2")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 7, acc.BonusCredits)
	assert.Equal(t, int64(4), acc.Version)
	assert.Equal(t, sqlNow, acc.UpdatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySqlTransactNoopRollsBack(t *testing.T) {
	s, mock := newMockSQL(t)
	expectLockedLoad(mock, 5, 3)
	mock.ExpectRollback()

	acc, err := s.Transact(context.Background(), sqlUser, sqlNow, func(*entity.Account) error {
		return store.ErrNoop
	})
	require.NoError(t, err)
	assert.Equal(t, 5, acc.BonusCredits)
	assert.Equal(t, int64(3), acc.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySqlTransactMutationErrorIsReturnedAsIs(t *testing.T) {
	s, mock := newMockSQL(t)
	expectLockedLoad(mock, 0, 0)
	mock.ExpectRollback()
	denied := errors.New("denied")

	_, err := s.Transact(context.Background(), sqlUser, sqlNow, func(*entity.Account) error {
		return denied
	})
	assert.ErrorIs(t, err, denied)
	assert.NotErrorIs(t, err, store.ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySqlTransactUpdateFailureIsUnavailable(t *testing.T) {
	s, mock := newMockSQL(t)
	expectLockedLoad(mock, 5, 3)
	mock.ExpectExec(qUpdate).WillReturnError(errors.New("deadlock found"))
	mock.ExpectRollback()

	_, err := s.Transact(context.Background(), sqlUser, sqlNow, func(acc *entity.Account) error {
		acc.BonusCredits++
		return nil
	})
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.ErrorContains(t, err, "deadlock found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySqlReadCreatesDefaultRow(t *testing.T) {
	s, mock := newMockSQL(t)
	for _, q := range []string{qInsert, qSelect, qCredits, qPayments} {
		mock.ExpectPrepare(q)
	}
	mock.ExpectExec(qInsert).
		WithArgs(sqlUser, entity.ReferralCodeFor(sqlUser), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(qSelect).WithArgs(sqlUser).WillReturnRows(accountRow(0, 0))
	mock.ExpectQuery(qCredits).WithArgs(sqlUser).WillReturnRows(column("referee_id"))
	mock.ExpectQuery(qPayments).WithArgs(sqlUser).WillReturnRows(column("payment_id"))

	acc, err := s.Read(context.Background(), sqlUser, sqlNow)
	require.NoError(t, err)
	assert.Equal(t, entity.ReferralCodeFor(sqlUser), acc.ReferralCode)
	assert.Empty(t, acc.ReferralCreditedFor)
	assert.Nil(t, acc.PremiumUntil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySqlReadFailureIsUnavailable(t *testing.T) {
	s, mock := newMockSQL(t)
	for _, q := range []string{qInsert, qSelect, qCredits, qPayments} {
		mock.ExpectPrepare(q)
	}
	mock.ExpectExec(qInsert).WillReturnError(errors.New("connection refused"))

	_, err := s.Read(context.Background(), sqlUser, sqlNow)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySqlFindByReferralCode(t *testing.T) {
	s, mock := newMockSQL(t)
	q := regexp.QuoteMeta("SELECT user_id FROM accounts WHERE referral_code = ?")
	mock.ExpectPrepare(q)
	mock.ExpectQuery(q).WithArgs("AAAA").WillReturnRows(column("user_id", sqlUser))
	mock.ExpectQuery(q).WithArgs("BBBB").WillReturnRows(column("user_id"))

	id, err := s.FindByReferralCode(context.Background(), "AAAA")
	require.NoError(t, err)
	assert.Equal(t, sqlUser, id)

	_, err = s.FindByReferralCode(context.Background(), "BBBB")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
