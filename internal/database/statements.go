package database

import (
	"database/sql"
	"fmt"
)

const accountColumns = `user_id, username, first_name, referral_code, free_scans_used_today,
	last_reset_day, bonus_credits, premium_until, referred_by, total_scans, version,
	created_at, updated_at`

func (s *MySql) prepareStmt(name, query string) (*sql.Stmt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if stmt, ok := s.statements[name]; ok {
		return stmt, nil
	}

	stmt, err := s.db.Prepare(query)
	if err != nil {
		return nil, fmt.Errorf("prepare statement [%s]: %w", name, err)
	}

	s.statements[name] = stmt
	return stmt, nil
}

func (s *MySql) closeStmt() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for name, stmt := range s.statements {
		_ = stmt.Close()
		delete(s.statements, name)
	}
}

func (s *MySql) stmtInsertAccount() (*sql.Stmt, error) {
	return s.prepareStmt("insertAccount",
		`INSERT INTO accounts (user_id, referral_code, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE user_id = user_id`)
}

func (s *MySql) stmtSelectAccount() (*sql.Stmt, error) {
	return s.prepareStmt("selectAccount",
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ?`)
}

func (s *MySql) stmtLockAccount() (*sql.Stmt, error) {
	return s.prepareStmt("lockAccount",
		`SELECT `+accountColumns+` FROM accounts WHERE user_id = ? FOR UPDATE`)
}

func (s *MySql) stmtUpdateAccount() (*sql.Stmt, error) {
	return s.prepareStmt("updateAccount",
		`UPDATE accounts SET
			username = ?,
			first_name = ?,
			free_scans_used_today = ?,
			last_reset_day = ?,
			bonus_credits = ?,
			premium_until = ?,
			referred_by = ?,
			total_scans = ?,
			version = ?,
			updated_at = ?
		WHERE user_id = ?`)
}

func (s *MySql) stmtSelectReferralCredits() (*sql.Stmt, error) {
	return s.prepareStmt("selectReferralCredits",
		`SELECT referee_id FROM referral_credits WHERE referrer_id = ? ORDER BY referee_id`)
}

func (s *MySql) stmtInsertReferralCredit() (*sql.Stmt, error) {
	return s.prepareStmt("insertReferralCredit",
		`INSERT IGNORE INTO referral_credits (referrer_id, referee_id) VALUES (?, ?)`)
}

func (s *MySql) stmtSelectPayments() (*sql.Stmt, error) {
	return s.prepareStmt("selectPayments",
		`SELECT payment_id FROM applied_payments WHERE user_id = ?`)
}

func (s *MySql) stmtInsertPayment() (*sql.Stmt, error) {
	return s.prepareStmt("insertPayment",
		`INSERT IGNORE INTO applied_payments (user_id, payment_id) VALUES (?, ?)`)
}

func (s *MySql) stmtSelectReferralCode() (*sql.Stmt, error) {
	return s.prepareStmt("selectReferralCode",
		`SELECT user_id FROM accounts WHERE referral_code = ?`)
}

func (s *MySql) stmtInsertEntry() (*sql.Stmt, error) {
	return s.prepareStmt("insertEntry",
		`INSERT INTO ledger_entries (id, user_id, kind, source, amount, days, reference, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
}

func (s *MySql) stmtInsertScan() (*sql.Stmt, error) {
	return s.prepareStmt("insertScan",
		`INSERT INTO scans (id, user_id, source, file_id, verdict, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
}

func (s *MySql) stmtSelectScans() (*sql.Stmt, error) {
	return s.prepareStmt("selectScans",
		`SELECT id, user_id, source, file_id, verdict, created_at
		FROM scans WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`)
}

func (s *MySql) stmtSelectLeaderboard() (*sql.Stmt, error) {
	return s.prepareStmt("selectLeaderboard",
		`SELECT user_id, username, first_name, total_scans
		FROM accounts WHERE total_scans > 0
		ORDER BY total_scans DESC, user_id ASC LIMIT ?`)
}

func (s *MySql) stmtSelectStats() (*sql.Stmt, error) {
	return s.prepareStmt("selectStats",
		`SELECT
			COUNT(*),
			COALESCE(SUM(premium_until IS NOT NULL AND premium_until > ?), 0),
			COALESCE(SUM(total_scans), 0),
			(SELECT COUNT(*) FROM scans WHERE created_at >= ?)
		FROM accounts`)
}
