package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"chartscan/entity"
	"chartscan/internal/config"
	"chartscan/internal/database/migrations"
	"chartscan/internal/store"
	"chartscan/lib/sl"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/pressly/goose/v3"
)

// MySql serializes transactions on one user with SELECT ... FOR UPDATE on the
// account row; other users' rows stay unlocked.
type MySql struct {
	db         *sql.DB
	statements map[string]*sql.Stmt
	mu         sync.Mutex
	log        *slog.Logger
}

var _ store.Store = (*MySql)(nil)

func NewSQLClient(ctx context.Context, conf *config.Config, log *slog.Logger) (*MySql, error) {
	if !conf.MySQL.Enabled {
		return nil, fmt.Errorf("mysql is disabled in configuration")
	}
	connectionURI := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?parseTime=true&loc=UTC",
		conf.MySQL.UserName, conf.MySQL.Password, conf.MySQL.HostName, conf.MySQL.Port, conf.MySQL.Database)
	db, err := sql.Open("mysql", connectionURI)
	if err != nil {
		return nil, fmt.Errorf("sql connect: %w", err)
	}

	// the database container may still be starting
	for i := 0; i < 3; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		if i == 2 {
			_ = db.Close()
			return nil, fmt.Errorf("ping database: %w", err)
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, ctx.Err()
		case <-time.After(30 * time.Second):
		}
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	if err = migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &MySql{
		db:         db,
		statements: make(map[string]*sql.Stmt),
		log:        log.With(sl.Module("database.mysql")),
	}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("mysql"); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	return nil
}

func (s *MySql) Close() {
	s.closeStmt()
	_ = s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*entity.Account, error) {
	var acc entity.Account
	var premiumUntil sql.NullTime
	err := row.Scan(
		&acc.UserID,
		&acc.Username,
		&acc.FirstName,
		&acc.ReferralCode,
		&acc.FreeScansUsedToday,
		&acc.LastResetDay,
		&acc.BonusCredits,
		&premiumUntil,
		&acc.ReferredBy,
		&acc.TotalScans,
		&acc.Version,
		&acc.CreatedAt,
		&acc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if premiumUntil.Valid {
		t := premiumUntil.Time
		acc.PremiumUntil = &t
	}
	return &acc, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	StmtContext(ctx context.Context, stmt *sql.Stmt) *sql.Stmt
}

type dbQuerier struct{}

func (dbQuerier) StmtContext(_ context.Context, stmt *sql.Stmt) *sql.Stmt { return stmt }

// accountStmts are prepared before a transaction begins, so the transaction
// connection finds them already prepared and never waits on the pool.
type accountStmts struct {
	insert   *sql.Stmt
	load     *sql.Stmt
	credits  *sql.Stmt
	payments *sql.Stmt
	update   *sql.Stmt
	credit   *sql.Stmt
	payment  *sql.Stmt
}

func (s *MySql) accountStmts(forUpdate bool) (*accountStmts, error) {
	var st accountStmts
	var err error
	if st.insert, err = s.stmtInsertAccount(); err != nil {
		return nil, err
	}
	if forUpdate {
		st.load, err = s.stmtLockAccount()
	} else {
		st.load, err = s.stmtSelectAccount()
	}
	if err != nil {
		return nil, err
	}
	if st.credits, err = s.stmtSelectReferralCredits(); err != nil {
		return nil, err
	}
	if st.payments, err = s.stmtSelectPayments(); err != nil {
		return nil, err
	}
	if !forUpdate {
		return &st, nil
	}
	if st.update, err = s.stmtUpdateAccount(); err != nil {
		return nil, err
	}
	if st.credit, err = s.stmtInsertReferralCredit(); err != nil {
		return nil, err
	}
	if st.payment, err = s.stmtInsertPayment(); err != nil {
		return nil, err
	}
	return &st, nil
}

// loadAccount inserts the default row if missing and reads the full account.
func loadAccount(ctx context.Context, q querier, st *accountStmts, userID int64, now time.Time) (*entity.Account, error) {
	ts := now.UTC()
	if _, err := q.StmtContext(ctx, st.insert).ExecContext(ctx, userID, entity.ReferralCodeFor(userID), ts, ts); err != nil {
		return nil, fmt.Errorf("insert account: %w", err)
	}
	acc, err := scanAccount(q.StmtContext(ctx, st.load).QueryRowContext(ctx, userID))
	if err != nil {
		return nil, fmt.Errorf("select account: %w", err)
	}
	if acc.ReferralCreditedFor, err = queryColumn[int64](ctx, q.StmtContext(ctx, st.credits), userID); err != nil {
		return nil, fmt.Errorf("select referral credits: %w", err)
	}
	if acc.AppliedPayments, err = queryColumn[string](ctx, q.StmtContext(ctx, st.payments), userID); err != nil {
		return nil, fmt.Errorf("select payments: %w", err)
	}
	return acc, nil
}

func queryColumn[T any](ctx context.Context, stmt *sql.Stmt, args ...any) ([]T, error) {
	rows, err := stmt.QueryContext(ctx, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var v T
		if err = rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *MySql) Read(ctx context.Context, userID int64, now time.Time) (*entity.Account, error) {
	st, err := s.accountStmts(false)
	if err != nil {
		return nil, store.Unavailable("mysql read account", err)
	}
	acc, err := loadAccount(ctx, dbQuerier{}, st, userID, now)
	if err != nil {
		return nil, store.Unavailable("mysql read account", err)
	}
	return acc, nil
}

func (s *MySql) Transact(ctx context.Context, userID int64, now time.Time, fn store.Mutation) (*entity.Account, error) {
	st, err := s.accountStmts(true)
	if err != nil {
		return nil, store.Unavailable("mysql prepare", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, store.Unavailable("mysql begin", err)
	}
	// no-op once committed
	defer func() { _ = tx.Rollback() }()

	current, err := loadAccount(ctx, tx, st, userID, now)
	if err != nil {
		return nil, store.Unavailable("mysql lock account", err)
	}
	work := current.Clone()
	if err = fn(work); err != nil {
		if errors.Is(err, store.ErrNoop) {
			return current, nil
		}
		return nil, err
	}
	work.UserID = userID
	work.Version = current.Version + 1
	work.UpdatedAt = now

	if err = writeAccount(ctx, tx, st, current, work); err != nil {
		return nil, store.Unavailable("mysql update account", err)
	}
	if err = tx.Commit(); err != nil {
		return nil, store.Unavailable("mysql commit", err)
	}
	return work, nil
}

// writeAccount stores the scalar columns and inserts only the referral
// credits and payment ids the mutation added.
func writeAccount(ctx context.Context, tx *sql.Tx, st *accountStmts, current, work *entity.Account) error {
	_, err := tx.StmtContext(ctx, st.update).ExecContext(ctx,
		work.Username,
		work.FirstName,
		work.FreeScansUsedToday,
		work.LastResetDay,
		work.BonusCredits,
		nullTime(work.PremiumUntil),
		work.ReferredBy,
		work.TotalScans,
		work.Version,
		work.UpdatedAt.UTC(),
		work.UserID,
	)
	if err != nil {
		return err
	}
	for _, referee := range work.ReferralCreditedFor {
		if slices.Contains(current.ReferralCreditedFor, referee) {
			continue
		}
		if _, err = tx.StmtContext(ctx, st.credit).ExecContext(ctx, work.UserID, referee); err != nil {
			return err
		}
	}
	for _, id := range work.AppliedPayments {
		if slices.Contains(current.AppliedPayments, id) {
			continue
		}
		if _, err = tx.StmtContext(ctx, st.payment).ExecContext(ctx, work.UserID, id); err != nil {
			return err
		}
	}
	return nil
}

func (s *MySql) FindByReferralCode(ctx context.Context, code string) (int64, error) {
	stmt, err := s.stmtSelectReferralCode()
	if err != nil {
		return 0, store.Unavailable("mysql find referral code", err)
	}
	var userID int64
	err = stmt.QueryRowContext(ctx, code).Scan(&userID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, store.ErrNotFound
	}
	if err != nil {
		return 0, store.Unavailable("mysql find referral code", err)
	}
	return userID, nil
}

func (s *MySql) AppendEntry(ctx context.Context, entry *entity.LedgerEntry) error {
	stmt, err := s.stmtInsertEntry()
	if err != nil {
		return store.Unavailable("mysql append entry", err)
	}
	_, err = stmt.ExecContext(ctx,
		entry.ID,
		entry.UserID,
		entry.Kind,
		entry.Source,
		entry.Amount,
		entry.Days,
		entry.Reference,
		entry.CreatedAt.UTC(),
	)
	if err != nil {
		return store.Unavailable("mysql append entry", err)
	}
	return nil
}

func (s *MySql) SaveScan(ctx context.Context, scan *entity.ScanRecord) error {
	stmt, err := s.stmtInsertScan()
	if err != nil {
		return store.Unavailable("mysql save scan", err)
	}
	verdict, err := json.Marshal(scan.Verdict)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}
	_, err = stmt.ExecContext(ctx, scan.ID, scan.UserID, scan.Source, scan.FileID, verdict, scan.CreatedAt.UTC())
	if err != nil {
		return store.Unavailable("mysql save scan", err)
	}
	return nil
}

func (s *MySql) ScanHistory(ctx context.Context, userID int64, limit int) ([]*entity.ScanRecord, error) {
	limit = store.ClampLimit(limit, store.DefaultHistoryLimit)
	stmt, err := s.stmtSelectScans()
	if err != nil {
		return nil, store.Unavailable("mysql scan history", err)
	}
	rows, err := stmt.QueryContext(ctx, userID, limit)
	if err != nil {
		return nil, store.Unavailable("mysql scan history", err)
	}
	defer rows.Close()

	scans := make([]*entity.ScanRecord, 0, limit)
	for rows.Next() {
		var scan entity.ScanRecord
		var verdict []byte
		if err = rows.Scan(&scan.ID, &scan.UserID, &scan.Source, &scan.FileID, &verdict, &scan.CreatedAt); err != nil {
			return nil, store.Unavailable("mysql scan history", err)
		}
		if err = json.Unmarshal(verdict, &scan.Verdict); err != nil {
			s.log.With(sl.Err(err), slog.String("scan_id", scan.ID)).Warn("decode verdict")
		}
		scans = append(scans, &scan)
	}
	if err = rows.Err(); err != nil {
		return nil, store.Unavailable("mysql scan history", err)
	}
	return scans, nil
}

func (s *MySql) Leaderboard(ctx context.Context, limit int) ([]*entity.LeaderboardEntry, error) {
	limit = store.ClampLimit(limit, store.DefaultLeaderboardLimit)
	stmt, err := s.stmtSelectLeaderboard()
	if err != nil {
		return nil, store.Unavailable("mysql leaderboard", err)
	}
	rows, err := stmt.QueryContext(ctx, limit)
	if err != nil {
		return nil, store.Unavailable("mysql leaderboard", err)
	}
	defer rows.Close()

	entries := make([]*entity.LeaderboardEntry, 0, limit)
	for rows.Next() {
		var e entity.LeaderboardEntry
		if err = rows.Scan(&e.UserID, &e.Username, &e.FirstName, &e.TotalScans); err != nil {
			return nil, store.Unavailable("mysql leaderboard", err)
		}
		entries = append(entries, &e)
	}
	if err = rows.Err(); err != nil {
		return nil, store.Unavailable("mysql leaderboard", err)
	}
	return store.RankEntries(entries), nil
}

func (s *MySql) Stats(ctx context.Context, dayStart, now time.Time) (*entity.Stats, error) {
	stmt, err := s.stmtSelectStats()
	if err != nil {
		return nil, store.Unavailable("mysql stats", err)
	}
	var stats entity.Stats
	err = stmt.QueryRowContext(ctx, now.UTC(), dayStart.UTC()).Scan(
		&stats.Accounts,
		&stats.PremiumActive,
		&stats.TotalScans,
		&stats.ScansToday,
	)
	if err != nil {
		return nil, store.Unavailable("mysql stats", err)
	}
	return &stats, nil
}
