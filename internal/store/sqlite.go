package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"statement-intel-service/internal/models"
	"statement-intel-service/pkg/errors"
	"statement-intel-service/pkg/logger"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists the intelligence records to a SQLite database.
// Amounts are stored as decimal strings to keep cent-level precision.
type SQLiteStore struct {
	db     *sql.DB
	logger logger.Logger
}

// NewSQLiteStore opens (or creates) the SQLite database and runs migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so API reads don't block ingestion writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger.GetGlobalLogger().WithComponent("sqlite_store"),
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	s.logger.WithField("path", dbPath).Info("sqlite store opened")
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS financial_analyses (
			opportunity_id      TEXT PRIMARY KEY,
			parsing_status      TEXT NOT NULL,
			pdf_count           INTEGER NOT NULL DEFAULT 0,
			total_transactions  INTEGER NOT NULL DEFAULT 0,
			total_deposits      TEXT NOT NULL DEFAULT '0',
			total_withdrawals   TEXT NOT NULL DEFAULT '0',
			net_cash_flow       TEXT NOT NULL DEFAULT '0',
			total_mca_payments  TEXT NOT NULL DEFAULT '0',
			nsf_count           INTEGER NOT NULL DEFAULT 0,
			negative_days_count INTEGER NOT NULL DEFAULT 0,
			date_range_start    TEXT,
			date_range_end      TEXT,
			verified            INTEGER NOT NULL DEFAULT 0,
			error_message       TEXT
		)`,

		`CREATE TABLE IF NOT EXISTS bank_transactions (
			id                 TEXT PRIMARY KEY,
			opportunity_id     TEXT NOT NULL,
			transaction_date   TEXT NOT NULL,
			description        TEXT NOT NULL,
			debit              TEXT NOT NULL,
			credit             TEXT NOT NULL,
			balance            TEXT,
			is_mca             INTEGER NOT NULL DEFAULT 0,
			is_recurring       INTEGER NOT NULL DEFAULT 0,
			recurring_group_id TEXT,
			category           TEXT,
			is_anomaly         INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tx_opportunity ON bank_transactions(opportunity_id)`,

		`CREATE TABLE IF NOT EXISTS recurring_patterns (
			id                  TEXT PRIMARY KEY,
			opportunity_id      TEXT NOT NULL,
			description_pattern TEXT NOT NULL,
			category            TEXT NOT NULL,
			frequency           TEXT NOT NULL,
			transaction_count   INTEGER NOT NULL,
			total_amount        TEXT NOT NULL,
			avg_amount          TEXT NOT NULL,
			min_amount          TEXT NOT NULL,
			max_amount          TEXT NOT NULL,
			first_occurrence    TEXT NOT NULL,
			last_occurrence     TEXT NOT NULL,
			confidence_score    INTEGER NOT NULL,
			is_mca              INTEGER NOT NULL DEFAULT 0,
			verified            INTEGER NOT NULL DEFAULT 0,
			rep_notes           TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pattern_opportunity ON recurring_patterns(opportunity_id)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %.40q: %w", stmt, err)
		}
	}
	return nil
}

// GetAnalysis implements Store.
func (s *SQLiteStore) GetAnalysis(ctx context.Context, opportunityID string) (*models.FinancialAnalysis, error) {
	row := s.db.QueryRowContext(ctx, `SELECT opportunity_id, parsing_status, pdf_count,
		total_transactions, total_deposits, total_withdrawals, net_cash_flow,
		total_mca_payments, nsf_count, negative_days_count,
		date_range_start, date_range_end, verified, error_message
		FROM financial_analyses WHERE opportunity_id = ?`, opportunityID)

	analysis, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, errors.StoreError(errors.CodeRecordMissing, "get_analysis", nil).
			WithContext("opportunity_id", opportunityID)
	}
	if err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, "get_analysis", err)
	}
	return analysis, nil
}

// SaveAnalysis implements Store.
func (s *SQLiteStore) SaveAnalysis(ctx context.Context, fa *models.FinancialAnalysis) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO financial_analyses
		(opportunity_id, parsing_status, pdf_count, total_transactions,
		 total_deposits, total_withdrawals, net_cash_flow, total_mca_payments,
		 nsf_count, negative_days_count, date_range_start, date_range_end,
		 verified, error_message)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(opportunity_id) DO UPDATE SET
		 parsing_status=excluded.parsing_status,
		 pdf_count=excluded.pdf_count,
		 total_transactions=excluded.total_transactions,
		 total_deposits=excluded.total_deposits,
		 total_withdrawals=excluded.total_withdrawals,
		 net_cash_flow=excluded.net_cash_flow,
		 total_mca_payments=excluded.total_mca_payments,
		 nsf_count=excluded.nsf_count,
		 negative_days_count=excluded.negative_days_count,
		 date_range_start=excluded.date_range_start,
		 date_range_end=excluded.date_range_end,
		 verified=excluded.verified,
		 error_message=excluded.error_message`,
		fa.OpportunityID, string(fa.ParsingStatus), fa.PDFCount, fa.TotalTransactions,
		fa.TotalDeposits.String(), fa.TotalWithdrawals.String(), fa.NetCashFlow.String(),
		fa.TotalMCAPayments.String(), fa.NSFCount, fa.NegativeDaysCount,
		nullableDate(fa.DateRangeStart), nullableDate(fa.DateRangeEnd),
		boolToInt(fa.Verified), fa.ErrorMessage,
	)
	if err != nil {
		return errors.StoreError(errors.CodeQueryFailed, "save_analysis", err)
	}
	return nil
}

// ReplaceTransactions implements Store. Delete and insert run in one
// transaction so concurrent readers never observe a partial set.
func (s *SQLiteStore) ReplaceTransactions(ctx context.Context, opportunityID string, txs []*models.BankTransaction) error {
	return s.inTx(ctx, "replace_transactions", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM bank_transactions WHERE opportunity_id = ?`, opportunityID); err != nil {
			return err
		}
		return insertTransactions(ctx, tx, txs)
	})
}

// ListTransactions implements Store.
func (s *SQLiteStore) ListTransactions(ctx context.Context, opportunityID string) ([]*models.BankTransaction, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, opportunity_id, transaction_date,
		description, debit, credit, balance, is_mca, is_recurring,
		recurring_group_id, category, is_anomaly
		FROM bank_transactions WHERE opportunity_id = ?`, opportunityID)
	if err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, "list_transactions", err)
	}
	defer rows.Close()

	var result []*models.BankTransaction
	for rows.Next() {
		bt, err := scanTransaction(rows)
		if err != nil {
			return nil, errors.StoreError(errors.CodeQueryFailed, "list_transactions", err)
		}
		result = append(result, bt)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, "list_transactions", err)
	}

	models.SortTransactionsByDate(result)
	return result, nil
}

// ApplyDetection implements Store.
func (s *SQLiteStore) ApplyDetection(ctx context.Context, opportunityID string, patterns []*models.RecurringPattern, txs []*models.BankTransaction) error {
	return s.inTx(ctx, "apply_detection", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM recurring_patterns WHERE opportunity_id = ?`, opportunityID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM bank_transactions WHERE opportunity_id = ?`, opportunityID); err != nil {
			return err
		}

		for _, p := range patterns {
			if _, err := tx.ExecContext(ctx, `INSERT INTO recurring_patterns
				(id, opportunity_id, description_pattern, category, frequency,
				 transaction_count, total_amount, avg_amount, min_amount, max_amount,
				 first_occurrence, last_occurrence, confidence_score, is_mca,
				 verified, rep_notes)
				VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
				p.ID, p.OpportunityID, p.DescriptionPattern, string(p.Category),
				string(p.Frequency), p.TransactionCount, p.TotalAmount.String(),
				p.AvgAmount.String(), p.MinAmount.String(), p.MaxAmount.String(),
				p.FirstOccurrence.Format(models.DateFormat),
				p.LastOccurrence.Format(models.DateFormat),
				p.ConfidenceScore, boolToInt(p.IsMCA), boolToInt(p.Verified), p.RepNotes,
			); err != nil {
				return err
			}
		}
		return insertTransactions(ctx, tx, txs)
	})
}

// GetPattern implements Store.
func (s *SQLiteStore) GetPattern(ctx context.Context, patternID string) (*models.RecurringPattern, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, opportunity_id, description_pattern,
		category, frequency, transaction_count, total_amount, avg_amount,
		min_amount, max_amount, first_occurrence, last_occurrence,
		confidence_score, is_mca, verified, rep_notes
		FROM recurring_patterns WHERE id = ?`, patternID)

	pattern, err := scanPattern(row)
	if err == sql.ErrNoRows {
		return nil, errors.StoreError(errors.CodeRecordMissing, "get_pattern", nil).
			WithContext("pattern_id", patternID)
	}
	if err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, "get_pattern", err)
	}
	return pattern, nil
}

// UpdatePattern implements Store.
func (s *SQLiteStore) UpdatePattern(ctx context.Context, p *models.RecurringPattern) error {
	result, err := s.db.ExecContext(ctx, `UPDATE recurring_patterns SET
		description_pattern = ?, category = ?, frequency = ?, is_mca = ?,
		verified = ?, rep_notes = ?
		WHERE id = ?`,
		p.DescriptionPattern, string(p.Category), string(p.Frequency),
		boolToInt(p.IsMCA), boolToInt(p.Verified), p.RepNotes, p.ID,
	)
	if err != nil {
		return errors.StoreError(errors.CodeQueryFailed, "update_pattern", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return errors.StoreError(errors.CodeQueryFailed, "update_pattern", err)
	}
	if affected == 0 {
		return errors.StoreError(errors.CodeRecordMissing, "update_pattern", nil).
			WithContext("pattern_id", p.ID)
	}
	return nil
}

// ListPatterns implements Store.
func (s *SQLiteStore) ListPatterns(ctx context.Context, opportunityID string) ([]*models.RecurringPattern, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, opportunity_id, description_pattern,
		category, frequency, transaction_count, total_amount, avg_amount,
		min_amount, max_amount, first_occurrence, last_occurrence,
		confidence_score, is_mca, verified, rep_notes
		FROM recurring_patterns WHERE opportunity_id = ?`, opportunityID)
	if err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, "list_patterns", err)
	}
	defer rows.Close()

	var result []*models.RecurringPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, errors.StoreError(errors.CodeQueryFailed, "list_patterns", err)
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StoreError(errors.CodeQueryFailed, "list_patterns", err)
	}

	models.SortPatternsForDisplay(result)
	return result, nil
}

// Close implements Store.
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing sqlite store")
	return s.db.Close()
}

func (s *SQLiteStore) inTx(ctx context.Context, operation string, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.StoreError(errors.CodeQueryFailed, operation, err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return errors.StoreError(errors.CodeQueryFailed, operation, err)
	}
	if err := tx.Commit(); err != nil {
		return errors.StoreError(errors.CodeQueryFailed, operation, err)
	}
	return nil
}

func insertTransactions(ctx context.Context, tx *sql.Tx, txs []*models.BankTransaction) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO bank_transactions
		(id, opportunity_id, transaction_date, description, debit, credit,
		 balance, is_mca, is_recurring, recurring_group_id, category, is_anomaly)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, bt := range txs {
		var balance *string
		if bt.Balance != nil {
			b := bt.Balance.String()
			balance = &b
		}
		var category *string
		if bt.Category != nil {
			c := string(*bt.Category)
			category = &c
		}
		if _, err := stmt.ExecContext(ctx,
			bt.ID, bt.OpportunityID, bt.TransactionDate.Format(models.DateFormat),
			bt.Description, bt.Debit.String(), bt.Credit.String(), balance,
			boolToInt(bt.IsMCA), boolToInt(bt.IsRecurring),
			bt.RecurringGroupID, category, boolToInt(bt.IsAnomaly),
		); err != nil {
			return err
		}
	}
	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(row scanner) (*models.FinancialAnalysis, error) {
	var fa models.FinancialAnalysis
	var status, deposits, withdrawals, netFlow, mcaPayments string
	var start, end, errMsg sql.NullString
	var verified int

	err := row.Scan(&fa.OpportunityID, &status, &fa.PDFCount, &fa.TotalTransactions,
		&deposits, &withdrawals, &netFlow, &mcaPayments,
		&fa.NSFCount, &fa.NegativeDaysCount, &start, &end, &verified, &errMsg)
	if err != nil {
		return nil, err
	}

	fa.ParsingStatus = models.ParsingStatus(status)
	if fa.TotalDeposits, err = decimal.NewFromString(deposits); err != nil {
		return nil, err
	}
	if fa.TotalWithdrawals, err = decimal.NewFromString(withdrawals); err != nil {
		return nil, err
	}
	if fa.NetCashFlow, err = decimal.NewFromString(netFlow); err != nil {
		return nil, err
	}
	if fa.TotalMCAPayments, err = decimal.NewFromString(mcaPayments); err != nil {
		return nil, err
	}
	if fa.DateRangeStart, err = parseNullableDate(start); err != nil {
		return nil, err
	}
	if fa.DateRangeEnd, err = parseNullableDate(end); err != nil {
		return nil, err
	}
	fa.Verified = verified != 0
	if errMsg.Valid {
		fa.ErrorMessage = &errMsg.String
	}
	return &fa, nil
}

func scanTransaction(row scanner) (*models.BankTransaction, error) {
	var bt models.BankTransaction
	var date, debit, credit string
	var balance, groupID, category sql.NullString
	var isMCA, isRecurring, isAnomaly int

	err := row.Scan(&bt.ID, &bt.OpportunityID, &date, &bt.Description,
		&debit, &credit, &balance, &isMCA, &isRecurring, &groupID, &category, &isAnomaly)
	if err != nil {
		return nil, err
	}

	if bt.TransactionDate, err = time.Parse(models.DateFormat, date); err != nil {
		return nil, err
	}
	if bt.Debit, err = decimal.NewFromString(debit); err != nil {
		return nil, err
	}
	if bt.Credit, err = decimal.NewFromString(credit); err != nil {
		return nil, err
	}
	if balance.Valid {
		b, err := decimal.NewFromString(balance.String)
		if err != nil {
			return nil, err
		}
		bt.Balance = &b
	}
	bt.IsMCA = isMCA != 0
	bt.IsRecurring = isRecurring != 0
	if groupID.Valid {
		bt.RecurringGroupID = &groupID.String
	}
	if category.Valid {
		c := models.Category(category.String)
		bt.Category = &c
	}
	bt.IsAnomaly = isAnomaly != 0
	return &bt, nil
}

func scanPattern(row scanner) (*models.RecurringPattern, error) {
	var p models.RecurringPattern
	var category, frequency, total, avg, min, max, first, last string
	var isMCA, verified int

	err := row.Scan(&p.ID, &p.OpportunityID, &p.DescriptionPattern,
		&category, &frequency, &p.TransactionCount, &total, &avg, &min, &max,
		&first, &last, &p.ConfidenceScore, &isMCA, &verified, &p.RepNotes)
	if err != nil {
		return nil, err
	}

	p.Category = models.Category(category)
	p.Frequency = models.Frequency(frequency)
	if p.TotalAmount, err = decimal.NewFromString(total); err != nil {
		return nil, err
	}
	if p.AvgAmount, err = decimal.NewFromString(avg); err != nil {
		return nil, err
	}
	if p.MinAmount, err = decimal.NewFromString(min); err != nil {
		return nil, err
	}
	if p.MaxAmount, err = decimal.NewFromString(max); err != nil {
		return nil, err
	}
	if p.FirstOccurrence, err = time.Parse(models.DateFormat, first); err != nil {
		return nil, err
	}
	if p.LastOccurrence, err = time.Parse(models.DateFormat, last); err != nil {
		return nil, err
	}
	p.IsMCA = isMCA != 0
	p.Verified = verified != 0
	return &p, nil
}

func nullableDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(models.DateFormat)
	return &s
}

func parseNullableDate(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(models.DateFormat, ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
