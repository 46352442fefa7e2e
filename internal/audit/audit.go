// Package audit records ETL run, step, and record-level error history in
// the warehouse so every load is traceable after the fact.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	"ems_warehouse/internal/config"
)

// Run and step statuses.
const (
	StatusRunning = "RUNNING"
	StatusSuccess = "SUCCESS"
	StatusFailed  = "FAILED"
	StatusPartial = "PARTIAL"
)

// Log writes the audit trail for a run. One Log instance serves one run.
type Log struct {
	db    *sql.DB
	runID int64

	errs []RecordError
}

// RecordError is one record-level data quality finding. SourceData
// optionally carries the whole raw record so a rejected row can be
// reconstructed from the audit trail alone.
type RecordError struct {
	StepName     string
	SourceFile   string
	SourceRowNum int
	ColumnName   string
	ErrorType    string
	ErrorMessage string
	RawValue     string
	SourceData   string
}

// StepMetrics accumulates row counts while a step runs. The step callback
// fills it in; the closing log row reads from it.
type StepMetrics struct {
	RowsRead     int
	RowsInserted int
	RowsUpdated  int
	RowsRejected int
}

func New(db *sql.DB) *Log {
	return &Log{db: db}
}

// InitTables creates the audit tables if missing.
func (a *Log) InitTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS ETL_RUN_LOG (
			run_id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_start_dt TEXT NOT NULL,
			run_end_dt TEXT,
			run_status TEXT NOT NULL DEFAULT 'RUNNING',
			source_file TEXT,
			environment TEXT,
			load_type TEXT,
			total_source_rows INTEGER,
			error_message TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS ETL_STEP_LOG (
			step_id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			step_name TEXT NOT NULL,
			step_start_dt TEXT NOT NULL,
			step_end_dt TEXT,
			step_status TEXT NOT NULL DEFAULT 'RUNNING',
			rows_read INTEGER,
			rows_inserted INTEGER,
			rows_updated INTEGER,
			rows_rejected INTEGER,
			error_message TEXT,
			FOREIGN KEY (run_id) REFERENCES ETL_RUN_LOG (run_id)
		)`,
		`CREATE TABLE IF NOT EXISTS ETL_ERROR_LOG (
			error_id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id INTEGER NOT NULL,
			step_name TEXT,
			source_file TEXT,
			source_row_num INTEGER,
			column_name TEXT,
			error_type TEXT,
			error_message TEXT,
			raw_value TEXT,
			source_data TEXT,
			logged_dt TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES ETL_RUN_LOG (run_id)
		)`,
		`CREATE INDEX IF NOT EXISTS IX_ETL_STEP_RUN ON ETL_STEP_LOG (run_id)`,
		`CREATE INDEX IF NOT EXISTS IX_ETL_ERROR_RUN ON ETL_ERROR_LOG (run_id)`,
	}
	for _, stmt := range stmts {
		if _, err := a.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("audit init: %w", err)
		}
	}
	return nil
}

// StartRun opens a run row in RUNNING state and remembers its id.
func (a *Log) StartRun(ctx context.Context, sourceFile, environment, loadType string) error {
	res, err := a.db.ExecContext(ctx,
		`INSERT INTO ETL_RUN_LOG (run_start_dt, run_status, source_file, environment, load_type)
		 VALUES (?, ?, ?, ?, ?)`,
		config.Timestamp(config.Now()), StatusRunning, sourceFile, environment, loadType)
	if err != nil {
		return fmt.Errorf("start run: %w", err)
	}
	a.runID, err = res.LastInsertId()
	if err != nil {
		return err
	}
	a.errs = a.errs[:0]
	log.Printf("run %d started: file=%s env=%s type=%s", a.runID, sourceFile, environment, loadType)
	return nil
}

// RunID returns the id of the open run, 0 before StartRun.
func (a *Log) RunID() int64 { return a.runID }

// EndRun closes the run row with a terminal status.
func (a *Log) EndRun(ctx context.Context, status string, totalSourceRows int, errMsg string) error {
	var msg any
	if errMsg != "" {
		msg = errMsg
	}
	_, err := a.db.ExecContext(ctx,
		`UPDATE ETL_RUN_LOG
		 SET run_end_dt = ?, run_status = ?, total_source_rows = ?, error_message = ?
		 WHERE run_id = ?`,
		config.Timestamp(config.Now()), status, totalSourceRows, msg, a.runID)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	log.Printf("run %d finished: status=%s rows=%d", a.runID, status, totalSourceRows)
	return nil
}

// Step runs fn bracketed by an ETL_STEP_LOG row. The row is always closed:
// SUCCESS with metrics when fn returns nil, FAILED with the error message
// when it does not. The error is returned unchanged either way.
func (a *Log) Step(ctx context.Context, name string, fn func(m *StepMetrics) error) error {
	res, err := a.db.ExecContext(ctx,
		`INSERT INTO ETL_STEP_LOG (run_id, step_name, step_start_dt, step_status)
		 VALUES (?, ?, ?, ?)`,
		a.runID, name, config.Timestamp(config.Now()), StatusRunning)
	if err != nil {
		return fmt.Errorf("step %s: open: %w", name, err)
	}
	stepID, err := res.LastInsertId()
	if err != nil {
		return err
	}
	log.Printf("step %s started", name)

	var m StepMetrics
	stepErr := fn(&m)

	status := StatusSuccess
	var msg any
	if stepErr != nil {
		status = StatusFailed
		msg = stepErr.Error()
	}
	if _, err := a.db.ExecContext(ctx,
		`UPDATE ETL_STEP_LOG
		 SET step_end_dt = ?, step_status = ?, rows_read = ?, rows_inserted = ?,
		     rows_updated = ?, rows_rejected = ?, error_message = ?
		 WHERE step_id = ?`,
		config.Timestamp(config.Now()), status, m.RowsRead, m.RowsInserted,
		m.RowsUpdated, m.RowsRejected, msg, stepID); err != nil && stepErr == nil {
		return fmt.Errorf("step %s: close: %w", name, err)
	}
	if stepErr != nil {
		log.Printf("step %s failed: %v", name, stepErr)
		return stepErr
	}
	log.Printf("step %s done: read=%d inserted=%d rejected=%d", name, m.RowsRead, m.RowsInserted, m.RowsRejected)
	return nil
}

// LogError persists a record-level error and keeps it in memory for the
// run report.
func (a *Log) LogError(ctx context.Context, e RecordError) error {
	a.errs = append(a.errs, e)
	var srcData any
	if e.SourceData != "" {
		srcData = e.SourceData
	}
	_, err := a.db.ExecContext(ctx,
		`INSERT INTO ETL_ERROR_LOG (run_id, step_name, source_file, source_row_num,
		  column_name, error_type, error_message, raw_value, source_data, logged_dt)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.runID, e.StepName, e.SourceFile, e.SourceRowNum,
		e.ColumnName, e.ErrorType, e.ErrorMessage, e.RawValue, srcData,
		config.Timestamp(config.Now()))
	if err != nil {
		return fmt.Errorf("log error: %w", err)
	}
	return nil
}

// Errors returns the record-level errors logged during the open run.
func (a *Log) Errors() []RecordError { return a.errs }
