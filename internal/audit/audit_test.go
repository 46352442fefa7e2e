package audit

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"ems_warehouse/internal/warehouse"
)

func newTestLog(t *testing.T) (*Log, *sql.DB) {
	t.Helper()
	db, err := warehouse.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	a := New(db)
	if err := a.InitTables(context.Background()); err != nil {
		t.Fatal(err)
	}
	return a, db
}

func TestRunLifecycle(t *testing.T) {
	a, db := newTestLog(t)
	ctx := context.Background()

	if err := a.StartRun(ctx, "extract.csv", "dev", "full"); err != nil {
		t.Fatal(err)
	}
	if a.RunID() == 0 {
		t.Fatal("run id not assigned")
	}

	var status string
	var endDT sql.NullString
	if err := db.QueryRow(`SELECT run_status, run_end_dt FROM ETL_RUN_LOG WHERE run_id = ?`, a.RunID()).
		Scan(&status, &endDT); err != nil {
		t.Fatal(err)
	}
	if status != StatusRunning || endDT.Valid {
		t.Fatalf("open run: status=%s end=%v", status, endDT)
	}

	if err := a.EndRun(ctx, StatusSuccess, 120, ""); err != nil {
		t.Fatal(err)
	}
	var rows int
	var errMsg sql.NullString
	if err := db.QueryRow(`SELECT run_status, run_end_dt, total_source_rows, error_message
		FROM ETL_RUN_LOG WHERE run_id = ?`, a.RunID()).
		Scan(&status, &endDT, &rows, &errMsg); err != nil {
		t.Fatal(err)
	}
	if status != StatusSuccess || !endDT.Valid || rows != 120 {
		t.Fatalf("closed run: status=%s end=%v rows=%d", status, endDT, rows)
	}
	if errMsg.Valid {
		t.Fatalf("clean run should have null error_message, got %q", errMsg.String)
	}
}

func TestEndRunFailedKeepsMessage(t *testing.T) {
	a, db := newTestLog(t)
	ctx := context.Background()

	if err := a.StartRun(ctx, "extract.csv", "dev", "full"); err != nil {
		t.Fatal(err)
	}
	if err := a.EndRun(ctx, StatusFailed, 0, "source file missing"); err != nil {
		t.Fatal(err)
	}
	var errMsg string
	if err := db.QueryRow(`SELECT error_message FROM ETL_RUN_LOG WHERE run_id = ?`, a.RunID()).Scan(&errMsg); err != nil {
		t.Fatal(err)
	}
	if errMsg != "source file missing" {
		t.Fatalf("error_message = %q", errMsg)
	}
}

func TestStepSuccessRecordsMetrics(t *testing.T) {
	a, db := newTestLog(t)
	ctx := context.Background()

	if err := a.StartRun(ctx, "extract.csv", "dev", "full"); err != nil {
		t.Fatal(err)
	}
	err := a.Step(ctx, "stage_source", func(m *StepMetrics) error {
		m.RowsRead = 100
		m.RowsInserted = 98
		m.RowsRejected = 2
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}

	var status string
	var endDT sql.NullString
	var read, inserted, rejected int
	if err := db.QueryRow(`SELECT step_status, step_end_dt, rows_read, rows_inserted, rows_rejected
		FROM ETL_STEP_LOG WHERE run_id = ? AND step_name = 'stage_source'`, a.RunID()).
		Scan(&status, &endDT, &read, &inserted, &rejected); err != nil {
		t.Fatal(err)
	}
	if status != StatusSuccess || !endDT.Valid {
		t.Fatalf("step row: status=%s end=%v", status, endDT)
	}
	if read != 100 || inserted != 98 || rejected != 2 {
		t.Fatalf("metrics = %d/%d/%d", read, inserted, rejected)
	}
}

func TestStepFailureClosesRowAndReturnsError(t *testing.T) {
	a, db := newTestLog(t)
	ctx := context.Background()

	if err := a.StartRun(ctx, "extract.csv", "dev", "full"); err != nil {
		t.Fatal(err)
	}
	boom := errors.New("cannot read source")
	err := a.Step(ctx, "validate_source", func(m *StepMetrics) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("step error = %v, want original", err)
	}

	// The step row must still be closed, FAILED, with the message.
	var status string
	var endDT sql.NullString
	var errMsg string
	if err := db.QueryRow(`SELECT step_status, step_end_dt, error_message
		FROM ETL_STEP_LOG WHERE run_id = ?`, a.RunID()).
		Scan(&status, &endDT, &errMsg); err != nil {
		t.Fatal(err)
	}
	if status != StatusFailed || !endDT.Valid {
		t.Fatalf("failed step row: status=%s end=%v", status, endDT)
	}
	if errMsg != "cannot read source" {
		t.Fatalf("error_message = %q", errMsg)
	}
}

func TestLogErrorPersistsAndBuffers(t *testing.T) {
	a, db := newTestLog(t)
	ctx := context.Background()

	if err := a.StartRun(ctx, "extract.csv", "dev", "full"); err != nil {
		t.Fatal(err)
	}
	e := RecordError{
		StepName:     "load_facts",
		SourceFile:   "extract.csv",
		SourceRowNum: 17,
		ColumnName:   "INCIDENT_DT",
		ErrorType:    "INVALID_DATE",
		ErrorMessage: "cannot parse date: garbage",
		RawValue:     "garbage",
	}
	if err := a.LogError(ctx, e); err != nil {
		t.Fatal(err)
	}

	got := a.Errors()
	if len(got) != 1 || got[0] != e {
		t.Fatalf("buffered errors = %+v", got)
	}

	var rowNum int
	var col, typ, raw string
	if err := db.QueryRow(`SELECT source_row_num, column_name, error_type, raw_value
		FROM ETL_ERROR_LOG WHERE run_id = ?`, a.RunID()).
		Scan(&rowNum, &col, &typ, &raw); err != nil {
		t.Fatal(err)
	}
	if rowNum != 17 || col != "INCIDENT_DT" || typ != "INVALID_DATE" || raw != "garbage" {
		t.Fatalf("persisted error = %d %s %s %q", rowNum, col, typ, raw)
	}
}

func TestLogErrorSourceData(t *testing.T) {
	a, db := newTestLog(t)
	ctx := context.Background()

	if err := a.StartRun(ctx, "extract.csv", "dev", "full"); err != nil {
		t.Fatal(err)
	}
	withData := RecordError{
		StepName:     "load_facts",
		SourceRowNum: 3,
		ColumnName:   "INCIDENT_DT",
		ErrorType:    "INVALID_DATE",
		RawValue:     "garbage",
		SourceData:   `{"INCIDENT_DT":"garbage","INCIDENT_COUNTY":"Marion"}`,
	}
	if err := a.LogError(ctx, withData); err != nil {
		t.Fatal(err)
	}
	if err := a.LogError(ctx, RecordError{SourceRowNum: 4, ColumnName: "INJURY_FLG", ErrorType: "INVALID_FLAG"}); err != nil {
		t.Fatal(err)
	}

	var srcData sql.NullString
	if err := db.QueryRow(`SELECT source_data FROM ETL_ERROR_LOG WHERE source_row_num = 3`).
		Scan(&srcData); err != nil {
		t.Fatal(err)
	}
	if !srcData.Valid || srcData.String != withData.SourceData {
		t.Fatalf("source_data = %+v", srcData)
	}

	// Errors without a payload keep the column NULL.
	if err := db.QueryRow(`SELECT source_data FROM ETL_ERROR_LOG WHERE source_row_num = 4`).
		Scan(&srcData); err != nil {
		t.Fatal(err)
	}
	if srcData.Valid {
		t.Fatalf("source_data = %q, want NULL", srcData.String)
	}
}

func TestStartRunResetsErrorBuffer(t *testing.T) {
	a, _ := newTestLog(t)
	ctx := context.Background()

	if err := a.StartRun(ctx, "a.csv", "dev", "full"); err != nil {
		t.Fatal(err)
	}
	if err := a.LogError(ctx, RecordError{ColumnName: "INJURY_FLG", ErrorType: "INVALID_FLAG"}); err != nil {
		t.Fatal(err)
	}
	if err := a.EndRun(ctx, StatusPartial, 1, ""); err != nil {
		t.Fatal(err)
	}

	if err := a.StartRun(ctx, "b.csv", "dev", "full"); err != nil {
		t.Fatal(err)
	}
	if len(a.Errors()) != 0 {
		t.Fatalf("new run inherited %d errors", len(a.Errors()))
	}
}
