package staging

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"ems_warehouse/internal/warehouse"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := warehouse.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	s := NewStore(db)
	if err := s.Initialize(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func testRecords(n int) []Record {
	records := make([]Record, 0, n)
	for i := 1; i <= n; i++ {
		records = append(records, Record{
			SourceRowNum:   i,
			IncidentDT:     fmt.Sprintf("2024-01-%02d", (i%28)+1),
			IncidentCounty: "Marion",
			InjuryFlg:      "No",
		})
	}
	return records
}

func TestAppendAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.Append(ctx, testRecords(5), "extract.csv")
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("appended %d, want 5", n)
	}
	count, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Fatalf("count = %d, want 5", count)
	}
}

func TestAppendPreservesRawValues(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	rec := Record{
		SourceRowNum:   1,
		IncidentDT:     "  2024-01-05 ",
		IncidentCounty: "",
		InjuryFlg:      "maybe",
	}
	if _, err := s.Append(ctx, []Record{rec}, "extract.csv"); err != nil {
		t.Fatal(err)
	}
	got, err := s.ReadBatch(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("read %d rows", len(got))
	}
	// Staging never coerces: whitespace, blanks, and junk survive verbatim.
	if got[0].IncidentDT != "  2024-01-05 " {
		t.Errorf("IncidentDT = %q", got[0].IncidentDT)
	}
	if got[0].IncidentCounty != "" {
		t.Errorf("IncidentCounty = %q", got[0].IncidentCounty)
	}
	if got[0].InjuryFlg != "maybe" {
		t.Errorf("InjuryFlg = %q", got[0].InjuryFlg)
	}
	if got[0].SourceFile != "extract.csv" {
		t.Errorf("SourceFile = %q", got[0].SourceFile)
	}
	if got[0].LoadDatetime == "" {
		t.Error("LoadDatetime not stamped")
	}
}

func TestReadBatchOrderAndPaging(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, testRecords(10), "extract.csv"); err != nil {
		t.Fatal(err)
	}
	first, err := s.ReadBatch(ctx, 4, 0)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.ReadBatch(ctx, 4, 4)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 4 || len(second) != 4 {
		t.Fatalf("batch sizes %d/%d", len(first), len(second))
	}
	if first[0].SourceRowNum != 1 || second[0].SourceRowNum != 5 {
		t.Fatalf("paging broke order: %d, %d", first[0].SourceRowNum, second[0].SourceRowNum)
	}
	tail, err := s.ReadBatch(ctx, 4, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(tail) != 2 {
		t.Fatalf("tail = %d rows, want 2", len(tail))
	}
	empty, err := s.ReadBatch(ctx, 4, 12)
	if err != nil {
		t.Fatal(err)
	}
	if len(empty) != 0 {
		t.Fatalf("past-end batch = %d rows", len(empty))
	}
}

func TestInitializeDropsPriorRows(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Append(ctx, testRecords(3), "old.csv"); err != nil {
		t.Fatal(err)
	}
	if err := s.Initialize(ctx); err != nil {
		t.Fatal(err)
	}
	count, err := s.Count(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("count after re-init = %d, want 0", count)
	}
}

func TestAppendEmptyBatch(t *testing.T) {
	s := newTestStore(t)
	n, err := s.Append(context.Background(), nil, "extract.csv")
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("appended %d, want 0", n)
	}
}

func TestValueAccessor(t *testing.T) {
	r := Record{IncidentDT: "a", NaloxoneGivenFlg: "b", PatientArrivedDestinationDT: "c"}
	if r.Value(ColIncidentDT) != "a" || r.Value(ColNaloxoneGivenFlg) != "b" || r.Value(ColPatientArrivedDestinationDT) != "c" {
		t.Fatal("Value returned wrong column")
	}
	if r.Value("NOT_A_COLUMN") != "" {
		t.Fatal("unknown column should be empty")
	}
}

func TestRawCoversAllSourceColumns(t *testing.T) {
	r := Record{IncidentDT: "2024-01-01", IncidentCounty: "Marion"}
	raw := r.Raw()
	if len(raw) != len(SourceColumns) {
		t.Fatalf("raw has %d columns, want %d", len(raw), len(SourceColumns))
	}
	if raw[ColIncidentDT] != "2024-01-01" || raw[ColIncidentCounty] != "Marion" {
		t.Fatalf("raw = %v", raw)
	}
}
