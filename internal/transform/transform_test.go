package transform

import (
	"testing"

	"ems_warehouse/internal/staging"
)

func strptr(s string) *string { return &s }

func TestCleanText(t *testing.T) {
	if got := cleanText("  Marion   County "); got == nil || *got != "Marion County" {
		t.Fatalf("cleanText collapse: got %v", got)
	}
	if got := cleanText("   "); got != nil {
		t.Fatalf("cleanText blank should be nil, got %q", *got)
	}
	if got := cleanText(""); got != nil {
		t.Fatalf("cleanText empty should be nil, got %q", *got)
	}
	if got := cleanText("one\ttwo\nthree"); got == nil || *got != "one two three" {
		t.Fatalf("cleanText whitespace kinds: got %v", got)
	}
}

func TestDateKeyFormats(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"2024-03-15", 20240315},
		{"03/15/2024", 20240315},
		{"2024/03/15", 20240315},
		{"2024-03-15 14:30:00", 20240315},
		{"2024-03-15T14:30:00", 20240315},
		{"not a date", -1},
		{"2024-13-45", -1},
		{"15-03-2024", -1},
	}
	for _, c := range cases {
		if got := DateKey(strptr(c.in)); got != c.want {
			t.Errorf("DateKey(%q) = %d, want %d", c.in, got, c.want)
		}
	}
	if got := DateKey(nil); got != -1 {
		t.Errorf("DateKey(nil) = %d, want -1", got)
	}
}

func TestDateKeyDistinctDatesDistinctKeys(t *testing.T) {
	seen := map[int]string{}
	for _, d := range []string{"2024-01-31", "2024-02-01", "2024-12-31", "2025-01-01"} {
		k := DateKey(strptr(d))
		if prev, dup := seen[k]; dup {
			t.Fatalf("key %d for both %s and %s", k, prev, d)
		}
		seen[k] = d
	}
}

func TestTimeKey(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"2024-03-15 00:00:00", 0},
		{"2024-03-15 14:30:00", 870},
		{"2024-03-15T23:59:59", 1439},
		{"2024-03-15", 0},
		{"garbage", -1},
	}
	for _, c := range cases {
		if got := TimeKey(strptr(c.in)); got != c.want {
			t.Errorf("TimeKey(%q) = %d, want %d", c.in, got, c.want)
		}
	}
	if got := TimeKey(nil); got != -1 {
		t.Errorf("TimeKey(nil) = %d, want -1", got)
	}
}

func TestTimeDiffMinutes(t *testing.T) {
	start := strptr("2024-03-15 10:00:00")
	end := strptr("2024-03-15 10:07:30")
	got := TimeDiffMinutes(start, end)
	if got == nil || *got != 7.5 {
		t.Fatalf("diff = %v, want 7.5", got)
	}

	// Negative intervals mean clock skew in the source, not real durations.
	if got := TimeDiffMinutes(end, start); got != nil {
		t.Fatalf("negative diff should be nil, got %v", *got)
	}
	if got := TimeDiffMinutes(nil, end); got != nil {
		t.Fatalf("nil start should be nil, got %v", *got)
	}
	if got := TimeDiffMinutes(start, strptr("junk")); got != nil {
		t.Fatalf("unparseable end should be nil, got %v", *got)
	}

	// Midnight crossing stays positive.
	got = TimeDiffMinutes(strptr("2024-03-15 23:50:00"), strptr("2024-03-16 00:10:00"))
	if got == nil || *got != 20 {
		t.Fatalf("midnight diff = %v, want 20", got)
	}
}

func TestTimeDiffRounding(t *testing.T) {
	got := TimeDiffMinutes(strptr("2024-03-15 10:00:00"), strptr("2024-03-15 10:00:10"))
	if got == nil || *got != 0.17 {
		t.Fatalf("10s diff = %v, want 0.17", got)
	}
}

func TestParseFlag(t *testing.T) {
	for _, yes := range []string{"Yes", "y", "TRUE", "1"} {
		if parseFlag(yes, injuryYesSet) != 1 {
			t.Errorf("parseFlag(%q) should be 1", yes)
		}
	}
	for _, no := range []string{"No", "n", "false", "0", "", "maybe"} {
		if parseFlag(no, injuryYesSet) != 0 {
			t.Errorf("parseFlag(%q) should be 0", no)
		}
	}
	// Binary columns additionally accept the float spelling.
	if parseFlag("1.0", binaryYesSet) != 1 {
		t.Error(`parseFlag("1.0", binary) should be 1`)
	}
	if parseFlag("1.0", injuryYesSet) != 0 {
		t.Error(`parseFlag("1.0", injury) should be 0`)
	}
}

func TestParseMinutes(t *testing.T) {
	if mins, kind := parseMinutes("12.5"); kind != "" || mins == nil || *mins != 12.5 {
		t.Fatalf("parseMinutes(12.5) = %v, %q", mins, kind)
	}
	if mins, kind := parseMinutes(""); kind != "" || mins != nil {
		t.Fatalf("empty minutes should be nil without error, got %v, %q", mins, kind)
	}
	if mins, kind := parseMinutes("abc"); kind != KindInvalidNumber || mins != nil {
		t.Fatalf("parseMinutes(abc) = %v, %q", mins, kind)
	}
	if mins, kind := parseMinutes("-4"); kind != KindNegativeValue || mins != nil {
		t.Fatalf("parseMinutes(-4) = %v, %q", mins, kind)
	}
}

func TestRecordHappyPath(t *testing.T) {
	raw := staging.Record{
		SourceRowNum:                7,
		IncidentDT:                  "2024-03-15 14:30:00",
		IncidentCounty:              "  Marion ",
		ChiefComplaintDispatch:      "Chest Pain",
		InjuryFlg:                   "No",
		NaloxoneGivenFlg:            "Yes",
		MedicationGivenOtherFlg:     "0",
		ProviderToSceneMins:         "8.25",
		UnitNotifiedByDispatchDT:    "2024-03-15 14:30:00",
		UnitArrivedOnSceneDT:        "2024-03-15 14:38:15",
		UnitArrivedToPatientDT:      "2024-03-15 14:40:00",
		UnitLeftSceneDT:             "2024-03-15 14:55:00",
		PatientArrivedDestinationDT: "2024-03-15 15:10:00",
	}
	res := Record(raw)
	if !res.IsValid {
		t.Fatalf("expected valid, errors: %+v", res.Errors)
	}
	if len(res.Errors) != 0 {
		t.Fatalf("unexpected errors: %+v", res.Errors)
	}
	if res.Derived.DateKey != 20240315 {
		t.Errorf("DateKey = %d", res.Derived.DateKey)
	}
	if res.Derived.TimeOfDayKey != 870 {
		t.Errorf("TimeOfDayKey = %d", res.Derived.TimeOfDayKey)
	}
	if *res.Cleaned.IncidentCounty != "Marion" {
		t.Errorf("county = %q", *res.Cleaned.IncidentCounty)
	}
	if res.Cleaned.NaloxoneGivenFlg != 1 || res.Cleaned.InjuryFlg != 0 {
		t.Errorf("flags = %d/%d", res.Cleaned.InjuryFlg, res.Cleaned.NaloxoneGivenFlg)
	}
	if d := res.Derived.DispatchToArrivalMins; d == nil || *d != 8.25 {
		t.Errorf("dispatch-to-arrival = %v", d)
	}
	if d := res.Derived.SceneTimeMins; d == nil || *d != 16.75 {
		t.Errorf("scene time = %v", d)
	}
	if d := res.Derived.TotalCallTimeMins; d == nil || *d != 40.0 {
		t.Errorf("total call time = %v", d)
	}
	if res.Derived.IncidentCount != 1 {
		t.Errorf("incident count = %d", res.Derived.IncidentCount)
	}
}

func TestRecordMissingDateRejects(t *testing.T) {
	res := Record(staging.Record{SourceRowNum: 1, IncidentDT: "   "})
	if res.IsValid {
		t.Fatal("record with no incident date should be rejected")
	}
	if len(res.Errors) == 0 || res.Errors[0].Kind != KindNullValue {
		t.Fatalf("want NULL_VALUE error, got %+v", res.Errors)
	}
	if res.Errors[0].Column != staging.ColIncidentDT {
		t.Fatalf("error column = %q", res.Errors[0].Column)
	}
}

func TestRecordBadDateRejects(t *testing.T) {
	res := Record(staging.Record{SourceRowNum: 1, IncidentDT: "garbage"})
	if res.IsValid {
		t.Fatal("record with unparseable date should be rejected")
	}
	if len(res.Errors) == 0 || res.Errors[0].Kind != KindInvalidDate {
		t.Fatalf("want INVALID_DATE error, got %+v", res.Errors)
	}
}

func TestRecordDegradesWithoutRejecting(t *testing.T) {
	raw := staging.Record{
		SourceRowNum:             3,
		IncidentDT:               "2024-01-01",
		InjuryFlg:                "unknown",
		ProviderToSceneMins:      "-5",
		UnitNotifiedByDispatchDT: "not a timestamp",
	}
	res := Record(raw)
	if !res.IsValid {
		t.Fatalf("degradable errors must not reject, errors: %+v", res.Errors)
	}
	if len(res.Errors) != 3 {
		t.Fatalf("want 3 errors, got %+v", res.Errors)
	}
	kinds := map[string]bool{}
	for _, e := range res.Errors {
		kinds[e.Kind] = true
	}
	for _, k := range []string{KindInvalidFlag, KindNegativeValue, KindParseError} {
		if !kinds[k] {
			t.Errorf("missing %s in %+v", k, res.Errors)
		}
	}
	if res.Cleaned.InjuryFlg != 0 {
		t.Errorf("bad flag should default to 0")
	}
	if res.Cleaned.ProviderToSceneMins != nil {
		t.Errorf("negative minutes should clear to nil")
	}
	if res.Cleaned.UnitNotifiedDT != nil {
		t.Errorf("bad timestamp should clear to nil")
	}
	// The cleared dispatch timestamp leaves no time of day.
	if res.Derived.TimeOfDayKey != -1 {
		t.Errorf("time key = %d, want -1", res.Derived.TimeOfDayKey)
	}
}

func TestBatchCounts(t *testing.T) {
	records := []staging.Record{
		{SourceRowNum: 1, IncidentDT: "2024-01-01"},
		{SourceRowNum: 2, IncidentDT: "junk"},
		{SourceRowNum: 3, IncidentDT: "2024-01-02"},
		{SourceRowNum: 4},
	}
	results, valid, rejected := Batch(records)
	if len(results) != 4 {
		t.Fatalf("results = %d", len(results))
	}
	if valid != 2 || rejected != 2 {
		t.Fatalf("valid=%d rejected=%d, want 2/2", valid, rejected)
	}
	if results[0].SourceRowNum != 1 || results[3].SourceRowNum != 4 {
		t.Fatal("results out of order")
	}
}
