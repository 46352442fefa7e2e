// Package facts assembles transformed records and resolved surrogate keys
// into fact rows and batch-loads them into the fact table.
package facts

import (
	"context"
	"database/sql"
	"fmt"

	"ems_warehouse/internal/config"
	"ems_warehouse/internal/dimension"
	"ems_warehouse/internal/transform"
)

// FactRecord is one EMS incident fact row ready to persist. Dimension keys
// are never null: a missing natural key carries dimension.UnknownKey.
type FactRecord struct {
	DateKey      int64
	TimeOfDayKey int64

	CountyKey              int64
	ChiefComplaintKey      int64
	AnatomicLocationKey    int64
	SymptomKey             int64
	ProviderImpressionKey  int64
	DispositionEDKey       int64
	DispositionHospitalKey int64
	DestinationTypeKey     int64
	ProviderOrgKey         int64
	ServiceLevelKey        int64

	ProviderToSceneMins   *float64
	ProviderToDestMins    *float64
	DispatchToArrivalMins *float64
	ArrivalToPatientMins  *float64
	SceneTimeMins         *float64
	TotalCallTimeMins     *float64

	InjuryFlg          int
	NaloxoneGivenFlg   int
	MedicationGivenFlg int
	IncidentCount      int

	UnitNotifiedDT       *string
	UnitArrivedSceneDT   *string
	UnitArrivedPatientDT *string
	UnitLeftSceneDT      *string
	PatientArrivedDestDT *string

	SourceRowNum int
}

// Assemble joins a valid transform result with resolved dimension keys.
func Assemble(ctx context.Context, res transform.Result, dims *dimension.Resolver) (FactRecord, error) {
	c := res.Cleaned
	d := res.Derived

	fact := FactRecord{
		DateKey:      int64(d.DateKey),
		TimeOfDayKey: int64(d.TimeOfDayKey),

		ProviderToSceneMins:   c.ProviderToSceneMins,
		ProviderToDestMins:    c.ProviderToDestMins,
		DispatchToArrivalMins: d.DispatchToArrivalMins,
		ArrivalToPatientMins:  d.ArrivalToPatientMins,
		SceneTimeMins:         d.SceneTimeMins,
		TotalCallTimeMins:     d.TotalCallTimeMins,

		InjuryFlg:          c.InjuryFlg,
		NaloxoneGivenFlg:   c.NaloxoneGivenFlg,
		MedicationGivenFlg: c.MedicationGivenFlg,
		IncidentCount:      d.IncidentCount,

		UnitNotifiedDT:       c.UnitNotifiedDT,
		UnitArrivedSceneDT:   c.UnitArrivedSceneDT,
		UnitArrivedPatientDT: c.UnitArrivedPatientDT,
		UnitLeftSceneDT:      c.UnitLeftSceneDT,
		PatientArrivedDestDT: c.PatientArrivedDestDT,

		SourceRowNum: res.SourceRowNum,
	}

	var err error
	if fact.CountyKey, err = dims.County(ctx, c.IncidentCounty); err != nil {
		return fact, err
	}
	if fact.ChiefComplaintKey, err = dims.ChiefComplaint(ctx, c.ChiefComplaintDispatch); err != nil {
		return fact, err
	}
	if fact.AnatomicLocationKey, err = dims.AnatomicLocation(ctx, c.ChiefComplaintAnatomicLoc); err != nil {
		return fact, err
	}
	if fact.SymptomKey, err = dims.Symptom(ctx, c.PrimarySymptom); err != nil {
		return fact, err
	}
	if fact.ProviderImpressionKey, err = dims.ProviderImpression(ctx, c.ProviderImpressionPrimary); err != nil {
		return fact, err
	}
	if fact.DispositionEDKey, err = dims.Disposition(ctx, c.DispositionED); err != nil {
		return fact, err
	}
	if fact.DispositionHospitalKey, err = dims.Disposition(ctx, c.DispositionHospital); err != nil {
		return fact, err
	}
	if fact.DestinationTypeKey, err = dims.DestinationType(ctx, c.DestinationType); err != nil {
		return fact, err
	}
	if fact.ProviderOrgKey, err = dims.ProviderOrg(ctx, c.ProviderTypeStructure, c.ProviderTypeService); err != nil {
		return fact, err
	}
	if fact.ServiceLevelKey, err = dims.ServiceLevel(ctx, c.ProviderTypeServiceLevel); err != nil {
		return fact, err
	}
	return fact, nil
}

// Loader persists fact rows. Facts are append-only; a full refresh truncates
// before the first batch of the run.
type Loader struct {
	db *sql.DB
}

func NewLoader(db *sql.DB) *Loader {
	return &Loader{db: db}
}

// Initialize creates the fact table and its query indexes if missing.
func (l *Loader) Initialize(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS FACT_EMS_INCIDENT (
			ems_incident_key INTEGER PRIMARY KEY AUTOINCREMENT,

			date_key INTEGER NOT NULL DEFAULT -1,
			time_of_day_key INTEGER NOT NULL DEFAULT -1,
			county_key INTEGER NOT NULL DEFAULT -1,
			chief_complaint_key INTEGER NOT NULL DEFAULT -1,
			anatomic_location_key INTEGER NOT NULL DEFAULT -1,
			symptom_key INTEGER NOT NULL DEFAULT -1,
			provider_impression_key INTEGER NOT NULL DEFAULT -1,
			disposition_ed_key INTEGER NOT NULL DEFAULT -1,
			disposition_hospital_key INTEGER NOT NULL DEFAULT -1,
			destination_type_key INTEGER NOT NULL DEFAULT -1,
			provider_org_key INTEGER NOT NULL DEFAULT -1,
			service_level_key INTEGER NOT NULL DEFAULT -1,

			provider_to_scene_mins REAL,
			provider_to_dest_mins REAL,
			dispatch_to_arrival_mins REAL,
			arrival_to_patient_mins REAL,
			scene_time_mins REAL,
			total_call_time_mins REAL,

			injury_flg INTEGER DEFAULT 0,
			naloxone_given_flg INTEGER DEFAULT 0,
			medication_given_flg INTEGER DEFAULT 0,
			incident_count INTEGER DEFAULT 1,

			unit_notified_dt TEXT,
			unit_arrived_scene_dt TEXT,
			unit_arrived_patient_dt TEXT,
			unit_left_scene_dt TEXT,
			patient_arrived_dest_dt TEXT,

			_source_file TEXT,
			_source_row_num INTEGER,
			_row_created_dt TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS IX_FACT_EMS_DATE ON FACT_EMS_INCIDENT (date_key)`,
		`CREATE INDEX IF NOT EXISTS IX_FACT_EMS_COUNTY ON FACT_EMS_INCIDENT (county_key, date_key)`,
		`CREATE INDEX IF NOT EXISTS IX_FACT_EMS_PROVIDER ON FACT_EMS_INCIDENT (provider_org_key, date_key)`,
		`CREATE INDEX IF NOT EXISTS IX_FACT_EMS_NALOXONE ON FACT_EMS_INCIDENT (naloxone_given_flg, date_key)`,
	}
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("fact init: %w", err)
		}
	}
	return nil
}

// Truncate removes all fact rows for a full refresh.
func (l *Loader) Truncate(ctx context.Context) error {
	_, err := l.db.ExecContext(ctx, `DELETE FROM FACT_EMS_INCIDENT`)
	return err
}

// LoadBatch persists records as one transaction and returns the number
// written. An empty batch is a no-op returning 0.
func (l *Loader) LoadBatch(ctx context.Context, records []FactRecord, sourceFile string) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	now := config.Timestamp(config.Now())

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO FACT_EMS_INCIDENT (
		date_key, time_of_day_key, county_key, chief_complaint_key,
		anatomic_location_key, symptom_key, provider_impression_key,
		disposition_ed_key, disposition_hospital_key, destination_type_key,
		provider_org_key, service_level_key,
		provider_to_scene_mins, provider_to_dest_mins,
		dispatch_to_arrival_mins, arrival_to_patient_mins,
		scene_time_mins, total_call_time_mins,
		injury_flg, naloxone_given_flg, medication_given_flg, incident_count,
		unit_notified_dt, unit_arrived_scene_dt, unit_arrived_patient_dt,
		unit_left_scene_dt, patient_arrived_dest_dt,
		_source_file, _source_row_num, _row_created_dt
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, f := range records {
		if _, err := stmt.ExecContext(ctx,
			f.DateKey, f.TimeOfDayKey, f.CountyKey, f.ChiefComplaintKey,
			f.AnatomicLocationKey, f.SymptomKey, f.ProviderImpressionKey,
			f.DispositionEDKey, f.DispositionHospitalKey, f.DestinationTypeKey,
			f.ProviderOrgKey, f.ServiceLevelKey,
			f.ProviderToSceneMins, f.ProviderToDestMins,
			f.DispatchToArrivalMins, f.ArrivalToPatientMins,
			f.SceneTimeMins, f.TotalCallTimeMins,
			f.InjuryFlg, f.NaloxoneGivenFlg, f.MedicationGivenFlg, f.IncidentCount,
			f.UnitNotifiedDT, f.UnitArrivedSceneDT, f.UnitArrivedPatientDT,
			f.UnitLeftSceneDT, f.PatientArrivedDestDT,
			sourceFile, f.SourceRowNum, now,
		); err != nil {
			return 0, fmt.Errorf("fact insert row %d: %w", f.SourceRowNum, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Count returns the number of fact rows.
func (l *Loader) Count(ctx context.Context) (int, error) {
	var n int
	err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM FACT_EMS_INCIDENT`).Scan(&n)
	return n, err
}

// Summary aggregates the fact table for end-of-run verification.
type Summary struct {
	TotalIncidents    int
	InjuryIncidents   int
	NaloxoneIncidents int
	AvgResponseMins   float64
	MinDateKey        int64
	MaxDateKey        int64
}

// Summarize computes the verification summary.
func (l *Loader) Summarize(ctx context.Context) (Summary, error) {
	var s Summary
	if err := l.db.QueryRowContext(ctx,
		`SELECT COUNT(*),
		        COALESCE(SUM(injury_flg), 0),
		        COALESCE(SUM(naloxone_given_flg), 0)
		 FROM FACT_EMS_INCIDENT`).Scan(
		&s.TotalIncidents, &s.InjuryIncidents, &s.NaloxoneIncidents); err != nil {
		return s, err
	}

	var avg sql.NullFloat64
	if err := l.db.QueryRowContext(ctx,
		`SELECT AVG(provider_to_scene_mins) FROM FACT_EMS_INCIDENT
		 WHERE provider_to_scene_mins IS NOT NULL AND provider_to_scene_mins > 0`).Scan(&avg); err != nil {
		return s, err
	}
	if avg.Valid {
		s.AvgResponseMins = avg.Float64
	}

	var minKey, maxKey sql.NullInt64
	if err := l.db.QueryRowContext(ctx,
		`SELECT MIN(date_key), MAX(date_key) FROM FACT_EMS_INCIDENT WHERE date_key > 0`).Scan(
		&minKey, &maxKey); err != nil {
		return s, err
	}
	if minKey.Valid {
		s.MinDateKey = minKey.Int64
	}
	if maxKey.Valid {
		s.MaxDateKey = maxKey.Int64
	}
	return s, nil
}
