package staging

import (
	"context"
	"database/sql"
	"fmt"

	"ems_warehouse/internal/config"
)

// Store is the append-only landing area for raw source rows. It is the
// durability boundary for re-running transform and load without re-reading
// the source file.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Initialize drops and recreates the staging table. Staging holds one
// extract at a time; every run starts from an empty table.
func (s *Store) Initialize(ctx context.Context) error {
	stmts := []string{
		`DROP TABLE IF EXISTS STG_EMS_INCIDENT`,
		`CREATE TABLE STG_EMS_INCIDENT (
			stg_load_id INTEGER PRIMARY KEY AUTOINCREMENT,
			_load_datetime TEXT,
			_source_file TEXT,
			_source_row_num INTEGER,
			INCIDENT_DT TEXT,
			INCIDENT_COUNTY TEXT,
			CHIEF_COMPLAINT_DISPATCH TEXT,
			CHIEF_COMPLAINT_ANATOMIC_LOC TEXT,
			PRIMARY_SYMPTOM TEXT,
			PROVIDER_IMPRESSION_PRIMARY TEXT,
			DISPOSITION_ED TEXT,
			DISPOSITION_HOSPITAL TEXT,
			INJURY_FLG TEXT,
			NALOXONE_GIVEN_FLG TEXT,
			MEDICATION_GIVEN_OTHER_FLG TEXT,
			DESTINATION_TYPE TEXT,
			PROVIDER_TYPE_STRUCTURE TEXT,
			PROVIDER_TYPE_SERVICE TEXT,
			PROVIDER_TYPE_SERVICE_LEVEL TEXT,
			PROVIDER_TO_SCENE_MINS TEXT,
			PROVIDER_TO_DESTINATION_MINS TEXT,
			UNIT_NOTIFIED_BY_DISPATCH_DT TEXT,
			UNIT_ARRIVED_ON_SCENE_DT TEXT,
			UNIT_ARRIVED_TO_PATIENT_DT TEXT,
			UNIT_LEFT_SCENE_DT TEXT,
			PATIENT_ARRIVED_DESTINATION_DT TEXT
		)`,
		`CREATE INDEX IX_STG_EMS_LOAD ON STG_EMS_INCIDENT (_load_datetime, _source_file)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("staging init: %w", err)
		}
	}
	return nil
}

// Append bulk-inserts records verbatim, stamping load metadata. Rows are
// never mutated after insert. Returns the number written.
func (s *Store) Append(ctx context.Context, records []Record, sourceFile string) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	loadDT := config.Timestamp(config.Now())

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO STG_EMS_INCIDENT (
		_load_datetime, _source_file, _source_row_num,
		INCIDENT_DT, INCIDENT_COUNTY, CHIEF_COMPLAINT_DISPATCH,
		CHIEF_COMPLAINT_ANATOMIC_LOC, PRIMARY_SYMPTOM, PROVIDER_IMPRESSION_PRIMARY,
		DISPOSITION_ED, DISPOSITION_HOSPITAL, INJURY_FLG, NALOXONE_GIVEN_FLG,
		MEDICATION_GIVEN_OTHER_FLG, DESTINATION_TYPE, PROVIDER_TYPE_STRUCTURE,
		PROVIDER_TYPE_SERVICE, PROVIDER_TYPE_SERVICE_LEVEL, PROVIDER_TO_SCENE_MINS,
		PROVIDER_TO_DESTINATION_MINS, UNIT_NOTIFIED_BY_DISPATCH_DT,
		UNIT_ARRIVED_ON_SCENE_DT, UNIT_ARRIVED_TO_PATIENT_DT, UNIT_LEFT_SCENE_DT,
		PATIENT_ARRIVED_DESTINATION_DT
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			loadDT, sourceFile, r.SourceRowNum,
			r.IncidentDT, r.IncidentCounty, r.ChiefComplaintDispatch,
			r.ChiefComplaintAnatomicLoc, r.PrimarySymptom, r.ProviderImpressionPrimary,
			r.DispositionED, r.DispositionHospital, r.InjuryFlg, r.NaloxoneGivenFlg,
			r.MedicationGivenOtherFlg, r.DestinationType, r.ProviderTypeStructure,
			r.ProviderTypeService, r.ProviderTypeServiceLevel, r.ProviderToSceneMins,
			r.ProviderToDestinationMins, r.UnitNotifiedByDispatchDT,
			r.UnitArrivedOnSceneDT, r.UnitArrivedToPatientDT, r.UnitLeftSceneDT,
			r.PatientArrivedDestinationDT,
		); err != nil {
			return 0, fmt.Errorf("staging append row %d: %w", r.SourceRowNum, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(records), nil
}

// Count returns the number of staged rows.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM STG_EMS_INCIDENT`).Scan(&n)
	return n, err
}

// ReadBatch returns up to limit staged rows starting at offset, in load order.
func (s *Store) ReadBatch(ctx context.Context, limit, offset int) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT
		_load_datetime, _source_file, _source_row_num,
		INCIDENT_DT, INCIDENT_COUNTY, CHIEF_COMPLAINT_DISPATCH,
		CHIEF_COMPLAINT_ANATOMIC_LOC, PRIMARY_SYMPTOM, PROVIDER_IMPRESSION_PRIMARY,
		DISPOSITION_ED, DISPOSITION_HOSPITAL, INJURY_FLG, NALOXONE_GIVEN_FLG,
		MEDICATION_GIVEN_OTHER_FLG, DESTINATION_TYPE, PROVIDER_TYPE_STRUCTURE,
		PROVIDER_TYPE_SERVICE, PROVIDER_TYPE_SERVICE_LEVEL, PROVIDER_TO_SCENE_MINS,
		PROVIDER_TO_DESTINATION_MINS, UNIT_NOTIFIED_BY_DISPATCH_DT,
		UNIT_ARRIVED_ON_SCENE_DT, UNIT_ARRIVED_TO_PATIENT_DT, UNIT_LEFT_SCENE_DT,
		PATIENT_ARRIVED_DESTINATION_DT
		FROM STG_EMS_INCIDENT ORDER BY stg_load_id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Sample returns up to n staged rows for verification tooling.
func (s *Store) Sample(ctx context.Context, n int) ([]Record, error) {
	return s.ReadBatch(ctx, n, 0)
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var r Record
	cols := []any{
		&r.LoadDatetime, &r.SourceFile, &r.SourceRowNum,
		&r.IncidentDT, &r.IncidentCounty, &r.ChiefComplaintDispatch,
		&r.ChiefComplaintAnatomicLoc, &r.PrimarySymptom, &r.ProviderImpressionPrimary,
		&r.DispositionED, &r.DispositionHospital, &r.InjuryFlg, &r.NaloxoneGivenFlg,
		&r.MedicationGivenOtherFlg, &r.DestinationType, &r.ProviderTypeStructure,
		&r.ProviderTypeService, &r.ProviderTypeServiceLevel, &r.ProviderToSceneMins,
		&r.ProviderToDestinationMins, &r.UnitNotifiedByDispatchDT,
		&r.UnitArrivedOnSceneDT, &r.UnitArrivedToPatientDT, &r.UnitLeftSceneDT,
		&r.PatientArrivedDestinationDT,
	}
	if err := rows.Scan(cols...); err != nil {
		return Record{}, err
	}
	return r, nil
}
