package dimension

import (
	"context"
	"database/sql"
	"time"

	"ems_warehouse/internal/config"
)

// Static date dimension range: one row per calendar day.
var (
	dateDimStart = time.Date(2014, 1, 1, 0, 0, 0, 0, time.UTC)
	dateDimEnd   = time.Date(2030, 12, 31, 0, 0, 0, 0, time.UTC)
)

const minutesPerDay = 1440

func (r *Resolver) initTables(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS DIM_DATE (
			date_key INTEGER PRIMARY KEY,
			date_value TEXT,
			day_of_week TEXT,
			day_of_week_num INTEGER,
			day_of_month INTEGER,
			month_num INTEGER,
			month_name TEXT,
			quarter_num INTEGER,
			year_num INTEGER,
			is_weekend INTEGER DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS DIM_TIME_OF_DAY (
			time_of_day_key INTEGER PRIMARY KEY,
			hour_24 INTEGER,
			hour_12 INTEGER,
			minute_of_hour INTEGER,
			am_pm TEXT,
			time_period TEXT,
			shift_name TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS DIM_COUNTY (
			county_key INTEGER PRIMARY KEY AUTOINCREMENT,
			county_name TEXT UNIQUE NOT NULL,
			state_code TEXT DEFAULT 'IN',
			_row_created_dt TEXT,
			_row_updated_dt TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS DIM_CHIEF_COMPLAINT (
			chief_complaint_key INTEGER PRIMARY KEY AUTOINCREMENT,
			chief_complaint_name TEXT UNIQUE NOT NULL,
			_row_created_dt TEXT,
			_row_updated_dt TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS DIM_ANATOMIC_LOCATION (
			anatomic_location_key INTEGER PRIMARY KEY AUTOINCREMENT,
			anatomic_location_name TEXT UNIQUE NOT NULL,
			_row_created_dt TEXT,
			_row_updated_dt TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS DIM_SYMPTOM (
			symptom_key INTEGER PRIMARY KEY AUTOINCREMENT,
			symptom_name TEXT UNIQUE NOT NULL,
			_row_created_dt TEXT,
			_row_updated_dt TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS DIM_PROVIDER_IMPRESSION (
			provider_impression_key INTEGER PRIMARY KEY AUTOINCREMENT,
			impression_name TEXT UNIQUE NOT NULL,
			_row_created_dt TEXT,
			_row_updated_dt TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS DIM_DISPOSITION (
			disposition_key INTEGER PRIMARY KEY AUTOINCREMENT,
			disposition_name TEXT UNIQUE NOT NULL,
			_row_created_dt TEXT,
			_row_updated_dt TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS DIM_DESTINATION_TYPE (
			destination_type_key INTEGER PRIMARY KEY AUTOINCREMENT,
			destination_type_name TEXT UNIQUE NOT NULL,
			_row_created_dt TEXT,
			_row_updated_dt TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS DIM_PROVIDER_ORGANIZATION (
			provider_org_key INTEGER PRIMARY KEY AUTOINCREMENT,
			provider_structure TEXT NOT NULL,
			provider_service TEXT,
			org_lookup_key TEXT UNIQUE,
			_row_created_dt TEXT,
			_row_updated_dt TEXT
		)`,
		`CREATE TABLE IF NOT EXISTS DIM_SERVICE_LEVEL (
			service_level_key INTEGER PRIMARY KEY AUTOINCREMENT,
			service_level_name TEXT UNIQUE NOT NULL,
			_row_created_dt TEXT,
			_row_updated_dt TEXT
		)`,
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// seedUnknownMembers inserts the reserved -1 row per dimension. Skipped
// entirely once the county sentinel exists.
func (r *Resolver) seedUnknownMembers(ctx context.Context) error {
	var key int64
	err := r.db.QueryRowContext(ctx,
		`SELECT county_key FROM DIM_COUNTY WHERE county_key = -1`).Scan(&key)
	if err == nil {
		return nil
	}
	if err != sql.ErrNoRows {
		return err
	}

	now := config.Timestamp(config.Now())
	stmts := []struct {
		query string
		args  []any
	}{
		{`INSERT OR IGNORE INTO DIM_DATE (date_key, date_value, day_of_week, year_num) VALUES (-1, '1900-01-01', 'Unknown', 1900)`, nil},
		{`INSERT OR IGNORE INTO DIM_TIME_OF_DAY (time_of_day_key, hour_24, time_period) VALUES (-1, 0, 'Unknown')`, nil},
		{`INSERT OR IGNORE INTO DIM_COUNTY (county_key, county_name, _row_created_dt) VALUES (-1, 'Unknown', ?)`, []any{now}},
		{`INSERT OR IGNORE INTO DIM_CHIEF_COMPLAINT (chief_complaint_key, chief_complaint_name, _row_created_dt) VALUES (-1, 'Unknown', ?)`, []any{now}},
		{`INSERT OR IGNORE INTO DIM_ANATOMIC_LOCATION (anatomic_location_key, anatomic_location_name, _row_created_dt) VALUES (-1, 'Unknown', ?)`, []any{now}},
		{`INSERT OR IGNORE INTO DIM_SYMPTOM (symptom_key, symptom_name, _row_created_dt) VALUES (-1, 'Unknown', ?)`, []any{now}},
		{`INSERT OR IGNORE INTO DIM_PROVIDER_IMPRESSION (provider_impression_key, impression_name, _row_created_dt) VALUES (-1, 'Unknown', ?)`, []any{now}},
		{`INSERT OR IGNORE INTO DIM_DISPOSITION (disposition_key, disposition_name, _row_created_dt) VALUES (-1, 'Unknown', ?)`, []any{now}},
		{`INSERT OR IGNORE INTO DIM_DESTINATION_TYPE (destination_type_key, destination_type_name, _row_created_dt) VALUES (-1, 'Unknown', ?)`, []any{now}},
		{`INSERT OR IGNORE INTO DIM_PROVIDER_ORGANIZATION (provider_org_key, provider_structure, org_lookup_key, _row_created_dt) VALUES (-1, 'Unknown', 'Unknown||Unknown', ?)`, []any{now}},
		{`INSERT OR IGNORE INTO DIM_SERVICE_LEVEL (service_level_key, service_level_name, _row_created_dt) VALUES (-1, 'Unknown', ?)`, []any{now}},
	}
	for _, s := range stmts {
		if _, err := r.db.ExecContext(ctx, s.query, s.args...); err != nil {
			return err
		}
	}
	return nil
}

// populateDateDimension fills DIM_DATE with one row per day of the fixed
// calendar range. A no-op once any non-sentinel row exists.
func (r *Resolver) populateDateDimension(ctx context.Context) error {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM DIM_DATE WHERE date_key > 0`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO DIM_DATE
		(date_key, date_value, day_of_week, day_of_week_num, day_of_month,
		 month_num, month_name, quarter_num, year_num, is_weekend)
		VALUES (?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for d := dateDimStart; !d.After(dateDimEnd); d = d.AddDate(0, 0, 1) {
		dateKey := d.Year()*10000 + int(d.Month())*100 + d.Day()
		weekend := 0
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			weekend = 1
		}
		if _, err := stmt.ExecContext(ctx,
			dateKey,
			d.Format("2006-01-02"),
			d.Weekday().String(),
			isoWeekday(d.Weekday()),
			d.Day(),
			int(d.Month()),
			d.Month().String(),
			(int(d.Month())-1)/3+1,
			d.Year(),
			weekend,
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// populateTimeDimension fills DIM_TIME_OF_DAY with one row per minute of the
// day. A no-op once any non-sentinel row exists.
func (r *Resolver) populateTimeDimension(ctx context.Context) error {
	var n int
	if err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM DIM_TIME_OF_DAY WHERE time_of_day_key >= 0`).Scan(&n); err != nil {
		return err
	}
	if n > 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR IGNORE INTO DIM_TIME_OF_DAY
		(time_of_day_key, hour_24, hour_12, minute_of_hour, am_pm, time_period, shift_name)
		VALUES (?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for minute := 0; minute < minutesPerDay; minute++ {
		hour24 := minute / 60
		hour12 := hour24 % 12
		if hour12 == 0 {
			hour12 = 12
		}
		amPM := "AM"
		if hour24 >= 12 {
			amPM = "PM"
		}
		if _, err := stmt.ExecContext(ctx,
			minute, hour24, hour12, minute%60, amPM,
			timePeriod(hour24), shiftName(hour24),
		); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func isoWeekday(d time.Weekday) int {
	if d == time.Sunday {
		return 7
	}
	return int(d)
}

func timePeriod(hour24 int) string {
	switch {
	case hour24 < 5:
		return "Late Night"
	case hour24 < 8:
		return "Early Morning"
	case hour24 < 12:
		return "Morning"
	case hour24 < 17:
		return "Afternoon"
	case hour24 < 21:
		return "Evening"
	default:
		return "Night"
	}
}

func shiftName(hour24 int) string {
	switch {
	case hour24 >= 7 && hour24 < 15:
		return "Day Shift"
	case hour24 >= 15 && hour24 < 23:
		return "Swing Shift"
	default:
		return "Night Shift"
	}
}
