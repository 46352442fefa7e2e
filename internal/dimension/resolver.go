// Package dimension maintains the conformed dimension tables and the
// surrogate-key caches used to resolve natural keys during fact loading.
// Dimensions are Type 1: first-seen attributes are kept, never updated.
package dimension

import (
	"context"
	"database/sql"
	"fmt"

	"ems_warehouse/internal/config"
)

// UnknownKey is the reserved surrogate key for the Unknown member. Absent
// natural keys resolve to it; fact foreign keys are never null.
const UnknownKey int64 = -1

// orgKeySeparator joins the provider-organization composite key. Not
// expected to occur in source data.
const orgKeySeparator = "||"

// Resolver owns one surrogate-key cache per dimension for the lifetime of a
// pipeline run. It is the sole writer of dimension rows and is not safe for
// concurrent use.
type Resolver struct {
	db *sql.DB

	county       *lookup
	complaint    *lookup
	anatomic     *lookup
	symptom      *lookup
	impression   *lookup
	disposition  *lookup
	destination  *lookup
	serviceLevel *lookup

	providerOrgCache map[string]int64
}

// lookup is one natural-key → surrogate-key mapping backed by a dimension
// table with a single natural-key column.
type lookup struct {
	db         *sql.DB
	table      string
	keyColumn  string
	nameColumn string
	cache      map[string]int64
}

// New ensures the dimension tables exist, seeds the Unknown members and the
// static date and time dimensions (all idempotent), and hydrates every cache
// from its backing table.
func New(ctx context.Context, db *sql.DB) (*Resolver, error) {
	r := &Resolver{
		db:               db,
		county:           newLookup(db, "DIM_COUNTY", "county_key", "county_name"),
		complaint:        newLookup(db, "DIM_CHIEF_COMPLAINT", "chief_complaint_key", "chief_complaint_name"),
		anatomic:         newLookup(db, "DIM_ANATOMIC_LOCATION", "anatomic_location_key", "anatomic_location_name"),
		symptom:          newLookup(db, "DIM_SYMPTOM", "symptom_key", "symptom_name"),
		impression:       newLookup(db, "DIM_PROVIDER_IMPRESSION", "provider_impression_key", "impression_name"),
		disposition:      newLookup(db, "DIM_DISPOSITION", "disposition_key", "disposition_name"),
		destination:      newLookup(db, "DIM_DESTINATION_TYPE", "destination_type_key", "destination_type_name"),
		serviceLevel:     newLookup(db, "DIM_SERVICE_LEVEL", "service_level_key", "service_level_name"),
		providerOrgCache: make(map[string]int64),
	}
	if err := r.initTables(ctx); err != nil {
		return nil, fmt.Errorf("dimension init: %w", err)
	}
	if err := r.seedUnknownMembers(ctx); err != nil {
		return nil, fmt.Errorf("seed unknown members: %w", err)
	}
	if err := r.populateDateDimension(ctx); err != nil {
		return nil, fmt.Errorf("populate date dimension: %w", err)
	}
	if err := r.populateTimeDimension(ctx); err != nil {
		return nil, fmt.Errorf("populate time dimension: %w", err)
	}
	if err := r.loadCaches(ctx); err != nil {
		return nil, fmt.Errorf("load dimension caches: %w", err)
	}
	return r, nil
}

func newLookup(db *sql.DB, table, keyColumn, nameColumn string) *lookup {
	return &lookup{db: db, table: table, keyColumn: keyColumn, nameColumn: nameColumn, cache: make(map[string]int64)}
}

// resolve returns the surrogate key for naturalKey, inserting a new row on
// first sight. Nil or empty keys resolve to UnknownKey with no lookup.
func (l *lookup) resolve(ctx context.Context, naturalKey *string) (int64, error) {
	if naturalKey == nil || *naturalKey == "" {
		return UnknownKey, nil
	}
	if key, ok := l.cache[*naturalKey]; ok {
		return key, nil
	}
	now := config.Timestamp(config.Now())
	res, err := l.db.ExecContext(ctx,
		fmt.Sprintf(`INSERT INTO %s (%s, _row_created_dt, _row_updated_dt) VALUES (?, ?, ?)`,
			l.table, l.nameColumn),
		*naturalKey, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert %s: %w", l.table, err)
	}
	key, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	l.cache[*naturalKey] = key
	return key, nil
}

func (l *lookup) hydrate(ctx context.Context) error {
	rows, err := l.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s, %s FROM %s`, l.keyColumn, l.nameColumn, l.table))
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key int64
		var name sql.NullString
		if err := rows.Scan(&key, &name); err != nil {
			return err
		}
		if name.Valid {
			l.cache[name.String] = key
		}
	}
	return rows.Err()
}

// County resolves the incident county name.
func (r *Resolver) County(ctx context.Context, name *string) (int64, error) {
	return r.county.resolve(ctx, name)
}

// ChiefComplaint resolves the dispatch chief complaint.
func (r *Resolver) ChiefComplaint(ctx context.Context, name *string) (int64, error) {
	return r.complaint.resolve(ctx, name)
}

// AnatomicLocation resolves the chief complaint anatomic location.
func (r *Resolver) AnatomicLocation(ctx context.Context, name *string) (int64, error) {
	return r.anatomic.resolve(ctx, name)
}

// Symptom resolves the primary symptom.
func (r *Resolver) Symptom(ctx context.Context, name *string) (int64, error) {
	return r.symptom.resolve(ctx, name)
}

// ProviderImpression resolves the primary provider impression.
func (r *Resolver) ProviderImpression(ctx context.Context, name *string) (int64, error) {
	return r.impression.resolve(ctx, name)
}

// Disposition resolves an ED or hospital disposition; the dimension is
// shared by both fact foreign keys.
func (r *Resolver) Disposition(ctx context.Context, name *string) (int64, error) {
	return r.disposition.resolve(ctx, name)
}

// DestinationType resolves the destination type.
func (r *Resolver) DestinationType(ctx context.Context, name *string) (int64, error) {
	return r.destination.resolve(ctx, name)
}

// ServiceLevel resolves the provider service level.
func (r *Resolver) ServiceLevel(ctx context.Context, name *string) (int64, error) {
	return r.serviceLevel.resolve(ctx, name)
}

// ProviderOrg resolves the provider organization by its composite
// (structure, service) natural key. A missing structure resolves to
// UnknownKey regardless of service.
func (r *Resolver) ProviderOrg(ctx context.Context, structure, service *string) (int64, error) {
	if structure == nil || *structure == "" {
		return UnknownKey, nil
	}
	svc := ""
	if service != nil {
		svc = *service
	}
	lookupKey := *structure + orgKeySeparator + svc

	if key, ok := r.providerOrgCache[lookupKey]; ok {
		return key, nil
	}
	now := config.Timestamp(config.Now())
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO DIM_PROVIDER_ORGANIZATION
		 (provider_structure, provider_service, org_lookup_key, _row_created_dt, _row_updated_dt)
		 VALUES (?, ?, ?, ?, ?)`,
		*structure, svc, lookupKey, now, now)
	if err != nil {
		return 0, fmt.Errorf("insert DIM_PROVIDER_ORGANIZATION: %w", err)
	}
	key, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	r.providerOrgCache[lookupKey] = key
	return key, nil
}

func (r *Resolver) loadCaches(ctx context.Context) error {
	for _, l := range r.lookups() {
		if err := l.hydrate(ctx); err != nil {
			return fmt.Errorf("hydrate %s: %w", l.table, err)
		}
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT provider_org_key, org_lookup_key FROM DIM_PROVIDER_ORGANIZATION`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key int64
		var lookupKey sql.NullString
		if err := rows.Scan(&key, &lookupKey); err != nil {
			return err
		}
		if lookupKey.Valid {
			r.providerOrgCache[lookupKey.String] = key
		}
	}
	return rows.Err()
}

func (r *Resolver) lookups() []*lookup {
	return []*lookup{
		r.county, r.complaint, r.anatomic, r.symptom,
		r.impression, r.disposition, r.destination, r.serviceLevel,
	}
}

// Tables lists every dimension table name.
func Tables() []string {
	return []string{
		"DIM_DATE", "DIM_TIME_OF_DAY", "DIM_COUNTY", "DIM_CHIEF_COMPLAINT",
		"DIM_ANATOMIC_LOCATION", "DIM_SYMPTOM", "DIM_PROVIDER_IMPRESSION",
		"DIM_DISPOSITION", "DIM_DESTINATION_TYPE", "DIM_PROVIDER_ORGANIZATION",
		"DIM_SERVICE_LEVEL",
	}
}

// Counts returns the row count of every dimension table.
func (r *Resolver) Counts(ctx context.Context) (map[string]int, error) {
	counts := make(map[string]int, len(Tables()))
	for _, table := range Tables() {
		var n int
		if err := r.db.QueryRowContext(ctx,
			fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)).Scan(&n); err != nil {
			return nil, fmt.Errorf("count %s: %w", table, err)
		}
		counts[table] = n
	}
	return counts, nil
}
