// Package transform turns staged EMS incident rows into cleaned, validated
// records with derived measures. It is pure: no I/O, no shared state.
package transform

import (
	"fmt"

	"ems_warehouse/internal/staging"
)

// Yes-sets per flag field. INJURY_FLG arrives as Yes/No spellings; the given
// flags arrive as 0/1 with the occasional float rendering.
var (
	injuryYesSet = map[string]struct{}{"yes": {}, "y": {}, "true": {}, "1": {}}
	binaryYesSet = map[string]struct{}{"yes": {}, "y": {}, "true": {}, "1": {}, "1.0": {}}
)

// Cleaned holds the typed, validated values for one record. Pointer fields
// are nil when the source value was absent or coerced away.
type Cleaned struct {
	IncidentDT *string

	IncidentCounty            *string
	ChiefComplaintDispatch    *string
	ChiefComplaintAnatomicLoc *string
	PrimarySymptom            *string
	ProviderImpressionPrimary *string
	DispositionED             *string
	DispositionHospital       *string
	DestinationType           *string
	ProviderTypeStructure     *string
	ProviderTypeService       *string
	ProviderTypeServiceLevel  *string

	InjuryFlg          int
	NaloxoneGivenFlg   int
	MedicationGivenFlg int

	ProviderToSceneMins *float64
	ProviderToDestMins  *float64

	UnitNotifiedDT       *string
	UnitArrivedSceneDT   *string
	UnitArrivedPatientDT *string
	UnitLeftSceneDT      *string
	PatientArrivedDestDT *string
}

// Derived holds the computed measures and dimension keys.
type Derived struct {
	DateKey      int
	TimeOfDayKey int

	DispatchToArrivalMins *float64
	ArrivalToPatientMins  *float64
	SceneTimeMins         *float64
	TotalCallTimeMins     *float64

	IncidentCount int
}

// Result is the outcome of transforming a single staged record.
type Result struct {
	SourceFile   string
	SourceRowNum int

	Cleaned Cleaned
	Derived Derived
	Errors  []FieldError
	IsValid bool
}

// Record transforms one staged record. The only rejecting condition is a
// missing or unparseable incident date; every other problem degrades to a
// default or null and is reported in Errors.
func Record(raw staging.Record) Result {
	res := Result{
		SourceFile:   raw.SourceFile,
		SourceRowNum: raw.SourceRowNum,
	}
	c := &res.Cleaned

	c.IncidentDT = cleanText(raw.IncidentDT)

	c.IncidentCounty = cleanText(raw.IncidentCounty)
	c.ChiefComplaintDispatch = cleanText(raw.ChiefComplaintDispatch)
	c.ChiefComplaintAnatomicLoc = cleanText(raw.ChiefComplaintAnatomicLoc)
	c.PrimarySymptom = cleanText(raw.PrimarySymptom)
	c.ProviderImpressionPrimary = cleanText(raw.ProviderImpressionPrimary)
	c.DispositionED = cleanText(raw.DispositionED)
	c.DispositionHospital = cleanText(raw.DispositionHospital)
	c.DestinationType = cleanText(raw.DestinationType)
	c.ProviderTypeStructure = cleanText(raw.ProviderTypeStructure)
	c.ProviderTypeService = cleanText(raw.ProviderTypeService)
	c.ProviderTypeServiceLevel = cleanText(raw.ProviderTypeServiceLevel)

	c.InjuryFlg = parseFlag(raw.InjuryFlg, injuryYesSet)
	if !knownFlagValue(raw.InjuryFlg, injuryYesSet) {
		res.addError(staging.ColInjuryFlg, KindInvalidFlag,
			fmt.Sprintf("unrecognized flag value: %s", raw.InjuryFlg))
	}
	c.NaloxoneGivenFlg = parseFlag(raw.NaloxoneGivenFlg, binaryYesSet)
	if !knownFlagValue(raw.NaloxoneGivenFlg, binaryYesSet) {
		res.addError(staging.ColNaloxoneGivenFlg, KindInvalidBinary,
			fmt.Sprintf("unrecognized binary value: %s", raw.NaloxoneGivenFlg))
	}
	c.MedicationGivenFlg = parseFlag(raw.MedicationGivenOtherFlg, binaryYesSet)
	if !knownFlagValue(raw.MedicationGivenOtherFlg, binaryYesSet) {
		res.addError(staging.ColMedicationGivenOtherFlg, KindInvalidBinary,
			fmt.Sprintf("unrecognized binary value: %s", raw.MedicationGivenOtherFlg))
	}

	var kind string
	if c.ProviderToSceneMins, kind = parseMinutes(raw.ProviderToSceneMins); kind != "" {
		res.addError(staging.ColProviderToSceneMins, kind,
			fmt.Sprintf("cleared invalid minutes value: %s", raw.ProviderToSceneMins))
	}
	if c.ProviderToDestMins, kind = parseMinutes(raw.ProviderToDestinationMins); kind != "" {
		res.addError(staging.ColProviderToDestinationMins, kind,
			fmt.Sprintf("cleared invalid minutes value: %s", raw.ProviderToDestinationMins))
	}

	c.UnitNotifiedDT = res.cleanEventTime(raw.UnitNotifiedByDispatchDT, staging.ColUnitNotifiedByDispatchDT)
	c.UnitArrivedSceneDT = res.cleanEventTime(raw.UnitArrivedOnSceneDT, staging.ColUnitArrivedOnSceneDT)
	c.UnitArrivedPatientDT = res.cleanEventTime(raw.UnitArrivedToPatientDT, staging.ColUnitArrivedToPatientDT)
	c.UnitLeftSceneDT = res.cleanEventTime(raw.UnitLeftSceneDT, staging.ColUnitLeftSceneDT)
	c.PatientArrivedDestDT = res.cleanEventTime(raw.PatientArrivedDestinationDT, staging.ColPatientArrivedDestinationDT)

	d := &res.Derived
	d.DateKey = DateKey(c.IncidentDT)
	d.TimeOfDayKey = TimeKey(c.UnitNotifiedDT)
	d.DispatchToArrivalMins = TimeDiffMinutes(c.UnitNotifiedDT, c.UnitArrivedSceneDT)
	d.ArrivalToPatientMins = TimeDiffMinutes(c.UnitArrivedSceneDT, c.UnitArrivedPatientDT)
	d.SceneTimeMins = TimeDiffMinutes(c.UnitArrivedSceneDT, c.UnitLeftSceneDT)
	d.TotalCallTimeMins = TimeDiffMinutes(c.UnitNotifiedDT, c.PatientArrivedDestDT)
	d.IncidentCount = 1

	// The incident date is the one required field.
	if d.DateKey == -1 {
		if c.IncidentDT == nil {
			res.addError(staging.ColIncidentDT, KindNullValue, "incident date is empty")
		} else {
			res.addError(staging.ColIncidentDT, KindInvalidDate,
				fmt.Sprintf("cannot parse date: %s", raw.IncidentDT))
		}
	}
	res.IsValid = !res.hasErrorOn(staging.ColIncidentDT)

	return res
}

// Batch transforms records in order, returning the results plus valid and
// rejected counts.
func Batch(records []staging.Record) (results []Result, valid, rejected int) {
	results = make([]Result, 0, len(records))
	for _, r := range records {
		res := Record(r)
		results = append(results, res)
		if res.IsValid {
			valid++
		} else {
			rejected++
		}
	}
	return results, valid, rejected
}

func (r *Result) cleanEventTime(value, column string) *string {
	v, ok := cleanDatetime(value)
	if !ok {
		r.addError(column, KindParseError,
			fmt.Sprintf("cleared unparseable timestamp: %s", value))
	}
	return v
}

func (r *Result) addError(column, kind, message string) {
	r.Errors = append(r.Errors, FieldError{Column: column, Kind: kind, Message: message})
}

func (r *Result) hasErrorOn(column string) bool {
	for _, e := range r.Errors {
		if e.Column == column {
			return true
		}
	}
	return false
}
