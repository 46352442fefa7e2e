package staging

// Source column names, case-exact as they appear in the extract header.
const (
	ColIncidentDT                  = "INCIDENT_DT"
	ColIncidentCounty              = "INCIDENT_COUNTY"
	ColChiefComplaintDispatch      = "CHIEF_COMPLAINT_DISPATCH"
	ColChiefComplaintAnatomicLoc   = "CHIEF_COMPLAINT_ANATOMIC_LOC"
	ColPrimarySymptom              = "PRIMARY_SYMPTOM"
	ColProviderImpressionPrimary   = "PROVIDER_IMPRESSION_PRIMARY"
	ColDispositionED               = "DISPOSITION_ED"
	ColDispositionHospital         = "DISPOSITION_HOSPITAL"
	ColInjuryFlg                   = "INJURY_FLG"
	ColNaloxoneGivenFlg            = "NALOXONE_GIVEN_FLG"
	ColMedicationGivenOtherFlg     = "MEDICATION_GIVEN_OTHER_FLG"
	ColDestinationType             = "DESTINATION_TYPE"
	ColProviderTypeStructure       = "PROVIDER_TYPE_STRUCTURE"
	ColProviderTypeService         = "PROVIDER_TYPE_SERVICE"
	ColProviderTypeServiceLevel    = "PROVIDER_TYPE_SERVICE_LEVEL"
	ColProviderToSceneMins         = "PROVIDER_TO_SCENE_MINS"
	ColProviderToDestinationMins   = "PROVIDER_TO_DESTINATION_MINS"
	ColUnitNotifiedByDispatchDT    = "UNIT_NOTIFIED_BY_DISPATCH_DT"
	ColUnitArrivedOnSceneDT        = "UNIT_ARRIVED_ON_SCENE_DT"
	ColUnitArrivedToPatientDT      = "UNIT_ARRIVED_TO_PATIENT_DT"
	ColUnitLeftSceneDT             = "UNIT_LEFT_SCENE_DT"
	ColPatientArrivedDestinationDT = "PATIENT_ARRIVED_DESTINATION_DT"
)

// SourceColumns lists every tracked source column in staging order.
var SourceColumns = []string{
	ColIncidentDT,
	ColIncidentCounty,
	ColChiefComplaintDispatch,
	ColChiefComplaintAnatomicLoc,
	ColPrimarySymptom,
	ColProviderImpressionPrimary,
	ColDispositionED,
	ColDispositionHospital,
	ColInjuryFlg,
	ColNaloxoneGivenFlg,
	ColMedicationGivenOtherFlg,
	ColDestinationType,
	ColProviderTypeStructure,
	ColProviderTypeService,
	ColProviderTypeServiceLevel,
	ColProviderToSceneMins,
	ColProviderToDestinationMins,
	ColUnitNotifiedByDispatchDT,
	ColUnitArrivedOnSceneDT,
	ColUnitArrivedToPatientDT,
	ColUnitLeftSceneDT,
	ColPatientArrivedDestinationDT,
}

// Record is one staged source row. Values are the original, uncoerced
// strings; an empty string means the source cell was empty. Records are
// immutable once written to the store.
type Record struct {
	SourceFile   string
	SourceRowNum int
	LoadDatetime string

	IncidentDT                  string
	IncidentCounty              string
	ChiefComplaintDispatch      string
	ChiefComplaintAnatomicLoc   string
	PrimarySymptom              string
	ProviderImpressionPrimary   string
	DispositionED               string
	DispositionHospital         string
	InjuryFlg                   string
	NaloxoneGivenFlg            string
	MedicationGivenOtherFlg     string
	DestinationType             string
	ProviderTypeStructure       string
	ProviderTypeService         string
	ProviderTypeServiceLevel    string
	ProviderToSceneMins         string
	ProviderToDestinationMins   string
	UnitNotifiedByDispatchDT    string
	UnitArrivedOnSceneDT        string
	UnitArrivedToPatientDT      string
	UnitLeftSceneDT             string
	PatientArrivedDestinationDT string
}

// Raw returns every source column value as read from the extract, keyed
// by source column name.
func (r Record) Raw() map[string]string {
	raw := make(map[string]string, len(SourceColumns))
	for _, c := range SourceColumns {
		raw[c] = r.Value(c)
	}
	return raw
}

// Value returns the raw string held for a source column, "" for columns
// this record does not track.
func (r Record) Value(column string) string {
	switch column {
	case ColIncidentDT:
		return r.IncidentDT
	case ColIncidentCounty:
		return r.IncidentCounty
	case ColChiefComplaintDispatch:
		return r.ChiefComplaintDispatch
	case ColChiefComplaintAnatomicLoc:
		return r.ChiefComplaintAnatomicLoc
	case ColPrimarySymptom:
		return r.PrimarySymptom
	case ColProviderImpressionPrimary:
		return r.ProviderImpressionPrimary
	case ColDispositionED:
		return r.DispositionED
	case ColDispositionHospital:
		return r.DispositionHospital
	case ColInjuryFlg:
		return r.InjuryFlg
	case ColNaloxoneGivenFlg:
		return r.NaloxoneGivenFlg
	case ColMedicationGivenOtherFlg:
		return r.MedicationGivenOtherFlg
	case ColDestinationType:
		return r.DestinationType
	case ColProviderTypeStructure:
		return r.ProviderTypeStructure
	case ColProviderTypeService:
		return r.ProviderTypeService
	case ColProviderTypeServiceLevel:
		return r.ProviderTypeServiceLevel
	case ColProviderToSceneMins:
		return r.ProviderToSceneMins
	case ColProviderToDestinationMins:
		return r.ProviderToDestinationMins
	case ColUnitNotifiedByDispatchDT:
		return r.UnitNotifiedByDispatchDT
	case ColUnitArrivedOnSceneDT:
		return r.UnitArrivedOnSceneDT
	case ColUnitArrivedToPatientDT:
		return r.UnitArrivedToPatientDT
	case ColUnitLeftSceneDT:
		return r.UnitLeftSceneDT
	case ColPatientArrivedDestinationDT:
		return r.PatientArrivedDestinationDT
	}
	return ""
}

// FromMap builds a Record from an extracted column→value mapping. Columns
// missing from the map stay empty; extra columns are ignored.
func FromMap(values map[string]string, rowNum int) Record {
	return Record{
		SourceRowNum:                rowNum,
		IncidentDT:                  values[ColIncidentDT],
		IncidentCounty:              values[ColIncidentCounty],
		ChiefComplaintDispatch:      values[ColChiefComplaintDispatch],
		ChiefComplaintAnatomicLoc:   values[ColChiefComplaintAnatomicLoc],
		PrimarySymptom:              values[ColPrimarySymptom],
		ProviderImpressionPrimary:   values[ColProviderImpressionPrimary],
		DispositionED:               values[ColDispositionED],
		DispositionHospital:         values[ColDispositionHospital],
		InjuryFlg:                   values[ColInjuryFlg],
		NaloxoneGivenFlg:            values[ColNaloxoneGivenFlg],
		MedicationGivenOtherFlg:     values[ColMedicationGivenOtherFlg],
		DestinationType:             values[ColDestinationType],
		ProviderTypeStructure:       values[ColProviderTypeStructure],
		ProviderTypeService:         values[ColProviderTypeService],
		ProviderTypeServiceLevel:    values[ColProviderTypeServiceLevel],
		ProviderToSceneMins:         values[ColProviderToSceneMins],
		ProviderToDestinationMins:   values[ColProviderToDestinationMins],
		UnitNotifiedByDispatchDT:    values[ColUnitNotifiedByDispatchDT],
		UnitArrivedOnSceneDT:        values[ColUnitArrivedOnSceneDT],
		UnitArrivedToPatientDT:      values[ColUnitArrivedToPatientDT],
		UnitLeftSceneDT:             values[ColUnitLeftSceneDT],
		PatientArrivedDestinationDT: values[ColPatientArrivedDestinationDT],
	}
}
