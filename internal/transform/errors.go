package transform

// Record-level error kinds. Only the incident-date kinds reject a record;
// everything else degrades the offending field to its default or null.
const (
	KindNullValue     = "NULL_VALUE"
	KindInvalidDate   = "INVALID_DATE"
	KindInvalidNumber = "INVALID_NUMBER"
	KindNegativeValue = "NEGATIVE_VALUE"
	KindInvalidFlag   = "INVALID_FLAG"
	KindInvalidBinary = "INVALID_BINARY"
	KindParseError    = "PARSE_ERROR"
)

// FieldError describes one data-quality problem found in a source record.
type FieldError struct {
	Column  string
	Kind    string
	Message string
}
