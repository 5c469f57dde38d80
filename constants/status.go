package constants

// ExtractionStatus is the canonical status for rows in the extractions table.
type ExtractionStatus string

// Stable values (store these exact strings in DB).
const (
	StatusOCROK       ExtractionStatus = "OCR_OK"       // text extracted, model not yet called
	StatusParsed      ExtractionStatus = "PARSED"       // record validated
	StatusParseFailed ExtractionStatus = "PARSE_FAILED" // model answered, no record
	StatusFailed      ExtractionStatus = "FAILED"       // upstream failure
)
