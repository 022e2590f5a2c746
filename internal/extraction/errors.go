package extraction

import "errors"

var (
	// ErrExtractionFailed marks a collection that could not be opened or
	// filtered: unknown dataset, malformed geometry, auth or service errors.
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrProcessingFailed marks an aggregation run that produced no rows:
	// no collection, invalid window length or a failed remote reduction.
	ErrProcessingFailed = errors.New("processing failed")
)
