// Package constants provides shared constants used throughout the clinmap codebase.
// This includes batching defaults, timeouts, file permissions and the fixed
// labels of the feedback export.
package constants

import "time"

// Dispatch defaults for the consequence mapper
const (
	// DefaultBatchSize is the number of variant keys sent to one annotator invocation
	DefaultBatchSize = 200

	// DefaultWorkers is the number of batches annotated concurrently
	DefaultWorkers = 20

	// DefaultRetries is the number of attempts made per batch before the run fails
	DefaultRetries = 4

	// MaxBatchSize is the largest batch size accepted from configuration
	MaxBatchSize = 100000

	// MaxWorkers is the largest worker count accepted from configuration
	MaxWorkers = 512
)

// Timeout constants
const (
	// DefaultBatchTimeout bounds a single annotator invocation
	DefaultBatchTimeout = 30 * time.Minute

	// RetryBackoff is the base backoff duration between batch attempts
	RetryBackoff = 1 * time.Second

	// MaxRetryBackoff is the maximum backoff duration between batch attempts
	MaxRetryBackoff = 30 * time.Second

	// AnnotatorWaitDelay bounds how long a killed annotator may hold its
	// output pipes open before they are closed under it
	AnnotatorWaitDelay = 2 * time.Second

	// ShutdownTimeout bounds cleanup after a failed command
	ShutdownTimeout = 5 * time.Second

	// LedgerTimeout bounds a single ledger write
	LedgerTimeout = 10 * time.Second
)

// File permission constants define standard Unix file permissions
const (
	// DirPermissions is the default permission for created directories (rwxr-xr-x)
	DirPermissions = 0755

	// FilePermissions is the default permission for created files (rw-r--r--)
	FilePermissions = 0644
)

// Feedback export labels
const (
	// FeedbackPropertyType is the PROPERTY_TYPE written for every feedback row
	FeedbackPropertyType = "disease"

	// FeedbackAnnotator is the ANNOTATOR written for every feedback row
	FeedbackAnnotator = "eva"

	// FeedbackDateLayout formats the run-level ANNOTATION_DATE
	FeedbackDateLayout = "06/01/02 15:04"
)

// Format constants
const (
	// TimeFormatISO8601 is the ISO 8601 time format
	TimeFormatISO8601 = time.RFC3339

	// TimeFormatFilename is the format used in generated filenames
	TimeFormatFilename = "20060102-150405"
)

// Table markers
const (
	// MappingHeader is the header line written at the top of mapping tables
	MappingHeader = "#clinvar_trait_name\turi\tlabel"

	// MappingHeaderField opens the header line of a mapping table, whatever
	// its column count
	MappingHeaderField = "#clinvar_trait_name"

	// CommentPrefix marks header and comment lines in variant and consequence
	// inputs; mapping tables skip only their header line
	CommentPrefix = "#"

	// UnresolvedSentinel is returned by annotators for keys they cannot resolve
	UnresolvedSentinel = "-"
)
