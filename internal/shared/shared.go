// package shared defines helpers used across the pipeline: logging, id
// generation, configuration, database access and text normalization.
package shared

import (
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
)

// NewLogger creates a new [log.Logger] instance with the specified [io.Writer], with timestamps and caller reporting enabled.
//
// The writer defaults to [os.Stderr]
func NewLogger(w io.Writer) *log.Logger {
	if w == nil {
		w = os.Stderr
	}
	opts := log.Options{ReportTimestamp: true, ReportCaller: true}
	return log.NewWithOptions(w, opts)
}

// JobLogger creates a child [log.Logger] scoped to a single job.
//
// Every controller event for the job carries the job_id key so a failed
// import or download can be traced through the log stream.
func JobLogger(l *log.Logger, jobID string) *log.Logger {
	return l.With("job_id", jobID)
}

// SetLogLevel sets the [log.Level] for the given [log.Logger].
func SetLogLevel(l *log.Logger, ll log.Level) {
	l.SetLevel(ll)
}

// GenerateID generates a new v4 [uuid.UUID] as a string
func GenerateID() string {
	return uuid.New().String()
}
