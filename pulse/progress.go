// Package pulse holds the contracts shared by job infrastructure and the
// handlers it runs.
package pulse

// ProgressEmitter is how a long-running operation reports its work
type ProgressEmitter interface {
	// SetTotal announces how many items the operation will process
	SetTotal(total int)

	// Record stores the outcome of one item and advances progress by one
	Record(result any) error

	// EmitInfo emits a general informational message
	EmitInfo(message string)
}
