package runner

// StateStore keeps the history of finished runs.
type StateStore interface {
	// Runs returns finished runs, most recent first.
	Runs() []RunStatus
	// Get returns a single run by ID.
	Get(id string) (RunStatus, bool)
	// Save records a finished run.
	Save(RunStatus) error
}
