package filesystem

// Observer records filesystem operation metrics. The metrics package provides
// the implementation so that filesystem does not import metrics.
type Observer interface {
	// ObserveOperation records duration and error status for an operation
	// such as "read", "write", "stat" or "rename".
	ObserveOperation(operation string, durationSeconds float64, err error)

	ObserveRetryAttempt(operation string)
	ObserveRetrySuccess(operation string)
	ObserveRetryFailure(operation string)
	ObserveStaleError(operation string)
}

// defaultObserver is the package-level observer set at startup.
// If nil, metric recording is skipped.
var defaultObserver Observer

// SetObserver sets the package-level metrics observer.
// Call this once at startup.
func SetObserver(o Observer) {
	defaultObserver = o
}

type nopObserver struct{}

func (nopObserver) ObserveOperation(string, float64, error) {}
func (nopObserver) ObserveRetryAttempt(string)              {}
func (nopObserver) ObserveRetrySuccess(string)              {}
func (nopObserver) ObserveRetryFailure(string)              {}
func (nopObserver) ObserveStaleError(string)                {}

// observe is a nil-safe accessor for the package-level observer.
func observe() Observer {
	if defaultObserver == nil {
		return nopObserver{}
	}
	return defaultObserver
}
