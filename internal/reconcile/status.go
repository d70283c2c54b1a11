package reconcile

// Status is the freshness verdict attached to every composed view model so
// the presentation layer can render loading, stale-but-served and failed
// states distinctly.
type Status int

const (
	// StatusLoading means no result is available yet. Returned only through
	// watch-style consumers before their first obtainment completes.
	StatusLoading Status = iota

	// StatusReady means the view model was composed from fresh data.
	StatusReady

	// StatusDegraded means the last refresh failed and the view model (if
	// any) was served from the last-known cached records. Recoverable: the
	// caller may invalidate and re-obtain.
	StatusDegraded

	// StatusFailed means no view model could be produced.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusDegraded:
		return "degraded"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}
