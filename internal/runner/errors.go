package runner

import "errors"

// Lookup and configuration errors returned by the Runner. Callers match
// them with errors.Is; the Runner wraps them with the offending value.
var (
	// ErrUnsupportedFramework is returned by CreateJob before any process
	// is spawned when the requested framework has no local backend.
	ErrUnsupportedFramework = errors.New("framework not supported by process runner")

	// ErrJobNotFound is returned when a job name is absent from the registry.
	ErrJobNotFound = errors.New("job not found")

	// ErrNodeRankNotFound is returned when a log query names a rank outside
	// the job's node list.
	ErrNodeRankNotFound = errors.New("node rank not found")
)
