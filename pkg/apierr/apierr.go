// Package apierr defines the closed error taxonomy from spec section 7.
// Every user-facing failure path returns (or wraps, with fmt.Errorf's %w)
// one of these sentinels so that callers in cmd/* can map errors to exit
// codes with a single errors.Is switch, the same way the teacher's
// subcommands map internal errors to os.Exit codes.
package apierr

import "errors"

var (
	// ErrUsage covers bad flags and unknown compound names on download.
	ErrUsage = errors.New("usage error")

	// ErrBackendUnavailable is a transient backend I/O failure. pkg/retry
	// retries it with bounded exponential backoff before it is allowed to
	// surface to a caller.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrBackendRejected is a permanent backend failure (e.g. the backend
	// refused the payload). Surfaced immediately, never retried.
	ErrBackendRejected = errors.New("backend rejected request")

	// ErrCatalogCorrupt means the catalog's invariants cannot be trusted;
	// the operator must run wipe.
	ErrCatalogCorrupt = errors.New("catalog corrupt")

	// ErrResourceCorrupt means a single resource's hash or length check
	// failed on unwrap/decompress.
	ErrResourceCorrupt = errors.New("resource corrupt")

	// ErrCompoundCorrupt means a compound's total_hash did not match after
	// a full download.
	ErrCompoundCorrupt = errors.New("compound corrupt")

	// ErrCompoundExists is returned by upload without -ow when the name
	// already exists.
	ErrCompoundExists = errors.New("compound already exists")

	// ErrCancelled is returned when a context is cancelled mid-operation.
	ErrCancelled = errors.New("operation cancelled")
)

// ExitCode maps an error (possibly wrapped) to the exit codes from spec
// section 6. Unrecognized errors get 1 (generic failure); nil gets 0.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, ErrUsage):
		return 2
	case errors.Is(err, ErrBackendUnavailable), errors.Is(err, ErrBackendRejected):
		return 3
	case errors.Is(err, ErrCatalogCorrupt):
		return 4
	case errors.Is(err, ErrResourceCorrupt), errors.Is(err, ErrCompoundCorrupt):
		return 5
	default:
		return 1
	}
}
