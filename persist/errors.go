package persist

import "errors"

// ErrPersistPermanent marks a job failure spec.md §7 calls PersistPermanent:
// an encoding schema mismatch or other impossible invariant. The process is
// expected to crash on this rather than retry — the data remains safe in the
// WAL. This package does not itself call os.Exit; it returns the error up to
// the caller responsible for that decision (the ingest package's lifecycle
// guard).
var ErrPersistPermanent = errors.New("persist: permanent failure")
