package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Stores return these (optionally
// wrapped) so services can translate them into domain errors:
//   - ErrNotFound: key does not exist in the projection
//   - ErrAlreadyUsed: a unique key (external key, referral code) is taken
//   - ErrConflict: a concurrent writer won a transactional race
//   - ErrInvalidState: record in the wrong state for the requested write
//   - ErrUnavailable: backing store temporarily unavailable, safe to retry
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrAlreadyUsed  = errors.New("already used")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
