package models

import (
	"errors"
	"fmt"
	"strings"
)

// Domain failures of the referral ledger. Services map them onto
// domain-errors codes for transport.
var (
	// ErrDuplicateExternalKey: the external key already owns a node.
	ErrDuplicateExternalKey = errors.New("external key already joined")
	// ErrCodeExhausted: reservation retries spent without a free code.
	ErrCodeExhausted = errors.New("referral code space exhausted")
	// ErrStructuralIntegrity: the ancestor chain or a subtree contains a cycle.
	ErrStructuralIntegrity = errors.New("structural integrity violation")
	// ErrProjectionDrift: a mirror disagrees with the by-id record.
	ErrProjectionDrift = errors.New("projection drift detected")
	ErrNodeNotFound    = errors.New("node not found")
	ErrCodeNotFound    = errors.New("referral code not found")
)

// StructuralIntegrityError reports the code at which a walk revisited a node.
type StructuralIntegrityError struct {
	At   Code
	Path []Code
}

func (e *StructuralIntegrityError) Error() string {
	parts := make([]string, len(e.Path))
	for i, c := range e.Path {
		parts[i] = string(c)
	}
	return fmt.Sprintf("structural integrity violation: cycle at %s (path %s)", e.At, strings.Join(parts, " -> "))
}

func (e *StructuralIntegrityError) Is(target error) bool {
	return target == ErrStructuralIntegrity
}

// DriftError describes one mirror that disagreed with by-id.
type DriftError struct {
	NodeID     NodeID
	Projection ProjectionKind
	Expected   Mirrored
	Found      *Mirrored
}

func (e *DriftError) Error() string {
	if e.Found == nil {
		return fmt.Sprintf("projection drift: %s entry missing for node %s", e.Projection, e.NodeID)
	}
	return fmt.Sprintf("projection drift: %s entry for node %s has %+v, by-id has %+v",
		e.Projection, e.NodeID, *e.Found, e.Expected)
}

func (e *DriftError) Is(target error) bool {
	return target == ErrProjectionDrift
}
