package models

import (
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "refnet/pkg/domain-errors"
)

// NodeID identifies a participant. It is assigned at join and never changes.
type NodeID uuid.UUID

func (id NodeID) String() string { return uuid.UUID(id).String() }

func (id NodeID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }

func (id *NodeID) UnmarshalText(b []byte) error {
	return (*uuid.UUID)(id).UnmarshalText(b)
}

// IsNil reports whether id is the zero value.
func (id NodeID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// ParseNodeID parses a textual node id at a trust boundary.
func ParseNodeID(s string) (NodeID, error) {
	if strings.TrimSpace(s) == "" {
		return NodeID{}, dErrors.New(dErrors.CodeInvalidInput, "node id is required")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return NodeID{}, dErrors.New(dErrors.CodeInvalidInput, "node id must be a UUID")
	}
	if u == uuid.Nil {
		return NodeID{}, dErrors.New(dErrors.CodeInvalidInput, "node id must not be nil")
	}
	return NodeID(u), nil
}

// Code is a public referral code.
type Code string

// RootCode is the reserved code of the root node.
const RootCode Code = "ROOT"

// RootNodeID is derived from the root code so bootstrap is idempotent.
var RootNodeID = NodeID(uuid.NewSHA1(uuid.NameSpaceOID, []byte("refnet/root/"+string(RootCode))))

// NormalizeCode trims and upper-cases user supplied codes.
func NormalizeCode(raw string) Code {
	return Code(strings.ToUpper(strings.TrimSpace(raw)))
}

// Node is the by-id record of a participant. The by-external-key and by-code
// projections mirror every field.
//
// Invariants:
//   - ReferralCode is unique and never changes
//   - ReferrerCode names an existing node; only root has an empty ReferrerCode
//   - DirectCount and TeamCount never decrease
//   - Rank never decreases
type Node struct {
	ID           NodeID    `json:"id"`
	ExternalKey  string    `json:"external_key"`
	ReferralCode Code      `json:"referral_code"`
	ReferrerCode Code      `json:"referrer_code"`
	Rank         int       `json:"rank"`
	DirectCount  int64     `json:"direct_count"`
	TeamCount    int64     `json:"team_count"`
	JoinedAt     time.Time `json:"joined_at"`
}

// IsRoot reports whether n is the parentless root.
func (n Node) IsRoot() bool {
	return n.ReferralCode == RootCode
}

// Mirrored is the field set every projection must agree on.
type Mirrored struct {
	ReferralCode Code
	Rank         int
	DirectCount  int64
	TeamCount    int64
}

// MirroredOf extracts the mirrored field set of n.
func MirroredOf(n Node) Mirrored {
	return Mirrored{
		ReferralCode: n.ReferralCode,
		Rank:         n.Rank,
		DirectCount:  n.DirectCount,
		TeamCount:    n.TeamCount,
	}
}

// MirroredUpdate carries optional changes to the mutable mirrored fields.
// Nil fields are left untouched.
type MirroredUpdate struct {
	Rank        *int
	DirectCount *int64
	TeamCount   *int64
}

// Apply returns n with the update applied.
func (u MirroredUpdate) Apply(n Node) Node {
	if u.Rank != nil {
		n.Rank = *u.Rank
	}
	if u.DirectCount != nil {
		n.DirectCount = *u.DirectCount
	}
	if u.TeamCount != nil {
		n.TeamCount = *u.TeamCount
	}
	return n
}

// NewRootNode builds the bootstrap root record.
func NewRootNode(externalKey string, now time.Time) Node {
	return Node{
		ID:           RootNodeID,
		ExternalKey:  externalKey,
		ReferralCode: RootCode,
		JoinedAt:     now,
	}
}

// NewNode validates and builds a freshly joined node.
func NewNode(id NodeID, externalKey string, code, referrer Code, now time.Time) (Node, error) {
	externalKey = strings.TrimSpace(externalKey)
	if externalKey == "" {
		return Node{}, dErrors.New(dErrors.CodeInvariantViolation, "external key cannot be empty")
	}
	if len(externalKey) > 128 {
		return Node{}, dErrors.New(dErrors.CodeInvariantViolation, "external key must be 128 characters or less")
	}
	if code == "" {
		return Node{}, dErrors.New(dErrors.CodeInvariantViolation, "referral code is required")
	}
	if referrer == "" {
		return Node{}, dErrors.New(dErrors.CodeInvariantViolation, "non-root node requires a referrer")
	}
	if referrer == code {
		return Node{}, dErrors.New(dErrors.CodeInvariantViolation, "node cannot refer itself")
	}
	return Node{
		ID:           id,
		ExternalKey:  externalKey,
		ReferralCode: code,
		ReferrerCode: referrer,
		JoinedAt:     now,
	}, nil
}
