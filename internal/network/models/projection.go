package models

// ProjectionKind names one of the three mirrored lookup indexes.
type ProjectionKind string

const (
	ProjectionByID          ProjectionKind = "by_id"
	ProjectionByExternalKey ProjectionKind = "by_external_key"
	ProjectionByCode        ProjectionKind = "by_code"
)

// Mirrors is a raw read of all three projections for one node. By-id is the
// source of truth; nil entries are missing.
type Mirrors struct {
	ByID          *Node
	ByExternalKey *Node
	ByCode        *Node
}

// Drift compares the mirrors against by-id and returns one DriftError per
// disagreeing or missing mirror.
func (m Mirrors) Drift() []*DriftError {
	if m.ByID == nil {
		return nil
	}
	want := MirroredOf(*m.ByID)
	var drift []*DriftError
	check := func(kind ProjectionKind, n *Node) {
		if n == nil {
			drift = append(drift, &DriftError{NodeID: m.ByID.ID, Projection: kind, Expected: want})
			return
		}
		got := MirroredOf(*n)
		if got != want || n.ID != m.ByID.ID || n.ReferrerCode != m.ByID.ReferrerCode {
			drift = append(drift, &DriftError{NodeID: m.ByID.ID, Projection: kind, Expected: want, Found: &got})
		}
	}
	check(ProjectionByExternalKey, m.ByExternalKey)
	check(ProjectionByCode, m.ByCode)
	return drift
}
