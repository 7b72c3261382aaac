package projection

import (
	"context"
	"fmt"
	"sort"

	"refnet/internal/network/models"
)

// AuditOptions controls the side effects of AuditAndRepair.
type AuditOptions struct {
	// RepairCounters overwrites counters with recomputed values. Only safe
	// while no joins are in flight, since a live walk may still be adding.
	RepairCounters bool
}

// DriftFinding is one mirror that was overwritten from by-id.
type DriftFinding struct {
	NodeID     models.NodeID         `json:"node_id"`
	Code       models.Code           `json:"code"`
	Projection models.ProjectionKind `json:"projection"`
	Missing    bool                  `json:"missing"`
}

// CounterMismatch is a node whose live counters disagree with a recount.
type CounterMismatch struct {
	NodeID         models.NodeID `json:"node_id"`
	Code           models.Code   `json:"code"`
	DirectCount    int64         `json:"direct_count"`
	ExpectedDirect int64         `json:"expected_direct"`
	TeamCount      int64         `json:"team_count"`
	ExpectedTeam   int64         `json:"expected_team"`
	Repaired       bool          `json:"repaired"`
}

// Report summarizes one audit pass.
type Report struct {
	Scanned           int               `json:"scanned"`
	DriftRepaired     []DriftFinding    `json:"drift_repaired"`
	Unreachable       []models.Code     `json:"unreachable"`
	CycleAt           models.Code       `json:"cycle_at,omitempty"`
	CounterMismatches []CounterMismatch `json:"counter_mismatches"`
}

// Clean reports whether the audit found nothing to fix.
func (r Report) Clean() bool {
	return len(r.DriftRepaired) == 0 && len(r.Unreachable) == 0 && r.CycleAt == "" && len(r.CounterMismatches) == 0
}

// AuditAndRepair treats by-id as the source of truth. Drifted mirrors are
// overwritten. Cycles and unreachable nodes are reported only.
func (e *Enforcer) AuditAndRepair(ctx context.Context, opts AuditOptions) (Report, error) {
	report := Report{
		DriftRepaired:     []DriftFinding{},
		Unreachable:       []models.Code{},
		CounterMismatches: []CounterMismatch{},
	}
	var nodes []models.Node

	err := e.store.Scan(ctx, func(n models.Node) error {
		report.Scanned++
		nodes = append(nodes, n)
		return e.repairDrift(ctx, n.ID, &report)
	})
	if err != nil {
		return report, fmt.Errorf("scan projections: %w", err)
	}

	tally, err := e.verifier.VerifyAll(ctx, models.RootCode)
	if err != nil {
		return report, fmt.Errorf("recount team sizes: %w", err)
	}
	if tally.Aborted {
		report.CycleAt = tally.CycleAt
		e.metrics.IncrementStructuralViolation()
		e.logger.ErrorContext(ctx, "structural integrity violation found during audit",
			"error", &models.StructuralIntegrityError{At: tally.CycleAt},
		)
		return report, nil
	}

	for _, n := range nodes {
		counts, reachable := tally.Counts[n.ReferralCode]
		if !reachable {
			report.Unreachable = append(report.Unreachable, n.ReferralCode)
			continue
		}
		if counts.Direct == n.DirectCount && counts.Team == n.TeamCount {
			continue
		}
		mismatch := CounterMismatch{
			NodeID:         n.ID,
			Code:           n.ReferralCode,
			DirectCount:    n.DirectCount,
			ExpectedDirect: counts.Direct,
			TeamCount:      n.TeamCount,
			ExpectedTeam:   counts.Team,
		}
		if opts.RepairCounters {
			direct, team := counts.Direct, counts.Team
			if _, err := e.store.UpdateMirrored(ctx, n.ID, models.MirroredUpdate{DirectCount: &direct, TeamCount: &team}); err != nil {
				return report, fmt.Errorf("repair counters of %s: %w", n.ReferralCode, err)
			}
			mismatch.Repaired = true
		}
		e.logger.WarnContext(ctx, "counter mismatch found during audit",
			"code", string(n.ReferralCode),
			"direct_count", n.DirectCount,
			"expected_direct", counts.Direct,
			"team_count", n.TeamCount,
			"expected_team", counts.Team,
			"repaired", mismatch.Repaired,
		)
		report.CounterMismatches = append(report.CounterMismatches, mismatch)
	}

	sort.Slice(report.Unreachable, func(i, j int) bool { return report.Unreachable[i] < report.Unreachable[j] })
	if len(report.Unreachable) > 0 {
		e.logger.ErrorContext(ctx, "nodes unreachable from root",
			"count", len(report.Unreachable),
		)
	}
	return report, nil
}

func (e *Enforcer) repairDrift(ctx context.Context, id models.NodeID, report *Report) error {
	mirrors, err := e.store.Mirrors(ctx, id)
	if err != nil {
		return fmt.Errorf("read mirrors of %s: %w", id, err)
	}
	for _, drift := range mirrors.Drift() {
		e.logger.WarnContext(ctx, "projection drift detected, repairing from by-id",
			"error", drift,
		)
		// The snapshot above only detects drift; the copy re-reads by-id so
		// increments that landed since are carried over.
		repaired, err := e.store.RepairMirror(ctx, id, drift.Projection)
		if err != nil {
			return fmt.Errorf("repair %s mirror of %s: %w", drift.Projection, id, err)
		}
		e.metrics.IncrementDriftRepair(string(drift.Projection))
		report.DriftRepaired = append(report.DriftRepaired, DriftFinding{
			NodeID:     id,
			Code:       repaired.ReferralCode,
			Projection: drift.Projection,
			Missing:    drift.Found == nil,
		})
	}
	return nil
}
