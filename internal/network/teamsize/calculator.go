// Package teamsize recomputes subtree sizes from the children index. The live
// team count is maintained incrementally by aggregation; this package is the
// reference used to verify it.
package teamsize

import (
	"context"
	"fmt"

	"refnet/internal/network/models"
)

// ChildLister reads the children index.
type ChildLister interface {
	Children(ctx context.Context, code models.Code) ([]models.Code, error)
}

// Counts are the recomputed counters of one node.
type Counts struct {
	Direct int64
	Team   int64
}

// Result of verifying one subtree. When Aborted is set the traversal met
// CycleAt twice and the sizes are meaningless.
type Result struct {
	Code        models.Code
	TeamSize    int64
	DirectCount int64
	Aborted     bool
	CycleAt     models.Code
}

// Tally is the outcome of one pass over a whole subtree.
type Tally struct {
	Counts  map[models.Code]Counts
	Aborted bool
	CycleAt models.Code
}

type Calculator struct {
	children ChildLister
}

func New(children ChildLister) *Calculator {
	return &Calculator{children: children}
}

// Verify recomputes the team size of code.
func (c *Calculator) Verify(ctx context.Context, code models.Code) (Result, error) {
	tally, err := c.VerifyAll(ctx, code)
	if err != nil {
		return Result{}, err
	}
	if tally.Aborted {
		return Result{Code: code, Aborted: true, CycleAt: tally.CycleAt}, nil
	}
	counts := tally.Counts[code]
	return Result{Code: code, TeamSize: counts.Team, DirectCount: counts.Direct}, nil
}

type frame struct {
	code     models.Code
	children []models.Code
	next     int
}

// VerifyAll computes counts for every node reachable from root in one
// iterative post-order pass, so depth is bounded by memory rather than the
// goroutine stack.
func (c *Calculator) VerifyAll(ctx context.Context, root models.Code) (Tally, error) {
	counts := make(map[models.Code]Counts)
	visited := map[models.Code]struct{}{root: {}}

	rootChildren, err := c.children.Children(ctx, root)
	if err != nil {
		return Tally{}, fmt.Errorf("list children of %s: %w", root, err)
	}
	stack := []*frame{{code: root, children: rootChildren}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return Tally{}, err
		}
		top := stack[len(stack)-1]
		if top.next < len(top.children) {
			child := top.children[top.next]
			top.next++
			if _, seen := visited[child]; seen {
				return Tally{Counts: counts, Aborted: true, CycleAt: child}, nil
			}
			visited[child] = struct{}{}
			grandchildren, err := c.children.Children(ctx, child)
			if err != nil {
				return Tally{}, fmt.Errorf("list children of %s: %w", child, err)
			}
			stack = append(stack, &frame{code: child, children: grandchildren})
			continue
		}

		var team int64
		for _, child := range top.children {
			team += 1 + counts[child].Team
		}
		counts[top.code] = Counts{Direct: int64(len(top.children)), Team: team}
		stack = stack[:len(stack)-1]
	}
	return Tally{Counts: counts}, nil
}
