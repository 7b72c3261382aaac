package store

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"sync/atomic"

	"refnet/internal/network/models"
)

const stripeCount = 256

// InMemory keeps the projections in concurrent maps. All writes touching one
// node's projections hold that node's stripe lock, so joins under unrelated
// ancestors never contend. Reads take the stripe's read lock so they observe
// the three mirrors from the same instant.
type InMemory struct {
	stripes [stripeCount]sync.RWMutex

	byID          sync.Map // models.NodeID -> models.Node
	byExternalKey sync.Map // string -> models.Node
	byCode        sync.Map // models.Code -> models.Node

	// extOwners claims external keys ahead of the projection write.
	extOwners sync.Map // string -> models.NodeID
	// codes holds reservations; the zero NodeID marks reserved-but-unowned.
	codes     sync.Map // models.Code -> models.NodeID
	codeCount atomic.Int64

	children sync.Map // models.Code -> *childList
}

type childList struct {
	mu    sync.Mutex
	codes []models.Code
}

// NewInMemory constructs an empty store.
func NewInMemory() *InMemory {
	return &InMemory{}
}

func (s *InMemory) stripe(id models.NodeID) *sync.RWMutex {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return &s.stripes[h.Sum32()%stripeCount]
}

func (s *InMemory) ReserveCode(_ context.Context, code models.Code) error {
	if _, loaded := s.codes.LoadOrStore(code, models.NodeID{}); loaded {
		return ErrCodeTaken
	}
	s.codeCount.Add(1)
	return nil
}

func (s *InMemory) ReleaseCode(_ context.Context, code models.Code) error {
	if s.codes.CompareAndDelete(code, models.NodeID{}) {
		s.codeCount.Add(-1)
	}
	return nil
}

func (s *InMemory) CountCodes(_ context.Context) (int64, error) {
	return s.codeCount.Load(), nil
}

func (s *InMemory) Materialize(_ context.Context, node models.Node) error {
	mu := s.stripe(node.ID)
	mu.Lock()
	defer mu.Unlock()

	if owner, loaded := s.extOwners.LoadOrStore(node.ExternalKey, node.ID); loaded && owner.(models.NodeID) != node.ID {
		return ErrExternalKeyTaken
	}
	if !s.codes.CompareAndSwap(node.ReferralCode, models.NodeID{}, node.ID) {
		s.extOwners.CompareAndDelete(node.ExternalKey, node.ID)
		return ErrCodeNotReserved
	}

	s.byID.Store(node.ID, node)
	s.byExternalKey.Store(node.ExternalKey, node)
	s.byCode.Store(node.ReferralCode, node)

	if node.ReferrerCode != "" {
		v, _ := s.children.LoadOrStore(node.ReferrerCode, &childList{})
		cl := v.(*childList)
		cl.mu.Lock()
		cl.codes = append(cl.codes, node.ReferralCode)
		cl.mu.Unlock()
	}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, id models.NodeID) (models.Node, error) {
	mu := s.stripe(id)
	mu.RLock()
	defer mu.RUnlock()
	if v, ok := s.byID.Load(id); ok {
		return v.(models.Node), nil
	}
	return models.Node{}, ErrNotFound
}

func (s *InMemory) FindByExternalKey(_ context.Context, externalKey string) (models.Node, error) {
	return s.findMirror(&s.byExternalKey, externalKey)
}

func (s *InMemory) FindByCode(_ context.Context, code models.Code) (models.Node, error) {
	return s.findMirror(&s.byCode, code)
}

// findMirror loads a secondary projection, then re-reads it under the owning
// node's stripe so an in-flight write is either fully visible or not at all.
func (s *InMemory) findMirror(m *sync.Map, key any) (models.Node, error) {
	v, ok := m.Load(key)
	if !ok {
		return models.Node{}, ErrNotFound
	}
	mu := s.stripe(v.(models.Node).ID)
	mu.RLock()
	defer mu.RUnlock()
	v, ok = m.Load(key)
	if !ok {
		return models.Node{}, ErrNotFound
	}
	return v.(models.Node), nil
}

func (s *InMemory) Children(_ context.Context, code models.Code) ([]models.Code, error) {
	v, ok := s.children.Load(code)
	if !ok {
		return nil, nil
	}
	cl := v.(*childList)
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return append([]models.Code(nil), cl.codes...), nil
}

func (s *InMemory) IncrementCounters(_ context.Context, id models.NodeID, direct, team int64) (models.Node, error) {
	return s.mutate(id, func(n models.Node) models.Node {
		n.DirectCount += direct
		n.TeamCount += team
		return n
	})
}

func (s *InMemory) RaiseRank(_ context.Context, id models.NodeID, rank int) (int, error) {
	var prev int
	_, err := s.mutate(id, func(n models.Node) models.Node {
		prev = n.Rank
		if rank > n.Rank {
			n.Rank = rank
		}
		return n
	})
	return prev, err
}

func (s *InMemory) UpdateMirrored(_ context.Context, id models.NodeID, update models.MirroredUpdate) (models.Node, error) {
	return s.mutate(id, update.Apply)
}

// mutate applies fn to the by-id record and each mirror under the node's
// stripe lock. Mirrors are updated field-wise from their own stored value so
// a drifted mirror stays drifted until AuditAndRepair rewrites it.
func (s *InMemory) mutate(id models.NodeID, fn func(models.Node) models.Node) (models.Node, error) {
	mu := s.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	v, ok := s.byID.Load(id)
	if !ok {
		return models.Node{}, ErrNotFound
	}
	cur := v.(models.Node)
	next := fn(cur)
	s.byID.Store(id, next)

	if m, ok := s.byExternalKey.Load(cur.ExternalKey); ok {
		s.byExternalKey.Store(cur.ExternalKey, applyDelta(m.(models.Node), cur, next))
	}
	if m, ok := s.byCode.Load(cur.ReferralCode); ok {
		s.byCode.Store(cur.ReferralCode, applyDelta(m.(models.Node), cur, next))
	}
	return next, nil
}

// applyDelta carries the change between before and after onto mirror.
func applyDelta(mirror, before, after models.Node) models.Node {
	mirror.DirectCount += after.DirectCount - before.DirectCount
	mirror.TeamCount += after.TeamCount - before.TeamCount
	if after.Rank != before.Rank {
		mirror.Rank = after.Rank
	}
	return mirror
}

func (s *InMemory) Mirrors(_ context.Context, id models.NodeID) (models.Mirrors, error) {
	mu := s.stripe(id)
	mu.RLock()
	defer mu.RUnlock()

	v, ok := s.byID.Load(id)
	if !ok {
		return models.Mirrors{}, ErrNotFound
	}
	n := v.(models.Node)
	out := models.Mirrors{ByID: &n}
	if m, ok := s.byExternalKey.Load(n.ExternalKey); ok {
		mn := m.(models.Node)
		out.ByExternalKey = &mn
	}
	if m, ok := s.byCode.Load(n.ReferralCode); ok {
		mn := m.(models.Node)
		out.ByCode = &mn
	}
	return out, nil
}

func (s *InMemory) PutMirror(_ context.Context, kind models.ProjectionKind, node models.Node) error {
	mu := s.stripe(node.ID)
	mu.Lock()
	defer mu.Unlock()

	switch kind {
	case models.ProjectionByID:
		s.byID.Store(node.ID, node)
	case models.ProjectionByExternalKey:
		s.byExternalKey.Store(node.ExternalKey, node)
	case models.ProjectionByCode:
		s.byCode.Store(node.ReferralCode, node)
	default:
		return ErrUnknownProjection
	}
	return nil
}

func (s *InMemory) RepairMirror(_ context.Context, id models.NodeID, kind models.ProjectionKind) (models.Node, error) {
	mu := s.stripe(id)
	mu.Lock()
	defer mu.Unlock()

	v, ok := s.byID.Load(id)
	if !ok {
		return models.Node{}, ErrNotFound
	}
	n := v.(models.Node)
	switch kind {
	case models.ProjectionByID:
	case models.ProjectionByExternalKey:
		s.byExternalKey.Store(n.ExternalKey, n)
	case models.ProjectionByCode:
		s.byCode.Store(n.ReferralCode, n)
	default:
		return models.Node{}, ErrUnknownProjection
	}
	return n, nil
}

func (s *InMemory) Scan(ctx context.Context, fn func(models.Node) error) error {
	var ids []models.NodeID
	s.byID.Range(func(k, _ any) bool {
		ids = append(ids, k.(models.NodeID))
		return true
	})
	nodes := make([]models.Node, 0, len(ids))
	for _, id := range ids {
		n, err := s.FindByID(ctx, id)
		if err != nil {
			continue
		}
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].JoinedAt.Before(nodes[j].JoinedAt)
	})
	for _, n := range nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	return nil
}
