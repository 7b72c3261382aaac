package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"refnet/internal/network/models"
	"refnet/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemory
	ctx   context.Context
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
}

func (s *InMemoryStoreSuite) materialize(externalKey string, code, referrer models.Code) models.Node {
	s.Require().NoError(s.store.ReserveCode(s.ctx, code))
	n := models.Node{
		ID:           models.NodeID(uuid.New()),
		ExternalKey:  externalKey,
		ReferralCode: code,
		ReferrerCode: referrer,
		JoinedAt:     time.Now(),
	}
	s.Require().NoError(s.store.Materialize(s.ctx, n))
	return n
}

func (s *InMemoryStoreSuite) TestCodeReservation() {
	s.Run("reserve is create-if-absent", func() {
		s.Require().NoError(s.store.ReserveCode(s.ctx, "TLAAAAAA"))
		err := s.store.ReserveCode(s.ctx, "TLAAAAAA")
		s.ErrorIs(err, ErrCodeTaken)
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("release frees an unbound reservation", func() {
		s.Require().NoError(s.store.ReserveCode(s.ctx, "TLBBBBBB"))
		s.Require().NoError(s.store.ReleaseCode(s.ctx, "TLBBBBBB"))
		s.NoError(s.store.ReserveCode(s.ctx, "TLBBBBBB"))
	})

	s.Run("release does not free a bound code", func() {
		n := s.materialize("+1000", "TLCCCCCC", models.RootCode)
		s.Require().NoError(s.store.ReleaseCode(s.ctx, n.ReferralCode))
		s.ErrorIs(s.store.ReserveCode(s.ctx, n.ReferralCode), ErrCodeTaken)
	})

	s.Run("count tracks reservations", func() {
		count, err := s.store.CountCodes(s.ctx)
		s.Require().NoError(err)
		s.Equal(int64(3), count)
	})
}

func (s *InMemoryStoreSuite) TestMaterialize() {
	s.Run("writes all three projections", func() {
		n := s.materialize("+2000", "TLDDDDDD", models.RootCode)

		byID, err := s.store.FindByID(s.ctx, n.ID)
		s.Require().NoError(err)
		byExt, err := s.store.FindByExternalKey(s.ctx, "+2000")
		s.Require().NoError(err)
		byCode, err := s.store.FindByCode(s.ctx, "TLDDDDDD")
		s.Require().NoError(err)
		s.Equal(byID, byExt)
		s.Equal(byID, byCode)

		children, err := s.store.Children(s.ctx, models.RootCode)
		s.Require().NoError(err)
		s.Contains(children, models.Code("TLDDDDDD"))
	})

	s.Run("rejects duplicate external key and leaves reservation unbound", func() {
		s.Require().NoError(s.store.ReserveCode(s.ctx, "TLEEEEEE"))
		dup := models.Node{ID: models.NodeID(uuid.New()), ExternalKey: "+2000", ReferralCode: "TLEEEEEE", ReferrerCode: models.RootCode}
		s.ErrorIs(s.store.Materialize(s.ctx, dup), ErrExternalKeyTaken)

		_, err := s.store.FindByCode(s.ctx, "TLEEEEEE")
		s.ErrorIs(err, ErrNotFound)
		s.Require().NoError(s.store.ReleaseCode(s.ctx, "TLEEEEEE"))
		s.NoError(s.store.ReserveCode(s.ctx, "TLEEEEEE"))
	})

	s.Run("rejects unreserved code without claiming the external key", func() {
		n := models.Node{ID: models.NodeID(uuid.New()), ExternalKey: "+3000", ReferralCode: "TLFFFFFF", ReferrerCode: models.RootCode}
		s.ErrorIs(s.store.Materialize(s.ctx, n), ErrCodeNotReserved)

		_, err := s.store.FindByExternalKey(s.ctx, "+3000")
		s.ErrorIs(err, ErrNotFound)
		s.materialize("+3000", "TLGGGGGG", models.RootCode)
	})
}

func (s *InMemoryStoreSuite) TestCounters() {
	n := s.materialize("+4000", "TLHHHHHH", models.RootCode)

	s.Run("increments mirror into every projection", func() {
		updated, err := s.store.IncrementCounters(s.ctx, n.ID, 1, 1)
		s.Require().NoError(err)
		s.Equal(int64(1), updated.DirectCount)
		s.Equal(int64(1), updated.TeamCount)

		m, err := s.store.Mirrors(s.ctx, n.ID)
		s.Require().NoError(err)
		s.Empty(m.Drift())
	})

	s.Run("concurrent increments are not lost", func() {
		var wg sync.WaitGroup
		for range 200 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.store.IncrementCounters(s.ctx, n.ID, 0, 1)
				s.NoError(err)
			}()
		}
		wg.Wait()

		got, err := s.store.FindByCode(s.ctx, n.ReferralCode)
		s.Require().NoError(err)
		s.Equal(int64(201), got.TeamCount)
	})

	s.Run("unknown node", func() {
		_, err := s.store.IncrementCounters(s.ctx, models.NodeID(uuid.New()), 1, 1)
		s.ErrorIs(err, ErrNotFound)
	})
}

func (s *InMemoryStoreSuite) TestRaiseRankIsMonotonic() {
	n := s.materialize("+5000", "TLJJJJJJ", models.RootCode)

	prev, err := s.store.RaiseRank(s.ctx, n.ID, 2)
	s.Require().NoError(err)
	s.Equal(0, prev)

	prev, err = s.store.RaiseRank(s.ctx, n.ID, 1)
	s.Require().NoError(err)
	s.Equal(2, prev)

	got, err := s.store.FindByExternalKey(s.ctx, "+5000")
	s.Require().NoError(err)
	s.Equal(2, got.Rank)
}

func (s *InMemoryStoreSuite) TestPutMirrorInjectsDrift() {
	n := s.materialize("+6000", "TLKKKKKK", models.RootCode)

	stale := n
	stale.Rank = 4
	s.Require().NoError(s.store.PutMirror(s.ctx, models.ProjectionByCode, stale))

	m, err := s.store.Mirrors(s.ctx, n.ID)
	s.Require().NoError(err)
	drift := m.Drift()
	s.Require().Len(drift, 1)
	s.Equal(models.ProjectionByCode, drift[0].Projection)

	s.ErrorIs(s.store.PutMirror(s.ctx, "by_phone", n), ErrUnknownProjection)
}

func (s *InMemoryStoreSuite) TestScanOrdersByJoinTime() {
	first := s.materialize("+7000", "TLMMMMMM", models.RootCode)
	time.Sleep(time.Millisecond)
	second := s.materialize("+7001", "TLNNNNNN", first.ReferralCode)

	var seen []models.NodeID
	s.Require().NoError(s.store.Scan(s.ctx, func(n models.Node) error {
		seen = append(seen, n.ID)
		return nil
	}))
	s.Equal([]models.NodeID{first.ID, second.ID}, seen)
}
