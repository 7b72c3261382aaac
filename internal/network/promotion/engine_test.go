package promotion

//go:generate mockgen -source=engine.go -destination=mocks/mocks.go -package=mocks RankStore,Publisher

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"refnet/internal/network/models"
	"refnet/internal/network/promotion/mocks"
)

type EngineSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	store     *mocks.MockRankStore
	publisher *mocks.MockPublisher
	engine    *Engine
	now       time.Time
}

func TestEngineSuite(t *testing.T) {
	suite.Run(t, new(EngineSuite))
}

func (s *EngineSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.store = mocks.NewMockRankStore(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var err error
	s.engine, err = New(DefaultTable(), s.store, s.publisher, WithClock(func() time.Time { return s.now }))
	s.Require().NoError(err)
}

func (s *EngineSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *EngineSuite) node(rank int, direct, team int64) models.Node {
	return models.Node{
		ID:           models.NodeID(uuid.New()),
		ReferralCode: "TLABCDEF",
		Rank:         rank,
		DirectCount:  direct,
		TeamCount:    team,
	}
}

func (s *EngineSuite) TestTargetRequiresBothThresholds() {
	cases := []struct {
		direct, team int64
		want         int
	}{
		{0, 0, 0},
		{10, 9, 0},
		{9, 10, 0},
		{10, 10, 1},
		{1, 11, 0},
		{25, 99, 1},
		{25, 100, 2},
		{1000, 1_000_000, 6},
	}
	for _, c := range cases {
		got, _ := s.engine.Target(c.direct, c.team)
		s.Equal(c.want, got, "direct=%d team=%d", c.direct, c.team)
	}
}

func (s *EngineSuite) TestEvaluatePromotesAndPublishes() {
	n := s.node(0, 10, 10)
	s.store.EXPECT().RaiseRank(gomock.Any(), n.ID, 1).Return(0, nil)
	s.publisher.EXPECT().Publish(gomock.Any(), models.PromotionEvent{
		NodeID:      n.ID,
		Code:        n.ReferralCode,
		OldRank:     0,
		NewRank:     1,
		NewRankName: "Volunteer",
		At:          s.now,
	})

	promoted, err := s.engine.Evaluate(context.Background(), n)
	s.Require().NoError(err)
	s.True(promoted)
}

func (s *EngineSuite) TestEvaluateSkipsWhenNotQualified() {
	promoted, err := s.engine.Evaluate(context.Background(), s.node(1, 19, 500))
	s.Require().NoError(err)
	s.False(promoted)
}

func (s *EngineSuite) TestEvaluateNeverDemotes() {
	promoted, err := s.engine.Evaluate(context.Background(), s.node(3, 0, 0))
	s.Require().NoError(err)
	s.False(promoted)
}

func (s *EngineSuite) TestConcurrentRaiseEmitsOnce() {
	n := s.node(0, 10, 10)
	s.store.EXPECT().RaiseRank(gomock.Any(), n.ID, 1).Return(1, nil)

	promoted, err := s.engine.Evaluate(context.Background(), n)
	s.Require().NoError(err)
	s.False(promoted)
}

func (s *EngineSuite) TestEvaluatePropagatesStoreErrors() {
	n := s.node(0, 10, 10)
	s.store.EXPECT().RaiseRank(gomock.Any(), n.ID, 1).Return(0, errors.New("timeout"))

	_, err := s.engine.Evaluate(context.Background(), n)
	s.Error(err)
}

func (s *EngineSuite) TestProgressUsesSlowerGate() {
	next, progress := s.engine.Progress(s.node(0, 8, 3))
	s.Require().NotNil(next)
	s.Equal(1, *next)
	s.InDelta(0.3, progress, 1e-9)

	_, progress = s.engine.Progress(s.node(0, 50, 3))
	s.InDelta(0.3, progress, 1e-9)

	_, progress = s.engine.Progress(s.node(0, 10, 10))
	s.Equal(1.0, progress)
}

func (s *EngineSuite) TestProgressAtTerminalRank() {
	next, progress := s.engine.Progress(s.node(len(DefaultTable())-1, 0, 0))
	s.Nil(next)
	s.Equal(1.0, progress)
}

func (s *EngineSuite) TestZeroThresholdCountsAsMet() {
	table := Table{{Name: "A"}, {Name: "B", DirectThreshold: 0, TeamThreshold: 4}}
	e, err := New(table, s.store, nil)
	s.Require().NoError(err)
	_, progress := e.Progress(models.Node{TeamCount: 1})
	s.Equal(0.25, progress)
}

func (s *EngineSuite) TestTableValidation() {
	s.NoError(DefaultTable().Validate())
	s.Error(Table{}.Validate())
	s.Error(Table{{Name: "A", DirectThreshold: 1}}.Validate())
	s.Error(Table{{Name: "A"}, {Name: "B", DirectThreshold: 5, TeamThreshold: 5}, {Name: "C", DirectThreshold: 4, TeamThreshold: 9}}.Validate())
	s.Error(Table{{Name: "A"}, {DirectThreshold: 1}}.Validate())
}

func (s *EngineSuite) TestLoadTable() {
	path := filepath.Join(s.T().TempDir(), "ranks.yaml")
	s.Require().NoError(os.WriteFile(path, []byte(`
ranks:
  - name: Member
    direct: 0
    team: 0
  - name: Captain
    direct: 3
    team: 5
`), 0o600))

	table, err := LoadTable(path)
	s.Require().NoError(err)
	s.Equal(Table{{Name: "Member"}, {Name: "Captain", DirectThreshold: 3, TeamThreshold: 5}}, table)

	table, err = LoadTable("")
	s.Require().NoError(err)
	s.Equal(DefaultTable(), table)

	_, err = ParseTable([]byte("ranks: [{name: A, direct: 2, team: 0}]"))
	s.Error(err)
}
