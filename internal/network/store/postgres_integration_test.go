//go:build integration

package store

import (
	"context"
	"database/sql"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"refnet/internal/network/models"
	txcontext "refnet/pkg/platform/tx"
	"refnet/pkg/testutil/containers"
)

var projectionTables = []string{"nodes_by_code", "nodes_by_external_key", "nodes_by_id", "code_reservations"}

type PostgresStoreSuite struct {
	suite.Suite
	pg    *containers.PostgresContainer
	store *Postgres
	ctx   context.Context
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.pg = containers.GetManager().GetPostgres(s.T())
	s.store = NewPostgres(s.pg.DB)
	s.Require().NoError(s.store.Migrate(context.Background()))
}

func (s *PostgresStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.Require().NoError(s.pg.Truncate(s.ctx, projectionTables...))
}

func (s *PostgresStoreSuite) TestMigrateIsIdempotent() {
	s.NoError(s.store.Migrate(s.ctx))
}

func (s *PostgresStoreSuite) TestDuplicateExternalKeyRollsBack() {
	s.Require().NoError(s.store.ReserveCode(s.ctx, "TLAAAAAA"))
	first := models.Node{ID: models.NodeID(uuid.New()), ExternalKey: "+1", ReferralCode: "TLAAAAAA", ReferrerCode: models.RootCode}
	s.Require().NoError(s.store.Materialize(s.ctx, first))

	s.Require().NoError(s.store.ReserveCode(s.ctx, "TLBBBBBB"))
	dup := models.Node{ID: models.NodeID(uuid.New()), ExternalKey: "+1", ReferralCode: "TLBBBBBB", ReferrerCode: models.RootCode}
	s.ErrorIs(s.store.Materialize(s.ctx, dup), ErrExternalKeyTaken)

	_, err := s.store.FindByID(s.ctx, dup.ID)
	s.ErrorIs(err, ErrNotFound)
	_, err = s.store.FindByCode(s.ctx, "TLBBBBBB")
	s.ErrorIs(err, ErrNotFound)
}

func (s *PostgresStoreSuite) TestCallerTransactionIsJoined() {
	s.Require().NoError(s.store.ReserveCode(s.ctx, "TLCCCCCC"))
	n := models.Node{ID: models.NodeID(uuid.New()), ExternalKey: "+2", ReferralCode: "TLCCCCCC", ReferrerCode: models.RootCode}

	err := txcontext.Run(s.ctx, s.pg.DB, func(ctx context.Context, _ *sql.Tx) error {
		if err := s.store.Materialize(ctx, n); err != nil {
			return err
		}
		return sql.ErrTxDone
	})
	s.ErrorIs(err, sql.ErrTxDone)

	_, err = s.store.FindByID(s.ctx, n.ID)
	s.ErrorIs(err, ErrNotFound)
}

type postgresContractSuite struct {
	contractSuite
}

func TestPostgresContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	pg := containers.GetManager().GetPostgres(t)
	st := NewPostgres(pg.DB)
	if err := st.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := new(postgresContractSuite)
	s.newStore = func() Store {
		if err := pg.Truncate(context.Background(), projectionTables...); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return st
	}
	suite.Run(t, s)
}
