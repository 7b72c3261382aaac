package store

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"refnet/internal/network/models"
	txcontext "refnet/pkg/platform/tx"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

const nodeColumns = "id, external_key, referral_code, referrer_code, rank, direct_count, team_count, joined_at"

// Postgres keeps each projection in its own table. Multi-projection writes
// share one short transaction per node; counter updates are single
// "count = count + n" statements, so concurrent joins under the same
// ancestor queue on the row lock instead of retrying.
type Postgres struct {
	db *sql.DB
}

// NewPostgres constructs a PostgreSQL-backed projection store.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate creates the tables if they are missing.
func (s *Postgres) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("migrate projection schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Postgres) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// inTx runs fn in a transaction, joining one already carried by ctx.
func (s *Postgres) inTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return txcontext.Run(ctx, s.db, fn)
}

func (s *Postgres) ReserveCode(ctx context.Context, code models.Code) error {
	res, err := s.execer(ctx).ExecContext(ctx,
		`INSERT INTO code_reservations (code) VALUES ($1) ON CONFLICT (code) DO NOTHING`, string(code))
	if err != nil {
		return fmt.Errorf("reserve code: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reserve code: %w", err)
	}
	if n == 0 {
		return ErrCodeTaken
	}
	return nil
}

func (s *Postgres) ReleaseCode(ctx context.Context, code models.Code) error {
	_, err := s.execer(ctx).ExecContext(ctx,
		`DELETE FROM code_reservations WHERE code = $1 AND node_id IS NULL`, string(code))
	if err != nil {
		return fmt.Errorf("release code: %w", err)
	}
	return nil
}

func (s *Postgres) CountCodes(ctx context.Context) (int64, error) {
	var n int64
	if err := s.execer(ctx).QueryRowContext(ctx, `SELECT count(*) FROM code_reservations`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count codes: %w", err)
	}
	return n, nil
}

func (s *Postgres) Materialize(ctx context.Context, node models.Node) error {
	return s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE code_reservations SET node_id = $1 WHERE code = $2 AND node_id IS NULL`,
			uuid.UUID(node.ID), string(node.ReferralCode))
		if err != nil {
			return fmt.Errorf("bind code: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrCodeNotReserved
		}

		args := []any{uuid.UUID(node.ID), node.ExternalKey, string(node.ReferralCode), string(node.ReferrerCode),
			node.Rank, node.DirectCount, node.TeamCount, node.JoinedAt}
		for _, table := range []string{"nodes_by_external_key", "nodes_by_id", "nodes_by_code"} {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO `+table+` (`+nodeColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`, args...); err != nil {
				var pqErr *pq.Error
				if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation && table == "nodes_by_external_key" {
					return ErrExternalKeyTaken
				}
				return fmt.Errorf("insert %s: %w", table, err)
			}
		}
		return nil
	})
}

func (s *Postgres) FindByID(ctx context.Context, id models.NodeID) (models.Node, error) {
	return s.queryOne(ctx, `SELECT `+nodeColumns+` FROM nodes_by_id WHERE id = $1`, uuid.UUID(id))
}

func (s *Postgres) FindByExternalKey(ctx context.Context, externalKey string) (models.Node, error) {
	return s.queryOne(ctx, `SELECT `+nodeColumns+` FROM nodes_by_external_key WHERE external_key = $1`, externalKey)
}

func (s *Postgres) FindByCode(ctx context.Context, code models.Code) (models.Node, error) {
	return s.queryOne(ctx, `SELECT `+nodeColumns+` FROM nodes_by_code WHERE referral_code = $1`, string(code))
}

func (s *Postgres) queryOne(ctx context.Context, query string, arg any) (models.Node, error) {
	n, err := scanNode(s.execer(ctx).QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Node{}, ErrNotFound
	}
	if err != nil {
		return models.Node{}, fmt.Errorf("load node: %w", err)
	}
	return n, nil
}

func (s *Postgres) Children(ctx context.Context, code models.Code) ([]models.Code, error) {
	rows, err := s.execer(ctx).QueryContext(ctx,
		`SELECT referral_code FROM nodes_by_id WHERE referrer_code = $1 ORDER BY joined_at`, string(code))
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	defer rows.Close()
	var out []models.Code
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("scan child: %w", err)
		}
		out = append(out, models.Code(c))
	}
	return out, rows.Err()
}

func (s *Postgres) IncrementCounters(ctx context.Context, id models.NodeID, direct, team int64) (models.Node, error) {
	return s.mutate(ctx, id,
		`direct_count = direct_count + $2, team_count = team_count + $3`, direct, team)
}

func (s *Postgres) RaiseRank(ctx context.Context, id models.NodeID, rank int) (int, error) {
	var prev int
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			`SELECT rank FROM nodes_by_id WHERE id = $1 FOR UPDATE`, uuid.UUID(id)).Scan(&prev); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("lock rank: %w", err)
		}
		if rank <= prev {
			return nil
		}
		_, err := s.mutate(ctx, id, `rank = $2`, rank)
		return err
	})
	return prev, err
}

func (s *Postgres) UpdateMirrored(ctx context.Context, id models.NodeID, update models.MirroredUpdate) (models.Node, error) {
	set := `rank = COALESCE($2, rank), direct_count = COALESCE($3, direct_count), team_count = COALESCE($4, team_count)`
	return s.mutate(ctx, id, set, nullableInt(update.Rank), nullableInt64(update.DirectCount), nullableInt64(update.TeamCount))
}

// mutate applies the same SET clause to the by-id row and both mirrors in
// one transaction. Mirrors are addressed through the by-id row's immutable
// keys, which are locked first so every writer takes locks in the same order.
func (s *Postgres) mutate(ctx context.Context, id models.NodeID, set string, args ...any) (models.Node, error) {
	var out models.Node
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		params := append([]any{uuid.UUID(id)}, args...)
		n, err := scanNode(tx.QueryRowContext(ctx,
			`UPDATE nodes_by_id SET `+set+` WHERE id = $1 RETURNING `+nodeColumns, params...))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("update by-id projection: %w", err)
		}
		params[0] = n.ExternalKey
		if _, err := tx.ExecContext(ctx, `UPDATE nodes_by_external_key SET `+set+` WHERE external_key = $1`, params...); err != nil {
			return fmt.Errorf("update by-external-key projection: %w", err)
		}
		params[0] = string(n.ReferralCode)
		if _, err := tx.ExecContext(ctx, `UPDATE nodes_by_code SET `+set+` WHERE referral_code = $1`, params...); err != nil {
			return fmt.Errorf("update by-code projection: %w", err)
		}
		out = n
		return nil
	})
	return out, err
}

func (s *Postgres) Mirrors(ctx context.Context, id models.NodeID) (models.Mirrors, error) {
	var out models.Mirrors
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		byID, err := s.FindByID(ctx, id)
		if err != nil {
			return err
		}
		out.ByID = &byID
		if n, err := s.FindByExternalKey(ctx, byID.ExternalKey); err == nil {
			out.ByExternalKey = &n
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		if n, err := s.FindByCode(ctx, byID.ReferralCode); err == nil {
			out.ByCode = &n
		} else if !errors.Is(err, ErrNotFound) {
			return err
		}
		return nil
	})
	return out, err
}

func (s *Postgres) PutMirror(ctx context.Context, kind models.ProjectionKind, node models.Node) error {
	return s.putMirror(ctx, s.execer(ctx), kind, node)
}

// RepairMirror locks the by-id row before copying it, the same lock every
// counter update takes first, so the copy cannot fall behind a racing write.
func (s *Postgres) RepairMirror(ctx context.Context, id models.NodeID, kind models.ProjectionKind) (models.Node, error) {
	var out models.Node
	err := s.inTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		n, err := scanNode(tx.QueryRowContext(ctx,
			`SELECT `+nodeColumns+` FROM nodes_by_id WHERE id = $1 FOR UPDATE`, uuid.UUID(id)))
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock by-id projection: %w", err)
		}
		if kind != models.ProjectionByID {
			if err := s.putMirror(ctx, tx, kind, n); err != nil {
				return err
			}
		}
		out = n
		return nil
	})
	return out, err
}

func (s *Postgres) putMirror(ctx context.Context, exec dbExecutor, kind models.ProjectionKind, node models.Node) error {
	var table, key string
	switch kind {
	case models.ProjectionByID:
		table, key = "nodes_by_id", "id"
	case models.ProjectionByExternalKey:
		table, key = "nodes_by_external_key", "external_key"
	case models.ProjectionByCode:
		table, key = "nodes_by_code", "referral_code"
	default:
		return ErrUnknownProjection
	}
	query := `INSERT INTO ` + table + ` (` + nodeColumns + `) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (` + key + `) DO UPDATE SET
			id = EXCLUDED.id, external_key = EXCLUDED.external_key, referral_code = EXCLUDED.referral_code,
			referrer_code = EXCLUDED.referrer_code, rank = EXCLUDED.rank, direct_count = EXCLUDED.direct_count,
			team_count = EXCLUDED.team_count, joined_at = EXCLUDED.joined_at`
	_, err := exec.ExecContext(ctx, query, uuid.UUID(node.ID), node.ExternalKey, string(node.ReferralCode),
		string(node.ReferrerCode), node.Rank, node.DirectCount, node.TeamCount, node.JoinedAt)
	if err != nil {
		return fmt.Errorf("put %s mirror: %w", kind, err)
	}
	return nil
}

func (s *Postgres) Scan(ctx context.Context, fn func(models.Node) error) error {
	rows, err := s.execer(ctx).QueryContext(ctx, `SELECT `+nodeColumns+` FROM nodes_by_id ORDER BY joined_at`)
	if err != nil {
		return fmt.Errorf("scan nodes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return fmt.Errorf("scan node: %w", err)
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (models.Node, error) {
	var (
		id                 uuid.UUID
		n                  models.Node
		referral, referrer string
	)
	if err := row.Scan(&id, &n.ExternalKey, &referral, &referrer, &n.Rank, &n.DirectCount, &n.TeamCount, &n.JoinedAt); err != nil {
		return models.Node{}, err
	}
	n.ID = models.NodeID(id)
	n.ReferralCode = models.Code(referral)
	n.ReferrerCode = models.Code(referrer)
	return n, nil
}

func nullableInt(v *int) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*v), Valid: true}
}

func nullableInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
