package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"refnet/internal/network/models"
)

const defaultRedisPrefix = "refnet:"

const (
	fieldID           = "id"
	fieldExternalKey  = "external_key"
	fieldReferralCode = "referral_code"
	fieldReferrerCode = "referrer_code"
	fieldRank         = "rank"
	fieldDirectCount  = "direct_count"
	fieldTeamCount    = "team_count"
	fieldJoinedAt     = "joined_at"

	pendingReservation = "-"
)

// Each script touches the keys of a single node (plus its parent's children
// set), so every multi-projection write is one atomic server-side step.
// The keyspace assumes a single Redis primary; cluster deployments would need
// hash tags per node.
var (
	reserveScript = redis.NewScript(`
if redis.call('SETNX', KEYS[1], ARGV[1]) == 1 then
  redis.call('INCR', KEYS[2])
  return 1
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('DEL', KEYS[1])
  redis.call('DECR', KEYS[2])
  return 1
end
return 0`)

	// KEYS: code, by-id, by-ext, by-code, parent children set, node index
	// ARGV: id, referral code, has parent, pending marker, field/value pairs...
	materializeScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[3]) == 1 then return -1 end
if redis.call('GET', KEYS[1]) ~= ARGV[4] then return -2 end
redis.call('SET', KEYS[1], ARGV[1])
local fields = {}
for i = 5, #ARGV do fields[#fields + 1] = ARGV[i] end
redis.call('HSET', KEYS[2], unpack(fields))
redis.call('HSET', KEYS[3], unpack(fields))
redis.call('HSET', KEYS[4], unpack(fields))
if ARGV[3] == '1' then redis.call('SADD', KEYS[5], ARGV[2]) end
redis.call('SADD', KEYS[6], ARGV[1])
return 1`)

	// KEYS: by-id, by-ext, by-code. ARGV: direct delta, team delta
	incrementScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return false end
for i = 1, 3 do
  if redis.call('EXISTS', KEYS[i]) == 1 then
    redis.call('HINCRBY', KEYS[i], 'direct_count', ARGV[1])
    redis.call('HINCRBY', KEYS[i], 'team_count', ARGV[2])
  end
end
return redis.call('HGETALL', KEYS[1])`)

	// KEYS: by-id, by-ext, by-code. ARGV: rank
	raiseRankScript = redis.NewScript(`
local cur = redis.call('HGET', KEYS[1], 'rank')
if not cur then return -1 end
cur = tonumber(cur)
if tonumber(ARGV[1]) > cur then
  for i = 1, 3 do
    if redis.call('EXISTS', KEYS[i]) == 1 then redis.call('HSET', KEYS[i], 'rank', ARGV[1]) end
  end
end
return cur`)

	// KEYS: by-id, mirror
	repairScript = redis.NewScript(`
local fields = redis.call('HGETALL', KEYS[1])
if #fields == 0 then return false end
if KEYS[2] ~= KEYS[1] then
  redis.call('DEL', KEYS[2])
  redis.call('HSET', KEYS[2], unpack(fields))
end
return fields`)

	// KEYS: by-id, by-ext, by-code. ARGV: field/value pairs
	updateScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then return false end
for i = 1, 3 do
  if redis.call('EXISTS', KEYS[i]) == 1 then redis.call('HSET', KEYS[i], unpack(ARGV)) end
end
return redis.call('HGETALL', KEYS[1])`)
)

// Redis stores each projection as a hash. Multi-projection writes run as Lua
// scripts and counter updates are server-side HINCRBYs, so concurrent joins
// sharing an ancestor never retry against each other.
type Redis struct {
	client *redis.Client
	prefix string
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithKeyPrefix namespaces every key, letting tests share one server.
func WithKeyPrefix(prefix string) RedisOption {
	return func(r *Redis) {
		r.prefix = prefix
	}
}

// NewRedis constructs a Redis-backed projection store.
func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	r := &Redis{client: client, prefix: defaultRedisPrefix}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	return r
}

func (r *Redis) codeKey(c models.Code) string      { return r.prefix + "code:" + string(c) }
func (r *Redis) codeCountKey() string              { return r.prefix + "codes:count" }
func (r *Redis) idKey(id models.NodeID) string     { return r.prefix + "node:id:" + id.String() }
func (r *Redis) extKey(ext string) string          { return r.prefix + "node:ext:" + ext }
func (r *Redis) byCodeKey(c models.Code) string    { return r.prefix + "node:code:" + string(c) }
func (r *Redis) childrenKey(c models.Code) string  { return r.prefix + "children:" + string(c) }
func (r *Redis) nodesKey() string                  { return r.prefix + "nodes" }
func (r *Redis) mirrorKeys(n models.Node) []string { return []string{r.idKey(n.ID), r.extKey(n.ExternalKey), r.byCodeKey(n.ReferralCode)} }

func (r *Redis) ReserveCode(ctx context.Context, code models.Code) error {
	ok, err := reserveScript.Run(ctx, r.client, []string{r.codeKey(code), r.codeCountKey()}, pendingReservation).Int()
	if err != nil {
		return fmt.Errorf("reserve code: %w", err)
	}
	if ok == 0 {
		return ErrCodeTaken
	}
	return nil
}

func (r *Redis) ReleaseCode(ctx context.Context, code models.Code) error {
	if err := releaseScript.Run(ctx, r.client, []string{r.codeKey(code), r.codeCountKey()}, pendingReservation).Err(); err != nil {
		return fmt.Errorf("release code: %w", err)
	}
	return nil
}

func (r *Redis) CountCodes(ctx context.Context) (int64, error) {
	n, err := r.client.Get(ctx, r.codeCountKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("count codes: %w", err)
	}
	return n, nil
}

func (r *Redis) Materialize(ctx context.Context, node models.Node) error {
	hasParent := "0"
	if node.ReferrerCode != "" {
		hasParent = "1"
	}
	keys := []string{
		r.codeKey(node.ReferralCode),
		r.idKey(node.ID),
		r.extKey(node.ExternalKey),
		r.byCodeKey(node.ReferralCode),
		r.childrenKey(node.ReferrerCode),
		r.nodesKey(),
	}
	args := []any{node.ID.String(), string(node.ReferralCode), hasParent, pendingReservation}
	args = append(args, encodeNode(node)...)

	res, err := materializeScript.Run(ctx, r.client, keys, args...).Int()
	if err != nil {
		return fmt.Errorf("materialize node: %w", err)
	}
	switch res {
	case -1:
		return ErrExternalKeyTaken
	case -2:
		return ErrCodeNotReserved
	}
	return nil
}

func (r *Redis) FindByID(ctx context.Context, id models.NodeID) (models.Node, error) {
	return r.load(ctx, r.idKey(id))
}

func (r *Redis) FindByExternalKey(ctx context.Context, externalKey string) (models.Node, error) {
	return r.load(ctx, r.extKey(externalKey))
}

func (r *Redis) FindByCode(ctx context.Context, code models.Code) (models.Node, error) {
	return r.load(ctx, r.byCodeKey(code))
}

func (r *Redis) load(ctx context.Context, key string) (models.Node, error) {
	fields, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return models.Node{}, fmt.Errorf("load %s: %w", key, err)
	}
	if len(fields) == 0 {
		return models.Node{}, ErrNotFound
	}
	return decodeNode(fields)
}

func (r *Redis) Children(ctx context.Context, code models.Code) ([]models.Code, error) {
	members, err := r.client.SMembers(ctx, r.childrenKey(code)).Result()
	if err != nil {
		return nil, fmt.Errorf("list children: %w", err)
	}
	out := make([]models.Code, len(members))
	for i, m := range members {
		out[i] = models.Code(m)
	}
	return out, nil
}

func (r *Redis) IncrementCounters(ctx context.Context, id models.NodeID, direct, team int64) (models.Node, error) {
	cur, err := r.FindByID(ctx, id)
	if err != nil {
		return models.Node{}, err
	}
	res, err := incrementScript.Run(ctx, r.client, r.mirrorKeys(cur), direct, team).Slice()
	if errors.Is(err, redis.Nil) {
		return models.Node{}, ErrNotFound
	}
	if err != nil {
		return models.Node{}, fmt.Errorf("increment counters: %w", err)
	}
	return decodeNode(pairsToMap(res))
}

func (r *Redis) RaiseRank(ctx context.Context, id models.NodeID, rank int) (int, error) {
	cur, err := r.FindByID(ctx, id)
	if err != nil {
		return 0, err
	}
	prev, err := raiseRankScript.Run(ctx, r.client, r.mirrorKeys(cur), rank).Int()
	if err != nil {
		return 0, fmt.Errorf("raise rank: %w", err)
	}
	if prev < 0 {
		return 0, ErrNotFound
	}
	return prev, nil
}

func (r *Redis) UpdateMirrored(ctx context.Context, id models.NodeID, update models.MirroredUpdate) (models.Node, error) {
	cur, err := r.FindByID(ctx, id)
	if err != nil {
		return models.Node{}, err
	}
	var args []any
	if update.Rank != nil {
		args = append(args, fieldRank, *update.Rank)
	}
	if update.DirectCount != nil {
		args = append(args, fieldDirectCount, *update.DirectCount)
	}
	if update.TeamCount != nil {
		args = append(args, fieldTeamCount, *update.TeamCount)
	}
	if len(args) == 0 {
		return cur, nil
	}
	res, err := updateScript.Run(ctx, r.client, r.mirrorKeys(cur), args...).Slice()
	if errors.Is(err, redis.Nil) {
		return models.Node{}, ErrNotFound
	}
	if err != nil {
		return models.Node{}, fmt.Errorf("update mirrored fields: %w", err)
	}
	return decodeNode(pairsToMap(res))
}

func (r *Redis) Mirrors(ctx context.Context, id models.NodeID) (models.Mirrors, error) {
	byID, err := r.FindByID(ctx, id)
	if err != nil {
		return models.Mirrors{}, err
	}
	pipe := r.client.Pipeline()
	idCmd := pipe.HGetAll(ctx, r.idKey(id))
	extCmd := pipe.HGetAll(ctx, r.extKey(byID.ExternalKey))
	codeCmd := pipe.HGetAll(ctx, r.byCodeKey(byID.ReferralCode))
	if _, err := pipe.Exec(ctx); err != nil {
		return models.Mirrors{}, fmt.Errorf("read mirrors: %w", err)
	}

	var out models.Mirrors
	for _, pair := range []struct {
		cmd *redis.MapStringStringCmd
		dst **models.Node
	}{{idCmd, &out.ByID}, {extCmd, &out.ByExternalKey}, {codeCmd, &out.ByCode}} {
		fields := pair.cmd.Val()
		if len(fields) == 0 {
			continue
		}
		n, err := decodeNode(fields)
		if err != nil {
			return models.Mirrors{}, err
		}
		*pair.dst = &n
	}
	if out.ByID == nil {
		return models.Mirrors{}, ErrNotFound
	}
	return out, nil
}

func (r *Redis) PutMirror(ctx context.Context, kind models.ProjectionKind, node models.Node) error {
	var key string
	switch kind {
	case models.ProjectionByID:
		key = r.idKey(node.ID)
	case models.ProjectionByExternalKey:
		key = r.extKey(node.ExternalKey)
	case models.ProjectionByCode:
		key = r.byCodeKey(node.ReferralCode)
	default:
		return ErrUnknownProjection
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, encodeNode(node)...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("put %s mirror: %w", kind, err)
	}
	return nil
}

// RepairMirror locates the mirror through the by-id record's immutable keys,
// then copies by-id over it inside one script so no increment lands between
// the read and the write.
func (r *Redis) RepairMirror(ctx context.Context, id models.NodeID, kind models.ProjectionKind) (models.Node, error) {
	cur, err := r.FindByID(ctx, id)
	if err != nil {
		return models.Node{}, err
	}
	var key string
	switch kind {
	case models.ProjectionByID:
		key = r.idKey(id)
	case models.ProjectionByExternalKey:
		key = r.extKey(cur.ExternalKey)
	case models.ProjectionByCode:
		key = r.byCodeKey(cur.ReferralCode)
	default:
		return models.Node{}, ErrUnknownProjection
	}
	res, err := repairScript.Run(ctx, r.client, []string{r.idKey(id), key}).Slice()
	if errors.Is(err, redis.Nil) {
		return models.Node{}, ErrNotFound
	}
	if err != nil {
		return models.Node{}, fmt.Errorf("repair %s mirror: %w", kind, err)
	}
	return decodeNode(pairsToMap(res))
}

func (r *Redis) Scan(ctx context.Context, fn func(models.Node) error) error {
	iter := r.client.SScan(ctx, r.nodesKey(), 0, "", 500).Iterator()
	for iter.Next(ctx) {
		u, err := uuid.Parse(iter.Val())
		if err != nil {
			return fmt.Errorf("scan node index: %w", err)
		}
		n, err := r.FindByID(ctx, models.NodeID(u))
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		if err := fn(n); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scan nodes: %w", err)
	}
	return nil
}

func encodeNode(n models.Node) []any {
	return []any{
		fieldID, n.ID.String(),
		fieldExternalKey, n.ExternalKey,
		fieldReferralCode, string(n.ReferralCode),
		fieldReferrerCode, string(n.ReferrerCode),
		fieldRank, strconv.Itoa(n.Rank),
		fieldDirectCount, strconv.FormatInt(n.DirectCount, 10),
		fieldTeamCount, strconv.FormatInt(n.TeamCount, 10),
		fieldJoinedAt, n.JoinedAt.UTC().Format(time.RFC3339Nano),
	}
}

func decodeNode(fields map[string]string) (models.Node, error) {
	u, err := uuid.Parse(fields[fieldID])
	if err != nil {
		return models.Node{}, fmt.Errorf("decode node id: %w", err)
	}
	rank, err := strconv.Atoi(fields[fieldRank])
	if err != nil {
		return models.Node{}, fmt.Errorf("decode rank: %w", err)
	}
	direct, err := strconv.ParseInt(fields[fieldDirectCount], 10, 64)
	if err != nil {
		return models.Node{}, fmt.Errorf("decode direct count: %w", err)
	}
	team, err := strconv.ParseInt(fields[fieldTeamCount], 10, 64)
	if err != nil {
		return models.Node{}, fmt.Errorf("decode team count: %w", err)
	}
	joined, err := time.Parse(time.RFC3339Nano, fields[fieldJoinedAt])
	if err != nil {
		return models.Node{}, fmt.Errorf("decode joined_at: %w", err)
	}
	return models.Node{
		ID:           models.NodeID(u),
		ExternalKey:  fields[fieldExternalKey],
		ReferralCode: models.Code(fields[fieldReferralCode]),
		ReferrerCode: models.Code(fields[fieldReferrerCode]),
		Rank:         rank,
		DirectCount:  direct,
		TeamCount:    team,
		JoinedAt:     joined,
	}, nil
}

// pairsToMap converts a flat HGETALL reply returned from Lua.
func pairsToMap(pairs []any) map[string]string {
	out := make(map[string]string, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		k, _ := pairs[i].(string)
		v, _ := pairs[i+1].(string)
		out[k] = v
	}
	return out
}
