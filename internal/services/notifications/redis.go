package notifications

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/BearBump/LiveTrace/internal/models"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
	"go.uber.org/zap"
)

var _ Store = (*Redis)(nil)

// Redis layout, all keys under prefix:
//
//	rec:{id}     msgpack-encoded record with native TTL
//	user:{rid}   LIST of ids, newest first
//	all          ZSET of "{id}|{rid}" scored by expiry (unix µs)
//
// Record keys may expire before the indexes notice; readers prune such
// dangling ids.
type Redis struct {
	c      redis.Cmdable
	prefix string
	limits Limits
	locks  *keyedMutex
	logger *zap.Logger
	now    func() time.Time
}

func NewRedis(c redis.Cmdable, prefix string, limits Limits, logger *zap.Logger) *Redis {
	if prefix == "" {
		prefix = "notif:"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		c:      c,
		prefix: prefix,
		limits: limits.withDefaults(),
		locks:  newKeyedMutex(),
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (r *Redis) recKey(id string) string   { return r.prefix + "rec:" + id }
func (r *Redis) userKey(rid string) string { return r.prefix + "user:" + rid }
func (r *Redis) allKey() string            { return r.prefix + "all" }

func member(id, rid string) string { return id + "|" + rid }

func splitMember(m string) (id, rid string) {
	id, rid, _ = strings.Cut(m, "|")
	return id, rid
}

func (r *Redis) Append(ctx context.Context, recipientID string, n *models.Notification) (*models.Notification, error) {
	if recipientID == "" {
		return nil, errors.Wrap(models.ErrInvalidArgument, "recipient id is required")
	}
	now := r.now()
	rec := stamp(recipientID, n, now, r.limits.TTL)
	ttl := rec.ExpiresAt.Sub(now)
	if ttl <= 0 {
		return clone(rec), nil
	}
	b, err := msgpack.Marshal(rec)
	if err != nil {
		return nil, errors.Wrap(err, "encode notification")
	}

	unlock := r.locks.Lock(recipientID)
	listKey := r.userKey(recipientID)
	pipe := r.c.TxPipeline()
	pipe.Set(ctx, r.recKey(rec.ID), b, ttl)
	pipe.LPush(ctx, listKey, rec.ID)
	pipe.Expire(ctx, listKey, r.limits.TTL)
	pipe.ZAdd(ctx, r.allKey(), redis.Z{Score: float64(rec.ExpiresAt.UnixMicro()), Member: member(rec.ID, recipientID)})
	overflow := pipe.LRange(ctx, listKey, int64(r.limits.PerRecipient), -1)
	pipe.LTrim(ctx, listKey, 0, int64(r.limits.PerRecipient-1))
	if _, err := pipe.Exec(ctx); err != nil {
		unlock()
		return nil, errors.Wrap(err, "redis append notification")
	}
	if ids := overflow.Val(); len(ids) > 0 {
		if err := r.removeLocked(ctx, recipientID, ids); err != nil {
			unlock()
			return nil, err
		}
	}
	unlock()

	if err := r.enforceGlobal(ctx); err != nil {
		r.logger.Warn("notification global cap enforcement failed", zap.Error(err))
	}
	return clone(rec), nil
}

func (r *Redis) enforceGlobal(ctx context.Context) error {
	total, err := r.c.ZCard(ctx, r.allKey()).Result()
	if err != nil {
		return errors.Wrap(err, "redis zcard")
	}
	excess := total - int64(r.limits.Global)
	if excess <= 0 {
		return nil
	}
	victims, err := r.c.ZRange(ctx, r.allKey(), 0, excess-1).Result()
	if err != nil {
		return errors.Wrap(err, "redis zrange")
	}
	for _, m := range victims {
		id, rid := splitMember(m)
		unlock := r.locks.Lock(rid)
		err := r.removeLocked(ctx, rid, []string{id})
		unlock()
		if err != nil {
			return err
		}
	}
	return nil
}

// removeLocked drops ids from every structure in one transaction.
func (r *Redis) removeLocked(ctx context.Context, rid string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ids))
	members := make([]any, 0, len(ids))
	pipe := r.c.TxPipeline()
	for _, id := range ids {
		keys = append(keys, r.recKey(id))
		members = append(members, member(id, rid))
		pipe.LRem(ctx, r.userKey(rid), 0, id)
	}
	pipe.Del(ctx, keys...)
	pipe.ZRem(ctx, r.allKey(), members...)
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis remove notifications")
	}
	return nil
}

// loadLocked returns the live records, newest first, pruning dangling or
// expired ids it finds on the way.
func (r *Redis) loadLocked(ctx context.Context, rid string) ([]*models.Notification, error) {
	ids, err := r.c.LRange(ctx, r.userKey(rid), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis lrange")
	}
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.recKey(id)
	}
	vals, err := r.c.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, errors.Wrap(err, "redis mget")
	}

	now := r.now()
	items := make([]*models.Notification, 0, len(ids))
	var dangling []string
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			dangling = append(dangling, ids[i])
			continue
		}
		var n models.Notification
		if err := msgpack.Unmarshal([]byte(s), &n); err != nil {
			r.logger.Warn("dropping undecodable notification", zap.String("notification_id", ids[i]), zap.Error(err))
			dangling = append(dangling, ids[i])
			continue
		}
		if n.Expired(now) {
			dangling = append(dangling, ids[i])
			continue
		}
		items = append(items, &n)
	}
	if err := r.removeLocked(ctx, rid, dangling); err != nil {
		return nil, err
	}
	return items, nil
}

func (r *Redis) saveAll(ctx context.Context, recs []*models.Notification) error {
	if len(recs) == 0 {
		return nil
	}
	now := r.now()
	pipe := r.c.TxPipeline()
	for _, n := range recs {
		ttl := n.ExpiresAt.Sub(now)
		if ttl <= 0 {
			continue
		}
		b, err := msgpack.Marshal(n)
		if err != nil {
			return errors.Wrap(err, "encode notification")
		}
		pipe.Set(ctx, r.recKey(n.ID), b, ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return errors.Wrap(err, "redis save notifications")
	}
	return nil
}

func (r *Redis) get(ctx context.Context, id, rid string) (*models.Notification, error) {
	b, err := r.c.Get(ctx, r.recKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis get")
	}
	var n models.Notification
	if err := msgpack.Unmarshal(b, &n); err != nil {
		return nil, errors.Wrap(err, "decode notification")
	}
	if n.RecipientID != rid || n.Expired(r.now()) {
		return nil, nil
	}
	return &n, nil
}

func (r *Redis) List(ctx context.Context, recipientID string, q models.NotificationQuery) ([]*models.Notification, error) {
	unlock := r.locks.Lock(recipientID)
	defer unlock()
	items, err := r.loadLocked(ctx, recipientID)
	if err != nil {
		return nil, err
	}
	return q.Page(items), nil
}

func (r *Redis) MarkRead(ctx context.Context, id, recipientID string) error {
	unlock := r.locks.Lock(recipientID)
	defer unlock()
	n, err := r.get(ctx, id, recipientID)
	if err != nil {
		return err
	}
	if n == nil {
		return errors.Wrapf(models.ErrNotFound, "notification %s", id)
	}
	if n.Read {
		return nil
	}
	at := r.now()
	n.Read = true
	n.ReadAt = &at
	return r.saveAll(ctx, []*models.Notification{n})
}

func (r *Redis) MarkAllRead(ctx context.Context, recipientID string) (int, error) {
	unlock := r.locks.Lock(recipientID)
	defer unlock()
	items, err := r.loadLocked(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	at := r.now()
	var changed []*models.Notification
	for _, n := range items {
		if n.Read {
			continue
		}
		n.Read = true
		ts := at
		n.ReadAt = &ts
		changed = append(changed, n)
	}
	if err := r.saveAll(ctx, changed); err != nil {
		return 0, err
	}
	return len(changed), nil
}

func (r *Redis) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	unlock := r.locks.Lock(recipientID)
	defer unlock()
	items, err := r.loadLocked(ctx, recipientID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, n := range items {
		if !n.Read {
			count++
		}
	}
	return count, nil
}

func (r *Redis) Delete(ctx context.Context, id, recipientID string) error {
	unlock := r.locks.Lock(recipientID)
	defer unlock()
	n, err := r.get(ctx, id, recipientID)
	if err != nil {
		return err
	}
	if n == nil {
		return errors.Wrapf(models.ErrNotFound, "notification %s", id)
	}
	return r.removeLocked(ctx, recipientID, []string{id})
}

// Sweep drops index entries whose records are past expiry.
func (r *Redis) Sweep(ctx context.Context) (int, error) {
	members, err := r.c.ZRangeByScore(ctx, r.allKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(r.now().UnixMicro(), 10),
	}).Result()
	if err != nil {
		return 0, errors.Wrap(err, "redis zrangebyscore")
	}

	byRecipient := map[string][]string{}
	for _, m := range members {
		id, rid := splitMember(m)
		byRecipient[rid] = append(byRecipient[rid], id)
	}
	for rid, ids := range byRecipient {
		unlock := r.locks.Lock(rid)
		err := r.removeLocked(ctx, rid, ids)
		unlock()
		if err != nil {
			return 0, err
		}
	}
	return len(members), nil
}
