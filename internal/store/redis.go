package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maximilianalessandronmartin/taskquest/pkg/api"
)

// Redis stores tasks as JSON values, keeps the ids of running timers in a
// set, and stores each user's notifications in a hash keyed by id
type Redis struct {
	client *redis.Client
	prefix string
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

const maxTxRetries = 16

var _ Store = (*Redis)(nil)

// NewRedis wraps an existing client. Every key is namespaced by prefix
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
	}
}

// OpenRedis connects to the server at addr and verifies it responds
func OpenRedis(
	ctx context.Context, addr, password string, db int, prefix string,
) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", addr, err)
	}
	return NewRedis(client, prefix), nil
}

func (r *Redis) CreateTask(ctx context.Context, t *api.Task) error {
	prepareTask(t, time.Now())
	data, err := json.Marshal(t)
	if err != nil {
		return err
	}

	ok, err := r.client.SetNX(ctx, r.taskKey(t.ID), data, 0).Result()
	if err != nil {
		return err
	}
	if !ok {
		return ErrTaskExists
	}
	if t.Timer.Active {
		return r.client.SAdd(ctx, r.activeKey(), string(t.ID)).Err()
	}
	return nil
}

func (r *Redis) GetTask(ctx context.Context, id api.TaskID) (*api.Task, error) {
	return getTask(ctx, r.client, r.taskKey(id))
}

func (r *Redis) UpdateTask(
	ctx context.Context, id api.TaskID, fn UpdateFunc,
) (*api.Task, error) {
	key := r.taskKey(id)
	var res *api.Task

	txf := func(tx *redis.Tx) error {
		cur, err := getTask(ctx, tx, key)
		if err != nil {
			return err
		}

		upd := cur.Clone()
		if err := fn(upd); err != nil {
			if errors.Is(err, ErrSkipUpdate) {
				res = cur
				return nil
			}
			return err
		}
		upd.ID = id
		upd.UpdatedAt = time.Now()

		data, err := json.Marshal(upd)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			if upd.Timer.Active {
				pipe.SAdd(ctx, r.activeKey(), string(id))
			} else {
				pipe.SRem(ctx, r.activeKey(), string(id))
			}
			return nil
		})
		if err == nil {
			res = upd
		}
		return err
	}

	for range maxTxRetries {
		err := r.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return res, nil
	}
	return nil, fmt.Errorf("%w: task %s", ErrConflict, id)
}

func (r *Redis) ListActiveTimers(ctx context.Context) ([]*api.Task, error) {
	ids, err := r.client.SMembers(ctx, r.activeKey()).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.taskKey(api.TaskID(id))
	}
	vals, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	res := make([]*api.Task, 0, len(vals))
	for i, v := range vals {
		s, ok := v.(string)
		if !ok {
			r.client.SRem(ctx, r.activeKey(), ids[i])
			continue
		}
		var t api.Task
		if err := json.Unmarshal([]byte(s), &t); err != nil {
			return nil, fmt.Errorf("decode task %s: %w", ids[i], err)
		}
		if t.Timer.Active {
			res = append(res, &t)
		}
	}
	return res, nil
}

func (r *Redis) DeleteTask(ctx context.Context, id api.TaskID) error {
	var del *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		del = pipe.Del(ctx, r.taskKey(id))
		pipe.SRem(ctx, r.activeKey(), string(id))
		return nil
	})
	if err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *Redis) AddNotification(
	ctx context.Context, n *api.Notification,
) error {
	prepareNotification(n, time.Now())
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	return r.client.HSet(
		ctx, r.notificationsKey(n.RecipientID), string(n.ID), data,
	).Err()
}

func (r *Redis) ListUnread(
	ctx context.Context, user api.UserID,
) ([]*api.Notification, error) {
	all, err := r.userNotifications(ctx, user)
	if err != nil {
		return nil, err
	}

	var res []*api.Notification
	for _, n := range all {
		if !n.Read {
			res = append(res, n)
		}
	}
	sortNewestFirst(res)
	return res, nil
}

func (r *Redis) MarkRead(
	ctx context.Context, user api.UserID, id api.NotificationID,
) error {
	key := r.notificationsKey(user)
	data, err := r.client.HGet(ctx, key, string(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return ErrNotificationNotFound
	}
	if err != nil {
		return err
	}

	var n api.Notification
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if n.Read {
		return nil
	}
	n.Read = true
	if data, err = json.Marshal(&n); err != nil {
		return err
	}
	return r.client.HSet(ctx, key, string(id), data).Err()
}

func (r *Redis) MarkAllRead(
	ctx context.Context, user api.UserID,
) (int, error) {
	all, err := r.userNotifications(ctx, user)
	if err != nil {
		return 0, err
	}

	var fields []any
	for _, n := range all {
		if n.Read {
			continue
		}
		n.Read = true
		data, err := json.Marshal(n)
		if err != nil {
			return 0, err
		}
		fields = append(fields, string(n.ID), data)
	}
	if len(fields) == 0 {
		return 0, nil
	}
	err = r.client.HSet(ctx, r.notificationsKey(user), fields...).Err()
	if err != nil {
		return 0, err
	}
	return len(fields) / 2, nil
}

func (r *Redis) DeleteNotification(
	ctx context.Context, user api.UserID, id api.NotificationID,
) error {
	n, err := r.client.HDel(ctx, r.notificationsKey(user), string(id)).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotificationNotFound
	}
	return nil
}

// Close releases the underlying client
func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) userNotifications(
	ctx context.Context, user api.UserID,
) ([]*api.Notification, error) {
	vals, err := r.client.HVals(ctx, r.notificationsKey(user)).Result()
	if err != nil {
		return nil, err
	}
	res := make([]*api.Notification, 0, len(vals))
	for _, v := range vals {
		var n api.Notification
		if err := json.Unmarshal([]byte(v), &n); err != nil {
			return nil, err
		}
		res = append(res, &n)
	}
	return res, nil
}

func (r *Redis) taskKey(id api.TaskID) string {
	return fmt.Sprintf("%s:task:%s", r.prefix, id)
}

func (r *Redis) activeKey() string {
	return r.prefix + ":timers:active"
}

func (r *Redis) notificationsKey(user api.UserID) string {
	return fmt.Sprintf("%s:notifications:%s", r.prefix, user)
}

func getTask(
	ctx context.Context, c stringGetter, key string,
) (*api.Task, error) {
	data, err := c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrTaskNotFound
	}
	if err != nil {
		return nil, err
	}
	var t api.Task
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, err
	}
	return &t, nil
}
