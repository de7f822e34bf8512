package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/soochol/connreg/internal/connreg"
)

const (
	defaultRedisPrefix = "connreg"
	maxTxAttempts      = 32
)

var errTxContention = errors.New("redis transaction retries exhausted")

// RedisConnectionRepository stores each connection as a JSON value. Every
// write runs as a WATCH/MULTI transaction over the record and name keys, so
// a name key always points at the one live record using that name.
//
// Keys:
//
//	<prefix>:conn:<id>   JSON record
//	<prefix>:name:<name> owning id
//	<prefix>:ids         set of live ids
type RedisConnectionRepository struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

// DialRedis parses a redis:// URL and checks the server is reachable.
func DialRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

func NewRedisConnectionRepository(client *redis.Client, prefix string) *RedisConnectionRepository {
	if prefix == "" {
		prefix = defaultRedisPrefix
	}
	return &RedisConnectionRepository{client: client, prefix: prefix, now: time.Now}
}

func (r *RedisConnectionRepository) recordKey(id string) string { return r.prefix + ":conn:" + id }
func (r *RedisConnectionRepository) nameKey(name string) string { return r.prefix + ":name:" + name }
func (r *RedisConnectionRepository) idsKey() string             { return r.prefix + ":ids" }

func (r *RedisConnectionRepository) FindByID(ctx context.Context, id string) (*connreg.Connection, error) {
	return r.get(ctx, r.client, id)
}

func (r *RedisConnectionRepository) ExistsByName(ctx context.Context, name string) (bool, error) {
	n, err := r.client.Exists(ctx, r.nameKey(name)).Result()
	if err != nil {
		return false, fmt.Errorf("check connection name: %w", err)
	}
	return n > 0, nil
}

func (r *RedisConnectionRepository) Create(ctx context.Context, opts connreg.ConnectionOptions) (*connreg.Connection, error) {
	now := r.now().UTC()
	c := &connreg.Connection{
		ID:        connreg.NewConnectionID(),
		Name:      opts.Name,
		Host:      opts.Host,
		Port:      portOf(opts),
		CreatedAt: now,
		UpdatedAt: now,
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encode connection: %w", err)
	}

	nameKey := r.nameKey(c.Name)
	err = r.transact(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, nameKey).Result()
		if err != nil {
			return fmt.Errorf("check connection name: %w", err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %s", ErrDuplicateName, c.Name)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, nameKey, c.ID, 0)
			pipe.Set(ctx, r.recordKey(c.ID), data, 0)
			pipe.SAdd(ctx, r.idsKey(), c.ID)
			return nil
		})
		return err
	}, nameKey)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Update rewrites the record and moves its name claim in one transaction.
// The transaction watches the record and the requested name, so a
// concurrent rename, delete or claim of that name forces a retry.
func (r *RedisConnectionRepository) Update(ctx context.Context, id string, req connreg.UpdateRequest) (*connreg.Connection, error) {
	watch := []string{r.recordKey(id)}
	if req.Name != nil {
		watch = append(watch, r.nameKey(*req.Name))
	}

	var updated *connreg.Connection
	err := r.transact(ctx, func(tx *redis.Tx) error {
		cur, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		oldName := cur.Name

		renamed := req.Name != nil && *req.Name != oldName
		if renamed {
			owner, err := tx.Get(ctx, r.nameKey(*req.Name)).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return fmt.Errorf("check connection name: %w", err)
			}
			if err == nil && owner != id {
				return fmt.Errorf("%w: %s", ErrDuplicateName, *req.Name)
			}
		}

		next := cur.Clone()
		req.Apply(next)
		next.UpdatedAt = r.now().UTC()
		data, err := json.Marshal(next)
		if err != nil {
			return fmt.Errorf("encode connection: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, r.recordKey(id), data, 0)
			if renamed {
				pipe.Set(ctx, r.nameKey(next.Name), id, 0)
				pipe.Del(ctx, r.nameKey(oldName))
			}
			return nil
		})
		if err == nil {
			updated = next
		}
		return err
	}, watch...)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *RedisConnectionRepository) Delete(ctx context.Context, id string) error {
	return r.transact(ctx, func(tx *redis.Tx) error {
		cur, err := r.get(ctx, tx, id)
		if err != nil {
			return err
		}
		owner, err := tx.Get(ctx, r.nameKey(cur.Name)).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return fmt.Errorf("check connection name: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, r.recordKey(id))
			pipe.SRem(ctx, r.idsKey(), id)
			if owner == id {
				pipe.Del(ctx, r.nameKey(cur.Name))
			}
			return nil
		})
		return err
	}, r.recordKey(id))
}

// List returns every connection ordered by name.
func (r *RedisConnectionRepository) List(ctx context.Context) ([]*connreg.Connection, error) {
	ids, err := r.client.SMembers(ctx, r.idsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	result := []*connreg.Connection{}
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.recordKey(id)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue // deleted between SMEMBERS and MGET
		}
		var c connreg.Connection
		if err := json.Unmarshal([]byte(s), &c); err != nil {
			return nil, fmt.Errorf("decode connection %s: %w", ids[i], err)
		}
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// transact runs fn under WATCH on keys and retries when another client
// touched a watched key before EXEC.
func (r *RedisConnectionRepository) transact(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for attempt := 0; attempt < maxTxAttempts; attempt++ {
		err := r.client.Watch(ctx, fn, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return errTxContention
}

// getter is the part of *redis.Client and *redis.Tx that get needs.
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (r *RedisConnectionRepository) get(ctx context.Context, cmd getter, id string) (*connreg.Connection, error) {
	data, err := cmd.Get(ctx, r.recordKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	var c connreg.Connection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode connection %s: %w", id, err)
	}
	return &c, nil
}
