package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/smallbiznis/notifier/internal/notification/domain"
	redis "github.com/redis/go-redis/v9"
)

type redisRepo struct {
	client *redis.Client
	prefix string
}

// NewRedis returns a record store keeping each record as a JSON string
// plus set indexes by user, order and a global set.
func NewRedis(client *redis.Client, prefix string) domain.Repository {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "notifier"
	}
	return &redisRepo{client: client, prefix: prefix}
}

func (r *redisRepo) recordKey(id string) string {
	return r.prefix + ":notification:" + id
}

func (r *redisRepo) userKey(userID string) string {
	return r.prefix + ":notifications:user:" + userID
}

func (r *redisRepo) orderKey(orderID string) string {
	return r.prefix + ":notifications:order:" + orderID
}

func (r *redisRepo) allKey() string {
	return r.prefix + ":notifications:all"
}

func (r *redisRepo) Upsert(ctx context.Context, n *domain.Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("encode notification %s: %w", n.ID, err)
	}

	id := n.ID.String()
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.recordKey(id), payload, 0)
		pipe.SAdd(ctx, r.allKey(), id)
		pipe.SAdd(ctx, r.orderKey(n.OrderID), id)
		if n.UserID != nil && *n.UserID != "" {
			pipe.SAdd(ctx, r.userKey(*n.UserID), id)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert notification %s: %w", id, err)
	}
	return nil
}

func (r *redisRepo) FindByUser(ctx context.Context, userID string) ([]domain.Notification, error) {
	return r.findBySet(ctx, r.userKey(userID))
}

func (r *redisRepo) FindByOrder(ctx context.Context, orderID string) ([]domain.Notification, error) {
	return r.findBySet(ctx, r.orderKey(orderID))
}

func (r *redisRepo) FindAll(ctx context.Context) ([]domain.Notification, error) {
	return r.findBySet(ctx, r.allKey())
}

func (r *redisRepo) findBySet(ctx context.Context, setKey string) ([]domain.Notification, error) {
	ids, err := r.client.SMembers(ctx, setKey).Result()
	if err != nil {
		return nil, fmt.Errorf("read index %s: %w", setKey, err)
	}
	if len(ids) == 0 {
		return []domain.Notification{}, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, r.recordKey(id))
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("read notifications: %w", err)
	}

	items := make([]domain.Notification, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// index entry without a record; skip it
			continue
		}
		var n domain.Notification
		if err := json.Unmarshal([]byte(raw), &n); err != nil {
			return nil, fmt.Errorf("decode notification %s: %w", ids[i], err)
		}
		items = append(items, n)
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].ID > items[j].ID
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
	return items, nil
}
