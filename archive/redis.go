package archive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/convoflow/config"
	"github.com/BaSui01/convoflow/types"
)

const redisKeyPrefix = "convoflow:archive:"

// RedisStore Redis 归档存储。记录本体存字符串键，归档时间索引存
// 有序集合；TTL > 0 时记录到期自动淘汰，List 容忍索引中的悬空成员。
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// redisRecord Redis / Mongo 共用的归档载荷
type redisRecord struct {
	Snapshot   types.ConversationSnapshot `json:"snapshot"`
	ArchivedAt time.Time                  `json:"archived_at"`
}

// NewRedisStore 连接 Redis 并确认连通
func NewRedisStore(cfg config.ArchiveConfig, logger *zap.Logger) (*RedisStore, error) {
	if cfg.RedisAddr == "" {
		return nil, fmt.Errorf("archive backend redis requires redis_addr: %w", ErrInvalidInput)
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("archive redis connected", zap.String("addr", cfg.RedisAddr))
	return &RedisStore{
		client: client,
		ttl:    cfg.TTL,
		logger: logger.With(zap.String("component", "archive_redis")),
	}, nil
}

func dataKey(id string) string {
	return redisKeyPrefix + "data:" + id
}

func indexKey() string {
	return redisKeyPrefix + "index"
}

// Save 写入记录并更新归档时间索引
func (s *RedisStore) Save(ctx context.Context, snap types.ConversationSnapshot) error {
	if snap.ID == "" {
		return fmt.Errorf("snapshot has no conversation id: %w", ErrInvalidInput)
	}

	now := time.Now().UTC()
	payload, err := json.Marshal(redisRecord{Snapshot: snap, ArchivedAt: now})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, dataKey(snap.ID), payload, s.ttl)
	pipe.ZAdd(ctx, indexKey(), redis.Z{
		Score:  float64(now.UnixNano()),
		Member: snap.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save conversation %s: %w", snap.ID, err)
	}
	return nil
}

// Load 取回完整快照
func (s *RedisStore) Load(ctx context.Context, id string) (types.ConversationSnapshot, error) {
	raw, err := s.client.Get(ctx, dataKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return types.ConversationSnapshot{}, ErrNotFound
	}
	if err != nil {
		return types.ConversationSnapshot{}, fmt.Errorf("failed to load conversation %s: %w", id, err)
	}

	var rec redisRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return types.ConversationSnapshot{}, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	return rec.Snapshot, nil
}

// List 按归档时间倒序返回清单。TTL 淘汰后的悬空索引成员顺手清掉。
func (s *RedisStore) List(ctx context.Context, limit int) ([]Summary, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, indexKey(), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read archive index: %w", err)
	}
	if len(ids) == 0 {
		return []Summary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = dataKey(id)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read archive records: %w", err)
	}

	out := make([]Summary, 0, len(ids))
	var stale []interface{}
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var rec redisRecord
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			s.logger.Warn("skipping undecodable archive record", zap.String("conversation_id", ids[i]), zap.Error(err))
			continue
		}
		out = append(out, summarize(rec.Snapshot, rec.ArchivedAt))
	}
	if len(stale) > 0 {
		if err := s.client.ZRem(ctx, indexKey(), stale...).Err(); err != nil {
			s.logger.Warn("failed to prune stale index members", zap.Error(err))
		}
	}
	return out, nil
}

// Delete 删除记录与索引成员
func (s *RedisStore) Delete(ctx context.Context, id string) error {
	deleted, err := s.client.Del(ctx, dataKey(id)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete conversation %s: %w", id, err)
	}
	if err := s.client.ZRem(ctx, indexKey(), id).Err(); err != nil {
		return fmt.Errorf("failed to prune index for %s: %w", id, err)
	}
	if deleted == 0 {
		return ErrNotFound
	}
	return nil
}

// Ping 检查 Redis 连通性
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close 关闭客户端
func (s *RedisStore) Close() error {
	return s.client.Close()
}
