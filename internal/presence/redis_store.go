package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address   string `mapstructure:"address"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// Redis key patterns:
// {prefix}:online       SET<user_id>   - users with a live connection
// {prefix}:last_seen    HASH           - user_id -> unix seconds of last disconnect

type redisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a Redis-backed presence store.
func NewRedisStore(cfg RedisConfig) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "presence"
	}

	return &redisStore{client: client, prefix: prefix}, nil
}

func (s *redisStore) onlineKey() string   { return s.prefix + ":online" }
func (s *redisStore) lastSeenKey() string { return s.prefix + ":last_seen" }

func (s *redisStore) SetOnline(ctx context.Context, userID string) error {
	return s.client.SAdd(ctx, s.onlineKey(), userID).Err()
}

func (s *redisStore) SetOffline(ctx context.Context, userID string, lastSeen time.Time) error {
	pipe := s.client.TxPipeline()
	pipe.SRem(ctx, s.onlineKey(), userID)
	pipe.HSet(ctx, s.lastSeenKey(), userID, strconv.FormatInt(lastSeen.Unix(), 10))
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) LastSeen(ctx context.Context, userID string) (time.Time, error) {
	val, err := s.client.HGet(ctx, s.lastSeenKey(), userID).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ts, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed last-seen value for %s: %w", userID, err)
	}
	return time.Unix(ts, 0), nil
}

func (s *redisStore) OnlineUsers(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, s.onlineKey()).Result()
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
