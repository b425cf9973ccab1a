package services

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"vidshare-realtime/internal/database"
)

const onlineUsersKey = "online_users"

// RedisService mirrors presence into Redis so other instances and the CRUD
// layer can see who is online. It implements websocket.PresenceMirror.
type RedisService struct {
	client *database.RedisClient
	logger *slog.Logger
}

func NewRedisService(client *database.RedisClient, logger *slog.Logger) *RedisService {
	return &RedisService{
		client: client,
		logger: logger,
	}
}

func userStatusKey(userID string) string {
	return fmt.Sprintf("user:%s:status", userID)
}

// =============================================================================
// User Status Management
// =============================================================================

func (r *RedisService) SetUserOnline(ctx context.Context, userID string) error {
	pipe := r.client.GetClient().Pipeline()
	now := time.Now().Unix()

	pipe.SAdd(ctx, onlineUsersKey, userID)
	pipe.HSet(ctx, userStatusKey(userID), map[string]interface{}{
		"status":     "online",
		"last_seen":  now,
		"updated_at": now,
	})
	pipe.Expire(ctx, userStatusKey(userID), 5*time.Minute)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set user %s online: %w", userID, err)
	}

	r.logger.Debug("User set to online", "userID", userID)
	return nil
}

func (r *RedisService) SetUserOffline(ctx context.Context, userID string) error {
	pipe := r.client.GetClient().Pipeline()
	now := time.Now().Unix()

	pipe.SRem(ctx, onlineUsersKey, userID)
	pipe.HSet(ctx, userStatusKey(userID), map[string]interface{}{
		"status":     "offline",
		"last_seen":  now,
		"updated_at": now,
	})
	// Offline status is kept longer so "last seen" survives a quiet day.
	pipe.Expire(ctx, userStatusKey(userID), 24*time.Hour)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("set user %s offline: %w", userID, err)
	}

	r.logger.Debug("User set to offline", "userID", userID)
	return nil
}

func (r *RedisService) IsUserOnline(ctx context.Context, userID string) (bool, error) {
	return r.client.GetClient().SIsMember(ctx, onlineUsersKey, userID).Result()
}

func (r *RedisService) GetOnlineUsers(ctx context.Context) ([]string, error) {
	return r.client.GetClient().SMembers(ctx, onlineUsersKey).Result()
}

// UserStatus returns the status hash written by the last transition.
func (r *RedisService) UserStatus(ctx context.Context, userID string) (map[string]string, error) {
	return r.client.GetClient().HGetAll(ctx, userStatusKey(userID)).Result()
}

// =============================================================================
// Rate Limiting
// =============================================================================

// CheckRateLimit records one request under key and reports whether fewer
// than limit requests were seen in the trailing window.
func (r *RedisService) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	now := time.Now()
	windowStart := now.Add(-window).UnixNano()

	pipe := r.client.GetClient().Pipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart, 10))
	count := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(now.UnixNano()), Member: now.UnixNano()})
	pipe.Expire(ctx, key, window)

	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("check rate limit %s: %w", key, err)
	}
	return count.Val() < int64(limit), nil
}
